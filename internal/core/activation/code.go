package activation

import (
	"crypto/rand"
	"fmt"
	"io"
	"math/big"
	"time"
)

const (
	// CodeLength はコードの桁数です。
	CodeLength = 4
	// CodeTTL はコードの有効期間です。
	CodeTTL = time.Minute
)

// CodeGenerator はコード文字列を生成します。
type CodeGenerator interface {
	Generate() (string, error)
}

// RandomCodeGenerator は暗号論的乱数から固定長の数字列を生成します。
type RandomCodeGenerator struct {
	reader io.Reader
	digits int
}

// NewRandomCodeGenerator は crypto/rand を使う RandomCodeGenerator を生成します。
func NewRandomCodeGenerator() *RandomCodeGenerator {
	return &RandomCodeGenerator{reader: rand.Reader, digits: CodeLength}
}

// Generate は 0 埋めされた一様分布の数字列を返します。
func (g *RandomCodeGenerator) Generate() (string, error) {
	upper := new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(g.digits)), nil)
	n, err := rand.Int(g.reader, upper)
	if err != nil {
		return "", fmt.Errorf("activation: read random: %w", err)
	}
	return fmt.Sprintf("%0*d", g.digits, n.Int64()), nil
}

// ValidCodeFormat は code が CodeLength 桁の ASCII 数字だけで構成されているかを返します。
// 空白を含む値は正規化せずに拒否します。
func ValidCodeFormat(code string) bool {
	if len(code) != CodeLength {
		return false
	}
	for i := 0; i < len(code); i++ {
		if code[i] < '0' || code[i] > '9' {
			return false
		}
	}
	return true
}
