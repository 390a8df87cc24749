package security

import (
	"fmt"

	"golang.org/x/crypto/bcrypt"
)

// DefaultCost は bcrypt の既定コストです。
const DefaultCost = 12

var bcryptGenerateFromPassword = bcrypt.GenerateFromPassword

// BcryptHasher は user.PasswordHasher を bcrypt で実装します。
type BcryptHasher struct {
	cost int
}

// NewBcryptHasher は BcryptHasher を生成します。範囲外のコストは DefaultCost に置き換えます。
func NewBcryptHasher(cost int) *BcryptHasher {
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		cost = DefaultCost
	}
	return &BcryptHasher{cost: cost}
}

// Hash はソルト付きのダイジェストを返します。
func (h *BcryptHasher) Hash(password string) (string, error) {
	digest, err := bcryptGenerateFromPassword([]byte(password), h.cost)
	if err != nil {
		return "", fmt.Errorf("security: hash password: %w", err)
	}
	return string(digest), nil
}

// Verify はパスワードがダイジェストに一致するかを返します。
func (h *BcryptHasher) Verify(password, digest string) bool {
	return bcrypt.CompareHashAndPassword([]byte(digest), []byte(password)) == nil
}
