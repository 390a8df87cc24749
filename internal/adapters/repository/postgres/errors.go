package postgres

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"

	"github.com/dradenvandewind/registration-api/internal/core/storage"
)

const (
	uniqueViolationCode      = "23505"
	foreignKeyViolationCode  = "23503"
	invalidTextRepresentCode = "22P02"
	tooManyConnectionsCode   = "53300"
	adminShutdownCode        = "57P01"
	cannotConnectNowCode     = "57P03"
)

// translateStorageError はドメインで解釈できないエラーを storage のエラー種別に分類します。
func translateStorageError(err error) error {
	if err == nil {
		return nil
	}
	if isUnavailable(err) {
		return fmt.Errorf("%w: %w", storage.ErrUnavailable, err)
	}
	return fmt.Errorf("%w: %w", storage.ErrStorage, err)
}

// isUnavailable は接続不能やタイムアウトなど再試行で回復しうるエラーかどうかを判定します。
func isUnavailable(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) || pgconn.Timeout(err) {
		return true
	}

	var connectErr *pgconn.ConnectError
	if errors.As(err, &connectErr) {
		return true
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch {
		case strings.HasPrefix(pgErr.Code, "08"):
			return true
		case pgErr.Code == tooManyConnectionsCode, pgErr.Code == adminShutdownCode, pgErr.Code == cannotConnectNowCode:
			return true
		}
		return false
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}

	// pgxpool はクローズ後の取得で文字列エラーを返します。
	return strings.Contains(err.Error(), "closed pool")
}

func pgErrorCode(err error) string {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code
	}
	return ""
}
