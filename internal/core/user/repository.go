package user

import (
	"context"
	"time"
)

// Repository はユーザーエンティティの永続化を行うインターフェースです。
type Repository interface {
	Create(ctx context.Context, user *User) (*User, error)
	FindByEmail(ctx context.Context, email string) (*User, error)
	// Activate は is_active を true にします。既に有効なユーザーに対しては何もしません。
	Activate(ctx context.Context, id string, at time.Time) error
}

// PasswordHasher はパスワードの一方向ハッシュと照合を提供します。
type PasswordHasher interface {
	Hash(password string) (string, error)
	Verify(password, digest string) bool
}
