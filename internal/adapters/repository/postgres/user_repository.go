package postgres

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/dradenvandewind/registration-api/internal/core/user"
	pgdb "github.com/dradenvandewind/registration-api/internal/platform/db/postgres"
)

const (
	insertUserSQL = `
        INSERT INTO users (id, email, password_digest, is_active, created_at, updated_at)
        VALUES ($1, $2, $3, $4, $5, $6)
        RETURNING id, email, password_digest, is_active, created_at, updated_at
    `
	selectUserByEmailSQL = `
        SELECT id, email, password_digest, is_active, created_at, updated_at
          FROM users
         WHERE email = $1
         LIMIT 1
    `
	activateUserSQL = `
        UPDATE users
           SET is_active = TRUE,
               updated_at = $2
         WHERE id = $1
           AND is_active = FALSE
    `
	userExistsSQL = `SELECT EXISTS (SELECT 1 FROM users WHERE id = $1)`
)

// UserRepository は PostgreSQL を利用したユーザー永続化の実装です。
type UserRepository struct {
	pool pgdb.Queryer
}

// NewUserRepository は UserRepository を生成します。
func NewUserRepository(pool pgdb.Queryer) *UserRepository {
	return &UserRepository{pool: pool}
}

// Create はユーザーを新規作成します。
func (r *UserRepository) Create(ctx context.Context, u *user.User) (*user.User, error) {
	id := u.ID
	if id == "" {
		id = uuid.NewString()
	}

	exec := pgdb.QueryerFromContext(ctx, r.pool)
	row := exec.QueryRow(ctx, insertUserSQL,
		id, u.Email, u.PasswordDigest, u.IsActive, u.CreatedAt, u.UpdatedAt)

	created, err := scanUser(row)
	if err != nil {
		return nil, translateUserPgError(err)
	}
	return created, nil
}

// FindByEmail はメールアドレスでユーザーを取得します。
func (r *UserRepository) FindByEmail(ctx context.Context, email string) (*user.User, error) {
	exec := pgdb.QueryerFromContext(ctx, r.pool)
	found, err := scanUser(exec.QueryRow(ctx, selectUserByEmailSQL, email))
	if err != nil {
		return nil, translateUserPgError(err)
	}
	return found, nil
}

// Activate はユーザーを有効化します。既に有効な場合は何もしません。
func (r *UserRepository) Activate(ctx context.Context, id string, at time.Time) error {
	exec := pgdb.QueryerFromContext(ctx, r.pool)
	tag, err := exec.Exec(ctx, activateUserSQL, id, at)
	if err != nil {
		return translateUserPgError(err)
	}
	if tag.RowsAffected() > 0 {
		return nil
	}

	var exists bool
	if err := exec.QueryRow(ctx, userExistsSQL, id).Scan(&exists); err != nil {
		return translateUserPgError(err)
	}
	if !exists {
		return user.ErrUserNotFound
	}
	return nil
}

func scanUser(row pgx.Row) (*user.User, error) {
	var (
		id                   string
		email                string
		digest               string
		isActive             bool
		createdAt, updatedAt time.Time
	)

	if err := row.Scan(&id, &email, &digest, &isActive, &createdAt, &updatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, user.ErrUserNotFound
		}
		return nil, err
	}

	return &user.User{
		ID:             id,
		Email:          email,
		PasswordDigest: digest,
		IsActive:       isActive,
		CreatedAt:      createdAt,
		UpdatedAt:      updatedAt,
	}, nil
}

func translateUserPgError(err error) error {
	if errors.Is(err, user.ErrUserNotFound) {
		return err
	}
	switch pgErrorCode(err) {
	case uniqueViolationCode:
		return user.ErrEmailAlreadyExists
	case invalidTextRepresentCode:
		// UUID として解釈できない ID は存在しないユーザーとして扱います。
		return user.ErrUserNotFound
	}
	return translateStorageError(err)
}
