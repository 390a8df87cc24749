package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/dradenvandewind/registration-api/internal/core/activation"
	"github.com/dradenvandewind/registration-api/internal/core/storage"
	"github.com/dradenvandewind/registration-api/internal/core/user"
	pgdb "github.com/dradenvandewind/registration-api/internal/platform/db/postgres"
)

const (
	insertCodeSQL = `
        INSERT INTO activation_codes (id, user_id, code, expires_at, created_at)
        VALUES ($1, $2, $3, $4, $5)
        ON CONFLICT (user_id, code) DO NOTHING
        RETURNING id, user_id, code, expires_at, used_at, created_at
    `
	redeemCodeSQL = `
        UPDATE activation_codes
           SET used_at = $3
         WHERE user_id = $1
           AND code = $2
           AND used_at IS NULL
           AND expires_at > $3
        RETURNING id
    `
	classifyCodeSQL = `
        SELECT used_at, expires_at
          FROM activation_codes
         WHERE user_id = $1
           AND code = $2
         LIMIT 1
    `
	latestCodeSQL = `
        SELECT id, user_id, code, expires_at, used_at, created_at
          FROM activation_codes
         WHERE user_id = $1
         ORDER BY created_at DESC, id DESC
         LIMIT 1
    `
)

// ActivationCodeRepository は PostgreSQL を利用したアクティベーションコード永続化の実装です。
type ActivationCodeRepository struct {
	pool pgdb.Queryer
}

// NewActivationCodeRepository は ActivationCodeRepository を生成します。
func NewActivationCodeRepository(pool pgdb.Queryer) *ActivationCodeRepository {
	return &ActivationCodeRepository{pool: pool}
}

// Issue はコードを保存します。
// 一意制約の衝突はトランザクションを中断させないよう ON CONFLICT で検出します。
func (r *ActivationCodeRepository) Issue(ctx context.Context, p activation.IssueParams) (*activation.Code, error) {
	exec := pgdb.QueryerFromContext(ctx, r.pool)
	row := exec.QueryRow(ctx, insertCodeSQL,
		uuid.NewString(), p.UserID, p.Code, p.IssuedAt.Add(p.TTL), p.IssuedAt)

	code, err := scanCode(row)
	if err != nil {
		if errors.Is(err, activation.ErrCodeNotFound) {
			return nil, activation.ErrDuplicateCode
		}
		return nil, translateCodePgError(err)
	}
	return code, nil
}

// Redeem は条件付き UPDATE でコードを一度だけ使用済みにします。
// 更新できなかった場合のみ、同じ行を読み直して理由を分類します。
func (r *ActivationCodeRepository) Redeem(ctx context.Context, userID, code string, now time.Time) (activation.RedeemOutcome, error) {
	exec := pgdb.QueryerFromContext(ctx, r.pool)

	var id string
	err := exec.QueryRow(ctx, redeemCodeSQL, userID, code, now).Scan(&id)
	if err == nil {
		return activation.OutcomeRedeemed, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return redeemFailure(err)
	}

	var (
		usedAt    sql.NullTime
		expiresAt time.Time
	)
	if err := exec.QueryRow(ctx, classifyCodeSQL, userID, code).Scan(&usedAt, &expiresAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return activation.OutcomeNotFound, nil
		}
		return redeemFailure(err)
	}

	switch {
	case usedAt.Valid:
		return activation.OutcomeAlreadyUsed, nil
	case !expiresAt.After(now):
		return activation.OutcomeExpired, nil
	default:
		return "", fmt.Errorf("%w: activation code %s left unchanged by conditional update", storage.ErrStorage, code)
	}
}

func redeemFailure(err error) (activation.RedeemOutcome, error) {
	translated := translateCodePgError(err)
	if errors.Is(translated, activation.ErrCodeNotFound) {
		return activation.OutcomeNotFound, nil
	}
	return "", translated
}

// LatestForUser はユーザーに最後に発行されたコードを返します。
func (r *ActivationCodeRepository) LatestForUser(ctx context.Context, userID string) (*activation.Code, error) {
	exec := pgdb.QueryerFromContext(ctx, r.pool)
	code, err := scanCode(exec.QueryRow(ctx, latestCodeSQL, userID))
	if err != nil {
		return nil, translateCodePgError(err)
	}
	return code, nil
}

func scanCode(row pgx.Row) (*activation.Code, error) {
	var (
		id, userID, code     string
		expiresAt, createdAt time.Time
		usedAt               sql.NullTime
	)

	if err := row.Scan(&id, &userID, &code, &expiresAt, &usedAt, &createdAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, activation.ErrCodeNotFound
		}
		return nil, err
	}

	c := &activation.Code{
		ID:        id,
		UserID:    userID,
		Code:      code,
		ExpiresAt: expiresAt,
		CreatedAt: createdAt,
	}
	if usedAt.Valid {
		t := usedAt.Time
		c.UsedAt = &t
	}
	return c, nil
}

func translateCodePgError(err error) error {
	if errors.Is(err, activation.ErrCodeNotFound) {
		return err
	}
	switch pgErrorCode(err) {
	case foreignKeyViolationCode:
		return fmt.Errorf("activation code owner: %w", user.ErrUserNotFound)
	case invalidTextRepresentCode:
		return activation.ErrCodeNotFound
	}
	return translateStorageError(err)
}
