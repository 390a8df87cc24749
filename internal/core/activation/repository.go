package activation

import (
	"context"
	"time"
)

// IssueParams はコード発行時の永続化パラメータです。
type IssueParams struct {
	UserID   string
	Code     string
	IssuedAt time.Time
	TTL      time.Duration
}

// Repository はアクティベーションコードの永続化を行うインターフェースです。
type Repository interface {
	// Issue はコードを保存します。(user_id, code) が重複した場合は ErrDuplicateCode を返します。
	Issue(ctx context.Context, params IssueParams) (*Code, error)
	// Redeem は (userID, code) を now 時点で一度だけ使用済みにします。
	// 判定と更新は単一の条件付き UPDATE で行われなければなりません。
	Redeem(ctx context.Context, userID, code string, now time.Time) (RedeemOutcome, error)
	// LatestForUser はユーザーに最後に発行されたコードを返します。
	LatestForUser(ctx context.Context, userID string) (*Code, error)
}
