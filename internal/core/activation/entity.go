package activation

import "time"

// State はアクティベーションコードの状態を表します。
type State string

const (
	// StatePending は発行済みで未使用かつ有効期限内の状態です。
	StatePending State = "pending"
	// StateExpired は未使用のまま有効期限を過ぎた終端状態です。
	StateExpired State = "expired"
	// StateConsumed は引き換え済みの終端状態です。
	StateConsumed State = "consumed"
	// StateNone はコードが一度も発行されていないことを表します。
	StateNone State = "none"
)

// Code はユーザーに発行されたアクティベーションコードです。
type Code struct {
	ID        string
	UserID    string
	Code      string
	ExpiresAt time.Time
	UsedAt    *time.Time
	CreatedAt time.Time
}

// Redeemable は now 時点で引き換え可能かどうかを返します。
func (c *Code) Redeemable(now time.Time) bool {
	return c.UsedAt == nil && c.ExpiresAt.After(now)
}

// State は now 時点の状態を返します。
func (c *Code) State(now time.Time) State {
	switch {
	case c.UsedAt != nil:
		return StateConsumed
	case c.Redeemable(now):
		return StatePending
	default:
		return StateExpired
	}
}

// RedeemOutcome はリポジトリでの引き換え結果です。
type RedeemOutcome string

const (
	OutcomeRedeemed    RedeemOutcome = "redeemed"
	OutcomeExpired     RedeemOutcome = "expired"
	OutcomeAlreadyUsed RedeemOutcome = "already_used"
	OutcomeNotFound    RedeemOutcome = "not_found"
)
