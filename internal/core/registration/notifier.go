package registration

import (
	"context"
	"time"
)

// Notification はアクティベーションコードの配送内容です。
type Notification struct {
	Address   string
	Code      string
	ExpiresAt time.Time
}

// Notifier はアクティベーションコードを配送します。
// 失敗時は ErrDeliveryFailed をラップしたエラーを返します。
type Notifier interface {
	Send(ctx context.Context, n Notification) error
}

// Observer は登録フローの結果を受け取ります。メトリクス収集に使われます。
type Observer interface {
	Registered()
	CodeIssued()
	Delivered(ok bool)
}

type noopObserver struct{}

func (noopObserver) Registered() {}
func (noopObserver) CodeIssued() {}
func (noopObserver) Delivered(bool) {}
