package registration

import "errors"

var (
	// ErrDeliveryFailed は通知の配送に失敗した場合に返却されます。呼び出し側は再送を選択できます。
	ErrDeliveryFailed = errors.New("activation code delivery failed")
)
