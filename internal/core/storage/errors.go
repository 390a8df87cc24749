package storage

import "errors"

var (
	// ErrUnavailable は接続プールの枯渇や接続障害でストレージに到達できない場合に返却されます。
	// 呼び出し側はバックオフ付きで再試行してください。
	ErrUnavailable = errors.New("storage unavailable")
	// ErrStorage はそれ以外のストレージ障害を表します。
	ErrStorage = errors.New("storage error")
)
