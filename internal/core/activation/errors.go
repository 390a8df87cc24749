package activation

import "errors"

var (
	// ErrCodeNotFound はコードが存在しない場合にリポジトリから返却されます。
	ErrCodeNotFound = errors.New("activation code not found")
	// ErrDuplicateCode は同一ユーザーに同じコードが既に存在する場合に返却されます。
	ErrDuplicateCode = errors.New("duplicate activation code")
	// ErrIssuanceExhausted は再試行上限までコードの重複が続いた場合に返却されます。
	ErrIssuanceExhausted = errors.New("activation code issuance exhausted")
	// ErrInvalidCode はコードが一致しない場合に返却されます。コードの存在有無は明かしません。
	ErrInvalidCode = errors.New("invalid activation code")
	// ErrCodeExpired はコードの有効期限切れ時に返却されます。
	ErrCodeExpired = errors.New("activation code expired")
	// ErrCodeAlreadyUsed はコードが既に使用済みの場合に返却されます。
	ErrCodeAlreadyUsed = errors.New("activation code already used")
	// ErrInvalidUserID はユーザーIDが不正な場合に返却されます。
	ErrInvalidUserID = errors.New("invalid user id")
)
