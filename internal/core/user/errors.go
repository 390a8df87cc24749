package user

import "errors"

var (
	// ErrUserNotFound はユーザーが存在しない場合に返却されます。
	ErrUserNotFound = errors.New("user not found")
	// ErrEmailAlreadyExists はメールアドレス重複時に返却されます。
	ErrEmailAlreadyExists = errors.New("email already exists")
	// ErrInvalidEmail はメールアドレスが不正な場合に返却されます。
	ErrInvalidEmail = errors.New("invalid email")
	// ErrInvalidPassword はパスワードが不正な場合に返却されます。
	ErrInvalidPassword = errors.New("invalid password")
	// ErrUnauthorized はメールアドレスまたはパスワードが一致しない場合に返却されます。
	// どちらが誤っているかは区別しません。
	ErrUnauthorized = errors.New("unauthorized")
	// ErrAlreadyActive は有効化済みユーザーに対する有効化やコード再送で返却されます。
	ErrAlreadyActive = errors.New("user already active")
)
