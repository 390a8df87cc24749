package user

import "time"

// User はユーザーエンティティです。
type User struct {
	ID             string
	Email          string
	PasswordDigest string
	IsActive       bool
	CreatedAt      time.Time
	UpdatedAt      time.Time
}
