package user

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"strings"
	"sync"
	"time"
)

// maxPasswordBytes は bcrypt が扱える入力長の上限です。
const maxPasswordBytes = 72

// dummyPassword は存在しないユーザーの認証時に照合するダミー値の元です。
const dummyPassword = "registration-api:unknown-user"

// Clock は現在時刻を提供します。
type Clock interface {
	Now() time.Time
}

type realClock struct{}

func (realClock) Now() time.Time {
	return time.Now().UTC()
}

// TransactionManager はトランザクション制御の抽象化です。
type TransactionManager interface {
	WithinReadOnly(ctx context.Context, fn func(context.Context) error) error
	WithinReadWrite(ctx context.Context, fn func(context.Context) error) error
}

type noopTransactionManager struct{}

func (noopTransactionManager) WithinReadOnly(ctx context.Context, fn func(context.Context) error) error {
	if fn == nil {
		return nil
	}
	return fn(ctx)
}

func (noopTransactionManager) WithinReadWrite(ctx context.Context, fn func(context.Context) error) error {
	if fn == nil {
		return nil
	}
	return fn(ctx)
}

// Service はユーザーに関するユースケースをまとめます。
type Service struct {
	repo   Repository
	hasher PasswordHasher
	clock  Clock
	tx     TransactionManager

	dummyOnce   sync.Once
	dummyDigest string
}

// UseCase はユーザーユースケースの公開インターフェースです。
type UseCase interface {
	NewUser(in CreateUserInput) (*User, error)
	Save(ctx context.Context, u *User) (*User, error)
	Authenticate(ctx context.Context, email, password string) (*User, error)
}

// NewService は Service を生成します。
func NewService(repo Repository, hasher PasswordHasher, clock Clock, tx TransactionManager) *Service {
	if clock == nil {
		clock = realClock{}
	}
	if tx == nil {
		tx = noopTransactionManager{}
	}
	return &Service{repo: repo, hasher: hasher, clock: clock, tx: tx}
}

// CreateUserInput はユーザー作成時の入力です。
type CreateUserInput struct {
	Email    string
	Password string
}

// NewUser は入力を検証し、パスワードをハッシュ化した未保存のユーザーを返します。
// ハッシュ化は低速なため、トランザクションの外で呼び出してください。
func (s *Service) NewUser(in CreateUserInput) (*User, error) {
	email, err := NormalizeEmail(in.Email)
	if err != nil {
		return nil, err
	}

	if err := validatePassword(in.Password); err != nil {
		return nil, err
	}

	digest, err := s.hasher.Hash(in.Password)
	if err != nil {
		return nil, fmt.Errorf("user: hash password: %w", err)
	}

	now := s.clock.Now()
	return &User{
		Email:          email,
		PasswordDigest: digest,
		IsActive:       false,
		CreatedAt:      now,
		UpdatedAt:      now,
	}, nil
}

// Save は NewUser で生成したユーザーを永続化します。
// メールアドレスの重複は一意制約で検出され ErrEmailAlreadyExists になります。
func (s *Service) Save(ctx context.Context, u *User) (*User, error) {
	if u == nil {
		return nil, fmt.Errorf("user: nil user")
	}

	var created *User
	if err := s.tx.WithinReadWrite(ctx, func(txCtx context.Context) error {
		result, err := s.repo.Create(txCtx, u)
		if err != nil {
			return err
		}
		created = result
		return nil
	}); err != nil {
		return nil, err
	}

	return created, nil
}

// Authenticate はメールアドレスとパスワードでユーザーを認証します。
// ユーザーが存在しない場合もダミーのダイジェストと照合し、パスワード不一致と同じ ErrUnauthorized を返します。
func (s *Service) Authenticate(ctx context.Context, email, password string) (*User, error) {
	normalized, err := NormalizeEmail(email)
	if err != nil {
		return nil, ErrUnauthorized
	}
	if password == "" {
		return nil, ErrUnauthorized
	}

	var found *User
	if err := s.tx.WithinReadOnly(ctx, func(txCtx context.Context) error {
		result, err := s.repo.FindByEmail(txCtx, normalized)
		if err != nil {
			return err
		}
		found = result
		return nil
	}); err != nil {
		if errors.Is(err, ErrUserNotFound) {
			s.hasher.Verify(password, s.unknownUserDigest())
			return nil, ErrUnauthorized
		}
		return nil, err
	}

	if !s.hasher.Verify(password, found.PasswordDigest) {
		return nil, ErrUnauthorized
	}

	return found, nil
}

// unknownUserDigest は登録済みユーザーと同じコストで計算したダミーのダイジェストを返します。
func (s *Service) unknownUserDigest() string {
	s.dummyOnce.Do(func() {
		digest, err := s.hasher.Hash(dummyPassword)
		if err == nil {
			s.dummyDigest = digest
		}
	})
	return s.dummyDigest
}

// NormalizeEmail はメールアドレスを検証し小文字に正規化します。
func NormalizeEmail(raw string) (string, error) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return "", ErrInvalidEmail
	}

	addr, err := mail.ParseAddress(trimmed)
	if err != nil {
		return "", ErrInvalidEmail
	}

	// "Name <a@x.com>" 形式は受け付けません。
	if addr.Name != "" || addr.Address != trimmed {
		return "", ErrInvalidEmail
	}

	return strings.ToLower(addr.Address), nil
}

func validatePassword(password string) error {
	if strings.TrimSpace(password) == "" {
		return ErrInvalidPassword
	}
	if len(password) > maxPasswordBytes {
		return fmt.Errorf("password exceeds %d bytes: %w", maxPasswordBytes, ErrInvalidPassword)
	}
	return nil
}
