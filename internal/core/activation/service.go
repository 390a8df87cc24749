package activation

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/dradenvandewind/registration-api/internal/core/user"
)

// maxIssueAttempts は (user_id, code) 重複時にコードを引き直す上限回数です。
const maxIssueAttempts = 5

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

// Authenticator はメールアドレスとパスワードからユーザーを解決します。
type Authenticator interface {
	Authenticate(ctx context.Context, email, password string) (*user.User, error)
}

// UserActivator はユーザーを有効化します。
type UserActivator interface {
	Activate(ctx context.Context, id string, at time.Time) error
}

// Service はコードの発行と引き換えをまとめる状態機械です。自身は状態を持ちません。
type Service struct {
	repo  Repository
	auth  Authenticator
	users UserActivator
	codes CodeGenerator
	clock Clock
	tx    TransactionManager
}

// UseCase はアクティベーションユースケースの公開インターフェースです。
type UseCase interface {
	IssueActivation(ctx context.Context, userID string) (*Code, error)
	ActivateAccount(ctx context.Context, in ActivateAccountInput) (*user.User, error)
	Status(ctx context.Context, in StatusInput) (*Status, error)
}

// NewService は Service を生成します。codes が nil の場合は crypto/rand を使います。
func NewService(repo Repository, auth Authenticator, users UserActivator, codes CodeGenerator, clock Clock, tx TransactionManager) *Service {
	if codes == nil {
		codes = NewRandomCodeGenerator()
	}
	if clock == nil {
		clock = realClock{}
	}
	if tx == nil {
		tx = noopTransactionManager{}
	}
	return &Service{repo: repo, auth: auth, users: users, codes: codes, clock: clock, tx: tx}
}

// ActivateAccountInput はアカウント有効化時の入力です。
type ActivateAccountInput struct {
	Email    string
	Password string
	Code     string
}

// StatusInput は有効化状況の照会時の入力です。
type StatusInput struct {
	Email    string
	Password string
}

// Status は認証済みユーザーの有効化状況です。
// LatestCode はコードが未発行の場合 nil で、State は StateNone になります。
type Status struct {
	User       *user.User
	LatestCode *Code
	State      State
}

// IssueActivation は新しいコードを発行し保存します。
// 以前に発行したコードは無効化せず、それぞれの有効期限まで引き換え可能です。
func (s *Service) IssueActivation(ctx context.Context, userID string) (*Code, error) {
	if strings.TrimSpace(userID) == "" {
		return nil, ErrInvalidUserID
	}

	var issued *Code
	if err := s.tx.WithinReadWrite(ctx, func(txCtx context.Context) error {
		now := s.clock.Now()
		for attempt := 0; attempt <= maxIssueAttempts; attempt++ {
			digits, err := s.codes.Generate()
			if err != nil {
				return fmt.Errorf("activation: generate code: %w", err)
			}

			code, err := s.repo.Issue(txCtx, IssueParams{
				UserID:   userID,
				Code:     digits,
				IssuedAt: now,
				TTL:      CodeTTL,
			})
			if errors.Is(err, ErrDuplicateCode) {
				continue
			}
			if err != nil {
				return err
			}

			issued = code
			return nil
		}
		return ErrIssuanceExhausted
	}); err != nil {
		return nil, err
	}

	return issued, nil
}

// ActivateAccount は認証後にコードを引き換え、ユーザーを有効化します。
// 認証に失敗した場合はコードの状態に一切触れません。引き換えの自動再試行は行いません。
// 有効化済みユーザーが未使用のコードを提示した場合は ErrAlreadyActive を返し、引き換えはロールバックされます。
func (s *Service) ActivateAccount(ctx context.Context, in ActivateAccountInput) (*user.User, error) {
	account, err := s.auth.Authenticate(ctx, in.Email, in.Password)
	if err != nil {
		return nil, err
	}
	if !ValidCodeFormat(in.Code) {
		return nil, ErrInvalidCode
	}

	now := s.clock.Now()
	var outcome RedeemOutcome
	if err := s.tx.WithinReadWrite(ctx, func(txCtx context.Context) error {
		result, err := s.repo.Redeem(txCtx, account.ID, in.Code, now)
		if err != nil {
			return err
		}
		outcome = result
		if outcome != OutcomeRedeemed {
			return nil
		}
		if account.IsActive {
			return user.ErrAlreadyActive
		}
		// 有効化に失敗した場合は引き換えもロールバックされます。
		return s.users.Activate(txCtx, account.ID, now)
	}); err != nil {
		return nil, err
	}

	switch outcome {
	case OutcomeRedeemed:
		account.IsActive = true
		account.UpdatedAt = now
		return account, nil
	case OutcomeAlreadyUsed:
		return nil, ErrCodeAlreadyUsed
	case OutcomeExpired:
		return nil, ErrCodeExpired
	case OutcomeNotFound:
		return nil, ErrInvalidCode
	default:
		return nil, fmt.Errorf("activation: unexpected redeem outcome %q", outcome)
	}
}

// Status は認証後、最後に発行されたコードとその状態を返します。コードの値自体は変更しません。
func (s *Service) Status(ctx context.Context, in StatusInput) (*Status, error) {
	account, err := s.auth.Authenticate(ctx, in.Email, in.Password)
	if err != nil {
		return nil, err
	}

	var latest *Code
	if err := s.tx.WithinReadOnly(ctx, func(txCtx context.Context) error {
		code, err := s.repo.LatestForUser(txCtx, account.ID)
		if errors.Is(err, ErrCodeNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		latest = code
		return nil
	}); err != nil {
		return nil, err
	}

	status := &Status{User: account, State: StateNone}
	if latest != nil {
		status.LatestCode = latest
		status.State = latest.State(s.clock.Now())
	}
	return status, nil
}
