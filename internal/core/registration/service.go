package registration

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/dradenvandewind/registration-api/internal/core/activation"
	"github.com/dradenvandewind/registration-api/internal/core/user"
)

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

// UserService は登録フローが必要とするユーザー操作です。
type UserService interface {
	NewUser(in user.CreateUserInput) (*user.User, error)
	Save(ctx context.Context, u *user.User) (*user.User, error)
	Authenticate(ctx context.Context, email, password string) (*user.User, error)
}

// CodeIssuer はアクティベーションコードを発行します。
type CodeIssuer interface {
	IssueActivation(ctx context.Context, userID string) (*activation.Code, error)
}

// Service はユーザー作成、コード発行、配送をまとめるオーケストレーターです。
type Service struct {
	users    UserService
	codes    CodeIssuer
	notifier Notifier
	tx       TransactionManager
	observer Observer
	logger   *zap.Logger
}

// UseCase は登録ユースケースの公開インターフェースです。
type UseCase interface {
	Register(ctx context.Context, in RegisterInput) (*Result, error)
	ResendActivation(ctx context.Context, in ResendInput) (*Result, error)
}

// NewService は Service を生成します。
func NewService(users UserService, codes CodeIssuer, notifier Notifier, tx TransactionManager, observer Observer, logger *zap.Logger) *Service {
	if tx == nil {
		tx = noopTransactionManager{}
	}
	if observer == nil {
		observer = noopObserver{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		users:    users,
		codes:    codes,
		notifier: notifier,
		tx:       tx,
		observer: observer,
		logger:   logger,
	}
}

// RegisterInput は登録時の入力です。
type RegisterInput struct {
	Email    string
	Password string
}

// ResendInput はコード再送時の入力です。
type ResendInput struct {
	Email    string
	Password string
}

// Result は登録またはコード再送の結果です。
// Delivered が false の場合、コードは発行済みですが配送されていません。
type Result struct {
	User          *user.User
	CodeExpiresAt time.Time
	Delivered     bool
}

// Register は未有効化ユーザーを作成し、コードを発行して配送します。
// ユーザー作成とコード発行は同一トランザクションで行い、配送はコミット後に一度だけ試みます。
func (s *Service) Register(ctx context.Context, in RegisterInput) (*Result, error) {
	pending, err := s.users.NewUser(user.CreateUserInput{Email: in.Email, Password: in.Password})
	if err != nil {
		return nil, err
	}

	var (
		created *user.User
		code    *activation.Code
	)
	if err := s.tx.WithinReadWrite(ctx, func(txCtx context.Context) error {
		u, err := s.users.Save(txCtx, pending)
		if err != nil {
			return err
		}
		c, err := s.codes.IssueActivation(txCtx, u.ID)
		if err != nil {
			return err
		}
		created, code = u, c
		return nil
	}); err != nil {
		return nil, err
	}

	s.observer.Registered()
	s.observer.CodeIssued()
	s.logger.Info("user registered", zap.String("user_id", created.ID))

	return &Result{
		User:          created,
		CodeExpiresAt: code.ExpiresAt,
		Delivered:     s.deliver(ctx, created, code),
	}, nil
}

// ResendActivation は認証済みの未有効化ユーザーに新しいコードを発行して配送します。
// 以前のコードは無効化されません。
func (s *Service) ResendActivation(ctx context.Context, in ResendInput) (*Result, error) {
	account, err := s.users.Authenticate(ctx, in.Email, in.Password)
	if err != nil {
		return nil, err
	}
	if account.IsActive {
		return nil, user.ErrAlreadyActive
	}

	code, err := s.codes.IssueActivation(ctx, account.ID)
	if err != nil {
		return nil, err
	}
	s.observer.CodeIssued()

	return &Result{
		User:          account,
		CodeExpiresAt: code.ExpiresAt,
		Delivered:     s.deliver(ctx, account, code),
	}, nil
}

// deliver は配送を一度だけ試みます。失敗は記録のみ行い、発行済みのコードには影響しません。
func (s *Service) deliver(ctx context.Context, u *user.User, code *activation.Code) bool {
	if s.notifier == nil {
		s.logger.Warn("no notifier configured", zap.String("user_id", u.ID))
		s.observer.Delivered(false)
		return false
	}

	err := s.notifier.Send(ctx, Notification{
		Address:   u.Email,
		Code:      code.Code,
		ExpiresAt: code.ExpiresAt,
	})
	if err != nil {
		s.logger.Warn("activation code delivery failed",
			zap.String("user_id", u.ID),
			zap.Time("expires_at", code.ExpiresAt),
			zap.Error(err),
		)
		s.observer.Delivered(false)
		return false
	}

	s.observer.Delivered(true)
	return true
}
