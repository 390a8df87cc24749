package postgres

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	pgxmock "github.com/pashagolub/pgxmock/v4"

	"github.com/dradenvandewind/registration-api/internal/core/activation"
	"github.com/dradenvandewind/registration-api/internal/core/storage"
	"github.com/dradenvandewind/registration-api/internal/core/user"
)

var codeColumns = []string{"id", "user_id", "code", "expires_at", "used_at", "created_at"}

func newCodeRepo(t *testing.T) (*ActivationCodeRepository, pgxmock.PgxPoolIface) {
	t.Helper()

	mock, err := pgxmock.NewPool()
	if err != nil {
		t.Fatalf("failed to create mock pool: %v", err)
	}
	t.Cleanup(mock.Close)

	return NewActivationCodeRepository(mock), mock
}

func TestActivationCodeRepository_Issue(t *testing.T) {
	t.Parallel()

	repo, mock := newCodeRepo(t)
	issued := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	expires := issued.Add(time.Minute)

	mock.ExpectQuery(regexp.QuoteMeta(insertCodeSQL)).
		WithArgs(pgxmock.AnyArg(), "user-1", "4821", expires, issued).
		WillReturnRows(pgxmock.NewRows(codeColumns).AddRow("code-1", "user-1", "4821", expires, nil, issued))

	code, err := repo.Issue(context.Background(), activation.IssueParams{
		UserID:   "user-1",
		Code:     "4821",
		IssuedAt: issued,
		TTL:      time.Minute,
	})
	if err != nil {
		t.Fatalf("Issue returned error: %v", err)
	}
	if code.UsedAt != nil || !code.ExpiresAt.Equal(expires) {
		t.Fatalf("unexpected code %+v", code)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestActivationCodeRepository_Issue_Conflict(t *testing.T) {
	t.Parallel()

	repo, mock := newCodeRepo(t)
	issued := time.Now().UTC()

	mock.ExpectQuery(regexp.QuoteMeta(insertCodeSQL)).
		WithArgs(pgxmock.AnyArg(), "user-1", "4821", issued.Add(time.Minute), issued).
		WillReturnRows(pgxmock.NewRows(codeColumns))

	_, err := repo.Issue(context.Background(), activation.IssueParams{UserID: "user-1", Code: "4821", IssuedAt: issued, TTL: time.Minute})
	if !errors.Is(err, activation.ErrDuplicateCode) {
		t.Fatalf("expected ErrDuplicateCode, got %v", err)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestActivationCodeRepository_Issue_UnknownUser(t *testing.T) {
	t.Parallel()

	repo, mock := newCodeRepo(t)
	issued := time.Now().UTC()

	mock.ExpectQuery(regexp.QuoteMeta(insertCodeSQL)).
		WithArgs(pgxmock.AnyArg(), "user-x", "4821", issued.Add(time.Minute), issued).
		WillReturnError(&pgconn.PgError{Code: foreignKeyViolationCode})

	_, err := repo.Issue(context.Background(), activation.IssueParams{UserID: "user-x", Code: "4821", IssuedAt: issued, TTL: time.Minute})
	if !errors.Is(err, user.ErrUserNotFound) {
		t.Fatalf("expected ErrUserNotFound, got %v", err)
	}
}

func TestActivationCodeRepository_Redeem(t *testing.T) {
	t.Parallel()

	issued := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	expires := issued.Add(time.Minute)
	usedAt := issued.Add(10 * time.Second)

	cases := []struct {
		name    string
		now     time.Time
		setup   func(mock pgxmock.PgxPoolIface, now time.Time)
		want    activation.RedeemOutcome
		wantErr error
	}{
		{
			name: "redeemed",
			now:  issued.Add(30 * time.Second),
			setup: func(mock pgxmock.PgxPoolIface, now time.Time) {
				mock.ExpectQuery(regexp.QuoteMeta(redeemCodeSQL)).
					WithArgs("user-1", "4821", now).
					WillReturnRows(pgxmock.NewRows([]string{"id"}).AddRow("code-1"))
			},
			want: activation.OutcomeRedeemed,
		},
		{
			name: "already used",
			now:  issued.Add(30 * time.Second),
			setup: func(mock pgxmock.PgxPoolIface, now time.Time) {
				mock.ExpectQuery(regexp.QuoteMeta(redeemCodeSQL)).
					WithArgs("user-1", "4821", now).
					WillReturnRows(pgxmock.NewRows([]string{"id"}))
				mock.ExpectQuery(regexp.QuoteMeta(classifyCodeSQL)).
					WithArgs("user-1", "4821").
					WillReturnRows(pgxmock.NewRows([]string{"used_at", "expires_at"}).AddRow(usedAt, expires))
			},
			want: activation.OutcomeAlreadyUsed,
		},
		{
			name: "expired",
			now:  issued.Add(61 * time.Second),
			setup: func(mock pgxmock.PgxPoolIface, now time.Time) {
				mock.ExpectQuery(regexp.QuoteMeta(redeemCodeSQL)).
					WithArgs("user-1", "4821", now).
					WillReturnRows(pgxmock.NewRows([]string{"id"}))
				mock.ExpectQuery(regexp.QuoteMeta(classifyCodeSQL)).
					WithArgs("user-1", "4821").
					WillReturnRows(pgxmock.NewRows([]string{"used_at", "expires_at"}).AddRow(nil, expires))
			},
			want: activation.OutcomeExpired,
		},
		{
			name: "not found",
			now:  issued.Add(30 * time.Second),
			setup: func(mock pgxmock.PgxPoolIface, now time.Time) {
				mock.ExpectQuery(regexp.QuoteMeta(redeemCodeSQL)).
					WithArgs("user-1", "4821", now).
					WillReturnRows(pgxmock.NewRows([]string{"id"}))
				mock.ExpectQuery(regexp.QuoteMeta(classifyCodeSQL)).
					WithArgs("user-1", "4821").
					WillReturnRows(pgxmock.NewRows([]string{"used_at", "expires_at"}))
			},
			want: activation.OutcomeNotFound,
		},
		{
			name: "timeout",
			now:  issued.Add(30 * time.Second),
			setup: func(mock pgxmock.PgxPoolIface, now time.Time) {
				mock.ExpectQuery(regexp.QuoteMeta(redeemCodeSQL)).
					WithArgs("user-1", "4821", now).
					WillReturnError(context.DeadlineExceeded)
			},
			wantErr: storage.ErrUnavailable,
		},
	}

	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			repo, mock := newCodeRepo(t)
			tc.setup(mock, tc.now)

			got, err := repo.Redeem(context.Background(), "user-1", "4821", tc.now)
			if tc.wantErr != nil {
				if !errors.Is(err, tc.wantErr) {
					t.Fatalf("expected %v, got %v", tc.wantErr, err)
				}
			} else {
				if err != nil {
					t.Fatalf("Redeem returned error: %v", err)
				}
				if got != tc.want {
					t.Fatalf("expected outcome %s, got %s", tc.want, got)
				}
			}

			if err := mock.ExpectationsWereMet(); err != nil {
				t.Fatalf("unmet expectations: %v", err)
			}
		})
	}
}

func TestActivationCodeRepository_LatestForUser(t *testing.T) {
	t.Parallel()

	repo, mock := newCodeRepo(t)
	issued := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	usedAt := issued.Add(5 * time.Second)

	mock.ExpectQuery(regexp.QuoteMeta(latestCodeSQL)).
		WithArgs("user-1").
		WillReturnRows(pgxmock.NewRows(codeColumns).AddRow("code-2", "user-1", "5678", issued.Add(time.Minute), usedAt, issued))

	code, err := repo.LatestForUser(context.Background(), "user-1")
	if err != nil {
		t.Fatalf("LatestForUser returned error: %v", err)
	}
	if code.UsedAt == nil || !code.UsedAt.Equal(usedAt) {
		t.Fatalf("expected used_at %v, got %v", usedAt, code.UsedAt)
	}
	if code.State(issued.Add(10*time.Second)) != activation.StateConsumed {
		t.Fatalf("expected consumed state")
	}

	mock.ExpectQuery(regexp.QuoteMeta(latestCodeSQL)).
		WithArgs("user-2").
		WillReturnRows(pgxmock.NewRows(codeColumns))

	if _, err := repo.LatestForUser(context.Background(), "user-2"); !errors.Is(err, activation.ErrCodeNotFound) {
		t.Fatalf("expected ErrCodeNotFound, got %v", err)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}
