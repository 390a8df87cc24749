package postgres

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"

	"github.com/dradenvandewind/registration-api/internal/core/storage"
)

func TestTranslateStorageError(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name string
		err  error
		want error
	}{
		{name: "deadline", err: fmt.Errorf("query: %w", context.DeadlineExceeded), want: storage.ErrUnavailable},
		{name: "connection exception", err: &pgconn.PgError{Code: "08001"}, want: storage.ErrUnavailable},
		{name: "too many connections", err: &pgconn.PgError{Code: tooManyConnectionsCode}, want: storage.ErrUnavailable},
		{name: "closed pool", err: errors.New("closed pool"), want: storage.ErrUnavailable},
		{name: "syntax error", err: &pgconn.PgError{Code: "42601"}, want: storage.ErrStorage},
		{name: "generic", err: errors.New("boom"), want: storage.ErrStorage},
	}

	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			got := translateStorageError(tc.err)
			if !errors.Is(got, tc.want) {
				t.Fatalf("expected %v, got %v", tc.want, got)
			}
			if !errors.Is(got, tc.err) {
				t.Fatalf("expected original error to stay in the chain")
			}
		})
	}

	if translateStorageError(nil) != nil {
		t.Fatalf("expected nil for nil error")
	}
}
