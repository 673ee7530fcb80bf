package postgres

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"

	"github.com/shopx/api/internal/repositories"
)

func TestWrapErrorClassifies(t *testing.T) {
	cases := []struct {
		name        string
		err         error
		notFound    bool
		conflict    bool
		unavailable bool
	}{
		{name: "record not found", err: gorm.ErrRecordNotFound, notFound: true},
		{name: "duplicated key", err: gorm.ErrDuplicatedKey, conflict: true},
		{name: "serialization", err: &pgconn.PgError{Code: sqlStateSerializationFailure}, conflict: true},
		{name: "unique", err: fmt.Errorf("insert: %w", &pgconn.PgError{Code: sqlStateUniqueViolation}), conflict: true},
		{name: "too many connections", err: &pgconn.PgError{Code: sqlStateTooManyConnections}, unavailable: true},
		{name: "other", err: errors.New("boom")},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := wrapError("op", tc.err)
			var repoErr repositories.RepositoryError
			if !errors.As(err, &repoErr) {
				t.Fatalf("expected RepositoryError, got %T", err)
			}
			if repoErr.IsNotFound() != tc.notFound || repoErr.IsConflict() != tc.conflict || repoErr.IsUnavailable() != tc.unavailable {
				t.Fatalf("unexpected classification for %v: nf=%v c=%v u=%v", tc.err, repoErr.IsNotFound(), repoErr.IsConflict(), repoErr.IsUnavailable())
			}
		})
	}
}

func TestWrapErrorPassesContextErrors(t *testing.T) {
	if err := wrapError("op", context.Canceled); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if wrapError("op", nil) != nil {
		t.Fatal("expected nil")
	}
}
