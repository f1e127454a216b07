package postgres

import (
	"database/sql/driver"
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"

	"github.com/sijan324/nepshop/internal/repository"
)

func TestErrorClassification(t *testing.T) {
	tests := []struct {
		name        string
		err         error
		unique      bool
		unavailable bool
	}{
		{"pq unique", &pq.Error{Code: "23505"}, true, false},
		{"pgx unique", &pgconn.PgError{Code: "23505"}, true, false},
		{"wrapped pgx unique", fmt.Errorf("insert: %w", &pgconn.PgError{Code: "23505"}), true, false},
		{"pq connection failure", &pq.Error{Code: "08006"}, false, true},
		{"pgx serialization failure", &pgconn.PgError{Code: "40001"}, false, true},
		{"bad conn", driver.ErrBadConn, false, true},
		{"check violation", &pq.Error{Code: "23514"}, false, false},
		{"plain", errors.New("boom"), false, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := isUniqueViolation(tt.err); got != tt.unique {
				t.Fatalf("isUniqueViolation = %v, want %v", got, tt.unique)
			}
			wrapped := wrapErr("do thing", tt.err)
			if got := errors.Is(wrapped, repository.ErrUnavailable); got != tt.unavailable {
				t.Fatalf("unavailable = %v, want %v (%v)", got, tt.unavailable, wrapped)
			}
			if !errors.Is(wrapped, tt.err) {
				t.Fatalf("wrapped error must keep the cause")
			}
		})
	}
}
