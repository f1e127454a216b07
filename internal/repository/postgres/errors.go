package postgres

import (
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"net"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"

	"github.com/sijan324/nepshop/internal/repository"
)

const uniqueViolation = "23505"

// sqlState extracts the SQLSTATE from either driver's error type.
func sqlState(err error) string {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return string(pqErr.Code)
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code
	}
	return ""
}

func isUniqueViolation(err error) bool {
	return sqlState(err) == uniqueViolation
}

// isTransient reports connection loss, serialization failures and deadlocks.
func isTransient(err error) bool {
	if errors.Is(err, driver.ErrBadConn) || errors.Is(err, sql.ErrConnDone) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	code := sqlState(err)
	switch {
	case strings.HasPrefix(code, "08"):
		return true
	case code == "40001", code == "40P01", code == "57P01":
		return true
	}
	return false
}

func wrapErr(op string, err error) error {
	if isTransient(err) {
		return fmt.Errorf("failed to %s: %w: %w", op, repository.ErrUnavailable, err)
	}
	return fmt.Errorf("failed to %s: %w", op, err)
}
