package dbx

import (
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"

	"github.com/dmitrijs2005/authfacade/internal/common"
	"github.com/jackc/pgx/v5/pgconn"
)

// PostgreSQL SQLSTATE codes the repositories care about.
const (
	sqlStateUniqueViolation     = "23505"
	sqlStateForeignKeyViolation = "23503"
	sqlStateSerialization       = "40001"
	sqlStateDeadlock            = "40P01"
)

// WrapError wraps a driver error as "db error: ..." and tags it with the
// matching common sentinel so services can use errors.Is:
//
//   - unique violations      -> common.ErrorConflict
//   - foreign-key violations -> common.ErrorInvalidPrincipal
//   - connection loss, timeouts, serialization failures -> common.ErrorTransient
//
// sql.ErrNoRows is mapped to common.ErrorNotFound without the prefix.
func WrapError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return common.ErrorNotFound
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch {
		case pgErr.Code == sqlStateUniqueViolation:
			return fmt.Errorf("db error: %w: %w", common.ErrorConflict, err)
		case pgErr.Code == sqlStateForeignKeyViolation:
			return fmt.Errorf("db error: %w: %w", common.ErrorInvalidPrincipal, err)
		case pgErr.Code == sqlStateSerialization, pgErr.Code == sqlStateDeadlock,
			len(pgErr.Code) == 5 && pgErr.Code[:2] == "08":
			return fmt.Errorf("db error: %w: %w", common.ErrorTransient, err)
		}
	}

	if IsTransient(err) {
		return fmt.Errorf("db error: %w: %w", common.ErrorTransient, err)
	}
	return fmt.Errorf("db error: %w", err)
}

// IsTransient reports whether err looks like a store outage rather than a
// logical failure.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, driver.ErrBadConn) || errors.Is(err, sql.ErrConnDone) {
		return true
	}
	var connErr *pgconn.ConnectError
	if errors.As(err, &connErr) {
		return true
	}
	return pgconn.Timeout(err) || pgconn.SafeToRetry(err)
}
