package models

import (
	"errors"

	mysqlDriver "github.com/go-sql-driver/mysql"
	"github.com/jackc/pgx/v5/pgconn"
)

var (
	ErrMergeTargetInUse = errors.New("merge target already has active associations")
	ErrMergeSourceEmpty = errors.New("merge source has no associations")
)

// IsDuplicateKeyError matches unique violations from both supported drivers
// and from the in-memory store.
func IsDuplicateKeyError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrDuplicateKey) {
		return true
	}
	var mysqlErr *mysqlDriver.MySQLError
	if errors.As(err, &mysqlErr) {
		return mysqlErr.Number == 1062
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505"
	}
	return false
}

// ErrDuplicateKey is what memstore returns on a unique violation.
var ErrDuplicateKey = errors.New("duplicate key")

// isRetryableWriteError covers lock contention that a fresh transaction can win.
func isRetryableWriteError(err error) bool {
	if IsDuplicateKeyError(err) {
		return true
	}
	var mysqlErr *mysqlDriver.MySQLError
	if errors.As(err, &mysqlErr) {
		// deadlock, lock wait timeout
		return mysqlErr.Number == 1213 || mysqlErr.Number == 1205
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "40001" || pgErr.Code == "40P01"
	}
	return false
}
