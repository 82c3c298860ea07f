// Package dbconn opens standardized MySQL connections and executes
// statements with retries.
package dbconn

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"math/rand"
	"time"

	"github.com/go-sql-driver/mysql"
)

const (
	errLockWaitTimeout = 1205
	errDeadlock        = 1213
	errCannotConnect   = 2003
	errConnLost        = 2013
	errReadOnly        = 1290
	errQueryKilled     = 1836
)

type DBConfig struct {
	LockWaitTimeout       int
	InnodbLockWaitTimeout int
	MaxRetries            int
	MaxOpenConnections    int
	InterpolateParams     bool
	// TLS Configuration
	TLSMode            string // DISABLED, PREFERRED, REQUIRED, VERIFY_CA, VERIFY_IDENTITY
	TLSCertificatePath string // Path to custom TLS CA certificate file
}

func NewDBConfig() *DBConfig {
	return &DBConfig{
		LockWaitTimeout:       30,
		InnodbLockWaitTimeout: 3,
		MaxRetries:            3,
		MaxOpenConnections:    16,
		InterpolateParams:     false,
		TLSMode:               "PREFERRED",
		TLSCertificatePath:    "",
	}
}

// canRetryError looks at the MySQL error and decides if it is considered
// a permanent failure or not.
func canRetryError(err error) bool {
	var myErr *mysql.MySQLError
	if !errors.As(err, &myErr) {
		return errors.Is(err, mysql.ErrInvalidConn)
	}
	switch myErr.Number {
	case errLockWaitTimeout, errDeadlock, errCannotConnect,
		errConnLost, errReadOnly, errQueryKilled:
		return true
	default:
		return false
	}
}

// RetryableExec executes stmt in a transaction, making up to
// config.MaxRetries attempts while the statement fails with a retryable
// error. A failed attempt is rolled back before the next one, so a retry
// cannot apply the statement twice. A failed commit is returned without a
// retry, since the server may have applied it. It returns the rows
// affected.
func RetryableExec(ctx context.Context, db *sql.DB, config *DBConfig, stmt string, args ...any) (int64, error) {
	var (
		err          error
		rowsAffected int64
	)
	for i := range max(config.MaxRetries, 1) {
		var retry bool
		rowsAffected, retry, err = execAttempt(ctx, db, stmt, args...)
		if err == nil {
			return rowsAffected, nil
		}
		if !retry {
			return 0, err
		}
		slog.WarnContext(ctx, "retrying statement", "attempt", i+1, "error", err)
		if err := backoff(ctx, i); err != nil {
			return 0, err
		}
	}
	// We've exhausted retries and the error is non-nil
	return 0, err
}

// execAttempt runs stmt in its own transaction. retry reports whether the
// error left nothing applied and may be retried.
func execAttempt(ctx context.Context, db *sql.DB, stmt string, args ...any) (rowsAffected int64, retry bool, err error) {
	trx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return 0, canRetryError(err), err
	}
	res, err := trx.ExecContext(ctx, stmt, args...)
	if err != nil {
		_ = trx.Rollback()
		return 0, canRetryError(err), err
	}
	if rowsAffected, err = res.RowsAffected(); err != nil { // not every statement supports affected rows
		rowsAffected = 0
	}
	if err := trx.Commit(); err != nil {
		return 0, false, err
	}
	return rowsAffected, false, nil
}

// backoff sleeps a few milliseconds before retrying.
func backoff(ctx context.Context, i int) error {
	randFactor := time.Duration(i*rand.Intn(10)) * time.Millisecond
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(randFactor):
		return nil
	}
}

// Exec is like db.ExecContext but only returns an error.
func Exec(ctx context.Context, db *sql.DB, stmt string, args ...any) error {
	_, err := db.ExecContext(ctx, stmt, args...)
	return err
}
