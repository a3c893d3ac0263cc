package store

import (
	"database/sql/driver"
	"errors"
	"fmt"
	"net"

	"github.com/go-sql-driver/mysql"
)

// TransientError wraps a store failure the caller may retry later: lock
// waits, deadlocks, and connection drops all fall in here.
type TransientError struct{ Err error }

func (e *TransientError) Error() string { return fmt.Sprintf("store: transient: %v", e.Err) }
func (e *TransientError) Unwrap() error { return e.Err }

// PermanentError wraps a store failure retrying will not fix: a missing
// column or table, a malformed query.
type PermanentError struct{ Err error }

func (e *PermanentError) Error() string { return fmt.Sprintf("store: permanent: %v", e.Err) }
func (e *PermanentError) Unwrap() error { return e.Err }

// mysql error numbers relevant to classification.
// https://dev.mysql.com/doc/mysql-errors/8.0/en/server-error-reference.html
const (
	erLockWaitTimeout = 1205
	erLockDeadlock    = 1213
	erDupEntry        = 1062
	erParseError      = 1064
	erBadFieldError   = 1054
	erNoSuchTable     = 1146
)

// classify wraps err as Transient (connection failures, lock waits,
// deadlocks) or Permanent (duplicate key, malformed query, unknown column or
// table), or returns err unchanged otherwise (e.g. a context cancellation).
func classify(err error) error {
	if err == nil {
		return nil
	}

	var netErr *net.OpError
	if errors.Is(err, driver.ErrBadConn) || errors.Is(err, mysql.ErrInvalidConn) || errors.As(err, &netErr) {
		return &TransientError{Err: err}
	}

	var merr *mysql.MySQLError
	if !errors.As(err, &merr) {
		return err
	}

	switch merr.Number {
	case erLockWaitTimeout, erLockDeadlock:
		return &TransientError{Err: err}
	case erDupEntry, erParseError, erBadFieldError, erNoSuchTable:
		return &PermanentError{Err: err}
	default:
		return err
	}
}
