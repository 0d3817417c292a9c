// Package db holds the Postgres pool, transaction scope, and storage error types shared by repositories.
package db

import "errors"

var (
	// ErrDatabase matches every *Error; callers test with errors.Is.
	ErrDatabase = errors.New("database error")
	// ErrInvalidTransaction is returned when a repository is handed a Tx from a different backend.
	ErrInvalidTransaction = errors.New("invalid transaction")
	// ErrTransactionFailed is returned when a transaction cannot begin or commit.
	ErrTransactionFailed = errors.New("transaction failed")
)

// Error wraps a driver error. Its message is opaque so storage internals never reach clients;
// the cause stays reachable through Unwrap for logging.
type Error struct {
	Op  string
	Err error
}

func (e *Error) Error() string { return ErrDatabase.Error() }

func (e *Error) Unwrap() error { return e.Err }

func (e *Error) Is(target error) bool { return target == ErrDatabase }

// Wrap returns nil for a nil err, and otherwise an *Error tagged with op.
func Wrap(op string, err error) error {
	if err == nil {
		return nil
	}
	return &Error{Op: op, Err: err}
}

// Detail returns the operation and driver message behind err for logs. Returns "" when err is not an *Error.
func Detail(err error) string {
	var e *Error
	if !errors.As(err, &e) || e.Err == nil {
		return ""
	}
	return e.Op + ": " + e.Err.Error()
}
