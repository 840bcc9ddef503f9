package race

import (
	"context"
	"errors"
	"fmt"
	"net"
)

// ErrConnection marks errors caused by a lost or failing connection to a
// ledger node. Such errors are retried with a backoff.
var ErrConnection = errors.New("connection error")

// ConnectionError wraps an error to mark it as a connection error.
type ConnectionError struct {
	Err error
}

// NewConnectionError wraps err as a connection error.
func NewConnectionError(err error) error {
	if err == nil {
		return nil
	}
	return ConnectionError{Err: err}
}

func (e ConnectionError) Error() string {
	return fmt.Sprintf("connection error: %v", e.Err)
}

func (e ConnectionError) Unwrap() error { return e.Err }

// IsConnectionError implements the interface checked by IsConnectionError.
func (e ConnectionError) IsConnectionError() bool { return true }

// IsConnectionError reports whether err is a transient connection error
// that may be retried. An error is a connection error when anything in its
// chain implements IsConnectionError() returning true, is ErrConnection, is
// a net.Error, or is a deadline exceeded.
func IsConnectionError(err error) bool {
	if err == nil {
		return false
	}

	var ce interface{ IsConnectionError() bool }
	if errors.As(err, &ce) {
		return ce.IsConnectionError()
	}

	var netErr net.Error
	switch {
	case errors.Is(err, ErrConnection),
		errors.Is(err, context.DeadlineExceeded),
		errors.As(err, &netErr):
		return true
	}
	return false
}
