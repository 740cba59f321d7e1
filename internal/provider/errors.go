package provider

import "errors"

// ErrCircuitOpen is returned without any network I/O while the circuit
// breaker is cooling down. Callers treat it like any other provider failure.
var ErrCircuitOpen = errors.New("provider circuit open")

type transientError struct {
	err error
}

func (e *transientError) Error() string { return e.err.Error() }
func (e *transientError) Unwrap() error { return e.err }

// Transient marks an error as retryable (network blips, 5xx, 429).
func Transient(err error) error {
	if err == nil {
		return nil
	}
	return &transientError{err: err}
}

// IsTransient reports whether err was marked retryable.
func IsTransient(err error) bool {
	var te *transientError
	return errors.As(err, &te)
}
