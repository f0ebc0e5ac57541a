package dispatcher

import "github.com/pkg/errors"

// ErrInconsistent marks a store of record that no longer matches what the
// dispatcher wrote during the cycle, such as a job vanishing before commit.
var ErrInconsistent = errors.New("inconsistent dispatch state")

type inconsistentError struct {
	what  string
	cause error
}

func inconsistent(what string, cause error) error {
	return &inconsistentError{what: what, cause: cause}
}

func (e *inconsistentError) Error() string {
	if e.cause == nil {
		return ErrInconsistent.Error() + ": " + e.what
	}
	return ErrInconsistent.Error() + ": " + e.what + ": " + e.cause.Error()
}

func (e *inconsistentError) Is(target error) bool {
	return target == ErrInconsistent
}

func (e *inconsistentError) Unwrap() error {
	return e.cause
}
