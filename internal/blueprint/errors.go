package blueprint

import (
	"errors"
	"fmt"
)

var (
	ErrUnauthenticated   = errors.New("caller identity is required")
	ErrNotFound          = errors.New("blueprint not found")
	ErrIllegalTransition = errors.New("illegal status transition")
	// ErrAlreadyApplied aborts a field-group update whose guard shows the
	// stage already ran for the document.
	ErrAlreadyApplied = errors.New("stage already applied")
)

// ValidationError rejects a request before any state is created.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

func invalid(field, format string, args ...any) error {
	return &ValidationError{Field: field, Reason: fmt.Sprintf(format, args...)}
}

// IsValidation reports whether err is (or wraps) a ValidationError.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}
