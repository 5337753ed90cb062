package worker

import (
	"errors"
	"net/http"
)

// ValidationError reports a job whose input is missing or has a badly typed
// field. It is raised before any backend call.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string { return "invalid job input: " + e.Field + " " + e.Reason }

// StatusCode maps the failure for HTTP callers.
func (e *ValidationError) StatusCode() int { return http.StatusBadRequest }

// IsValidation reports whether err is (or wraps) a ValidationError.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}
