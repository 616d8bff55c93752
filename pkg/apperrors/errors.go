package apperrors

import "errors"

var (
	ErrMissingAuthorization = errors.New("missing or invalid authorization header")
	ErrInvalidSession       = errors.New("invalid or expired session")
)

// ValidationError reports malformed or missing input. It is raised before any
// upstream call is attempted.
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}

// NewValidationError returns a ValidationError with the given user-facing message.
func NewValidationError(message string) *ValidationError {
	return &ValidationError{Message: message}
}

// UpstreamError wraps a failure returned by InfluxDB. Message is the classified,
// user-facing text; Err keeps the raw cause for logs only.
type UpstreamError struct {
	Category string
	Message  string
	Err      error
}

func (e *UpstreamError) Error() string {
	return e.Message
}

func (e *UpstreamError) Unwrap() error {
	return e.Err
}

// IsValidation reports whether err is (or wraps) a ValidationError.
func IsValidation(err error) bool {
	var v *ValidationError
	return errors.As(err, &v)
}

// AsUpstream returns the UpstreamError in err's chain, if any.
func AsUpstream(err error) (*UpstreamError, bool) {
	var u *UpstreamError
	if errors.As(err, &u) {
		return u, true
	}
	return nil, false
}
