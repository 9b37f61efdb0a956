package llm

import (
	"errors"
	"fmt"
)

// ErrUnavailable matches every *UnavailableError via errors.Is.
var ErrUnavailable = errors.New("llm: backend unavailable")

// Reasons a completion could not be used.
const (
	ReasonNoCredential = "no_credential"
	ReasonRequest      = "request"
	ReasonTransport    = "transport"
	ReasonStatus       = "status"
	ReasonDecode       = "decode"
	ReasonEmpty        = "empty"
)

// UnavailableError classifies why the generative backend produced no
// usable text. Callers fall back to the template on any of them.
type UnavailableError struct {
	Reason string
	Status int // HTTP status for ReasonStatus
	Err    error
}

func (e *UnavailableError) Error() string {
	switch {
	case e.Status != 0 && e.Err != nil:
		return fmt.Sprintf("llm unavailable (%s, status %d): %v", e.Reason, e.Status, e.Err)
	case e.Err != nil:
		return fmt.Sprintf("llm unavailable (%s): %v", e.Reason, e.Err)
	default:
		return fmt.Sprintf("llm unavailable (%s)", e.Reason)
	}
}

func (e *UnavailableError) Unwrap() error { return e.Err }

// Is lets errors.Is(err, ErrUnavailable) match any classification.
func (e *UnavailableError) Is(target error) bool {
	return target == ErrUnavailable
}

// Reason extracts the classification from err, or "" when err is not
// an *UnavailableError.
func Reason(err error) string {
	var ue *UnavailableError
	if errors.As(err, &ue) {
		return ue.Reason
	}
	return ""
}
