package gateway

import (
	"errors"
	"fmt"

	"github.com/dmaganga/majisync/internal/models"
)

// ErrUnavailable marks transport-level failures: connection refused, timeout,
// 5xx. Retryable; the engine halts the current pass and tries again later.
var ErrUnavailable = errors.New("server unavailable")

// ValidationError is a server-side rejection of a submitted payload. Not
// retryable: the local reading is flagged REJECTED and surfaced to the user.
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("submission rejected: %s", e.Reason)
}

// ConflictError means the server already holds a differing authoritative
// value for the submitted pair. Carries the server snapshot so the engine can
// record a Conflict without another round trip.
type ConflictError struct {
	Reason string
	// ServerReading is the authoritative reading, when the server included
	// one in the 409 body.
	ServerReading *models.Reading
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("reading conflict: %s", e.Reason)
}

// IsTransport reports whether err is a transport-level failure (as opposed to
// a per-item validation or conflict outcome).
func IsTransport(err error) bool {
	return errors.Is(err, ErrUnavailable)
}
