package service

import "errors"

// Expected user-facing outcomes. Only ErrTokenMismatch and persistence
// failures are logged as anomalies; the rest flow back to the caller as
// structured errors.
var (
	// ErrSessionInvalid means no live session exists for the identity
	// (absent or expired).
	ErrSessionInvalid = errors.New("invalid session")

	// ErrTokenMismatch means a cached session exists but the presented token
	// differs: a possible hijack attempt, logged distinctly from expiry.
	ErrTokenMismatch = errors.New("session token mismatch")

	// ErrRoomAccess means the session has no membership in the target room.
	ErrRoomAccess = errors.New("no access to the room")

	// ErrPermissionDenied means the caller's role lacks the capability.
	ErrPermissionDenied = errors.New("permission denied")

	// ErrPersistence wraps collaborator errors and timeouts; the triggering
	// event is aborted without broadcast.
	ErrPersistence = errors.New("persistence failure")
)

// ValidationError rejects a malformed payload with a caller-facing reason.
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string { return e.Reason }

func validationErr(reason string) error { return &ValidationError{Reason: reason} }
