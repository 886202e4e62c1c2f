package mentor

import "errors"

// Sentinel errors returned by the orchestrator. Callers map these to
// user-facing messages; the wrapped detail is for operator logs only.
var (
	// ErrAuth means the supplied credentials were rejected. No detail
	// distinguishes unknown users from wrong passwords.
	ErrAuth = errors.New("authentication failed")

	// ErrProvider means the completion call failed or timed out. Wrapped
	// causes include context.DeadlineExceeded on timeout.
	ErrProvider = errors.New("mentor unavailable")

	// ErrStorage means a store read or write failed. Appends are not
	// retried; retrying could duplicate turns.
	ErrStorage = errors.New("storage failure")

	// ErrNotFound means the requested session does not belong to the
	// requesting user.
	ErrNotFound = errors.New("session not found")
)
