package refine

import "errors"

// Provider failure taxonomy. Quota, timeout, and malformed responses are
// transient and drive the rotation/fallback state machine; unavailable is
// terminal for the provider (but never for the document).
var (
	ErrQuotaExceeded     = errors.New("provider quota exceeded")
	ErrTimeout           = errors.New("provider timeout")
	ErrMalformedResponse = errors.New("provider returned malformed response")
	ErrUnavailable       = errors.New("provider unavailable")
	ErrNoCredentials     = errors.New("no provider credentials configured")
)
