package market

import (
	"errors"
	"fmt"

	"transfer-sniper/internal/antiban"
)

// Sentinel errors for the platform signals the sniper reacts to
var (
	ErrAuthExpired    = errors.New("session expired, re-login required")
	ErrCaptchaNeeded  = errors.New("captcha required")
	ErrRateLimited    = errors.New("too many requests")
	ErrTransferBanned = errors.New("transfer market banned")
)

// StatusError wraps a non-200 response from the marketplace
type StatusError struct {
	Status int
	Body   string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("market request failed: status %d", e.Status)
}

// RefusedError is returned when the guard refuses a request outright
// (night mode, error streak, forced stop). It carries the decision so
// callers can surface the reason and halt the account loop.
type RefusedError struct {
	Decision antiban.Decision
}

func (e *RefusedError) Error() string {
	return fmt.Sprintf("request refused by guard: %s", e.Decision.Reason)
}

// errorForStatus maps marketplace status codes to typed errors
func errorForStatus(status int, body string) error {
	switch status {
	case 401:
		return ErrAuthExpired
	case 426:
		return ErrCaptchaNeeded
	case 429:
		return ErrRateLimited
	case 458:
		return ErrTransferBanned
	default:
		return &StatusError{Status: status, Body: body}
	}
}

// IsFatal reports whether the error means the account must stop trading
// until a human intervenes
func IsFatal(err error) bool {
	if errors.Is(err, ErrAuthExpired) || errors.Is(err, ErrCaptchaNeeded) || errors.Is(err, ErrTransferBanned) {
		return true
	}
	var refused *RefusedError
	return errors.As(err, &refused) && refused.Decision.Action == antiban.ActionStop
}
