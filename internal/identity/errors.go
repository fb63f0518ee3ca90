package identity

import (
	"errors"
	"fmt"
)

// Reasons an external profile cannot be resolved to an account. They are
// wrapped in an IdentityError so callers can match either the category or
// the specific reason with errors.Is.
var (
	ErrMissingEmail      = errors.New("profile carries no usable email")
	ErrMissingExternalID = errors.New("profile carries no provider identifier")
	ErrProviderConflict  = errors.New("email is already linked to a different provider identity")
	ErrAccountDisabled   = errors.New("account is disabled")
)

// IdentityError reports unusable or conflicting provider data. It is fatal
// to the login attempt and never retried.
type IdentityError struct {
	Provider string
	Reason   error
}

func (e *IdentityError) Error() string {
	if e.Provider == "" {
		return fmt.Sprintf("identity: %v", e.Reason)
	}
	return fmt.Sprintf("identity (%s): %v", e.Provider, e.Reason)
}

func (e *IdentityError) Unwrap() error { return e.Reason }

// IsIdentityError reports whether err is, or wraps, an IdentityError.
func IsIdentityError(err error) bool {
	var ie *IdentityError
	return errors.As(err, &ie)
}
