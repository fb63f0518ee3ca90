// Package authz composes credential verification with a role check. Every
// protected request moves from unchecked to authenticated to authorized, or
// stops at the first rejection.
package authz

import (
	"errors"

	"github.com/dataarchlabs/lab-portal/internal/model"
	"github.com/dataarchlabs/lab-portal/internal/session"
)

// Reason tells why a request was rejected.
type Reason int

const (
	ReasonNone Reason = iota
	ReasonUnauthenticated
	ReasonForbidden
)

func (r Reason) String() string {
	switch r {
	case ReasonUnauthenticated:
		return "unauthenticated"
	case ReasonForbidden:
		return "forbidden"
	default:
		return "none"
	}
}

// ErrUnauthenticated is the session package's error, re-exported so callers
// of this package can match both rejection kinds in one place.
var (
	ErrUnauthenticated = session.ErrUnauthenticated
	ErrForbidden       = errors.New("forbidden")
)

// Decision is the result of a check: Authorized with a principal, or
// Rejected with a reason. The zero value is an unauthenticated rejection.
type Decision struct {
	principal *model.Principal
	reason    Reason
}

// Authorized wraps a verified principal.
func Authorized(p *model.Principal) Decision {
	if p == nil {
		return Rejected(ReasonUnauthenticated)
	}
	return Decision{principal: p}
}

// Rejected returns a terminal rejection.
func Rejected(r Reason) Decision {
	if r == ReasonNone {
		r = ReasonUnauthenticated
	}
	return Decision{reason: r}
}

func (d Decision) Allowed() bool                { return d.principal != nil && d.reason == ReasonNone }
func (d Decision) Principal() *model.Principal { return d.principal }

func (d Decision) Reason() Reason {
	if d.Allowed() {
		return ReasonNone
	}
	if d.reason == ReasonNone {
		return ReasonUnauthenticated
	}
	return d.reason
}

// Err maps the decision to nil, ErrUnauthenticated or ErrForbidden.
func (d Decision) Err() error {
	switch d.Reason() {
	case ReasonNone:
		return nil
	case ReasonForbidden:
		return ErrForbidden
	default:
		return ErrUnauthenticated
	}
}

// CredentialVerifier is satisfied by *session.Verifier.
type CredentialVerifier interface {
	Verify(token string) (*model.Principal, error)
}

// Chain runs the authentication step against a verifier.
type Chain struct {
	verifier CredentialVerifier
}

func NewChain(v CredentialVerifier) *Chain {
	return &Chain{verifier: v}
}

// Authenticate verifies token. An empty token is "no principal" and is
// rejected the same way as a bad one.
func (c *Chain) Authenticate(token string) Decision {
	if token == "" {
		return Rejected(ReasonUnauthenticated)
	}
	p, err := c.verifier.Verify(token)
	if err != nil {
		return Rejected(ReasonUnauthenticated)
	}
	return Authorized(p)
}

// RequireRole narrows an authenticated decision to principals holding role.
// Rejections pass through untouched; the role is never looked at for them.
func RequireRole(d Decision, role model.Role) Decision {
	if !d.Allowed() {
		return d
	}
	if !d.principal.HasRole(role) {
		return Rejected(ReasonForbidden)
	}
	return d
}

// Authorize is Authenticate followed by RequireRole.
func (c *Chain) Authorize(token string, role model.Role) Decision {
	return RequireRole(c.Authenticate(token), role)
}
