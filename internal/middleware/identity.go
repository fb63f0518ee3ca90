package middleware

// identity.go holds the context plumbing shared by the auth middlewares and
// the handlers. The decision is stored under a single key; handlers read the
// principal through PrincipalFrom instead of poking at raw claims.

import (
	"github.com/labstack/echo/v4"

	"github.com/dataarchlabs/lab-portal/internal/authz"
	"github.com/dataarchlabs/lab-portal/internal/model"
)

const decisionKey = "authz.decision"

func setDecision(c echo.Context, d authz.Decision) {
	c.Set(decisionKey, d)
}

// decisionFrom returns the stored decision, or the zero (unauthenticated)
// decision when Authenticate did not run.
func decisionFrom(c echo.Context) authz.Decision {
	if d, ok := c.Get(decisionKey).(authz.Decision); ok {
		return d
	}
	return authz.Decision{}
}

// PrincipalFrom returns the request's verified principal, or false when the
// request was not authenticated.
func PrincipalFrom(c echo.Context) (*model.Principal, bool) {
	d := decisionFrom(c)
	if !d.Allowed() {
		return nil, false
	}
	return d.Principal(), true
}

// actorID names the caller for access logs; "guest" when unauthenticated.
func actorID(c echo.Context) string {
	if p, ok := PrincipalFrom(c); ok {
		return p.AccountID
	}
	return "guest"
}
