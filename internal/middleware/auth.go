package middleware // middleware adapts the authorization chain to Echo

import (
	"net/http" // HTTP status codes for rejections
	"strings"  // bearer prefix handling

	"github.com/labstack/echo/v4" // Echo framework used for defining middleware and handlers

	"github.com/dataarchlabs/lab-portal/internal/authz" // authenticate / require-role decisions
	"github.com/dataarchlabs/lab-portal/internal/model" // roles and principals
)

// Response bodies for rejected requests.  They are intentionally the same
// for every cause so a caller cannot tell a bad signature from an expired
// credential or an unknown account.
var (
	unauthenticatedBody = echo.Map{"error": "authentication required"}
	forbiddenBody       = echo.Map{"error": "forbidden"}
)

// Authenticate returns an Echo middleware that runs the authentication step
// of the chain on the request's bearer credential.  On success the verified
// principal is stored in the context (see PrincipalFrom); otherwise the
// request stops here with 401 and no handler runs.
func Authenticate(chain *authz.Chain) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			// A missing header is "no principal"; the chain rejects it the
			// same way as a malformed or expired token.
			d := chain.Authenticate(BearerToken(c.Request()))
			if !d.Allowed() {
				return Unauthenticated(c)
			}
			setDecision(c, d)
			return next(c)
		}
	}
}

// RequireRole returns a middleware that enforces the privilege step.  It
// must be mounted after Authenticate.  A request that reaches it without an
// authenticated decision is answered with 401, never 403, because the role
// is not evaluated for unauthenticated callers.
func RequireRole(role model.Role) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			d := authz.RequireRole(decisionFrom(c), role)
			switch d.Reason() {
			case authz.ReasonNone:
				return next(c)
			case authz.ReasonForbidden:
				return c.JSON(http.StatusForbidden, forbiddenBody)
			default:
				return Unauthenticated(c)
			}
		}
	}
}

// Unauthenticated writes the 401 response used for every authentication
// failure.
func Unauthenticated(c echo.Context) error {
	return c.JSON(http.StatusUnauthorized, unauthenticatedBody)
}

// BearerToken extracts the credential from an "Authorization: Bearer <token>"
// header.  The scheme is matched case-insensitively; anything else yields "".
func BearerToken(r *http.Request) string {
	auth := strings.TrimSpace(r.Header.Get(echo.HeaderAuthorization))
	scheme, token, ok := strings.Cut(auth, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return ""
	}
	return strings.TrimSpace(token)
}
