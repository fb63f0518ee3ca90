package router // package router defines how HTTP routes are registered for the API

import (
	"github.com/labstack/echo/v4" // import the Echo web framework to handle routing

	"github.com/dataarchlabs/lab-portal/internal/authz"      // authorization chain shared by protected routes
	"github.com/dataarchlabs/lab-portal/internal/handler"    // import the handlers that implement business logic
	"github.com/dataarchlabs/lab-portal/internal/middleware" // authentication and role enforcement
	"github.com/dataarchlabs/lab-portal/internal/model"      // roles
	"github.com/dataarchlabs/lab-portal/internal/provider"   // provider names
)

// RegisterRoutes registers routes that do not require authentication: the
// liveness and readiness probes.
func RegisterRoutes(e *echo.Echo, db handler.Pinger) {
	e.GET("/healthz", handler.Health)
	e.GET("/readyz", handler.Ready(db))
}

// RegisterAuth registers the login flow and the session endpoints.  The
// login redirect and callback are public; profile and logout run behind
// the authentication step of the chain.
func RegisterAuth(e *echo.Echo, a *handler.AuthHandler, chain *authz.Chain) {
	g := e.Group("/v1/auth")
	// Google code flow: redirect to consent, then come back with a code.
	g.GET("/google", a.Login(provider.GoogleName))
	g.GET("/google/callback", a.Callback(provider.GoogleName))

	// Any valid credential may read its own profile or log out; no role
	// check is applied here.
	authn := middleware.Authenticate(chain)
	g.GET("/profile", a.Profile, authn)
	g.POST("/logout", a.Logout, authn)
}

// RegisterContent mounts one content kind under /v1/<name>.  Reads are
// public.  Every mutation passes Authenticate and then RequireRole(admin),
// in that order, so an anonymous caller gets 401 and a member gets 403.
func RegisterContent(e *echo.Echo, chain *authz.Chain, name string, r handler.Resource) {
	h := handler.NewContentHandler(name, r)
	base := "/v1/" + name

	e.GET(base, h.List)
	e.GET(base+"/:id", h.Get)

	// Route level middleware keeps the public GETs above out of the guard.
	admin := []echo.MiddlewareFunc{middleware.Authenticate(chain), middleware.RequireRole(model.RoleAdmin)}
	e.POST(base, h.Create, admin...)
	e.PUT(base+"/:id", h.Update, admin...)
	e.PATCH(base+"/:id", h.Update, admin...)
	e.DELETE(base+"/:id", h.Delete, admin...)
}
