package handler

import (
	"context"
	"errors"
	"net/http"
	"net/url"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/dataarchlabs/lab-portal/internal/identity"
	"github.com/dataarchlabs/lab-portal/internal/logger"
	"github.com/dataarchlabs/lab-portal/internal/middleware"
	"github.com/dataarchlabs/lab-portal/internal/model"
	"github.com/dataarchlabs/lab-portal/internal/oauthstate"
	"github.com/dataarchlabs/lab-portal/internal/provider"
	"github.com/dataarchlabs/lab-portal/internal/repository"
	"github.com/dataarchlabs/lab-portal/internal/session"
)

// Login failure codes appended to the frontend callback URL.
const (
	errLoginFailed  = "login_failed"
	errServer       = "server_error"
	errAccessDenied = "access_denied"
)

// AccountResolver is satisfied by *identity.Resolver.
type AccountResolver interface {
	Resolve(ctx context.Context, p *model.ExternalProfile) (*model.Account, error)
}

// CredentialIssuer is satisfied by *session.Issuer.
type CredentialIssuer interface {
	Issue(acct *model.Account) (session.Credential, error)
}

// AccountFinder is satisfied by *repository.AccountRepo.
type AccountFinder interface {
	FindByID(ctx context.Context, id string) (*model.Account, error)
}

// AuthHandler bundles dependencies for auth endpoints.
type AuthHandler struct {
	Providers   *provider.Registry
	States      oauthstate.Store
	Resolver    AccountResolver
	Issuer      CredentialIssuer
	Accounts    AccountFinder
	FrontendURL string
}

func NewAuthHandler(providers *provider.Registry, states oauthstate.Store, resolver AccountResolver,
	issuer CredentialIssuer, accounts AccountFinder, frontendURL string) *AuthHandler {
	return &AuthHandler{
		Providers:   providers,
		States:      states,
		Resolver:    resolver,
		Issuer:      issuer,
		Accounts:    accounts,
		FrontendURL: frontendURL,
	}
}

// Login starts the code flow for the named provider: it stores a fresh
// state and PKCE verifier and redirects the browser to the provider.
func (h *AuthHandler) Login(name string) echo.HandlerFunc {
	return func(c echo.Context) error {
		p, err := h.Providers.Get(name)
		if err != nil {
			return c.JSON(http.StatusNotFound, echo.Map{"error": "unknown oauth provider"})
		}

		ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
		defer cancel()

		state, login, err := oauthstate.Begin(ctx, h.States, p.Name())
		if err != nil {
			logger.Error("oauth state save failed", map[string]any{"provider": name, "err": err})
			return c.JSON(http.StatusInternalServerError, echo.Map{"error": "login unavailable"})
		}
		return c.Redirect(http.StatusFound, p.AuthCodeURL(state, login.Verifier))
	}
}

// Callback finishes the code flow. The state is consumed first so a
// replayed or forged callback is refused before anything else happens. On
// success the browser is sent to the frontend with the credential;
// failures go to the same page with an error code.
func (h *AuthHandler) Callback(name string) echo.HandlerFunc {
	return func(c echo.Context) error {
		p, err := h.Providers.Get(name)
		if err != nil {
			return c.JSON(http.StatusNotFound, echo.Map{"error": "unknown oauth provider"})
		}

		ctx, cancel := context.WithTimeout(c.Request().Context(), 10*time.Second)
		defer cancel()

		login, err := h.States.Consume(ctx, c.QueryParam("state"))
		if err != nil || login.Provider != p.Name() {
			if err != nil && !errors.Is(err, oauthstate.ErrStateNotFound) {
				logger.Error("oauth state lookup failed", map[string]any{"provider": name, "err": err})
			}
			return c.JSON(http.StatusUnauthorized, echo.Map{"error": "invalid state"})
		}

		// the user declined or the provider failed
		if errParam := c.QueryParam("error"); errParam != "" {
			logger.Warn("oauth callback returned error", map[string]any{
				"provider": name,
				"error":    errParam,
				"desc":     c.QueryParam("error_description"),
			})
			return h.redirectError(c, providerError(errParam))
		}

		code := c.QueryParam("code")
		if code == "" {
			return c.JSON(http.StatusBadRequest, echo.Map{"error": "missing code"})
		}

		profile, err := p.Exchange(ctx, code, login.Verifier)
		if err != nil {
			logger.Warn("oauth exchange failed", map[string]any{"provider": name, "err": err})
			return h.redirectError(c, errLoginFailed)
		}

		acct, err := h.Resolver.Resolve(ctx, profile)
		if err != nil {
			if identity.IsIdentityError(err) {
				logger.Warn("login rejected", map[string]any{"provider": name, "err": err})
				return h.redirectError(c, errLoginFailed)
			}
			logger.Error("resolve account failed", map[string]any{"provider": name, "err": err})
			return h.redirectError(c, errServer)
		}

		cred, err := h.Issuer.Issue(acct)
		if err != nil {
			logger.Error("issue credential failed", map[string]any{"account_id": acct.ID, "err": err})
			return h.redirectError(c, errServer)
		}

		logger.Info("login succeeded", map[string]any{"provider": name, "account_id": acct.ID, "ip": c.RealIP()})
		return c.Redirect(http.StatusFound, h.frontendCallback(url.Values{"token": {cred.Token}}))
	}
}

// Profile returns the public projection of the caller's account.
func (h *AuthHandler) Profile(c echo.Context) error {
	p, ok := middleware.PrincipalFrom(c)
	if !ok {
		return middleware.Unauthenticated(c)
	}

	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	acct, err := h.Accounts.FindByID(ctx, p.AccountID)
	if err != nil {
		if errors.Is(err, repository.ErrAccountNotFound) {
			return c.JSON(http.StatusNotFound, echo.Map{"error": "account not found"})
		}
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "profile lookup failed"})
	}
	return c.JSON(http.StatusOK, acct.Public())
}

// Logout acknowledges the request. Credentials are stateless, so the
// client drops its token and it stays valid until it expires.
func (h *AuthHandler) Logout(c echo.Context) error {
	return c.JSON(http.StatusOK, echo.Map{"message": "Logged out successfully"})
}

// providerError keeps the frontend from receiving arbitrary text from the
// callback query: only a declined consent is passed through.
func providerError(code string) string {
	if code == errAccessDenied {
		return errAccessDenied
	}
	return errLoginFailed
}

func (h *AuthHandler) redirectError(c echo.Context, code string) error {
	return c.Redirect(http.StatusFound, h.frontendCallback(url.Values{"error": {code}}))
}

func (h *AuthHandler) frontendCallback(q url.Values) string {
	return h.FrontendURL + "/auth/callback?" + q.Encode()
}
