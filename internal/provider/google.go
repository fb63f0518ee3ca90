package provider

import (
	"context"
	"errors"
	"fmt"

	"github.com/coreos/go-oidc/v3/oidc"
	"golang.org/x/oauth2"

	"github.com/dataarchlabs/lab-portal/internal/logger"
	"github.com/dataarchlabs/lab-portal/internal/model"
)

const (
	GoogleName   = "google"
	googleIssuer = "https://accounts.google.com"
)

// Google implements OAuthProvider with the authorization code flow plus
// OpenID Connect id_token verification.
type Google struct {
	oauthConfig *oauth2.Config
	verifier    *oidc.IDTokenVerifier
	// userInfo is used when the id_token carries no verified email
	userInfo func(ctx context.Context, ts oauth2.TokenSource) (*oidc.UserInfo, error)
}

// NewGoogle discovers Google's OIDC configuration and builds the provider.
func NewGoogle(ctx context.Context, clientID, clientSecret, redirectURL string) (*Google, error) {
	if clientID == "" || clientSecret == "" || redirectURL == "" {
		return nil, errors.New("google oauth config missing required fields")
	}

	op, err := oidc.NewProvider(ctx, googleIssuer)
	if err != nil {
		return nil, fmt.Errorf("failed to init google oidc provider: %w", err)
	}

	return &Google{
		oauthConfig: &oauth2.Config{
			ClientID:     clientID,
			ClientSecret: clientSecret,
			RedirectURL:  redirectURL,
			Endpoint:     op.Endpoint(),
			Scopes:       []string{oidc.ScopeOpenID, "profile", "email"},
		},
		verifier: op.Verifier(&oidc.Config{ClientID: clientID}),
		userInfo: op.UserInfo,
	}, nil
}

func (g *Google) Name() string { return GoogleName }

func (g *Google) AuthCodeURL(state, verifier string) string {
	return g.oauthConfig.AuthCodeURL(
		state,
		oauth2.AccessTypeOnline,
		oauth2.S256ChallengeOption(verifier),
		oauth2.SetAuthURLParam("prompt", "select_account"),
	)
}

// googleClaims are the id_token / userinfo fields we read.
type googleClaims struct {
	Subject       string `json:"sub"`
	Email         string `json:"email"`
	EmailVerified bool   `json:"email_verified"`
	Name          string `json:"name"`
	GivenName     string `json:"given_name"`
	FamilyName    string `json:"family_name"`
	Picture       string `json:"picture"`
}

func (g *Google) Exchange(ctx context.Context, code, verifier string) (*model.ExternalProfile, error) {
	token, err := g.oauthConfig.Exchange(ctx, code, oauth2.VerifierOption(verifier))
	if err != nil {
		return nil, fmt.Errorf("google token exchange failed: %w", err)
	}

	rawIDToken, ok := token.Extra("id_token").(string)
	if !ok || rawIDToken == "" {
		return nil, errors.New("google did not return id_token")
	}

	idToken, err := g.verifier.Verify(ctx, rawIDToken)
	if err != nil {
		return nil, fmt.Errorf("google id_token verification failed: %w", err)
	}

	var claims googleClaims
	if err := idToken.Claims(&claims); err != nil {
		return nil, fmt.Errorf("google id_token claims parse failed: %w", err)
	}

	if (claims.Email == "" || !claims.EmailVerified) && g.userInfo != nil {
		g.mergeUserInfo(ctx, oauth2.StaticTokenSource(token), &claims)
	}

	logger.Debug("google oidc verified", map[string]any{
		"subject_present": claims.Subject != "",
		"email_present":   claims.Email != "",
		"email_verified":  claims.EmailVerified,
		"expiry_unix":     idToken.Expiry.Unix(),
	})

	return profileFromClaims(claims), nil
}

// mergeUserInfo fills missing fields from the userinfo endpoint. Failures
// are logged and leave claims untouched.
func (g *Google) mergeUserInfo(ctx context.Context, ts oauth2.TokenSource, claims *googleClaims) {
	info, err := g.userInfo(ctx, ts)
	if err != nil {
		logger.Warn("google userinfo failed", map[string]any{"err": err})
		return
	}
	var extra googleClaims
	if err := info.Claims(&extra); err != nil {
		logger.Warn("google userinfo claims parse failed", map[string]any{"err": err})
		return
	}
	// userinfo must describe the same subject
	if info.Subject != claims.Subject {
		return
	}
	if info.Email != "" && info.EmailVerified {
		claims.Email = info.Email
		claims.EmailVerified = true
	}
	if claims.Name == "" {
		claims.Name = extra.Name
	}
	if claims.Picture == "" {
		claims.Picture = extra.Picture
	}
}

// profileFromClaims keeps only provider-verified emails; an unverified
// address never reaches the resolver.
func profileFromClaims(c googleClaims) *model.ExternalProfile {
	p := &model.ExternalProfile{
		Provider:    GoogleName,
		ExternalID:  c.Subject,
		DisplayName: c.Name,
	}
	if p.DisplayName == "" {
		p.DisplayName = joinName(c.GivenName, c.FamilyName)
	}
	if c.Email != "" && c.EmailVerified {
		p.Emails = []string{c.Email}
	}
	if c.Picture != "" {
		p.AvatarURLs = []string{c.Picture}
	}
	return p
}

func joinName(given, family string) string {
	switch {
	case given == "":
		return family
	case family == "":
		return given
	default:
		return given + " " + family
	}
}
