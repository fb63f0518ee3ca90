// Package oauthstate keeps the per-login secrets of the OAuth code flow (the
// state value and the PKCE verifier) between the redirect to the provider
// and the callback. Entries are single use and expire after TTL.
package oauthstate

import (
	"context"
	"errors"
	"time"

	"golang.org/x/oauth2"
)

// TTL bounds how long a user may take on the provider's consent screen.
const TTL = 5 * time.Minute

// ErrStateNotFound is returned for unknown, expired or already used states.
var ErrStateNotFound = errors.New("oauth state not found")

// Login is what the callback needs to finish a login started by the
// redirect.
type Login struct {
	Provider  string    `json:"provider"`
	Verifier  string    `json:"verifier"`
	CreatedAt time.Time `json:"created_at"`
}

// Store persists Login entries keyed by state.
type Store interface {
	Save(ctx context.Context, state string, l Login) error
	// Consume returns the entry and removes it in one step so a state can
	// complete at most one login.
	Consume(ctx context.Context, state string) (*Login, error)
}

// Begin creates a fresh state and PKCE verifier for provider and saves
// them. The returned Login carries the verifier for the challenge.
func Begin(ctx context.Context, s Store, provider string) (string, *Login, error) {
	state := oauth2.GenerateVerifier()
	l := Login{
		Provider:  provider,
		Verifier:  oauth2.GenerateVerifier(),
		CreatedAt: time.Now().UTC(),
	}
	if err := s.Save(ctx, state, l); err != nil {
		return "", nil, err
	}
	return state, &l, nil
}
