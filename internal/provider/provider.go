// Package provider wraps external login providers. Implementations return
// identity facts only; linking, account creation and sessions are handled
// elsewhere.
package provider

import (
	"context"
	"fmt"

	"github.com/dataarchlabs/lab-portal/internal/model"
)

// OAuthProvider is the contract every external login provider implements.
type OAuthProvider interface {
	// Name returns the provider identifier (e.g. "google").
	Name() string

	// AuthCodeURL returns the authorization URL for state, with the S256
	// challenge derived from verifier.
	AuthCodeURL(state, verifier string) string

	// Exchange trades the authorization code for tokens and returns the
	// verified profile.
	Exchange(ctx context.Context, code, verifier string) (*model.ExternalProfile, error)
}

// Registry holds the configured providers by name.
type Registry struct {
	providers map[string]OAuthProvider
}

func NewRegistry(list ...OAuthProvider) *Registry {
	m := make(map[string]OAuthProvider, len(list))
	for _, p := range list {
		m[p.Name()] = p
	}
	return &Registry{providers: m}
}

// Get returns the provider registered under name.
func (r *Registry) Get(name string) (OAuthProvider, error) {
	p, ok := r.providers[name]
	if !ok {
		return nil, fmt.Errorf("unknown oauth provider: %s", name)
	}
	return p, nil
}
