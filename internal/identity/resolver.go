// Package identity turns the profile returned by an external login provider
// into exactly one internal account. It owns the linking policy:
//
//   - an account already linked to the provider subject is returned as is,
//     with only its avatar refreshed;
//   - an account with the same email and no linked subject gets linked;
//   - an account with the same email linked to a different subject is left
//     alone and the login is rejected (first link wins);
//   - otherwise a new account is created, as admin when the email is on the
//     allow-list and as member in every other case.
//
// Roles are assigned at creation only and never changed here.
package identity

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/dataarchlabs/lab-portal/internal/model"
	"github.com/dataarchlabs/lab-portal/internal/repository"
)

// AccountStore is the persistence the resolver needs. Create, Update and
// LinkExternalID must return repository.ErrDuplicateAccount on a uniqueness
// violation and the finders repository.ErrAccountNotFound on a miss.
// LinkExternalID must only succeed while the account has no external id and
// report ErrDuplicateAccount otherwise.
type AccountStore interface {
	FindByExternalID(ctx context.Context, externalID string) (*model.Account, error)
	FindByEmail(ctx context.Context, email string) (*model.Account, error)
	Create(ctx context.Context, in repository.NewAccount) (*model.Account, error)
	Update(ctx context.Context, id string, u repository.AccountUpdate) (*model.Account, error)
	LinkExternalID(ctx context.Context, id, externalID, avatarURL string) (*model.Account, error)
}

// Outcome describes what a successful resolution did.
type Outcome string

const (
	OutcomeCreated   Outcome = "created"
	OutcomeLinked    Outcome = "linked"
	OutcomeReturning Outcome = "returning"
)

// Events receives the outcome of every successful resolution.
type Events interface {
	AccountResolved(ctx context.Context, acct *model.Account, provider string, outcome Outcome)
}

const defaultMaxAttempts = 3

// Resolver applies the linking policy against an AccountStore.
type Resolver struct {
	store       AccountStore
	admins      map[string]struct{}
	events      Events
	maxAttempts int
}

// Option customises a Resolver.
type Option func(*Resolver)

// WithAdminEmails seeds the allow-list of emails that are created as admin.
func WithAdminEmails(emails ...string) Option {
	return func(r *Resolver) {
		for _, e := range emails {
			if n := model.NormalizeEmail(e); n != "" {
				r.admins[n] = struct{}{}
			}
		}
	}
}

// WithEvents reports resolution outcomes to ev.
func WithEvents(ev Events) Option {
	return func(r *Resolver) { r.events = ev }
}

// WithMaxAttempts bounds how often a pass is retried after losing a
// uniqueness race.
func WithMaxAttempts(n int) Option {
	return func(r *Resolver) {
		if n > 0 {
			r.maxAttempts = n
		}
	}
}

func NewResolver(store AccountStore, opts ...Option) *Resolver {
	r := &Resolver{
		store:       store,
		admins:      map[string]struct{}{},
		maxAttempts: defaultMaxAttempts,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// IsAdminEmail reports whether email is on the elevated allow-list.
func (r *Resolver) IsAdminEmail(email string) bool {
	_, ok := r.admins[model.NormalizeEmail(email)]
	return ok
}

// Resolve maps profile to exactly one account. Profiles without an email or
// provider subject, provider conflicts and disabled accounts fail with an
// *IdentityError.
func (r *Resolver) Resolve(ctx context.Context, profile *model.ExternalProfile) (*model.Account, error) {
	if profile == nil {
		return nil, &IdentityError{Reason: ErrMissingExternalID}
	}
	email := profile.PrimaryEmail()
	if email == "" {
		return nil, &IdentityError{Provider: profile.Provider, Reason: ErrMissingEmail}
	}
	externalID := strings.TrimSpace(profile.ExternalID)
	if externalID == "" {
		return nil, &IdentityError{Provider: profile.Provider, Reason: ErrMissingExternalID}
	}

	var lastErr error
	for attempt := 0; attempt < r.maxAttempts; attempt++ {
		acct, outcome, err := r.resolveOnce(ctx, profile, externalID, email)
		if errors.Is(err, repository.ErrDuplicateAccount) {
			// a concurrent login won the insert or link; look again
			lastErr = err
			continue
		}
		if err != nil {
			return nil, err
		}
		if r.events != nil {
			r.events.AccountResolved(ctx, acct, profile.Provider, outcome)
		}
		return acct, nil
	}
	return nil, fmt.Errorf("resolve account after %d attempts: %w", r.maxAttempts, lastErr)
}

func (r *Resolver) resolveOnce(ctx context.Context, p *model.ExternalProfile, externalID, email string) (*model.Account, Outcome, error) {
	avatar := p.PrimaryAvatar()

	acct, err := r.store.FindByExternalID(ctx, externalID)
	switch {
	case err == nil:
		if !acct.IsActive {
			return nil, "", &IdentityError{Provider: p.Provider, Reason: ErrAccountDisabled}
		}
		if avatar != "" && avatar != acct.AvatarURL {
			acct, err = r.store.Update(ctx, acct.ID, repository.AccountUpdate{AvatarURL: &avatar})
			if err != nil {
				return nil, "", err
			}
		}
		return acct, OutcomeReturning, nil
	case !errors.Is(err, repository.ErrAccountNotFound):
		return nil, "", fmt.Errorf("find by external id: %w", err)
	}

	acct, err = r.store.FindByEmail(ctx, email)
	switch {
	case err == nil:
		if !acct.IsActive {
			return nil, "", &IdentityError{Provider: p.Provider, Reason: ErrAccountDisabled}
		}
		if acct.ExternalID != "" {
			// linked to another subject of the provider; first link wins
			return nil, "", &IdentityError{Provider: p.Provider, Reason: ErrProviderConflict}
		}
		if avatar == acct.AvatarURL {
			avatar = ""
		}
		// a concurrent link of another subject makes this fail with
		// ErrDuplicateAccount; the retry then sees the conflict
		acct, err = r.store.LinkExternalID(ctx, acct.ID, externalID, avatar)
		if err != nil {
			return nil, "", err
		}
		return acct, OutcomeLinked, nil
	case !errors.Is(err, repository.ErrAccountNotFound):
		return nil, "", fmt.Errorf("find by email: %w", err)
	}

	role := model.RoleMember
	if r.IsAdminEmail(email) {
		role = model.RoleAdmin
	}
	acct, err = r.store.Create(ctx, repository.NewAccount{
		Email:       email,
		ExternalID:  externalID,
		DisplayName: displayName(p.DisplayName, email),
		AvatarURL:   avatar,
		Role:        role,
	})
	if err != nil {
		return nil, "", err
	}
	return acct, OutcomeCreated, nil
}

// displayName falls back to the local part of the email.
func displayName(name, email string) string {
	if name = strings.TrimSpace(name); name != "" {
		return name
	}
	if i := strings.IndexByte(email, '@'); i > 0 {
		return email[:i]
	}
	return email
}
