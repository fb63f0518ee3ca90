package model

import (
	"strings"
	"time"
)

// Role is the privilege level stored on an account and carried in session
// credentials.  Only two values exist; anything else read from a token is
// treated as invalid.
type Role string

const (
	RoleAdmin  Role = "admin"  // privileged role required for content mutations
	RoleMember Role = "member" // default role for every new account
)

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	return r == RoleAdmin || r == RoleMember
}

// Account represents a row in the `accounts` table.  Email is stored
// normalized (trimmed, lower-cased) so uniqueness is case-insensitive.
// ExternalID is the identity provider subject; it stays empty until the
// first provider-backed login links it.
//
// Fields:
//  ID          – opaque identifier (UUID) assigned at creation, immutable.
//  Email       – unique, normalized email address.
//  ExternalID  – provider subject, unique when non-empty.
//  DisplayName – human readable name shown by the frontend.
//  AvatarURL   – optional avatar reference.
//  Role        – admin or member.
//  IsActive    – deactivated accounts cannot log in.
//  CreatedAt   – timestamp of creation.
//  UpdatedAt   – timestamp of last update.
type Account struct {
	ID          string    // accounts.id
	Email       string    // accounts.email
	ExternalID  string    // accounts.external_id (nullable)
	DisplayName string    // accounts.display_name
	AvatarURL   string    // accounts.avatar_url (nullable)
	Role        Role      // accounts.role
	IsActive    bool      // accounts.is_active
	CreatedAt   time.Time // accounts.created_at
	UpdatedAt   time.Time // accounts.updated_at
}

// PublicAccount is the projection of an account returned to callers next to
// a session credential and by the profile endpoint.
type PublicAccount struct {
	ID          string `json:"id"`
	Email       string `json:"email"`
	DisplayName string `json:"displayName"`
	Role        Role   `json:"role"`
	AvatarURL   string `json:"avatarUrl,omitempty"`
}

// Public returns the caller-facing projection of the account.
func (a *Account) Public() PublicAccount {
	return PublicAccount{
		ID:          a.ID,
		Email:       a.Email,
		DisplayName: a.DisplayName,
		Role:        a.Role,
		AvatarURL:   a.AvatarURL,
	}
}

// NormalizeEmail trims surrounding whitespace and lower-cases the address.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}
