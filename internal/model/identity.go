package model

import "strings"

// ExternalProfile is the identity data handed back by a login provider after
// the user authenticated with it.  It holds facts only; linking and account
// creation decisions belong to the identity resolver.  Emails must contain
// provider-verified addresses only, the preferred one first.
type ExternalProfile struct {
	Provider    string   // e.g. "google"
	ExternalID  string   // provider-scoped subject
	Emails      []string // verified email candidates
	DisplayName string   // may be empty
	AvatarURLs  []string // avatar candidates, best first
}

// PrimaryEmail returns the first non-empty email candidate, normalized.
func (p *ExternalProfile) PrimaryEmail() string {
	for _, e := range p.Emails {
		if n := NormalizeEmail(e); n != "" {
			return n
		}
	}
	return ""
}

// PrimaryAvatar returns the first non-empty avatar candidate.
func (p *ExternalProfile) PrimaryAvatar() string {
	for _, u := range p.AvatarURLs {
		if u = strings.TrimSpace(u); u != "" {
			return u
		}
	}
	return ""
}

// Principal is the verified identity extracted from a session credential for
// the duration of a single request.  It is never cached across requests.
type Principal struct {
	AccountID string
	Email     string
	Role      Role
}

// HasRole reports whether the principal carries the given role.
func (p *Principal) HasRole(r Role) bool {
	return p != nil && p.Role == r
}
