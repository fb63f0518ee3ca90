package session

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/dataarchlabs/lab-portal/internal/model"
)

// DefaultTTL is the credential lifetime when none is configured.
const DefaultTTL = 24 * time.Hour

// Credential is a signed token plus the account projection handed to the
// caller right after login.
type Credential struct {
	Token     string              `json:"access_token"`
	ExpiresAt time.Time           `json:"expires_at"`
	Account   model.PublicAccount `json:"user"`
}

// claims is the signed payload: sub is the account id.
type claims struct {
	Email string     `json:"email"`
	Role  model.Role `json:"role"`
	jwt.RegisteredClaims
}

// Issuer signs credentials for resolved accounts.
type Issuer struct {
	key    Key
	ttl    time.Duration
	issuer string
	now    func() time.Time
}

func NewIssuer(key Key, ttl time.Duration, issuer string) *Issuer {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Issuer{key: key, ttl: ttl, issuer: issuer, now: time.Now}
}

// TTL returns the lifetime of issued credentials.
func (i *Issuer) TTL() time.Duration { return i.ttl }

// Issue builds and signs the claim set for acct. It only fails when the key
// was never validated or the account lacks an id or email.
func (i *Issuer) Issue(acct *model.Account) (Credential, error) {
	if !i.key.valid() {
		return Credential{}, ErrWeakKey
	}
	if acct == nil || acct.ID == "" || acct.Email == "" {
		return Credential{}, errors.New("session: account is missing id or email")
	}

	now := i.now().UTC().Truncate(time.Second)
	exp := now.Add(i.ttl)
	c := claims{
		Email: acct.Email,
		Role:  acct.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   acct.ID,
			Issuer:    i.issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
			ID:        uuid.NewString(),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, c).SignedString(i.key.secret)
	if err != nil {
		return Credential{}, err
	}
	return Credential{Token: signed, ExpiresAt: exp, Account: acct.Public()}, nil
}
