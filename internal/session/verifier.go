package session

import (
	"errors"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/dataarchlabs/lab-portal/internal/model"
)

// ErrUnauthenticated covers every reason a credential is rejected. The
// cause is deliberately not exposed to callers.
var ErrUnauthenticated = errors.New("authentication required")

// Verifier checks credentials produced by an Issuer sharing the same Key.
type Verifier struct {
	key    Key
	issuer string
	now    func() time.Time
}

func NewVerifier(key Key, issuer string) *Verifier {
	return &Verifier{key: key, issuer: issuer, now: time.Now}
}

// Verify validates the signature, algorithm, expiry and shape of token and
// returns the principal it carries. It never consults the account store.
func (v *Verifier) Verify(token string) (*model.Principal, error) {
	token = strings.TrimSpace(token)
	if token == "" || !v.key.valid() {
		return nil, ErrUnauthenticated
	}

	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithIssuedAt(),
		jwt.WithTimeFunc(v.now),
	}
	if v.issuer != "" {
		opts = append(opts, jwt.WithIssuer(v.issuer))
	}

	var c claims
	tok, err := jwt.ParseWithClaims(token, &c, func(*jwt.Token) (any, error) {
		return v.key.secret, nil
	}, opts...)
	if err != nil || !tok.Valid {
		return nil, ErrUnauthenticated
	}
	if c.Subject == "" || c.Email == "" || !c.Role.Valid() {
		return nil, ErrUnauthenticated
	}
	return &model.Principal{AccountID: c.Subject, Email: c.Email, Role: c.Role}, nil
}
