// Package session issues and verifies the signed bearer credentials that
// carry an account's identity and role between requests. Credentials are
// HS256 JWTs; nothing is stored server side, so a credential stays valid
// until it expires even if the account is demoted or disabled in the
// meantime.
package session

import (
	"errors"
	"fmt"
)

// MinKeyLen is the shortest accepted HMAC secret, matching the HS256 block.
const MinKeyLen = 32

// ErrWeakKey is returned by NewKey for secrets shorter than MinKeyLen.
var ErrWeakKey = errors.New("session: signing secret is too short")

// Key is the process wide signing secret. It is validated once at startup
// and shared read-only by the Issuer and the Verifier.
type Key struct {
	secret []byte
}

// NewKey validates secret and returns an immutable Key.
func NewKey(secret string) (Key, error) {
	if len(secret) < MinKeyLen {
		return Key{}, fmt.Errorf("%w: need at least %d bytes, got %d", ErrWeakKey, MinKeyLen, len(secret))
	}
	b := make([]byte, len(secret))
	copy(b, secret)
	return Key{secret: b}, nil
}

func (k Key) valid() bool { return len(k.secret) >= MinKeyLen }
