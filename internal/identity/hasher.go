package identity

import (
	"crypto/hmac"
	"crypto/sha256"
	"errors"
)

// ErrMissingHashKey is returned when the hasher is constructed without a key.
// Callers must treat this as fatal: running with identity hashing disabled
// would silently break every future lookup.
var ErrMissingHashKey = errors.New("identity hash key is not configured")

// Hasher derives the one-way lookup hashes stored alongside raw identifiers.
// It is an explicitly constructed, passed-in service (no package-level cached
// state) so tests can substitute a fixed key.
type Hasher struct {
	key []byte
}

// NewHasher builds a Hasher from the configured secret key.
func NewHasher(key string) (*Hasher, error) {
	if key == "" {
		return nil, ErrMissingHashKey
	}
	return &Hasher{key: []byte(key)}, nil
}

// HashEmail hashes a normalized (trimmed, lowercased) email.
func (h *Hasher) HashEmail(normalizedEmail string) []byte {
	return h.sum("email:" + normalizedEmail)
}

// HashPhone hashes an E.164 phone number.
func (h *Hasher) HashPhone(e164 string) []byte {
	return h.sum("phone:" + e164)
}

func (h *Hasher) sum(s string) []byte {
	mac := hmac.New(sha256.New, h.key)
	mac.Write([]byte(s))
	return mac.Sum(nil)
}
