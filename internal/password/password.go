// Package password hashes and verifies account passwords with bcrypt.
package password

import (
	"errors"

	"github.com/jjudge-oj/accountserver/internal/apperr"
	"golang.org/x/crypto/bcrypt"
)

// Cost is the bcrypt work factor. Stored hashes encode their own cost, so
// raising it only affects newly hashed passwords.
const Cost = 10

const maxPasswordBytes = 72

// Hasher derives salted one-way hashes.
type Hasher struct {
	cost int
}

// NewHasher returns a Hasher using Cost.
func NewHasher() *Hasher {
	return &Hasher{cost: Cost}
}

// Hash returns a bcrypt hash of plaintext. Each call draws a fresh salt.
func (h *Hasher) Hash(plaintext string) (string, error) {
	hashed, err := bcrypt.GenerateFromPassword([]byte(plaintext), h.cost)
	if err != nil {
		if errors.Is(err, bcrypt.ErrPasswordTooLong) {
			return "", apperr.Wrap(apperr.KindInvalidInput, "password must be at most 72 bytes", err)
		}
		return "", apperr.Internal(err)
	}
	return string(hashed), nil
}

// Verify reports whether plaintext produced hashed. A mismatch is false
// with a nil error; only an unparseable hash is an error.
func (h *Hasher) Verify(plaintext, hashed string) (bool, error) {
	if _, err := bcrypt.Cost([]byte(hashed)); err != nil {
		return false, apperr.Wrap(apperr.KindMalformedHash, "malformed password hash", err)
	}
	// Hash never accepts these, so nothing stored can match.
	if len(plaintext) > maxPasswordBytes {
		return false, nil
	}
	err := bcrypt.CompareHashAndPassword([]byte(hashed), []byte(plaintext))
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, bcrypt.ErrMismatchedHashAndPassword):
		return false, nil
	default:
		return false, apperr.Wrap(apperr.KindMalformedHash, "malformed password hash", err)
	}
}
