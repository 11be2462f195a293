// Package crypto implements server-side password hashing and random token material.
package crypto

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"

	"golang.org/x/crypto/bcrypt"
)

// RandBytes returns n cryptographically secure random bytes.
func RandBytes(n int) ([]byte, error) {
	b := make([]byte, n)
	_, err := rand.Read(b)
	return b, err
}

// RandToken returns n random bytes encoded as unpadded base64url.
func RandToken(n int) (string, error) {
	b, err := RandBytes(n)
	if err != nil {
		return "", fmt.Errorf("random token: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

// Hasher wraps bcrypt with a configured work factor.
type Hasher struct {
	cost int
}

// NewHasher returns a Hasher; costs below bcrypt.DefaultCost are raised to it.
func NewHasher(cost int) *Hasher {
	if cost < bcrypt.DefaultCost {
		cost = bcrypt.DefaultCost
	}
	if cost > bcrypt.MaxCost {
		cost = bcrypt.MaxCost
	}
	return &Hasher{cost: cost}
}

// Cost returns the bcrypt work factor in use.
func (h *Hasher) Cost() int { return h.cost }

// Hash returns the salted bcrypt hash of secret.
func (h *Hasher) Hash(secret []byte) ([]byte, error) {
	return bcrypt.GenerateFromPassword(secret, h.cost)
}

// Verify reports whether secret matches hash.
func (h *Hasher) Verify(secret, hash []byte) bool {
	return bcrypt.CompareHashAndPassword(hash, secret) == nil
}
