// Package blacklist records access token ids (jti) revoked before their natural expiry.
package blacklist

import (
	"context"
	"time"
)

// Blacklist is a revocation registry keyed by jti. Entries only need to live
// until the token's own expiry; after that the token is rejected as expired anyway.
type Blacklist interface {
	// Add revokes jti until expiresAt. Already expired tokens may be ignored.
	Add(ctx context.Context, jti string, expiresAt time.Time) error
	// Contains reports whether jti is currently revoked.
	Contains(ctx context.Context, jti string) (bool, error)
}
