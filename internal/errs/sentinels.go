// Package errs contains sentinel errors used across layers for stable error mapping.
package errs

import "errors"

// Storage and validation sentinels.
var (
	// ErrNotFound indicates the requested entity does not exist.
	ErrNotFound = errors.New("not found")

	// ErrAlreadyExists indicates a unique constraint violation (e.g., email taken).
	ErrAlreadyExists = errors.New("already exists")

	// ErrValidation indicates malformed client input.
	ErrValidation = errors.New("validation failed")
)

// Authentication taxonomy. Every rejection carries one of these so the transport
// can report a precise reason.
var (
	// ErrMissingCredential indicates the request carried no bearer token.
	ErrMissingCredential = errors.New("missing credential")

	// ErrMalformedCredential indicates a token that cannot be parsed or lacks required claims.
	ErrMalformedCredential = errors.New("malformed credential")

	// ErrSignatureInvalid indicates a token whose signature, algorithm, key id,
	// audience or issuer does not match this service.
	ErrSignatureInvalid = errors.New("signature invalid")

	// ErrTokenExpired indicates a token past its exp (or before its nbf).
	ErrTokenExpired = errors.New("token expired")

	// ErrTokenRevoked indicates a blacklisted access token.
	ErrTokenRevoked = errors.New("token revoked")

	// ErrInsufficientRole indicates a valid credential without the required role.
	ErrInsufficientRole = errors.New("insufficient role")

	// ErrUnknownTenant indicates the token's employer no longer exists.
	ErrUnknownTenant = errors.New("unknown tenant")

	// ErrInvalidRefreshToken indicates an unknown, expired, revoked or already rotated refresh token.
	ErrInvalidRefreshToken = errors.New("invalid refresh token")

	// ErrInvalidCredentials indicates a wrong email/password pair.
	ErrInvalidCredentials = errors.New("invalid credentials")

	// ErrKeyMaterial indicates the signing keypair could not be loaded or created.
	ErrKeyMaterial = errors.New("key material error")

	// ErrRateLimited indicates the caller exceeded its request budget.
	ErrRateLimited = errors.New("rate limited")
)
