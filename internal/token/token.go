// Package token issues and verifies RS256 access tokens.
package token

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/gofrs/uuid/v5"
	"github.com/golang-jwt/jwt/v5"

	"github.com/and161185/jobsmv/internal/blacklist"
	"github.com/and161185/jobsmv/internal/errs"
	"github.com/and161185/jobsmv/internal/keys"
)

// Claims is the access token payload.
type Claims struct {
	EmployerID string   `json:"employer_id"`
	Roles      []string `json:"roles"`
	jwt.RegisteredClaims
}

// HasRole reports whether role is among the token's roles.
func (c *Claims) HasRole(role string) bool { return slices.Contains(c.Roles, role) }

// Employer returns the tenant claim as a UUID.
func (c *Claims) Employer() (uuid.UUID, error) { return uuid.FromString(c.EmployerID) }

// Subject is what an access token asserts about its bearer.
type Subject struct {
	Subject    string
	EmployerID uuid.UUID
	Roles      []string
}

// Issued is a freshly signed access token.
type Issued struct {
	Token     string
	JTI       string
	ExpiresAt time.Time
}

// KeySource yields the current signing keypair.
type KeySource interface {
	LoadOrCreate(ctx context.Context) (*keys.Keypair, error)
}

// Config holds validation parameters shared by issuing and verifying.
type Config struct {
	Audience string
	Issuer   string
	TTL      time.Duration
	Leeway   time.Duration
}

// Codec signs and verifies access tokens and consults the blacklist on verify.
type Codec struct {
	keys KeySource
	bl   blacklist.Blacklist
	cfg  Config
	now  func() time.Time
}

// NewCodec constructs a Codec.
func NewCodec(ks KeySource, bl blacklist.Blacklist, cfg Config) *Codec {
	if cfg.TTL <= 0 {
		cfg.TTL = 15 * time.Minute
	}
	return &Codec{keys: ks, bl: bl, cfg: cfg, now: time.Now}
}

// Issue signs a token for sub valid for ttl (the configured TTL when ttl <= 0).
func (c *Codec) Issue(ctx context.Context, sub Subject, ttl time.Duration) (Issued, error) {
	kp, err := c.keys.LoadOrCreate(ctx)
	if err != nil {
		return Issued{}, err
	}
	if ttl <= 0 {
		ttl = c.cfg.TTL
	}
	// NumericDate has second precision; keep exp strictly after iat.
	if ttl < time.Second {
		ttl = time.Second
	}
	jti, err := newJTI()
	if err != nil {
		return Issued{}, err
	}

	now := c.now().UTC()
	exp := now.Add(ttl)
	claims := Claims{
		EmployerID: sub.EmployerID.String(),
		Roles:      append([]string(nil), sub.Roles...),
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   sub.Subject,
			Audience:  jwt.ClaimStrings{c.cfg.Audience},
			Issuer:    c.cfg.Issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(exp),
			ID:        jti,
		},
	}

	tok := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	tok.Header["kid"] = kp.KID
	signed, err := tok.SignedString(kp.Private)
	if err != nil {
		return Issued{}, fmt.Errorf("sign access token: %w", err)
	}
	return Issued{Token: signed, JTI: jti, ExpiresAt: claims.ExpiresAt.Time}, nil
}

// Verify authenticates raw and returns its claims. Rejections wrap exactly one of
// errs.ErrMalformedCredential, errs.ErrSignatureInvalid, errs.ErrTokenExpired or
// errs.ErrTokenRevoked; any other error is an infrastructure failure.
func (c *Codec) Verify(ctx context.Context, raw string) (*Claims, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, errs.ErrMalformedCredential
	}
	kp, err := c.keys.LoadOrCreate(ctx)
	if err != nil {
		return nil, err
	}

	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodRS256.Alg()}),
		jwt.WithAudience(c.cfg.Audience),
		jwt.WithIssuer(c.cfg.Issuer),
		jwt.WithExpirationRequired(),
		jwt.WithLeeway(c.cfg.Leeway),
		jwt.WithTimeFunc(c.now),
	)
	claims := &Claims{}
	_, err = parser.ParseWithClaims(raw, claims, func(t *jwt.Token) (any, error) {
		kid, _ := t.Header["kid"].(string)
		if kid != kp.KID {
			return nil, fmt.Errorf("unknown kid %q", kid)
		}
		return kp.Public, nil
	})
	if err != nil {
		return nil, classify(err)
	}

	if claims.ID == "" || claims.IssuedAt == nil {
		return nil, fmt.Errorf("%w: missing jti or iat", errs.ErrMalformedCredential)
	}
	if _, err := claims.Employer(); err != nil {
		return nil, fmt.Errorf("%w: bad employer_id", errs.ErrMalformedCredential)
	}

	revoked, err := c.bl.Contains(ctx, claims.ID)
	if err != nil {
		return nil, err
	}
	if revoked {
		return nil, errs.ErrTokenRevoked
	}
	return claims, nil
}

// Peek decodes raw without verifying it. Callers must not trust the result.
func Peek(raw string) (*Claims, error) {
	claims := &Claims{}
	if _, _, err := jwt.NewParser().ParseUnverified(strings.TrimSpace(raw), claims); err != nil {
		return nil, fmt.Errorf("%w: %v", errs.ErrMalformedCredential, err)
	}
	return claims, nil
}

// Revoke blacklists the token described by claims for as long as Verify could
// still accept it, that is until expiry plus the configured leeway.
func (c *Codec) Revoke(ctx context.Context, claims *Claims) error {
	if claims == nil || claims.ExpiresAt == nil {
		return nil
	}
	return c.bl.Add(ctx, claims.ID, claims.ExpiresAt.Time.Add(c.cfg.Leeway))
}

// classify maps jwt parser errors onto the auth taxonomy.
func classify(err error) error {
	var reason error
	switch {
	case errors.Is(err, jwt.ErrTokenMalformed):
		reason = errs.ErrMalformedCredential
	case errors.Is(err, jwt.ErrTokenExpired), errors.Is(err, jwt.ErrTokenNotValidYet):
		// outside the validity window either way
		reason = errs.ErrTokenExpired
	case errors.Is(err, jwt.ErrTokenSignatureInvalid),
		errors.Is(err, jwt.ErrTokenUnverifiable),
		errors.Is(err, jwt.ErrTokenInvalidAudience),
		errors.Is(err, jwt.ErrTokenInvalidIssuer):
		reason = errs.ErrSignatureInvalid
	default:
		reason = errs.ErrMalformedCredential
	}
	return fmt.Errorf("%w: %v", reason, err)
}

func newJTI() (string, error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("jti: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}
