// Package refresh issues, rotates and revokes opaque refresh tokens.
//
// Plaintexts are 32 random bytes, base64url encoded, and are returned to the
// caller exactly once. Storage keeps a bcrypt hash plus a short SHA-256 lookup
// prefix that narrows the candidate set before the bcrypt comparison.
package refresh

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/gofrs/uuid/v5"

	"github.com/and161185/jobsmv/internal/crypto"
	"github.com/and161185/jobsmv/internal/errs"
	"github.com/and161185/jobsmv/internal/model"
	"github.com/and161185/jobsmv/internal/repository"
)

const (
	tokenBytes = 32
	prefixLen  = 16
	// bcrypt ignores input past 72 bytes; a base64url plaintext of 32 bytes is 43.
	maxPlaintext = 72
)

// Hasher hashes and verifies token plaintexts.
type Hasher interface {
	Hash(secret []byte) ([]byte, error)
	Verify(secret, hash []byte) bool
}

// Rotation is the result of a successful rotation.
type Rotation struct {
	Plaintext  string
	EmployerID uuid.UUID
	ExpiresAt  time.Time
}

// Store is the refresh token lifecycle service.
type Store struct {
	repo   repository.RefreshTokenRepository
	hasher Hasher
	ttl    time.Duration
	now    func() time.Time
}

// NewStore constructs a Store issuing tokens valid for ttl.
func NewStore(repo repository.RefreshTokenRepository, h Hasher, ttl time.Duration) *Store {
	if ttl <= 0 {
		ttl = 30 * 24 * time.Hour
	}
	return &Store{repo: repo, hasher: h, ttl: ttl, now: time.Now}
}

// Lookup returns the index prefix stored alongside the hash of plaintext.
func Lookup(plaintext string) string {
	sum := sha256.Sum256([]byte(plaintext))
	return hex.EncodeToString(sum[:])[:prefixLen]
}

// Issue creates and persists a new token for employerID and returns its plaintext.
func (s *Store) Issue(ctx context.Context, employerID uuid.UUID) (string, error) {
	plain, rec, err := s.mint(employerID)
	if err != nil {
		return "", err
	}
	if err := s.repo.Create(ctx, rec); err != nil {
		return "", fmt.Errorf("store refresh token: %w", err)
	}
	return plain, nil
}

// Rotate consumes plaintext and issues its successor for the same employer.
// Unknown, expired, revoked or already rotated tokens yield errs.ErrInvalidRefreshToken.
func (s *Store) Rotate(ctx context.Context, plaintext string) (Rotation, error) {
	if !wellFormed(plaintext) {
		return Rotation{}, errs.ErrInvalidRefreshToken
	}
	var (
		nextPlain string
		nextRec   *model.RefreshToken
	)
	successor := func(old model.RefreshToken) (*model.RefreshToken, error) {
		p, rec, err := s.mint(old.EmployerID)
		if err != nil {
			return nil, err
		}
		nextPlain, nextRec = p, rec
		return rec, nil
	}

	old, err := s.repo.Rotate(ctx, Lookup(plaintext), s.now().UTC(), s.matcher(plaintext), successor)
	if err != nil {
		if errors.Is(err, errs.ErrInvalidRefreshToken) {
			return Rotation{}, err
		}
		return Rotation{}, fmt.Errorf("rotate refresh token: %w", err)
	}
	return Rotation{Plaintext: nextPlain, EmployerID: old.EmployerID, ExpiresAt: nextRec.ExpiresAt}, nil
}

// Revoke marks the token revoked. Unknown or already unusable tokens are not an error.
func (s *Store) Revoke(ctx context.Context, plaintext string) error {
	if !wellFormed(plaintext) {
		return nil
	}
	err := s.repo.Revoke(ctx, Lookup(plaintext), s.now().UTC(), s.matcher(plaintext))
	if err != nil && !errors.Is(err, errs.ErrInvalidRefreshToken) {
		return fmt.Errorf("revoke refresh token: %w", err)
	}
	return nil
}

// Verify reports whether hash was produced from plaintext.
func (s *Store) Verify(plaintext string, hash []byte) bool {
	return s.hasher.Verify([]byte(plaintext), hash)
}

// Purge deletes records that expired more than olderThan ago.
func (s *Store) Purge(ctx context.Context, olderThan time.Duration) (int64, error) {
	n, err := s.repo.Purge(ctx, s.now().UTC().Add(-olderThan))
	if err != nil {
		return 0, fmt.Errorf("purge refresh tokens: %w", err)
	}
	return n, nil
}

// Run purges expired records every interval until ctx is done.
func (s *Store) Run(ctx context.Context, every time.Duration, onPurge func(int64, error)) {
	t := time.NewTicker(every)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			n, err := s.Purge(ctx, 0)
			if onPurge != nil {
				onPurge(n, err)
			}
		}
	}
}

func (s *Store) mint(employerID uuid.UUID) (string, *model.RefreshToken, error) {
	plain, err := crypto.RandToken(tokenBytes)
	if err != nil {
		return "", nil, err
	}
	hash, err := s.hasher.Hash([]byte(plain))
	if err != nil {
		return "", nil, fmt.Errorf("hash refresh token: %w", err)
	}
	id, err := uuid.NewV4()
	if err != nil {
		return "", nil, err
	}
	now := s.now().UTC()
	return plain, &model.RefreshToken{
		ID:           id,
		EmployerID:   employerID,
		TokenHash:    hash,
		LookupPrefix: Lookup(plain),
		ExpiresAt:    now.Add(s.ttl),
		CreatedAt:    now,
	}, nil
}

func (s *Store) matcher(plaintext string) repository.RefreshMatcher {
	return func(hash []byte) bool { return s.hasher.Verify([]byte(plaintext), hash) }
}

func wellFormed(plaintext string) bool {
	return plaintext != "" && len(plaintext) <= maxPlaintext
}
