// Package repository defines storage interfaces implemented by concrete backends.
package repository

import (
	"context"
	"time"

	"github.com/gofrs/uuid/v5"

	"github.com/and161185/jobsmv/internal/model"
)

// EmployerRepository stores tenant accounts.
type EmployerRepository interface {
	// Create inserts a new employer; a taken email yields errs.ErrAlreadyExists.
	Create(ctx context.Context, e *model.Employer) error
	// GetByID loads an employer by ID.
	GetByID(ctx context.Context, id uuid.UUID) (*model.Employer, error)
	// GetByEmail loads an employer by email.
	GetByEmail(ctx context.Context, email string) (*model.Employer, error)
}

// RefreshMatcher reports whether a stored hash belongs to the presented token.
type RefreshMatcher func(hash []byte) bool

// RefreshSuccessor builds the record that replaces old during a rotation.
type RefreshSuccessor func(old model.RefreshToken) (*model.RefreshToken, error)

// RefreshTokenRepository stores hashed refresh tokens.
type RefreshTokenRepository interface {
	// Create persists a new record.
	Create(ctx context.Context, t *model.RefreshToken) error

	// Rotate atomically finds the usable record with lookup prefix whose hash
	// satisfies match, revokes it with a compare-and-set on the revoked flag,
	// and inserts the record built by successor. It returns the revoked record
	// or errs.ErrInvalidRefreshToken.
	Rotate(ctx context.Context, lookup string, now time.Time, match RefreshMatcher, successor RefreshSuccessor) (model.RefreshToken, error)

	// Revoke marks the matching usable record revoked; errs.ErrInvalidRefreshToken if none.
	Revoke(ctx context.Context, lookup string, now time.Time, match RefreshMatcher) error

	// Purge deletes records that expired before the cutoff.
	Purge(ctx context.Context, before time.Time) (int64, error)
}

// JobRepository lists job postings in newest-first keyset order.
type JobRepository interface {
	// List returns at most limit jobs matching f, ordered by (created_at, id)
	// descending, strictly after the job with id after when it is set.
	List(ctx context.Context, f model.JobFilter, after *uuid.UUID, limit int) ([]model.Job, error)
}
