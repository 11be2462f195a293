// Package memory implements the repository interfaces in process memory.
// It backs the server when no database is configured and the service tests.
package memory

import (
	"context"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/gofrs/uuid/v5"

	"github.com/and161185/jobsmv/internal/errs"
	"github.com/and161185/jobsmv/internal/model"
	"github.com/and161185/jobsmv/internal/repository"
)

// Employers is an in-memory EmployerRepository.
type Employers struct {
	mu   sync.RWMutex
	byID map[uuid.UUID]model.Employer
}

// NewEmployers returns an empty store.
func NewEmployers() *Employers {
	return &Employers{byID: make(map[uuid.UUID]model.Employer)}
}

// Create implements repository.EmployerRepository.
func (s *Employers) Create(_ context.Context, e *model.Employer) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, cur := range s.byID {
		if strings.EqualFold(cur.Email, e.Email) {
			return errs.ErrAlreadyExists
		}
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}
	s.byID[e.ID] = *e
	return nil
}

// GetByID implements repository.EmployerRepository.
func (s *Employers) GetByID(_ context.Context, id uuid.UUID) (*model.Employer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.byID[id]
	if !ok {
		return nil, errs.ErrNotFound
	}
	return &e, nil
}

// GetByEmail implements repository.EmployerRepository.
func (s *Employers) GetByEmail(_ context.Context, email string) (*model.Employer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, e := range s.byID {
		if strings.EqualFold(e.Email, email) {
			return &e, nil
		}
	}
	return nil, errs.ErrNotFound
}

// RefreshTokens is an in-memory RefreshTokenRepository.
type RefreshTokens struct {
	mu   sync.Mutex
	rows map[uuid.UUID]model.RefreshToken
}

// NewRefreshTokens returns an empty store.
func NewRefreshTokens() *RefreshTokens {
	return &RefreshTokens{rows: make(map[uuid.UUID]model.RefreshToken)}
}

// Create implements repository.RefreshTokenRepository.
func (s *RefreshTokens) Create(_ context.Context, t *model.RefreshToken) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.put(*t)
	return nil
}

func (s *RefreshTokens) put(t model.RefreshToken) {
	if t.CreatedAt.IsZero() {
		t.CreatedAt = time.Now().UTC()
	}
	t.TokenHash = slices.Clone(t.TokenHash)
	s.rows[t.ID] = t
}

// Rotate implements repository.RefreshTokenRepository. Candidate selection and
// hash comparison run without the lock; only the revoke is a compare-and-set,
// mirroring the row-level race of the SQL backend.
func (s *RefreshTokens) Rotate(
	_ context.Context, lookup string, now time.Time,
	match repository.RefreshMatcher, successor repository.RefreshSuccessor,
) (model.RefreshToken, error) {
	old, err := s.claim(lookup, now, match)
	if err != nil {
		return model.RefreshToken{}, err
	}
	next, err := successor(old)
	if err != nil {
		s.mu.Lock()
		s.rows[old.ID] = unrevoke(s.rows[old.ID])
		s.mu.Unlock()
		return model.RefreshToken{}, err
	}
	s.mu.Lock()
	s.put(*next)
	s.mu.Unlock()
	return old, nil
}

// Revoke implements repository.RefreshTokenRepository.
func (s *RefreshTokens) Revoke(_ context.Context, lookup string, now time.Time, match repository.RefreshMatcher) error {
	_, err := s.claim(lookup, now, match)
	return err
}

// Purge implements repository.RefreshTokenRepository.
func (s *RefreshTokens) Purge(_ context.Context, before time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for id, t := range s.rows {
		if t.ExpiresAt.Before(before) {
			delete(s.rows, id)
			n++
		}
	}
	return n, nil
}

// Get returns a copy of the record with id.
func (s *RefreshTokens) Get(id uuid.UUID) (model.RefreshToken, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.rows[id]
	return t, ok
}

// Len returns the number of stored records.
func (s *RefreshTokens) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.rows)
}

func (s *RefreshTokens) claim(lookup string, now time.Time, match repository.RefreshMatcher) (model.RefreshToken, error) {
	s.mu.Lock()
	var cands []model.RefreshToken
	for _, t := range s.rows {
		if t.LookupPrefix == lookup && t.Usable(now) {
			cands = append(cands, t)
		}
	}
	s.mu.Unlock()

	for _, c := range cands {
		if !match(c.TokenHash) {
			continue
		}
		s.mu.Lock()
		cur, ok := s.rows[c.ID]
		if !ok || cur.Revoked {
			s.mu.Unlock()
			return model.RefreshToken{}, errs.ErrInvalidRefreshToken
		}
		cur.Revoked = true
		cur.LastUsedAt = &now
		s.rows[c.ID] = cur
		s.mu.Unlock()
		return cur, nil
	}
	return model.RefreshToken{}, errs.ErrInvalidRefreshToken
}

func unrevoke(t model.RefreshToken) model.RefreshToken {
	t.Revoked = false
	t.LastUsedAt = nil
	return t
}

// Jobs is an in-memory JobRepository.
type Jobs struct {
	mu   sync.RWMutex
	jobs []model.Job
}

// NewJobs returns an empty store.
func NewJobs() *Jobs { return &Jobs{} }

// Add stores job postings; used for seeding.
func (s *Jobs) Add(jobs ...model.Job) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.jobs = append(s.jobs, jobs...)
	slices.SortFunc(s.jobs, compareJobs)
}

// List implements repository.JobRepository.
func (s *Jobs) List(_ context.Context, f model.JobFilter, after *uuid.UUID, limit int) ([]model.Job, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	start := 0
	if after != nil {
		i := slices.IndexFunc(s.jobs, func(j model.Job) bool { return j.ID == *after })
		if i < 0 {
			return nil, nil
		}
		start = i + 1
	}
	out := make([]model.Job, 0, limit)
	for _, j := range s.jobs[start:] {
		if len(out) == limit {
			break
		}
		if f.EmployerID != nil && j.EmployerID != *f.EmployerID {
			continue
		}
		if f.Status != nil && j.Status != *f.Status {
			continue
		}
		out = append(out, j)
	}
	return out, nil
}

// compareJobs orders by (created_at, id) descending.
func compareJobs(a, b model.Job) int {
	if c := b.CreatedAt.Compare(a.CreatedAt); c != 0 {
		return c
	}
	return strings.Compare(b.ID.String(), a.ID.String())
}

var (
	_ repository.EmployerRepository     = (*Employers)(nil)
	_ repository.RefreshTokenRepository = (*RefreshTokens)(nil)
	_ repository.JobRepository          = (*Jobs)(nil)
)
