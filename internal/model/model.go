// Package model defines domain entities used by services and repositories.
package model

import (
	"encoding/json"
	"time"

	"github.com/gofrs/uuid/v5"
)

// RoleEmployerAdmin is granted to every employer account on register/login.
const RoleEmployerAdmin = "employer_admin"

// Employer is a tenant of the job board. The password hash is never serialized.
type Employer struct {
	ID           uuid.UUID       `json:"id"`
	CompanyName  string          `json:"company_name"`
	Email        string          `json:"email"`
	PasswordHash []byte          `json:"-"`
	ContactInfo  json.RawMessage `json:"contact_info,omitempty"`
	CreatedAt    time.Time       `json:"created_at"`
}

// RefreshToken is the persisted form of an opaque refresh token.
// Only the bcrypt hash and a short lookup prefix of the plaintext are stored.
type RefreshToken struct {
	ID           uuid.UUID
	EmployerID   uuid.UUID
	TokenHash    []byte
	LookupPrefix string
	ExpiresAt    time.Time
	Revoked      bool
	CreatedAt    time.Time
	LastUsedAt   *time.Time
}

// Usable reports whether the record may still authorize a rotation at now.
func (t RefreshToken) Usable(now time.Time) bool {
	return !t.Revoked && now.Before(t.ExpiresAt)
}

// JobStatus is the lifecycle state of a job posting.
type JobStatus string

// Job statuses.
const (
	JobDraft     JobStatus = "draft"
	JobPublished JobStatus = "published"
	JobClosed    JobStatus = "closed"
)

// Job is a posting listed by an employer.
type Job struct {
	ID         uuid.UUID `json:"id"`
	EmployerID uuid.UUID `json:"employer_id"`
	Title      string    `json:"title"`
	Location   string    `json:"location,omitempty"`
	Status     JobStatus `json:"status"`
	CreatedAt  time.Time `json:"created_at"`
}

// JobFilter narrows a job listing.
type JobFilter struct {
	EmployerID *uuid.UUID
	Status     *JobStatus
}

// Tokens collects an issued access/refresh pair.
type Tokens struct {
	AccessToken  string
	RefreshToken string
	EmployerID   uuid.UUID
	ExpiresAt    time.Time // access token expiry (for diagnostics)
}
