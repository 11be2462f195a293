package postgres

import (
	"context"
	"errors"

	"github.com/gofrs/uuid/v5"
	"github.com/jackc/pgx/v5"

	"github.com/and161185/jobsmv/internal/errs"
	"github.com/and161185/jobsmv/internal/model"
)

// EmployerRepo implements EmployerRepository using PostgreSQL.
type EmployerRepo struct{ db *DB }

// NewEmployerRepo constructs an employer repository.
func NewEmployerRepo(db *DB) *EmployerRepo { return &EmployerRepo{db: db} }

// Create inserts a new employer row.
func (r *EmployerRepo) Create(ctx context.Context, e *model.Employer) error {
	const q = `
INSERT INTO employers (id, company_name, email, password_hash, contact_info)
VALUES ($1, $2, $3, $4, $5)
RETURNING created_at`
	err := r.db.Pool.QueryRow(ctx, q, e.ID, e.CompanyName, e.Email, e.PasswordHash, contactInfo(e)).Scan(&e.CreatedAt)
	if isUniqueViolation(err) {
		return errs.ErrAlreadyExists
	}
	return err
}

// GetByID selects an employer by ID.
func (r *EmployerRepo) GetByID(ctx context.Context, id uuid.UUID) (*model.Employer, error) {
	const q = `
SELECT id, company_name, email, password_hash, contact_info, created_at
FROM employers WHERE id=$1`
	return scanEmployer(r.db.Pool.QueryRow(ctx, q, id))
}

// GetByEmail selects an employer by email.
func (r *EmployerRepo) GetByEmail(ctx context.Context, email string) (*model.Employer, error) {
	const q = `
SELECT id, company_name, email, password_hash, contact_info, created_at
FROM employers WHERE email=$1`
	return scanEmployer(r.db.Pool.QueryRow(ctx, q, email))
}

func scanEmployer(row pgx.Row) (*model.Employer, error) {
	var (
		e       model.Employer
		contact []byte
	)
	if err := row.Scan(&e.ID, &e.CompanyName, &e.Email, &e.PasswordHash, &contact, &e.CreatedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, errs.ErrNotFound
		}
		return nil, err
	}
	if len(contact) > 0 {
		e.ContactInfo = contact
	}
	return &e, nil
}

func contactInfo(e *model.Employer) []byte {
	if len(e.ContactInfo) == 0 {
		return []byte("{}")
	}
	return e.ContactInfo
}
