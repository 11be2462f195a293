package postgres

import (
	"context"
	"fmt"
	"strings"

	"github.com/gofrs/uuid/v5"

	"github.com/and161185/jobsmv/internal/model"
)

// JobRepo implements JobRepository using PostgreSQL.
type JobRepo struct{ db *DB }

// NewJobRepo constructs a job repository.
func NewJobRepo(db *DB) *JobRepo { return &JobRepo{db: db} }

// List returns jobs newest first. The cursor carries only the anchor id; its
// sort key is resolved here, so an anchor that no longer exists yields no rows.
func (r *JobRepo) List(ctx context.Context, f model.JobFilter, after *uuid.UUID, limit int) ([]model.Job, error) {
	var (
		where []string
		args  []any
	)
	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}
	if f.EmployerID != nil {
		where = append(where, "employer_id="+arg(*f.EmployerID))
	}
	if f.Status != nil {
		where = append(where, "status="+arg(string(*f.Status)))
	}
	if after != nil {
		where = append(where, "(created_at, id) < (SELECT created_at, id FROM jobs WHERE id="+arg(*after)+")")
	}

	q := "SELECT id, employer_id, title, location, status, created_at FROM jobs"
	if len(where) > 0 {
		q += " WHERE " + strings.Join(where, " AND ")
	}
	q += " ORDER BY created_at DESC, id DESC LIMIT " + arg(limit)

	rows, err := r.db.Pool.Query(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]model.Job, 0, limit)
	for rows.Next() {
		var (
			j      model.Job
			status string
		)
		if err = rows.Scan(&j.ID, &j.EmployerID, &j.Title, &j.Location, &status, &j.CreatedAt); err != nil {
			return nil, err
		}
		j.Status = model.JobStatus(status)
		out = append(out, j)
	}
	return out, rows.Err()
}
