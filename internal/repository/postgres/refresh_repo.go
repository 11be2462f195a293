package postgres

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/and161185/jobsmv/internal/errs"
	"github.com/and161185/jobsmv/internal/model"
	"github.com/and161185/jobsmv/internal/repository"
)

// RefreshRepo implements RefreshTokenRepository using PostgreSQL.
type RefreshRepo struct{ db *DB }

// NewRefreshRepo constructs a refresh token repository.
func NewRefreshRepo(db *DB) *RefreshRepo { return &RefreshRepo{db: db} }

const (
	insertRefresh = `
INSERT INTO refresh_tokens (id, employer_id, token_hash, lookup_prefix, expires_at, revoked)
VALUES ($1, $2, $3, $4, $5, 0)`
	selectCandidates = `
SELECT id, employer_id, token_hash, lookup_prefix, expires_at, created_at
FROM refresh_tokens
WHERE lookup_prefix=$1 AND revoked=0 AND expires_at > $2`
	revokeRefresh = `
UPDATE refresh_tokens SET revoked=1, last_used_at=$2
WHERE id=$1 AND revoked=0`
)

// Create inserts a new refresh token row.
func (r *RefreshRepo) Create(ctx context.Context, t *model.RefreshToken) error {
	_, err := r.db.Pool.Exec(ctx, insertRefresh, t.ID, t.EmployerID, string(t.TokenHash), t.LookupPrefix, t.ExpiresAt)
	return err
}

// Rotate revokes the matching record and inserts its successor in one transaction.
// The revoked=0 predicate on the update makes concurrent rotations of the same
// record race on a single row lock; only one sees an affected row.
func (r *RefreshRepo) Rotate(
	ctx context.Context, lookup string, now time.Time,
	match repository.RefreshMatcher, successor repository.RefreshSuccessor,
) (old model.RefreshToken, err error) {
	err = r.db.inTx(ctx, func(tx pgx.Tx) error {
		found, err := claim(ctx, tx, lookup, now, match)
		if err != nil {
			return err
		}
		next, err := successor(found)
		if err != nil {
			return err
		}
		if _, err := tx.Exec(ctx, insertRefresh, next.ID, next.EmployerID, string(next.TokenHash), next.LookupPrefix, next.ExpiresAt); err != nil {
			return err
		}
		old = found
		return nil
	})
	return old, err
}

// Revoke marks the matching record revoked.
func (r *RefreshRepo) Revoke(ctx context.Context, lookup string, now time.Time, match repository.RefreshMatcher) error {
	return r.db.inTx(ctx, func(tx pgx.Tx) error {
		_, err := claim(ctx, tx, lookup, now, match)
		return err
	})
}

// Purge deletes rows that expired before the cutoff.
func (r *RefreshRepo) Purge(ctx context.Context, before time.Time) (int64, error) {
	tag, err := r.db.Pool.Exec(ctx, `DELETE FROM refresh_tokens WHERE expires_at < $1`, before)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

// claim finds the usable record whose hash satisfies match and revokes it.
func claim(ctx context.Context, tx pgx.Tx, lookup string, now time.Time, match repository.RefreshMatcher) (model.RefreshToken, error) {
	rows, err := tx.Query(ctx, selectCandidates, lookup, now)
	if err != nil {
		return model.RefreshToken{}, err
	}
	var cands []model.RefreshToken
	for rows.Next() {
		var (
			t    model.RefreshToken
			hash string
		)
		if err := rows.Scan(&t.ID, &t.EmployerID, &hash, &t.LookupPrefix, &t.ExpiresAt, &t.CreatedAt); err != nil {
			rows.Close()
			return model.RefreshToken{}, err
		}
		t.TokenHash = []byte(hash)
		cands = append(cands, t)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return model.RefreshToken{}, err
	}

	for _, c := range cands {
		if !match(c.TokenHash) {
			continue
		}
		tag, err := tx.Exec(ctx, revokeRefresh, c.ID, now)
		if err != nil {
			return model.RefreshToken{}, err
		}
		if tag.RowsAffected() == 0 {
			// lost the race to a concurrent rotation
			return model.RefreshToken{}, errs.ErrInvalidRefreshToken
		}
		c.Revoked = true
		c.LastUsedAt = &now
		return c, nil
	}
	return model.RefreshToken{}, errs.ErrInvalidRefreshToken
}
