package limiter

import (
	"context"
	"crypto/sha256"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PG is a PostgreSQL-backed fixed-window limiter. Keys are stored hashed.
type PG struct {
	pool pgxQuerier
	now  func() time.Time
}

type pgxQuerier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// NewPG constructs a PostgreSQL-backed limiter.
func NewPG(pool *pgxpool.Pool) *PG {
	return NewPGWithQuerier(pool)
}

// NewPGWithQuerier constructs a PostgreSQL-backed limiter.
func NewPGWithQuerier(q pgxQuerier) *PG {
	return &PG{pool: q, now: time.Now}
}

// HashKey returns a stable hash for a limiter key to avoid storing raw addresses.
func HashKey(key string) []byte {
	h := sha256.Sum256([]byte(key))
	return h[:]
}

// Allow implements Limiter.
func (l *PG) Allow(ctx context.Context, key string, rule Rule) (bool, time.Duration, error) {
	const q = `
INSERT INTO rate_limits (key_hash, window_start, hits)
VALUES ($1, now(), 1)
ON CONFLICT (key_hash) DO UPDATE
SET
  hits = CASE WHEN now() - rate_limits.window_start > $2::interval THEN 1 ELSE rate_limits.hits + 1 END,
  window_start = CASE WHEN now() - rate_limits.window_start > $2::interval THEN now() ELSE rate_limits.window_start END
RETURNING hits, window_start`
	var (
		hits  int
		start time.Time
	)
	if err := l.pool.QueryRow(ctx, q, HashKey(key), rule.Window).Scan(&hits, &start); err != nil {
		return false, 0, err
	}
	if hits <= rule.Limit {
		return true, 0, nil
	}
	retry := start.Add(rule.Window).Sub(l.now())
	if retry < 0 {
		retry = 0
	}
	return false, retry, nil
}

// Purge drops windows that ended before the cutoff.
func (l *PG) Purge(ctx context.Context, before time.Time) error {
	_, err := l.pool.Exec(ctx, `DELETE FROM rate_limits WHERE window_start < $1`, before)
	return err
}
