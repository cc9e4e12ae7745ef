package limiter

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// Querier is the subset of *pgxpool.Pool used by PG.
type Querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PG keeps failure streaks in the login_attempts table.
// A streak older than window restarts at 1; reaching maxFails locks the pair for lockFor.
type PG struct {
	q        Querier
	window   time.Duration
	maxFails int
	lockFor  time.Duration
	now      func() time.Time
}

// NewPG constructs a PostgreSQL-backed limiter.
func NewPG(q Querier, window time.Duration, maxFails int, lockFor time.Duration) *PG {
	if maxFails <= 0 {
		maxFails = 5
	}
	return &PG{q: q, window: window, maxFails: maxFails, lockFor: lockFor, now: time.Now}
}

// Allow reports whether the pair is currently unlocked.
func (l *PG) Allow(ctx context.Context, username string, addrHash []byte) (bool, time.Duration, error) {
	const q = `SELECT locked_until FROM login_attempts WHERE username=$1 AND addr_hash=$2`
	var lockedUntil time.Time
	err := l.q.QueryRow(ctx, q, username, addrHash).Scan(&lockedUntil)
	switch {
	case errors.Is(err, pgx.ErrNoRows):
		return true, 0, nil
	case err != nil:
		return false, 0, err
	}
	if wait := lockedUntil.Sub(l.now()); wait > 0 {
		return false, wait, nil
	}
	return true, 0, nil
}

// Success deletes the streak for the pair.
func (l *PG) Success(ctx context.Context, username string, addrHash []byte) error {
	const q = `DELETE FROM login_attempts WHERE username=$1 AND addr_hash=$2`
	_, err := l.q.Exec(ctx, q, username, addrHash)
	return err
}

// Failure bumps the streak and locks the pair once it reaches maxFails.
func (l *PG) Failure(ctx context.Context, username string, addrHash []byte) (bool, time.Duration, error) {
	now := l.now()
	const q = `
INSERT INTO login_attempts (username, addr_hash, fail_count, last_failed_at)
VALUES ($1, $2, 1, $3)
ON CONFLICT (username, addr_hash) DO UPDATE SET
  fail_count = CASE WHEN login_attempts.last_failed_at < $3 - $4::interval THEN 1 ELSE login_attempts.fail_count + 1 END,
  last_failed_at = $3
RETURNING fail_count`
	var fails int
	if err := l.q.QueryRow(ctx, q, username, addrHash, now, l.window).Scan(&fails); err != nil {
		return false, 0, err
	}
	if fails < l.maxFails {
		return false, 0, nil
	}
	const lock = `UPDATE login_attempts SET locked_until=$3 WHERE username=$1 AND addr_hash=$2`
	if _, err := l.q.Exec(ctx, lock, username, addrHash, now.Add(l.lockFor)); err != nil {
		return false, 0, err
	}
	return true, l.lockFor, nil
}
