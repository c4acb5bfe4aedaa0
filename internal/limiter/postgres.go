package limiter

import (
	"context"
	"crypto/sha256"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// Querier is the subset of *pgxpool.Pool used by PGLockout.
type Querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PGLockout counts failed admin logins per (username, client hash) in PostgreSQL.
// maxFails failures inside window lock the pair out for lockFor.
type PGLockout struct {
	db       Querier
	window   time.Duration
	maxFails int
	lockFor  time.Duration
	now      func() time.Time
}

// NewPGLockout constructs a lockout over db.
func NewPGLockout(db Querier, window time.Duration, maxFails int, lockFor time.Duration) *PGLockout {
	if maxFails < 1 {
		maxFails = 1
	}
	return &PGLockout{db: db, window: window, maxFails: maxFails, lockFor: lockFor, now: time.Now}
}

// HashIP returns sha256(ip); raw client addresses are never stored.
func HashIP(ip string) []byte {
	h := sha256.Sum256([]byte(ip))
	return h[:]
}

const selectLockedUntil = `SELECT locked_until FROM admin_login_attempts WHERE username = $1 AND client_hash = $2`

// Allow reports whether a login attempt may proceed and, if not, how long until it may.
func (l *PGLockout) Allow(ctx context.Context, username string, clientHash []byte) (bool, time.Duration, error) {
	var lockedUntil time.Time
	err := l.db.QueryRow(ctx, selectLockedUntil, username, clientHash).Scan(&lockedUntil)
	if errors.Is(err, pgx.ErrNoRows) {
		return true, 0, nil
	}
	if err != nil {
		return false, 0, err
	}
	if now := l.now(); lockedUntil.After(now) {
		return false, lockedUntil.Sub(now), nil
	}
	return true, 0, nil
}

const deleteAttempts = `DELETE FROM admin_login_attempts WHERE username = $1 AND client_hash = $2`

// Success forgets prior failures for the pair.
func (l *PGLockout) Success(ctx context.Context, username string, clientHash []byte) error {
	_, err := l.db.Exec(ctx, deleteAttempts, username, clientHash)
	return err
}

// One statement so concurrent failures cannot both slip under the threshold.
// $3 now, $4 window start cutoff, $5 max failures, $6 lock expiry.
const recordFailure = `
INSERT INTO admin_login_attempts AS a (username, client_hash, failures, window_start, locked_until)
VALUES ($1, $2, 1, $3, CASE WHEN 1 >= $5 THEN $6 ELSE 'epoch'::timestamptz END)
ON CONFLICT (username, client_hash) DO UPDATE SET
  failures     = CASE WHEN a.window_start <= $4 THEN 1 ELSE a.failures + 1 END,
  window_start = CASE WHEN a.window_start <= $4 THEN $3 ELSE a.window_start END,
  locked_until = CASE
    WHEN (CASE WHEN a.window_start <= $4 THEN 1 ELSE a.failures + 1 END) >= $5 THEN $6
    ELSE a.locked_until END
RETURNING failures, locked_until`

// Failure records a failed attempt and reports whether the pair is now locked out.
func (l *PGLockout) Failure(ctx context.Context, username string, clientHash []byte) (bool, time.Duration, error) {
	now := l.now()
	var (
		failures    int
		lockedUntil time.Time
	)
	err := l.db.QueryRow(ctx, recordFailure,
		username, clientHash, now, now.Add(-l.window), l.maxFails, now.Add(l.lockFor),
	).Scan(&failures, &lockedUntil)
	if err != nil {
		return false, 0, err
	}
	if lockedUntil.After(now) {
		return true, lockedUntil.Sub(now), nil
	}
	return false, 0, nil
}
