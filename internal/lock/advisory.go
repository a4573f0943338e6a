// Package lock provides advisory locks that keep two copies from writing into
// the same destination database at the same time.
package lock

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/multierr"

	"github.com/dbsmedya/dcp/internal/sqlutil"
)

// ErrLockTimeout is returned when lock acquisition times out because
// another instance is holding the lock.
var ErrLockTimeout = errors.New("lock acquisition timed out")

// Common timeout values for lock acquisition (in seconds).
const (
	// TimeoutImmediate returns immediately if lock cannot be acquired (no wait).
	TimeoutImmediate = 0

	// TimeoutShort is suitable for fast-failing duplicate copy detection.
	TimeoutShort = 1

	// TimeoutMedium provides a reasonable wait for transient conflicts.
	TimeoutMedium = 10

	// TimeoutLong allows extended waiting for lock acquisition.
	TimeoutLong = 60
)

// pollInterval paces pg_try_advisory_lock retries while a timeout runs.
var pollInterval = 100 * time.Millisecond

// AdvisoryLock is a named, session-scoped database lock. MySQL uses
// GET_LOCK(), PostgreSQL pg_try_advisory_lock() on a hash of the name.
// SQLite has no server to coordinate through, so locking always succeeds.
//
// Both server locks belong to a session, so the lock pins one connection
// from the pool for as long as it is held.
type AdvisoryLock struct {
	db       *sql.DB
	dialect  sqlutil.Dialect
	lockName string
	conn     *sql.Conn
	held     bool
}

// NewAdvisoryLock creates a new advisory lock with the given name.
// The lock is not acquired until AcquireLock is called.
func NewAdvisoryLock(db *sql.DB, dialect sqlutil.Dialect, lockName string) *AdvisoryLock {
	return &AdvisoryLock{
		db:       db,
		dialect:  dialect,
		lockName: lockName,
	}
}

// AcquireLock attempts to acquire the lock, waiting up to timeoutSeconds.
// Returns true if the lock was acquired, false if timeout was reached.
// Returns an error if the database query fails.
//
// MySQL GET_LOCK() return values:
//   - 1: Lock was obtained successfully
//   - 0: Timeout was reached without obtaining the lock
//   - NULL: An error occurred (e.g., out of memory, thread killed)
func (a *AdvisoryLock) AcquireLock(ctx context.Context, timeoutSeconds int) (bool, error) {
	if a.held {
		return true, nil
	}
	if a.dialect == sqlutil.SQLite {
		a.held = true
		return true, nil
	}
	if a.db == nil {
		return false, fmt.Errorf("database is nil")
	}

	if a.conn == nil {
		conn, err := a.db.Conn(ctx)
		if err != nil {
			return false, fmt.Errorf("failed to reserve lock connection: %w", err)
		}
		a.conn = conn
	}

	var acquired bool
	var err error
	if a.dialect == sqlutil.Postgres {
		acquired, err = a.acquirePostgres(ctx, timeoutSeconds)
	} else {
		acquired, err = a.acquireMySQL(ctx, timeoutSeconds)
	}

	if err != nil || !acquired {
		a.closeConn()
		return false, err
	}
	a.held = true
	return true, nil
}

func (a *AdvisoryLock) acquireMySQL(ctx context.Context, timeoutSeconds int) (bool, error) {
	var result sql.NullInt64
	err := a.conn.QueryRowContext(ctx, "SELECT GET_LOCK(?, ?)", a.lockName, timeoutSeconds).Scan(&result)
	if err != nil {
		return false, fmt.Errorf("failed to execute GET_LOCK: %w", err)
	}

	if !result.Valid {
		return false, fmt.Errorf("GET_LOCK returned NULL for lock %q (possible database error)", a.lockName)
	}

	switch result.Int64 {
	case 1:
		return true, nil
	case 0:
		return false, nil
	default:
		return false, fmt.Errorf("unexpected GET_LOCK return value: %d", result.Int64)
	}
}

func (a *AdvisoryLock) acquirePostgres(ctx context.Context, timeoutSeconds int) (bool, error) {
	deadline := time.Now().Add(time.Duration(timeoutSeconds) * time.Second)
	for {
		var ok bool
		err := a.conn.QueryRowContext(ctx, "SELECT pg_try_advisory_lock(hashtext($1))", a.lockName).Scan(&ok)
		if err != nil {
			return false, fmt.Errorf("failed to execute pg_try_advisory_lock: %w", err)
		}
		if ok {
			return true, nil
		}
		if !time.Now().Before(deadline) {
			return false, nil
		}

		select {
		case <-ctx.Done():
			return false, ctx.Err()
		case <-time.After(pollInterval):
		}
	}
}

// ReleaseLock releases the advisory lock and returns its connection to the
// pool. Returns true if the server confirmed the release, false if the lock
// was not held.
//
// MySQL RELEASE_LOCK() return values:
//   - 1: Lock was released successfully
//   - 0: Lock was not established by this thread (not held)
//   - NULL: Named lock did not exist
func (a *AdvisoryLock) ReleaseLock(ctx context.Context) (bool, error) {
	if !a.held {
		return false, nil
	}
	a.held = false
	if a.conn == nil {
		return true, nil
	}
	defer a.closeConn()

	if a.dialect == sqlutil.Postgres {
		var ok bool
		if err := a.conn.QueryRowContext(ctx, "SELECT pg_advisory_unlock(hashtext($1))", a.lockName).Scan(&ok); err != nil {
			return false, fmt.Errorf("failed to execute pg_advisory_unlock: %w", err)
		}
		return ok, nil
	}

	var result sql.NullInt64
	err := a.conn.QueryRowContext(ctx, "SELECT RELEASE_LOCK(?)", a.lockName).Scan(&result)
	if err != nil {
		return false, fmt.Errorf("failed to execute RELEASE_LOCK: %w", err)
	}

	if !result.Valid {
		return false, fmt.Errorf("RELEASE_LOCK returned NULL for lock %q (lock did not exist)", a.lockName)
	}

	switch result.Int64 {
	case 1:
		return true, nil
	case 0:
		return false, nil
	default:
		return false, fmt.Errorf("unexpected RELEASE_LOCK return value: %d", result.Int64)
	}
}

func (a *AdvisoryLock) closeConn() {
	if a.conn != nil {
		_ = a.conn.Close()
		a.conn = nil
	}
}

// IsHeld returns true if this lock is currently held by this instance.
func (a *AdvisoryLock) IsHeld() bool {
	return a.held
}

// LockName returns the name of the advisory lock.
func (a *AdvisoryLock) LockName() string {
	return a.lockName
}

// TryAcquire attempts to acquire the lock immediately without waiting.
func (a *AdvisoryLock) TryAcquire(ctx context.Context) (bool, error) {
	return a.AcquireLock(ctx, TimeoutImmediate)
}

// AcquireOrFail attempts to acquire the lock with a short timeout.
// Returns ErrLockTimeout if another instance is holding the lock.
func (a *AdvisoryLock) AcquireOrFail(ctx context.Context) error {
	acquired, err := a.AcquireLock(ctx, TimeoutShort)
	if err != nil {
		return err
	}
	if !acquired {
		return fmt.Errorf("%w: lock %q is held by another instance", ErrLockTimeout, a.lockName)
	}
	return nil
}

// GenerateCopyLockName creates the lock name guarding copies into the named
// destination database. Format: "dcp:copy:{destination}".
func GenerateCopyLockName(destination string) string {
	sanitized := strings.Map(func(r rune) rune {
		if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') || r == '_' || r == '-' {
			return r
		}
		return '_'
	}, destination)

	return fmt.Sprintf("dcp:copy:%s", sanitized)
}

// NewCopyLock creates the advisory lock for copies into destination.
func NewCopyLock(db *sql.DB, dialect sqlutil.Dialect, destination string) *AdvisoryLock {
	return NewAdvisoryLock(db, dialect, GenerateCopyLockName(destination))
}

// IsCopyRunning reports whether another copy currently holds the lock for
// destination. The check is not atomic.
func IsCopyRunning(ctx context.Context, db *sql.DB, dialect sqlutil.Dialect, destination string) (bool, error) {
	lock := NewCopyLock(db, dialect, destination)

	acquired, err := lock.TryAcquire(ctx)
	if err != nil {
		return false, fmt.Errorf("failed to check for a copy into %q: %w", destination, err)
	}
	if acquired {
		if _, err := lock.ReleaseLock(ctx); err != nil {
			return false, err
		}
		return false, nil
	}
	return true, nil
}

// Conn returns the session holding the lock, or nil when the lock is not
// held or the dialect has no session-scoped locks.
func (a *AdvisoryLock) Conn() *sql.Conn {
	if !a.IsHeld() {
		return nil
	}
	return a.conn
}

// WithLock acquires the lock as AcquireOrFail does and executes fn while
// holding it, passing the locking session (see Conn). The lock is released
// even if fn panics; a release failure is returned alongside fn's error.
func (a *AdvisoryLock) WithLock(ctx context.Context, fn func(conn *sql.Conn) error) (err error) {
	if err := a.AcquireOrFail(ctx); err != nil {
		return fmt.Errorf("failed to acquire lock: %w", err)
	}

	defer func() {
		// the caller's context may already be cancelled
		releaseCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		if _, releaseErr := a.ReleaseLock(releaseCtx); releaseErr != nil {
			err = multierr.Append(err, releaseErr)
		}
	}()

	return fn(a.Conn())
}
