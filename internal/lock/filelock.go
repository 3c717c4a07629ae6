// Package lock provides the cross-process pipeline guard. The grant is
// a small JSON file created with O_EXCL; a TTL stamped into the grant
// lets the next acquirer reclaim locks orphaned by a crashed process,
// so no manual cleanup is ever needed.
package lock

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"daily_digest/internal/domain"
)

const pollInterval = 50 * time.Millisecond

type grant struct {
	Owner     string    `json:"owner"`
	ExpiresAt time.Time `json:"expires_at"`
}

// FileLock is a TTL-bounded mutual exclusion guard shared by every
// process that mutates the pools.
type FileLock struct {
	path   string
	ttl    time.Duration
	logger *slog.Logger

	owner string
}

func New(path string, ttl time.Duration, logger *slog.Logger) *FileLock {
	return &FileLock{path: path, ttl: ttl, logger: logger}
}

// Acquire takes the lock, waiting up to timeout for the current holder
// to release or expire. It returns domain.ErrLockTimeout once the
// deadline passes.
func (l *FileLock) Acquire(ctx context.Context, timeout time.Duration) error {
	deadline := time.Now().Add(timeout)

	for {
		ok, err := l.tryAcquire()
		if err != nil {
			return err
		}
		if ok {
			return nil
		}

		if time.Now().After(deadline) {
			return domain.ErrLockTimeout
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(pollInterval):
		}
	}
}

func (l *FileLock) tryAcquire() (bool, error) {
	if err := os.MkdirAll(filepath.Dir(l.path), 0o755); err != nil {
		return false, fmt.Errorf("create lock dir: %w", err)
	}

	f, err := os.OpenFile(l.path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644)
	if errors.Is(err, fs.ErrExist) {
		l.reclaimIfExpired()
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("create lock file: %w", err)
	}
	defer f.Close()

	owner := uuid.NewString()
	g := grant{Owner: owner, ExpiresAt: time.Now().Add(l.ttl)}
	if err := json.NewEncoder(f).Encode(g); err != nil {
		_ = os.Remove(l.path)
		return false, fmt.Errorf("write lock grant: %w", err)
	}

	l.owner = owner
	return true, nil
}

// reclaimIfExpired removes a grant whose TTL has lapsed. An
// unparseable file may be a peer's grant caught between create and
// encode, so it is only reclaimed once its mtime is a full TTL old.
// Two waiters can race to remove the same stale grant; both removals
// target the expired file, so the race is harmless and the winner is
// decided by the next O_EXCL create.
func (l *FileLock) reclaimIfExpired() {
	data, err := os.ReadFile(l.path)
	if err != nil {
		return
	}

	var g grant
	if err := json.Unmarshal(data, &g); err != nil {
		info, statErr := os.Stat(l.path)
		if statErr != nil || time.Since(info.ModTime()) < l.ttl {
			return
		}
	} else if time.Now().Before(g.ExpiresAt) {
		return
	}

	l.logger.Warn("reclaiming stale pipeline lock", "path", l.path, "expired_at", g.ExpiresAt)
	_ = os.Remove(l.path)
}

// Release drops the lock if this instance still holds it. A grant
// whose TTL already lapsed is left for reclamation instead: a peer may
// reclaim and re-grant between our read and the remove, and deleting
// here would take out the peer's fresh grant. The read-then-remove pair
// is still not atomic at the exact expiry instant; the TTL guard keeps
// that window to the boundary.
func (l *FileLock) Release() {
	if l.owner == "" {
		return
	}
	owner := l.owner
	l.owner = ""

	data, err := os.ReadFile(l.path)
	if err != nil {
		return
	}
	var g grant
	if err := json.Unmarshal(data, &g); err != nil || g.Owner != owner {
		return
	}
	if time.Now().After(g.ExpiresAt) {
		return
	}
	if err := os.Remove(l.path); err != nil {
		l.logger.Warn("failed to release pipeline lock", "path", l.path, "error", err)
	}
}
