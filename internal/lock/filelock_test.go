package lock

import (
	"context"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"daily_digest/internal/domain"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func TestAcquireRelease(t *testing.T) {
	path := filepath.Join(t.TempDir(), ".locks", "digest.lock")
	ctx := context.Background()

	first := New(path, time.Minute, testLogger())
	require.NoError(t, first.Acquire(ctx, time.Second))

	second := New(path, time.Minute, testLogger())
	err := second.Acquire(ctx, 150*time.Millisecond)
	assert.ErrorIs(t, err, domain.ErrLockTimeout)

	first.Release()
	_, err = os.Stat(path)
	assert.True(t, os.IsNotExist(err))

	require.NoError(t, second.Acquire(ctx, time.Second))
	second.Release()
}

func TestAcquireReclaimsExpiredGrant(t *testing.T) {
	path := filepath.Join(t.TempDir(), "digest.lock")
	ctx := context.Background()

	stale, err := json.Marshal(grant{Owner: "dead-process", ExpiresAt: time.Now().Add(-time.Minute)})
	require.NoError(t, err)
	require.NoError(t, os.WriteFile(path, stale, 0o644))

	l := New(path, time.Minute, testLogger())
	require.NoError(t, l.Acquire(ctx, time.Second))
	l.Release()
}

func TestAcquireReclaimsOldCorruptGrant(t *testing.T) {
	path := filepath.Join(t.TempDir(), "digest.lock")
	require.NoError(t, os.WriteFile(path, []byte("not json"), 0o644))
	old := time.Now().Add(-2 * time.Minute)
	require.NoError(t, os.Chtimes(path, old, old))

	l := New(path, time.Minute, testLogger())
	require.NoError(t, l.Acquire(context.Background(), time.Second))
	l.Release()
}

func TestAcquireSparesFreshCorruptGrant(t *testing.T) {
	// A peer between its O_EXCL create and the grant encode looks like
	// a corrupt file; it must not be reclaimed until a TTL has passed.
	path := filepath.Join(t.TempDir(), "digest.lock")
	require.NoError(t, os.WriteFile(path, []byte("not json"), 0o644))

	l := New(path, time.Minute, testLogger())
	err := l.Acquire(context.Background(), 150*time.Millisecond)
	assert.ErrorIs(t, err, domain.ErrLockTimeout)

	_, statErr := os.Stat(path)
	assert.NoError(t, statErr, "fresh unparseable grant must survive")
}

func TestReleaseLeavesExpiredOwnGrant(t *testing.T) {
	path := filepath.Join(t.TempDir(), "digest.lock")
	ctx := context.Background()

	l := New(path, 50*time.Millisecond, testLogger())
	require.NoError(t, l.Acquire(ctx, time.Second))
	time.Sleep(80 * time.Millisecond)

	// Past the TTL the grant belongs to whoever reclaims it next, even
	// when no one has yet; release must not race that reclaim.
	l.Release()
	_, err := os.Stat(path)
	assert.NoError(t, err, "expired grant is left for reclamation")
}

func TestReleaseLeavesForeignGrant(t *testing.T) {
	path := filepath.Join(t.TempDir(), "digest.lock")
	ctx := context.Background()

	l := New(path, 50*time.Millisecond, testLogger())
	require.NoError(t, l.Acquire(ctx, time.Second))
	time.Sleep(80 * time.Millisecond)

	// TTL lapsed; another process reclaims and takes the lock.
	other := New(path, time.Minute, testLogger())
	require.NoError(t, other.Acquire(ctx, time.Second))

	l.Release()
	_, err := os.Stat(path)
	assert.NoError(t, err, "release must not remove a grant it no longer owns")
	other.Release()
}

func TestAcquireHonorsContext(t *testing.T) {
	path := filepath.Join(t.TempDir(), "digest.lock")

	holder := New(path, time.Minute, testLogger())
	require.NoError(t, holder.Acquire(context.Background(), time.Second))
	defer holder.Release()

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	err := New(path, time.Minute, testLogger()).Acquire(ctx, time.Minute)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}
