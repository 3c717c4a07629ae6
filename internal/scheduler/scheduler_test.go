package scheduler

import (
	"context"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"daily_digest/internal/domain"
)

type stubDigest struct {
	calls int
	last  time.Time
	err   error
}

func (s *stubDigest) Run(_ context.Context, now time.Time) (*domain.RunStats, error) {
	s.calls++
	s.last = now
	if s.err != nil {
		return nil, s.err
	}
	return &domain.RunStats{Tier: domain.TierMain, Picked: 1, Delivered: true}, nil
}

type stubIngest struct {
	calls int
}

func (s *stubIngest) Run(context.Context) (*domain.IngestStats, error) {
	s.calls++
	return &domain.IngestStats{}, nil
}

type stubBackup struct {
	calls int
}

func (s *stubBackup) Run(context.Context) error {
	s.calls++
	return nil
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

func TestNewRejectsBadSpecs(t *testing.T) {
	digest := &stubDigest{}

	_, err := New(digest, nil, nil, "not a cron", "", "", "UTC", testLogger())
	require.Error(t, err)

	_, err = New(digest, &stubIngest{}, nil, "0 8 * * 1-5", "61 * * * *", "", "UTC", testLogger())
	require.Error(t, err)

	_, err = New(digest, nil, &stubBackup{}, "0 8 * * 1-5", "", "0 23 * *", "UTC", testLogger())
	require.Error(t, err)

	_, err = New(digest, nil, nil, "0 8 * * 1-5", "", "", "Mars/Olympus", testLogger())
	require.Error(t, err)
}

func TestNewAcceptsDescriptors(t *testing.T) {
	_, err := New(&stubDigest{}, nil, nil, "@daily", "", "", "Asia/Shanghai", testLogger())
	require.NoError(t, err)
}

func TestTriggerDigestUsesConfiguredTimezone(t *testing.T) {
	digest := &stubDigest{}
	sched, err := New(digest, nil, nil, "0 8 * * 1-5", "", "", "Asia/Shanghai", testLogger())
	require.NoError(t, err)

	stats, err := sched.TriggerDigest(context.Background())
	require.NoError(t, err)
	assert.True(t, stats.Delivered)
	assert.Equal(t, 1, digest.calls)
	assert.Equal(t, "Asia/Shanghai", digest.last.Location().String())
}

func TestTriggerDigestPropagatesLockTimeout(t *testing.T) {
	digest := &stubDigest{err: domain.ErrLockTimeout}
	sched, err := New(digest, nil, nil, "@daily", "", "", "UTC", testLogger())
	require.NoError(t, err)

	_, err = sched.TriggerDigest(context.Background())
	assert.ErrorIs(t, err, domain.ErrLockTimeout)
}

func TestTriggerIngest(t *testing.T) {
	ingest := &stubIngest{}
	sched, err := New(&stubDigest{}, ingest, nil, "@daily", "@hourly", "", "UTC", testLogger())
	require.NoError(t, err)

	_, err = sched.TriggerIngest(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, ingest.calls)
}

func TestStartStopsOnContextCancel(t *testing.T) {
	sched, err := New(&stubDigest{}, &stubIngest{}, &stubBackup{}, "@daily", "@hourly", "0 23 * * *", "UTC", testLogger())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- sched.Start(ctx)
	}()

	time.Sleep(50 * time.Millisecond)
	cancel()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("scheduler did not stop after cancel")
	}
}
