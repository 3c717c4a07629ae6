package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/robfig/cron/v3"

	"daily_digest/internal/domain"
)

const runTimeout = 5 * time.Minute

// DigestRunner runs one digest cycle.
type DigestRunner interface {
	Run(ctx context.Context, now time.Time) (*domain.RunStats, error)
}

// IngestRunner runs one candidate harvest.
type IngestRunner interface {
	Run(ctx context.Context) (*domain.IngestStats, error)
}

// BackupRunner commits the data files once.
type BackupRunner interface {
	Run(ctx context.Context) error
}

// Scheduler drives the pipeline from cron expressions. Manual triggers
// go through the same code path as scheduled runs.
type Scheduler struct {
	cron     *cron.Cron
	location *time.Location
	digest   DigestRunner
	ingest   IngestRunner
	backup   BackupRunner
	logger   *slog.Logger

	digestSpec string
	ingestSpec string
	backupSpec string
}

// New builds a scheduler in the given timezone. The digest spec is
// required; an empty ingest or backup spec disables that job.
func New(
	digest DigestRunner,
	ingest IngestRunner,
	backup BackupRunner,
	digestSpec, ingestSpec, backupSpec, timezone string,
	logger *slog.Logger,
) (*Scheduler, error) {
	location, err := time.LoadLocation(timezone)
	if err != nil {
		return nil, fmt.Errorf("load timezone %q: %w", timezone, err)
	}

	parser := cron.NewParser(
		cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor,
	)
	if _, err := parser.Parse(digestSpec); err != nil {
		return nil, fmt.Errorf("parse digest cron %q: %w", digestSpec, err)
	}
	if ingestSpec != "" {
		if _, err := parser.Parse(ingestSpec); err != nil {
			return nil, fmt.Errorf("parse ingest cron %q: %w", ingestSpec, err)
		}
	}
	if backupSpec != "" {
		if _, err := parser.Parse(backupSpec); err != nil {
			return nil, fmt.Errorf("parse backup cron %q: %w", backupSpec, err)
		}
	}

	return &Scheduler{
		cron:       cron.New(cron.WithParser(parser), cron.WithLocation(location)),
		location:   location,
		digest:     digest,
		ingest:     ingest,
		backup:     backup,
		logger:     logger.With("component", "scheduler"),
		digestSpec: digestSpec,
		ingestSpec: ingestSpec,
		backupSpec: backupSpec,
	}, nil
}

// Start registers the jobs and blocks until ctx is cancelled.
func (s *Scheduler) Start(ctx context.Context) error {
	if _, err := s.cron.AddFunc(s.digestSpec, func() {
		if _, err := s.runDigest(ctx); err != nil {
			s.logger.Error("scheduled digest failed", "error", err)
		}
	}); err != nil {
		return fmt.Errorf("register digest job: %w", err)
	}

	if s.ingest != nil && s.ingestSpec != "" {
		if _, err := s.cron.AddFunc(s.ingestSpec, func() {
			s.runIngest(ctx)
		}); err != nil {
			return fmt.Errorf("register ingest job: %w", err)
		}
	}

	if s.backup != nil && s.backupSpec != "" {
		if _, err := s.cron.AddFunc(s.backupSpec, func() {
			s.runBackup(ctx)
		}); err != nil {
			return fmt.Errorf("register backup job: %w", err)
		}
	}

	s.logger.Info("scheduler started",
		"digest_cron", s.digestSpec,
		"ingest_cron", s.ingestSpec,
		"backup_cron", s.backupSpec,
		"timezone", s.location.String(),
	)

	s.cron.Start()
	<-ctx.Done()

	stopCtx := s.cron.Stop()
	<-stopCtx.Done()
	s.logger.Info("scheduler stopped")
	return ctx.Err()
}

// TriggerDigest runs the digest immediately, through the same path the
// cron job takes.
func (s *Scheduler) TriggerDigest(ctx context.Context) (*domain.RunStats, error) {
	return s.runDigest(ctx)
}

// TriggerIngest runs the harvest immediately.
func (s *Scheduler) TriggerIngest(ctx context.Context) (*domain.IngestStats, error) {
	runCtx, cancel := context.WithTimeout(ctx, runTimeout)
	defer cancel()
	return s.ingest.Run(runCtx)
}

func (s *Scheduler) runDigest(ctx context.Context) (*domain.RunStats, error) {
	runCtx, cancel := context.WithTimeout(ctx, runTimeout)
	defer cancel()

	stats, err := s.digest.Run(runCtx, time.Now().In(s.location))
	if errors.Is(err, domain.ErrLockTimeout) {
		s.logger.Warn("digest run skipped, pipeline busy")
	}
	return stats, err
}

func (s *Scheduler) runIngest(ctx context.Context) {
	runCtx, cancel := context.WithTimeout(ctx, runTimeout)
	defer cancel()

	if _, err := s.ingest.Run(runCtx); err != nil {
		s.logger.Error("scheduled ingest failed", "error", err)
	}
}

func (s *Scheduler) runBackup(ctx context.Context) {
	runCtx, cancel := context.WithTimeout(ctx, runTimeout)
	defer cancel()

	if err := s.backup.Run(runCtx); err != nil {
		s.logger.Error("scheduled backup failed", "error", err)
	}
}
