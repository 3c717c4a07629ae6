package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"daily_digest/internal/config"
	"daily_digest/internal/domain"
	"daily_digest/internal/pool"
)

// IngestService harvests candidate articles for every configured
// keyword and stages them in the candidate groups for review and
// promotion.
type IngestService struct {
	store      PoolStore
	guard      Locker
	collectors []Collector
	keywords   []string
	logger     *slog.Logger
	config     config.IngestConfig
}

func NewIngestService(
	store PoolStore,
	guard Locker,
	collectors []Collector,
	keywords []string,
	logger *slog.Logger,
	cfg config.IngestConfig,
) *IngestService {
	return &IngestService{
		store:      store,
		guard:      guard,
		collectors: collectors,
		keywords:   keywords,
		logger:     logger.With("service", "ingest"),
		config:     cfg,
	}
}

// Run collects once for every keyword. A failing collector only costs
// its own keyword/collector pair; everything else proceeds.
func (s *IngestService) Run(ctx context.Context) (*domain.IngestStats, error) {
	startTime := time.Now()
	stats := &domain.IngestStats{}

	fetched := make(map[string][]domain.ArticleRecord, len(s.keywords))
	for _, kw := range s.keywords {
		for _, col := range s.collectors {
			records, err := col.Collect(ctx, kw, s.config.MaxPerKeyword)
			if err != nil {
				stats.Errors++
				s.logger.Warn("collector failed",
					"collector", col.Name(),
					"keyword", kw,
					"error", err,
				)
				continue
			}
			stats.Fetched += len(records)
			fetched[kw] = append(fetched[kw], records...)
		}
	}

	if stats.Fetched == 0 {
		stats.Duration = time.Since(startTime)
		s.logger.Info("ingest found nothing", "errors", stats.Errors)
		return stats, nil
	}

	if err := s.guard.Acquire(ctx, s.config.LockTimeout); err != nil {
		if errors.Is(err, domain.ErrLockTimeout) {
			s.logger.Warn("another pipeline run holds the lock, skipping ingest")
		}
		return stats, err
	}
	defer s.guard.Release()

	err := s.store.Update(ctx, func(snap *pool.Snapshot) error {
		for kw, records := range fetched {
			for _, rec := range records {
				if rec.Keyword == "" {
					rec.Keyword = kw
				}
				if err := snap.AddCandidate(kw, rec); err != nil {
					if errors.Is(err, domain.ErrDuplicate) {
						stats.Duplicates++
						continue
					}
					return err
				}
				stats.Added++
			}
		}
		return nil
	})
	if err != nil {
		return stats, fmt.Errorf("stage candidates: %w", err)
	}

	stats.Duration = time.Since(startTime)
	s.logger.Info("ingest completed",
		"fetched", stats.Fetched,
		"added", stats.Added,
		"duplicates", stats.Duplicates,
		"errors", stats.Errors,
		"duration", stats.Duration,
	)
	return stats, nil
}
