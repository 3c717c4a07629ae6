package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"sort"
	"time"

	"daily_digest/internal/config"
	"daily_digest/internal/domain"
	"daily_digest/internal/normalize"
	"daily_digest/internal/pool"
)

// liveCollectBatch is how many hits to request per keyword during the
// live-collection fallback; only the first non-duplicate is used.
const liveCollectBatch = 5

// DigestService assembles and delivers the scheduled digest. Selection
// falls through three tiers: the Main pool, promotion from the
// candidate groups, then live collection.
type DigestService struct {
	store      PoolStore
	guard      Locker
	collectors []Collector
	notifier   Notifier
	history    HistoryStore
	keywords   []string
	logger     *slog.Logger
	config     config.DigestConfig
}

func NewDigestService(
	store PoolStore,
	guard Locker,
	collectors []Collector,
	notifier Notifier,
	history HistoryStore,
	keywords []string,
	logger *slog.Logger,
	cfg config.DigestConfig,
) *DigestService {
	return &DigestService{
		store:      store,
		guard:      guard,
		collectors: collectors,
		notifier:   notifier,
		history:    history,
		keywords:   keywords,
		logger:     logger.With("service", "digest"),
		config:     cfg,
	}
}

// Run executes one digest cycle. Pools are cleared only after the
// notifier confirms delivery, so a failed run leaves everything in
// place for the next trigger to retry.
func (s *DigestService) Run(ctx context.Context, now time.Time) (*domain.RunStats, error) {
	startTime := time.Now()

	if err := s.guard.Acquire(ctx, s.config.LockTimeout); err != nil {
		if errors.Is(err, domain.ErrLockTimeout) {
			s.logger.Warn("another pipeline run holds the lock, skipping")
		}
		return nil, err
	}
	defer s.guard.Release()

	snap, err := s.store.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("load pools: %w", err)
	}

	stats := &domain.RunStats{}
	picks, promoted, err := s.assemble(ctx, snap, stats)
	if err != nil {
		return nil, err
	}

	if len(picks) == 0 {
		s.logger.Info("no articles available, skipping delivery")
		stats.Duration = time.Since(startTime)
		return stats, nil
	}

	digest := domain.Digest{
		GeneratedAt: now,
		Theme:       s.config.Theme,
		Articles:    picks,
	}

	if err := s.notifier.Deliver(ctx, digest); err != nil {
		stats.Duration = time.Since(startTime)
		return stats, fmt.Errorf("deliver digest: %w", err)
	}
	stats.Delivered = true

	if err := s.clearAfterSuccess(ctx, promoted); err != nil {
		// Delivery already happened. The stale records will be dropped
		// as duplicates on the next successful clear.
		stats.Duration = time.Since(startTime)
		return stats, fmt.Errorf("clear pools: %w", err)
	}

	s.recordDelivery(ctx, now, stats)

	stats.Duration = time.Since(startTime)
	s.logger.Info("digest run completed",
		"tier", stats.Tier,
		"picked", stats.Picked,
		"promoted", stats.Promoted,
		"collected", stats.Collected,
		"errors", stats.Errors,
		"duration", stats.Duration,
	)
	return stats, nil
}

func (s *DigestService) assemble(ctx context.Context, snap *pool.Snapshot, stats *domain.RunStats) ([]domain.ArticleRecord, []string, error) {
	if len(snap.Main) > 0 {
		stats.Tier = domain.TierMain
		picks := sample(snap.Main, s.config.Count)
		stats.Picked = len(picks)
		return picks, nil, nil
	}

	if picks, promoted := s.promote(snap); len(picks) > 0 {
		stats.Tier = domain.TierCandidates
		stats.Promoted = len(promoted)
		stats.Picked = len(picks)
		return picks, promoted, nil
	}

	collected := s.collectFresh(ctx, snap, stats)
	if len(collected) == 0 {
		return nil, nil, nil
	}

	// Stage collected records in the Main pool before delivery so a
	// notifier failure keeps them for the retry.
	err := s.store.Update(ctx, func(cur *pool.Snapshot) error {
		for _, rec := range collected {
			if err := cur.AddToMain(rec); err != nil && !errors.Is(err, domain.ErrDuplicate) {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, nil, fmt.Errorf("stage collected articles: %w", err)
	}

	stats.Tier = domain.TierCollected
	stats.Collected = len(collected)
	stats.Picked = len(collected)
	return collected, nil, nil
}

// promote drains up to PerKeywordCap random un-archived candidates per
// keyword group, stopping once Count articles are picked. Promoted
// records stay in their groups until the post-delivery clear so a
// failed delivery loses nothing.
func (s *DigestService) promote(snap *pool.Snapshot) ([]domain.ArticleRecord, []string) {
	keywords := make([]string, 0, len(snap.Candidates))
	for kw := range snap.Candidates {
		keywords = append(keywords, kw)
	}
	sort.Strings(keywords)

	var picks []domain.ArticleRecord
	var promoted []string
	for _, kw := range keywords {
		if len(picks) >= s.config.Count {
			break
		}

		var group []domain.ArticleRecord
		for _, rec := range snap.Candidates[kw] {
			if !rec.Archived {
				group = append(group, rec)
			}
		}
		rand.Shuffle(len(group), func(i, j int) {
			group[i], group[j] = group[j], group[i]
		})

		taken := 0
		for _, rec := range group {
			if len(picks) >= s.config.Count || taken >= s.config.PerKeywordCap {
				break
			}
			picks = append(picks, rec)
			promoted = append(promoted, rec.URL)
			taken++
		}
	}
	return picks, promoted
}

func (s *DigestService) collectFresh(ctx context.Context, snap *pool.Snapshot, stats *domain.RunStats) []domain.ArticleRecord {
	var collected []domain.ArticleRecord
	for _, kw := range s.keywords {
		if len(collected) >= s.config.Count {
			break
		}
		if rec, ok := s.collectOne(ctx, snap, collected, kw, stats); ok {
			collected = append(collected, rec)
		}
	}
	return collected
}

// collectOne asks each collector in turn for keyword hits and returns
// the first one not already pooled or picked. A collector failure is
// counted and the next collector tried.
func (s *DigestService) collectOne(ctx context.Context, snap *pool.Snapshot, picked []domain.ArticleRecord, keyword string, stats *domain.RunStats) (domain.ArticleRecord, bool) {
	for _, col := range s.collectors {
		records, err := col.Collect(ctx, keyword, liveCollectBatch)
		if err != nil {
			stats.Errors++
			s.logger.Warn("collector failed",
				"collector", col.Name(),
				"keyword", keyword,
				"error", err,
			)
			continue
		}

		for _, rec := range records {
			if snap.HasURL(rec.URL) || containsURL(picked, rec.URL) {
				continue
			}
			if rec.Keyword == "" {
				rec.Keyword = keyword
			}
			return rec, true
		}
	}
	return domain.ArticleRecord{}, false
}

func (s *DigestService) clearAfterSuccess(ctx context.Context, promoted []string) error {
	return s.store.Update(ctx, func(snap *pool.Snapshot) error {
		snap.Main = nil
		for _, url := range promoted {
			if kw, idx, ok := snap.FindCandidate(url); ok {
				snap.RemoveCandidate(kw, idx)
			}
		}
		return nil
	})
}

func (s *DigestService) recordDelivery(ctx context.Context, now time.Time, stats *domain.RunStats) {
	if s.history == nil {
		return
	}
	rec := &domain.DeliveryRecord{
		DeliveredAt:  now,
		Tier:         stats.Tier,
		ArticleCount: stats.Picked,
		Channel:      s.notifier.Channel(),
	}
	if err := s.history.Insert(ctx, rec); err != nil {
		s.logger.Warn("failed to record delivery history", "error", err)
	}
}

func sample(records []domain.ArticleRecord, n int) []domain.ArticleRecord {
	out := make([]domain.ArticleRecord, len(records))
	copy(out, records)
	rand.Shuffle(len(out), func(i, j int) {
		out[i], out[j] = out[j], out[i]
	})
	if len(out) > n {
		out = out[:n]
	}
	return out
}

func containsURL(records []domain.ArticleRecord, rawURL string) bool {
	key := normalize.Normalize(rawURL)
	for _, rec := range records {
		if normalize.Normalize(rec.URL) == key {
			return true
		}
	}
	return false
}
