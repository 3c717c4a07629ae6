package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"daily_digest/internal/domain"
	"daily_digest/internal/pool"
)

// ReviewService applies reviewer decisions to candidates: accept into
// the Main pool, archive to long-term storage, or ignore.
type ReviewService struct {
	store       PoolStore
	guard       Locker
	archive     ArchiveStore
	tags        TagStore
	txManager   TransactionManager
	recap       RecapWriter
	logger      *slog.Logger
	lockTimeout time.Duration
}

func NewReviewService(
	store PoolStore,
	guard Locker,
	archive ArchiveStore,
	tags TagStore,
	txManager TransactionManager,
	recap RecapWriter,
	logger *slog.Logger,
	lockTimeout time.Duration,
) *ReviewService {
	return &ReviewService{
		store:       store,
		guard:       guard,
		archive:     archive,
		tags:        tags,
		txManager:   txManager,
		recap:       recap,
		logger:      logger.With("service", "review"),
		lockTimeout: lockTimeout,
	}
}

// Accept moves the candidate matching rawURL into the Main pool and
// stamps it as reviewed. Returns domain.ErrNotFound when no candidate
// matches.
func (s *ReviewService) Accept(ctx context.Context, rawURL string) error {
	if err := s.guard.Acquire(ctx, s.lockTimeout); err != nil {
		return err
	}
	defer s.guard.Release()

	return s.store.Update(ctx, func(snap *pool.Snapshot) error {
		kw, idx, ok := snap.FindCandidate(rawURL)
		if !ok {
			return domain.ErrNotFound
		}

		rec := snap.Candidates[kw][idx]
		snap.RemoveCandidate(kw, idx)

		if rec.ArchivedAt == nil {
			now := time.Now().UTC()
			rec.ArchivedAt = &now
		}

		if err := snap.AddToMain(rec); err != nil && !errors.Is(err, domain.ErrDuplicate) {
			return err
		}

		s.logger.Info("candidate accepted", "url", rec.URL, "keyword", kw)
		return nil
	})
}

// Archive copies the candidate to long-term storage under category and
// flags it archived in its group. Archiving the same candidate again is
// a no-op; the record stays in its group either way so it cannot be
// re-collected as new.
func (s *ReviewService) Archive(ctx context.Context, rawURL string, category domain.Category, toolTags []string) error {
	if err := s.guard.Acquire(ctx, s.lockTimeout); err != nil {
		return err
	}
	defer s.guard.Release()

	snap, err := s.store.Load(ctx)
	if err != nil {
		return err
	}

	kw, idx, ok := snap.FindCandidate(rawURL)
	if !ok {
		return domain.ErrNotFound
	}

	rec := snap.Candidates[kw][idx]
	if rec.Archived {
		s.logger.Info("candidate already archived", "url", rec.URL)
		return nil
	}

	now := time.Now().UTC()
	if rec.ArchivedAt == nil {
		rec.ArchivedAt = &now
	}
	rec.Category = category

	labels := append([]string{}, rec.Tags...)
	for _, tag := range toolTags {
		if tag != "" {
			labels = append(labels, tag)
		}
	}

	err = s.txManager.WithTransaction(ctx, func(txCtx context.Context) error {
		id, inserted, err := s.archive.Upsert(txCtx, &rec)
		if err != nil {
			return fmt.Errorf("archive article: %w", err)
		}
		if !inserted {
			s.logger.Info("article already in archive", "url", rec.URL)
			return nil
		}
		if len(labels) == 0 {
			return nil
		}

		tagIDs, err := s.tags.UpsertLabels(txCtx, labels)
		if err != nil {
			return fmt.Errorf("upsert tags: %w", err)
		}
		if err := s.tags.LinkToArticle(txCtx, id, tagIDs); err != nil {
			return fmt.Errorf("link tags: %w", err)
		}
		return nil
	})
	if err != nil {
		return err
	}

	err = s.store.Update(ctx, func(cur *pool.Snapshot) error {
		kw, idx, ok := cur.FindCandidate(rawURL)
		if !ok {
			return nil
		}
		cur.Candidates[kw][idx].Archived = true
		if cur.Candidates[kw][idx].ArchivedAt == nil {
			cur.Candidates[kw][idx].ArchivedAt = rec.ArchivedAt
		}
		cur.Candidates[kw][idx].Category = category
		return nil
	})
	if err != nil {
		return err
	}

	// Best effort: the archive row is committed either way and the
	// rollup is regenerated in full on the next archive.
	if s.recap != nil {
		if err := s.recap.Refresh(ctx, now); err != nil {
			s.logger.Warn("failed to update weekly recap", "error", err)
		}
	}
	return nil
}

// Ignore removes the candidate without archiving it.
func (s *ReviewService) Ignore(ctx context.Context, rawURL string) error {
	if err := s.guard.Acquire(ctx, s.lockTimeout); err != nil {
		return err
	}
	defer s.guard.Release()

	return s.store.Update(ctx, func(snap *pool.Snapshot) error {
		kw, idx, ok := snap.FindCandidate(rawURL)
		if !ok {
			return domain.ErrNotFound
		}
		url := snap.Candidates[kw][idx].URL
		snap.RemoveCandidate(kw, idx)
		s.logger.Info("candidate ignored", "url", url, "keyword", kw)
		return nil
	})
}
