package service

//go:generate mockgen -source=interfaces.go -destination=mocks/mocks.go -package=mocks

import (
	"context"
	"time"

	"daily_digest/internal/domain"
	"daily_digest/internal/pool"
)

type PoolStore interface {
	Load(ctx context.Context) (*pool.Snapshot, error)
	Update(ctx context.Context, fn func(*pool.Snapshot) error) error
}

type Locker interface {
	Acquire(ctx context.Context, timeout time.Duration) error
	Release()
}

type Collector interface {
	Name() string
	Collect(ctx context.Context, keyword string, maxCount int) ([]domain.ArticleRecord, error)
}

type Notifier interface {
	Deliver(ctx context.Context, digest domain.Digest) error
	Channel() string
}

type ArchiveStore interface {
	Upsert(ctx context.Context, rec *domain.ArticleRecord) (int64, bool, error)
}

type TagStore interface {
	UpsertLabels(ctx context.Context, labels []string) ([]int64, error)
	LinkToArticle(ctx context.Context, articleID int64, tagIDs []int64) error
}

type HistoryStore interface {
	Insert(ctx context.Context, rec *domain.DeliveryRecord) error
}

type TransactionManager interface {
	WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error
}

type RecapWriter interface {
	Refresh(ctx context.Context, now time.Time) error
}
