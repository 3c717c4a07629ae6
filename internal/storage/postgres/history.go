package postgres

import (
	"context"
	"database/sql"
	"errors"

	"github.com/jmoiron/sqlx"

	"daily_digest/internal/domain"
)

// HistoryStore records delivered digests. Writes are best-effort from
// the pipeline's point of view; a failed insert never fails a run.
type HistoryStore struct {
	db *sqlx.DB
}

func NewHistoryStore(db *sqlx.DB) *HistoryStore {
	return &HistoryStore{db: db}
}

func (s *HistoryStore) Insert(ctx context.Context, rec *domain.DeliveryRecord) error {
	query := `
		INSERT INTO delivery_history (delivered_at, tier, article_count, channel)
		VALUES ($1, $2, $3, $4)`

	_, err := GetExecutor(ctx, s.db).ExecContext(ctx, query,
		rec.DeliveredAt,
		rec.Tier,
		rec.ArticleCount,
		rec.Channel,
	)
	return err
}

// Last returns the most recent delivery, or domain.ErrNotFound when no
// digest has ever gone out.
func (s *HistoryStore) Last(ctx context.Context) (*domain.DeliveryRecord, error) {
	var rec domain.DeliveryRecord
	query := `
		SELECT id, delivered_at, tier, article_count, channel
		FROM delivery_history
		ORDER BY delivered_at DESC
		LIMIT 1`

	err := GetExecutor(ctx, s.db).QueryRowxContext(ctx, query).StructScan(&rec)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &rec, nil
}
