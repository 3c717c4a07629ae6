package postgres

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/jmoiron/sqlx"

	"daily_digest/internal/domain"
	"daily_digest/internal/normalize"
)

// ArchiveStore holds reviewed articles. Rows are keyed by
// (category, url) with the URL stored in normalized form, so archiving
// the same piece twice is a no-op rather than a duplicate row.
type ArchiveStore struct {
	db *sqlx.DB
}

func NewArchiveStore(db *sqlx.DB) *ArchiveStore {
	return &ArchiveStore{db: db}
}

// Upsert inserts rec and reports whether a new row was created. An
// existing row is left untouched; its id is returned with
// inserted=false.
func (s *ArchiveStore) Upsert(ctx context.Context, rec *domain.ArticleRecord) (int64, bool, error) {
	url := normalize.Normalize(rec.URL)

	query := `
		INSERT INTO archive_articles (
			url, title, source, summary, keyword, category,
			published_time, created_at, archived_at, view_count, score
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11
		)
		ON CONFLICT (category, url) DO NOTHING
		RETURNING id`

	exec := GetExecutor(ctx, s.db)

	var id int64
	err := exec.QueryRowxContext(ctx, query,
		url,
		rec.Title,
		rec.Source,
		rec.Summary,
		rec.Keyword,
		rec.Category,
		rec.PublishedTime,
		rec.CreatedAt,
		rec.ArchivedAt,
		rec.ViewCount,
		rec.Score,
	).Scan(&id)

	if errors.Is(err, sql.ErrNoRows) {
		err = exec.QueryRowxContext(ctx,
			"SELECT id FROM archive_articles WHERE category = $1 AND url = $2",
			rec.Category, url,
		).Scan(&id)
		if err != nil {
			return 0, false, err
		}
		return id, false, nil
	}
	if err != nil {
		return 0, false, err
	}
	return id, true, nil
}

// GetByURL fetches an archived article in any category, matching by
// normalized URL. Returns domain.ErrNotFound when absent.
func (s *ArchiveStore) GetByURL(ctx context.Context, rawURL string) (*domain.ArticleRecord, error) {
	var rec domain.ArticleRecord
	query := `
		SELECT id, url, title, source, summary, keyword, category,
		       published_time, created_at, archived_at, view_count, score
		FROM archive_articles
		WHERE url = $1`

	err := GetExecutor(ctx, s.db).QueryRowxContext(ctx, query, normalize.Normalize(rawURL)).StructScan(&rec)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

// ListByCategory returns archived articles in a category, newest
// archived first.
func (s *ArchiveStore) ListByCategory(ctx context.Context, category domain.Category, since time.Time) ([]domain.ArticleRecord, error) {
	query := `
		SELECT id, url, title, source, summary, keyword, category,
		       published_time, created_at, archived_at, view_count, score
		FROM archive_articles
		WHERE category = $1 AND archived_at >= $2
		ORDER BY archived_at DESC`

	var recs []domain.ArticleRecord
	err := sqlx.SelectContext(ctx, GetExecutor(ctx, s.db), &recs, query, category, since)
	return recs, err
}
