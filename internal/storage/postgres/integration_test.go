//go:build integration

package postgres

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"github.com/stretchr/testify/suite"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"daily_digest/internal/domain"
	"daily_digest/testdata/utils"
)

type PostgresIntegrationSuite struct {
	suite.Suite
	ctx       context.Context
	container *postgres.PostgresContainer
	db        *sqlx.DB
}

func (s *PostgresIntegrationSuite) SetupSuite() {
	s.ctx = context.Background()

	migrationsPath, err := filepath.Abs("../../../migrations")
	s.Require().NoError(err)

	container, err := postgres.Run(s.ctx,
		"postgres:16-alpine",
		postgres.WithDatabase("test_db"),
		postgres.WithUsername("test"),
		postgres.WithPassword("test"),
		postgres.WithInitScripts(
			filepath.Join(migrationsPath, "001_create_archive.up.sql"),
		),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second),
		),
	)
	s.Require().NoError(err)
	s.container = container

	connStr, err := container.ConnectionString(s.ctx, "sslmode=disable")
	s.Require().NoError(err)

	db, err := sqlx.Connect("postgres", connStr)
	s.Require().NoError(err)
	s.db = db
}

func (s *PostgresIntegrationSuite) TearDownSuite() {
	if s.db != nil {
		s.db.Close()
	}
	if s.container != nil {
		_ = s.container.Terminate(s.ctx)
	}
}

func (s *PostgresIntegrationSuite) SetupTest() {
	_, _ = s.db.ExecContext(s.ctx, "DELETE FROM article_tags")
	_, _ = s.db.ExecContext(s.ctx, "DELETE FROM tags")
	_, _ = s.db.ExecContext(s.ctx, "DELETE FROM archive_articles")
	_, _ = s.db.ExecContext(s.ctx, "DELETE FROM delivery_history")
}

func TestPostgresIntegrationSuite(t *testing.T) {
	suite.Run(t, new(PostgresIntegrationSuite))
}

func (s *PostgresIntegrationSuite) archivedRecord(url string) *domain.ArticleRecord {
	now := time.Now().Truncate(time.Microsecond)
	return &domain.ArticleRecord{
		URL:        url,
		Title:      "Test Article",
		Source:     "Test Source",
		Summary:    utils.Ptr("Test Summary"),
		Keyword:    "ai",
		Category:   domain.CategoryProgramming,
		CreatedAt:  now,
		ArchivedAt: &now,
	}
}

func (s *PostgresIntegrationSuite) TestArchiveStore_Upsert_Insert() {
	store := NewArchiveStore(s.db)

	id, inserted, err := store.Upsert(s.ctx, s.archivedRecord("https://example.com/article"))
	s.NoError(err)
	s.True(inserted)
	s.Greater(id, int64(0))

	var count int
	err = s.db.GetContext(s.ctx, &count, "SELECT COUNT(*) FROM archive_articles")
	s.NoError(err)
	s.Equal(1, count)
}

func (s *PostgresIntegrationSuite) TestArchiveStore_Upsert_NormalizedDuplicateIsNoop() {
	store := NewArchiveStore(s.db)

	id1, inserted, err := store.Upsert(s.ctx, s.archivedRecord("https://example.com/article?utm_source=rss"))
	s.NoError(err)
	s.True(inserted)

	rec := s.archivedRecord("https://EXAMPLE.com/article")
	rec.Title = "Retitled"
	id2, inserted, err := store.Upsert(s.ctx, rec)
	s.NoError(err)
	s.False(inserted)
	s.Equal(id1, id2)

	var title string
	err = s.db.GetContext(s.ctx, &title, "SELECT title FROM archive_articles WHERE id = $1", id1)
	s.NoError(err)
	s.Equal("Test Article", title, "existing row must not be overwritten")
}

func (s *PostgresIntegrationSuite) TestArchiveStore_Upsert_SameURLDifferentCategory() {
	store := NewArchiveStore(s.db)

	_, inserted, err := store.Upsert(s.ctx, s.archivedRecord("https://example.com/article"))
	s.NoError(err)
	s.True(inserted)

	rec := s.archivedRecord("https://example.com/article")
	rec.Category = domain.CategoryAINews
	_, inserted, err = store.Upsert(s.ctx, rec)
	s.NoError(err)
	s.True(inserted, "categories are independent archives")
}

func (s *PostgresIntegrationSuite) TestArchiveStore_GetByURL() {
	store := NewArchiveStore(s.db)

	_, _, err := store.Upsert(s.ctx, s.archivedRecord("https://example.com/article"))
	s.NoError(err)

	rec, err := store.GetByURL(s.ctx, "https://example.com/article?utm_medium=feed")
	s.NoError(err)
	s.Equal("Test Article", rec.Title)

	_, err = store.GetByURL(s.ctx, "https://example.com/missing")
	s.ErrorIs(err, domain.ErrNotFound)
}

func (s *PostgresIntegrationSuite) TestArchiveStore_ListByCategory() {
	store := NewArchiveStore(s.db)

	for _, url := range []string{"https://example.com/a", "https://example.com/b"} {
		_, _, err := store.Upsert(s.ctx, s.archivedRecord(url))
		s.NoError(err)
	}
	other := s.archivedRecord("https://example.com/c")
	other.Category = domain.CategoryAINews
	_, _, err := store.Upsert(s.ctx, other)
	s.NoError(err)

	recs, err := store.ListByCategory(s.ctx, domain.CategoryProgramming, time.Now().Add(-time.Hour))
	s.NoError(err)
	s.Len(recs, 2)
}

func (s *PostgresIntegrationSuite) TestTagStore_UpsertLabels() {
	store := NewTagStore(s.db)

	ids, err := store.UpsertLabels(s.ctx, []string{"claude-code", "cursor", "copilot"})
	s.NoError(err)
	s.Len(ids, 3)

	again, err := store.UpsertLabels(s.ctx, []string{"cursor", "claude-code"})
	s.NoError(err)
	s.Len(again, 2)
	s.Equal(ids[1], again[0], "existing labels keep their ids")

	var count int
	err = s.db.GetContext(s.ctx, &count, "SELECT COUNT(*) FROM tags")
	s.NoError(err)
	s.Equal(3, count)
}

func (s *PostgresIntegrationSuite) TestTagStore_LinkToArticle_ReplacesOld() {
	tagStore := NewTagStore(s.db)
	archiveStore := NewArchiveStore(s.db)

	articleID, _, err := archiveStore.Upsert(s.ctx, s.archivedRecord("https://example.com/article"))
	s.NoError(err)

	ids, err := tagStore.UpsertLabels(s.ctx, []string{"tag1", "tag2", "tag3"})
	s.NoError(err)

	s.NoError(tagStore.LinkToArticle(s.ctx, articleID, ids[:2]))
	s.NoError(tagStore.LinkToArticle(s.ctx, articleID, ids[2:]))

	labels, err := tagStore.GetLabelsByArticleID(s.ctx, articleID)
	s.NoError(err)
	s.Equal([]string{"tag3"}, labels)
}

func (s *PostgresIntegrationSuite) TestHistoryStore_InsertAndLast() {
	store := NewHistoryStore(s.db)

	_, err := store.Last(s.ctx)
	s.ErrorIs(err, domain.ErrNotFound)

	now := time.Now().Truncate(time.Microsecond)
	s.NoError(store.Insert(s.ctx, &domain.DeliveryRecord{
		DeliveredAt:  now.Add(-time.Hour),
		Tier:         domain.TierMain,
		ArticleCount: 5,
		Channel:      "webhook",
	}))
	s.NoError(store.Insert(s.ctx, &domain.DeliveryRecord{
		DeliveredAt:  now,
		Tier:         domain.TierCandidates,
		ArticleCount: 3,
		Channel:      "webhook",
	}))

	last, err := store.Last(s.ctx)
	s.NoError(err)
	s.Equal(domain.TierCandidates, last.Tier)
	s.Equal(3, last.ArticleCount)
}

func (s *PostgresIntegrationSuite) TestTransaction_Commit() {
	tm := NewTransactionManager(s.db)
	archiveStore := NewArchiveStore(s.db)
	tagStore := NewTagStore(s.db)

	err := tm.WithTransaction(s.ctx, func(ctx context.Context) error {
		id, _, err := archiveStore.Upsert(ctx, s.archivedRecord("https://example.com/tx"))
		if err != nil {
			return err
		}
		ids, err := tagStore.UpsertLabels(ctx, []string{"tx-tag"})
		if err != nil {
			return err
		}
		return tagStore.LinkToArticle(ctx, id, ids)
	})
	s.NoError(err)

	var count int
	err = s.db.GetContext(s.ctx, &count, "SELECT COUNT(*) FROM article_tags")
	s.NoError(err)
	s.Equal(1, count)
}

func (s *PostgresIntegrationSuite) TestTransaction_Rollback() {
	tm := NewTransactionManager(s.db)
	archiveStore := NewArchiveStore(s.db)

	err := tm.WithTransaction(s.ctx, func(ctx context.Context) error {
		if _, _, err := archiveStore.Upsert(ctx, s.archivedRecord("https://example.com/rollback")); err != nil {
			return err
		}
		return context.Canceled
	})
	s.Error(err)

	var count int
	err = s.db.GetContext(s.ctx, &count, "SELECT COUNT(*) FROM archive_articles")
	s.NoError(err)
	s.Equal(0, count)
}
