package postgres

import (
	"context"
	"strings"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
)

// TagStore maps free-form labels (keywords and reviewer tool tags) to
// archived articles.
type TagStore struct {
	db *sqlx.DB
}

func NewTagStore(db *sqlx.DB) *TagStore {
	return &TagStore{db: db}
}

// UpsertLabels ensures every label exists and returns their ids in the
// same order as the input.
func (s *TagStore) UpsertLabels(ctx context.Context, labels []string) ([]int64, error) {
	if len(labels) == 0 {
		return nil, nil
	}

	exec := GetExecutor(ctx, s.db)

	var sb strings.Builder
	sb.WriteString("INSERT INTO tags (label) VALUES ")
	valueArgs := make([]interface{}, 0, len(labels))

	for i, label := range labels {
		if i > 0 {
			sb.WriteString(", ")
		}
		sb.WriteString("($")
		sb.WriteString(itoa(i + 1))
		sb.WriteString(")")
		valueArgs = append(valueArgs, label)
	}
	sb.WriteString(" ON CONFLICT (label) DO NOTHING")

	if _, err := exec.ExecContext(ctx, sb.String(), valueArgs...); err != nil {
		return nil, err
	}

	query := `SELECT id FROM tags WHERE label = ANY($1) ORDER BY array_position($1, label)`
	var ids []int64
	if err := sqlx.SelectContext(ctx, exec, &ids, query, pq.Array(labels)); err != nil {
		return nil, err
	}
	return ids, nil
}

// LinkToArticle replaces the tag set attached to an archived article.
func (s *TagStore) LinkToArticle(ctx context.Context, articleID int64, tagIDs []int64) error {
	exec := GetExecutor(ctx, s.db)

	_, err := exec.ExecContext(ctx,
		"DELETE FROM article_tags WHERE article_id = $1",
		articleID,
	)
	if err != nil {
		return err
	}

	if len(tagIDs) == 0 {
		return nil
	}

	var sb strings.Builder
	sb.WriteString("INSERT INTO article_tags (article_id, tag_id) VALUES ")
	valueArgs := make([]interface{}, 0, len(tagIDs)+1)
	valueArgs = append(valueArgs, articleID)

	for i, tagID := range tagIDs {
		if i > 0 {
			sb.WriteString(", ")
		}
		sb.WriteString("($1, $")
		sb.WriteString(itoa(i + 2))
		sb.WriteString(")")
		valueArgs = append(valueArgs, tagID)
	}
	sb.WriteString(" ON CONFLICT DO NOTHING")

	_, err = exec.ExecContext(ctx, sb.String(), valueArgs...)
	return err
}

// GetLabelsByArticleID returns the labels attached to an archived
// article.
func (s *TagStore) GetLabelsByArticleID(ctx context.Context, articleID int64) ([]string, error) {
	query := `
		SELECT t.label
		FROM tags t
		INNER JOIN article_tags at ON at.tag_id = t.id
		WHERE at.article_id = $1
		ORDER BY t.label`

	var labels []string
	err := sqlx.SelectContext(ctx, GetExecutor(ctx, s.db), &labels, query, articleID)
	return labels, err
}

func itoa(i int) string {
	if i < 10 {
		return string(rune('0' + i))
	}
	return itoa(i/10) + string(rune('0'+i%10))
}
