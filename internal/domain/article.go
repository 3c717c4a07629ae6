package domain

import "time"

// Category classifies an archived article.
type Category string

const (
	CategoryProgramming Category = "programming"
	CategoryAINews      Category = "ai_news"
)

// ArticleRecord is a harvested article as it travels through the pools
// and, once reviewed, into the archive.
type ArticleRecord struct {
	ID            int64      `json:"-" db:"id"`
	URL           string     `json:"url" db:"url"`
	Title         string     `json:"title" db:"title"`
	Source        string     `json:"source" db:"source"`
	Summary       *string    `json:"summary,omitempty" db:"summary"`
	Keyword       string     `json:"keyword,omitempty" db:"keyword"`
	Category      Category   `json:"category,omitempty" db:"category"`
	Tags          []string   `json:"tags,omitempty" db:"-"`
	PublishedTime *time.Time `json:"published_time,omitempty" db:"published_time"`
	CreatedAt     time.Time  `json:"created_at" db:"created_at"`
	ArchivedAt    *time.Time `json:"archived_at,omitempty" db:"archived_at"`
	ViewCount     int        `json:"view_count" db:"view_count"`
	Score         float64    `json:"score" db:"score"`

	// Archived marks a candidate that was copied to the archive but
	// intentionally left in its keyword group.
	Archived bool `json:"archived,omitempty" db:"-"`
}

// Digest is the payload handed to a notifier.
type Digest struct {
	GeneratedAt time.Time       `json:"generated_at"`
	Theme       string          `json:"theme"`
	Articles    []ArticleRecord `json:"articles"`
}

// DeliveryRecord is one row of digest delivery history.
type DeliveryRecord struct {
	ID           int64     `db:"id"`
	DeliveredAt  time.Time `db:"delivered_at"`
	Tier         string    `db:"tier"`
	ArticleCount int       `db:"article_count"`
	Channel      string    `db:"channel"`
}
