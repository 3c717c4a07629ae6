// Package rss collects articles from configured RSS/Atom feeds. Feeds
// are not searchable, so keyword selection happens client-side against
// each entry's title and summary.
package rss

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/mmcdole/gofeed"

	"daily_digest/internal/domain"
)

const (
	collectorName = "rss"
	summaryLimit  = 200
)

// Config holds RSS collector configuration.
type Config struct {
	FeedURLs []string
	Timeout  time.Duration
}

type Collector struct {
	parser   *gofeed.Parser
	feedURLs []string
	logger   *slog.Logger
}

func New(cfg Config, logger *slog.Logger) *Collector {
	parser := gofeed.NewParser()
	parser.Client = &http.Client{Timeout: cfg.Timeout}

	return &Collector{
		parser:   parser,
		feedURLs: cfg.FeedURLs,
		logger:   logger.With("collector", collectorName),
	}
}

func (c *Collector) Name() string {
	return collectorName
}

// Collect reads every configured feed and returns up to maxCount
// entries matching keyword. A feed that fails to fetch or parse only
// costs its own entries; an error is returned only when every feed
// failed and nothing was collected.
func (c *Collector) Collect(ctx context.Context, keyword string, maxCount int) ([]domain.ArticleRecord, error) {
	var records []domain.ArticleRecord
	var firstErr error

	for _, feedURL := range c.feedURLs {
		if len(records) >= maxCount {
			break
		}

		feed, err := c.parser.ParseURLWithContext(feedURL, ctx)
		if err != nil {
			if firstErr == nil {
				firstErr = fmt.Errorf("fetch feed %s: %w", feedURL, err)
			}
			c.logger.Warn("failed to fetch feed", "feed", feedURL, "error", err)
			continue
		}

		for _, item := range feed.Items {
			if len(records) >= maxCount {
				break
			}
			if rec, ok := c.transform(feed, feedURL, item, keyword); ok {
				records = append(records, rec)
			}
		}
	}

	if len(records) == 0 && firstErr != nil {
		return nil, firstErr
	}

	c.logger.Debug("collected feed entries", "keyword", keyword, "records", len(records))
	return records, nil
}

func (c *Collector) transform(feed *gofeed.Feed, feedURL string, item *gofeed.Item, keyword string) (domain.ArticleRecord, bool) {
	if item.Title == "" || item.Link == "" {
		return domain.ArticleRecord{}, false
	}

	summary := stripHTML(item.Description)
	if !matches(keyword, item.Title, summary) {
		return domain.ArticleRecord{}, false
	}

	rec := domain.ArticleRecord{
		URL:       item.Link,
		Title:     item.Title,
		Source:    feedSource(feed, feedURL),
		Keyword:   keyword,
		CreatedAt: time.Now().UTC(),
	}

	if summary != "" {
		text := truncate(summary, summaryLimit)
		rec.Summary = &text
	}

	if published := item.PublishedParsed; published != nil {
		rec.PublishedTime = published
	} else if updated := item.UpdatedParsed; updated != nil {
		rec.PublishedTime = updated
	}

	return rec, true
}

func matches(keyword string, fields ...string) bool {
	needle := strings.ToLower(strings.TrimSpace(keyword))
	if needle == "" {
		return true
	}
	for _, field := range fields {
		if strings.Contains(strings.ToLower(field), needle) {
			return true
		}
	}
	return false
}

// stripHTML flattens a feed summary to plain text. Feeds routinely
// ship full HTML fragments in their description elements.
func stripHTML(s string) string {
	if s == "" {
		return ""
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(s))
	if err != nil {
		return strings.TrimSpace(s)
	}
	return strings.TrimSpace(doc.Text())
}

func feedSource(feed *gofeed.Feed, feedURL string) string {
	if feed.Title != "" {
		return feed.Title
	}
	if u, err := url.Parse(feedURL); err == nil && u.Host != "" {
		return u.Host
	}
	return feedURL
}

func truncate(s string, max int) string {
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max]) + "…"
}
