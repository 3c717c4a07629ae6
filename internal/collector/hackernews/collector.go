// Package hackernews collects stories from the Algolia Hacker News
// search API.
package hackernews

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"daily_digest/internal/domain"
)

const collectorName = "hackernews"

// Config holds Hacker News collector configuration.
type Config struct {
	BaseURL        string
	Timeout        time.Duration
	MaxAttempts    int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
}

// Collector implements service.Collector against the Algolia HN API.
type Collector struct {
	httpClient     *http.Client
	baseURL        string
	maxAttempts    int
	initialBackoff time.Duration
	maxBackoff     time.Duration
	logger         *slog.Logger
}

func New(cfg Config, logger *slog.Logger) *Collector {
	maxAttempts := cfg.MaxAttempts
	if maxAttempts < 1 {
		maxAttempts = 1
	}
	return &Collector{
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
		baseURL:        cfg.BaseURL,
		maxAttempts:    maxAttempts,
		initialBackoff: cfg.InitialBackoff,
		maxBackoff:     cfg.MaxBackoff,
		logger:         logger.With("collector", collectorName),
	}
}

func (c *Collector) Name() string {
	return collectorName
}

// Collect searches stories matching keyword, newest first, and returns
// up to maxCount records.
func (c *Collector) Collect(ctx context.Context, keyword string, maxCount int) ([]domain.ArticleRecord, error) {
	endpoint := fmt.Sprintf("%s/search_by_date?query=%s&tags=story&hitsPerPage=%d",
		c.baseURL, url.QueryEscape(keyword), maxCount)

	resp, err := c.search(ctx, endpoint)
	if err != nil {
		return nil, fmt.Errorf("search %q: %w", keyword, err)
	}

	records := c.transform(resp.Hits, keyword)
	if len(records) > maxCount {
		records = records[:maxCount]
	}

	c.logger.Debug("collected stories",
		"keyword", keyword,
		"hits", len(resp.Hits),
		"records", len(records),
	)
	return records, nil
}

func (c *Collector) search(ctx context.Context, endpoint string) (*searchResponse, error) {
	var resp *searchResponse
	var err error

	for attempt := 1; attempt <= c.maxAttempts; attempt++ {
		resp, err = c.doRequest(ctx, endpoint)
		if err == nil {
			return resp, nil
		}

		if attempt == c.maxAttempts {
			break
		}

		backoff := c.calculateBackoff(attempt)
		c.logger.Warn("request failed, retrying",
			"attempt", attempt,
			"backoff", backoff,
			"error", err,
		)

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(backoff):
		}
	}

	return nil, fmt.Errorf("after %d attempts: %w", c.maxAttempts, err)
}

func (c *Collector) doRequest(ctx context.Context, endpoint string) (*searchResponse, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}

	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", "DailyDigest/1.0")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("execute request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status: %d", resp.StatusCode)
	}

	var searchResp searchResponse
	if err := json.NewDecoder(resp.Body).Decode(&searchResp); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}

	return &searchResp, nil
}

func (c *Collector) calculateBackoff(attempt int) time.Duration {
	backoff := c.initialBackoff
	for i := 1; i < attempt; i++ {
		backoff *= 2
	}
	if backoff > c.maxBackoff {
		backoff = c.maxBackoff
	}
	return backoff
}

func (c *Collector) transform(hits []hit, keyword string) []domain.ArticleRecord {
	records := make([]domain.ArticleRecord, 0, len(hits))

	for _, h := range hits {
		if h.Title == "" {
			continue
		}

		storyURL := h.URL
		if storyURL == "" {
			// Ask HN style posts have no external link.
			storyURL = "https://news.ycombinator.com/item?id=" + h.ObjectID
		}

		rec := domain.ArticleRecord{
			URL:       storyURL,
			Title:     h.Title,
			Source:    "Hacker News",
			Keyword:   keyword,
			Score:     float64(h.Points),
			ViewCount: h.NumComments,
			CreatedAt: time.Now().UTC(),
		}

		if h.StoryText != "" {
			text := h.StoryText
			rec.Summary = &text
		}

		if published, err := time.Parse(time.RFC3339, h.CreatedAt); err == nil {
			rec.PublishedTime = &published
		} else {
			c.logger.Warn("failed to parse story date",
				"object_id", h.ObjectID,
				"created_at", h.CreatedAt,
			)
		}

		records = append(records, rec)
	}

	return records
}
