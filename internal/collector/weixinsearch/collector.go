// Package weixinsearch collects Weixin official-account articles via
// the Sogou Weixin search frontend. Search results link to short-lived
// redirect URLs, so each hit is resolved to its permanent
// mp.weixin.qq.com link before it is returned.
package weixinsearch

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"

	"daily_digest/internal/domain"
)

const (
	collectorName = "weixinsearch"
	userAgent     = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"
)

// Config holds Sogou search collector configuration.
type Config struct {
	BaseURL string
	Timeout time.Duration
}

type Collector struct {
	httpClient *http.Client
	baseURL    string
	logger     *slog.Logger
}

func New(cfg Config, logger *slog.Logger) *Collector {
	return &Collector{
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
		baseURL: cfg.BaseURL,
		logger:  logger.With("collector", collectorName),
	}
}

func (c *Collector) Name() string {
	return collectorName
}

// Collect searches Weixin articles for keyword and returns up to
// maxCount records with resolved permanent URLs. Hits whose redirect
// cannot be resolved are skipped, not fatal.
func (c *Collector) Collect(ctx context.Context, keyword string, maxCount int) ([]domain.ArticleRecord, error) {
	searchURL := fmt.Sprintf("%s?type=2&query=%s&page=1", c.baseURL, url.QueryEscape(keyword))

	doc, err := c.fetchDocument(ctx, searchURL, "")
	if err != nil {
		return nil, fmt.Errorf("search %q: %w", keyword, err)
	}

	list := doc.Find("ul.news-list li")
	if list.Length() == 0 {
		c.logger.Warn("no result list in search page, possibly rate-limited", "keyword", keyword)
		return nil, nil
	}

	var records []domain.ArticleRecord
	list.EachWithBreak(func(_ int, item *goquery.Selection) bool {
		if len(records) >= maxCount {
			return false
		}

		titleLink := item.Find("h3 a").First()
		href, ok := titleLink.Attr("href")
		if !ok {
			return true
		}

		title := strings.TrimSpace(titleLink.Text())
		if title == "" {
			return true
		}

		tempURL := c.resolveRef(href)
		realURL, err := c.resolveRedirect(ctx, tempURL, searchURL)
		if err != nil {
			c.logger.Warn("failed to resolve article redirect", "title", title, "error", err)
			return true
		}
		if !strings.Contains(realURL, "mp.weixin.qq.com") {
			c.logger.Warn("redirect did not land on a weixin article", "title", title, "url", realURL)
			return true
		}

		rec := domain.ArticleRecord{
			URL:       realURL,
			Title:     title,
			Source:    strings.TrimSpace(item.Find("a.account").First().Text()),
			Keyword:   keyword,
			CreatedAt: time.Now().UTC(),
		}
		if summary := strings.TrimSpace(item.Find("p.txt-info").First().Text()); summary != "" {
			rec.Summary = &summary
		}

		records = append(records, rec)
		return true
	})

	c.logger.Debug("collected articles", "keyword", keyword, "records", len(records))
	return records, nil
}

func (c *Collector) fetchDocument(ctx context.Context, pageURL, referer string) (*goquery.Document, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	if referer != "" {
		req.Header.Set("Referer", referer)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("execute request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status: %d", resp.StatusCode)
	}

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("parse page: %w", err)
	}
	return doc, nil
}

// resolveRedirect follows the Sogou interstitial to the final article
// URL.
func (c *Collector) resolveRedirect(ctx context.Context, tempURL, referer string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, tempURL, nil)
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Referer", referer)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("execute request: %w", err)
	}
	defer resp.Body.Close()

	return resp.Request.URL.String(), nil
}

// resolveRef turns result hrefs like /link?url=... into absolute URLs.
func (c *Collector) resolveRef(href string) string {
	ref, err := url.Parse(href)
	if err != nil {
		return href
	}
	base, err := url.Parse(c.baseURL)
	if err != nil {
		return href
	}
	return base.ResolveReference(ref).String()
}
