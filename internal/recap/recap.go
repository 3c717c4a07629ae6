// Package recap maintains the weekly markdown rollup. Every time a
// review archives an article the current ISO week's file is
// regenerated from the archive, so the document on disk always matches
// the store.
package recap

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"daily_digest/internal/domain"
)

const summaryLimit = 100

// ArchiveLister is the slice of the archive store the recap needs.
type ArchiveLister interface {
	ListByCategory(ctx context.Context, category domain.Category, since time.Time) ([]domain.ArticleRecord, error)
}

// Writer renders and persists one markdown file per ISO week.
type Writer struct {
	archive ArchiveLister
	dir     string
	logger  *slog.Logger
}

func NewWriter(archive ArchiveLister, dir string, logger *slog.Logger) *Writer {
	return &Writer{
		archive: archive,
		dir:     dir,
		logger:  logger.With("component", "recap"),
	}
}

// Refresh regenerates the weekly file covering now. The write is
// tmp+rename so readers never see a half-written document.
func (w *Writer) Refresh(ctx context.Context, now time.Time) error {
	weekStart := startOfWeek(now)
	year, week := now.ISOWeek()

	aiNews, err := w.archive.ListByCategory(ctx, domain.CategoryAINews, weekStart)
	if err != nil {
		return fmt.Errorf("list %s articles: %w", domain.CategoryAINews, err)
	}
	programming, err := w.archive.ListByCategory(ctx, domain.CategoryProgramming, weekStart)
	if err != nil {
		return fmt.Errorf("list %s articles: %w", domain.CategoryProgramming, err)
	}

	content := render(year, week, weekStart, aiNews, programming)

	if err := os.MkdirAll(w.dir, 0o755); err != nil {
		return fmt.Errorf("create recap dir: %w", err)
	}

	path := w.Filepath(now)
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, []byte(content), 0o644); err != nil {
		return fmt.Errorf("write recap: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("write recap: %w", err)
	}

	w.logger.Info("weekly recap updated",
		"path", path,
		"ai_news", len(aiNews),
		"programming", len(programming),
	)
	return nil
}

// Filepath returns the file covering the week that contains now, e.g.
// data/weekly/2026weekly35.md.
func (w *Writer) Filepath(now time.Time) string {
	year, week := now.ISOWeek()
	return filepath.Join(w.dir, fmt.Sprintf("%dweekly%d.md", year, week))
}

// startOfWeek returns Monday 00:00 of now's week, in now's location.
func startOfWeek(now time.Time) time.Time {
	daysSinceMonday := (int(now.Weekday()) + 6) % 7
	day := now.AddDate(0, 0, -daysSinceMonday)
	return time.Date(day.Year(), day.Month(), day.Day(), 0, 0, 0, 0, now.Location())
}

func render(year, week int, weekStart time.Time, aiNews, programming []domain.ArticleRecord) string {
	weekEnd := weekStart.AddDate(0, 0, 6)

	var sb strings.Builder
	fmt.Fprintf(&sb, "# 第%d周资讯推荐\n\n", week)
	fmt.Fprintf(&sb, "时间范围：%s - %s\n\n---\n\n",
		weekStart.Format("2006年01月02日"),
		weekEnd.Format("2006年01月02日"),
	)

	sb.WriteString("## 🤖 AI资讯\n\n")
	renderSection(&sb, aiNews, "本周暂无AI资讯。\n")

	sb.WriteString("\n---\n\n## 💻 编程资讯\n\n")
	renderSection(&sb, programming, "本周暂无编程资讯。\n")

	fmt.Fprintf(&sb, "\n---\n\n统计信息：\n本周共推荐 %d 篇优质资讯\n- AI资讯：%d 篇\n- 编程资讯：%d 篇\n",
		len(aiNews)+len(programming), len(aiNews), len(programming),
	)
	return sb.String()
}

// renderSection writes articles in the plain-text form the WeChat
// official-account editor accepts; it does not render markdown links.
func renderSection(sb *strings.Builder, articles []domain.ArticleRecord, empty string) {
	if len(articles) == 0 {
		sb.WriteString(empty)
		return
	}
	for i, article := range articles {
		fmt.Fprintf(sb, "%d. %s\n", i+1, article.Title)
		if article.Summary != nil && *article.Summary != "" {
			fmt.Fprintf(sb, "   %s\n", truncate(*article.Summary, summaryLimit))
		}
		if article.Source != "" {
			fmt.Fprintf(sb, "   来源：%s\n", article.Source)
		}
		fmt.Fprintf(sb, "   链接：%s\n\n", article.URL)
	}
}

func truncate(s string, max int) string {
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max]) + "..."
}
