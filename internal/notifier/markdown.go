// Package notifier delivers assembled digests. The markdown rendering
// is shared by every channel so subscribers see the same document no
// matter how it arrives.
package notifier

import (
	"fmt"
	"strings"

	"daily_digest/internal/domain"
)

// BuildMarkdown renders a digest as the markdown document sent to
// subscribers.
func BuildMarkdown(digest domain.Digest) string {
	var sb strings.Builder

	fmt.Fprintf(&sb, "**AI 编程优质文章推荐｜%s**\n", digest.GeneratedAt.Format("2006-01-02"))
	if digest.Theme != "" {
		fmt.Fprintf(&sb, "> 今日主题：%s\n", digest.Theme)
	}
	sb.WriteString("\n")

	for i, article := range digest.Articles {
		fmt.Fprintf(&sb, "%d. [%s](%s)\n", i+1, article.Title, article.URL)
		if article.Source != "" {
			fmt.Fprintf(&sb, "   来源：%s\n", article.Source)
		}
		if article.Summary != nil && *article.Summary != "" {
			fmt.Fprintf(&sb, "   %s\n", truncate(*article.Summary, 100))
		}
	}

	return sb.String()
}

func truncate(s string, max int) string {
	runes := []rune(s)
	if len(runes) <= max {
		return s
	}
	return string(runes[:max]) + "…"
}
