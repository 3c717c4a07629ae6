package weixinsearch

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const resultsPage = `<!DOCTYPE html>
<html><body>
<ul class="news-list">
  <li>
    <h3><a href="/link?url=first">First AI Coding Article</a></h3>
    <p class="txt-info">How agents write production code.</p>
    <a class="account">TechWeekly</a>
  </li>
  <li>
    <h3><a href="/link?url=broken">Goes Nowhere Useful</a></h3>
  </li>
  <li>
    <h3><a href="/link?url=second">Second Article</a></h3>
    <p class="txt-info"></p>
  </li>
</ul>
</body></html>`

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelError}))
}

// newSearchServer serves a search page plus the redirect interstitials.
// Resolved article URLs stay on the test server, carrying the weixin
// host as a path prefix so the collector's host check still applies.
func newSearchServer(t *testing.T, page string) *httptest.Server {
	t.Helper()

	mux := http.NewServeMux()
	mux.HandleFunc("/weixin", func(w http.ResponseWriter, r *http.Request) {
		_, _ = fmt.Fprint(w, page)
	})
	mux.HandleFunc("/link", func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Query().Get("url") {
		case "broken":
			http.Redirect(w, r, "/antispider", http.StatusFound)
		default:
			http.Redirect(w, r, "/mp.weixin.qq.com/s/Token-"+r.URL.Query().Get("url"), http.StatusFound)
		}
	})
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	return httptest.NewServer(mux)
}

func TestCollect(t *testing.T) {
	server := newSearchServer(t, resultsPage)
	defer server.Close()

	collector := New(Config{BaseURL: server.URL + "/weixin", Timeout: 5 * time.Second}, testLogger())

	records, err := collector.Collect(context.Background(), "AI编程", 10)
	require.NoError(t, err)
	require.Len(t, records, 2, "unresolvable hits are skipped")

	assert.Equal(t, "First AI Coding Article", records[0].Title)
	assert.Contains(t, records[0].URL, "mp.weixin.qq.com/s/Token-first")
	assert.Equal(t, "TechWeekly", records[0].Source)
	require.NotNil(t, records[0].Summary)
	assert.Equal(t, "How agents write production code.", *records[0].Summary)
	assert.Equal(t, "AI编程", records[0].Keyword)

	assert.Equal(t, "Second Article", records[1].Title)
	assert.Nil(t, records[1].Summary, "blank summaries stay absent")
}

func TestCollectSendsQuery(t *testing.T) {
	var gotQuery, gotType string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.Query().Get("query")
		gotType = r.URL.Query().Get("type")
		_, _ = fmt.Fprint(w, "<html></html>")
	}))
	defer server.Close()

	collector := New(Config{BaseURL: server.URL, Timeout: 5 * time.Second}, testLogger())
	_, err := collector.Collect(context.Background(), "AI编程", 5)
	require.NoError(t, err)
	assert.Equal(t, "AI编程", gotQuery)
	assert.Equal(t, "2", gotType)
}

func TestCollectEmptyPage(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = fmt.Fprint(w, "<html><body><p>异常访问</p></body></html>")
	}))
	defer server.Close()

	collector := New(Config{BaseURL: server.URL, Timeout: 5 * time.Second}, testLogger())
	records, err := collector.Collect(context.Background(), "cursor", 5)
	require.NoError(t, err)
	assert.Empty(t, records)
}

func TestCollectRespectsMaxCount(t *testing.T) {
	server := newSearchServer(t, resultsPage)
	defer server.Close()

	collector := New(Config{BaseURL: server.URL + "/weixin", Timeout: 5 * time.Second}, testLogger())

	records, err := collector.Collect(context.Background(), "ai", 1)
	require.NoError(t, err)
	assert.Len(t, records, 1)
}
