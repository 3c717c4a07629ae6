// Package normalize canonicalizes article URLs so that the same piece
// published under slightly different links dedupes to one pool entry.
package normalize

import (
	"net/url"
	"path"
	"sort"
	"strings"
)

const weixinHost = "mp.weixin.qq.com"

// Stable query parameters that identify a Weixin article regardless of
// how the link was shared.
var weixinStableParams = []string{"__biz", "mid", "idx", "sn"}

// Per-share parameters Weixin rotates on every copy of a link. A URL
// carrying only these cannot be canonicalized and is matched exactly.
var weixinVolatileParams = map[string]struct{}{
	"src":       {},
	"timestamp": {},
	"ver":       {},
	"signature": {},
	"new":       {},
}

// Tracking parameters stripped from every non-Weixin URL.
var trackingParams = map[string]struct{}{
	"fbclid":      {},
	"gclid":       {},
	"igshid":      {},
	"spm":         {},
	"ref":         {},
	"from":        {},
	"share_token": {},
	"sessionid":   {},
	"session_id":  {},
}

// Normalize returns the canonical form of rawURL. Unparseable input is
// returned trimmed, so every URL still maps to a stable key. The
// function is idempotent: Normalize(Normalize(u)) == Normalize(u).
func Normalize(rawURL string) string {
	raw := strings.TrimSpace(rawURL)
	if raw == "" {
		return ""
	}

	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return raw
	}

	u.Scheme = strings.ToLower(u.Scheme)
	u.Host = strings.ToLower(u.Host)
	u.Host = strings.TrimSuffix(u.Host, defaultPort(u.Scheme))
	u.Fragment = ""

	if u.Host == weixinHost {
		return normalizeWeixin(u, raw)
	}

	u.Path = cleanPath(u.Path)
	u.RawQuery = encodeFiltered(u.Query())
	return u.String()
}

func normalizeWeixin(u *url.URL, raw string) string {
	// Permalink form: /s/<token> carries the identity in the path.
	if rest, ok := strings.CutPrefix(u.Path, "/s/"); ok && rest != "" {
		return u.Scheme + "://" + u.Host + "/s/" + rest
	}

	q := u.Query()
	var stable []string
	for _, key := range weixinStableParams {
		if v := q.Get(key); v != "" {
			stable = append(stable, key+"="+url.QueryEscape(v))
		}
	}
	if len(stable) > 0 {
		sort.Strings(stable)
		return u.Scheme + "://" + u.Host + "/s?" + strings.Join(stable, "&")
	}

	for key := range q {
		if _, volatile := weixinVolatileParams[key]; volatile {
			// No stable identity to extract. Keep the link verbatim so
			// dedup falls back to exact matching.
			return raw
		}
	}

	u.Path = cleanPath(u.Path)
	u.RawQuery = encodeFiltered(q)
	return u.String()
}

func cleanPath(p string) string {
	if p == "" {
		return ""
	}
	p = path.Clean(p)
	if p == "." || p == "/" {
		return ""
	}
	return strings.TrimSuffix(p, "/")
}

func encodeFiltered(q url.Values) string {
	for key := range q {
		if _, tracking := trackingParams[key]; tracking || strings.HasPrefix(key, "utm_") {
			delete(q, key)
		}
	}
	return q.Encode()
}

func defaultPort(scheme string) string {
	switch scheme {
	case "http":
		return ":80"
	case "https":
		return ":443"
	}
	return ""
}
