package history

import (
	"net/url"
	"strings"
)

var trackingParams = []string{"utm_source", "utm_medium", "utm_campaign"}

// NormalizeURL folds URLs that point at the same content into one form so
// the history dedupes them. YouTube watch URLs keep only the video and
// playlist; campaign tracking parameters are dropped elsewhere. A URL that
// does not parse is returned unchanged.
func NormalizeURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return raw
	}

	q := u.Query()
	if strings.Contains(u.Hostname(), "youtube.com") && q.Has("v") {
		out := "https://www.youtube.com/watch?v=" + url.QueryEscape(q.Get("v"))
		if q.Has("list") {
			out += "&list=" + url.QueryEscape(q.Get("list"))
		}
		return out
	}

	stripped := false
	for _, p := range trackingParams {
		if q.Has(p) {
			q.Del(p)
			stripped = true
		}
	}
	if !stripped {
		return raw
	}
	u.RawQuery = q.Encode()
	return u.String()
}

// IsInternal reports whether raw uses one of the privileged browser schemes.
// Schemes are matched as case-insensitive prefixes, so both "chrome://" and
// "about:" forms work.
func IsInternal(raw string, schemes []string) bool {
	lower := strings.ToLower(strings.TrimSpace(raw))
	for _, s := range schemes {
		if s != "" && strings.HasPrefix(lower, strings.ToLower(s)) {
			return true
		}
	}
	return false
}
