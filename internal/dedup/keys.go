// Package dedup drops raw items whose canonical URL or title has already
// been seen in the batch or in earlier runs.
package dedup

import (
	"net/url"
	"strings"

	"golang.org/x/text/unicode/norm"

	"github.com/sells-group/news-intel/internal/model"
)

const titleKeyLen = 50

// URLKey canonicalizes an absolute http(s) URL: lowercase scheme and host,
// query and fragment dropped, trailing slash trimmed. Relative or
// unparseable URLs have no key.
func URLKey(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ""
	}
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return ""
	}
	scheme := strings.ToLower(u.Scheme)
	if scheme != "http" && scheme != "https" {
		return ""
	}

	path := strings.TrimRight(u.EscapedPath(), "/")
	return scheme + "://" + strings.ToLower(u.Host) + path
}

// TitleKey reduces a title to its first 50 lowercase ASCII letters and
// digits after compatibility decomposition, so accents and punctuation do
// not separate syndicated copies.
func TitleKey(title string) string {
	decomposed := norm.NFKD.String(title)

	var b strings.Builder
	n := 0
	for _, r := range decomposed {
		if n == titleKeyLen {
			break
		}
		switch {
		case r >= 'A' && r <= 'Z':
			b.WriteRune(r + ('a' - 'A'))
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
		default:
			continue
		}
		n++
	}
	return b.String()
}

// Keys returns the identity keys of an item, prefixed by kind so a URL and
// a title can never collide.
func Keys(it model.RawItem) []string {
	var keys []string
	if k := URLKey(it.URL); k != "" {
		keys = append(keys, "u:"+k)
	}
	if k := TitleKey(it.Title); k != "" {
		keys = append(keys, "t:"+k)
	}
	return keys
}
