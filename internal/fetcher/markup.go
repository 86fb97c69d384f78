package fetcher

import (
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// StripMarkup returns the visible text of an HTML fragment with whitespace
// collapsed. Plain text passes through unchanged apart from whitespace.
func StripMarkup(s string) string {
	if s == "" {
		return ""
	}
	text := s
	if strings.ContainsAny(s, "<&") {
		doc, err := goquery.NewDocumentFromReader(strings.NewReader(s))
		if err == nil {
			doc.Find("script, style").Remove()
			text = doc.Text()
		}
	}
	return strings.Join(strings.Fields(text), " ")
}
