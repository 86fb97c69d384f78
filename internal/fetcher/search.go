package fetcher

import (
	"bytes"
	"context"
	"encoding/json"
	"net/url"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/news-intel/internal/config"
	"github.com/sells-group/news-intel/internal/model"
)

// searchItem is one element of a keyword-search provider response.
type searchItem struct {
	Title       string          `json:"title"`
	Description string          `json:"description"`
	Content     string          `json:"content"`
	URL         string          `json:"url"`
	Source      json.RawMessage `json:"source"`
	PublishedAt string          `json:"publishedAt"`
	Image       string          `json:"image"`
}

// sourceName reads the source field, which providers send either as a
// plain string or as an object with a name.
func (it searchItem) sourceName() string {
	raw := bytes.TrimSpace(it.Source)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return ""
	}
	var name string
	if err := json.Unmarshal(raw, &name); err == nil {
		return name
	}
	var obj struct {
		Name string `json:"name"`
	}
	if err := json.Unmarshal(raw, &obj); err == nil {
		return obj.Name
	}
	return ""
}

var publishedLayouts = []string{
	time.RFC3339,
	time.RFC3339Nano,
	"2006-01-02 15:04:05",
	"2006-01-02",
}

func parsePublished(s string) time.Time {
	s = strings.TrimSpace(s)
	for _, layout := range publishedLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t
		}
	}
	return time.Time{}
}

// SearchSource queries a keyword-search news API.
type SearchSource struct {
	src      model.Source
	provider config.ProviderConfig
	dl       Downloader
	maxItems int
}

// NewSearchSource creates a search adapter for one query against provider.
func NewSearchSource(src model.Source, provider config.ProviderConfig, dl Downloader, maxItems int) *SearchSource {
	return &SearchSource{src: src, provider: provider, dl: dl, maxItems: maxItems}
}

// Key identifies the query.
func (s *SearchSource) Key() string { return s.src.Key() }

// RequestURL builds the provider URL for the query.
func (s *SearchSource) RequestURL() (string, error) {
	u, err := url.Parse(s.provider.BaseURL)
	if err != nil {
		return "", eris.Wrapf(err, "fetcher: parse provider url %s", s.src.Provider)
	}
	q := u.Query()
	q.Set("q", s.src.Query)
	if s.provider.Key != "" {
		param := s.provider.KeyParam
		if param == "" {
			param = "apikey"
		}
		q.Set(param, s.provider.Key)
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// Fetch runs the query. Elements are decoded one at a time; an element of
// the wrong shape is skipped, and broken JSON ends the stream keeping what
// was decoded before it.
func (s *SearchSource) Fetch(ctx context.Context) ([]model.RawItem, error) {
	reqURL, err := s.RequestURL()
	if err != nil {
		return nil, err
	}

	body, err := s.dl.Download(ctx, reqURL)
	if err != nil {
		return nil, eris.Wrapf(err, "fetcher: search %s", s.Key())
	}
	defer body.Close() //nolint:errcheck

	decodeCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	elems, errs := DecodeJSONArray[searchItem](decodeCtx, body)

	var items []model.RawItem
	for el := range elems {
		if s.maxItems > 0 && len(items) >= s.maxItems {
			cancel()
			break
		}
		desc := el.Description
		if desc == "" {
			desc = el.Content
		}
		source := el.sourceName()
		if source == "" {
			source = s.src.Provider
		}
		items = append(items, model.RawItem{
			Title:       StripMarkup(el.Title),
			Description: StripMarkup(desc),
			URL:         strings.TrimSpace(el.URL),
			Source:      source,
			PublishedAt: parsePublished(el.PublishedAt),
		})
	}
	// Drain so the decoder goroutine can exit after a cancel.
	for range elems {
	}

	if err := <-errs; err != nil && decodeCtx.Err() == nil {
		if len(items) == 0 {
			return nil, eris.Wrapf(err, "fetcher: decode search %s", s.Key())
		}
		zap.L().Warn("fetcher: search response truncated by malformed element",
			zap.String("source", s.Key()),
			zap.Int("kept", len(items)),
			zap.Error(err),
		)
	}
	return items, nil
}
