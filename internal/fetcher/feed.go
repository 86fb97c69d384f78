package fetcher

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/mmcdole/gofeed"
	"github.com/rotisserie/eris"

	"github.com/sells-group/news-intel/internal/model"
)

// RSSSource reads an RSS or Atom feed. It remembers the feed's ETag so an
// unchanged feed costs one conditional request and yields no items.
type RSSSource struct {
	src      model.Source
	dl       Downloader
	maxItems int
	parser   *gofeed.Parser

	mu   sync.Mutex
	etag string
}

// NewRSSSource creates a feed adapter. maxItems <= 0 keeps every item.
func NewRSSSource(src model.Source, dl Downloader, maxItems int) *RSSSource {
	return &RSSSource{src: src, dl: dl, maxItems: maxItems, parser: gofeed.NewParser()}
}

// Key identifies the feed.
func (s *RSSSource) Key() string { return s.src.Key() }

// Fetch downloads and parses the feed.
func (s *RSSSource) Fetch(ctx context.Context) ([]model.RawItem, error) {
	s.mu.Lock()
	etag := s.etag
	s.mu.Unlock()

	body, newETag, changed, err := s.dl.DownloadIfChanged(ctx, s.src.URL, etag)
	if err != nil {
		return nil, eris.Wrapf(err, "fetcher: rss %s", s.Key())
	}
	if !changed {
		return nil, nil
	}
	defer body.Close() //nolint:errcheck

	feed, err := s.parser.Parse(body)
	if err != nil {
		return nil, eris.Wrapf(err, "fetcher: parse feed %s", s.Key())
	}

	s.mu.Lock()
	s.etag = newETag
	s.mu.Unlock()

	sourceName := s.src.Name
	if sourceName == "" {
		sourceName = strings.TrimSpace(feed.Title)
	}

	count := len(feed.Items)
	if s.maxItems > 0 && count > s.maxItems {
		count = s.maxItems
	}

	items := make([]model.RawItem, 0, count)
	for _, it := range feed.Items[:count] {
		if it == nil {
			continue
		}
		items = append(items, feedItem(it, sourceName))
	}
	return items, nil
}

func feedItem(it *gofeed.Item, source string) model.RawItem {
	var publishedAt time.Time
	if it.PublishedParsed != nil {
		publishedAt = *it.PublishedParsed
	} else if it.UpdatedParsed != nil {
		publishedAt = *it.UpdatedParsed
	}

	desc := it.Description
	if desc == "" {
		desc = it.Content
	}

	return model.RawItem{
		Title:       StripMarkup(it.Title),
		Description: StripMarkup(desc),
		URL:         strings.TrimSpace(it.Link),
		Source:      source,
		PublishedAt: publishedAt,
	}
}
