package fetcher

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/news-intel/internal/model"
)

const testFeed = `<?xml version="1.0" encoding="UTF-8"?>
<rss version="2.0">
<channel>
  <title>Industry Wire</title>
  <item>
    <title>FANUC Opens New Robotics Assembly Plant in Ohio</title>
    <link>https://news.example.com/fanuc-ohio?utm_source=rss</link>
    <pubDate>Mon, 02 Mar 2026 14:00:00 GMT</pubDate>
    <description><![CDATA[<p>The <b>$200M expansion</b> adds 400 jobs.</p>]]></description>
  </item>
  <item>
    <title>Supplier &amp; Partner Update</title>
    <link>https://news.example.com/supplier</link>
  </item>
  <item>
    <title>Third</title>
    <link>https://news.example.com/third</link>
  </item>
</channel>
</rss>`

func TestRSSSource_Fetch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/rss+xml")
		w.Write([]byte(testFeed))
	}))
	defer srv.Close()

	src := NewRSSSource(model.Source{Kind: model.SourceRSS, URL: srv.URL}, newTestFetcher(), 0)
	items, err := src.Fetch(context.Background())
	require.NoError(t, err)
	require.Len(t, items, 3)

	first := items[0]
	assert.Equal(t, "FANUC Opens New Robotics Assembly Plant in Ohio", first.Title)
	assert.Equal(t, "The $200M expansion adds 400 jobs.", first.Description)
	assert.Equal(t, "https://news.example.com/fanuc-ohio?utm_source=rss", first.URL)
	assert.Equal(t, "Industry Wire", first.Source)
	assert.Equal(t, 2026, first.PublishedAt.Year())

	second := items[1]
	assert.Equal(t, "Supplier & Partner Update", second.Title)
	assert.Equal(t, "", second.Description)
	assert.True(t, second.PublishedAt.IsZero())
}

func TestRSSSource_MaxItemsAndName(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(testFeed))
	}))
	defer srv.Close()

	src := NewRSSSource(model.Source{Name: "wire", URL: srv.URL}, newTestFetcher(), 2)
	items, err := src.Fetch(context.Background())
	require.NoError(t, err)
	require.Len(t, items, 2)
	assert.Equal(t, "wire", items[0].Source)
	assert.Equal(t, "wire", src.Key())
}

func TestRSSSource_UnchangedFeedYieldsNothing(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("If-None-Match") == `"v1"` {
			w.WriteHeader(http.StatusNotModified)
			return
		}
		w.Header().Set("ETag", `"v1"`)
		w.Write([]byte(testFeed))
	}))
	defer srv.Close()

	src := NewRSSSource(model.Source{URL: srv.URL}, newTestFetcher(), 0)
	items, err := src.Fetch(context.Background())
	require.NoError(t, err)
	assert.Len(t, items, 3)

	items, err = src.Fetch(context.Background())
	require.NoError(t, err)
	assert.Empty(t, items)
}

func TestRSSSource_MalformedFeed(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("this is not a feed"))
	}))
	defer srv.Close()

	_, err := NewRSSSource(model.Source{URL: srv.URL}, newTestFetcher(), 0).Fetch(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "fetcher: parse feed")
}
