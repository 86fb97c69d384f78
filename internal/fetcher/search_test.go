package fetcher

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/news-intel/internal/config"
	"github.com/sells-group/news-intel/internal/model"
)

func newSearch(url string, maxItems int) *SearchSource {
	return NewSearchSource(
		model.Source{Kind: model.SourceSearch, Provider: "gnews", Query: "robotics plant"},
		config.ProviderConfig{BaseURL: url + "/search", Key: "secret", KeyParam: "token"},
		newTestFetcher(),
		maxItems,
	)
}

func TestSearchSource_Fetch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/search", r.URL.Path)
		assert.Equal(t, "robotics plant", r.URL.Query().Get("q"))
		assert.Equal(t, "secret", r.URL.Query().Get("token"))
		w.Write([]byte(`{"totalArticles": 2, "articles": [
			{"title": "Plant opens", "description": "<p>New <i>line</i></p>", "url": "https://a.example.com/1",
			 "source": {"name": "Reuters", "url": "https://reuters.com"}, "publishedAt": "2026-03-02T10:00:00Z"},
			{"title": "Second", "content": "content only", "url": "https://a.example.com/2", "source": "AP"}
		]}`))
	}))
	defer srv.Close()

	items, err := newSearch(srv.URL, 0).Fetch(context.Background())
	require.NoError(t, err)
	require.Len(t, items, 2)
	assert.Equal(t, "New line", items[0].Description)
	assert.Equal(t, "Reuters", items[0].Source)
	assert.Equal(t, 2026, items[0].PublishedAt.Year())
	assert.Equal(t, "content only", items[1].Description)
	assert.Equal(t, "AP", items[1].Source)
	assert.True(t, items[1].PublishedAt.IsZero())
}

func TestSearchSource_BareArrayAndProviderFallback(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`[{"title":"A","url":"https://x/a"},{"title":"B","url":"https://x/b"},{"title":"C","url":"https://x/c"}]`))
	}))
	defer srv.Close()

	items, err := newSearch(srv.URL, 2).Fetch(context.Background())
	require.NoError(t, err)
	require.Len(t, items, 2)
	assert.Equal(t, "gnews", items[0].Source)
}

func TestSearchSource_Non2xxIsError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	items, err := newSearch(srv.URL, 0).Fetch(context.Background())
	assert.Error(t, err)
	assert.Empty(t, items)
}

func TestSearchSource_MalformedJSON(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`<html>gateway error</html>`))
	}))
	defer srv.Close()

	items, err := newSearch(srv.URL, 0).Fetch(context.Background())
	assert.Error(t, err)
	assert.Empty(t, items)
}

func TestSearchSource_MalformedElementSkipped(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`[{"title":"ok","url":"https://x/1"},{"title": 42},{"title":"after","url":"https://x/2"}]`))
	}))
	defer srv.Close()

	items, err := newSearch(srv.URL, 0).Fetch(context.Background())
	require.NoError(t, err)
	require.Len(t, items, 2)
	assert.Equal(t, "ok", items[0].Title)
	assert.Equal(t, "after", items[1].Title)
}

func TestSearchSource_TruncatedBodyKeepsEarlier(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`[{"title":"ok","url":"https://x/1"},{"title":"cut`))
	}))
	defer srv.Close()

	items, err := newSearch(srv.URL, 0).Fetch(context.Background())
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "ok", items[0].Title)
}

func TestSearchSource_RequestURLDefaultKeyParam(t *testing.T) {
	s := NewSearchSource(
		model.Source{Kind: model.SourceSearch, Provider: "p", Query: "steel mill"},
		config.ProviderConfig{BaseURL: "https://api.example.com/v2/everything?lang=en", Key: "k"},
		nil, 0,
	)
	u, err := s.RequestURL()
	require.NoError(t, err)
	assert.Contains(t, u, "apikey=k")
	assert.Contains(t, u, "lang=en")
	assert.Contains(t, u, "q=steel+mill")
}
