package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/news-intel/internal/alert"
	"github.com/sells-group/news-intel/internal/cache"
	"github.com/sells-group/news-intel/internal/model"
	"github.com/sells-group/news-intel/internal/notify"
	"github.com/sells-group/news-intel/internal/store"
)

type apiFixture struct {
	st      *store.SQLiteStore
	handler http.Handler
	loads   int
}

func newAPIFixture(t *testing.T, load cache.Loader) *apiFixture {
	t.Helper()
	st, err := store.NewSQLite(filepath.Join(t.TempDir(), "api.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() }) //nolint:errcheck
	require.NoError(t, st.Migrate(context.Background()))

	f := &apiFixture{st: st}
	if load == nil {
		load = func(context.Context) ([]model.Article, error) {
			f.loads++
			return []model.Article{
				{ID: "a1", RawItem: model.RawItem{Title: "FANUC expands"}, CompanyMatches: []model.CompanyMatch{{CompanyID: "fanuc", IsPrimary: true}}},
				{ID: "a2", RawItem: model.RawItem{Title: "ABB wins"}, CompanyMatches: []model.CompanyMatch{{CompanyID: "abb", IsPrimary: true}}},
			}, nil
		}
	}
	api := &apiServer{
		store:      st,
		dispatcher: alert.NewDispatcher(alert.NewClassifier(60), st, notify.LogNotifier{}),
		cache:      cache.New(load, time.Minute),
	}
	f.handler = newRouter(api, []string{"*"})
	return f
}

func (f *apiFixture) do(t *testing.T, method, path string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, nil)
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)
	return rec
}

func (f *apiFixture) seedAlert(t *testing.T, userID string) model.Alert {
	t.Helper()
	a := model.Alert{
		ID:        "al-" + userID,
		UserID:    userID,
		ArticleID: "art-1",
		Type:      model.AlertMergerAcquisition,
		Priority:  model.PriorityHigh,
		Title:     "M&A: FANUC acquires a startup",
		CreatedAt: time.Now().UTC(),
	}
	created, err := f.st.CreateAlertIfAbsent(context.Background(), &a)
	require.NoError(t, err)
	require.True(t, created)
	return a
}

func TestAPI_Health(t *testing.T) {
	f := newAPIFixture(t, nil)
	rec := f.do(t, http.MethodGet, "/health")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"status":"ok"`)
}

func TestAPI_ArticlesCachedUntilRefresh(t *testing.T) {
	f := newAPIFixture(t, nil)

	rec := f.do(t, http.MethodGet, "/articles")
	require.Equal(t, http.StatusOK, rec.Code)
	var e model.CacheEntry
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &e))
	assert.Len(t, e.Articles, 2)

	f.do(t, http.MethodGet, "/articles")
	assert.Equal(t, 1, f.loads)

	f.do(t, http.MethodGet, "/articles?refresh=true")
	assert.Equal(t, 2, f.loads)
}

func TestAPI_ArticlesCompanyFilter(t *testing.T) {
	f := newAPIFixture(t, nil)

	rec := f.do(t, http.MethodGet, "/articles?company=abb")
	require.Equal(t, http.StatusOK, rec.Code)
	var e model.CacheEntry
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &e))
	require.Len(t, e.Articles, 1)
	assert.Equal(t, "a2", e.Articles[0].ID)
}

func TestAPI_ArticlesUnavailable(t *testing.T) {
	f := newAPIFixture(t, func(context.Context) ([]model.Article, error) {
		return nil, errors.New("store down")
	})
	rec := f.do(t, http.MethodGet, "/articles")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestAPI_AlertLifecycle(t *testing.T) {
	f := newAPIFixture(t, nil)
	a := f.seedAlert(t, "u1")

	rec := f.do(t, http.MethodGet, "/users/u1/alerts?unread=true")
	require.Equal(t, http.StatusOK, rec.Code)
	var alerts []model.Alert
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &alerts))
	require.Len(t, alerts, 1)

	rec = f.do(t, http.MethodPost, "/alerts/"+a.ID+"/read")
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = f.do(t, http.MethodGet, "/users/u1/alerts?unread=true")
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &alerts))
	assert.Empty(t, alerts)

	rec = f.do(t, http.MethodPost, "/alerts/"+a.ID+"/dismiss")
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec = f.do(t, http.MethodGet, "/users/u1/alerts")
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &alerts))
	assert.Empty(t, alerts)
}

func TestAPI_AlertActionNotFound(t *testing.T) {
	f := newAPIFixture(t, nil)
	rec := f.do(t, http.MethodPost, "/alerts/missing/read")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestAPI_Digest(t *testing.T) {
	f := newAPIFixture(t, nil)
	f.seedAlert(t, "u1")

	rec := f.do(t, http.MethodGet, "/users/u1/digest?since=1h")
	require.Equal(t, http.StatusOK, rec.Code)
	var dg alert.Digest
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &dg))
	assert.Equal(t, 1, dg.Total)
	assert.Equal(t, 1, dg.Unread)

	rec = f.do(t, http.MethodGet, "/users/u1/digest?since=yesterday")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestAPI_LeadsEmptyList(t *testing.T) {
	f := newAPIFixture(t, nil)
	rec := f.do(t, http.MethodGet, "/leads")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `[]`, rec.Body.String())
}

func TestAPI_LeadsStatusFilter(t *testing.T) {
	f := newAPIFixture(t, nil)
	ctx := context.Background()
	_, err := f.st.CreateLeadIfAbsent(ctx, &model.ProspectLead{ID: "l1", CompanyName: "Acme", Status: model.LeadStatusNew, CreatedAt: time.Now().UTC()})
	require.NoError(t, err)

	rec := f.do(t, http.MethodGet, "/leads?status=new")
	var leads []model.ProspectLead
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &leads))
	require.Len(t, leads, 1)
	assert.Equal(t, "Acme", leads[0].CompanyName)

	rec = f.do(t, http.MethodGet, "/leads?status=closed")
	assert.JSONEq(t, `[]`, rec.Body.String())
}

func TestAPI_CORSPreflight(t *testing.T) {
	f := newAPIFixture(t, nil)
	req := httptest.NewRequest(http.MethodOptions, "/articles", nil)
	req.Header.Set("Origin", "https://dashboard.example.com")
	req.Header.Set("Access-Control-Request-Method", http.MethodGet)
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
}

func TestParseSince(t *testing.T) {
	now := time.Date(2026, 10, 15, 12, 0, 0, 0, time.UTC)

	got, ok := parseSince("", now)
	assert.True(t, ok)
	assert.Equal(t, now.Add(-24*time.Hour), got)

	got, ok = parseSince("2h", now)
	assert.True(t, ok)
	assert.Equal(t, now.Add(-2*time.Hour), got)

	got, ok = parseSince("2026-10-01T00:00:00Z", now)
	assert.True(t, ok)
	assert.Equal(t, time.Date(2026, 10, 1, 0, 0, 0, 0, time.UTC), got)

	_, ok = parseSince("-2h", now)
	assert.False(t, ok)
}

func TestClampInt(t *testing.T) {
	assert.Equal(t, 50, clampInt("", 50, 500))
	assert.Equal(t, 50, clampInt("abc", 50, 500))
	assert.Equal(t, 50, clampInt("0", 50, 500))
	assert.Equal(t, 10, clampInt("10", 50, 500))
	assert.Equal(t, 500, clampInt("9999", 50, 500))
}

func TestFormatRunResult(t *testing.T) {
	start := time.Date(2026, 10, 15, 9, 0, 0, 0, time.UTC)
	var buf bytes.Buffer
	formatRunResult(&buf, &model.RunResult{
		StartedAt:  start,
		FinishedAt: start.Add(3 * time.Second),
		Fetched:    12,
		Stored:     2,
		EstCostUSD: 0.0123,
		Articles: []model.Article{
			{RawItem: model.RawItem{Title: "FANUC plant fire"}, RelevanceScore: 88, IsBreaking: true,
				CompanyMatches: []model.CompanyMatch{{CompanyID: "fanuc", IsPrimary: true}}},
		},
	})
	out := buf.String()
	assert.Contains(t, out, "Fetched")
	assert.Contains(t, out, "$0.0123")
	assert.Contains(t, out, "fanuc")
	assert.Contains(t, out, "FANUC plant fire")
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "short", truncate("short", 10))
	assert.Equal(t, "abcdefg...", truncate("abcdefghijklmnop", 10))
}
