package dedup

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/news-intel/internal/model"
)

func TestURLKey(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"https://News.Example.com/a/b/?utm_source=rss#top", "https://news.example.com/a/b"},
		{"HTTP://example.com", "http://example.com"},
		{"https://example.com/", "https://example.com"},
		{"/relative/path", ""},
		{"ftp://example.com/file", ""},
		{"::not a url", ""},
		{"", ""},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, URLKey(tt.in), tt.in)
	}
}

func TestTitleKey(t *testing.T) {
	assert.Equal(t, "fanucopensnewroboticsassemblyplantinohio", TitleKey("FANUC Opens New Robotics Assembly Plant in Ohio"))
	assert.Equal(t, "cafeexpansion", TitleKey("Café — Expansion!"))
	assert.Equal(t, TitleKey("Plant Opens"), TitleKey("  plant   OPENS... "))

	long := "Manufacturer Announces Major Expansion Of Its Midwest Operations With New Hires"
	assert.Len(t, TitleKey(long), 50)
	assert.Equal(t, "", TitleKey("—!?"))
}

func TestDedup_TrackingParamCopies(t *testing.T) {
	batch := []model.RawItem{
		{Title: "Plant Opens", URL: "https://news.example.com/story?utm_source=twitter"},
		{Title: "Plant Opens", URL: "https://news.example.com/story?utm_source=rss"},
	}
	fresh, err := Dedup(context.Background(), batch, NewMemoryKeySet(0, 0))
	require.NoError(t, err)
	require.Len(t, fresh, 1)
	assert.Contains(t, fresh[0].URL, "utm_source=twitter")
}

func TestDedup_SyndicatedTitleDifferentURL(t *testing.T) {
	batch := []model.RawItem{
		{Title: "Robotics firm opens Ohio plant", URL: "https://a.example.com/1"},
		{Title: "Robotics Firm Opens Ohio Plant", URL: "https://b.example.com/xyz"},
		{Title: "Different story", URL: "https://a.example.com/2"},
	}
	fresh, err := Dedup(context.Background(), batch, NewMemoryKeySet(0, 0))
	require.NoError(t, err)
	assert.Len(t, fresh, 2)
}

func TestDedup_IdempotentAcrossRuns(t *testing.T) {
	batch := []model.RawItem{
		{Title: "One", URL: "https://x.example.com/1"},
		{Title: "Two", URL: "https://x.example.com/2"},
		{Title: "No URL story"},
	}
	known := NewMemoryKeySet(0, 0)

	first, err := Dedup(context.Background(), batch, known)
	require.NoError(t, err)
	assert.Len(t, first, 3)

	second, err := Dedup(context.Background(), batch, known)
	require.NoError(t, err)
	assert.Empty(t, second)
}

func TestFilter_LeavesKnownUntouchedUntilCommit(t *testing.T) {
	ctx := context.Background()
	known := NewMemoryKeySet(0, 0)
	batch := []model.RawItem{
		{Title: "Stored", URL: "https://x.example.com/1"},
		{Title: "Store failed", URL: "https://x.example.com/2"},
		{Title: "stored!", URL: "https://y.example.com/copy"},
	}

	fresh, err := Filter(ctx, batch, known)
	require.NoError(t, err)
	require.Len(t, fresh, 2)
	assert.Equal(t, 0, known.Len())

	require.NoError(t, Commit(ctx, known, fresh[:1]))

	again, err := Filter(ctx, batch, known)
	require.NoError(t, err)
	require.Len(t, again, 1)
	assert.Equal(t, "Store failed", again[0].Title)
}

func TestCommit_Empty(t *testing.T) {
	assert.NoError(t, Commit(context.Background(), failingAddSet{}, nil))
	assert.ErrorContains(t, Commit(context.Background(), failingAddSet{},
		[]model.RawItem{{Title: "x", URL: "https://a/b"}}), "dedup: record keys")
}

func TestDedup_DropsItemsWithoutIdentity(t *testing.T) {
	fresh, err := Dedup(context.Background(), []model.RawItem{{Title: "...", URL: "/rel"}}, NewMemoryKeySet(0, 0))
	require.NoError(t, err)
	assert.Empty(t, fresh)
}

func TestSeed(t *testing.T) {
	known := NewMemoryKeySet(0, 0)
	require.NoError(t, Seed(context.Background(), known, []model.RawItem{
		{Title: "Stored earlier", URL: "https://x.example.com/old"},
	}))

	fresh, err := Dedup(context.Background(), []model.RawItem{
		{Title: "Stored Earlier", URL: "https://mirror.example.org/copy"},
		{Title: "New", URL: "https://x.example.com/old/?ref=home"},
		{Title: "Brand new", URL: "https://x.example.com/new"},
	}, known)
	require.NoError(t, err)
	require.Len(t, fresh, 1)
	assert.Equal(t, "Brand new", fresh[0].Title)
}

type failingSet struct{}

func (failingSet) Contains(context.Context, []string) ([]bool, error) {
	return nil, errors.New("redis down")
}
func (failingSet) Add(context.Context, []string) error { return nil }

type failingAddSet struct{}

func (failingAddSet) Contains(_ context.Context, keys []string) ([]bool, error) {
	return make([]bool, len(keys)), nil
}
func (failingAddSet) Add(context.Context, []string) error { return errors.New("redis down") }

func TestDedup_KeySetError(t *testing.T) {
	_, err := Dedup(context.Background(), []model.RawItem{{Title: "x", URL: "https://a/b"}}, failingSet{})
	assert.ErrorContains(t, err, "dedup: lookup known keys")
}

func TestMemoryKeySet_TTLAndCapacity(t *testing.T) {
	clock := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	m := NewMemoryKeySet(2, time.Hour)
	m.now = func() time.Time { return clock }
	ctx := context.Background()

	require.NoError(t, m.Add(ctx, []string{"a", "b"}))
	clock = clock.Add(30 * time.Minute)
	require.NoError(t, m.Add(ctx, []string{"c"}))

	got, _ := m.Contains(ctx, []string{"a", "b", "c"})
	assert.Equal(t, []bool{false, true, true}, got)
	assert.Equal(t, 2, m.Len())

	clock = clock.Add(45 * time.Minute)
	got, _ = m.Contains(ctx, []string{"b", "c"})
	assert.Equal(t, []bool{false, true}, got)
}

func TestRedisKeySet(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	set := NewRedisKeySet(client, "test:seen", time.Hour)
	ctx := context.Background()

	got, err := set.Contains(ctx, []string{"u:https://a"})
	require.NoError(t, err)
	assert.Equal(t, []bool{false}, got)

	batch := []model.RawItem{{Title: "Redis backed", URL: "https://a.example.com/r"}}
	fresh, err := Dedup(ctx, batch, set)
	require.NoError(t, err)
	assert.Len(t, fresh, 1)

	assert.True(t, mr.Exists("test:seen"))
	assert.Equal(t, time.Hour, mr.TTL("test:seen"))

	// A second process sharing the same redis sees the keys.
	other := NewRedisKeySet(redis.NewClient(&redis.Options{Addr: mr.Addr()}), "test:seen", time.Hour)
	fresh, err = Dedup(ctx, batch, other)
	require.NoError(t, err)
	assert.Empty(t, fresh)
}

func TestRedisKeySet_Unavailable(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1})
	mr.Close()

	_, err := NewRedisKeySet(client, "", 0).Contains(context.Background(), []string{"k"})
	assert.Error(t, err)
}
