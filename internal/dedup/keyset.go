package dedup

import (
	"context"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rotisserie/eris"
)

// KeySet holds identity keys already seen.
type KeySet interface {
	// Contains reports, per key, whether it is present.
	Contains(ctx context.Context, keys []string) ([]bool, error)
	// Add records keys.
	Add(ctx context.Context, keys []string) error
}

type entry struct {
	key string
	ts  time.Time
}

// MemoryKeySet keeps keys in process memory, bounded by capacity and TTL.
// The oldest keys are evicted first.
type MemoryKeySet struct {
	mu       sync.Mutex
	items    map[string]time.Time
	order    []entry
	capacity int
	ttl      time.Duration
	now      func() time.Time
}

// NewMemoryKeySet creates a key set. capacity <= 0 means unbounded and
// ttl <= 0 means keys never expire.
func NewMemoryKeySet(capacity int, ttl time.Duration) *MemoryKeySet {
	return &MemoryKeySet{
		items:    make(map[string]time.Time),
		capacity: capacity,
		ttl:      ttl,
		now:      time.Now,
	}
}

// Contains reports which keys are present and unexpired.
func (m *MemoryKeySet) Contains(_ context.Context, keys []string) ([]bool, error) {
	now := m.now()

	m.mu.Lock()
	defer m.mu.Unlock()

	out := make([]bool, len(keys))
	for i, k := range keys {
		ts, ok := m.items[k]
		out[i] = ok && (m.ttl <= 0 || now.Sub(ts) <= m.ttl)
	}
	return out, nil
}

// Add records keys as seen now.
func (m *MemoryKeySet) Add(_ context.Context, keys []string) error {
	now := m.now()

	m.mu.Lock()
	defer m.mu.Unlock()

	for _, k := range keys {
		m.items[k] = now
		m.order = append(m.order, entry{key: k, ts: now})
	}
	m.compact(now)
	return nil
}

// Len returns the number of keys held.
func (m *MemoryKeySet) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.items)
}

func (m *MemoryKeySet) compact(now time.Time) {
	for len(m.order) > 0 {
		oldest := m.order[0]
		overCap := m.capacity > 0 && len(m.items) > m.capacity
		expired := m.ttl > 0 && oldest.ts.Before(now.Add(-m.ttl))
		stale := m.items[oldest.key] != oldest.ts
		if !overCap && !expired && !stale {
			return
		}
		m.order = m.order[1:]
		if !stale {
			delete(m.items, oldest.key)
		}
	}
}

// RedisKeySet keeps keys in a Redis set shared across processes and runs.
// The set's TTL slides forward on every add.
type RedisKeySet struct {
	client redis.UniversalClient
	key    string
	ttl    time.Duration
}

// NewRedisKeySet wraps client. ttl <= 0 leaves the set without expiry.
func NewRedisKeySet(client redis.UniversalClient, key string, ttl time.Duration) *RedisKeySet {
	if key == "" {
		key = "news-intel:seen"
	}
	return &RedisKeySet{client: client, key: key, ttl: ttl}
}

// Contains reports which keys are members of the set.
func (r *RedisKeySet) Contains(ctx context.Context, keys []string) ([]bool, error) {
	if len(keys) == 0 {
		return nil, nil
	}
	members := make([]any, len(keys))
	for i, k := range keys {
		members[i] = k
	}
	res, err := r.client.SMIsMember(ctx, r.key, members...).Result()
	if err != nil {
		return nil, eris.Wrap(err, "dedup: redis smismember")
	}
	return res, nil
}

// Add inserts keys and refreshes the set's TTL.
func (r *RedisKeySet) Add(ctx context.Context, keys []string) error {
	if len(keys) == 0 {
		return nil
	}
	members := make([]any, len(keys))
	for i, k := range keys {
		members[i] = k
	}

	pipe := r.client.TxPipeline()
	pipe.SAdd(ctx, r.key, members...)
	if r.ttl > 0 {
		pipe.Expire(ctx, r.key, r.ttl)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return eris.Wrap(err, "dedup: redis sadd")
	}
	return nil
}
