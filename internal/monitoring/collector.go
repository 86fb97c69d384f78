// Package monitoring watches pipeline run health and raises ops alerts
// when failure rate, spend or source output cross configured thresholds.
package monitoring

import (
	"sync"
	"time"

	"github.com/sells-group/news-intel/internal/model"
)

// MetricsSnapshot holds a point-in-time view of recent runs.
type MetricsSnapshot struct {
	Runs     int     `json:"runs"`
	Fetched  int     `json:"fetched"`
	Fresh    int     `json:"fresh"`
	Stored   int     `json:"stored"`
	Failed   int     `json:"failed"`
	Alerts   int     `json:"alerts"`
	Leads    int     `json:"leads"`
	FailRate float64 `json:"fail_rate"`
	CostUSD  float64 `json:"cost_usd"`

	// ConsecutiveEmpty counts the most recent runs that fetched nothing.
	ConsecutiveEmpty int `json:"consecutive_empty"`

	LastRunAt   time.Time `json:"last_run_at"`
	CollectedAt time.Time `json:"collected_at"`
}

type runSample struct {
	finishedAt time.Time
	fetched    int
	fresh      int
	stored     int
	failed     int
	alerts     int
	leads      int
	costUSD    float64
}

// Collector keeps the last N run results in memory.
type Collector struct {
	mu      sync.Mutex
	samples []runSample
	limit   int
}

// NewCollector creates a collector holding up to lookbackRuns results.
func NewCollector(lookbackRuns int) *Collector {
	if lookbackRuns <= 0 {
		lookbackRuns = 12
	}
	return &Collector{limit: lookbackRuns}
}

// Record adds a finished run, evicting the oldest beyond the limit.
func (c *Collector) Record(res *model.RunResult) {
	if res == nil {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.samples = append(c.samples, runSample{
		finishedAt: res.FinishedAt,
		fetched:    res.Fetched,
		fresh:      res.Fresh,
		stored:     res.Stored,
		failed:     res.Failed,
		alerts:     res.Alerts,
		leads:      res.Leads,
		costUSD:    res.EstCostUSD,
	})
	if over := len(c.samples) - c.limit; over > 0 {
		c.samples = append(c.samples[:0], c.samples[over:]...)
	}
}

// Collect aggregates the retained runs.
func (c *Collector) Collect() *MetricsSnapshot {
	c.mu.Lock()
	defer c.mu.Unlock()

	snap := &MetricsSnapshot{Runs: len(c.samples), CollectedAt: time.Now().UTC()}
	for _, s := range c.samples {
		snap.Fetched += s.fetched
		snap.Fresh += s.fresh
		snap.Stored += s.stored
		snap.Failed += s.failed
		snap.Alerts += s.alerts
		snap.Leads += s.leads
		snap.CostUSD += s.costUSD
	}
	if snap.Fresh > 0 {
		snap.FailRate = float64(snap.Failed) / float64(snap.Fresh)
	}
	for i := len(c.samples) - 1; i >= 0 && c.samples[i].fetched == 0; i-- {
		snap.ConsecutiveEmpty++
	}
	if n := len(c.samples); n > 0 {
		snap.LastRunAt = c.samples[n-1].finishedAt
	}
	return snap
}
