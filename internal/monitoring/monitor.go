package monitoring

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/sells-group/news-intel/internal/config"
	"github.com/sells-group/news-intel/internal/model"
	"github.com/sells-group/news-intel/internal/notify"
)

// Monitor records each run and sends ops alerts when a threshold is newly
// breached. An alert is not repeated until its condition clears.
type Monitor struct {
	collector *Collector
	alerter   *Alerter

	mu     sync.Mutex
	active map[AlertType]bool
}

// New creates a monitor.
func New(cfg config.MonitorConfig, n notify.Notifier) *Monitor {
	return &Monitor{
		collector: NewCollector(cfg.LookbackRuns),
		alerter:   NewAlerter(cfg, n),
		active:    make(map[AlertType]bool),
	}
}

// Observe records a finished run and evaluates thresholds.
func (m *Monitor) Observe(ctx context.Context, res *model.RunResult) {
	m.collector.Record(res)
	snap := m.collector.Collect()
	triggered := m.alerter.Evaluate(snap)

	m.mu.Lock()
	now := make(map[AlertType]bool, len(triggered))
	var fresh []Alert
	for _, a := range triggered {
		now[a.Type] = true
		if !m.active[a.Type] {
			fresh = append(fresh, a)
		}
	}
	m.active = now
	m.mu.Unlock()

	log := zap.L().With(zap.String("component", "monitoring"))
	if len(fresh) == 0 {
		log.Debug("monitoring: no new alerts", zap.Int("active", len(triggered)))
		return
	}
	sent := m.alerter.SendAlerts(ctx, fresh)
	log.Info("monitoring: alert check complete",
		zap.Int("alerts_triggered", len(fresh)),
		zap.Int("alerts_sent", sent),
	)
}

// Snapshot returns the current aggregate over retained runs.
func (m *Monitor) Snapshot() *MetricsSnapshot {
	return m.collector.Collect()
}
