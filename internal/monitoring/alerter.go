package monitoring

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/sells-group/news-intel/internal/config"
	"github.com/sells-group/news-intel/internal/notify"
)

// OpsRecipient is the notification audience for run-health alerts.
const OpsRecipient = "ops"

// AlertType identifies the kind of ops alert.
type AlertType string

const (
	AlertArticleFailureRate AlertType = "article_failure_rate"
	AlertCostOverrun        AlertType = "cost_overrun"
	AlertNoItems            AlertType = "no_items"
)

// Alert represents a single ops alert to be sent.
type Alert struct {
	Type      AlertType      `json:"type"`
	Severity  string         `json:"severity"`
	Message   string         `json:"message"`
	Details   map[string]any `json:"details,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
}

// Alerter evaluates a MetricsSnapshot against configured thresholds and
// hands breaches to a notifier.
type Alerter struct {
	cfg      config.MonitorConfig
	notifier notify.Notifier
}

// NewAlerter creates an Alerter.
func NewAlerter(cfg config.MonitorConfig, n notify.Notifier) *Alerter {
	return &Alerter{cfg: cfg, notifier: n}
}

// Evaluate checks the snapshot against thresholds and returns any alerts.
func (a *Alerter) Evaluate(snap *MetricsSnapshot) []Alert {
	var alerts []Alert
	now := time.Now().UTC()

	// Enough articles for the rate to mean something.
	if snap.Fresh >= 10 && a.cfg.FailureRateThreshold > 0 && snap.FailRate > a.cfg.FailureRateThreshold {
		alerts = append(alerts, Alert{
			Type:     AlertArticleFailureRate,
			Severity: "high",
			Message: fmt.Sprintf(
				"Article failure rate %.1f%% exceeds threshold %.1f%% (%d failed / %d fresh over last %d runs)",
				snap.FailRate*100, a.cfg.FailureRateThreshold*100,
				snap.Failed, snap.Fresh, snap.Runs,
			),
			Details: map[string]any{
				"failure_rate": snap.FailRate,
				"threshold":    a.cfg.FailureRateThreshold,
				"failed":       snap.Failed,
				"fresh":        snap.Fresh,
			},
			Timestamp: now,
		})
	}

	if a.cfg.CostThresholdUSD > 0 && snap.CostUSD > a.cfg.CostThresholdUSD {
		alerts = append(alerts, Alert{
			Type:     AlertCostOverrun,
			Severity: "high",
			Message: fmt.Sprintf(
				"Text-analysis cost $%.2f exceeds threshold $%.2f over last %d runs",
				snap.CostUSD, a.cfg.CostThresholdUSD, snap.Runs,
			),
			Details: map[string]any{
				"cost_usd":      snap.CostUSD,
				"threshold_usd": a.cfg.CostThresholdUSD,
				"runs":          snap.Runs,
			},
			Timestamp: now,
		})
	}

	if a.cfg.EmptyRunsThreshold > 0 && snap.ConsecutiveEmpty >= a.cfg.EmptyRunsThreshold {
		alerts = append(alerts, Alert{
			Type:     AlertNoItems,
			Severity: "medium",
			Message:  fmt.Sprintf("No items fetched in the last %d runs", snap.ConsecutiveEmpty),
			Details: map[string]any{
				"consecutive_empty": snap.ConsecutiveEmpty,
			},
			Timestamp: now,
		})
	}

	return alerts
}

// SendAlerts delivers alerts to the ops audience. Returns the number of
// alerts successfully sent.
func (a *Alerter) SendAlerts(ctx context.Context, alerts []Alert) int {
	if a.notifier == nil {
		return 0
	}

	sent := 0
	for _, alert := range alerts {
		err := a.notifier.Notify(ctx, notify.Message{
			Kind:      notify.KindOps,
			Recipient: OpsRecipient,
			Subject:   fmt.Sprintf("[%s] %s", alert.Severity, alert.Type),
			Body:      alert.Message,
			Data:      alert,
			CreatedAt: alert.Timestamp,
		})
		if err != nil {
			zap.L().Error("monitoring: failed to send alert",
				zap.String("type", string(alert.Type)),
				zap.Error(err),
			)
			continue
		}
		zap.L().Info("monitoring: alert sent",
			zap.String("type", string(alert.Type)),
			zap.String("severity", alert.Severity),
		)
		sent++
	}
	return sent
}
