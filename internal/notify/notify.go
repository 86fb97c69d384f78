// Package notify delivers composed alert, lead and digest payloads. The
// pipeline's job ends at handing a Message to a Notifier.
package notify

import (
	"context"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/news-intel/internal/config"
)

// Kind labels a payload.
type Kind string

const (
	KindAlert  Kind = "alert"
	KindLead   Kind = "lead"
	KindDigest Kind = "digest"
	KindOps    Kind = "ops"
)

// Message is a fully composed notification.
type Message struct {
	Kind      Kind      `json:"kind"`
	Recipient string    `json:"recipient"`
	Email     string    `json:"email,omitempty"`
	Subject   string    `json:"subject"`
	Body      string    `json:"body"`
	Data      any       `json:"data,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// Notifier delivers messages.
type Notifier interface {
	Notify(ctx context.Context, msg Message) error
}

// New builds the notifier selected by cfg.Driver.
func New(cfg config.NotifyConfig) (Notifier, error) {
	switch cfg.Driver {
	case "", "log":
		return LogNotifier{}, nil
	case "webhook":
		return NewWebhook(cfg.WebhookURL), nil
	case "kafka":
		return NewKafka(cfg.Brokers, cfg.Topic)
	default:
		return nil, eris.Errorf("notify: unknown driver %q", cfg.Driver)
	}
}

// LogNotifier writes messages to the structured log.
type LogNotifier struct{}

func (LogNotifier) Notify(_ context.Context, msg Message) error {
	zap.L().Info("notify: message",
		zap.String("kind", string(msg.Kind)),
		zap.String("recipient", msg.Recipient),
		zap.String("subject", msg.Subject),
	)
	return nil
}

// Fanout delivers to every notifier and returns the first error.
type Fanout []Notifier

func (f Fanout) Notify(ctx context.Context, msg Message) error {
	var first error
	for _, n := range f {
		if err := n.Notify(ctx, msg); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// Close releases notifier resources when the notifier holds any.
func Close(n Notifier) error {
	if c, ok := n.(interface{ Close() error }); ok {
		return c.Close()
	}
	return nil
}
