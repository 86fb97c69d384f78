// Package alert turns scored articles into per-user alerts.
package alert

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/news-intel/internal/model"
	"github.com/sells-group/news-intel/internal/notify"
	"github.com/sells-group/news-intel/internal/store"
)

// Store is the persistence the dispatcher needs.
type Store interface {
	CreateAlertIfAbsent(ctx context.Context, a *model.Alert) (bool, error)
	ListAlerts(ctx context.Context, filter store.AlertFilter) ([]model.Alert, error)
	MarkAlertRead(ctx context.Context, id string) error
	DismissAlert(ctx context.Context, id string) error
}

// Recipients returns the users who should receive an alert of the given
// priority about the given companies. A user qualifies when assigned to
// one of the companies, or when their role is elevated and the alert is at
// least HIGH. The user also needs an enabled channel and a threshold the
// priority meets.
func Recipients(users []model.User, priority model.Priority, companyIDs []string) []model.User {
	var out []model.User
	for i := range users {
		u := &users[i]
		eligible := u.AssignedTo(companyIDs) || (u.Role.Elevated() && priority.AtLeast(model.PriorityHigh))
		if !eligible || !u.Channels.Any() || !priority.AtLeast(u.PriorityThreshold) {
			continue
		}
		out = append(out, *u)
	}
	return out
}

// Dispatcher creates and delivers alerts.
type Dispatcher struct {
	classifier *Classifier
	store      Store
	notifier   notify.Notifier
	log        *zap.Logger
}

// NewDispatcher creates a dispatcher.
func NewDispatcher(c *Classifier, st Store, n notify.Notifier) *Dispatcher {
	return &Dispatcher{
		classifier: c,
		store:      st,
		notifier:   n,
		log:        zap.L().With(zap.String("component", "alert")),
	}
}

// Dispatch raises alerts for a stored article. It returns only the alerts
// newly created; repeated dispatches of the same article create none.
// Notifier failures are logged, since the alert is already persisted.
func (d *Dispatcher) Dispatch(ctx context.Context, a *model.Article, users []model.User) ([]model.Alert, error) {
	typ, priority, ok := d.classifier.Classify(a)
	if !ok {
		return nil, nil
	}

	var created []model.Alert
	for _, u := range Recipients(users, priority, a.CompanyIDs()) {
		al := model.Alert{
			UserID:    u.ID,
			ArticleID: a.ID,
			Type:      typ,
			Priority:  priority,
			Title:     fmt.Sprintf("%s: %s", Label(typ), a.Title),
			Message:   message(a),
		}
		isNew, err := d.store.CreateAlertIfAbsent(ctx, &al)
		if err != nil {
			return created, eris.Wrapf(err, "alert: create for user %s", u.ID)
		}
		if !isNew {
			continue
		}
		created = append(created, al)

		msg := notify.Message{
			Kind:      notify.KindAlert,
			Recipient: u.ID,
			Subject:   al.Title,
			Body:      al.Message,
			Data:      al,
			CreatedAt: al.CreatedAt,
		}
		if u.Channels.Email {
			msg.Email = u.Email
		}
		if err := d.notifier.Notify(ctx, msg); err != nil {
			d.log.Warn("alert: notify failed",
				zap.String("user_id", u.ID),
				zap.String("alert_id", al.ID),
				zap.Error(err),
			)
		}
	}

	if len(created) > 0 {
		d.log.Info("alert: dispatched",
			zap.String("article_id", a.ID),
			zap.String("type", string(typ)),
			zap.Stringer("priority", priority),
			zap.Int("alerts", len(created)),
		)
	}
	return created, nil
}

func message(a *model.Article) string {
	body := a.Summary
	if body == "" {
		body = a.Description
	}
	var b strings.Builder
	b.WriteString(body)
	if a.URL != "" {
		if b.Len() > 0 {
			b.WriteString("\n\n")
		}
		b.WriteString(a.URL)
	}
	return b.String()
}

// MarkRead marks an alert read.
func (d *Dispatcher) MarkRead(ctx context.Context, id string) error {
	return d.store.MarkAlertRead(ctx, id)
}

// Dismiss dismisses an alert. A later dispatch may alert the same user
// about the same article again.
func (d *Dispatcher) Dismiss(ctx context.Context, id string) error {
	return d.store.DismissAlert(ctx, id)
}

// Digest is a per-user roll-up of open alerts.
type Digest struct {
	UserID      string         `json:"user_id"`
	Since       time.Time      `json:"since"`
	GeneratedAt time.Time      `json:"generated_at"`
	Total       int            `json:"total"`
	Unread      int            `json:"unread"`
	ByPriority  map[string]int `json:"by_priority"`
	ByType      map[string]int `json:"by_type"`
	Alerts      []model.Alert  `json:"alerts"`
}

// Digest collects a user's undismissed alerts created since the given time,
// highest priority first.
func (d *Dispatcher) Digest(ctx context.Context, userID string, since time.Time) (*Digest, error) {
	alerts, err := d.store.ListAlerts(ctx, store.AlertFilter{UserID: userID, Since: since})
	if err != nil {
		return nil, eris.Wrapf(err, "alert: digest for user %s", userID)
	}

	dg := &Digest{
		UserID:      userID,
		Since:       since,
		GeneratedAt: time.Now().UTC(),
		ByPriority:  make(map[string]int),
		ByType:      make(map[string]int),
		Alerts:      []model.Alert{},
	}
	for p := model.PriorityCritical; p >= model.PriorityLow; p-- {
		for _, a := range alerts {
			if a.Priority != p {
				continue
			}
			dg.Alerts = append(dg.Alerts, a)
			dg.ByPriority[p.String()]++
			dg.ByType[string(a.Type)]++
			if a.ReadAt == nil {
				dg.Unread++
			}
		}
	}
	dg.Total = len(dg.Alerts)
	return dg, nil
}

// SendDigest composes a user's digest and hands it to the notifier. An
// empty digest is not sent.
func (d *Dispatcher) SendDigest(ctx context.Context, u model.User, since time.Time) (*Digest, error) {
	dg, err := d.Digest(ctx, u.ID, since)
	if err != nil || dg.Total == 0 {
		return dg, err
	}

	var b strings.Builder
	for _, a := range dg.Alerts {
		fmt.Fprintf(&b, "[%s] %s\n", a.Priority, a.Title)
	}
	msg := notify.Message{
		Kind:      notify.KindDigest,
		Recipient: u.ID,
		Subject:   fmt.Sprintf("%d news alerts (%d unread)", dg.Total, dg.Unread),
		Body:      b.String(),
		Data:      dg,
		CreatedAt: dg.GeneratedAt,
	}
	if u.Channels.Email {
		msg.Email = u.Email
	}
	if err := d.notifier.Notify(ctx, msg); err != nil {
		return dg, eris.Wrapf(err, "alert: send digest to %s", u.ID)
	}
	return dg, nil
}
