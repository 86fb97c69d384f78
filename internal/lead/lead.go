// Package lead records new prospect companies surfaced by deep analysis.
package lead

import (
	"context"
	"fmt"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/news-intel/internal/model"
	"github.com/sells-group/news-intel/internal/notify"
)

// ExecutiveAudience is the recipient name used for lead notifications.
const ExecutiveAudience = "executives"

// Store is the persistence the extractor needs.
type Store interface {
	CreateLeadIfAbsent(ctx context.Context, l *model.ProspectLead) (bool, error)
}

// Extractor creates at most one lead per company name.
type Extractor struct {
	store    Store
	notifier notify.Notifier
}

// NewExtractor creates an extractor.
func NewExtractor(st Store, n notify.Notifier) *Extractor {
	return &Extractor{store: st, notifier: n}
}

// Extract creates a lead from an analysis flagged as a new lead. It returns
// the lead when one was created and nil when the analysis carries no new
// lead or the company already has one. The executive users are notified
// once per created lead.
func (e *Extractor) Extract(ctx context.Context, articleID string, da model.DeepAnalysis, users []model.User) (*model.ProspectLead, error) {
	lp := da.LeadPotential
	if lp == nil || !lp.IsNewLead || strings.TrimSpace(lp.CompanyName) == "" {
		return nil, nil
	}

	l := &model.ProspectLead{
		CompanyName:       lp.CompanyName,
		SourceArticleID:   articleID,
		Sector:            lp.Sector,
		Rationale:         lp.Rationale,
		SuggestedApproach: lp.SuggestedApproach,
		Status:            model.LeadStatusNew,
	}
	created, err := e.store.CreateLeadIfAbsent(ctx, l)
	if err != nil {
		return nil, eris.Wrapf(err, "lead: create %s", lp.CompanyName)
	}
	if !created {
		zap.L().Debug("lead: already tracked", zap.String("company", lp.CompanyName))
		return nil, nil
	}

	zap.L().Info("lead: created",
		zap.String("company", l.CompanyName),
		zap.String("sector", l.Sector),
		zap.String("article_id", articleID),
	)
	e.notifyExecutives(ctx, l, users)
	return l, nil
}

func (e *Extractor) notifyExecutives(ctx context.Context, l *model.ProspectLead, users []model.User) {
	subject := fmt.Sprintf("New prospect: %s", l.CompanyName)
	body := fmt.Sprintf("Sector: %s\nWhy: %s\nApproach: %s", l.Sector, l.Rationale, l.SuggestedApproach)

	sent := 0
	for _, u := range users {
		if !u.Role.Elevated() || !u.Channels.Any() {
			continue
		}
		msg := notify.Message{
			Kind:      notify.KindLead,
			Recipient: u.ID,
			Subject:   subject,
			Body:      body,
			Data:      l,
			CreatedAt: l.CreatedAt,
		}
		if u.Channels.Email {
			msg.Email = u.Email
		}
		if err := e.notifier.Notify(ctx, msg); err != nil {
			zap.L().Warn("lead: notify failed", zap.String("user_id", u.ID), zap.Error(err))
		}
		sent++
	}
	if sent > 0 {
		return
	}

	// No executive is registered; publish to the audience as a whole.
	if err := e.notifier.Notify(ctx, notify.Message{
		Kind:      notify.KindLead,
		Recipient: ExecutiveAudience,
		Subject:   subject,
		Body:      body,
		Data:      l,
		CreatedAt: l.CreatedAt,
	}); err != nil {
		zap.L().Warn("lead: notify failed", zap.String("recipient", ExecutiveAudience), zap.Error(err))
	}
}
