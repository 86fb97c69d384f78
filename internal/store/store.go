// Package store persists articles, the company and user registry, alerts,
// leads and insights. Every write is idempotent on natural identity.
package store

import (
	"context"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/news-intel/internal/model"
)

// ErrNotFound is returned when an update targets a missing row.
var ErrNotFound = eris.New("store: not found")

// ArticleFilter selects stored articles. Zero values do not filter.
type ArticleFilter struct {
	Since        time.Time      `json:"since,omitempty"`
	RelevantOnly bool           `json:"relevant_only,omitempty"`
	MinScore     int            `json:"min_score,omitempty"`
	CompanyID    string         `json:"company_id,omitempty"`
	Category     model.Category `json:"category,omitempty"`
	Limit        int            `json:"limit,omitempty"`
}

// AlertFilter selects alerts for a user.
type AlertFilter struct {
	UserID           string    `json:"user_id,omitempty"`
	Since            time.Time `json:"since,omitempty"`
	UnreadOnly       bool      `json:"unread_only,omitempty"`
	IncludeDismissed bool      `json:"include_dismissed,omitempty"`
	Limit            int       `json:"limit,omitempty"`
}

// LeadFilter selects prospect leads.
type LeadFilter struct {
	Status model.LeadStatus `json:"status,omitempty"`
	Limit  int              `json:"limit,omitempty"`
}

// Store defines the persistence interface for the news pipeline.
type Store interface {
	// Articles. UpsertArticle keys on URL and sets a.ID to the stored id.
	UpsertArticle(ctx context.Context, a *model.Article) error
	ListArticles(ctx context.Context, filter ArticleFilter) ([]model.Article, error)
	RecentItems(ctx context.Context, since time.Time) ([]model.RawItem, error)

	// Registry
	UpsertCompanies(ctx context.Context, companies []model.Company) error
	ListCompanies(ctx context.Context) ([]model.Company, error)
	UpsertUsers(ctx context.Context, users []model.User) error
	ListUsers(ctx context.Context) ([]model.User, error)

	// Alerts. CreateAlertIfAbsent reports false when an undismissed alert
	// for the same (user, article, type) already exists.
	CreateAlertIfAbsent(ctx context.Context, a *model.Alert) (bool, error)
	ListAlerts(ctx context.Context, filter AlertFilter) ([]model.Alert, error)
	MarkAlertRead(ctx context.Context, id string) error
	DismissAlert(ctx context.Context, id string) error

	// Leads. CreateLeadIfAbsent reports false when a lead with the exact
	// company name exists.
	CreateLeadIfAbsent(ctx context.Context, l *model.ProspectLead) (bool, error)
	ListLeads(ctx context.Context, filter LeadFilter) ([]model.ProspectLead, error)

	// Insights, one per article.
	SaveInsight(ctx context.Context, in model.Insight) error

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}
