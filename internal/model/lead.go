package model

import "time"

// LeadStatus tracks a prospect through follow-up.
type LeadStatus string

const (
	LeadStatusNew       LeadStatus = "new"
	LeadStatusContacted LeadStatus = "contacted"
	LeadStatusQualified LeadStatus = "qualified"
	LeadStatusClosed    LeadStatus = "closed"
)

// ProspectLead is a company surfaced by deep analysis as a sales prospect.
// At most one lead exists per CompanyName.
type ProspectLead struct {
	ID                string     `json:"id"`
	CompanyName       string     `json:"company_name"`
	SourceArticleID   string     `json:"source_article_id"`
	Sector            string     `json:"sector"`
	Rationale         string     `json:"rationale"`
	SuggestedApproach string     `json:"suggested_approach"`
	Status            LeadStatus `json:"status"`
	CreatedAt         time.Time  `json:"created_at"`
}
