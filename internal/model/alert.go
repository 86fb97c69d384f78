package model

import (
	"strings"
	"time"
)

// Priority orders alerts. The zero value is invalid.
type Priority int

const (
	PriorityLow Priority = iota + 1
	PriorityMedium
	PriorityHigh
	PriorityCritical
)

func (p Priority) String() string {
	switch p {
	case PriorityLow:
		return "LOW"
	case PriorityMedium:
		return "MEDIUM"
	case PriorityHigh:
		return "HIGH"
	case PriorityCritical:
		return "CRITICAL"
	default:
		return "UNKNOWN"
	}
}

// AtLeast reports whether p meets the threshold.
func (p Priority) AtLeast(threshold Priority) bool {
	return p >= threshold
}

// ParsePriority parses LOW|MEDIUM|HIGH|CRITICAL (case-insensitive).
// Unknown values map to MEDIUM.
func ParsePriority(s string) Priority {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "LOW":
		return PriorityLow
	case "HIGH":
		return PriorityHigh
	case "CRITICAL":
		return PriorityCritical
	default:
		return PriorityMedium
	}
}

// MarshalText encodes the priority by name.
func (p Priority) MarshalText() ([]byte, error) {
	return []byte(p.String()), nil
}

// UnmarshalText decodes a priority name.
func (p *Priority) UnmarshalText(b []byte) error {
	*p = ParsePriority(string(b))
	return nil
}

// AlertType identifies the trigger that produced an alert.
type AlertType string

const (
	AlertBreaking           AlertType = "breaking"
	AlertGovernmentContract AlertType = "government_contract"
	AlertMergerAcquisition  AlertType = "merger_acquisition"
	AlertCSuite             AlertType = "c_suite"
	AlertEarnings           AlertType = "earnings"
	AlertNewFacility        AlertType = "new_facility"
	AlertCompetitorMove     AlertType = "competitor_move"
	AlertPolicyChange       AlertType = "policy_change"
	AlertSupplyChain        AlertType = "supply_chain"
)

// Alert is a per-user notification about an article.
type Alert struct {
	ID          string     `json:"id"`
	UserID      string     `json:"user_id"`
	ArticleID   string     `json:"article_id"`
	Type        AlertType  `json:"type"`
	Priority    Priority   `json:"priority"`
	Title       string     `json:"title"`
	Message     string     `json:"message"`
	CreatedAt   time.Time  `json:"created_at"`
	ReadAt      *time.Time `json:"read_at,omitempty"`
	DismissedAt *time.Time `json:"dismissed_at,omitempty"`
}

// Dismissed reports whether the user dismissed the alert.
func (a *Alert) Dismissed() bool {
	return a.DismissedAt != nil
}
