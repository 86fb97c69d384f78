// Package model defines the types that flow through the news pipeline.
package model

import "time"

// Sentiment is the overall tone of an article.
type Sentiment string

const (
	SentimentPositive Sentiment = "positive"
	SentimentNegative Sentiment = "negative"
	SentimentNeutral  Sentiment = "neutral"
)

// ParseSentiment maps free text to a Sentiment, defaulting to neutral.
func ParseSentiment(s string) Sentiment {
	switch Sentiment(lowerTrim(s)) {
	case SentimentPositive:
		return SentimentPositive
	case SentimentNegative:
		return SentimentNegative
	default:
		return SentimentNeutral
	}
}

// RawItem is a news item as produced by a source adapter.
type RawItem struct {
	Title       string    `json:"title"`
	Description string    `json:"description"`
	URL         string    `json:"url"`
	Source      string    `json:"source"`
	PublishedAt time.Time `json:"published_at"`
}

// Article is a RawItem annotated by the pipeline stages. Annotations are
// added stage by stage; identity fields are fixed once the article is
// accepted by dedup.
type Article struct {
	ID string `json:"id"`
	RawItem

	IsRelevant     bool           `json:"is_relevant"`
	RelevanceScore int            `json:"relevance_score"`
	Sentiment      Sentiment      `json:"sentiment"`
	Categories     []Category     `json:"categories"`
	IsBreaking     bool           `json:"is_breaking"`
	Summary        string         `json:"summary,omitempty"`
	CompanyMatches []CompanyMatch `json:"company_matches,omitempty"`
	Triage         *TriageResult  `json:"triage,omitempty"`
	DeepAnalysis   *DeepAnalysis  `json:"deep_analysis,omitempty"`
	StoredAt       time.Time      `json:"stored_at,omitempty"`
}

// HasCategory reports whether the article carries the given category.
func (a *Article) HasCategory(c Category) bool {
	for _, got := range a.Categories {
		if got == c {
			return true
		}
	}
	return false
}

// CompanyIDs returns the ids of all matched companies.
func (a *Article) CompanyIDs() []string {
	ids := make([]string, 0, len(a.CompanyMatches))
	for _, m := range a.CompanyMatches {
		ids = append(ids, m.CompanyID)
	}
	return ids
}

// PrimaryCompany returns the primary company match, if any.
func (a *Article) PrimaryCompany() (CompanyMatch, bool) {
	for _, m := range a.CompanyMatches {
		if m.IsPrimary {
			return m, true
		}
	}
	return CompanyMatch{}, false
}

// CacheEntry is the aggregation cache's single slot.
type CacheEntry struct {
	Articles  []Article `json:"articles"`
	FetchedAt time.Time `json:"fetched_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Expired reports whether the entry is stale at now.
func (e *CacheEntry) Expired(now time.Time) bool {
	return e == nil || !now.Before(e.ExpiresAt)
}
