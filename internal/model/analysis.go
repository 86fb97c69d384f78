package model

// ExtractedEntities holds the named entities found by triage.
type ExtractedEntities struct {
	Companies []CompanyMention `json:"companies"`
	People    []string         `json:"people"`
	Locations []string         `json:"locations"`
	Amounts   []string         `json:"amounts"`
}

// TriageResult is the output of the first-pass classifier.
type TriageResult struct {
	IsRelevant        bool              `json:"is_relevant"`
	RelevanceScore    int               `json:"relevance_score"`
	RelevanceReason   string            `json:"relevance_reason"`
	Categories        []Category        `json:"categories"`
	Sentiment         Sentiment         `json:"sentiment"`
	SentimentScore    float64           `json:"sentiment_score"`
	Urgency           int               `json:"urgency"`
	ExtractedEntities ExtractedEntities `json:"extracted_entities"`
	Summary           string            `json:"summary"`
	KeyPoints         []string          `json:"key_points"`
	Fallback          bool              `json:"fallback,omitempty"`
}

// TriageDefault is the conservative result used whenever triage cannot
// produce an answer.
func TriageDefault() TriageResult {
	return TriageResult{
		IsRelevant:     false,
		RelevanceScore: 0,
		Categories:     []Category{},
		Sentiment:      SentimentNeutral,
		Urgency:        1,
		ExtractedEntities: ExtractedEntities{
			Companies: []CompanyMention{},
			People:    []string{},
			Locations: []string{},
			Amounts:   []string{},
		},
		KeyPoints: []string{},
		Fallback:  true,
	}
}

// BusinessImpact describes how a story affects the business.
type BusinessImpact struct {
	Direct    string `json:"direct"`
	Indirect  string `json:"indirect"`
	Timeframe string `json:"timeframe"`
}

// Finding is a titled opportunity or risk.
type Finding struct {
	Title       string `json:"title"`
	Description string `json:"description"`
}

// LeadPotential flags an article as a source of a new prospect.
type LeadPotential struct {
	IsNewLead         bool   `json:"is_new_lead"`
	CompanyName       string `json:"company_name"`
	Sector            string `json:"sector"`
	Rationale         string `json:"rationale"`
	SuggestedApproach string `json:"suggested_approach"`
}

// DeepAnalysis is the output of the second-pass analyzer.
type DeepAnalysis struct {
	BusinessImpact          BusinessImpact `json:"business_impact"`
	Opportunities           []Finding      `json:"opportunities"`
	Risks                   []Finding      `json:"risks"`
	CompetitiveIntelligence string         `json:"competitive_intelligence"`
	RecommendedActions      []string       `json:"recommended_actions"`
	RelatedTrends           []string       `json:"related_trends"`
	LeadPotential           *LeadPotential `json:"lead_potential,omitempty"`
}

// EmptyDeepAnalysis is the neutral structure returned on analyzer failure.
func EmptyDeepAnalysis() DeepAnalysis {
	return DeepAnalysis{
		Opportunities:      []Finding{},
		Risks:              []Finding{},
		RecommendedActions: []string{},
		RelatedTrends:      []string{},
	}
}

// InsightType classifies a derived insight.
type InsightType string

const (
	InsightOpportunity InsightType = "OPPORTUNITY"
	InsightRisk        InsightType = "RISK"
)

// Insight is the single derived record for an analysed article.
type Insight struct {
	ID          string      `json:"id"`
	ArticleID   string      `json:"article_id"`
	Type        InsightType `json:"type"`
	Title       string      `json:"title"`
	Description string      `json:"description"`
}
