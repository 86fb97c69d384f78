package alert

import (
	"strings"
	"unicode"

	"github.com/sells-group/news-intel/internal/model"
)

// DefaultMinRelevance is the score below which no alert is raised.
const DefaultMinRelevance = 60

type rule struct {
	typ      model.AlertType
	priority model.Priority
	keywords []string
}

// rules is evaluated in order; the first rule with a keyword hit wins.
var rules = []rule{
	{model.AlertBreaking, model.PriorityCritical, []string{"breaking", "just in", "developing story", "urgent"}},
	{model.AlertGovernmentContract, model.PriorityHigh, []string{"contract awarded", "awarded a contract", "awarded contract", "government contract", "federal contract", "defense contract", "department of defense"}},
	{model.AlertMergerAcquisition, model.PriorityHigh, []string{"acquisition", "acquires", "acquired", "merger", "merges", "buyout", "takeover"}},
	{model.AlertCSuite, model.PriorityHigh, []string{"ceo", "cfo", "coo", "cto", "chief executive", "appoints", "appointed", "steps down", "resigns", "names new"}},
	{model.AlertEarnings, model.PriorityMedium, []string{"earnings", "quarterly results", "quarterly revenue", "profit", "guidance", "eps"}},
	{model.AlertNewFacility, model.PriorityHigh, []string{"new plant", "new facility", "new factory", "opens", "groundbreaking", "breaks ground", "expansion", "expands"}},
	{model.AlertCompetitorMove, model.PriorityMedium, []string{"competitor", "rival", "market share", "price cut", "undercuts"}},
	{model.AlertPolicyChange, model.PriorityMedium, []string{"tariff", "tariffs", "regulation", "legislation", "executive order", "tax credit", "policy"}},
	{model.AlertSupplyChain, model.PriorityMedium, []string{"supply chain", "shortage", "supplier", "logistics", "backlog", "lead times", "disruption"}},
}

// categoryOverrides apply, in order, when no keyword rule matched.
var categoryOverrides = []struct {
	category model.Category
	typ      model.AlertType
	priority model.Priority
}{
	{model.CategoryMergerAcquisition, model.AlertMergerAcquisition, model.PriorityHigh},
	{model.CategoryGovernment, model.AlertGovernmentContract, model.PriorityHigh},
	{model.CategoryLeadership, model.AlertCSuite, model.PriorityHigh},
}

var typeLabels = map[model.AlertType]string{
	model.AlertBreaking:           "Breaking",
	model.AlertGovernmentContract: "Government contract",
	model.AlertMergerAcquisition:  "M&A",
	model.AlertCSuite:             "Leadership change",
	model.AlertEarnings:           "Earnings",
	model.AlertNewFacility:        "New facility",
	model.AlertCompetitorMove:     "Competitor move",
	model.AlertPolicyChange:       "Policy change",
	model.AlertSupplyChain:        "Supply chain",
}

// Classifier decides whether an article raises an alert and of what kind.
type Classifier struct {
	minRelevance int
}

// NewClassifier creates a classifier. A non-positive minRelevance uses
// DefaultMinRelevance.
func NewClassifier(minRelevance int) *Classifier {
	if minRelevance <= 0 {
		minRelevance = DefaultMinRelevance
	}
	return &Classifier{minRelevance: minRelevance}
}

// Classify returns the alert type and priority for an article, or false
// when the article raises no alert.
func (c *Classifier) Classify(a *model.Article) (model.AlertType, model.Priority, bool) {
	if a.RelevanceScore < c.minRelevance {
		return "", 0, false
	}
	if a.IsBreaking {
		return model.AlertBreaking, model.PriorityCritical, true
	}

	text := words(a.Title + " " + a.Description + " " + a.Summary)
	for _, r := range rules {
		if text.hasAny(r.keywords) {
			return r.typ, r.priority, true
		}
	}
	for _, o := range categoryOverrides {
		if a.HasCategory(o.category) {
			return o.typ, o.priority, true
		}
	}
	return "", 0, false
}

// Label is the human name of an alert type.
func Label(t model.AlertType) string {
	if l, ok := typeLabels[t]; ok {
		return l
	}
	return string(t)
}

// wordText is lowercased, space-padded text for whole-word phrase lookups.
type wordText string

func words(s string) wordText {
	f := strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '&'
	})
	return wordText(" " + strings.Join(f, " ") + " ")
}

func (t wordText) hasAny(phrases []string) bool {
	for _, p := range phrases {
		if strings.Contains(string(t), " "+p+" ") {
			return true
		}
	}
	return false
}
