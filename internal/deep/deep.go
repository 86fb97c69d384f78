// Package deep runs the expensive second-pass analysis on articles whose
// triage score clears the gate.
package deep

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/sells-group/news-intel/internal/model"
	"github.com/sells-group/news-intel/internal/textai"
)

// DefaultThreshold is the relevance score at which deep analysis runs.
const DefaultThreshold = 70

const systemPrompt = `You are a business analyst for an industrial automation and manufacturing services company. Assess what a news story means for the company's sales, partnerships and competitive position.

Respond with exactly one JSON object and nothing else:
{
  "businessImpact": {"direct": "<text>", "indirect": "<text>", "timeframe": "<immediate|short-term|long-term>"},
  "opportunities": [{"title": "<short>", "description": "<text>"}],
  "risks": [{"title": "<short>", "description": "<text>"}],
  "competitiveIntelligence": "<text>",
  "recommendedActions": ["<action>"],
  "relatedTrends": ["<trend>"],
  "leadPotential": {"isNewLead": <true|false>, "companyName": "<exact company name>", "sector": "<sector>", "rationale": "<why>", "suggestedApproach": "<how to engage>"}
}
Set leadPotential.isNewLead to true only for a company that is not already a customer and is investing in facilities, automation or manufacturing capacity.`

const userPrompt = `Title: %s

Content:
%s

Triage:
%s`

// Gate reports whether an article with the given score gets deep analysis.
func Gate(score, threshold int) bool {
	return score >= threshold
}

// Input is what the analyzer sees of an article.
type Input struct {
	Title   string
	Content string
	Triage  model.TriageResult
}

// Completer is the slice of textai.Analyzer the analyzer needs.
type Completer interface {
	CompleteJSON(ctx context.Context, req textai.Request, out any) error
}

// Options configures an Analyzer.
type Options struct {
	Model           string
	MaxContentChars int
	MaxTokens       int64
}

// Analyzer produces DeepAnalysis for gated articles.
type Analyzer struct {
	ai   Completer
	opts Options
}

// NewAnalyzer creates an analyzer. A nil ai yields empty analyses.
func NewAnalyzer(ai Completer, opts Options) *Analyzer {
	if opts.MaxContentChars <= 0 {
		opts.MaxContentChars = 8000
	}
	return &Analyzer{ai: ai, opts: opts}
}

// Analyze never fails. Capability errors and unusable replies yield
// model.EmptyDeepAnalysis.
func (a *Analyzer) Analyze(ctx context.Context, in Input) model.DeepAnalysis {
	if a.ai == nil {
		return model.EmptyDeepAnalysis()
	}

	triageJSON, _ := json.Marshal(struct {
		Score      int              `json:"relevanceScore"`
		Categories []model.Category `json:"categories"`
		Sentiment  model.Sentiment  `json:"sentiment"`
		Summary    string           `json:"summary"`
		Companies  []string         `json:"companies"`
	}{
		Score:      in.Triage.RelevanceScore,
		Categories: in.Triage.Categories,
		Sentiment:  in.Triage.Sentiment,
		Summary:    in.Triage.Summary,
		Companies:  mentionNames(in.Triage.ExtractedEntities.Companies),
	})

	content := in.Content
	if r := []rune(content); len(r) > a.opts.MaxContentChars {
		content = string(r[:a.opts.MaxContentChars])
	}

	var raw map[string]any
	err := a.ai.CompleteJSON(ctx, textai.Request{
		Phase:     "deep",
		Model:     a.opts.Model,
		System:    systemPrompt,
		Prompt:    fmt.Sprintf(userPrompt, in.Title, content, triageJSON),
		MaxTokens: a.opts.MaxTokens,
	}, &raw)
	if err != nil {
		zap.L().Warn("deep: capability failed, using empty analysis",
			zap.String("title", in.Title),
			zap.Error(err),
		)
		return model.EmptyDeepAnalysis()
	}
	return Parse(raw)
}

func mentionNames(ms []model.CompanyMention) []string {
	out := make([]string, 0, len(ms))
	for _, m := range ms {
		out = append(out, m.Name)
	}
	return out
}

// Parse fills a DeepAnalysis from a decoded reply, defaulting every absent
// or mistyped field.
func Parse(raw map[string]any) model.DeepAnalysis {
	res := model.EmptyDeepAnalysis()

	if bi, ok := raw["businessImpact"].(map[string]any); ok {
		res.BusinessImpact = model.BusinessImpact{
			Direct:    textai.String(bi["direct"]),
			Indirect:  textai.String(bi["indirect"]),
			Timeframe: textai.String(bi["timeframe"]),
		}
	}
	res.Opportunities = parseFindings(raw["opportunities"])
	res.Risks = parseFindings(raw["risks"])
	res.CompetitiveIntelligence = textai.String(raw["competitiveIntelligence"])
	res.RecommendedActions = textai.Strings(raw["recommendedActions"])
	res.RelatedTrends = textai.Strings(raw["relatedTrends"])

	if lp, ok := raw["leadPotential"].(map[string]any); ok {
		isNew, _ := textai.Bool(lp["isNewLead"])
		res.LeadPotential = &model.LeadPotential{
			IsNewLead:         isNew,
			CompanyName:       textai.String(lp["companyName"]),
			Sector:            textai.String(lp["sector"]),
			Rationale:         textai.String(lp["rationale"]),
			SuggestedApproach: textai.String(lp["suggestedApproach"]),
		}
		// A lead needs a name to be unique on.
		if res.LeadPotential.CompanyName == "" {
			res.LeadPotential.IsNewLead = false
		}
	}
	return res
}

// parseFindings accepts objects with title/description or bare strings,
// which become the title.
func parseFindings(v any) []model.Finding {
	arr, _ := v.([]any)
	out := make([]model.Finding, 0, len(arr))
	for _, el := range arr {
		var f model.Finding
		switch t := el.(type) {
		case string:
			f.Title = strings.TrimSpace(t)
		case map[string]any:
			f.Title = textai.String(t["title"])
			f.Description = textai.String(t["description"])
		}
		if f.Title == "" && f.Description == "" {
			continue
		}
		out = append(out, f)
	}
	return out
}

// DeriveInsight returns the one insight for an analysis with any
// opportunity or risk. Opportunities win over risks; the first entry of
// the winning list supplies title and description.
func DeriveInsight(articleID string, da model.DeepAnalysis) (model.Insight, bool) {
	var (
		typ   model.InsightType
		first model.Finding
	)
	switch {
	case len(da.Opportunities) > 0:
		typ, first = model.InsightOpportunity, da.Opportunities[0]
	case len(da.Risks) > 0:
		typ, first = model.InsightRisk, da.Risks[0]
	default:
		return model.Insight{}, false
	}
	return model.Insight{
		ID:          uuid.NewString(),
		ArticleID:   articleID,
		Type:        typ,
		Title:       first.Title,
		Description: first.Description,
	}, true
}
