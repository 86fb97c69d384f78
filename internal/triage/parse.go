package triage

import (
	"math"

	"github.com/sells-group/news-intel/internal/model"
	"github.com/sells-group/news-intel/internal/textai"
)

// Parse validates a decoded triage reply. isRelevant and relevanceScore are
// required; every other field falls back to its default. Scores are
// clamped, unknown sentiment becomes neutral and unknown categories are
// dropped.
func Parse(raw map[string]any) (model.TriageResult, bool) {
	relevant, ok := textai.Bool(raw["isRelevant"])
	if !ok {
		return model.TriageResult{}, false
	}
	score, ok := textai.Float(raw["relevanceScore"])
	if !ok || math.IsNaN(score) {
		return model.TriageResult{}, false
	}

	res := model.TriageDefault()
	res.Fallback = false
	res.IsRelevant = relevant
	res.RelevanceScore = int(math.Round(textai.Clamp(score, 0, 100)))
	res.RelevanceReason = textai.String(raw["relevanceReason"])
	res.Sentiment = model.ParseSentiment(textai.String(raw["sentiment"]))
	res.Summary = textai.String(raw["summary"])
	res.KeyPoints = textai.Strings(raw["keyPoints"])

	if s, ok := textai.Float(raw["sentimentScore"]); ok && !math.IsNaN(s) {
		res.SentimentScore = textai.Clamp(s, -1, 1)
	}
	if u, ok := textai.Float(raw["urgency"]); ok && !math.IsNaN(u) {
		res.Urgency = int(math.Round(textai.Clamp(u, 1, 10)))
	}

	seen := make(map[model.Category]bool)
	for _, s := range textai.Strings(raw["categories"]) {
		if c, ok := model.ParseCategory(s); ok && !seen[c] {
			seen[c] = true
			res.Categories = append(res.Categories, c)
		}
	}

	if ents, ok := raw["extractedEntities"].(map[string]any); ok {
		res.ExtractedEntities.Companies = parseMentions(ents["companies"])
		res.ExtractedEntities.People = textai.Strings(ents["people"])
		res.ExtractedEntities.Locations = textai.Strings(ents["locations"])
		res.ExtractedEntities.Amounts = textai.Strings(ents["amounts"])
	}

	return res, true
}

// parseMentions accepts either [{"name","confidence"}] or bare names. A
// missing confidence counts as 1.
func parseMentions(v any) []model.CompanyMention {
	arr, _ := v.([]any)
	out := make([]model.CompanyMention, 0, len(arr))
	for _, el := range arr {
		switch t := el.(type) {
		case string:
			if name := textai.String(t); name != "" {
				out = append(out, model.CompanyMention{Name: name, Confidence: 1})
			}
		case map[string]any:
			name := textai.String(t["name"])
			if name == "" {
				continue
			}
			conf := 1.0
			if f, ok := textai.Float(t["confidence"]); ok && !math.IsNaN(f) {
				conf = textai.Clamp(f, 0, 1)
			}
			out = append(out, model.CompanyMention{Name: name, Confidence: conf})
		}
	}
	return out
}
