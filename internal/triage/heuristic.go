package triage

import (
	"strings"
	"unicode"

	"github.com/sells-group/news-intel/internal/model"
)

const (
	baseScore      = 50
	noisePenalty   = 15
	keywordBonus   = 8
	credibleBonus  = 15
	sentimentRatio = 1
	summaryLimit   = 280
)

// categoryKeywords are the domain terms that put an article in a category.
var categoryKeywords = map[model.Category][]string{
	model.CategoryExpansion:         {"expansion", "expands", "expand", "new plant", "new facility", "opens", "groundbreaking", "investment", "invests"},
	model.CategoryConstruction:      {"construction", "build", "building", "plant", "facility", "site", "square feet", "square-foot"},
	model.CategoryAutomation:        {"automation", "automated", "robot", "robots", "robotics", "cobot", "plc", "machine vision"},
	model.CategoryManufacturing:     {"manufacturing", "manufacturer", "assembly", "production", "factory", "fabrication", "machining"},
	model.CategoryGovernment:        {"contract", "awarded", "department of defense", "dod", "federal", "government", "grant"},
	model.CategoryMergerAcquisition: {"acquisition", "acquires", "acquire", "merger", "merge", "buyout", "takeover"},
	model.CategoryLeadership:        {"ceo", "cfo", "coo", "president", "appoints", "appointed", "names", "steps down", "executive"},
	model.CategoryEarnings:          {"earnings", "revenue", "quarterly", "profit", "results", "guidance", "eps"},
	model.CategoryPolicy:            {"tariff", "tariffs", "regulation", "legislation", "policy", "tax credit", "epa", "osha"},
	model.CategorySupplyChain:       {"supply chain", "shortage", "supplier", "logistics", "shipping", "backlog", "lead times"},
	model.CategoryCompetitor:        {"competitor", "rival", "market share"},
	model.CategoryTechnology:        {"ai", "software", "digital twin", "iot", "sensor", "technology"},
	model.CategoryWorkforce:         {"jobs", "hiring", "hires", "workforce", "layoffs", "union", "apprenticeship", "workers"},
}

// noiseKeywords mark content that is almost never useful.
var noiseKeywords = []string{
	"celebrity", "horoscope", "recipe", "sports", "nfl", "nba", "movie", "box office",
	"fashion", "lottery", "giveaway", "coupon", "sponsored", "opinion",
}

var positiveWords = []string{
	"growth", "expansion", "expands", "opens", "record", "wins", "awarded", "surge",
	"increase", "profit", "hires", "hiring", "invest", "investment", "new", "boost",
	"strong", "gain", "gains", "milestone", "breakthrough",
}

var negativeWords = []string{
	"layoffs", "layoff", "closure", "closes", "closing", "recall", "lawsuit", "decline",
	"loss", "losses", "shortage", "bankruptcy", "cuts", "strike", "delay", "delays",
	"fine", "fined", "shutdown", "drop", "falls", "warning",
}

var breakingWords = []string{"breaking", "just in", "developing", "urgent"}

// Heuristic scores articles without the text-analysis capability.
type Heuristic struct {
	credible []string
}

// NewHeuristic creates a heuristic scorer. credibleSources are matched
// case-insensitively as substrings of the item's source.
func NewHeuristic(credibleSources []string) *Heuristic {
	c := make([]string, 0, len(credibleSources))
	for _, s := range credibleSources {
		if s = strings.ToLower(strings.TrimSpace(s)); s != "" {
			c = append(c, s)
		}
	}
	return &Heuristic{credible: c}
}

// Credible reports whether source is a known-credible outlet.
func (h *Heuristic) Credible(source string) bool {
	source = strings.ToLower(source)
	for _, c := range h.credible {
		if strings.Contains(source, c) {
			return true
		}
	}
	return false
}

// Classify scores in by keyword matching.
func (h *Heuristic) Classify(in Input) model.TriageResult {
	text := newTokenText(in.Title + " " + in.Content)

	score := baseScore
	var reasons []string

	noise := text.countAny(noiseKeywords)
	score -= noise * noisePenalty
	if noise > 0 {
		reasons = append(reasons, "noise keywords")
	}

	var cats []model.Category
	for _, c := range model.AllCategories() {
		hits := text.countAny(categoryKeywords[c])
		if hits == 0 {
			continue
		}
		cats = append(cats, c)
		score += hits * keywordBonus
	}
	if len(cats) > 0 {
		reasons = append(reasons, "domain keywords")
	}

	if in.Credible || h.Credible(in.Source) {
		score += credibleBonus
		reasons = append(reasons, "credible source")
	}

	score = clampInt(score, 0, 100)
	sentiment, sentimentScore := h.Sentiment(in.Title + " " + in.Content)

	urgency := clampInt(score/10, 1, 10)
	if text.countAny(breakingWords) > 0 {
		urgency = 10
	}

	if cats == nil {
		cats = []model.Category{}
	}

	res := model.TriageDefault()
	res.Fallback = false
	res.IsRelevant = score >= baseScore && len(cats) > 0
	res.RelevanceScore = score
	res.RelevanceReason = strings.Join(reasons, ", ")
	res.Categories = cats
	res.Sentiment = sentiment
	res.SentimentScore = sentimentScore
	res.Urgency = urgency
	res.Summary = summarize(in.Content, in.Title)
	return res
}

// Sentiment counts indicator words. The tone is positive or negative only
// when one side leads the other by more than one.
func (h *Heuristic) Sentiment(s string) (model.Sentiment, float64) {
	text := newTokenText(s)
	pos := text.countAny(positiveWords)
	neg := text.countAny(negativeWords)

	var score float64
	if total := pos + neg; total > 0 {
		score = float64(pos-neg) / float64(total)
	}

	switch {
	case pos-neg > sentimentRatio:
		return model.SentimentPositive, score
	case neg-pos > sentimentRatio:
		return model.SentimentNegative, score
	default:
		return model.SentimentNeutral, score
	}
}

// tokenText is lowercased text with words separated by single spaces and
// padded at both ends, so phrase lookups match whole words only.
type tokenText string

func newTokenText(s string) tokenText {
	words := strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '$' && r != '-'
	})
	return tokenText(" " + strings.Join(words, " ") + " ")
}

// countAny returns how many of the phrases occur at least once.
func (t tokenText) countAny(phrases []string) int {
	n := 0
	for _, p := range phrases {
		if strings.Contains(string(t), " "+p+" ") {
			n++
		}
	}
	return n
}

func summarize(content, title string) string {
	s := strings.Join(strings.Fields(content), " ")
	if s == "" {
		s = strings.TrimSpace(title)
	}
	if i := strings.Index(s, ". "); i > 0 && i < summaryLimit {
		return s[:i+1]
	}
	r := []rune(s)
	if len(r) > summaryLimit {
		return string(r[:summaryLimit]) + "…"
	}
	return s
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
