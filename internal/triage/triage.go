// Package triage runs the cheap first-pass classification of every fresh
// article: relevance, sentiment, categories and extracted entities.
package triage

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/sells-group/news-intel/internal/model"
	"github.com/sells-group/news-intel/internal/textai"
)

const systemPrompt = `You triage business news for an industrial automation and manufacturing services company. Judge whether the article matters to sales and account teams: plant expansions, new facilities, construction, automation investment, manufacturing, government contracts, mergers and acquisitions, leadership changes, earnings, policy, supply chain, competitors, technology and workforce.

Respond with exactly one JSON object and nothing else:
{
  "isRelevant": <true|false>,
  "relevanceScore": <integer 0-100>,
  "relevanceReason": "<one sentence>",
  "categories": [<zero or more of: %s>],
  "sentiment": "<positive|negative|neutral>",
  "sentimentScore": <number -1.0 to 1.0>,
  "urgency": <integer 1-10>,
  "extractedEntities": {
    "companies": [{"name": "<organization>", "confidence": <0.0-1.0>}],
    "people": ["<name>"],
    "locations": ["<place>"],
    "amounts": ["<money or quantity>"]
  },
  "summary": "<two sentences>",
  "keyPoints": ["<point>"]
}
List companies in the order they first appear in the article.`

const userPrompt = `Source: %s
Title: %s

Content:
%s`

// Input is what triage sees of an article.
type Input struct {
	Title    string
	Content  string
	Source   string
	Credible bool
}

// Completer is the slice of textai.Analyzer triage needs.
type Completer interface {
	CompleteJSON(ctx context.Context, req textai.Request, out any) error
}

// Options configures a Classifier.
type Options struct {
	Model           string
	MaxContentChars int
}

// Classifier triages articles with the text-analysis capability. With no
// capability configured it scores with the keyword heuristic instead.
type Classifier struct {
	ai        Completer
	heuristic *Heuristic
	opts      Options
	system    string
}

// NewClassifier creates a classifier. ai may be nil.
func NewClassifier(ai Completer, heuristic *Heuristic, opts Options) *Classifier {
	if heuristic == nil {
		heuristic = NewHeuristic(nil)
	}
	if opts.MaxContentChars <= 0 {
		opts.MaxContentChars = 4000
	}
	return &Classifier{
		ai:        ai,
		heuristic: heuristic,
		opts:      opts,
		system:    fmt.Sprintf(systemPrompt, categoryList()),
	}
}

// Classify never fails. Any capability error, timeout or unusable reply
// yields model.TriageDefault.
func (c *Classifier) Classify(ctx context.Context, in Input) model.TriageResult {
	if c.ai == nil {
		return c.heuristic.Classify(in)
	}

	var raw map[string]any
	err := c.ai.CompleteJSON(ctx, textai.Request{
		Phase:  "triage",
		Model:  c.opts.Model,
		System: c.system,
		Prompt: fmt.Sprintf(userPrompt, in.Source, in.Title, truncate(in.Content, c.opts.MaxContentChars)),
	}, &raw)
	if err != nil {
		zap.L().Warn("triage: capability failed, using default",
			zap.String("title", in.Title),
			zap.Error(err),
		)
		return model.TriageDefault()
	}

	res, ok := Parse(raw)
	if !ok {
		zap.L().Warn("triage: reply missing required fields, using default",
			zap.String("title", in.Title),
		)
		return model.TriageDefault()
	}
	return res
}

func categoryList() string {
	s := ""
	for i, c := range model.AllCategories() {
		if i > 0 {
			s += ", "
		}
		s += string(c)
	}
	return s
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
