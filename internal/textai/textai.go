// Package textai runs instruction-plus-content calls against the
// text-analysis capability and pulls structured JSON out of the replies.
package textai

import (
	"context"
	"encoding/json"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/news-intel/internal/cost"
	"github.com/sells-group/news-intel/internal/resilience"
	"github.com/sells-group/news-intel/pkg/anthropic"
)

// ErrNoJSON is returned when a reply carries no balanced JSON object.
var ErrNoJSON = eris.New("textai: no json object in response")

// Request is one instruction plus article content.
type Request struct {
	Phase     string
	Model     string
	System    string
	Prompt    string
	MaxTokens int64
}

// Options configures an Analyzer.
type Options struct {
	Timeout   time.Duration
	Retry     resilience.RetryConfig
	MaxTokens int64
	Ledger    *cost.Ledger
}

// Analyzer wraps an anthropic.Client with per-call timeout, a single retry
// on transient failure, and cost accounting.
type Analyzer struct {
	client anthropic.Client
	opts   Options
}

// New creates an Analyzer. Zero options fall back to a 45s timeout, one
// retry after 1s and 2048 max tokens.
func New(client anthropic.Client, opts Options) *Analyzer {
	if opts.Timeout <= 0 {
		opts.Timeout = 45 * time.Second
	}
	if opts.Retry.MaxAttempts <= 0 {
		opts.Retry = resilience.SingleRetry(time.Second)
	}
	if opts.MaxTokens <= 0 {
		opts.MaxTokens = 2048
	}
	return &Analyzer{client: client, opts: opts}
}

// Complete sends req and returns the reply text.
func (a *Analyzer) Complete(ctx context.Context, req Request) (string, error) {
	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = a.opts.MaxTokens
	}
	temp := 0.0

	retry := a.opts.Retry
	if retry.OnRetry == nil {
		retry.OnRetry = resilience.RetryLogger("anthropic", req.Phase)
	}

	resp, err := resilience.DoVal(ctx, retry, func(ctx context.Context) (*anthropic.MessageResponse, error) {
		callCtx, cancel := context.WithTimeout(ctx, a.opts.Timeout)
		defer cancel()
		return a.client.CreateMessage(callCtx, anthropic.MessageRequest{
			Model:       req.Model,
			MaxTokens:   maxTokens,
			System:      anthropic.CachedSystem(req.System),
			Messages:    []anthropic.Message{{Role: "user", Content: req.Prompt}},
			Temperature: &temp,
		})
	})
	if err != nil {
		return "", eris.Wrapf(err, "textai: %s", req.Phase)
	}

	a.opts.Ledger.Record(req.Model, cost.Usage{
		Input:      resp.Usage.InputTokens,
		Output:     resp.Usage.OutputTokens,
		CacheWrite: resp.Usage.CacheCreationInputTokens,
		CacheRead:  resp.Usage.CacheReadInputTokens,
	})
	zap.L().Debug("textai: call complete",
		zap.String("phase", req.Phase),
		zap.String("model", req.Model),
		zap.Int64("input_tokens", resp.Usage.InputTokens),
		zap.Int64("output_tokens", resp.Usage.OutputTokens),
	)

	return resp.Text(), nil
}

// CompleteJSON sends req and decodes the first balanced JSON object of the
// reply into out.
func (a *Analyzer) CompleteJSON(ctx context.Context, req Request, out any) error {
	text, err := a.Complete(ctx, req)
	if err != nil {
		return err
	}
	return DecodeObject(text, out)
}

// DecodeObject decodes the first balanced JSON object found in text.
func DecodeObject(text string, out any) error {
	obj, ok := ExtractObject(text)
	if !ok {
		return ErrNoJSON
	}
	if err := json.Unmarshal([]byte(obj), out); err != nil {
		return eris.Wrap(err, "textai: decode json")
	}
	return nil
}

// ExtractObject returns the first balanced {...} span in text. Braces inside
// JSON strings are ignored.
func ExtractObject(text string) (string, bool) {
	start := -1
	depth := 0
	inString := false
	escaped := false

	for i := 0; i < len(text); i++ {
		c := text[i]
		if start < 0 {
			if c == '{' {
				start = i
				depth = 1
			}
			continue
		}

		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}

		switch c {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return text[start : i+1], true
			}
		}
	}
	return "", false
}
