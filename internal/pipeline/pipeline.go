// Package pipeline runs one pass of the news pipeline: fetch, dedup,
// triage, resolve, deep analysis, persistence, alerts and leads.
package pipeline

import (
	"context"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/news-intel/internal/cost"
	"github.com/sells-group/news-intel/internal/dedup"
	"github.com/sells-group/news-intel/internal/deep"
	"github.com/sells-group/news-intel/internal/fetcher"
	"github.com/sells-group/news-intel/internal/model"
	"github.com/sells-group/news-intel/internal/resolve"
	"github.com/sells-group/news-intel/internal/store"
	"github.com/sells-group/news-intel/internal/triage"
)

// BreakingUrgency is the triage urgency from which an article is breaking.
const BreakingUrgency = 9

// Fetcher retrieves raw items from every source.
type Fetcher interface {
	FetchAll(ctx context.Context, sources []fetcher.Source) []model.RawItem
}

// Triager scores an article. It never fails.
type Triager interface {
	Classify(ctx context.Context, in triage.Input) model.TriageResult
}

// DeepAnalyzer runs second-pass analysis. It never fails.
type DeepAnalyzer interface {
	Analyze(ctx context.Context, in deep.Input) model.DeepAnalysis
}

// Dispatcher raises alerts for a stored article.
type Dispatcher interface {
	Dispatch(ctx context.Context, a *model.Article, users []model.User) ([]model.Alert, error)
}

// LeadExtractor records new prospect leads.
type LeadExtractor interface {
	Extract(ctx context.Context, articleID string, da model.DeepAnalysis, users []model.User) (*model.ProspectLead, error)
}

// RunObserver is told about every finished run.
type RunObserver interface {
	Observe(ctx context.Context, res *model.RunResult)
}

// Deps are the collaborators of a pipeline.
type Deps struct {
	Store    store.Store
	Sources  []fetcher.Source
	Fetcher  Fetcher
	Known    dedup.KeySet
	Triage   Triager
	Deep     DeepAnalyzer
	Alerts   Dispatcher
	Leads    LeadExtractor
	Ledger   *cost.Ledger
	Credible func(source string) bool
	// Observer is optional.
	Observer RunObserver
}

// Options tunes a pipeline.
type Options struct {
	Workers       int
	DeepThreshold int
	// SeedWindow is how far back stored articles seed the dedup keys.
	SeedWindow time.Duration
	// ListWindow is how far back Refresh lists stored articles.
	ListWindow time.Duration
}

// Pipeline orchestrates one news pass.
type Pipeline struct {
	deps Deps
	opts Options
}

// New creates a pipeline.
func New(deps Deps, opts Options) *Pipeline {
	if opts.Workers <= 0 {
		opts.Workers = 3
	}
	if opts.DeepThreshold <= 0 {
		opts.DeepThreshold = deep.DefaultThreshold
	}
	if opts.SeedWindow <= 0 {
		opts.SeedWindow = 7 * 24 * time.Hour
	}
	if opts.ListWindow <= 0 {
		opts.ListWindow = 7 * 24 * time.Hour
	}
	if deps.Known == nil {
		deps.Known = dedup.NewMemoryKeySet(0, opts.SeedWindow)
	}
	if deps.Credible == nil {
		deps.Credible = func(string) bool { return false }
	}
	return &Pipeline{deps: deps, opts: opts}
}

// Run executes one pass. Source, article and capability failures are
// logged and skipped; only a registry read failure aborts the run.
func (p *Pipeline) Run(ctx context.Context) (*model.RunResult, error) {
	log := zap.L().With(zap.String("component", "pipeline"))
	res := &model.RunResult{StartedAt: time.Now().UTC(), Articles: []model.Article{}}
	callsBefore, _, costBefore := p.deps.Ledger.Totals()

	companies, err := p.deps.Store.ListCompanies(ctx)
	if err != nil {
		return nil, eris.Wrap(err, "pipeline: load companies")
	}
	users, err := p.deps.Store.ListUsers(ctx)
	if err != nil {
		return nil, eris.Wrap(err, "pipeline: load users")
	}
	resolver := resolve.New(companies)

	p.phase(log, "seed", func() {
		recent, err := p.deps.Store.RecentItems(ctx, time.Now().Add(-p.opts.SeedWindow))
		if err == nil {
			err = dedup.Seed(ctx, p.deps.Known, recent)
		}
		if err != nil {
			log.Warn("pipeline: seeding known keys failed", zap.Error(err))
		}
	})

	var items []model.RawItem
	p.phase(log, "fetch", func() {
		items = p.deps.Fetcher.FetchAll(ctx, p.deps.Sources)
	})
	res.Fetched = len(items)

	var fresh []model.RawItem
	p.phase(log, "dedup", func() {
		fresh, err = dedup.Filter(ctx, items, p.deps.Known)
		if err != nil {
			// Fall back to in-batch dedup; persistence is idempotent on URL.
			log.Warn("pipeline: known key set unavailable, deduplicating batch only", zap.Error(err))
			fresh, _ = dedup.Filter(ctx, items, dedup.NewMemoryKeySet(0, time.Hour))
		}
	})
	res.Fresh = len(fresh)

	outcomes := make([]outcome, len(fresh))
	p.phase(log, "analyze", func() {
		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(p.opts.Workers)
		for i, it := range fresh {
			g.Go(func() error {
				if gctx.Err() != nil {
					outcomes[i].err = gctx.Err()
					return nil
				}
				outcomes[i] = p.process(gctx, it, resolver, users)
				return nil
			})
		}
		_ = g.Wait()
	})

	// Only handled items are remembered; a failed one is retried next run.
	handled := make([]model.RawItem, 0, len(fresh))
	for i, o := range outcomes {
		if o.err != nil {
			res.Failed++
			continue
		}
		handled = append(handled, fresh[i])
		if o.relevant {
			res.Relevant++
		}
		if o.deep {
			res.DeepRuns++
		}
		if o.stored {
			res.Stored++
			res.Articles = append(res.Articles, o.article)
		}
		res.Alerts += o.alerts
		if o.lead {
			res.Leads++
		}
	}

	if err := dedup.Commit(ctx, p.deps.Known, handled); err != nil {
		log.Warn("pipeline: recording known keys failed", zap.Error(err))
	}

	calls, _, usd := p.deps.Ledger.Totals()
	res.EstCostUSD = usd - costBefore
	res.FinishedAt = time.Now().UTC()

	log.Info("pipeline: run complete",
		zap.Int("fetched", res.Fetched),
		zap.Int("fresh", res.Fresh),
		zap.Int("relevant", res.Relevant),
		zap.Int("deep", res.DeepRuns),
		zap.Int("stored", res.Stored),
		zap.Int("alerts", res.Alerts),
		zap.Int("leads", res.Leads),
		zap.Int("failed", res.Failed),
		zap.Int("ai_calls", calls-callsBefore),
		zap.Float64("est_cost_usd", res.EstCostUSD),
		zap.Duration("elapsed", res.FinishedAt.Sub(res.StartedAt)),
	)
	if p.deps.Observer != nil {
		p.deps.Observer.Observe(ctx, res)
	}
	return res, nil
}

func (p *Pipeline) phase(log *zap.Logger, name string, fn func()) {
	start := time.Now()
	fn()
	log.Debug("pipeline: phase complete",
		zap.String("phase", name),
		zap.Int64("duration_ms", time.Since(start).Milliseconds()),
	)
}

// outcome is what processing one item produced.
type outcome struct {
	article  model.Article
	relevant bool
	deep     bool
	stored   bool
	alerts   int
	lead     bool
	err      error
}

func (p *Pipeline) process(ctx context.Context, it model.RawItem, resolver *resolve.Resolver, users []model.User) outcome {
	log := zap.L().With(zap.String("component", "pipeline"), zap.String("url", it.URL))
	var out outcome

	tr := p.deps.Triage.Classify(ctx, triage.Input{
		Title:    it.Title,
		Content:  it.Description,
		Source:   it.Source,
		Credible: p.deps.Credible(it.Source),
	})
	a := model.Article{
		RawItem:        it,
		IsRelevant:     tr.IsRelevant,
		RelevanceScore: tr.RelevanceScore,
		Sentiment:      tr.Sentiment,
		Categories:     tr.Categories,
		IsBreaking:     tr.Urgency >= BreakingUrgency,
		Summary:        tr.Summary,
		Triage:         &tr,
	}
	out.article = a
	gated := deep.Gate(a.RelevanceScore, p.opts.DeepThreshold)
	if !a.IsRelevant && !gated {
		log.Debug("pipeline: not relevant", zap.Int("score", a.RelevanceScore))
		return out
	}
	out.relevant = a.IsRelevant

	mentions := tr.ExtractedEntities.Companies
	if len(mentions) == 0 {
		mentions = resolver.Scan(it.Title + " " + it.Description)
	}
	a.CompanyMatches = resolver.ResolveAll(mentions)

	var da *model.DeepAnalysis
	if gated {
		analysis := p.deps.Deep.Analyze(ctx, deep.Input{Title: it.Title, Content: it.Description, Triage: tr})
		da = &analysis
		a.DeepAnalysis = da
		out.deep = true
	}

	if err := p.deps.Store.UpsertArticle(ctx, &a); err != nil {
		log.Error("pipeline: store article failed", zap.Error(err))
		out.err = err
		return out
	}
	out.stored = true
	out.article = a

	if da != nil {
		if in, ok := deep.DeriveInsight(a.ID, *da); ok {
			if err := p.deps.Store.SaveInsight(ctx, in); err != nil {
				log.Warn("pipeline: save insight failed", zap.Error(err))
			}
		}
	}

	alerts, err := p.deps.Alerts.Dispatch(ctx, &a, users)
	if err != nil {
		log.Warn("pipeline: alert dispatch failed", zap.Error(err))
	}
	out.alerts = len(alerts)

	if da != nil {
		l, err := p.deps.Leads.Extract(ctx, a.ID, *da, users)
		if err != nil {
			log.Warn("pipeline: lead extraction failed", zap.Error(err))
		}
		out.lead = l != nil
	}
	return out
}

// Refresh runs a pass and returns the relevant articles stored within the
// list window, newest first. It is the aggregation cache's loader.
func (p *Pipeline) Refresh(ctx context.Context) ([]model.Article, error) {
	if _, err := p.Run(ctx); err != nil {
		return nil, err
	}
	articles, err := p.deps.Store.ListArticles(ctx, store.ArticleFilter{
		Since:        time.Now().Add(-p.opts.ListWindow),
		RelevantOnly: true,
	})
	if err != nil {
		return nil, eris.Wrap(err, "pipeline: list articles")
	}
	return articles, nil
}

// CredibleFunc matches a source against the configured credible outlets
// and the names of sources flagged credible.
func CredibleFunc(h *triage.Heuristic, sources []model.Source) func(string) bool {
	names := make(map[string]bool)
	for _, s := range sources {
		if s.Credible && s.Name != "" {
			names[strings.ToLower(s.Name)] = true
		}
	}
	return func(source string) bool {
		return names[strings.ToLower(source)] || (h != nil && h.Credible(source))
	}
}
