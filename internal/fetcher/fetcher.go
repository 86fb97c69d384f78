// Package fetcher retrieves raw news items from RSS feeds and keyword-search
// APIs with per-source isolation, timeouts and circuit breaking.
package fetcher

import (
	"context"
	"io"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/news-intel/internal/config"
	"github.com/sells-group/news-intel/internal/model"
	"github.com/sells-group/news-intel/internal/resilience"
)

// Downloader defines the HTTP operations the source adapters need.
type Downloader interface {
	// Download fetches the URL and returns the response body.
	Download(ctx context.Context, url string) (io.ReadCloser, error)

	// DownloadIfChanged fetches the URL only if the ETag has changed.
	// Returns (body, newETag, changed, error). If not changed, body is nil and changed is false.
	DownloadIfChanged(ctx context.Context, url string, etag string) (io.ReadCloser, string, bool, error)
}

// Source is one feed or query that yields raw items.
type Source interface {
	Key() string
	Fetch(ctx context.Context) ([]model.RawItem, error)
}

// BuildSources turns source descriptors into adapters. Search sources must
// name a configured provider.
func BuildSources(descs []model.Source, providers config.ProvidersConfig, dl Downloader, maxItems int) ([]Source, error) {
	out := make([]Source, 0, len(descs))
	for _, d := range descs {
		switch d.Kind {
		case model.SourceRSS, "":
			if d.URL == "" {
				return nil, eris.Errorf("fetcher: rss source %q has no url", d.Key())
			}
			out = append(out, NewRSSSource(d, dl, maxItems))
		case model.SourceSearch:
			p, ok := providers[d.Provider]
			if !ok {
				return nil, eris.Errorf("fetcher: source %q references unknown provider %q", d.Key(), d.Provider)
			}
			out = append(out, NewSearchSource(d, p, dl, maxItems))
		default:
			return nil, eris.Errorf("fetcher: source %q has unknown kind %q", d.Key(), d.Kind)
		}
	}
	return out, nil
}

// PoolOptions configures a Pool.
type PoolOptions struct {
	Workers  int
	Timeout  time.Duration
	Breakers *resilience.ServiceBreakers
}

// Pool fetches many sources concurrently.
type Pool struct {
	opts PoolOptions
}

// NewPool creates a fetch pool.
func NewPool(opts PoolOptions) *Pool {
	if opts.Workers <= 0 {
		opts.Workers = 4
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 15 * time.Second
	}
	if opts.Breakers == nil {
		opts.Breakers = resilience.NewServiceBreakers(resilience.DefaultCircuitBreakerConfig())
	}
	return &Pool{opts: opts}
}

// FetchAll fetches every source and returns the items in source order. A
// source that fails, times out or is tripped contributes zero items.
func (p *Pool) FetchAll(ctx context.Context, sources []Source) []model.RawItem {
	results := make([][]model.RawItem, len(sources))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(p.opts.Workers)

	for i, src := range sources {
		g.Go(func() error {
			results[i] = p.fetchOne(gctx, src)
			return nil
		})
	}
	_ = g.Wait()

	var all []model.RawItem
	for _, r := range results {
		all = append(all, r...)
	}
	return all
}

func (p *Pool) fetchOne(ctx context.Context, src Source) []model.RawItem {
	log := zap.L().With(zap.String("component", "fetcher"), zap.String("source", src.Key()))
	start := time.Now()

	breaker := p.opts.Breakers.Get(src.Key())
	items, err := resilience.ExecuteVal(ctx, breaker, func(ctx context.Context) ([]model.RawItem, error) {
		fetchCtx, cancel := context.WithTimeout(ctx, p.opts.Timeout)
		defer cancel()
		return src.Fetch(fetchCtx)
	})
	if err != nil {
		if eris.Is(err, resilience.ErrCircuitOpen) {
			log.Debug("fetcher: source skipped, circuit open")
		} else {
			log.Warn("fetcher: source failed", zap.Error(err), zap.Duration("elapsed", time.Since(start)))
		}
		return nil
	}

	log.Debug("fetcher: source fetched", zap.Int("items", len(items)), zap.Duration("elapsed", time.Since(start)))
	return items
}
