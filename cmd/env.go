package main

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/news-intel/internal/alert"
	"github.com/sells-group/news-intel/internal/cache"
	"github.com/sells-group/news-intel/internal/cost"
	"github.com/sells-group/news-intel/internal/dedup"
	"github.com/sells-group/news-intel/internal/deep"
	"github.com/sells-group/news-intel/internal/fetcher"
	"github.com/sells-group/news-intel/internal/lead"
	"github.com/sells-group/news-intel/internal/monitoring"
	"github.com/sells-group/news-intel/internal/notify"
	"github.com/sells-group/news-intel/internal/pipeline"
	"github.com/sells-group/news-intel/internal/registry"
	"github.com/sells-group/news-intel/internal/resilience"
	"github.com/sells-group/news-intel/internal/store"
	"github.com/sells-group/news-intel/internal/textai"
	"github.com/sells-group/news-intel/internal/triage"
	anthropicpkg "github.com/sells-group/news-intel/pkg/anthropic"
)

// appEnv holds everything the run and serve commands share.
type appEnv struct {
	Store      store.Store
	Pipeline   *pipeline.Pipeline
	Dispatcher *alert.Dispatcher
	Cache      *cache.Cache
	Notifier   notify.Notifier
	Ledger     *cost.Ledger
	Monitor    *monitoring.Monitor

	redis *redis.Client
}

// Close releases resources held by the environment.
func (e *appEnv) Close() {
	if err := notify.Close(e.Notifier); err != nil {
		zap.L().Warn("close notifier", zap.Error(err))
	}
	if e.redis != nil {
		_ = e.redis.Close()
	}
	if e.Store != nil {
		_ = e.Store.Close()
	}
}

func initStore(ctx context.Context) (store.Store, error) {
	var (
		st  store.Store
		err error
	)
	switch cfg.Store.Driver {
	case "sqlite":
		dsn := cfg.Store.DatabaseURL
		if dsn == "" {
			dsn = "news-intel.db"
		}
		st, err = store.NewSQLite(dsn)
	case "postgres":
		st, err = store.NewPostgres(ctx, cfg.Store.DatabaseURL, &store.PoolConfig{
			MaxConns: cfg.Store.MaxConns,
			MinConns: cfg.Store.MinConns,
		})
	default:
		return nil, eris.Errorf("unsupported store driver: %s", cfg.Store.Driver)
	}
	if err != nil {
		return nil, err
	}
	if err := st.Migrate(ctx); err != nil {
		_ = st.Close()
		return nil, eris.Wrap(err, "migrate store")
	}
	return st, nil
}

// initKnownKeys returns the cross-run dedup key set. Redis is used when
// configured and reachable; otherwise keys live in memory and are reseeded
// from the store each run.
func initKnownKeys(ctx context.Context) (dedup.KeySet, *redis.Client) {
	ttl := time.Duration(cfg.Redis.TTLSeconds) * time.Second
	if cfg.Redis.Addr == "" {
		return dedup.NewMemoryKeySet(0, ttl), nil
	}
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		zap.L().Warn("redis unreachable, keeping dedup keys in memory",
			zap.String("addr", cfg.Redis.Addr),
			zap.Error(err),
		)
		_ = client.Close()
		return dedup.NewMemoryKeySet(0, ttl), nil
	}
	zap.L().Info("dedup keys persisted in redis", zap.String("addr", cfg.Redis.Addr))
	return dedup.NewRedisKeySet(client, cfg.Redis.Key, ttl), client
}

// initEnv builds the store, capability clients and pipeline. Callers
// should defer env.Close().
func initEnv(ctx context.Context, mode string) (*appEnv, error) {
	if err := cfg.Validate(mode); err != nil {
		return nil, err
	}

	st, err := initStore(ctx)
	if err != nil {
		return nil, err
	}
	env := &appEnv{Store: st, Ledger: cost.NewLedger(cost.NewCalculator(cfg.Pricing))}

	if reg, err := registry.LoadFile(cfg.Registry.Path); err != nil {
		zap.L().Warn("registry seed file not loaded, using stored registry",
			zap.String("path", cfg.Registry.Path),
			zap.Error(err),
		)
	} else if err := registry.Seed(ctx, st, reg); err != nil {
		env.Close()
		return nil, err
	}

	n, err := notify.New(cfg.Notify)
	if err != nil {
		env.Close()
		return nil, err
	}
	env.Notifier = n

	heuristic := triage.NewHeuristic(cfg.Analysis.CredibleSources)
	var ai *textai.Analyzer
	if cfg.Analysis.Mode == "llm" {
		ai = textai.New(anthropicpkg.NewClient(cfg.Anthropic.Key), textai.Options{
			Timeout:   time.Duration(cfg.Analysis.TimeoutSecs) * time.Second,
			Retry:     resilience.SingleRetry(time.Duration(cfg.Analysis.RetryInitialBackoff) * time.Millisecond),
			MaxTokens: cfg.Anthropic.MaxTokens,
			Ledger:    env.Ledger,
		})
	} else {
		zap.L().Info("text-analysis capability disabled, triage uses keyword heuristic")
	}

	var (
		triager  *triage.Classifier
		analyzer *deep.Analyzer
	)
	triageOpts := triage.Options{Model: cfg.Anthropic.TriageModel, MaxContentChars: cfg.Analysis.MaxContentChars}
	deepOpts := deep.Options{Model: cfg.Anthropic.DeepModel, MaxTokens: cfg.Anthropic.MaxTokens}
	if ai != nil {
		triager = triage.NewClassifier(ai, heuristic, triageOpts)
		analyzer = deep.NewAnalyzer(ai, deepOpts)
	} else {
		triager = triage.NewClassifier(nil, heuristic, triageOpts)
		analyzer = deep.NewAnalyzer(nil, deepOpts)
	}

	dl := fetcher.NewHTTPFetcher(fetcher.HTTPOptions{
		UserAgent:         cfg.Fetch.UserAgent,
		Timeout:           time.Duration(cfg.Fetch.TimeoutSecs) * time.Second,
		MaxAttempts:       cfg.Fetch.MaxRetries + 1,
		RequestsPerSecond: cfg.Fetch.RequestsPerSecond,
	})
	sources, err := fetcher.BuildSources(cfg.Sources, cfg.Providers, dl, cfg.Fetch.MaxItemsPerSource)
	if err != nil {
		env.Close()
		return nil, err
	}
	pool := fetcher.NewPool(fetcher.PoolOptions{
		Workers: cfg.Fetch.Workers,
		Timeout: time.Duration(cfg.Fetch.TimeoutSecs) * time.Second,
		Breakers: resilience.NewServiceBreakers(resilience.CircuitBreakerConfig{
			FailureThreshold: cfg.Fetch.BreakerFailures,
			Window:           time.Duration(cfg.Fetch.BreakerWindowSecs) * time.Second,
			ResetTimeout:     time.Duration(cfg.Fetch.BreakerResetSecs) * time.Second,
		}),
	})

	known, rc := initKnownKeys(ctx)
	env.redis = rc

	env.Monitor = monitoring.New(cfg.Monitor, n)
	env.Dispatcher = alert.NewDispatcher(alert.NewClassifier(cfg.Alerts.MinRelevance), st, n)
	env.Pipeline = pipeline.New(pipeline.Deps{
		Store:    st,
		Sources:  sources,
		Fetcher:  pool,
		Known:    known,
		Triage:   triager,
		Deep:     analyzer,
		Alerts:   env.Dispatcher,
		Leads:    lead.NewExtractor(st, n),
		Ledger:   env.Ledger,
		Credible: pipeline.CredibleFunc(heuristic, cfg.Sources),
		Observer: env.Monitor,
	}, pipeline.Options{
		Workers:       cfg.Analysis.Workers,
		DeepThreshold: cfg.Analysis.DeepThreshold,
	})
	env.Cache = cache.New(env.Pipeline.Refresh, time.Duration(cfg.Cache.TTLSecs)*time.Second)

	zap.L().Info("environment ready",
		zap.String("store", cfg.Store.Driver),
		zap.String("analysis", cfg.Analysis.Mode),
		zap.Int("sources", len(sources)),
	)
	return env, nil
}
