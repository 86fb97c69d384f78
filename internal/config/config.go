package config

import (
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/sells-group/news-intel/internal/cost"
	"github.com/sells-group/news-intel/internal/model"
)

// Config holds the full application configuration.
type Config struct {
	Store     StoreConfig     `yaml:"store" mapstructure:"store"`
	Redis     RedisConfig     `yaml:"redis" mapstructure:"redis"`
	Anthropic AnthropicConfig `yaml:"anthropic" mapstructure:"anthropic"`
	Fetch     FetchConfig     `yaml:"fetch" mapstructure:"fetch"`
	Sources   []model.Source  `yaml:"sources" mapstructure:"sources"`
	Providers ProvidersConfig `yaml:"providers" mapstructure:"providers"`
	Analysis  AnalysisConfig  `yaml:"analysis" mapstructure:"analysis"`
	Alerts    AlertsConfig    `yaml:"alerts" mapstructure:"alerts"`
	Cache     CacheConfig     `yaml:"cache" mapstructure:"cache"`
	Notify    NotifyConfig    `yaml:"notify" mapstructure:"notify"`
	Monitor   MonitorConfig   `yaml:"monitor" mapstructure:"monitor"`
	Registry  RegistryConfig  `yaml:"registry" mapstructure:"registry"`
	Pricing   cost.Rates      `yaml:"pricing" mapstructure:"pricing"`
	Server    ServerConfig    `yaml:"server" mapstructure:"server"`
	Log       LogConfig       `yaml:"log" mapstructure:"log"`
}

// StoreConfig configures the database backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
	MaxConns    int32  `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns    int32  `yaml:"min_conns" mapstructure:"min_conns"`
}

// RedisConfig configures the persistent dedup key set. Empty Addr keeps
// seen keys in memory only.
type RedisConfig struct {
	Addr       string `yaml:"addr" mapstructure:"addr"`
	Password   string `yaml:"password" mapstructure:"password"`
	DB         int    `yaml:"db" mapstructure:"db"`
	Key        string `yaml:"key" mapstructure:"key"`
	TTLSeconds int    `yaml:"ttl_secs" mapstructure:"ttl_secs"`
}

// AnthropicConfig holds text-analysis capability settings.
type AnthropicConfig struct {
	Key         string `yaml:"key" mapstructure:"key"`
	TriageModel string `yaml:"triage_model" mapstructure:"triage_model"`
	DeepModel   string `yaml:"deep_model" mapstructure:"deep_model"`
	MaxTokens   int64  `yaml:"max_tokens" mapstructure:"max_tokens"`
}

// FetchConfig configures source retrieval.
type FetchConfig struct {
	Workers           int     `yaml:"workers" mapstructure:"workers"`
	TimeoutSecs       int     `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	RequestsPerSecond float64 `yaml:"requests_per_second" mapstructure:"requests_per_second"`
	MaxRetries        int     `yaml:"max_retries" mapstructure:"max_retries"`
	MaxItemsPerSource int     `yaml:"max_items_per_source" mapstructure:"max_items_per_source"`
	UserAgent         string  `yaml:"user_agent" mapstructure:"user_agent"`
	BreakerFailures   int     `yaml:"breaker_failures" mapstructure:"breaker_failures"`
	BreakerWindowSecs int     `yaml:"breaker_window_secs" mapstructure:"breaker_window_secs"`
	BreakerResetSecs  int     `yaml:"breaker_reset_secs" mapstructure:"breaker_reset_secs"`
}

// ProvidersConfig holds keyword-search news provider endpoints, keyed by
// provider name as referenced from a search source.
type ProvidersConfig map[string]ProviderConfig

// ProviderConfig describes one keyword-search news API.
type ProviderConfig struct {
	BaseURL  string `yaml:"base_url" mapstructure:"base_url"`
	Key      string `yaml:"key" mapstructure:"key"`
	KeyParam string `yaml:"key_param" mapstructure:"key_param"`
}

// AnalysisConfig configures triage and deep analysis.
type AnalysisConfig struct {
	Mode                string   `yaml:"mode" mapstructure:"mode"`
	Workers             int      `yaml:"workers" mapstructure:"workers"`
	TimeoutSecs         int      `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	DeepThreshold       int      `yaml:"deep_threshold" mapstructure:"deep_threshold"`
	MaxContentChars     int      `yaml:"max_content_chars" mapstructure:"max_content_chars"`
	CredibleSources     []string `yaml:"credible_sources" mapstructure:"credible_sources"`
	RetryInitialBackoff int      `yaml:"retry_initial_backoff_ms" mapstructure:"retry_initial_backoff_ms"`
}

// AlertsConfig configures alert dispatch.
type AlertsConfig struct {
	MinRelevance int `yaml:"min_relevance" mapstructure:"min_relevance"`
}

// CacheConfig configures the aggregation cache.
type CacheConfig struct {
	TTLSecs int `yaml:"ttl_secs" mapstructure:"ttl_secs"`
}

// NotifyConfig selects how alert, lead and digest payloads leave the process.
type NotifyConfig struct {
	Driver     string   `yaml:"driver" mapstructure:"driver"`
	WebhookURL string   `yaml:"webhook_url" mapstructure:"webhook_url"`
	Brokers    []string `yaml:"brokers" mapstructure:"brokers"`
	Topic      string   `yaml:"topic" mapstructure:"topic"`
}

// MonitorConfig sets the run-health thresholds that raise ops alerts.
type MonitorConfig struct {
	LookbackRuns         int     `yaml:"lookback_runs" mapstructure:"lookback_runs"`
	FailureRateThreshold float64 `yaml:"failure_rate_threshold" mapstructure:"failure_rate_threshold"`
	CostThresholdUSD     float64 `yaml:"cost_threshold_usd" mapstructure:"cost_threshold_usd"`
	EmptyRunsThreshold   int     `yaml:"empty_runs_threshold" mapstructure:"empty_runs_threshold"`
}

// RegistryConfig points at the company/user seed file.
type RegistryConfig struct {
	Path string `yaml:"path" mapstructure:"path"`
}

// ServerConfig configures the HTTP API.
type ServerConfig struct {
	Port            int      `yaml:"port" mapstructure:"port"`
	RefreshSecs     int      `yaml:"refresh_secs" mapstructure:"refresh_secs"`
	AllowedOrigins  []string `yaml:"allowed_origins" mapstructure:"allowed_origins"`
	ShutdownTimeout int      `yaml:"shutdown_timeout_secs" mapstructure:"shutdown_timeout_secs"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Load reads configuration from .env, config.yaml and the environment.
func Load() (*Config, error) {
	// .env is optional; real environment variables win.
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		return nil, eris.Wrap(err, "config: load .env")
	}

	v := viper.New()

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	v.SetEnvPrefix("NEWSINTEL")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.database_url", "news-intel.db")
	v.SetDefault("store.max_conns", 10)
	v.SetDefault("store.min_conns", 2)
	v.SetDefault("redis.key", "news-intel:seen")
	v.SetDefault("redis.ttl_secs", 30*24*3600)
	v.SetDefault("anthropic.triage_model", "claude-haiku-4-5-20251001")
	v.SetDefault("anthropic.deep_model", "claude-sonnet-4-5-20250929")
	v.SetDefault("anthropic.max_tokens", 2048)
	v.SetDefault("fetch.workers", 4)
	v.SetDefault("fetch.timeout_secs", 15)
	v.SetDefault("fetch.requests_per_second", 1.0)
	v.SetDefault("fetch.max_retries", 2)
	v.SetDefault("fetch.max_items_per_source", 50)
	v.SetDefault("fetch.user_agent", "news-intel/1.0")
	v.SetDefault("fetch.breaker_failures", 3)
	v.SetDefault("fetch.breaker_window_secs", 900)
	v.SetDefault("fetch.breaker_reset_secs", 1800)
	v.SetDefault("analysis.mode", "llm")
	v.SetDefault("analysis.workers", 3)
	v.SetDefault("analysis.timeout_secs", 45)
	v.SetDefault("analysis.deep_threshold", 70)
	v.SetDefault("analysis.max_content_chars", 4000)
	v.SetDefault("analysis.retry_initial_backoff_ms", 1000)
	v.SetDefault("analysis.credible_sources", []string{
		"reuters", "bloomberg", "wall street journal", "associated press",
		"financial times", "industryweek", "manufacturing.net", "assembly magazine",
	})
	v.SetDefault("alerts.min_relevance", 60)
	v.SetDefault("cache.ttl_secs", 1800)
	v.SetDefault("notify.driver", "log")
	v.SetDefault("notify.topic", "news-intel.notifications")
	v.SetDefault("monitor.lookback_runs", 12)
	v.SetDefault("monitor.failure_rate_threshold", 0.25)
	v.SetDefault("monitor.cost_threshold_usd", 0)
	v.SetDefault("monitor.empty_runs_threshold", 3)
	v.SetDefault("registry.path", "registry.yaml")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.refresh_secs", 3600)
	v.SetDefault("server.allowed_origins", []string{"*"})
	v.SetDefault("server.shutdown_timeout_secs", 10)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("pricing.anthropic", map[string]any{
		"claude-haiku-4-5-20251001": map[string]any{
			"input": 0.80, "output": 4.00, "cache_write_mul": 1.25, "cache_read_mul": 0.1,
		},
		"claude-sonnet-4-5-20250929": map[string]any{
			"input": 3.00, "output": 15.00, "cache_write_mul": 1.25, "cache_read_mul": 0.1,
		},
	})

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	return &cfg, nil
}

// Validate checks that the keys required by the given command are set.
func (c *Config) Validate(mode string) error {
	var missing []string

	switch c.Store.Driver {
	case "postgres":
		if c.Store.DatabaseURL == "" {
			missing = append(missing, "store.database_url")
		}
	case "sqlite":
	default:
		return eris.Errorf("config: unknown store driver %q", c.Store.Driver)
	}

	switch mode {
	case "pipeline", "serve":
		if c.Analysis.Mode == "llm" && c.Anthropic.Key == "" {
			missing = append(missing, "anthropic.key")
		}
		if c.Analysis.Mode != "llm" && c.Analysis.Mode != "heuristic" {
			return eris.Errorf("config: analysis.mode must be llm or heuristic, got %q", c.Analysis.Mode)
		}
		for _, s := range c.Sources {
			if s.Kind == model.SourceSearch {
				if _, ok := c.Providers[s.Provider]; !ok {
					return eris.Errorf("config: source %q references unknown provider %q", s.Key(), s.Provider)
				}
			}
		}
		if c.Fetch.Workers < 1 || c.Fetch.Workers > 32 {
			return eris.New("config: fetch.workers must be between 1 and 32")
		}
		if c.Analysis.Workers < 1 || c.Analysis.Workers > 32 {
			return eris.New("config: analysis.workers must be between 1 and 32")
		}
		if c.Analysis.DeepThreshold < 0 || c.Analysis.DeepThreshold > 100 {
			return eris.New("config: analysis.deep_threshold must be between 0 and 100")
		}
		if mode == "serve" && c.Server.Port <= 0 {
			return eris.New("config: server.port must be > 0")
		}
	case "query":
	default:
		return eris.Errorf("config: unknown mode %q", mode)
	}

	switch c.Notify.Driver {
	case "log":
	case "webhook":
		if c.Notify.WebhookURL == "" {
			missing = append(missing, "notify.webhook_url")
		}
	case "kafka":
		if len(c.Notify.Brokers) == 0 {
			missing = append(missing, "notify.brokers")
		}
	default:
		return eris.Errorf("config: unknown notify driver %q", c.Notify.Driver)
	}

	if len(missing) > 0 {
		return eris.Errorf("config: missing required keys: %s", strings.Join(missing, ", "))
	}
	return nil
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
