package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/sells-group/news-intel/internal/model"
)

func chdirTemp(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	origDir, _ := os.Getwd()
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { os.Chdir(origDir) })
	return dir
}

func TestLoadDefaults(t *testing.T) {
	chdirTemp(t)

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "sqlite", cfg.Store.Driver)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, "json", cfg.Log.Format)
	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, 4, cfg.Fetch.Workers)
	assert.Equal(t, 15, cfg.Fetch.TimeoutSecs)
	assert.Equal(t, 3, cfg.Analysis.Workers)
	assert.Equal(t, 70, cfg.Analysis.DeepThreshold)
	assert.Equal(t, 60, cfg.Alerts.MinRelevance)
	assert.Equal(t, 1800, cfg.Cache.TTLSecs)
	assert.Equal(t, "log", cfg.Notify.Driver)
	assert.Equal(t, 12, cfg.Monitor.LookbackRuns)
	assert.InDelta(t, 0.25, cfg.Monitor.FailureRateThreshold, 0.001)
	assert.Equal(t, "claude-haiku-4-5-20251001", cfg.Anthropic.TriageModel)
	assert.Contains(t, cfg.Analysis.CredibleSources, "reuters")
	assert.InDelta(t, 0.80, cfg.Pricing.Anthropic["claude-haiku-4-5-20251001"].Input, 0.001)
}

func TestLoadFromYAML(t *testing.T) {
	dir := chdirTemp(t)

	yaml := `
store:
  driver: postgres
  database_url: postgres://localhost/news
log:
  level: debug
  format: console
fetch:
  workers: 8
sources:
  - name: industryweek
    kind: rss
    url: https://www.industryweek.com/rss
    credible: true
  - kind: search
    provider: gnews
    query: robotics plant
providers:
  gnews:
    base_url: https://gnews.io/api/v4/search
    key: abc
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0644))

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "postgres", cfg.Store.Driver)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, 8, cfg.Fetch.Workers)
	require.Len(t, cfg.Sources, 2)
	assert.Equal(t, model.SourceRSS, cfg.Sources[0].Kind)
	assert.True(t, cfg.Sources[0].Credible)
	assert.Equal(t, "robotics plant", cfg.Sources[1].Query)
	assert.Equal(t, "abc", cfg.Providers["gnews"].Key)
	// Defaults still apply for unset values
	assert.Equal(t, 3, cfg.Analysis.Workers)
}

func TestLoadEnvOverridesFile(t *testing.T) {
	dir := chdirTemp(t)

	yaml := `
store:
  driver: sqlite
log:
  level: debug
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yaml), 0644))

	t.Setenv("NEWSINTEL_STORE_DRIVER", "postgres")
	t.Setenv("NEWSINTEL_LOG_LEVEL", "warn")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "postgres", cfg.Store.Driver)
	assert.Equal(t, "warn", cfg.Log.Level)
}

func TestLoadDotEnv(t *testing.T) {
	dir := chdirTemp(t)
	require.NoError(t, os.WriteFile(filepath.Join(dir, ".env"), []byte("NEWSINTEL_SERVER_PORT=3000\n"), 0644))
	t.Cleanup(func() { os.Unsetenv("NEWSINTEL_SERVER_PORT") })

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 3000, cfg.Server.Port)
}

func TestInitLoggerConsole(t *testing.T) {
	err := InitLogger(LogConfig{Level: "debug", Format: "console"})
	require.NoError(t, err)
	assert.NotNil(t, zap.L())
}

func TestInitLoggerInvalidLevel(t *testing.T) {
	err := InitLogger(LogConfig{Level: "invalid", Format: "json"})
	assert.Error(t, err)
}

// validDefaults returns a Config with all defaults populated for validation tests.
func validDefaults() *Config {
	cfg := &Config{}
	cfg.Store.Driver = "sqlite"
	cfg.Anthropic.Key = "sk-ant-key"
	cfg.Analysis.Mode = "llm"
	cfg.Analysis.Workers = 3
	cfg.Analysis.DeepThreshold = 70
	cfg.Fetch.Workers = 4
	cfg.Notify.Driver = "log"
	cfg.Server.Port = 8080
	return cfg
}

func TestValidatePipeline_AllPresent(t *testing.T) {
	assert.NoError(t, validDefaults().Validate("pipeline"))
}

func TestValidatePipeline_MissingKey(t *testing.T) {
	cfg := validDefaults()
	cfg.Anthropic.Key = ""

	err := cfg.Validate("pipeline")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "anthropic.key")

	cfg.Analysis.Mode = "heuristic"
	assert.NoError(t, cfg.Validate("pipeline"))
}

func TestValidate_PostgresNeedsURL(t *testing.T) {
	cfg := validDefaults()
	cfg.Store.Driver = "postgres"

	err := cfg.Validate("query")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "store.database_url")
}

func TestValidate_UnknownProvider(t *testing.T) {
	cfg := validDefaults()
	cfg.Sources = []model.Source{{Kind: model.SourceSearch, Provider: "nope", Query: "x"}}

	err := cfg.Validate("pipeline")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown provider")
}

func TestValidate_NotifyDrivers(t *testing.T) {
	cfg := validDefaults()
	cfg.Notify.Driver = "webhook"
	assert.Error(t, cfg.Validate("query"))
	cfg.Notify.WebhookURL = "https://hooks.example.com/x"
	assert.NoError(t, cfg.Validate("query"))

	cfg.Notify.Driver = "kafka"
	assert.Error(t, cfg.Validate("query"))
	cfg.Notify.Brokers = []string{"localhost:9092"}
	assert.NoError(t, cfg.Validate("query"))

	cfg.Notify.Driver = "pigeon"
	assert.Error(t, cfg.Validate("query"))
}

func TestValidateServe_InvalidPort(t *testing.T) {
	cfg := validDefaults()
	cfg.Server.Port = 0

	err := cfg.Validate("serve")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "server.port must be > 0")
}

func TestValidateConcurrencyBounds(t *testing.T) {
	cfg := validDefaults()

	cfg.Fetch.Workers = 0
	assert.ErrorContains(t, cfg.Validate("pipeline"), "fetch.workers")

	cfg.Fetch.Workers = 4
	cfg.Analysis.Workers = 33
	assert.ErrorContains(t, cfg.Validate("pipeline"), "analysis.workers")

	cfg.Analysis.Workers = 3
	cfg.Analysis.DeepThreshold = 101
	assert.ErrorContains(t, cfg.Validate("pipeline"), "deep_threshold")
}

func TestValidateUnknownMode(t *testing.T) {
	err := validDefaults().Validate("unknown")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown mode")
}
