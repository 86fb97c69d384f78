// Package cost estimates spend on text-analysis calls.
package cost

import "sync"

// Rates holds per-provider pricing configuration.
type Rates struct {
	Anthropic map[string]ModelRate `yaml:"anthropic" mapstructure:"anthropic"`
}

// ModelRate holds per-model token pricing (per million tokens).
type ModelRate struct {
	Input         float64 `yaml:"input" mapstructure:"input"`
	Output        float64 `yaml:"output" mapstructure:"output"`
	CacheWriteMul float64 `yaml:"cache_write_mul" mapstructure:"cache_write_mul"`
	CacheReadMul  float64 `yaml:"cache_read_mul" mapstructure:"cache_read_mul"`
}

// Usage is the token count of one capability call.
type Usage struct {
	Input      int64
	Output     int64
	CacheWrite int64
	CacheRead  int64
}

// Calculator computes costs for API usage.
type Calculator struct {
	rates Rates
}

// NewCalculator creates a Calculator with the given rates.
func NewCalculator(rates Rates) *Calculator {
	return &Calculator{rates: rates}
}

// Claude computes the cost for a Claude API call. Unknown models cost 0.
func (c *Calculator) Claude(model string, u Usage) float64 {
	rate, ok := c.rates.Anthropic[model]
	if !ok {
		return 0
	}

	inCost := (float64(u.Input) / 1e6) * rate.Input
	outCost := (float64(u.Output) / 1e6) * rate.Output
	cwCost := (float64(u.CacheWrite) / 1e6) * rate.Input * rate.CacheWriteMul
	crCost := (float64(u.CacheRead) / 1e6) * rate.Input * rate.CacheReadMul

	return inCost + outCost + cwCost + crCost
}

// Ledger accumulates spend across concurrent calls within one run.
type Ledger struct {
	calc *Calculator

	mu      sync.Mutex
	calls   int
	usage   Usage
	totalUS float64
}

// NewLedger returns an empty ledger priced by calc. A nil calc records
// tokens but prices everything at 0.
func NewLedger(calc *Calculator) *Ledger {
	return &Ledger{calc: calc}
}

// Record adds one call's usage.
func (l *Ledger) Record(model string, u Usage) {
	if l == nil {
		return
	}
	var usd float64
	if l.calc != nil {
		usd = l.calc.Claude(model, u)
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	l.calls++
	l.usage.Input += u.Input
	l.usage.Output += u.Output
	l.usage.CacheWrite += u.CacheWrite
	l.usage.CacheRead += u.CacheRead
	l.totalUS += usd
}

// Totals returns the number of calls, summed usage and USD spent.
func (l *Ledger) Totals() (int, Usage, float64) {
	if l == nil {
		return 0, Usage{}, 0
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.calls, l.usage, l.totalUS
}

// DefaultRates returns the default pricing rates.
func DefaultRates() Rates {
	return Rates{
		Anthropic: map[string]ModelRate{
			"claude-haiku-4-5-20251001": {
				Input: 0.80, Output: 4.00, CacheWriteMul: 1.25, CacheReadMul: 0.1,
			},
			"claude-sonnet-4-5-20250929": {
				Input: 3.00, Output: 15.00, CacheWriteMul: 1.25, CacheReadMul: 0.1,
			},
		},
	}
}
