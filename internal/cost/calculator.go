// Package cost estimates the AI spend of pipeline runs. The product
// analysis, market estimation, and listing generation phases all call the
// Anthropic API; the tracker turns their reported token usage into dollar
// figures for logs and the metrics endpoint.
package cost

import "sync"

// ModelRate holds per-model token pricing (per million tokens).
type ModelRate struct {
	Input  float64 `yaml:"input" mapstructure:"input"`
	Output float64 `yaml:"output" mapstructure:"output"`
}

// Rates maps Anthropic model names to their pricing.
type Rates map[string]ModelRate

// DefaultRates returns the published Anthropic pricing for the models the
// pipeline uses.
func DefaultRates() Rates {
	return Rates{
		"claude-haiku-4-5-20251001":  {Input: 0.80, Output: 4.00},
		"claude-sonnet-4-5-20250929": {Input: 3.00, Output: 15.00},
	}
}

// Calculator computes costs for API usage.
type Calculator struct {
	rates Rates
}

// NewCalculator creates a Calculator with the given rates.
func NewCalculator(rates Rates) *Calculator {
	return &Calculator{rates: rates}
}

// Message computes the cost of a single Anthropic message call. Unknown
// models cost zero rather than guessing.
func (c *Calculator) Message(model string, inputTokens, outputTokens int64) float64 {
	rate, ok := c.rates[model]
	if !ok {
		return 0
	}
	return (float64(inputTokens)/1e6)*rate.Input + (float64(outputTokens)/1e6)*rate.Output
}

// Tracker accumulates AI spend across calls. Safe for concurrent use by
// background pipeline runs.
type Tracker struct {
	calc *Calculator

	mu    sync.Mutex
	calls int64
	total float64
}

// NewTracker creates a Tracker using the default rates.
func NewTracker() *Tracker {
	return &Tracker{calc: NewCalculator(DefaultRates())}
}

// Record adds one message call's usage and returns its cost.
func (t *Tracker) Record(model string, inputTokens, outputTokens int64) float64 {
	c := t.calc.Message(model, inputTokens, outputTokens)
	t.mu.Lock()
	t.calls++
	t.total += c
	t.mu.Unlock()
	return c
}

// Totals returns the call count and accumulated cost so far.
func (t *Tracker) Totals() (calls int64, totalUSD float64) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.calls, t.total
}
