package cost

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
)

func testRates() Rates {
	return Rates{
		"haiku":  {Input: 0.80, Output: 4.00},
		"sonnet": {Input: 3.00, Output: 15.00},
	}
}

func TestMessage(t *testing.T) {
	t.Parallel()
	calc := NewCalculator(testRates())

	tests := []struct {
		name   string
		model  string
		input  int64
		output int64
		want   float64
	}{
		{"haiku small call", "haiku", 1000, 500, 0.0028},
		{"sonnet large call", "sonnet", 1_000_000, 100_000, 4.5},
		{"zero tokens", "haiku", 0, 0, 0},
		{"unknown model", "gpt-nine", 1_000_000, 1_000_000, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, calc.Message(tt.model, tt.input, tt.output), 1e-9)
		})
	}
}

func TestTracker_Accumulates(t *testing.T) {
	tr := &Tracker{calc: NewCalculator(testRates())}

	tr.Record("haiku", 1000, 500)
	tr.Record("haiku", 1000, 500)
	tr.Record("unknown", 1000, 500)

	calls, total := tr.Totals()
	assert.Equal(t, int64(3), calls)
	assert.InDelta(t, 0.0056, total, 1e-9)
}

func TestTracker_ConcurrentRecords(t *testing.T) {
	tr := &Tracker{calc: NewCalculator(testRates())}

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			tr.Record("sonnet", 1000, 1000)
		}()
	}
	wg.Wait()

	calls, total := tr.Totals()
	assert.Equal(t, int64(50), calls)
	assert.InDelta(t, 50*0.018, total, 1e-9)
}

func TestDefaultRates_CoverConfiguredModels(t *testing.T) {
	calc := NewCalculator(DefaultRates())
	assert.Greater(t, calc.Message("claude-haiku-4-5-20251001", 1_000_000, 0), 0.0)
}
