package cost

import (
	"sort"
	"sync"

	"go.uber.org/zap"

	"github.com/sells-group/childcare-cli/internal/model"
	"github.com/sells-group/childcare-cli/pkg/anthropic"
)

// Totals accumulates usage for one pass.
type Totals struct {
	Calls        int
	InputTokens  int64
	OutputTokens int64
	CostUSD      float64
}

// Tracker accumulates model usage per pass. Safe for concurrent use.
type Tracker struct {
	calc *Calculator

	mu     sync.Mutex
	totals map[model.Pass]*Totals
}

// NewTracker creates a Tracker that prices usage with calc.
func NewTracker(calc *Calculator) *Tracker {
	return &Tracker{calc: calc, totals: make(map[model.Pass]*Totals)}
}

// Record adds one call's usage to the pass totals and returns its cost.
func (t *Tracker) Record(pass model.Pass, modelName string, u anthropic.TokenUsage) float64 {
	usd := t.calc.Claude(modelName, u.InputTokens, u.OutputTokens, u.CacheCreationInputTokens, u.CacheReadInputTokens)

	t.mu.Lock()
	defer t.mu.Unlock()

	tot, ok := t.totals[pass]
	if !ok {
		tot = &Totals{}
		t.totals[pass] = tot
	}
	tot.Calls++
	tot.InputTokens += u.InputTokens
	tot.OutputTokens += u.OutputTokens
	tot.CostUSD += usd
	return usd
}

// Totals returns a copy of the totals for pass.
func (t *Tracker) Totals(pass model.Pass) Totals {
	t.mu.Lock()
	defer t.mu.Unlock()
	if tot, ok := t.totals[pass]; ok {
		return *tot
	}
	return Totals{}
}

// Log writes one summary line per pass with recorded usage.
func (t *Tracker) Log() {
	t.mu.Lock()
	passes := make([]string, 0, len(t.totals))
	for p := range t.totals {
		passes = append(passes, string(p))
	}
	t.mu.Unlock()

	sort.Strings(passes)
	for _, p := range passes {
		tot := t.Totals(model.Pass(p))
		zap.L().Info("model usage",
			zap.String("pass", p),
			zap.Int("calls", tot.Calls),
			zap.Int64("input_tokens", tot.InputTokens),
			zap.Int64("output_tokens", tot.OutputTokens),
			zap.Float64("estimated_cost_usd", tot.CostUSD),
		)
	}
}
