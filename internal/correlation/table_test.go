package correlation

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLookup_Symmetry(t *testing.T) {
	table := NewTable(2 * time.Hour)

	pairs := [][2]string{
		{"EURUSD", "GBPUSD"},
		{"USDJPY", "AUDUSD"},
		{"GBPJPY", "CHFNOK"}, // heuristic path
	}
	for _, p := range pairs {
		ab := table.Lookup(p[0], p[1])
		ba := table.Lookup(p[1], p[0])
		assert.Equal(t, ab.Coefficient, ba.Coefficient, "%s/%s", p[0], p[1])
		assert.Equal(t, ab.Source, ba.Source)
	}
}

func TestLookup_SelfIsOne(t *testing.T) {
	table := NewTable(2 * time.Hour)
	assert.Equal(t, 1.0, table.Lookup("EURUSD", "EURUSD").Coefficient)
}

func TestLookup_ResolutionOrder(t *testing.T) {
	table := NewTable(2 * time.Hour)

	// static seed
	entry := table.Lookup("EURUSD", "GBPUSD")
	assert.Equal(t, SourceStatic, entry.Source)
	assert.Equal(t, 0.75, entry.Coefficient)

	// fresh dynamic overrides static
	table.SetDynamic("EURUSD", "GBPUSD", 0.42, time.Now())
	entry = table.Lookup("EURUSD", "GBPUSD")
	assert.Equal(t, SourceDynamic, entry.Source)
	assert.Equal(t, 0.42, entry.Coefficient)

	// stale dynamic falls back to static
	table.SetDynamic("EURUSD", "GBPUSD", 0.42, time.Now().Add(-3*time.Hour))
	entry = table.Lookup("EURUSD", "GBPUSD")
	assert.Equal(t, SourceStatic, entry.Source)
}

func TestLookup_CurrencyHeuristic(t *testing.T) {
	table := NewTable(2 * time.Hour)

	tests := []struct {
		name     string
		a, b     string
		expected float64
	}{
		{"inverted pair", "EURUSD", "USDEUR", -0.8},
		{"same base", "EURAUD", "EURNZD", 0.6},
		{"same quote", "EURCAD", "GBPCAD", -0.5},
		{"one shared currency", "EURAUD", "AUDNZD", 0.4},
		{"nothing shared", "EURGBP", "AUDNZD", 0.1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			entry := table.Lookup(tt.a, tt.b)
			assert.Equal(t, SourceHeuristic, entry.Source)
			assert.Equal(t, tt.expected, entry.Coefficient)
		})
	}
}

func TestUpdateFromReturns(t *testing.T) {
	table := NewTable(2 * time.Hour)

	// perfectly correlated series
	x := make([]float64, 20)
	y := make([]float64, 20)
	for i := range x {
		x[i] = float64(i%5) * 0.001
		y[i] = float64(i%5) * 0.002
	}

	updated := table.UpdateFromReturns(map[string][]float64{
		"EURUSD": x,
		"GBPUSD": y,
	}, time.Now())

	assert.Equal(t, 1, updated)
	entry := table.Lookup("EURUSD", "GBPUSD")
	assert.Equal(t, SourceDynamic, entry.Source)
	assert.InDelta(t, 1.0, entry.Coefficient, 1e-9)
}

func TestUpdateFromReturns_SkipsShortSeries(t *testing.T) {
	table := NewTable(2 * time.Hour)

	updated := table.UpdateFromReturns(map[string][]float64{
		"EURUSD": {0.001, 0.002},
		"GBPUSD": {0.001, 0.002},
	}, time.Now())

	assert.Equal(t, 0, updated)
}
