package regime

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/quantfx/decision-engine/pkg/types"
)

func snapshot(vol, trend, align float64) types.IndicatorSnapshot {
	return types.IndicatorSnapshot{
		Instrument:      "EURUSD",
		VolatilityRatio: vol,
		TrendStrength:   trend,
		MAAlignment:     align,
		Timestamp:       time.Now(),
	}
}

func TestClassify_Cascade(t *testing.T) {
	tests := []struct {
		name     string
		vol      float64
		trend    float64
		align    float64
		expected RegimeType
	}{
		{"volatile wins over trend", 2.5, 40, 0.9, RegimeVolatile},
		{"trending", 1.0, 35, 0.8, RegimeTrending},
		{"trending negative alignment", 1.0, 35, -0.8, RegimeTrending},
		{"ranging on weak trend", 1.0, 15, 0.8, RegimeRanging},
		{"quiet on low volatility", 0.3, 25, 0.5, RegimeQuiet},
		{"default ranging", 1.0, 25, 0.3, RegimeRanging},
		{"strong trend weak alignment is not trending", 1.0, 50, 0.5, RegimeRanging},
	}

	c := NewClassifier(DefaultConfig())
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := c.Classify(snapshot(tt.vol, tt.trend, tt.align))
			assert.Equal(t, tt.expected, result.Type)
			assert.GreaterOrEqual(t, result.Strength, 0.0)
			assert.LessOrEqual(t, result.Strength, 100.0)
		})
	}
}

func TestClassify_MissingDataDefaultsToRanging(t *testing.T) {
	c := NewClassifier(DefaultConfig())

	result := c.Classify(types.IndicatorSnapshot{Instrument: "EURUSD"})

	assert.Equal(t, RegimeRanging, result.Type)
	assert.Equal(t, 0.0, result.Strength)
}

func TestClassify_NewsEventOverridesEverything(t *testing.T) {
	c := NewClassifier(DefaultConfig())
	c.SetNewsEvent(time.Now().Add(time.Hour))

	result := c.Classify(snapshot(2.5, 40, 0.9))
	assert.Equal(t, RegimeNewsEvent, result.Type)
}

func TestClassify_NewsEventExpires(t *testing.T) {
	c := NewClassifier(DefaultConfig())
	c.SetNewsEvent(time.Now().Add(-time.Minute))

	result := c.Classify(snapshot(1.0, 35, 0.8))
	assert.Equal(t, RegimeTrending, result.Type)
}

func TestClassify_KeepsHistory(t *testing.T) {
	c := NewClassifier(DefaultConfig())

	c.Classify(snapshot(2.5, 40, 0.9))
	c.Classify(snapshot(1.0, 15, 0.2))

	history := c.History()
	assert.Len(t, history, 2)
	assert.Equal(t, RegimeVolatile, history[0].Type)
	assert.Equal(t, RegimeRanging, history[1].Type)
}
