package strategy

import (
	"time"

	"github.com/quantfx/decision-engine/pkg/types"
)

// RangeScalper fades small moves inside a quiet range: it trades against
// the moving-average tilt when trend strength is weak and volatility is
// unremarkable. Tight stops, modest targets, high cadence.
type RangeScalper struct {
	cadence      time.Duration
	maxTrend     float64
	minVolRatio  float64
	maxVolRatio  float64
	stopDistance float64
	rewardRatio  float64
}

// NewRangeScalper creates a high-frequency range analyzer
func NewRangeScalper(cadence time.Duration) *RangeScalper {
	return &RangeScalper{
		cadence:      cadence,
		maxTrend:     20,
		minVolRatio:  0.5,
		maxVolRatio:  1.5,
		stopDistance: 0.0015,
		rewardRatio:  1.3,
	}
}

func (r *RangeScalper) ID() string {
	return "range_scalper"
}

func (r *RangeScalper) Cadence() time.Duration {
	return r.cadence
}

func (r *RangeScalper) Analyze(snapshot types.IndicatorSnapshot, now time.Time) []types.Opportunity {
	if !snapshot.HasData() {
		return nil
	}
	if snapshot.TrendStrength >= r.maxTrend {
		return nil
	}
	if snapshot.VolatilityRatio < r.minVolRatio || snapshot.VolatilityRatio > r.maxVolRatio {
		return nil
	}
	if snapshot.MAAlignment == 0 {
		return nil
	}

	// fade the tilt: price stretched up inside a range is a short
	direction := types.DirectionShort
	if snapshot.MAAlignment < 0 {
		direction = types.DirectionLong
	}

	confidence := 50 + (r.maxTrend-snapshot.TrendStrength)*1.5
	if confidence > 85 {
		confidence = 85
	}

	return []types.Opportunity{{
		Instrument:     snapshot.Instrument,
		Direction:      direction,
		Confidence:     confidence,
		StopDistance:   r.stopDistance,
		TargetDistance: r.stopDistance * r.rewardRatio,
		StrategyID:     r.ID(),
		Timestamp:      now,
	}}
}
