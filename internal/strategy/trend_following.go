package strategy

import (
	"math"
	"time"

	"github.com/quantfx/decision-engine/pkg/types"
)

// TrendFollowing proposes swing entries in the direction of an established
// trend. It wants a firm ADX reading and aligned moving averages, and
// scales its stop with current volatility.
type TrendFollowing struct {
	cadence       time.Duration
	minTrend      float64
	minAlignment  float64
	baseStopPrice float64 // stop distance in price units at normal volatility
	rewardRatio   float64
}

// NewTrendFollowing creates a swing trend analyzer
func NewTrendFollowing(cadence time.Duration) *TrendFollowing {
	return &TrendFollowing{
		cadence:       cadence,
		minTrend:      25,
		minAlignment:  0.5,
		baseStopPrice: 0.0040,
		rewardRatio:   2.0,
	}
}

func (t *TrendFollowing) ID() string {
	return "trend_following"
}

func (t *TrendFollowing) Cadence() time.Duration {
	return t.cadence
}

func (t *TrendFollowing) Analyze(snapshot types.IndicatorSnapshot, now time.Time) []types.Opportunity {
	if !snapshot.HasData() {
		return nil
	}
	if snapshot.TrendStrength < t.minTrend || math.Abs(snapshot.MAAlignment) < t.minAlignment {
		return nil
	}

	direction := types.DirectionLong
	if snapshot.MAAlignment < 0 {
		direction = types.DirectionShort
	}

	confidence := 50 + snapshot.TrendStrength*0.4 + math.Abs(snapshot.MAAlignment)*20
	if confidence > 95 {
		confidence = 95
	}

	// wider stops in elevated volatility, never tighter than the base
	stop := t.baseStopPrice * math.Max(1.0, snapshot.VolatilityRatio)

	return []types.Opportunity{{
		Instrument:     snapshot.Instrument,
		Direction:      direction,
		Confidence:     confidence,
		StopDistance:   stop,
		TargetDistance: stop * t.rewardRatio,
		StrategyID:     t.ID(),
		Timestamp:      now,
	}}
}
