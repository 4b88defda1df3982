package correlation

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/quantfx/decision-engine/pkg/types"
)

func newTestGuard() *Guard {
	return NewGuard(NewTable(2*time.Hour), GuardConfig{
		MaxCorrelationExposure: 0.6,
		MaxCurrencyExposure:    0.4,
	})
}

func TestRiskScore_SinglePositionIsZero(t *testing.T) {
	g := newTestGuard()

	score := g.RiskScore([]Holding{
		{Instrument: "EURUSD", Direction: types.DirectionLong, Volume: 0.1},
	})
	assert.Equal(t, 0.0, score)
}

func TestRiskScore_SameDirectionCorrelatedPair(t *testing.T) {
	g := newTestGuard()

	// EURUSD/GBPUSD static correlation 0.75, equal volumes, same direction
	score := g.RiskScore([]Holding{
		{Instrument: "EURUSD", Direction: types.DirectionLong, Volume: 0.1},
		{Instrument: "GBPUSD", Direction: types.DirectionLong, Volume: 0.1},
	})
	assert.InDelta(t, 0.75, score, 1e-9)
}

func TestRiskScore_OppositeDirectionsStillRisky(t *testing.T) {
	g := newTestGuard()

	// direction flip negates the coefficient but the absolute value is
	// what accumulates
	score := g.RiskScore([]Holding{
		{Instrument: "EURUSD", Direction: types.DirectionLong, Volume: 0.1},
		{Instrument: "GBPUSD", Direction: types.DirectionShort, Volume: 0.1},
	})
	assert.InDelta(t, 0.75, score, 1e-9)
}

func TestRiskScore_VolumeWeighting(t *testing.T) {
	g := newTestGuard()

	score := g.RiskScore([]Holding{
		{Instrument: "EURUSD", Direction: types.DirectionLong, Volume: 0.1},
		{Instrument: "GBPUSD", Direction: types.DirectionLong, Volume: 0.4},
	})
	// weight = 0.1/0.4 = 0.25
	assert.InDelta(t, 0.75*0.25, score, 1e-9)
}

func TestCheck_RejectsCorrelatedCandidate(t *testing.T) {
	g := newTestGuard()

	open := []types.Position{
		{Instrument: "EURUSD", Direction: types.DirectionLong, SizeLots: 0.1},
	}
	candidate := Holding{Instrument: "GBPUSD", Direction: types.DirectionLong, Volume: 0.1}

	ok, reason := g.Check(candidate, open, 100000)
	assert.False(t, ok)
	assert.Contains(t, reason, "correlation risk")
}

func TestCheck_AdmitsUncorrelatedCandidate(t *testing.T) {
	g := newTestGuard()
	g.table.SetDynamic("EURUSD", "USDJPY", 0.10, time.Now())

	open := []types.Position{
		{Instrument: "EURUSD", Direction: types.DirectionLong, SizeLots: 0.1},
	}
	candidate := Holding{Instrument: "USDJPY", Direction: types.DirectionLong, Volume: 0.1}

	ok, reason := g.Check(candidate, open, 100000)
	assert.True(t, ok, reason)
}

func TestCheck_RejectsCurrencyConcentration(t *testing.T) {
	g := newTestGuard()
	// kill the correlation path so only currency exposure can reject
	g.table.SetDynamic("EURUSD", "USDJPY", 0.0, time.Now())

	// two 0.2-lot positions both touch USD: 40,000 notional on a 50,000
	// balance is 80% USD exposure
	open := []types.Position{
		{Instrument: "EURUSD", Direction: types.DirectionLong, SizeLots: 0.2},
	}
	candidate := Holding{Instrument: "USDJPY", Direction: types.DirectionLong, Volume: 0.2}

	ok, reason := g.Check(candidate, open, 50000)
	assert.False(t, ok)
	assert.Contains(t, reason, "USD exposure")
}

func TestCheck_ZeroBalanceFailsClosed(t *testing.T) {
	g := newTestGuard()

	ok, _ := g.Check(Holding{Instrument: "EURUSD", Direction: types.DirectionLong, Volume: 0.01}, nil, 0)
	assert.False(t, ok)
}
