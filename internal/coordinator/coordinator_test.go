package coordinator

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quantfx/decision-engine/internal/performance"
	"github.com/quantfx/decision-engine/internal/regime"
	"github.com/quantfx/decision-engine/pkg/types"
)

func trendingRegime() regime.MarketRegime {
	return regime.MarketRegime{Type: regime.RegimeTrending, Strength: 80, Timestamp: time.Now()}
}

func opportunity(instrument string, dir types.Direction, confidence float64, strategyID string) types.Opportunity {
	return types.Opportunity{
		Instrument:     instrument,
		Direction:      dir,
		Confidence:     confidence,
		StopDistance:   0.0040,
		TargetDistance: 0.0080,
		StrategyID:     strategyID,
		Timestamp:      time.Now(),
	}
}

func newTestCoordinator(tracker *performance.Tracker) *Coordinator {
	return NewCoordinator(DefaultConfig(), tracker, nil)
}

func TestSelect_NewsEventPausesEverything(t *testing.T) {
	c := newTestCoordinator(performance.NewTracker())

	out := c.Select(regime.MarketRegime{Type: regime.RegimeNewsEvent}, []types.Opportunity{
		opportunity("EURUSD", types.DirectionLong, 95, "trend_following"),
	}, time.Now())

	assert.Empty(t, out)
}

func TestSelect_FiltersIneligibleStrategies(t *testing.T) {
	c := newTestCoordinator(performance.NewTracker())

	out := c.Select(trendingRegime(), []types.Opportunity{
		opportunity("EURUSD", types.DirectionLong, 90, "trend_following"),
		opportunity("GBPUSD", types.DirectionLong, 90, "range_scalper"), // not eligible in Trending
	}, time.Now())

	require.Len(t, out, 1)
	assert.Equal(t, "trend_following", out[0].StrategyID)
}

func TestSelect_DedupesByInstrumentAndDirection(t *testing.T) {
	c := newTestCoordinator(performance.NewTracker())

	out := c.Select(trendingRegime(), []types.Opportunity{
		opportunity("EURUSD", types.DirectionLong, 80, "trend_following"),
		opportunity("EURUSD", types.DirectionLong, 60, "breakout"),
		opportunity("EURUSD", types.DirectionShort, 75, "swing"),
	}, time.Now())

	require.Len(t, out, 2)
	// the higher-confidence long survives
	assert.Equal(t, "trend_following", out[0].StrategyID)
	assert.Equal(t, types.DirectionLong, out[0].Direction)
	assert.Equal(t, types.DirectionShort, out[1].Direction)
}

func TestSelect_SortsByPriorityAndCaps(t *testing.T) {
	c := newTestCoordinator(performance.NewTracker())

	out := c.Select(trendingRegime(), []types.Opportunity{
		opportunity("EURUSD", types.DirectionLong, 71, "trend_following"),
		opportunity("GBPUSD", types.DirectionLong, 92, "trend_following"),
		opportunity("USDJPY", types.DirectionLong, 85, "trend_following"),
		opportunity("AUDUSD", types.DirectionLong, 78, "trend_following"),
	}, time.Now())

	require.Len(t, out, 3, "cap at three per cycle")
	assert.Equal(t, "GBPUSD", out[0].Instrument)
	assert.Equal(t, "USDJPY", out[1].Instrument)
	assert.Equal(t, "AUDUSD", out[2].Instrument)
}

func TestSelect_DropsMalformedOpportunities(t *testing.T) {
	c := newTestCoordinator(performance.NewTracker())

	bad := opportunity("EURUSD", types.DirectionLong, 150, "trend_following")
	noStop := opportunity("GBPUSD", types.DirectionLong, 80, "trend_following")
	noStop.StopDistance = 0
	good := opportunity("USDJPY", types.DirectionLong, 80, "trend_following")

	out := c.Select(trendingRegime(), []types.Opportunity{bad, noStop, good}, time.Now())

	require.Len(t, out, 1)
	assert.Equal(t, "USDJPY", out[0].Instrument)
}

func TestSelect_PerformanceGateCullsWeakStrategies(t *testing.T) {
	tracker := performance.NewTracker()
	// 20 trades at a 30% win rate with a poor profit factor
	for i := 0; i < 6; i++ {
		tracker.RecordClosure(types.TradeResult{TicketID: fmt.Sprintf("W%d", i), StrategyID: "trend_following", PnL: 50, ClosedAt: time.Now()})
	}
	for i := 0; i < 14; i++ {
		tracker.RecordClosure(types.TradeResult{TicketID: fmt.Sprintf("L%d", i), StrategyID: "trend_following", PnL: -50, ClosedAt: time.Now()})
	}
	c := newTestCoordinator(tracker)

	out := c.Select(trendingRegime(), []types.Opportunity{
		opportunity("EURUSD", types.DirectionLong, 90, "trend_following"),
	}, time.Now())

	assert.Empty(t, out)
}

func TestSelect_ProfitFactorRedeemsLowWinRate(t *testing.T) {
	tracker := performance.NewTracker()
	// 40% win rate but winners are 4x losers: profit factor 2.67
	for i := 0; i < 8; i++ {
		tracker.RecordClosure(types.TradeResult{TicketID: fmt.Sprintf("W%d", i), StrategyID: "trend_following", PnL: 200, ClosedAt: time.Now()})
	}
	for i := 0; i < 12; i++ {
		tracker.RecordClosure(types.TradeResult{TicketID: fmt.Sprintf("L%d", i), StrategyID: "trend_following", PnL: -50, ClosedAt: time.Now()})
	}
	c := newTestCoordinator(tracker)

	out := c.Select(trendingRegime(), []types.Opportunity{
		opportunity("EURUSD", types.DirectionLong, 90, "trend_following"),
	}, time.Now())

	assert.Len(t, out, 1)
}

func TestSelect_SessionGating(t *testing.T) {
	config := DefaultConfig()
	config.Sessions = map[string][]string{
		"trend_following": {SessionLondon},
	}
	c := NewCoordinator(config, performance.NewTracker(), nil)

	london := time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)
	tokyo := time.Date(2026, 3, 10, 2, 0, 0, 0, time.UTC)
	candidates := []types.Opportunity{
		opportunity("EURUSD", types.DirectionLong, 90, "trend_following"),
		opportunity("GBPUSD", types.DirectionLong, 90, "breakout"), // unrestricted
	}

	out := c.Select(trendingRegime(), candidates, london)
	assert.Len(t, out, 2)

	out = c.Select(trendingRegime(), candidates, tokyo)
	require.Len(t, out, 1)
	assert.Equal(t, "breakout", out[0].StrategyID)
}

func TestActiveSessions_Overlap(t *testing.T) {
	at := func(hour int) time.Time {
		return time.Date(2026, 3, 10, hour, 30, 0, 0, time.UTC)
	}

	active := ActiveSessions(at(14))
	assert.Contains(t, active, SessionLondon)
	assert.Contains(t, active, SessionNewYork)

	active = ActiveSessions(at(2))
	assert.Contains(t, active, SessionAsian)
	assert.NotContains(t, active, SessionLondon)

	assert.Empty(t, ActiveSessions(at(21)))
}

func TestSelect_FrequencyPenaltyLowersPriority(t *testing.T) {
	tracker := performance.NewTracker()
	now := time.Now()
	// five recent admissions for the busy strategy
	for i := 0; i < 5; i++ {
		tracker.RecordAdmission("trend_following", now.Add(-time.Duration(i)*time.Minute))
	}
	c := newTestCoordinator(tracker)

	out := c.Select(trendingRegime(), []types.Opportunity{
		opportunity("EURUSD", types.DirectionLong, 80, "trend_following"),
		opportunity("GBPUSD", types.DirectionLong, 78, "breakout"),
	}, now)

	require.Len(t, out, 2)
	// 0.80 - 5*0.02 = 0.70 < 0.78: the quiet strategy ranks first
	assert.Equal(t, "breakout", out[0].StrategyID)
}
