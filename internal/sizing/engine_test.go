package sizing

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quantfx/decision-engine/internal/capital"
	"github.com/quantfx/decision-engine/internal/errors"
	"github.com/quantfx/decision-engine/internal/performance"
	"github.com/quantfx/decision-engine/pkg/types"
)

// seedTrades records wins then losses for the strategy
func seedTrades(tracker *performance.Tracker, strategyID string, wins int, winAmount float64, losses int, lossAmount float64) {
	n := 0
	for i := 0; i < wins; i++ {
		tracker.RecordClosure(types.TradeResult{
			TicketID:   fmt.Sprintf("%s-W-%d", strategyID, i),
			StrategyID: strategyID,
			PnL:        winAmount,
			ClosedAt:   time.Now(),
		})
		n++
	}
	for i := 0; i < losses; i++ {
		tracker.RecordClosure(types.TradeResult{
			TicketID:   fmt.Sprintf("%s-L-%d", strategyID, i),
			StrategyID: strategyID,
			PnL:        -lossAmount,
			ClosedAt:   time.Now(),
		})
		n++
	}
}

func normalSnapshot(balance float64) capital.Snapshot {
	return capital.Snapshot{
		CurrentBalance:      balance,
		PeakBalance:         balance,
		RiskReductionFactor: 1.0,
		Level:               capital.ProtectionNormal,
	}
}

func TestSafeKelly_KnownInputs(t *testing.T) {
	tracker := performance.NewTracker()
	// 20 trades, 12 wins of $80, 8 losses of $50:
	// b = 1.6, p = 0.6, kelly = (1.6*0.6 - 0.4)/1.6 = 0.35, capped to 0.25
	seedTrades(tracker, "swing", 12, 80, 8, 50)

	e := NewEngine(DefaultConfig(), tracker)
	assert.InDelta(t, 0.0625, e.SafeKelly("swing"), 1e-9)
}

func TestSafeKelly_DefaultsUnderMinimumSample(t *testing.T) {
	tracker := performance.NewTracker()
	seedTrades(tracker, "new_strategy", 5, 80, 4, 50)

	e := NewEngine(DefaultConfig(), tracker)
	assert.Equal(t, 0.02, e.SafeKelly("new_strategy"))
}

func TestSafeKelly_NegativeEdgeClampsToZero(t *testing.T) {
	tracker := performance.NewTracker()
	// 30% win rate with symmetric payoffs has negative expectancy
	seedTrades(tracker, "loser", 6, 50, 14, 50)

	e := NewEngine(DefaultConfig(), tracker)
	assert.Equal(t, 0.0, e.SafeKelly("loser"))
}

func TestSize_KnownScenario(t *testing.T) {
	tracker := performance.NewTracker()
	seedTrades(tracker, "swing", 12, 80, 8, 50)
	e := NewEngine(DefaultConfig(), tracker)

	opp := types.Opportunity{
		Instrument:     "EURUSD",
		Direction:      types.DirectionLong,
		Confidence:     90,
		StopDistance:   0.0050, // 50 pips
		TargetDistance: 0.0100,
		StrategyID:     "swing",
	}

	result, err := e.Size(opp, normalSnapshot(10000), 0)
	require.NoError(t, err)

	// finalRisk = min(0.0625*0.9, 0.05) = 0.05 -> $500 at risk
	assert.InDelta(t, 0.05, result.RiskFraction, 1e-9)
	assert.InDelta(t, 500.0, result.RiskAmount, 1e-6)
	// $500 / (50 pips * $10/pip) = 1.0 lots
	assert.InDelta(t, 1.0, result.SizeLots, 1e-9)
}

func TestSize_ProtectionFactorHalvesRisk(t *testing.T) {
	tracker := performance.NewTracker()
	seedTrades(tracker, "swing", 12, 80, 8, 50)
	e := NewEngine(DefaultConfig(), tracker)

	opp := types.Opportunity{
		Instrument:   "EURUSD",
		Direction:    types.DirectionLong,
		Confidence:   90,
		StopDistance: 0.0050,
		TargetDistance: 0.0100,
		StrategyID:   "swing",
	}
	snap := normalSnapshot(10000)
	snap.RiskReductionFactor = 0.5
	snap.Level = capital.ProtectionReduced

	result, err := e.Size(opp, snap, 0)
	require.NoError(t, err)
	assert.InDelta(t, 250.0, result.RiskAmount, 1e-6)
}

func TestSize_KellyBound(t *testing.T) {
	tracker := performance.NewTracker()
	// extreme edge: 90% win rate, 4:1 payoff
	seedTrades(tracker, "ace", 18, 200, 2, 50)
	e := NewEngine(DefaultConfig(), tracker)

	for _, conf := range []float64{0, 25, 50, 75, 100} {
		opp := types.Opportunity{
			Instrument:     "EURUSD",
			Direction:      types.DirectionLong,
			Confidence:     conf,
			StopDistance:   0.0050,
			TargetDistance: 0.0100,
			StrategyID:     "ace",
		}
		result, err := e.Size(opp, normalSnapshot(10000), 0)
		require.NoError(t, err)
		assert.GreaterOrEqual(t, result.RiskFraction, 0.0)
		assert.LessOrEqual(t, result.RiskFraction, e.config.MaxSingleTradeRiskPct)
	}
}

func TestSize_BudgetFitScalesDown(t *testing.T) {
	tracker := performance.NewTracker()
	seedTrades(tracker, "swing", 12, 80, 8, 50)
	e := NewEngine(DefaultConfig(), tracker)

	opp := types.Opportunity{
		Instrument:     "EURUSD",
		Direction:      types.DirectionLong,
		Confidence:     90,
		StopDistance:   0.0050,
		TargetDistance: 0.0100,
		StrategyID:     "swing",
	}

	// budget is 20% of $10,000 = $2,000; $1,800 already committed leaves
	// $200 for a trade that wants $500
	result, err := e.Size(opp, normalSnapshot(10000), 1800)
	require.NoError(t, err)
	assert.InDelta(t, 200.0, result.RiskAmount, 1e-6)
	assert.InDelta(t, 0.4, result.SizeLots, 1e-9)
}

func TestSize_BudgetDepletedRejects(t *testing.T) {
	tracker := performance.NewTracker()
	e := NewEngine(DefaultConfig(), tracker)

	opp := types.Opportunity{
		Instrument:     "EURUSD",
		Direction:      types.DirectionLong,
		Confidence:     90,
		StopDistance:   0.0050,
		TargetDistance: 0.0100,
		StrategyID:     "swing",
	}

	_, err := e.Size(opp, normalSnapshot(10000), 2000)
	require.Error(t, err)
	assert.True(t, errors.IsCategory(err, errors.ErrorCategoryBudgetExceeded))
}

func TestSize_MinLotCannotOverrunBudget(t *testing.T) {
	tracker := performance.NewTracker()
	seedTrades(tracker, "swing", 12, 80, 8, 50)
	e := NewEngine(DefaultConfig(), tracker)

	opp := types.Opportunity{
		Instrument:     "EURUSD",
		Direction:      types.DirectionLong,
		Confidence:     90,
		StopDistance:   0.0020, // 20 pips: minimum lot risks $2.00
		TargetDistance: 0.0040,
		StrategyID:     "swing",
	}

	// $0.50 of budget left cannot fund even 0.01 lots; the min-lot clamp
	// must not reserve past the portfolio ceiling
	_, err := e.Size(opp, normalSnapshot(10000), 1999.50)
	require.Error(t, err)
	assert.True(t, errors.IsCategory(err, errors.ErrorCategoryBudgetExceeded))
}

func TestSize_RejectsNonPositiveStop(t *testing.T) {
	tracker := performance.NewTracker()
	e := NewEngine(DefaultConfig(), tracker)

	_, err := e.Size(types.Opportunity{
		Instrument: "EURUSD",
		Confidence: 90,
		StrategyID: "swing",
	}, normalSnapshot(10000), 0)

	require.Error(t, err)
	assert.True(t, errors.IsCategory(err, errors.ErrorCategoryInvalidOpportunity))
}
