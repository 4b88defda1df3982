package sizing

import (
	"fmt"
	"math"

	"github.com/quantfx/decision-engine/internal/capital"
	"github.com/quantfx/decision-engine/internal/errors"
	"github.com/quantfx/decision-engine/internal/performance"
	"github.com/quantfx/decision-engine/pkg/types"
)

// pipSize converts stop distances in price units to pips
const pipSize = 0.0001

// Config holds the sizing parameters
type Config struct {
	KellyLookbackTrades   int
	KellyDefault          float64 // used below the minimum sample size
	KellyCap              float64 // hard ceiling on full Kelly
	KellySafetyFactor     float64 // fractional-Kelly multiplier
	MaxSingleTradeRiskPct float64
	MaxPortfolioRiskPct   float64
	MinLots               float64
	MaxLots               float64
	PipValuePerLot        float64 // account-currency value of one pip per lot
}

// DefaultConfig returns the standard sizing parameters
func DefaultConfig() Config {
	return Config{
		KellyLookbackTrades:   50,
		KellyDefault:          0.02,
		KellyCap:              0.25,
		KellySafetyFactor:     0.25,
		MaxSingleTradeRiskPct: 0.05,
		MaxPortfolioRiskPct:   0.20,
		MinLots:               0.01,
		MaxLots:               10.0,
		PipValuePerLot:        10.0,
	}
}

// Result is a computed position size with its risk bookkeeping
type Result struct {
	RiskAmount   float64 // account currency at risk if the stop is hit
	SizeLots     float64
	RiskFraction float64 // final fraction of balance risked
	SafeKelly    float64 // fractional Kelly before confidence/protection scaling
	Reasoning    string
}

// Engine computes per-trade position sizes from an adaptive Kelly fraction.
// It never blocks: all inputs are in-memory snapshots.
type Engine struct {
	config  Config
	tracker *performance.Tracker
}

// NewEngine creates a sizing engine reading strategy statistics from the tracker
func NewEngine(config Config, tracker *performance.Tracker) *Engine {
	return &Engine{config: config, tracker: tracker}
}

// SafeKelly computes the capped, fractional Kelly fraction for a strategy
// from its rolling trade window. Strategies without enough history get the
// conservative default.
func (e *Engine) SafeKelly(strategyID string) float64 {
	in := e.tracker.Kelly(strategyID, e.config.KellyLookbackTrades)
	if in.TotalTrades < performance.MinTradesForStats() || in.AvgWin <= 0 || in.AvgLoss <= 0 {
		return e.config.KellyDefault
	}

	b := in.AvgWin / in.AvgLoss
	p := in.WinRate
	q := 1 - p

	kelly := (b*p - q) / b
	kelly = math.Max(0, math.Min(kelly, e.config.KellyCap))

	return kelly * e.config.KellySafetyFactor
}

// Size computes the position size for an opportunity against the current
// capital snapshot and already-committed exposure (open + reserved risk).
// When the full size does not fit the remaining portfolio budget, it is
// scaled down to what fits; a depleted budget returns BudgetExceeded.
func (e *Engine) Size(opp types.Opportunity, snap capital.Snapshot, committedRisk float64) (Result, error) {
	if opp.StopDistance <= 0 {
		return Result{}, errors.NewInvalidOpportunity("sizing",
			fmt.Sprintf("non-positive stop distance %.5f", opp.StopDistance))
	}

	safeKelly := e.SafeKelly(opp.StrategyID)

	riskFraction := math.Min(safeKelly*(opp.Confidence/100), e.config.MaxSingleTradeRiskPct)
	riskFraction *= snap.RiskReductionFactor

	riskAmount := snap.CurrentBalance * riskFraction
	stopPips := opp.StopDistance / pipSize

	budget := e.config.MaxPortfolioRiskPct * snap.CurrentBalance
	reasoning := fmt.Sprintf("kelly=%.4f conf=%.0f factor=%.2f risk=%.4f",
		safeKelly, opp.Confidence, snap.RiskReductionFactor, riskFraction)

	if committedRisk+riskAmount > budget {
		available := budget - committedRisk
		if available <= 0 {
			return Result{}, errors.NewBudgetExceeded("sizing",
				fmt.Sprintf("portfolio budget depleted: committed $%.2f of $%.2f", committedRisk, budget))
		}
		riskAmount = available
		reasoning += fmt.Sprintf(" budget-fit=$%.2f", available)
	}

	lots := riskAmount / (stopPips * e.config.PipValuePerLot)
	lots = math.Max(e.config.MinLots, math.Min(lots, e.config.MaxLots))
	lots = math.Round(lots*100) / 100

	// size clamps change the realized risk; keep the ledger truthful
	riskAmount = lots * stopPips * e.config.PipValuePerLot

	// the min-lot clamp can push risk back above the remaining budget
	if committedRisk+riskAmount > budget {
		return Result{}, errors.NewBudgetExceeded("sizing",
			fmt.Sprintf("remaining budget $%.2f cannot fund minimum size $%.2f",
				budget-committedRisk, riskAmount))
	}

	return Result{
		RiskAmount:   riskAmount,
		SizeLots:     lots,
		RiskFraction: riskFraction,
		SafeKelly:    safeKelly,
		Reasoning:    reasoning,
	}, nil
}
