package coordinator

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/quantfx/decision-engine/internal/errors"
	"github.com/quantfx/decision-engine/internal/logger"
	"github.com/quantfx/decision-engine/internal/performance"
	"github.com/quantfx/decision-engine/internal/regime"
	"github.com/quantfx/decision-engine/pkg/types"
)

const (
	// performance gate: strategies with a meaningful sample and a weak win
	// rate are culled unless their profit factor carries them
	minAcceptableWinRate     = 0.45
	redeemingProfitFactor    = 1.2
	performanceBonusWeight   = 0.3
	frequencyPenaltyPerTrade = 0.02
	frequencyPenaltyCap      = 0.2
)

// Trading session names, attributed by UTC hour
const (
	SessionAsian   = "asian"
	SessionLondon  = "london"
	SessionNewYork = "new_york"
)

// Config holds the coordinator parameters
type Config struct {
	// Eligibility maps each regime to the strategy ids allowed to trade in it.
	// NewsEvent is always a full pause regardless of this map.
	Eligibility map[regime.RegimeType][]string
	// Sessions optionally restricts a strategy to named trading sessions.
	// A strategy absent from the map trades around the clock.
	Sessions map[string][]string
	// MaxPerCycle caps the surviving opportunity set per analysis cycle
	MaxPerCycle int
}

// DefaultConfig returns the standard regime/strategy eligibility mapping
func DefaultConfig() Config {
	return Config{
		Eligibility: map[regime.RegimeType][]string{
			regime.RegimeTrending: {"trend_following", "breakout", "swing"},
			regime.RegimeRanging:  {"mean_reversion", "range_scalper", "swing"},
			regime.RegimeVolatile: {"breakout", "volatility_scalper"},
			regime.RegimeQuiet:    {"mean_reversion", "carry"},
		},
		MaxPerCycle: 3,
	}
}

// Coordinator filters, ranks and deduplicates opportunities for one cycle.
// It is a pure selection layer: admission and sizing happen downstream.
type Coordinator struct {
	config  Config
	tracker *performance.Tracker
	log     *logger.Logger
}

// NewCoordinator creates an opportunity coordinator
func NewCoordinator(config Config, tracker *performance.Tracker, log *logger.Logger) *Coordinator {
	return &Coordinator{config: config, tracker: tracker, log: log}
}

// Select returns the ranked, deduplicated opportunities eligible under the
// given regime, capped to the per-cycle maximum. Malformed opportunities are
// dropped and logged; they never abort the cycle.
func (c *Coordinator) Select(current regime.MarketRegime, candidates []types.Opportunity, now time.Time) []types.Opportunity {
	if current.Type == regime.RegimeNewsEvent {
		if len(candidates) > 0 && c.log != nil {
			c.log.Decision("News pause active, dropping %d candidate(s)", len(candidates))
		}
		return nil
	}

	eligible := c.eligibleSet(current.Type)

	var survivors []types.Opportunity
	for _, opp := range candidates {
		if err := validate(opp); err != nil {
			if c.log != nil {
				c.log.LogError("validation", err)
			}
			continue
		}
		if _, ok := eligible[opp.StrategyID]; !ok {
			continue
		}
		if !c.sessionEligible(opp.StrategyID, now) {
			continue
		}
		if !c.performanceEligible(opp.StrategyID) {
			if c.log != nil {
				c.log.Decision("Strategy %s excluded on performance (win rate below %.2f)",
					opp.StrategyID, minAcceptableWinRate)
			}
			continue
		}
		opp.PriorityScore = c.priorityScore(opp, now)
		survivors = append(survivors, opp)
	}

	sort.SliceStable(survivors, func(i, j int) bool {
		return survivors[i].PriorityScore > survivors[j].PriorityScore
	})

	// one opportunity per (instrument, direction): two strategies must not
	// double-bet the same directional exposure
	seen := make(map[string]struct{}, len(survivors))
	deduped := survivors[:0]
	for _, opp := range survivors {
		key := opp.Key()
		if _, dup := seen[key]; dup {
			continue
		}
		seen[key] = struct{}{}
		deduped = append(deduped, opp)
	}

	if c.config.MaxPerCycle > 0 && len(deduped) > c.config.MaxPerCycle {
		deduped = deduped[:c.config.MaxPerCycle]
	}
	return deduped
}

func (c *Coordinator) eligibleSet(rt regime.RegimeType) map[string]struct{} {
	ids := c.config.Eligibility[rt]
	set := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		set[id] = struct{}{}
	}
	return set
}

// sessionEligible checks the strategy's session restriction, if any,
// against the sessions active at the given instant
func (c *Coordinator) sessionEligible(strategyID string, now time.Time) bool {
	allowed := c.config.Sessions[strategyID]
	if len(allowed) == 0 {
		return true
	}
	active := ActiveSessions(now)
	for _, want := range allowed {
		if _, ok := active[want]; ok {
			return true
		}
	}
	return false
}

// ActiveSessions returns the trading sessions open at the given instant.
// Sessions overlap; London/New York share the 12:00-16:00 UTC window.
func ActiveSessions(now time.Time) map[string]struct{} {
	hour := now.UTC().Hour()
	active := make(map[string]struct{}, 2)
	if hour >= 22 || hour < 7 {
		active[SessionAsian] = struct{}{}
	}
	if hour >= 7 && hour < 16 {
		active[SessionLondon] = struct{}{}
	}
	if hour >= 12 && hour < 21 {
		active[SessionNewYork] = struct{}{}
	}
	return active
}

// performanceEligible applies the historical-performance gate. Strategies
// without a meaningful sample pass; a weak win rate over a real sample is
// excluded unless the profit factor redeems it.
func (c *Coordinator) performanceEligible(strategyID string) bool {
	rec := c.tracker.Snapshot(strategyID)
	if rec.TotalTrades < performance.MinTradesForStats() {
		return true
	}
	if rec.RollingWinRate >= minAcceptableWinRate {
		return true
	}
	return rec.ProfitFactor >= redeemingProfitFactor
}

// priorityScore ranks an opportunity by confidence, strategy form and
// recent trade frequency
func (c *Coordinator) priorityScore(opp types.Opportunity, now time.Time) float64 {
	score := opp.Confidence / 100

	rec := c.tracker.Snapshot(opp.StrategyID)
	if rec.TotalTrades >= performance.MinTradesForStats() {
		score += (rec.RollingWinRate - 0.5) * performanceBonusWeight
	}

	recent := c.tracker.RecentAdmissions(opp.StrategyID, time.Hour, now)
	penalty := float64(recent) * frequencyPenaltyPerTrade
	if penalty > frequencyPenaltyCap {
		penalty = frequencyPenaltyCap
	}
	return score - penalty
}

// validate rejects malformed opportunities before they reach ranking
func validate(opp types.Opportunity) error {
	var problems []string
	if opp.Instrument == "" {
		problems = append(problems, "empty instrument")
	}
	if opp.Confidence < 0 || opp.Confidence > 100 {
		problems = append(problems, fmt.Sprintf("confidence %.1f out of range", opp.Confidence))
	}
	if opp.StopDistance <= 0 {
		problems = append(problems, fmt.Sprintf("stop distance %.5f not positive", opp.StopDistance))
	}
	if opp.TargetDistance <= 0 {
		problems = append(problems, fmt.Sprintf("target distance %.5f not positive", opp.TargetDistance))
	}
	if opp.StrategyID == "" {
		problems = append(problems, "empty strategy id")
	}
	if len(problems) == 0 {
		return nil
	}
	return errors.NewInvalidOpportunity("coordinator",
		fmt.Sprintf("%s %s: %s", opp.Instrument, opp.Direction, strings.Join(problems, "; ")))
}
