package performance

import (
	"math"
	"sync"
	"time"

	"github.com/quantfx/decision-engine/pkg/types"
)

const (
	// historyCap bounds the per-strategy closed-trade window for recency
	historyCap = 500
	// minTradesForStats is the sample size below which rolling stats are
	// considered insufficient and conservative defaults apply downstream
	minTradesForStats = 10
)

// closedTrade is one realized trade kept in the rolling window
type closedTrade struct {
	PnL      float64   `json:"pnl"`
	ClosedAt time.Time `json:"closed_at"`
}

// Record is the per-strategy performance summary used for ranking,
// eligibility gating and Kelly sizing
type Record struct {
	StrategyID        string    `json:"strategy_id"`
	TotalTrades       int       `json:"total_trades"`
	Wins              int       `json:"wins"`
	TotalPnL          float64   `json:"total_pnl"`
	RollingWinRate    float64   `json:"rolling_win_rate"`
	ProfitFactor      float64   `json:"profit_factor"`
	ExecutionFailures int       `json:"execution_failures"`
	LastUpdated       time.Time `json:"last_updated"`
}

// KellyInputs are the rolling-window statistics the sizing engine consumes
type KellyInputs struct {
	TotalTrades int
	WinRate     float64
	AvgWin      float64
	AvgLoss     float64 // absolute value
}

// strategyState holds the full mutable state for one strategy
type strategyState struct {
	record     Record
	trades     []closedTrade
	admissions []time.Time
}

// Tracker maintains StrategyPerformanceRecord state for all strategies.
// Records are never deleted; the trade window is capped for recency.
type Tracker struct {
	mu         sync.RWMutex
	strategies map[string]*strategyState
}

// NewTracker creates an empty performance tracker
func NewTracker() *Tracker {
	return &Tracker{
		strategies: make(map[string]*strategyState),
	}
}

func (t *Tracker) state(strategyID string) *strategyState {
	st, ok := t.strategies[strategyID]
	if !ok {
		st = &strategyState{record: Record{StrategyID: strategyID}}
		t.strategies[strategyID] = st
	}
	return st
}

// RecordClosure applies one realized trade to the strategy's rolling window.
// Duplicate suppression by ticket id happens upstream in the decision actor.
func (t *Tracker) RecordClosure(result types.TradeResult) {
	t.mu.Lock()
	defer t.mu.Unlock()

	st := t.state(result.StrategyID)
	st.trades = append(st.trades, closedTrade{PnL: result.PnL, ClosedAt: result.ClosedAt})
	if len(st.trades) > historyCap {
		st.trades = st.trades[len(st.trades)-historyCap:]
	}

	st.record.TotalTrades++
	st.record.TotalPnL += result.PnL
	if result.PnL > 0 {
		st.record.Wins++
	}
	st.record.RollingWinRate, st.record.ProfitFactor = rollingStats(st.trades)
	st.record.LastUpdated = result.ClosedAt
}

// RecordExecutionFailure counts a broker rejection as an execution failure,
// not a loss: it must not poison the strategy's win rate.
func (t *Tracker) RecordExecutionFailure(strategyID string) {
	t.mu.Lock()
	defer t.mu.Unlock()

	st := t.state(strategyID)
	st.record.ExecutionFailures++
	st.record.LastUpdated = time.Now()
}

// RecordAdmission notes an admitted trade for frequency-penalty accounting
func (t *Tracker) RecordAdmission(strategyID string, at time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()

	st := t.state(strategyID)
	st.admissions = append(st.admissions, at)
	// prune anything older than the widest window anyone asks for
	cutoff := at.Add(-2 * time.Hour)
	idx := 0
	for idx < len(st.admissions) && st.admissions[idx].Before(cutoff) {
		idx++
	}
	st.admissions = st.admissions[idx:]
}

// RecentAdmissions counts trades admitted for the strategy within the window
func (t *Tracker) RecentAdmissions(strategyID string, window time.Duration, now time.Time) int {
	t.mu.RLock()
	defer t.mu.RUnlock()

	st, ok := t.strategies[strategyID]
	if !ok {
		return 0
	}
	cutoff := now.Add(-window)
	count := 0
	for _, ts := range st.admissions {
		if !ts.Before(cutoff) {
			count++
		}
	}
	return count
}

// Snapshot returns a copy of the strategy's performance record
func (t *Tracker) Snapshot(strategyID string) Record {
	t.mu.RLock()
	defer t.mu.RUnlock()

	st, ok := t.strategies[strategyID]
	if !ok {
		return Record{StrategyID: strategyID}
	}
	return st.record
}

// Kelly returns the sizing inputs computed over the strategy's most recent
// lookback trades
func (t *Tracker) Kelly(strategyID string, lookback int) KellyInputs {
	t.mu.RLock()
	defer t.mu.RUnlock()

	st, ok := t.strategies[strategyID]
	if !ok {
		return KellyInputs{}
	}

	trades := st.trades
	if lookback > 0 && len(trades) > lookback {
		trades = trades[len(trades)-lookback:]
	}

	inputs := KellyInputs{TotalTrades: len(trades)}
	if len(trades) == 0 {
		return inputs
	}

	var winSum, lossSum float64
	var winCount, lossCount int
	for _, tr := range trades {
		if tr.PnL > 0 {
			winSum += tr.PnL
			winCount++
		} else if tr.PnL < 0 {
			lossSum += math.Abs(tr.PnL)
			lossCount++
		}
	}

	inputs.WinRate = float64(winCount) / float64(len(trades))
	if winCount > 0 {
		inputs.AvgWin = winSum / float64(winCount)
	}
	if lossCount > 0 {
		inputs.AvgLoss = lossSum / float64(lossCount)
	}
	return inputs
}

// Records returns a copy of every strategy record, for reporting and checkpoints
func (t *Tracker) Records() map[string]Record {
	t.mu.RLock()
	defer t.mu.RUnlock()

	out := make(map[string]Record, len(t.strategies))
	for id, st := range t.strategies {
		out[id] = st.record
	}
	return out
}

// Export serializes the tracker state for checkpointing
func (t *Tracker) Export() Checkpoint {
	t.mu.RLock()
	defer t.mu.RUnlock()

	cp := Checkpoint{Strategies: make(map[string]StrategyCheckpoint, len(t.strategies))}
	for id, st := range t.strategies {
		trades := make([]closedTrade, len(st.trades))
		copy(trades, st.trades)
		cp.Strategies[id] = StrategyCheckpoint{Record: st.record, Trades: trades}
	}
	return cp
}

// Restore replaces the tracker state from a checkpoint
func (t *Tracker) Restore(cp Checkpoint) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.strategies = make(map[string]*strategyState, len(cp.Strategies))
	for id, sc := range cp.Strategies {
		trades := make([]closedTrade, len(sc.Trades))
		copy(trades, sc.Trades)
		t.strategies[id] = &strategyState{record: sc.Record, trades: trades}
	}
}

// Checkpoint is the serializable tracker state
type Checkpoint struct {
	Strategies map[string]StrategyCheckpoint `json:"strategies"`
}

// StrategyCheckpoint is one strategy's serializable state
type StrategyCheckpoint struct {
	Record Record        `json:"record"`
	Trades []closedTrade `json:"trades"`
}

// MinTradesForStats exposes the sufficiency threshold shared by the
// coordinator and the sizing engine
func MinTradesForStats() int {
	return minTradesForStats
}

// rollingStats computes win rate and profit factor over the trade window
func rollingStats(trades []closedTrade) (winRate, profitFactor float64) {
	if len(trades) == 0 {
		return 0, 0
	}

	var wins int
	var grossWin, grossLoss float64
	for _, tr := range trades {
		if tr.PnL > 0 {
			wins++
			grossWin += tr.PnL
		} else if tr.PnL < 0 {
			grossLoss += math.Abs(tr.PnL)
		}
	}

	winRate = float64(wins) / float64(len(trades))
	if grossLoss > 0 {
		profitFactor = grossWin / grossLoss
	} else if grossWin > 0 {
		profitFactor = math.Inf(1)
	}
	return winRate, profitFactor
}
