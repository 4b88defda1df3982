package reporting

import (
	"sync"

	"github.com/quantfx/decision-engine/pkg/types"
)

// Journal collects closed trades for end-of-session reporting
type Journal struct {
	mu     sync.Mutex
	trades []types.TradeResult
}

// NewJournal creates an empty trade journal
func NewJournal() *Journal {
	return &Journal{}
}

// Append records one closed trade
func (j *Journal) Append(result types.TradeResult) {
	j.mu.Lock()
	j.trades = append(j.trades, result)
	j.mu.Unlock()
}

// Trades returns a copy of the journal
func (j *Journal) Trades() []types.TradeResult {
	j.mu.Lock()
	defer j.mu.Unlock()
	out := make([]types.TradeResult, len(j.trades))
	copy(out, j.trades)
	return out
}

// Summary aggregates the journal into headline numbers
type Summary struct {
	TotalTrades int
	Wins        int
	Losses      int
	TotalPnL    float64
	GrossWin    float64
	GrossLoss   float64 // absolute value
}

// Summarize computes the session summary
func (j *Journal) Summarize() Summary {
	j.mu.Lock()
	defer j.mu.Unlock()

	var s Summary
	for _, tr := range j.trades {
		s.TotalTrades++
		s.TotalPnL += tr.PnL
		if tr.PnL > 0 {
			s.Wins++
			s.GrossWin += tr.PnL
		} else if tr.PnL < 0 {
			s.Losses++
			s.GrossLoss += -tr.PnL
		}
	}
	return s
}
