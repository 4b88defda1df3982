package reporting

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/quantfx/decision-engine/pkg/types"
)

// WriteTradesCSV writes the trade journal to a CSV file
func WriteTradesCSV(trades []types.TradeResult, path string) error {
	if dir := filepath.Dir(path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}

	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	w := csv.NewWriter(f)
	defer w.Flush()

	if err := w.Write([]string{
		"Ticket",
		"Instrument",
		"Strategy",
		"PnL_$",
		"Win_Loss",
		"Closed_At",
	}); err != nil {
		return err
	}

	for _, tr := range trades {
		outcome := "LOSS"
		if tr.PnL > 0 {
			outcome = "WIN"
		} else if tr.PnL == 0 {
			outcome = "FLAT"
		}
		if err := w.Write([]string{
			tr.TicketID,
			tr.Instrument,
			tr.StrategyID,
			fmt.Sprintf("%.2f", tr.PnL),
			outcome,
			tr.ClosedAt.Format(time.RFC3339),
		}); err != nil {
			return err
		}
	}
	return nil
}
