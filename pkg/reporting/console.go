package reporting

import (
	"fmt"
	"os"
	"sort"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"

	"github.com/quantfx/decision-engine/internal/capital"
	"github.com/quantfx/decision-engine/internal/performance"
)

// PrintStartupBanner prints the engine configuration table at launch
func PrintStartupBanner(instruments []string, balance float64, maxDrawdownLimit, maxPortfolioRiskPct float64) {
	t := table.NewWriter()
	t.SetOutputMirror(os.Stdout)
	t.SetTitle("DECISION ENGINE")
	t.SetStyle(table.StyleRounded)

	t.AppendRows([]table.Row{
		{"📊 Instruments", fmt.Sprintf("%v", instruments)},
		{"💰 Initial Balance", fmt.Sprintf("$%.2f", balance)},
		{"📉 Max Drawdown Limit", fmt.Sprintf("%.1f%%", maxDrawdownLimit*100)},
		{"🎯 Portfolio Risk Budget", fmt.Sprintf("%.1f%%", maxPortfolioRiskPct*100)},
	})

	t.SetColumnConfigs([]table.ColumnConfig{
		{Number: 1, WidthMin: 24, Align: text.AlignLeft},
		{Number: 2, WidthMin: 30, Align: text.AlignLeft},
	})

	t.Render()
	fmt.Println()
}

// PrintSessionSummary prints the realized session results and per-strategy
// performance at shutdown
func PrintSessionSummary(summary Summary, snap capital.Snapshot, records map[string]performance.Record) {
	t := table.NewWriter()
	t.SetOutputMirror(os.Stdout)
	t.SetTitle("SESSION SUMMARY")
	t.SetStyle(table.StyleRounded)

	winRate := 0.0
	if summary.TotalTrades > 0 {
		winRate = float64(summary.Wins) / float64(summary.TotalTrades) * 100
	}
	profitFactor := 0.0
	if summary.GrossLoss > 0 {
		profitFactor = summary.GrossWin / summary.GrossLoss
	}

	t.AppendRows([]table.Row{
		{"💰 Balance", fmt.Sprintf("$%.2f", snap.CurrentBalance)},
		{"💰 Peak Balance", fmt.Sprintf("$%.2f", snap.PeakBalance)},
		{"📉 Drawdown", fmt.Sprintf("%.2f%%", snap.DrawdownPct*100)},
		{"🛡 Protection", fmt.Sprintf("%s (factor %.2f)", snap.Level, snap.RiskReductionFactor)},
		{"🔄 Closed Trades", fmt.Sprintf("%d", summary.TotalTrades)},
		{"✅ Win Rate", fmt.Sprintf("%.1f%%", winRate)},
		{"💹 Profit Factor", fmt.Sprintf("%.2f", profitFactor)},
		{"📈 Net PnL", fmt.Sprintf("$%.2f", summary.TotalPnL)},
	})
	t.Render()
	fmt.Println()

	if len(records) == 0 {
		return
	}

	st := table.NewWriter()
	st.SetOutputMirror(os.Stdout)
	st.SetTitle("STRATEGY PERFORMANCE")
	st.SetStyle(table.StyleRounded)
	st.AppendHeader(table.Row{"Strategy", "Trades", "Win Rate", "Profit Factor", "Net PnL", "Exec Failures"})

	ids := make([]string, 0, len(records))
	for id := range records {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	for _, id := range ids {
		rec := records[id]
		st.AppendRow(table.Row{
			rec.StrategyID,
			rec.TotalTrades,
			fmt.Sprintf("%.1f%%", rec.RollingWinRate*100),
			fmt.Sprintf("%.2f", rec.ProfitFactor),
			fmt.Sprintf("$%.2f", rec.TotalPnL),
			rec.ExecutionFailures,
		})
	}
	st.Render()
	fmt.Println()
}
