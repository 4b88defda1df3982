package reporting

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/quantfx/decision-engine/internal/performance"
	"github.com/quantfx/decision-engine/pkg/types"
)

// excelStyles holds the style ids shared across sheets
type excelStyles struct {
	header int
	win    int
	loss   int
}

// WriteSessionXLSX writes the trade journal and per-strategy performance
// to an Excel workbook
func WriteSessionXLSX(trades []types.TradeResult, records map[string]performance.Record, path string) error {
	if dir := filepath.Dir(path); dir != "." && dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
	}

	fx := excelize.NewFile()
	defer fx.Close()

	const tradesSheet = "Trades"
	const strategiesSheet = "Strategies"

	fx.SetSheetName(fx.GetSheetName(0), tradesSheet)
	fx.NewSheet(strategiesSheet)

	styles, err := createStyles(fx)
	if err != nil {
		return err
	}

	if err := writeTradesSheet(fx, tradesSheet, trades, styles); err != nil {
		return err
	}
	if err := writeStrategiesSheet(fx, strategiesSheet, records, styles); err != nil {
		return err
	}

	return fx.SaveAs(path)
}

func createStyles(fx *excelize.File) (excelStyles, error) {
	var styles excelStyles
	var err error

	styles.header, err = fx.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true, Color: "FFFFFF"},
		Fill: excelize.Fill{Type: "pattern", Pattern: 1, Color: []string{"4472C4"}},
	})
	if err != nil {
		return styles, err
	}

	styles.win, err = fx.NewStyle(&excelize.Style{
		Font: &excelize.Font{Color: "006100"},
		Fill: excelize.Fill{Type: "pattern", Pattern: 1, Color: []string{"C6EFCE"}},
	})
	if err != nil {
		return styles, err
	}

	styles.loss, err = fx.NewStyle(&excelize.Style{
		Font: &excelize.Font{Color: "9C0006"},
		Fill: excelize.Fill{Type: "pattern", Pattern: 1, Color: []string{"FFC7CE"}},
	})
	return styles, err
}

func writeTradesSheet(fx *excelize.File, sheet string, trades []types.TradeResult, styles excelStyles) error {
	headers := []string{"Ticket", "Instrument", "Strategy", "PnL ($)", "Closed At"}
	for i, h := range headers {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		if err := fx.SetCellValue(sheet, cell, h); err != nil {
			return err
		}
		fx.SetCellStyle(sheet, cell, cell, styles.header)
	}

	for row, tr := range trades {
		values := []interface{}{
			tr.TicketID,
			tr.Instrument,
			tr.StrategyID,
			tr.PnL,
			tr.ClosedAt.Format(time.RFC3339),
		}
		for col, v := range values {
			cell, _ := excelize.CoordinatesToCellName(col+1, row+2)
			if err := fx.SetCellValue(sheet, cell, v); err != nil {
				return err
			}
		}

		pnlCell, _ := excelize.CoordinatesToCellName(4, row+2)
		if tr.PnL > 0 {
			fx.SetCellStyle(sheet, pnlCell, pnlCell, styles.win)
		} else if tr.PnL < 0 {
			fx.SetCellStyle(sheet, pnlCell, pnlCell, styles.loss)
		}
	}

	return fx.SetColWidth(sheet, "A", "E", 18)
}

func writeStrategiesSheet(fx *excelize.File, sheet string, records map[string]performance.Record, styles excelStyles) error {
	headers := []string{"Strategy", "Trades", "Wins", "Win Rate", "Profit Factor", "Net PnL ($)", "Exec Failures"}
	for i, h := range headers {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		if err := fx.SetCellValue(sheet, cell, h); err != nil {
			return err
		}
		fx.SetCellStyle(sheet, cell, cell, styles.header)
	}

	ids := make([]string, 0, len(records))
	for id := range records {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	for row, id := range ids {
		rec := records[id]
		values := []interface{}{
			rec.StrategyID,
			rec.TotalTrades,
			rec.Wins,
			rec.RollingWinRate,
			rec.ProfitFactor,
			rec.TotalPnL,
			rec.ExecutionFailures,
		}
		for col, v := range values {
			cell, _ := excelize.CoordinatesToCellName(col+1, row+2)
			if err := fx.SetCellValue(sheet, cell, v); err != nil {
				return err
			}
		}
	}

	return fx.SetColWidth(sheet, "A", "G", 16)
}
