package main

import (
	"encoding/csv"
	"fmt"
	"io"
	"math/rand"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/quantfx/decision-engine/internal/capital"
	"github.com/quantfx/decision-engine/internal/coordinator"
	"github.com/quantfx/decision-engine/internal/correlation"
	"github.com/quantfx/decision-engine/internal/gate"
	"github.com/quantfx/decision-engine/internal/notifications"
	"github.com/quantfx/decision-engine/internal/performance"
	"github.com/quantfx/decision-engine/internal/regime"
	"github.com/quantfx/decision-engine/internal/sizing"
	"github.com/quantfx/decision-engine/internal/strategy"
	"github.com/quantfx/decision-engine/pkg/reporting"
	"github.com/quantfx/decision-engine/pkg/types"
)

// decision-replay runs the full decision pipeline over a recorded indicator
// history instead of a live feed. Executions fill instantly and settle with
// a seeded coin flip, so a run is reproducible for a given seed.

const (
	pipSize        = 0.0001
	pipValuePerLot = 10.0
)

func main() {
	var (
		dataPath  string
		reference string
		balance   float64
		ddLimit   float64
		winProb   float64
		seed      int64
		outputDir string
		maxPerCyc int
	)

	rootCmd := &cobra.Command{
		Use:   "decision-replay",
		Short: "Replay recorded indicator data through the decision pipeline",
		Long: `decision-replay feeds a CSV of indicator snapshots through the regime
classifier, coordinator, sizing engine and risk gate, settling fills with a
seeded random outcome. Useful for studying admission behavior offline.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runReplay(replayParams{
				dataPath:  dataPath,
				reference: reference,
				balance:   balance,
				ddLimit:   ddLimit,
				winProb:   winProb,
				seed:      seed,
				outputDir: outputDir,
				maxPerCyc: maxPerCyc,
			})
		},
	}

	rootCmd.Flags().StringVarP(&dataPath, "data", "d", "", "indicator CSV file (required)")
	rootCmd.Flags().StringVar(&reference, "reference", "EURUSD", "reference instrument for regime classification")
	rootCmd.Flags().Float64Var(&balance, "balance", 10000, "starting balance")
	rootCmd.Flags().Float64Var(&ddLimit, "drawdown-limit", 0.15, "max drawdown limit (fraction)")
	rootCmd.Flags().Float64Var(&winProb, "win-prob", 0.55, "simulated fill win probability")
	rootCmd.Flags().Int64Var(&seed, "seed", 42, "random seed for fill outcomes")
	rootCmd.Flags().StringVarP(&outputDir, "output", "o", "results", "report output directory")
	rootCmd.Flags().IntVar(&maxPerCyc, "max-per-cycle", 3, "max opportunities per cycle")
	_ = rootCmd.MarkFlagRequired("data")

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

type replayParams struct {
	dataPath  string
	reference string
	balance   float64
	ddLimit   float64
	winProb   float64
	seed      int64
	outputDir string
	maxPerCyc int
}

// row is one indicator snapshot from the recorded history
type row struct {
	at   time.Time
	snap types.IndicatorSnapshot
}

func runReplay(p replayParams) error {
	rows, err := loadRows(p.dataPath)
	if err != nil {
		return err
	}
	if len(rows) == 0 {
		return fmt.Errorf("no rows in %s", p.dataPath)
	}
	fmt.Printf("Loaded %d snapshots from %s\n", len(rows), p.dataPath)

	tracker := performance.NewTracker()
	capitalMgr := capital.NewManager(p.balance, p.ddLimit)
	classifier := regime.NewClassifier(regime.DefaultConfig())
	sizer := sizing.NewEngine(sizing.DefaultConfig(), tracker)
	guard := correlation.NewGuard(correlation.NewTable(2*time.Hour), correlation.GuardConfig{
		MaxCorrelationExposure: 0.6,
		MaxCurrencyExposure:    10,
	})

	coordConfig := coordinator.DefaultConfig()
	coordConfig.MaxPerCycle = p.maxPerCyc
	coord := coordinator.NewCoordinator(coordConfig, tracker, nil)

	riskGate := gate.NewGate(gate.DefaultConfig(), capitalMgr, sizer, guard, tracker, notifications.NopNotifier{}, nil)

	analyzers := []strategy.Analyzer{
		strategy.NewRangeScalper(15 * time.Second),
		strategy.NewTrendFollowing(time.Minute),
	}

	journal := reporting.NewJournal()
	rng := rand.New(rand.NewSource(p.seed))
	latest := make(map[string]types.IndicatorSnapshot)
	var ticketSeq int

	for _, r := range rows {
		latest[r.snap.Instrument] = r.snap
		if r.snap.Instrument != p.reference {
			continue
		}

		current := classifier.Classify(r.snap)

		var candidates []types.Opportunity
		for _, a := range analyzers {
			for _, snap := range latest {
				candidates = append(candidates, a.Analyze(snap, r.at)...)
			}
		}

		for _, opp := range coord.Select(current, candidates, r.at) {
			dec := riskGate.Evaluate(opp, r.at)
			if !dec.Admitted {
				continue
			}

			ticketSeq++
			ticket := fmt.Sprintf("RPL-%06d", ticketSeq)
			if err := riskGate.ConfirmExecution(types.ExecutionReport{
				ReservationID: dec.Order.ReservationID,
				Accepted:      true,
				BrokerRef:     ticket,
			}, r.at); err != nil {
				return err
			}

			result := settle(rng, p.winProb, dec.Order, ticket, r.at)
			riskGate.ApplyClosure(result, r.at)
			journal.Append(result)
		}
	}

	if err := os.MkdirAll(p.outputDir, 0o755); err != nil {
		return err
	}
	trades := journal.Trades()
	if len(trades) > 0 {
		stamp := time.Now().Format("20060102_150405")
		csvPath := filepath.Join(p.outputDir, fmt.Sprintf("replay_trades_%s.csv", stamp))
		if err := reporting.WriteTradesCSV(trades, csvPath); err != nil {
			return err
		}
		xlsxPath := filepath.Join(p.outputDir, fmt.Sprintf("replay_session_%s.xlsx", stamp))
		if err := reporting.WriteSessionXLSX(trades, tracker.Records(), xlsxPath); err != nil {
			return err
		}
		fmt.Printf("Reports written to %s\n", p.outputDir)
	}

	reporting.PrintSessionSummary(journal.Summarize(), capitalMgr.Snapshot(), tracker.Records())
	return nil
}

// settle resolves an admitted order instantly: target hit on a win, stop hit
// on a loss
func settle(rng *rand.Rand, winProb float64, order types.Order, ticket string, at time.Time) types.TradeResult {
	var pnl float64
	if rng.Float64() < winProb {
		pnl = order.TargetDistance / pipSize * pipValuePerLot * order.SizeLots
	} else {
		pnl = -(order.StopDistance / pipSize * pipValuePerLot * order.SizeLots)
	}
	return types.TradeResult{
		TicketID:      ticket,
		ReservationID: order.ReservationID,
		Instrument:    order.Instrument,
		StrategyID:    order.StrategyID,
		PnL:           pnl,
		ClosedAt:      at,
	}
}

// loadRows parses the indicator CSV. Expected header:
// timestamp,instrument,volatility_ratio,trend_strength,ma_alignment
func loadRows(path string) ([]row, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	reader := csv.NewReader(f)
	reader.FieldsPerRecord = 5

	var rows []row
	line := 0
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("parsing %s: %w", path, err)
		}
		line++
		if line == 1 && record[0] == "timestamp" {
			continue
		}

		at, err := time.Parse(time.RFC3339, record[0])
		if err != nil {
			return nil, fmt.Errorf("line %d: bad timestamp %q: %w", line, record[0], err)
		}
		volRatio, err := strconv.ParseFloat(record[2], 64)
		if err != nil {
			return nil, fmt.Errorf("line %d: bad volatility ratio: %w", line, err)
		}
		trend, err := strconv.ParseFloat(record[3], 64)
		if err != nil {
			return nil, fmt.Errorf("line %d: bad trend strength: %w", line, err)
		}
		alignment, err := strconv.ParseFloat(record[4], 64)
		if err != nil {
			return nil, fmt.Errorf("line %d: bad ma alignment: %w", line, err)
		}

		rows = append(rows, row{
			at: at,
			snap: types.IndicatorSnapshot{
				Instrument:      record[1],
				VolatilityRatio: volRatio,
				TrendStrength:   trend,
				MAAlignment:     alignment,
				Timestamp:       at,
			},
		})
	}
	return rows, nil
}
