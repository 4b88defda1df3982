package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/quantfx/decision-engine/internal/capital"
	"github.com/quantfx/decision-engine/internal/config"
	"github.com/quantfx/decision-engine/internal/coordinator"
	"github.com/quantfx/decision-engine/internal/correlation"
	"github.com/quantfx/decision-engine/internal/engine"
	"github.com/quantfx/decision-engine/internal/executor"
	"github.com/quantfx/decision-engine/internal/feed"
	"github.com/quantfx/decision-engine/internal/gate"
	"github.com/quantfx/decision-engine/internal/logger"
	"github.com/quantfx/decision-engine/internal/monitoring"
	"github.com/quantfx/decision-engine/internal/notifications"
	"github.com/quantfx/decision-engine/internal/performance"
	"github.com/quantfx/decision-engine/internal/regime"
	"github.com/quantfx/decision-engine/internal/sizing"
	"github.com/quantfx/decision-engine/internal/state"
	"github.com/quantfx/decision-engine/internal/strategy"
	"github.com/quantfx/decision-engine/pkg/reporting"
)

const version = "1.0.0"

func main() {
	// .env is optional; real deployments set the environment directly
	_ = godotenv.Load()

	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "decision-bot",
		Short: "Multi-strategy FX decision engine",
		Long: `decision-bot runs the FX trading decision layer: regime classification,
opportunity coordination, correlation guarding, Kelly sizing and the
portfolio risk gate, wired to a paper execution collaborator.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(config.Load())
		},
	}

	rootCmd.AddCommand(newVersionCmd())
	return rootCmd
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("decision-bot v%s\n", version)
		},
	}
}

func run(cfg *config.Config) error {
	appLog, err := logger.NewLogger("decision-engine")
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}
	defer appLog.Close()

	appLog.Info("Starting decision engine in %s mode", cfg.Environment)
	reporting.PrintStartupBanner(cfg.Feed.Instruments, cfg.RiskBudget.InitialBalance,
		cfg.RiskBudget.MaxDrawdownLimit, cfg.RiskBudget.MaxPortfolioRiskPct)

	// core state
	tracker := performance.NewTracker()
	capitalMgr := capital.NewManager(cfg.RiskBudget.InitialBalance, cfg.RiskBudget.MaxDrawdownLimit)

	store, err := state.NewStore(cfg.State.Dir, capitalMgr, tracker, appLog)
	if err != nil {
		return err
	}
	if err := store.Restore(); err != nil {
		// degraded but safe: continue on in-memory state
		appLog.LogError("restore", err)
	}

	// notifications
	var notifier gate.Notifier = notifications.NopNotifier{}
	if cfg.Notifications.TelegramToken != "" && cfg.Notifications.TelegramChatID != "" {
		notifier = notifications.NewTelegramNotifier(cfg.Notifications.TelegramToken,
			cfg.Notifications.TelegramChatID, appLog)
	}

	capitalMgr.SetLevelChangeHandler(func(ch capital.LevelChange) {
		appLog.Warning("Protection level %s -> %s (factor %.2f, drawdown %.2f%%)",
			ch.From, ch.To, ch.Factor, ch.Drawdown*100)
		notifier.NotifyRiskEvent(notifications.EventProtectionLevelChanged,
			fmt.Sprintf("%s -> %s at %.2f%% drawdown, sizing factor now %.2f",
				ch.From, ch.To, ch.Drawdown*100, ch.Factor))
	})

	// correlation stack
	corrTable := correlation.NewTable(cfg.Correlation.FreshnessWindow)
	guard := correlation.NewGuard(corrTable, correlation.GuardConfig{
		MaxCorrelationExposure: cfg.Correlation.MaxCorrelationExposure,
		MaxCurrencyExposure:    cfg.Correlation.MaxCurrencyExposure,
	})

	// market data
	feedClient := feed.NewClient(cfg.Feed.URL, cfg.Feed.Instruments, appLog)
	healthChecker := monitoring.NewHealthChecker()
	feedClient.SetConnectionHandler(healthChecker.SetFeedConnected)
	feedClient.SetDataHandler(healthChecker.MarkFeedData)
	if cfg.Feed.URL != "" {
		if err := feedClient.Connect(); err != nil {
			// the engine still runs; analyzers idle until data arrives
			appLog.LogError("feed", err)
		}
	} else {
		appLog.Warning("No FEED_URL configured; running without market data")
	}
	defer feedClient.Close()

	refresher := correlation.NewRefresher(corrTable, feedClient, appLog,
		cfg.Feed.Instruments, cfg.Correlation.RefreshInterval, cfg.Correlation.RefreshTimeout)

	// decision pipeline
	classifier := regime.NewClassifier(regime.DefaultConfig())

	sizer := sizing.NewEngine(sizing.Config{
		KellyLookbackTrades:   cfg.Sizing.KellyLookbackTrades,
		KellyDefault:          cfg.Sizing.KellyDefault,
		KellyCap:              cfg.Sizing.KellyCap,
		KellySafetyFactor:     cfg.Sizing.KellySafetyFactor,
		MaxSingleTradeRiskPct: cfg.RiskBudget.MaxSingleTradeRiskPct,
		MaxPortfolioRiskPct:   cfg.RiskBudget.MaxPortfolioRiskPct,
		MinLots:               cfg.Sizing.MinLots,
		MaxLots:               cfg.Sizing.MaxLots,
		PipValuePerLot:        cfg.Sizing.PipValuePerLot,
	}, tracker)

	coordConfig := coordinator.DefaultConfig()
	coordConfig.MaxPerCycle = cfg.Coordinator.MaxOpportunitiesPerCycle
	coord := coordinator.NewCoordinator(coordConfig, tracker, appLog)

	riskGate := gate.NewGate(gate.Config{
		MaxPositions:           cfg.RiskBudget.MaxSimultaneousPositions,
		MaxDailyLossAmount:     cfg.RiskBudget.MaxDailyLossAmount,
		MaxDailyTrades:         cfg.RiskBudget.MaxDailyTrades,
		MinConfidence:          cfg.RiskBudget.MinConfidence,
		MinConfidenceProtected: cfg.RiskBudget.MinConfidenceProtected,
		MinConfidenceMinimal:   cfg.RiskBudget.MinConfidenceMinimal,
		ReservationTimeout:     cfg.Gate.ReservationTimeout,
	}, capitalMgr, sizer, guard, tracker, notifier, appLog)

	paper := executor.NewPaper(executor.DefaultPaperConfig(), time.Now().UnixNano(), appLog)

	journal := reporting.NewJournal()

	eng := engine.New(engine.Options{
		Instruments:         cfg.Feed.Instruments,
		ReferenceInstrument: cfg.Coordinator.ReferenceInstrument,
		Classifier:          classifier,
		Coordinator:         coord,
		Gate:                riskGate,
		Executor:            paper,
		Source:              feedClient,
		Refresher:           refresher,
		Store:               store,
		SaveInterval:        cfg.State.SaveInterval,
		Health:              healthChecker,
		Logger:              appLog,
		Analyzers: []strategy.Analyzer{
			strategy.NewRangeScalper(cfg.Engine.ScalpingInterval),
			strategy.NewTrendFollowing(cfg.Engine.SwingInterval),
		},
		Journal: journal,
	})

	startMonitoringServers(cfg, healthChecker, appLog)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	eng.Start(ctx)
	notifier.NotifyRiskEvent(notifications.EventEngineStarted,
		fmt.Sprintf("Decision engine up in %s mode, balance $%.2f", cfg.Environment, cfg.RiskBudget.InitialBalance))

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	appLog.Info("Shutting down...")
	cancel()
	eng.Stop()

	if err := paper.Close(); err != nil {
		appLog.LogError("executor", err)
	}
	if err := store.Save(); err != nil {
		appLog.LogError("checkpoint", err)
	}

	writeReports(cfg, journal, tracker, appLog)
	summary := journal.Summarize()
	reporting.PrintSessionSummary(summary, capitalMgr.Snapshot(), tracker.Records())
	notifier.NotifyRiskEvent(notifications.EventEngineStopped,
		fmt.Sprintf("Session closed: %d trades, net $%.2f", summary.TotalTrades, summary.TotalPnL))

	appLog.Info("Decision engine stopped")
	return nil
}

func writeReports(cfg *config.Config, journal *reporting.Journal, tracker *performance.Tracker, appLog *logger.Logger) {
	trades := journal.Trades()
	if len(trades) == 0 {
		return
	}

	stamp := time.Now().Format("20060102_150405")
	csvPath := filepath.Join(cfg.Reporting.OutputDir, fmt.Sprintf("trades_%s.csv", stamp))
	if err := reporting.WriteTradesCSV(trades, csvPath); err != nil {
		appLog.Warning("Failed to write CSV report: %v", err)
	}

	xlsxPath := filepath.Join(cfg.Reporting.OutputDir, fmt.Sprintf("session_%s.xlsx", stamp))
	if err := reporting.WriteSessionXLSX(trades, tracker.Records(), xlsxPath); err != nil {
		appLog.Warning("Failed to write Excel report: %v", err)
	}
}

func startMonitoringServers(cfg *config.Config, healthChecker *monitoring.HealthChecker, appLog *logger.Logger) {
	healthMux := http.NewServeMux()
	healthMux.Handle("/health", healthChecker)

	go func() {
		appLog.Info("Health server listening on port %d", cfg.Monitoring.HealthPort)
		if err := http.ListenAndServe(fmt.Sprintf(":%d", cfg.Monitoring.HealthPort), healthMux); err != nil {
			log.Printf("Health server error: %v", err)
		}
	}()

	go func() {
		appLog.Info("Prometheus server listening on port %d", cfg.Monitoring.PrometheusPort)
		if err := http.ListenAndServe(fmt.Sprintf(":%d", cfg.Monitoring.PrometheusPort), monitoring.NewMetricsHandler()); err != nil {
			log.Printf("Prometheus server error: %v", err)
		}
	}()
}
