package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all decision-engine settings. Values come from the
// environment with the documented defaults; main loads .env first.
type Config struct {
	Environment string
	LogLevel    string

	// RiskBudget is the portfolio-wide capital budget
	RiskBudget struct {
		InitialBalance           float64
		MaxPortfolioRiskPct      float64
		MaxSingleTradeRiskPct    float64
		MaxDailyLossAmount       float64
		MaxDailyTrades           int
		MaxSimultaneousPositions int
		MaxDrawdownLimit         float64
		MinConfidence            float64
		MinConfidenceProtected   float64
		MinConfidenceMinimal     float64
	}

	Correlation struct {
		MaxCorrelationExposure float64
		MaxCurrencyExposure    float64
		RefreshInterval        time.Duration
		FreshnessWindow        time.Duration
		RefreshTimeout         time.Duration
	}

	Sizing struct {
		KellyLookbackTrades int
		KellyDefault        float64
		KellyCap            float64
		KellySafetyFactor   float64
		MinLots             float64
		MaxLots             float64
		PipValuePerLot      float64
	}

	Coordinator struct {
		MaxOpportunitiesPerCycle int
		ReferenceInstrument      string
	}

	Gate struct {
		ReservationTimeout time.Duration
	}

	Engine struct {
		ScalpingInterval time.Duration
		SwingInterval    time.Duration
	}

	Feed struct {
		URL         string
		Instruments []string
	}

	State struct {
		Dir          string
		SaveInterval time.Duration
	}

	Monitoring struct {
		PrometheusPort int
		HealthPort     int
	}

	Notifications struct {
		TelegramToken  string
		TelegramChatID string
	}

	Reporting struct {
		OutputDir string
	}
}

// Load reads configuration from the environment
func Load() *Config {
	cfg := &Config{
		Environment: getEnv("ENV", "development"),
		LogLevel:    getEnv("LOG_LEVEL", "info"),
	}

	cfg.RiskBudget.InitialBalance = getEnvFloat("INITIAL_BALANCE", 10000.0)
	cfg.RiskBudget.MaxPortfolioRiskPct = getEnvFloat("MAX_PORTFOLIO_RISK_PCT", 0.20)
	cfg.RiskBudget.MaxSingleTradeRiskPct = getEnvFloat("MAX_SINGLE_TRADE_RISK_PCT", 0.05)
	cfg.RiskBudget.MaxDailyLossAmount = getEnvFloat("MAX_DAILY_LOSS", 100.0)
	cfg.RiskBudget.MaxDailyTrades = getEnvInt("MAX_DAILY_TRADES", 20)
	cfg.RiskBudget.MaxSimultaneousPositions = getEnvInt("MAX_POSITIONS", 3)
	cfg.RiskBudget.MaxDrawdownLimit = getEnvFloat("MAX_DRAWDOWN_LIMIT", 0.15)
	cfg.RiskBudget.MinConfidence = getEnvFloat("MIN_CONFIDENCE", 70.0)
	cfg.RiskBudget.MinConfidenceProtected = getEnvFloat("MIN_CONFIDENCE_PROTECTED", 75.0)
	cfg.RiskBudget.MinConfidenceMinimal = getEnvFloat("MIN_CONFIDENCE_MINIMAL", 85.0)

	cfg.Correlation.MaxCorrelationExposure = getEnvFloat("MAX_CORRELATION_EXPOSURE", 0.6)
	cfg.Correlation.MaxCurrencyExposure = getEnvFloat("MAX_CURRENCY_EXPOSURE", 0.4)
	cfg.Correlation.RefreshInterval = getEnvDuration("CORRELATION_REFRESH_INTERVAL", time.Hour)
	cfg.Correlation.FreshnessWindow = getEnvDuration("CORRELATION_FRESHNESS_WINDOW", 2*time.Hour)
	cfg.Correlation.RefreshTimeout = getEnvDuration("CORRELATION_REFRESH_TIMEOUT", 30*time.Second)

	cfg.Sizing.KellyLookbackTrades = getEnvInt("KELLY_LOOKBACK_TRADES", 50)
	cfg.Sizing.KellyDefault = getEnvFloat("KELLY_DEFAULT", 0.02)
	cfg.Sizing.KellyCap = getEnvFloat("KELLY_CAP", 0.25)
	cfg.Sizing.KellySafetyFactor = getEnvFloat("KELLY_SAFETY_FACTOR", 0.25)
	cfg.Sizing.MinLots = getEnvFloat("MIN_LOTS", 0.01)
	cfg.Sizing.MaxLots = getEnvFloat("MAX_LOTS", 10.0)
	cfg.Sizing.PipValuePerLot = getEnvFloat("PIP_VALUE_PER_LOT", 10.0)

	cfg.Coordinator.MaxOpportunitiesPerCycle = getEnvInt("MAX_OPPORTUNITIES_PER_CYCLE", 3)
	cfg.Coordinator.ReferenceInstrument = getEnv("REFERENCE_INSTRUMENT", "EURUSD")

	cfg.Gate.ReservationTimeout = getEnvDuration("RESERVATION_TIMEOUT", 90*time.Second)

	cfg.Engine.ScalpingInterval = getEnvDuration("SCALPING_INTERVAL", 20*time.Second)
	cfg.Engine.SwingInterval = getEnvDuration("SWING_INTERVAL", 5*time.Minute)

	cfg.Feed.URL = getEnv("FEED_URL", "")
	cfg.Feed.Instruments = getEnvList("INSTRUMENTS", []string{"EURUSD", "GBPUSD", "USDJPY", "AUDUSD"})

	cfg.State.Dir = getEnv("STATE_DIR", "state")
	cfg.State.SaveInterval = getEnvDuration("STATE_SAVE_INTERVAL", time.Minute)

	cfg.Monitoring.PrometheusPort = getEnvInt("PROMETHEUS_PORT", 8080)
	cfg.Monitoring.HealthPort = getEnvInt("HEALTH_PORT", 8081)

	cfg.Notifications.TelegramToken = getEnv("TELEGRAM_TOKEN", "")
	cfg.Notifications.TelegramChatID = getEnv("TELEGRAM_CHAT_ID", "")

	cfg.Reporting.OutputDir = getEnv("REPORT_DIR", "reports")

	return cfg
}

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	if val := os.Getenv(key); val != "" {
		if parsed, err := strconv.Atoi(val); err == nil {
			return parsed
		}
	}
	return defaultVal
}

func getEnvFloat(key string, defaultVal float64) float64 {
	if val := os.Getenv(key); val != "" {
		if parsed, err := strconv.ParseFloat(val, 64); err == nil {
			return parsed
		}
	}
	return defaultVal
}

func getEnvList(key string, defaultVal []string) []string {
	if val := os.Getenv(key); val != "" {
		parts := strings.Split(val, ",")
		out := make([]string, 0, len(parts))
		for _, p := range parts {
			if trimmed := strings.TrimSpace(p); trimmed != "" {
				out = append(out, trimmed)
			}
		}
		if len(out) > 0 {
			return out
		}
	}
	return defaultVal
}

func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	if val := os.Getenv(key); val != "" {
		if parsed, err := time.ParseDuration(val); err == nil {
			return parsed
		}
	}
	return defaultVal
}
