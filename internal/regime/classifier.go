package regime

import (
	"math"
	"sync"
	"time"

	"github.com/quantfx/decision-engine/pkg/types"
)

// RegimeType represents different market regimes
type RegimeType int

const (
	RegimeTrending RegimeType = iota
	RegimeRanging
	RegimeVolatile
	RegimeQuiet
	RegimeNewsEvent
)

func (r RegimeType) String() string {
	switch r {
	case RegimeTrending:
		return "TRENDING"
	case RegimeRanging:
		return "RANGING"
	case RegimeVolatile:
		return "VOLATILE"
	case RegimeQuiet:
		return "QUIET"
	case RegimeNewsEvent:
		return "NEWS_EVENT"
	default:
		return "UNKNOWN"
	}
}

// MarketRegime is the classifier output: a regime plus its strength (0-100).
// It is derived fresh each cycle and never persisted.
type MarketRegime struct {
	Type      RegimeType `json:"type"`
	Strength  float64    `json:"strength"`
	Timestamp time.Time  `json:"timestamp"`
}

// Config holds the classification thresholds
type Config struct {
	VolatileRatioThreshold float64 // volatility ratio above this is Volatile
	TrendStrengthThreshold float64 // ADX-like value above this may be Trending
	AlignmentThreshold     float64 // MA alignment magnitude required for Trending
	RangingThreshold       float64 // ADX-like value below this is Ranging
	QuietRatioThreshold    float64 // volatility ratio below this is Quiet
}

// DefaultConfig returns the standard classification thresholds
func DefaultConfig() Config {
	return Config{
		VolatileRatioThreshold: 2.0,
		TrendStrengthThreshold: 30.0,
		AlignmentThreshold:     0.7,
		RangingThreshold:       20.0,
		QuietRatioThreshold:    0.5,
	}
}

// Classifier turns indicator snapshots into a MarketRegime. Classification
// itself is a pure function of the snapshot; the classifier additionally
// tracks a news-event flag and a small history ring for status reporting.
type Classifier struct {
	config Config

	mu        sync.RWMutex
	newsUntil time.Time
	history   []MarketRegime
}

// NewClassifier creates a classifier with the given thresholds
func NewClassifier(config Config) *Classifier {
	return &Classifier{
		config:  config,
		history: make([]MarketRegime, 0, 100),
	}
}

// SetNewsEvent pauses normal classification until the given time; while
// active, Classify returns RegimeNewsEvent regardless of indicator input.
func (c *Classifier) SetNewsEvent(until time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.newsUntil = until
}

// Classify maps an indicator snapshot to a market regime. Missing data
// degrades to Ranging with zero strength so the pipeline never blocks.
func (c *Classifier) Classify(snapshot types.IndicatorSnapshot) MarketRegime {
	now := time.Now()

	c.mu.RLock()
	newsActive := now.Before(c.newsUntil)
	c.mu.RUnlock()

	regime := classify(c.config, snapshot, newsActive, now)

	c.mu.Lock()
	c.history = append(c.history, regime)
	if len(c.history) > 100 {
		c.history = c.history[1:]
	}
	c.mu.Unlock()

	return regime
}

// History returns a copy of the recent classification history
func (c *Classifier) History() []MarketRegime {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]MarketRegime, len(c.history))
	copy(out, c.history)
	return out
}

// classify applies the rule cascade in priority order, first match wins
func classify(cfg Config, snapshot types.IndicatorSnapshot, newsActive bool, now time.Time) MarketRegime {
	if newsActive {
		return MarketRegime{Type: RegimeNewsEvent, Strength: 100, Timestamp: now}
	}

	if !snapshot.HasData() {
		return MarketRegime{Type: RegimeRanging, Strength: 0, Timestamp: now}
	}

	switch {
	case snapshot.VolatilityRatio > cfg.VolatileRatioThreshold:
		return MarketRegime{
			Type:      RegimeVolatile,
			Strength:  clampStrength(snapshot.VolatilityRatio * 25),
			Timestamp: now,
		}
	case snapshot.TrendStrength > cfg.TrendStrengthThreshold && math.Abs(snapshot.MAAlignment) > cfg.AlignmentThreshold:
		return MarketRegime{
			Type:      RegimeTrending,
			Strength:  clampStrength(snapshot.TrendStrength + math.Abs(snapshot.MAAlignment)*20),
			Timestamp: now,
		}
	case snapshot.TrendStrength < cfg.RangingThreshold:
		return MarketRegime{
			Type:      RegimeRanging,
			Strength:  clampStrength(100 - snapshot.TrendStrength*2),
			Timestamp: now,
		}
	case snapshot.VolatilityRatio < cfg.QuietRatioThreshold:
		return MarketRegime{
			Type:      RegimeQuiet,
			Strength:  clampStrength((1 - snapshot.VolatilityRatio) * 100),
			Timestamp: now,
		}
	default:
		return MarketRegime{Type: RegimeRanging, Strength: 50, Timestamp: now}
	}
}

func clampStrength(v float64) float64 {
	return math.Max(0, math.Min(100, v))
}
