package strategy

import (
	"time"

	"github.com/quantfx/decision-engine/pkg/types"
)

// Analyzer produces trade opportunities from indicator snapshots. Each
// analyzer runs on its own cadence; the engine fans their output into a
// single decision pipeline. Opportunities are immutable once returned.
type Analyzer interface {
	// ID is the strategy id attributed to every opportunity and
	// performance record this analyzer generates
	ID() string
	// Cadence is how often the analyzer wants to run
	Cadence() time.Duration
	// Analyze inspects one instrument's snapshot and proposes zero or
	// more opportunities. It must not block.
	Analyze(snapshot types.IndicatorSnapshot, now time.Time) []types.Opportunity
}
