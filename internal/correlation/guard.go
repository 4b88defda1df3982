package correlation

import (
	"fmt"
	"math"
	"strings"

	"github.com/quantfx/decision-engine/pkg/types"
)

// StandardLotNotional is the notional value of one standard FX lot
const StandardLotNotional = 100000.0

// Holding is the minimal view of a position the guard needs: an existing
// open position or a proposed candidate
type Holding struct {
	Instrument string
	Direction  types.Direction
	Volume     float64 // lots
}

// GuardConfig holds the exposure ceilings
type GuardConfig struct {
	MaxCorrelationExposure float64
	MaxCurrencyExposure    float64
}

// Guard rejects candidates that would push correlation-weighted risk or
// single-currency exposure past the configured ceilings. It is a pure
// filter: no state beyond the table it reads.
type Guard struct {
	table  *Table
	config GuardConfig
}

// NewGuard creates a guard over the given correlation table
func NewGuard(table *Table, config GuardConfig) *Guard {
	return &Guard{table: table, config: config}
}

// RiskScore aggregates the direction-adjusted, volume-weighted absolute
// correlation over all unordered holding pairs; 0 for fewer than 2 holdings.
func (g *Guard) RiskScore(holdings []Holding) float64 {
	if len(holdings) <= 1 {
		return 0.0
	}

	total := 0.0
	for i := 0; i < len(holdings); i++ {
		for j := i + 1; j < len(holdings); j++ {
			p1, p2 := holdings[i], holdings[j]

			corr := g.table.Lookup(p1.Instrument, p2.Instrument).Coefficient
			if p1.Direction != p2.Direction {
				// opposite directions offset each other's exposure
				corr = -corr
			}

			weight := 0.0
			if maxVol := math.Max(p1.Volume, p2.Volume); maxVol > 0 {
				weight = math.Min(p1.Volume, p2.Volume) / maxVol
			}
			total += math.Abs(corr) * weight
		}
	}

	numPairs := float64(len(holdings)*(len(holdings)-1)) / 2
	return math.Min(1.0, total/numPairs)
}

// Check decides whether the candidate can join the open positions without
// breaching the correlation or currency-exposure ceilings. The returned
// reason is empty when the candidate passes.
func (g *Guard) Check(candidate Holding, open []types.Position, balance float64) (bool, string) {
	holdings := make([]Holding, 0, len(open)+1)
	for _, pos := range open {
		holdings = append(holdings, Holding{
			Instrument: pos.Instrument,
			Direction:  pos.Direction,
			Volume:     pos.SizeLots,
		})
	}
	holdings = append(holdings, candidate)

	if score := g.RiskScore(holdings); score > g.config.MaxCorrelationExposure {
		return false, fmt.Sprintf("correlation risk %.2f exceeds ceiling %.2f", score, g.config.MaxCorrelationExposure)
	}

	if ok, currency, pct := g.currencyExposureOK(holdings, balance); !ok {
		return false, fmt.Sprintf("%s exposure %.1f%% exceeds ceiling %.1f%%",
			currency, pct*100, g.config.MaxCurrencyExposure*100)
	}

	return true, ""
}

// currencyExposureOK sums notional touching each currency code across all
// holdings and compares the worst one against the ceiling
func (g *Guard) currencyExposureOK(holdings []Holding, balance float64) (bool, string, float64) {
	if balance <= 0 {
		return false, "ALL", 1.0
	}

	exposure := make(map[string]float64)
	for _, h := range holdings {
		if len(h.Instrument) < 6 {
			continue
		}
		base := strings.ToUpper(h.Instrument[:3])
		quote := strings.ToUpper(h.Instrument[3:6])
		notional := h.Volume * StandardLotNotional
		exposure[base] += notional
		exposure[quote] += notional
	}

	for currency, notional := range exposure {
		pct := notional / balance
		if pct > g.config.MaxCurrencyExposure {
			return false, currency, pct
		}
	}
	return true, "", 0
}
