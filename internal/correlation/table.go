package correlation

import (
	"math"
	"strings"
	"sync"
	"time"
)

// Source identifies where a correlation coefficient came from
type Source int

const (
	SourceStatic Source = iota
	SourceDynamic
	SourceHeuristic
)

func (s Source) String() string {
	switch s {
	case SourceStatic:
		return "STATIC"
	case SourceDynamic:
		return "DYNAMIC"
	case SourceHeuristic:
		return "HEURISTIC"
	default:
		return "UNKNOWN"
	}
}

// Entry is one resolved correlation coefficient
type Entry struct {
	Coefficient float64   `json:"coefficient"`
	Source      Source    `json:"source"`
	LastUpdated time.Time `json:"last_updated"`
}

// pairKey stores instrument pairs in a canonical order so that
// entry(A,B) == entry(B,A) holds by construction
type pairKey struct {
	a, b string
}

func makeKey(a, b string) pairKey {
	if a > b {
		a, b = b, a
	}
	return pairKey{a: a, b: b}
}

// Table resolves instrument-pair correlations with a fixed lookup order:
// fresh dynamic entry, static seed, currency-overlap heuristic. The
// heuristic guarantees a lookup never fails open on missing data.
type Table struct {
	mu        sync.RWMutex
	static    map[pairKey]float64
	dynamic   map[pairKey]Entry
	freshness time.Duration
}

// NewTable creates a correlation table with the standard FX static seed
func NewTable(freshness time.Duration) *Table {
	t := &Table{
		static:    make(map[pairKey]float64),
		dynamic:   make(map[pairKey]Entry),
		freshness: freshness,
	}
	t.seedStatic()
	return t
}

// seedStatic loads the known approximate major-pair correlations
func (t *Table) seedStatic() {
	seed := []struct {
		a, b  string
		coeff float64
	}{
		{"EURUSD", "GBPUSD", 0.75},
		{"EURUSD", "USDJPY", -0.65},
		{"EURUSD", "USDCHF", -0.85},
		{"EURUSD", "AUDUSD", 0.60},
		{"EURUSD", "NZDUSD", 0.55},
		{"EURUSD", "EURGBP", 0.45},
		{"EURUSD", "EURJPY", 0.70},
		{"GBPUSD", "USDJPY", -0.55},
		{"GBPUSD", "USDCHF", -0.70},
		{"GBPUSD", "AUDUSD", 0.65},
		{"GBPUSD", "NZDUSD", 0.60},
		{"GBPUSD", "EURGBP", -0.40},
		{"GBPUSD", "EURJPY", 0.50},
		{"USDJPY", "USDCHF", 0.60},
		{"USDJPY", "AUDUSD", -0.45},
		{"USDJPY", "NZDUSD", -0.40},
		{"USDJPY", "EURGBP", -0.30},
		{"USDJPY", "EURJPY", 0.25},
	}
	for _, s := range seed {
		t.static[makeKey(s.a, s.b)] = s.coeff
	}
}

// Lookup resolves the correlation between two instruments
func (t *Table) Lookup(a, b string) Entry {
	if a == b {
		return Entry{Coefficient: 1.0, Source: SourceStatic}
	}

	key := makeKey(a, b)

	t.mu.RLock()
	defer t.mu.RUnlock()

	if entry, ok := t.dynamic[key]; ok && time.Since(entry.LastUpdated) < t.freshness {
		return entry
	}
	if coeff, ok := t.static[key]; ok {
		return Entry{Coefficient: coeff, Source: SourceStatic}
	}
	return Entry{Coefficient: currencyHeuristic(a, b), Source: SourceHeuristic}
}

// SetDynamic stores a dynamically computed coefficient
func (t *Table) SetDynamic(a, b string, coefficient float64, at time.Time) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.dynamic[makeKey(a, b)] = Entry{
		Coefficient: coefficient,
		Source:      SourceDynamic,
		LastUpdated: at,
	}
}

// UpdateFromReturns recomputes dynamic correlations from aligned return
// series. Pairs with fewer than 10 overlapping points are skipped.
func (t *Table) UpdateFromReturns(returns map[string][]float64, at time.Time) int {
	instruments := make([]string, 0, len(returns))
	for inst := range returns {
		instruments = append(instruments, inst)
	}

	updated := 0
	for i := 0; i < len(instruments); i++ {
		for j := i + 1; j < len(instruments); j++ {
			a, b := instruments[i], instruments[j]
			coeff, ok := pearson(returns[a], returns[b])
			if !ok {
				continue
			}
			t.SetDynamic(a, b, coeff, at)
			updated++
		}
	}
	return updated
}

// DiversificationScore rates an instrument set by its average absolute
// pairwise correlation: 1 is fully diversified, 0 fully redundant.
func (t *Table) DiversificationScore(instruments []string) float64 {
	if len(instruments) <= 1 {
		if len(instruments) == 1 {
			return 1.0
		}
		return 0.0
	}

	total := 0.0
	pairs := 0
	for i := 0; i < len(instruments); i++ {
		for j := i + 1; j < len(instruments); j++ {
			total += math.Abs(t.Lookup(instruments[i], instruments[j]).Coefficient)
			pairs++
		}
	}
	score := 1.0 - total/float64(pairs)
	return math.Max(0.0, math.Min(1.0, score))
}

// currencyHeuristic approximates a coefficient from shared 3-letter
// currency codes; last-resort fallback when no table entry exists
func currencyHeuristic(a, b string) float64 {
	if len(a) < 6 || len(b) < 6 {
		return 0.1
	}
	baseA, quoteA := strings.ToUpper(a[:3]), strings.ToUpper(a[3:6])
	baseB, quoteB := strings.ToUpper(b[:3]), strings.ToUpper(b[3:6])

	switch {
	case baseA == quoteB && quoteA == baseB:
		return -0.8
	case baseA == baseB:
		return 0.6
	case quoteA == quoteB:
		return -0.5
	case baseA == quoteB || quoteA == baseB:
		return 0.4
	default:
		return 0.1
	}
}

// pearson computes the correlation of two equal-cadence return series,
// aligned from their most recent points
func pearson(x, y []float64) (float64, bool) {
	n := len(x)
	if len(y) < n {
		n = len(y)
	}
	if n < 10 {
		return 0, false
	}
	x = x[len(x)-n:]
	y = y[len(y)-n:]

	var sumX, sumY float64
	for i := 0; i < n; i++ {
		sumX += x[i]
		sumY += y[i]
	}
	meanX, meanY := sumX/float64(n), sumY/float64(n)

	var cov, varX, varY float64
	for i := 0; i < n; i++ {
		dx, dy := x[i]-meanX, y[i]-meanY
		cov += dx * dy
		varX += dx * dx
		varY += dy * dy
	}
	if varX == 0 || varY == 0 {
		return 0, false
	}
	coeff := cov / math.Sqrt(varX*varY)
	if math.IsNaN(coeff) {
		return 0, false
	}
	return coeff, true
}
