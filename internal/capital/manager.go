package capital

import (
	"sync"
	"time"

	"github.com/quantfx/decision-engine/pkg/types"
)

// ProtectionLevel is the drawdown-protection state
type ProtectionLevel int

const (
	ProtectionNormal ProtectionLevel = iota
	ProtectionReduced
	ProtectionMinimal
)

func (p ProtectionLevel) String() string {
	switch p {
	case ProtectionNormal:
		return "NORMAL"
	case ProtectionReduced:
		return "REDUCED"
	case ProtectionMinimal:
		return "MINIMAL"
	default:
		return "UNKNOWN"
	}
}

// Snapshot is a consistent read of the capital state. All sizing and
// admission decisions work from one snapshot per evaluation.
type Snapshot struct {
	CurrentBalance      float64         `json:"current_balance"`
	PeakBalance         float64         `json:"peak_balance"`
	DrawdownPct         float64         `json:"drawdown_pct"`
	RiskReductionFactor float64         `json:"risk_reduction_factor"`
	Level               ProtectionLevel `json:"protection_level"`
}

// LevelChange describes one protection-level transition
type LevelChange struct {
	From      ProtectionLevel
	To        ProtectionLevel
	Factor    float64
	Drawdown  float64
	Timestamp time.Time
}

// appliedTicketCap bounds the idempotency set; tickets far older than any
// plausible duplicate redelivery get evicted in arrival order
const appliedTicketCap = 1000

// Manager owns the process-wide capital state: balance, peak, drawdown and
// the hysteretic risk-reduction state machine. ApplyTradeResult is the
// single mutation point; everything else reads snapshots.
type Manager struct {
	mu sync.RWMutex

	initialBalance   float64
	currentBalance   float64
	peakBalance      float64
	maxDrawdownLimit float64

	riskReductionFactor float64
	level               ProtectionLevel

	appliedTickets map[string]struct{}
	ticketOrder    []string

	onLevelChange func(LevelChange)
}

// NewManager creates a capital manager starting at the given balance
func NewManager(initialBalance, maxDrawdownLimit float64) *Manager {
	return &Manager{
		initialBalance:      initialBalance,
		currentBalance:      initialBalance,
		peakBalance:         initialBalance,
		maxDrawdownLimit:    maxDrawdownLimit,
		riskReductionFactor: 1.0,
		level:               ProtectionNormal,
		appliedTickets:      make(map[string]struct{}),
	}
}

// SetLevelChangeHandler registers a callback invoked (outside the lock is
// not guaranteed; keep it fast) whenever the protection level transitions
func (m *Manager) SetLevelChangeHandler(fn func(LevelChange)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onLevelChange = fn
}

// Snapshot returns a consistent view of the capital state
func (m *Manager) Snapshot() Snapshot {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.snapshotLocked()
}

func (m *Manager) snapshotLocked() Snapshot {
	return Snapshot{
		CurrentBalance:      m.currentBalance,
		PeakBalance:         m.peakBalance,
		DrawdownPct:         m.drawdownLocked(),
		RiskReductionFactor: m.riskReductionFactor,
		Level:               m.level,
	}
}

func (m *Manager) drawdownLocked() float64 {
	if m.peakBalance <= 0 {
		return 0
	}
	return (m.peakBalance - m.currentBalance) / m.peakBalance
}

// ApplyTradeResult applies one realized trade closure atomically. The
// ticket id is the idempotency key: a duplicate delivery returns the
// current snapshot with applied=false and mutates nothing.
func (m *Manager) ApplyTradeResult(result types.TradeResult) (Snapshot, bool) {
	m.mu.Lock()

	if _, seen := m.appliedTickets[result.TicketID]; seen {
		snap := m.snapshotLocked()
		m.mu.Unlock()
		return snap, false
	}
	m.rememberTicketLocked(result.TicketID)

	m.currentBalance += result.PnL
	if m.currentBalance > m.peakBalance {
		m.peakBalance = m.currentBalance
	}

	change := m.evaluateProtectionLocked()
	snap := m.snapshotLocked()
	handler := m.onLevelChange
	m.mu.Unlock()

	if change != nil && handler != nil {
		handler(*change)
	}
	return snap, true
}

func (m *Manager) rememberTicketLocked(ticket string) {
	m.appliedTickets[ticket] = struct{}{}
	m.ticketOrder = append(m.ticketOrder, ticket)
	if len(m.ticketOrder) > appliedTicketCap {
		delete(m.appliedTickets, m.ticketOrder[0])
		m.ticketOrder = m.ticketOrder[1:]
	}
}

// evaluateProtectionLocked runs the drawdown state machine. Escalation
// checks the deepest threshold first; recovery is hysteretic and requires
// crossing the half-limit (partial) or quarter-limit (full) marks.
func (m *Manager) evaluateProtectionLocked() *LevelChange {
	dd := m.drawdownLocked()
	limit := m.maxDrawdownLimit

	prevLevel := m.level
	prevFactor := m.riskReductionFactor

	switch {
	case dd > 2.0*limit:
		m.level = ProtectionMinimal
		m.riskReductionFactor = 0.1
	case dd > 1.5*limit:
		m.level = ProtectionMinimal
		if m.riskReductionFactor > 0.25 {
			m.riskReductionFactor = 0.25
		}
	case dd > limit:
		// never relax within the protection band; only escalate
		if m.level == ProtectionNormal {
			m.level = ProtectionReduced
			m.riskReductionFactor = 0.5
		}
	case dd < 0.25*limit:
		m.level = ProtectionNormal
		m.riskReductionFactor = 1.0
	case dd < 0.5*limit:
		if m.level != ProtectionNormal {
			m.level = ProtectionReduced
			m.riskReductionFactor = 0.75
		}
	}
	// between 0.5×limit and limit nothing moves: that band is the
	// hysteresis gap that prevents oscillation around the threshold

	if m.level != prevLevel || m.riskReductionFactor != prevFactor {
		return &LevelChange{
			From:      prevLevel,
			To:        m.level,
			Factor:    m.riskReductionFactor,
			Drawdown:  dd,
			Timestamp: time.Now(),
		}
	}
	return nil
}

// Checkpoint is the serializable capital state
type Checkpoint struct {
	InitialBalance      float64         `json:"initial_balance"`
	CurrentBalance      float64         `json:"current_balance"`
	PeakBalance         float64         `json:"peak_balance"`
	RiskReductionFactor float64         `json:"risk_reduction_factor"`
	Level               ProtectionLevel `json:"protection_level"`
	AppliedTickets      []string        `json:"applied_tickets"`
}

// Export serializes the capital state for checkpointing
func (m *Manager) Export() Checkpoint {
	m.mu.RLock()
	defer m.mu.RUnlock()

	tickets := make([]string, len(m.ticketOrder))
	copy(tickets, m.ticketOrder)

	return Checkpoint{
		InitialBalance:      m.initialBalance,
		CurrentBalance:      m.currentBalance,
		PeakBalance:         m.peakBalance,
		RiskReductionFactor: m.riskReductionFactor,
		Level:               m.level,
		AppliedTickets:      tickets,
	}
}

// Restore replaces the capital state from a checkpoint at process start
func (m *Manager) Restore(cp Checkpoint) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if cp.InitialBalance > 0 {
		m.initialBalance = cp.InitialBalance
	}
	if cp.CurrentBalance > 0 {
		m.currentBalance = cp.CurrentBalance
	}
	if cp.PeakBalance > 0 {
		m.peakBalance = cp.PeakBalance
	}
	if cp.RiskReductionFactor > 0 {
		m.riskReductionFactor = cp.RiskReductionFactor
	}
	m.level = cp.Level

	m.appliedTickets = make(map[string]struct{}, len(cp.AppliedTickets))
	m.ticketOrder = m.ticketOrder[:0]
	for _, ticket := range cp.AppliedTickets {
		m.rememberTicketLocked(ticket)
	}
}
