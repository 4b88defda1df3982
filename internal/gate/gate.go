package gate

import (
	"fmt"
	"sync"
	"time"

	"github.com/quantfx/decision-engine/internal/capital"
	"github.com/quantfx/decision-engine/internal/correlation"
	"github.com/quantfx/decision-engine/internal/errors"
	"github.com/quantfx/decision-engine/internal/logger"
	"github.com/quantfx/decision-engine/internal/monitoring"
	"github.com/quantfx/decision-engine/internal/notifications"
	"github.com/quantfx/decision-engine/internal/performance"
	"github.com/quantfx/decision-engine/internal/sizing"
	"github.com/quantfx/decision-engine/pkg/types"
)

// RejectionReason is the distinct reason code attached to every rejection
type RejectionReason string

const (
	ReasonMaxPositions    RejectionReason = "MAX_POSITIONS"
	ReasonDailyLossLimit  RejectionReason = "DAILY_LOSS_LIMIT"
	ReasonDailyTradeLimit RejectionReason = "DAILY_TRADE_LIMIT"
	ReasonLowConfidence   RejectionReason = "CONFIDENCE_TOO_LOW"
	ReasonCorrelation     RejectionReason = "CORRELATION_REJECTED"
	ReasonProtection      RejectionReason = "PROTECTION_MINIMAL"
	ReasonBudgetExceeded  RejectionReason = "BUDGET_EXCEEDED"
	ReasonInvalid         RejectionReason = "INVALID_OPPORTUNITY"
)

// Config holds the admission parameters
type Config struct {
	MaxPositions           int
	MaxDailyLossAmount     float64 // positive number, compared against -dailyLossSoFar
	MaxDailyTrades         int
	MinConfidence          float64 // under Normal protection
	MinConfidenceProtected float64 // while protection level is not Normal
	MinConfidenceMinimal   float64 // extra bar while protection level is Minimal
	ReservationTimeout     time.Duration
}

// DefaultConfig returns the standard admission parameters
func DefaultConfig() Config {
	return Config{
		MaxPositions:           3,
		MaxDailyLossAmount:     100,
		MaxDailyTrades:         20,
		MinConfidence:          70,
		MinConfidenceProtected: 75,
		MinConfidenceMinimal:   85,
		ReservationTimeout:     90 * time.Second,
	}
}

// Notifier receives risk events raised by the gate
type Notifier interface {
	NotifyRiskEvent(event, detail string)
}

// Reservation is budget held for an admitted trade awaiting execution
type Reservation struct {
	ID         string
	Instrument string
	Direction  types.Direction
	StrategyID string
	SizeLots   float64
	RiskAmount float64
	CreatedAt  time.Time
	ExpiresAt  time.Time
}

// Decision is the outcome of one admission evaluation
type Decision struct {
	Admitted bool
	Reason   RejectionReason
	Detail   string
	Order    types.Order
}

// Gate is the single serialized owner of reservations, open positions and
// daily counters. Every admission, confirmation, release and closure runs
// inside one critical section so two concurrent decisions can never both
// read the same available budget and overcommit. Decisions never block
// on I/O.
type Gate struct {
	mu sync.Mutex

	config  Config
	capital *capital.Manager
	sizer   *sizing.Engine
	guard   *correlation.Guard
	tracker *performance.Tracker

	reservations map[string]*Reservation
	positions    map[string]types.Position // keyed by broker ref

	dayKey          string // UTC date owning the daily counters
	dailyTradeCount int
	dailyLossSoFar  float64
	lossLimitFired  bool

	reservationSeq uint64

	notifier Notifier
	log      *logger.Logger
}

// NewGate creates the decision gate
func NewGate(config Config, cap *capital.Manager, sizer *sizing.Engine, guard *correlation.Guard, tracker *performance.Tracker, notifier Notifier, log *logger.Logger) *Gate {
	return &Gate{
		config:       config,
		capital:      cap,
		sizer:        sizer,
		guard:        guard,
		tracker:      tracker,
		reservations: make(map[string]*Reservation),
		positions:    make(map[string]types.Position),
		dayKey:       dayKeyOf(time.Now()),
		notifier:     notifier,
		log:          log,
	}
}

// Evaluate runs the ordered admission checks for one opportunity and, on
// success, creates a reservation holding its risk budget. The capital
// snapshot, committed-exposure read and reservation creation all happen
// in the same critical section.
func (g *Gate) Evaluate(opp types.Opportunity, now time.Time) Decision {
	g.mu.Lock()
	defer g.mu.Unlock()

	g.ensureDayLocked(now)
	g.sweepExpiredLocked(now)

	snap := g.capital.Snapshot()

	if len(g.positions) >= g.config.MaxPositions {
		return g.rejectLocked(opp, ReasonMaxPositions,
			fmt.Sprintf("%d open positions at limit %d", len(g.positions), g.config.MaxPositions))
	}

	if g.dailyLossSoFar <= -g.config.MaxDailyLossAmount {
		g.fireDailyLossLocked()
		return g.rejectLocked(opp, ReasonDailyLossLimit,
			fmt.Sprintf("daily loss $%.2f at limit $%.2f", -g.dailyLossSoFar, g.config.MaxDailyLossAmount))
	}

	if g.config.MaxDailyTrades > 0 && g.dailyTradeCount >= g.config.MaxDailyTrades {
		return g.rejectLocked(opp, ReasonDailyTradeLimit,
			fmt.Sprintf("%d trades today at limit %d", g.dailyTradeCount, g.config.MaxDailyTrades))
	}

	minConf := g.config.MinConfidence
	if snap.Level != capital.ProtectionNormal {
		minConf = g.config.MinConfidenceProtected
	}
	if opp.Confidence < minConf {
		return g.rejectLocked(opp, ReasonLowConfidence,
			fmt.Sprintf("confidence %.1f below minimum %.1f", opp.Confidence, minConf))
	}

	committed := g.committedRiskLocked()
	sized, err := g.sizer.Size(opp, snap, committed)
	if err != nil {
		reason := ReasonInvalid
		if errors.IsCategory(err, errors.ErrorCategoryBudgetExceeded) {
			reason = ReasonBudgetExceeded
			if g.notifier != nil {
				g.notifier.NotifyRiskEvent(notifications.EventBudgetExceeded, err.Error())
			}
		}
		return g.rejectLocked(opp, reason, err.Error())
	}

	candidate := correlation.Holding{
		Instrument: opp.Instrument,
		Direction:  opp.Direction,
		Volume:     sized.SizeLots,
	}
	if ok, why := g.guard.Check(candidate, g.openPositionsLocked(), snap.CurrentBalance); !ok {
		return g.rejectLocked(opp, ReasonCorrelation, why)
	}

	if snap.Level == capital.ProtectionMinimal && opp.Confidence < g.config.MinConfidenceMinimal {
		return g.rejectLocked(opp, ReasonProtection,
			fmt.Sprintf("confidence %.1f below %.1f while in minimal protection", opp.Confidence, g.config.MinConfidenceMinimal))
	}

	g.reservationSeq++
	res := &Reservation{
		ID:         fmt.Sprintf("rsv-%s-%d", now.UTC().Format("20060102T150405"), g.reservationSeq),
		Instrument: opp.Instrument,
		Direction:  opp.Direction,
		StrategyID: opp.StrategyID,
		SizeLots:   sized.SizeLots,
		RiskAmount: sized.RiskAmount,
		CreatedAt:  now,
		ExpiresAt:  now.Add(g.config.ReservationTimeout),
	}
	g.reservations[res.ID] = res
	g.dailyTradeCount++
	g.tracker.RecordAdmission(opp.StrategyID, now)
	g.publishGaugesLocked()

	if g.log != nil {
		g.log.LogAdmission(opp.Instrument, opp.Direction.String(), opp.StrategyID,
			opp.Confidence, sized.RiskAmount, sized.SizeLots, res.ID)
	}
	monitoring.RecordGateDecision("admitted", "")

	return Decision{
		Admitted: true,
		Order: types.Order{
			ReservationID:  res.ID,
			Instrument:     opp.Instrument,
			Direction:      opp.Direction,
			SizeLots:       sized.SizeLots,
			RiskAmount:     sized.RiskAmount,
			StopDistance:   opp.StopDistance,
			TargetDistance: opp.TargetDistance,
			StrategyID:     opp.StrategyID,
		},
	}
}

// ConfirmExecution converts a reservation into an open position once the
// execution collaborator accepts the order. The risk stays committed; only
// its bucket changes.
func (g *Gate) ConfirmExecution(report types.ExecutionReport, now time.Time) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	res, ok := g.reservations[report.ReservationID]
	if !ok {
		return errors.New(errors.ErrorCategoryInternal, "gate", "confirm",
			fmt.Sprintf("unknown reservation %s", report.ReservationID))
	}
	delete(g.reservations, report.ReservationID)

	g.positions[report.BrokerRef] = types.Position{
		ID:         report.BrokerRef,
		Instrument: res.Instrument,
		Direction:  res.Direction,
		SizeLots:   res.SizeLots,
		RiskAmount: res.RiskAmount,
		Notional:   res.SizeLots * correlation.StandardLotNotional,
		EntryPrice: report.FillPrice,
		StrategyID: res.StrategyID,
		OpenedAt:   now,
	}
	g.publishGaugesLocked()
	return nil
}

// ReleaseRejected returns a reservation's budget after the execution
// collaborator rejects the order. The strategy is charged an execution
// failure, not a loss, and there is no retry within the cycle.
func (g *Gate) ReleaseRejected(report types.ExecutionReport) {
	g.mu.Lock()
	res, ok := g.reservations[report.ReservationID]
	if ok {
		delete(g.reservations, report.ReservationID)
		g.publishGaugesLocked()
	}
	g.mu.Unlock()

	if !ok {
		return
	}
	g.tracker.RecordExecutionFailure(res.StrategyID)
	if g.log != nil {
		g.log.LogError("execution", errors.NewBrokerRejection("gate", report.Reason))
	}
	monitoring.RecordGateDecision("broker_rejected", report.Reason)
}

// ApplyClosure applies one realized trade closure: removes the position,
// updates the daily loss counter, feeds capital and performance state.
// Duplicate deliveries of the same ticket are ignored.
func (g *Gate) ApplyClosure(result types.TradeResult, now time.Time) {
	snap, applied := g.capital.ApplyTradeResult(result)
	if !applied {
		return
	}

	g.mu.Lock()
	g.ensureDayLocked(now)
	if pos, ok := g.positions[result.TicketID]; ok {
		delete(g.positions, result.TicketID)
		if result.StrategyID == "" {
			result.StrategyID = pos.StrategyID
		}
	}
	// a closure arriving before confirmation still releases its budget
	if result.ReservationID != "" {
		delete(g.reservations, result.ReservationID)
	}
	// profits offset the counter; it tracks net realized PnL for the day
	g.dailyLossSoFar += result.PnL
	breached := g.dailyLossSoFar <= -g.config.MaxDailyLossAmount
	g.publishGaugesLocked()
	g.mu.Unlock()

	g.tracker.RecordClosure(result)
	monitoring.RecordTradeClosure(result.PnL)
	monitoring.UpdateCapital(snap.CurrentBalance, snap.DrawdownPct, snap.RiskReductionFactor)

	if g.log != nil {
		g.log.LogCapitalUpdate(result.PnL, snap.CurrentBalance, snap.DrawdownPct, snap.RiskReductionFactor)
	}
	if breached {
		g.mu.Lock()
		g.fireDailyLossLocked()
		g.mu.Unlock()
	}
}

// SweepExpired releases reservations whose execution confirmation never
// arrived. Budget is never held indefinitely.
func (g *Gate) SweepExpired(now time.Time) int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.sweepExpiredLocked(now)
}

// ResetDaily forces the daily counters onto the given day. The engine calls
// it at the UTC boundary; admissions straddling the boundary are attributed
// by the same day-key check, so the reset happens exactly once.
func (g *Gate) ResetDaily(now time.Time) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.ensureDayLocked(now)
}

// OpenPositions returns a copy of the open position set
func (g *Gate) OpenPositions() []types.Position {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.openPositionsLocked()
}

// Stats is a point-in-time view of the gate's bookkeeping
type Stats struct {
	OpenPositions   int
	Reservations    int
	ReservedRisk    float64
	OpenRisk        float64
	DailyTradeCount int
	DailyLossSoFar  float64
}

// Snapshot returns the current gate bookkeeping
func (g *Gate) Snapshot() Stats {
	g.mu.Lock()
	defer g.mu.Unlock()

	var reserved, open float64
	for _, r := range g.reservations {
		reserved += r.RiskAmount
	}
	for _, p := range g.positions {
		open += p.RiskAmount
	}
	return Stats{
		OpenPositions:   len(g.positions),
		Reservations:    len(g.reservations),
		ReservedRisk:    reserved,
		OpenRisk:        open,
		DailyTradeCount: g.dailyTradeCount,
		DailyLossSoFar:  g.dailyLossSoFar,
	}
}

func (g *Gate) rejectLocked(opp types.Opportunity, reason RejectionReason, detail string) Decision {
	if g.log != nil {
		g.log.LogRejection(opp.Instrument, opp.Direction.String(), opp.StrategyID,
			fmt.Sprintf("%s: %s", reason, detail))
	}
	monitoring.RecordGateDecision("rejected", string(reason))
	return Decision{Admitted: false, Reason: reason, Detail: detail}
}

func (g *Gate) committedRiskLocked() float64 {
	var total float64
	for _, r := range g.reservations {
		total += r.RiskAmount
	}
	for _, p := range g.positions {
		total += p.RiskAmount
	}
	return total
}

func (g *Gate) openPositionsLocked() []types.Position {
	out := make([]types.Position, 0, len(g.positions))
	for _, p := range g.positions {
		out = append(out, p)
	}
	return out
}

func (g *Gate) sweepExpiredLocked(now time.Time) int {
	released := 0
	for id, res := range g.reservations {
		if now.After(res.ExpiresAt) {
			delete(g.reservations, id)
			released++
			if g.log != nil {
				g.log.Warning("Reservation %s (%s %s) expired unconfirmed, budget released",
					id, res.Instrument, res.Direction)
			}
		}
	}
	if released > 0 {
		g.publishGaugesLocked()
	}
	return released
}

func (g *Gate) ensureDayLocked(now time.Time) {
	key := dayKeyOf(now)
	if key == g.dayKey {
		return
	}
	g.dayKey = key
	g.dailyTradeCount = 0
	g.dailyLossSoFar = 0
	g.lossLimitFired = false
	if g.log != nil {
		g.log.Info("Daily counters reset for %s", key)
	}
}

// fireDailyLossLocked raises the circuit-breaker event once per day
func (g *Gate) fireDailyLossLocked() {
	if g.lossLimitFired {
		return
	}
	g.lossLimitFired = true
	if g.notifier != nil {
		g.notifier.NotifyRiskEvent(notifications.EventDailyLossLimitHit,
			fmt.Sprintf("daily loss $%.2f reached limit $%.2f", -g.dailyLossSoFar, g.config.MaxDailyLossAmount))
	}
}

func (g *Gate) publishGaugesLocked() {
	var reserved, open float64
	for _, r := range g.reservations {
		reserved += r.RiskAmount
	}
	for _, p := range g.positions {
		open += p.RiskAmount
	}
	monitoring.SetReservedExposure(reserved)
	monitoring.SetOpenRiskExposure(open)
	monitoring.SetOpenPositions(len(g.positions))
}

// dayKeyOf attributes an instant to its UTC calendar day
func dayKeyOf(t time.Time) string {
	return t.UTC().Format("2006-01-02")
}
