package gate

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quantfx/decision-engine/internal/capital"
	"github.com/quantfx/decision-engine/internal/correlation"
	"github.com/quantfx/decision-engine/internal/notifications"
	"github.com/quantfx/decision-engine/internal/performance"
	"github.com/quantfx/decision-engine/internal/sizing"
	"github.com/quantfx/decision-engine/pkg/types"
)

type stubNotifier struct {
	events []string
}

func (s *stubNotifier) NotifyRiskEvent(event, detail string) {
	s.events = append(s.events, event)
}

func (s *stubNotifier) count(event string) int {
	n := 0
	for _, e := range s.events {
		if e == event {
			n++
		}
	}
	return n
}

type harness struct {
	gate     *Gate
	capital  *capital.Manager
	tracker  *performance.Tracker
	notifier *stubNotifier
}

// newHarness wires a gate over a fresh $10k account with a 15% drawdown
// limit. The currency-exposure ceiling is lifted so the admission-order
// tests are not entangled with guard behavior, which has its own suite.
func newHarness(config Config) *harness {
	tracker := performance.NewTracker()
	cap := capital.NewManager(10000, 0.15)
	guard := correlation.NewGuard(correlation.NewTable(2*time.Hour), correlation.GuardConfig{
		MaxCorrelationExposure: 0.6,
		MaxCurrencyExposure:    10,
	})
	notifier := &stubNotifier{}
	return &harness{
		gate:     NewGate(config, cap, sizing.NewEngine(sizing.DefaultConfig(), tracker), guard, tracker, notifier, nil),
		capital:  cap,
		tracker:  tracker,
		notifier: notifier,
	}
}

func opp(instrument string, confidence float64) types.Opportunity {
	return types.Opportunity{
		Instrument:     instrument,
		Direction:      types.DirectionLong,
		Confidence:     confidence,
		StopDistance:   0.0050,
		TargetDistance: 0.0100,
		StrategyID:     "trend_following",
		Timestamp:      time.Now(),
	}
}

func TestEvaluate_AdmitsAndReserves(t *testing.T) {
	h := newHarness(DefaultConfig())
	now := time.Now()

	dec := h.gate.Evaluate(opp("EURUSD", 90), now)
	require.True(t, dec.Admitted)
	assert.NotEmpty(t, dec.Order.ReservationID)
	assert.Equal(t, "EURUSD", dec.Order.Instrument)
	// default Kelly 0.02 at confidence 90: 1.8% of $10k over a 50-pip stop
	assert.InDelta(t, 180.0, dec.Order.RiskAmount, 1e-9)
	assert.InDelta(t, 0.36, dec.Order.SizeLots, 1e-9)

	stats := h.gate.Snapshot()
	assert.Equal(t, 1, stats.Reservations)
	assert.InDelta(t, 180.0, stats.ReservedRisk, 1e-9)
	assert.Equal(t, 1, stats.DailyTradeCount)
}

func TestEvaluate_ConfidenceTooLow(t *testing.T) {
	h := newHarness(DefaultConfig())

	dec := h.gate.Evaluate(opp("EURUSD", 65), time.Now())
	require.False(t, dec.Admitted)
	assert.Equal(t, ReasonLowConfidence, dec.Reason)
}

func TestEvaluate_ProtectedModeRaisesConfidenceBar(t *testing.T) {
	h := newHarness(DefaultConfig())
	// 16% drawdown moves protection off Normal
	_, applied := h.capital.ApplyTradeResult(types.TradeResult{TicketID: "DD-1", PnL: -1600, ClosedAt: time.Now()})
	require.True(t, applied)

	dec := h.gate.Evaluate(opp("EURUSD", 72), time.Now())
	require.False(t, dec.Admitted)
	assert.Equal(t, ReasonLowConfidence, dec.Reason)

	dec = h.gate.Evaluate(opp("EURUSD", 80), time.Now())
	assert.True(t, dec.Admitted)
}

func TestEvaluate_MinimalProtectionDemandsConviction(t *testing.T) {
	h := newHarness(DefaultConfig())
	// 31% drawdown pins protection at Minimal
	_, applied := h.capital.ApplyTradeResult(types.TradeResult{TicketID: "DD-1", PnL: -3100, ClosedAt: time.Now()})
	require.True(t, applied)

	dec := h.gate.Evaluate(opp("EURUSD", 80), time.Now())
	require.False(t, dec.Admitted)
	assert.Equal(t, ReasonProtection, dec.Reason)

	dec = h.gate.Evaluate(opp("EURUSD", 90), time.Now())
	assert.True(t, dec.Admitted)
}

func TestEvaluate_MaxPositions(t *testing.T) {
	h := newHarness(DefaultConfig())
	now := time.Now()

	for i, instrument := range []string{"EURUSD", "GBPJPY", "AUDCAD"} {
		dec := h.gate.Evaluate(opp(instrument, 90), now)
		require.True(t, dec.Admitted, instrument)
		require.NoError(t, h.gate.ConfirmExecution(types.ExecutionReport{
			ReservationID: dec.Order.ReservationID,
			Accepted:      true,
			BrokerRef:     fmt.Sprintf("TKT-%d", i),
			FillPrice:     1.1000,
		}, now))
	}

	dec := h.gate.Evaluate(opp("USDCHF", 95), now)
	require.False(t, dec.Admitted)
	assert.Equal(t, ReasonMaxPositions, dec.Reason)
}

func TestEvaluate_DailyTradeLimit(t *testing.T) {
	config := DefaultConfig()
	config.MaxDailyTrades = 2
	h := newHarness(config)
	now := time.Now()

	require.True(t, h.gate.Evaluate(opp("EURUSD", 90), now).Admitted)
	require.True(t, h.gate.Evaluate(opp("GBPJPY", 90), now).Admitted)

	dec := h.gate.Evaluate(opp("AUDCAD", 90), now)
	require.False(t, dec.Admitted)
	assert.Equal(t, ReasonDailyTradeLimit, dec.Reason)
}

func TestEvaluate_BudgetDepletionRejects(t *testing.T) {
	h := newHarness(DefaultConfig())
	now := time.Now()

	var last Decision
	for i := 0; i < 20; i++ {
		last = h.gate.Evaluate(opp("EURUSD", 90), now)
		if !last.Admitted {
			break
		}
	}
	require.False(t, last.Admitted)
	assert.Equal(t, ReasonBudgetExceeded, last.Reason)
	assert.Equal(t, 1, h.notifier.count(notifications.EventBudgetExceeded))

	// committed exposure never crosses 20% of balance
	stats := h.gate.Snapshot()
	assert.LessOrEqual(t, stats.ReservedRisk+stats.OpenRisk, 2000.0+1e-9)
}

func TestDailyLossBreaker_TripsOnceAndBlocks(t *testing.T) {
	h := newHarness(DefaultConfig())
	now := time.Now()

	dec := h.gate.Evaluate(opp("EURUSD", 90), now)
	require.True(t, dec.Admitted)
	require.NoError(t, h.gate.ConfirmExecution(types.ExecutionReport{
		ReservationID: dec.Order.ReservationID, Accepted: true, BrokerRef: "TKT-1", FillPrice: 1.1,
	}, now))

	h.gate.ApplyClosure(types.TradeResult{
		TicketID: "TKT-1", Instrument: "EURUSD", StrategyID: "trend_following",
		PnL: -101, ClosedAt: now,
	}, now)
	assert.Equal(t, 1, h.notifier.count(notifications.EventDailyLossLimitHit))

	// high conviction does not override the breaker
	dec = h.gate.Evaluate(opp("GBPJPY", 95), now)
	require.False(t, dec.Admitted)
	assert.Equal(t, ReasonDailyLossLimit, dec.Reason)
	assert.Equal(t, 1, h.notifier.count(notifications.EventDailyLossLimitHit))
}

func TestConfirmExecution_MovesRiskToOpen(t *testing.T) {
	h := newHarness(DefaultConfig())
	now := time.Now()

	dec := h.gate.Evaluate(opp("EURUSD", 90), now)
	require.True(t, dec.Admitted)

	require.NoError(t, h.gate.ConfirmExecution(types.ExecutionReport{
		ReservationID: dec.Order.ReservationID, Accepted: true, BrokerRef: "TKT-1", FillPrice: 1.0850,
	}, now))

	stats := h.gate.Snapshot()
	assert.Equal(t, 0, stats.Reservations)
	assert.Equal(t, 1, stats.OpenPositions)
	assert.InDelta(t, 180.0, stats.OpenRisk, 1e-9)

	pos := h.gate.OpenPositions()
	require.Len(t, pos, 1)
	assert.Equal(t, 1.0850, pos[0].EntryPrice)
}

func TestConfirmExecution_UnknownReservation(t *testing.T) {
	h := newHarness(DefaultConfig())

	err := h.gate.ConfirmExecution(types.ExecutionReport{ReservationID: "rsv-missing"}, time.Now())
	assert.Error(t, err)
}

func TestReleaseRejected_ChargesFailureNotLoss(t *testing.T) {
	h := newHarness(DefaultConfig())
	now := time.Now()

	dec := h.gate.Evaluate(opp("EURUSD", 90), now)
	require.True(t, dec.Admitted)

	h.gate.ReleaseRejected(types.ExecutionReport{
		ReservationID: dec.Order.ReservationID, Accepted: false, Reason: "insufficient margin",
	})

	stats := h.gate.Snapshot()
	assert.Equal(t, 0, stats.Reservations)
	assert.Equal(t, 0.0, stats.DailyLossSoFar)

	rec := h.tracker.Snapshot("trend_following")
	assert.Equal(t, 1, rec.ExecutionFailures)
	assert.Equal(t, 0, rec.TotalTrades)
}

func TestApplyClosure_IdempotentByTicket(t *testing.T) {
	h := newHarness(DefaultConfig())
	now := time.Now()

	dec := h.gate.Evaluate(opp("EURUSD", 90), now)
	require.True(t, dec.Admitted)
	require.NoError(t, h.gate.ConfirmExecution(types.ExecutionReport{
		ReservationID: dec.Order.ReservationID, Accepted: true, BrokerRef: "TKT-1", FillPrice: 1.1,
	}, now))

	result := types.TradeResult{
		TicketID: "TKT-1", Instrument: "EURUSD", StrategyID: "trend_following",
		PnL: -50, ClosedAt: now,
	}
	h.gate.ApplyClosure(result, now)
	h.gate.ApplyClosure(result, now)

	stats := h.gate.Snapshot()
	assert.InDelta(t, -50.0, stats.DailyLossSoFar, 1e-9)
	assert.Equal(t, 1, h.tracker.Snapshot("trend_following").TotalTrades)
	assert.Equal(t, 9950.0, h.capital.Snapshot().CurrentBalance)
}

func TestApplyClosure_BeforeConfirmationReleasesBudget(t *testing.T) {
	h := newHarness(DefaultConfig())
	now := time.Now()

	dec := h.gate.Evaluate(opp("EURUSD", 90), now)
	require.True(t, dec.Admitted)

	h.gate.ApplyClosure(types.TradeResult{
		TicketID: "TKT-1", ReservationID: dec.Order.ReservationID,
		Instrument: "EURUSD", StrategyID: "trend_following",
		PnL: 25, ClosedAt: now,
	}, now)

	stats := h.gate.Snapshot()
	assert.Equal(t, 0, stats.Reservations)
	assert.InDelta(t, 25.0, stats.DailyLossSoFar, 1e-9)
}

func TestSweepExpired_ReleasesStaleReservations(t *testing.T) {
	h := newHarness(DefaultConfig())
	now := time.Now()

	dec := h.gate.Evaluate(opp("EURUSD", 90), now)
	require.True(t, dec.Admitted)

	assert.Equal(t, 0, h.gate.SweepExpired(now.Add(30*time.Second)))
	assert.Equal(t, 1, h.gate.SweepExpired(now.Add(2*time.Minute)))
	assert.Equal(t, 0, h.gate.Snapshot().Reservations)
}

func TestResetDaily_ClearsCounters(t *testing.T) {
	h := newHarness(DefaultConfig())
	now := time.Date(2026, 3, 10, 23, 50, 0, 0, time.UTC)

	require.True(t, h.gate.Evaluate(opp("EURUSD", 90), now).Admitted)
	require.Equal(t, 1, h.gate.Snapshot().DailyTradeCount)

	h.gate.ResetDaily(now.Add(15 * time.Minute))

	stats := h.gate.Snapshot()
	assert.Equal(t, 0, stats.DailyTradeCount)
	assert.Equal(t, 0.0, stats.DailyLossSoFar)
}
