package types

import (
	"fmt"
	"time"
)

// Direction represents the side of a proposed or open trade
type Direction int

const (
	DirectionLong Direction = iota
	DirectionShort
)

func (d Direction) String() string {
	switch d {
	case DirectionLong:
		return "LONG"
	case DirectionShort:
		return "SHORT"
	default:
		return "UNKNOWN"
	}
}

// Opportunity is a candidate trade proposal produced by a strategy analyzer.
// It is immutable after creation; PriorityScore is the only field filled in
// later, by the coordinator, on its own copy.
type Opportunity struct {
	Instrument     string    `json:"instrument"`
	Direction      Direction `json:"direction"`
	Confidence     float64   `json:"confidence"`      // 0-100
	StopDistance   float64   `json:"stop_distance"`   // price units
	TargetDistance float64   `json:"target_distance"` // price units
	StrategyID     string    `json:"strategy_id"`
	Timestamp      time.Time `json:"timestamp"`
	PriorityScore  float64   `json:"priority_score"`
}

// Key identifies the directional exposure an opportunity would create.
// Two opportunities with the same key double-bet the same exposure.
func (o Opportunity) Key() string {
	return fmt.Sprintf("%s_%s", o.Instrument, o.Direction)
}

// Position is an open trade tracked by the risk gate
type Position struct {
	ID         string    `json:"id"`
	Instrument string    `json:"instrument"`
	Direction  Direction `json:"direction"`
	SizeLots   float64   `json:"size_lots"`
	RiskAmount float64   `json:"risk_amount"`
	Notional   float64   `json:"notional"`
	EntryPrice float64   `json:"entry_price"`
	StrategyID string    `json:"strategy_id"`
	OpenedAt   time.Time `json:"opened_at"`
}

// Order is the sized instruction handed to the execution collaborator
type Order struct {
	ReservationID  string    `json:"reservation_id"`
	Instrument     string    `json:"instrument"`
	Direction      Direction `json:"direction"`
	SizeLots       float64   `json:"size_lots"`
	RiskAmount     float64   `json:"risk_amount"`
	StopDistance   float64   `json:"stop_distance"`
	TargetDistance float64   `json:"target_distance"`
	StrategyID     string    `json:"strategy_id"`
}

// ExecutionReport is the execution collaborator's synchronous answer to an order
type ExecutionReport struct {
	ReservationID string  `json:"reservation_id"`
	Accepted      bool    `json:"accepted"`
	BrokerRef     string  `json:"broker_ref,omitempty"`
	FillPrice     float64 `json:"fill_price,omitempty"`
	Reason        string  `json:"reason,omitempty"`
}

// TradeResult is a realized trade closure. TicketID is the broker-side
// idempotency key: the same closure delivered twice must be applied once.
type TradeResult struct {
	TicketID      string    `json:"ticket_id"`
	ReservationID string    `json:"reservation_id"`
	Instrument    string    `json:"instrument"`
	StrategyID    string    `json:"strategy_id"`
	PnL           float64   `json:"pnl"`
	ClosedAt      time.Time `json:"closed_at"`
}

// IndicatorSnapshot carries the externally computed regime inputs for a
// reference instrument. A zero Timestamp means the feed had no data.
type IndicatorSnapshot struct {
	Instrument      string    `json:"instrument"`
	VolatilityRatio float64   `json:"volatility_ratio"` // current ATR / average ATR
	TrendStrength   float64   `json:"trend_strength"`   // ADX-like, 0-100
	MAAlignment     float64   `json:"ma_alignment"`     // -1..1 moving-average ordering
	Timestamp       time.Time `json:"timestamp"`
}

// HasData reports whether the snapshot carries usable indicator values
func (s IndicatorSnapshot) HasData() bool {
	return !s.Timestamp.IsZero()
}
