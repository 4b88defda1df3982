package executor

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/quantfx/decision-engine/internal/logger"
	"github.com/quantfx/decision-engine/pkg/types"
)

const pipSize = 0.0001

// PaperConfig tunes the simulated fills
type PaperConfig struct {
	// WinProbability is the chance a simulated trade hits its target
	WinProbability float64
	// MinHold and MaxHold bound the simulated holding period
	MinHold time.Duration
	MaxHold time.Duration
	// PipValuePerLot matches the sizing engine's conversion
	PipValuePerLot float64
	// RejectionRate simulates sporadic broker rejections
	RejectionRate float64
}

// DefaultPaperConfig returns the standard simulation parameters
func DefaultPaperConfig() PaperConfig {
	return PaperConfig{
		WinProbability: 0.55,
		MinHold:        30 * time.Second,
		MaxHold:        10 * time.Minute,
		PipValuePerLot: 10.0,
		RejectionRate:  0.02,
	}
}

// paperTrade is one simulated open position
type paperTrade struct {
	order    types.Order
	ticketID string
	openedAt time.Time
	closeAt  time.Time
	win      bool
}

// Paper simulates the broker: every accepted order is assigned a ticket
// and closed after a randomized holding period at either the target or
// the stop. Useful for running the full decision loop with no live broker.
type Paper struct {
	mu       sync.Mutex
	config   PaperConfig
	rng      *rand.Rand
	open     map[string]*paperTrade
	closures chan types.TradeResult
	ticket   uint64
	log      *logger.Logger

	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
}

// NewPaper creates a paper executor and starts its settlement loop
func NewPaper(config PaperConfig, seed int64, log *logger.Logger) *Paper {
	ctx, cancel := context.WithCancel(context.Background())
	p := &Paper{
		config:   config,
		rng:      rand.New(rand.NewSource(seed)),
		open:     make(map[string]*paperTrade),
		closures: make(chan types.TradeResult, 64),
		log:      log,
		ctx:      ctx,
		cancel:   cancel,
		done:     make(chan struct{}),
	}
	go p.settleLoop()
	return p
}

// Execute simulates order submission
func (p *Paper) Execute(ctx context.Context, order types.Order) (types.ExecutionReport, error) {
	if err := ctx.Err(); err != nil {
		return types.ExecutionReport{}, err
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.rng.Float64() < p.config.RejectionRate {
		return types.ExecutionReport{
			ReservationID: order.ReservationID,
			Accepted:      false,
			Reason:        "simulated broker rejection",
		}, nil
	}

	p.ticket++
	ticketID := fmt.Sprintf("PAPER-%06d", p.ticket)

	hold := p.config.MinHold
	if span := p.config.MaxHold - p.config.MinHold; span > 0 {
		hold += time.Duration(p.rng.Int63n(int64(span)))
	}

	now := time.Now()
	p.open[ticketID] = &paperTrade{
		order:    order,
		ticketID: ticketID,
		openedAt: now,
		closeAt:  now.Add(hold),
		win:      p.rng.Float64() < p.config.WinProbability,
	}

	if p.log != nil {
		p.log.Trade("Paper fill %s: %s %s %.2f lots", ticketID, order.Instrument, order.Direction, order.SizeLots)
	}

	return types.ExecutionReport{
		ReservationID: order.ReservationID,
		Accepted:      true,
		BrokerRef:     ticketID,
	}, nil
}

// Closures delivers simulated trade closures
func (p *Paper) Closures() <-chan types.TradeResult {
	return p.closures
}

// Close stops the settlement loop
func (p *Paper) Close() error {
	p.cancel()
	<-p.done
	return nil
}

func (p *Paper) settleLoop() {
	defer close(p.done)

	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-p.ctx.Done():
			return
		case now := <-ticker.C:
			for _, result := range p.settleDue(now) {
				select {
				case p.closures <- result:
				case <-p.ctx.Done():
					return
				}
			}
		}
	}
}

func (p *Paper) settleDue(now time.Time) []types.TradeResult {
	p.mu.Lock()
	defer p.mu.Unlock()

	var out []types.TradeResult
	for id, tr := range p.open {
		if now.Before(tr.closeAt) {
			continue
		}
		delete(p.open, id)

		distance := tr.order.StopDistance
		sign := -1.0
		if tr.win {
			distance = tr.order.TargetDistance
			sign = 1.0
		}
		pnl := sign * (distance / pipSize) * p.config.PipValuePerLot * tr.order.SizeLots

		out = append(out, types.TradeResult{
			TicketID:      id,
			ReservationID: tr.order.ReservationID,
			Instrument:    tr.order.Instrument,
			StrategyID:    tr.order.StrategyID,
			PnL:           pnl,
			ClosedAt:      now,
		})
	}
	return out
}
