package engine

import (
	"context"
	"sync"
	"time"

	"github.com/quantfx/decision-engine/internal/coordinator"
	"github.com/quantfx/decision-engine/internal/correlation"
	"github.com/quantfx/decision-engine/internal/errors"
	"github.com/quantfx/decision-engine/internal/executor"
	"github.com/quantfx/decision-engine/internal/gate"
	"github.com/quantfx/decision-engine/internal/logger"
	"github.com/quantfx/decision-engine/internal/monitoring"
	"github.com/quantfx/decision-engine/internal/regime"
	"github.com/quantfx/decision-engine/internal/state"
	"github.com/quantfx/decision-engine/internal/strategy"
	"github.com/quantfx/decision-engine/pkg/reporting"
	"github.com/quantfx/decision-engine/pkg/types"
)

const sweepInterval = 10 * time.Second

// SnapshotSource serves the latest indicator snapshot per instrument
type SnapshotSource interface {
	Latest(instrument string) types.IndicatorSnapshot
}

// Engine wires the analyzers, classifier, coordinator and gate into the
// running decision pipeline. Analyzer loops are concurrent producers; all
// admission decisions flow through the single decision loop.
type Engine struct {
	instruments []string
	reference   string

	classifier *regime.Classifier
	coord      *coordinator.Coordinator
	gate       *gate.Gate
	exec       executor.Executor
	source     SnapshotSource
	refresher  *correlation.Refresher
	store      *state.Store
	health     *monitoring.HealthChecker
	log        *logger.Logger
	analyzers  []strategy.Analyzer
	journal    *reporting.Journal

	saveInterval time.Duration

	opportunities chan []types.Opportunity
	wg            sync.WaitGroup
	cancel        context.CancelFunc
}

// Options collects the engine's collaborators
type Options struct {
	Instruments         []string
	ReferenceInstrument string
	Classifier          *regime.Classifier
	Coordinator         *coordinator.Coordinator
	Gate                *gate.Gate
	Executor            executor.Executor
	Source              SnapshotSource
	Refresher           *correlation.Refresher
	Store               *state.Store
	SaveInterval        time.Duration
	Health              *monitoring.HealthChecker
	Logger              *logger.Logger
	Analyzers           []strategy.Analyzer
	Journal             *reporting.Journal
}

// New creates the engine
func New(opts Options) *Engine {
	return &Engine{
		instruments:   opts.Instruments,
		reference:     opts.ReferenceInstrument,
		classifier:    opts.Classifier,
		coord:         opts.Coordinator,
		gate:          opts.Gate,
		exec:          opts.Executor,
		source:        opts.Source,
		refresher:     opts.Refresher,
		store:         opts.Store,
		saveInterval:  opts.SaveInterval,
		health:        opts.Health,
		log:           opts.Logger,
		analyzers:     opts.Analyzers,
		journal:       opts.Journal,
		opportunities: make(chan []types.Opportunity, 16),
	}
}

// Start launches all loops. It returns immediately; Stop shuts down.
func (e *Engine) Start(ctx context.Context) {
	ctx, e.cancel = context.WithCancel(ctx)

	for _, a := range e.analyzers {
		e.wg.Add(1)
		go e.analyzerLoop(ctx, a)
	}

	e.wg.Add(1)
	go e.decisionLoop(ctx)

	e.wg.Add(1)
	go e.closuresLoop(ctx)

	e.wg.Add(1)
	go e.sweepLoop(ctx)

	e.wg.Add(1)
	go e.dailyResetLoop(ctx)

	if e.refresher != nil {
		e.wg.Add(1)
		go func() {
			defer e.wg.Done()
			e.refresher.Run(ctx)
		}()
	}

	if e.store != nil {
		e.wg.Add(1)
		go func() {
			defer e.wg.Done()
			e.store.Run(ctx, e.saveInterval)
		}()
	}

	if e.log != nil {
		e.log.Info("Engine started: %d analyzer(s), %d instrument(s)", len(e.analyzers), len(e.instruments))
	}
}

// Stop cancels all loops and waits for them to drain
func (e *Engine) Stop() {
	if e.cancel != nil {
		e.cancel()
	}
	e.wg.Wait()
	if e.log != nil {
		e.log.Info("Engine stopped")
	}
}

// analyzerLoop runs one analyzer at its own cadence over every instrument
func (e *Engine) analyzerLoop(ctx context.Context, a strategy.Analyzer) {
	defer e.wg.Done()

	ticker := time.NewTicker(a.Cadence())
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			var batch []types.Opportunity
			for _, inst := range e.instruments {
				batch = append(batch, a.Analyze(e.source.Latest(inst), now)...)
			}
			if len(batch) == 0 {
				continue
			}
			select {
			case e.opportunities <- batch:
			case <-ctx.Done():
				return
			}
		}
	}
}

// decisionLoop is the single consumer of the opportunity pipeline
func (e *Engine) decisionLoop(ctx context.Context) {
	defer e.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return
		case batch := <-e.opportunities:
			e.runCycle(ctx, batch)
		}
	}
}

// runCycle classifies the regime, selects the batch's best opportunities
// and walks each one through admission and execution in priority order
func (e *Engine) runCycle(ctx context.Context, batch []types.Opportunity) {
	started := time.Now()

	current := e.classifier.Classify(e.source.Latest(e.reference))
	monitoring.UpdateRegime(current.Type.String())

	selected := e.coord.Select(current, batch, started)
	for _, opp := range selected {
		decision := e.gate.Evaluate(opp, time.Now())
		if !decision.Admitted {
			continue
		}

		report, err := e.exec.Execute(ctx, decision.Order)
		if err != nil {
			monitoring.RecordError(string(errors.CategoryOf(err)))
			e.gate.ReleaseRejected(types.ExecutionReport{
				ReservationID: decision.Order.ReservationID,
				Reason:        err.Error(),
			})
			continue
		}
		if !report.Accepted {
			e.gate.ReleaseRejected(report)
			continue
		}
		if err := e.gate.ConfirmExecution(report, time.Now()); err != nil {
			monitoring.RecordError(string(errors.CategoryOf(err)))
			if e.log != nil {
				e.log.LogError("confirm", err)
			}
		}
	}

	if e.health != nil {
		e.health.MarkDecisionCycle()
	}
	monitoring.ObserveCycleDuration(time.Since(started).Seconds())
}

// closuresLoop feeds realized trade results back into the gate
func (e *Engine) closuresLoop(ctx context.Context) {
	defer e.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return
		case result, ok := <-e.exec.Closures():
			if !ok {
				return
			}
			e.gate.ApplyClosure(result, time.Now())
			if e.journal != nil {
				e.journal.Append(result)
			}
		}
	}
}

// sweepLoop releases reservations whose confirmations never arrived
func (e *Engine) sweepLoop(ctx context.Context) {
	defer e.wg.Done()

	ticker := time.NewTicker(sweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			e.gate.SweepExpired(now)
		}
	}
}

// dailyResetLoop fires the daily counter reset at each UTC midnight
func (e *Engine) dailyResetLoop(ctx context.Context) {
	defer e.wg.Done()

	for {
		now := time.Now().UTC()
		next := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC).Add(24 * time.Hour)
		timer := time.NewTimer(next.Sub(now))

		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case at := <-timer.C:
			e.gate.ResetDaily(at)
		}
	}
}
