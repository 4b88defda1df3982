package correlation

import (
	"context"
	"time"

	"github.com/quantfx/decision-engine/internal/errors"
	"github.com/quantfx/decision-engine/internal/logger"
	"github.com/quantfx/decision-engine/internal/monitoring"
)

// ReturnsProvider supplies rolling return series for dynamic correlation
// recomputation. Implementations may block on external retrieval; the
// refresher bounds every call with a timeout.
type ReturnsProvider interface {
	Returns(ctx context.Context, instruments []string, lookback int) (map[string][]float64, error)
}

// Refresher periodically recomputes dynamic correlations in the background.
// The decision path never waits on it: a failed or slow refresh leaves the
// table serving stale dynamic or static entries.
type Refresher struct {
	table       *Table
	provider    ReturnsProvider
	logger      *logger.Logger
	instruments []string
	interval    time.Duration
	timeout     time.Duration
	lookback    int
}

// NewRefresher creates a background correlation refresher
func NewRefresher(table *Table, provider ReturnsProvider, log *logger.Logger,
	instruments []string, interval, timeout time.Duration) *Refresher {
	return &Refresher{
		table:       table,
		provider:    provider,
		logger:      log,
		instruments: instruments,
		interval:    interval,
		timeout:     timeout,
		lookback:    24,
	}
}

// Run refreshes on the configured interval until the context is cancelled
func (r *Refresher) Run(ctx context.Context) {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	// one refresh at startup so the table does not stay static for a full hour
	r.RefreshOnce(ctx)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.RefreshOnce(ctx)
		}
	}
}

// RefreshOnce performs a single bounded refresh attempt
func (r *Refresher) RefreshOnce(ctx context.Context) {
	refreshCtx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	returns, err := r.provider.Returns(refreshCtx, r.instruments, r.lookback)
	if err != nil {
		derr := errors.NewDataUnavailable("correlation", "refresh", err)
		r.logger.Warning("Correlation refresh failed, keeping stale entries: %v", derr)
		return
	}

	updated := r.table.UpdateFromReturns(returns, time.Now())
	monitoring.SetDiversificationScore(r.table.DiversificationScore(r.instruments))
	r.logger.Info("Dynamic correlations updated: %d pairs from %d instruments", updated, len(returns))
}
