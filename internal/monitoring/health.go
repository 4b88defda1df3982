package monitoring

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"
)

var startTime = time.Now()

// HealthChecker tracks liveness of the decision loop and its data feed
type HealthChecker struct {
	mu            sync.RWMutex
	lastDecision  time.Time
	lastFeedData  time.Time
	feedConnected bool
	errors        []string
}

type HealthStatus struct {
	Status        string    `json:"status"`
	Timestamp     time.Time `json:"timestamp"`
	LastDecision  time.Time `json:"last_decision"`
	LastFeedData  time.Time `json:"last_feed_data"`
	FeedConnected bool      `json:"feed_connected"`
	Uptime        string    `json:"uptime"`
	Errors        []string  `json:"errors,omitempty"`
}

func NewHealthChecker() *HealthChecker {
	return &HealthChecker{
		errors: make([]string, 0),
	}
}

// MarkDecisionCycle notes that the decision loop completed a cycle
func (h *HealthChecker) MarkDecisionCycle() {
	h.mu.Lock()
	h.lastDecision = time.Now()
	h.mu.Unlock()
}

// MarkFeedData notes fresh market data from the feed
func (h *HealthChecker) MarkFeedData() {
	h.mu.Lock()
	h.lastFeedData = time.Now()
	h.mu.Unlock()
}

// SetFeedConnected updates the feed connectivity flag
func (h *HealthChecker) SetFeedConnected(connected bool) {
	h.mu.Lock()
	h.feedConnected = connected
	h.mu.Unlock()
}

// ReportError appends an error to the health state, keeping the last 10
func (h *HealthChecker) ReportError(msg string) {
	h.mu.Lock()
	h.errors = append(h.errors, msg)
	if len(h.errors) > 10 {
		h.errors = h.errors[len(h.errors)-10:]
	}
	h.mu.Unlock()
}

func (h *HealthChecker) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	status := "healthy"
	if !h.feedConnected || time.Since(h.lastDecision) > 10*time.Minute {
		status = "degraded"
		w.WriteHeader(http.StatusServiceUnavailable)
	}

	health := HealthStatus{
		Status:        status,
		Timestamp:     time.Now(),
		LastDecision:  h.lastDecision,
		LastFeedData:  h.lastFeedData,
		FeedConnected: h.feedConnected,
		Uptime:        time.Since(startTime).String(),
		Errors:        h.errors,
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(health)
}
