package notifications

// Risk events published by the decision layer
const (
	EventProtectionLevelChanged = "PROTECTION_LEVEL_CHANGED"
	EventBudgetExceeded         = "BUDGET_EXCEEDED"
	EventDailyLossLimitHit      = "DAILY_LOSS_LIMIT_HIT"
	EventEngineStarted          = "ENGINE_STARTED"
	EventEngineStopped          = "ENGINE_STOPPED"
)

// Notifier defines the interface for notification services
type Notifier interface {
	// NotifyRiskEvent delivers a risk event with its detail message
	NotifyRiskEvent(event, detail string)
}

// NopNotifier discards all events; used when no channel is configured
type NopNotifier struct{}

func (NopNotifier) NotifyRiskEvent(event, detail string) {}
