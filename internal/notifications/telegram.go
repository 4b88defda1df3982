package notifications

import (
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/quantfx/decision-engine/internal/logger"
)

// TelegramNotifier delivers risk events to a Telegram chat. Delivery is
// best-effort: a failed send is logged and dropped, never retried into the
// decision path.
type TelegramNotifier struct {
	client *resty.Client
	token  string
	chatID string
	log    *logger.Logger
}

func NewTelegramNotifier(token, chatID string, log *logger.Logger) *TelegramNotifier {
	client := resty.New().
		SetBaseURL("https://api.telegram.org").
		SetTimeout(10 * time.Second).
		SetRetryCount(2).
		SetRetryWaitTime(1 * time.Second)

	return &TelegramNotifier{
		client: client,
		token:  token,
		chatID: chatID,
		log:    log,
	}
}

func (t *TelegramNotifier) NotifyRiskEvent(event, detail string) {
	emoji := "ℹ️"
	switch event {
	case EventProtectionLevelChanged:
		emoji = "🛡"
	case EventBudgetExceeded:
		emoji = "⚠️"
	case EventDailyLossLimitHit:
		emoji = "🚨"
	}

	text := fmt.Sprintf("%s *Risk Event: %s*\n\n%s", emoji, event, detail)

	resp, err := t.client.R().
		SetFormData(map[string]string{
			"chat_id":    t.chatID,
			"text":       text,
			"parse_mode": "Markdown",
		}).
		Post(fmt.Sprintf("/bot%s/sendMessage", t.token))

	if err != nil {
		if t.log != nil {
			t.log.Warning("Telegram send failed: %v", err)
		}
		return
	}
	if resp.StatusCode() != 200 {
		if t.log != nil {
			t.log.Warning("Telegram API returned status %d", resp.StatusCode())
		}
	}
}
