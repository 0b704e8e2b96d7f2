// Package notify is the best-effort alert side channel. Delivery
// failures are logged and never propagate into the calling loop.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"
)

// Notifier sends operational alerts.
type Notifier interface {
	Notify(ctx context.Context, message string)
}

// Telegram sends alerts to a Telegram chat.
type Telegram struct {
	token  string
	chatID string
	client *http.Client
	log    *zap.Logger
}

// NewTelegram builds the notifier. With an empty token it degrades to
// log-only.
func NewTelegram(token, chatID string, log *zap.Logger) *Telegram {
	return &Telegram{
		token:  token,
		chatID: chatID,
		client: &http.Client{Timeout: 10 * time.Second},
		log:    log.Named("notify"),
	}
}

// Notify delivers the message, best effort.
func (t *Telegram) Notify(ctx context.Context, message string) {
	t.log.Info("alert", zap.String("message", message))
	if t.token == "" || t.chatID == "" {
		return
	}

	payload, err := json.Marshal(map[string]string{
		"chat_id": t.chatID,
		"text":    message,
	})
	if err != nil {
		return
	}

	url := fmt.Sprintf("https://api.telegram.org/bot%s/sendMessage", t.token)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		t.log.Warn("building alert request failed", zap.Error(err))
		return
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := t.client.Do(req)
	if err != nil {
		t.log.Warn("alert delivery failed", zap.Error(err))
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		t.log.Warn("alert rejected", zap.Int("status", resp.StatusCode))
	}
}

// Nop is a no-op notifier for tests.
type Nop struct{}

// Notify implements Notifier.
func (Nop) Notify(context.Context, string) {}
