package notifier

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"go.uber.org/zap"

	"edgewatch/internal/domain/notify"
)

type TelegramConfig struct {
	Token   string        `mapstructure:"token"`
	APIBase string        `mapstructure:"api_base"` // override for tests
	Timeout time.Duration `mapstructure:"timeout"`
}

var _ notify.Notifier = (*Telegram)(nil)

// Telegram delivers one message per Send call. It holds no mutable
// state, so concurrent use by multiple monitors is safe.
type Telegram struct {
	client  *http.Client
	baseURL string
	log     *zap.Logger
}

func NewTelegram(cfg TelegramConfig, log *zap.Logger) *Telegram {
	base := cfg.APIBase
	if base == "" {
		base = "https://api.telegram.org"
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Telegram{
		client:  &http.Client{Timeout: timeout},
		baseURL: base + "/bot" + cfg.Token,
		log:     log.With(zap.String("component", "notifier.telegram")),
	}
}

type sendMessageRequest struct {
	ChatID    int64  `json:"chat_id"`
	Text      string `json:"text"`
	ParseMode string `json:"parse_mode,omitempty"`
}

type apiResponse struct {
	OK          bool   `json:"ok"`
	Description string `json:"description,omitempty"`
	ErrorCode   int    `json:"error_code,omitempty"`
}

func (t *Telegram) Send(ctx context.Context, recipient, text string) error {
	chatID, err := strconv.ParseInt(recipient, 10, 64)
	if err != nil {
		return fmt.Errorf("recipient %q is not a chat id: %w", recipient, err)
	}

	body, err := json.Marshal(sendMessageRequest{
		ChatID:    chatID,
		Text:      text,
		ParseMode: "HTML",
	})
	if err != nil {
		return fmt.Errorf("marshal sendMessage: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.baseURL+"/sendMessage", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build sendMessage request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := t.client.Do(req)
	if err != nil {
		return fmt.Errorf("sendMessage: %w", err)
	}
	defer resp.Body.Close()

	var ar apiResponse
	if err := json.NewDecoder(resp.Body).Decode(&ar); err != nil {
		return fmt.Errorf("decode sendMessage response: %w", err)
	}
	if !ar.OK {
		return fmt.Errorf("telegram error %d: %s", ar.ErrorCode, ar.Description)
	}

	t.log.Debug("message delivered", zap.String("recipient", recipient), zap.Int("len", len(text)))
	return nil
}
