package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

type TelegramConfig struct {
	// APIBase is the Bot API origin; overridable for tests.
	APIBase string

	// Token is the bot token.
	Token string
}

// TelegramNotifier talks to the Telegram Bot API directly, for
// deployments where the bot relay and this backend are the same process.
type TelegramNotifier struct {
	apiBase string
	token   string

	// hc is the http client.
	hc *http.Client
}

func NewTelegramNotifier(cfg *TelegramConfig) *TelegramNotifier {
	apiBase := cfg.APIBase
	if apiBase == "" {
		apiBase = "https://api.telegram.org"
	}
	return &TelegramNotifier{
		apiBase: apiBase,
		token:   cfg.Token,

		hc: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

func (n *TelegramNotifier) SendMessage(ctx context.Context, chatUserID, text string) error {
	return n.call(ctx, "sendMessage", map[string]any{
		"chat_id":    chatUserID,
		"text":       text,
		"parse_mode": "Markdown",
	})
}

func (n *TelegramNotifier) SendTicket(ctx context.Context, chatUserID, caption, qrPayload string) error {
	// The relay renders qrPayload into an image; over the plain Bot API
	// the payload travels inside the message body.
	return n.SendMessage(ctx, chatUserID, caption+"\n\n`"+qrPayload+"`")
}

func (n *TelegramNotifier) call(ctx context.Context, method string, payload map[string]any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("notify: telegram marshal: %w", err)
	}

	endpoint := fmt.Sprintf("%s/bot%s/%s", n.apiBase, n.token, method)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("notify: telegram http.NewReq: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.hc.Do(req)
	if err != nil {
		return fmt.Errorf("notify: telegram http.Do: %w", err)
	}
	defer resp.Body.Close()

	var reply struct {
		OK          bool   `json:"ok"`
		ErrorCode   int    `json:"error_code"`
		Description string `json:"description"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&reply); err != nil {
		return fmt.Errorf("notify: telegram json.Decode: %w", err)
	}
	if !reply.OK {
		return fmt.Errorf("notify: telegram %s: %d %s", method, reply.ErrorCode, reply.Description)
	}
	return nil
}

func (n *TelegramNotifier) Close(_ context.Context) error { return nil }
