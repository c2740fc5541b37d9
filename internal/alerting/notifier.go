package alerting

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Alert kinds raised by the sync job.
const (
	KindSyncFailed  = "sync_failed"
	KindIndexingLag = "indexing_lag"
)

// Notification 封装告警上下文。
type Notification struct {
	Tick          time.Time
	Network       string
	Kind          string
	Lag           uint64
	MaxLag        uint64
	Cursor        int64
	Err           string
	AdditionalMsg string
}

func (n Notification) key() string {
	return n.Network + "/" + n.Kind
}

// Notifier 定义告警输送接口。
type Notifier interface {
	Notify(ctx context.Context, notification Notification) error
}

// TelegramNotifier 通过 Telegram Bot API 推送消息。
type TelegramNotifier struct {
	botToken string
	chatID   string
	baseURL  string
	client   *http.Client
	logger   zerolog.Logger
}

// NewTelegramNotifier 构造 Telegram 告警器。
func NewTelegramNotifier(botToken, chatID, baseURL string, timeout time.Duration, logger zerolog.Logger) *TelegramNotifier {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	if baseURL == "" {
		baseURL = "https://api.telegram.org"
	}

	return &TelegramNotifier{
		botToken: botToken,
		chatID:   chatID,
		baseURL:  strings.TrimRight(baseURL, "/"),
		client:   &http.Client{Timeout: timeout},
		logger:   logger.With().Str("component", "alert_telegram").Logger(),
	}
}

// Notify 调用 sendMessage API 推送文本。
func (n *TelegramNotifier) Notify(ctx context.Context, note Notification) error {
	payload := map[string]string{
		"chat_id": n.chatID,
		"text":    renderMessage(note),
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal telegram payload: %w", err)
	}

	url := fmt.Sprintf("%s/bot%s/sendMessage", n.baseURL, n.botToken)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create telegram request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("send telegram request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("telegram 响应码异常: %d", resp.StatusCode)
	}

	var result struct {
		OK bool `json:"ok"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err == nil {
		if !result.OK {
			return fmt.Errorf("telegram 返回 ok=false")
		}
	}

	n.logger.Info().
		Str("network", note.Network).
		Str("kind", note.Kind).
		Msg("告警已发送 (Telegram)")
	return nil
}

func renderMessage(note Notification) string {
	builder := strings.Builder{}
	builder.WriteString("[lendingdash]\n")
	builder.WriteString(fmt.Sprintf("Network: %s\n", note.Network))
	builder.WriteString(fmt.Sprintf("Tick: %s UTC\n", note.Tick.UTC().Format(time.RFC3339)))
	switch note.Kind {
	case KindSyncFailed:
		builder.WriteString("Sync failed\n")
		if note.Err != "" {
			builder.WriteString(fmt.Sprintf("Error: %s\n", note.Err))
		}
	case KindIndexingLag:
		builder.WriteString(fmt.Sprintf("Subgraph lags chain head by %d blocks (max %d)\n", note.Lag, note.MaxLag))
		builder.WriteString(fmt.Sprintf("Cursor: %d\n", note.Cursor))
	default:
		builder.WriteString(fmt.Sprintf("Kind: %s\n", note.Kind))
	}
	if note.AdditionalMsg != "" {
		builder.WriteString(note.AdditionalMsg)
	}
	return builder.String()
}

// Cooldown drops repeats of the same network and kind raised within the window.
type Cooldown struct {
	inner  Notifier
	window time.Duration
	now    func() time.Time

	mu   sync.Mutex
	last map[string]time.Time
}

// NewCooldown wraps a notifier with per network/kind suppression.
func NewCooldown(inner Notifier, window time.Duration) *Cooldown {
	return &Cooldown{
		inner:  inner,
		window: window,
		now:    time.Now,
		last:   make(map[string]time.Time),
	}
}

// Notify forwards the notification unless an identical one was sent within the window.
func (c *Cooldown) Notify(ctx context.Context, note Notification) error {
	now := c.now()
	c.mu.Lock()
	if last, ok := c.last[note.key()]; ok && c.window > 0 && now.Sub(last) < c.window {
		c.mu.Unlock()
		return nil
	}
	c.mu.Unlock()

	if err := c.inner.Notify(ctx, note); err != nil {
		return err
	}

	c.mu.Lock()
	c.last[note.key()] = now
	c.mu.Unlock()
	return nil
}

var (
	_ Notifier = (*TelegramNotifier)(nil)
	_ Notifier = (*Cooldown)(nil)
)
