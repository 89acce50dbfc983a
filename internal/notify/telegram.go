package notify

import (
	"context"
	"fmt"
	"html"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/go-resty/resty/v2"
	"go.uber.org/zap"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

// DefaultTelegramURL is the Bot API endpoint.
const DefaultTelegramURL = "https://api.telegram.org"

const telegramMaxAttempts = 3

var usd = message.NewPrinter(language.English)

// ErrTelegramNotConfigured is returned when the bot token or chat id is missing.
var ErrTelegramNotConfigured = fmt.Errorf("telegram bot token and chat id are required")

type telegramRequest struct {
	ChatID                string `json:"chat_id"`
	Text                  string `json:"text"`
	ParseMode             string `json:"parse_mode"`
	DisableWebPagePreview bool   `json:"disable_web_page_preview"`
}

type telegramResponse struct {
	OK          bool   `json:"ok"`
	ErrorCode   int    `json:"error_code"`
	Description string `json:"description"`
}

// Telegram sends alerts through the Telegram Bot API.
type Telegram struct {
	client *resty.Client
	token  string
	chatID string
	logger *zap.Logger
}

// TelegramOption configures a Telegram notifier.
type TelegramOption func(*Telegram)

// WithTelegramURL overrides the API base URL.
func WithTelegramURL(url string) TelegramOption {
	return func(t *Telegram) { t.client.SetBaseURL(strings.TrimRight(url, "/")) }
}

// WithTelegramLogger sets the logger.
func WithTelegramLogger(logger *zap.Logger) TelegramOption {
	return func(t *Telegram) {
		if logger != nil {
			t.logger = logger
		}
	}
}

// WithTelegramHTTPClient replaces the resty client. Used by tests.
func WithTelegramHTTPClient(client *resty.Client) TelegramOption {
	return func(t *Telegram) {
		base := t.client.BaseURL
		t.client = client
		if t.client.BaseURL == "" {
			t.client.SetBaseURL(base)
		}
	}
}

// NewTelegram creates a Telegram notifier.
func NewTelegram(token, chatID string, opts ...TelegramOption) (*Telegram, error) {
	if token == "" || chatID == "" {
		return nil, ErrTelegramNotConfigured
	}
	t := &Telegram{
		client: resty.New().SetBaseURL(DefaultTelegramURL).SetTimeout(15 * time.Second),
		token:  token,
		chatID: chatID,
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t, nil
}

// Notify posts the formatted alert. Transport errors and 5xx/429 replies are
// retried with exponential backoff; other API errors are permanent.
func (t *Telegram) Notify(ctx context.Context, msg AlertMessage) error {
	req := telegramRequest{
		ChatID:                t.chatID,
		Text:                  FormatTelegram(msg),
		ParseMode:             "HTML",
		DisableWebPagePreview: true,
	}

	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = 200 * time.Millisecond
	b := backoff.WithContext(backoff.WithMaxRetries(policy, telegramMaxAttempts-1), ctx)

	return backoff.Retry(func() error {
		var out telegramResponse
		resp, err := t.client.R().
			SetContext(ctx).
			SetBody(req).
			SetResult(&out).
			SetError(&out).
			Post("/bot" + t.token + "/sendMessage")
		if err != nil {
			t.logger.Warn("telegram send failed", zap.String("alert_id", msg.AlertID), zap.Error(err))
			return fmt.Errorf("telegram send: %w", err)
		}

		code := resp.StatusCode()
		if code == 429 || code >= 500 {
			return fmt.Errorf("telegram send: status %d", code)
		}
		if !out.OK || resp.IsError() {
			return backoff.Permanent(fmt.Errorf("telegram api error %d: %s", code, out.Description))
		}
		return nil
	}, b)
}

// FormatTelegram renders an alert as Telegram HTML.
func FormatTelegram(msg AlertMessage) string {
	var b strings.Builder
	b.WriteString("🔥 <b>Phoenix Rising Alert!</b> 🔥\n\n")
	fmt.Fprintf(&b, "<b>Token:</b> %s\n", html.EscapeString(msg.Symbol))
	fmt.Fprintf(&b, "<b>Chain:</b> %s\n", html.EscapeString(strings.ToUpper(msg.Chain)))
	fmt.Fprintf(&b, "<b>BRS Score:</b> %.1f/100\n\n", msg.BRSScore)
	fmt.Fprintf(&b, "<b>Current Price:</b> $%.6f\n", msg.CurrentPrice)
	fmt.Fprintf(&b, "<b>24h Change:</b> %.2f%%\n", msg.PriceChange24h)
	fmt.Fprintf(&b, "<b>Volume 24h:</b> $%s\n", thousands(msg.Volume24h))
	fmt.Fprintf(&b, "<b>Liquidity:</b> $%s\n\n", thousands(msg.LiquidityUSD))
	fmt.Fprintf(&b, "<b>Status:</b> %s\n", html.EscapeString(msg.Category))
	fmt.Fprintf(&b, "<b>Description:</b> %s\n\n", html.EscapeString(msg.Description))
	fmt.Fprintf(&b, "<a href=\"%s\">View on Dexscreener</a>", DexScreenerURL(msg.Chain, msg.Address))
	return b.String()
}

// thousands formats v rounded to an integer with comma separators.
func thousands(v float64) string {
	return usd.Sprintf("%.0f", v)
}
