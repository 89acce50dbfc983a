// Package notify delivers alert messages to external channels.
package notify

import (
	"context"
	"errors"
	"strings"

	"go.uber.org/zap"
)

// AlertMessage is the payload handed to every notifier.
type AlertMessage struct {
	AlertID        string  `json:"alert_id"`
	Address        string  `json:"address"`
	Symbol         string  `json:"symbol"`
	Chain          string  `json:"chain"`
	BRSScore       float64 `json:"brs_score"`
	CurrentPrice   float64 `json:"current_price"`
	PriceChange24h float64 `json:"price_change_24h"`
	Volume24h      float64 `json:"volume_24h"`
	LiquidityUSD   float64 `json:"liquidity_usd"`
	Category       string  `json:"category"`
	Description    string  `json:"description"`
}

// Notifier delivers one alert. Implementations must be safe for concurrent use.
type Notifier interface {
	Notify(ctx context.Context, msg AlertMessage) error
}

// LogNotifier writes alerts to the log. Used when no external channel is configured.
type LogNotifier struct {
	logger *zap.Logger
}

// NewLogNotifier creates a LogNotifier.
func NewLogNotifier(logger *zap.Logger) *LogNotifier {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogNotifier{logger: logger}
}

// Notify logs the alert at info level.
func (l *LogNotifier) Notify(_ context.Context, msg AlertMessage) error {
	l.logger.Info("phoenix alert",
		zap.String("alert_id", msg.AlertID),
		zap.String("address", msg.Address),
		zap.String("symbol", msg.Symbol),
		zap.String("chain", msg.Chain),
		zap.Float64("brs_score", msg.BRSScore),
		zap.String("category", msg.Category),
	)
	return nil
}

// Multi fans an alert out to every notifier. Each notifier is attempted;
// the failures are joined.
type Multi []Notifier

// Notify delivers to all notifiers.
func (m Multi) Notify(ctx context.Context, msg AlertMessage) error {
	var errs []error
	for _, n := range m {
		if n == nil {
			continue
		}
		if err := n.Notify(ctx, msg); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// DexScreenerURL links a token on DexScreener.
func DexScreenerURL(chain, address string) string {
	return "https://dexscreener.com/" + strings.ToLower(chain) + "/" + address
}
