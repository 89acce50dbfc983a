package domain

import (
	"fmt"
	"strings"
	"time"
)

// Alert policy constants.
const (
	AlertMinScore    = 60.0
	AlertDedupWindow = 24 * time.Hour

	// MaxDeliveryAttempts is the number of failed deliveries after which an
	// unsent alert is dead-lettered and no longer offered for dispatch.
	MaxDeliveryAttempts = 5
)

// Alert is a deduplicated notable-score event.
// Corresponds to alerts table in PostgreSQL.
type Alert struct {
	ID           string // PRIMARY KEY, deterministic hash
	TokenAddress string
	AlertType    string // category slug, e.g. phoenix_rising
	Timestamp    time.Time
	Message      string
	ScoreAtAlert float64
	SentStatus   bool
	// DeliveryAttempts counts failed deliveries.
	DeliveryAttempts int
}

// DeadLettered reports whether delivery was abandoned.
func (a Alert) DeadLettered() bool {
	return !a.SentStatus && a.DeliveryAttempts >= MaxDeliveryAttempts
}

// AlertView is an alert joined with its token symbol.
type AlertView struct {
	Alert
	Symbol string
}

// AlertTypeFor converts a category label to its slug.
func AlertTypeFor(category string) string {
	return strings.ReplaceAll(strings.ToLower(category), " ", "_")
}

// AlertMessage renders the stored alert text.
func AlertMessage(symbol, category, description string, score float64) string {
	return fmt.Sprintf("%s - %s: %s. BRS Score: %.1f", symbol, category, description, score)
}
