package domain

import "time"

// Watchlist defaults.
const (
	DefaultUserID         = "default"
	DefaultAlertThreshold = 80.0
)

// Watchlist is a user subscription to a token.
// At most one active row exists per (TokenAddress, UserID).
type Watchlist struct {
	ID             int64
	TokenAddress   string
	UserID         string
	AddedDate      time.Time
	AlertThreshold float64
	Active         bool
}
