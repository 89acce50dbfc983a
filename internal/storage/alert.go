package storage

import (
	"time"

	"solana-phoenix-scanner/internal/brs"
	"solana-phoenix-scanner/internal/domain"
	"solana-phoenix-scanner/internal/idhash"
)

// AlertEligible reports whether score qualifies for an alert.
func AlertEligible(score float64) bool {
	return score >= domain.AlertMinScore
}

// AlertDedupCutoff returns the earliest timestamp that still blocks a new alert.
// An alert strictly after the cutoff suppresses a new one.
func AlertDedupCutoff(now time.Time) time.Time {
	return now.Add(-domain.AlertDedupWindow)
}

// BuildAlert renders the alert row for token at score.
func BuildAlert(token *domain.Token, score float64, now time.Time) domain.Alert {
	interp := brs.Interpret(score)
	alertType := domain.AlertTypeFor(interp.Category)
	return domain.Alert{
		ID:           idhash.ComputeAlertID(token.Address, alertType, now),
		TokenAddress: token.Address,
		AlertType:    alertType,
		Timestamp:    now,
		Message:      domain.AlertMessage(token.Symbol, interp.Category, interp.Description, score),
		ScoreAtAlert: score,
	}
}

// NewScore builds the score row for address at now.
func NewScore(address string, b domain.ScoreBreakdown, now time.Time) domain.BRSScore {
	return domain.BRSScore{
		ID:             idhash.ComputeScoreID(address, now),
		TokenAddress:   address,
		Timestamp:      now,
		ScoreBreakdown: b,
	}
}
