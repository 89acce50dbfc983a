package api

import (
	"time"

	"solana-phoenix-scanner/internal/domain"
)

type alertResponse struct {
	ID           string    `json:"id"`
	TokenAddress string    `json:"token_address"`
	Symbol       string    `json:"symbol"`
	AlertType    string    `json:"alert_type"`
	Message      string    `json:"message"`
	ScoreAtAlert float64   `json:"score_at_alert"`
	Timestamp    time.Time `json:"timestamp"`
	Sent         bool      `json:"sent"`
}

func toAlertResponse(a domain.AlertView) alertResponse {
	return alertResponse{
		ID:           a.ID,
		TokenAddress: a.TokenAddress,
		Symbol:       a.Symbol,
		AlertType:    a.AlertType,
		Message:      a.Message,
		ScoreAtAlert: a.ScoreAtAlert,
		Timestamp:    a.Timestamp,
		Sent:         a.SentStatus,
	}
}

type watchlistResponse struct {
	ID             int64     `json:"id"`
	TokenAddress   string    `json:"token_address"`
	UserID         string    `json:"user_id"`
	AddedDate      time.Time `json:"added_date"`
	AlertThreshold float64   `json:"alert_threshold"`
	Active         bool      `json:"is_active"`
	Created        bool      `json:"created"`
}

func toWatchlistResponse(w *domain.Watchlist, created bool) watchlistResponse {
	return watchlistResponse{
		ID:             w.ID,
		TokenAddress:   w.TokenAddress,
		UserID:         w.UserID,
		AddedDate:      w.AddedDate,
		AlertThreshold: w.AlertThreshold,
		Active:         w.Active,
		Created:        created,
	}
}
