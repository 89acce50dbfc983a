// Package api exposes the scanner over REST and a WebSocket alert stream.
package api

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"solana-phoenix-scanner/internal/domain"
	"solana-phoenix-scanner/internal/notify"
	"solana-phoenix-scanner/internal/observability"
	"solana-phoenix-scanner/internal/orchestrator"
)

// Query limits.
const (
	DefaultPhoenixLimit = 20
	DefaultAlertLimit   = 10
	MaxLimit            = 100
	DefaultMinLiquidity = 5000.0
)

// Scanner is the part of the orchestrator the API serves.
type Scanner interface {
	GetTopPhoenixes(ctx context.Context, q orchestrator.TopQuery) ([]orchestrator.PhoenixView, error)
	RecentAlerts(ctx context.Context, limit int) ([]domain.AlertView, error)
	GetTokenAnalysis(ctx context.Context, address string) (*orchestrator.Analysis, error)
	AddToWatchlist(ctx context.Context, address, userID string, threshold float64) (*domain.Watchlist, bool, error)
	LastCycle() *orchestrator.CycleResult
	Running() bool
}

// Handler serves the API routes.
type Handler struct {
	scanner   Scanner
	hub       *notify.Hub // nil disables the alert stream
	logger    *zap.Logger
	startedAt time.Time
}

// NewHandler creates a Handler.
func NewHandler(scanner Scanner, hub *notify.Hub, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{scanner: scanner, hub: hub, logger: logger, startedAt: time.Now()}
}

// SetupRoutes registers every route on router.
func SetupRoutes(router *gin.Engine, h *Handler) {
	router.GET("/health", h.Health)
	router.GET("/status", h.Status)
	router.GET("/metrics", gin.WrapH(observability.Handler()))

	v1 := router.Group("/api/v1")
	{
		v1.GET("/phoenixes", h.GetPhoenixes)
		v1.GET("/tokens/:address/analysis", h.GetTokenAnalysis)
		v1.POST("/watchlist", h.AddToWatchlist)
		v1.GET("/alerts/recent", h.GetRecentAlerts)
		v1.GET("/alerts/stream", h.StreamAlerts)
	}
}

// Health handles GET /health.
func (h *Handler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "healthy"})
}

// StatusResponse is the body of GET /status.
type StatusResponse struct {
	Status       string                    `json:"status"`
	StartedAt    time.Time                 `json:"started_at"`
	Uptime       string                    `json:"uptime"`
	CycleRunning bool                      `json:"cycle_running"`
	LastCycle    *orchestrator.CycleResult `json:"last_cycle,omitempty"`
	Subscribers  int                       `json:"stream_subscribers"`
}

// Status handles GET /status.
func (h *Handler) Status(c *gin.Context) {
	resp := StatusResponse{
		Status:       "running",
		StartedAt:    h.startedAt,
		Uptime:       time.Since(h.startedAt).Round(time.Second).String(),
		CycleRunning: h.scanner.Running(),
		LastCycle:    h.scanner.LastCycle(),
	}
	if h.hub != nil {
		resp.Subscribers = h.hub.Subscribers()
	}
	c.JSON(http.StatusOK, resp)
}

// GetPhoenixes handles GET /api/v1/phoenixes.
func (h *Handler) GetPhoenixes(c *gin.Context) {
	limit, err := parseLimit(c, DefaultPhoenixLimit)
	if err != nil {
		respondBadRequest(c, "Invalid limit", err.Error())
		return
	}

	q := orchestrator.TopQuery{Chain: strings.TrimSpace(c.Query("chain")), Limit: limit}
	filters := []struct {
		name string
		def  float64
		dst  *float64
	}{
		{"min_liquidity", DefaultMinLiquidity, &q.MinLiquidity},
		{"min_score", 0, &q.MinScore},
		{"min_market_cap", 0, &q.MinMarketCap},
		{"min_volume", 0, &q.MinVolume},
	}
	for _, f := range filters {
		v, err := parseNonNegative(c, f.name, f.def)
		if err != nil {
			respondBadRequest(c, "Invalid "+f.name, err.Error())
			return
		}
		*f.dst = v
	}

	rows, err := h.scanner.GetTopPhoenixes(c.Request.Context(), q)
	if err != nil {
		h.respondInternalError(c, err, "Failed to get top phoenixes")
		return
	}
	c.JSON(http.StatusOK, rows)
}

// GetTokenAnalysis handles GET /api/v1/tokens/:address/analysis.
func (h *Handler) GetTokenAnalysis(c *gin.Context) {
	address := strings.TrimSpace(c.Param("address"))
	a, err := h.scanner.GetTokenAnalysis(c.Request.Context(), address)
	if err != nil {
		if errors.Is(err, orchestrator.ErrTokenNotFound) {
			respondNotFound(c, "Token not found")
			return
		}
		h.respondInternalError(c, err, "Failed to analyze token")
		return
	}
	c.JSON(http.StatusOK, a)
}

type watchlistRequest struct {
	TokenAddress   string   `json:"token_address" binding:"required"`
	UserID         string   `json:"user_id"`
	AlertThreshold *float64 `json:"alert_threshold"`
}

// AddToWatchlist handles POST /api/v1/watchlist. It answers 201 for a new
// subscription and 200 when one already existed.
func (h *Handler) AddToWatchlist(c *gin.Context) {
	var req watchlistRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondBadRequest(c, "Invalid request body", err.Error())
		return
	}

	var threshold float64
	if req.AlertThreshold != nil {
		threshold = *req.AlertThreshold
		if threshold <= 0 || threshold > 100 {
			respondBadRequest(c, "Invalid alert_threshold", "must be in (0, 100]")
			return
		}
	}

	w, added, err := h.scanner.AddToWatchlist(c.Request.Context(), req.TokenAddress, strings.TrimSpace(req.UserID), threshold)
	if err != nil {
		if errors.Is(err, domain.ErrEmptyAddress) {
			respondBadRequest(c, "Invalid token_address", err.Error())
			return
		}
		h.respondInternalError(c, err, "Failed to add to watchlist")
		return
	}

	status := http.StatusOK
	if added {
		status = http.StatusCreated
	}
	c.JSON(status, toWatchlistResponse(w, added))
}

// GetRecentAlerts handles GET /api/v1/alerts/recent.
func (h *Handler) GetRecentAlerts(c *gin.Context) {
	limit, err := parseLimit(c, DefaultAlertLimit)
	if err != nil {
		respondBadRequest(c, "Invalid limit", err.Error())
		return
	}

	alerts, err := h.scanner.RecentAlerts(c.Request.Context(), limit)
	if err != nil {
		h.respondInternalError(c, err, "Failed to get recent alerts")
		return
	}
	out := make([]alertResponse, 0, len(alerts))
	for _, a := range alerts {
		out = append(out, toAlertResponse(a))
	}
	c.JSON(http.StatusOK, out)
}

// StreamAlerts upgrades GET /api/v1/alerts/stream to a WebSocket subscription.
func (h *Handler) StreamAlerts(c *gin.Context) {
	if h.hub == nil {
		respondWithError(c, http.StatusServiceUnavailable, errCodeUnavailable, "Alert stream disabled")
		return
	}
	h.hub.ServeWS(c.Writer, c.Request)
}

// parseLimit reads ?limit, which must be within [1, MaxLimit].
func parseLimit(c *gin.Context, def int) (int, error) {
	raw := c.Query("limit")
	if raw == "" {
		return def, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, errors.New("limit must be an integer")
	}
	if n < 1 || n > MaxLimit {
		return 0, errors.New("limit must be between 1 and " + strconv.Itoa(MaxLimit))
	}
	return n, nil
}

func parseNonNegative(c *gin.Context, name string, def float64) (float64, error) {
	raw := c.Query(name)
	if raw == "" {
		return def, nil
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, errors.New(name + " must be a number")
	}
	if v < 0 {
		return 0, errors.New(name + " must not be negative")
	}
	return v, nil
}
