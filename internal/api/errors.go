package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// ErrorCode is a machine-readable error class.
type ErrorCode string

const (
	errCodeBadRequest  ErrorCode = "bad_request"
	errCodeNotFound    ErrorCode = "not_found"
	errCodeInternal    ErrorCode = "internal_error"
	errCodeUnavailable ErrorCode = "service_unavailable"
)

type errorResponse struct {
	Error errorDetail `json:"error"`
}

type errorDetail struct {
	Code    ErrorCode `json:"code"`
	Message string    `json:"message"`
	Details string    `json:"details,omitempty"`
}

func respondWithError(c *gin.Context, status int, code ErrorCode, message string, details ...string) {
	resp := errorResponse{Error: errorDetail{Code: code, Message: message}}
	if len(details) > 0 {
		resp.Error.Details = details[0]
	}
	c.JSON(status, resp)
}

func respondBadRequest(c *gin.Context, message string, details ...string) {
	respondWithError(c, http.StatusBadRequest, errCodeBadRequest, message, details...)
}

func respondNotFound(c *gin.Context, message string) {
	respondWithError(c, http.StatusNotFound, errCodeNotFound, message)
}

func (h *Handler) respondInternalError(c *gin.Context, err error, message string) {
	h.logger.Error(message, zap.Error(err), zap.String("path", c.Request.URL.Path))
	respondWithError(c, http.StatusInternalServerError, errCodeInternal, message)
}
