package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

const (
	statusSuccess = "Success"
	statusFailure = "Failure"
)

// StatusResponse is the envelope every users route answers with.
type StatusResponse struct {
	Status  string      `json:"status"`
	Message interface{} `json:"message"`
}

type APIError struct {
	Code      string      `json:"code"`
	Message   string      `json:"message"`
	RequestID string      `json:"requestId,omitempty"`
	Details   interface{} `json:"details,omitempty"`
}

func requestIDFrom(ctx *gin.Context) string {
	v, ok := ctx.Get("request_id")

	if ok {
		s, ok := v.(string)
		if ok && s != "" {
			return s
		}
	}

	// fallback header
	return ctx.GetHeader("X-Request-Id")
}

func RespondSuccess(ctx *gin.Context, status int, message interface{}) {
	ctx.JSON(status, StatusResponse{Status: statusSuccess, Message: message})
}

func RespondFailure(ctx *gin.Context, status int, message string) {
	ctx.JSON(status, StatusResponse{Status: statusFailure, Message: message})
}

func RespondError(ctx *gin.Context, status int, code, message string, details interface{}) {
	ctx.JSON(status, gin.H{
		"error": APIError{
			Code:      code,
			Message:   message,
			RequestID: requestIDFrom(ctx),
			Details:   details,
		},
	})
}

func RespondBadRequest(ctx *gin.Context, message string, details interface{}) {
	RespondError(ctx, http.StatusBadRequest, "invalid_request", message, details)
}

func RespondInternal(ctx *gin.Context, message string) {
	RespondError(ctx, http.StatusInternalServerError, "internal_error", message, nil)
}

func RespondServiceUnavailable(ctx *gin.Context, message string, details interface{}) {
	RespondError(ctx, http.StatusServiceUnavailable, "not_ready", message, details)
}
