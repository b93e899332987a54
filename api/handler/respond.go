package handler

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/use-agent/tukibridge/models"
	"github.com/use-agent/tukibridge/store"
)

const msgServerError = "Lỗi server, vui lòng thử lại sau."

// respondError writes a structured JSON error response.
func respondError(c *gin.Context, status int, code, message string) {
	c.JSON(status, models.NewErrorResponse(code, message))
}

// respondStoreError maps store sentinel errors to HTTP responses.
func respondStoreError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, store.ErrNotFound):
		respondError(c, http.StatusNotFound, models.ErrCodeNotFound, "Khách hàng không tồn tại.")
	case errors.Is(err, store.ErrDuplicateEmail):
		respondError(c, http.StatusConflict, models.ErrCodeConflict, "Email đã tồn tại trong hệ thống.")
	case errors.Is(err, store.ErrInvalidEmail):
		respondError(c, http.StatusBadRequest, models.ErrCodeInvalidInput, "Email không hợp lệ.")
	case errors.Is(err, store.ErrPhoneRequired):
		respondError(c, http.StatusBadRequest, models.ErrCodeInvalidInput, "Số điện thoại không được để trống.")
	case errors.Is(err, store.ErrInvalidExpiry):
		respondError(c, http.StatusBadRequest, models.ErrCodeInvalidInput, "Ngày hết hạn phải có dạng YYYY-MM-DD.")
	default:
		slog.Error("store operation failed", "path", c.FullPath(), "error", err)
		respondError(c, http.StatusInternalServerError, models.ErrCodeInternal, msgServerError)
	}
}

// mapFailureToStatus translates fetch failure kinds to HTTP status codes.
func mapFailureToStatus(k models.FailureKind) int {
	switch k {
	case models.FailureNotFound:
		return http.StatusNotFound // 404
	case models.FailureConfiguration:
		return http.StatusServiceUnavailable // 503
	default:
		return http.StatusBadGateway // 502
	}
}

// mapFailureToCode translates fetch failure kinds to API error codes.
func mapFailureToCode(k models.FailureKind) string {
	switch k {
	case models.FailureNotFound:
		return models.ErrCodeUpstreamNotFound
	case models.FailureConfiguration:
		return models.ErrCodeConfiguration
	case models.FailureNavigation:
		return models.ErrCodeNavigation
	case models.FailureSubmission:
		return models.ErrCodeSubmission
	default:
		return models.ErrCodeUpstream
	}
}
