package server

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	capturedomain "github.com/smallbiznis/printfleet/internal/capture/domain"
	connectordomain "github.com/smallbiznis/printfleet/internal/connector/domain"
	integrationdomain "github.com/smallbiznis/printfleet/internal/integration/domain"
	printerdomain "github.com/smallbiznis/printfleet/internal/printer/domain"
	printjobdomain "github.com/smallbiznis/printfleet/internal/printjob/domain"
	"github.com/smallbiznis/printfleet/internal/scheduler"
	webhookdomain "github.com/smallbiznis/printfleet/internal/webhook/domain"
	"github.com/smallbiznis/printfleet/pkg/db/pagination"
	"gorm.io/gorm"
)

// ValidationError is a request level rejection of one field.
type ValidationError struct {
	Field   string
	Code    string
	Message string
}

func (v *ValidationError) Error() string {
	return v.Code
}

func (v *ValidationError) FieldErrors() map[string]string {
	return map[string]string{v.Field: v.Message}
}

// fieldErrors is implemented by validation errors of every layer.
type fieldErrors interface {
	FieldErrors() map[string]string
}

type errorPayload struct {
	Code    string            `json:"code"`
	Message string            `json:"message"`
	Fields  map[string]string `json:"fields,omitempty"`
}

type errorResponse struct {
	Error errorPayload `json:"error"`
}

var (
	ErrNotFound       = errors.New("not_found")
	ErrInvalidRequest = errors.New("invalid_request")
	ErrRateLimited    = errors.New("rate_limited")
)

func ErrorHandlingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if c.Writer.Written() {
			return
		}

		lastErr := c.Errors.Last()
		if lastErr == nil {
			return
		}

		status, payload := mapError(lastErr.Err)
		c.Header("Content-Type", "application/json")
		c.AbortWithStatusJSON(status, errorResponse{Error: payload})
	}
}

func AbortWithError(c *gin.Context, err error) {
	if err == nil {
		return
	}
	_ = c.Error(err)
	c.Abort()
}

func invalidRequestError() error {
	return newValidationError("request", "invalid_request", "invalid request")
}

func newValidationError(field, code, message string) error {
	return &ValidationError{Field: field, Code: code, Message: message}
}

func mapError(err error) (int, errorPayload) {
	if err == nil {
		return http.StatusInternalServerError, errorPayload{Code: "internal_error", Message: "internal server error"}
	}

	var fe fieldErrors
	if errors.As(err, &fe) {
		return http.StatusBadRequest, errorPayload{
			Code:    "invalid_request",
			Message: "invalid request",
			Fields:  fe.FieldErrors(),
		}
	}

	if field, ok := validationField(err); ok {
		payload := errorPayload{Code: "invalid_request", Message: "invalid request"}
		if field != "" {
			payload.Fields = map[string]string{field: "invalid value"}
		}
		return http.StatusBadRequest, payload
	}

	switch {
	case errors.Is(err, capturedomain.ErrUserNotFound):
		return http.StatusNotFound, errorPayload{Code: "user_not_found", Message: "user not found"}
	case errors.Is(err, capturedomain.ErrQuotaNotFound):
		return http.StatusNotFound, errorPayload{Code: "quota_not_found", Message: "quota not found"}
	case isNotFoundError(err):
		return http.StatusNotFound, errorPayload{Code: "not_found", Message: "not found"}
	case errors.Is(err, capturedomain.ErrDuplicateCapture):
		return http.StatusConflict, errorPayload{Code: "duplicate_capture", Message: "capture already recorded"}
	case errors.Is(err, integrationdomain.ErrDuplicateIntegration):
		return http.StatusConflict, errorPayload{Code: "duplicate_integration", Message: "integration already exists"}
	case errors.Is(err, scheduler.ErrNotRunning):
		return http.StatusConflict, errorPayload{Code: "scheduler_not_running", Message: "scheduler is not running"}
	case errors.Is(err, capturedomain.ErrQuotaExceeded):
		return http.StatusUnprocessableEntity, errorPayload{Code: "quota_exceeded", Message: "quota exceeded"}
	case errors.Is(err, connectordomain.ErrUnsupportedProtocol):
		return http.StatusBadRequest, errorPayload{Code: "unsupported_protocol", Message: "unsupported protocol"}
	case errors.Is(err, connectordomain.ErrConnectorUnavailable):
		return http.StatusBadGateway, errorPayload{Code: "connector_unavailable", Message: "printer unreachable"}
	case errors.Is(err, webhookdomain.ErrSignatureInvalid):
		return http.StatusUnauthorized, errorPayload{Code: "signature_invalid", Message: "signature invalid"}
	case errors.Is(err, ErrRateLimited):
		return http.StatusTooManyRequests, errorPayload{Code: "rate_limited", Message: "too many requests"}
	default:
		return http.StatusInternalServerError, errorPayload{Code: "internal_error", Message: "internal server error"}
	}
}

var requestSentinels = []error{
	ErrInvalidRequest,
	capturedomain.ErrInvalidCapture,
	integrationdomain.ErrInvalidConfig,
	scheduler.ErrInvalidConfig,
	pagination.ErrInvalidPageToken,
	webhookdomain.ErrInvalidPayload,
}

var fieldSentinels = []error{
	integrationdomain.ErrInvalidType,
	integrationdomain.ErrInvalidAuthType,
	integrationdomain.ErrInvalidEndpoint,
	integrationdomain.ErrInvalidCredentials,
	integrationdomain.ErrInvalidPollInterval,
	integrationdomain.ErrInvalidPrinter,
	printerdomain.ErrInvalidName,
	printerdomain.ErrInvalidStatus,
	printjobdomain.ErrInvalidDepartment,
	printjobdomain.ErrInvalidRate,
}

// validationField reports whether err is a domain validation sentinel and
// which field it names.
func validationField(err error) (string, bool) {
	for _, target := range fieldSentinels {
		if errors.Is(err, target) {
			return strings.TrimPrefix(target.Error(), "invalid_"), true
		}
	}
	for _, target := range requestSentinels {
		if errors.Is(err, target) {
			return "", true
		}
	}
	return "", false
}

func isNotFoundError(err error) bool {
	switch {
	case errors.Is(err, ErrNotFound),
		errors.Is(err, capturedomain.ErrNotFound),
		errors.Is(err, integrationdomain.ErrNotFound),
		errors.Is(err, printerdomain.ErrNotFound),
		errors.Is(err, printjobdomain.ErrNotFound),
		errors.Is(err, gorm.ErrRecordNotFound):
		return true
	default:
		return false
	}
}

// classifyErrorForLog feeds the request logger the same code the client sees.
func classifyErrorForLog(err error) (string, string) {
	status, payload := mapError(err)
	switch {
	case status >= http.StatusInternalServerError:
		return "server", payload.Code
	default:
		return "client", payload.Code
	}
}
