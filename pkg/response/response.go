package response

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	apperrors "streamchat-backend/pkg/errors"
)

// Response represents standard API response envelope
type Response struct {
	Success bool         `json:"success"`
	Data    interface{}  `json:"data,omitempty"`
	Error   *ErrorDetail `json:"error,omitempty"`
	Meta    Meta         `json:"meta"`
}

// ErrorDetail contains error information
type ErrorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}

// Meta contains response metadata
type Meta struct {
	Timestamp time.Time `json:"timestamp"`
	RequestID string    `json:"request_id,omitempty"`
}

// Success sends a successful response
func Success(c *gin.Context, statusCode int, data interface{}) {
	c.JSON(statusCode, Response{
		Success: true,
		Data:    data,
		Meta:    meta(c),
	})
}

// Error sends an error response
func Error(c *gin.Context, statusCode int, errorCode, errorMessage string) {
	c.JSON(statusCode, Response{
		Success: false,
		Error: &ErrorDetail{
			Code:    errorCode,
			Message: errorMessage,
		},
		Meta: meta(c),
	})
}

// FromError renders any error. AppErrors keep their status, code and details;
// everything else is reported as an opaque 500.
func FromError(c *gin.Context, err error) {
	appErr := apperrors.GetAppError(err)
	message := appErr.Message
	if !apperrors.IsAppError(err) {
		message = "Internal server error"
	}

	c.JSON(appErr.StatusCode, Response{
		Success: false,
		Error: &ErrorDetail{
			Code:    string(appErr.Code),
			Message: message,
			Details: appErr.Details,
		},
		Meta: meta(c),
	})
}

// ValidationError sends a validation error response (400)
func ValidationError(c *gin.Context, message string) {
	Error(c, http.StatusBadRequest, string(apperrors.ErrCodeValidation), message)
}

// Unauthorized sends unauthorized error (401)
func Unauthorized(c *gin.Context, message string) {
	Error(c, http.StatusUnauthorized, string(apperrors.ErrCodeUnauthorized), message)
}

// TooManyRequests sends rate limit error (429)
func TooManyRequests(c *gin.Context, message string) {
	Error(c, http.StatusTooManyRequests, string(apperrors.ErrCodeRateLimitExceeded), message)
}

// InternalError sends internal server error (500)
func InternalError(c *gin.Context, message string) {
	Error(c, http.StatusInternalServerError, string(apperrors.ErrCodeInternal), message)
}

func meta(c *gin.Context) Meta {
	return Meta{
		Timestamp: time.Now().UTC(),
		RequestID: c.GetString("request_id"),
	}
}
