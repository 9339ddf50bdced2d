package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	apperrors "github.com/dentara/clinic-api/pkg/errors"
)

type ErrorResponse struct {
	Code      int    `json:"code"`
	Message   string `json:"message"`
	RequestID string `json:"request_id,omitempty"`
}

// ErrorHandler turns errors attached to the gin context into the JSON
// error envelope. Application errors map to their HTTP status; anything
// else is a 500 with the detail kept out of the response body.
func ErrorHandler(logger zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if len(c.Errors) == 0 {
			return
		}

		requestID := c.GetString(ContextRequestID)
		lastErr := c.Errors.Last().Err

		status := http.StatusInternalServerError
		message := "internal server error"

		if appErr, ok := apperrors.As(lastErr); ok {
			status = appErr.StatusCode()
			message = appErr.Message
		}

		evt := logger.Error()
		if status < http.StatusInternalServerError {
			evt = logger.Warn()
		}
		evt.Err(lastErr).
			Str("request_id", requestID).
			Str("path", c.Request.URL.Path).
			Str("method", c.Request.Method).
			Int("status", status).
			Msg("request failed")

		// Handlers usually write their own error envelope; this is the
		// backstop for errors attached without a response.
		if !c.Writer.Written() {
			c.JSON(status, ErrorResponse{
				Code:      status,
				Message:   message,
				RequestID: requestID,
			})
		}
	}
}
