package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/dentara/clinic-api/internal/middleware"
	apperrors "github.com/dentara/clinic-api/pkg/errors"
)

type Response struct {
	Status  string      `json:"status"`
	Message string      `json:"message,omitempty"`
	Data    interface{} `json:"data,omitempty"`
}

func NewSuccessResponse(data interface{}) *Response {
	return &Response{
		Status: "success",
		Data:   data,
	}
}

func NewErrorResponse(message string) *Response {
	return &Response{
		Status:  "error",
		Message: message,
	}
}

// Error writes the error envelope for a service failure. Application
// errors carry their own HTTP status; everything else is a 500 with the
// detail left to the error middleware's log line.
func Error(c *gin.Context, err error) {
	c.Error(err)

	if appErr, ok := apperrors.As(err); ok {
		c.JSON(appErr.StatusCode(), NewErrorResponse(appErr.Message))
		return
	}
	c.JSON(http.StatusInternalServerError, NewErrorResponse("internal server error"))
}

// BindError writes the envelope for a request binding failure.
func BindError(c *gin.Context, err error) {
	c.JSON(http.StatusBadRequest, NewErrorResponse(middleware.ValidationMessage(err)))
}
