package notification

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/dentara/clinic-api/internal/handler"
	"github.com/dentara/clinic-api/internal/model"
	"github.com/dentara/clinic-api/internal/service/notification"
	apperrors "github.com/dentara/clinic-api/pkg/errors"
)

type Handler struct {
	service notification.Service
}

func NewHandler(service notification.Service) *Handler {
	return &Handler{service: service}
}

func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	notifications := r.Group("/notifications")
	{
		notifications.GET("", h.List)
		notifications.GET("/:id", h.Get)
		notifications.POST("/:id/read", h.MarkRead)
		notifications.DELETE("/:id", h.Delete)
	}
}

func (h *Handler) Get(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		handler.Error(c, apperrors.Validation("invalid notification id"))
		return
	}

	n, err := h.service.Get(c.Request.Context(), id)
	if err != nil {
		handler.Error(c, err)
		return
	}
	c.JSON(http.StatusOK, handler.NewSuccessResponse(n))
}

func (h *Handler) List(c *gin.Context) {
	rid, err := uuid.Parse(c.Query("recipient_id"))
	if err != nil {
		handler.Error(c, apperrors.Validation("recipient_id is required"))
		return
	}

	filters := &model.NotificationFilters{
		RecipientID: rid,
		Category:    model.NotificationCategory(c.Query("category")),
		UnreadOnly:  c.Query("unread") == "true",
	}

	notifications, err := h.service.List(c.Request.Context(), filters)
	if err != nil {
		handler.Error(c, err)
		return
	}
	c.JSON(http.StatusOK, handler.NewSuccessResponse(notifications))
}

func (h *Handler) MarkRead(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		handler.Error(c, apperrors.Validation("invalid notification id"))
		return
	}
	rid, err := uuid.Parse(c.Query("recipient_id"))
	if err != nil {
		handler.Error(c, apperrors.Validation("recipient_id is required"))
		return
	}

	if err := h.service.MarkRead(c.Request.Context(), id, rid); err != nil {
		handler.Error(c, err)
		return
	}
	c.JSON(http.StatusOK, handler.NewSuccessResponse(gin.H{"read": true}))
}

func (h *Handler) Delete(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		handler.Error(c, apperrors.Validation("invalid notification id"))
		return
	}
	rid, err := uuid.Parse(c.Query("recipient_id"))
	if err != nil {
		handler.Error(c, apperrors.Validation("recipient_id is required"))
		return
	}

	if err := h.service.Delete(c.Request.Context(), id, rid); err != nil {
		handler.Error(c, err)
		return
	}
	c.JSON(http.StatusOK, handler.NewSuccessResponse(gin.H{"deleted": true}))
}
