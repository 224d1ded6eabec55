package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/optifire/inspection-api/internal/dto"
	"github.com/optifire/inspection-api/internal/models"
	appErrors "github.com/optifire/inspection-api/pkg/errors"
	"github.com/optifire/inspection-api/pkg/response"
)

type notificationService interface {
	List(ctx context.Context, actor *models.JWTClaims, unreadOnly bool, limit, offset int) ([]models.Notification, error)
	CountUnread(ctx context.Context, actor *models.JWTClaims) (int, error)
	MarkRead(ctx context.Context, req dto.MarkReadPayload, actor *models.JWTClaims) error
}

// NotificationHandler exposes the in-app notification feed.
type NotificationHandler struct {
	service notificationService
}

// NewNotificationHandler constructs the handler.
func NewNotificationHandler(service notificationService) *NotificationHandler {
	return &NotificationHandler{service: service}
}

// List godoc
// @Summary List the caller's notifications
// @Tags Notifications
// @Produce json
// @Param unread_only query bool false "Only unread notifications"
// @Success 200 {object} response.Envelope
// @Security BearerAuth
// @Router /notifications [get]
func (h *NotificationHandler) List(c *gin.Context) {
	unreadOnly := c.Query("unread_only") == "true"
	notifications, err := h.service.List(c.Request.Context(), claimsFromContext(c), unreadOnly, intQuery(c, "limit"), intQuery(c, "offset"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, notifications, nil)
}

// CountUnread godoc
// @Summary Count the caller's unread notifications
// @Tags Notifications
// @Produce json
// @Success 200 {object} response.Envelope
// @Security BearerAuth
// @Router /notifications/unread-count [get]
func (h *NotificationHandler) CountUnread(c *gin.Context) {
	count, err := h.service.CountUnread(c.Request.Context(), claimsFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, gin.H{"count": count}, nil)
}

// MarkRead godoc
// @Summary Mark notifications as read
// @Tags Notifications
// @Accept json
// @Produce json
// @Param payload body dto.MarkReadPayload true "IDs to mark, or mark_all"
// @Success 204
// @Security BearerAuth
// @Router /notifications/read [post]
func (h *NotificationHandler) MarkRead(c *gin.Context) {
	var req dto.MarkReadPayload
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid payload"))
		return
	}
	if err := h.service.MarkRead(c.Request.Context(), req, claimsFromContext(c)); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}
