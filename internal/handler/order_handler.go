package handler

import (
	"context"
	"io"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/optifire/inspection-api/internal/dto"
	"github.com/optifire/inspection-api/internal/models"
	"github.com/optifire/inspection-api/internal/service"
	appErrors "github.com/optifire/inspection-api/pkg/errors"
	"github.com/optifire/inspection-api/pkg/response"
)

type orderService interface {
	List(ctx context.Context, filter models.OrderFilter, actor *models.JWTClaims) ([]models.WorkOrder, error)
	Get(ctx context.Context, id string, actor *models.JWTClaims) (*models.WorkOrder, error)
	SaveProgress(ctx context.Context, id string, req dto.SaveProgressPayload, actor *models.JWTClaims) (*models.WorkOrder, error)
	Finish(ctx context.Context, id string, req dto.FinishOrderPayload, actor *models.JWTClaims) (*models.WorkOrder, error)
	AttachEvidence(ctx context.Context, orderID, taskID, filename string, content io.Reader, actor *models.JWTClaims) (*models.OrderTask, error)
	ReportLink(ctx context.Context, id string, actor *models.JWTClaims) (*service.ReportLink, error)
	OpenReport(ctx context.Context, token string) (*service.ReportFile, error)
}

// OrderHandler exposes REST endpoints for work order execution.
type OrderHandler struct {
	service     orderService
	maxEvidence int64
}

// NewOrderHandler constructs the handler. Uploads beyond maxEvidence bytes
// are rejected before they reach storage.
func NewOrderHandler(service orderService, maxEvidence int64) *OrderHandler {
	if maxEvidence <= 0 {
		maxEvidence = 10 << 20
	}
	return &OrderHandler{service: service, maxEvidence: maxEvidence}
}

// List godoc
// @Summary List work orders
// @Tags Orders
// @Produce json
// @Param status query string false "Comma separated statuses"
// @Success 200 {object} response.Envelope
// @Security BearerAuth
// @Router /orders [get]
func (h *OrderHandler) List(c *gin.Context) {
	filter := models.OrderFilter{
		Limit:  intQuery(c, "limit"),
		Offset: intQuery(c, "offset"),
	}
	if rawStatus := c.Query("status"); rawStatus != "" {
		for _, part := range strings.Split(rawStatus, ",") {
			part = strings.ToUpper(strings.TrimSpace(part))
			if part == "" {
				continue
			}
			filter.Status = append(filter.Status, models.OrderStatus(part))
		}
	}
	orders, err := h.service.List(c.Request.Context(), filter, claimsFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, orders, nil)
}

// Get godoc
// @Summary Get a work order with its checklist
// @Tags Orders
// @Produce json
// @Param id path string true "Order ID"
// @Success 200 {object} response.Envelope
// @Security BearerAuth
// @Router /orders/{id} [get]
func (h *OrderHandler) Get(c *gin.Context) {
	order, err := h.service.Get(c.Request.Context(), c.Param("id"), claimsFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, order, nil)
}

// SaveProgress godoc
// @Summary Save partial checklist progress
// @Tags Orders
// @Accept json
// @Produce json
// @Param id path string true "Order ID"
// @Param payload body dto.SaveProgressPayload true "Task results"
// @Success 200 {object} response.Envelope
// @Security BearerAuth
// @Router /orders/{id}/progress [put]
func (h *OrderHandler) SaveProgress(c *gin.Context) {
	var req dto.SaveProgressPayload
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid progress payload"))
		return
	}
	order, err := h.service.SaveProgress(c.Request.Context(), c.Param("id"), req, claimsFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, order, nil)
}

// Finish godoc
// @Summary Finish a work order, closing the parent request
// @Tags Orders
// @Accept json
// @Produce json
// @Param id path string true "Order ID"
// @Param payload body dto.FinishOrderPayload true "Final task results"
// @Success 200 {object} response.Envelope
// @Security BearerAuth
// @Router /orders/{id}/finish [post]
func (h *OrderHandler) Finish(c *gin.Context) {
	var req dto.FinishOrderPayload
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid finish payload"))
		return
	}
	order, err := h.service.Finish(c.Request.Context(), c.Param("id"), req, claimsFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, order, nil)
}

// AttachEvidence godoc
// @Summary Attach an evidence file to a checklist task
// @Tags Orders
// @Accept multipart/form-data
// @Produce json
// @Param id path string true "Order ID"
// @Param taskId path string true "Task ID"
// @Param file formData file true "Evidence file"
// @Success 200 {object} response.Envelope
// @Security BearerAuth
// @Router /orders/{id}/tasks/{taskId}/evidence [post]
func (h *OrderHandler) AttachEvidence(c *gin.Context) {
	file, err := c.FormFile("file")
	if err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "evidence file is required"))
		return
	}
	if file.Size > h.maxEvidence {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "evidence file exceeds the size limit"))
		return
	}
	src, err := file.Open()
	if err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to read upload"))
		return
	}
	defer src.Close()

	task, err := h.service.AttachEvidence(c.Request.Context(), c.Param("id"), c.Param("taskId"), file.Filename, src, claimsFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, task, nil)
}

// ReportLink godoc
// @Summary Issue a signed download link for the closing report
// @Tags Orders
// @Produce json
// @Param id path string true "Order ID"
// @Success 200 {object} response.Envelope
// @Security BearerAuth
// @Router /orders/{id}/report [get]
func (h *OrderHandler) ReportLink(c *gin.Context) {
	link, err := h.service.ReportLink(c.Request.Context(), c.Param("id"), claimsFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, link, nil)
}

// DownloadReport godoc
// @Summary Download a closing report with a signed token
// @Tags Orders
// @Produce application/pdf
// @Param token path string true "Signed download token"
// @Success 200 {file} file
// @Router /downloads/reports/{token} [get]
func (h *OrderHandler) DownloadReport(c *gin.Context) {
	file, err := h.service.OpenReport(c.Request.Context(), c.Param("token"))
	if err != nil {
		response.Error(c, err)
		return
	}
	defer file.Content.Close()

	c.Header("Content-Disposition", "attachment; filename="+file.Filename)
	c.Header("Content-Type", "application/pdf")
	c.Status(http.StatusOK)
	if _, err := io.Copy(c.Writer, file.Content); err != nil {
		_ = c.Error(err)
	}
}
