package handler

import (
	"context"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/optifire/inspection-api/internal/dto"
	"github.com/optifire/inspection-api/internal/models"
	appErrors "github.com/optifire/inspection-api/pkg/errors"
	"github.com/optifire/inspection-api/pkg/response"
)

type requestService interface {
	Submit(ctx context.Context, req dto.SubmitRequestPayload, actor *models.JWTClaims) (*models.ServiceRequest, error)
	List(ctx context.Context, query dto.RequestQuery, actor *models.JWTClaims) ([]models.ServiceRequest, error)
	Get(ctx context.Context, id string, actor *models.JWTClaims) (*models.ServiceRequest, error)
	Quote(ctx context.Context, id string, req dto.QuoteRequestPayload, actor *models.JWTClaims) (*models.ServiceRequest, error)
	Reject(ctx context.Context, id string, req dto.RejectRequestPayload, actor *models.JWTClaims) (*models.ServiceRequest, error)
	AcceptQuote(ctx context.Context, id string, actor *models.JWTClaims) (*models.WorkOrder, error)
	RejectQuote(ctx context.Context, id string, req dto.RejectQuotePayload, actor *models.JWTClaims) (*models.ServiceRequest, error)
	Annul(ctx context.Context, id string, actor *models.JWTClaims) (*models.ServiceRequest, error)
	ExportCSV(ctx context.Context, query dto.RequestQuery, actor *models.JWTClaims) ([]byte, error)
}

// RequestHandler exposes REST endpoints for the service request lifecycle.
type RequestHandler struct {
	service requestService
}

// NewRequestHandler constructs the handler.
func NewRequestHandler(service requestService) *RequestHandler {
	return &RequestHandler{service: service}
}

// Create godoc
// @Summary Submit a service request
// @Tags Requests
// @Accept json
// @Produce json
// @Param payload body dto.SubmitRequestPayload true "Request payload"
// @Success 201 {object} response.Envelope
// @Router /requests [post]
func (h *RequestHandler) Create(c *gin.Context) {
	var req dto.SubmitRequestPayload
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid request payload"))
		return
	}
	request, err := h.service.Submit(c.Request.Context(), req, claimsFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, request)
}

// List godoc
// @Summary List service requests
// @Tags Requests
// @Produce json
// @Param status query string false "Comma separated statuses"
// @Success 200 {object} response.Envelope
// @Router /requests [get]
func (h *RequestHandler) List(c *gin.Context) {
	query := dto.RequestQuery{
		Limit:  intQuery(c, "limit"),
		Offset: intQuery(c, "offset"),
	}
	if rawStatus := c.Query("status"); rawStatus != "" {
		for _, part := range strings.Split(rawStatus, ",") {
			part = strings.ToUpper(strings.TrimSpace(part))
			if part == "" {
				continue
			}
			query.Status = append(query.Status, models.RequestStatus(part))
		}
	}
	requests, err := h.service.List(c.Request.Context(), query, claimsFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, requests, nil)
}

// Get godoc
// @Summary Get service request detail
// @Tags Requests
// @Produce json
// @Param id path string true "Request ID"
// @Success 200 {object} response.Envelope
// @Router /requests/{id} [get]
func (h *RequestHandler) Get(c *gin.Context) {
	request, err := h.service.Get(c.Request.Context(), c.Param("id"), claimsFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, request, nil)
}

// Quote godoc
// @Summary Quote a pending request with technician and template pre-assignment
// @Tags Requests
// @Accept json
// @Produce json
// @Param id path string true "Request ID"
// @Param payload body dto.QuoteRequestPayload true "Quote payload"
// @Success 200 {object} response.Envelope
// @Router /requests/{id}/quote [post]
func (h *RequestHandler) Quote(c *gin.Context) {
	var req dto.QuoteRequestPayload
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid quote payload"))
		return
	}
	request, err := h.service.Quote(c.Request.Context(), c.Param("id"), req, claimsFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, request, nil)
}

// Reject godoc
// @Summary Reject a pending or quoted request with a reason
// @Tags Requests
// @Accept json
// @Produce json
// @Param id path string true "Request ID"
// @Param payload body dto.RejectRequestPayload true "Rejection payload"
// @Success 200 {object} response.Envelope
// @Router /requests/{id}/reject [post]
func (h *RequestHandler) Reject(c *gin.Context) {
	var req dto.RejectRequestPayload
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid rejection payload"))
		return
	}
	request, err := h.service.Reject(c.Request.Context(), c.Param("id"), req, claimsFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, request, nil)
}

// AcceptQuote godoc
// @Summary Accept a quote, expanding the request into a work order
// @Tags Requests
// @Produce json
// @Param id path string true "Request ID"
// @Success 201 {object} response.Envelope
// @Router /requests/{id}/accept [post]
func (h *RequestHandler) AcceptQuote(c *gin.Context) {
	order, err := h.service.AcceptQuote(c.Request.Context(), c.Param("id"), claimsFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, order)
}

// RejectQuote godoc
// @Summary Decline a staged quote
// @Tags Requests
// @Accept json
// @Produce json
// @Param id path string true "Request ID"
// @Success 200 {object} response.Envelope
// @Router /requests/{id}/reject-quote [post]
func (h *RequestHandler) RejectQuote(c *gin.Context) {
	var req dto.RejectQuotePayload
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid payload"))
			return
		}
	}
	request, err := h.service.RejectQuote(c.Request.Context(), c.Param("id"), req, claimsFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, request, nil)
}

// Annul godoc
// @Summary Annul a request that has not been quoted yet
// @Tags Requests
// @Produce json
// @Param id path string true "Request ID"
// @Success 200 {object} response.Envelope
// @Router /requests/{id}/annul [post]
func (h *RequestHandler) Annul(c *gin.Context) {
	request, err := h.service.Annul(c.Request.Context(), c.Param("id"), claimsFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, request, nil)
}

// Export godoc
// @Summary Export the request history as CSV
// @Tags Requests
// @Produce text/csv
// @Param status query string false "Comma separated statuses"
// @Success 200 {file} file
// @Security BearerAuth
// @Router /requests/export [get]
func (h *RequestHandler) Export(c *gin.Context) {
	query := dto.RequestQuery{}
	if rawStatus := c.Query("status"); rawStatus != "" {
		for _, part := range strings.Split(rawStatus, ",") {
			part = strings.ToUpper(strings.TrimSpace(part))
			if part == "" {
				continue
			}
			query.Status = append(query.Status, models.RequestStatus(part))
		}
	}
	data, err := h.service.ExportCSV(c.Request.Context(), query, claimsFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	c.Header("Content-Disposition", "attachment; filename=requests.csv")
	c.Data(http.StatusOK, "text/csv", data)
}

func intQuery(c *gin.Context, key string) int {
	value, err := strconv.Atoi(c.Query(key))
	if err != nil {
		return 0
	}
	return value
}
