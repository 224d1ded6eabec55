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

type templateService interface {
	Create(ctx context.Context, req dto.CreateTemplatePayload, actor *models.JWTClaims) (*models.Template, error)
	Get(ctx context.Context, id string, actor *models.JWTClaims) (*models.Template, error)
	List(ctx context.Context, actor *models.JWTClaims) ([]models.Template, error)
	Update(ctx context.Context, id string, req dto.UpdateTemplatePayload, actor *models.JWTClaims) (*models.Template, error)
	Delete(ctx context.Context, id string, actor *models.JWTClaims) error
}

// TemplateHandler exposes CRUD endpoints for checklist templates.
type TemplateHandler struct {
	service templateService
}

// NewTemplateHandler constructs the handler.
func NewTemplateHandler(service templateService) *TemplateHandler {
	return &TemplateHandler{service: service}
}

// Create godoc
// @Summary Create a checklist template
// @Tags Templates
// @Accept json
// @Produce json
// @Param payload body dto.CreateTemplatePayload true "Template payload"
// @Success 201 {object} response.Envelope
// @Security BearerAuth
// @Router /templates [post]
func (h *TemplateHandler) Create(c *gin.Context) {
	var req dto.CreateTemplatePayload
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid template payload"))
		return
	}
	template, err := h.service.Create(c.Request.Context(), req, claimsFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, template)
}

// List godoc
// @Summary List checklist templates
// @Tags Templates
// @Produce json
// @Success 200 {object} response.Envelope
// @Security BearerAuth
// @Router /templates [get]
func (h *TemplateHandler) List(c *gin.Context) {
	templates, err := h.service.List(c.Request.Context(), claimsFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, templates, nil)
}

// Get godoc
// @Summary Get a template with its tasks
// @Tags Templates
// @Produce json
// @Param id path string true "Template ID"
// @Success 200 {object} response.Envelope
// @Security BearerAuth
// @Router /templates/{id} [get]
func (h *TemplateHandler) Get(c *gin.Context) {
	template, err := h.service.Get(c.Request.Context(), c.Param("id"), claimsFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, template, nil)
}

// Update godoc
// @Summary Replace a template's metadata and tasks
// @Tags Templates
// @Accept json
// @Produce json
// @Param id path string true "Template ID"
// @Param payload body dto.UpdateTemplatePayload true "Template payload"
// @Success 200 {object} response.Envelope
// @Security BearerAuth
// @Router /templates/{id} [put]
func (h *TemplateHandler) Update(c *gin.Context) {
	var req dto.UpdateTemplatePayload
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid template payload"))
		return
	}
	template, err := h.service.Update(c.Request.Context(), c.Param("id"), req, claimsFromContext(c))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, template, nil)
}

// Delete godoc
// @Summary Delete an unreferenced template
// @Tags Templates
// @Produce json
// @Param id path string true "Template ID"
// @Success 204
// @Security BearerAuth
// @Router /templates/{id} [delete]
func (h *TemplateHandler) Delete(c *gin.Context) {
	if err := h.service.Delete(c.Request.Context(), c.Param("id"), claimsFromContext(c)); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}
