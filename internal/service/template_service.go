package service

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/optifire/inspection-api/internal/dto"
	"github.com/optifire/inspection-api/internal/models"
	appErrors "github.com/optifire/inspection-api/pkg/errors"
)

type templateStore interface {
	Create(ctx context.Context, template *models.Template) error
	GetByID(ctx context.Context, id string) (*models.Template, error)
	List(ctx context.Context) ([]models.Template, error)
	Update(ctx context.Context, template *models.Template) error
	Delete(ctx context.Context, id string) error
	CountReferences(ctx context.Context, id string) (int, error)
}

// TemplateService manages the checklist template catalog. Administrator only;
// the role gate lives here so every caller goes through the same check.
type TemplateService struct {
	templates templateStore
	validator *validator.Validate
	logger    *zap.Logger
}

// NewTemplateService constructs the service.
func NewTemplateService(templates templateStore, validate *validator.Validate, logger *zap.Logger) *TemplateService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if validate == nil {
		validate = validator.New()
	}
	return &TemplateService{templates: templates, validator: validate, logger: logger}
}

// Create stores a new template with its ordered tasks.
func (s *TemplateService) Create(ctx context.Context, req dto.CreateTemplatePayload, actor *models.JWTClaims) (*models.Template, error) {
	if err := s.requireAdmin(actor); err != nil {
		return nil, err
	}
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid template payload")
	}

	template := &models.Template{
		Name:        strings.TrimSpace(req.Name),
		Description: req.Description,
		Tasks:       buildTemplateTasks(req.Tasks),
	}
	if err := s.templates.Create(ctx, template); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create template")
	}
	return template, nil
}

// Get returns a template with its tasks.
func (s *TemplateService) Get(ctx context.Context, id string, actor *models.JWTClaims) (*models.Template, error) {
	if err := s.requireAdmin(actor); err != nil {
		return nil, err
	}
	template, err := s.templates.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.ErrNotFound
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load template")
	}
	return template, nil
}

// List returns the catalog without task bodies.
func (s *TemplateService) List(ctx context.Context, actor *models.JWTClaims) ([]models.Template, error) {
	if err := s.requireAdmin(actor); err != nil {
		return nil, err
	}
	templates, err := s.templates.List(ctx)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list templates")
	}
	return templates, nil
}

// Update replaces a template's metadata and task list. Work orders expanded
// from earlier versions keep their copied tasks.
func (s *TemplateService) Update(ctx context.Context, id string, req dto.UpdateTemplatePayload, actor *models.JWTClaims) (*models.Template, error) {
	if err := s.requireAdmin(actor); err != nil {
		return nil, err
	}
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid template payload")
	}

	template, err := s.templates.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.ErrNotFound
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load template")
	}

	template.Name = strings.TrimSpace(req.Name)
	template.Description = req.Description
	template.Tasks = buildTemplateTasks(req.Tasks)
	if err := s.templates.Update(ctx, template); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update template")
	}
	return template, nil
}

// Delete removes an unreferenced template. A template still pointed at by a
// request or work order is refused rather than cascaded.
func (s *TemplateService) Delete(ctx context.Context, id string, actor *models.JWTClaims) error {
	if err := s.requireAdmin(actor); err != nil {
		return err
	}
	if _, err := s.templates.GetByID(ctx, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.ErrNotFound
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load template")
	}

	references, err := s.templates.CountReferences(ctx, id)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check template references")
	}
	if references > 0 {
		return appErrors.Clone(appErrors.ErrIntegrity, "template is still referenced by requests or work orders")
	}

	if err := s.templates.Delete(ctx, id); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete template")
	}
	return nil
}

func (s *TemplateService) requireAdmin(actor *models.JWTClaims) error {
	if actor == nil {
		return appErrors.ErrUnauthorized
	}
	if actor.Role != models.RoleAdmin {
		return appErrors.ErrForbidden
	}
	return nil
}

func buildTemplateTasks(payloads []dto.TemplateTaskPayload) []models.TemplateTask {
	tasks := make([]models.TemplateTask, 0, len(payloads))
	for i, payload := range payloads {
		position := payload.Position
		if position <= 0 {
			position = i + 1
		}
		tasks = append(tasks, models.TemplateTask{
			Description: strings.TrimSpace(payload.Description),
			Position:    position,
		})
	}
	return tasks
}
