package service

import (
	"context"
	"database/sql"
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/optifire/inspection-api/internal/dto"
	"github.com/optifire/inspection-api/internal/models"
	"github.com/optifire/inspection-api/internal/repository"
	appErrors "github.com/optifire/inspection-api/pkg/errors"
	"github.com/optifire/inspection-api/pkg/export"
)

type requestExporter interface {
	Render(data export.Dataset) ([]byte, error)
}

type transitionRecorder interface {
	RecordTransition(entity, to string)
}

type requestStore interface {
	Create(ctx context.Context, request *models.ServiceRequest) error
	GetByID(ctx context.Context, id string) (*models.ServiceRequest, error)
	List(ctx context.Context, filter models.RequestFilter) ([]models.ServiceRequest, error)
	StageQuote(ctx context.Context, params repository.StageQuoteParams) error
	UpdateStatus(ctx context.Context, id string, from []models.RequestStatus, to models.RequestStatus, reason *string) error
}

type templateCatalog interface {
	GetByID(ctx context.Context, id string) (*models.Template, error)
}

type orderExpander interface {
	CreateWithTasks(ctx context.Context, order *models.WorkOrder, tasks []models.OrderTask) error
}

type principalDirectory interface {
	FindByID(ctx context.Context, id string) (*models.User, error)
}

type requestNotifier interface {
	RequestSubmitted(ctx context.Context, request *models.ServiceRequest)
	RequestRejected(ctx context.Context, request *models.ServiceRequest, reason string)
	RequestAnnulled(ctx context.Context, request *models.ServiceRequest)
	QuoteAccepted(ctx context.Context, request *models.ServiceRequest, order *models.WorkOrder)
}

// RequestService drives the service request lifecycle from submission through
// quoting, approval and the terminal branches.
type RequestService struct {
	requests  requestStore
	templates templateCatalog
	orders    orderExpander
	users     principalDirectory
	notifier  requestNotifier
	exporter  requestExporter
	metrics   transitionRecorder
	validator *validator.Validate
	logger    *zap.Logger
}

// RequestServiceOption configures the service.
type RequestServiceOption func(*RequestService)

// WithRequestMetrics records workflow transitions on the given recorder.
func WithRequestMetrics(metrics transitionRecorder) RequestServiceOption {
	return func(s *RequestService) { s.metrics = metrics }
}

// NewRequestService constructs the service.
func NewRequestService(requests requestStore, templates templateCatalog, orders orderExpander, users principalDirectory, notifier requestNotifier, validate *validator.Validate, logger *zap.Logger, opts ...RequestServiceOption) *RequestService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if validate == nil {
		validate = validator.New()
	}
	svc := &RequestService{
		requests:  requests,
		templates: templates,
		orders:    orders,
		users:     users,
		notifier:  notifier,
		exporter:  export.NewCSVExporter(),
		validator: validate,
		logger:    logger,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(svc)
		}
	}
	return svc
}

func (s *RequestService) recordTransition(entity, to string) {
	if s.metrics != nil {
		s.metrics.RecordTransition(entity, to)
	}
}

// Submit creates a new PENDING request owned by the calling client and tells
// every administrator about it.
func (s *RequestService) Submit(ctx context.Context, req dto.SubmitRequestPayload, actor *models.JWTClaims) (*models.ServiceRequest, error) {
	if actor == nil {
		return nil, appErrors.ErrUnauthorized
	}
	if actor.Role != models.RoleClient {
		return nil, appErrors.ErrForbidden
	}
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid request payload")
	}

	request := &models.ServiceRequest{
		ClientID:    actor.UserID,
		ContactName: strings.TrimSpace(req.ContactName),
		Address:     strings.TrimSpace(req.Address),
		Phone:       strings.TrimSpace(req.Phone),
		Equipment:   strings.TrimSpace(req.Equipment),
		Notes:       req.Notes,
		Status:      models.RequestStatusPending,
	}
	if err := s.requests.Create(ctx, request); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create service request")
	}
	s.recordTransition("request", string(models.RequestStatusPending))
	s.notifier.RequestSubmitted(ctx, request)
	return request, nil
}

// List returns requests visible to the actor: administrators see everything,
// clients only their own.
func (s *RequestService) List(ctx context.Context, query dto.RequestQuery, actor *models.JWTClaims) ([]models.ServiceRequest, error) {
	if actor == nil {
		return nil, appErrors.ErrUnauthorized
	}
	filter := models.RequestFilter{
		Status: query.Status,
		Limit:  query.Limit,
		Offset: query.Offset,
	}
	switch actor.Role {
	case models.RoleAdmin:
		// full visibility
	case models.RoleClient:
		filter.ClientID = actor.UserID
	default:
		return nil, appErrors.ErrForbidden
	}
	requests, err := s.requests.List(ctx, filter)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list service requests")
	}
	return requests, nil
}

// ExportCSV renders the request history as CSV for administrators.
func (s *RequestService) ExportCSV(ctx context.Context, query dto.RequestQuery, actor *models.JWTClaims) ([]byte, error) {
	if actor == nil {
		return nil, appErrors.ErrUnauthorized
	}
	if actor.Role != models.RoleAdmin {
		return nil, appErrors.ErrForbidden
	}
	requests, err := s.List(ctx, query, actor)
	if err != nil {
		return nil, err
	}

	dataset := export.Dataset{
		Headers: []string{"id", "status", "contact_name", "address", "phone", "equipment", "quote_amount", "created_at"},
	}
	for _, request := range requests {
		row := map[string]string{
			"id":           request.ID,
			"status":       string(request.Status),
			"contact_name": request.ContactName,
			"address":      request.Address,
			"phone":        request.Phone,
			"equipment":    request.Equipment,
			"created_at":   request.CreatedAt.Format(time.RFC3339),
		}
		if request.QuoteAmount != nil {
			row["quote_amount"] = strconv.FormatInt(*request.QuoteAmount, 10)
		}
		dataset.Rows = append(dataset.Rows, row)
	}
	data, err := s.exporter.Render(dataset)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render export")
	}
	return data, nil
}

// Get returns one request enforcing ownership scope.
func (s *RequestService) Get(ctx context.Context, id string, actor *models.JWTClaims) (*models.ServiceRequest, error) {
	if actor == nil {
		return nil, appErrors.ErrUnauthorized
	}
	request, err := s.loadRequest(ctx, id)
	if err != nil {
		return nil, err
	}
	switch actor.Role {
	case models.RoleAdmin:
	case models.RoleClient:
		if request.ClientID != actor.UserID {
			return nil, appErrors.ErrForbidden
		}
	default:
		return nil, appErrors.ErrForbidden
	}
	return request, nil
}

// Quote stages a quote with pre-assignment on a pending request and moves it
// to QUOTING. Administrator only.
func (s *RequestService) Quote(ctx context.Context, id string, req dto.QuoteRequestPayload, actor *models.JWTClaims) (*models.ServiceRequest, error) {
	if actor == nil {
		return nil, appErrors.ErrUnauthorized
	}
	if actor.Role != models.RoleAdmin {
		return nil, appErrors.ErrForbidden
	}
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid quote payload")
	}

	technician, err := s.users.FindByID(ctx, req.TechnicianID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrValidation, "technician does not exist")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load technician")
	}
	if technician.Role != models.RoleTechnician || !technician.Active {
		return nil, appErrors.Clone(appErrors.ErrValidation, "assignee must be an active technician")
	}
	if _, err := s.templates.GetByID(ctx, req.TemplateID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrValidation, "template does not exist")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load template")
	}

	err = s.requests.StageQuote(ctx, repository.StageQuoteParams{
		ID:            id,
		Amount:        req.Amount,
		Detail:        req.Detail,
		TechnicianID:  req.TechnicianID,
		TemplateID:    req.TemplateID,
		ScheduledDate: req.ScheduledDate,
	})
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.ErrInvalidTransition
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to stage quote")
	}
	s.recordTransition("request", string(models.RequestStatusQuoting))
	return s.loadRequest(ctx, id)
}

// Reject turns down a pending or quoted request with a mandatory reason.
// Administrator only; the owning client is notified and mailed. Rejecting a
// quoted request retracts the staged quote along with it.
func (s *RequestService) Reject(ctx context.Context, id string, req dto.RejectRequestPayload, actor *models.JWTClaims) (*models.ServiceRequest, error) {
	if actor == nil {
		return nil, appErrors.ErrUnauthorized
	}
	if actor.Role != models.RoleAdmin {
		return nil, appErrors.ErrForbidden
	}
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "a rejection reason is required")
	}

	reason := strings.TrimSpace(req.Reason)
	err := s.requests.UpdateStatus(ctx, id,
		[]models.RequestStatus{models.RequestStatusPending, models.RequestStatusQuoting},
		models.RequestStatusRejected, &reason)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.ErrInvalidTransition
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to reject request")
	}
	request, loadErr := s.loadRequest(ctx, id)
	if loadErr != nil {
		return nil, loadErr
	}
	s.recordTransition("request", string(models.RequestStatusRejected))
	s.notifier.RequestRejected(ctx, request, reason)
	return request, nil
}

// AcceptQuote approves a quoted request and atomically expands it into a work
// order with its checklist. Owning client only.
func (s *RequestService) AcceptQuote(ctx context.Context, id string, actor *models.JWTClaims) (*models.WorkOrder, error) {
	if actor == nil {
		return nil, appErrors.ErrUnauthorized
	}
	if actor.Role != models.RoleClient {
		return nil, appErrors.ErrForbidden
	}
	request, err := s.loadRequest(ctx, id)
	if err != nil {
		return nil, err
	}
	if request.ClientID != actor.UserID {
		return nil, appErrors.ErrForbidden
	}
	if request.Status != models.RequestStatusQuoting {
		return nil, appErrors.ErrInvalidTransition
	}
	if request.TechnicianID == nil || request.TemplateID == nil {
		return nil, appErrors.Clone(appErrors.ErrInvalidTransition, "quote is missing its assignment")
	}

	template, err := s.templates.GetByID(ctx, *request.TemplateID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.ErrNotFound
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load template")
	}

	order := &models.WorkOrder{
		RequestID:     request.ID,
		TechnicianID:  *request.TechnicianID,
		TemplateID:    request.TemplateID,
		Title:         "Inspection - " + request.Equipment,
		ScheduledDate: request.ScheduledDate,
		Status:        models.OrderStatusAssigned,
	}
	tasks := make([]models.OrderTask, 0, len(template.Tasks))
	for _, templateTask := range template.Tasks {
		id := templateTask.ID
		tasks = append(tasks, models.OrderTask{
			TemplateTaskID: &id,
			Description:    templateTask.Description,
			Result:         models.TaskResultPending,
			Position:       templateTask.Position,
		})
	}

	if err := s.orders.CreateWithTasks(ctx, order, tasks); err != nil {
		switch {
		case errors.Is(err, sql.ErrNoRows):
			return nil, appErrors.ErrInvalidTransition
		case errors.Is(err, repository.ErrOrderExists):
			return nil, appErrors.Clone(appErrors.ErrIntegrity, "a work order already exists for this request")
		default:
			return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to expand work order")
		}
	}
	s.recordTransition("request", string(models.RequestStatusApproved))
	s.recordTransition("order", string(models.OrderStatusAssigned))
	s.notifier.QuoteAccepted(ctx, request, order)
	return order, nil
}

// RejectQuote turns down a staged quote. Owning client only; the reason is
// optional here, unlike the administrator rejection.
func (s *RequestService) RejectQuote(ctx context.Context, id string, req dto.RejectQuotePayload, actor *models.JWTClaims) (*models.ServiceRequest, error) {
	if actor == nil {
		return nil, appErrors.ErrUnauthorized
	}
	if actor.Role != models.RoleClient {
		return nil, appErrors.ErrForbidden
	}
	request, err := s.loadRequest(ctx, id)
	if err != nil {
		return nil, err
	}
	if request.ClientID != actor.UserID {
		return nil, appErrors.ErrForbidden
	}

	var reason *string
	if note := strings.TrimSpace(req.Note); note != "" {
		reason = &note
	}
	err = s.requests.UpdateStatus(ctx, id,
		[]models.RequestStatus{models.RequestStatusQuoting},
		models.RequestStatusRejected, reason)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.ErrInvalidTransition
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to reject quote")
	}
	updated, loadErr := s.loadRequest(ctx, id)
	if loadErr != nil {
		return nil, loadErr
	}
	note := ""
	if reason != nil {
		note = *reason
	}
	s.recordTransition("request", string(models.RequestStatusRejected))
	s.notifier.RequestRejected(ctx, updated, note)
	return updated, nil
}

// Annul withdraws a request that has not been quoted yet. Owning client only;
// administrators are notified.
func (s *RequestService) Annul(ctx context.Context, id string, actor *models.JWTClaims) (*models.ServiceRequest, error) {
	if actor == nil {
		return nil, appErrors.ErrUnauthorized
	}
	if actor.Role != models.RoleClient {
		return nil, appErrors.ErrForbidden
	}
	request, err := s.loadRequest(ctx, id)
	if err != nil {
		return nil, err
	}
	if request.ClientID != actor.UserID {
		return nil, appErrors.ErrForbidden
	}

	err = s.requests.UpdateStatus(ctx, id,
		[]models.RequestStatus{models.RequestStatusPending},
		models.RequestStatusAnnulled, nil)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.ErrInvalidTransition
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to annul request")
	}
	updated, loadErr := s.loadRequest(ctx, id)
	if loadErr != nil {
		return nil, loadErr
	}
	s.recordTransition("request", string(models.RequestStatusAnnulled))
	s.notifier.RequestAnnulled(ctx, updated)
	return updated, nil
}

func (s *RequestService) loadRequest(ctx context.Context, id string) (*models.ServiceRequest, error) {
	request, err := s.requests.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.ErrNotFound
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load service request")
	}
	return request, nil
}

// scheduleLabel renders a date for human-facing messages.
func scheduleLabel(ts *time.Time) string {
	if ts == nil {
		return "to be scheduled"
	}
	return ts.Format("2006-01-02")
}
