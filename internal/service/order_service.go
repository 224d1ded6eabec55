package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/optifire/inspection-api/internal/dto"
	"github.com/optifire/inspection-api/internal/models"
	"github.com/optifire/inspection-api/internal/repository"
	appErrors "github.com/optifire/inspection-api/pkg/errors"
	"github.com/optifire/inspection-api/pkg/export"
)

type orderStore interface {
	GetByID(ctx context.Context, id string) (*models.WorkOrder, error)
	GetWithTasks(ctx context.Context, id string) (*models.WorkOrder, error)
	GetTask(ctx context.Context, orderID, taskID string) (*models.OrderTask, error)
	List(ctx context.Context, filter models.OrderFilter) ([]models.WorkOrder, error)
	MarkInProgress(ctx context.Context, id string) error
	SaveProgress(ctx context.Context, orderID string, comments string, updates []repository.TaskResultParams) error
	Finish(ctx context.Context, orderID string, comments string, finishedAt time.Time, updates []repository.TaskResultParams) error
	SetTaskEvidence(ctx context.Context, orderID, taskID, path string) error
	SetReportPath(ctx context.Context, orderID, path string) error
}

type orderRequestStore interface {
	GetByID(ctx context.Context, id string) (*models.ServiceRequest, error)
}

type orderNotifier interface {
	OrderCompleted(ctx context.Context, order *models.WorkOrder, clientID string)
	EvidenceAttached(ctx context.Context, order *models.WorkOrder, clientID, taskDescription string)
}

type reportRenderer interface {
	Render(data export.ReportData) ([]byte, error)
}

type evidenceVault interface {
	SaveStream(filename string, r io.Reader) (string, error)
}

type reportVault interface {
	Save(filename string, data []byte) (string, error)
	Open(filename string) (io.ReadCloser, error)
}

type reportSigner interface {
	Generate(orderID, relPath string) (string, time.Time, error)
	Parse(token string, allowExpired bool) (orderID, relPath string, expiresAt time.Time, err error)
}

// ReportLink is a short-lived download grant for a closing report.
type ReportLink struct {
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}

// ReportFile is an open closing report ready to stream to the caller.
type ReportFile struct {
	Content  io.ReadCloser
	Filename string
}

// OrderService drives work order execution: the technician's checklist
// progress, evidence, and the terminal finish that closes the parent request.
type OrderService struct {
	orders    orderStore
	requests  orderRequestStore
	users     principalDirectory
	notifier  orderNotifier
	renderer  reportRenderer
	evidence  evidenceVault
	reports   reportVault
	signer    reportSigner
	metrics   transitionRecorder
	validator *validator.Validate
	logger    *zap.Logger
}

// OrderServiceOption configures the service.
type OrderServiceOption func(*OrderService)

// WithReportRenderer overrides the closing report renderer.
func WithReportRenderer(renderer reportRenderer) OrderServiceOption {
	return func(s *OrderService) {
		if renderer != nil {
			s.renderer = renderer
		}
	}
}

// WithEvidenceVault sets the storage used for task evidence uploads.
func WithEvidenceVault(vault evidenceVault) OrderServiceOption {
	return func(s *OrderService) { s.evidence = vault }
}

// WithReportVault sets the storage used for generated closing reports.
func WithReportVault(vault reportVault) OrderServiceOption {
	return func(s *OrderService) { s.reports = vault }
}

// WithReportSigner sets the signer backing report download links.
func WithReportSigner(signer reportSigner) OrderServiceOption {
	return func(s *OrderService) { s.signer = signer }
}

// WithOrderMetrics records workflow transitions on the given recorder.
func WithOrderMetrics(metrics transitionRecorder) OrderServiceOption {
	return func(s *OrderService) { s.metrics = metrics }
}

// NewOrderService constructs the service.
func NewOrderService(orders orderStore, requests orderRequestStore, users principalDirectory, notifier orderNotifier, validate *validator.Validate, logger *zap.Logger, opts ...OrderServiceOption) *OrderService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if validate == nil {
		validate = validator.New()
	}
	svc := &OrderService{
		orders:    orders,
		requests:  requests,
		users:     users,
		notifier:  notifier,
		renderer:  export.NewReportRenderer(),
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

// List returns orders visible to the actor: administrators see everything,
// technicians only their own assignments.
func (s *OrderService) List(ctx context.Context, filter models.OrderFilter, actor *models.JWTClaims) ([]models.WorkOrder, error) {
	if actor == nil {
		return nil, appErrors.ErrUnauthorized
	}
	switch actor.Role {
	case models.RoleAdmin:
	case models.RoleTechnician:
		filter.TechnicianID = actor.UserID
	default:
		return nil, appErrors.ErrForbidden
	}
	orders, err := s.orders.List(ctx, filter)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list work orders")
	}
	return orders, nil
}

// Get returns one order with its checklist. When the assigned technician
// first opens an ASSIGNED order it silently advances to IN_PROGRESS.
func (s *OrderService) Get(ctx context.Context, id string, actor *models.JWTClaims) (*models.WorkOrder, error) {
	if actor == nil {
		return nil, appErrors.ErrUnauthorized
	}
	order, err := s.loadOrderWithTasks(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.authorizeOrderRead(ctx, order, actor); err != nil {
		return nil, err
	}

	if actor.Role == models.RoleTechnician && order.Status == models.OrderStatusAssigned {
		if err := s.orders.MarkInProgress(ctx, order.ID); err != nil {
			s.logger.Warn("failed to advance order to in progress", zap.String("order_id", order.ID), zap.Error(err))
		} else {
			order.Status = models.OrderStatusInProgress
			s.recordTransition("order", string(models.OrderStatusInProgress))
		}
	}
	return order, nil
}

// SaveProgress applies partial checklist updates. Assigned technician only;
// a COMPLETED order refuses further edits.
func (s *OrderService) SaveProgress(ctx context.Context, id string, req dto.SaveProgressPayload, actor *models.JWTClaims) (*models.WorkOrder, error) {
	order, err := s.authorizeOrderWrite(ctx, id, actor)
	if err != nil {
		return nil, err
	}

	updates, err := s.taskUpdates(req.Tasks)
	if err != nil {
		return nil, err
	}
	if order.Status == models.OrderStatusAssigned {
		if err := s.orders.MarkInProgress(ctx, order.ID); err != nil {
			s.logger.Warn("failed to advance order to in progress", zap.String("order_id", order.ID), zap.Error(err))
		} else {
			s.recordTransition("order", string(models.OrderStatusInProgress))
		}
	}
	if err := s.orders.SaveProgress(ctx, id, req.Comments, updates); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.ErrFinalized
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to save progress")
	}
	return s.loadOrderWithTasks(ctx, id)
}

// Finish applies the final checklist state, closes the order and its parent
// request atomically, then renders the closing report and notifies the client
// and administrators as best-effort side effects.
func (s *OrderService) Finish(ctx context.Context, id string, req dto.FinishOrderPayload, actor *models.JWTClaims) (*models.WorkOrder, error) {
	order, err := s.authorizeOrderWrite(ctx, id, actor)
	if err != nil {
		return nil, err
	}

	updates, err := s.taskUpdates(req.Tasks)
	if err != nil {
		return nil, err
	}
	finishedAt := time.Now().UTC()
	if err := s.orders.Finish(ctx, id, req.Comments, finishedAt, updates); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.ErrFinalized
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to finish work order")
	}

	s.recordTransition("order", string(models.OrderStatusCompleted))
	s.recordTransition("request", string(models.RequestStatusCompleted))

	finished, err := s.loadOrderWithTasks(ctx, id)
	if err != nil {
		return nil, err
	}

	request, reqErr := s.requests.GetByID(ctx, order.RequestID)
	if reqErr != nil {
		s.logger.Warn("failed to load parent request after finish", zap.String("order_id", id), zap.Error(reqErr))
		return finished, nil
	}

	s.generateReport(ctx, finished, request)
	s.notifier.OrderCompleted(ctx, finished, request.ClientID)
	return finished, nil
}

// AttachEvidence stores an uploaded file on a checklist task. The owning
// client is notified only when the task gains its first attachment.
func (s *OrderService) AttachEvidence(ctx context.Context, orderID, taskID, filename string, content io.Reader, actor *models.JWTClaims) (*models.OrderTask, error) {
	order, err := s.authorizeOrderWrite(ctx, orderID, actor)
	if err != nil {
		return nil, err
	}
	if s.evidence == nil {
		return nil, appErrors.Clone(appErrors.ErrInternal, "evidence storage is not configured")
	}

	task, err := s.orders.GetTask(ctx, orderID, taskID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.ErrNotFound
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load order task")
	}
	firstAttachment := task.EvidencePath == nil

	stored := fmt.Sprintf("%s/%s%s", orderID, uuid.NewString(), filepath.Ext(filename))
	path, err := s.evidence.SaveStream(stored, content)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to store evidence")
	}
	if err := s.orders.SetTaskEvidence(ctx, orderID, taskID, path); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.ErrNotFound
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to record evidence")
	}
	task.EvidencePath = &path

	if firstAttachment {
		if request, reqErr := s.requests.GetByID(ctx, order.RequestID); reqErr == nil {
			s.notifier.EvidenceAttached(ctx, order, request.ClientID, task.Description)
		} else {
			s.logger.Warn("failed to load parent request for evidence notification", zap.String("order_id", orderID), zap.Error(reqErr))
		}
	}
	return task, nil
}

// ReportLink issues a signed download token for a finished order's closing
// report. Anyone allowed to read the order may request one.
func (s *OrderService) ReportLink(ctx context.Context, id string, actor *models.JWTClaims) (*ReportLink, error) {
	if actor == nil {
		return nil, appErrors.ErrUnauthorized
	}
	if s.signer == nil {
		return nil, appErrors.Clone(appErrors.ErrInternal, "report downloads are not configured")
	}
	order, err := s.loadOrderWithTasks(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.authorizeOrderRead(ctx, order, actor); err != nil {
		return nil, err
	}
	if order.ReportPath == nil {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "closing report is not available yet")
	}
	token, expiresAt, err := s.signer.Generate(order.ID, *order.ReportPath)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to sign download link")
	}
	return &ReportLink{Token: token, ExpiresAt: expiresAt}, nil
}

// OpenReport resolves a signed token into the stored report file. The token
// itself carries the authorization.
func (s *OrderService) OpenReport(ctx context.Context, token string) (*ReportFile, error) {
	if s.signer == nil || s.reports == nil {
		return nil, appErrors.Clone(appErrors.ErrInternal, "report downloads are not configured")
	}
	orderID, relPath, _, err := s.signer.Parse(token, false)
	if err != nil {
		return nil, appErrors.Clone(appErrors.ErrUnauthorized, "invalid or expired download link")
	}
	content, err := s.reports.Open(relPath)
	if err != nil {
		return nil, appErrors.ErrNotFound
	}
	return &ReportFile{
		Content:  content,
		Filename: fmt.Sprintf("%s-report.pdf", orderID),
	}, nil
}

func (s *OrderService) recordTransition(entity, to string) {
	if s.metrics != nil {
		s.metrics.RecordTransition(entity, to)
	}
}

func (s *OrderService) loadOrderWithTasks(ctx context.Context, id string) (*models.WorkOrder, error) {
	order, err := s.orders.GetWithTasks(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.ErrNotFound
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load work order")
	}
	return order, nil
}

func (s *OrderService) authorizeOrderRead(ctx context.Context, order *models.WorkOrder, actor *models.JWTClaims) error {
	switch actor.Role {
	case models.RoleAdmin:
		return nil
	case models.RoleTechnician:
		if order.TechnicianID != actor.UserID {
			return appErrors.ErrForbidden
		}
		return nil
	case models.RoleClient:
		request, err := s.requests.GetByID(ctx, order.RequestID)
		if err != nil || request.ClientID != actor.UserID {
			return appErrors.ErrForbidden
		}
		return nil
	default:
		return appErrors.ErrForbidden
	}
}

func (s *OrderService) authorizeOrderWrite(ctx context.Context, id string, actor *models.JWTClaims) (*models.WorkOrder, error) {
	if actor == nil {
		return nil, appErrors.ErrUnauthorized
	}
	if actor.Role != models.RoleTechnician {
		return nil, appErrors.ErrForbidden
	}
	order, err := s.orders.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.ErrNotFound
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load work order")
	}
	if order.TechnicianID != actor.UserID {
		return nil, appErrors.ErrForbidden
	}
	if order.Status == models.OrderStatusCompleted {
		return nil, appErrors.ErrFinalized
	}
	return order, nil
}

func (s *OrderService) taskUpdates(tasks []dto.TaskUpdate) ([]repository.TaskResultParams, error) {
	updates := make([]repository.TaskResultParams, 0, len(tasks))
	for _, task := range tasks {
		switch task.Result {
		case models.TaskResultPass, models.TaskResultFail, models.TaskResultNA, models.TaskResultPending:
		default:
			return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("unsupported task result: %s", task.Result))
		}
		if task.TaskID == "" {
			return nil, appErrors.Clone(appErrors.ErrValidation, "task_id is required")
		}
		updates = append(updates, repository.TaskResultParams{
			TaskID:      task.TaskID,
			Result:      task.Result,
			Observation: task.Observation,
		})
	}
	return updates, nil
}

func (s *OrderService) generateReport(ctx context.Context, order *models.WorkOrder, request *models.ServiceRequest) {
	if s.reports == nil || s.renderer == nil {
		return
	}
	clientName := request.ContactName
	if client, err := s.users.FindByID(ctx, request.ClientID); err == nil {
		clientName = client.FullName
	}
	technicianName := order.TechnicianID
	if technician, err := s.users.FindByID(ctx, order.TechnicianID); err == nil {
		technicianName = technician.FullName
	}

	data := export.ReportData{
		OrderTitle:     order.Title,
		ClientName:     clientName,
		Address:        request.Address,
		TechnicianName: technicianName,
		ScheduledDate:  scheduleLabel(order.ScheduledDate),
		Comments:       order.Comments,
	}
	if order.FinishedAt != nil {
		data.FinishedAt = *order.FinishedAt
	}
	for _, task := range order.Tasks {
		data.Tasks = append(data.Tasks, export.ReportTask{
			Description: task.Description,
			Result:      string(task.Result),
			Observation: task.Observation,
		})
	}

	pdf, err := s.renderer.Render(data)
	if err != nil {
		s.logger.Warn("failed to render closing report", zap.String("order_id", order.ID), zap.Error(err))
		return
	}
	path, err := s.reports.Save(fmt.Sprintf("%s/report.pdf", order.ID), pdf)
	if err != nil {
		s.logger.Warn("failed to store closing report", zap.String("order_id", order.ID), zap.Error(err))
		return
	}
	if err := s.orders.SetReportPath(ctx, order.ID, path); err != nil {
		s.logger.Warn("failed to record closing report path", zap.String("order_id", order.ID), zap.Error(err))
		return
	}
	order.ReportPath = &path
}
