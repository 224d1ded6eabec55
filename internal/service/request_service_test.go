package service

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/optifire/inspection-api/internal/dto"
	"github.com/optifire/inspection-api/internal/models"
	"github.com/optifire/inspection-api/internal/repository"
	appErrors "github.com/optifire/inspection-api/pkg/errors"
)

type requestStoreStub struct {
	requests map[string]*models.ServiceRequest
	seq      int
}

func newRequestStoreStub() *requestStoreStub {
	return &requestStoreStub{requests: make(map[string]*models.ServiceRequest)}
}

func (r *requestStoreStub) Create(ctx context.Context, request *models.ServiceRequest) error {
	if request.ID == "" {
		r.seq++
		request.ID = fmt.Sprintf("req-%d", r.seq)
	}
	if request.Status == "" {
		request.Status = models.RequestStatusPending
	}
	clone := *request
	r.requests[request.ID] = &clone
	return nil
}

func (r *requestStoreStub) GetByID(ctx context.Context, id string) (*models.ServiceRequest, error) {
	if request, ok := r.requests[id]; ok {
		clone := *request
		return &clone, nil
	}
	return nil, sql.ErrNoRows
}

func (r *requestStoreStub) List(ctx context.Context, filter models.RequestFilter) ([]models.ServiceRequest, error) {
	result := make([]models.ServiceRequest, 0, len(r.requests))
	for _, request := range r.requests {
		if filter.ClientID != "" && request.ClientID != filter.ClientID {
			continue
		}
		result = append(result, *request)
	}
	return result, nil
}

func (r *requestStoreStub) StageQuote(ctx context.Context, params repository.StageQuoteParams) error {
	request, ok := r.requests[params.ID]
	if !ok || request.Status != models.RequestStatusPending {
		return sql.ErrNoRows
	}
	request.Status = models.RequestStatusQuoting
	request.QuoteAmount = &params.Amount
	request.QuoteDetail = &params.Detail
	request.TechnicianID = &params.TechnicianID
	request.TemplateID = &params.TemplateID
	request.ScheduledDate = params.ScheduledDate
	return nil
}

func (r *requestStoreStub) UpdateStatus(ctx context.Context, id string, from []models.RequestStatus, to models.RequestStatus, reason *string) error {
	request, ok := r.requests[id]
	if !ok {
		return sql.ErrNoRows
	}
	allowed := false
	for _, status := range from {
		if request.Status == status {
			allowed = true
			break
		}
	}
	if !allowed {
		return sql.ErrNoRows
	}
	request.Status = to
	if reason != nil {
		request.RejectReason = reason
	}
	return nil
}

type templateCatalogStub struct {
	templates map[string]*models.Template
}

func newTemplateCatalogStub() *templateCatalogStub {
	return &templateCatalogStub{templates: make(map[string]*models.Template)}
}

func (t *templateCatalogStub) GetByID(ctx context.Context, id string) (*models.Template, error) {
	if template, ok := t.templates[id]; ok {
		clone := *template
		return &clone, nil
	}
	return nil, sql.ErrNoRows
}

type orderExpanderStub struct {
	requests *requestStoreStub
	orders   map[string]*models.WorkOrder
	failWith error
	seq      int
}

func newOrderExpanderStub(requests *requestStoreStub) *orderExpanderStub {
	return &orderExpanderStub{requests: requests, orders: make(map[string]*models.WorkOrder)}
}

func (o *orderExpanderStub) CreateWithTasks(ctx context.Context, order *models.WorkOrder, tasks []models.OrderTask) error {
	if o.failWith != nil {
		return o.failWith
	}
	request, ok := o.requests.requests[order.RequestID]
	if !ok || request.Status != models.RequestStatusQuoting {
		return sql.ErrNoRows
	}
	if _, exists := o.orders[order.RequestID]; exists {
		return repository.ErrOrderExists
	}
	request.Status = models.RequestStatusApproved
	request.TechnicianID = nil
	request.TemplateID = nil
	request.ScheduledDate = nil

	o.seq++
	order.ID = fmt.Sprintf("order-%d", o.seq)
	order.Status = models.OrderStatusAssigned
	for i := range tasks {
		tasks[i].ID = fmt.Sprintf("task-%d-%d", o.seq, i+1)
		tasks[i].OrderID = order.ID
	}
	order.Tasks = tasks
	clone := *order
	o.orders[order.RequestID] = &clone
	return nil
}

type userDirStub struct {
	users map[string]*models.User
}

func newUserDirStub() *userDirStub {
	return &userDirStub{users: make(map[string]*models.User)}
}

func (u *userDirStub) FindByID(ctx context.Context, id string) (*models.User, error) {
	if user, ok := u.users[id]; ok {
		clone := *user
		return &clone, nil
	}
	return nil, sql.ErrNoRows
}

type notifierStub struct {
	submitted []string
	rejected  []string
	annulled  []string
	accepted  []string
	completed []string
	evidence  []string
}

func (n *notifierStub) RequestSubmitted(ctx context.Context, request *models.ServiceRequest) {
	n.submitted = append(n.submitted, request.ID)
}

func (n *notifierStub) RequestRejected(ctx context.Context, request *models.ServiceRequest, reason string) {
	n.rejected = append(n.rejected, request.ID)
}

func (n *notifierStub) RequestAnnulled(ctx context.Context, request *models.ServiceRequest) {
	n.annulled = append(n.annulled, request.ID)
}

func (n *notifierStub) QuoteAccepted(ctx context.Context, request *models.ServiceRequest, order *models.WorkOrder) {
	n.accepted = append(n.accepted, order.ID)
}

func (n *notifierStub) OrderCompleted(ctx context.Context, order *models.WorkOrder, clientID string) {
	n.completed = append(n.completed, order.ID)
}

func (n *notifierStub) EvidenceAttached(ctx context.Context, order *models.WorkOrder, clientID, taskDescription string) {
	n.evidence = append(n.evidence, taskDescription)
}

func clientClaims(id string) *models.JWTClaims {
	return &models.JWTClaims{UserID: id, Role: models.RoleClient}
}

func adminClaims(id string) *models.JWTClaims {
	return &models.JWTClaims{UserID: id, Role: models.RoleAdmin}
}

func technicianClaims(id string) *models.JWTClaims {
	return &models.JWTClaims{UserID: id, Role: models.RoleTechnician}
}

type requestFixture struct {
	svc       *RequestService
	requests  *requestStoreStub
	templates *templateCatalogStub
	orders    *orderExpanderStub
	users     *userDirStub
	notifier  *notifierStub
}

func newRequestFixture() *requestFixture {
	requests := newRequestStoreStub()
	templates := newTemplateCatalogStub()
	orders := newOrderExpanderStub(requests)
	users := newUserDirStub()
	notifier := &notifierStub{}

	users.users["tech-1"] = &models.User{ID: "tech-1", Role: models.RoleTechnician, Active: true, FullName: "Luis Vega"}
	users.users["client-1"] = &models.User{ID: "client-1", Role: models.RoleClient, Active: true, FullName: "Ana Torres", Email: "ana@example.com"}
	templates.templates["tpl-1"] = &models.Template{
		ID:   "tpl-1",
		Name: "Extinguisher check",
		Tasks: []models.TemplateTask{
			{ID: "tt-1", TemplateID: "tpl-1", Description: "Check pressure gauge", Position: 1},
			{ID: "tt-2", TemplateID: "tpl-1", Description: "Inspect hose", Position: 2},
			{ID: "tt-3", TemplateID: "tpl-1", Description: "Verify seal", Position: 3},
		},
	}

	svc := NewRequestService(requests, templates, orders, users, notifier, nil, nil)
	return &requestFixture{svc: svc, requests: requests, templates: templates, orders: orders, users: users, notifier: notifier}
}

func (f *requestFixture) submit(t *testing.T) *models.ServiceRequest {
	t.Helper()
	request, err := f.svc.Submit(context.Background(), dto.SubmitRequestPayload{
		ContactName: "Ana Torres",
		Address:     "Av. Central 120",
		Phone:       "555-0142",
		Equipment:   "fire extinguisher bank",
	}, clientClaims("client-1"))
	require.NoError(t, err)
	return request
}

func (f *requestFixture) quote(t *testing.T, id string) {
	t.Helper()
	_, err := f.svc.Quote(context.Background(), id, dto.QuoteRequestPayload{
		TechnicianID: "tech-1",
		TemplateID:   "tpl-1",
		Amount:       1200,
		Detail:       "quarterly inspection",
	}, adminClaims("admin-1"))
	require.NoError(t, err)
}

func TestRequestServiceSubmit(t *testing.T) {
	f := newRequestFixture()
	request := f.submit(t)

	require.Equal(t, models.RequestStatusPending, request.Status)
	require.Equal(t, "client-1", request.ClientID)
	require.Equal(t, []string{request.ID}, f.notifier.submitted)
}

func TestRequestServiceSubmitRequiresClientRole(t *testing.T) {
	f := newRequestFixture()
	_, err := f.svc.Submit(context.Background(), dto.SubmitRequestPayload{
		ContactName: "x", Address: "x", Phone: "x", Equipment: "x",
	}, technicianClaims("tech-1"))
	require.True(t, appErrors.Is(err, appErrors.ErrForbidden))
}

func TestRequestServiceQuoteStagesAssignment(t *testing.T) {
	f := newRequestFixture()
	request := f.submit(t)
	f.quote(t, request.ID)

	stored := f.requests.requests[request.ID]
	require.Equal(t, models.RequestStatusQuoting, stored.Status)
	require.Equal(t, int64(1200), *stored.QuoteAmount)
	require.Equal(t, "tech-1", *stored.TechnicianID)
	require.Equal(t, "tpl-1", *stored.TemplateID)

	// Quoting twice loses to the status guard.
	_, err := f.svc.Quote(context.Background(), request.ID, dto.QuoteRequestPayload{
		TechnicianID: "tech-1", TemplateID: "tpl-1", Amount: 900,
	}, adminClaims("admin-1"))
	require.True(t, appErrors.Is(err, appErrors.ErrInvalidTransition))
}

func TestRequestServiceQuoteRejectsNonTechnicianAssignee(t *testing.T) {
	f := newRequestFixture()
	request := f.submit(t)

	_, err := f.svc.Quote(context.Background(), request.ID, dto.QuoteRequestPayload{
		TechnicianID: "client-1", TemplateID: "tpl-1", Amount: 900,
	}, adminClaims("admin-1"))
	require.True(t, appErrors.Is(err, appErrors.ErrValidation))
}

func TestRequestServiceAcceptQuoteExpandsOrder(t *testing.T) {
	f := newRequestFixture()
	request := f.submit(t)
	f.quote(t, request.ID)

	order, err := f.svc.AcceptQuote(context.Background(), request.ID, clientClaims("client-1"))
	require.NoError(t, err)
	require.Equal(t, models.OrderStatusAssigned, order.Status)
	require.Equal(t, "tech-1", order.TechnicianID)
	require.Len(t, order.Tasks, 3)
	for i, task := range order.Tasks {
		require.Equal(t, i+1, task.Position)
		require.Equal(t, models.TaskResultPending, task.Result)
		require.NotNil(t, task.TemplateTaskID)
	}

	stored := f.requests.requests[request.ID]
	require.Equal(t, models.RequestStatusApproved, stored.Status)
	require.Nil(t, stored.TechnicianID)
	require.Nil(t, stored.TemplateID)
	require.Equal(t, []string{order.ID}, f.notifier.accepted)
}

func TestRequestServiceAcceptQuoteTwiceFails(t *testing.T) {
	f := newRequestFixture()
	request := f.submit(t)
	f.quote(t, request.ID)

	_, err := f.svc.AcceptQuote(context.Background(), request.ID, clientClaims("client-1"))
	require.NoError(t, err)

	_, err = f.svc.AcceptQuote(context.Background(), request.ID, clientClaims("client-1"))
	require.True(t, appErrors.Is(err, appErrors.ErrInvalidTransition))
}

func TestRequestServiceAcceptQuoteOnlyOwner(t *testing.T) {
	f := newRequestFixture()
	request := f.submit(t)
	f.quote(t, request.ID)

	_, err := f.svc.AcceptQuote(context.Background(), request.ID, clientClaims("client-2"))
	require.True(t, appErrors.Is(err, appErrors.ErrForbidden))
}

func TestRequestServiceAcceptQuoteExpansionFailureLeavesQuoting(t *testing.T) {
	f := newRequestFixture()
	request := f.submit(t)
	f.quote(t, request.ID)

	f.orders.failWith = sql.ErrConnDone
	_, err := f.svc.AcceptQuote(context.Background(), request.ID, clientClaims("client-1"))
	require.Error(t, err)
	require.Equal(t, models.RequestStatusQuoting, f.requests.requests[request.ID].Status)
	require.Empty(t, f.notifier.accepted)
}

func TestRequestServiceAcceptQuoteDuplicateOrder(t *testing.T) {
	f := newRequestFixture()
	request := f.submit(t)
	f.quote(t, request.ID)

	f.orders.failWith = repository.ErrOrderExists
	_, err := f.svc.AcceptQuote(context.Background(), request.ID, clientClaims("client-1"))
	require.True(t, appErrors.Is(err, appErrors.ErrIntegrity))
}

func TestRequestServiceRejectRequiresReason(t *testing.T) {
	f := newRequestFixture()
	request := f.submit(t)

	_, err := f.svc.Reject(context.Background(), request.ID, dto.RejectRequestPayload{}, adminClaims("admin-1"))
	require.True(t, appErrors.Is(err, appErrors.ErrValidation))

	updated, err := f.svc.Reject(context.Background(), request.ID, dto.RejectRequestPayload{Reason: "out of coverage area"}, adminClaims("admin-1"))
	require.NoError(t, err)
	require.Equal(t, models.RequestStatusRejected, updated.Status)
	require.Equal(t, "out of coverage area", *updated.RejectReason)
	require.Equal(t, []string{request.ID}, f.notifier.rejected)
}

func TestRequestServiceRejectRetractsStagedQuote(t *testing.T) {
	f := newRequestFixture()
	request := f.submit(t)
	f.quote(t, request.ID)

	updated, err := f.svc.Reject(context.Background(), request.ID, dto.RejectRequestPayload{Reason: "technician unavailable"}, adminClaims("admin-1"))
	require.NoError(t, err)
	require.Equal(t, models.RequestStatusRejected, updated.Status)
	require.Equal(t, "technician unavailable", *updated.RejectReason)
	require.Equal(t, []string{request.ID}, f.notifier.rejected)

	_, err = f.svc.AcceptQuote(context.Background(), request.ID, clientClaims("client-1"))
	require.True(t, appErrors.Is(err, appErrors.ErrInvalidTransition))
}

func TestRequestServiceRejectQuoteThenAcceptFails(t *testing.T) {
	f := newRequestFixture()
	request := f.submit(t)
	f.quote(t, request.ID)

	updated, err := f.svc.RejectQuote(context.Background(), request.ID, dto.RejectQuotePayload{Note: "too expensive"}, clientClaims("client-1"))
	require.NoError(t, err)
	require.Equal(t, models.RequestStatusRejected, updated.Status)

	_, err = f.svc.AcceptQuote(context.Background(), request.ID, clientClaims("client-1"))
	require.True(t, appErrors.Is(err, appErrors.ErrInvalidTransition))
}

func TestRequestServiceAnnulOnlyFromPending(t *testing.T) {
	f := newRequestFixture()
	request := f.submit(t)
	f.quote(t, request.ID)

	_, err := f.svc.Annul(context.Background(), request.ID, clientClaims("client-1"))
	require.True(t, appErrors.Is(err, appErrors.ErrInvalidTransition))
	require.Equal(t, models.RequestStatusQuoting, f.requests.requests[request.ID].Status)

	fresh := f.submit(t)
	annulled, err := f.svc.Annul(context.Background(), fresh.ID, clientClaims("client-1"))
	require.NoError(t, err)
	require.Equal(t, models.RequestStatusAnnulled, annulled.Status)
	require.Equal(t, []string{fresh.ID}, f.notifier.annulled)
}

func TestRequestServiceListScopesClients(t *testing.T) {
	f := newRequestFixture()
	f.submit(t)

	other := &models.ServiceRequest{ClientID: "client-2", ContactName: "x", Address: "x", Phone: "x", Equipment: "x"}
	require.NoError(t, f.requests.Create(context.Background(), other))

	mine, err := f.svc.List(context.Background(), dto.RequestQuery{}, clientClaims("client-1"))
	require.NoError(t, err)
	require.Len(t, mine, 1)

	all, err := f.svc.List(context.Background(), dto.RequestQuery{}, adminClaims("admin-1"))
	require.NoError(t, err)
	require.Len(t, all, 2)

	_, err = f.svc.List(context.Background(), dto.RequestQuery{}, technicianClaims("tech-1"))
	require.True(t, appErrors.Is(err, appErrors.ErrForbidden))
}

func TestRequestServiceExportCSVAdminOnly(t *testing.T) {
	f := newRequestFixture()
	f.submit(t)

	_, err := f.svc.ExportCSV(context.Background(), dto.RequestQuery{}, clientClaims("client-1"))
	require.True(t, appErrors.Is(err, appErrors.ErrForbidden))

	data, err := f.svc.ExportCSV(context.Background(), dto.RequestQuery{}, adminClaims("admin-1"))
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	require.Len(t, lines, 2)
	require.Equal(t, "id,status,contact_name,address,phone,equipment,quote_amount,created_at", lines[0])
	require.Contains(t, lines[1], "PENDING")
}
