package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"

	"github.com/optifire/inspection-api/internal/dto"
	"github.com/optifire/inspection-api/internal/middleware"
	"github.com/optifire/inspection-api/internal/models"
	appErrors "github.com/optifire/inspection-api/pkg/errors"
)

type requestServiceMock struct {
	submitResp *models.ServiceRequest
	submitErr  error
	listResp   []models.ServiceRequest
	listQuery  dto.RequestQuery
	acceptResp *models.WorkOrder
	acceptErr  error
}

func (m *requestServiceMock) Submit(ctx context.Context, req dto.SubmitRequestPayload, actor *models.JWTClaims) (*models.ServiceRequest, error) {
	return m.submitResp, m.submitErr
}

func (m *requestServiceMock) List(ctx context.Context, query dto.RequestQuery, actor *models.JWTClaims) ([]models.ServiceRequest, error) {
	m.listQuery = query
	return m.listResp, nil
}

func (m *requestServiceMock) Get(ctx context.Context, id string, actor *models.JWTClaims) (*models.ServiceRequest, error) {
	return m.submitResp, m.submitErr
}

func (m *requestServiceMock) Quote(ctx context.Context, id string, req dto.QuoteRequestPayload, actor *models.JWTClaims) (*models.ServiceRequest, error) {
	return m.submitResp, m.submitErr
}

func (m *requestServiceMock) Reject(ctx context.Context, id string, req dto.RejectRequestPayload, actor *models.JWTClaims) (*models.ServiceRequest, error) {
	return m.submitResp, m.submitErr
}

func (m *requestServiceMock) AcceptQuote(ctx context.Context, id string, actor *models.JWTClaims) (*models.WorkOrder, error) {
	return m.acceptResp, m.acceptErr
}

func (m *requestServiceMock) RejectQuote(ctx context.Context, id string, req dto.RejectQuotePayload, actor *models.JWTClaims) (*models.ServiceRequest, error) {
	return m.submitResp, m.submitErr
}

func (m *requestServiceMock) Annul(ctx context.Context, id string, actor *models.JWTClaims) (*models.ServiceRequest, error) {
	return m.submitResp, m.submitErr
}

func (m *requestServiceMock) ExportCSV(ctx context.Context, query dto.RequestQuery, actor *models.JWTClaims) ([]byte, error) {
	m.listQuery = query
	return []byte("id,status\n"), nil
}

func newGinContext(method, path string, body []byte) (*gin.Context, *httptest.ResponseRecorder) {
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	req, _ := http.NewRequest(method, path, bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	c.Request = req
	return c, w
}

func TestRequestHandlerCreate(t *testing.T) {
	gin.SetMode(gin.TestMode)
	mockSvc := &requestServiceMock{
		submitResp: &models.ServiceRequest{ID: "req-1", Status: models.RequestStatusPending},
	}
	handler := NewRequestHandler(mockSvc)

	payload, _ := json.Marshal(dto.SubmitRequestPayload{
		ContactName: "Ana Torres",
		Address:     "Av. Central 123",
		Phone:       "555-0101",
		Equipment:   "alarm panel",
	})
	c, w := newGinContext(http.MethodPost, "/requests", payload)
	c.Set(middleware.ContextUserKey, &models.JWTClaims{UserID: "client-1", Role: models.RoleClient})

	handler.Create(c)
	require.Equal(t, http.StatusCreated, w.Code)
}

func TestRequestHandlerCreateRejectsMalformedBody(t *testing.T) {
	gin.SetMode(gin.TestMode)
	handler := NewRequestHandler(&requestServiceMock{})

	c, w := newGinContext(http.MethodPost, "/requests", []byte("{not json"))
	c.Set(middleware.ContextUserKey, &models.JWTClaims{UserID: "client-1", Role: models.RoleClient})

	handler.Create(c)
	require.Equal(t, http.StatusBadRequest, w.Code)
}

func TestRequestHandlerListParsesStatusFilter(t *testing.T) {
	gin.SetMode(gin.TestMode)
	mockSvc := &requestServiceMock{}
	handler := NewRequestHandler(mockSvc)

	c, w := newGinContext(http.MethodGet, "/requests?status=pending,QUOTING&limit=10", nil)
	c.Set(middleware.ContextUserKey, &models.JWTClaims{UserID: "admin-1", Role: models.RoleAdmin})

	handler.List(c)
	require.Equal(t, http.StatusOK, w.Code)
	require.Equal(t, []models.RequestStatus{models.RequestStatusPending, models.RequestStatusQuoting}, mockSvc.listQuery.Status)
	require.Equal(t, 10, mockSvc.listQuery.Limit)
}

func TestRequestHandlerAcceptQuoteMapsConflict(t *testing.T) {
	gin.SetMode(gin.TestMode)
	mockSvc := &requestServiceMock{acceptErr: appErrors.ErrInvalidTransition}
	handler := NewRequestHandler(mockSvc)

	c, w := newGinContext(http.MethodPost, "/requests/req-1/accept", nil)
	c.Params = gin.Params{{Key: "id", Value: "req-1"}}
	c.Set(middleware.ContextUserKey, &models.JWTClaims{UserID: "client-1", Role: models.RoleClient})

	handler.AcceptQuote(c)
	require.Equal(t, http.StatusConflict, w.Code)
}

func TestRequestHandlerAcceptQuoteReturnsOrder(t *testing.T) {
	gin.SetMode(gin.TestMode)
	mockSvc := &requestServiceMock{
		acceptResp: &models.WorkOrder{ID: "order-1", Status: models.OrderStatusAssigned},
	}
	handler := NewRequestHandler(mockSvc)

	c, w := newGinContext(http.MethodPost, "/requests/req-1/accept", nil)
	c.Params = gin.Params{{Key: "id", Value: "req-1"}}
	c.Set(middleware.ContextUserKey, &models.JWTClaims{UserID: "client-1", Role: models.RoleClient})

	handler.AcceptQuote(c)
	require.Equal(t, http.StatusCreated, w.Code)

	var envelope struct {
		Data models.WorkOrder `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &envelope))
	require.Equal(t, "order-1", envelope.Data.ID)
	require.Equal(t, models.OrderStatusAssigned, envelope.Data.Status)
}

func TestRequestHandlerRejectRequiresReason(t *testing.T) {
	gin.SetMode(gin.TestMode)
	// Binding succeeds with an empty body; the service enforces the reason.
	mockSvc := &requestServiceMock{submitErr: appErrors.Clone(appErrors.ErrValidation, "a rejection reason is required")}
	handler := NewRequestHandler(mockSvc)

	c, w := newGinContext(http.MethodPost, "/requests/req-1/reject", []byte(`{}`))
	c.Params = gin.Params{{Key: "id", Value: "req-1"}}
	c.Set(middleware.ContextUserKey, &models.JWTClaims{UserID: "admin-1", Role: models.RoleAdmin})

	handler.Reject(c)
	require.Equal(t, http.StatusBadRequest, w.Code)
}
