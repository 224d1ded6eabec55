package repository

import (
	"context"
	"database/sql"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/require"

	"github.com/optifire/inspection-api/internal/models"
)

func newRepoMock(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock, func()) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	return sqlx.NewDb(db, "sqlmock"), mock, func() { db.Close() }
}

func TestRequestRepositoryCreateAndGet(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()

	repo := NewRequestRepository(db)
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO service_requests")).
		WillReturnResult(sqlmock.NewResult(1, 1))

	request := &models.ServiceRequest{
		ClientID:    "client-1",
		ContactName: "Ana Torres",
		Address:     "Av. Central 120",
		Phone:       "555-0142",
		Equipment:   "fire extinguisher bank",
	}
	require.NoError(t, repo.Create(context.Background(), request))
	require.NotEmpty(t, request.ID)
	require.Equal(t, models.RequestStatusPending, request.Status)

	rows := sqlmock.NewRows([]string{"id", "client_id", "contact_name", "address", "phone", "equipment", "notes", "status", "quote_amount", "quote_detail", "technician_id", "template_id", "scheduled_date", "reject_reason", "created_at", "updated_at"}).
		AddRow(request.ID, "client-1", "Ana Torres", "Av. Central 120", "555-0142", "fire extinguisher bank", "", "PENDING", nil, nil, nil, nil, nil, nil, time.Now(), time.Now())
	mock.ExpectQuery(regexp.QuoteMeta("SELECT id, client_id, contact_name")).
		WithArgs(request.ID).
		WillReturnRows(rows)

	found, err := repo.GetByID(context.Background(), request.ID)
	require.NoError(t, err)
	require.Equal(t, request.ID, found.ID)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRequestRepositoryListFilters(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()

	repo := NewRequestRepository(db)
	rows := sqlmock.NewRows([]string{"id", "client_id", "contact_name", "address", "phone", "equipment", "notes", "status", "quote_amount", "quote_detail", "technician_id", "template_id", "scheduled_date", "reject_reason", "created_at", "updated_at"}).
		AddRow("req-1", "client-1", "Ana", "addr", "555", "alarm panel", "", "QUOTING", int64(1200), "panel service", "tech-1", "tpl-1", nil, nil, time.Now(), time.Now())
	mock.ExpectQuery(regexp.QuoteMeta("SELECT id, client_id, contact_name")).
		WithArgs("QUOTING", "client-1").
		WillReturnRows(rows)

	list, err := repo.List(context.Background(), models.RequestFilter{
		Status:   []models.RequestStatus{models.RequestStatusQuoting},
		ClientID: "client-1",
	})
	require.NoError(t, err)
	require.Len(t, list, 1)
	require.Equal(t, "req-1", list[0].ID)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRequestRepositoryStageQuoteGuard(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()

	repo := NewRequestRepository(db)
	params := StageQuoteParams{
		ID:           "req-1",
		Amount:       900,
		Detail:       "quarterly inspection",
		TechnicianID: "tech-1",
		TemplateID:   "tpl-1",
	}

	mock.ExpectExec(regexp.QuoteMeta("UPDATE service_requests")).WillReturnResult(sqlmock.NewResult(0, 1))
	require.NoError(t, repo.StageQuote(context.Background(), params))

	// A request that already left PENDING matches zero rows.
	mock.ExpectExec(regexp.QuoteMeta("UPDATE service_requests")).WillReturnResult(sqlmock.NewResult(0, 0))
	err := repo.StageQuote(context.Background(), params)
	require.ErrorIs(t, err, sql.ErrNoRows)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRequestRepositoryUpdateStatusGuard(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()

	repo := NewRequestRepository(db)
	reason := "out of coverage area"

	mock.ExpectExec(regexp.QuoteMeta("UPDATE service_requests SET")).
		WillReturnResult(sqlmock.NewResult(0, 1))
	err := repo.UpdateStatus(context.Background(), "req-1",
		[]models.RequestStatus{models.RequestStatusPending, models.RequestStatusQuoting},
		models.RequestStatusRejected, &reason)
	require.NoError(t, err)

	mock.ExpectExec(regexp.QuoteMeta("UPDATE service_requests SET")).
		WillReturnResult(sqlmock.NewResult(0, 0))
	err = repo.UpdateStatus(context.Background(), "req-1",
		[]models.RequestStatus{models.RequestStatusPending},
		models.RequestStatusAnnulled, nil)
	require.ErrorIs(t, err, sql.ErrNoRows)
	require.NoError(t, mock.ExpectationsWereMet())
}
