package repository

import (
	"context"
	"database/sql"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/lib/pq"
	"github.com/stretchr/testify/require"

	"github.com/optifire/inspection-api/internal/models"
)

func TestOrderRepositoryCreateWithTasks(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()

	repo := NewOrderRepository(db)
	order := &models.WorkOrder{
		RequestID:    "req-1",
		TechnicianID: "tech-1",
		Title:        "Inspection - alarm panel",
	}
	tasks := []models.OrderTask{
		{Description: "Check wiring", Position: 1},
		{Description: "Test siren", Position: 2},
	}

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("UPDATE service_requests")).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO work_orders")).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO order_tasks")).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO order_tasks")).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	require.NoError(t, repo.CreateWithTasks(context.Background(), order, tasks))
	require.NotEmpty(t, order.ID)
	require.Equal(t, models.OrderStatusAssigned, order.Status)
	require.Len(t, order.Tasks, 2)
	require.Equal(t, models.TaskResultPending, order.Tasks[0].Result)
	require.Equal(t, order.ID, order.Tasks[1].OrderID)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestOrderRepositoryCreateWithTasksRequestNotQuoting(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()

	repo := NewOrderRepository(db)

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("UPDATE service_requests")).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectRollback()

	err := repo.CreateWithTasks(context.Background(), &models.WorkOrder{RequestID: "req-1"}, nil)
	require.ErrorIs(t, err, sql.ErrNoRows)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestOrderRepositoryCreateWithTasksDuplicateOrder(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()

	repo := NewOrderRepository(db)

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("UPDATE service_requests")).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO work_orders")).
		WillReturnError(&pq.Error{Code: "23505", Constraint: "work_orders_request_id_key"})
	mock.ExpectRollback()

	err := repo.CreateWithTasks(context.Background(), &models.WorkOrder{RequestID: "req-1"}, nil)
	require.ErrorIs(t, err, ErrOrderExists)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestOrderRepositoryCreateWithTasksRollsBackOnTaskFailure(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()

	repo := NewOrderRepository(db)
	tasks := []models.OrderTask{{Description: "Check wiring", Position: 1}}

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("UPDATE service_requests")).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO work_orders")).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO order_tasks")).
		WillReturnError(sql.ErrConnDone)
	mock.ExpectRollback()

	err := repo.CreateWithTasks(context.Background(), &models.WorkOrder{RequestID: "req-1"}, tasks)
	require.Error(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestOrderRepositoryFinish(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()

	repo := NewOrderRepository(db)
	finishedAt := time.Now().UTC()
	updates := []TaskResultParams{
		{TaskID: "task-1", Result: models.TaskResultPass},
		{TaskID: "task-2", Result: models.TaskResultFail, Observation: "corroded valve"},
	}

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("UPDATE order_tasks SET")).
		WithArgs("task-1", "order-1", "PASS", "").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("UPDATE order_tasks SET")).
		WithArgs("task-2", "order-1", "FAIL", "corroded valve").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("UPDATE work_orders SET")).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("UPDATE service_requests SET")).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	require.NoError(t, repo.Finish(context.Background(), "order-1", "all good", finishedAt, updates))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestOrderRepositoryFinishAlreadyCompleted(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()

	repo := NewOrderRepository(db)

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("UPDATE work_orders SET")).
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectRollback()

	err := repo.Finish(context.Background(), "order-1", "", time.Now().UTC(), nil)
	require.ErrorIs(t, err, sql.ErrNoRows)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestOrderRepositoryMarkInProgressIgnoresAdvancedOrder(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()

	repo := NewOrderRepository(db)
	mock.ExpectExec(regexp.QuoteMeta("UPDATE work_orders SET")).
		WillReturnResult(sqlmock.NewResult(0, 0))

	require.NoError(t, repo.MarkInProgress(context.Background(), "order-1"))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestOrderRepositoryGetWithTasksOrdersByPosition(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()

	repo := NewOrderRepository(db)
	orderRows := sqlmock.NewRows([]string{"id", "request_id", "technician_id", "template_id", "title", "scheduled_date", "status", "comments", "finished_at", "report_path", "created_at", "updated_at"}).
		AddRow("order-1", "req-1", "tech-1", "tpl-1", "Inspection", nil, "ASSIGNED", "", nil, nil, time.Now(), time.Now())
	mock.ExpectQuery(regexp.QuoteMeta("SELECT id, request_id, technician_id")).
		WithArgs("order-1").
		WillReturnRows(orderRows)

	taskRows := sqlmock.NewRows([]string{"id", "order_id", "template_task_id", "description", "result", "observation", "evidence_path", "position"}).
		AddRow("task-1", "order-1", "tt-1", "Check wiring", "PENDING", "", nil, 1).
		AddRow("task-2", "order-1", "tt-2", "Test siren", "PENDING", "", nil, 2)
	mock.ExpectQuery(regexp.QuoteMeta("ORDER BY position ASC")).
		WithArgs("order-1").
		WillReturnRows(taskRows)

	order, err := repo.GetWithTasks(context.Background(), "order-1")
	require.NoError(t, err)
	require.Len(t, order.Tasks, 2)
	require.Equal(t, 1, order.Tasks[0].Position)
	require.NoError(t, mock.ExpectationsWereMet())
}
