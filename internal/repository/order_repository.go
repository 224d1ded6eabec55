package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/optifire/inspection-api/internal/models"
)

// ErrOrderExists signals that a work order was already materialized for the
// request, enforced by the unique index on work_orders.request_id.
var ErrOrderExists = errors.New("work order already exists for request")

const orderColumns = `id, request_id, technician_id, template_id, title, scheduled_date, status,
       comments, finished_at, report_path, created_at, updated_at`

const orderTaskColumns = `id, order_id, template_task_id, description, result, observation, evidence_path, position`

// OrderRepository persists work orders and their checklist tasks.
type OrderRepository struct {
	db *sqlx.DB
}

// NewOrderRepository constructs the repository.
func NewOrderRepository(db *sqlx.DB) *OrderRepository {
	return &OrderRepository{db: db}
}

// CreateWithTasks materializes a work order from an accepted quote in a single
// transaction: the request flips QUOTING -> APPROVED with its pre-assignment
// cleared, the order row is inserted, and every checklist task is copied in
// template order. Any failure rolls the whole expansion back.
//
// Returns sql.ErrNoRows when the request is no longer QUOTING and
// ErrOrderExists when an order for the request already exists.
func (r *OrderRepository) CreateWithTasks(ctx context.Context, order *models.WorkOrder, tasks []models.OrderTask) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin order expansion: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	now := time.Now().UTC()

	approveQuery := fmt.Sprintf(`UPDATE service_requests
	SET status = '%s', technician_id = NULL, template_id = NULL, scheduled_date = NULL, updated_at = $2
	WHERE id = $1 AND status = '%s'`,
		models.RequestStatusApproved, models.RequestStatusQuoting)
	result, execErr := tx.ExecContext(ctx, approveQuery, order.RequestID, now)
	if execErr != nil {
		err = fmt.Errorf("approve request: %w", execErr)
		return err
	}
	rows, rowsErr := result.RowsAffected()
	if rowsErr != nil {
		err = fmt.Errorf("check approve request rows: %w", rowsErr)
		return err
	}
	if rows == 0 {
		err = sql.ErrNoRows
		return err
	}

	if order.ID == "" {
		order.ID = uuid.NewString()
	}
	if order.Status == "" {
		order.Status = models.OrderStatusAssigned
	}
	order.CreatedAt = now
	order.UpdatedAt = now

	const insertOrder = `INSERT INTO work_orders
	(id, request_id, technician_id, template_id, title, scheduled_date, status, comments, created_at, updated_at)
	VALUES (:id, :request_id, :technician_id, :template_id, :title, :scheduled_date, :status, :comments, :created_at, :updated_at)`
	if _, err = sqlx.NamedExecContext(ctx, tx, insertOrder, order); err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == "23505" {
			err = ErrOrderExists
			return err
		}
		err = fmt.Errorf("create work order: %w", err)
		return err
	}

	if err = r.bulkInsertTasks(ctx, tx, order.ID, tasks); err != nil {
		return err
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit order expansion: %w", err)
	}
	order.Tasks = tasks
	return nil
}

func (r *OrderRepository) bulkInsertTasks(ctx context.Context, exec sqlx.ExtContext, orderID string, tasks []models.OrderTask) error {
	for i := range tasks {
		payload := tasks[i]
		if payload.ID == "" {
			payload.ID = uuid.NewString()
		}
		payload.OrderID = orderID
		if payload.Result == "" {
			payload.Result = models.TaskResultPending
		}

		if _, err := sqlx.NamedExecContext(ctx, exec, `INSERT INTO order_tasks
		(id, order_id, template_task_id, description, result, observation, position)
		VALUES (:id, :order_id, :template_task_id, :description, :result, :observation, :position)`, &payload); err != nil {
			return fmt.Errorf("bulk insert order task: %w", err)
		}
		tasks[i] = payload
	}
	return nil
}

// GetByID fetches a work order without its tasks.
func (r *OrderRepository) GetByID(ctx context.Context, id string) (*models.WorkOrder, error) {
	query := fmt.Sprintf("SELECT %s FROM work_orders WHERE id = $1", orderColumns)
	var order models.WorkOrder
	if err := r.db.GetContext(ctx, &order, query, id); err != nil {
		return nil, err
	}
	return &order, nil
}

// GetWithTasks fetches a work order along with its checklist, ordered by
// template position.
func (r *OrderRepository) GetWithTasks(ctx context.Context, id string) (*models.WorkOrder, error) {
	order, err := r.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	query := fmt.Sprintf("SELECT %s FROM order_tasks WHERE order_id = $1 ORDER BY position ASC", orderTaskColumns)
	if err := r.db.SelectContext(ctx, &order.Tasks, query, id); err != nil {
		return nil, fmt.Errorf("list order tasks: %w", err)
	}
	return order, nil
}

// GetTask fetches one checklist task scoped to its order.
func (r *OrderRepository) GetTask(ctx context.Context, orderID, taskID string) (*models.OrderTask, error) {
	query := fmt.Sprintf("SELECT %s FROM order_tasks WHERE id = $1 AND order_id = $2", orderTaskColumns)
	var task models.OrderTask
	if err := r.db.GetContext(ctx, &task, query, taskID, orderID); err != nil {
		return nil, err
	}
	return &task, nil
}

// List returns work orders matching the filter (latest first).
func (r *OrderRepository) List(ctx context.Context, filter models.OrderFilter) ([]models.WorkOrder, error) {
	builder := strings.Builder{}
	args := make([]interface{}, 0, 4)
	builder.WriteString(fmt.Sprintf("SELECT %s FROM work_orders", orderColumns))

	conditions := make([]string, 0, 2)
	if filter.TechnicianID != "" {
		args = append(args, filter.TechnicianID)
		conditions = append(conditions, fmt.Sprintf("technician_id = $%d", len(args)))
	}
	if len(filter.Status) > 0 {
		placeholders := make([]string, len(filter.Status))
		for i, status := range filter.Status {
			args = append(args, status)
			placeholders[i] = fmt.Sprintf("$%d", len(args))
		}
		conditions = append(conditions, fmt.Sprintf("status IN (%s)", strings.Join(placeholders, ",")))
	}
	if len(conditions) > 0 {
		builder.WriteString(" WHERE ")
		builder.WriteString(strings.Join(conditions, " AND "))
	}
	builder.WriteString(" ORDER BY created_at DESC")

	limit := filter.Limit
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	offset := filter.Offset
	if offset < 0 {
		offset = 0
	}
	builder.WriteString(fmt.Sprintf(" LIMIT %d OFFSET %d", limit, offset))

	var orders []models.WorkOrder
	if err := r.db.SelectContext(ctx, &orders, builder.String(), args...); err != nil {
		return nil, fmt.Errorf("list work orders: %w", err)
	}
	return orders, nil
}

// MarkInProgress flips an assigned order to IN_PROGRESS. Zero affected rows is
// fine: the order already advanced.
func (r *OrderRepository) MarkInProgress(ctx context.Context, id string) error {
	query := fmt.Sprintf(`UPDATE work_orders SET status = '%s', updated_at = $2 WHERE id = $1 AND status = '%s'`,
		models.OrderStatusInProgress, models.OrderStatusAssigned)
	if _, err := r.db.ExecContext(ctx, query, id, time.Now().UTC()); err != nil {
		return fmt.Errorf("mark order in progress: %w", err)
	}
	return nil
}

// TaskResultParams carries one checklist update.
type TaskResultParams struct {
	TaskID      string
	Result      models.TaskResult
	Observation string
}

// SaveProgress applies partial checklist updates and comments without closing
// the order. Returns sql.ErrNoRows when the order is already COMPLETED.
func (r *OrderRepository) SaveProgress(ctx context.Context, orderID string, comments string, updates []TaskResultParams) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin save progress: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if err = r.guardedOrderUpdate(ctx, tx, orderID,
		"comments = $2, updated_at = $3", comments, time.Now().UTC()); err != nil {
		return err
	}
	if err = r.applyTaskUpdates(ctx, tx, orderID, updates); err != nil {
		return err
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit save progress: %w", err)
	}
	return nil
}

// Finish closes a work order in a single transaction: the final checklist
// state is applied, the order flips to COMPLETED with a finish timestamp, and
// the parent request is marked COMPLETED. Returns sql.ErrNoRows when the order
// is already COMPLETED.
func (r *OrderRepository) Finish(ctx context.Context, orderID string, comments string, finishedAt time.Time, updates []TaskResultParams) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin finish order: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if err = r.applyTaskUpdates(ctx, tx, orderID, updates); err != nil {
		return err
	}

	set := fmt.Sprintf("status = '%s', comments = $2, finished_at = $3, updated_at = $3", models.OrderStatusCompleted)
	if err = r.guardedOrderUpdate(ctx, tx, orderID, set, comments, finishedAt); err != nil {
		return err
	}

	// The request close is idempotent: a request already COMPLETED (or in any
	// other state) simply stays put.
	closeQuery := fmt.Sprintf(`UPDATE service_requests SET status = '%s', updated_at = $2
	WHERE id = (SELECT request_id FROM work_orders WHERE id = $1) AND status = '%s'`,
		models.RequestStatusCompleted, models.RequestStatusApproved)
	if _, execErr := tx.ExecContext(ctx, closeQuery, orderID, finishedAt); execErr != nil {
		err = fmt.Errorf("close parent request: %w", execErr)
		return err
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit finish order: %w", err)
	}
	return nil
}

func (r *OrderRepository) guardedOrderUpdate(ctx context.Context, exec sqlx.ExtContext, orderID, set string, args ...interface{}) error {
	query := fmt.Sprintf("UPDATE work_orders SET %s WHERE id = $1 AND status != '%s'", set, models.OrderStatusCompleted)
	result, err := exec.ExecContext(ctx, query, append([]interface{}{orderID}, args...)...)
	if err != nil {
		return fmt.Errorf("update work order: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("check work order rows: %w", err)
	}
	if rows == 0 {
		return sql.ErrNoRows
	}
	return nil
}

func (r *OrderRepository) applyTaskUpdates(ctx context.Context, exec sqlx.ExtContext, orderID string, updates []TaskResultParams) error {
	for _, update := range updates {
		result, err := exec.ExecContext(ctx,
			`UPDATE order_tasks SET result = $3, observation = $4 WHERE id = $1 AND order_id = $2`,
			update.TaskID, orderID, update.Result, update.Observation)
		if err != nil {
			return fmt.Errorf("update order task: %w", err)
		}
		rows, err := result.RowsAffected()
		if err != nil {
			return fmt.Errorf("check order task rows: %w", err)
		}
		if rows == 0 {
			return fmt.Errorf("order task %s: %w", update.TaskID, sql.ErrNoRows)
		}
	}
	return nil
}

// SetTaskEvidence stores the evidence file path on a task.
func (r *OrderRepository) SetTaskEvidence(ctx context.Context, orderID, taskID, path string) error {
	result, err := r.db.ExecContext(ctx,
		`UPDATE order_tasks SET evidence_path = $3 WHERE id = $1 AND order_id = $2`,
		taskID, orderID, path)
	if err != nil {
		return fmt.Errorf("set task evidence: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("check task evidence rows: %w", err)
	}
	if rows == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// SetReportPath stores the generated report location on the order.
func (r *OrderRepository) SetReportPath(ctx context.Context, orderID, path string) error {
	if _, err := r.db.ExecContext(ctx,
		`UPDATE work_orders SET report_path = $2, updated_at = $3 WHERE id = $1`,
		orderID, path, time.Now().UTC()); err != nil {
		return fmt.Errorf("set report path: %w", err)
	}
	return nil
}

// CountOpenByTechnician reports how many unfinished orders a technician holds.
func (r *OrderRepository) CountOpenByTechnician(ctx context.Context, technicianID string) (int, error) {
	query := fmt.Sprintf(`SELECT COUNT(*) FROM work_orders WHERE technician_id = $1 AND status != '%s'`,
		models.OrderStatusCompleted)
	var count int
	if err := r.db.GetContext(ctx, &count, query, technicianID); err != nil {
		return 0, fmt.Errorf("count open orders: %w", err)
	}
	return count, nil
}
