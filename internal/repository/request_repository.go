package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/optifire/inspection-api/internal/models"
)

const requestColumns = `id, client_id, contact_name, address, phone, equipment, notes, status,
       quote_amount, quote_detail, technician_id, template_id, scheduled_date,
       reject_reason, created_at, updated_at`

// RequestRepository persists service request workflow data.
type RequestRepository struct {
	db *sqlx.DB
}

// NewRequestRepository constructs the repository.
func NewRequestRepository(db *sqlx.DB) *RequestRepository {
	return &RequestRepository{db: db}
}

// Create inserts a new service request row.
func (r *RequestRepository) Create(ctx context.Context, request *models.ServiceRequest) error {
	if request.ID == "" {
		request.ID = uuid.NewString()
	}
	if request.Status == "" {
		request.Status = models.RequestStatusPending
	}
	now := time.Now().UTC()
	if request.CreatedAt.IsZero() {
		request.CreatedAt = now
	}
	request.UpdatedAt = now

	const query = `INSERT INTO service_requests
	(id, client_id, contact_name, address, phone, equipment, notes, status, created_at, updated_at)
	VALUES (:id, :client_id, :contact_name, :address, :phone, :equipment, :notes, :status, :created_at, :updated_at)`
	if _, err := r.db.NamedExecContext(ctx, query, request); err != nil {
		return fmt.Errorf("create service request: %w", err)
	}
	return nil
}

// GetByID fetches a service request by identifier.
func (r *RequestRepository) GetByID(ctx context.Context, id string) (*models.ServiceRequest, error) {
	query := fmt.Sprintf("SELECT %s FROM service_requests WHERE id = $1", requestColumns)
	var request models.ServiceRequest
	if err := r.db.GetContext(ctx, &request, query, id); err != nil {
		return nil, err
	}
	return &request, nil
}

// List returns service requests matching the filter (latest first).
func (r *RequestRepository) List(ctx context.Context, filter models.RequestFilter) ([]models.ServiceRequest, error) {
	builder := strings.Builder{}
	args := make([]interface{}, 0, 4)
	builder.WriteString(fmt.Sprintf("SELECT %s FROM service_requests", requestColumns))

	conditions := make([]string, 0, 2)
	if len(filter.Status) > 0 {
		placeholders := make([]string, len(filter.Status))
		for i, status := range filter.Status {
			args = append(args, status)
			placeholders[i] = fmt.Sprintf("$%d", len(args))
		}
		conditions = append(conditions, fmt.Sprintf("status IN (%s)", strings.Join(placeholders, ",")))
	}
	if filter.ClientID != "" {
		args = append(args, filter.ClientID)
		conditions = append(conditions, fmt.Sprintf("client_id = $%d", len(args)))
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

	var requests []models.ServiceRequest
	if err := r.db.SelectContext(ctx, &requests, builder.String(), args...); err != nil {
		return nil, fmt.Errorf("list service requests: %w", err)
	}
	return requests, nil
}

// StageQuoteParams groups the columns written when an administrator quotes.
type StageQuoteParams struct {
	ID            string
	Amount        int64
	Detail        string
	TechnicianID  string
	TemplateID    string
	ScheduledDate *time.Time
}

// StageQuote stores the quote and pre-assignment on a pending request and
// moves it to QUOTING. Returns sql.ErrNoRows when the request is no longer
// pending, so concurrent reviews lose cleanly.
func (r *RequestRepository) StageQuote(ctx context.Context, params StageQuoteParams) error {
	query := fmt.Sprintf(`UPDATE service_requests
	SET status = '%s', quote_amount = :quote_amount, quote_detail = :quote_detail,
	    technician_id = :technician_id, template_id = :template_id,
	    scheduled_date = :scheduled_date, updated_at = :updated_at
	WHERE id = :id AND status = '%s'`,
		models.RequestStatusQuoting, models.RequestStatusPending)
	result, err := r.db.NamedExecContext(ctx, query, map[string]interface{}{
		"id":             params.ID,
		"quote_amount":   params.Amount,
		"quote_detail":   params.Detail,
		"technician_id":  params.TechnicianID,
		"template_id":    params.TemplateID,
		"scheduled_date": params.ScheduledDate,
		"updated_at":     time.Now().UTC(),
	})
	if err != nil {
		return fmt.Errorf("stage quote: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("check stage quote rows: %w", err)
	}
	if rows == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// UpdateStatus moves a request to a new status, guarded by the set of states
// the transition is allowed from. Reason is only written when non-nil.
// Returns sql.ErrNoRows when the request is not in an allowed state.
func (r *RequestRepository) UpdateStatus(ctx context.Context, id string, from []models.RequestStatus, to models.RequestStatus, reason *string) error {
	args := []interface{}{id, to, time.Now().UTC()}
	set := "status = $2, updated_at = $3"
	if reason != nil {
		args = append(args, *reason)
		set += fmt.Sprintf(", reject_reason = $%d", len(args))
	}
	placeholders := make([]string, len(from))
	for i, status := range from {
		args = append(args, status)
		placeholders[i] = fmt.Sprintf("$%d", len(args))
	}
	query := fmt.Sprintf("UPDATE service_requests SET %s WHERE id = $1 AND status IN (%s)",
		set, strings.Join(placeholders, ","))
	result, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("update request status: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("check request status rows: %w", err)
	}
	if rows == 0 {
		return sql.ErrNoRows
	}
	return nil
}
