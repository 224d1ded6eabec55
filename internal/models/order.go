package models

import "time"

// OrderStatus captures the work order sub-state machine.
type OrderStatus string

const (
	OrderStatusAssigned   OrderStatus = "ASSIGNED"
	OrderStatusInProgress OrderStatus = "IN_PROGRESS"
	OrderStatusCompleted  OrderStatus = "COMPLETED"
)

// TaskResult is the technician's verdict on one checklist item.
type TaskResult string

const (
	TaskResultPass    TaskResult = "PASS"
	TaskResultFail    TaskResult = "FAIL"
	TaskResultNA      TaskResult = "NA"
	TaskResultPending TaskResult = "PENDING"
)

// WorkOrder is the bound, executable unit created once a quote is accepted.
// The technician is fixed at creation; reassignment means a new order.
// TemplateID is kept for audit only and survives template deletion attempts
// being refused upstream.
type WorkOrder struct {
	ID            string      `db:"id" json:"id"`
	RequestID     string      `db:"request_id" json:"request_id"`
	TechnicianID  string      `db:"technician_id" json:"technician_id"`
	TemplateID    *string     `db:"template_id" json:"template_id,omitempty"`
	Title         string      `db:"title" json:"title"`
	ScheduledDate *time.Time  `db:"scheduled_date" json:"scheduled_date,omitempty"`
	Status        OrderStatus `db:"status" json:"status"`
	Comments      string      `db:"comments" json:"comments"`
	FinishedAt    *time.Time  `db:"finished_at" json:"finished_at,omitempty"`
	ReportPath    *string     `db:"report_path" json:"report_path,omitempty"`
	CreatedAt     time.Time   `db:"created_at" json:"created_at"`
	UpdatedAt     time.Time   `db:"updated_at" json:"updated_at"`

	Tasks []OrderTask `db:"-" json:"tasks,omitempty"`
}

// OrderTask is a structural copy of a template task made at expansion time.
// Only its result fields ever mutate; rows are never added or removed after
// expansion.
type OrderTask struct {
	ID             string     `db:"id" json:"id"`
	OrderID        string     `db:"order_id" json:"order_id"`
	TemplateTaskID *string    `db:"template_task_id" json:"template_task_id,omitempty"`
	Description    string     `db:"description" json:"description"`
	Result         TaskResult `db:"result" json:"result"`
	Observation    string     `db:"observation" json:"observation"`
	EvidencePath   *string    `db:"evidence_path" json:"evidence_path,omitempty"`
	Position       int        `db:"position" json:"position"`
}

// OrderFilter constrains order listing queries.
type OrderFilter struct {
	TechnicianID string
	Status       []OrderStatus
	Limit        int
	Offset       int
}
