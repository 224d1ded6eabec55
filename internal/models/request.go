package models

import "time"

// RequestStatus captures the workflow states of a service request.
type RequestStatus string

const (
	RequestStatusPending   RequestStatus = "PENDING"
	RequestStatusQuoting   RequestStatus = "QUOTING"
	RequestStatusApproved  RequestStatus = "APPROVED"
	RequestStatusCompleted RequestStatus = "COMPLETED"
	RequestStatusRejected  RequestStatus = "REJECTED"
	RequestStatusAnnulled  RequestStatus = "ANNULLED"
)

// ServiceRequest is a client-submitted ask for an inspection. The technician,
// template and scheduled date staged at quoting time live on the request row
// until the client accepts; acceptance materializes them into a work order and
// clears them here.
type ServiceRequest struct {
	ID          string        `db:"id" json:"id"`
	ClientID    string        `db:"client_id" json:"client_id"`
	ContactName string        `db:"contact_name" json:"contact_name"`
	Address     string        `db:"address" json:"address"`
	Phone       string        `db:"phone" json:"phone"`
	Equipment   string        `db:"equipment" json:"equipment"`
	Notes       string        `db:"notes" json:"notes"`
	Status      RequestStatus `db:"status" json:"status"`

	QuoteAmount *int64  `db:"quote_amount" json:"quote_amount,omitempty"`
	QuoteDetail *string `db:"quote_detail" json:"quote_detail,omitempty"`

	// Pre-assignment, populated by Quote and cleared by AcceptQuote.
	TechnicianID  *string    `db:"technician_id" json:"technician_id,omitempty"`
	TemplateID    *string    `db:"template_id" json:"template_id,omitempty"`
	ScheduledDate *time.Time `db:"scheduled_date" json:"scheduled_date,omitempty"`

	RejectReason *string   `db:"reject_reason" json:"reject_reason,omitempty"`
	CreatedAt    time.Time `db:"created_at" json:"created_at"`
	UpdatedAt    time.Time `db:"updated_at" json:"updated_at"`
}

// RequestFilter constrains request listing queries.
type RequestFilter struct {
	Status   []RequestStatus
	ClientID string
	Limit    int
	Offset   int
}
