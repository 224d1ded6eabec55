package dto

import (
	"time"

	"github.com/optifire/inspection-api/internal/models"
)

// SubmitRequestPayload creates a new service request.
type SubmitRequestPayload struct {
	ContactName string `json:"contact_name" validate:"required"`
	Address     string `json:"address" validate:"required"`
	Phone       string `json:"phone" validate:"required"`
	Equipment   string `json:"equipment" validate:"required"`
	Notes       string `json:"notes"`
}

// QuoteRequestPayload stages the quote and pre-assignment on a pending request.
type QuoteRequestPayload struct {
	TechnicianID  string     `json:"technician_id" validate:"required"`
	TemplateID    string     `json:"template_id" validate:"required"`
	Amount        int64      `json:"amount" validate:"required,gt=0"`
	Detail        string     `json:"detail"`
	ScheduledDate *time.Time `json:"scheduled_date"`
}

// RejectRequestPayload carries the mandatory administrator rejection reason.
type RejectRequestPayload struct {
	Reason string `json:"reason" validate:"required"`
}

// RejectQuotePayload carries the optional client note when declining a quote.
type RejectQuotePayload struct {
	Note string `json:"note"`
}

// RequestQuery filters request listings.
type RequestQuery struct {
	Status []models.RequestStatus
	Limit  int
	Offset int
}
