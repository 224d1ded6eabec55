package service

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/optifire/inspection-api/internal/models"
	"github.com/optifire/inspection-api/pkg/jobs"
)

type notificationWriter interface {
	BulkCreate(ctx context.Context, notifications []models.Notification) error
	ListAdminIDs(ctx context.Context) ([]string, error)
}

type recipientResolver interface {
	FindByID(ctx context.Context, id string) (*models.User, error)
}

type mailQueue interface {
	Enqueue(job jobs.Job) error
}

// EmailPayload is the unit of work consumed by the mail queue handler.
type EmailPayload struct {
	To      string
	Subject string
	Body    string
}

// Notifier translates workflow transitions into in-app notifications and
// best-effort outbound email. Every method is fire-and-forget: failures are
// logged and swallowed so side effects can never abort a domain transition.
type Notifier struct {
	store  notificationWriter
	users  recipientResolver
	mail   mailQueue
	logger *zap.Logger
}

// NewNotifier constructs the dispatcher. The mail queue may be nil, in which
// case email dispatch is skipped entirely.
func NewNotifier(store notificationWriter, users recipientResolver, mail mailQueue, logger *zap.Logger) *Notifier {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Notifier{store: store, users: users, mail: mail, logger: logger}
}

// RequestSubmitted tells every administrator a new request arrived.
func (n *Notifier) RequestSubmitted(ctx context.Context, request *models.ServiceRequest) {
	message := fmt.Sprintf("New service request from %s: %s", request.ContactName, request.Equipment)
	n.notifyAdmins(ctx, message, models.NotificationKindRequest, request.ID)
}

// RequestRejected tells the owning client their request was turned down, and
// mails them for the client-facing channel.
func (n *Notifier) RequestRejected(ctx context.Context, request *models.ServiceRequest, reason string) {
	message := "Your service request was rejected"
	if reason != "" {
		message = fmt.Sprintf("Your service request was rejected: %s", reason)
	}
	n.notifyUser(ctx, request.ClientID, message, models.NotificationKindRequest, request.ID)
	n.email(ctx, request.ClientID, "Service request rejected", message)
}

// RequestAnnulled tells every administrator the client withdrew the request.
func (n *Notifier) RequestAnnulled(ctx context.Context, request *models.ServiceRequest) {
	message := fmt.Sprintf("Service request %s was annulled by the client", request.ID)
	n.notifyAdmins(ctx, message, models.NotificationKindRequest, request.ID)
}

// QuoteAccepted tells the owning client and the newly assigned technician the
// request was approved, with distinct messages, and mails the client.
func (n *Notifier) QuoteAccepted(ctx context.Context, request *models.ServiceRequest, order *models.WorkOrder) {
	clientMessage := "Your quote was accepted and a work order has been scheduled"
	n.notifyUser(ctx, request.ClientID, clientMessage, models.NotificationKindOrder, order.ID)

	technicianMessage := fmt.Sprintf("You have been assigned a new work order: %s", order.Title)
	n.notifyUser(ctx, order.TechnicianID, technicianMessage, models.NotificationKindOrder, order.ID)

	n.email(ctx, request.ClientID, "Service approved",
		"Your quote was accepted. A technician will perform the inspection on the scheduled date.")
}

// OrderCompleted tells the owning client and every administrator the work
// order finished, and mails the client.
func (n *Notifier) OrderCompleted(ctx context.Context, order *models.WorkOrder, clientID string) {
	clientMessage := fmt.Sprintf("Your inspection %q has been completed", order.Title)
	n.notifyUser(ctx, clientID, clientMessage, models.NotificationKindOrder, order.ID)
	n.notifyAdmins(ctx, fmt.Sprintf("Work order %q was completed", order.Title), models.NotificationKindOrder, order.ID)
	n.email(ctx, clientID, "Inspection completed",
		fmt.Sprintf("The inspection %q has been completed. The closing report is available in your account.", order.Title))
}

// EvidenceAttached tells the owning client a task gained its first photo.
func (n *Notifier) EvidenceAttached(ctx context.Context, order *models.WorkOrder, clientID, taskDescription string) {
	message := fmt.Sprintf("New evidence was attached to %q on your inspection %q", taskDescription, order.Title)
	n.notifyUser(ctx, clientID, message, models.NotificationKindOrder, order.ID)
}

func (n *Notifier) notifyAdmins(ctx context.Context, message string, kind models.NotificationKind, refID string) {
	adminIDs, err := n.store.ListAdminIDs(ctx)
	if err != nil {
		n.logger.Warn("failed to resolve administrators for notification", zap.Error(err))
		return
	}
	notifications := make([]models.Notification, 0, len(adminIDs))
	link := notificationLink(kind, refID)
	for _, id := range adminIDs {
		notifications = append(notifications, models.Notification{
			UserID:  id,
			Message: message,
			Link:    link,
			Kind:    kind,
			RefID:   &refID,
		})
	}
	if len(notifications) == 0 {
		return
	}
	if err := n.store.BulkCreate(ctx, notifications); err != nil {
		n.logger.Warn("failed to create admin notifications", zap.Error(err))
	}
}

func (n *Notifier) notifyUser(ctx context.Context, userID, message string, kind models.NotificationKind, refID string) {
	notification := models.Notification{
		UserID:  userID,
		Message: message,
		Link:    notificationLink(kind, refID),
		Kind:    kind,
		RefID:   &refID,
	}
	if err := n.store.BulkCreate(ctx, []models.Notification{notification}); err != nil {
		n.logger.Warn("failed to create notification", zap.String("user_id", userID), zap.Error(err))
	}
}

func (n *Notifier) email(ctx context.Context, userID, subject, body string) {
	if n.mail == nil {
		return
	}
	user, err := n.users.FindByID(ctx, userID)
	if err != nil {
		n.logger.Warn("failed to resolve email recipient", zap.String("user_id", userID), zap.Error(err))
		return
	}
	job := jobs.Job{
		ID:      uuid.NewString(),
		Type:    "email",
		Payload: EmailPayload{To: user.Email, Subject: subject, Body: body},
	}
	if err := n.mail.Enqueue(job); err != nil {
		n.logger.Warn("failed to enqueue email", zap.String("to", user.Email), zap.Error(err))
	}
}

func notificationLink(kind models.NotificationKind, refID string) *string {
	var link string
	switch kind {
	case models.NotificationKindRequest:
		link = "/requests/" + refID
	case models.NotificationKindOrder:
		link = "/orders/" + refID
	default:
		return nil
	}
	return &link
}
