package mailer

import (
	"fmt"
	"net/smtp"

	"github.com/optifire/inspection-api/pkg/config"
)

// Mailer sends plain-text or HTML mail through an SMTP relay.
type Mailer interface {
	Send(to, subject, body string) error
}

// SMTPMailer implements Mailer over net/smtp.
type SMTPMailer struct {
	cfg config.SMTPConfig
}

// NewSMTP constructs an SMTP-backed mailer.
func NewSMTP(cfg config.SMTPConfig) *SMTPMailer {
	return &SMTPMailer{cfg: cfg}
}

// Send delivers one message. Callers treat any error as non-fatal.
func (m *SMTPMailer) Send(to, subject, body string) error {
	if !m.cfg.Enabled {
		return fmt.Errorf("smtp disabled")
	}
	addr := fmt.Sprintf("%s:%d", m.cfg.Host, m.cfg.Port)

	msg := "From: " + m.cfg.From + "\r\n" +
		"To: " + to + "\r\n" +
		"Subject: " + subject + "\r\n" +
		"MIME-Version: 1.0\r\n" +
		"Content-Type: text/html; charset=\"UTF-8\"\r\n" +
		"\r\n" +
		body

	var auth smtp.Auth
	if m.cfg.User != "" {
		auth = smtp.PlainAuth("", m.cfg.User, m.cfg.Password, m.cfg.Host)
	}

	if err := smtp.SendMail(addr, auth, m.cfg.From, []string{to}, []byte(msg)); err != nil {
		return fmt.Errorf("smtp send: %w", err)
	}

	return nil
}
