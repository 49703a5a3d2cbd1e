package notify

import (
	"context"
	"fmt"
	"net/smtp"
	"strings"

	"github.com/twistlabs/guardian/internal/domain"
)

// EmailSender delivers alerts over SMTP. Reserved for the severities worth a
// mailbox: the manager only routes critical alerts here.
type EmailSender struct {
	host     string
	port     int
	username string
	password string
	from     string
	to       []string
}

// NewEmailSender creates a sender for the given SMTP endpoint and recipient
// list.
func NewEmailSender(host string, port int, username, password, from string, to []string) *EmailSender {
	return &EmailSender{
		host:     host,
		port:     port,
		username: username,
		password: password,
		from:     from,
		to:       to,
	}
}

// Send mails the alert to all configured recipients.
func (e *EmailSender) Send(ctx context.Context, alert domain.Alert) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("email: %w", err)
	}

	var body strings.Builder
	fmt.Fprintf(&body, "From: %s\r\n", e.from)
	fmt.Fprintf(&body, "To: %s\r\n", strings.Join(e.to, ", "))
	fmt.Fprintf(&body, "Subject: [%s] %s\r\n", strings.ToUpper(alert.Severity.String()), alert.Type)
	body.WriteString("\r\n")
	fmt.Fprintf(&body, "%s\r\n\r\n", alert.Message)
	for k, v := range alert.Metadata {
		fmt.Fprintf(&body, "%s: %s\r\n", k, v)
	}
	fmt.Fprintf(&body, "\r\nAlert ID: %s\r\nCreated: %s\r\n", alert.ID, alert.CreatedAt.Format("2006-01-02 15:04:05 MST"))

	addr := fmt.Sprintf("%s:%d", e.host, e.port)
	var auth smtp.Auth
	if e.username != "" {
		auth = smtp.PlainAuth("", e.username, e.password, e.host)
	}

	if err := smtp.SendMail(addr, auth, e.from, e.to, []byte(body.String())); err != nil {
		return fmt.Errorf("email: send: %w", err)
	}
	return nil
}

// Name returns the sender identifier.
func (e *EmailSender) Name() string {
	return "email"
}
