package notify

import (
	"context"
	"fmt"
	"log"
	"net/smtp"
	"strings"
)

// SMTPMailer sends plain-text mail through a single SMTP endpoint.  No
// example deployment needs more than that; richer providers plug in
// behind the Mailer interface.
type SMTPMailer struct {
	addr string // host:port
	from string
	auth smtp.Auth
}

// NewSMTPMailer returns an SMTPMailer.  username may be empty for
// unauthenticated relays.
func NewSMTPMailer(host string, port int, username, password, from string) *SMTPMailer {
	var auth smtp.Auth
	if username != "" {
		auth = smtp.PlainAuth("", username, password, host)
	}
	return &SMTPMailer{
		addr: fmt.Sprintf("%s:%d", host, port),
		from: from,
		auth: auth,
	}
}

// Send delivers one message.  net/smtp has no context support, so the
// dispatcher's timeout race is what bounds a stuck connection; the
// context is still checked first to skip sends whose dispatch already
// gave up.
func (m *SMTPMailer) Send(ctx context.Context, to, subject, body string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	var b strings.Builder
	fmt.Fprintf(&b, "From: %s\r\n", m.from)
	fmt.Fprintf(&b, "To: %s\r\n", to)
	fmt.Fprintf(&b, "Subject: %s\r\n", subject)
	b.WriteString("MIME-Version: 1.0\r\nContent-Type: text/plain; charset=\"utf-8\"\r\n\r\n")
	b.WriteString(body)
	b.WriteString("\r\n")
	return smtp.SendMail(m.addr, m.auth, m.from, []string{to}, []byte(b.String()))
}

// LogMailer is the fallback when SMTP is not configured: it logs what
// would have been sent so local development still shows the email leg.
type LogMailer struct{}

// Send logs the message and reports success.
func (LogMailer) Send(_ context.Context, to, subject, _ string) error {
	log.Printf("mail (not configured, logging only): to=%s subject=%q", to, subject)
	return nil
}
