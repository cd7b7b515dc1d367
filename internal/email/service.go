// Package email sends the mail records queued by the notification
// fanout via SMTP.
package email

import (
	"bytes"
	"context"
	"fmt"
	"net/smtp"
	"strings"

	"arena/sync/internal/snapshot"
)

// Config holds SMTP configuration
type Config struct {
	Host     string
	Port     string
	Username string
	Password string
	From     string
	FromName string
}

// Service provides email sending
type Service struct {
	config Config
	server string
	auth   smtp.Auth
	send   func(addr string, a smtp.Auth, from string, to []string, msg []byte) error
}

// NewService creates a new email service
func NewService(config Config) *Service {
	auth := smtp.PlainAuth("", config.Username, config.Password, config.Host)

	return &Service{
		config: config,
		server: config.Host + ":" + config.Port,
		auth:   auth,
		send:   smtp.SendMail,
	}
}

// IsConfigured returns true if email is configured
func (s *Service) IsConfigured() bool {
	return s.config.Host != "" && s.config.Port != "" && s.config.From != ""
}

// Deliver sends one queued mail record. Recipients come from the
// record's to and bcc lists; the message body carries both a plain-text
// and an HTML part.
func (s *Service) Deliver(ctx context.Context, fields map[string]any) error {
	recipients := append(snapshot.Strings(fields, "to"), snapshot.Strings(fields, "bcc")...)
	if len(recipients) == 0 {
		return fmt.Errorf("mail record has no recipients")
	}

	message, _ := fields["message"].(map[string]any)
	subject := snapshot.String(message, "subject")
	text := snapshot.String(message, "text")
	html := snapshot.String(message, "html")

	visibleTo := snapshot.Strings(fields, "to")
	return s.SendHTMLEmail(visibleTo, recipients, subject, text, html)
}

// SendHTMLEmail sends a multipart text+HTML email. envelope lists every
// actual recipient; only visibleTo appears in the headers, so BCC
// batches stay hidden from each other.
func (s *Service) SendHTMLEmail(visibleTo, envelope []string, subject, text, html string) error {
	if !s.IsConfigured() {
		return fmt.Errorf("email not configured")
	}

	from := s.config.From
	if s.config.FromName != "" {
		from = fmt.Sprintf("%s <%s>", s.config.FromName, s.config.From)
	}
	if len(visibleTo) == 0 {
		visibleTo = []string{s.config.From}
	}

	boundary := "boundary-arena"

	var msg bytes.Buffer
	fmt.Fprintf(&msg, "To: %s\r\n", strings.Join(visibleTo, ", "))
	fmt.Fprintf(&msg, "From: %s\r\n", from)
	fmt.Fprintf(&msg, "Subject: %s\r\n", subject)
	fmt.Fprintf(&msg, "MIME-Version: 1.0\r\n")
	fmt.Fprintf(&msg, "Content-Type: multipart/alternative; boundary=\"%s\"\r\n", boundary)
	fmt.Fprintf(&msg, "\r\n")

	fmt.Fprintf(&msg, "--%s\r\n", boundary)
	fmt.Fprintf(&msg, "Content-Type: text/plain; charset=UTF-8\r\n")
	fmt.Fprintf(&msg, "\r\n")
	fmt.Fprintf(&msg, "%s\r\n", text)
	fmt.Fprintf(&msg, "\r\n")

	fmt.Fprintf(&msg, "--%s\r\n", boundary)
	fmt.Fprintf(&msg, "Content-Type: text/html; charset=UTF-8\r\n")
	fmt.Fprintf(&msg, "\r\n")
	fmt.Fprintf(&msg, "%s\r\n", html)
	fmt.Fprintf(&msg, "\r\n")
	fmt.Fprintf(&msg, "--%s--\r\n", boundary)

	return s.send(s.server, s.auth, s.config.From, envelope, msg.Bytes())
}
