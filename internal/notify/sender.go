package notify

import (
	"context"
	"fmt"
	"net/smtp"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"realtyportal/internal/config"
)

// Message is a single outbound email.
type Message struct {
	To      string
	Subject string
	HTML    string
	Text    string
}

// Result identifies an accepted message.
type Result struct {
	ID string
}

// Sender delivers messages. Implementations must be safe for concurrent use.
type Sender interface {
	Send(ctx context.Context, msg Message) (Result, error)
}

// SMTPSender sends multipart email through an SMTP relay
type SMTPSender struct {
	cfg  *config.EmailConfig
	log  *logrus.Entry
	send func(addr string, a smtp.Auth, from string, to []string, msg []byte) error
}

// NewSMTPSender creates a new SMTP sender. A disabled config yields a sender
// that logs each message and reports success.
func NewSMTPSender(cfg *config.EmailConfig) *SMTPSender {
	return &SMTPSender{
		cfg:  cfg,
		log:  logrus.WithField("component", "notify"),
		send: smtp.SendMail,
	}
}

// Send sends an HTML email with plain text fallback
func (s *SMTPSender) Send(ctx context.Context, msg Message) (Result, error) {
	if !s.cfg.Enabled {
		s.log.WithFields(logrus.Fields{"to": msg.To, "subject": msg.Subject}).Info("Email disabled, message not sent")
		return Result{ID: "noop"}, nil
	}

	// Validate configuration
	if s.cfg.SMTPHost == "" || s.cfg.Username == "" || s.cfg.Password == "" {
		return Result{}, fmt.Errorf("email service not properly configured")
	}
	if err := ctx.Err(); err != nil {
		return Result{}, err
	}

	id := uuid.NewString()
	raw := s.build(id, msg)

	auth := smtp.PlainAuth("", s.cfg.Username, s.cfg.Password, s.cfg.SMTPHost)
	addr := fmt.Sprintf("%s:%d", s.cfg.SMTPHost, s.cfg.SMTPPort)

	// net/smtp has no context support; run it aside so ctx still bounds the call.
	done := make(chan error, 1)
	go func() {
		done <- s.send(addr, auth, s.cfg.FromEmail, []string{msg.To}, raw)
	}()

	select {
	case err := <-done:
		if err != nil {
			return Result{}, fmt.Errorf("failed to send email: %w", err)
		}
		return Result{ID: id}, nil
	case <-ctx.Done():
		return Result{}, fmt.Errorf("failed to send email: %w", ctx.Err())
	}
}

// build renders a multipart/alternative message
func (s *SMTPSender) build(id string, msg Message) []byte {
	from := s.cfg.FromEmail
	if s.cfg.FromName != "" {
		from = fmt.Sprintf("%s <%s>", s.cfg.FromName, s.cfg.FromEmail)
	}

	boundary := "----=_Part_" + strings.ReplaceAll(id, "-", "")

	var b strings.Builder
	fmt.Fprintf(&b, "From: %s\r\n", from)
	fmt.Fprintf(&b, "To: %s\r\n", msg.To)
	fmt.Fprintf(&b, "Subject: %s\r\n", msg.Subject)
	fmt.Fprintf(&b, "Message-ID: <%s@%s>\r\n", id, s.cfg.SMTPHost)
	fmt.Fprintf(&b, "Date: %s\r\n", time.Now().UTC().Format(time.RFC1123Z))
	b.WriteString("MIME-Version: 1.0\r\n")
	fmt.Fprintf(&b, "Content-Type: multipart/alternative; boundary=\"%s\"\r\n\r\n", boundary)

	// Plain text part
	fmt.Fprintf(&b, "--%s\r\n", boundary)
	b.WriteString("Content-Type: text/plain; charset=UTF-8\r\n\r\n")
	b.WriteString(msg.Text + "\r\n")

	// HTML part (if provided)
	if msg.HTML != "" {
		fmt.Fprintf(&b, "--%s\r\n", boundary)
		b.WriteString("Content-Type: text/html; charset=UTF-8\r\n\r\n")
		b.WriteString(msg.HTML + "\r\n")
	}

	fmt.Fprintf(&b, "--%s--\r\n", boundary)
	return []byte(b.String())
}
