package email

import (
	"context"
	"crypto/tls"
	"fmt"

	mail "github.com/go-mail/mail"

	"github.com/IbrahimMohamed101/ecommerce-platform/pkg/config"
	"github.com/IbrahimMohamed101/ecommerce-platform/pkg/observability"
)

// Message is a single outbound email.
type Message struct {
	To       string
	Subject  string
	HTMLBody string
	TextBody string
}

// Sender delivers email messages. Delivery failures must never abort the
// operation that triggered the message; callers log and move on.
type Sender interface {
	Send(ctx context.Context, msg Message) error
}

// SMTPSender delivers mail through an SMTP relay.
type SMTPSender struct {
	host string
	port int
	from string
	log  *observability.Logger

	dialer *mail.Dialer
}

// NewSMTPSender builds a sender from the platform email configuration.
func NewSMTPSender(cfg config.EmailConfig, log *observability.Logger) *SMTPSender {
	d := mail.NewDialer(cfg.Host, cfg.Port, cfg.Username, cfg.Password)
	d.TLSConfig = &tls.Config{ServerName: cfg.Host}
	return &SMTPSender{
		host:   cfg.Host,
		port:   cfg.Port,
		from:   cfg.From,
		log:    log,
		dialer: d,
	}
}

func (s *SMTPSender) Send(ctx context.Context, msg Message) error {
	m := mail.NewMessage()
	m.SetHeader("From", s.from)
	m.SetHeader("To", msg.To)
	m.SetHeader("Subject", msg.Subject)
	if msg.TextBody != "" {
		m.SetBody("text/plain", msg.TextBody)
		if msg.HTMLBody != "" {
			m.AddAlternative("text/html", msg.HTMLBody)
		}
	} else {
		m.SetBody("text/html", msg.HTMLBody)
	}

	if err := s.dialer.DialAndSend(m); err != nil {
		s.log.WithError(err).WithFields(map[string]interface{}{
			"to":   msg.To,
			"host": s.host,
		}).Error("failed to send email")
		return fmt.Errorf("smtp send: %w", err)
	}

	s.log.WithFields(map[string]interface{}{
		"to":      msg.To,
		"subject": msg.Subject,
	}).Debug("email sent")
	return nil
}

// LogSender writes messages to the log instead of delivering them. Used in
// development and whenever email is disabled.
type LogSender struct {
	log *observability.Logger
}

func NewLogSender(log *observability.Logger) *LogSender {
	return &LogSender{log: log}
}

func (s *LogSender) Send(_ context.Context, msg Message) error {
	s.log.WithFields(map[string]interface{}{
		"to":      msg.To,
		"subject": msg.Subject,
	}).Info("email delivery disabled, logging message")
	s.log.WithField("to", msg.To).Debug(msg.TextBody)
	return nil
}

// NewSender selects the SMTP sender when email is enabled and configured,
// falling back to log-only delivery otherwise.
func NewSender(cfg config.EmailConfig, log *observability.Logger) Sender {
	if cfg.Enabled && cfg.Host != "" {
		return NewSMTPSender(cfg, log)
	}
	return NewLogSender(log)
}
