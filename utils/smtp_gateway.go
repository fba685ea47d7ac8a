package utils

import (
	"context"
	"crypto/tls"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"gopkg.in/gomail.v2"
)

// SMTPConfig holds the relay settings for SMTPGateway.
type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	// SSL forces implicit TLS; otherwise STARTTLS is negotiated when offered.
	SSL bool
}

type smtpSender interface {
	DialAndSend(m ...*gomail.Message) error
}

// SMTPGateway delivers messages through an SMTP relay.
type SMTPGateway struct {
	dialer smtpSender
	domain string
}

func NewSMTPGateway(cfg SMTPConfig) *SMTPGateway {
	dialer := gomail.NewDialer(cfg.Host, cfg.Port, cfg.Username, cfg.Password)
	dialer.SSL = cfg.SSL
	dialer.TLSConfig = &tls.Config{ServerName: cfg.Host}

	return &SMTPGateway{
		dialer: dialer,
		domain: cfg.Host,
	}
}

func (g *SMTPGateway) Send(ctx context.Context, msg OutboundMessage) (SendResult, error) {
	if err := ValidateMessage(msg); err != nil {
		return SendResult{}, err
	}

	messageID := fmt.Sprintf("<%s@%s>", uuid.New().String(), messageIDDomain(msg.From, g.domain))

	m := gomail.NewMessage()
	if msg.FromName != "" {
		m.SetHeader("From", m.FormatAddress(msg.From, msg.FromName))
	} else {
		m.SetHeader("From", msg.From)
	}
	m.SetHeader("To", msg.To)
	m.SetHeader("Subject", msg.Subject)
	m.SetHeader("Message-ID", messageID)
	m.SetHeader("X-Mailer", "raiseflow")
	m.SetBody("text/html", msg.HTMLBody)

	// gomail has no context support; the send keeps running in the
	// background if ctx expires first.
	done := make(chan error, 1)
	go func() {
		done <- g.dialer.DialAndSend(m)
	}()

	select {
	case <-ctx.Done():
		return SendResult{}, fmt.Errorf("smtp send aborted: %w", ctx.Err())
	case err := <-done:
		if err != nil {
			return SendResult{}, fmt.Errorf("smtp send failed: %w", err)
		}
	}

	return SendResult{MessageID: messageID}, nil
}

func messageIDDomain(from, fallback string) string {
	if at := strings.LastIndex(from, "@"); at != -1 && at < len(from)-1 {
		return from[at+1:]
	}
	if fallback != "" {
		return fallback
	}
	return "localhost"
}
