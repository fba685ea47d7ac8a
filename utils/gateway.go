package utils

import (
	"context"
	"errors"
	"fmt"
)

var ErrInvalidMessage = errors.New("invalid outbound message")

// OutboundMessage is a rendered message ready for delivery.
type OutboundMessage struct {
	To       string `validate:"required,email"`
	Subject  string `validate:"required"`
	HTMLBody string `validate:"required"`
	From     string `validate:"required,email"`
	FromName string
}

// SendResult carries the transport's opaque message id.
type SendResult struct {
	MessageID string
}

// Gateway delivers one message. Implementations make exactly one delivery
// attempt per call and honour ctx cancellation.
type Gateway interface {
	Send(ctx context.Context, msg OutboundMessage) (SendResult, error)
}

// ValidateMessage checks the message before any transport is touched.
func ValidateMessage(msg OutboundMessage) error {
	if err := ValidateStruct(msg); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidMessage, err)
	}
	return nil
}

func formatAddress(name, email string) string {
	if name == "" {
		return email
	}
	return fmt.Sprintf("%s <%s>", name, email)
}
