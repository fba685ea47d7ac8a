package utils

import (
	"context"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// LogGateway logs messages instead of delivering them. Used in development
// and as the default when no transport is configured.
type LogGateway struct {
	log *logrus.Entry
}

func NewLogGateway(log *logrus.Entry) *LogGateway {
	return &LogGateway{log: log}
}

func (g *LogGateway) Send(ctx context.Context, msg OutboundMessage) (SendResult, error) {
	if err := ctx.Err(); err != nil {
		return SendResult{}, err
	}
	if err := ValidateMessage(msg); err != nil {
		return SendResult{}, err
	}

	messageID := "log-" + uuid.New().String()
	g.log.WithFields(logrus.Fields{
		"to":         msg.To,
		"from":       msg.From,
		"subject":    msg.Subject,
		"message_id": messageID,
		"body_bytes": len(msg.HTMLBody),
	}).Info("Outbound message logged")

	return SendResult{MessageID: messageID}, nil
}
