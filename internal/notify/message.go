// Package notify emails the contacts of verified clients, one message per
// contact, with the uploaded document attached.
package notify

import (
	"context"

	"go.uber.org/zap"
)

// Message is one outbound email.
type Message struct {
	To             string
	RecipientName  string
	Client         string
	Subject        string
	Body           string
	AttachmentName string
	Attachment     []byte
	SenderAlias    string
}

// Sender delivers a single message.
type Sender interface {
	Send(ctx context.Context, msg Message) error
}

// LogSender is a Sender that only logs. Used for dry runs.
type LogSender struct{}

// Send logs msg and reports success.
func (LogSender) Send(_ context.Context, msg Message) error {
	zap.L().Info("notify: dry run, not sending",
		zap.String("to", msg.To),
		zap.String("client", msg.Client),
		zap.String("subject", msg.Subject),
		zap.String("attachment", msg.AttachmentName),
		zap.Int("attachment_bytes", len(msg.Attachment)),
	)
	return nil
}
