package notify

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/sells-group/doc-intake/internal/model"
	"github.com/sells-group/doc-intake/internal/registry"
	"github.com/sells-group/doc-intake/internal/resilience"
)

// ContactSource resolves a client name to its contacts.
type ContactSource interface {
	ContactsFor(client string) []model.Contact
}

// Document is the file attached to every notification.
type Document struct {
	Name string
	Data []byte
}

// Dispatcher delivers messages through a Sender and reports every attempt as
// an Outcome.
type Dispatcher struct {
	sender Sender
	retry  resilience.RetryConfig
}

// NewDispatcher creates a Dispatcher. Transient send errors are retried
// according to retry.
func NewDispatcher(sender Sender, retry resilience.RetryConfig) *Dispatcher {
	return &Dispatcher{sender: sender, retry: retry}
}

// Deliver sends one message. It never returns an error and never panics;
// every failure, including a panic in the Sender, becomes a failed Outcome.
func (d *Dispatcher) Deliver(ctx context.Context, msg Message) (out model.Outcome) {
	out = model.Outcome{
		Client:    msg.Client,
		Recipient: msg.RecipientName,
		Email:     msg.To,
	}
	log := zap.L().With(zap.String("client", msg.Client), zap.String("to", msg.To))

	defer func() {
		if r := recover(); r != nil {
			out.Success = false
			out.Detail = fmt.Sprintf("Failed to send email to %s: panic: %v", msg.To, r)
			log.Error("notify: sender panicked", zap.Any("panic", r))
		}
	}()

	retry := d.retry
	retry.ShouldRetry = resilience.IsTransient
	retry.OnRetry = resilience.RetryLogger("smtp", "send")

	err := resilience.Do(ctx, retry, func(ctx context.Context) error {
		out.Attempts++
		return d.sender.Send(ctx, msg)
	})
	if err != nil {
		out.Detail = fmt.Sprintf("Failed to send email to %s: %v", msg.To, err)
		log.Warn("notify: send failed",
			zap.Int("attempts", out.Attempts),
			zap.String("class", resilience.ClassifyError(err)),
			zap.Error(err),
		)
		return out
	}

	out.Success = true
	out.Detail = "Email sent successfully to " + msg.To
	log.Info("notify: email sent", zap.Int("attempts", out.Attempts))
	return out
}

// Notify emails every contact of every client, in order, and returns one
// Outcome per contact. A failed send does not stop the loop. Once ctx is
// done the remaining contacts are recorded as failed without an attempt.
func (d *Dispatcher) Notify(ctx context.Context, contacts ContactSource, tmpl registry.Template, clients []string, doc Document, alias string) []model.Outcome {
	outcomes := []model.Outcome{}
	for _, client := range clients {
		for _, c := range contacts.ContactsFor(client) {
			if err := ctx.Err(); err != nil {
				outcomes = append(outcomes, model.Outcome{
					Client:    client,
					Recipient: c.Name,
					Email:     c.Email,
					Detail:    err.Error(),
				})
				continue
			}

			subject, body := tmpl.Render(client, c.Name)
			outcomes = append(outcomes, d.Deliver(ctx, Message{
				To:             c.Email,
				RecipientName:  c.Name,
				Client:         client,
				Subject:        subject,
				Body:           body,
				AttachmentName: doc.Name,
				Attachment:     doc.Data,
				SenderAlias:    alias,
			}))
		}
	}
	return outcomes
}

// AnySuccess reports whether at least one outcome succeeded.
func AnySuccess(outcomes []model.Outcome) bool {
	for _, o := range outcomes {
		if o.Success {
			return true
		}
	}
	return false
}
