package notify

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/wneessen/go-mail"

	"github.com/sells-group/doc-intake/internal/resilience"
)

// SMTPConfig holds mail server settings.
type SMTPConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	Sender   string
	SSL      bool
	Timeout  time.Duration
}

// SMTPSender sends each message over its own authenticated SMTP session.
type SMTPSender struct {
	cfg SMTPConfig
}

// NewSMTPSender creates an SMTPSender. Port 0 means 465 with SSL and 587
// without.
func NewSMTPSender(cfg SMTPConfig) *SMTPSender {
	if cfg.Port == 0 {
		cfg.Port = 587
		if cfg.SSL {
			cfg.Port = 465
		}
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.Username == "" {
		cfg.Username = cfg.Sender
	}
	return &SMTPSender{cfg: cfg}
}

// Send dials, authenticates, sends msg and hangs up. Temporary SMTP
// failures come back marked transient; authentication failures come back
// marked permanent.
func (s *SMTPSender) Send(ctx context.Context, msg Message) error {
	m, err := s.buildMsg(msg)
	if err != nil {
		return resilience.Permanent(err)
	}

	opts := []mail.Option{
		mail.WithPort(s.cfg.Port),
		mail.WithTimeout(s.cfg.Timeout),
		mail.WithSMTPAuth(mail.SMTPAuthPlain),
		mail.WithUsername(s.cfg.Username),
		mail.WithPassword(s.cfg.Password),
	}
	if s.cfg.SSL {
		opts = append(opts, mail.WithSSL())
	} else {
		opts = append(opts, mail.WithTLSPolicy(mail.TLSMandatory))
	}

	client, err := mail.NewClient(s.cfg.Host, opts...)
	if err != nil {
		return resilience.Permanent(eris.Wrap(err, "notify: smtp client"))
	}

	if err := client.DialAndSendWithContext(ctx, m); err != nil {
		return classifySMTPError(eris.Wrap(err, "notify: smtp send"))
	}
	return nil
}

func (s *SMTPSender) buildMsg(msg Message) (*mail.Msg, error) {
	m := mail.NewMsg()

	if msg.SenderAlias != "" {
		if err := m.FromFormat(msg.SenderAlias, s.cfg.Sender); err != nil {
			return nil, eris.Wrap(err, "notify: from address")
		}
	} else if err := m.From(s.cfg.Sender); err != nil {
		return nil, eris.Wrap(err, "notify: from address")
	}

	if msg.RecipientName != "" {
		if err := m.AddToFormat(msg.RecipientName, msg.To); err != nil {
			return nil, eris.Wrapf(err, "notify: to address %q", msg.To)
		}
	} else if err := m.To(msg.To); err != nil {
		return nil, eris.Wrapf(err, "notify: to address %q", msg.To)
	}

	m.Subject(msg.Subject)
	m.SetBodyString(mail.TypeTextPlain, msg.Body)

	if len(msg.Attachment) > 0 {
		if err := m.AttachReader(msg.AttachmentName, bytes.NewReader(msg.Attachment)); err != nil {
			return nil, eris.Wrapf(err, "notify: attach %s", msg.AttachmentName)
		}
	}
	return m, nil
}

var authFailureMarkers = []string{
	"535",
	"authentication failed",
	"username and password not accepted",
	"invalid credentials",
}

func classifySMTPError(err error) error {
	var sendErr *mail.SendError
	if errors.As(err, &sendErr) && sendErr.IsTemp() {
		return resilience.NewTransientError(err, 0)
	}

	msg := strings.ToLower(err.Error())
	for _, marker := range authFailureMarkers {
		if strings.Contains(msg, marker) {
			return resilience.Permanent(err)
		}
	}
	return err
}
