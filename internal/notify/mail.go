package notify

import (
	"context"
	"log/slog"
	"net"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/wneessen/go-mail"

	"github.com/you/go-jobsity-booking/internal/config"
)

type sendFunc func(ctx context.Context, msg *mail.Msg) error

// Mailer submits plain-text mail through an authenticated SMTP server.
// STARTTLS is mandatory.
type Mailer struct {
	host   string
	from   string
	logger *slog.Logger
	send   sendFunc
	now    func() time.Time
}

func NewMailer(cfg *config.Config, logger *slog.Logger) (*Mailer, error) {
	from := cfg.SMTPFrom
	if from == "" {
		from = cfg.SMTPUsername
	}
	m := &Mailer{
		host:   cfg.SMTPHost,
		from:   from,
		logger: logger,
		now:    time.Now,
	}
	if !m.Enabled() {
		return m, nil
	}

	timeout := cfg.SMTPTimeout
	if timeout <= 0 {
		timeout = mail.DefaultTimeout
	}
	opts := []mail.Option{
		mail.WithPort(cfg.SMTPPort),
		mail.WithTLSPolicy(mail.TLSMandatory),
		mail.WithTimeout(timeout),
		mail.WithDialContextFunc(dialWithDeadline),
	}
	if cfg.SMTPUsername != "" {
		opts = append(opts,
			mail.WithSMTPAuth(mail.SMTPAuthPlain),
			mail.WithUsername(cfg.SMTPUsername),
			mail.WithPassword(cfg.SMTPPassword),
		)
	}
	client, err := mail.NewClient(cfg.SMTPHost, opts...)
	if err != nil {
		return nil, errors.Wrap(err, "smtp client")
	}
	m.send = func(ctx context.Context, msg *mail.Msg) error {
		return client.DialAndSendWithContext(ctx, msg)
	}
	return m, nil
}

// dialWithDeadline carries the dial context's deadline onto the connection
// so a server that accepts but never answers cannot hold the caller.
func dialWithDeadline(ctx context.Context, network, addr string) (net.Conn, error) {
	var d net.Dialer
	conn, err := d.DialContext(ctx, network, addr)
	if err != nil {
		return nil, err
	}
	if deadline, ok := ctx.Deadline(); ok {
		if err := conn.SetDeadline(deadline); err != nil {
			_ = conn.Close()
			return nil, err
		}
	}
	return conn, nil
}

func (m *Mailer) Enabled() bool { return m.host != "" }

func (m *Mailer) Send(ctx context.Context, to, subject, body string) error {
	if !m.Enabled() {
		m.logger.Debug("email skipped (smtp disabled)", "to", to, "subject", subject)
		return nil
	}
	if err := ctx.Err(); err != nil {
		return errors.Wrap(err, "failed to send email")
	}

	msg, err := m.message(to, subject, body)
	if err != nil {
		return errors.Wrapf(err, "failed to send email to %s", to)
	}
	if err := m.send(ctx, msg); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			err = errors.WithSecondaryError(ctxErr, err)
		}
		return errors.Wrapf(err, "failed to send email to %s", to)
	}

	m.logger.Info("email sent", "to", to, "subject", subject)
	return nil
}

func (m *Mailer) message(to, subject, body string) (*mail.Msg, error) {
	msg := mail.NewMsg()
	if err := msg.From(m.from); err != nil {
		return nil, errors.Wrap(err, "sender address")
	}
	if err := msg.To(to); err != nil {
		return nil, errors.Wrap(err, "recipient address")
	}
	msg.Subject(subject)
	msg.SetDateWithValue(m.now())
	msg.SetBodyString(mail.TypeTextPlain, body)
	return msg, nil
}
