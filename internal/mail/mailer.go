// AngelaMos | 2026
// mailer.go

package mail

import (
	"context"
	"fmt"
	"log/slog"

	gomail "github.com/wneessen/go-mail"

	"github.com/edunlpx/identity/internal/config"
)

// Mailer delivers transactional email. Implementations must be safe for
// concurrent use; the auth service sends from short-lived goroutines.
type Mailer interface {
	Send(ctx context.Context, to, subject, htmlBody, textBody string) error
}

type SMTPMailer struct {
	client   *gomail.Client
	from     string
	fromName string
}

func NewSMTPMailer(cfg config.MailConfig) (*SMTPMailer, error) {
	opts := []gomail.Option{
		gomail.WithPort(cfg.Port),
		gomail.WithSMTPAuth(gomail.SMTPAuthPlain),
		gomail.WithUsername(cfg.Username),
		gomail.WithPassword(cfg.Password),
	}

	if cfg.StartTLS {
		opts = append(opts, gomail.WithTLSPolicy(gomail.TLSMandatory))
	} else {
		opts = append(opts, gomail.WithTLSPolicy(gomail.TLSOpportunistic))
	}

	client, err := gomail.NewClient(cfg.Host, opts...)
	if err != nil {
		return nil, fmt.Errorf("create smtp client: %w", err)
	}

	return &SMTPMailer{
		client:   client,
		from:     cfg.FromEmail,
		fromName: cfg.FromName,
	}, nil
}

func (m *SMTPMailer) Send(
	ctx context.Context,
	to, subject, htmlBody, textBody string,
) error {
	msg := gomail.NewMsg()

	if err := msg.FromFormat(m.fromName, m.from); err != nil {
		return fmt.Errorf("set sender: %w", err)
	}
	if err := msg.To(to); err != nil {
		return fmt.Errorf("set recipient: %w", err)
	}

	msg.Subject(subject)
	msg.SetBodyString(gomail.TypeTextPlain, textBody)
	msg.AddAlternativeString(gomail.TypeTextHTML, htmlBody)

	if err := m.client.DialAndSendWithContext(ctx, msg); err != nil {
		return fmt.Errorf("send email: %w", err)
	}

	return nil
}

// LogMailer is the development fallback when SMTP is unconfigured. It
// logs the delivery and drops the body so flows stay testable locally.
type LogMailer struct {
	logger *slog.Logger
}

func NewLogMailer(logger *slog.Logger) *LogMailer {
	return &LogMailer{logger: logger}
}

func (m *LogMailer) Send(
	_ context.Context,
	to, subject, _, textBody string,
) error {
	m.logger.Info("email delivery skipped, smtp not configured",
		"to", to,
		"subject", subject,
		"body", textBody,
	)
	return nil
}

// New selects the SMTP mailer when configured and falls back to logging
// otherwise.
func New(cfg config.MailConfig, logger *slog.Logger) (Mailer, error) {
	if !cfg.Configured() {
		logger.Warn("smtp not configured, emails will be logged only")
		return NewLogMailer(logger), nil
	}
	return NewSMTPMailer(cfg)
}
