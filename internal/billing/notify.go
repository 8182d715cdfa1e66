package billing

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"text/template"
	"time"
)

// Notifier sends the tenant lifecycle emails.
type Notifier interface {
	Welcome(ctx context.Context, n WelcomeNotice) error
	SubscriptionExpiring(ctx context.Context, n SubscriptionNotice) error
	SubscriptionExpired(ctx context.Context, n SubscriptionNotice) error
	PaymentFailed(ctx context.Context, n SubscriptionNotice) error
}

type WelcomeNotice struct {
	To           string
	Name         string
	TenantName   string
	Domain       string
	APIKeyPrefix string
}

type SubscriptionNotice struct {
	To         string
	TenantName string
	PlanName   string
	EndDate    time.Time
	DaysLeft   int
}

// Message is one outbound email.
type Message struct {
	From    string
	To      string
	Subject string
	Text    string
}

// Mailer delivers a rendered message.
type Mailer interface {
	Send(ctx context.Context, msg Message) error
}

// LogMailer writes messages to the structured log instead of delivering them.
type LogMailer struct {
	logger *slog.Logger
}

func NewLogMailer(logger *slog.Logger) *LogMailer {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogMailer{logger: logger}
}

func (m *LogMailer) Send(ctx context.Context, msg Message) error {
	m.logger.InfoContext(ctx, "email",
		"from", msg.From,
		"to", msg.To,
		"subject", msg.Subject,
		"body", msg.Text,
	)
	return nil
}

var (
	welcomeTemplate = template.Must(template.New("welcome").Parse(
		`Hi {{.Name}},

Your organization {{.TenantName}} is ready at {{.Domain}}.
Your API key starts with {{.APIKeyPrefix}}. Keep the full key you were shown at signup somewhere safe; it cannot be displayed again.
`))

	expiringTemplate = template.Must(template.New("expiring").Parse(
		`The {{.PlanName}} subscription for {{.TenantName}} ends on {{.EndDate.Format "2006-01-02"}} ({{.DaysLeft}} days left).
`))

	expiredTemplate = template.Must(template.New("expired").Parse(
		`The {{.PlanName}} subscription for {{.TenantName}} expired on {{.EndDate.Format "2006-01-02"}}. Choose a plan to restore access.
`))

	paymentFailedTemplate = template.Must(template.New("payment_failed").Parse(
		`We could not renew the {{.PlanName}} subscription for {{.TenantName}}. Update your payment method to avoid losing access.
`))
)

// EmailNotifier renders notices as plain-text emails and hands them to a
// Mailer.
type EmailNotifier struct {
	from   string
	mailer Mailer
}

func NewEmailNotifier(from string, mailer Mailer) *EmailNotifier {
	return &EmailNotifier{from: from, mailer: mailer}
}

func (n *EmailNotifier) Welcome(ctx context.Context, w WelcomeNotice) error {
	return n.send(ctx, w.To, "Welcome to "+w.TenantName, welcomeTemplate, w)
}

func (n *EmailNotifier) SubscriptionExpiring(ctx context.Context, s SubscriptionNotice) error {
	return n.send(ctx, s.To, "Your subscription is expiring soon", expiringTemplate, s)
}

func (n *EmailNotifier) SubscriptionExpired(ctx context.Context, s SubscriptionNotice) error {
	return n.send(ctx, s.To, "Your subscription has expired", expiredTemplate, s)
}

func (n *EmailNotifier) PaymentFailed(ctx context.Context, s SubscriptionNotice) error {
	return n.send(ctx, s.To, "Payment failed", paymentFailedTemplate, s)
}

func (n *EmailNotifier) send(ctx context.Context, to, subject string, tmpl *template.Template, data any) error {
	if to == "" {
		return nil
	}
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return fmt.Errorf("render %s email: %w", tmpl.Name(), err)
	}
	if err := n.mailer.Send(ctx, Message{From: n.from, To: to, Subject: subject, Text: buf.String()}); err != nil {
		return fmt.Errorf("send %s email: %w", tmpl.Name(), err)
	}
	return nil
}
