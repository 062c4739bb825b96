package notify

import (
	"context"
	"fmt"

	"github.com/sendgrid/rest"
	"github.com/sendgrid/sendgrid-go"
	"github.com/sendgrid/sendgrid-go/helpers/mail"

	"github.com/hackgods/slot-booking-core/internal/logging"
)

type mailClient interface {
	SendWithContext(ctx context.Context, email *mail.SGMailV3) (*rest.Response, error)
}

// SendGridConfig holds configuration for SendGrid.
type SendGridConfig struct {
	APIKey    string
	FromEmail string
	FromName  string
	// Templates maps our template ids to SendGrid dynamic template ids.
	Templates map[string]string
}

// SendGridNotifier sends notifications through SendGrid dynamic templates.
type SendGridNotifier struct {
	client    mailClient
	fromEmail string
	fromName  string
	templates map[string]string
	logger    *logging.Logger
}

// NewSendGridNotifier returns nil when no API key is configured.
func NewSendGridNotifier(cfg SendGridConfig, logger *logging.Logger) *SendGridNotifier {
	if cfg.APIKey == "" {
		return nil
	}
	return newSendGridNotifierWithClient(sendgrid.NewSendClient(cfg.APIKey), cfg, logger)
}

func newSendGridNotifierWithClient(client mailClient, cfg SendGridConfig, logger *logging.Logger) *SendGridNotifier {
	if logger == nil {
		logger = logging.Default()
	}
	if cfg.FromName == "" {
		cfg.FromName = "Bookings"
	}
	return &SendGridNotifier{
		client:    client,
		fromEmail: cfg.FromEmail,
		fromName:  cfg.FromName,
		templates: cfg.Templates,
		logger:    logger,
	}
}

func (s *SendGridNotifier) Notify(ctx context.Context, n Notification) error {
	if s == nil || s.client == nil {
		return fmt.Errorf("notify: sendgrid client not configured")
	}
	if n.To == "" {
		return fmt.Errorf("notify: recipient required for %s", n.TemplateID)
	}
	templateID := s.templates[n.TemplateID]
	if templateID == "" {
		return fmt.Errorf("notify: no sendgrid template mapped for %q", n.TemplateID)
	}

	p := mail.NewPersonalization()
	p.AddTos(mail.NewEmail(n.ToName, n.To))
	for k, v := range n.Data {
		p.SetDynamicTemplateData(k, v)
	}

	message := mail.NewV3Mail()
	message.SetFrom(mail.NewEmail(s.fromName, s.fromEmail))
	message.SetTemplateID(templateID)
	message.AddPersonalizations(p)

	resp, err := s.client.SendWithContext(ctx, message)
	if err != nil {
		s.logger.Error("sendgrid send failed", "error", err, "template", n.TemplateID, "to", n.To)
		return fmt.Errorf("notify: sendgrid send failed: %w", err)
	}
	if resp.StatusCode >= 300 {
		s.logger.Error("sendgrid rejected message", "status", resp.StatusCode, "body", resp.Body, "template", n.TemplateID)
		return fmt.Errorf("notify: sendgrid returned status %d", resp.StatusCode)
	}

	s.logger.Debug("notification sent", "template", n.TemplateID, "to", n.To)
	return nil
}
