// Package notify sends staff notifications when replies need human review.
package notify

import (
	"context"
	"errors"
	"fmt"
	netmail "net/mail"
	"sort"
	"strings"

	"github.com/sendgrid/rest"
	"github.com/sendgrid/sendgrid-go"
	"github.com/sendgrid/sendgrid-go/helpers/mail"

	"github.com/wolfman30/guarded-reply/pkg/logging"
)

// DefaultFromName is the sender display name when none is configured.
const DefaultFromName = "Support Assistant"

// CategoryDraftReview labels review notifications in provider dashboards.
const CategoryDraftReview = "draft-review"

var errNoRecipient = errors.New("notify: recipient required")

// EmailSender delivers one staff notification.
type EmailSender interface {
	Send(ctx context.Context, msg EmailMessage) error
}

// EmailMessage is a notification addressed to a single reviewer.
type EmailMessage struct {
	To      string
	ToName  string
	Subject string
	Body    string // plain text
	HTML    string // optional
	// FromName overrides the sender display name, e.g. with the tenant's name.
	FromName string
	ReplyTo  string
	// Category groups messages in provider analytics.
	Category string
	// Tags travel as SendGrid custom args and SES message tags so bounces
	// can be traced back to a tenant and draft.
	Tags map[string]string
}

func (m EmailMessage) validate() error {
	if strings.TrimSpace(m.To) == "" {
		return errNoRecipient
	}
	return nil
}

// tagKeys returns tag names in a stable order.
func (m EmailMessage) tagKeys() []string {
	keys := make([]string, 0, len(m.Tags))
	for k, v := range m.Tags {
		if k == "" || v == "" {
			continue
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func senderName(configured string, msg EmailMessage) string {
	if name := strings.TrimSpace(msg.FromName); name != "" {
		return name
	}
	return configured
}

// fromHeader renders a From address; non-ASCII display names are
// RFC 2047 encoded.
func fromHeader(name, address string) string {
	return (&netmail.Address{Name: name, Address: address}).String()
}

type sendGridAPI interface {
	SendWithContext(ctx context.Context, email *mail.SGMailV3) (*rest.Response, error)
}

// SendGridSender sends emails via SendGrid API.
type SendGridSender struct {
	client    sendGridAPI
	fromEmail string
	fromName  string
	logger    *logging.Logger
}

// SendGridConfig holds configuration for SendGrid.
type SendGridConfig struct {
	APIKey    string
	FromEmail string
	FromName  string
}

// NewSendGridSender returns nil when no API key is configured.
func NewSendGridSender(cfg SendGridConfig, logger *logging.Logger) *SendGridSender {
	if cfg.APIKey == "" {
		return nil
	}
	if logger == nil {
		logger = logging.Default()
	}
	if cfg.FromName == "" {
		cfg.FromName = DefaultFromName
	}
	return &SendGridSender{
		client:    sendgrid.NewSendClient(cfg.APIKey),
		fromEmail: cfg.FromEmail,
		fromName:  cfg.FromName,
		logger:    logger,
	}
}

func (s *SendGridSender) build(msg EmailMessage) *mail.SGMailV3 {
	from := mail.NewEmail(senderName(s.fromName, msg), s.fromEmail)
	to := mail.NewEmail(msg.ToName, msg.To)
	html := msg.HTML
	if html == "" {
		html = msg.Body
	}
	message := mail.NewSingleEmail(from, msg.Subject, to, msg.Body, html)
	if msg.ReplyTo != "" {
		message.SetReplyTo(mail.NewEmail("", msg.ReplyTo))
	}
	if msg.Category != "" {
		message.AddCategories(msg.Category)
	}
	for _, k := range msg.tagKeys() {
		message.SetCustomArg(k, msg.Tags[k])
	}
	return message
}

// Send sends an email via SendGrid.
func (s *SendGridSender) Send(ctx context.Context, msg EmailMessage) error {
	if s == nil || s.client == nil {
		return fmt.Errorf("notify: sendgrid client not configured")
	}
	if err := msg.validate(); err != nil {
		return err
	}

	response, err := s.client.SendWithContext(ctx, s.build(msg))
	if err != nil {
		s.logger.Error("sendgrid send failed", "error", err, "to", msg.To, "category", msg.Category)
		return fmt.Errorf("notify: sendgrid send failed: %w", err)
	}
	if response.StatusCode >= 400 {
		s.logger.Error("sendgrid returned error status", "status", response.StatusCode, "body", response.Body, "to", msg.To)
		return fmt.Errorf("notify: sendgrid returned status %d", response.StatusCode)
	}

	s.logger.Info("review email sent", "provider", "sendgrid", "to", msg.To, "category", msg.Category, "status", response.StatusCode)
	return nil
}

// StubEmailSender logs instead of sending; used when email is disabled.
type StubEmailSender struct {
	logger *logging.Logger
}

func NewStubEmailSender(logger *logging.Logger) *StubEmailSender {
	if logger == nil {
		logger = logging.Default()
	}
	return &StubEmailSender{logger: logger}
}

func (s *StubEmailSender) Send(ctx context.Context, msg EmailMessage) error {
	if err := msg.validate(); err != nil {
		return err
	}
	args := []any{"to", msg.To, "subject", msg.Subject, "category", msg.Category}
	for _, k := range msg.tagKeys() {
		args = append(args, k, msg.Tags[k])
	}
	s.logger.Info("email disabled, review email not sent", args...)
	return nil
}
