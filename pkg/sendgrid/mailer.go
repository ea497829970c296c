package sendgrid

import (
	"context"
	"encoding/base64"
	"fmt"
	"net/http"

	"github.com/rs/zerolog"
	"github.com/sendgrid/sendgrid-go"
	sgmail "github.com/sendgrid/sendgrid-go/helpers/mail"
)

// Config contains credentials and sender identity for SendGrid.
type Config struct {
	APIKey    string
	FromName  string
	FromEmail string
}

// Attachment is a file carried by an outgoing message.
type Attachment struct {
	Filename    string
	ContentType string
	Content     []byte
}

// Message describes one outgoing email.
type Message struct {
	ToName       string
	ToEmail      string
	ReplyToName  string
	ReplyToEmail string
	Subject      string
	Text         string
	HTML         string
	Attachments  []Attachment
}

// Mailer sends email through the SendGrid v3 API.
type Mailer struct {
	client *sendgrid.Client
	from   *sgmail.Email
	logger zerolog.Logger
}

// New constructs a SendGrid mailer.
func New(cfg Config, logger zerolog.Logger) (*Mailer, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("sendgrid api key must be provided")
	}
	if cfg.FromEmail == "" {
		return nil, fmt.Errorf("sendgrid sender address must be provided")
	}

	return &Mailer{
		client: sendgrid.NewSendClient(cfg.APIKey),
		from:   sgmail.NewEmail(cfg.FromName, cfg.FromEmail),
		logger: logger.With().Str("component", "sendgrid").Logger(),
	}, nil
}

// Send delivers the message, returning an error on transport failure or a
// non-2xx API response.
func (m *Mailer) Send(ctx context.Context, msg Message) error {
	if msg.ToEmail == "" {
		return fmt.Errorf("recipient address must be provided")
	}

	personalization := sgmail.NewPersonalization()
	personalization.AddTos(sgmail.NewEmail(msg.ToName, msg.ToEmail))
	personalization.Subject = msg.Subject

	v3 := sgmail.NewV3Mail()
	v3.SetFrom(m.from)
	v3.AddPersonalizations(personalization)
	if msg.ReplyToEmail != "" {
		v3.SetReplyTo(sgmail.NewEmail(msg.ReplyToName, msg.ReplyToEmail))
	}

	if msg.Text != "" {
		v3.AddContent(sgmail.NewContent("text/plain", msg.Text))
	}
	if msg.HTML != "" {
		v3.AddContent(sgmail.NewContent("text/html", msg.HTML))
	}

	for _, at := range msg.Attachments {
		attachment := sgmail.NewAttachment()
		attachment.SetFilename(at.Filename)
		attachment.SetType(at.ContentType)
		attachment.SetContent(base64.StdEncoding.EncodeToString(at.Content))
		attachment.SetDisposition("attachment")
		v3.AddAttachment(attachment)
	}

	response, err := m.client.SendWithContext(ctx, v3)
	if err != nil {
		return fmt.Errorf("failed to send email: %w", err)
	}
	if response.StatusCode >= http.StatusBadRequest {
		return fmt.Errorf("sendgrid rejected message: status %d", response.StatusCode)
	}

	m.logger.Info().Str("to", msg.ToEmail).Str("subject", msg.Subject).Msg("email sent")

	return nil
}
