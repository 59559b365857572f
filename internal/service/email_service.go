package service

import (
	"bytes"
	"context"
	"fmt"
	htmltemplate "html/template"
	"net/mail"
	texttemplate "text/template"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/sesv2"
	"github.com/aws/aws-sdk-go-v2/service/sesv2/types"
	"go.uber.org/zap"

	"famsync/internal/models"
)

// sesAPI is the part of the SES v2 client the email service uses
type sesAPI interface {
	SendEmail(ctx context.Context, params *sesv2.SendEmailInput, optFns ...func(*sesv2.Options)) (*sesv2.SendEmailOutput, error)
}

// EmailService sends account and family emails via Amazon SES
type EmailService struct {
	client sesAPI
	from   string
	debug  bool
	log    *zap.Logger
}

var _ Notifier = (*EmailService)(nil)

// NewEmailService creates a new email service. An empty fromEmail disables
// sending; every Send call then succeeds without contacting SES.
func NewEmailService(ctx context.Context, awsRegion, fromEmail, fromName string, debug bool, logger *zap.Logger) (*EmailService, error) {
	if fromEmail == "" {
		logger.Info("email service disabled: SES_FROM_EMAIL not configured")
		return &EmailService{debug: debug, log: logger}, nil
	}

	cfg, err := config.LoadDefaultConfig(ctx, config.WithRegion(awsRegion))
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	logger.Info("email service enabled",
		zap.String("from_email", fromEmail),
		zap.String("region", awsRegion))

	return newEmailService(sesv2.NewFromConfig(cfg), fromEmail, fromName, debug, logger), nil
}

func newEmailService(client sesAPI, fromEmail, fromName string, debug bool, logger *zap.Logger) *EmailService {
	from := (&mail.Address{Name: fromName, Address: fromEmail}).String()
	return &EmailService{client: client, from: from, debug: debug, log: logger}
}

// IsEnabled returns whether the email service is enabled
func (s *EmailService) IsEnabled() bool {
	return s.client != nil
}

// emailMessage is rendered into both the HTML and the text body
type emailMessage struct {
	Subject    string
	Heading    string
	Greeting   string
	Paragraphs []string
	Codes      []emailCode
	Warning    string
}

type emailCode struct {
	Label string
	Value string
}

const emailFooter = "This is an automated email from FamSync. Please do not reply."

var htmlEmail = htmltemplate.Must(htmltemplate.New("email").Parse(`<!DOCTYPE html>
<html>
<head><meta charset="UTF-8"></head>
<body style="font-family: Arial, sans-serif; line-height: 1.6; color: #333;">
<div style="max-width: 600px; margin: 0 auto; padding: 20px;">
	<h1 style="background-color: #3c8d5f; color: #fff; padding: 20px; text-align: center;">{{.Heading}}</h1>
	<div style="background-color: #f9f9f9; padding: 30px;">
		{{with .Greeting}}<p>{{.}}</p>{{end}}
		{{range .Paragraphs}}<p>{{.}}</p>
		{{end}}
		{{range .Codes}}<p>{{.Label}}: <code style="font-size: 18px;">{{.Value}}</code></p>
		{{end}}
		{{with .Warning}}<p><strong>{{.}}</strong></p>{{end}}
	</div>
	<p style="text-align: center; font-size: 12px; color: #666;">` + emailFooter + `</p>
</div>
</body>
</html>
`))

var textEmail = texttemplate.Must(texttemplate.New("email").Parse(`{{with .Greeting}}{{.}}

{{end}}{{range .Paragraphs}}{{.}}

{{end}}{{range .Codes}}{{.Label}}: {{.Value}}
{{end}}{{with .Warning}}
{{.}}
{{end}}
---
` + emailFooter + `
`))

// SendWelcomeEmail sends a welcome email to a newly registered user
func (s *EmailService) SendWelcomeEmail(ctx context.Context, toEmail, toName string) error {
	return s.send(ctx, toEmail, emailMessage{
		Subject:  "Welcome to FamSync!",
		Heading:  "Welcome to FamSync!",
		Greeting: fmt.Sprintf("Hi %s,", toName),
		Paragraphs: []string{
			"Your account is ready. Events your family adds to the shared calendar will show up on all of your devices as soon as they are saved.",
		},
	})
}

// SendFamilyCreatedEmail sends the owner the id and PIN family members need
// to join
func (s *EmailService) SendFamilyCreatedEmail(ctx context.Context, toEmail string, family *models.Family) error {
	return s.send(ctx, toEmail, emailMessage{
		Subject:    fmt.Sprintf("Your family %q is ready", family.Name),
		Heading:    family.Name,
		Paragraphs: []string{"Share these details with your family so they can join:"},
		Codes: []emailCode{
			{Label: "Family ID", Value: family.ID},
			{Label: "Family PIN", Value: family.PIN},
		},
		Warning: "Anyone with both values can join your family.",
	})
}

func (s *EmailService) send(ctx context.Context, toEmail string, msg emailMessage) error {
	if !s.IsEnabled() {
		if s.debug {
			s.log.Debug("skipping email send (service disabled)",
				zap.String("to", toEmail),
				zap.String("subject", msg.Subject))
		}
		return nil
	}

	var html, text bytes.Buffer
	if err := htmlEmail.Execute(&html, msg); err != nil {
		return fmt.Errorf("failed to render email: %w", err)
	}
	if err := textEmail.Execute(&text, msg); err != nil {
		return fmt.Errorf("failed to render email: %w", err)
	}

	if s.debug {
		s.log.Debug("sending email",
			zap.String("from", s.from),
			zap.String("to", toEmail),
			zap.String("subject", msg.Subject),
			zap.Int("html_bytes", html.Len()),
			zap.Int("text_bytes", text.Len()))
	}

	utf8 := func(data string) *types.Content {
		return &types.Content{Data: aws.String(data), Charset: aws.String("UTF-8")}
	}
	result, err := s.client.SendEmail(ctx, &sesv2.SendEmailInput{
		FromEmailAddress: aws.String(s.from),
		Destination:      &types.Destination{ToAddresses: []string{toEmail}},
		Content: &types.EmailContent{
			Simple: &types.Message{
				Subject: utf8(msg.Subject),
				Body: &types.Body{
					Html: utf8(html.String()),
					Text: utf8(text.String()),
				},
			},
		},
	})
	if err != nil {
		return fmt.Errorf("failed to send email to %s: %w", toEmail, err)
	}

	fields := []zap.Field{zap.String("to", toEmail), zap.String("subject", msg.Subject)}
	if result.MessageId != nil {
		fields = append(fields, zap.String("message_id", *result.MessageId))
	}
	s.log.Info("email sent", fields...)
	return nil
}
