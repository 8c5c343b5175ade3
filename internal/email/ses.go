package email

import (
	"context"
	"fmt"
	"html"
	"net/url"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/ses"
	"github.com/aws/aws-sdk-go-v2/service/ses/types"
)

// Invitation is the content of a member invitation email.
type Invitation struct {
	To          string
	OrgName     string
	InviterName string
	Role        string
	Token       string
	ExpiresAt   time.Time
}

// Sender sends transactional emails.
type Sender interface {
	SendInvitation(ctx context.Context, inv Invitation) error
}

// sesAPI is the subset of the SES client used here.
type sesAPI interface {
	SendEmail(ctx context.Context, params *ses.SendEmailInput, optFns ...func(*ses.Options)) (*ses.SendEmailOutput, error)
}

// EmailService handles sending emails via AWS SES
type EmailService struct {
	client    sesAPI
	fromEmail string
	fromName  string
	baseURL   string // dashboard URL the accept link points at
}

var _ Sender = (*EmailService)(nil)

// NewEmailService creates a new email service using AWS SES
func NewEmailService(region, fromEmail, fromName, baseURL string) (*EmailService, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	cfg, err := config.LoadDefaultConfig(ctx, config.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	return newEmailService(ses.NewFromConfig(cfg), fromEmail, fromName, baseURL), nil
}

func newEmailService(client sesAPI, fromEmail, fromName, baseURL string) *EmailService {
	return &EmailService{
		client:    client,
		fromEmail: fromEmail,
		fromName:  fromName,
		baseURL:   baseURL,
	}
}

// AcceptURL is the dashboard link that accepts an invitation token.
func (e *EmailService) AcceptURL(token string) string {
	return fmt.Sprintf("%s/invitations/accept?token=%s", e.baseURL, url.QueryEscape(token))
}

// SendInvitation emails an organization invitation with its accept link.
func (e *EmailService) SendInvitation(ctx context.Context, inv Invitation) error {
	acceptURL := e.AcceptURL(inv.Token)
	expires := inv.ExpiresAt.Format("January 2, 2006")

	subject := fmt.Sprintf("You're invited to join %s on Beacon", inv.OrgName)
	htmlBody := fmt.Sprintf(`
		<!DOCTYPE html>
		<html>
		<head>
			<meta charset="UTF-8">
			<style>
				body { font-family: -apple-system, BlinkMacSystemFont, 'Segoe UI', Roboto, sans-serif; line-height: 1.6; color: #333; }
				.container { max-width: 600px; margin: 0 auto; padding: 20px; }
				.button { display: inline-block; padding: 12px 24px; background-color: #2f6fed; color: white; text-decoration: none; border-radius: 6px; margin: 20px 0; }
			</style>
		</head>
		<body>
			<div class="container">
				<h1>Join %s</h1>
				<p>%s invited you to join <strong>%s</strong> as %s.</p>
				<a href="%s" class="button">Accept Invitation</a>
				<p>Or copy and paste this link into your browser:</p>
				<p style="word-break: break-all; color: #666;">%s</p>
				<p>This invitation expires on %s.</p>
				<hr>
				<p style="color: #999; font-size: 12px;">This is an automated message from Beacon.</p>
			</div>
		</body>
		</html>
	`,
		html.EscapeString(inv.OrgName),
		html.EscapeString(inv.InviterName),
		html.EscapeString(inv.OrgName),
		html.EscapeString(inv.Role),
		acceptURL, acceptURL, expires)

	textBody := fmt.Sprintf(`
Join %s on Beacon

%s invited you to join %s as %s.

Accept the invitation here:

%s

This invitation expires on %s.
	`, inv.OrgName, inv.InviterName, inv.OrgName, inv.Role, acceptURL, expires)

	return e.send(ctx, inv.To, subject, htmlBody, textBody)
}

func (e *EmailService) send(ctx context.Context, to, subject, htmlBody, textBody string) error {
	from := e.fromEmail
	if e.fromName != "" {
		from = fmt.Sprintf("%s <%s>", e.fromName, e.fromEmail)
	}

	input := &ses.SendEmailInput{
		Source: aws.String(from),
		Destination: &types.Destination{
			ToAddresses: []string{to},
		},
		Message: &types.Message{
			Subject: &types.Content{
				Data:    aws.String(subject),
				Charset: aws.String("UTF-8"),
			},
			Body: &types.Body{
				Html: &types.Content{
					Data:    aws.String(htmlBody),
					Charset: aws.String("UTF-8"),
				},
				Text: &types.Content{
					Data:    aws.String(textBody),
					Charset: aws.String("UTF-8"),
				},
			},
		},
	}

	if _, err := e.client.SendEmail(ctx, input); err != nil {
		return fmt.Errorf("failed to send email: %w", err)
	}
	return nil
}
