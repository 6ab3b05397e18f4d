package services

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/ses"
	"github.com/aws/aws-sdk-go-v2/service/ses/types"
	pkglogger "github.com/quicknotes/quicknotes/pkg/logger"
)

// EmailSender delivers account lifecycle emails
type EmailSender interface {
	SendVerificationEmail(ctx context.Context, email, token string, expiresAt time.Time) error
	SendPasswordResetEmail(ctx context.Context, email, token string, expiresAt time.Time) error
}

// SESEmailService sends emails through AWS SES
type SESEmailService struct {
	client      *ses.Client
	fromAddress string
	frontendURL string
	logger      *slog.Logger
}

// NewSESEmailService creates a new AWS SES email service
func NewSESEmailService(region, fromAddress, frontendURL string, logger *slog.Logger) (*SESEmailService, error) {
	cfg, err := awsconfig.LoadDefaultConfig(context.Background(), awsconfig.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	return &SESEmailService{
		client:      ses.NewFromConfig(cfg),
		fromAddress: fromAddress,
		frontendURL: frontendURL,
		logger:      logger,
	}, nil
}

// SendVerificationEmail sends the email-address verification link
func (s *SESEmailService) SendVerificationEmail(ctx context.Context, email, token string, expiresAt time.Time) error {
	link := fmt.Sprintf("%s/verify-email?token=%s", s.frontendURL, token)
	hours := int(time.Until(expiresAt).Round(time.Hour).Hours())

	htmlBody := fmt.Sprintf(`
<!DOCTYPE html>
<html>
<head>
    <meta charset="UTF-8">
    <style>
        body { font-family: Arial, sans-serif; line-height: 1.6; color: #333; }
        .container { max-width: 600px; margin: 0 auto; padding: 20px; }
        .header { background-color: #f8f9fa; padding: 20px; text-align: center; border-radius: 4px; }
        .button { display: inline-block; background-color: #0066cc; color: white; padding: 12px 24px; text-decoration: none; border-radius: 4px; margin: 20px 0; }
        .footer { color: #666; font-size: 12px; margin-top: 20px; padding-top: 20px; border-top: 1px solid #eee; }
    </style>
</head>
<body>
    <div class="container">
        <div class="header"><h1>Verify Your Email Address</h1></div>
        <p>Welcome to QuickNotes! To finish setting up your account, please verify your email address:</p>
        <p><a href="%s" class="button">Verify Email Address</a></p>
        <p>Or copy and paste this link in your browser:<br><code>%s</code></p>
        <p>This link will expire in %d hours.</p>
        <p>If you didn't sign up for QuickNotes, you can ignore this email.</p>
        <div class="footer"><p>This is an automated message. Please do not reply.</p></div>
    </div>
</body>
</html>
`, link, link, hours)

	textBody := fmt.Sprintf(`Verify Your Email Address

Welcome to QuickNotes! To finish setting up your account, please verify your email address by opening this link:

%s

This link will expire in %d hours.

If you didn't sign up for QuickNotes, you can ignore this email.
`, link, hours)

	return s.send(ctx, email, "Verify your QuickNotes email address", htmlBody, textBody)
}

// SendPasswordResetEmail sends the password reset link
func (s *SESEmailService) SendPasswordResetEmail(ctx context.Context, email, token string, expiresAt time.Time) error {
	link := fmt.Sprintf("%s/reset-password?token=%s", s.frontendURL, token)
	minutes := int(time.Until(expiresAt).Round(time.Minute).Minutes())

	htmlBody := fmt.Sprintf(`
<!DOCTYPE html>
<html>
<head>
    <meta charset="UTF-8">
    <style>
        body { font-family: Arial, sans-serif; line-height: 1.6; color: #333; }
        .container { max-width: 600px; margin: 0 auto; padding: 20px; }
        .header { background-color: #f8f9fa; padding: 20px; text-align: center; border-radius: 4px; }
        .button { display: inline-block; background-color: #0066cc; color: white; padding: 12px 24px; text-decoration: none; border-radius: 4px; margin: 20px 0; }
        .warning { background-color: #fff3cd; padding: 10px; border-left: 4px solid #ffc107; margin: 10px 0; }
        .footer { color: #666; font-size: 12px; margin-top: 20px; padding-top: 20px; border-top: 1px solid #eee; }
    </style>
</head>
<body>
    <div class="container">
        <div class="header"><h1>Reset Your Password</h1></div>
        <p>We received a request to reset the password for your QuickNotes account.</p>
        <p><a href="%s" class="button">Reset Password</a></p>
        <p>Or copy and paste this link in your browser:<br><code>%s</code></p>
        <div class="warning">This link will expire in %d minutes and can be used only once.</div>
        <p>If you didn't request a password reset, you can ignore this email. Your password will not change.</p>
        <div class="footer"><p>This is an automated message. Please do not reply.</p></div>
    </div>
</body>
</html>
`, link, link, minutes)

	textBody := fmt.Sprintf(`Reset Your Password

We received a request to reset the password for your QuickNotes account. Open this link to choose a new password:

%s

This link will expire in %d minutes and can be used only once.

If you didn't request a password reset, you can ignore this email. Your password will not change.
`, link, minutes)

	return s.send(ctx, email, "Reset your QuickNotes password", htmlBody, textBody)
}

func (s *SESEmailService) send(ctx context.Context, to, subject, htmlBody, textBody string) error {
	input := &ses.SendEmailInput{
		Source: aws.String(s.fromAddress),
		Destination: &types.Destination{
			ToAddresses: []string{to},
		},
		Message: &types.Message{
			Subject: &types.Content{
				Data: aws.String(subject),
			},
			Body: &types.Body{
				Html: &types.Content{
					Data: aws.String(htmlBody),
				},
				Text: &types.Content{
					Data: aws.String(textBody),
				},
			},
		},
	}

	if _, err := s.client.SendEmail(ctx, input); err != nil {
		return fmt.Errorf("failed to send email: %w", err)
	}

	s.logger.Info("email sent",
		slog.String("to", pkglogger.SanitizedEmail(to)),
		slog.String("subject", subject))
	return nil
}
