package email

import (
	"context"
	"fmt"
	"net/url"
)

// Mailer composes the platform's transactional messages on top of a Sender.
// The frontend URL anchors every link embedded in a message.
type Mailer struct {
	sender      Sender
	frontendURL string
}

func NewMailer(sender Sender, frontendURL string) *Mailer {
	return &Mailer{sender: sender, frontendURL: frontendURL}
}

func (m *Mailer) link(path, param, value string) string {
	return fmt.Sprintf("%s%s?%s=%s", m.frontendURL, path, param, url.QueryEscape(value))
}

// SendVerification sends the email-verification link issued at registration.
func (m *Mailer) SendVerification(ctx context.Context, to, token string) error {
	link := m.link("/verify-email", "token", token)
	return m.sender.Send(ctx, Message{
		To:      to,
		Subject: "Verify your email address",
		TextBody: fmt.Sprintf(
			"Welcome! Please verify your email address by opening the link below:\n\n%s\n\nThe link expires in 12 hours. If you did not create an account, ignore this message.",
			link),
		HTMLBody: fmt.Sprintf(
			`<p>Welcome! Please verify your email address by clicking the link below:</p><p><a href=%q>Verify email</a></p><p>The link expires in 12 hours. If you did not create an account, ignore this message.</p>`,
			link),
	})
}

// SendPasswordReset sends a password-reset link carrying the one-time token.
func (m *Mailer) SendPasswordReset(ctx context.Context, to, token string) error {
	link := m.link("/reset-password", "token", token)
	return m.sender.Send(ctx, Message{
		To:      to,
		Subject: "Reset your password",
		TextBody: fmt.Sprintf(
			"A password reset was requested for your account. Open the link below to choose a new password:\n\n%s\n\nThe link expires in 1 hour. If you did not request a reset, ignore this message.",
			link),
		HTMLBody: fmt.Sprintf(
			`<p>A password reset was requested for your account.</p><p><a href=%q>Choose a new password</a></p><p>The link expires in 1 hour. If you did not request a reset, ignore this message.</p>`,
			link),
	})
}

// SendVendorApproved notifies a user that their vendor request was approved.
func (m *Mailer) SendVendorApproved(ctx context.Context, to, businessName string) error {
	link := m.frontendURL + "/vendor/dashboard"
	return m.sender.Send(ctx, Message{
		To:      to,
		Subject: "Your vendor account is approved",
		TextBody: fmt.Sprintf(
			"Congratulations! Your vendor request for %q has been approved. You can manage your store here:\n\n%s",
			businessName, link),
		HTMLBody: fmt.Sprintf(
			`<p>Congratulations! Your vendor request for <strong>%s</strong> has been approved.</p><p><a href=%q>Open your vendor dashboard</a></p>`,
			businessName, link),
	})
}
