// Package notify delivers one-time tokens to email addresses out of band.
// Delivery is best-effort from the caller's point of view: the identity state
// change that produced a token is committed before Send is called, and a
// failed Send is logged by the caller rather than rolled back.
package notify

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strings"
)

// Message is a plain-text email
type Message struct {
	To      string
	Subject string
	Body    string
}

// Notifier sends a message to its recipient
type Notifier interface {
	Send(ctx context.Context, msg Message) error
}

// LogNotifier writes messages to the structured log instead of sending them.
// It is used when SMTP is not configured (local development). The body is
// logged at debug level only, since it carries a raw token.
type LogNotifier struct{}

// Send logs the recipient and subject
func (LogNotifier) Send(ctx context.Context, msg Message) error {
	slog.InfoContext(ctx, "notification not sent: smtp disabled", "to", msg.To, "subject", msg.Subject)
	slog.DebugContext(ctx, "notification body", "to", msg.To, "body", msg.Body)
	return nil
}

// Links builds the URLs embedded in notification emails
type Links struct {
	BaseURL string // e.g. https://workboard.example.com/api/v1
}

func (l Links) build(path, param, token string) string {
	base := strings.TrimRight(l.BaseURL, "/")
	return fmt.Sprintf("%s%s?%s=%s", base, path, param, url.QueryEscape(token))
}

// Activation returns the activation email for a new or inactive account
func (l Links) Activation(to, name, token string) Message {
	link := l.build("/users/activate", "activationToken", token)
	return Message{
		To:      to,
		Subject: "Activate your Workboard account",
		Body: strings.Join([]string{
			fmt.Sprintf("Hello %s,", name),
			"",
			"Please activate your account by opening the link below:",
			"  " + link,
			"",
			"The Workboard team",
		}, "\r\n"),
	}
}

// Invite returns the invitation email sent to a new team member
func (l Links) Invite(to, name, token string) Message {
	link := l.build("/team-members/create-password", "inviteToken", token)
	return Message{
		To:      to,
		Subject: "You have been invited to Workboard",
		Body: strings.Join([]string{
			fmt.Sprintf("Hello %s,", name),
			"",
			"An administrator added you to their team. Create your password here:",
			"  " + link,
			"",
			"The Workboard team",
		}, "\r\n"),
	}
}

// PasswordReset returns the password reset email
func (l Links) PasswordReset(to, name, token string, validMinutes int) Message {
	link := l.build("/users/reset-password", "passwordResetToken", token)
	return Message{
		To:      to,
		Subject: "Reset your Workboard password",
		Body: strings.Join([]string{
			fmt.Sprintf("Hello %s,", name),
			"",
			fmt.Sprintf("Use the link below to choose a new password. It is valid for %d minutes.", validMinutes),
			"  " + link,
			"",
			"If you did not request a reset, you can ignore this email.",
			"",
			"The Workboard team",
		}, "\r\n"),
	}
}
