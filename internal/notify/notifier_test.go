package notify

import (
	"context"
	"strings"
	"testing"
)

func TestLinks_Activation(t *testing.T) {
	l := Links{BaseURL: "http://localhost:8080/api/v1/"}
	msg := l.Activation("ada@example.com", "Ada", "tok_123")

	if msg.To != "ada@example.com" {
		t.Errorf("To = %q, want ada@example.com", msg.To)
	}
	want := "http://localhost:8080/api/v1/users/activate?activationToken=tok_123"
	if !strings.Contains(msg.Body, want) {
		t.Errorf("body does not contain %q:\n%s", want, msg.Body)
	}
	if !strings.Contains(msg.Body, "Hello Ada,") {
		t.Errorf("body does not greet recipient:\n%s", msg.Body)
	}
}

func TestLinks_Invite(t *testing.T) {
	l := Links{BaseURL: "https://wb.example.com/api/v1"}
	msg := l.Invite("bob@example.com", "Bob", "abc-DEF_1")

	want := "https://wb.example.com/api/v1/team-members/create-password?inviteToken=abc-DEF_1"
	if !strings.Contains(msg.Body, want) {
		t.Errorf("body does not contain %q:\n%s", want, msg.Body)
	}
}

func TestLinks_PasswordReset(t *testing.T) {
	l := Links{BaseURL: "https://wb.example.com/api/v1"}
	msg := l.PasswordReset("bob@example.com", "Bob", "reset-tok", 10)

	if !strings.Contains(msg.Body, "passwordResetToken=reset-tok") {
		t.Errorf("body missing reset token link:\n%s", msg.Body)
	}
	if !strings.Contains(msg.Body, "10 minutes") {
		t.Errorf("body missing validity window:\n%s", msg.Body)
	}
}

func TestLinks_EscapesToken(t *testing.T) {
	l := Links{BaseURL: "http://x"}
	msg := l.Activation("a@x.com", "A", "a b&c")
	if !strings.Contains(msg.Body, "activationToken=a+b%26c") {
		t.Errorf("token not query-escaped:\n%s", msg.Body)
	}
}

func TestLogNotifier_Send(t *testing.T) {
	if err := (LogNotifier{}).Send(context.Background(), Message{To: "a@x.com", Subject: "s"}); err != nil {
		t.Errorf("LogNotifier.Send() error = %v, want nil", err)
	}
}
