package notify

import (
	"context"
	"errors"
	"net/smtp"
	"strings"
	"testing"
	"time"

	"github.com/workboard/workboard/internal/config"
)

func newTestSMTPNotifier(send sendFunc) *SMTPNotifier {
	n := NewSMTPNotifier(&config.SMTPConfig{
		Host: "smtp.example.com",
		Port: 25,
		From: "noreply@example.com",
	}, 0)
	n.send = send
	return n
}

// ---------------------------------------------------------------------------
// Send
// ---------------------------------------------------------------------------

func TestSMTPNotifier_Send_ComposesMessage(t *testing.T) {
	var gotAddr, gotFrom string
	var gotTo []string
	var gotMsg string

	n := newTestSMTPNotifier(func(addr string, _ smtp.Auth, from string, to []string, msg []byte) error {
		gotAddr, gotFrom, gotTo, gotMsg = addr, from, to, string(msg)
		return nil
	})

	err := n.Send(context.Background(), Message{To: "ada@example.com", Subject: "Hi", Body: "Body text"})
	if err != nil {
		t.Fatalf("Send() error = %v", err)
	}
	if gotAddr != "smtp.example.com:25" {
		t.Errorf("addr = %q, want smtp.example.com:25", gotAddr)
	}
	if gotFrom != "noreply@example.com" {
		t.Errorf("from = %q", gotFrom)
	}
	if len(gotTo) != 1 || gotTo[0] != "ada@example.com" {
		t.Errorf("to = %v", gotTo)
	}
	for _, want := range []string{"Subject: Hi\r\n", "To: ada@example.com\r\n", "\r\n\r\nBody text\r\n"} {
		if !strings.Contains(gotMsg, want) {
			t.Errorf("message missing %q:\n%s", want, gotMsg)
		}
	}
}

func TestSMTPNotifier_Send_PropagatesError(t *testing.T) {
	n := newTestSMTPNotifier(func(string, smtp.Auth, string, []string, []byte) error {
		return errors.New("connection refused")
	})

	err := n.Send(context.Background(), Message{To: "ada@example.com"})
	if err == nil || !strings.Contains(err.Error(), "connection refused") {
		t.Errorf("Send() error = %v, want wrapped connection refused", err)
	}
}

func TestSMTPNotifier_Send_Timeout(t *testing.T) {
	release := make(chan struct{})
	defer close(release)

	n := newTestSMTPNotifier(func(string, smtp.Auth, string, []string, []byte) error {
		<-release
		return nil
	})
	n.timeout = 20 * time.Millisecond

	err := n.Send(context.Background(), Message{To: "ada@example.com"})
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Errorf("Send() error = %v, want context.DeadlineExceeded", err)
	}
}

func TestSMTPNotifier_Send_ThrottleRespectsContext(t *testing.T) {
	n := NewSMTPNotifier(&config.SMTPConfig{Host: "smtp.example.com", Port: 25}, 1)
	n.send = func(string, smtp.Auth, string, []string, []byte) error { return nil }

	// First message consumes the single burst token.
	if err := n.Send(context.Background(), Message{To: "a@x.com"}); err != nil {
		t.Fatalf("first Send() error = %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := n.Send(ctx, Message{To: "a@x.com"}); err == nil {
		t.Error("second Send() with cancelled context should fail while throttled")
	}
}

// ---------------------------------------------------------------------------
// New
// ---------------------------------------------------------------------------

func TestNew_DisabledReturnsLogNotifier(t *testing.T) {
	n := New(&config.NotificationsConfig{Enabled: false, SMTP: config.SMTPConfig{Host: "smtp.example.com"}})
	if _, ok := n.(LogNotifier); !ok {
		t.Errorf("New() = %T, want LogNotifier", n)
	}
}

func TestNew_NoHostReturnsLogNotifier(t *testing.T) {
	n := New(&config.NotificationsConfig{Enabled: true})
	if _, ok := n.(LogNotifier); !ok {
		t.Errorf("New() = %T, want LogNotifier", n)
	}
}

func TestNew_EnabledReturnsSMTPNotifier(t *testing.T) {
	n := New(&config.NotificationsConfig{Enabled: true, SMTP: config.SMTPConfig{Host: "smtp.example.com", Port: 587}})
	if _, ok := n.(*SMTPNotifier); !ok {
		t.Errorf("New() = %T, want *SMTPNotifier", n)
	}
}
