// smtp.go implements SMTPNotifier, which delivers notification emails through the
// configured outbound mail server. Sends are throttled with a token bucket so a
// burst of signups or reset requests cannot exceed the provider's send quota.
package notify

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"net/smtp"
	"time"

	"github.com/workboard/workboard/internal/config"
	"golang.org/x/time/rate"
)

// sendFunc matches smtp.SendMail so tests can intercept delivery
type sendFunc func(addr string, a smtp.Auth, from string, to []string, msg []byte) error

// SMTPNotifier sends messages via SMTP
type SMTPNotifier struct {
	cfg     *config.SMTPConfig
	limiter *rate.Limiter
	timeout time.Duration
	send    sendFunc
}

// NewSMTPNotifier creates an SMTPNotifier. messagesPerMinute <= 0 disables throttling.
func NewSMTPNotifier(cfg *config.SMTPConfig, messagesPerMinute int) *SMTPNotifier {
	limit := rate.Inf
	burst := 1
	if messagesPerMinute > 0 {
		limit = rate.Limit(float64(messagesPerMinute) / 60.0)
		burst = messagesPerMinute
	}

	n := &SMTPNotifier{
		cfg:     cfg,
		limiter: rate.NewLimiter(limit, burst),
		timeout: 30 * time.Second,
	}
	if cfg.UseTLS {
		n.send = n.sendMailTLS
	} else {
		n.send = smtp.SendMail
	}
	return n
}

// Send composes and delivers a plain-text email. It blocks until the throttle
// admits the message or ctx is done.
func (n *SMTPNotifier) Send(ctx context.Context, msg Message) error {
	if err := n.limiter.Wait(ctx); err != nil {
		return fmt.Errorf("notification throttled: %w", err)
	}

	raw := n.compose(msg)
	addr := fmt.Sprintf("%s:%d", n.cfg.Host, n.cfg.Port)

	var auth smtp.Auth
	if n.cfg.Username != "" {
		auth = smtp.PlainAuth("", n.cfg.Username, n.cfg.Password, n.cfg.Host)
	}

	// net/smtp has no context support; run the send in a goroutine and stop
	// waiting when ctx or the timeout fires.
	ctx, cancel := context.WithTimeout(ctx, n.timeout)
	defer cancel()

	errCh := make(chan error, 1)
	go func() {
		errCh <- n.send(addr, auth, n.cfg.From, []string{msg.To}, raw)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("failed to send email to %s: %w", msg.To, err)
		}
		return nil
	case <-ctx.Done():
		return fmt.Errorf("failed to send email to %s: %w", msg.To, ctx.Err())
	}
}

func (n *SMTPNotifier) compose(msg Message) []byte {
	headers := fmt.Sprintf(
		"From: %s\r\nTo: %s\r\nSubject: %s\r\nContent-Type: text/plain; charset=utf-8\r\n\r\n",
		n.cfg.From, msg.To, msg.Subject,
	)
	return []byte(headers + msg.Body + "\r\n")
}

// sendMailTLS connects via implicit TLS (port 465 / SMTPS) and sends a message.
// When the implicit TLS dial fails it falls back to smtp.SendMail, which
// upgrades with STARTTLS on port 587.
func (n *SMTPNotifier) sendMailTLS(addr string, auth smtp.Auth, from string, to []string, msg []byte) error {
	tlsConfig := &tls.Config{
		ServerName: n.cfg.Host,
		MinVersion: tls.VersionTLS12,
	}

	conn, err := tls.Dial("tcp", addr, tlsConfig)
	if err != nil {
		return smtp.SendMail(addr, auth, from, to, msg)
	}
	defer conn.Close()

	hostname, _, _ := net.SplitHostPort(addr)
	c, err := smtp.NewClient(conn, hostname)
	if err != nil {
		return fmt.Errorf("smtp new client: %w", err)
	}
	defer c.Quit() //nolint:errcheck

	if auth != nil {
		if err := c.Auth(auth); err != nil {
			return fmt.Errorf("smtp auth: %w", err)
		}
	}
	if err := c.Mail(from); err != nil {
		return fmt.Errorf("smtp MAIL FROM: %w", err)
	}
	for _, rcpt := range to {
		if err := c.Rcpt(rcpt); err != nil {
			return fmt.Errorf("smtp RCPT TO %s: %w", rcpt, err)
		}
	}
	w, err := c.Data()
	if err != nil {
		return fmt.Errorf("smtp DATA: %w", err)
	}
	if _, err := w.Write(msg); err != nil {
		return fmt.Errorf("smtp write: %w", err)
	}
	return w.Close()
}

// New returns the notifier for the given configuration: SMTP when enabled and
// a host is set, otherwise a LogNotifier.
func New(cfg *config.NotificationsConfig) Notifier {
	if !cfg.Enabled || cfg.SMTP.Host == "" {
		return LogNotifier{}
	}
	return NewSMTPNotifier(&cfg.SMTP, cfg.MessagesPerMinute)
}
