// Package safego launches named background goroutines for Workboard. A panic
// in one of them (audit writes, the audit webhook batcher, the session cleanup
// loop) is recovered, logged with its stack and counted in
// workboard_background_panics_total instead of taking the server down.
package safego

import (
	"log/slog"
	"runtime/debug"

	"github.com/workboard/workboard/internal/telemetry"
)

// Goroutine names used by the server's background work.
const (
	AuditWrite     = "audit_write"
	AuditWebhook   = "audit_webhook_batcher"
	SessionCleanup = "session_cleanup"
)

// Go runs fn in a new goroutine labelled name.
func Go(name string, fn func()) {
	go func() {
		defer Recover(name)
		fn()
	}()
}

// Recover must be deferred directly. It swallows a panic in the calling
// goroutine, logs it and increments the panic counter for name.
func Recover(name string) {
	r := recover()
	if r == nil {
		return
	}
	telemetry.BackgroundPanicsTotal.WithLabelValues(name).Inc()
	slog.Error("recovered panic in background goroutine",
		"goroutine", name,
		"panic", r,
		"stack", string(debug.Stack()))
}
