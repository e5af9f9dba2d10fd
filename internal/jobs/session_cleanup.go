// Package jobs contains the background maintenance jobs started with the server.
//
// session_cleanup.go implements SessionCleanupJob, which periodically deletes
// sessions past their maximum age and clears password reset tokens past their
// expiry. Expired rows are also rejected when presented, independent of this job.
package jobs

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/workboard/workboard/internal/safego"
	"github.com/workboard/workboard/internal/telemetry"
)

// SessionPurger deletes expired sessions. *repositories.SessionRepository implements it.
type SessionPurger interface {
	DeleteExpiredSessions(ctx context.Context, now time.Time) (int64, error)
}

// ResetTokenPurger clears stale password reset tokens. *repositories.IdentityRepository implements it.
type ResetTokenPurger interface {
	ClearExpiredPasswordResetTokens(ctx context.Context, now time.Time) (int64, error)
}

const defaultCleanupInterval = 15 * time.Minute

// SessionCleanupJob runs the purge on a fixed interval
type SessionCleanupJob struct {
	sessions SessionPurger
	tokens   ResetTokenPurger
	interval time.Duration
	now      func() time.Time

	started  atomic.Bool
	stopOnce sync.Once
	stopChan chan struct{}
	done     chan struct{}
}

// NewSessionCleanupJob creates a cleanup job. A non-positive interval defaults to 15 minutes.
func NewSessionCleanupJob(sessions SessionPurger, tokens ResetTokenPurger, interval time.Duration) *SessionCleanupJob {
	if interval <= 0 {
		interval = defaultCleanupInterval
	}
	return &SessionCleanupJob{
		sessions: sessions,
		tokens:   tokens,
		interval: interval,
		now:      time.Now,
		stopChan: make(chan struct{}),
		done:     make(chan struct{}),
	}
}

// Start launches the loop in the background. It runs once immediately, then on
// every tick, until ctx is cancelled or Stop is called. Later calls are no-ops.
func (j *SessionCleanupJob) Start(ctx context.Context) {
	if !j.started.CompareAndSwap(false, true) {
		return
	}
	slog.Info("session cleanup job started", "interval", j.interval)
	safego.Go(safego.SessionCleanup, func() {
		defer close(j.done)

		ticker := time.NewTicker(j.interval)
		defer ticker.Stop()

		j.RunOnce(ctx)
		for {
			select {
			case <-ticker.C:
				j.RunOnce(ctx)
			case <-j.stopChan:
				slog.Info("session cleanup job stopped")
				return
			case <-ctx.Done():
				slog.Info("session cleanup job context cancelled")
				return
			}
		}
	})
}

// Stop signals the loop to exit and waits for it. Safe to call more than once
// and when Start was never called.
func (j *SessionCleanupJob) Stop() {
	j.stopOnce.Do(func() { close(j.stopChan) })
	if j.started.Load() {
		<-j.done
	}
}

// RunOnce performs a single purge pass and records its metrics. Errors are
// logged; a failure of one purge does not skip the other.
func (j *SessionCleanupJob) RunOnce(ctx context.Context) {
	start := time.Now()
	defer func() { telemetry.CleanupRunDuration.Observe(time.Since(start).Seconds()) }()

	now := j.now()
	failed := false

	if j.sessions != nil {
		n, err := j.sessions.DeleteExpiredSessions(ctx, now)
		if err != nil {
			failed = true
			slog.ErrorContext(ctx, "session cleanup: failed to delete expired sessions", "error", err)
		} else if n > 0 {
			telemetry.CleanupRemovedTotal.WithLabelValues("sessions").Add(float64(n))
			slog.InfoContext(ctx, "session cleanup: removed expired sessions", "count", n)
		}
	}

	if j.tokens != nil {
		n, err := j.tokens.ClearExpiredPasswordResetTokens(ctx, now)
		if err != nil {
			failed = true
			slog.ErrorContext(ctx, "session cleanup: failed to clear expired reset tokens", "error", err)
		} else if n > 0 {
			telemetry.CleanupRemovedTotal.WithLabelValues("reset_tokens").Add(float64(n))
			slog.InfoContext(ctx, "session cleanup: cleared expired reset tokens", "count", n)
		}
	}

	if failed {
		telemetry.CleanupErrorsTotal.Inc()
	}
}
