package jobs

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"

	"github.com/workboard/workboard/internal/db/repositories"
	"github.com/workboard/workboard/internal/telemetry"
)

// ---------------------------------------------------------------------------
// Helpers
// ---------------------------------------------------------------------------

type countingPurger struct {
	calls   atomic.Int32
	removed int64
	err     error
}

func (p *countingPurger) DeleteExpiredSessions(context.Context, time.Time) (int64, error) {
	p.calls.Add(1)
	return p.removed, p.err
}

func (p *countingPurger) ClearExpiredPasswordResetTokens(context.Context, time.Time) (int64, error) {
	p.calls.Add(1)
	return p.removed, p.err
}

func counterValue(t *testing.T, c prometheus.Collector) float64 {
	t.Helper()
	ch := make(chan prometheus.Metric, 1)
	c.Collect(ch)
	var m dto.Metric
	if err := (<-ch).Write(&m); err != nil {
		t.Fatalf("write metric: %v", err)
	}
	return m.GetCounter().GetValue()
}

// ---------------------------------------------------------------------------
// Construction
// ---------------------------------------------------------------------------

func TestNewSessionCleanupJob_DefaultInterval(t *testing.T) {
	j := NewSessionCleanupJob(nil, nil, 0)
	if j.interval != 15*time.Minute {
		t.Errorf("interval = %v, want 15m", j.interval)
	}
	j = NewSessionCleanupJob(nil, nil, time.Minute)
	if j.interval != time.Minute {
		t.Errorf("interval = %v, want 1m", j.interval)
	}
}

// ---------------------------------------------------------------------------
// RunOnce over the real repositories
// ---------------------------------------------------------------------------

func TestRunOnce_PurgesBothTables(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()

	now := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	mock.ExpectExec("DELETE FROM sessions").WithArgs(now).WillReturnResult(sqlmock.NewResult(0, 3))
	mock.ExpectExec("UPDATE identities").WithArgs(now).WillReturnResult(sqlmock.NewResult(0, 2))

	sessions := telemetry.CleanupRemovedTotal.WithLabelValues("sessions")
	tokens := telemetry.CleanupRemovedTotal.WithLabelValues("reset_tokens")
	beforeSessions := counterValue(t, sessions)
	beforeTokens := counterValue(t, tokens)

	j := NewSessionCleanupJob(repositories.NewSessionRepository(db), repositories.NewIdentityRepository(db), time.Hour)
	j.now = func() time.Time { return now }
	j.RunOnce(context.Background())

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
	if got := counterValue(t, sessions) - beforeSessions; got != 3 {
		t.Errorf("sessions removed delta = %v, want 3", got)
	}
	if got := counterValue(t, tokens) - beforeTokens; got != 2 {
		t.Errorf("reset_tokens removed delta = %v, want 2", got)
	}
}

func TestRunOnce_ErrorCountsAndContinues(t *testing.T) {
	sessions := &countingPurger{err: errors.New("db down")}
	tokens := &countingPurger{}
	before := counterValue(t, telemetry.CleanupErrorsTotal)

	NewSessionCleanupJob(sessions, tokens, time.Hour).RunOnce(context.Background())

	if tokens.calls.Load() != 1 {
		t.Error("reset token purge skipped after session purge failed")
	}
	if got := counterValue(t, telemetry.CleanupErrorsTotal) - before; got != 1 {
		t.Errorf("cleanup errors delta = %v, want 1", got)
	}
}

// ---------------------------------------------------------------------------
// Start / Stop
// ---------------------------------------------------------------------------

func TestStart_RunsImmediatelyAndStops(t *testing.T) {
	p := &countingPurger{}
	j := NewSessionCleanupJob(p, nil, time.Hour)
	j.Start(context.Background())
	j.Start(context.Background()) // second call is a no-op

	deadline := time.Now().Add(2 * time.Second)
	for p.calls.Load() == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if p.calls.Load() != 1 {
		t.Errorf("calls = %d, want 1 immediate run", p.calls.Load())
	}

	j.Stop()
	j.Stop()
}

func TestStart_ExitsOnContextCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	j := NewSessionCleanupJob(&countingPurger{}, nil, time.Hour)
	j.Start(ctx)
	cancel()

	select {
	case <-j.done:
	case <-time.After(2 * time.Second):
		t.Fatal("job did not exit after context cancel")
	}
	j.Stop()
}

func TestStop_WithoutStart(t *testing.T) {
	done := make(chan struct{})
	go func() {
		NewSessionCleanupJob(nil, nil, time.Hour).Stop()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Stop blocked on a job that was never started")
	}
}
