package telemetry

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

// gatherMetric is a test helper that collects all metrics from a Collector and
// returns the first one whose name matches.  Returns nil if no match.
func gatherMetric(t *testing.T, c prometheus.Collector, name string) *dto.MetricFamily {
	t.Helper()
	reg := prometheus.NewPedanticRegistry()
	if err := reg.Register(c); err != nil {
		// Already registered in the default registry; gather from there instead.
		mfs, err := prometheus.DefaultGatherer.Gather()
		if err != nil {
			t.Fatalf("DefaultGatherer.Gather: %v", err)
		}
		for _, mf := range mfs {
			if mf.GetName() == name {
				return mf
			}
		}
		return nil
	}
	mfs, err := reg.Gather()
	if err != nil {
		t.Fatalf("registry.Gather: %v", err)
	}
	for _, mf := range mfs {
		if mf.GetName() == name {
			return mf
		}
	}
	return nil
}

// ---------------------------------------------------------------------------
// Metric registration sanity checks: every exported metric is registered and
// carries the expected fully-qualified name.
//
// We check registration via Describe() rather than DefaultGatherer.Gather()
// because Gather() only returns series that have been observed at least once;
// *Vec metrics with no label combinations yet used are silently absent from
// Gather output even though they are correctly registered.
// ---------------------------------------------------------------------------

func TestMetrics_AllRegistered(t *testing.T) {
	type describer interface {
		Describe(chan<- *prometheus.Desc)
	}

	cases := []struct {
		name string
		c    describer
	}{
		{"http_requests_total", HTTPRequestsTotal},
		{"http_request_duration_seconds", HTTPRequestDuration},
		{"workboard_auth_events_total", AuthEventsTotal},
		{"workboard_token_consumptions_total", TokenConsumptionsTotal},
		{"workboard_notifications_sent_total", NotificationsSentTotal},
		{"workboard_notification_failures_total", NotificationFailuresTotal},
		{"workboard_cleanup_removed_total", CleanupRemovedTotal},
		{"workboard_cleanup_run_duration_seconds", CleanupRunDuration},
		{"workboard_cleanup_errors_total", CleanupErrorsTotal},
		{"workboard_rate_limit_rejections_total", RateLimitRejectionsTotal},
		{"workboard_background_panics_total", BackgroundPanicsTotal},
		{"db_open_connections", DBOpenConnections},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			ch := make(chan *prometheus.Desc, 10)
			tc.c.Describe(ch)
			close(ch)
			for desc := range ch {
				// Desc.String() has the form Desc{fqName: "<name>", help: "...", ...}
				if strings.Contains(desc.String(), `"`+tc.name+`"`) {
					return
				}
			}
			t.Errorf("metric %q: Describe() returned no descriptor with this fqName", tc.name)
		})
	}
}

func TestMetrics_HTTPRequestsTotal_CanBeIncremented(t *testing.T) {
	labels := prometheus.Labels{"method": "GET", "path": "/test", "status": "200"}
	before := counterValue(t, HTTPRequestsTotal, labels)
	HTTPRequestsTotal.WithLabelValues("GET", "/test", "200").Inc()
	after := counterValue(t, HTTPRequestsTotal, labels)
	if after-before < 1 {
		t.Errorf("HTTPRequestsTotal.Inc() did not increase counter (before=%.0f after=%.0f)", before, after)
	}
}

func TestMetrics_AuthEventsTotal_CanBeIncremented(t *testing.T) {
	labels := prometheus.Labels{"operation": "login", "outcome": "invalid_credentials"}
	before := counterValue(t, AuthEventsTotal, labels)
	AuthEventsTotal.WithLabelValues("login", "invalid_credentials").Inc()
	after := counterValue(t, AuthEventsTotal, labels)
	if after-before < 1 {
		t.Errorf("AuthEventsTotal.Inc() did not increase counter")
	}
}

func TestMetrics_TokenConsumptionsTotal_LabelsAreIndependent(t *testing.T) {
	invalid := prometheus.Labels{"kind": "invite", "outcome": "invalid"}
	success := prometheus.Labels{"kind": "invite", "outcome": "success"}
	beforeInvalid := counterValue(t, TokenConsumptionsTotal, invalid)
	beforeSuccess := counterValue(t, TokenConsumptionsTotal, success)

	TokenConsumptionsTotal.WithLabelValues("invite", "invalid").Inc()

	if got := counterValue(t, TokenConsumptionsTotal, invalid) - beforeInvalid; got != 1 {
		t.Errorf("invalid delta = %.0f, want 1", got)
	}
	if got := counterValue(t, TokenConsumptionsTotal, success) - beforeSuccess; got != 0 {
		t.Errorf("success delta = %.0f, want 0", got)
	}
}

func TestMetrics_NotificationFailuresTotal_CanBeIncremented(t *testing.T) {
	labels := prometheus.Labels{"kind": "password_reset"}
	before := counterValue(t, NotificationFailuresTotal, labels)
	NotificationFailuresTotal.WithLabelValues("password_reset").Inc()
	if counterValue(t, NotificationFailuresTotal, labels)-before < 1 {
		t.Errorf("NotificationFailuresTotal.Inc() did not increase counter")
	}
}

func TestMetrics_CleanupErrorsTotal_CanBeIncremented(t *testing.T) {
	before := plainCounterValue(t, CleanupErrorsTotal)
	CleanupErrorsTotal.Inc()
	if plainCounterValue(t, CleanupErrorsTotal)-before < 1 {
		t.Errorf("CleanupErrorsTotal.Inc() did not increase counter")
	}
}

func TestMetrics_CleanupRunDuration_CanBeObserved(t *testing.T) {
	CleanupRunDuration.Observe(0.25)
}

func TestMetrics_DBOpenConnections_CanBeSet(t *testing.T) {
	DBOpenConnections.Set(5)
	DBOpenConnections.Set(0)
}

func TestGatherMetric_FindsRecordedFamily(t *testing.T) {
	RateLimitRejectionsTotal.WithLabelValues("auth").Inc()
	mf := gatherMetric(t, RateLimitRejectionsTotal, "workboard_rate_limit_rejections_total")
	if mf == nil {
		t.Fatal("workboard_rate_limit_rejections_total not gathered")
	}
	if mf.GetType() != dto.MetricType_COUNTER {
		t.Errorf("type = %v, want COUNTER", mf.GetType())
	}
}

// ---------------------------------------------------------------------------
// StartDBStatsCollector
// ---------------------------------------------------------------------------

func TestStartDBStatsCollector_SamplesPool(t *testing.T) {
	db, mock, err := sqlmock.New(sqlmock.MonitorPingsOption(true))
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	defer db.Close()
	mock.ExpectPing()

	DBOpenConnections.Set(-1)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	StartDBStatsCollector(ctx, db, 5*time.Millisecond)

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if gaugeValue(t, DBOpenConnections) >= 0 {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("collector never updated db_open_connections")
}

// ---------------------------------------------------------------------------
// Helpers
// ---------------------------------------------------------------------------

// counterValue reads the current value of a CounterVec for the given label set.
func counterValue(t *testing.T, cv *prometheus.CounterVec, labels prometheus.Labels) float64 {
	t.Helper()
	ch := make(chan prometheus.Metric, 20)
	cv.Collect(ch)
	close(ch)
	for m := range ch {
		var dm dto.Metric
		if err := m.Write(&dm); err != nil {
			continue
		}
		if labelsMatch(dm.GetLabel(), labels) {
			return dm.GetCounter().GetValue()
		}
	}
	return 0
}

// plainCounterValue reads the value of a plain (non-vec) Counter.
func plainCounterValue(t *testing.T, c prometheus.Counter) float64 {
	t.Helper()
	ch := make(chan prometheus.Metric, 1)
	c.Collect(ch)
	close(ch)
	for m := range ch {
		var dm dto.Metric
		if err := m.Write(&dm); err != nil {
			continue
		}
		return dm.GetCounter().GetValue()
	}
	return 0
}

// gaugeValue reads the value of a plain Gauge.
func gaugeValue(t *testing.T, g prometheus.Gauge) float64 {
	t.Helper()
	var dm dto.Metric
	if err := g.Write(&dm); err != nil {
		t.Fatalf("gauge Write: %v", err)
	}
	return dm.GetGauge().GetValue()
}

// labelsMatch returns true when all entries in want appear in got.
func labelsMatch(got []*dto.LabelPair, want prometheus.Labels) bool {
	for k, v := range want {
		found := false
		for _, lp := range got {
			if lp.GetName() == k && lp.GetValue() == v {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}
