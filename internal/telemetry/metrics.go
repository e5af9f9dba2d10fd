// Package telemetry provides application-level observability for Workboard.
//
// # Prometheus Metrics Endpoint
//
// All metrics are registered against the default Prometheus registry and are
// served by the side-channel HTTP server started by main.go:
//
//	GET http://<host>:<WB_TELEMETRY_METRICS_PROMETHEUS_PORT>/metrics
//
// Default port: 9090. The endpoint is not served by the Gin router.
//
// # Metric Groups
//
//   - HTTP request counters and latency histograms (labelled by route template, not raw URL)
//   - Authentication events and one-time token consumption outcomes
//   - Notification delivery outcomes
//   - Session cleanup job results
//   - Rate limiter rejections
//   - Database connection pool gauge
//
// # Label Cardinality
//
// HTTP metrics use c.FullPath() (route template such as /api/v1/projects/:id)
// rather than the raw request URL so identifiers in the path do not create a
// new series per resource. No metric is labelled with an email address or a
// token value.
//
// # Usage
//
//	telemetry.AuthEventsTotal.WithLabelValues("login", "success").Inc()
package telemetry

import (
	"context"
	"database/sql"
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// HTTP metrics, labelled by method, route template and status code.
//
// Example PromQL queries:
//   - Request rate (req/s, 5 m window):  rate(http_requests_total[5m])
//   - Error rate (%):                    sum(rate(http_requests_total{status=~"5.."}[5m])) / sum(rate(http_requests_total[5m])) * 100
//   - p99 latency per route:             histogram_quantile(0.99, sum by (path, le) (rate(http_request_duration_seconds_bucket[5m])))
var (
	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests processed, by method, route template, and status code.",
		},
		[]string{"method", "path", "status"},
	)

	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Histogram of HTTP request latencies, by method and route template.",
			Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30},
		},
		[]string{"method", "path"},
	)
)

// Authentication metrics, recorded by the lifecycle manager.
//
// AuthEventsTotal has labels {operation, outcome}. operation is one of signup,
// invite, login, logout, password_reset_request; outcome is success or the
// failure kind (invalid_credentials, not_activated).
//
// Example PromQL queries:
//   - Failed login rate:  rate(workboard_auth_events_total{operation="login",outcome!="success"}[5m])
//
// TokenConsumptionsTotal has labels {kind, outcome}. kind is activation, invite
// or password_reset; outcome is success, invalid or expired. A burst of invalid
// outcomes usually means someone is guessing tokens.
//
// Example PromQL queries:
//   - Invalid token attempts:  sum by (kind) (rate(workboard_token_consumptions_total{outcome="invalid"}[15m]))
var (
	AuthEventsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "workboard_auth_events_total",
			Help: "Total number of authentication events, by operation and outcome.",
		},
		[]string{"operation", "outcome"},
	)

	TokenConsumptionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "workboard_token_consumptions_total",
			Help: "Total number of one-time token consumption attempts, by token kind and outcome.",
		},
		[]string{"kind", "outcome"},
	)
)

// Notification metrics, labelled by message kind (activation, invite, password_reset).
//
// A failed delivery never rolls back the state change that produced the
// token, so workboard_notification_failures_total is the signal to alert on.
//
// Example PromQL queries:
//   - Alert expression:  increase(workboard_notification_failures_total[30m]) > 0
var (
	NotificationsSentTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "workboard_notifications_sent_total",
			Help: "Total number of notifications handed to the delivery backend, by kind.",
		},
		[]string{"kind"},
	)

	NotificationFailuresTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "workboard_notification_failures_total",
			Help: "Total number of notifications that could not be delivered, by kind.",
		},
		[]string{"kind"},
	)
)

// Session cleanup metrics, recorded by the session cleanup background job.
//
// CleanupRemovedTotal has label {kind}: sessions or reset_tokens.
var (
	CleanupRemovedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "workboard_cleanup_removed_total",
			Help: "Total number of expired rows removed by the cleanup job, by kind.",
		},
		[]string{"kind"},
	)

	CleanupRunDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "workboard_cleanup_run_duration_seconds",
			Help:    "Duration of a single cleanup job run.",
			Buckets: prometheus.DefBuckets,
		},
	)

	CleanupErrorsTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "workboard_cleanup_errors_total",
			Help: "Total number of failed cleanup job runs.",
		},
	)
)

// BackgroundPanicsTotal has label {goroutine}: the name passed to safego.Go.
var BackgroundPanicsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "workboard_background_panics_total",
		Help: "Total number of panics recovered in background goroutines, by goroutine.",
	},
	[]string{"goroutine"},
)

// RateLimitRejectionsTotal has label {limiter}: auth or general.
var RateLimitRejectionsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "workboard_rate_limit_rejections_total",
		Help: "Total number of requests rejected by a rate limiter.",
	},
	[]string{"limiter"},
)

// DBOpenConnections tracks the number of open connections currently held by
// the sql.DB pool. It is sampled by StartDBStatsCollector rather than per request.
//
// Example PromQL queries:
//   - Pool utilisation (%): db_open_connections / <WB_DATABASE_MAX_CONNECTIONS> * 100
var DBOpenConnections = promauto.NewGauge(
	prometheus.GaugeOpts{
		Name: "db_open_connections",
		Help: "Current number of open database connections in the pool.",
	},
)

// StartDBStatsCollector samples sql.DB pool statistics every interval and
// updates the DBOpenConnections gauge. It returns when ctx is cancelled or the
// database becomes unreachable.
//
//	telemetry.StartDBStatsCollector(ctx, database, 30*time.Second)
func StartDBStatsCollector(ctx context.Context, db *sql.DB, interval time.Duration) {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if err := db.PingContext(ctx); err != nil {
					slog.Warn("db stats collector: database unreachable, stopping collector", "error", err)
					return
				}
				DBOpenConnections.Set(float64(db.Stats().OpenConnections))
			}
		}
	}()
}
