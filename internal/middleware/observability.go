package middleware

import (
	"log/slog"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/workboard/workboard/internal/telemetry"
)

// noRouteLabel replaces the path label for 404/405 requests so unmatched URLs
// do not inflate label cardinality.
const noRouteLabel = "<no-route>"

func routeLabel(c *gin.Context) string {
	if path := c.FullPath(); path != "" {
		return path
	}
	return noRouteLabel
}

// MetricsMiddleware records http_requests_total{method,path,status} and
// http_request_duration_seconds{method,path} for every request.
// The path label is the matched route template (e.g. /api/v1/projects/:id).
func MetricsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		c.Next()

		path := routeLabel(c)
		method := c.Request.Method
		telemetry.HTTPRequestsTotal.WithLabelValues(method, path, strconv.Itoa(c.Writer.Status())).Inc()
		telemetry.HTTPRequestDuration.WithLabelValues(method, path).Observe(time.Since(start).Seconds())
	}
}

// LoggerMiddleware emits one structured record per request through logger.
// The output format (JSON or text) is decided by the logger's handler.
// Query strings are not logged because activation, invite and reset links carry tokens there.
func LoggerMiddleware(logger *slog.Logger) gin.HandlerFunc {
	if logger == nil {
		logger = slog.Default()
	}
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path

		c.Next()

		status := c.Writer.Status()
		level := slog.LevelInfo
		switch {
		case status >= 500:
			level = slog.LevelError
		case status >= 400:
			level = slog.LevelWarn
		}

		attrs := []slog.Attr{
			slog.String("method", c.Request.Method),
			slog.String("path", path),
			slog.String("route", routeLabel(c)),
			slog.Int("status", status),
			slog.Int("size", c.Writer.Size()),
			slog.Duration("latency", time.Since(start)),
			slog.String("ip", c.ClientIP()),
			slog.String("request_id", c.GetString(RequestIDKey)),
			slog.String("user_agent", c.Request.UserAgent()),
		}
		if id := c.GetString(UserIDKey); id != "" {
			attrs = append(attrs, slog.String("identity_id", id))
		}
		logger.LogAttrs(c.Request.Context(), level, "http request", attrs...)
	}
}
