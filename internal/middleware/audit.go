// audit.go provides Gin middleware that records write operations to the audit log.
package middleware

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/workboard/workboard/internal/config"
	"github.com/workboard/workboard/internal/db/models"
	"github.com/workboard/workboard/internal/safego"
)

// AuditRecorder persists audit entries. *repositories.AuditRepository implements it.
type AuditRecorder interface {
	CreateAuditLog(ctx context.Context, log *models.AuditLog) error
}

const auditWriteTimeout = 5 * time.Second

// resourceTypes maps the first path segment under /api/v1 to a resource type.
var resourceTypes = map[string]string{
	"projects":     "project",
	"stories":      "story",
	"team-members": "team_member",
	"users":        "user",
}

// lifecycleActions names the project and contributor state transitions that
// have their own route suffix.
var lifecycleActions = map[string]string{
	"archive":    "archived",
	"reactivate": "reactivated",
	"complete":   "completed",
	"deactivate": "deactivated",
}

// AuditMiddleware records an audit entry after the handler has run.
//
// With a nil cfg only successful write operations are recorded; otherwise
// cfg.LogReadOperations and cfg.LogFailedRequests widen the set. OPTIONS is
// never recorded. Writes happen off the request path and failures are logged.
func AuditMiddleware(recorder AuditRecorder, cfg *config.AuditConfig) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if recorder == nil || c.Request.Method == http.MethodOptions {
			return
		}
		if cfg != nil && !cfg.Enabled {
			return
		}

		isRead := c.Request.Method == http.MethodGet || c.Request.Method == http.MethodHead
		isFailed := c.Writer.Status() >= 400
		logReads := cfg != nil && cfg.LogReadOperations
		logFailed := cfg != nil && cfg.LogFailedRequests
		if (isRead && !logReads) || (isFailed && !logFailed) {
			return
		}

		entry := buildAuditLog(c)
		ctx := context.WithoutCancel(c.Request.Context())

		safego.Go(safego.AuditWrite, func() {
			ctx, cancel := context.WithTimeout(ctx, auditWriteTimeout)
			defer cancel()
			if err := recorder.CreateAuditLog(ctx, entry); err != nil {
				slog.WarnContext(ctx, "failed to write audit log", "action", entry.Action, "error", err)
			}
		})
	}
}

func buildAuditLog(c *gin.Context) *models.AuditLog {
	route := c.FullPath()
	if route == "" {
		route = c.Request.URL.Path
	}
	ip := c.ClientIP()

	entry := &models.AuditLog{
		Action:    c.Request.Method + " " + route,
		IPAddress: &ip,
		CreatedAt: time.Now().UTC(),
		Metadata: map[string]interface{}{
			"status_code": c.Writer.Status(),
		},
	}
	if id := c.GetString(UserIDKey); id != "" {
		entry.IdentityID = &id
	}
	if reqID := c.GetString(RequestIDKey); reqID != "" {
		entry.Metadata["request_id"] = reqID
	}

	segments := strings.Split(strings.TrimPrefix(route, "/api/v1/"), "/")
	resourceType, ok := resourceTypes[segments[0]]
	if !ok {
		return entry
	}
	if strings.Contains(route, "/contributors") {
		resourceType = "contributor"
	}
	entry.ResourceType = &resourceType

	resourceID := c.Param("id")
	if memberID := c.Param("memberId"); memberID != "" {
		resourceID = memberID
	}
	if resourceID != "" {
		entry.ResourceID = &resourceID
	}

	if verb, ok := lifecycleActions[segments[len(segments)-1]]; ok {
		entry.Action = resourceType + "." + verb
	}
	return entry
}
