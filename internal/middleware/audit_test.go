package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/workboard/workboard/internal/config"
	"github.com/workboard/workboard/internal/db/models"
)

// captureRecorder collects audit log entries via a buffered channel.
type captureRecorder struct {
	ch  chan *models.AuditLog
	err error
}

func newCaptureRecorder(buf int) *captureRecorder {
	return &captureRecorder{ch: make(chan *models.AuditLog, buf)}
}

func (r *captureRecorder) CreateAuditLog(_ context.Context, e *models.AuditLog) error {
	r.ch <- e
	return r.err
}

// waitForEntry blocks until an entry arrives or the timeout fires.
func (r *captureRecorder) waitForEntry(t *testing.T) *models.AuditLog {
	t.Helper()
	select {
	case e := <-r.ch:
		return e
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for audit log entry")
		return nil
	}
}

// expectNone asserts that nothing is recorded within a short window.
func (r *captureRecorder) expectNone(t *testing.T) {
	t.Helper()
	select {
	case e := <-r.ch:
		t.Errorf("unexpected audit entry %q", e.Action)
	case <-time.After(100 * time.Millisecond):
	}
}

func newAuditRouter(rec AuditRecorder, cfg *config.AuditConfig, status int) *gin.Engine {
	r := gin.New()
	r.Use(func(c *gin.Context) {
		c.Set(UserIDKey, "admin-1")
		c.Set(RequestIDKey, "req-7")
		c.Next()
	})
	r.Use(AuditMiddleware(rec, cfg))
	h := func(c *gin.Context) { c.Status(status) }
	r.GET("/api/v1/projects", h)
	r.POST("/api/v1/projects", h)
	r.OPTIONS("/api/v1/projects", h)
	r.PATCH("/api/v1/projects/:id/archive", h)
	r.PATCH("/api/v1/projects/:id/contributors/:memberId/deactivate", h)
	r.DELETE("/api/v1/stories/:id", h)
	r.POST("/api/v1/team-members", h)
	r.POST("/api/v1/other", h)
	return r
}

func serveAudit(r *gin.Engine, method, path string) {
	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(method, path, nil))
}

// ---------------------------------------------------------------------------
// AuditMiddleware filtering
// ---------------------------------------------------------------------------

func TestAuditMiddleware_OptionsSkipped(t *testing.T) {
	rec := newCaptureRecorder(1)
	serveAudit(newAuditRouter(rec, nil, http.StatusNoContent), http.MethodOptions, "/api/v1/projects")
	rec.expectNone(t)
}

func TestAuditMiddleware_GetSkippedWithNilConfig(t *testing.T) {
	rec := newCaptureRecorder(1)
	serveAudit(newAuditRouter(rec, nil, http.StatusOK), http.MethodGet, "/api/v1/projects")
	rec.expectNone(t)
}

func TestAuditMiddleware_FailedPostSkippedWithNilConfig(t *testing.T) {
	rec := newCaptureRecorder(1)
	serveAudit(newAuditRouter(rec, nil, http.StatusBadRequest), http.MethodPost, "/api/v1/projects")
	rec.expectNone(t)
}

func TestAuditMiddleware_DisabledConfig(t *testing.T) {
	rec := newCaptureRecorder(1)
	serveAudit(newAuditRouter(rec, &config.AuditConfig{Enabled: false}, http.StatusCreated), http.MethodPost, "/api/v1/projects")
	rec.expectNone(t)
}

func TestAuditMiddleware_ConfigWidensScope(t *testing.T) {
	cfg := &config.AuditConfig{Enabled: true, LogReadOperations: true, LogFailedRequests: true}

	rec := newCaptureRecorder(2)
	serveAudit(newAuditRouter(rec, cfg, http.StatusOK), http.MethodGet, "/api/v1/projects")
	if e := rec.waitForEntry(t); e.Action != "GET /api/v1/projects" {
		t.Errorf("Action = %q", e.Action)
	}

	serveAudit(newAuditRouter(rec, cfg, http.StatusForbidden), http.MethodPost, "/api/v1/projects")
	e := rec.waitForEntry(t)
	if e.Metadata["status_code"] != http.StatusForbidden {
		t.Errorf("status_code = %v, want 403", e.Metadata["status_code"])
	}
}

func TestAuditMiddleware_NilRecorder_NoPanic(t *testing.T) {
	serveAudit(newAuditRouter(nil, nil, http.StatusCreated), http.MethodPost, "/api/v1/projects")
}

func TestAuditMiddleware_RecorderErrorIsSwallowed(t *testing.T) {
	rec := newCaptureRecorder(1)
	rec.err = errors.New("db down")
	w := httptest.NewRecorder()
	newAuditRouter(rec, nil, http.StatusCreated).ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/api/v1/projects", nil))

	rec.waitForEntry(t)
	if w.Code != http.StatusCreated {
		t.Errorf("status = %d, want 201", w.Code)
	}
}

// ---------------------------------------------------------------------------
// Entry contents
// ---------------------------------------------------------------------------

func TestAuditMiddleware_EntryFields(t *testing.T) {
	deref := func(p *string) string {
		if p == nil {
			return ""
		}
		return *p
	}

	tests := []struct {
		method, path                     string
		wantAction, wantType, wantResult string
	}{
		{http.MethodPost, "/api/v1/projects", "POST /api/v1/projects", "project", ""},
		{http.MethodPatch, "/api/v1/projects/p-1/archive", "project.archived", "project", "p-1"},
		{http.MethodPatch, "/api/v1/projects/p-1/contributors/m-2/deactivate", "contributor.deactivated", "contributor", "m-2"},
		{http.MethodDelete, "/api/v1/stories/s-3", "DELETE /api/v1/stories/:id", "story", "s-3"},
		{http.MethodPost, "/api/v1/team-members", "POST /api/v1/team-members", "team_member", ""},
		{http.MethodPost, "/api/v1/other", "POST /api/v1/other", "", ""},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			rec := newCaptureRecorder(1)
			serveAudit(newAuditRouter(rec, nil, http.StatusNoContent), tt.method, tt.path)
			e := rec.waitForEntry(t)

			if e.Action != tt.wantAction {
				t.Errorf("Action = %q, want %q", e.Action, tt.wantAction)
			}
			if got := deref(e.ResourceType); got != tt.wantType {
				t.Errorf("ResourceType = %q, want %q", got, tt.wantType)
			}
			if got := deref(e.ResourceID); got != tt.wantResult {
				t.Errorf("ResourceID = %q, want %q", got, tt.wantResult)
			}
			if deref(e.IdentityID) != "admin-1" {
				t.Errorf("IdentityID = %q, want admin-1", deref(e.IdentityID))
			}
			if e.Metadata["request_id"] != "req-7" {
				t.Errorf("request_id = %v", e.Metadata["request_id"])
			}
			if deref(e.IPAddress) == "" {
				t.Error("IPAddress not set")
			}
		})
	}
}
