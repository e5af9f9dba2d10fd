// Package api wires together all HTTP routes for the Workboard backend.
//
// Route grouping:
//   - /health, /ready and /version are unauthenticated probes.
//   - /api/v1/users/{signup,activate,login,forgot-password,reset-password} and
//     /api/v1/team-members/create-password are public and sit behind the
//     stricter auth rate limiter, since they accept credentials or tokens.
//   - Everything else under /api/v1 requires a session; project, story
//     administration and team member routes additionally require the ADMIN role.
package api

import (
	"context"
	"database/sql"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"

	"github.com/workboard/workboard/internal/api/accounts"
	"github.com/workboard/workboard/internal/api/workspace"
	"github.com/workboard/workboard/internal/audit"
	"github.com/workboard/workboard/internal/auth"
	"github.com/workboard/workboard/internal/config"
	"github.com/workboard/workboard/internal/db"
	"github.com/workboard/workboard/internal/db/models"
	"github.com/workboard/workboard/internal/db/repositories"
	"github.com/workboard/workboard/internal/jobs"
	"github.com/workboard/workboard/internal/middleware"
	"github.com/workboard/workboard/internal/notify"
	"github.com/workboard/workboard/internal/services"
)

// Version is reported by /version; overridden at build time with -ldflags.
var Version = "0.1.0"

// BackgroundServices holds references to background jobs and resources that must
// be stopped during graceful shutdown. The caller (cmd/server) is responsible for
// calling Shutdown() when the process receives a termination signal.
type BackgroundServices struct {
	cleanupJob   *jobs.SessionCleanupJob
	rateLimiters []*middleware.RateLimiter
	auditShipper *audit.MultiShipper
}

// Shutdown stops all background goroutines. It should be called after the HTTP
// server has been shut down so that in-flight requests are drained first.
func (bg *BackgroundServices) Shutdown() {
	slog.Info("stopping background services")
	if bg.cleanupJob != nil {
		bg.cleanupJob.Stop()
	}
	for _, rl := range bg.rateLimiters {
		rl.Stop()
	}
	if bg.auditShipper != nil {
		if err := bg.auditShipper.Close(); err != nil {
			slog.Warn("failed to close audit shippers", "error", err)
		}
	}
	slog.Info("all background services stopped")
}

// Options carries the collaborators NewRouter does not build from cfg itself
type Options struct {
	// Notifier delivers activation, invite and reset messages. Nil selects
	// notify.New(&cfg.Notifications).
	Notifier notify.Notifier
	// Redis, when set, backs the rate limiters so limits hold across replicas
	// and is included in the readiness probe.
	Redis *redis.Client
	// Logger receives the per-request log records. Nil uses slog.Default().
	Logger *slog.Logger
}

// NewRouter creates and configures the Gin router
func NewRouter(cfg *config.Config, database *sql.DB, opts Options) (*gin.Engine, *BackgroundServices, error) {
	router := gin.New()
	bg := &BackgroundServices{}

	// Repositories
	identityRepo := repositories.NewIdentityRepository(database)
	sessionRepo := repositories.NewSessionRepository(database)
	auditRepo := repositories.NewAuditRepository(database)
	sqlxDB := db.Wrap(database)
	projectRepo := repositories.NewProjectRepository(sqlxDB)
	storyRepo := repositories.NewStoryRepository(sqlxDB)
	contributorRepo := repositories.NewContributorRepository(sqlxDB)

	notifier := opts.Notifier
	if notifier == nil {
		notifier = notify.New(&cfg.Notifications)
	}

	manager, err := auth.NewManager(identityRepo, sessionRepo, notifier, auth.SystemClock{}, auth.ManagerOptions{
		BcryptCost:           cfg.Auth.BcryptCost,
		PasswordResetTTL:     cfg.Auth.PasswordResetTTL,
		SessionMaxAge:        cfg.Auth.SessionMaxAge,
		UniformResetResponse: cfg.Auth.UniformResetResponse,
		Links:                notify.Links{BaseURL: cfg.Notifications.LinkBaseURL},
	})
	if err != nil {
		return nil, nil, err
	}
	ws := services.NewWorkspace(projectRepo, storyRepo, contributorRepo, identityRepo)

	shipper, err := audit.NewMultiShipper(&cfg.Audit)
	if err != nil {
		return nil, nil, err
	}
	bg.auditShipper = shipper
	auditRecorder := audit.NewRecorder(auditRepo, shipper)

	if cfg.Jobs.SessionCleanupEnabled {
		bg.cleanupJob = jobs.NewSessionCleanupJob(sessionRepo, identityRepo, cfg.Jobs.SessionCleanupInterval)
		bg.cleanupJob.Start(context.Background())
	}

	// Global middleware
	router.Use(gin.Recovery())
	router.Use(middleware.RequestIDMiddleware())
	router.Use(middleware.MetricsMiddleware())
	router.Use(middleware.LoggerMiddleware(opts.Logger))
	router.Use(middleware.CORSMiddleware(cfg.Security.CORS))
	router.Use(middleware.SecurityHeadersMiddleware(middleware.APISecurityHeadersConfig(cfg.Security.TLS.Enabled)))

	// Probes
	router.GET("/health", healthCheckHandler(database))
	ready := []readinessCheck{{name: "database", check: database.PingContext}}
	if opts.Redis != nil {
		rdb := opts.Redis
		ready = append(ready, readinessCheck{name: "redis", check: func(ctx context.Context) error {
			return rdb.Ping(ctx).Err()
		}})
	}
	router.GET("/ready", readinessHandler(ready...))
	router.GET("/version", versionHandler())

	// Rate limiters
	passthrough := func(c *gin.Context) { c.Next() }
	generalLimit, authLimit := gin.HandlerFunc(passthrough), gin.HandlerFunc(passthrough)
	if rl := cfg.Security.RateLimiting; rl.Enabled {
		general := middleware.RateLimitConfig{RequestsPerMinute: rl.RequestsPerMinute, BurstSize: rl.Burst, CleanupInterval: 5 * time.Minute}
		strict := middleware.RateLimitConfig{RequestsPerMinute: rl.AuthRequestsPerMinute, BurstSize: rl.AuthBurst, CleanupInterval: 5 * time.Minute}
		if opts.Redis != nil {
			generalLimit = middleware.RateLimitMiddleware("general", middleware.NewRedisRateLimiter(opts.Redis, "general", general))
			authLimit = middleware.RateLimitMiddleware("auth", middleware.NewRedisRateLimiter(opts.Redis, "auth", strict))
		} else {
			generalLimiter := middleware.NewRateLimiter(general)
			authLimiter := middleware.NewRateLimiter(strict)
			bg.rateLimiters = append(bg.rateLimiters, generalLimiter, authLimiter)
			generalLimit = middleware.RateLimitMiddleware("general", generalLimiter)
			authLimit = middleware.RateLimitMiddleware("auth", authLimiter)
		}
	}

	accountHandlers := accounts.NewHandlers(manager, cfg.Auth.Cookie)
	workspaceHandlers := workspace.NewHandlers(ws)

	requireSession := middleware.SessionAuthMiddleware(manager, cfg.Auth.Cookie.Name)
	requireAdmin := middleware.RequireRole(models.RoleAdmin)

	v1 := router.Group("/api/v1")
	v1.Use(middleware.AuditMiddleware(auditRecorder, &cfg.Audit))
	v1.Use(generalLimit)

	// Public account routes
	public := v1.Group("", authLimit)
	{
		public.POST("/users/signup", accountHandlers.SignupHandler())
		public.GET("/users/activate", accountHandlers.ActivateHandler())
		public.POST("/users/login", accountHandlers.LoginHandler())
		public.POST("/users/forgot-password", accountHandlers.ForgotPasswordHandler())
		public.PATCH("/users/reset-password", accountHandlers.ResetPasswordHandler())
		public.PATCH("/team-members/create-password", accountHandlers.CreatePasswordHandler())
	}

	// Any authenticated identity
	authed := v1.Group("", requireSession)
	{
		authed.GET("/users/me", accountHandlers.MeHandler())
		authed.POST("/users/logout", accountHandlers.LogoutHandler())
		authed.PATCH("/users/me/password", accountHandlers.ChangePasswordHandler())

		// Team members may read the stories assigned to them
		authed.GET("/stories", workspaceHandlers.ListStoriesHandler())
		authed.GET("/stories/:id", workspaceHandlers.GetStoryHandler())
	}

	// Admin only
	admin := v1.Group("", requireSession, requireAdmin)
	{
		admin.POST("/team-members", accountHandlers.InviteHandler())
		admin.GET("/team-members", workspaceHandlers.ListTeamMembersHandler())

		admin.POST("/projects", workspaceHandlers.CreateProjectHandler())
		admin.GET("/projects", workspaceHandlers.ListProjectsHandler())
		admin.GET("/projects/:id", workspaceHandlers.GetProjectHandler())
		admin.PATCH("/projects/:id", workspaceHandlers.UpdateProjectHandler())
		admin.DELETE("/projects/:id", workspaceHandlers.DeleteProjectHandler())
		admin.PATCH("/projects/:id/archive", workspaceHandlers.ProjectStatusHandler(models.ProjectArchived))
		admin.PATCH("/projects/:id/reactivate", workspaceHandlers.ProjectStatusHandler(models.ProjectActive))
		admin.PATCH("/projects/:id/complete", workspaceHandlers.ProjectStatusHandler(models.ProjectCompleted))

		admin.POST("/projects/:id/contributors", workspaceHandlers.AddContributorHandler())
		admin.GET("/projects/:id/contributors", workspaceHandlers.ListContributorsHandler())
		admin.PATCH("/projects/:id/contributors/:memberId/deactivate", workspaceHandlers.ContributorStatusHandler(models.ContributorInactive))
		admin.PATCH("/projects/:id/contributors/:memberId/reactivate", workspaceHandlers.ContributorStatusHandler(models.ContributorActive))

		admin.POST("/stories", workspaceHandlers.CreateStoryHandler())
		admin.PATCH("/stories/:id", workspaceHandlers.UpdateStoryHandler())
		admin.DELETE("/stories/:id", workspaceHandlers.DeleteStoryHandler())
	}

	return router, bg, nil
}

// healthCheckHandler returns the liveness status of the service
func healthCheckHandler(database *sql.DB) gin.HandlerFunc {
	return func(c *gin.Context) {
		if err := database.PingContext(c.Request.Context()); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{
				"status": "unhealthy",
				"error":  "database connection failed",
			})
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"status": "healthy",
			"time":   time.Now().UTC().Format(time.RFC3339),
		})
	}
}

type readinessCheck struct {
	name  string
	check func(ctx context.Context) error
}

// readinessHandler returns the readiness status of the service.
// Unlike the liveness probe (/health), this also checks Redis when it backs
// the rate limiters, so a readiness gate fails when limits cannot be enforced.
func readinessHandler(checks ...readinessCheck) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 3*time.Second)
		defer cancel()

		results := gin.H{}
		for _, rc := range checks {
			if err := rc.check(ctx); err != nil {
				results[rc.name] = "unhealthy"
				c.JSON(http.StatusServiceUnavailable, gin.H{
					"ready":  false,
					"checks": results,
					"error":  rc.name + " not ready",
				})
				return
			}
			results[rc.name] = "healthy"
		}

		c.JSON(http.StatusOK, gin.H{
			"ready":  true,
			"checks": results,
			"time":   time.Now().UTC().Format(time.RFC3339),
		})
	}
}

// versionHandler returns the API version
func versionHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"version":     Version,
			"api_version": "v1",
		})
	}
}
