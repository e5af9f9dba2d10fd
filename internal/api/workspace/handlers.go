// Package workspace implements the HTTP handlers for projects, stories,
// project contributors and the team member directory.
package workspace

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/workboard/workboard/internal/auth"
	"github.com/workboard/workboard/internal/db/models"
	"github.com/workboard/workboard/internal/middleware"
	"github.com/workboard/workboard/internal/services"
)

// Service is the subset of *services.Workspace the handlers call
type Service interface {
	CreateProject(ctx context.Context, actor *models.Identity, in services.ProjectInput) (*models.Project, error)
	GetProject(ctx context.Context, actor *models.Identity, id string) (*models.Project, error)
	ListProjects(ctx context.Context, actor *models.Identity, status models.ProjectStatus) ([]*models.Project, error)
	UpdateProject(ctx context.Context, actor *models.Identity, id string, patch services.ProjectPatch) error
	ChangeProjectStatus(ctx context.Context, actor *models.Identity, id string, status models.ProjectStatus) error
	DeleteProject(ctx context.Context, actor *models.Identity, id string) error

	ListTeamMembers(ctx context.Context, actor *models.Identity) ([]*models.Identity, error)
	AddContributor(ctx context.Context, actor *models.Identity, projectID, teamMemberID string) (*models.Contributor, error)
	ChangeContributorStatus(ctx context.Context, actor *models.Identity, projectID, teamMemberID string, status models.ContributorStatus) error
	ListContributors(ctx context.Context, actor *models.Identity, projectID string) ([]*models.Contributor, error)

	CreateStory(ctx context.Context, actor *models.Identity, in services.StoryInput) (*models.Story, error)
	GetStory(ctx context.Context, actor *models.Identity, id string) (*models.Story, error)
	ListStories(ctx context.Context, actor *models.Identity, projectID string) ([]*models.Story, error)
	UpdateStory(ctx context.Context, actor *models.Identity, id string, patch services.StoryPatch) error
	DeleteStory(ctx context.Context, actor *models.Identity, id string) error
}

// Handlers serves the workspace routes. Every route expects
// middleware.SessionAuthMiddleware to have run.
type Handlers struct {
	svc Service
}

// NewHandlers creates workspace handlers
func NewHandlers(svc Service) *Handlers {
	return &Handlers{svc: svc}
}

func bindJSON(c *gin.Context, dst any) bool {
	if err := c.ShouldBindJSON(dst); err != nil {
		middleware.RespondError(c, auth.ValidationError("Invalid request body"))
		return false
	}
	return true
}

// respond writes body with status, or the mapped error
func respond(c *gin.Context, status int, body gin.H, err error) {
	if err != nil {
		middleware.RespondError(c, err)
		return
	}
	if body == nil {
		c.Status(status)
		return
	}
	c.JSON(status, body)
}

// ---------------------------------------------------------------------------
// Projects
// ---------------------------------------------------------------------------

// CreateProjectHandler creates a project owned by the calling admin
// POST /api/v1/projects
func (h *Handlers) CreateProjectHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var in services.ProjectInput
		if !bindJSON(c, &in) {
			return
		}
		project, err := h.svc.CreateProject(c.Request.Context(), middleware.CurrentIdentity(c), in)
		respond(c, http.StatusCreated, gin.H{"project": project}, err)
	}
}

// ListProjectsHandler lists the caller's projects, optionally filtered by status
// GET /api/v1/projects?status=ACTIVE
func (h *Handlers) ListProjectsHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		status := models.ProjectStatus(c.Query("status"))
		projects, err := h.svc.ListProjects(c.Request.Context(), middleware.CurrentIdentity(c), status)
		respond(c, http.StatusOK, gin.H{"projects": projects}, err)
	}
}

// GetProjectHandler
// GET /api/v1/projects/:id
func (h *Handlers) GetProjectHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		project, err := h.svc.GetProject(c.Request.Context(), middleware.CurrentIdentity(c), c.Param("id"))
		respond(c, http.StatusOK, gin.H{"project": project}, err)
	}
}

// UpdateProjectHandler applies a partial update
// PATCH /api/v1/projects/:id
func (h *Handlers) UpdateProjectHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var patch services.ProjectPatch
		if !bindJSON(c, &patch) {
			return
		}
		err := h.svc.UpdateProject(c.Request.Context(), middleware.CurrentIdentity(c), c.Param("id"), patch)
		respond(c, http.StatusNoContent, nil, err)
	}
}

// ProjectStatusHandler moves a project to status. Mounted on the archive,
// reactivate and complete routes.
func (h *Handlers) ProjectStatusHandler(status models.ProjectStatus) gin.HandlerFunc {
	return func(c *gin.Context) {
		err := h.svc.ChangeProjectStatus(c.Request.Context(), middleware.CurrentIdentity(c), c.Param("id"), status)
		respond(c, http.StatusNoContent, nil, err)
	}
}

// DeleteProjectHandler
// DELETE /api/v1/projects/:id
func (h *Handlers) DeleteProjectHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		err := h.svc.DeleteProject(c.Request.Context(), middleware.CurrentIdentity(c), c.Param("id"))
		respond(c, http.StatusNoContent, nil, err)
	}
}

// ---------------------------------------------------------------------------
// Team members and contributors
// ---------------------------------------------------------------------------

// ListTeamMembersHandler lists the team members invited by the calling admin
// GET /api/v1/team-members
func (h *Handlers) ListTeamMembersHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		members, err := h.svc.ListTeamMembers(c.Request.Context(), middleware.CurrentIdentity(c))
		respond(c, http.StatusOK, gin.H{"team_members": members}, err)
	}
}

type addContributorRequest struct {
	TeamMemberID string `json:"team_member_id"`
}

// AddContributorHandler links a team member to a project
// POST /api/v1/projects/:id/contributors
func (h *Handlers) AddContributorHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req addContributorRequest
		if !bindJSON(c, &req) {
			return
		}
		if req.TeamMemberID == "" {
			middleware.RespondError(c, auth.ValidationError("team_member_id is required"))
			return
		}
		contributor, err := h.svc.AddContributor(c.Request.Context(), middleware.CurrentIdentity(c), c.Param("id"), req.TeamMemberID)
		respond(c, http.StatusCreated, gin.H{"contributor": contributor}, err)
	}
}

// ListContributorsHandler
// GET /api/v1/projects/:id/contributors
func (h *Handlers) ListContributorsHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		contributors, err := h.svc.ListContributors(c.Request.Context(), middleware.CurrentIdentity(c), c.Param("id"))
		respond(c, http.StatusOK, gin.H{"contributors": contributors}, err)
	}
}

// ContributorStatusHandler sets a contributor link to status.
// Mounted on .../contributors/:memberId/deactivate and /reactivate.
func (h *Handlers) ContributorStatusHandler(status models.ContributorStatus) gin.HandlerFunc {
	return func(c *gin.Context) {
		err := h.svc.ChangeContributorStatus(c.Request.Context(), middleware.CurrentIdentity(c),
			c.Param("id"), c.Param("memberId"), status)
		respond(c, http.StatusNoContent, nil, err)
	}
}

// ---------------------------------------------------------------------------
// Stories
// ---------------------------------------------------------------------------

// CreateStoryHandler
// POST /api/v1/stories
func (h *Handlers) CreateStoryHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var in services.StoryInput
		if !bindJSON(c, &in) {
			return
		}
		story, err := h.svc.CreateStory(c.Request.Context(), middleware.CurrentIdentity(c), in)
		respond(c, http.StatusCreated, gin.H{"story": story}, err)
	}
}

// ListStoriesHandler lists stories visible to the caller: an admin sees the
// stories it owns, a team member the stories assigned to it.
// GET /api/v1/stories?project_id=...
func (h *Handlers) ListStoriesHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		stories, err := h.svc.ListStories(c.Request.Context(), middleware.CurrentIdentity(c), c.Query("project_id"))
		respond(c, http.StatusOK, gin.H{"stories": stories}, err)
	}
}

// GetStoryHandler
// GET /api/v1/stories/:id
func (h *Handlers) GetStoryHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		story, err := h.svc.GetStory(c.Request.Context(), middleware.CurrentIdentity(c), c.Param("id"))
		respond(c, http.StatusOK, gin.H{"story": story}, err)
	}
}

// UpdateStoryHandler
// PATCH /api/v1/stories/:id
func (h *Handlers) UpdateStoryHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var patch services.StoryPatch
		if !bindJSON(c, &patch) {
			return
		}
		err := h.svc.UpdateStory(c.Request.Context(), middleware.CurrentIdentity(c), c.Param("id"), patch)
		respond(c, http.StatusNoContent, nil, err)
	}
}

// DeleteStoryHandler
// DELETE /api/v1/stories/:id
func (h *Handlers) DeleteStoryHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		err := h.svc.DeleteStory(c.Request.Context(), middleware.CurrentIdentity(c), c.Param("id"))
		respond(c, http.StatusNoContent, nil, err)
	}
}
