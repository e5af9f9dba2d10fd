// Package services implements higher-level business logic that coordinates across multiple repositories.
// Workspace applies the ownership guard to every project, story and contributor operation;
// handlers pass the acting identity resolved from the session and plain request data.
package services

import (
	"context"
	"errors"
	"time"

	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/google/uuid"

	"github.com/workboard/workboard/internal/auth"
	"github.com/workboard/workboard/internal/db/models"
	"github.com/workboard/workboard/internal/db/repositories"
)

// ProjectStore is the project persistence the workspace needs
type ProjectStore interface {
	Create(ctx context.Context, project *models.Project) error
	GetByID(ctx context.Context, id string) (*models.Project, error)
	ListByAdmin(ctx context.Context, adminID string, status models.ProjectStatus) ([]*models.Project, error)
	Update(ctx context.Context, id string, upd models.ProjectUpdate) error
	UpdateStatus(ctx context.Context, id string, status models.ProjectStatus) error
	Delete(ctx context.Context, id string) error
}

// StoryStore is the story persistence the workspace needs
type StoryStore interface {
	Create(ctx context.Context, story *models.Story) error
	GetByID(ctx context.Context, id string) (*models.Story, error)
	ListByAdmin(ctx context.Context, adminID string, filter repositories.StoryFilter) ([]*models.Story, error)
	ListByAssignee(ctx context.Context, assigneeID string, filter repositories.StoryFilter) ([]*models.Story, error)
	Update(ctx context.Context, id string, upd models.StoryUpdate) error
	Delete(ctx context.Context, id string) error
}

// ContributorStore is the contributor-link persistence the workspace needs
type ContributorStore interface {
	Add(ctx context.Context, c *models.Contributor) error
	Get(ctx context.Context, projectID, teamMemberID string) (*models.Contributor, error)
	ListByProject(ctx context.Context, projectID string) ([]*models.Contributor, error)
	UpdateStatus(ctx context.Context, projectID, teamMemberID string, status models.ContributorStatus) error
}

// TeamMemberStore looks up identities for assignee and contributor checks
type TeamMemberStore interface {
	GetIdentityByID(ctx context.Context, id string) (*models.Identity, error)
	ListTeamMembers(ctx context.Context, adminID string) ([]*models.Identity, error)
}

// Workspace coordinates projects, stories and contributors under the ownership guard
type Workspace struct {
	projects     ProjectStore
	stories      StoryStore
	contributors ContributorStore
	members      TeamMemberStore
}

// NewWorkspace creates a Workspace
func NewWorkspace(projects ProjectStore, stories StoryStore, contributors ContributorStore, members TeamMemberStore) *Workspace {
	return &Workspace{
		projects:     projects,
		stories:      stories,
		contributors: contributors,
		members:      members,
	}
}

// ---------------------------------------------------------------------------
// Inputs
// ---------------------------------------------------------------------------

// ProjectInput is the payload for creating a project
type ProjectInput struct {
	Name        string     `json:"name"`
	Description *string    `json:"description"`
	DueDate     *time.Time `json:"due_date"`
}

// Validate checks required fields
func (in ProjectInput) Validate() error {
	return validation.ValidateStruct(&in,
		validation.Field(&in.Name, validation.Required, validation.Length(1, 200)),
		validation.Field(&in.Description, validation.NilOrNotEmpty, validation.Length(0, 5000)),
	)
}

// ProjectPatch is the payload for updating a project; nil fields are left unchanged
type ProjectPatch struct {
	Name        *string    `json:"name"`
	Description *string    `json:"description"`
	DueDate     *time.Time `json:"due_date"`
}

// Validate checks provided fields
func (p ProjectPatch) Validate() error {
	if p.Name == nil && p.Description == nil && p.DueDate == nil {
		return errors.New("at least one of name, description or due_date is required")
	}
	return validation.ValidateStruct(&p,
		validation.Field(&p.Name, validation.NilOrNotEmpty, validation.Length(1, 200)),
		validation.Field(&p.Description, validation.Length(0, 5000)),
	)
}

// StoryInput is the payload for creating a story
type StoryInput struct {
	ProjectID   string     `json:"project_id"`
	Title       string     `json:"title"`
	Description *string    `json:"description"`
	Point       *int       `json:"point"`
	DueDate     *time.Time `json:"due_date"`
	AssigneeID  *string    `json:"assignee_id"`
}

// Validate checks required fields
func (in StoryInput) Validate() error {
	return validation.ValidateStruct(&in,
		validation.Field(&in.ProjectID, validation.Required),
		validation.Field(&in.Title, validation.Required, validation.Length(1, 200)),
		validation.Field(&in.Point, validation.Min(0)),
		validation.Field(&in.AssigneeID, validation.NilOrNotEmpty),
	)
}

// StoryPatch is the payload for updating a story; nil fields are left unchanged
type StoryPatch struct {
	Title       *string    `json:"title"`
	Description *string    `json:"description"`
	Point       *int       `json:"point"`
	DueDate     *time.Time `json:"due_date"`
	ProjectID   *string    `json:"project_id"`
	AssigneeID  *string    `json:"assignee_id"`
}

func (p StoryPatch) update() models.StoryUpdate {
	return models.StoryUpdate{
		Title:       p.Title,
		Description: p.Description,
		Point:       p.Point,
		DueDate:     p.DueDate,
		ProjectID:   p.ProjectID,
		AssigneeID:  p.AssigneeID,
	}
}

// Validate checks provided fields
func (p StoryPatch) Validate() error {
	if p.update().IsEmpty() {
		return errors.New("at least one field must be provided")
	}
	return validation.ValidateStruct(&p,
		validation.Field(&p.Title, validation.NilOrNotEmpty, validation.Length(1, 200)),
		validation.Field(&p.Point, validation.Min(0)),
		validation.Field(&p.ProjectID, validation.NilOrNotEmpty),
		validation.Field(&p.AssigneeID, validation.NilOrNotEmpty),
	)
}

func invalid(err error) error {
	if err == nil {
		return nil
	}
	return auth.ValidationError("%s", err.Error())
}

func storeErr(op string, err error) error {
	return auth.InternalError(op, err)
}

// validID reports whether id is in the canonical UUID form every primary key
// uses. Anything else cannot name a stored row.
func validID(id string) bool {
	if len(id) != 36 {
		return false
	}
	_, err := uuid.Parse(id)
	return err == nil
}

func requireAdmin(actor *models.Identity) error {
	if actor == nil {
		return auth.ErrNotAuthenticated
	}
	if actor.Role != models.RoleAdmin {
		return auth.ErrForbidden
	}
	return nil
}

// ---------------------------------------------------------------------------
// Projects
// ---------------------------------------------------------------------------

// CreateProject creates an ACTIVE project owned by the acting admin
func (w *Workspace) CreateProject(ctx context.Context, actor *models.Identity, in ProjectInput) (*models.Project, error) {
	if err := requireAdmin(actor); err != nil {
		return nil, err
	}
	if err := in.Validate(); err != nil {
		return nil, invalid(err)
	}

	project := &models.Project{
		AdminID:     actor.ID,
		Name:        in.Name,
		Description: in.Description,
		DueDate:     in.DueDate,
		Status:      models.ProjectActive,
	}
	if err := w.projects.Create(ctx, project); err != nil {
		return nil, storeErr("create project", err)
	}
	return project, nil
}

// ownedProject loads a project and runs the ownership guard
func (w *Workspace) ownedProject(ctx context.Context, actor *models.Identity, id string) (*models.Project, error) {
	if err := requireAdmin(actor); err != nil {
		return nil, err
	}
	if !validID(id) {
		return nil, auth.NotFoundError("Project")
	}
	project, err := w.projects.GetByID(ctx, id)
	if err != nil {
		return nil, storeErr("load project", err)
	}
	return auth.CheckOwnership(project, actor.ID, "Project")
}

// GetProject returns a project owned by the acting admin
func (w *Workspace) GetProject(ctx context.Context, actor *models.Identity, id string) (*models.Project, error) {
	return w.ownedProject(ctx, actor, id)
}

// ListProjects lists the acting admin's projects, optionally filtered by status
func (w *Workspace) ListProjects(ctx context.Context, actor *models.Identity, status models.ProjectStatus) ([]*models.Project, error) {
	if err := requireAdmin(actor); err != nil {
		return nil, err
	}
	if status != "" && !status.Valid() {
		return nil, auth.ValidationError("status must be one of ACTIVE, ARCHIVED, COMPLETED")
	}
	projects, err := w.projects.ListByAdmin(ctx, actor.ID, status)
	if err != nil {
		return nil, storeErr("list projects", err)
	}
	return projects, nil
}

// UpdateProject applies a patch to an owned project
func (w *Workspace) UpdateProject(ctx context.Context, actor *models.Identity, id string, patch ProjectPatch) error {
	if err := patch.Validate(); err != nil {
		return invalid(err)
	}
	if _, err := w.ownedProject(ctx, actor, id); err != nil {
		return err
	}
	upd := models.ProjectUpdate{Name: patch.Name, Description: patch.Description, DueDate: patch.DueDate}
	if err := w.projects.Update(ctx, id, upd); err != nil {
		return storeErr("update project", err)
	}
	return nil
}

// ChangeProjectStatus moves an owned project to status. Setting the current status is a conflict.
func (w *Workspace) ChangeProjectStatus(ctx context.Context, actor *models.Identity, id string, status models.ProjectStatus) error {
	if !status.Valid() {
		return auth.ValidationError("status must be one of ACTIVE, ARCHIVED, COMPLETED")
	}
	project, err := w.ownedProject(ctx, actor, id)
	if err != nil {
		return err
	}
	if project.Status == status {
		return auth.ConflictError("The project already has %s status", status)
	}
	if err := w.projects.UpdateStatus(ctx, id, status); err != nil {
		return storeErr("update project status", err)
	}
	return nil
}

// DeleteProject deletes an owned project that is ARCHIVED or COMPLETED
func (w *Workspace) DeleteProject(ctx context.Context, actor *models.Identity, id string) error {
	project, err := w.ownedProject(ctx, actor, id)
	if err != nil {
		return err
	}
	if project.Status == models.ProjectActive {
		return auth.ConflictError("Only projects with ARCHIVED or COMPLETED status can be deleted")
	}
	if err := w.projects.Delete(ctx, id); err != nil {
		return storeErr("delete project", err)
	}
	return nil
}

// ---------------------------------------------------------------------------
// Team members & contributors
// ---------------------------------------------------------------------------

// ownedTeamMember loads a team member and checks it belongs to the acting admin
func (w *Workspace) ownedTeamMember(ctx context.Context, actor *models.Identity, id string) (*models.Identity, error) {
	if !validID(id) {
		return nil, auth.NotFoundError("Team member")
	}
	member, err := w.members.GetIdentityByID(ctx, id)
	if err != nil {
		return nil, storeErr("load team member", err)
	}
	if member != nil && member.Role != models.RoleTeamMember {
		member = nil
	}
	return auth.CheckOwnership(member, actor.ID, "Team member")
}

// ListTeamMembers lists the acting admin's team members
func (w *Workspace) ListTeamMembers(ctx context.Context, actor *models.Identity) ([]*models.Identity, error) {
	if err := requireAdmin(actor); err != nil {
		return nil, err
	}
	members, err := w.members.ListTeamMembers(ctx, actor.ID)
	if err != nil {
		return nil, storeErr("list team members", err)
	}
	return members, nil
}

// AddContributor links an owned team member to an owned project
func (w *Workspace) AddContributor(ctx context.Context, actor *models.Identity, projectID, teamMemberID string) (*models.Contributor, error) {
	if err := validation.Validate(teamMemberID, validation.Required); err != nil {
		return nil, auth.ValidationError("team_member_id: %s", err.Error())
	}
	if _, err := w.ownedProject(ctx, actor, projectID); err != nil {
		return nil, err
	}
	if _, err := w.ownedTeamMember(ctx, actor, teamMemberID); err != nil {
		return nil, err
	}

	c := &models.Contributor{ProjectID: projectID, TeamMemberID: teamMemberID, Status: models.ContributorActive}
	err := w.contributors.Add(ctx, c)
	if errors.Is(err, repositories.ErrDuplicate) {
		return nil, auth.ConflictError("This team member is already a contributor of the project")
	}
	if err != nil {
		return nil, storeErr("add contributor", err)
	}
	return c, nil
}

// ChangeContributorStatus activates or deactivates a contributor link
func (w *Workspace) ChangeContributorStatus(ctx context.Context, actor *models.Identity, projectID, teamMemberID string, status models.ContributorStatus) error {
	if status != models.ContributorActive && status != models.ContributorInactive {
		return auth.ValidationError("status must be ACTIVE or INACTIVE")
	}
	if _, err := w.ownedProject(ctx, actor, projectID); err != nil {
		return err
	}
	if _, err := w.ownedTeamMember(ctx, actor, teamMemberID); err != nil {
		return err
	}

	link, err := w.contributors.Get(ctx, projectID, teamMemberID)
	if err != nil {
		return storeErr("load contributor", err)
	}
	if link == nil {
		return auth.NotFoundError("Contributor")
	}
	if link.Status == status {
		return auth.ConflictError("This contributor already has %s status", status)
	}
	if err := w.contributors.UpdateStatus(ctx, projectID, teamMemberID, status); err != nil {
		return storeErr("update contributor status", err)
	}
	return nil
}

// ListContributors lists the contributor links of an owned project
func (w *Workspace) ListContributors(ctx context.Context, actor *models.Identity, projectID string) ([]*models.Contributor, error) {
	if _, err := w.ownedProject(ctx, actor, projectID); err != nil {
		return nil, err
	}
	list, err := w.contributors.ListByProject(ctx, projectID)
	if err != nil {
		return nil, storeErr("list contributors", err)
	}
	return list, nil
}

// ---------------------------------------------------------------------------
// Stories
// ---------------------------------------------------------------------------

// CreateStory creates a story in an owned project. An assignee must be a team
// member of the acting admin.
func (w *Workspace) CreateStory(ctx context.Context, actor *models.Identity, in StoryInput) (*models.Story, error) {
	if err := requireAdmin(actor); err != nil {
		return nil, err
	}
	if err := in.Validate(); err != nil {
		return nil, invalid(err)
	}
	if _, err := w.ownedProject(ctx, actor, in.ProjectID); err != nil {
		return nil, err
	}
	if in.AssigneeID != nil {
		if _, err := w.ownedTeamMember(ctx, actor, *in.AssigneeID); err != nil {
			return nil, err
		}
	}

	story := &models.Story{
		AdminID:     actor.ID,
		ProjectID:   in.ProjectID,
		AssigneeID:  in.AssigneeID,
		Title:       in.Title,
		Description: in.Description,
		Point:       in.Point,
		DueDate:     in.DueDate,
	}
	if err := w.stories.Create(ctx, story); err != nil {
		return nil, storeErr("create story", err)
	}
	return story, nil
}

// GetStory returns a story. Admins must own it; team members must be its assignee.
func (w *Workspace) GetStory(ctx context.Context, actor *models.Identity, id string) (*models.Story, error) {
	if actor == nil {
		return nil, auth.ErrNotAuthenticated
	}
	if !validID(id) {
		return nil, auth.NotFoundError("Story")
	}
	story, err := w.stories.GetByID(ctx, id)
	if err != nil {
		return nil, storeErr("load story", err)
	}

	if actor.Role == models.RoleTeamMember {
		if story == nil {
			return nil, auth.NotFoundError("Story")
		}
		if story.AssigneeID == nil || *story.AssigneeID != actor.ID {
			return nil, auth.ErrForbidden
		}
		return story, nil
	}
	return auth.CheckOwnership(story, actor.ID, "Story")
}

// ListStories lists stories owned by an admin or assigned to a team member
func (w *Workspace) ListStories(ctx context.Context, actor *models.Identity, projectID string) ([]*models.Story, error) {
	if actor == nil {
		return nil, auth.ErrNotAuthenticated
	}
	if projectID != "" && !validID(projectID) {
		return nil, auth.ValidationError("project_id must be a valid id")
	}
	filter := repositories.StoryFilter{ProjectID: projectID}

	var (
		stories []*models.Story
		err     error
	)
	if actor.Role == models.RoleTeamMember {
		stories, err = w.stories.ListByAssignee(ctx, actor.ID, filter)
	} else {
		stories, err = w.stories.ListByAdmin(ctx, actor.ID, filter)
	}
	if err != nil {
		return nil, storeErr("list stories", err)
	}
	return stories, nil
}

// UpdateStory applies a patch to an owned story. Moving it to another project
// or assignee re-runs the guard on the target.
func (w *Workspace) UpdateStory(ctx context.Context, actor *models.Identity, id string, patch StoryPatch) error {
	if err := requireAdmin(actor); err != nil {
		return err
	}
	if err := patch.Validate(); err != nil {
		return invalid(err)
	}
	if _, err := w.ownedStory(ctx, actor, id); err != nil {
		return err
	}
	if patch.ProjectID != nil {
		if _, err := w.ownedProject(ctx, actor, *patch.ProjectID); err != nil {
			return err
		}
	}
	if patch.AssigneeID != nil {
		if _, err := w.ownedTeamMember(ctx, actor, *patch.AssigneeID); err != nil {
			return err
		}
	}
	if err := w.stories.Update(ctx, id, patch.update()); err != nil {
		return storeErr("update story", err)
	}
	return nil
}

// DeleteStory deletes an owned story
func (w *Workspace) DeleteStory(ctx context.Context, actor *models.Identity, id string) error {
	if err := requireAdmin(actor); err != nil {
		return err
	}
	if _, err := w.ownedStory(ctx, actor, id); err != nil {
		return err
	}
	if err := w.stories.Delete(ctx, id); err != nil {
		return storeErr("delete story", err)
	}
	return nil
}

func (w *Workspace) ownedStory(ctx context.Context, actor *models.Identity, id string) (*models.Story, error) {
	if !validID(id) {
		return nil, auth.NotFoundError("Story")
	}
	story, err := w.stories.GetByID(ctx, id)
	if err != nil {
		return nil, storeErr("load story", err)
	}
	story, err = auth.CheckOwnership(story, actor.ID, "Story")
	if err != nil {
		return nil, err
	}
	return story, nil
}
