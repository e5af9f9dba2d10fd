package repositories

import (
	"context"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/workboard/workboard/internal/db/models"
)

var storyCols = []string{
	"id", "admin_id", "project_id", "assignee_id", "title", "description", "point", "due_date", "created_at", "updated_at",
}

func sampleStoryRows() *sqlmock.Rows {
	return sqlmock.NewRows(storyCols).
		AddRow("story-1", "admin-1", "project-1", "member-1", "Login page", nil, 3, nil, time.Now(), time.Now())
}

func newStoryRepo(t *testing.T) (*StoryRepository, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return NewStoryRepository(sqlx.NewDb(db, "sqlmock")), mock
}

func TestStoryCreate(t *testing.T) {
	repo, mock := newStoryRepo(t)
	mock.ExpectExec("INSERT INTO stories").WillReturnResult(sqlmock.NewResult(1, 1))

	s := &models.Story{AdminID: "admin-1", ProjectID: "project-1", Title: "Login page"}
	if err := repo.Create(context.Background(), s); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if s.ID == "" {
		t.Error("expected ID to be assigned")
	}
}

func TestStoryGetByID(t *testing.T) {
	repo, mock := newStoryRepo(t)
	mock.ExpectQuery("SELECT .* FROM stories WHERE id").
		WithArgs("story-1").
		WillReturnRows(sampleStoryRows())

	s, err := repo.GetByID(context.Background(), "story-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if s == nil || s.AssigneeID == nil || *s.AssigneeID != "member-1" || s.Point == nil || *s.Point != 3 {
		t.Fatalf("unexpected story %+v", s)
	}
}

func TestStoryListByAssignee(t *testing.T) {
	repo, mock := newStoryRepo(t)
	mock.ExpectQuery("SELECT .* FROM stories WHERE assignee_id = \\$1 ORDER BY").
		WithArgs("member-1").
		WillReturnRows(sampleStoryRows())

	stories, err := repo.ListByAssignee(context.Background(), "member-1", StoryFilter{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(stories) != 1 {
		t.Errorf("len = %d, want 1", len(stories))
	}
}

func TestStoryListByAdmin_ProjectFilter(t *testing.T) {
	repo, mock := newStoryRepo(t)
	mock.ExpectQuery("SELECT .* FROM stories WHERE admin_id = \\$1 AND project_id = \\$2").
		WithArgs("admin-1", "project-1").
		WillReturnRows(sqlmock.NewRows(storyCols))

	if _, err := repo.ListByAdmin(context.Background(), "admin-1", StoryFilter{ProjectID: "project-1"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestStoryUpdate_NeverWritesOwner(t *testing.T) {
	repo, mock := newStoryRepo(t)
	mock.ExpectExec("UPDATE stories SET title = \\?, assignee_id = \\?, updated_at = \\? WHERE id = \\?").
		WithArgs("Signup page", "member-2", sqlmock.AnyArg(), "story-1").
		WillReturnResult(sqlmock.NewResult(0, 1))

	title, assignee := "Signup page", "member-2"
	err := repo.Update(context.Background(), "story-1", models.StoryUpdate{Title: &title, AssigneeID: &assignee})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Error(err)
	}
}

func TestStoryDelete(t *testing.T) {
	repo, mock := newStoryRepo(t)
	mock.ExpectExec("DELETE FROM stories WHERE id").WithArgs("story-1").WillReturnResult(sqlmock.NewResult(0, 1))

	if err := repo.Delete(context.Background(), "story-1"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}
