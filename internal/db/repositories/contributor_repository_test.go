package repositories

import (
	"context"
	"errors"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/workboard/workboard/internal/db/models"
)

var contributorCols = []string{"project_id", "team_member_id", "status", "joined_at"}

func newContributorRepo(t *testing.T) (*ContributorRepository, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return NewContributorRepository(sqlx.NewDb(db, "sqlmock")), mock
}

func TestContributorAdd(t *testing.T) {
	repo, mock := newContributorRepo(t)
	mock.ExpectExec("INSERT INTO project_contributors").
		WithArgs("project-1", "member-1", "ACTIVE", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))

	c := &models.Contributor{ProjectID: "project-1", TeamMemberID: "member-1"}
	if err := repo.Add(context.Background(), c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if c.Status != models.ContributorActive {
		t.Errorf("status = %s, want ACTIVE", c.Status)
	}
}

func TestContributorAdd_Duplicate(t *testing.T) {
	repo, mock := newContributorRepo(t)
	mock.ExpectExec("INSERT INTO project_contributors").
		WillReturnError(&pq.Error{Code: "23505"})

	err := repo.Add(context.Background(), &models.Contributor{ProjectID: "project-1", TeamMemberID: "member-1"})
	if !errors.Is(err, ErrDuplicate) {
		t.Errorf("err = %v, want ErrDuplicate", err)
	}
}

func TestContributorGet(t *testing.T) {
	repo, mock := newContributorRepo(t)
	mock.ExpectQuery("SELECT .* FROM project_contributors.*WHERE project_id = \\$1 AND team_member_id = \\$2").
		WithArgs("project-1", "member-1").
		WillReturnRows(sqlmock.NewRows(contributorCols).AddRow("project-1", "member-1", "INACTIVE", time.Now()))

	c, err := repo.Get(context.Background(), "project-1", "member-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if c == nil || c.Status != models.ContributorInactive {
		t.Fatalf("unexpected contributor %+v", c)
	}
}

func TestContributorGet_NotFound(t *testing.T) {
	repo, mock := newContributorRepo(t)
	mock.ExpectQuery("SELECT .* FROM project_contributors").WillReturnRows(sqlmock.NewRows(contributorCols))

	c, err := repo.Get(context.Background(), "project-1", "member-9")
	if err != nil || c != nil {
		t.Fatalf("got (%v, %v), want (nil, nil)", c, err)
	}
}

func TestContributorListByProject(t *testing.T) {
	repo, mock := newContributorRepo(t)
	mock.ExpectQuery("SELECT .* FROM project_contributors.*ORDER BY joined_at").
		WithArgs("project-1").
		WillReturnRows(sqlmock.NewRows(contributorCols).
			AddRow("project-1", "member-1", "ACTIVE", time.Now()).
			AddRow("project-1", "member-2", "INACTIVE", time.Now()))

	list, err := repo.ListByProject(context.Background(), "project-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(list) != 2 {
		t.Errorf("len = %d, want 2", len(list))
	}
}

func TestContributorUpdateStatus(t *testing.T) {
	repo, mock := newContributorRepo(t)
	mock.ExpectExec("UPDATE project_contributors SET status").
		WithArgs("project-1", "member-1", "INACTIVE").
		WillReturnResult(sqlmock.NewResult(0, 1))

	if err := repo.UpdateStatus(context.Background(), "project-1", "member-1", models.ContributorInactive); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}
