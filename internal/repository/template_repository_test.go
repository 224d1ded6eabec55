package repository

import (
	"context"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/require"

	"github.com/optifire/inspection-api/internal/models"
)

func TestTemplateRepositoryCreateInsertsTasksInOrder(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()

	repo := NewTemplateRepository(db)
	template := &models.Template{
		Name: "Quarterly extinguisher check",
		Tasks: []models.TemplateTask{
			{Description: "Check pressure gauge", Position: 1},
			{Description: "Inspect hose", Position: 2},
			{Description: "Verify seal", Position: 3},
		},
	}

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO templates")).
		WillReturnResult(sqlmock.NewResult(1, 1))
	for range template.Tasks {
		mock.ExpectExec(regexp.QuoteMeta("INSERT INTO template_tasks")).
			WillReturnResult(sqlmock.NewResult(1, 1))
	}
	mock.ExpectCommit()

	require.NoError(t, repo.Create(context.Background(), template))
	require.NotEmpty(t, template.ID)
	for _, task := range template.Tasks {
		require.NotEmpty(t, task.ID)
		require.Equal(t, template.ID, task.TemplateID)
	}
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestTemplateRepositoryGetByIDLoadsTasks(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()

	repo := NewTemplateRepository(db)
	mock.ExpectQuery(regexp.QuoteMeta("SELECT id, name, description")).
		WithArgs("tpl-1").
		WillReturnRows(sqlmock.NewRows([]string{"id", "name", "description", "created_at", "updated_at"}).
			AddRow("tpl-1", "Alarm check", "", time.Now(), time.Now()))
	mock.ExpectQuery(regexp.QuoteMeta("ORDER BY position ASC")).
		WithArgs("tpl-1").
		WillReturnRows(sqlmock.NewRows([]string{"id", "template_id", "description", "position"}).
			AddRow("tt-1", "tpl-1", "Check wiring", 1).
			AddRow("tt-2", "tpl-1", "Test siren", 2))

	template, err := repo.GetByID(context.Background(), "tpl-1")
	require.NoError(t, err)
	require.Len(t, template.Tasks, 2)
	require.Equal(t, "Check wiring", template.Tasks[0].Description)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestTemplateRepositoryUpdateReplacesTasks(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()

	repo := NewTemplateRepository(db)
	template := &models.Template{
		ID:   "tpl-1",
		Name: "Alarm check v2",
		Tasks: []models.TemplateTask{
			{Description: "Check wiring", Position: 1},
		},
	}

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("UPDATE templates SET")).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM template_tasks")).
		WillReturnResult(sqlmock.NewResult(0, 2))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO template_tasks")).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectCommit()

	require.NoError(t, repo.Update(context.Background(), template))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestTemplateRepositoryCountReferences(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()

	repo := NewTemplateRepository(db)
	mock.ExpectQuery(regexp.QuoteMeta("SELECT")).
		WithArgs("tpl-1").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(3))

	count, err := repo.CountReferences(context.Background(), "tpl-1")
	require.NoError(t, err)
	require.Equal(t, 3, count)
	require.NoError(t, mock.ExpectationsWereMet())
}
