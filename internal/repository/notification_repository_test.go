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

func TestNotificationRepositoryBulkCreate(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()

	repo := NewNotificationRepository(db)
	notifications := []models.Notification{
		{UserID: "admin-1", Message: "New service request received", Kind: models.NotificationKindRequest},
		{UserID: "admin-2", Message: "New service request received", Kind: models.NotificationKindRequest},
	}

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO notifications")).
		WillReturnResult(sqlmock.NewResult(1, 1))
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO notifications")).
		WillReturnResult(sqlmock.NewResult(1, 1))

	require.NoError(t, repo.BulkCreate(context.Background(), notifications))
	require.NotEmpty(t, notifications[0].ID)
	require.NotEmpty(t, notifications[1].ID)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestNotificationRepositoryListUnreadOnly(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()

	repo := NewNotificationRepository(db)
	rows := sqlmock.NewRows([]string{"id", "user_id", "message", "link", "kind", "ref_id", "read", "created_at"}).
		AddRow("not-1", "user-1", "Your quote is ready", nil, "REQUEST", "req-1", false, time.Now())
	mock.ExpectQuery(regexp.QuoteMeta("read = FALSE")).
		WithArgs("user-1").
		WillReturnRows(rows)

	list, err := repo.List(context.Background(), "user-1", true, 20, 0)
	require.NoError(t, err)
	require.Len(t, list, 1)
	require.False(t, list[0].Read)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestNotificationRepositoryCountUnread(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()

	repo := NewNotificationRepository(db)
	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM notifications")).
		WithArgs("user-1").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(4))

	count, err := repo.CountUnread(context.Background(), "user-1")
	require.NoError(t, err)
	require.Equal(t, 4, count)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestNotificationRepositoryMarkReadScopesToOwner(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()

	repo := NewNotificationRepository(db)
	mock.ExpectExec(regexp.QuoteMeta("UPDATE notifications SET read = TRUE")).
		WithArgs("user-1", "not-1", "not-2").
		WillReturnResult(sqlmock.NewResult(0, 2))

	require.NoError(t, repo.MarkRead(context.Background(), "user-1", []string{"not-1", "not-2"}))
	require.NoError(t, mock.ExpectationsWereMet())

	// An empty id list never touches the database.
	require.NoError(t, repo.MarkRead(context.Background(), "user-1", nil))
	require.NoError(t, mock.ExpectationsWereMet())
}
