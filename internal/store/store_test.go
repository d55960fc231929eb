package store

import (
	"context"
	"database/sql/driver"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	"employee-chat-backend/internal/model"
)

// A helper function to create a mock database connection.
func newTestDB(t *testing.T) (*gorm.DB, sqlmock.Sqlmock) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)

	gormDB, err := gorm.Open(postgres.New(postgres.Config{
		Conn: db,
	}), &gorm.Config{})
	require.NoError(t, err)

	return gormDB, mock
}

// Any is a helper for sqlmock to match any argument.
type Any struct{}

// Match satisfies the sqlmock.Argument interface
func (a Any) Match(v driver.Value) bool {
	return true
}

func TestGormStore_PersistMessage(t *testing.T) {
	gormDB, mock := newTestDB(t)
	s := NewGormStore(gormDB)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta(`INSERT INTO "messages"`)).
		WithArgs(int64(42), int64(1), "hello", Any{}).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).AddRow(7))
	mock.ExpectCommit()

	msg, err := s.PersistMessage(context.Background(), 42, 1, "hello")
	require.NoError(t, err)
	assert.Equal(t, int64(7), msg.ID)
	assert.Equal(t, int64(42), msg.GroupID)
	assert.Equal(t, int64(1), msg.SenderID)
	assert.Equal(t, "hello", msg.Content)
	assert.False(t, msg.CreatedAt.IsZero())

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGormStore_PersistMessageFailure(t *testing.T) {
	gormDB, mock := newTestDB(t)
	s := NewGormStore(gormDB)

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta(`INSERT INTO "messages"`)).
		WillReturnError(assert.AnError)
	mock.ExpectRollback()

	_, err := s.PersistMessage(context.Background(), 42, 1, "hello")
	assert.Error(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGormStore_GroupMemberIDs(t *testing.T) {
	gormDB, mock := newTestDB(t)
	s := NewGormStore(gormDB)

	mock.ExpectQuery(regexp.QuoteMeta(`SELECT "employee_id" FROM "group_members" WHERE group_id = $1`)).
		WithArgs(int64(42)).
		WillReturnRows(sqlmock.NewRows([]string{"employee_id"}).AddRow(1).AddRow(2).AddRow(3))

	ids, err := s.GroupMemberIDs(context.Background(), 42)
	require.NoError(t, err)
	assert.Equal(t, []int64{1, 2, 3}, ids)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGormStore_IsGroupMember(t *testing.T) {
	gormDB, mock := newTestDB(t)
	s := NewGormStore(gormDB)

	mock.ExpectQuery(`SELECT count\(\*\) FROM "group_members" WHERE group_id = \$1 AND employee_id = \$2`).
		WithArgs(int64(42), int64(1)).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))

	member, err := s.IsGroupMember(context.Background(), 42, 1)
	require.NoError(t, err)
	assert.True(t, member)

	mock.ExpectQuery(`SELECT count\(\*\) FROM "group_members" WHERE group_id = \$1 AND employee_id = \$2`).
		WithArgs(int64(42), int64(9)).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(0))

	member, err = s.IsGroupMember(context.Background(), 42, 9)
	require.NoError(t, err)
	assert.False(t, member)

	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGormStore_UpsertSubscription(t *testing.T) {
	gormDB, mock := newTestDB(t)
	s := NewGormStore(gormDB)

	mock.ExpectBegin()
	mock.ExpectQuery(`INSERT INTO "push_subscriptions" .*ON CONFLICT \("employee_id","endpoint"\) DO UPDATE SET`).
		WithArgs(int64(1), "https://push.example/abc", "p256dh-key", "auth-secret", Any{}).
		WillReturnRows(sqlmock.NewRows([]string{"employee_id"}).AddRow(1))
	mock.ExpectCommit()

	err := s.UpsertSubscription(context.Background(), &model.PushSubscription{
		EmployeeID: 1,
		Endpoint:   "https://push.example/abc",
		P256DH:     "p256dh-key",
		Auth:       "auth-secret",
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGormStore_DeleteSubscription(t *testing.T) {
	gormDB, mock := newTestDB(t)
	s := NewGormStore(gormDB)

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta(`DELETE FROM "push_subscriptions" WHERE employee_id = $1 AND endpoint = $2`)).
		WithArgs(int64(1), "https://push.example/abc").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	err := s.DeleteSubscription(context.Background(), 1, "https://push.example/abc")
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGormStore_SubscriptionsFor(t *testing.T) {
	gormDB, mock := newTestDB(t)
	s := NewGormStore(gormDB)

	now := time.Now()
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT * FROM "push_subscriptions" WHERE employee_id IN ($1,$2)`)).
		WithArgs(int64(2), int64(3)).
		WillReturnRows(sqlmock.NewRows([]string{"employee_id", "endpoint", "p256dh", "auth", "created_at"}).
			AddRow(2, "https://push.example/a", "k1", "a1", now).
			AddRow(3, "https://push.example/b", "k2", "a2", now))

	subs, err := s.SubscriptionsFor(context.Background(), []int64{2, 3})
	require.NoError(t, err)
	require.Len(t, subs, 2)
	assert.Equal(t, int64(2), subs[0].EmployeeID)
	assert.Equal(t, "https://push.example/b", subs[1].Endpoint)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestGormStore_SubscriptionsForEmptySet(t *testing.T) {
	gormDB, mock := newTestDB(t)
	s := NewGormStore(gormDB)

	// No employees means no query at all.
	subs, err := s.SubscriptionsFor(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, subs)
	assert.NoError(t, mock.ExpectationsWereMet())
}
