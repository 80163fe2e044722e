package services

import (
	"context"
	"database/sql"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/dmitrijs2005/authfacade/internal/common"
	"github.com/dmitrijs2005/authfacade/internal/server/auth"
	"github.com/dmitrijs2005/authfacade/internal/server/auth/hasher"
	"github.com/dmitrijs2005/authfacade/internal/server/auth/password"
	"github.com/dmitrijs2005/authfacade/internal/server/models"
	"github.com/dmitrijs2005/authfacade/internal/server/repositories/repomanager"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMemoryDirectory(t *testing.T) (*DirectoryService, repomanager.RepositoryManager) {
	t.Helper()
	rm := repomanager.NewInMemoryRepositoryManager()
	return NewDirectoryService(nil, rm, nil), rm
}

func newSQLMockDB(t *testing.T) (*sql.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New error: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db, mock
}

func TestCreateUser(t *testing.T) {
	s, _ := newMemoryDirectory(t)
	ctx := context.Background()

	name := uuid.NewString()
	id, err := s.CreateUser(ctx, models.SystemID, "  "+name+" ")
	require.NoError(t, err)
	assert.Greater(t, id, models.SystemID)

	got, err := s.ResolveIDByName(ctx, name)
	require.NoError(t, err)
	assert.Equal(t, id, got)

	_, err = s.CreateUser(ctx, models.SystemID, name)
	assert.ErrorIs(t, err, common.ErrorConflict)

	_, err = s.CreateUser(ctx, models.SystemID, " ")
	assert.ErrorIs(t, err, common.ErrorInvalidPayload)

	_, err = s.CreateUser(ctx, models.AnonymousID, "x")
	assert.ErrorIs(t, err, common.ErrorInvalidPrincipal)

	_, err = s.CreateUser(ctx, 999, "x")
	assert.ErrorIs(t, err, common.ErrorInvalidPrincipal)

	got, err = s.ResolveIDByName(ctx, "nobody")
	require.NoError(t, err)
	assert.Zero(t, got)
}

func TestUserNameSet(t *testing.T) {
	s, _ := newMemoryDirectory(t)
	ctx := context.Background()

	a, err := s.CreateUser(ctx, models.SystemID, "alice")
	require.NoError(t, err)
	_, err = s.CreateUser(ctx, models.SystemID, "bob")
	require.NoError(t, err)

	ok, err := s.UserNameSet(ctx, models.SystemID, a, "bob")
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = s.UserNameSet(ctx, models.SystemID, a, "carol")
	require.NoError(t, err)
	assert.True(t, ok)

	u, err := s.GetUser(ctx, a)
	require.NoError(t, err)
	assert.Equal(t, "carol", u.UserName)

	_, err = s.UserNameSet(ctx, models.SystemID, 404, "dave")
	assert.ErrorIs(t, err, common.ErrorNotFound)
}

func TestDirectoryQueries(t *testing.T) {
	s, _ := newMemoryDirectory(t)
	ctx := context.Background()

	ok, err := s.UserExists(ctx, models.SystemID)
	require.NoError(t, err)
	assert.True(t, ok, "System is seeded")

	ok, err = s.UserExists(ctx, models.AnonymousID)
	require.NoError(t, err)
	assert.False(t, ok)

	g, err := s.CreateGroup(ctx, models.SystemID)
	require.NoError(t, err)

	ok, err = s.ActorExists(ctx, g)
	require.NoError(t, err)
	assert.True(t, ok, "groups are actors")

	ok, err = s.UserExists(ctx, g)
	require.NoError(t, err)
	assert.False(t, ok, "but not users")
}

func TestDestroyUser(t *testing.T) {
	s, _ := newMemoryDirectory(t)
	ctx := context.Background()

	assert.ErrorIs(t, s.DestroyUser(ctx, models.SystemID, models.SystemID), common.ErrorInvalidPrincipal)
	assert.ErrorIs(t, s.DestroyUser(ctx, models.SystemID, models.AnonymousID), common.ErrorInvalidPrincipal)

	id, err := s.CreateUser(ctx, models.SystemID, "alice")
	require.NoError(t, err)
	g, err := s.CreateGroup(ctx, models.SystemID)
	require.NoError(t, err)
	require.NoError(t, s.AddUser(ctx, models.SystemID, g, id))

	assert.ErrorIs(t, s.DestroyUser(ctx, 0, id), common.ErrorInvalidPrincipal)

	require.NoError(t, s.DestroyUser(ctx, models.SystemID, id))
	require.NoError(t, s.DestroyUser(ctx, models.SystemID, id))

	ok, err := s.UserExists(ctx, id)
	require.NoError(t, err)
	assert.False(t, ok)

	members, err := s.GroupUsers(ctx, g)
	require.NoError(t, err)
	assert.Empty(t, members)
}

func TestDestroyUser_CascadesToPasswordCredential(t *testing.T) {
	s, rm := newMemoryDirectory(t)
	ctx := context.Background()
	p := password.New(s, rm.Passwords(nil), hasher.New(10), nil)

	u, err := s.CreateUser(ctx, models.SystemID, "alice")
	require.NoError(t, err)

	res, err := p.SetPassword(ctx, models.SystemID, u, "toto")
	require.NoError(t, err)
	assert.Equal(t, auth.Created, res)

	id, err := p.VerifyByName(ctx, "alice", "toto", true)
	require.NoError(t, err)
	assert.Equal(t, u, id)

	require.NoError(t, s.DestroyUser(ctx, models.SystemID, u))

	_, err = rm.Passwords(nil).Get(ctx, u)
	assert.ErrorIs(t, err, common.ErrorNotFound)

	id, err = p.VerifyByID(ctx, u, "toto", false)
	require.NoError(t, err)
	assert.Zero(t, id)
}

func TestGroups(t *testing.T) {
	s, _ := newMemoryDirectory(t)
	ctx := context.Background()

	a, _ := s.CreateUser(ctx, models.SystemID, "alice")
	b, _ := s.CreateUser(ctx, models.SystemID, "bob")
	g, err := s.CreateGroup(ctx, models.SystemID)
	require.NoError(t, err)

	require.NoError(t, s.AddUser(ctx, models.SystemID, g, a))
	require.NoError(t, s.AddUser(ctx, models.SystemID, g, a))
	require.NoError(t, s.AddUser(ctx, models.SystemID, g, b))

	members, err := s.GroupUsers(ctx, g)
	require.NoError(t, err)
	assert.Equal(t, []int64{a, b}, members)

	assert.ErrorIs(t, s.AddUser(ctx, models.SystemID, 404, a), common.ErrorNotFound)
	assert.ErrorIs(t, s.AddUser(ctx, models.SystemID, g, 404), common.ErrorInvalidPrincipal)
	assert.ErrorIs(t, s.AddUser(ctx, models.SystemID, g, g), common.ErrorInvalidPrincipal, "a group is not a user")

	require.NoError(t, s.RemoveUser(ctx, models.SystemID, g, b))
	require.NoError(t, s.RemoveUser(ctx, models.SystemID, g, b))

	err = s.DestroyGroup(ctx, models.SystemID, g, false)
	assert.ErrorIs(t, err, common.ErrorGroupNotEmpty)

	g2, _ := s.CreateGroup(ctx, models.SystemID)
	require.NoError(t, s.AddUser(ctx, models.SystemID, g2, a))
	n, err := s.RemoveFromAllGroups(ctx, models.SystemID, a)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	require.NoError(t, s.AddUser(ctx, models.SystemID, g, a))
	require.NoError(t, s.AddUser(ctx, models.SystemID, g, b))
	n, err = s.RemoveAllUsers(ctx, models.SystemID, g)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	require.NoError(t, s.DestroyGroup(ctx, models.SystemID, g, false))
	require.NoError(t, s.DestroyGroup(ctx, models.SystemID, g, false))

	require.NoError(t, s.AddUser(ctx, models.SystemID, g2, b))
	require.NoError(t, s.DestroyGroup(ctx, models.SystemID, g2, true))
	ok, err := s.ActorExists(ctx, g2)
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = s.GroupUsers(ctx, g2)
	assert.ErrorIs(t, err, common.ErrorNotFound)
}

func TestDestroyUser_Postgres_RunsInTransaction(t *testing.T) {
	db, mock := newSQLMockDB(t)
	s := NewDirectoryService(db, repomanager.NewPostgresRepositoryManager(), nil)

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT EXISTS \(SELECT 1 FROM actors WHERE id = \$1\)`).
		WithArgs(int64(1)).
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))
	mock.ExpectExec(`DELETE FROM group_users WHERE user_id = \$1`).
		WithArgs(int64(7)).
		WillReturnResult(sqlmock.NewResult(0, 2))
	mock.ExpectExec(`DELETE FROM actors WHERE id = \$1 AND EXISTS \(SELECT 1 FROM users WHERE id = \$1\)`).
		WithArgs(int64(7)).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	require.NoError(t, s.DestroyUser(context.Background(), models.SystemID, 7))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestDestroyGroup_Postgres_RollsBackWhenNotEmpty(t *testing.T) {
	db, mock := newSQLMockDB(t)
	s := NewDirectoryService(db, repomanager.NewPostgresRepositoryManager(), nil)

	mock.ExpectBegin()
	mock.ExpectQuery(`SELECT EXISTS \(SELECT 1 FROM actors`).
		WithArgs(int64(1)).
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))
	mock.ExpectQuery(`SELECT EXISTS \(SELECT 1 FROM groups`).
		WithArgs(int64(5)).
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))
	mock.ExpectQuery(`SELECT count\(\*\) FROM group_users`).
		WithArgs(int64(5)).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(3))
	mock.ExpectRollback()

	err := s.DestroyGroup(context.Background(), models.SystemID, 5, false)
	assert.ErrorIs(t, err, common.ErrorGroupNotEmpty)
	require.NoError(t, mock.ExpectationsWereMet())
}
