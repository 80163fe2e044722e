package bindings

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/dmitrijs2005/authfacade/internal/common"
	"github.com/dmitrijs2005/authfacade/internal/server/models"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var columns = []string{"provider", "scheme_suffix", "user_id", "external_key", "payload", "last_login_time", "last_modified"}

func newRepoWithMock(t *testing.T) (*PostgresRepository, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return NewPostgresRepository(db), mock
}

func TestFindByUser(t *testing.T) {
	repo, mock := newRepoWithMock(t)
	ctx := context.Background()
	modified := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)

	q := `(?s)^SELECT provider, scheme_suffix, user_id, external_key, payload, last_login_time, last_modified FROM auth_bindings WHERE provider = \$1 AND scheme_suffix = \$2 AND user_id = \$3$`
	mock.ExpectQuery(q).WithArgs("Google", "", int64(2)).
		WillReturnRows(sqlmock.NewRows(columns).AddRow("Google", "", int64(2), "g-1", []byte(`{"a":1}`), nil, modified))
	mock.ExpectQuery(q).WithArgs("Google", "", int64(3)).WillReturnError(sql.ErrNoRows)

	b, err := repo.FindByUser(ctx, "Google", "", 2)
	require.NoError(t, err)
	assert.Equal(t, "g-1", b.ExternalKey)
	assert.JSONEq(t, `{"a":1}`, string(b.Payload))
	assert.Nil(t, b.LastLoginTime)

	_, err = repo.FindByUser(ctx, "Google", "", 3)
	assert.ErrorIs(t, err, common.ErrorNotFound)
}

func TestFindByExternalKey(t *testing.T) {
	repo, mock := newRepoWithMock(t)
	login := time.Date(2024, 5, 2, 0, 0, 0, 0, time.UTC)

	mock.ExpectQuery(`WHERE provider = \$1 AND scheme_suffix = \$2 AND external_key = \$3$`).
		WithArgs("Oidc", "corp", "sub-1").
		WillReturnRows(sqlmock.NewRows(columns).AddRow("Oidc", "corp", int64(5), "sub-1", []byte(`{}`), login, login))

	b, err := repo.FindByExternalKey(context.Background(), "Oidc", "corp", "sub-1")
	require.NoError(t, err)
	assert.Equal(t, int64(5), b.UserID)
	require.NotNil(t, b.LastLoginTime)
	assert.True(t, b.LastLoginTime.Equal(login))
}

func TestListByUser(t *testing.T) {
	repo, mock := newRepoWithMock(t)
	now := time.Now()

	mock.ExpectQuery(`WHERE provider = \$1 AND user_id = \$2 ORDER BY scheme_suffix$`).
		WithArgs("Oidc", int64(5)).
		WillReturnRows(sqlmock.NewRows(columns).
			AddRow("Oidc", "", int64(5), "a", []byte(`{}`), nil, now).
			AddRow("Oidc", "corp", int64(5), "b", []byte(`{}`), nil, now))

	list, err := repo.ListByUser(context.Background(), "Oidc", 5)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "corp", list[1].SchemeSuffix)
}

func TestInsert(t *testing.T) {
	repo, mock := newRepoWithMock(t)
	now := time.Now()
	b := &models.ProviderBinding{Provider: "Google", UserID: 2, ExternalKey: "g-1", Payload: []byte(`{}`), LastModified: now}

	q := `(?s)^INSERT INTO auth_bindings \(provider, scheme_suffix, user_id, external_key, payload, last_login_time, last_modified\) VALUES \(\$1, \$2, \$3, \$4, \$5, \$6, \$7\)$`
	mock.ExpectExec(q).WithArgs("Google", "", int64(2), "g-1", []byte(`{}`), nil, now).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(q).WillReturnError(&pgconn.PgError{Code: "23505"})

	require.NoError(t, repo.Insert(context.Background(), b))
	assert.ErrorIs(t, repo.Insert(context.Background(), b), common.ErrorConflict)
}

func TestUpdate(t *testing.T) {
	repo, mock := newRepoWithMock(t)
	now := time.Now()
	b := &models.ProviderBinding{Provider: "Google", UserID: 2, ExternalKey: "g-2", Payload: []byte(`{"x":1}`), LastModified: now}

	q := `(?s)^UPDATE auth_bindings SET external_key = \$4, payload = \$5, last_modified = \$6 WHERE provider = \$1 AND scheme_suffix = \$2 AND user_id = \$3$`
	mock.ExpectExec(q).WithArgs("Google", "", int64(2), "g-2", []byte(`{"x":1}`), now).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(q).WillReturnResult(sqlmock.NewResult(0, 0))

	require.NoError(t, repo.Update(context.Background(), b))
	assert.ErrorIs(t, repo.Update(context.Background(), b), common.ErrorNotFound)
}

func TestTouchLastLogin(t *testing.T) {
	repo, mock := newRepoWithMock(t)
	at := time.Now()

	mock.ExpectQuery(`(?s)^UPDATE auth_bindings SET last_login_time = CASE.*RETURNING last_login_time$`).
		WithArgs("Google", "", int64(2), at).
		WillReturnRows(sqlmock.NewRows([]string{"last_login_time"}).AddRow(at))

	got, err := repo.TouchLastLogin(context.Background(), "Google", "", 2, at)
	require.NoError(t, err)
	assert.True(t, got.Equal(at))
}

func TestDelete(t *testing.T) {
	repo, mock := newRepoWithMock(t)
	ctx := context.Background()
	corp := "corp"

	mock.ExpectExec(`^DELETE FROM auth_bindings WHERE provider = \$1 AND user_id = \$2$`).
		WithArgs("Oidc", int64(5)).WillReturnResult(sqlmock.NewResult(0, 2))
	mock.ExpectExec(`^DELETE FROM auth_bindings WHERE provider = \$1 AND user_id = \$2 AND scheme_suffix = \$3$`).
		WithArgs("Oidc", int64(5), "corp").WillReturnResult(sqlmock.NewResult(0, 0))

	n, err := repo.Delete(ctx, "Oidc", 5, nil)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	n, err = repo.Delete(ctx, "Oidc", 5, &corp)
	require.NoError(t, err)
	assert.Equal(t, int64(0), n)

	require.NoError(t, mock.ExpectationsWereMet())
}
