package server

import (
	"context"
	"database/sql"
	"errors"
	"math"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/dmitrijs2005/authfacade/internal/server/auth"
	"github.com/dmitrijs2005/authfacade/internal/server/auth/legacy"
	"github.com/dmitrijs2005/authfacade/internal/server/auth/password"
	"github.com/dmitrijs2005/authfacade/internal/server/config"
	"github.com/dmitrijs2005/authfacade/internal/server/models"
	"github.com/dmitrijs2005/authfacade/internal/telemetry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type nopS3 struct{}

func (nopS3) GetObject(context.Context, *s3.GetObjectInput, ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	return nil, errors.New("unused")
}

func (nopS3) DeleteObject(context.Context, *s3.DeleteObjectInput, ...func(*s3.Options)) (*s3.DeleteObjectOutput, error) {
	return nil, errors.New("unused")
}

func memoryConfig() *config.Config {
	c := &config.Config{}
	c.LoadDefaults()
	c.DatabaseDSN = MemoryDSN
	c.HashIterationCount = 10
	return c
}

func TestNewApp_Memory(t *testing.T) {
	ctx := context.Background()
	app, err := NewApp(ctx, memoryConfig(), nil)
	require.NoError(t, err)
	defer app.Close(ctx)

	require.NoError(t, app.Migrate(ctx))
	assert.Equal(t, []string{"Basic", "Google", "Oidc"}, app.Registry.Names())
	assert.Nil(t, app.Passwords.Migrator())

	uid, err := app.Directory.CreateUser(ctx, models.SystemID, "alice")
	require.NoError(t, err)

	p, err := app.Registry.Provider("basic")
	require.NoError(t, err)

	res, err := p.CreateOrUpdate(ctx, models.SystemID, uid, password.Payload{Password: "toto"}, auth.CreateOrUpdate)
	require.NoError(t, err)
	assert.Equal(t, auth.Created, res)

	id, err := p.Login(ctx, password.Payload{UserName: "alice", Password: "toto"}, true)
	require.NoError(t, err)
	assert.Equal(t, uid, id)

	require.NoError(t, app.Registry.Destroy(ctx, models.SystemID, uid))
	id, err = p.Login(ctx, password.Payload{UserID: uid, Password: "toto"}, false)
	require.NoError(t, err)
	assert.Zero(t, id)
}

func TestNewApp_Postgres(t *testing.T) {
	ctx := context.Background()

	orig := sqlOpen
	t.Cleanup(func() { sqlOpen = orig })

	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	mock.ExpectClose()

	var gotDriver, gotDSN string
	sqlOpen = func(driver, dsn string) (*sql.DB, error) {
		gotDriver, gotDSN = driver, dsn
		return db, nil
	}

	c := memoryConfig()
	c.DatabaseDSN = "postgres://u:p@localhost/authfacade"
	app, err := NewApp(ctx, c, nil)
	require.NoError(t, err)

	assert.Equal(t, "pgx", gotDriver)
	assert.Equal(t, c.DatabaseDSN, gotDSN)

	require.NoError(t, app.Close(ctx))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestNewApp_OpenError(t *testing.T) {
	orig := sqlOpen
	t.Cleanup(func() { sqlOpen = orig })
	sqlOpen = func(string, string) (*sql.DB, error) { return nil, errors.New("open-fail") }

	c := memoryConfig()
	c.DatabaseDSN = "postgres://nowhere"
	_, err := NewApp(context.Background(), c, nil)
	assert.ErrorContains(t, err, "open-fail")
}

func TestNewApp_LegacyMigration(t *testing.T) {
	ctx := context.Background()
	orig := newLegacyS3Client
	t.Cleanup(func() { newLegacyS3Client = orig })

	var got legacy.S3Options
	newLegacyS3Client = func(_ context.Context, o legacy.S3Options) (legacy.S3API, error) {
		got = o
		return nopS3{}, nil
	}

	c := memoryConfig()
	c.LegacyS3Bucket = "old-passwords"
	app, err := NewApp(ctx, c, nil)
	require.NoError(t, err)
	defer app.Close(ctx)

	assert.NotNil(t, app.Passwords.Migrator())
	assert.Equal(t, c.LegacyS3Region, got.Region)
	assert.Equal(t, c.LegacyS3RootUser, got.AccessKey)

	newLegacyS3Client = func(context.Context, legacy.S3Options) (legacy.S3API, error) {
		return nil, errors.New("s3-fail")
	}
	_, err = NewApp(ctx, c, nil)
	assert.ErrorContains(t, err, "s3-fail")
}

func TestNewApp_RejectsUnencodableIterationCount(t *testing.T) {
	c := memoryConfig()
	c.HashIterationCount = int(int64(math.MaxUint32) + 1)

	_, err := NewApp(context.Background(), c, nil)
	assert.ErrorContains(t, err, "iteration count out of range")
}

func TestNewApp_TracingError(t *testing.T) {
	orig := setupTracing
	t.Cleanup(func() { setupTracing = orig })
	setupTracing = func(context.Context, string, string) (telemetry.ShutdownFunc, error) {
		return nil, errors.New("otel-fail")
	}

	_, err := NewApp(context.Background(), memoryConfig(), nil)
	assert.ErrorContains(t, err, "otel-fail")
}
