// Package server wires configuration, storage, the identity directory and
// the authentication providers into one App.
package server

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/dmitrijs2005/authfacade/internal/dbx"
	"github.com/dmitrijs2005/authfacade/internal/logging"
	"github.com/dmitrijs2005/authfacade/internal/server/auth"
	"github.com/dmitrijs2005/authfacade/internal/server/auth/google"
	"github.com/dmitrijs2005/authfacade/internal/server/auth/hasher"
	"github.com/dmitrijs2005/authfacade/internal/server/auth/legacy"
	"github.com/dmitrijs2005/authfacade/internal/server/auth/oidc"
	"github.com/dmitrijs2005/authfacade/internal/server/auth/password"
	"github.com/dmitrijs2005/authfacade/internal/server/config"
	"github.com/dmitrijs2005/authfacade/internal/server/repositories/repomanager"
	"github.com/dmitrijs2005/authfacade/internal/server/services"
	"github.com/dmitrijs2005/authfacade/internal/telemetry"
)

// MemoryDSN selects the in-memory repositories instead of PostgreSQL.
const MemoryDSN = "memory"

const serviceName = "authfacade"

var (
	sqlOpen = sql.Open

	newLegacyS3Client = func(ctx context.Context, o legacy.S3Options) (legacy.S3API, error) {
		return legacy.NewS3Client(ctx, o)
	}

	setupTracing = telemetry.Setup
)

type App struct {
	config      *config.Config
	logger      logging.Logger
	db          *sql.DB
	repomanager repomanager.RepositoryManager
	shutdown    telemetry.ShutdownFunc

	Directory *services.DirectoryService
	Passwords *password.Provider
	Google    *google.Provider
	Oidc      *oidc.Provider
	Registry  *auth.Registry
}

// NewApp opens the store and builds every provider. It does not touch the
// database; call Migrate before first use of a fresh one.
func NewApp(ctx context.Context, c *config.Config, logger logging.Logger) (*App, error) {
	if logger == nil {
		logger = logging.Nop()
	}
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("config error: %w", err)
	}

	shutdown, err := setupTracing(ctx, serviceName, c.OtelEndpoint)
	if err != nil {
		return nil, fmt.Errorf("tracing init error: %w", err)
	}

	app := &App{config: c, logger: logger, shutdown: shutdown}

	var conn dbx.DBTX
	if c.DatabaseDSN == MemoryDSN {
		app.repomanager = repomanager.NewInMemoryRepositoryManager()
	} else {
		db, err := sqlOpen("pgx", c.DatabaseDSN)
		if err != nil {
			_ = shutdown(ctx)
			return nil, fmt.Errorf("db init error: %w", err)
		}
		app.db = db
		app.repomanager = repomanager.NewPostgresRepositoryManager()
		conn = db
	}

	app.Directory = services.NewDirectoryService(app.db, app.repomanager, logger)
	app.Passwords = password.New(app.Directory, app.repomanager.Passwords(conn), hasher.New(c.HashIterationCount), logger)
	app.Google = google.New(app.Directory, app.repomanager.Bindings(conn), logger)
	app.Oidc = oidc.New(app.Directory, app.repomanager.Bindings(conn), logger)

	if c.LegacyMigrationEnabled() {
		client, err := newLegacyS3Client(ctx, legacy.S3Options{
			Region:       c.LegacyS3Region,
			BaseEndpoint: c.LegacyS3BaseEndpoint,
			AccessKey:    c.LegacyS3RootUser,
			SecretKey:    c.LegacyS3RootPassword,
		})
		if err != nil {
			_ = app.Close(ctx)
			return nil, fmt.Errorf("legacy store init error: %w", err)
		}
		app.Passwords.SetMigrator(legacy.New(client, c.LegacyS3Bucket, c.LegacyS3Prefix, logger))
		logger.Info(ctx, "legacy password migration enabled", "bucket", c.LegacyS3Bucket)
	}

	app.Registry = auth.NewRegistry()
	for _, p := range []auth.Provider{app.Passwords, app.Google, app.Oidc} {
		if err := app.Registry.Register(p); err != nil {
			_ = app.Close(ctx)
			return nil, err
		}
	}

	return app, nil
}

// Migrate brings the schema up to date. It is a no-op for the memory store.
func (app *App) Migrate(ctx context.Context) error {
	app.logger.Info(ctx, "running migrations")
	return app.repomanager.RunMigrations(ctx, app.db)
}

// Close flushes traces and closes the database.
func (app *App) Close(ctx context.Context) error {
	var errs []error
	if app.shutdown != nil {
		errs = append(errs, app.shutdown(ctx))
	}
	if app.db != nil {
		errs = append(errs, app.db.Close())
	}
	return errors.Join(errs...)
}
