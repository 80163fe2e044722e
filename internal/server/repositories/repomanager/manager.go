package repomanager

import (
	"context"
	"database/sql"

	"github.com/dmitrijs2005/authfacade/internal/dbx"
	"github.com/dmitrijs2005/authfacade/internal/server/repositories/bindings"
	"github.com/dmitrijs2005/authfacade/internal/server/repositories/groups"
	"github.com/dmitrijs2005/authfacade/internal/server/repositories/passwords"
	"github.com/dmitrijs2005/authfacade/internal/server/repositories/users"
)

// RepositoryManager vends repositories bound to a DBTX, so the same code can
// run against the pool or inside a transaction.
type RepositoryManager interface {
	RunMigrations(context.Context, *sql.DB) error
	Users(db dbx.DBTX) users.Repository
	Groups(db dbx.DBTX) groups.Repository
	Passwords(db dbx.DBTX) passwords.Repository
	Bindings(db dbx.DBTX) bindings.Repository
}
