package repomanager

import (
	"context"
	"database/sql"

	"github.com/dmitrijs2005/authfacade/internal/dbx"
	"github.com/dmitrijs2005/authfacade/internal/server/repositories/bindings"
	"github.com/dmitrijs2005/authfacade/internal/server/repositories/groups"
	"github.com/dmitrijs2005/authfacade/internal/server/repositories/memory"
	"github.com/dmitrijs2005/authfacade/internal/server/repositories/passwords"
	"github.com/dmitrijs2005/authfacade/internal/server/repositories/users"
)

// InMemoryRepositoryManager serves every repository from one memory.Store.
// The DBTX argument of the factories is ignored.
type InMemoryRepositoryManager struct {
	store *memory.Store
}

func (m *InMemoryRepositoryManager) RunMigrations(context.Context, *sql.DB) error {
	return nil
}

func (m *InMemoryRepositoryManager) Users(dbx.DBTX) users.Repository {
	return m.store.Users()
}

func (m *InMemoryRepositoryManager) Groups(dbx.DBTX) groups.Repository {
	return m.store.Groups()
}

func (m *InMemoryRepositoryManager) Passwords(dbx.DBTX) passwords.Repository {
	return m.store.Passwords()
}

func (m *InMemoryRepositoryManager) Bindings(dbx.DBTX) bindings.Repository {
	return m.store.Bindings()
}

func NewInMemoryRepositoryManager() RepositoryManager {
	return &InMemoryRepositoryManager{store: memory.New()}
}
