package users

import (
	"context"

	"github.com/dmitrijs2005/authfacade/internal/server/models"
)

// Repository persists users and answers actor-level existence checks.
//
// Lookups return common.ErrorNotFound when the row is absent. Duplicate user
// names surface as common.ErrorConflict.
type Repository interface {
	Create(ctx context.Context, userName string) (*models.User, error)
	GetByID(ctx context.Context, id int64) (*models.User, error)
	FindIDByName(ctx context.Context, userName string) (int64, error)
	Exists(ctx context.Context, id int64) (bool, error)
	ActorExists(ctx context.Context, id int64) (bool, error)
	SetName(ctx context.Context, id int64, userName string) error
	// Delete removes the user's actor row. Credentials, bindings and group
	// memberships go with it. Reports whether a row was removed.
	Delete(ctx context.Context, id int64) (bool, error)
}
