package bindings

import (
	"context"
	"time"

	"github.com/dmitrijs2005/authfacade/internal/server/models"
)

// Repository stores federated provider bindings. A binding is addressed by
// (provider, scheme suffix, user) and is unique on
// (provider, scheme suffix, external key).
type Repository interface {
	FindByUser(ctx context.Context, provider, schemeSuffix string, userID int64) (*models.ProviderBinding, error)
	FindByExternalKey(ctx context.Context, provider, schemeSuffix, externalKey string) (*models.ProviderBinding, error)
	ListByUser(ctx context.Context, provider string, userID int64) ([]models.ProviderBinding, error)

	// Insert fails with common.ErrorConflict when the external key is
	// already bound.
	Insert(ctx context.Context, b *models.ProviderBinding) error

	// Update replaces the external key and payload. common.ErrorNotFound
	// when the binding does not exist.
	Update(ctx context.Context, b *models.ProviderBinding) error

	TouchLastLogin(ctx context.Context, provider, schemeSuffix string, userID int64, at time.Time) (time.Time, error)

	// Delete removes the user's bindings for provider, restricted to one
	// scheme suffix when schemeSuffix is not nil. Returns the number removed.
	Delete(ctx context.Context, provider string, userID int64, schemeSuffix *string) (int64, error)
}
