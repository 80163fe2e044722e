package passwords

import (
	"context"
	"time"

	"github.com/dmitrijs2005/authfacade/internal/server/models"
)

// Repository is the credential store of the password provider: one row per
// user.
type Repository interface {
	// Get returns common.ErrorNotFound when the user has no password.
	Get(ctx context.Context, userID int64) (*models.PasswordCredential, error)

	// Insert creates the row unless one exists. Reports whether it did.
	Insert(ctx context.Context, cred *models.PasswordCredential) (bool, error)

	// Update replaces the hash of an existing row and returns the new
	// version, or common.ErrorNotFound.
	Update(ctx context.Context, cred *models.PasswordCredential) (int64, error)

	// Put writes cred.Hash and returns the new version. With Version == 0 it
	// is an upsert. Otherwise it only succeeds while the stored version still
	// equals cred.Version and returns common.ErrVersionConflict when it does not.
	Put(ctx context.Context, cred *models.PasswordCredential) (int64, error)

	// TouchLastLogin moves last_login_time forward to at, or by one
	// microsecond when at does not exceed the stored value. The version is
	// left alone. Returns the stored timestamp.
	TouchLastLogin(ctx context.Context, userID int64, at time.Time) (time.Time, error)

	// Delete removes the row. Reports whether one existed.
	Delete(ctx context.Context, userID int64) (bool, error)
}
