package groups

import "context"

// Repository persists groups and their user membership. Membership changes
// are idempotent and report whether a row was affected.
type Repository interface {
	Create(ctx context.Context) (int64, error)
	Exists(ctx context.Context, id int64) (bool, error)
	Delete(ctx context.Context, id int64) (bool, error)
	CountUsers(ctx context.Context, groupID int64) (int, error)
	ListUsers(ctx context.Context, groupID int64) ([]int64, error)
	AddUser(ctx context.Context, groupID, userID int64) (bool, error)
	RemoveUser(ctx context.Context, groupID, userID int64) (bool, error)
	RemoveAllUsers(ctx context.Context, groupID int64) (int64, error)
	RemoveFromAllGroups(ctx context.Context, userID int64) (int64, error)
}
