// Package services contains server-side business logic. DirectoryService
// manages users, groups and memberships, and answers the existence and name
// lookups the authentication providers depend on.
package services

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/dmitrijs2005/authfacade/internal/common"
	"github.com/dmitrijs2005/authfacade/internal/dbx"
	"github.com/dmitrijs2005/authfacade/internal/logging"
	"github.com/dmitrijs2005/authfacade/internal/server/auth"
	"github.com/dmitrijs2005/authfacade/internal/server/models"
	"github.com/dmitrijs2005/authfacade/internal/server/repositories/repomanager"
)

// DirectoryService is the identity directory. A nil db runs every operation
// directly against the repositories, which is what the in-memory manager
// expects.
type DirectoryService struct {
	db          *sql.DB
	repomanager repomanager.RepositoryManager
	logger      logging.Logger
}

var _ auth.Directory = (*DirectoryService)(nil)

// NewDirectoryService constructs a DirectoryService.
func NewDirectoryService(db *sql.DB, m repomanager.RepositoryManager, logger logging.Logger) *DirectoryService {
	if logger == nil {
		logger = logging.Nop()
	}
	return &DirectoryService{db: db, repomanager: m, logger: logger}
}

func (s *DirectoryService) conn() dbx.DBTX {
	if s.db == nil {
		return nil
	}
	return s.db
}

func (s *DirectoryService) inTx(ctx context.Context, fn func(ctx context.Context, tx dbx.DBTX) error) error {
	if s.db == nil {
		return fn(ctx, nil)
	}
	return dbx.WithTx(ctx, s.db, nil, fn)
}

func (s *DirectoryService) checkActor(ctx context.Context, db dbx.DBTX, actorID int64) error {
	if actorID <= 0 {
		return fmt.Errorf("%w: anonymous actor", common.ErrorInvalidPrincipal)
	}
	ok, err := s.repomanager.Users(db).ActorExists(ctx, actorID)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%w: unknown actor %d", common.ErrorInvalidPrincipal, actorID)
	}
	return nil
}

// UserExists reports whether userID is a user.
func (s *DirectoryService) UserExists(ctx context.Context, userID int64) (bool, error) {
	if userID <= 0 {
		return false, nil
	}
	return s.repomanager.Users(s.conn()).Exists(ctx, userID)
}

// ActorExists reports whether actorID is a user or a group.
func (s *DirectoryService) ActorExists(ctx context.Context, actorID int64) (bool, error) {
	if actorID <= 0 {
		return false, nil
	}
	return s.repomanager.Users(s.conn()).ActorExists(ctx, actorID)
}

// ResolveIDByName returns 0 when no user has that name.
func (s *DirectoryService) ResolveIDByName(ctx context.Context, userName string) (int64, error) {
	id, err := s.repomanager.Users(s.conn()).FindIDByName(ctx, userName)
	if errors.Is(err, common.ErrorNotFound) {
		return 0, nil
	}
	return id, err
}

// GetUser returns common.ErrorNotFound for unknown ids.
func (s *DirectoryService) GetUser(ctx context.Context, userID int64) (*models.User, error) {
	return s.repomanager.Users(s.conn()).GetByID(ctx, userID)
}

func normalizeName(userName string) (string, error) {
	name := strings.TrimSpace(userName)
	if name == "" {
		return "", fmt.Errorf("%w: empty user name", common.ErrorInvalidPayload)
	}
	return name, nil
}

// CreateUser fails with common.ErrorConflict when the name is taken.
func (s *DirectoryService) CreateUser(ctx context.Context, actorID int64, userName string) (int64, error) {
	name, err := normalizeName(userName)
	if err != nil {
		return 0, err
	}

	var id int64
	err = s.inTx(ctx, func(ctx context.Context, tx dbx.DBTX) error {
		if err := s.checkActor(ctx, tx, actorID); err != nil {
			return err
		}
		u, err := s.repomanager.Users(tx).Create(ctx, name)
		if err != nil {
			return err
		}
		id = u.ID
		return nil
	})
	if err != nil {
		return 0, err
	}
	s.logger.Info(ctx, "user created", "actor_id", actorID, "user_id", id)
	return id, nil
}

// UserNameSet renames userID. It returns false when another user already
// has the name.
func (s *DirectoryService) UserNameSet(ctx context.Context, actorID, userID int64, userName string) (bool, error) {
	name, err := normalizeName(userName)
	if err != nil {
		return false, err
	}

	err = s.inTx(ctx, func(ctx context.Context, tx dbx.DBTX) error {
		if err := s.checkActor(ctx, tx, actorID); err != nil {
			return err
		}
		return s.repomanager.Users(tx).SetName(ctx, userID, name)
	})
	if errors.Is(err, common.ErrorConflict) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// DestroyUser removes the user together with its memberships, password
// credential and provider bindings. Destroying an absent user succeeds. The
// System user cannot be destroyed.
func (s *DirectoryService) DestroyUser(ctx context.Context, actorID, userID int64) error {
	if userID <= models.SystemID {
		return fmt.Errorf("%w: user %d cannot be destroyed", common.ErrorInvalidPrincipal, userID)
	}

	var removed bool
	err := s.inTx(ctx, func(ctx context.Context, tx dbx.DBTX) error {
		if err := s.checkActor(ctx, tx, actorID); err != nil {
			return err
		}
		if _, err := s.repomanager.Groups(tx).RemoveFromAllGroups(ctx, userID); err != nil {
			return err
		}
		var err error
		removed, err = s.repomanager.Users(tx).Delete(ctx, userID)
		return err
	})
	if err != nil {
		return err
	}
	if removed {
		s.logger.Info(ctx, "user destroyed", "actor_id", actorID, "user_id", userID)
	}
	return nil
}

// CreateGroup returns the new group id.
func (s *DirectoryService) CreateGroup(ctx context.Context, actorID int64) (int64, error) {
	var id int64
	err := s.inTx(ctx, func(ctx context.Context, tx dbx.DBTX) error {
		if err := s.checkActor(ctx, tx, actorID); err != nil {
			return err
		}
		var err error
		id, err = s.repomanager.Groups(tx).Create(ctx)
		return err
	})
	if err != nil {
		return 0, err
	}
	return id, nil
}

// DestroyGroup removes the group. A group that still has users is only
// removed when force is set, common.ErrorGroupNotEmpty otherwise.
func (s *DirectoryService) DestroyGroup(ctx context.Context, actorID, groupID int64, force bool) error {
	return s.inTx(ctx, func(ctx context.Context, tx dbx.DBTX) error {
		if err := s.checkActor(ctx, tx, actorID); err != nil {
			return err
		}
		repo := s.repomanager.Groups(tx)

		ok, err := repo.Exists(ctx, groupID)
		if err != nil || !ok {
			return err
		}

		n, err := repo.CountUsers(ctx, groupID)
		if err != nil {
			return err
		}
		if n > 0 {
			if !force {
				return fmt.Errorf("%w: group %d has %d users", common.ErrorGroupNotEmpty, groupID, n)
			}
			if _, err := repo.RemoveAllUsers(ctx, groupID); err != nil {
				return err
			}
		}
		_, err = repo.Delete(ctx, groupID)
		return err
	})
}

func (s *DirectoryService) checkGroup(ctx context.Context, tx dbx.DBTX, groupID int64) error {
	ok, err := s.repomanager.Groups(tx).Exists(ctx, groupID)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%w: group %d", common.ErrorNotFound, groupID)
	}
	return nil
}

// AddUser adds userID to groupID. Adding a member again succeeds.
func (s *DirectoryService) AddUser(ctx context.Context, actorID, groupID, userID int64) error {
	return s.inTx(ctx, func(ctx context.Context, tx dbx.DBTX) error {
		if err := s.checkActor(ctx, tx, actorID); err != nil {
			return err
		}
		if err := s.checkGroup(ctx, tx, groupID); err != nil {
			return err
		}
		ok, err := s.repomanager.Users(tx).Exists(ctx, userID)
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("%w: unknown user %d", common.ErrorInvalidPrincipal, userID)
		}
		_, err = s.repomanager.Groups(tx).AddUser(ctx, groupID, userID)
		return err
	})
}

// RemoveUser removes userID from groupID. Removing a non-member succeeds.
func (s *DirectoryService) RemoveUser(ctx context.Context, actorID, groupID, userID int64) error {
	return s.inTx(ctx, func(ctx context.Context, tx dbx.DBTX) error {
		if err := s.checkActor(ctx, tx, actorID); err != nil {
			return err
		}
		_, err := s.repomanager.Groups(tx).RemoveUser(ctx, groupID, userID)
		return err
	})
}

// RemoveAllUsers empties groupID and returns how many users it held.
func (s *DirectoryService) RemoveAllUsers(ctx context.Context, actorID, groupID int64) (int64, error) {
	var n int64
	err := s.inTx(ctx, func(ctx context.Context, tx dbx.DBTX) error {
		if err := s.checkActor(ctx, tx, actorID); err != nil {
			return err
		}
		var err error
		n, err = s.repomanager.Groups(tx).RemoveAllUsers(ctx, groupID)
		return err
	})
	return n, err
}

// RemoveFromAllGroups removes userID from every group it belongs to.
func (s *DirectoryService) RemoveFromAllGroups(ctx context.Context, actorID, userID int64) (int64, error) {
	var n int64
	err := s.inTx(ctx, func(ctx context.Context, tx dbx.DBTX) error {
		if err := s.checkActor(ctx, tx, actorID); err != nil {
			return err
		}
		var err error
		n, err = s.repomanager.Groups(tx).RemoveFromAllGroups(ctx, userID)
		return err
	})
	return n, err
}

// GroupUsers lists the members of groupID.
func (s *DirectoryService) GroupUsers(ctx context.Context, groupID int64) ([]int64, error) {
	if err := s.checkGroup(ctx, s.conn(), groupID); err != nil {
		return nil, err
	}
	return s.repomanager.Groups(s.conn()).ListUsers(ctx, groupID)
}
