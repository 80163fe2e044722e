package memory

import (
	"context"

	"github.com/dmitrijs2005/authfacade/internal/common"
	"github.com/dmitrijs2005/authfacade/internal/server/models"
)

type Users struct {
	s *Store
}

func (r *Users) Create(_ context.Context, userName string) (*models.User, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	for _, u := range r.s.users {
		if u.UserName == userName {
			return nil, common.ErrorConflict
		}
	}

	u := &models.User{ID: r.s.allocActorID(), UserName: userName, CreatedAt: r.s.now()}
	r.s.users[u.ID] = u
	c := *u
	return &c, nil
}

func (r *Users) GetByID(_ context.Context, id int64) (*models.User, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	u, ok := r.s.users[id]
	if !ok {
		return nil, common.ErrorNotFound
	}
	c := *u
	return &c, nil
}

func (r *Users) FindIDByName(_ context.Context, userName string) (int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	for _, u := range r.s.users {
		if u.UserName == userName {
			return u.ID, nil
		}
	}
	return 0, common.ErrorNotFound
}

func (r *Users) Exists(_ context.Context, id int64) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	_, ok := r.s.users[id]
	return ok, nil
}

func (r *Users) ActorExists(_ context.Context, id int64) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	return r.s.actorExists(id), nil
}

func (r *Users) SetName(_ context.Context, id int64, userName string) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	u, ok := r.s.users[id]
	if !ok {
		return common.ErrorNotFound
	}
	for _, other := range r.s.users {
		if other.ID != id && other.UserName == userName {
			return common.ErrorConflict
		}
	}
	u.UserName = userName
	return nil
}

func (r *Users) Delete(_ context.Context, id int64) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	if _, ok := r.s.users[id]; !ok {
		return false, nil
	}
	r.s.deleteUser(id)
	return true, nil
}
