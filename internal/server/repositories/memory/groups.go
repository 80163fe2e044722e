package memory

import (
	"context"
	"sort"

	"github.com/dmitrijs2005/authfacade/internal/common"
	"github.com/dmitrijs2005/authfacade/internal/server/models"
)

type Groups struct {
	s *Store
}

func (r *Groups) Create(_ context.Context) (int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	g := &models.Group{ID: r.s.allocActorID(), CreatedAt: r.s.now()}
	r.s.groups[g.ID] = g
	r.s.members[g.ID] = make(map[int64]struct{})
	return g.ID, nil
}

func (r *Groups) Exists(_ context.Context, id int64) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	_, ok := r.s.groups[id]
	return ok, nil
}

func (r *Groups) Delete(_ context.Context, id int64) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	if _, ok := r.s.groups[id]; !ok {
		return false, nil
	}
	delete(r.s.groups, id)
	delete(r.s.members, id)
	return true, nil
}

func (r *Groups) CountUsers(_ context.Context, groupID int64) (int, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	return len(r.s.members[groupID]), nil
}

func (r *Groups) ListUsers(_ context.Context, groupID int64) ([]int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	ids := make([]int64, 0, len(r.s.members[groupID]))
	for id := range r.s.members[groupID] {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids, nil
}

func (r *Groups) AddUser(_ context.Context, groupID, userID int64) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	m, ok := r.s.members[groupID]
	if !ok {
		return false, common.ErrorInvalidPrincipal
	}
	if _, ok := r.s.users[userID]; !ok {
		return false, common.ErrorInvalidPrincipal
	}
	if _, ok := m[userID]; ok {
		return false, nil
	}
	m[userID] = struct{}{}
	return true, nil
}

func (r *Groups) RemoveUser(_ context.Context, groupID, userID int64) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	m := r.s.members[groupID]
	if _, ok := m[userID]; !ok {
		return false, nil
	}
	delete(m, userID)
	return true, nil
}

func (r *Groups) RemoveAllUsers(_ context.Context, groupID int64) (int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	m, ok := r.s.members[groupID]
	if !ok {
		return 0, nil
	}
	n := int64(len(m))
	r.s.members[groupID] = make(map[int64]struct{})
	return n, nil
}

func (r *Groups) RemoveFromAllGroups(_ context.Context, userID int64) (int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	var n int64
	for _, m := range r.s.members {
		if _, ok := m[userID]; ok {
			delete(m, userID)
			n++
		}
	}
	return n, nil
}
