// Package memory implements every repository over process memory. Deleting
// a user cascades to its credential, bindings and memberships the same way
// the foreign keys of the PostgreSQL schema do.
package memory

import (
	"sync"
	"time"

	"github.com/dmitrijs2005/authfacade/internal/server/models"
	"github.com/dmitrijs2005/authfacade/internal/server/repositories/bindings"
	"github.com/dmitrijs2005/authfacade/internal/server/repositories/groups"
	"github.com/dmitrijs2005/authfacade/internal/server/repositories/passwords"
	"github.com/dmitrijs2005/authfacade/internal/server/repositories/users"
)

var (
	_ users.Repository     = (*Users)(nil)
	_ groups.Repository    = (*Groups)(nil)
	_ passwords.Repository = (*Passwords)(nil)
	_ bindings.Repository  = (*Bindings)(nil)
)

type bindingKey struct {
	provider string
	scheme   string
	userID   int64
}

// Store holds all tables behind one mutex.
type Store struct {
	mu sync.Mutex

	nextActorID int64
	users       map[int64]*models.User
	groups      map[int64]*models.Group
	members     map[int64]map[int64]struct{}
	passwords   map[int64]*models.PasswordCredential
	bindings    map[bindingKey]*models.ProviderBinding

	now func() time.Time
}

// New returns an empty store seeded with the System user.
func New() *Store {
	s := &Store{
		nextActorID: models.SystemID + 1,
		users:       make(map[int64]*models.User),
		groups:      make(map[int64]*models.Group),
		members:     make(map[int64]map[int64]struct{}),
		passwords:   make(map[int64]*models.PasswordCredential),
		bindings:    make(map[bindingKey]*models.ProviderBinding),
		now:         time.Now,
	}
	s.users[models.SystemID] = &models.User{ID: models.SystemID, UserName: "System", CreatedAt: s.now()}
	return s
}

func (s *Store) Users() *Users         { return &Users{s: s} }
func (s *Store) Groups() *Groups       { return &Groups{s: s} }
func (s *Store) Passwords() *Passwords { return &Passwords{s: s} }
func (s *Store) Bindings() *Bindings   { return &Bindings{s: s} }

func (s *Store) allocActorID() int64 {
	id := s.nextActorID
	s.nextActorID++
	return id
}

func (s *Store) actorExists(id int64) bool {
	if _, ok := s.users[id]; ok {
		return true
	}
	_, ok := s.groups[id]
	return ok
}

func (s *Store) deleteUser(id int64) {
	delete(s.users, id)
	delete(s.passwords, id)
	for _, m := range s.members {
		delete(m, id)
	}
	for k := range s.bindings {
		if k.userID == id {
			delete(s.bindings, k)
		}
	}
}

// nextLogin applies the strictly increasing last-login rule shared by the
// credential and binding tables.
func nextLogin(stored *time.Time, at time.Time) time.Time {
	at = at.Truncate(time.Microsecond)
	if stored == nil || stored.Before(at) {
		return at
	}
	return stored.Add(time.Microsecond)
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	c := *t
	return &c
}
