package memory

import (
	"bytes"
	"context"
	"sort"
	"time"

	"github.com/dmitrijs2005/authfacade/internal/common"
	"github.com/dmitrijs2005/authfacade/internal/server/models"
)

type Bindings struct {
	s *Store
}

func cloneBinding(b *models.ProviderBinding) *models.ProviderBinding {
	out := *b
	out.Payload = bytes.Clone(b.Payload)
	out.LastLoginTime = cloneTime(b.LastLoginTime)
	return &out
}

func (r *Bindings) keyTaken(provider, scheme, externalKey string, userID int64) bool {
	for k, b := range r.s.bindings {
		if k.provider == provider && k.scheme == scheme && b.ExternalKey == externalKey && k.userID != userID {
			return true
		}
	}
	return false
}

func (r *Bindings) FindByUser(_ context.Context, provider, schemeSuffix string, userID int64) (*models.ProviderBinding, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	b, ok := r.s.bindings[bindingKey{provider, schemeSuffix, userID}]
	if !ok {
		return nil, common.ErrorNotFound
	}
	return cloneBinding(b), nil
}

func (r *Bindings) FindByExternalKey(_ context.Context, provider, schemeSuffix, externalKey string) (*models.ProviderBinding, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	for k, b := range r.s.bindings {
		if k.provider == provider && k.scheme == schemeSuffix && b.ExternalKey == externalKey {
			return cloneBinding(b), nil
		}
	}
	return nil, common.ErrorNotFound
}

func (r *Bindings) ListByUser(_ context.Context, provider string, userID int64) ([]models.ProviderBinding, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	out := make([]models.ProviderBinding, 0)
	for k, b := range r.s.bindings {
		if k.provider == provider && k.userID == userID {
			out = append(out, *cloneBinding(b))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SchemeSuffix < out[j].SchemeSuffix })
	return out, nil
}

func (r *Bindings) Insert(_ context.Context, b *models.ProviderBinding) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	if _, ok := r.s.users[b.UserID]; !ok {
		return common.ErrorInvalidPrincipal
	}
	k := bindingKey{b.Provider, b.SchemeSuffix, b.UserID}
	if _, ok := r.s.bindings[k]; ok || r.keyTaken(b.Provider, b.SchemeSuffix, b.ExternalKey, b.UserID) {
		return common.ErrorConflict
	}
	r.s.bindings[k] = cloneBinding(b)
	return nil
}

func (r *Bindings) Update(_ context.Context, b *models.ProviderBinding) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	cur, ok := r.s.bindings[bindingKey{b.Provider, b.SchemeSuffix, b.UserID}]
	if !ok {
		return common.ErrorNotFound
	}
	if r.keyTaken(b.Provider, b.SchemeSuffix, b.ExternalKey, b.UserID) {
		return common.ErrorConflict
	}
	cur.ExternalKey = b.ExternalKey
	cur.Payload = bytes.Clone(b.Payload)
	cur.LastModified = b.LastModified
	return nil
}

func (r *Bindings) TouchLastLogin(_ context.Context, provider, schemeSuffix string, userID int64, at time.Time) (time.Time, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	b, ok := r.s.bindings[bindingKey{provider, schemeSuffix, userID}]
	if !ok {
		return time.Time{}, common.ErrorNotFound
	}
	next := nextLogin(b.LastLoginTime, at)
	b.LastLoginTime = &next
	return next, nil
}

func (r *Bindings) Delete(_ context.Context, provider string, userID int64, schemeSuffix *string) (int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	var n int64
	for k := range r.s.bindings {
		if k.provider != provider || k.userID != userID {
			continue
		}
		if schemeSuffix != nil && k.scheme != *schemeSuffix {
			continue
		}
		delete(r.s.bindings, k)
		n++
	}
	return n, nil
}
