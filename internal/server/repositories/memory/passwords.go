package memory

import (
	"bytes"
	"context"
	"time"

	"github.com/dmitrijs2005/authfacade/internal/common"
	"github.com/dmitrijs2005/authfacade/internal/server/models"
)

type Passwords struct {
	s *Store
}

func clonePassword(c *models.PasswordCredential) *models.PasswordCredential {
	out := *c
	out.Hash = bytes.Clone(c.Hash)
	out.LastLoginTime = cloneTime(c.LastLoginTime)
	return &out
}

func (r *Passwords) Get(_ context.Context, userID int64) (*models.PasswordCredential, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	c, ok := r.s.passwords[userID]
	if !ok {
		return nil, common.ErrorNotFound
	}
	return clonePassword(c), nil
}

func (r *Passwords) Insert(_ context.Context, cred *models.PasswordCredential) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	if _, ok := r.s.users[cred.UserID]; !ok {
		return false, common.ErrorInvalidPrincipal
	}
	if _, ok := r.s.passwords[cred.UserID]; ok {
		return false, nil
	}
	c := clonePassword(cred)
	c.Version = 1
	r.s.passwords[cred.UserID] = c
	return true, nil
}

func (r *Passwords) Update(_ context.Context, cred *models.PasswordCredential) (int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	c, ok := r.s.passwords[cred.UserID]
	if !ok {
		return 0, common.ErrorNotFound
	}
	r.write(c, cred)
	return c.Version, nil
}

func (r *Passwords) Put(_ context.Context, cred *models.PasswordCredential) (int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	c, ok := r.s.passwords[cred.UserID]
	if cred.Version != 0 {
		if !ok || c.Version != cred.Version {
			return 0, common.ErrVersionConflict
		}
		r.write(c, cred)
		return c.Version, nil
	}

	if !ok {
		if _, exists := r.s.users[cred.UserID]; !exists {
			return 0, common.ErrorInvalidPrincipal
		}
		c = &models.PasswordCredential{UserID: cred.UserID}
		r.s.passwords[cred.UserID] = c
	}
	r.write(c, cred)
	return c.Version, nil
}

func (r *Passwords) write(dst, src *models.PasswordCredential) {
	dst.Hash = bytes.Clone(src.Hash)
	dst.LastModified = src.LastModified
	dst.Version++
}

func (r *Passwords) TouchLastLogin(_ context.Context, userID int64, at time.Time) (time.Time, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	c, ok := r.s.passwords[userID]
	if !ok {
		return time.Time{}, common.ErrorNotFound
	}
	next := nextLogin(c.LastLoginTime, at)
	c.LastLoginTime = &next
	return next, nil
}

func (r *Passwords) Delete(_ context.Context, userID int64) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()

	if _, ok := r.s.passwords[userID]; !ok {
		return false, nil
	}
	delete(r.s.passwords, userID)
	return true, nil
}
