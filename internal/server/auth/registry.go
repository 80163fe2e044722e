package auth

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/dmitrijs2005/authfacade/internal/common"
	"golang.org/x/text/cases"
)

// Registry maps provider names to providers. Lookups ignore case.
type Registry struct {
	mu        sync.RWMutex
	providers map[string]Provider
}

func NewRegistry() *Registry {
	return &Registry{providers: make(map[string]Provider)}
}

func foldName(name string) string {
	// A Caser is stateful; one per call.
	return cases.Fold().String(name)
}

// Register adds p. A second provider with the same name is rejected.
func (r *Registry) Register(p Provider) error {
	key := foldName(p.Name())

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.providers[key]; ok {
		return fmt.Errorf("provider %q already registered", p.Name())
	}
	r.providers[key] = p
	return nil
}

// Provider returns the provider registered under name, or
// common.ErrorUnknownProvider.
func (r *Registry) Provider(name string) (Provider, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	p, ok := r.providers[foldName(name)]
	if !ok {
		return nil, fmt.Errorf("%w: %q", common.ErrorUnknownProvider, name)
	}
	return p, nil
}

// Names returns the registered provider names, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.providers))
	for _, p := range r.providers {
		names = append(names, p.Name())
	}
	sort.Strings(names)
	return names
}

// Destroy removes userID from every registered provider. All providers are
// attempted; their errors are joined.
func (r *Registry) Destroy(ctx context.Context, actorID, userID int64) error {
	r.mu.RLock()
	providers := make([]Provider, 0, len(r.providers))
	for _, p := range r.providers {
		providers = append(providers, p)
	}
	r.mu.RUnlock()

	var errs []error
	for _, p := range providers {
		if err := p.Destroy(ctx, actorID, userID, nil); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", p.Name(), err))
		}
	}
	return errors.Join(errs...)
}
