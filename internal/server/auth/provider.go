// Package auth defines the provider-agnostic authentication contract: the
// Provider interface every concrete provider implements, the create/update
// modes, the Registry dispatching providers by name, and the mapping of the
// error taxonomy onto gRPC status codes.
package auth

import (
	"context"
	"fmt"
	"strings"

	"github.com/dmitrijs2005/authfacade/internal/common"
)

// Mode selects what CreateOrUpdate may do. CreateOnly and UpdateOnly may be
// combined (CreateOrUpdate); WithLogin is orthogonal and stamps the last
// login time on success.
type Mode uint8

const (
	CreateOnly     Mode = 1 << iota
	UpdateOnly
	WithLogin
	CreateOrUpdate = CreateOnly | UpdateOnly
)

func (m Mode) CanCreate() bool { return m&CreateOnly != 0 }
func (m Mode) CanUpdate() bool { return m&UpdateOnly != 0 }
func (m Mode) HasLogin() bool  { return m&WithLogin != 0 }

// Validate rejects modes that allow neither creation nor update.
func (m Mode) Validate() error {
	if !m.CanCreate() && !m.CanUpdate() {
		return fmt.Errorf("%w: mode %s", common.ErrorInvalidPayload, m)
	}
	if m&^(CreateOrUpdate|WithLogin) != 0 {
		return fmt.Errorf("%w: mode %d", common.ErrorInvalidPayload, uint8(m))
	}
	return nil
}

func (m Mode) String() string {
	parts := make([]string, 0, 3)
	switch {
	case m.CanCreate() && m.CanUpdate():
		parts = append(parts, "CreateOrUpdate")
	case m.CanCreate():
		parts = append(parts, "CreateOnly")
	case m.CanUpdate():
		parts = append(parts, "UpdateOnly")
	}
	if m.HasLogin() {
		parts = append(parts, "WithLogin")
	}
	if len(parts) == 0 {
		return "None"
	}
	return strings.Join(parts, "|")
}

// Result reports what CreateOrUpdate did.
type Result uint8

const (
	Unchanged Result = iota
	Created
	Updated
)

func (r Result) String() string {
	switch r {
	case Created:
		return "Created"
	case Updated:
		return "Updated"
	default:
		return "Unchanged"
	}
}

// Provider is the contract shared by every authentication provider.
//
// Login returns the authenticated user id, or 0 with a nil error when the
// payload does not match. Callers cannot tell an unknown user from a wrong
// secret.
//
// Destroy is idempotent. A nil subScheme removes every binding the provider
// holds for the user.
type Provider interface {
	Name() string
	CreateOrUpdate(ctx context.Context, actorID, userID int64, payload any, mode Mode) (Result, error)
	Login(ctx context.Context, payload any, actualLogin bool) (int64, error)
	Destroy(ctx context.Context, actorID, userID int64, subScheme *string) error
}

// ExternalKeyFinder is implemented by providers that bind external
// identities. scheme is the full scheme name, the provider name optionally
// followed by "." and a sub-scheme ("Oidc", "Oidc.corp"). userID is 0 and
// payload nil when nothing is bound.
type ExternalKeyFinder interface {
	FindByExternalKey(ctx context.Context, scheme, externalKey string) (userID int64, payload any, err error)
}

// Directory is the part of the identity directory that providers consume.
type Directory interface {
	UserExists(ctx context.Context, userID int64) (bool, error)
	ActorExists(ctx context.Context, actorID int64) (bool, error)
	// ResolveIDByName returns 0 when no user has that name.
	ResolveIDByName(ctx context.Context, userName string) (int64, error)
}

// CheckActor fails with common.ErrorInvalidPrincipal when actorID is
// anonymous or unknown.
func CheckActor(ctx context.Context, dir Directory, actorID int64) error {
	if actorID <= 0 {
		return fmt.Errorf("%w: anonymous actor", common.ErrorInvalidPrincipal)
	}
	ok, err := dir.ActorExists(ctx, actorID)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%w: unknown actor %d", common.ErrorInvalidPrincipal, actorID)
	}
	return nil
}

// CheckPrincipals enforces the rule shared by all mutating provider calls:
// neither the actor nor the target user may be anonymous and both must exist.
func CheckPrincipals(ctx context.Context, dir Directory, actorID, userID int64) error {
	if actorID <= 0 || userID <= 0 {
		return fmt.Errorf("%w: actor %d, user %d", common.ErrorInvalidPrincipal, actorID, userID)
	}
	if err := CheckActor(ctx, dir, actorID); err != nil {
		return err
	}

	ok, err := dir.UserExists(ctx, userID)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%w: unknown user %d", common.ErrorInvalidPrincipal, userID)
	}
	return nil
}
