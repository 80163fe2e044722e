// Package oidc binds OpenID Connect subjects to users. One provider serves
// several issuers, told apart by a scheme suffix: "Oidc" is the default
// scheme, "Oidc.<suffix>" the others.
package oidc

import (
	"context"
	"fmt"
	"strings"

	"github.com/dmitrijs2005/authfacade/internal/common"
	"github.com/dmitrijs2005/authfacade/internal/logging"
	"github.com/dmitrijs2005/authfacade/internal/server/auth"
	"github.com/dmitrijs2005/authfacade/internal/server/auth/federated"
	"github.com/dmitrijs2005/authfacade/internal/server/repositories/bindings"
	"github.com/golang-jwt/jwt/v5"
)

const ProviderName = "Oidc"

// Payload is the OIDC binding. Nil pointer fields keep the stored values on
// update.
type Payload struct {
	SchemeSuffix  string  `json:"scheme_suffix,omitempty" validate:"max=64,excludesall=."`
	Sub           string  `json:"sub" validate:"required,max=255"`
	Email         *string `json:"email,omitempty" validate:"omitempty,email"`
	EmailVerified *bool   `json:"email_verified,omitempty"`
	DisplayName   *string `json:"display_name,omitempty"`
}

// Scheme returns the full scheme name of the payload.
func (p Payload) Scheme() string {
	return SchemeName(p.SchemeSuffix)
}

// SchemeName returns "Oidc" for an empty suffix, "Oidc.<suffix>" otherwise.
func SchemeName(suffix string) string {
	if suffix == "" {
		return ProviderName
	}
	return ProviderName + "." + suffix
}

// ParseScheme is the inverse of SchemeName.
func ParseScheme(scheme string) (string, error) {
	if strings.EqualFold(scheme, ProviderName) {
		return "", nil
	}
	prefix := ProviderName + "."
	if len(scheme) > len(prefix) && strings.EqualFold(scheme[:len(prefix)], prefix) {
		return scheme[len(prefix):], nil
	}
	return "", fmt.Errorf("%w: scheme %q", common.ErrorInvalidPayload, scheme)
}

func merge(stored *Payload, in Payload) Payload {
	if stored == nil {
		return in
	}
	out := *stored
	out.SchemeSuffix, out.Sub = in.SchemeSuffix, in.Sub
	if in.Email != nil {
		out.Email = in.Email
	}
	if in.EmailVerified != nil {
		out.EmailVerified = in.EmailVerified
	}
	if in.DisplayName != nil {
		out.DisplayName = in.DisplayName
	}
	return out
}

// Provider is the OIDC provider.
type Provider struct {
	*federated.Provider[Payload]
}

var (
	_ auth.Provider          = (*Provider)(nil)
	_ auth.ExternalKeyFinder = (*Provider)(nil)
)

func New(dir auth.Directory, store bindings.Repository, logger logging.Logger) *Provider {
	return &Provider{federated.New(federated.Definition[Payload]{
		Provider:     ProviderName,
		Key:          func(p Payload) string { return p.Sub },
		SchemeSuffix: func(p Payload) string { return p.SchemeSuffix },
		Merge:        merge,
	}, dir, store, logger)}
}

func (p *Provider) CreateOrUpdateOidcUser(ctx context.Context, actorID, userID int64, payload Payload, mode auth.Mode) (auth.Result, error) {
	return p.CreateOrUpdateBinding(ctx, actorID, userID, payload, mode)
}

// DestroyOidcUser removes the user's binding for schemeSuffix, or all of
// them when schemeSuffix is nil.
func (p *Provider) DestroyOidcUser(ctx context.Context, actorID, userID int64, schemeSuffix *string) error {
	return p.Destroy(ctx, actorID, userID, schemeSuffix)
}

type idTokenClaims struct {
	jwt.RegisteredClaims
	Email         string `json:"email"`
	EmailVerified *bool  `json:"email_verified"`
	Name          string `json:"name"`
}

// InfoFromIDToken verifies raw with keyfunc and builds the payload of its
// subject for schemeSuffix. Token errors are reported as
// common.ErrorInvalidPayload.
func InfoFromIDToken(raw string, keyfunc jwt.Keyfunc, schemeSuffix string, opts ...jwt.ParserOption) (Payload, error) {
	var claims idTokenClaims
	token, err := jwt.ParseWithClaims(raw, &claims, keyfunc, opts...)
	if err != nil {
		return Payload{}, fmt.Errorf("%w: id token: %w", common.ErrorInvalidPayload, err)
	}
	if !token.Valid {
		return Payload{}, fmt.Errorf("%w: id token is not valid", common.ErrorInvalidPayload)
	}
	if claims.Subject == "" {
		return Payload{}, fmt.Errorf("%w: id token has no subject", common.ErrorInvalidPayload)
	}

	pl := Payload{
		SchemeSuffix:  schemeSuffix,
		Sub:           claims.Subject,
		EmailVerified: claims.EmailVerified,
	}
	if claims.Email != "" {
		pl.Email = &claims.Email
	}
	if claims.Name != "" {
		pl.DisplayName = &claims.Name
	}
	return pl, nil
}
