// Package google binds Google accounts to users. Besides the account id it
// keeps the e-mail columns and the OAuth refresh token of the account.
package google

import (
	"context"
	"time"

	"github.com/dmitrijs2005/authfacade/internal/logging"
	"github.com/dmitrijs2005/authfacade/internal/server/auth"
	"github.com/dmitrijs2005/authfacade/internal/server/auth/federated"
	"github.com/dmitrijs2005/authfacade/internal/server/repositories/bindings"
)

const ProviderName = "Google"

// Payload is the Google binding. Nil pointer fields and an empty access
// token leave the stored values untouched on update.
type Payload struct {
	GoogleAccountID           string     `json:"google_account_id" validate:"required"`
	EMail                     *string    `json:"email,omitempty" validate:"omitempty,email"`
	EMailVerified             *bool      `json:"email_verified,omitempty"`
	RefreshToken              *string    `json:"refresh_token,omitempty"`
	AccessToken               string     `json:"access_token,omitempty"`
	AccessTokenExpirationTime *time.Time `json:"access_token_expiration_time,omitempty"`
}

// Provider is the Google provider.
type Provider struct {
	*federated.Provider[Payload]
}

var (
	_ auth.Provider          = (*Provider)(nil)
	_ auth.ExternalKeyFinder = (*Provider)(nil)
)

func merge(stored *Payload, in Payload) Payload {
	if stored == nil {
		return in
	}
	out := *stored
	out.GoogleAccountID = in.GoogleAccountID
	if in.EMail != nil {
		out.EMail = in.EMail
	}
	if in.EMailVerified != nil {
		out.EMailVerified = in.EMailVerified
	}
	if in.RefreshToken != nil {
		out.RefreshToken = in.RefreshToken
	}
	if in.AccessToken != "" {
		out.AccessToken = in.AccessToken
		out.AccessTokenExpirationTime = in.AccessTokenExpirationTime
	}
	return out
}

func New(dir auth.Directory, store bindings.Repository, logger logging.Logger) *Provider {
	return &Provider{federated.New(federated.Definition[Payload]{
		Provider: ProviderName,
		Key:      func(p Payload) string { return p.GoogleAccountID },
		Merge:    merge,
	}, dir, store, logger)}
}

// CreateOrUpdateGoogleUser binds the Google account of payload to userID.
func (p *Provider) CreateOrUpdateGoogleUser(ctx context.Context, actorID, userID int64, payload Payload, mode auth.Mode) (auth.Result, error) {
	return p.CreateOrUpdateBinding(ctx, actorID, userID, payload, mode)
}

// FindKnownUserInfo looks up the user bound to a Google account id.
func (p *Provider) FindKnownUserInfo(ctx context.Context, googleAccountID string) (*federated.KnownUserInfo[Payload], error) {
	return p.Provider.FindKnownUserInfo(ctx, "", googleAccountID)
}

// RefreshToken returns the stored refresh token of userID, or "" when none
// is known.
func (p *Provider) RefreshToken(ctx context.Context, userID int64) (string, error) {
	list, err := p.UserBindings(ctx, userID)
	if err != nil {
		return "", err
	}
	for _, b := range list {
		if b.Payload.RefreshToken != nil {
			return *b.Payload.RefreshToken, nil
		}
	}
	return "", nil
}
