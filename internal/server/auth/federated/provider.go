// Package federated implements the binding engine shared by the providers
// that map an external identity (scheme suffix + external key) onto a user.
// Concrete providers only declare their payload type and how it merges.
package federated

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/dmitrijs2005/authfacade/internal/common"
	"github.com/dmitrijs2005/authfacade/internal/logging"
	"github.com/dmitrijs2005/authfacade/internal/server/auth"
	"github.com/dmitrijs2005/authfacade/internal/server/models"
	"github.com/dmitrijs2005/authfacade/internal/server/repositories/bindings"
	"github.com/go-playground/validator/v10"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// Definition describes a federated provider.
type Definition[T any] struct {
	// Provider is the registry name and the provider column of bindings.
	Provider string

	// Key returns the external key identifying the user at the provider.
	Key func(T) string

	// SchemeSuffix returns the sub-scheme of the payload. Nil means the
	// provider has a single scheme.
	SchemeSuffix func(T) string

	// Merge applies incoming onto stored, which is nil for a new binding.
	// Fields incoming leaves unset should keep their stored value.
	Merge func(stored *T, incoming T) T
}

// KnownUserInfo is a binding as seen through its provider's payload type.
type KnownUserInfo[T any] struct {
	UserID        int64
	SchemeSuffix  string
	Payload       T
	LastLoginTime *time.Time
	LastModified  time.Time
}

// Provider is safe for concurrent use.
type Provider[T any] struct {
	def    Definition[T]
	dir    auth.Directory
	store  bindings.Repository
	logger logging.Logger
	tracer trace.Tracer
	now    func() time.Time
}

func New[T any](def Definition[T], dir auth.Directory, store bindings.Repository, logger logging.Logger) *Provider[T] {
	if logger == nil {
		logger = logging.Nop()
	}
	if def.Merge == nil {
		def.Merge = func(_ *T, in T) T { return in }
	}
	return &Provider[T]{
		def:    def,
		dir:    dir,
		store:  store,
		logger: logger.With("provider", def.Provider),
		tracer: otel.Tracer("github.com/dmitrijs2005/authfacade/internal/server/auth/federated"),
		now:    time.Now,
	}
}

func (p *Provider[T]) Name() string { return p.def.Provider }

func (p *Provider[T]) schemeOf(pl T) string {
	if p.def.SchemeSuffix == nil {
		return ""
	}
	return p.def.SchemeSuffix(pl)
}

// Decode accepts T or a non-nil *T.
func (p *Provider[T]) Decode(payload any) (T, error) {
	var zero T
	switch v := payload.(type) {
	case T:
		return v, nil
	case *T:
		if v != nil {
			return *v, nil
		}
	}
	return zero, fmt.Errorf("%w: %T is not a %s payload", common.ErrorInvalidPayload, payload, p.def.Provider)
}

func (p *Provider[T]) check(pl T) (scheme, key string, err error) {
	if err := validate.Struct(pl); err != nil {
		return "", "", fmt.Errorf("%w: %v", common.ErrorInvalidPayload, err)
	}
	key = p.def.Key(pl)
	if key == "" {
		return "", "", fmt.Errorf("%w: empty external key", common.ErrorInvalidPayload)
	}
	return p.schemeOf(pl), key, nil
}

// CreateOrUpdate binds the identity carried by payload to userID.
func (p *Provider[T]) CreateOrUpdate(ctx context.Context, actorID, userID int64, payload any, mode auth.Mode) (auth.Result, error) {
	pl, err := p.Decode(payload)
	if err != nil {
		return auth.Unchanged, err
	}
	return p.CreateOrUpdateBinding(ctx, actorID, userID, pl, mode)
}

// CreateOrUpdateBinding fails with common.ErrorConflict when the external
// key is bound to another user and with common.ErrorNotFound for UpdateOnly
// without a binding. A merge that changes nothing reports auth.Unchanged.
func (p *Provider[T]) CreateOrUpdateBinding(ctx context.Context, actorID, userID int64, pl T, mode auth.Mode) (res auth.Result, err error) {
	ctx, span := p.tracer.Start(ctx, p.def.Provider+".CreateOrUpdate", trace.WithAttributes(
		attribute.Int64("user_id", userID),
		attribute.String("mode", mode.String()),
	))
	defer func() { endSpan(span, err) }()

	if err := mode.Validate(); err != nil {
		return auth.Unchanged, err
	}
	scheme, key, err := p.check(pl)
	if err != nil {
		return auth.Unchanged, err
	}
	if err := auth.CheckPrincipals(ctx, p.dir, actorID, userID); err != nil {
		return auth.Unchanged, err
	}
	return p.write(ctx, userID, scheme, key, pl, mode)
}

func (p *Provider[T]) write(ctx context.Context, userID int64, scheme, key string, pl T, mode auth.Mode) (auth.Result, error) {
	owner, err := p.store.FindByExternalKey(ctx, p.def.Provider, scheme, key)
	switch {
	case errors.Is(err, common.ErrorNotFound):
	case err != nil:
		return auth.Unchanged, err
	case owner.UserID != userID:
		return auth.Unchanged, fmt.Errorf("%w: %s identity already bound to user %d", common.ErrorConflict, p.def.Provider, owner.UserID)
	}

	cur, err := p.store.FindByUser(ctx, p.def.Provider, scheme, userID)
	if err != nil && !errors.Is(err, common.ErrorNotFound) {
		return auth.Unchanged, err
	}

	var res auth.Result
	if cur == nil {
		if !mode.CanCreate() {
			return auth.Unchanged, fmt.Errorf("%w: no %s binding for user %d", common.ErrorNotFound, p.def.Provider, userID)
		}
		doc, err := json.Marshal(p.def.Merge(nil, pl))
		if err != nil {
			return auth.Unchanged, err
		}
		if err := ctx.Err(); err != nil {
			return auth.Unchanged, err
		}
		err = p.store.Insert(ctx, &models.ProviderBinding{
			Provider:     p.def.Provider,
			SchemeSuffix: scheme,
			UserID:       userID,
			ExternalKey:  key,
			Payload:      doc,
			LastModified: p.timestamp(),
		})
		if err != nil {
			return auth.Unchanged, err
		}
		res = auth.Created
	} else {
		if !mode.CanUpdate() {
			return auth.Unchanged, nil
		}
		stored, err := p.unmarshal(cur.Payload)
		if err != nil {
			return auth.Unchanged, err
		}
		before, err := json.Marshal(stored)
		if err != nil {
			return auth.Unchanged, err
		}
		after, err := json.Marshal(p.def.Merge(&stored, pl))
		if err != nil {
			return auth.Unchanged, err
		}

		if cur.ExternalKey != key || !bytes.Equal(before, after) {
			if err := ctx.Err(); err != nil {
				return auth.Unchanged, err
			}
			err = p.store.Update(ctx, &models.ProviderBinding{
				Provider:     p.def.Provider,
				SchemeSuffix: scheme,
				UserID:       userID,
				ExternalKey:  key,
				Payload:      after,
				LastModified: p.timestamp(),
			})
			if err != nil {
				return auth.Unchanged, err
			}
			res = auth.Updated
		}
	}

	if mode.HasLogin() {
		p.touchLastLogin(ctx, scheme, userID)
	}
	return res, nil
}

// Login finds the user bound to the payload's identity, refreshes the
// stored payload and returns the user id. An unknown identity yields 0.
func (p *Provider[T]) Login(ctx context.Context, payload any, actualLogin bool) (id int64, err error) {
	pl, err := p.Decode(payload)
	if err != nil {
		return 0, err
	}

	ctx, span := p.tracer.Start(ctx, p.def.Provider+".Login", trace.WithAttributes(
		attribute.Bool("actual_login", actualLogin),
	))
	defer func() {
		span.SetAttributes(attribute.Bool("matched", id != 0))
		endSpan(span, err)
	}()

	scheme, key, err := p.check(pl)
	if err != nil {
		return 0, err
	}

	b, err := p.store.FindByExternalKey(ctx, p.def.Provider, scheme, key)
	if errors.Is(err, common.ErrorNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}

	mode := auth.UpdateOnly
	if actualLogin {
		mode |= auth.WithLogin
	}
	_, err = p.write(ctx, b.UserID, scheme, key, pl, mode)
	switch {
	case errors.Is(err, common.ErrorNotFound), errors.Is(err, common.ErrorConflict):
		// The binding moved or vanished since it was read.
		return 0, nil
	case err != nil:
		return 0, err
	}
	return b.UserID, nil
}

// Destroy removes the user's bindings, only those of subScheme when it is
// not nil. Removing nothing succeeds.
func (p *Provider[T]) Destroy(ctx context.Context, actorID, userID int64, subScheme *string) error {
	if userID <= 0 {
		return fmt.Errorf("%w: user %d", common.ErrorInvalidPrincipal, userID)
	}
	if err := auth.CheckActor(ctx, p.dir, actorID); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	n, err := p.store.Delete(ctx, p.def.Provider, userID, subScheme)
	if err != nil {
		return err
	}
	if n > 0 {
		p.logger.Debug(ctx, "bindings removed", "user_id", userID, "count", n)
	}
	return nil
}

// SchemeName returns the full scheme name of a sub-scheme: the provider
// name alone for "", "<provider>.<suffix>" otherwise.
func (p *Provider[T]) SchemeName(suffix string) string {
	if suffix == "" {
		return p.def.Provider
	}
	return p.def.Provider + "." + suffix
}

// ParseScheme is the inverse of SchemeName. Matching is case-insensitive.
// Providers without sub-schemes only accept their bare name.
func (p *Provider[T]) ParseScheme(scheme string) (string, error) {
	if strings.EqualFold(scheme, p.def.Provider) {
		return "", nil
	}
	prefix := p.def.Provider + "."
	if p.def.SchemeSuffix != nil && len(scheme) > len(prefix) && strings.EqualFold(scheme[:len(prefix)], prefix) {
		return scheme[len(prefix):], nil
	}
	return "", fmt.Errorf("%w: scheme %q is not a %s scheme", common.ErrorInvalidPayload, scheme, p.def.Provider)
}

// FindByExternalKey looks a binding up by full scheme name. It returns 0 and
// a nil payload when nothing is bound.
func (p *Provider[T]) FindByExternalKey(ctx context.Context, scheme, externalKey string) (int64, any, error) {
	suffix, err := p.ParseScheme(scheme)
	if err != nil {
		return 0, nil, err
	}
	info, err := p.FindKnownUserInfo(ctx, suffix, externalKey)
	if errors.Is(err, common.ErrorNotFound) {
		return 0, nil, nil
	}
	if err != nil {
		return 0, nil, err
	}
	return info.UserID, info.Payload, nil
}

// FindKnownUserInfo returns common.ErrorNotFound when nothing is bound.
func (p *Provider[T]) FindKnownUserInfo(ctx context.Context, schemeSuffix, externalKey string) (*KnownUserInfo[T], error) {
	b, err := p.store.FindByExternalKey(ctx, p.def.Provider, schemeSuffix, externalKey)
	if err != nil {
		return nil, err
	}
	return p.known(b)
}

// UserBindings lists the user's bindings ordered by scheme suffix.
func (p *Provider[T]) UserBindings(ctx context.Context, userID int64) ([]KnownUserInfo[T], error) {
	list, err := p.store.ListByUser(ctx, p.def.Provider, userID)
	if err != nil {
		return nil, err
	}
	out := make([]KnownUserInfo[T], 0, len(list))
	for i := range list {
		info, err := p.known(&list[i])
		if err != nil {
			return nil, err
		}
		out = append(out, *info)
	}
	return out, nil
}

func (p *Provider[T]) known(b *models.ProviderBinding) (*KnownUserInfo[T], error) {
	pl, err := p.unmarshal(b.Payload)
	if err != nil {
		return nil, err
	}
	return &KnownUserInfo[T]{
		UserID:        b.UserID,
		SchemeSuffix:  b.SchemeSuffix,
		Payload:       pl,
		LastLoginTime: b.LastLoginTime,
		LastModified:  b.LastModified,
	}, nil
}

func (p *Provider[T]) unmarshal(doc []byte) (T, error) {
	var pl T
	if len(doc) == 0 {
		return pl, nil
	}
	if err := json.Unmarshal(doc, &pl); err != nil {
		return pl, fmt.Errorf("decode %s payload: %w", p.def.Provider, err)
	}
	return pl, nil
}

func (p *Provider[T]) touchLastLogin(ctx context.Context, scheme string, userID int64) {
	if _, err := p.store.TouchLastLogin(ctx, p.def.Provider, scheme, userID, p.timestamp()); err != nil {
		p.logger.Warn(ctx, "last login update failed", "user_id", userID, "scheme", scheme, "error", err)
	}
}

func (p *Provider[T]) timestamp() time.Time {
	return p.now().UTC().Truncate(time.Microsecond)
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}
