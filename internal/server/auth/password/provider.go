// Package password implements the "Basic" authentication provider: password
// credentials hashed by the hasher package, lazily rehashed when the target
// iteration count changes, and migrated on first login from an optional
// legacy verifier.
package password

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/dmitrijs2005/authfacade/internal/common"
	"github.com/dmitrijs2005/authfacade/internal/logging"
	"github.com/dmitrijs2005/authfacade/internal/server/auth"
	"github.com/dmitrijs2005/authfacade/internal/server/auth/hasher"
	"github.com/dmitrijs2005/authfacade/internal/server/models"
	"github.com/dmitrijs2005/authfacade/internal/server/repositories/passwords"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// ProviderName is the registry name of the password provider.
const ProviderName = "Basic"

// Migrator verifies passwords of users that have no credential yet against a
// legacy source. OnMigrated is called once, after the new credential has been
// stored.
type Migrator interface {
	VerifyLegacy(ctx context.Context, userID int64, password string) (bool, error)
	OnMigrated(ctx context.Context, userID int64) error
}

// Payload is the password provider's payload for the generic contract.
// Login resolves the user by UserID when it is not zero, else by UserName.
type Payload struct {
	UserID   int64
	UserName string
	Password string
}

type migratorRef struct {
	m Migrator
}

// Provider is safe for concurrent use.
type Provider struct {
	dir      auth.Directory
	store    passwords.Repository
	hasher   *hasher.Hasher
	migrator atomic.Pointer[migratorRef]
	logger   logging.Logger
	tracer   trace.Tracer
	now      func() time.Time
}

var _ auth.Provider = (*Provider)(nil)

func New(dir auth.Directory, store passwords.Repository, h *hasher.Hasher, logger logging.Logger) *Provider {
	if logger == nil {
		logger = logging.Nop()
	}
	return &Provider{
		dir:    dir,
		store:  store,
		hasher: h,
		logger: logger.With("provider", ProviderName),
		tracer: otel.Tracer("github.com/dmitrijs2005/authfacade/internal/server/auth/password"),
		now:    time.Now,
	}
}

func (p *Provider) Name() string { return ProviderName }

// Hasher exposes the hasher so the target iteration count can be changed.
func (p *Provider) Hasher() *hasher.Hasher { return p.hasher }

// SetMigrator installs m. A nil m removes the current migrator.
func (p *Provider) SetMigrator(m Migrator) {
	if m == nil {
		p.migrator.Store(nil)
		return
	}
	p.migrator.Store(&migratorRef{m: m})
}

// Migrator returns the installed migrator or nil.
func (p *Provider) Migrator() Migrator {
	if ref := p.migrator.Load(); ref != nil {
		return ref.m
	}
	return nil
}

func (p *Provider) timestamp() time.Time {
	return p.now().UTC().Truncate(time.Microsecond)
}

func decodePayload(payload any) (Payload, error) {
	switch v := payload.(type) {
	case Payload:
		return v, nil
	case *Payload:
		if v != nil {
			return *v, nil
		}
	}
	return Payload{}, fmt.Errorf("%w: %T is not a password payload", common.ErrorInvalidPayload, payload)
}

// CreateOrUpdate sets the password carried by payload for userID.
func (p *Provider) CreateOrUpdate(ctx context.Context, actorID, userID int64, payload any, mode auth.Mode) (auth.Result, error) {
	pl, err := decodePayload(payload)
	if err != nil {
		return auth.Unchanged, err
	}
	return p.CreateOrUpdatePasswordUser(ctx, actorID, userID, pl.Password, mode)
}

// CreateOrUpdatePasswordUser stores a fresh digest of password. UpdateOnly
// against a user without a credential fails with common.ErrorNotFound.
// CreateOnly against an existing credential leaves it untouched.
func (p *Provider) CreateOrUpdatePasswordUser(ctx context.Context, actorID, userID int64, password string, mode auth.Mode) (res auth.Result, err error) {
	ctx, span := p.tracer.Start(ctx, "password.CreateOrUpdate", trace.WithAttributes(
		attribute.Int64("user_id", userID),
		attribute.String("mode", mode.String()),
	))
	defer func() { endSpan(span, err) }()

	if err := mode.Validate(); err != nil {
		return auth.Unchanged, err
	}
	if password == "" {
		return auth.Unchanged, fmt.Errorf("%w: empty password", common.ErrorInvalidPayload)
	}
	if err := auth.CheckPrincipals(ctx, p.dir, actorID, userID); err != nil {
		return auth.Unchanged, err
	}

	digest, err := p.hasher.Hash(password)
	if err != nil {
		return auth.Unchanged, err
	}
	if err := ctx.Err(); err != nil {
		return auth.Unchanged, err
	}

	cred := &models.PasswordCredential{UserID: userID, Hash: digest, LastModified: p.timestamp()}

	switch {
	case mode.CanCreate() && mode.CanUpdate():
		version, err := p.store.Put(ctx, cred)
		if err != nil {
			return auth.Unchanged, err
		}
		res = auth.Updated
		if version == 1 {
			res = auth.Created
		}
	case mode.CanCreate():
		created, err := p.store.Insert(ctx, cred)
		if err != nil {
			return auth.Unchanged, err
		}
		if !created {
			return auth.Unchanged, nil
		}
		res = auth.Created
	default:
		if _, err := p.store.Update(ctx, cred); err != nil {
			return auth.Unchanged, err
		}
		res = auth.Updated
	}

	if mode.HasLogin() {
		p.touchLastLogin(ctx, userID)
	}
	return res, nil
}

// CreatePasswordUser creates the credential. An existing one is kept.
func (p *Provider) CreatePasswordUser(ctx context.Context, actorID, userID int64, password string) (auth.Result, error) {
	return p.CreateOrUpdatePasswordUser(ctx, actorID, userID, password, auth.CreateOnly)
}

// SetPassword creates or replaces the credential.
func (p *Provider) SetPassword(ctx context.Context, actorID, userID int64, password string) (auth.Result, error) {
	return p.CreateOrUpdatePasswordUser(ctx, actorID, userID, password, auth.CreateOrUpdate)
}

// Login verifies a Payload. See VerifyByID.
func (p *Provider) Login(ctx context.Context, payload any, actualLogin bool) (int64, error) {
	pl, err := decodePayload(payload)
	if err != nil {
		return 0, err
	}
	if pl.UserID != 0 {
		return p.VerifyByID(ctx, pl.UserID, pl.Password, actualLogin)
	}
	return p.VerifyByName(ctx, pl.UserName, pl.Password, actualLogin)
}

// VerifyByName resolves userName and verifies like VerifyByID. An unknown
// name yields 0.
func (p *Provider) VerifyByName(ctx context.Context, userName, password string, actualLogin bool) (int64, error) {
	if userName == "" {
		return 0, nil
	}
	userID, err := p.dir.ResolveIDByName(ctx, userName)
	if err != nil {
		return 0, err
	}
	if userID == 0 {
		return 0, nil
	}
	return p.VerifyByID(ctx, userID, password, actualLogin)
}

// VerifyByID returns userID when password matches, 0 otherwise.
//
// A user without a credential is offered to the migrator, if any. On success
// the last login time is advanced when actualLogin is set, and the digest is
// rewritten at the current target iteration count when it differs. Both
// writes are best-effort.
func (p *Provider) VerifyByID(ctx context.Context, userID int64, password string, actualLogin bool) (id int64, err error) {
	ctx, span := p.tracer.Start(ctx, "password.Verify", trace.WithAttributes(
		attribute.Int64("user_id", userID),
		attribute.Bool("actual_login", actualLogin),
	))
	defer func() {
		span.SetAttributes(attribute.Bool("matched", id != 0))
		endSpan(span, err)
	}()

	if userID <= 0 {
		return 0, nil
	}
	return p.verify(ctx, userID, password, actualLogin, true)
}

func (p *Provider) verify(ctx context.Context, userID int64, password string, actualLogin, allowMigration bool) (int64, error) {
	cred, err := p.store.Get(ctx, userID)
	if errors.Is(err, common.ErrorNotFound) {
		if !allowMigration {
			return 0, nil
		}
		return p.migrate(ctx, userID, password, actualLogin)
	}
	if err != nil {
		return 0, err
	}

	if !hasher.Verify(password, cred.Hash) {
		return 0, nil
	}
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	if actualLogin {
		p.touchLastLogin(ctx, userID)
	}
	p.rehash(ctx, cred, password)
	return userID, nil
}

func (p *Provider) migrate(ctx context.Context, userID int64, password string, actualLogin bool) (int64, error) {
	m := p.Migrator()
	if m == nil {
		return 0, nil
	}

	exists, err := p.dir.UserExists(ctx, userID)
	if err != nil {
		return 0, err
	}
	if !exists {
		return 0, nil
	}

	ok, err := m.VerifyLegacy(ctx, userID, password)
	if err != nil {
		return 0, fmt.Errorf("legacy verification: %w", err)
	}
	if !ok {
		return 0, nil
	}

	digest, err := p.hasher.Hash(password)
	if err != nil {
		return 0, err
	}
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	created, err := p.store.Insert(ctx, &models.PasswordCredential{
		UserID:       userID,
		Hash:         digest,
		LastModified: p.timestamp(),
	})
	if err != nil {
		return 0, err
	}
	if !created {
		// A concurrent login migrated first; its row decides.
		return p.verify(ctx, userID, password, actualLogin, false)
	}

	if err := m.OnMigrated(ctx, userID); err != nil {
		p.logger.Warn(ctx, "migration callback failed", "user_id", userID, "error", err)
	}
	p.logger.Info(ctx, "password migrated from legacy store", "user_id", userID)

	if actualLogin {
		p.touchLastLogin(ctx, userID)
	}
	return userID, nil
}

func (p *Provider) touchLastLogin(ctx context.Context, userID int64) {
	if _, err := p.store.TouchLastLogin(ctx, userID, p.timestamp()); err != nil {
		p.logger.Warn(ctx, "last login update failed", "user_id", userID, "error", err)
	}
}

// rehash rewrites the digest at the target iteration count unless the row
// changed since it was read.
func (p *Provider) rehash(ctx context.Context, cred *models.PasswordCredential, password string) {
	if !p.hasher.NeedsRehash(cred.Hash) {
		return
	}

	digest, err := p.hasher.Hash(password)
	if err != nil {
		p.logger.Warn(ctx, "rehash failed", "user_id", cred.UserID, "error", err)
		return
	}

	_, err = p.store.Put(ctx, &models.PasswordCredential{
		UserID:       cred.UserID,
		Hash:         digest,
		Version:      cred.Version,
		LastModified: p.timestamp(),
	})
	switch {
	case errors.Is(err, common.ErrVersionConflict):
		p.logger.Debug(ctx, "rehash skipped, credential changed concurrently", "user_id", cred.UserID)
	case err != nil:
		p.logger.Warn(ctx, "rehash failed", "user_id", cred.UserID, "error", err)
	}
}

// Destroy removes the user's credential. The sub-scheme is ignored: the
// password provider has none.
func (p *Provider) Destroy(ctx context.Context, actorID, userID int64, _ *string) error {
	return p.DestroyPasswordUser(ctx, actorID, userID)
}

// DestroyPasswordUser disables password authentication for userID. Removing
// an absent credential succeeds; an unknown actor does not.
func (p *Provider) DestroyPasswordUser(ctx context.Context, actorID, userID int64) error {
	if userID <= 0 {
		return fmt.Errorf("%w: user %d", common.ErrorInvalidPrincipal, userID)
	}
	if err := auth.CheckActor(ctx, p.dir, actorID); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	_, err := p.store.Delete(ctx, userID)
	return err
}

// CredentialInfo describes a stored credential without exposing the digest.
type CredentialInfo struct {
	UserID        int64
	Iterations    int
	Version       int64
	NeedsRehash   bool
	LastLoginTime *time.Time
	LastModified  time.Time
}

// Info returns common.ErrorNotFound when the user has no password.
func (p *Provider) Info(ctx context.Context, userID int64) (*CredentialInfo, error) {
	cred, err := p.store.Get(ctx, userID)
	if err != nil {
		return nil, err
	}

	info := &CredentialInfo{
		UserID:        cred.UserID,
		Version:       cred.Version,
		NeedsRehash:   p.hasher.NeedsRehash(cred.Hash),
		LastLoginTime: cred.LastLoginTime,
		LastModified:  cred.LastModified,
	}
	if d, err := hasher.Decode(cred.Hash); err == nil {
		info.Iterations = d.Iterations
	}
	return info, nil
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}
