package bindings

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/dmitrijs2005/authfacade/internal/common"
	"github.com/dmitrijs2005/authfacade/internal/dbx"
	"github.com/dmitrijs2005/authfacade/internal/server/models"
)

const bindingColumns = `provider, scheme_suffix, user_id, external_key, payload, last_login_time, last_modified`

type PostgresRepository struct {
	db dbx.DBTX
}

func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanBinding(row rowScanner) (*models.ProviderBinding, error) {
	b := &models.ProviderBinding{}
	var lastLogin sql.NullTime
	if err := row.Scan(&b.Provider, &b.SchemeSuffix, &b.UserID, &b.ExternalKey, &b.Payload, &lastLogin, &b.LastModified); err != nil {
		return nil, err
	}
	if lastLogin.Valid {
		t := lastLogin.Time
		b.LastLoginTime = &t
	}
	return b, nil
}

func (r *PostgresRepository) FindByUser(ctx context.Context, provider, schemeSuffix string, userID int64) (*models.ProviderBinding, error) {
	query := `SELECT ` + bindingColumns + `
		 FROM auth_bindings
		 WHERE provider = $1 AND scheme_suffix = $2 AND user_id = $3
		 `

	b, err := scanBinding(r.db.QueryRowContext(ctx, query, provider, schemeSuffix, userID))
	if err != nil {
		return nil, dbx.WrapError(err)
	}
	return b, nil
}

func (r *PostgresRepository) FindByExternalKey(ctx context.Context, provider, schemeSuffix, externalKey string) (*models.ProviderBinding, error) {
	query := `SELECT ` + bindingColumns + `
		 FROM auth_bindings
		 WHERE provider = $1 AND scheme_suffix = $2 AND external_key = $3
		 `

	b, err := scanBinding(r.db.QueryRowContext(ctx, query, provider, schemeSuffix, externalKey))
	if err != nil {
		return nil, dbx.WrapError(err)
	}
	return b, nil
}

func (r *PostgresRepository) ListByUser(ctx context.Context, provider string, userID int64) ([]models.ProviderBinding, error) {
	query := `SELECT ` + bindingColumns + `
		 FROM auth_bindings
		 WHERE provider = $1 AND user_id = $2
		 ORDER BY scheme_suffix
		 `

	rows, err := r.db.QueryContext(ctx, query, provider, userID)
	if err != nil {
		return nil, dbx.WrapError(err)
	}
	defer rows.Close()

	out := make([]models.ProviderBinding, 0)
	for rows.Next() {
		b, err := scanBinding(rows)
		if err != nil {
			return nil, dbx.WrapError(err)
		}
		out = append(out, *b)
	}
	if err := rows.Err(); err != nil {
		return nil, dbx.WrapError(err)
	}
	return out, nil
}

func (r *PostgresRepository) Insert(ctx context.Context, b *models.ProviderBinding) error {
	query :=
		`INSERT INTO auth_bindings (` + bindingColumns + `)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)
		 `

	_, err := r.db.ExecContext(ctx, query,
		b.Provider, b.SchemeSuffix, b.UserID, b.ExternalKey, b.Payload, nullTime(b.LastLoginTime), b.LastModified)
	if err != nil {
		return dbx.WrapError(err)
	}
	return nil
}

func (r *PostgresRepository) Update(ctx context.Context, b *models.ProviderBinding) error {
	query :=
		`UPDATE auth_bindings
		 SET external_key = $4, payload = $5, last_modified = $6
		 WHERE provider = $1 AND scheme_suffix = $2 AND user_id = $3
		 `

	res, err := r.db.ExecContext(ctx, query,
		b.Provider, b.SchemeSuffix, b.UserID, b.ExternalKey, b.Payload, b.LastModified)
	if err != nil {
		return dbx.WrapError(err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("db error: %w", err)
	}
	if n == 0 {
		return common.ErrorNotFound
	}
	return nil
}

func (r *PostgresRepository) TouchLastLogin(ctx context.Context, provider, schemeSuffix string, userID int64, at time.Time) (time.Time, error) {
	query :=
		`UPDATE auth_bindings
		 SET last_login_time = CASE
		     WHEN last_login_time IS NULL OR last_login_time < $4 THEN $4
		     ELSE last_login_time + interval '1 microsecond'
		 END
		 WHERE provider = $1 AND scheme_suffix = $2 AND user_id = $3
		 RETURNING last_login_time
		 `

	var stored time.Time
	if err := r.db.QueryRowContext(ctx, query, provider, schemeSuffix, userID, at).Scan(&stored); err != nil {
		return time.Time{}, dbx.WrapError(err)
	}
	return stored, nil
}

func (r *PostgresRepository) Delete(ctx context.Context, provider string, userID int64, schemeSuffix *string) (int64, error) {
	var (
		res sql.Result
		err error
	)
	if schemeSuffix == nil {
		res, err = r.db.ExecContext(ctx,
			`DELETE FROM auth_bindings WHERE provider = $1 AND user_id = $2`, provider, userID)
	} else {
		res, err = r.db.ExecContext(ctx,
			`DELETE FROM auth_bindings WHERE provider = $1 AND user_id = $2 AND scheme_suffix = $3`, provider, userID, *schemeSuffix)
	}
	if err != nil {
		return 0, dbx.WrapError(err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("db error: %w", err)
	}
	return n, nil
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}
