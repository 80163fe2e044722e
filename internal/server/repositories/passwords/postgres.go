package passwords

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/dmitrijs2005/authfacade/internal/common"
	"github.com/dmitrijs2005/authfacade/internal/dbx"
	"github.com/dmitrijs2005/authfacade/internal/server/models"
)

type PostgresRepository struct {
	db dbx.DBTX
}

func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func (r *PostgresRepository) Get(ctx context.Context, userID int64) (*models.PasswordCredential, error) {
	query :=
		`SELECT user_id, pwd_hash, version, last_login_time, last_modified
		 FROM user_passwords
		 WHERE user_id = $1
		 `

	c := &models.PasswordCredential{}
	var lastLogin sql.NullTime
	err := r.db.QueryRowContext(ctx, query, userID).
		Scan(&c.UserID, &c.Hash, &c.Version, &lastLogin, &c.LastModified)
	if err != nil {
		return nil, dbx.WrapError(err)
	}
	if lastLogin.Valid {
		t := lastLogin.Time
		c.LastLoginTime = &t
	}

	return c, nil
}

func (r *PostgresRepository) Insert(ctx context.Context, cred *models.PasswordCredential) (bool, error) {
	query :=
		`INSERT INTO user_passwords (user_id, pwd_hash, version, last_login_time, last_modified)
		 VALUES ($1, $2, 1, $3, $4)
		 ON CONFLICT (user_id) DO NOTHING
		 `

	res, err := r.db.ExecContext(ctx, query, cred.UserID, cred.Hash, nullTime(cred.LastLoginTime), cred.LastModified)
	if err != nil {
		return false, dbx.WrapError(err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("db error: %w", err)
	}

	return n > 0, nil
}

func (r *PostgresRepository) Update(ctx context.Context, cred *models.PasswordCredential) (int64, error) {
	query :=
		`UPDATE user_passwords
		 SET pwd_hash = $2, version = version + 1, last_modified = $3
		 WHERE user_id = $1
		 RETURNING version
		 `

	var version int64
	err := r.db.QueryRowContext(ctx, query, cred.UserID, cred.Hash, cred.LastModified).Scan(&version)
	if err != nil {
		return 0, dbx.WrapError(err)
	}

	return version, nil
}

func (r *PostgresRepository) Put(ctx context.Context, cred *models.PasswordCredential) (int64, error) {
	if cred.Version == 0 {
		return r.upsert(ctx, cred)
	}

	query :=
		`UPDATE user_passwords
		 SET pwd_hash = $2, version = version + 1, last_modified = $3
		 WHERE user_id = $1 AND version = $4
		 RETURNING version
		 `

	var version int64
	err := r.db.QueryRowContext(ctx, query, cred.UserID, cred.Hash, cred.LastModified, cred.Version).Scan(&version)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, common.ErrVersionConflict
		}
		return 0, dbx.WrapError(err)
	}

	return version, nil
}

func (r *PostgresRepository) upsert(ctx context.Context, cred *models.PasswordCredential) (int64, error) {
	query :=
		`INSERT INTO user_passwords (user_id, pwd_hash, version, last_modified)
		 VALUES ($1, $2, 1, $3)
		 ON CONFLICT (user_id) DO UPDATE
		 SET pwd_hash = EXCLUDED.pwd_hash,
		     version = user_passwords.version + 1,
		     last_modified = EXCLUDED.last_modified
		 RETURNING version
		 `

	var version int64
	err := r.db.QueryRowContext(ctx, query, cred.UserID, cred.Hash, cred.LastModified).Scan(&version)
	if err != nil {
		return 0, dbx.WrapError(err)
	}

	return version, nil
}

func (r *PostgresRepository) TouchLastLogin(ctx context.Context, userID int64, at time.Time) (time.Time, error) {
	query :=
		`UPDATE user_passwords
		 SET last_login_time = CASE
		     WHEN last_login_time IS NULL OR last_login_time < $2 THEN $2
		     ELSE last_login_time + interval '1 microsecond'
		 END
		 WHERE user_id = $1
		 RETURNING last_login_time
		 `

	var stored time.Time
	if err := r.db.QueryRowContext(ctx, query, userID, at).Scan(&stored); err != nil {
		return time.Time{}, dbx.WrapError(err)
	}

	return stored, nil
}

func (r *PostgresRepository) Delete(ctx context.Context, userID int64) (bool, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM user_passwords WHERE user_id = $1`, userID)
	if err != nil {
		return false, dbx.WrapError(err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("db error: %w", err)
	}

	return n > 0, nil
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}
