package users

import (
	"context"
	"fmt"

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

func (r *PostgresRepository) Create(ctx context.Context, userName string) (*models.User, error) {
	query :=
		`WITH a AS (INSERT INTO actors DEFAULT VALUES RETURNING id)
		 INSERT INTO users (id, username) SELECT id, $1 FROM a
		 RETURNING id, created_at
		 `

	user := &models.User{UserName: userName}
	err := r.db.QueryRowContext(ctx, query, userName).Scan(&user.ID, &user.CreatedAt)
	if err != nil {
		return nil, dbx.WrapError(err)
	}

	return user, nil
}

func (r *PostgresRepository) GetByID(ctx context.Context, id int64) (*models.User, error) {
	query :=
		`SELECT id, username, created_at FROM users
		 WHERE id = $1
		 `

	user := &models.User{}
	err := r.db.QueryRowContext(ctx, query, id).Scan(&user.ID, &user.UserName, &user.CreatedAt)
	if err != nil {
		return nil, dbx.WrapError(err)
	}

	return user, nil
}

func (r *PostgresRepository) FindIDByName(ctx context.Context, userName string) (int64, error) {
	query :=
		`SELECT id FROM users
		 WHERE username = $1
		 `

	var id int64
	if err := r.db.QueryRowContext(ctx, query, userName).Scan(&id); err != nil {
		return 0, dbx.WrapError(err)
	}

	return id, nil
}

func (r *PostgresRepository) Exists(ctx context.Context, id int64) (bool, error) {
	return r.exists(ctx, `SELECT EXISTS (SELECT 1 FROM users WHERE id = $1)`, id)
}

func (r *PostgresRepository) ActorExists(ctx context.Context, id int64) (bool, error) {
	return r.exists(ctx, `SELECT EXISTS (SELECT 1 FROM actors WHERE id = $1)`, id)
}

func (r *PostgresRepository) exists(ctx context.Context, query string, id int64) (bool, error) {
	var ok bool
	if err := r.db.QueryRowContext(ctx, query, id).Scan(&ok); err != nil {
		return false, dbx.WrapError(err)
	}
	return ok, nil
}

func (r *PostgresRepository) SetName(ctx context.Context, id int64, userName string) error {
	query :=
		`UPDATE users SET username = $2
		 WHERE id = $1
		 `

	res, err := r.db.ExecContext(ctx, query, id, userName)
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

func (r *PostgresRepository) Delete(ctx context.Context, id int64) (bool, error) {
	query :=
		`DELETE FROM actors
		 WHERE id = $1 AND EXISTS (SELECT 1 FROM users WHERE id = $1)
		 `

	res, err := r.db.ExecContext(ctx, query, id)
	if err != nil {
		return false, dbx.WrapError(err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("db error: %w", err)
	}

	return n > 0, nil
}
