package groups

import (
	"context"
	"fmt"

	"github.com/dmitrijs2005/authfacade/internal/dbx"
)

type PostgresRepository struct {
	db dbx.DBTX
}

func NewPostgresRepository(db dbx.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

func (r *PostgresRepository) Create(ctx context.Context) (int64, error) {
	query :=
		`WITH a AS (INSERT INTO actors DEFAULT VALUES RETURNING id)
		 INSERT INTO groups (id) SELECT id FROM a
		 RETURNING id
		 `

	var id int64
	if err := r.db.QueryRowContext(ctx, query).Scan(&id); err != nil {
		return 0, dbx.WrapError(err)
	}
	return id, nil
}

func (r *PostgresRepository) Exists(ctx context.Context, id int64) (bool, error) {
	var ok bool
	err := r.db.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM groups WHERE id = $1)`, id).Scan(&ok)
	if err != nil {
		return false, dbx.WrapError(err)
	}
	return ok, nil
}

func (r *PostgresRepository) Delete(ctx context.Context, id int64) (bool, error) {
	query :=
		`DELETE FROM actors
		 WHERE id = $1 AND EXISTS (SELECT 1 FROM groups WHERE id = $1)
		 `

	n, err := r.exec(ctx, query, id)
	return n > 0, err
}

func (r *PostgresRepository) CountUsers(ctx context.Context, groupID int64) (int, error) {
	var n int
	err := r.db.QueryRowContext(ctx, `SELECT count(*) FROM group_users WHERE group_id = $1`, groupID).Scan(&n)
	if err != nil {
		return 0, dbx.WrapError(err)
	}
	return n, nil
}

func (r *PostgresRepository) ListUsers(ctx context.Context, groupID int64) ([]int64, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT user_id FROM group_users WHERE group_id = $1 ORDER BY user_id`, groupID)
	if err != nil {
		return nil, dbx.WrapError(err)
	}
	defer rows.Close()

	ids := make([]int64, 0)
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, dbx.WrapError(err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, dbx.WrapError(err)
	}
	return ids, nil
}

func (r *PostgresRepository) AddUser(ctx context.Context, groupID, userID int64) (bool, error) {
	query :=
		`INSERT INTO group_users (group_id, user_id)
		 VALUES ($1, $2)
		 ON CONFLICT DO NOTHING
		 `

	n, err := r.exec(ctx, query, groupID, userID)
	return n > 0, err
}

func (r *PostgresRepository) RemoveUser(ctx context.Context, groupID, userID int64) (bool, error) {
	n, err := r.exec(ctx, `DELETE FROM group_users WHERE group_id = $1 AND user_id = $2`, groupID, userID)
	return n > 0, err
}

func (r *PostgresRepository) RemoveAllUsers(ctx context.Context, groupID int64) (int64, error) {
	return r.exec(ctx, `DELETE FROM group_users WHERE group_id = $1`, groupID)
}

func (r *PostgresRepository) RemoveFromAllGroups(ctx context.Context, userID int64) (int64, error) {
	return r.exec(ctx, `DELETE FROM group_users WHERE user_id = $1`, userID)
}

func (r *PostgresRepository) exec(ctx context.Context, query string, args ...any) (int64, error) {
	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, dbx.WrapError(err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("db error: %w", err)
	}
	return n, nil
}
