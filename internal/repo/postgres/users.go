package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/geocoder89/userhub/internal/domain/user"
	"github.com/geocoder89/userhub/internal/observability"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// DB is the part of *pgxpool.Pool the repository uses.
type DB interface {
	Begin(ctx context.Context) (pgx.Tx, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

const (
	emailUniqueIndex = "users_email_uniq"

	// serializes email checks across connections and replicas
	emailLockKey int64 = 0x75736572735f656d // "users_em"
)

type UsersRepo struct {
	db   DB
	prom *observability.Prom
}

func NewUsersRepo(db DB, prom *observability.Prom) *UsersRepo {
	return &UsersRepo{db: db, prom: prom}
}

func (r *UsersRepo) observe(op string, fn func() error) error {
	if r.prom != nil {
		return r.prom.ObserveDB(op, fn)
	}
	return fn()
}

// Create inserts the user unless another row already has the email.
// The check and the insert share one transaction holding an advisory lock,
// so concurrent creates for the same email cannot both pass the check.
func (r *UsersRepo) Create(ctx context.Context, req user.CreateUserRequest) (u user.User, err error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return user.User{}, fmt.Errorf("begin create user: %w", err)
	}

	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		}
	}()

	err = r.observe("users.create.lock", func() error {
		_, e := tx.Exec(ctx, `SELECT pg_advisory_xact_lock($1)`, emailLockKey)
		return e
	})
	if err != nil {
		return user.User{}, fmt.Errorf("lock users email: %w", err)
	}

	var exists bool

	err = r.observe("users.create.duplicate_check", func() error {
		return tx.QueryRow(ctx, `SELECT EXISTS(
			SELECT 1 FROM users WHERE email = $1
		)`, req.Email).Scan(&exists)
	})
	if err != nil {
		return user.User{}, fmt.Errorf("check email: %w", err)
	}

	if exists {
		return user.User{}, user.ErrEmailTaken
	}

	var id int64

	err = r.observe("users.create.insert", func() error {
		return tx.QueryRow(ctx,
			`INSERT INTO users (firstName, lastName, email) VALUES ($1, $2, $3) RETURNING id`,
			req.FirstName, req.LastName, req.Email,
		).Scan(&id)
	})
	if err != nil {
		if isEmailConflict(err) {
			return user.User{}, user.ErrEmailTaken
		}
		return user.User{}, fmt.Errorf("insert user: %w", err)
	}

	err = tx.Commit(ctx)
	if err != nil {
		return user.User{}, fmt.Errorf("commit create user: %w", err)
	}

	return user.NewFromCreateRequest(id, req), nil
}

// GetByID returns the matching rows; no match is an empty slice, not an error.
func (r *UsersRepo) GetByID(ctx context.Context, id int64) ([]user.User, error) {
	var out []user.User

	err := r.observe("users.get_by_id", func() error {
		var e error
		out, e = r.queryUsers(ctx, `SELECT id, firstName, lastName, email FROM users WHERE id = $1`, id)
		return e
	})
	if err != nil {
		return nil, fmt.Errorf("get user %d: %w", id, err)
	}

	return out, nil
}

func (r *UsersRepo) List(ctx context.Context) ([]user.User, error) {
	var out []user.User

	err := r.observe("users.list", func() error {
		var e error
		out, e = r.queryUsers(ctx, `SELECT id, firstName, lastName, email FROM users ORDER BY id ASC`)
		return e
	})
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}

	return out, nil
}

// Update overwrites every mutable column and reports how many rows matched.
func (r *UsersRepo) Update(ctx context.Context, id int64, req user.UpdateUserRequest) (int64, error) {
	var tag pgconn.CommandTag

	err := r.observe("users.update", func() error {
		var e error
		tag, e = r.db.Exec(ctx,
			`UPDATE users SET firstName = $1, lastName = $2, email = $3 WHERE id = $4`,
			req.FirstName, req.LastName, req.Email, id,
		)
		return e
	})
	if err != nil {
		if isEmailConflict(err) {
			return 0, user.ErrEmailTaken
		}
		return 0, fmt.Errorf("update user %d: %w", id, err)
	}

	return tag.RowsAffected(), nil
}

func (r *UsersRepo) Delete(ctx context.Context, id int64) (int64, error) {
	var tag pgconn.CommandTag

	err := r.observe("users.delete", func() error {
		var e error
		tag, e = r.db.Exec(ctx, `DELETE FROM users WHERE id = $1`, id)
		return e
	})
	if err != nil {
		return 0, fmt.Errorf("delete user %d: %w", id, err)
	}

	return tag.RowsAffected(), nil
}

func (r *UsersRepo) queryUsers(ctx context.Context, sql string, args ...any) ([]user.User, error) {
	rows, err := r.db.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]user.User, 0)

	for rows.Next() {
		var u user.User

		err = rows.Scan(&u.ID, &u.FirstName, &u.LastName, &u.Email)
		if err != nil {
			return nil, err
		}

		out = append(out, u)
	}

	if err = rows.Err(); err != nil {
		return nil, err
	}

	return out, nil
}

func isEmailConflict(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23505" && pgErr.ConstraintName == emailUniqueIndex
}
