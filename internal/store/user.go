package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jjudge-oj/accountserver/types"
	"github.com/lib/pq"
)

// Field names a uniquely indexed user column that can be looked up.
type Field string

const (
	FieldName  Field = "name"
	FieldEmail Field = "email"
)

const (
	uniqueViolation     = "23505"
	constraintUserEmail = "users_email_key"
	constraintUserName  = "users_name_key"
)

const userColumns = `id, name, email, password_hash, phone_number, address, created_at, updated_at`

// UserRepository handles persistence for users.
type UserRepository struct {
	db  *sql.DB
	now func() time.Time
}

func NewUserRepository(db *sql.DB) *UserRepository {
	return &UserRepository{db: db, now: time.Now}
}

func (r *UserRepository) GetByID(ctx context.Context, id string) (types.User, error) {
	if _, err := uuid.Parse(id); err != nil {
		// not a key the table can hold
		return types.User{}, ErrNotFound
	}
	const query = `
		SELECT ` + userColumns + `
		FROM users
		WHERE id = $1`
	return scanUser(r.db.QueryRowContext(ctx, query, id))
}

func (r *UserRepository) FindByField(ctx context.Context, field Field, value string) (types.User, error) {
	var query string
	switch field {
	case FieldName:
		query = `SELECT ` + userColumns + ` FROM users WHERE name = $1`
	case FieldEmail:
		query = `SELECT ` + userColumns + ` FROM users WHERE email = $1`
	default:
		return types.User{}, fmt.Errorf("unsupported lookup field %q", field)
	}
	return scanUser(r.db.QueryRowContext(ctx, query, value))
}

func (r *UserRepository) List(ctx context.Context) ([]types.User, error) {
	const query = `
		SELECT ` + userColumns + `
		FROM users
		ORDER BY created_at, id`
	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	users := make([]types.User, 0)
	for rows.Next() {
		user, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		users = append(users, user)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return users, nil
}

// Create inserts user with a fresh id. Uniqueness of name and email is
// enforced by the table constraints, not by a prior lookup.
func (r *UserRepository) Create(ctx context.Context, user types.User) (types.User, error) {
	now := r.now().UTC()
	user.ID = uuid.NewString()
	user.CreatedAt = now
	user.UpdatedAt = now

	const query = `
		INSERT INTO users (id, name, email, password_hash, phone_number, address, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`
	if _, err := r.db.ExecContext(
		ctx,
		query,
		user.ID,
		user.Name,
		user.Email,
		user.PasswordHash,
		user.PhoneNumber,
		user.Address,
		user.CreatedAt,
		user.UpdatedAt,
	); err != nil {
		return types.User{}, translateError(err)
	}
	return user, nil
}

// Update applies the non-nil fields of patch and returns the updated record.
func (r *UserRepository) Update(ctx context.Context, id string, patch types.UserPatch) (types.User, error) {
	if _, err := uuid.Parse(id); err != nil {
		return types.User{}, ErrNotFound
	}
	const query = `
		UPDATE users
		SET name = COALESCE($1, name),
			email = COALESCE($2, email),
			password_hash = COALESCE($3, password_hash),
			phone_number = COALESCE($4, phone_number),
			address = COALESCE($5, address),
			updated_at = $6
		WHERE id = $7
		RETURNING ` + userColumns
	user, err := scanUser(r.db.QueryRowContext(
		ctx,
		query,
		nullable(patch.Name),
		nullable(patch.Email),
		nullable(patch.PasswordHash),
		nullable(patch.PhoneNumber),
		nullable(patch.Address),
		r.now().UTC(),
		id,
	))
	if err != nil {
		return types.User{}, translateError(err)
	}
	return user, nil
}

func (r *UserRepository) Delete(ctx context.Context, id string) error {
	if _, err := uuid.Parse(id); err != nil {
		return ErrNotFound
	}
	const query = `DELETE FROM users WHERE id = $1`
	result, err := r.db.ExecContext(ctx, query, id)
	if err != nil {
		return err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanUser(row rowScanner) (types.User, error) {
	var user types.User
	err := row.Scan(
		&user.ID,
		&user.Name,
		&user.Email,
		&user.PasswordHash,
		&user.PhoneNumber,
		&user.Address,
		&user.CreatedAt,
		&user.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return types.User{}, ErrNotFound
		}
		return types.User{}, err
	}
	return user, nil
}

func translateError(err error) error {
	var pqErr *pq.Error
	if !errors.As(err, &pqErr) || pqErr.Code != uniqueViolation {
		return err
	}
	switch pqErr.Constraint {
	case constraintUserEmail:
		return ErrDuplicateEmail
	case constraintUserName:
		return ErrDuplicateName
	default:
		return err
	}
}

func nullable(value *string) sql.NullString {
	if value == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *value, Valid: true}
}
