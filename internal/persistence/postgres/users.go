package postgres

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"

	"example.com/timetrack/internal/domain"
)

// CreateUser stores a new account. A duplicate email surfaces as a remote
// unique-violation error.
func (r *Repository) CreateUser(ctx context.Context, user domain.User, passwordHash string) error {
	const stmt = `INSERT INTO users (user_id, email, password_hash, created_at) VALUES ($1,$2,$3,$4)`
	_, err := r.pool.Exec(ctx, stmt, user.ID, user.Email, passwordHash, user.CreatedAt)
	return translate(err)
}

// UserByEmail returns the account and its password hash, nil when the email
// is unknown.
func (r *Repository) UserByEmail(ctx context.Context, email string) (*domain.User, string, error) {
	const query = `SELECT user_id, email, password_hash, created_at FROM users WHERE email = $1`

	var (
		user domain.User
		hash string
	)
	err := r.pool.QueryRow(ctx, query, email).Scan(&user.ID, &user.Email, &hash, &user.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, "", nil
	}
	if err != nil {
		return nil, "", translate(err)
	}
	return &user, hash, nil
}

// UserByID returns the account for an identifier, nil when unknown.
func (r *Repository) UserByID(ctx context.Context, id string) (*domain.User, error) {
	const query = `SELECT user_id, email, created_at FROM users WHERE user_id = $1`

	var user domain.User
	err := r.pool.QueryRow(ctx, query, id).Scan(&user.ID, &user.Email, &user.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, translate(err)
	}
	return &user, nil
}
