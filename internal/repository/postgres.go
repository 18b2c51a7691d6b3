package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/scribeworks/scribe-auth/internal/domain"
)

// Compile-time interface assertions.
var (
	_ UserRepository         = (*PostgresUserRepo)(nil)
	_ RefreshTokenRepository = (*PostgresRefreshTokenRepo)(nil)
)

const pgUniqueViolation = "23505"

// PostgresUserRepo implements UserRepository.
type PostgresUserRepo struct {
	db *pgxpool.Pool
}

func NewPostgresUserRepo(pool *pgxpool.Pool) *PostgresUserRepo {
	return &PostgresUserRepo{db: pool}
}

const selectUserSQL = `SELECT id, email, name, password_hash, created_at, updated_at FROM users`

func (r *PostgresUserRepo) GetByEmail(ctx context.Context, email string) (domain.User, error) {
	user, err := scanUser(r.db.QueryRow(ctx, selectUserSQL+` WHERE email = $1`, email))
	if err != nil {
		return domain.User{}, fmt.Errorf("get user by email: %w", err)
	}
	return user, nil
}

func (r *PostgresUserRepo) GetByID(ctx context.Context, userID int64) (domain.User, error) {
	user, err := scanUser(r.db.QueryRow(ctx, selectUserSQL+` WHERE id = $1`, userID))
	if err != nil {
		return domain.User{}, fmt.Errorf("get user by id: %w", err)
	}
	return user, nil
}

const insertUserSQL = `INSERT INTO users (id, email, name, password_hash)
VALUES ($1, $2, $3, $4)
RETURNING id, email, name, password_hash, created_at, updated_at`

func (r *PostgresUserRepo) Create(ctx context.Context, user domain.User) (domain.User, error) {
	inserted, err := scanUser(r.db.QueryRow(ctx, insertUserSQL, user.ID, user.Email, user.Name, user.PasswordHash))
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
			return domain.User{}, domain.ErrConflict
		}
		return domain.User{}, fmt.Errorf("create user: %w", err)
	}
	return inserted, nil
}

func scanUser(row pgx.Row) (domain.User, error) {
	var user domain.User
	err := row.Scan(&user.ID, &user.Email, &user.Name, &user.PasswordHash, &user.CreatedAt, &user.UpdatedAt)
	return user, err
}

// PostgresRefreshTokenRepo implements RefreshTokenRepository. The unique
// key on (user_id, device_id) is what makes Persist safe under racing
// transitions for the same session: two upserts can never leave two rows.
type PostgresRefreshTokenRepo struct {
	db *pgxpool.Pool
}

func NewPostgresRefreshTokenRepo(pool *pgxpool.Pool) *PostgresRefreshTokenRepo {
	return &PostgresRefreshTokenRepo{db: pool}
}

const upsertRefreshSQL = `INSERT INTO refresh_tokens (user_id, device_id, refresh_token)
VALUES ($1, $2, $3)
ON CONFLICT (user_id, device_id)
DO UPDATE SET refresh_token = EXCLUDED.refresh_token, created_at = now()`

func (r *PostgresRefreshTokenRepo) Persist(ctx context.Context, userID int64, deviceID, refreshToken string) error {
	if _, err := r.db.Exec(ctx, upsertRefreshSQL, userID, deviceID, refreshToken); err != nil {
		return domain.NewInfraError("persist refresh token", err)
	}
	return nil
}

func (r *PostgresRefreshTokenRepo) Exists(ctx context.Context, refreshToken string) (bool, error) {
	var exists bool
	err := r.db.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM refresh_tokens WHERE refresh_token = $1)`,
		refreshToken,
	).Scan(&exists)
	if err != nil {
		return false, domain.NewInfraError("lookup refresh token", err)
	}
	return exists, nil
}

func (r *PostgresRefreshTokenRepo) Revoke(ctx context.Context, userID int64, deviceID string) error {
	if _, err := r.db.Exec(ctx,
		`DELETE FROM refresh_tokens WHERE user_id = $1 AND device_id = $2`,
		userID, deviceID,
	); err != nil {
		return domain.NewInfraError("revoke refresh token", err)
	}
	return nil
}
