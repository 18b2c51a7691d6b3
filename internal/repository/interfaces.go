package repository

import (
	"context"
	"time"

	"github.com/scribeworks/scribe-auth/internal/domain"
)

// UserRepository exposes the user directory consumed by the session core.
type UserRepository interface {
	GetByEmail(ctx context.Context, email string) (domain.User, error)
	GetByID(ctx context.Context, userID int64) (domain.User, error)
	Create(ctx context.Context, user domain.User) (domain.User, error)
}

// RefreshTokenRepository is the durable record of the single valid refresh
// token per (user, device) pair.
type RefreshTokenRepository interface {
	// Persist upserts the (userID, deviceID) row, replacing any prior
	// refresh token for that device.
	Persist(ctx context.Context, userID int64, deviceID, refreshToken string) error
	// Exists reports whether any row holds refreshToken, regardless of owner.
	Exists(ctx context.Context, refreshToken string) (bool, error)
	// Revoke deletes the row. Idempotent.
	Revoke(ctx context.Context, userID int64, deviceID string) error
}

// SessionCache is the volatile allowlist of currently valid access tokens,
// keyed by (user, device).
type SessionCache interface {
	// Record replaces any existing entry for the pair with accessToken,
	// expiring after ttl.
	Record(ctx context.Context, userID int64, deviceID, accessToken string, ttl time.Duration) error
	// IsLive reports whether the stored entry exists and equals accessToken.
	// A non-nil error means the cache could not answer; callers fail closed.
	IsLive(ctx context.Context, userID int64, deviceID, accessToken string) (bool, error)
	// Revoke deletes the entry. Idempotent.
	Revoke(ctx context.Context, userID int64, deviceID string) error
}
