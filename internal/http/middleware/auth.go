package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"github.com/scribeworks/scribe-auth/internal/domain"
	"github.com/scribeworks/scribe-auth/internal/repository"
	"github.com/scribeworks/scribe-auth/internal/token"
)

const principalKey = "authPrincipal"

// Guard validates bearer credentials per request. RequireAccess and
// RequireRefresh share the same shape: verify the token class, cross-check
// session liveness in the matching store, resolve the principal. Routes
// that skip authentication simply never mount a guard.
type Guard struct {
	Codec   *token.Codec
	Cache   repository.SessionCache
	Tokens  repository.RefreshTokenRepository
	Users   repository.UserRepository
	Timeout time.Duration
	Logger  *zap.Logger
}

// NewGuard constructs a guard with a per-store-call timeout.
func NewGuard(codec *token.Codec, cache repository.SessionCache, tokens repository.RefreshTokenRepository, users repository.UserRepository, timeout time.Duration, logger *zap.Logger) *Guard {
	return &Guard{Codec: codec, Cache: cache, Tokens: tokens, Users: users, Timeout: timeout, Logger: logger}
}

// RequireAccess admits requests carrying a live access token.
func (g *Guard) RequireAccess(c *gin.Context) {
	raw, ok := bearerToken(c)
	if !ok {
		unauthorized(c)
		return
	}

	claims, err := g.Codec.Verify(raw, token.ClassAccess)
	if err != nil {
		unauthorized(c)
		return
	}

	ctx, cancel := g.storeCtx(c.Request.Context())
	live, err := g.Cache.IsLive(ctx, claims.UserID, claims.DeviceID, raw)
	cancel()
	if err != nil {
		// Fail closed, but keep the outage visible to operators.
		g.logInfra("access liveness check failed", err)
		unauthorized(c)
		return
	}
	if !live {
		unauthorized(c)
		return
	}

	g.admit(c, claims)
}

// RequireRefresh admits requests carrying a refresh token that was never
// used to mint a newer pair.
func (g *Guard) RequireRefresh(c *gin.Context) {
	raw, ok := bearerToken(c)
	if !ok {
		unauthorized(c)
		return
	}

	claims, err := g.Codec.Verify(raw, token.ClassRefresh)
	if err != nil {
		unauthorized(c)
		return
	}

	ctx, cancel := g.storeCtx(c.Request.Context())
	exists, err := g.Tokens.Exists(ctx, raw)
	cancel()
	if err != nil {
		g.logInfra("refresh liveness check failed", err)
		unauthorized(c)
		return
	}
	if !exists {
		unauthorized(c)
		return
	}

	g.admit(c, claims)
}

// admit resolves the principal from the user directory and attaches it to
// the request. A vanished account is indistinguishable from any other
// failed check.
func (g *Guard) admit(c *gin.Context, claims domain.Claims) {
	ctx, cancel := g.storeCtx(c.Request.Context())
	user, err := g.Users.GetByID(ctx, claims.UserID)
	cancel()
	if err != nil {
		if !errors.Is(err, pgx.ErrNoRows) {
			g.logInfra("principal lookup failed", err)
		}
		unauthorized(c)
		return
	}

	c.Set(principalKey, domain.Principal{
		UserID:   claims.UserID,
		DeviceID: claims.DeviceID,
		Email:    user.Email,
	})
	c.Next()
}

// GetPrincipal exposes the resolved principal to handlers.
func GetPrincipal(c *gin.Context) (domain.Principal, bool) {
	value, ok := c.Get(principalKey)
	if !ok {
		return domain.Principal{}, false
	}
	principal, ok := value.(domain.Principal)
	return principal, ok
}

func (g *Guard) storeCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	if g.Timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, g.Timeout)
}

func (g *Guard) logInfra(msg string, err error) {
	if g.Logger == nil {
		return
	}
	g.Logger.Error(msg, zap.Error(err), zap.Bool("infra", domain.IsInfra(err)))
}

func bearerToken(c *gin.Context) (string, bool) {
	header := c.GetHeader("Authorization")
	if header == "" {
		return "", false
	}
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") || parts[1] == "" {
		return "", false
	}
	return parts[1], true
}

// unauthorized writes the single undifferentiated rejection every failed
// check maps to.
func unauthorized(c *gin.Context) {
	c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
}
