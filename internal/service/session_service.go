package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/jackc/pgx/v5"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/scribeworks/scribe-auth/internal/config"
	"github.com/scribeworks/scribe-auth/internal/domain"
	pw "github.com/scribeworks/scribe-auth/internal/password"
	"github.com/scribeworks/scribe-auth/internal/repository"
	"github.com/scribeworks/scribe-auth/internal/token"
)

// SignUpRequest carries the sign-up payload.
type SignUpRequest struct {
	Name     string
	Email    string
	Password string
	DeviceID string
}

// SignInRequest carries the sign-in payload.
type SignInRequest struct {
	Email    string
	Password string
	DeviceID string
}

// AuthResult is a freshly issued pair plus the resolved user.
type AuthResult struct {
	Pair domain.TokenPair
	User domain.User
}

// SessionService orchestrates sign-up, sign-in, refresh, and sign-out
// across the token codec, the refresh store, the session cache, and the
// user directory. It keeps no session state in memory; everything lives in
// the two stores.
type SessionService struct {
	users   repository.UserRepository
	refresh repository.RefreshTokenRepository
	cache   repository.SessionCache
	codec   *token.Codec
	node    *snowflake.Node
	timeout time.Duration
	logger  *zap.Logger
	tracer  trace.Tracer
}

// NewSessionService wires dependencies.
func NewSessionService(users repository.UserRepository, refresh repository.RefreshTokenRepository, cache repository.SessionCache, codec *token.Codec, node *snowflake.Node, cfg config.Config, logger *zap.Logger) *SessionService {
	return &SessionService{
		users:   users,
		refresh: refresh,
		cache:   cache,
		codec:   codec,
		node:    node,
		timeout: cfg.StoreTimeout,
		logger:  logger,
		tracer:  otel.Tracer("github.com/scribeworks/scribe-auth/internal/service"),
	}
}

// SignUp creates the user and opens the first session for the device.
func (s *SessionService) SignUp(ctx context.Context, req SignUpRequest) (*AuthResult, error) {
	ctx, span := s.tracer.Start(ctx, "SessionService.SignUp")
	defer span.End()

	hashed, err := pw.Hash(req.Password)
	if err != nil {
		return nil, domain.NewInfraError("hash password", err)
	}

	user := domain.User{
		ID:           s.node.Generate().Int64(),
		Email:        strings.ToLower(strings.TrimSpace(req.Email)),
		Name:         strings.TrimSpace(req.Name),
		PasswordHash: hashed,
	}

	storeCtx, cancel := s.storeCtx(ctx)
	created, err := s.users.Create(storeCtx, user)
	cancel()
	if err != nil {
		if errors.Is(err, domain.ErrConflict) {
			return nil, domain.ErrConflict
		}
		span.RecordError(err)
		return nil, domain.NewInfraError("create user", err)
	}

	pair, err := s.openSession(ctx, created.ID, req.DeviceID)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	s.audit("session.sign_up", created.ID, req.DeviceID)
	return &AuthResult{Pair: pair, User: created}, nil
}

// SignIn authenticates by email and password and opens a session for the
// device, superseding any prior session for the same (user, device) pair.
// Unknown email and wrong password return the identical ErrUnauthorized.
func (s *SessionService) SignIn(ctx context.Context, req SignInRequest) (*AuthResult, error) {
	ctx, span := s.tracer.Start(ctx, "SessionService.SignIn")
	defer span.End()

	storeCtx, cancel := s.storeCtx(ctx)
	user, err := s.users.GetByEmail(storeCtx, strings.ToLower(strings.TrimSpace(req.Email)))
	cancel()
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrUnauthorized
		}
		span.RecordError(err)
		return nil, domain.NewInfraError("lookup user", err)
	}

	valid, err := pw.Verify(req.Password, user.PasswordHash)
	if err != nil || !valid {
		return nil, domain.ErrUnauthorized
	}

	if err := s.revokeSession(ctx, user.ID, req.DeviceID); err != nil {
		span.RecordError(err)
		return nil, err
	}

	pair, err := s.openSession(ctx, user.ID, req.DeviceID)
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	s.audit("session.sign_in", user.ID, req.DeviceID)
	return &AuthResult{Pair: pair, User: user}, nil
}

// Refresh rotates the pair for the principal's device session. The
// presented refresh token is dead the instant the new row is written,
// even if the caller never receives the response.
func (s *SessionService) Refresh(ctx context.Context, principal domain.Principal) (domain.TokenPair, error) {
	ctx, span := s.tracer.Start(ctx, "SessionService.Refresh")
	defer span.End()

	if err := s.revokeSession(ctx, principal.UserID, principal.DeviceID); err != nil {
		span.RecordError(err)
		return domain.TokenPair{}, err
	}

	pair, err := s.openSession(ctx, principal.UserID, principal.DeviceID)
	if err != nil {
		span.RecordError(err)
		return domain.TokenPair{}, err
	}

	s.audit("session.refresh", principal.UserID, principal.DeviceID)
	return pair, nil
}

// SignOut revokes the device session in both stores. Idempotent.
func (s *SessionService) SignOut(ctx context.Context, principal domain.Principal) error {
	ctx, span := s.tracer.Start(ctx, "SessionService.SignOut")
	defer span.End()

	if err := s.revokeSession(ctx, principal.UserID, principal.DeviceID); err != nil {
		span.RecordError(err)
		return err
	}

	s.audit("session.sign_out", principal.UserID, principal.DeviceID)
	return nil
}

// Profile returns the current user record for an authenticated principal.
func (s *SessionService) Profile(ctx context.Context, userID int64) (domain.User, error) {
	storeCtx, cancel := s.storeCtx(ctx)
	defer cancel()

	user, err := s.users.GetByID(storeCtx, userID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.User{}, domain.ErrUnauthorized
		}
		return domain.User{}, domain.NewInfraError("lookup user", err)
	}
	return user, nil
}

// openSession mints a pair and records it: refresh row first, then the
// cache entry. The two writes are sequenced, not parallel, so a partial
// failure leaves at worst a state the access guard fails closed on.
func (s *SessionService) openSession(ctx context.Context, userID int64, deviceID string) (domain.TokenPair, error) {
	claims := domain.Claims{UserID: userID, DeviceID: deviceID}

	access, err := s.codec.Issue(claims, token.ClassAccess)
	if err != nil {
		return domain.TokenPair{}, domain.NewInfraError("issue access token", err)
	}
	refresh, err := s.codec.Issue(claims, token.ClassRefresh)
	if err != nil {
		return domain.TokenPair{}, domain.NewInfraError("issue refresh token", err)
	}

	storeCtx, cancel := s.storeCtx(ctx)
	err = s.refresh.Persist(storeCtx, userID, deviceID, refresh)
	cancel()
	if err != nil {
		return domain.TokenPair{}, err
	}

	storeCtx, cancel = s.storeCtx(ctx)
	err = s.cache.Record(storeCtx, userID, deviceID, access, s.codec.AccessTTL())
	cancel()
	if err != nil {
		return domain.TokenPair{}, err
	}

	return domain.TokenPair{AccessToken: access, RefreshToken: refresh}, nil
}

// revokeSession clears the refresh row, then the cache entry. It runs
// before every persist of a new pair for the same device (revoke before
// persist), so racing transitions cannot leave two live sessions.
func (s *SessionService) revokeSession(ctx context.Context, userID int64, deviceID string) error {
	storeCtx, cancel := s.storeCtx(ctx)
	err := s.refresh.Revoke(storeCtx, userID, deviceID)
	cancel()
	if err != nil {
		return err
	}

	storeCtx, cancel = s.storeCtx(ctx)
	err = s.cache.Revoke(storeCtx, userID, deviceID)
	cancel()
	return err
}

func (s *SessionService) storeCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, s.timeout)
}

func (s *SessionService) audit(event string, userID int64, deviceID string) {
	if s.logger == nil {
		return
	}
	s.logger.Info(event, zap.Int64("user_id", userID), zap.String("device_id", deviceID))
}
