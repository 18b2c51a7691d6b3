package service_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/scribeworks/scribe-auth/internal/config"
	"github.com/scribeworks/scribe-auth/internal/domain"
	"github.com/scribeworks/scribe-auth/internal/service"
	"github.com/scribeworks/scribe-auth/internal/token"
)

type fixture struct {
	sessions *service.SessionService
	codec    *token.Codec
	users    *memoryUserRepo
	refresh  *memoryRefreshRepo
	cache    *memoryCache
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	users := newMemoryUserRepo()
	refresh := newMemoryRefreshRepo()
	cache := newMemoryCache()
	codec := token.NewCodec("access-secret-0123456789abcdefghij", "refresh-secret-0123456789abcdefghij", time.Minute, time.Hour)
	node, err := snowflake.NewNode(1)
	require.NoError(t, err)

	cfg := config.Config{StoreTimeout: time.Second}
	sessions := service.NewSessionService(users, refresh, cache, codec, node, cfg, zap.NewNop())
	return &fixture{sessions: sessions, codec: codec, users: users, refresh: refresh, cache: cache}
}

func (f *fixture) signUp(t *testing.T, email, deviceID string) *service.AuthResult {
	t.Helper()
	result, err := f.sessions.SignUp(context.Background(), service.SignUpRequest{
		Name:     "Tester",
		Email:    email,
		Password: "correct horse",
		DeviceID: deviceID,
	})
	require.NoError(t, err)
	return result
}

func TestSignUpOpensSingleSession(t *testing.T) {
	f := newFixture(t)
	result := f.signUp(t, "a@example.com", "d1")

	require.NotEmpty(t, result.Pair.AccessToken)
	require.NotEmpty(t, result.Pair.RefreshToken)
	require.NotEqual(t, result.Pair.AccessToken, result.Pair.RefreshToken)
	require.Equal(t, "a@example.com", result.User.Email)

	require.Equal(t, 1, f.refresh.countFor(result.User.ID))
	live, err := f.cache.IsLive(context.Background(), result.User.ID, "d1", result.Pair.AccessToken)
	require.NoError(t, err)
	require.True(t, live)
}

func TestSignUpDuplicateEmailConflicts(t *testing.T) {
	f := newFixture(t)
	f.signUp(t, "a@example.com", "d1")

	_, err := f.sessions.SignUp(context.Background(), service.SignUpRequest{
		Name:     "Other",
		Email:    "a@example.com",
		Password: "correct horse",
		DeviceID: "d2",
	})
	require.ErrorIs(t, err, domain.ErrConflict)
}

func TestSignInSupersedesPriorSession(t *testing.T) {
	f := newFixture(t)
	first := f.signUp(t, "a@example.com", "d1")

	second, err := f.sessions.SignIn(context.Background(), service.SignInRequest{
		Email:    "a@example.com",
		Password: "correct horse",
		DeviceID: "d1",
	})
	require.NoError(t, err)

	// Exactly one refresh row for the pair, and only the new pair is live.
	require.Equal(t, 1, f.refresh.countFor(first.User.ID))

	oldExists, err := f.refresh.Exists(context.Background(), first.Pair.RefreshToken)
	require.NoError(t, err)
	require.False(t, oldExists)

	newExists, err := f.refresh.Exists(context.Background(), second.Pair.RefreshToken)
	require.NoError(t, err)
	require.True(t, newExists)

	oldLive, err := f.cache.IsLive(context.Background(), first.User.ID, "d1", first.Pair.AccessToken)
	require.NoError(t, err)
	require.False(t, oldLive)

	newLive, err := f.cache.IsLive(context.Background(), first.User.ID, "d1", second.Pair.AccessToken)
	require.NoError(t, err)
	require.True(t, newLive)
}

func TestSignInDoesNotTouchOtherDevices(t *testing.T) {
	f := newFixture(t)
	onPhone := f.signUp(t, "a@example.com", "phone")

	_, err := f.sessions.SignIn(context.Background(), service.SignInRequest{
		Email:    "a@example.com",
		Password: "correct horse",
		DeviceID: "laptop",
	})
	require.NoError(t, err)

	phoneLive, err := f.cache.IsLive(context.Background(), onPhone.User.ID, "phone", onPhone.Pair.AccessToken)
	require.NoError(t, err)
	require.True(t, phoneLive)
	require.Equal(t, 2, f.refresh.countFor(onPhone.User.ID))
}

func TestSignInFailuresAreIndistinguishable(t *testing.T) {
	f := newFixture(t)
	f.signUp(t, "a@example.com", "d1")

	_, wrongPassword := f.sessions.SignIn(context.Background(), service.SignInRequest{
		Email:    "a@example.com",
		Password: "wrong",
		DeviceID: "d1",
	})
	_, unknownEmail := f.sessions.SignIn(context.Background(), service.SignInRequest{
		Email:    "nobody@example.com",
		Password: "correct horse",
		DeviceID: "d1",
	})

	require.ErrorIs(t, wrongPassword, domain.ErrUnauthorized)
	require.ErrorIs(t, unknownEmail, domain.ErrUnauthorized)
	require.Equal(t, wrongPassword, unknownEmail)
}

func TestRefreshRotatesPair(t *testing.T) {
	f := newFixture(t)
	first := f.signUp(t, "a@example.com", "d1")
	principal := domain.Principal{UserID: first.User.ID, DeviceID: "d1", Email: first.User.Email}

	rotated, err := f.sessions.Refresh(context.Background(), principal)
	require.NoError(t, err)
	require.NotEqual(t, first.Pair.RefreshToken, rotated.RefreshToken)

	oldExists, err := f.refresh.Exists(context.Background(), first.Pair.RefreshToken)
	require.NoError(t, err)
	require.False(t, oldExists)

	oldLive, err := f.cache.IsLive(context.Background(), first.User.ID, "d1", first.Pair.AccessToken)
	require.NoError(t, err)
	require.False(t, oldLive)

	newLive, err := f.cache.IsLive(context.Background(), first.User.ID, "d1", rotated.AccessToken)
	require.NoError(t, err)
	require.True(t, newLive)
}

func TestSignOutClearsBothStores(t *testing.T) {
	f := newFixture(t)
	first := f.signUp(t, "a@example.com", "d1")
	principal := domain.Principal{UserID: first.User.ID, DeviceID: "d1", Email: first.User.Email}

	require.NoError(t, f.sessions.SignOut(context.Background(), principal))

	exists, err := f.refresh.Exists(context.Background(), first.Pair.RefreshToken)
	require.NoError(t, err)
	require.False(t, exists)

	live, err := f.cache.IsLive(context.Background(), first.User.ID, "d1", first.Pair.AccessToken)
	require.NoError(t, err)
	require.False(t, live)

	// Idempotent.
	require.NoError(t, f.sessions.SignOut(context.Background(), principal))
}

func TestOpenSessionSurfacesStoreOutage(t *testing.T) {
	f := newFixture(t)
	f.refresh.failPersist = fmt.Errorf("connection refused")

	_, err := f.sessions.SignUp(context.Background(), service.SignUpRequest{
		Name:     "Tester",
		Email:    "a@example.com",
		Password: "correct horse",
		DeviceID: "d1",
	})
	require.Error(t, err)
	require.True(t, domain.IsInfra(err))
	require.NotErrorIs(t, err, domain.ErrUnauthorized)
}

// --- in-memory fakes ---

type memoryUserRepo struct {
	byEmail map[string]domain.User
	byID    map[int64]domain.User
}

func newMemoryUserRepo() *memoryUserRepo {
	return &memoryUserRepo{byEmail: map[string]domain.User{}, byID: map[int64]domain.User{}}
}

func (m *memoryUserRepo) GetByEmail(ctx context.Context, email string) (domain.User, error) {
	user, ok := m.byEmail[email]
	if !ok {
		return domain.User{}, fmt.Errorf("get user by email: %w", pgx.ErrNoRows)
	}
	return user, nil
}

func (m *memoryUserRepo) GetByID(ctx context.Context, userID int64) (domain.User, error) {
	user, ok := m.byID[userID]
	if !ok {
		return domain.User{}, fmt.Errorf("get user by id: %w", pgx.ErrNoRows)
	}
	return user, nil
}

func (m *memoryUserRepo) Create(ctx context.Context, user domain.User) (domain.User, error) {
	if _, exists := m.byEmail[user.Email]; exists {
		return domain.User{}, domain.ErrConflict
	}
	user.CreatedAt = time.Now().UTC()
	user.UpdatedAt = user.CreatedAt
	m.byEmail[user.Email] = user
	m.byID[user.ID] = user
	return user, nil
}

type memoryRefreshRepo struct {
	rows        map[string]string // "userID|deviceID" -> refresh token
	failPersist error
}

func newMemoryRefreshRepo() *memoryRefreshRepo {
	return &memoryRefreshRepo{rows: map[string]string{}}
}

func refreshKey(userID int64, deviceID string) string {
	return fmt.Sprintf("%d|%s", userID, deviceID)
}

func (m *memoryRefreshRepo) Persist(ctx context.Context, userID int64, deviceID, refreshToken string) error {
	if m.failPersist != nil {
		return domain.NewInfraError("persist refresh token", m.failPersist)
	}
	m.rows[refreshKey(userID, deviceID)] = refreshToken
	return nil
}

func (m *memoryRefreshRepo) Exists(ctx context.Context, refreshToken string) (bool, error) {
	for _, stored := range m.rows {
		if stored == refreshToken {
			return true, nil
		}
	}
	return false, nil
}

func (m *memoryRefreshRepo) Revoke(ctx context.Context, userID int64, deviceID string) error {
	delete(m.rows, refreshKey(userID, deviceID))
	return nil
}

func (m *memoryRefreshRepo) countFor(userID int64) int {
	count := 0
	for key := range m.rows {
		var id int64
		var device string
		if _, err := fmt.Sscanf(key, "%d|%s", &id, &device); err == nil && id == userID {
			count++
		}
	}
	return count
}

type memoryCache struct {
	entries map[string]cacheEntry
	failGet error
}

type cacheEntry struct {
	token     string
	expiresAt time.Time
}

func newMemoryCache() *memoryCache {
	return &memoryCache{entries: map[string]cacheEntry{}}
}

func cacheKey(userID int64, deviceID string) string {
	return fmt.Sprintf("%d|%s", userID, deviceID)
}

func (m *memoryCache) Record(ctx context.Context, userID int64, deviceID, accessToken string, ttl time.Duration) error {
	m.entries[cacheKey(userID, deviceID)] = cacheEntry{token: accessToken, expiresAt: time.Now().Add(ttl)}
	return nil
}

func (m *memoryCache) IsLive(ctx context.Context, userID int64, deviceID, accessToken string) (bool, error) {
	if m.failGet != nil {
		return false, domain.NewInfraError("session cache get", m.failGet)
	}
	entry, ok := m.entries[cacheKey(userID, deviceID)]
	if !ok || time.Now().After(entry.expiresAt) {
		return false, nil
	}
	return entry.token == accessToken, nil
}

func (m *memoryCache) Revoke(ctx context.Context, userID int64, deviceID string) error {
	delete(m.entries, cacheKey(userID, deviceID))
	return nil
}
