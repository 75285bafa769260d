package auth_test

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/goliatone/go-router"
	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/uptrace/bun"

	auth "github.com/goliatone/go-bakery-auth"
	"github.com/goliatone/go-bakery-auth/database"
)

const testPassword = "croissant-42!"

var testEpoch = time.Date(2025, time.March, 1, 8, 0, 0, 0, time.UTC)

type testConfig struct {
	accessKey     string
	refreshKey    string
	issuer        string
	accessHours   int
	refreshHours  int
	extendedHours int
	tokenLookup   string
}

func newTestConfig() *testConfig {
	return &testConfig{
		accessKey:     "access-signing-key",
		refreshKey:    "refresh-signing-key",
		issuer:        "bakery-auth-test",
		accessHours:   24,
		refreshHours:  24,
		extendedHours: 720,
	}
}

func (c *testConfig) GetAccessSigningKey() string            { return c.accessKey }
func (c *testConfig) GetRefreshSigningKey() string           { return c.refreshKey }
func (c *testConfig) GetIssuer() string                      { return c.issuer }
func (c *testConfig) GetAccessTokenExpiration() int          { return c.accessHours }
func (c *testConfig) GetRefreshTokenExpiration() int         { return c.refreshHours }
func (c *testConfig) GetExtendedRefreshTokenExpiration() int { return c.extendedHours }
func (c *testConfig) GetContextKey() string                  { return "" }
func (c *testConfig) GetTokenLookup() string                 { return c.tokenLookup }
func (c *testConfig) GetAuthScheme() string                  { return "" }
func (c *testConfig) GetRefreshCookieName() string           { return "" }
func (c *testConfig) GetRefreshCookiePath() string           { return "" }
func (c *testConfig) GetCookieSecure() bool                  { return false }

// testClock is a manually advanced time source shared by every component
type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func newTestClock() *testClock {
	return &testClock{now: testEpoch}
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type testIdentity struct {
	id   string
	role string
}

func (i testIdentity) ID() string       { return i.id }
func (i testIdentity) Username() string { return "" }
func (i testIdentity) Email() string    { return "" }
func (i testIdentity) Role() string     { return i.role }

type capturingSink struct {
	mu     sync.Mutex
	events []auth.ActivityEvent
}

func (c *capturingSink) Record(_ context.Context, evt auth.ActivityEvent) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, evt)
	return nil
}

func (c *capturingSink) types() []auth.ActivityEventType {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]auth.ActivityEventType, 0, len(c.events))
	for _, evt := range c.events {
		out = append(out, evt.Type)
	}
	return out
}

func (c *capturingSink) last() auth.ActivityEvent {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.events) == 0 {
		return auth.ActivityEvent{}
	}
	return c.events[len(c.events)-1]
}

// MockTokenIssuer implements auth.TokenIssuer
type MockTokenIssuer struct {
	mock.Mock
}

func (m *MockTokenIssuer) IssueAccessToken(identity auth.Identity, sessionID string) (string, time.Time, error) {
	args := m.Called(identity, sessionID)
	return args.String(0), args.Get(1).(time.Time), args.Error(2)
}

func (m *MockTokenIssuer) IssueRefreshToken(identity auth.Identity, sessionID string, rememberMe bool) (string, time.Time, error) {
	args := m.Called(identity, sessionID, rememberMe)
	return args.String(0), args.Get(1).(time.Time), args.Error(2)
}

func (m *MockTokenIssuer) DecodeAndVerify(token string, expected auth.TokenType) (*auth.JWTClaims, error) {
	args := m.Called(token, expected)
	claims, _ := args.Get(0).(*auth.JWTClaims)
	return claims, args.Error(1)
}

func (m *MockTokenIssuer) RefreshTTL(rememberMe bool) time.Duration {
	args := m.Called(rememberMe)
	return args.Get(0).(time.Duration)
}

// MockUserRepository implements auth.UserRepository
type MockUserRepository struct {
	mock.Mock
}

func (m *MockUserRepository) FindActiveByID(ctx context.Context, id string) (*auth.User, error) {
	args := m.Called(ctx, id)
	user, _ := args.Get(0).(*auth.User)
	return user, args.Error(1)
}

func (m *MockUserRepository) FindByIdentifier(ctx context.Context, identifier string) (*auth.User, error) {
	args := m.Called(ctx, identifier)
	user, _ := args.Get(0).(*auth.User)
	return user, args.Error(1)
}

// newTestDB opens a private in-memory sqlite database with the schema applied
func newTestDB(t *testing.T) *bun.DB {
	t.Helper()

	ctx := context.Background()
	db, err := database.Open(ctx, database.Options{
		Driver: database.DriverSQLite,
		DSN:    fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString()),
	})
	require.NoError(t, err)

	_, err = database.Migrate(ctx, db)
	require.NoError(t, err)

	t.Cleanup(func() {
		_ = db.Close()
	})

	return db
}

var (
	hashOnce   sync.Once
	hashCached string
)

// testPasswordHash hashes testPassword once per test binary
func testPasswordHash(t *testing.T) string {
	t.Helper()
	hashOnce.Do(func() {
		h, err := auth.HashPassword(testPassword)
		if err != nil {
			panic(err)
		}
		hashCached = h
	})
	return hashCached
}

func seedUser(t *testing.T, db bun.IDB, username string, role auth.UserRole, active bool) *auth.User {
	t.Helper()

	user := &auth.User{
		ID:           uuid.New(),
		Role:         role,
		Username:     username,
		Email:        username + "@bakery.test",
		PasswordHash: testPasswordHash(t),
		Active:       active,
	}

	_, err := db.NewInsert().Model(user).Exec(context.Background())
	require.NoError(t, err)

	return user
}

// harness wires the real stack over sqlite with a shared manual clock
type harness struct {
	db      *bun.DB
	clock   *testClock
	cfg     *testConfig
	repos   auth.RepositoryManager
	store   *auth.Sessions
	issuer  *auth.TokenServiceImpl
	manager *auth.SessionManager
	sink    *capturingSink
}

func newHarness(t *testing.T, cfgs ...*testConfig) *harness {
	t.Helper()

	cfg := newTestConfig()
	if len(cfgs) > 0 && cfgs[0] != nil {
		cfg = cfgs[0]
	}

	db := newTestDB(t)
	clock := newTestClock()
	logger := auth.NewZapLogger(nil)

	repos := auth.NewRepositoryManager(db, logger)
	store := repos.Sessions().WithClock(clock.Now)

	issuer, err := auth.NewTokenService(cfg)
	require.NoError(t, err)
	issuer.WithLogger(logger).WithTokenClock(clock.Now)

	sink := &capturingSink{}
	manager := auth.NewSessionManager(
		auth.NewCredentialVerifier(repos.Users()).WithLogger(logger),
		issuer,
		store,
		repos.Users(),
	).WithLogger(logger).WithActivitySink(sink).WithClock(clock.Now)

	return &harness{
		db:      db,
		clock:   clock,
		cfg:     cfg,
		repos:   repos,
		store:   store,
		issuer:  issuer,
		manager: manager,
		sink:    sink,
	}
}

func (h *harness) login(t *testing.T, user *auth.User, rememberMe bool) *auth.LoginResult {
	t.Helper()

	result, err := h.manager.Login(context.Background(), auth.LoginRequest{
		Identifier:    user.Username,
		Password:      testPassword,
		DeviceInfo:    auth.DeviceInfo{"user_agent": "test-agent"},
		OriginAddress: "10.0.0.7",
		RememberMe:    rememberMe,
	})
	require.NoError(t, err)

	return result
}

// testServer is a fiber backed router whose app can be driven with
// fiber's app.Test
type testServer struct {
	srv router.Server[*fiber.App]
	app *fiber.App
}

func newTestServer() *testServer {
	s := &testServer{}
	s.srv = router.NewFiberAdapter(func(a *fiber.App) *fiber.App {
		s.app = router.DefaultFiberOptions(fiber.New())
		return s.app
	})
	return s
}

func (s *testServer) Router() router.Router[*fiber.App] {
	return s.srv.Router()
}

// App returns the fiber app once every route is mounted
func (s *testServer) App() *fiber.App {
	if initer, ok := s.srv.(interface{ Init() }); ok {
		initer.Init()
	}
	return s.app
}
