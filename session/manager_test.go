package session_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leadline/go-crm-client/api"
	"github.com/leadline/go-crm-client/credentials"
	"github.com/leadline/go-crm-client/credentials/storefakes"
	"github.com/leadline/go-crm-client/crm"
	"github.com/leadline/go-crm-client/crmtest"
	apperrors "github.com/leadline/go-crm-client/internal/errors"
	"github.com/leadline/go-crm-client/session"
)

const (
	testUserName     = "Jane Doe"
	testUserEmail    = "jane.doe@example.com"
	testUserPassword = "password123"
)

// routeRecorder captures navigation signals.
type routeRecorder struct {
	mu     sync.Mutex
	routes []session.Route
}

func (r *routeRecorder) navigate(route session.Route) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.routes = append(r.routes, route)
}

func (r *routeRecorder) all() []session.Route {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]session.Route(nil), r.routes...)
}

type testFixture struct {
	backend *crmtest.Server
	store   *storefakes.FakeStore
	api     *api.Client
	manager *session.Manager
	routes  *routeRecorder
	user    crm.User
}

func setupTestFixture(t *testing.T) *testFixture {
	t.Helper()

	backend := crmtest.New()
	user := backend.AddUser(testUserName, testUserEmail, testUserPassword, crm.RoleSales)

	ts := httptest.NewServer(backend.Handler())
	t.Cleanup(ts.Close)

	store := storefakes.NewFakeStore()
	routes := &routeRecorder{}

	var manager *session.Manager
	apiClient, err := api.New(ts.URL, store, api.WithOnAuthExpire(func() {
		if manager != nil {
			manager.HandleSessionExpired()
		}
	}))
	require.NoError(t, err)

	manager, err = session.NewManager(session.Deps{
		Auth:        crm.NewAuthService(apiClient),
		Credentials: store,
	}, session.WithNavigator(routes.navigate))
	require.NoError(t, err)
	t.Cleanup(manager.Close)

	return &testFixture{
		backend: backend,
		store:   store,
		api:     apiClient,
		manager: manager,
		routes:  routes,
		user:    user,
	}
}

func TestLoginSuccess(t *testing.T) {
	f := setupTestFixture(t)

	err := f.manager.Login(context.Background(), testUserEmail, testUserPassword)
	require.NoError(t, err)

	state := f.manager.State()
	require.NotNil(t, state.User)
	assert.Equal(t, testUserName, state.User.Name)
	assert.True(t, state.IsAuthenticated())
	assert.False(t, state.Loading)

	creds, err := f.store.Get()
	require.NoError(t, err)
	assert.Equal(t, state.AccessToken, creds.AccessToken)
	assert.NotEmpty(t, creds.RefreshToken)

	assert.Equal(t, []session.Route{session.RouteDashboard}, f.routes.all())
}

func TestLoginPersistsExactTokenPair(t *testing.T) {
	// Against a stub returning a fixed pair, the persisted access token is
	// exactly what the server issued.
	mux := http.NewServeMux()
	mux.HandleFunc("POST /auth/login", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"token":"T1","refreshToken":"R1","user":{"_id":"1","name":"A"}}`))
	})
	ts := httptest.NewServer(mux)
	t.Cleanup(ts.Close)

	store := storefakes.NewFakeStore()
	apiClient, err := api.New(ts.URL, store)
	require.NoError(t, err)

	routes := &routeRecorder{}
	manager, err := session.NewManager(session.Deps{
		Auth:        crm.NewAuthService(apiClient),
		Credentials: store,
	}, session.WithNavigator(routes.navigate))
	require.NoError(t, err)
	t.Cleanup(manager.Close)

	require.NoError(t, manager.Login(context.Background(), "a@b.com", "pw"))

	assert.Equal(t, "A", manager.State().User.Name)
	creds, _ := store.Get()
	assert.Equal(t, "T1", creds.AccessToken)
	assert.Equal(t, "R1", creds.RefreshToken)
	assert.Equal(t, []session.Route{session.RouteDashboard}, routes.all())
}

func TestLoginFailureLeavesSessionUnchanged(t *testing.T) {
	f := setupTestFixture(t)

	err := f.manager.Login(context.Background(), testUserEmail, "wrong-password")
	require.Error(t, err)

	var apiErr *api.Error
	require.ErrorAs(t, err, &apiErr)
	assert.Equal(t, "invalid credentials", apiErr.Message, "server message surfaced verbatim")

	state := f.manager.State()
	assert.Nil(t, state.User)
	assert.False(t, state.IsAuthenticated())
	assert.False(t, state.Loading, "loading released on failure")

	creds, _ := f.store.Get()
	assert.True(t, creds.IsZero())
	assert.Empty(t, f.routes.all())
}

func TestBootstrapRestoresSession(t *testing.T) {
	f := setupTestFixture(t)

	access, refresh := f.backend.IssueTokens(f.user.ID)
	require.NoError(t, f.store.Set(credentials.Credentials{AccessToken: access, RefreshToken: refresh}))

	f.manager.Bootstrap(context.Background())

	state := f.manager.State()
	require.NotNil(t, state.User)
	assert.Equal(t, testUserEmail, state.User.Email)
	assert.False(t, state.Loading)
}

func TestBootstrapWithoutCredentials(t *testing.T) {
	f := setupTestFixture(t)

	f.manager.Bootstrap(context.Background())

	state := f.manager.State()
	assert.Nil(t, state.User)
	assert.False(t, state.Loading)
}

func TestBootstrapWithInvalidToken(t *testing.T) {
	// A persisted token the profile endpoint rejects ends with no user, no
	// loading flag, and no persisted tokens.
	f := setupTestFixture(t)

	require.NoError(t, f.store.Set(credentials.Credentials{AccessToken: "garbage"}))

	f.manager.Bootstrap(context.Background())

	state := f.manager.State()
	assert.Nil(t, state.User)
	assert.False(t, state.Loading)

	creds, _ := f.store.Get()
	assert.True(t, creds.IsZero())
}

func TestBootstrapRefreshesExpiredToken(t *testing.T) {
	// An expired access token with a live refresh token is recovered by
	// the transport's own refresh path; bootstrap still lands logged in.
	f := setupTestFixture(t)

	f.backend.TokenTTL = -time.Minute
	access, refresh := f.backend.IssueTokens(f.user.ID)
	f.backend.TokenTTL = time.Hour
	require.NoError(t, f.store.Set(credentials.Credentials{AccessToken: access, RefreshToken: refresh}))

	f.manager.Bootstrap(context.Background())

	state := f.manager.State()
	require.NotNil(t, state.User)
	assert.Equal(t, testUserEmail, state.User.Email)
	assert.Equal(t, 1, f.backend.RefreshCalls)

	creds, _ := f.store.Get()
	assert.NotEqual(t, access, creds.AccessToken, "rotated pair persisted")
	assert.Equal(t, creds.AccessToken, state.AccessToken, "manager re-reads the rotated token")
}

func TestLogoutIdempotent(t *testing.T) {
	f := setupTestFixture(t)

	f.manager.Logout(context.Background())
	f.manager.Logout(context.Background())

	state := f.manager.State()
	assert.Nil(t, state.User)
	assert.False(t, state.Loading)

	creds, _ := f.store.Get()
	assert.True(t, creds.IsZero())
	assert.Equal(t, []session.Route{session.RouteLogin, session.RouteLogin}, f.routes.all())
}

func TestLogoutClearsSessionEvenIfRemoteFails(t *testing.T) {
	f := setupTestFixture(t)
	require.NoError(t, f.manager.Login(context.Background(), testUserEmail, testUserPassword))

	// Invalidate the stored pair so the remote logout call is rejected.
	require.NoError(t, f.store.Set(credentials.Credentials{AccessToken: "garbage"}))

	f.manager.Logout(context.Background())

	state := f.manager.State()
	assert.Nil(t, state.User)
	creds, _ := f.store.Get()
	assert.True(t, creds.IsZero())
}

func TestIsAuthenticatedAlwaysDerived(t *testing.T) {
	f := setupTestFixture(t)
	ctx := context.Background()

	check := func() {
		state := f.manager.State()
		assert.Equal(t, state.User != nil, state.IsAuthenticated())
	}

	check()
	f.manager.Bootstrap(ctx)
	check()
	require.NoError(t, f.manager.Login(ctx, testUserEmail, testUserPassword))
	check()
	_, err := f.manager.UpdateProfile(ctx, crm.ProfilePatch{})
	require.NoError(t, err)
	check()
	f.manager.Logout(ctx)
	check()
}

func TestUpdateProfileRequiresSession(t *testing.T) {
	f := setupTestFixture(t)

	_, err := f.manager.UpdateProfile(context.Background(), crm.ProfilePatch{})
	assert.ErrorIs(t, err, apperrors.ErrUnauthenticated)
}

func TestUpdateProfileReplacesUserWholesale(t *testing.T) {
	f := setupTestFixture(t)
	ctx := context.Background()
	require.NoError(t, f.manager.Login(ctx, testUserEmail, testUserPassword))

	before := f.manager.State().User
	newName := "Jane Smith"
	updated, err := f.manager.UpdateProfile(ctx, crm.ProfilePatch{Name: &newName})
	require.NoError(t, err)

	state := f.manager.State()
	assert.NotSame(t, before, state.User, "profile replaced, not mutated")
	assert.Equal(t, newName, state.User.Name)
	assert.Equal(t, updated, state.User)
}

func TestRegisterDoesNotEstablishSession(t *testing.T) {
	f := setupTestFixture(t)

	user, err := f.manager.Register(context.Background(), "John", "Smith", "john.smith@example.com", "pw12345")
	require.NoError(t, err)
	assert.Equal(t, "john.smith@example.com", user.Email)

	state := f.manager.State()
	assert.Nil(t, state.User)
	creds, _ := f.store.Get()
	assert.True(t, creds.IsZero())
	assert.Equal(t, []session.Route{session.RouteLogin}, f.routes.all())
}

func TestSessionExpiryMidUseDropsUser(t *testing.T) {
	// A failed request elsewhere expires the session: the manager's user
	// transitions to nil and the login redirect fires once.
	f := setupTestFixture(t)
	ctx := context.Background()
	require.NoError(t, f.manager.Login(ctx, testUserEmail, testUserPassword))

	// Expire both halves of the pair.
	require.NoError(t, f.store.Set(credentials.Credentials{AccessToken: "garbage", RefreshToken: "garbage"}))

	clients := crm.NewClientsService(f.api)
	_, err := clients.List(ctx, crm.ListParams{Page: 1, Limit: 10})
	require.Error(t, err)
	assert.ErrorIs(t, err, apperrors.ErrSessionExpired)

	state := f.manager.State()
	assert.Nil(t, state.User)
	assert.False(t, state.IsAuthenticated())
	assert.Equal(t, []session.Route{session.RouteDashboard, session.RouteLogin}, f.routes.all())
}

func TestSubscribeSeesTransitions(t *testing.T) {
	f := setupTestFixture(t)
	ctx := context.Background()

	states, unsubscribe := f.manager.Subscribe()
	defer unsubscribe()

	require.NoError(t, f.manager.Login(ctx, testUserEmail, testUserPassword))

	// The channel coalesces; the latest snapshot reflects the login.
	var last session.State
	for {
		select {
		case state := <-states:
			last = state
			if state.IsAuthenticated() && !state.Loading {
				assert.Equal(t, testUserEmail, last.User.Email)
				return
			}
		case <-time.After(time.Second):
			t.Fatal("timed out waiting for login transition")
		}
	}
}

func TestNewManagerValidatesDeps(t *testing.T) {
	_, err := session.NewManager(session.Deps{})
	require.Error(t, err)

	_, err = session.NewManager(session.Deps{Credentials: storefakes.NewFakeStore()})
	require.Error(t, err)
}
