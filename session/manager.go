// Package session owns "who is logged in right now" for a running client
// instance. The Manager is the only component that transitions session
// state; the transport and the route guard observe it through the shared
// credentials store and the Subscribe channel.
package session

import (
	"context"
	"sync"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"github.com/leadline/go-crm-client/credentials"
	"github.com/leadline/go-crm-client/crm"
	apperrors "github.com/leadline/go-crm-client/internal/errors"
)

// Route is a navigation target signalled by session transitions.
type Route string

const (
	RouteLogin     Route = "/login"
	RouteDashboard Route = "/dashboard"
)

// Navigator receives navigation signals. The view layer decides what
// "navigating" means; the Manager only signals.
type Navigator func(Route)

// State is a point-in-time snapshot of the session.
type State struct {
	User        *crm.User
	AccessToken string
	Loading     bool
}

// IsAuthenticated is always derived from the presence of a user record,
// never tracked separately.
func (s State) IsAuthenticated() bool {
	return s.User != nil
}

// AuthClient is the slice of the API the Manager needs. *crm.AuthService
// satisfies it.
type AuthClient interface {
	Login(ctx context.Context, email, password string) (*crm.AuthResponse, error)
	Register(ctx context.Context, req crm.RegisterRequest) (*crm.User, error)
	Profile(ctx context.Context) (*crm.User, error)
	UpdateProfile(ctx context.Context, patch crm.ProfilePatch) (*crm.User, error)
	Logout(ctx context.Context) error
}

// Deps holds the Manager's required collaborators.
type Deps struct {
	Auth        AuthClient
	Credentials credentials.Store
}

// Manager holds the session state for one client instance. It is built
// explicitly and passed by reference so tests can run several independent
// sessions side by side.
type Manager struct {
	deps     Deps
	navigate Navigator
	log      zerolog.Logger

	mu          sync.RWMutex
	user        *crm.User
	accessToken string
	loading     bool
	closed      bool
	watchers    map[int]chan State
	nextWatcher int
}

// Option configures a Manager.
type Option func(*Manager)

// WithNavigator sets the navigation signal receiver.
func WithNavigator(fn Navigator) Option {
	return func(m *Manager) { m.navigate = fn }
}

// WithLogger sets the structured logger.
func WithLogger(log zerolog.Logger) Option {
	return func(m *Manager) { m.log = log }
}

// NewManager creates a Manager. The session starts in the loading state so
// the route guard waits until Bootstrap has run.
func NewManager(deps Deps, options ...Option) (*Manager, error) {
	if deps.Auth == nil {
		return nil, errors.New("[NewManager] Auth client is required")
	}
	if deps.Credentials == nil {
		return nil, errors.New("[NewManager] Credentials store is required")
	}

	m := &Manager{
		deps:     deps,
		navigate: func(Route) {},
		log:      zerolog.Nop(),
		loading:  true,
		watchers: make(map[int]chan State),
	}
	for _, opt := range options {
		opt(m)
	}
	return m, nil
}

// State returns a snapshot of the current session.
func (m *Manager) State() State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return State{User: m.user, AccessToken: m.accessToken, Loading: m.loading}
}

// IsAuthenticated reports whether a user is logged in.
func (m *Manager) IsAuthenticated() bool {
	return m.State().IsAuthenticated()
}

// Subscribe returns a channel carrying state snapshots after every
// transition, and an unsubscribe function. The channel is buffered and
// coalescing: a slow reader sees the latest state, not every intermediate
// one.
func (m *Manager) Subscribe() (<-chan State, func()) {
	m.mu.Lock()
	defer m.mu.Unlock()

	id := m.nextWatcher
	m.nextWatcher++
	ch := make(chan State, 1)
	m.watchers[id] = ch

	unsubscribe := func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		if w, ok := m.watchers[id]; ok {
			delete(m.watchers, id)
			close(w)
		}
	}
	return ch, unsubscribe
}

// Close disposes the Manager: all subscriber channels are closed and further
// notifications stop. Session state itself is left as-is.
func (m *Manager) Close() {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return
	}
	m.closed = true
	for id, ch := range m.watchers {
		delete(m.watchers, id)
		close(ch)
	}
}

// Bootstrap restores a session from persisted credentials. Called once at
// startup. A missing or rejected token is not an error: the session simply
// ends up logged out. Loading always clears, whatever the outcome.
func (m *Manager) Bootstrap(ctx context.Context) {
	defer m.beginLoading()()

	creds, err := m.deps.Credentials.Get()
	if err != nil {
		m.log.Warn().Err(err).Msg("bootstrap: could not read stored credentials")
		m.setUser(nil, "")
		return
	}
	if creds.AccessToken == "" {
		m.setUser(nil, "")
		return
	}

	user, err := m.deps.Auth.Profile(ctx)
	if err != nil {
		// Not recoverable through the transport's own refresh path.
		m.log.Warn().Err(err).Msg("bootstrap: stored token rejected")
		if clearErr := m.deps.Credentials.Clear(); clearErr != nil {
			m.log.Error().Err(clearErr).Msg("bootstrap: failed to clear credentials")
		}
		m.setUser(nil, "")
		return
	}

	// The transport may have rotated the pair while fetching the profile;
	// re-read rather than trusting the value from before the call.
	creds, _ = m.deps.Credentials.Get()
	m.setUser(user, creds.AccessToken)
}

// Login authenticates and establishes the session. On failure the session
// is left unchanged and the server's error message is returned verbatim
// inside the error chain.
func (m *Manager) Login(ctx context.Context, email, password string) error {
	defer m.beginLoading()()

	resp, err := m.deps.Auth.Login(ctx, email, password)
	if err != nil {
		m.log.Debug().Err(err).Str("email", email).Msg("login failed")
		return err
	}

	if err := m.deps.Credentials.Set(credentials.Credentials{
		AccessToken:  resp.Token,
		RefreshToken: resp.RefreshToken,
	}); err != nil {
		return errors.Wrap(err, "[Manager.Login] persist credentials")
	}

	m.setUser(&resp.User, resp.Token)
	m.log.Info().Str("user_id", resp.User.ID).Msg("logged in")
	m.navigate(RouteDashboard)
	return nil
}

// Register creates an account. It does not establish a session; on success
// it signals navigation to the login screen.
func (m *Manager) Register(ctx context.Context, firstName, lastName, email, password string) (*crm.User, error) {
	defer m.beginLoading()()

	user, err := m.deps.Auth.Register(ctx, crm.RegisterRequest{
		FirstName: firstName,
		LastName:  lastName,
		Email:     email,
		Password:  password,
	})
	if err != nil {
		return nil, err
	}
	m.navigate(RouteLogin)
	return user, nil
}

// Logout ends the session. The remote call is best-effort: its failure is
// logged, never surfaced, and local state is cleared unconditionally.
// Calling Logout while already logged out is a no-op that still lands on
// the login route.
func (m *Manager) Logout(ctx context.Context) {
	defer m.beginLoading()()

	// Nothing to invalidate remotely when no tokens are held.
	creds, _ := m.deps.Credentials.Get()
	if m.IsAuthenticated() || !creds.IsZero() {
		if err := m.deps.Auth.Logout(ctx); err != nil {
			m.log.Warn().Err(err).Msg("remote logout failed")
		}
	}
	if err := m.deps.Credentials.Clear(); err != nil {
		m.log.Error().Err(err).Msg("failed to clear credentials on logout")
	}
	m.setUser(nil, "")
	m.navigate(RouteLogin)
}

// UpdateProfile sends a partial update and replaces the local profile with
// the server's response. Requires an authenticated session.
func (m *Manager) UpdateProfile(ctx context.Context, patch crm.ProfilePatch) (*crm.User, error) {
	if !m.IsAuthenticated() {
		return nil, apperrors.ErrUnauthenticated
	}
	defer m.beginLoading()()

	user, err := m.deps.Auth.UpdateProfile(ctx, patch)
	if err != nil {
		return nil, err
	}

	m.mu.Lock()
	m.user = user
	m.mu.Unlock()
	m.notify()
	return user, nil
}

// HandleSessionExpired drops the in-memory session after the transport
// reports an unrecoverable auth failure; the transport has already cleared
// the persisted credentials. Wire it to api.WithOnAuthExpire.
func (m *Manager) HandleSessionExpired() {
	m.log.Info().Msg("session expired")
	m.setUser(nil, "")
	m.navigate(RouteLogin)
}

// beginLoading raises the loading flag and returns the release. Callers
// defer the release so the flag cannot leak on any exit path, panics
// included.
func (m *Manager) beginLoading() func() {
	m.mu.Lock()
	m.loading = true
	m.mu.Unlock()
	m.notify()

	var once sync.Once
	return func() {
		once.Do(func() {
			m.mu.Lock()
			m.loading = false
			m.mu.Unlock()
			m.notify()
		})
	}
}

func (m *Manager) setUser(user *crm.User, accessToken string) {
	m.mu.Lock()
	m.user = user
	m.accessToken = accessToken
	m.mu.Unlock()
	m.notify()
}

// notify pushes the current state to all subscribers, replacing any unread
// snapshot.
func (m *Manager) notify() {
	state := m.State()
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return
	}
	for _, ch := range m.watchers {
		select {
		case ch <- state:
		default:
			select {
			case <-ch:
			default:
			}
			select {
			case ch <- state:
			default:
			}
		}
	}
}
