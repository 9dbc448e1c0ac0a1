// Package guard decides whether a protected screen may render, based on the
// session state.
package guard

import (
	"context"

	"github.com/leadline/go-crm-client/session"
)

// Decision is the outcome of a guard check.
type Decision int

const (
	// Wait means render a neutral waiting state and take no navigation
	// action; bootstrap has not finished yet.
	Wait Decision = iota
	// Allow means render the requested screen.
	Allow
	// RedirectLogin means the user is not authenticated; go to the login
	// screen.
	RedirectLogin
)

func (d Decision) String() string {
	switch d {
	case Wait:
		return "wait"
	case Allow:
		return "allow"
	case RedirectLogin:
		return "redirect-login"
	}
	return "unknown"
}

// Decide evaluates one session snapshot. While loading, no redirect is
// issued: redirecting before bootstrap completes would bounce a valid
// session to the login screen.
func Decide(state session.State) Decision {
	if state.Loading {
		return Wait
	}
	if !state.IsAuthenticated() {
		return RedirectLogin
	}
	return Allow
}

// Guard re-evaluates the decision whenever the session changes, so a session
// that expires mid-use is reflected shortly after the user record drops.
type Guard struct {
	sessions *session.Manager
	navigate session.Navigator
}

func New(sessions *session.Manager, navigate session.Navigator) *Guard {
	if navigate == nil {
		navigate = func(session.Route) {}
	}
	return &Guard{sessions: sessions, navigate: navigate}
}

// Check evaluates the current state, signalling the login redirect when
// access is denied.
func (g *Guard) Check() Decision {
	decision := Decide(g.sessions.State())
	if decision == RedirectLogin {
		g.navigate(session.RouteLogin)
	}
	return decision
}

// Watch blocks, re-running the check on every session transition until ctx
// is cancelled or the manager is closed. Only the transition into
// RedirectLogin fires the navigation signal, so an expired session redirects
// once rather than on every subsequent change.
func (g *Guard) Watch(ctx context.Context) {
	states, unsubscribe := g.sessions.Subscribe()
	defer unsubscribe()

	last := Decide(g.sessions.State())
	for {
		select {
		case <-ctx.Done():
			return
		case state, ok := <-states:
			if !ok {
				return
			}
			decision := Decide(state)
			if decision == RedirectLogin && last != RedirectLogin {
				g.navigate(session.RouteLogin)
			}
			last = decision
		}
	}
}
