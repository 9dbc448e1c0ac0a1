// Package credentials defines the shared storage of the persisted
// access/refresh token pair. The HTTP transport and the session manager both
// read and write tokens through a single Store so they never disagree about
// the current credentials.
package credentials

// Credentials is the persisted token pair. Either token may be empty: an
// empty pair is the normal logged-out state, and an access token with no
// refresh token is valid but unrefreshable.
type Credentials struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
}

// IsZero reports whether no tokens are stored.
func (c Credentials) IsZero() bool {
	return c.AccessToken == "" && c.RefreshToken == ""
}

// Store is the single accessor for persisted credentials.
type Store interface {
	// Get returns the stored credentials. A missing pair is not an error;
	// it returns the zero value.
	Get() (Credentials, error)

	// Set replaces the stored credentials wholesale.
	Set(creds Credentials) error

	// Clear removes all stored credentials. Clearing an empty store is a
	// no-op, not an error.
	Clear() error
}
