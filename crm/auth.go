package crm

import (
	"context"

	"github.com/leadline/go-crm-client/api"
)

// AuthResponse is the login endpoint's payload: a fresh token pair plus the
// authenticated user's profile.
type AuthResponse struct {
	Token        string `json:"token"`
	RefreshToken string `json:"refreshToken"`
	User         User   `json:"user"`
}

// RegisterRequest creates a new account. Registration returns no tokens; the
// user logs in afterwards.
type RegisterRequest struct {
	FirstName string `json:"firstName"`
	LastName  string `json:"lastName"`
	Email     string `json:"email"`
	Password  string `json:"password"`
}

// ProfilePatch is a partial profile update. Nil fields are left untouched by
// the server.
type ProfilePatch struct {
	Name  *string `json:"name,omitempty"`
	Email *string `json:"email,omitempty"`
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// AuthService calls the authentication endpoints. It does not persist tokens
// or own session state; that is the session manager's job.
type AuthService struct {
	api *api.Client
}

func NewAuthService(apiClient *api.Client) *AuthService {
	return &AuthService{api: apiClient}
}

// Login exchanges credentials for a token pair and the user's profile.
// Server-side failures (e.g. invalid credentials) surface the server's
// message verbatim through *api.Error.
func (s *AuthService) Login(ctx context.Context, email, password string) (*AuthResponse, error) {
	var resp AuthResponse
	if err := s.api.Post(ctx, "/auth/login", loginRequest{Email: email, Password: password}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Register creates an account and returns the new user's profile.
func (s *AuthService) Register(ctx context.Context, req RegisterRequest) (*User, error) {
	var user User
	if err := s.api.Post(ctx, "/auth/register", req, &user); err != nil {
		return nil, err
	}
	return &user, nil
}

// Profile fetches the authenticated user's profile.
func (s *AuthService) Profile(ctx context.Context) (*User, error) {
	var user User
	if err := s.api.Get(ctx, "/auth/profile", nil, &user); err != nil {
		return nil, err
	}
	return &user, nil
}

// UpdateProfile sends a partial update and returns the server's replacement
// profile.
func (s *AuthService) UpdateProfile(ctx context.Context, patch ProfilePatch) (*User, error) {
	var user User
	if err := s.api.Put(ctx, "/auth/profile", patch, &user); err != nil {
		return nil, err
	}
	return &user, nil
}

// Logout invalidates the session server-side. Callers treat failures as
// best-effort; local state is cleared regardless.
func (s *AuthService) Logout(ctx context.Context) error {
	return s.api.Post(ctx, "/auth/logout", nil, nil)
}
