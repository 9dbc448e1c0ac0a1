package crm

import (
	"context"
	"fmt"

	"github.com/leadline/go-crm-client/api"
)

// CreateUserRequest creates a user (admin operation).
type CreateUserRequest struct {
	Name      string   `json:"name"`
	Email     string   `json:"email"`
	Password  string   `json:"password"`
	Role      UserRole `json:"role,omitempty"`
	CompanyID string   `json:"company_id,omitempty"`
}

// UpdateUserRequest is a partial user update.
type UpdateUserRequest struct {
	Name  string   `json:"name,omitempty"`
	Email string   `json:"email,omitempty"`
	Role  UserRole `json:"role,omitempty"`
}

type updatePasswordRequest struct {
	CurrentPassword string `json:"currentPassword"`
	NewPassword     string `json:"newPassword"`
}

// UsersService accesses the user collection.
type UsersService struct {
	api *api.Client
}

func NewUsersService(apiClient *api.Client) *UsersService {
	return &UsersService{api: apiClient}
}

func (s *UsersService) List(ctx context.Context, params ListParams) (*Page[User], error) {
	var page Page[User]
	if err := s.api.Get(ctx, "/users", params.values(), &page); err != nil {
		return nil, err
	}
	return &page, nil
}

func (s *UsersService) Get(ctx context.Context, id string) (*User, error) {
	var user User
	if err := s.api.Get(ctx, "/users/"+id, nil, &user); err != nil {
		return nil, err
	}
	return &user, nil
}

// Me returns the requesting user's own record.
func (s *UsersService) Me(ctx context.Context) (*User, error) {
	var user User
	if err := s.api.Get(ctx, "/users/me", nil, &user); err != nil {
		return nil, err
	}
	return &user, nil
}

func (s *UsersService) Create(ctx context.Context, req CreateUserRequest) (*User, error) {
	var user User
	if err := s.api.Post(ctx, "/users", req, &user); err != nil {
		return nil, err
	}
	return &user, nil
}

func (s *UsersService) Update(ctx context.Context, id string, req UpdateUserRequest) (*User, error) {
	var user User
	if err := s.api.Put(ctx, "/users/"+id, req, &user); err != nil {
		return nil, err
	}
	return &user, nil
}

// UpdatePassword changes a user's password. The current password is
// re-checked server-side.
func (s *UsersService) UpdatePassword(ctx context.Context, id, currentPassword, newPassword string) error {
	body := updatePasswordRequest{CurrentPassword: currentPassword, NewPassword: newPassword}
	return s.api.Put(ctx, fmt.Sprintf("/users/%s/password", id), body, nil)
}

func (s *UsersService) Delete(ctx context.Context, id string) error {
	return s.api.Delete(ctx, "/users/"+id)
}
