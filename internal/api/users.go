package api

import (
	"context"
	"net/http"

	"github.com/lhajoosten/trackerctl/internal/rbac"
)

// UsersService drives the user CRUD and role-assignment endpoints.
type UsersService struct {
	c *Client
}

// UserCreate is the payload for creating a user.
type UserCreate struct {
	Email    string `json:"email"`
	Username string `json:"username"`
	Password string `json:"password"`
}

// UserUpdate patches a user. Nil fields are left untouched.
type UserUpdate struct {
	Email    *string `json:"email,omitempty"`
	Username *string `json:"username,omitempty"`
	IsActive *bool   `json:"is_active,omitempty"`
}

// PasswordUpdate changes the user's password.
type PasswordUpdate struct {
	CurrentPassword string `json:"current_password"`
	NewPassword     string `json:"new_password"`
}

type assignRolesRequest struct {
	RoleIDs []string `json:"role_ids"`
}

func (s *UsersService) List(ctx context.Context) ([]rbac.User, error) {
	var users []rbac.User
	if err := s.c.do(ctx, http.MethodGet, "/users", nil, &users); err != nil {
		return nil, err
	}
	return users, nil
}

func (s *UsersService) Get(ctx context.Context, userID string) (*rbac.User, error) {
	var user rbac.User
	if err := s.c.do(ctx, http.MethodGet, "/users/"+userID, nil, &user); err != nil {
		return nil, err
	}
	return &user, nil
}

func (s *UsersService) Create(ctx context.Context, in UserCreate) (*rbac.User, error) {
	var user rbac.User
	if err := s.c.do(ctx, http.MethodPost, "/users", in, &user); err != nil {
		return nil, err
	}
	return &user, nil
}

func (s *UsersService) Update(ctx context.Context, userID string, in UserUpdate) (*rbac.User, error) {
	var user rbac.User
	if err := s.c.do(ctx, http.MethodPut, "/users/"+userID, in, &user); err != nil {
		return nil, err
	}
	return &user, nil
}

func (s *UsersService) Delete(ctx context.Context, userID string) error {
	return s.c.do(ctx, http.MethodDelete, "/users/"+userID, nil, nil)
}

// AssignRoles replaces the user's role set and returns the updated user.
func (s *UsersService) AssignRoles(ctx context.Context, userID string, roleIDs []string) (*rbac.User, error) {
	var user rbac.User
	if err := s.c.do(ctx, http.MethodPost, "/users/"+userID+"/roles", assignRolesRequest{RoleIDs: roleIDs}, &user); err != nil {
		return nil, err
	}
	return &user, nil
}

func (s *UsersService) UpdatePassword(ctx context.Context, userID string, in PasswordUpdate) error {
	return s.c.do(ctx, http.MethodPut, "/users/"+userID+"/password", in, nil)
}
