package api

import (
	"context"
	"net/http"

	"github.com/lhajoosten/trackerctl/internal/rbac"
)

// PermissionsService drives the permission catalog endpoints.
type PermissionsService struct {
	c *Client
}

// PermissionCreate is the payload for creating a permission.
type PermissionCreate struct {
	Name        string `json:"name"`
	Resource    string `json:"resource"`
	Action      string `json:"action"`
	Description string `json:"description,omitempty"`
}

// PermissionUpdate patches a permission. Nil fields are left untouched.
type PermissionUpdate struct {
	Name        *string `json:"name,omitempty"`
	Resource    *string `json:"resource,omitempty"`
	Action      *string `json:"action,omitempty"`
	Description *string `json:"description,omitempty"`
}

func (s *PermissionsService) List(ctx context.Context) ([]rbac.Permission, error) {
	var perms []rbac.Permission
	if err := s.c.do(ctx, http.MethodGet, "/permissions", nil, &perms); err != nil {
		return nil, err
	}
	return perms, nil
}

func (s *PermissionsService) Get(ctx context.Context, permissionID string) (*rbac.Permission, error) {
	var perm rbac.Permission
	if err := s.c.do(ctx, http.MethodGet, "/permissions/"+permissionID, nil, &perm); err != nil {
		return nil, err
	}
	return &perm, nil
}

func (s *PermissionsService) Create(ctx context.Context, in PermissionCreate) (*rbac.Permission, error) {
	var perm rbac.Permission
	if err := s.c.do(ctx, http.MethodPost, "/permissions", in, &perm); err != nil {
		return nil, err
	}
	return &perm, nil
}

func (s *PermissionsService) Update(ctx context.Context, permissionID string, in PermissionUpdate) (*rbac.Permission, error) {
	var perm rbac.Permission
	if err := s.c.do(ctx, http.MethodPut, "/permissions/"+permissionID, in, &perm); err != nil {
		return nil, err
	}
	return &perm, nil
}

func (s *PermissionsService) Delete(ctx context.Context, permissionID string) error {
	return s.c.do(ctx, http.MethodDelete, "/permissions/"+permissionID, nil, nil)
}
