package api

import (
	"context"
	"net/http"

	"github.com/lhajoosten/trackerctl/internal/rbac"
)

// RolesService drives the role CRUD and permission-assignment endpoints.
type RolesService struct {
	c *Client
}

// RoleCreate is the payload for creating a role.
type RoleCreate struct {
	Name          string   `json:"name"`
	Description   string   `json:"description,omitempty"`
	PermissionIDs []string `json:"permission_ids,omitempty"`
}

// RoleUpdate patches a role. Nil fields are left untouched.
type RoleUpdate struct {
	Name          *string  `json:"name,omitempty"`
	Description   *string  `json:"description,omitempty"`
	PermissionIDs []string `json:"permission_ids,omitempty"`
}

type assignPermissionsRequest struct {
	PermissionIDs []string `json:"permission_ids"`
}

func (s *RolesService) List(ctx context.Context) ([]rbac.Role, error) {
	var roles []rbac.Role
	if err := s.c.do(ctx, http.MethodGet, "/roles", nil, &roles); err != nil {
		return nil, err
	}
	return roles, nil
}

func (s *RolesService) Get(ctx context.Context, roleID string) (*rbac.Role, error) {
	var role rbac.Role
	if err := s.c.do(ctx, http.MethodGet, "/roles/"+roleID, nil, &role); err != nil {
		return nil, err
	}
	return &role, nil
}

func (s *RolesService) Create(ctx context.Context, in RoleCreate) (*rbac.Role, error) {
	var role rbac.Role
	if err := s.c.do(ctx, http.MethodPost, "/roles", in, &role); err != nil {
		return nil, err
	}
	return &role, nil
}

func (s *RolesService) Update(ctx context.Context, roleID string, in RoleUpdate) (*rbac.Role, error) {
	var role rbac.Role
	if err := s.c.do(ctx, http.MethodPut, "/roles/"+roleID, in, &role); err != nil {
		return nil, err
	}
	return &role, nil
}

func (s *RolesService) Delete(ctx context.Context, roleID string) error {
	return s.c.do(ctx, http.MethodDelete, "/roles/"+roleID, nil, nil)
}

// AssignPermissions adds permissions to the role and returns the updated role.
func (s *RolesService) AssignPermissions(ctx context.Context, roleID string, permissionIDs []string) (*rbac.Role, error) {
	var role rbac.Role
	if err := s.c.do(ctx, http.MethodPost, "/roles/"+roleID+"/permissions", assignPermissionsRequest{PermissionIDs: permissionIDs}, &role); err != nil {
		return nil, err
	}
	return &role, nil
}

// RemovePermission detaches one permission and returns the updated role.
func (s *RolesService) RemovePermission(ctx context.Context, roleID, permissionID string) (*rbac.Role, error) {
	var role rbac.Role
	if err := s.c.do(ctx, http.MethodDelete, "/roles/"+roleID+"/permissions/"+permissionID, nil, &role); err != nil {
		return nil, err
	}
	return &role, nil
}
