// Package rbac evaluates capability questions against a user snapshot.
//
// All functions are pure: they perform no I/O and never mutate their
// arguments. The caller is responsible for keeping the snapshot fresh
// (re-fetch after role or permission changes).
package rbac

import "sort"

// PermissionAll is the sentinel returned by UserPermissions for superusers,
// meaning "every permission".
const PermissionAll = "*"

// HasPermission reports whether the user may execute the capability
// identified by name. Superusers pass every check.
func HasPermission(u *User, name string) bool {
	if u == nil {
		return false
	}
	if u.IsSuperuser {
		return true
	}
	for _, role := range u.Roles {
		for _, perm := range role.Permissions {
			if perm.Name == name {
				return true
			}
		}
	}
	return false
}

// UserPermissions returns the effective permission names for the user: the
// deduplicated union across all assigned roles, sorted for determinism.
// Superusers get the single PermissionAll sentinel.
func UserPermissions(u *User) []string {
	if u == nil {
		return []string{}
	}
	if u.IsSuperuser {
		return []string{PermissionAll}
	}
	set := make(map[string]struct{})
	for _, role := range u.Roles {
		for _, perm := range role.Permissions {
			set[perm.Name] = struct{}{}
		}
	}
	out := make([]string, 0, len(set))
	for name := range set {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// HasAnyPermission reports whether the user holds at least one of the named
// permissions.
func HasAnyPermission(u *User, names []string) bool {
	if u == nil {
		return false
	}
	if u.IsSuperuser {
		return true
	}
	for _, name := range names {
		if HasPermission(u, name) {
			return true
		}
	}
	return false
}

// HasAllPermissions reports whether the user holds every named permission.
// Vacuously true for an empty list.
func HasAllPermissions(u *User, names []string) bool {
	if u == nil {
		return false
	}
	if u.IsSuperuser {
		return true
	}
	for _, name := range names {
		if !HasPermission(u, name) {
			return false
		}
	}
	return true
}
