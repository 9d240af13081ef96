package permissions

import "errors"

var (
	// ErrRoleNotFound is returned by mutations referencing a missing role.
	ErrRoleNotFound = errors.New("role not found")

	// ErrUserNotFound is returned by mutations referencing a missing user.
	ErrUserNotFound = errors.New("user not found")

	// ErrPermissionNotFound is returned when a permission key has no
	// definition in the catalog.
	ErrPermissionNotFound = errors.New("permission not found")

	// ErrAssignmentNotFound is returned by store lookups for a missing
	// role assignment.
	ErrAssignmentNotFound = errors.New("role assignment not found")

	// ErrSystemRole is returned when a mutation targets a system role.
	ErrSystemRole = errors.New("cannot modify system role")

	// ErrRoleNotAssignable is returned when assigning a role whose
	// IsAssignable flag is false.
	ErrRoleNotAssignable = errors.New("role is not assignable")
)
