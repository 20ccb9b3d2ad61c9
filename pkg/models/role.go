package models

import (
	"errors"
	"fmt"
	"strings"
)

// ErrUnknownRole is returned when a role string does not name a team member.
var ErrUnknownRole = errors.New("unknown role")

// Role identifies a member of the team.
type Role string

const (
	// RoleCoordinator decomposes requests and evaluates results.
	RoleCoordinator Role = "coordinator"
	// RoleFrontend builds user-facing parts.
	RoleFrontend Role = "frontend"
	// RoleBackend builds server-side parts.
	RoleBackend Role = "backend"
)

// Valid returns true if the role is a known value.
func (r Role) Valid() bool {
	switch r {
	case RoleCoordinator, RoleFrontend, RoleBackend:
		return true
	default:
		return false
	}
}

// IsWorker returns true for roles that can be assigned subtasks.
func (r Role) IsWorker() bool {
	return r == RoleFrontend || r == RoleBackend
}

// WorkerRoles returns the assignable roles in a stable order.
func WorkerRoles() []Role {
	return []Role{RoleFrontend, RoleBackend}
}

var roleAliases = map[string]Role{
	"coordinator":  RoleCoordinator,
	"manager":      RoleCoordinator,
	"frontend":     RoleFrontend,
	"frontend_dev": RoleFrontend,
	"frontend-dev": RoleFrontend,
	"ui":           RoleFrontend,
	"backend":      RoleBackend,
	"backend_dev":  RoleBackend,
	"backend-dev":  RoleBackend,
	"api":          RoleBackend,
	"server":       RoleBackend,
}

// ParseRole maps a role name or a common alias to a Role.
func ParseRole(s string) (Role, error) {
	key := strings.ToLower(strings.TrimSpace(s))
	if r, ok := roleAliases[key]; ok {
		return r, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownRole, s)
}
