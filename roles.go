package campus

import "strings"

// Role is the portal role carried by a Profile.
type Role string

const (
	// RoleStudent is a regular member (aluno)
	RoleStudent Role = "student"
	// RoleAdmin can access the admin area
	RoleAdmin Role = "admin"
)

// IsValid checks if the role is one of the predefined roles
func (r Role) IsValid() bool {
	switch r {
	case RoleStudent, RoleAdmin:
		return true
	default:
		return false
	}
}

// Label returns the display name used by the shells.
func (r Role) Label() string {
	switch r {
	case RoleAdmin:
		return "Administrador"
	case RoleStudent:
		return "Aluno"
	default:
		return ""
	}
}

// IsAtLeast checks if this role meets the minimum required level
func (r Role) IsAtLeast(minRole Role) bool {
	roleHierarchy := map[Role]int{
		RoleStudent: 0,
		RoleAdmin:   1,
	}

	currentLevel, exists := roleHierarchy[r]
	if !exists {
		return false
	}

	minLevel, exists := roleHierarchy[minRole]
	if !exists {
		return false
	}

	return currentLevel >= minLevel
}

// GetAllRoles returns all predefined roles in hierarchical order
func GetAllRoles() []Role {
	return []Role{
		RoleStudent,
		RoleAdmin,
	}
}

// ParseRole normalizes a backend role value. Legacy rows use "tipo" values
// in Portuguese (aluno, administrador).
func ParseRole(raw string) (Role, bool) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "admin", "administrador", "administrator":
		return RoleAdmin, true
	case "student", "aluno", "estudante":
		return RoleStudent, true
	default:
		return Role(raw), false
	}
}
