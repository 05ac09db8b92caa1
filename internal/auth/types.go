package auth

import (
	"errors"
	"regexp"
)

var usernamePattern = regexp.MustCompile(`^[a-zA-Z0-9._-]{1,64}$`)

// IsValidUsername reports whether username is 1-64 characters of letters,
// digits, dots, hyphens and underscores.
func IsValidUsername(username string) bool {
	return usernamePattern.MatchString(username)
}

// Role is an authorisation tier for API users.
type Role string

const (
	// RoleViewer can read light state and history.
	RoleViewer Role = "viewer"

	// RoleOperator can also switch and dim lights.
	RoleOperator Role = "operator"

	// RoleAdmin can also force a gateway refresh and read the audit log.
	RoleAdmin Role = "admin"
)

// ValidRoles lists every Role.
var ValidRoles = []Role{RoleViewer, RoleOperator, RoleAdmin}

// IsValidRole reports whether r is one of ValidRoles.
func IsValidRole(r Role) bool {
	for _, v := range ValidRoles {
		if r == v {
			return true
		}
	}
	return false
}

// User is an API account loaded from configuration.
type User struct {
	Username     string `json:"username"`
	PasswordHash string `json:"-"`
	Role         Role   `json:"role"`
}

var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrInvalidUser        = errors.New("invalid user")
	ErrUsernameExists     = errors.New("username already exists")
	ErrTokenInvalid       = errors.New("invalid token")
	ErrForbidden          = errors.New("insufficient permissions")
)
