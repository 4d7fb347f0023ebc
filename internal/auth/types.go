package auth

import "errors"

// Role is the access level granted to an operator account.
type Role string

const (
	// RoleViewer can read state but not change it.
	RoleViewer Role = "viewer"

	// RoleOperator can read and control the bridge.
	RoleOperator Role = "operator"
)

// ValidRoles lists every assignable role, lowest privilege first.
var ValidRoles = []Role{RoleViewer, RoleOperator}

// IsValid reports whether r is a known role.
func (r Role) IsValid() bool {
	for _, v := range ValidRoles {
		if r == v {
			return true
		}
	}
	return false
}

// Account is one configured operator login.
type Account struct {
	Username     string `json:"username"`
	PasswordHash string `json:"-"` // never serialised
	Role         Role   `json:"role"`
}

// Sentinel errors for auth operations.
var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrTokenInvalid       = errors.New("invalid token")
	ErrInvalidHash        = errors.New("invalid password hash")
	ErrMissingSecret      = errors.New("jwt secret is required")
	ErrNoAccounts         = errors.New("at least one account is required")
	ErrForbidden          = errors.New("insufficient permissions")
)
