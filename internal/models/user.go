package models

import (
	"time"

	"github.com/lib/pq"
)

// User represents a portal account (a tenant of the boarding house).
type User struct {
	BaseModel

	Email    string `json:"email" db:"email"`
	Username string `json:"username" db:"username"`

	PasswordHash string `json:"-" db:"password_hash"`

	// Roles drive policy selection: the evaluator picks the matching
	// WifiPolicy with the highest priority among these.
	Roles pq.StringArray `json:"roles" db:"roles"`

	IsAdmin  bool `json:"isAdmin" db:"is_admin"`
	IsActive bool `json:"isActive" db:"is_active"`

	LastLoginAt *time.Time `json:"lastLoginAt,omitempty" db:"last_login_at"`
}

// HasRole reports whether the user carries the given role.
func (u *User) HasRole(role string) bool {
	for _, r := range u.Roles {
		if r == role {
			return true
		}
	}
	return false
}
