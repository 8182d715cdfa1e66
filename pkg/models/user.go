package models

import (
	"slices"

	"github.com/google/uuid"
)

const (
	RoleSuperAdmin  = "SuperAdmin"
	RoleTenantAdmin = "TenantAdmin"
	RoleTenantUser  = "TenantUser"
)

// User is a human account. A nil TenantID marks a platform super-admin.
type User struct {
	ID           uuid.UUID  `db:"id"            json:"id"`
	TenantID     *uuid.UUID `db:"tenant_id"     json:"tenant_id,omitempty"`
	FirstName    string     `db:"first_name"    json:"first_name"`
	LastName     string     `db:"last_name"     json:"last_name"`
	Email        string     `db:"email"         json:"email"`
	PasswordHash string     `db:"password_hash" json:"-"`
	Roles        []string   `db:"roles"         json:"roles"`
	Audit
}

func (u *User) FullName() string {
	switch {
	case u.FirstName == "":
		return u.LastName
	case u.LastName == "":
		return u.FirstName
	}
	return u.FirstName + " " + u.LastName
}

func (u *User) HasRole(role string) bool {
	return slices.Contains(u.Roles, role)
}

// ValidRole reports whether role is one of the fixed platform roles.
func ValidRole(role string) bool {
	switch role {
	case RoleSuperAdmin, RoleTenantAdmin, RoleTenantUser:
		return true
	}
	return false
}
