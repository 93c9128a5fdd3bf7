package model

import (
	"time"
)

// Role is the coarse identity role of a user account
type Role string

const (
	RoleCustomer Role = "customer"
	RoleVendor   Role = "vendor"
	RoleAdmin    Role = "admin"
)

// Valid reports whether r is a known role
func (r Role) Valid() bool {
	switch r {
	case RoleCustomer, RoleVendor, RoleAdmin:
		return true
	}
	return false
}

// User account as seen by the core. Credentials live with the identity provider.
type User struct {
	ID        uint64    `gorm:"primaryKey;autoIncrement;comment:user id" json:"id"`
	Username  string    `gorm:"type:varchar(50);uniqueIndex;not null;comment:login name" json:"username"`
	Email     string    `gorm:"type:varchar(100);uniqueIndex;not null;comment:email" json:"email"`
	FullName  string    `gorm:"type:varchar(100);not null;default:'';comment:display name" json:"full_name"`
	Phone     *string   `gorm:"type:varchar(20);comment:phone" json:"phone,omitempty"`
	Role      Role      `gorm:"type:varchar(20);not null;default:'customer';index;comment:customer, vendor or admin" json:"role"`
	Status    int8      `gorm:"type:tinyint;not null;default:1;comment:1 active, 2 disabled" json:"status"`
	CreatedAt time.Time `gorm:"type:timestamp;not null;default:CURRENT_TIMESTAMP;comment:created at" json:"created_at"`
	UpdatedAt time.Time `gorm:"type:timestamp;not null;default:CURRENT_TIMESTAMP ON UPDATE CURRENT_TIMESTAMP;comment:updated at" json:"updated_at"`
}

// TableName set name
func (User) TableName() string {
	return "users"
}

// UserStatus user status const
const (
	UserStatusActive   = 1
	UserStatusDisabled = 2
)

// IsActive check if user is active
func (u *User) IsActive() bool {
	return u.Status == UserStatusActive
}

// IsAdmin check if user is an administrator
func (u *User) IsAdmin() bool {
	return u.Role == RoleAdmin
}

// DisplayName returns the name shown next to the user's messages
func (u *User) DisplayName() string {
	if u.FullName != "" {
		return u.FullName
	}
	return u.Username
}
