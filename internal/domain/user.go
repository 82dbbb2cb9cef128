package domain

import "time"

// UserStatus represents lifecycle states for an ERP account.
type UserStatus string

const (
	UserStatusActive    UserStatus = "ACTIVE"
	UserStatusSuspended UserStatus = "SUSPENDED"
)

// User is an authenticated ERP account, scoped to one company (tenant).
type User struct {
	ID           string
	CompanyID    string
	Name         string
	Email        string
	PasswordHash string
	Role         string
	Status       UserStatus
	CreatedAt    time.Time
}
