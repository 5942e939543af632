package models

import (
	"time"
)

// Role names understood by the API. The identity layer hands every request an
// actor with exactly one of these.
const (
	RoleAdmin    = "admin"
	RoleEmployee = "employee"
)

// User represents a person who can hold devices and perform actions
type User struct {
	ID           int64     `json:"id"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"` // Never expose in JSON
	Name         string    `json:"name"`
	Role         string    `json:"role"`
	IsActive     bool      `json:"is_active"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

// CreateUserRequest represents the request body for creating a new user
type CreateUserRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	Name     string `json:"name"`
	Role     string `json:"role"`
}

// UpdateUserRequest represents the request body for updating a user
type UpdateUserRequest struct {
	Name     *string `json:"name,omitempty"`
	Role     *string `json:"role,omitempty"`
	IsActive *bool   `json:"is_active,omitempty"`
}

// LoginRequest represents the request body for user login
type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// LoginResponse represents the response body for successful login
type LoginResponse struct {
	Token string `json:"token"`
	User  User   `json:"user"`
}

// IsValidRole checks if a role is one the system understands
func IsValidRole(role string) bool {
	return role == RoleAdmin || role == RoleEmployee
}

// Redacted returns a copy of the user with sensitive fields removed
func (u *User) Redacted() User {
	out := *u
	out.PasswordHash = ""
	return out
}

// Snapshot returns the fields worth recording in an audit entry
func (u *User) Snapshot() map[string]interface{} {
	return map[string]interface{}{
		"id":        u.ID,
		"email":     u.Email,
		"name":      u.Name,
		"role":      u.Role,
		"is_active": u.IsActive,
	}
}
