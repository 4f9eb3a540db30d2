package users

import (
	"errors"
	"time"
)

var (
	ErrNotFound       = errors.New("users: not found")
	ErrEmailTaken     = errors.New("users: email already registered")
	ErrWeakPassword   = errors.New("users: password too short")
	ErrMissingDetails = errors.New("users: email and name required")
)

// User represents a user account for management.
type User struct {
	ID        int64     `json:"id"`
	Email     string    `json:"email"`
	Name      string    `json:"name"`
	IsActive  bool      `json:"is_active"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// NewUserInput carries the fields needed to provision an account.
type NewUserInput struct {
	Email    string
	Name     string
	Password string
}
