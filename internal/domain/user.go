// Package domain contains core domain types for the CogniVyu server.
package domain

import (
	"time"
)

// User is an account that owns conversations.
type User struct {
	ID           int64     `json:"id"`
	Username     string    `json:"username"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"`
	IsVerified   bool      `json:"is_verified"`
	CreatedAt    time.Time `json:"created_at"`
}

// HasPassword reports whether the account can log in with a password.
// Accounts created through Google sign-in have no local password.
func (u *User) HasPassword() bool {
	return u.PasswordHash != ""
}
