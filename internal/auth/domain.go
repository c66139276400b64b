package auth

import "time"

// Account is a login account. The profile (name, role) lives in
// internal/identity; the account only carries credentials.
type Account struct {
	ID           string
	Email        string
	PasswordHash string
	IsActive     bool
	CreatedAt    time.Time
	UpdatedAt    time.Time
}
