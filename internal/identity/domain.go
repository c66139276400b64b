package identity

import "time"

// Role is the closed set of roles a profile can hold. There is no hierarchy
// object; checks are plain set membership.
type Role string

const (
	RoleCitizen Role = "citizen"
	RoleAgent   Role = "agent"
	RoleAdmin   Role = "admin"
)

// Valid reports whether the role is one of the three known values.
func (r Role) Valid() bool {
	switch r {
	case RoleCitizen, RoleAgent, RoleAdmin:
		return true
	}
	return false
}

// In reports whether the role is a member of the allowed set.
func (r Role) In(allowed ...Role) bool {
	for _, a := range allowed {
		if r == a {
			return true
		}
	}
	return false
}

// IsStaff reports whether the role grants back-office access (agent or admin).
func (r Role) IsStaff() bool {
	return r == RoleAgent || r == RoleAdmin
}

// Profile is the identity record bound to an authenticated account.
// Exactly one profile exists per account; it is created on first login.
type Profile struct {
	ID         string
	FullName   string
	Phone      *string
	NationalID *string
	Role       Role
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// ProfileUpdate carries citizen-editable profile fields. Nil means unchanged.
type ProfileUpdate struct {
	FullName   *string
	Phone      *string
	NationalID *string
}
