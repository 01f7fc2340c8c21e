package model

import (
	"time"

	"github.com/iliyamo/segregate/internal/policy"
)

// User represents a credential record as stored in the `users` table.
// Records are created at signup (or by an admin) and only their role is
// ever changed afterwards.
//
// Fields:
//
//	ID           – primary key identifier of the user.
//	Name         – display name, 2..100 characters.
//	Email        – unique, lower-cased email address.
//	PasswordHash – bcrypt hash; never leaves the server.
//	Role         – user, volunteer or admin.
//	CreatedAt    – timestamp of creation.
//	UpdatedAt    – timestamp of the last role change.
type User struct {
	ID           uint64
	Name         string
	Email        string
	PasswordHash string
	Role         policy.Role
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// PublicUser is the JSON view of a User. It has no password field, so a
// response can never leak the hash.
type PublicUser struct {
	ID        uint64      `json:"id"`
	Name      string      `json:"name"`
	Email     string      `json:"email"`
	Role      policy.Role `json:"role"`
	CreatedAt time.Time   `json:"createdAt"`
}

func (u User) Public() PublicUser {
	return PublicUser{ID: u.ID, Name: u.Name, Email: u.Email, Role: u.Role, CreatedAt: u.CreatedAt}
}
