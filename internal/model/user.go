package model

import "time"

// Roles recognised by the portal. A client only ever sees its own projects;
// an admin sees every project and manages clients.
const (
	RoleClient = "client"
	RoleAdmin  = "admin"
)

// User represents a row of the `users` table as well as the identity object
// returned by the auth endpoints. PasswordHash never leaves the server.
//
// Fields:
//
//	ID        – uuid primary key.
//	Email     – unique, stored lower-cased.
//	Role      – RoleClient or RoleAdmin.
//	Company   – optional organisation name shown to admins.
//	Avatar    – optional avatar URL.
//	IsActive  – false once an admin deactivates the account; the record is kept.
//	LastLogin – set on every successful login.
type User struct {
	ID           string     `json:"id"`
	Name         string     `json:"name"`
	Email        string     `json:"email"`
	Role         string     `json:"role"`
	Company      string     `json:"company,omitempty"`
	Avatar       string     `json:"avatar,omitempty"`
	IsActive     bool       `json:"isActive"`
	LastLogin    *time.Time `json:"lastLogin,omitempty"`
	PasswordHash string     `json:"-"`
	CreatedAt    time.Time  `json:"createdAt"`
}

// IsAdmin reports whether u carries the admin role.
func (u User) IsAdmin() bool { return u.Role == RoleAdmin }

// Summary returns the partial user embedded into admin project listings.
func (u User) Summary() ClientSummary {
	return ClientSummary{ID: u.ID, Name: u.Name, Email: u.Email, Company: u.Company}
}

// ValidRole reports whether r is one of the known roles.
func ValidRole(r string) bool { return r == RoleClient || r == RoleAdmin }

// RefreshToken models an entry in the `refresh_tokens` table. Only the
// SHA-256 hash of the raw token is stored.
type RefreshToken struct {
	ID        string
	UserID    string
	TokenHash string
	ExpiresAt time.Time
	RevokedAt *time.Time
	CreatedAt time.Time
}
