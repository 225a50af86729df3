package model

import "time"

// User represents an account row in the `users` table.  Users are never
// hard-deleted; deactivation (IsActive=false) is the destructive operation.
//
// Fields:
//
//	ID           – numeric primary key.
//	UUID         – stable external identifier handed to clients.
//	Email        – unique, stored lower-cased.
//	Username     – unique; defaults to the email at registration.
//	PasswordHash – bcrypt hash, never serialized.
//	IsActive     – false once an administrator deactivates the account.
//	IsVerified   – email verification flag.
//	LastLogin    – time of the last successful authentication (nullable).
type User struct {
	ID           uint64     // users.id
	UUID         string     // users.uuid
	Email        string     // users.email
	Username     string     // users.username
	PasswordHash string     // users.password_hash
	FirstName    string     // users.first_name
	LastName     string     // users.last_name
	Phone        string     // users.phone
	Company      string     // users.company
	JobTitle     string     // users.job_title
	IsActive     bool       // users.is_active
	IsVerified   bool       // users.is_verified
	LastLogin    *time.Time // users.last_login (nullable)
	CreatedAt    time.Time  // users.created_at
	UpdatedAt    time.Time  // users.updated_at
}

// FullName joins first and last name.
func (u User) FullName() string {
	switch {
	case u.FirstName == "":
		return u.LastName
	case u.LastName == "":
		return u.FirstName
	}
	return u.FirstName + " " + u.LastName
}

// UserFilter narrows ListUsers.  A zero Limit means the repository default.
type UserFilter struct {
	Role     string
	IsActive *bool
	Offset   int
	Limit    int
}
