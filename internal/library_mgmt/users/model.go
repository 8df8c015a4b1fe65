package users

import "time"

// Status lifecycle: PENDING_APPROVAL -> ACTIVE -> SUSPENDED/INACTIVE.
// Only ACTIVE accounts may log in or transact. INACTIVE is the soft
// delete; the row is never removed.
const (
	StatusPendingApproval = "PENDING_APPROVAL"
	StatusActive          = "ACTIVE"
	StatusSuspended       = "SUSPENDED"
	StatusInactive        = "INACTIVE"
)

// User is one row of the users table.
type User struct {
	UserID       string
	Email        string
	PasswordHash string
	Name         string
	Role         string
	Status       string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// Search conditions for the user list.
type Filter struct {
	Role   string
	Status string
	Email  string
	Limit  int
	Offset int
}

func ValidStatus(s string) bool {
	switch s {
	case StatusPendingApproval, StatusActive, StatusSuspended, StatusInactive:
		return true
	}
	return false
}
