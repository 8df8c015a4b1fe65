package requests

import (
	"database/sql"
	"time"
)

// A request is decided exactly once: PENDING moves to APPROVED,
// REJECTED or CANCELLED and stays there.
const (
	StatusPending   = "PENDING"
	StatusApproved  = "APPROVED"
	StatusRejected  = "REJECTED"
	StatusCancelled = "CANCELLED"
)

type BorrowRequest struct {
	RequestID   int64
	RequestULID string
	UserID      string
	BookID      int64
	Status      string
	Notes       sql.NullString
	DecidedBy   sql.NullString
	DecidedAt   sql.NullTime
	CreatedAt   time.Time
}

type Filter struct {
	UserID string
	Status string
	Limit  int
	Offset int
}
