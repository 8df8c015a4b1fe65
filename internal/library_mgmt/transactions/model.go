package transactions

import (
	"database/sql"
	"time"

	"github.com/shopspring/decimal"
)

// Loan state machine:
//
//	ISSUED  -> RENEWED | OVERDUE | RETURNED
//	RENEWED -> RENEWED | OVERDUE | RETURNED
//	OVERDUE -> RETURNED
//
// RETURNED is terminal. Cancellation deletes the row and is allowed
// from any non-RETURNED state.
const (
	StatusIssued   = "ISSUED"
	StatusRenewed  = "RENEWED"
	StatusOverdue  = "OVERDUE"
	StatusReturned = "RETURNED"
)

// Transaction is one loan of one copy to one user.
type Transaction struct {
	TransactionID   int64
	TransactionULID string
	UserID          string
	BookID          int64
	CopyID          int64
	IssueDate       time.Time
	DueDate         time.Time
	ReturnDate      sql.NullTime
	Status          string
	RenewalCount    int
	FineAmount      decimal.Decimal
	FinePaid        bool
	DamageCharge    decimal.Decimal
	ReturnCondition sql.NullString
	IsHomeDelivery  bool
	Notes           sql.NullString
	CreatedAt       time.Time
}

type Filter struct {
	UserID   string
	BookULID string
	Status   string
	Limit    int
	Offset   int
}

func activeStatuses() []string { return []string{StatusIssued, StatusRenewed, StatusOverdue} }
