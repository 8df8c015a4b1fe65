package books

import (
	"time"

	"github.com/shopspring/decimal"
)

// Copy status enum. AVAILABLE<->ISSUED flips happen only through the
// circulation flow; DAMAGED/LOST/MAINTENANCE are set by staff.
const (
	CopyAvailable   = "AVAILABLE"
	CopyIssued      = "ISSUED"
	CopyDamaged     = "DAMAGED"
	CopyLost        = "LOST"
	CopyMaintenance = "MAINTENANCE"
)

const (
	CondNew  = "NEW"
	CondGood = "GOOD"
	CondFair = "FAIR"
	CondPoor = "POOR"
)

// Book is the catalog entry. total_copies/available_copies are derived
// counters and move only together with a copy-row mutation in the same
// transaction.
type Book struct {
	BookID          int64
	BookULID        string
	ISBN            string
	Title           string
	Author          string
	Publisher       string
	TotalCopies     int
	AvailableCopies int
	LoanPeriodDays  int
	FinePerDay      decimal.Decimal
	MaxRenewals     int
	SecurityDeposit decimal.Decimal
	IsActive        bool
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// BookCopy is one physical unit.
type BookCopy struct {
	CopyID     int64
	BookID     int64
	CopyNumber int
	Barcode    string
	Status     string
	Condition  string
	CreatedAt  time.Time
}

type Filter struct {
	Query      string // folded before it reaches the store
	ActiveOnly bool
	Limit      int
	Offset     int
}

func ValidCopyStatus(s string) bool {
	switch s {
	case CopyAvailable, CopyIssued, CopyDamaged, CopyLost, CopyMaintenance:
		return true
	}
	return false
}

func ValidCondition(s string) bool {
	switch s {
	case CondNew, CondGood, CondFair, CondPoor:
		return true
	}
	return false
}
