package payments

import (
	"database/sql"
	"time"

	"github.com/shopspring/decimal"
)

const (
	StatusCompleted         = "COMPLETED"
	StatusRefunded          = "REFUNDED"
	StatusPartiallyRefunded = "PARTIALLY_REFUNDED"
)

// Payment is one settlement against a loan. The amount is broken down
// into the charge kinds it covers; the parts must sum to the amount.
type Payment struct {
	PaymentID       int64
	PaymentULID     string
	TransactionID   int64
	Amount          decimal.Decimal
	LateFee         decimal.Decimal
	DamageCharge    decimal.Decimal
	SecurityDeposit decimal.Decimal
	Method          string
	Status          string
	RefundAmount    decimal.Decimal
	RefundReason    sql.NullString
	CreatedAt       time.Time
}

type Filter struct {
	TransactionULID string
	UserID          string
	Status          string
	Limit           int
	Offset          int
}

func validMethod(m string) bool {
	switch m {
	case "CASH", "CARD", "ONLINE":
		return true
	}
	return false
}
