package reports

import (
	"time"

	"github.com/shopspring/decimal"
)

// DashboardResponse is the front-desk summary: collection size,
// membership and circulation at a glance.
type DashboardResponse struct {
	TotalBooks       int             `json:"total_books"`
	TotalCopies      int             `json:"total_copies"`
	AvailableCopies  int             `json:"available_copies"`
	TotalUsers       int             `json:"total_users"`
	ActiveUsers      int             `json:"active_users"`
	PendingApprovals int             `json:"pending_approvals"`
	ActiveLoans      int             `json:"active_loans"`
	OverdueLoans     int             `json:"overdue_loans"`
	PendingRequests  int             `json:"pending_requests"`
	OutstandingFines decimal.Decimal `json:"outstanding_fines"`
	NetCollected     decimal.Decimal `json:"net_collected"`
}

type MethodTotal struct {
	Method string          `json:"payment_method"`
	Count  int             `json:"count"`
	Amount decimal.Decimal `json:"amount"`
}

type FinancialResponse struct {
	From           time.Time       `json:"from"`
	To             time.Time       `json:"to"`
	PaymentCount   int             `json:"payment_count"`
	GrossCollected decimal.Decimal `json:"gross_collected"`
	TotalRefunded  decimal.Decimal `json:"total_refunded"`
	NetCollected   decimal.Decimal `json:"net_collected"`
	LateFees       decimal.Decimal `json:"late_fees"`
	DamageCharges  decimal.Decimal `json:"damage_charges"`
	ByMethod       []MethodTotal   `json:"by_method"`
}

type CirculationResponse struct {
	From            time.Time `json:"from"`
	To              time.Time `json:"to"`
	Issued          int       `json:"issued"`
	Returned        int       `json:"returned"`
	Renewals        int       `json:"renewals"`
	UniqueBorrowers int       `json:"unique_borrowers"`
}
