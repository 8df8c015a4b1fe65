package transactions

import (
	"time"

	"github.com/shopspring/decimal"
)

type IssueRequest struct {
	BookID         string     `json:"book_id" binding:"required"`
	UserID         string     `json:"user_id"`
	DueDate        *time.Time `json:"due_date"`
	IsHomeDelivery bool       `json:"is_home_delivery"`
	Notes          string     `json:"notes"`
}

type ReturnRequest struct {
	ReturnCondition string          `json:"return_condition"`
	DamageCharge    decimal.Decimal `json:"damage_charge"`
	Notes           string          `json:"notes"`
}

type RenewRequest struct {
	NewDueDate *time.Time `json:"new_due_date"`
}

type PayFineRequest struct {
	Amount decimal.Decimal `json:"amount" binding:"required"`
	Method string          `json:"payment_method" binding:"required"`
}

type TransactionResponse struct {
	TransactionID   string          `json:"transaction_id"`
	UserID          string          `json:"user_id"`
	BookID          string          `json:"book_id"`
	CopyBarcode     string          `json:"copy_barcode"`
	IssueDate       time.Time       `json:"issue_date"`
	DueDate         time.Time       `json:"due_date"`
	ReturnDate      *time.Time      `json:"return_date,omitempty"`
	Status          string          `json:"status"`
	RenewalCount    int             `json:"renewal_count"`
	FineAmount      decimal.Decimal `json:"fine_amount"`
	FinePaid        bool            `json:"fine_paid"`
	DamageCharge    decimal.Decimal `json:"damage_charge"`
	ReturnCondition string          `json:"return_condition,omitempty"`
	IsHomeDelivery  bool            `json:"is_home_delivery"`
	Notes           string          `json:"notes,omitempty"`
}

type ListResponse struct {
	Transactions []TransactionResponse `json:"transactions"`
	Total        int                   `json:"total"`
	Limit        int                   `json:"limit"`
	Offset       int                   `json:"offset"`
}

type FineResponse struct {
	TransactionID string          `json:"transaction_id"`
	FineAmount    decimal.Decimal `json:"fine_amount"`
	DaysOverdue   int             `json:"days_overdue"`
	FinePaid      bool            `json:"fine_paid"`
}

type OverdueItem struct {
	TransactionID string          `json:"transaction_id"`
	UserID        string          `json:"user_id"`
	UserName      string          `json:"user_name"`
	BookTitle     string          `json:"book_title"`
	DueDate       time.Time       `json:"due_date"`
	DaysOverdue   int             `json:"days_overdue"`
	FineAccrued   decimal.Decimal `json:"fine_accrued"`
}

type StatsResponse struct {
	ActiveLoans     int             `json:"active_loans"`
	OverdueLoans    int             `json:"overdue_loans"`
	ReturnedLoans   int             `json:"returned_loans"`
	TotalFines      decimal.Decimal `json:"total_fines"`
	OutstandingFine decimal.Decimal `json:"outstanding_fines"`
}

func toResponse(t *Transaction, bookULID, barcode string) TransactionResponse {
	r := TransactionResponse{
		TransactionID:  t.TransactionULID,
		UserID:         t.UserID,
		BookID:         bookULID,
		CopyBarcode:    barcode,
		IssueDate:      t.IssueDate,
		DueDate:        t.DueDate,
		Status:         t.Status,
		RenewalCount:   t.RenewalCount,
		FineAmount:     t.FineAmount,
		FinePaid:       t.FinePaid,
		DamageCharge:   t.DamageCharge,
		IsHomeDelivery: t.IsHomeDelivery,
	}
	if t.ReturnDate.Valid {
		rd := t.ReturnDate.Time
		r.ReturnDate = &rd
	}
	if t.ReturnCondition.Valid {
		r.ReturnCondition = t.ReturnCondition.String
	}
	if t.Notes.Valid {
		r.Notes = t.Notes.String
	}
	return r
}
