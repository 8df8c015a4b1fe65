package payments

import (
	"time"

	"github.com/shopspring/decimal"
)

type RecordRequest struct {
	TransactionID   string          `json:"transaction_id" binding:"required"`
	Amount          decimal.Decimal `json:"amount" binding:"required"`
	LateFee         decimal.Decimal `json:"late_fee"`
	DamageCharge    decimal.Decimal `json:"damage_charge"`
	SecurityDeposit decimal.Decimal `json:"security_deposit"`
	Method          string          `json:"payment_method" binding:"required"`
}

type RefundRequest struct {
	Amount decimal.Decimal `json:"amount" binding:"required"`
	Reason string          `json:"reason"`
}

type PaymentResponse struct {
	PaymentID       string          `json:"payment_id"`
	TransactionID   string          `json:"transaction_id"`
	UserID          string          `json:"user_id"`
	Amount          decimal.Decimal `json:"amount"`
	LateFee         decimal.Decimal `json:"late_fee"`
	DamageCharge    decimal.Decimal `json:"damage_charge"`
	SecurityDeposit decimal.Decimal `json:"security_deposit"`
	Method          string          `json:"payment_method"`
	Status          string          `json:"status"`
	RefundAmount    decimal.Decimal `json:"refund_amount"`
	RefundReason    string          `json:"refund_reason,omitempty"`
	CreatedAt       time.Time       `json:"created_at"`
}

type ListResponse struct {
	Payments []PaymentResponse `json:"payments"`
	Total    int               `json:"total"`
	Limit    int               `json:"limit"`
	Offset   int               `json:"offset"`
}

// BreakdownResponse is the money position of one loan: what it owes,
// what has been settled, and what remains.
type BreakdownResponse struct {
	TransactionID string          `json:"transaction_id"`
	FineAmount    decimal.Decimal `json:"fine_amount"`
	DamageCharge  decimal.Decimal `json:"damage_charge"`
	TotalDue      decimal.Decimal `json:"total_due"`
	TotalPaid     decimal.Decimal `json:"total_paid"`
	PendingAmount decimal.Decimal `json:"pending_amount"`
}

func toResponse(p *Payment, txnULID, userID string) PaymentResponse {
	r := PaymentResponse{
		PaymentID:       p.PaymentULID,
		TransactionID:   txnULID,
		UserID:          userID,
		Amount:          p.Amount,
		LateFee:         p.LateFee,
		DamageCharge:    p.DamageCharge,
		SecurityDeposit: p.SecurityDeposit,
		Method:          p.Method,
		Status:          p.Status,
		RefundAmount:    p.RefundAmount,
		CreatedAt:       p.CreatedAt,
	}
	if p.RefundReason.Valid {
		r.RefundReason = p.RefundReason.String
	}
	return r
}
