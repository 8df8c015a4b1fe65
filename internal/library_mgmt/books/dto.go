package books

import (
	"time"

	"github.com/shopspring/decimal"
)

type CreateBookRequest struct {
	ISBN            string           `json:"isbn" binding:"required"`
	Title           string           `json:"title" binding:"required"`
	Author          string           `json:"author" binding:"required"`
	Publisher       *string          `json:"publisher,omitempty"`
	LoanPeriodDays  int              `json:"loan_period_days"`
	FinePerDay      decimal.Decimal  `json:"fine_per_day"`
	MaxRenewals     int              `json:"max_renewals"`
	SecurityDeposit decimal.Decimal  `json:"security_deposit"`
	InitialCopies   int              `json:"initial_copies"`
	InitialCond     *string          `json:"initial_condition,omitempty"`
}

type UpdateBookRequest struct {
	Title           *string          `json:"title,omitempty"`
	Author          *string          `json:"author,omitempty"`
	Publisher       *string          `json:"publisher,omitempty"`
	LoanPeriodDays  *int             `json:"loan_period_days,omitempty"`
	FinePerDay      *decimal.Decimal `json:"fine_per_day,omitempty"`
	MaxRenewals     *int             `json:"max_renewals,omitempty"`
	SecurityDeposit *decimal.Decimal `json:"security_deposit,omitempty"`
}

type AddCopiesRequest struct {
	Count     int     `json:"count" binding:"required"`
	Condition *string `json:"condition,omitempty"`
}

type UpdateCopyStatusRequest struct {
	Status    string  `json:"status" binding:"required"`
	Condition *string `json:"condition,omitempty"`
}

type BookResponse struct {
	BookULID        string          `json:"book_id"`
	ISBN            string          `json:"isbn"`
	Title           string          `json:"title"`
	Author          string          `json:"author"`
	Publisher       *string         `json:"publisher,omitempty"`
	TotalCopies     int             `json:"total_copies"`
	AvailableCopies int             `json:"available_copies"`
	LoanPeriodDays  int             `json:"loan_period_days"`
	FinePerDay      decimal.Decimal `json:"fine_per_day"`
	MaxRenewals     int             `json:"max_renewals"`
	SecurityDeposit decimal.Decimal `json:"security_deposit"`
	IsActive        bool            `json:"is_active"`
	CreatedAt       time.Time       `json:"created_at"`
	UpdatedAt       time.Time       `json:"updated_at"`
}

type CopyResponse struct {
	Barcode    string    `json:"barcode"`
	BookULID   string    `json:"book_id"`
	CopyNumber int       `json:"copy_number"`
	Status     string    `json:"status"`
	Condition  string    `json:"condition"`
	CreatedAt  time.Time `json:"created_at"`
}

type ListBooksResponse struct {
	Books []BookResponse `json:"books"`
	Total int64          `json:"total"`
}

func toBookResponse(b *Book) BookResponse {
	r := BookResponse{
		BookULID:        b.BookULID,
		ISBN:            b.ISBN,
		Title:           b.Title,
		Author:          b.Author,
		TotalCopies:     b.TotalCopies,
		AvailableCopies: b.AvailableCopies,
		LoanPeriodDays:  b.LoanPeriodDays,
		FinePerDay:      b.FinePerDay,
		MaxRenewals:     b.MaxRenewals,
		SecurityDeposit: b.SecurityDeposit,
		IsActive:        b.IsActive,
		CreatedAt:       b.CreatedAt,
		UpdatedAt:       b.UpdatedAt,
	}
	if b.Publisher != "" {
		p := b.Publisher
		r.Publisher = &p
	}
	return r
}
