// Package notify is the best-effort notification side channel. A
// dispatch failure is logged and swallowed; the triggering operation
// must never fail because a notification could not be written.
package notify

import (
	"context"
	"database/sql"
	"log"
	"time"
)

const (
	TypeBookIssued      = "BOOK_ISSUED"
	TypeBookReturned    = "BOOK_RETURNED"
	TypeFineAssessed    = "FINE_ASSESSED"
	TypePaymentRecorded = "PAYMENT_RECORDED"
	TypeRefundProcessed = "REFUND_PROCESSED"
	TypeRequestDecided  = "REQUEST_DECIDED"
	TypeAccountStatus   = "ACCOUNT_STATUS"
)

type Notification struct {
	NotificationID int64     `json:"notification_id"`
	UserID         string    `json:"user_id"`
	Type           string    `json:"type"`
	Message        string    `json:"message"`
	CreatedAt      time.Time `json:"created_at"`
}

// Dispatcher is what the domain services depend on. Dispatch reports
// nothing: delivery is fire-and-forget.
type Dispatcher interface {
	Dispatch(ctx context.Context, userID, typ, message string)
}

type Service struct {
	store *Store
}

func NewService(db *sql.DB) *Service { return &Service{store: NewStore(db)} }

func (s *Service) Dispatch(ctx context.Context, userID, typ, message string) {
	n := &Notification{
		UserID:    userID,
		Type:      typ,
		Message:   message,
		CreatedAt: time.Now().UTC(),
	}
	if err := s.store.Insert(ctx, n); err != nil {
		log.Printf("[WARN] notification dispatch failed (user=%s type=%s): %v", userID, typ, err)
	}
}

func (s *Service) ListForUser(ctx context.Context, userID string, limit int) ([]Notification, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	return s.store.ListByUser(ctx, userID, limit)
}
