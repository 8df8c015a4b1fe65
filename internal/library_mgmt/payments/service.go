package payments

import (
	"context"
	"crypto/rand"
	"database/sql"
	"fmt"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/shopspring/decimal"

	"ALMS-backend/internal/platform/apierr"
	"ALMS-backend/internal/platform/auth"
	platformdb "ALMS-backend/internal/platform/db"
	"ALMS-backend/internal/platform/notify"
)

type Clock interface{ Now() time.Time }

type realClock struct{}

func (realClock) Now() time.Time { return time.Now().UTC() }

type IDGen interface{ New() (string, error) }

type ulidGen struct{}

func (ulidGen) New() (string, error) {
	t := time.Now().UTC()
	id, err := ulid.New(ulid.Timestamp(t), ulid.Monotonic(rand.Reader, 0))
	if err != nil {
		return "", err
	}
	return id.String(), nil
}

// breakdownTolerance absorbs rounding in client-computed splits.
var breakdownTolerance = decimal.NewFromFloat(0.01)

type Service struct {
	db       *sql.DB
	store    *Store
	notifier notify.Dispatcher
	clock    Clock
	id       IDGen
}

func NewService(db *sql.DB, notifier notify.Dispatcher) *Service {
	return &Service{db: db, store: NewStore(db), notifier: notifier, clock: realClock{}, id: ulidGen{}}
}

// Record books a payment against a loan. The breakdown parts must sum
// to the amount within a cent; when the late-fee part covers the
// outstanding fine the loan's fine is marked settled in the same
// transaction. Staff only; enforced in routing.
func (s *Service) Record(ctx context.Context, in RecordRequest) (*PaymentResponse, error) {
	if !in.Amount.IsPositive() {
		return nil, apierr.ErrInvalid("amount must be positive")
	}
	if in.LateFee.IsNegative() || in.DamageCharge.IsNegative() || in.SecurityDeposit.IsNegative() {
		return nil, apierr.ErrInvalid("breakdown parts must not be negative")
	}
	if !validMethod(in.Method) {
		return nil, apierr.ErrInvalid("payment_method must be one of CASH, CARD, ONLINE")
	}
	sum := in.LateFee.Add(in.DamageCharge).Add(in.SecurityDeposit)
	if sum.Sub(in.Amount).Abs().GreaterThan(breakdownTolerance) {
		return nil, apierr.ErrInvalid(fmt.Sprintf("breakdown %s does not sum to amount %s",
			sum.StringFixed(2), in.Amount.StringFixed(2)))
	}

	now := s.clock.Now()
	payULID, err := s.id.New()
	if err != nil {
		return nil, apierr.ErrInternal("failed to generate payment id")
	}

	var p *Payment
	var txnULID, userID string
	err = platformdb.RunInTx(ctx, s.db, nil, func(ctx context.Context, tx platformdb.DBTX) error {
		charges, err := s.store.ChargesByTxnULID(ctx, tx, in.TransactionID)
		if err != nil {
			return err
		}
		if charges == nil {
			return apierr.ErrNotFound("transaction not found")
		}
		txnULID, userID = charges.TxnULID, charges.UserID

		p = &Payment{
			PaymentULID:     payULID,
			TransactionID:   charges.TransactionID,
			Amount:          in.Amount,
			LateFee:         in.LateFee,
			DamageCharge:    in.DamageCharge,
			SecurityDeposit: in.SecurityDeposit,
			Method:          in.Method,
			Status:          StatusCompleted,
			RefundAmount:    decimal.Zero,
			CreatedAt:       now,
		}
		if err := s.store.Insert(ctx, tx, p); err != nil {
			return err
		}

		if !charges.FinePaid && charges.FineAmount.IsPositive() &&
			!in.LateFee.LessThan(charges.FineAmount.Sub(breakdownTolerance)) {
			if err := s.store.MarkFinePaid(ctx, tx, charges.TransactionID); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.notifier.Dispatch(ctx, userID, notify.TypePaymentRecorded,
		fmt.Sprintf("payment of %s received", in.Amount.StringFixed(2)))

	resp := toResponse(p, txnULID, userID)
	return &resp, nil
}

// Refund returns part or all of a payment to the user. The cumulative
// refund never exceeds the paid amount and never decreases. Staff only.
func (s *Service) Refund(ctx context.Context, payULID string, in RefundRequest) (*PaymentResponse, error) {
	if !in.Amount.IsPositive() {
		return nil, apierr.ErrInvalid("amount must be positive")
	}

	var row *paymentRow
	err := platformdb.RunInTx(ctx, s.db, nil, func(ctx context.Context, tx platformdb.DBTX) error {
		var err error
		row, err = s.store.GetByULID(ctx, tx, payULID)
		if err != nil {
			return err
		}
		if row == nil {
			return apierr.ErrNotFound("payment not found")
		}
		p := row.Payment
		if p.Status == StatusRefunded {
			return apierr.ErrInvalid("payment is fully refunded")
		}

		newRefund := p.RefundAmount.Add(in.Amount)
		if newRefund.GreaterThan(p.Amount) {
			return apierr.ErrInvalid(fmt.Sprintf("refund %s exceeds refundable balance %s",
				in.Amount.StringFixed(2), p.Amount.Sub(p.RefundAmount).StringFixed(2)))
		}
		newStatus := StatusPartiallyRefunded
		if newRefund.Equal(p.Amount) {
			newStatus = StatusRefunded
		}

		ok, err := s.store.ApplyRefund(ctx, tx, p.PaymentID, newRefund, newStatus, in.Reason)
		if err != nil {
			return err
		}
		if !ok {
			return apierr.ErrConflict("refund was applied by a concurrent request")
		}
		p.RefundAmount = newRefund
		p.Status = newStatus
		if in.Reason != "" {
			p.RefundReason = sql.NullString{String: in.Reason, Valid: true}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.notifier.Dispatch(ctx, row.UserID, notify.TypeRefundProcessed,
		fmt.Sprintf("refund of %s processed", in.Amount.StringFixed(2)))

	resp := toResponse(row.Payment, row.TxnULID, row.UserID)
	return &resp, nil
}

// Breakdown reports the money position of one loan.
func (s *Service) Breakdown(ctx context.Context, actor auth.Actor, txnULID string) (*BreakdownResponse, error) {
	charges, err := s.store.ChargesByTxnULID(ctx, nil, txnULID)
	if err != nil {
		return nil, err
	}
	if charges == nil {
		return nil, apierr.ErrNotFound("transaction not found")
	}
	if !auth.CanViewUser(actor, charges.UserID) {
		return nil, apierr.ErrForbidden("insufficient permissions")
	}

	paid, err := s.store.PaidTotal(ctx, nil, charges.TransactionID)
	if err != nil {
		return nil, err
	}
	due := charges.FineAmount.Add(charges.DamageCharge)
	pending := due.Sub(paid)
	if pending.IsNegative() {
		pending = decimal.Zero
	}
	return &BreakdownResponse{
		TransactionID: charges.TxnULID,
		FineAmount:    charges.FineAmount,
		DamageCharge:  charges.DamageCharge,
		TotalDue:      due,
		TotalPaid:     paid,
		PendingAmount: pending,
	}, nil
}

func (s *Service) Get(ctx context.Context, actor auth.Actor, payULID string) (*PaymentResponse, error) {
	row, err := s.store.GetByULID(ctx, nil, payULID)
	if err != nil {
		return nil, err
	}
	if row == nil {
		return nil, apierr.ErrNotFound("payment not found")
	}
	if !auth.CanViewUser(actor, row.UserID) {
		return nil, apierr.ErrForbidden("insufficient permissions")
	}
	resp := toResponse(row.Payment, row.TxnULID, row.UserID)
	return &resp, nil
}

func (s *Service) List(ctx context.Context, actor auth.Actor, f Filter) (*ListResponse, error) {
	if !auth.IsStaff(actor.Role) {
		f.UserID = actor.UserID
	}
	if f.Limit <= 0 || f.Limit > 100 {
		f.Limit = 20
	}
	if f.Offset < 0 {
		f.Offset = 0
	}

	rows, total, err := s.store.List(ctx, f)
	if err != nil {
		return nil, err
	}
	out := ListResponse{Payments: make([]PaymentResponse, 0, len(rows)), Total: total, Limit: f.Limit, Offset: f.Offset}
	for _, r := range rows {
		out.Payments = append(out.Payments, toResponse(r.Payment, r.TxnULID, r.UserID))
	}
	return &out, nil
}
