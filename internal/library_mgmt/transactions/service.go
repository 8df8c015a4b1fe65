package transactions

import (
	"context"
	"crypto/rand"
	"database/sql"
	"fmt"
	"math"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/shopspring/decimal"

	"ALMS-backend/internal/library_mgmt/books"
	"ALMS-backend/internal/library_mgmt/users"
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

// overdueDays counts chargeable late days. A loan returned on the due
// date owes nothing; any part of a late day counts as a whole day.
func overdueDays(now, due time.Time) int {
	if !now.After(due) {
		return 0
	}
	return int(math.Ceil(now.Sub(due).Hours() / 24))
}

func accruedFine(finePerDay decimal.Decimal, days int) decimal.Decimal {
	if days <= 0 {
		return decimal.Zero
	}
	return finePerDay.Mul(decimal.NewFromInt(int64(days)))
}

// Issue checks the borrower out with the lowest-numbered available copy
// of the book. Regular users may only issue to themselves; staff may
// issue on behalf of any user.
func (s *Service) Issue(ctx context.Context, actor auth.Actor, in IssueRequest) (*TransactionResponse, error) {
	borrowerID := in.UserID
	if borrowerID == "" {
		borrowerID = actor.UserID
	}
	if !auth.IsStaff(actor.Role) && borrowerID != actor.UserID {
		return nil, apierr.ErrForbidden("cannot issue a book for another user")
	}

	now := s.clock.Now()
	txnULID, err := s.id.New()
	if err != nil {
		return nil, apierr.ErrInternal("failed to generate transaction id")
	}

	var t *Transaction
	var bookULID, copyBarcode, bookTitle string
	err = platformdb.RunInTx(ctx, s.db, nil, func(ctx context.Context, tx platformdb.DBTX) error {
		status, err := s.store.UserStatus(ctx, tx, borrowerID)
		if err != nil {
			return err
		}
		if status == "" {
			return apierr.ErrNotFound("user not found")
		}
		if status != users.StatusActive {
			return apierr.ErrForbidden(fmt.Sprintf("user account is %s", status))
		}

		unpaid, err := s.store.UnpaidFineCount(ctx, tx, borrowerID)
		if err != nil {
			return err
		}
		if unpaid > 0 {
			return apierr.ErrForbidden("user has unpaid fines")
		}

		book, err := s.store.BookTermsByULID(ctx, tx, in.BookID)
		if err != nil {
			return err
		}
		if book == nil {
			return apierr.ErrNotFound("book not found")
		}
		if !book.IsActive {
			return apierr.ErrInvalid("book is not available for loan")
		}
		if book.AvailableCopies <= 0 {
			return apierr.ErrInvalid("no copies available")
		}
		bookULID = book.BookULID
		bookTitle = book.Title

		copyID, barcode, err := s.store.PickAvailableCopy(ctx, tx, book.BookID)
		if err != nil {
			return err
		}
		if copyID == 0 {
			return apierr.ErrInvalid("no copies available")
		}
		claimed, err := s.store.ClaimCopy(ctx, tx, copyID)
		if err != nil {
			return err
		}
		if !claimed {
			return apierr.ErrConflict("copy was claimed by a concurrent request")
		}
		if err := s.store.DecrementAvailable(ctx, tx, book.BookID, now); err != nil {
			return err
		}
		copyBarcode = barcode

		due := now.AddDate(0, 0, book.LoanPeriodDays)
		if in.DueDate != nil {
			if !in.DueDate.After(now) {
				return apierr.ErrInvalid("due_date must be in the future")
			}
			due = in.DueDate.UTC()
		}

		t = &Transaction{
			TransactionULID: txnULID,
			UserID:          borrowerID,
			BookID:          book.BookID,
			CopyID:          copyID,
			IssueDate:       now,
			DueDate:         due,
			Status:          StatusIssued,
			FineAmount:      decimal.Zero,
			DamageCharge:    decimal.Zero,
			IsHomeDelivery:  in.IsHomeDelivery,
			Notes:           nullString(in.Notes),
			CreatedAt:       now,
		}
		return s.store.Insert(ctx, tx, t)
	})
	if err != nil {
		return nil, err
	}

	s.notifier.Dispatch(ctx, borrowerID, notify.TypeBookIssued,
		fmt.Sprintf("%q issued, due %s", bookTitle, t.DueDate.Format("2006-01-02")))

	resp := toResponse(t, bookULID, copyBarcode)
	return &resp, nil
}

// Return closes the loan, computes the late fine from the book's daily
// rate and puts the copy back in circulation. Staff only.
func (s *Service) Return(ctx context.Context, txnULID string, in ReturnRequest) (*TransactionResponse, error) {
	if in.DamageCharge.IsNegative() {
		return nil, apierr.ErrInvalid("damage_charge must not be negative")
	}
	if in.ReturnCondition != "" && !books.ValidCondition(in.ReturnCondition) {
		return nil, apierr.ErrInvalid("return_condition must be one of NEW, GOOD, FAIR, POOR")
	}
	now := s.clock.Now()

	var t *Transaction
	var bookULID, copyBarcode, bookTitle string
	err := platformdb.RunInTx(ctx, s.db, nil, func(ctx context.Context, tx platformdb.DBTX) error {
		var err error
		t, err = s.store.GetByULID(ctx, tx, txnULID)
		if err != nil {
			return err
		}
		if t == nil {
			return apierr.ErrNotFound("transaction not found")
		}
		if t.Status == StatusReturned {
			return apierr.ErrInvalid("transaction already returned")
		}

		book, err := s.store.BookTermsByID(ctx, tx, t.BookID)
		if err != nil {
			return err
		}
		if book == nil {
			return apierr.ErrInternal("book record missing for transaction")
		}
		bookULID = book.BookULID
		bookTitle = book.Title

		t.FineAmount = accruedFine(book.FinePerDay, overdueDays(now, t.DueDate))
		t.DamageCharge = in.DamageCharge
		if in.ReturnCondition != "" {
			t.ReturnCondition = sql.NullString{String: in.ReturnCondition, Valid: true}
		}
		if in.Notes != "" {
			t.Notes = sql.NullString{String: in.Notes, Valid: true}
		}

		ok, err := s.store.MarkReturned(ctx, tx, t, now)
		if err != nil {
			return err
		}
		if !ok {
			return apierr.ErrConflict("transaction was returned by a concurrent request")
		}
		t.Status = StatusReturned
		t.ReturnDate = sql.NullTime{Time: now, Valid: true}

		released, err := s.store.ReleaseCopy(ctx, tx, t.CopyID, in.ReturnCondition)
		if err != nil {
			return err
		}
		if released {
			if err := s.store.IncrementAvailable(ctx, tx, t.BookID, now); err != nil {
				return err
			}
		}
		copyBarcode, err = s.store.CopyBarcode(ctx, tx, t.CopyID)
		return err
	})
	if err != nil {
		return nil, err
	}

	if t.FineAmount.IsPositive() {
		s.notifier.Dispatch(ctx, t.UserID, notify.TypeFineAssessed,
			fmt.Sprintf("%q returned late, fine %s", bookTitle, t.FineAmount.StringFixed(2)))
	} else {
		s.notifier.Dispatch(ctx, t.UserID, notify.TypeBookReturned,
			fmt.Sprintf("%q returned, thank you", bookTitle))
	}

	resp := toResponse(t, bookULID, copyBarcode)
	return &resp, nil
}

// Renew extends the due date. The borrower may renew their own loan;
// staff may renew any. Overdue loans and loans at the renewal limit
// are not renewable.
func (s *Service) Renew(ctx context.Context, actor auth.Actor, txnULID string, in RenewRequest) (*TransactionResponse, error) {
	now := s.clock.Now()

	var t *Transaction
	var bookULID, copyBarcode string
	err := platformdb.RunInTx(ctx, s.db, nil, func(ctx context.Context, tx platformdb.DBTX) error {
		var err error
		t, err = s.store.GetByULID(ctx, tx, txnULID)
		if err != nil {
			return err
		}
		if t == nil {
			return apierr.ErrNotFound("transaction not found")
		}
		if !auth.IsStaff(actor.Role) && t.UserID != actor.UserID {
			return apierr.ErrForbidden("cannot renew another user's loan")
		}
		if t.Status != StatusIssued && t.Status != StatusRenewed {
			return apierr.ErrInvalid(fmt.Sprintf("cannot renew a %s transaction", t.Status))
		}
		if now.After(t.DueDate) {
			return apierr.ErrInvalid("cannot renew an overdue loan")
		}

		book, err := s.store.BookTermsByID(ctx, tx, t.BookID)
		if err != nil {
			return err
		}
		if book == nil {
			return apierr.ErrInternal("book record missing for transaction")
		}
		if t.RenewalCount >= book.MaxRenewals {
			return apierr.ErrInvalid("renewal limit reached")
		}
		bookULID = book.BookULID

		newDue := t.DueDate.AddDate(0, 0, book.LoanPeriodDays)
		if in.NewDueDate != nil {
			if !in.NewDueDate.After(t.DueDate) {
				return apierr.ErrInvalid("new_due_date must be after the current due date")
			}
			newDue = in.NewDueDate.UTC()
		}

		ok, err := s.store.MarkRenewed(ctx, tx, t.TransactionID, newDue, t.RenewalCount)
		if err != nil {
			return err
		}
		if !ok {
			return apierr.ErrConflict("transaction was renewed by a concurrent request")
		}
		t.DueDate = newDue
		t.RenewalCount++
		t.Status = StatusRenewed

		copyBarcode, err = s.store.CopyBarcode(ctx, tx, t.CopyID)
		return err
	})
	if err != nil {
		return nil, err
	}

	resp := toResponse(t, bookULID, copyBarcode)
	return &resp, nil
}

// Fine reports the fine owed on the loan. For an open loan it is
// computed against the clock, persisted, and the loan is flipped to
// OVERDUE; for a closed loan the stored amount is reported as-is.
func (s *Service) Fine(ctx context.Context, actor auth.Actor, txnULID string) (*FineResponse, error) {
	now := s.clock.Now()

	var resp *FineResponse
	err := platformdb.RunInTx(ctx, s.db, nil, func(ctx context.Context, tx platformdb.DBTX) error {
		t, err := s.store.GetByULID(ctx, tx, txnULID)
		if err != nil {
			return err
		}
		if t == nil {
			return apierr.ErrNotFound("transaction not found")
		}
		if !auth.CanViewUser(actor, t.UserID) {
			return apierr.ErrForbidden("insufficient permissions")
		}

		if t.Status == StatusReturned {
			days := 0
			if t.ReturnDate.Valid {
				days = overdueDays(t.ReturnDate.Time, t.DueDate)
			}
			resp = &FineResponse{TransactionID: t.TransactionULID, FineAmount: t.FineAmount, DaysOverdue: days, FinePaid: t.FinePaid}
			return nil
		}

		days := overdueDays(now, t.DueDate)
		fine := decimal.Zero
		if days > 0 {
			book, err := s.store.BookTermsByID(ctx, tx, t.BookID)
			if err != nil {
				return err
			}
			if book == nil {
				return apierr.ErrInternal("book record missing for transaction")
			}
			fine = accruedFine(book.FinePerDay, days)
			if err := s.store.SetFine(ctx, tx, t.TransactionID, fine); err != nil {
				return err
			}
		}
		resp = &FineResponse{TransactionID: t.TransactionULID, FineAmount: fine, DaysOverdue: days, FinePaid: t.FinePaid}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return resp, nil
}

// PayFine settles the outstanding fine and damage charge in one desk
// payment. The amount must match the balance to the cent.
func (s *Service) PayFine(ctx context.Context, actor auth.Actor, txnULID string, in PayFineRequest) (*FineResponse, error) {
	if !in.Amount.IsPositive() {
		return nil, apierr.ErrInvalid("amount must be positive")
	}
	if in.Method == "" {
		return nil, apierr.ErrInvalid("payment_method is required")
	}
	now := s.clock.Now()
	payULID, err := s.id.New()
	if err != nil {
		return nil, apierr.ErrInternal("failed to generate payment id")
	}

	var resp *FineResponse
	var payerID string
	err = platformdb.RunInTx(ctx, s.db, nil, func(ctx context.Context, tx platformdb.DBTX) error {
		t, err := s.store.GetByULID(ctx, tx, txnULID)
		if err != nil {
			return err
		}
		if t == nil {
			return apierr.ErrNotFound("transaction not found")
		}
		if !auth.CanViewUser(actor, t.UserID) {
			return apierr.ErrForbidden("insufficient permissions")
		}
		if t.FinePaid {
			return apierr.ErrInvalid("fine already paid")
		}
		charges := t.FineAmount.Add(t.DamageCharge)
		if !charges.IsPositive() {
			return apierr.ErrInvalid("transaction has no outstanding charges")
		}

		paid, err := s.store.PaidTotal(ctx, tx, t.TransactionID)
		if err != nil {
			return err
		}
		balance := charges.Sub(paid)
		if in.Amount.Sub(balance).Abs().GreaterThan(decimal.NewFromFloat(0.01)) {
			return apierr.ErrInvalid(fmt.Sprintf("amount %s does not match outstanding balance %s",
				in.Amount.StringFixed(2), balance.StringFixed(2)))
		}

		if err := s.store.InsertPayment(ctx, tx, payULID, t.TransactionID,
			in.Amount, t.FineAmount, t.DamageCharge, in.Method, now); err != nil {
			return err
		}
		if err := s.store.MarkFinePaid(ctx, tx, t.TransactionID); err != nil {
			return err
		}
		payerID = t.UserID
		resp = &FineResponse{TransactionID: t.TransactionULID, FineAmount: t.FineAmount,
			DaysOverdue: overdueDays(orNow(t.ReturnDate, now), t.DueDate), FinePaid: true}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.notifier.Dispatch(ctx, payerID, notify.TypePaymentRecorded,
		fmt.Sprintf("payment of %s received", in.Amount.StringFixed(2)))
	return resp, nil
}

// Cancel voids a loan that was recorded in error. The copy goes back in
// circulation and the row is removed. Returned loans cannot be voided.
func (s *Service) Cancel(ctx context.Context, txnULID string) error {
	now := s.clock.Now()
	return platformdb.RunInTx(ctx, s.db, nil, func(ctx context.Context, tx platformdb.DBTX) error {
		t, err := s.store.GetByULID(ctx, tx, txnULID)
		if err != nil {
			return err
		}
		if t == nil {
			return apierr.ErrNotFound("transaction not found")
		}
		if t.Status == StatusReturned {
			return apierr.ErrInvalid("cannot cancel a returned transaction")
		}

		released, err := s.store.ReleaseCopy(ctx, tx, t.CopyID, "")
		if err != nil {
			return err
		}
		if released {
			if err := s.store.IncrementAvailable(ctx, tx, t.BookID, now); err != nil {
				return err
			}
		}
		return s.store.Delete(ctx, tx, t.TransactionID)
	})
}

func (s *Service) Get(ctx context.Context, actor auth.Actor, txnULID string) (*TransactionResponse, error) {
	t, err := s.store.GetByULID(ctx, nil, txnULID)
	if err != nil {
		return nil, err
	}
	if t == nil {
		return nil, apierr.ErrNotFound("transaction not found")
	}
	if !auth.CanViewUser(actor, t.UserID) {
		return nil, apierr.ErrForbidden("insufficient permissions")
	}
	return s.shape(ctx, t)
}

func (s *Service) List(ctx context.Context, actor auth.Actor, f Filter) (*ListResponse, error) {
	// Non-staff callers only ever see their own history.
	if !auth.IsStaff(actor.Role) {
		f.UserID = actor.UserID
	}
	if f.Limit <= 0 || f.Limit > 100 {
		f.Limit = 20
	}
	if f.Offset < 0 {
		f.Offset = 0
	}
	if f.Status != "" && !validStatus(f.Status) {
		return nil, apierr.ErrInvalid("invalid status filter")
	}

	txns, total, err := s.store.List(ctx, f)
	if err != nil {
		return nil, err
	}
	out := ListResponse{Transactions: make([]TransactionResponse, 0, len(txns)), Total: total, Limit: f.Limit, Offset: f.Offset}
	for _, t := range txns {
		r, err := s.shape(ctx, t)
		if err != nil {
			return nil, err
		}
		out.Transactions = append(out.Transactions, *r)
	}
	return &out, nil
}

// Overdue lists every open loan past its due date, with the fine that
// would be owed if it came back now. Staff only; enforced in routing.
func (s *Service) Overdue(ctx context.Context) ([]OverdueItem, error) {
	now := s.clock.Now()
	rows, err := s.store.ListOverdue(ctx, now)
	if err != nil {
		return nil, err
	}
	out := make([]OverdueItem, 0, len(rows))
	for _, r := range rows {
		book, err := s.store.BookTermsByID(ctx, nil, r.Txn.BookID)
		if err != nil {
			return nil, err
		}
		days := overdueDays(now, r.Txn.DueDate)
		fine := decimal.Zero
		if book != nil {
			fine = accruedFine(book.FinePerDay, days)
		}
		out = append(out, OverdueItem{
			TransactionID: r.Txn.TransactionULID,
			UserID:        r.Txn.UserID,
			UserName:      r.UserName,
			BookTitle:     r.BookTitle,
			DueDate:       r.Txn.DueDate,
			DaysOverdue:   days,
			FineAccrued:   fine,
		})
	}
	return out, nil
}

func (s *Service) Stats(ctx context.Context) (*StatsResponse, error) {
	return s.store.Stats(ctx, s.clock.Now())
}

func (s *Service) shape(ctx context.Context, t *Transaction) (*TransactionResponse, error) {
	bookULID, err := s.store.BookULID(ctx, nil, t.BookID)
	if err != nil {
		return nil, err
	}
	barcode, err := s.store.CopyBarcode(ctx, nil, t.CopyID)
	if err != nil {
		return nil, err
	}
	r := toResponse(t, bookULID, barcode)
	return &r, nil
}

func validStatus(s string) bool {
	switch s {
	case StatusIssued, StatusRenewed, StatusOverdue, StatusReturned:
		return true
	}
	return false
}

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

func orNow(t sql.NullTime, now time.Time) time.Time {
	if t.Valid {
		return t.Time
	}
	return now
}
