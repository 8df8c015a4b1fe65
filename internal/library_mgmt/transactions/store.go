package transactions

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	platformdb "ALMS-backend/internal/platform/db"
)

type Store struct{ db *sql.DB }

func NewStore(db *sql.DB) *Store { return &Store{db: db} }

const txnColumns = `transaction_id, transaction_ulid, user_id, book_id, copy_id, issue_date, due_date,
	return_date, status, renewal_count, fine_amount, fine_paid, damage_charge, return_condition,
	is_home_delivery, notes, created_at`

func scanTxn(scan func(dest ...any) error) (*Transaction, error) {
	var t Transaction
	err := scan(&t.TransactionID, &t.TransactionULID, &t.UserID, &t.BookID, &t.CopyID,
		&t.IssueDate, &t.DueDate, &t.ReturnDate, &t.Status, &t.RenewalCount,
		&t.FineAmount, &t.FinePaid, &t.DamageCharge, &t.ReturnCondition,
		&t.IsHomeDelivery, &t.Notes, &t.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func (s *Store) GetByULID(ctx context.Context, tx platformdb.DBTX, ulid string) (*Transaction, error) {
	if tx == nil {
		tx = s.db
	}
	q := `SELECT ` + txnColumns + ` FROM transactions WHERE transaction_ulid = ? LIMIT 1`
	t, err := scanTxn(tx.QueryRowContext(ctx, q, ulid).Scan)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return t, err
}

func (s *Store) Insert(ctx context.Context, tx platformdb.DBTX, t *Transaction) error {
	const q = `
	INSERT INTO transactions
	(transaction_ulid, user_id, book_id, copy_id, issue_date, due_date, status,
	 renewal_count, fine_amount, fine_paid, damage_charge, is_home_delivery, notes, created_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, 0, 0, 0, 0, ?, ?, ?)`
	res, err := tx.ExecContext(ctx, q, t.TransactionULID, t.UserID, t.BookID, t.CopyID,
		t.IssueDate, t.DueDate, t.Status, t.IsHomeDelivery, t.Notes, t.CreatedAt)
	if err != nil {
		return err
	}
	id, _ := res.LastInsertId()
	t.TransactionID = id
	return nil
}

func (s *Store) List(ctx context.Context, f Filter) ([]*Transaction, int, error) {
	var conds []string
	var args []any
	if f.UserID != "" {
		conds = append(conds, "t.user_id = ?")
		args = append(args, f.UserID)
	}
	if f.BookULID != "" {
		conds = append(conds, "t.book_id IN (SELECT book_id FROM books WHERE book_ulid = ?)")
		args = append(args, f.BookULID)
	}
	if f.Status != "" {
		conds = append(conds, "t.status = ?")
		args = append(args, f.Status)
	}
	where := ""
	if len(conds) > 0 {
		where = " WHERE " + strings.Join(conds, " AND ")
	}

	var total int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM transactions t"+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	q := `SELECT ` + txnColumns + ` FROM transactions t` + where +
		` ORDER BY t.transaction_id DESC LIMIT ? OFFSET ?`
	rows, err := s.db.QueryContext(ctx, q, append(args, f.Limit, f.Offset)...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var out []*Transaction
	for rows.Next() {
		t, err := scanTxn(rows.Scan)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, t)
	}
	return out, total, rows.Err()
}

// UnpaidFineCount counts loans of the user that carry an unsettled fine.
func (s *Store) UnpaidFineCount(ctx context.Context, tx platformdb.DBTX, userID string) (int, error) {
	const q = `SELECT COUNT(*) FROM transactions WHERE user_id = ? AND fine_amount > 0 AND fine_paid = 0`
	var n int
	err := tx.QueryRowContext(ctx, q, userID).Scan(&n)
	return n, err
}

// PickAvailableCopy selects the lowest-numbered AVAILABLE copy of the book.
// Returns 0, "" when none exists.
func (s *Store) PickAvailableCopy(ctx context.Context, tx platformdb.DBTX, bookID int64) (int64, string, error) {
	const q = `
	SELECT copy_id, barcode FROM book_copies
	WHERE book_id = ? AND status = 'AVAILABLE'
	ORDER BY copy_number ASC LIMIT 1`
	var copyID int64
	var barcode string
	err := tx.QueryRowContext(ctx, q, bookID).Scan(&copyID, &barcode)
	if err == sql.ErrNoRows {
		return 0, "", nil
	}
	return copyID, barcode, err
}

// ClaimCopy flips the copy AVAILABLE -> ISSUED. Zero rows affected means
// another request took it first.
func (s *Store) ClaimCopy(ctx context.Context, tx platformdb.DBTX, copyID int64) (bool, error) {
	const q = `UPDATE book_copies SET status = 'ISSUED' WHERE copy_id = ? AND status = 'AVAILABLE'`
	res, err := tx.ExecContext(ctx, q, copyID)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

// ReleaseCopy flips the copy back to AVAILABLE and optionally records a
// new condition observed at return.
func (s *Store) ReleaseCopy(ctx context.Context, tx platformdb.DBTX, copyID int64, cond string) (bool, error) {
	q := `UPDATE book_copies SET status = 'AVAILABLE'`
	var args []any
	if cond != "" {
		q += `, cond = ?`
		args = append(args, cond)
	}
	q += ` WHERE copy_id = ? AND status = 'ISSUED'`
	args = append(args, copyID)
	res, err := tx.ExecContext(ctx, q, args...)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

func (s *Store) adjustAvailable(ctx context.Context, tx platformdb.DBTX, bookID int64, delta int, now time.Time) error {
	const q = `
	UPDATE books SET available_copies = available_copies + ?, updated_at = ?
	WHERE book_id = ? AND available_copies + ? >= 0 AND available_copies + ? <= total_copies`
	res, err := tx.ExecContext(ctx, q, delta, now, bookID, delta, delta)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("availability counter out of range for book %d", bookID)
	}
	return nil
}

func (s *Store) DecrementAvailable(ctx context.Context, tx platformdb.DBTX, bookID int64, now time.Time) error {
	return s.adjustAvailable(ctx, tx, bookID, -1, now)
}

func (s *Store) IncrementAvailable(ctx context.Context, tx platformdb.DBTX, bookID int64, now time.Time) error {
	return s.adjustAvailable(ctx, tx, bookID, +1, now)
}

// MarkReturned closes the loan. The status guard keeps a double return
// from overwriting the first one.
func (s *Store) MarkReturned(ctx context.Context, tx platformdb.DBTX, t *Transaction, now time.Time) (bool, error) {
	const q = `
	UPDATE transactions
	SET return_date = ?, status = ?, fine_amount = ?, damage_charge = ?, return_condition = ?, notes = ?
	WHERE transaction_id = ? AND status <> 'RETURNED'`
	res, err := tx.ExecContext(ctx, q, now, StatusReturned, t.FineAmount, t.DamageCharge,
		t.ReturnCondition, t.Notes, t.TransactionID)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

// MarkRenewed extends the loan. The renewal_count guard makes concurrent
// renewals of the same loan collapse to one.
func (s *Store) MarkRenewed(ctx context.Context, tx platformdb.DBTX, txnID int64, newDue time.Time, prevCount int) (bool, error) {
	const q = `
	UPDATE transactions SET due_date = ?, renewal_count = renewal_count + 1, status = ?
	WHERE transaction_id = ? AND renewal_count = ? AND status IN ('ISSUED', 'RENEWED')`
	res, err := tx.ExecContext(ctx, q, newDue, StatusRenewed, txnID, prevCount)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

// SetFine persists an accrued fine and flips an active loan to OVERDUE.
func (s *Store) SetFine(ctx context.Context, tx platformdb.DBTX, txnID int64, fine decimal.Decimal) error {
	const q = `
	UPDATE transactions SET fine_amount = ?, status = ?
	WHERE transaction_id = ? AND status IN ('ISSUED', 'RENEWED', 'OVERDUE')`
	_, err := tx.ExecContext(ctx, q, fine, StatusOverdue, txnID)
	return err
}

func (s *Store) MarkFinePaid(ctx context.Context, tx platformdb.DBTX, txnID int64) error {
	const q = `UPDATE transactions SET fine_paid = 1 WHERE transaction_id = ?`
	_, err := tx.ExecContext(ctx, q, txnID)
	return err
}

func (s *Store) Delete(ctx context.Context, tx platformdb.DBTX, txnID int64) error {
	_, err := tx.ExecContext(ctx, `DELETE FROM transactions WHERE transaction_id = ?`, txnID)
	return err
}

// InsertPayment records a settlement made at the desk against this loan.
func (s *Store) InsertPayment(ctx context.Context, tx platformdb.DBTX, paymentULID string, txnID int64,
	amount, lateFee, damage decimal.Decimal, method string, now time.Time) error {
	const q = `
	INSERT INTO payments
	(payment_ulid, transaction_id, amount, late_fee, damage_charge, security_deposit,
	 method, status, refund_amount, created_at)
	VALUES (?, ?, ?, ?, ?, 0, ?, 'COMPLETED', 0, ?)`
	_, err := tx.ExecContext(ctx, q, paymentULID, txnID, amount, lateFee, damage, method, now)
	return err
}

// PaidTotal sums non-refunded settlements already recorded for the loan.
func (s *Store) PaidTotal(ctx context.Context, tx platformdb.DBTX, txnID int64) (decimal.Decimal, error) {
	const q = `
	SELECT COALESCE(SUM(amount - refund_amount), 0) FROM payments
	WHERE transaction_id = ? AND status IN ('COMPLETED', 'PARTIALLY_REFUNDED')`
	var total decimal.Decimal
	err := tx.QueryRowContext(ctx, q, txnID).Scan(&total)
	return total, err
}

type overdueRow struct {
	Txn       *Transaction
	UserName  string
	BookTitle string
}

func (s *Store) ListOverdue(ctx context.Context, now time.Time) ([]overdueRow, error) {
	q := `
	SELECT ` + prefixColumns("t", txnColumns) + `, u.name, b.title
	FROM transactions t
	JOIN users u ON u.user_id = t.user_id
	JOIN books b ON b.book_id = t.book_id
	WHERE t.status IN ('ISSUED', 'RENEWED', 'OVERDUE') AND t.due_date < ?
	ORDER BY t.due_date ASC`
	rows, err := s.db.QueryContext(ctx, q, now)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []overdueRow
	for rows.Next() {
		var t Transaction
		var r overdueRow
		err := rows.Scan(&t.TransactionID, &t.TransactionULID, &t.UserID, &t.BookID, &t.CopyID,
			&t.IssueDate, &t.DueDate, &t.ReturnDate, &t.Status, &t.RenewalCount,
			&t.FineAmount, &t.FinePaid, &t.DamageCharge, &t.ReturnCondition,
			&t.IsHomeDelivery, &t.Notes, &t.CreatedAt, &r.UserName, &r.BookTitle)
		if err != nil {
			return nil, err
		}
		r.Txn = &t
		out = append(out, r)
	}
	return out, rows.Err()
}

func (s *Store) Stats(ctx context.Context, now time.Time) (*StatsResponse, error) {
	var st StatsResponse
	const counts = `
	SELECT
	  COALESCE(SUM(CASE WHEN status IN ('ISSUED', 'RENEWED', 'OVERDUE') THEN 1 ELSE 0 END), 0),
	  COALESCE(SUM(CASE WHEN status IN ('ISSUED', 'RENEWED', 'OVERDUE') AND due_date < ? THEN 1 ELSE 0 END), 0),
	  COALESCE(SUM(CASE WHEN status = 'RETURNED' THEN 1 ELSE 0 END), 0)
	FROM transactions`
	if err := s.db.QueryRowContext(ctx, counts, now).Scan(&st.ActiveLoans, &st.OverdueLoans, &st.ReturnedLoans); err != nil {
		return nil, err
	}
	const fines = `
	SELECT
	  COALESCE(SUM(fine_amount), 0),
	  COALESCE(SUM(CASE WHEN fine_paid = 0 THEN fine_amount ELSE 0 END), 0)
	FROM transactions`
	if err := s.db.QueryRowContext(ctx, fines).Scan(&st.TotalFines, &st.OutstandingFine); err != nil {
		return nil, err
	}
	return &st, nil
}

// CopyBarcode resolves the barcode of a copy for response shaping.
func (s *Store) CopyBarcode(ctx context.Context, tx platformdb.DBTX, copyID int64) (string, error) {
	if tx == nil {
		tx = s.db
	}
	var barcode string
	err := tx.QueryRowContext(ctx, `SELECT barcode FROM book_copies WHERE copy_id = ?`, copyID).Scan(&barcode)
	return barcode, err
}

// BookULID resolves the public id of a book for response shaping.
func (s *Store) BookULID(ctx context.Context, tx platformdb.DBTX, bookID int64) (string, error) {
	if tx == nil {
		tx = s.db
	}
	var ulid string
	err := tx.QueryRowContext(ctx, `SELECT book_ulid FROM books WHERE book_id = ?`, bookID).Scan(&ulid)
	return ulid, err
}

// UserStatus returns the account status, or "" when the user does not exist.
func (s *Store) UserStatus(ctx context.Context, tx platformdb.DBTX, userID string) (string, error) {
	if tx == nil {
		tx = s.db
	}
	var status string
	err := tx.QueryRowContext(ctx, `SELECT status FROM users WHERE user_id = ?`, userID).Scan(&status)
	if err == sql.ErrNoRows {
		return "", nil
	}
	return status, err
}

// loanTerms is the slice of a book a circulation decision needs.
type loanTerms struct {
	BookID          int64
	BookULID        string
	Title           string
	LoanPeriodDays  int
	FinePerDay      decimal.Decimal
	MaxRenewals     int
	IsActive        bool
	AvailableCopies int
}

func (s *Store) BookTermsByULID(ctx context.Context, tx platformdb.DBTX, bookULID string) (*loanTerms, error) {
	if tx == nil {
		tx = s.db
	}
	const q = `
	SELECT book_id, book_ulid, title, loan_period_days, fine_per_day, max_renewals, is_active, available_copies
	FROM books WHERE book_ulid = ? LIMIT 1`
	return scanTerms(tx.QueryRowContext(ctx, q, bookULID).Scan)
}

func (s *Store) BookTermsByID(ctx context.Context, tx platformdb.DBTX, bookID int64) (*loanTerms, error) {
	if tx == nil {
		tx = s.db
	}
	const q = `
	SELECT book_id, book_ulid, title, loan_period_days, fine_per_day, max_renewals, is_active, available_copies
	FROM books WHERE book_id = ? LIMIT 1`
	return scanTerms(tx.QueryRowContext(ctx, q, bookID).Scan)
}

func scanTerms(scan func(dest ...any) error) (*loanTerms, error) {
	var lt loanTerms
	err := scan(&lt.BookID, &lt.BookULID, &lt.Title, &lt.LoanPeriodDays, &lt.FinePerDay,
		&lt.MaxRenewals, &lt.IsActive, &lt.AvailableCopies)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &lt, nil
}

func prefixColumns(alias, cols string) string {
	parts := strings.Split(cols, ",")
	for i, p := range parts {
		parts[i] = alias + "." + strings.TrimSpace(p)
	}
	return strings.Join(parts, ", ")
}
