package payments

import (
	"context"
	"database/sql"
	"strings"

	"github.com/shopspring/decimal"

	platformdb "ALMS-backend/internal/platform/db"
)

type Store struct{ db *sql.DB }

func NewStore(db *sql.DB) *Store { return &Store{db: db} }

const payColumns = `p.payment_id, p.payment_ulid, p.transaction_id, p.amount, p.late_fee, p.damage_charge,
	p.security_deposit, p.method, p.status, p.refund_amount, p.refund_reason, p.created_at`

// paymentRow carries the loan and owner context a payment response needs.
type paymentRow struct {
	Payment *Payment
	TxnULID string
	UserID  string
}

func scanRow(scan func(dest ...any) error) (*paymentRow, error) {
	var p Payment
	var r paymentRow
	err := scan(&p.PaymentID, &p.PaymentULID, &p.TransactionID, &p.Amount, &p.LateFee, &p.DamageCharge,
		&p.SecurityDeposit, &p.Method, &p.Status, &p.RefundAmount, &p.RefundReason, &p.CreatedAt,
		&r.TxnULID, &r.UserID)
	if err != nil {
		return nil, err
	}
	r.Payment = &p
	return &r, nil
}

func (s *Store) GetByULID(ctx context.Context, tx platformdb.DBTX, ulid string) (*paymentRow, error) {
	if tx == nil {
		tx = s.db
	}
	q := `
	SELECT ` + payColumns + `, t.transaction_ulid, t.user_id
	FROM payments p
	JOIN transactions t ON t.transaction_id = p.transaction_id
	WHERE p.payment_ulid = ? LIMIT 1`
	r, err := scanRow(tx.QueryRowContext(ctx, q, ulid).Scan)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return r, err
}

func (s *Store) Insert(ctx context.Context, tx platformdb.DBTX, p *Payment) error {
	const q = `
	INSERT INTO payments
	(payment_ulid, transaction_id, amount, late_fee, damage_charge, security_deposit,
	 method, status, refund_amount, created_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, 0, ?)`
	res, err := tx.ExecContext(ctx, q, p.PaymentULID, p.TransactionID, p.Amount, p.LateFee,
		p.DamageCharge, p.SecurityDeposit, p.Method, p.Status, p.CreatedAt)
	if err != nil {
		return err
	}
	id, _ := res.LastInsertId()
	p.PaymentID = id
	return nil
}

// ApplyRefund raises the refunded total. The guard keeps the cumulative
// refund inside the paid amount and only moves it forward.
func (s *Store) ApplyRefund(ctx context.Context, tx platformdb.DBTX, paymentID int64,
	newRefund decimal.Decimal, newStatus, reason string) (bool, error) {
	q := `UPDATE payments SET refund_amount = ?, status = ?`
	args := []any{newRefund, newStatus}
	if reason != "" {
		q += `, refund_reason = ?`
		args = append(args, reason)
	}
	q += ` WHERE payment_id = ? AND refund_amount < ? AND ? <= amount`
	args = append(args, paymentID, newRefund, newRefund)
	res, err := tx.ExecContext(ctx, q, args...)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

func (s *Store) List(ctx context.Context, f Filter) ([]*paymentRow, int, error) {
	var conds []string
	var args []any
	if f.TransactionULID != "" {
		conds = append(conds, "t.transaction_ulid = ?")
		args = append(args, f.TransactionULID)
	}
	if f.UserID != "" {
		conds = append(conds, "t.user_id = ?")
		args = append(args, f.UserID)
	}
	if f.Status != "" {
		conds = append(conds, "p.status = ?")
		args = append(args, f.Status)
	}
	where := ""
	if len(conds) > 0 {
		where = " WHERE " + strings.Join(conds, " AND ")
	}
	const from = ` FROM payments p JOIN transactions t ON t.transaction_id = p.transaction_id`

	var total int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*)"+from+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	q := `SELECT ` + payColumns + `, t.transaction_ulid, t.user_id` + from + where +
		` ORDER BY p.payment_id DESC LIMIT ? OFFSET ?`
	rows, err := s.db.QueryContext(ctx, q, append(args, f.Limit, f.Offset)...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var out []*paymentRow
	for rows.Next() {
		r, err := scanRow(rows.Scan)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, r)
	}
	return out, total, rows.Err()
}

// txnCharges is what a loan owes and who owes it.
type txnCharges struct {
	TransactionID int64
	TxnULID       string
	UserID        string
	FineAmount    decimal.Decimal
	DamageCharge  decimal.Decimal
	FinePaid      bool
}

func (s *Store) ChargesByTxnULID(ctx context.Context, tx platformdb.DBTX, txnULID string) (*txnCharges, error) {
	if tx == nil {
		tx = s.db
	}
	const q = `
	SELECT transaction_id, transaction_ulid, user_id, fine_amount, damage_charge, fine_paid
	FROM transactions WHERE transaction_ulid = ? LIMIT 1`
	var c txnCharges
	err := tx.QueryRowContext(ctx, q, txnULID).Scan(&c.TransactionID, &c.TxnULID, &c.UserID,
		&c.FineAmount, &c.DamageCharge, &c.FinePaid)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &c, nil
}

// PaidTotal sums net settlements recorded against the loan.
func (s *Store) PaidTotal(ctx context.Context, tx platformdb.DBTX, txnID int64) (decimal.Decimal, error) {
	if tx == nil {
		tx = s.db
	}
	const q = `
	SELECT COALESCE(SUM(amount - refund_amount), 0) FROM payments
	WHERE transaction_id = ? AND status IN ('COMPLETED', 'PARTIALLY_REFUNDED')`
	var total decimal.Decimal
	err := tx.QueryRowContext(ctx, q, txnID).Scan(&total)
	return total, err
}

func (s *Store) MarkFinePaid(ctx context.Context, tx platformdb.DBTX, txnID int64) error {
	_, err := tx.ExecContext(ctx, `UPDATE transactions SET fine_paid = 1 WHERE transaction_id = ?`, txnID)
	return err
}
