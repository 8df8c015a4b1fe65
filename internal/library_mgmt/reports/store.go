package reports

import (
	"context"
	"database/sql"
	"time"
)

type Store struct{ db *sql.DB }

func NewStore(db *sql.DB) *Store { return &Store{db: db} }

func (s *Store) Dashboard(ctx context.Context, now time.Time) (*DashboardResponse, error) {
	var d DashboardResponse

	const books = `
	SELECT COUNT(*), COALESCE(SUM(total_copies), 0), COALESCE(SUM(available_copies), 0)
	FROM books WHERE is_active = 1`
	if err := s.db.QueryRowContext(ctx, books).Scan(&d.TotalBooks, &d.TotalCopies, &d.AvailableCopies); err != nil {
		return nil, err
	}

	const users = `
	SELECT COUNT(*),
	  COALESCE(SUM(CASE WHEN status = 'ACTIVE' THEN 1 ELSE 0 END), 0),
	  COALESCE(SUM(CASE WHEN status = 'PENDING_APPROVAL' THEN 1 ELSE 0 END), 0)
	FROM users`
	if err := s.db.QueryRowContext(ctx, users).Scan(&d.TotalUsers, &d.ActiveUsers, &d.PendingApprovals); err != nil {
		return nil, err
	}

	const loans = `
	SELECT
	  COALESCE(SUM(CASE WHEN status IN ('ISSUED', 'RENEWED', 'OVERDUE') THEN 1 ELSE 0 END), 0),
	  COALESCE(SUM(CASE WHEN status IN ('ISSUED', 'RENEWED', 'OVERDUE') AND due_date < ? THEN 1 ELSE 0 END), 0),
	  COALESCE(SUM(CASE WHEN fine_paid = 0 THEN fine_amount ELSE 0 END), 0)
	FROM transactions`
	if err := s.db.QueryRowContext(ctx, loans, now).Scan(&d.ActiveLoans, &d.OverdueLoans, &d.OutstandingFines); err != nil {
		return nil, err
	}

	const reqs = `SELECT COUNT(*) FROM borrow_requests WHERE status = 'PENDING'`
	if err := s.db.QueryRowContext(ctx, reqs).Scan(&d.PendingRequests); err != nil {
		return nil, err
	}

	const collected = `SELECT COALESCE(SUM(amount - refund_amount), 0) FROM payments`
	if err := s.db.QueryRowContext(ctx, collected).Scan(&d.NetCollected); err != nil {
		return nil, err
	}
	return &d, nil
}

func (s *Store) Financial(ctx context.Context, from, to time.Time) (*FinancialResponse, error) {
	r := FinancialResponse{From: from, To: to}

	const totals = `
	SELECT COUNT(*),
	  COALESCE(SUM(amount), 0),
	  COALESCE(SUM(refund_amount), 0),
	  COALESCE(SUM(late_fee), 0),
	  COALESCE(SUM(damage_charge), 0)
	FROM payments WHERE created_at >= ? AND created_at < ?`
	if err := s.db.QueryRowContext(ctx, totals, from, to).Scan(&r.PaymentCount, &r.GrossCollected,
		&r.TotalRefunded, &r.LateFees, &r.DamageCharges); err != nil {
		return nil, err
	}
	r.NetCollected = r.GrossCollected.Sub(r.TotalRefunded)

	const byMethod = `
	SELECT method, COUNT(*), COALESCE(SUM(amount), 0)
	FROM payments WHERE created_at >= ? AND created_at < ?
	GROUP BY method ORDER BY method`
	rows, err := s.db.QueryContext(ctx, byMethod, from, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var m MethodTotal
		if err := rows.Scan(&m.Method, &m.Count, &m.Amount); err != nil {
			return nil, err
		}
		r.ByMethod = append(r.ByMethod, m)
	}
	return &r, rows.Err()
}

func (s *Store) Circulation(ctx context.Context, from, to time.Time) (*CirculationResponse, error) {
	r := CirculationResponse{From: from, To: to}

	const q = `
	SELECT
	  COALESCE(SUM(CASE WHEN issue_date >= ? AND issue_date < ? THEN 1 ELSE 0 END), 0),
	  COALESCE(SUM(CASE WHEN return_date IS NOT NULL AND return_date >= ? AND return_date < ? THEN 1 ELSE 0 END), 0),
	  COALESCE(SUM(CASE WHEN issue_date >= ? AND issue_date < ? THEN renewal_count ELSE 0 END), 0),
	  COUNT(DISTINCT CASE WHEN issue_date >= ? AND issue_date < ? THEN user_id END)
	FROM transactions`
	err := s.db.QueryRowContext(ctx, q, from, to, from, to, from, to, from, to).Scan(
		&r.Issued, &r.Returned, &r.Renewals, &r.UniqueBorrowers)
	if err != nil {
		return nil, err
	}
	return &r, nil
}
