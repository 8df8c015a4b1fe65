package requests

import (
	"context"
	"database/sql"
	"strings"
	"time"

	platformdb "ALMS-backend/internal/platform/db"
)

type Store struct{ db *sql.DB }

func NewStore(db *sql.DB) *Store { return &Store{db: db} }

const reqColumns = `request_id, request_ulid, user_id, book_id, status, notes, decided_by, decided_at, created_at`

func scanRequest(scan func(dest ...any) error) (*BorrowRequest, error) {
	var r BorrowRequest
	err := scan(&r.RequestID, &r.RequestULID, &r.UserID, &r.BookID, &r.Status,
		&r.Notes, &r.DecidedBy, &r.DecidedAt, &r.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &r, nil
}

func (s *Store) GetByULID(ctx context.Context, tx platformdb.DBTX, ulid string) (*BorrowRequest, error) {
	if tx == nil {
		tx = s.db
	}
	q := `SELECT ` + reqColumns + ` FROM borrow_requests WHERE request_ulid = ? LIMIT 1`
	r, err := scanRequest(tx.QueryRowContext(ctx, q, ulid).Scan)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return r, err
}

// HasPending reports whether the user already has an undecided request
// for the book.
func (s *Store) HasPending(ctx context.Context, tx platformdb.DBTX, userID string, bookID int64) (bool, error) {
	const q = `SELECT COUNT(*) FROM borrow_requests WHERE user_id = ? AND book_id = ? AND status = 'PENDING'`
	var n int
	if err := tx.QueryRowContext(ctx, q, userID, bookID).Scan(&n); err != nil {
		return false, err
	}
	return n > 0, nil
}

func (s *Store) Insert(ctx context.Context, tx platformdb.DBTX, r *BorrowRequest) error {
	const q = `
	INSERT INTO borrow_requests (request_ulid, user_id, book_id, status, notes, created_at)
	VALUES (?, ?, ?, ?, ?, ?)`
	res, err := tx.ExecContext(ctx, q, r.RequestULID, r.UserID, r.BookID, r.Status, r.Notes, r.CreatedAt)
	if err != nil {
		return err
	}
	id, _ := res.LastInsertId()
	r.RequestID = id
	return nil
}

// Decide moves a PENDING request to its final status. Zero rows
// affected means the request was already decided.
func (s *Store) Decide(ctx context.Context, tx platformdb.DBTX, requestID int64, status, decidedBy, reason string, now time.Time) (bool, error) {
	q := `UPDATE borrow_requests SET status = ?, decided_by = ?, decided_at = ?`
	args := []any{status, decidedBy, now}
	if reason != "" {
		q += `, notes = ?`
		args = append(args, reason)
	}
	q += ` WHERE request_id = ? AND status = 'PENDING'`
	args = append(args, requestID)
	res, err := tx.ExecContext(ctx, q, args...)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

func (s *Store) List(ctx context.Context, f Filter) ([]*BorrowRequest, int, error) {
	var conds []string
	var args []any
	if f.UserID != "" {
		conds = append(conds, "user_id = ?")
		args = append(args, f.UserID)
	}
	if f.Status != "" {
		conds = append(conds, "status = ?")
		args = append(args, f.Status)
	}
	where := ""
	if len(conds) > 0 {
		where = " WHERE " + strings.Join(conds, " AND ")
	}

	var total int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM borrow_requests"+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	q := `SELECT ` + reqColumns + ` FROM borrow_requests` + where + ` ORDER BY request_id DESC LIMIT ? OFFSET ?`
	rows, err := s.db.QueryContext(ctx, q, append(args, f.Limit, f.Offset)...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var out []*BorrowRequest
	for rows.Next() {
		r, err := scanRequest(rows.Scan)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, r)
	}
	return out, total, rows.Err()
}

// BookSummary resolves the public id and title for response shaping.
func (s *Store) BookSummary(ctx context.Context, tx platformdb.DBTX, bookID int64) (ulid, title string, err error) {
	if tx == nil {
		tx = s.db
	}
	err = tx.QueryRowContext(ctx, `SELECT book_ulid, title FROM books WHERE book_id = ?`, bookID).Scan(&ulid, &title)
	return ulid, title, err
}

// ActiveBookID resolves a public book id to its row id, active books only.
func (s *Store) ActiveBookID(ctx context.Context, tx platformdb.DBTX, bookULID string) (int64, string, error) {
	if tx == nil {
		tx = s.db
	}
	var id int64
	var title string
	err := tx.QueryRowContext(ctx,
		`SELECT book_id, title FROM books WHERE book_ulid = ? AND is_active = 1`, bookULID).Scan(&id, &title)
	if err == sql.ErrNoRows {
		return 0, "", nil
	}
	return id, title, err
}
