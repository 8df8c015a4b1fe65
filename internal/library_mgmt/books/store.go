package books

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	platformdb "ALMS-backend/internal/platform/db"
)

type Store struct{ db *sql.DB }

func NewStore(db *sql.DB) *Store { return &Store{db: db} }

const bookColumns = `book_id, book_ulid, isbn, title, author, publisher, total_copies, available_copies,
	loan_period_days, fine_per_day, max_renewals, security_deposit, is_active, created_at, updated_at`

func scanBook(scan func(dest ...any) error) (*Book, error) {
	var b Book
	var publisher sql.NullString
	err := scan(&b.BookID, &b.BookULID, &b.ISBN, &b.Title, &b.Author, &publisher,
		&b.TotalCopies, &b.AvailableCopies, &b.LoanPeriodDays, &b.FinePerDay,
		&b.MaxRenewals, &b.SecurityDeposit, &b.IsActive, &b.CreatedAt, &b.UpdatedAt)
	if err != nil {
		return nil, err
	}
	b.Publisher = publisher.String
	return &b, nil
}

func (s *Store) Insert(ctx context.Context, b *Book) error {
	const q = `
	INSERT INTO books
	(book_ulid, isbn, title, author, publisher, total_copies, available_copies,
	 loan_period_days, fine_per_day, max_renewals, security_deposit, is_active, created_at, updated_at)
	VALUES (?, ?, ?, ?, ?, 0, 0, ?, ?, ?, ?, 1, ?, ?)`
	res, err := s.db.ExecContext(ctx, q, b.BookULID, b.ISBN, b.Title, b.Author, b.Publisher,
		b.LoanPeriodDays, b.FinePerDay, b.MaxRenewals, b.SecurityDeposit, b.CreatedAt, b.UpdatedAt)
	if err != nil {
		return err
	}
	id, _ := res.LastInsertId()
	b.BookID = id
	return nil
}

// GetByULID returns nil (no error) when the book does not exist. tx
// may be the pool or an open transaction.
func (s *Store) GetByULID(ctx context.Context, tx platformdb.DBTX, bookULID string) (*Book, error) {
	if tx == nil {
		tx = s.db
	}
	q := `SELECT ` + bookColumns + ` FROM books WHERE book_ulid = ? LIMIT 1`
	b, err := scanBook(tx.QueryRowContext(ctx, q, bookULID).Scan)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return b, err
}

func (s *Store) GetByID(ctx context.Context, tx platformdb.DBTX, bookID int64) (*Book, error) {
	if tx == nil {
		tx = s.db
	}
	q := `SELECT ` + bookColumns + ` FROM books WHERE book_id = ? LIMIT 1`
	b, err := scanBook(tx.QueryRowContext(ctx, q, bookID).Scan)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return b, err
}

func (s *Store) GetByISBN(ctx context.Context, isbn string) (*Book, error) {
	q := `SELECT ` + bookColumns + ` FROM books WHERE isbn = ? LIMIT 1`
	b, err := scanBook(s.db.QueryRowContext(ctx, q, isbn).Scan)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return b, err
}

func (s *Store) List(ctx context.Context, f Filter) ([]Book, int64, error) {
	where := []string{"1=1"}
	args := []any{}
	if f.ActiveOnly {
		where = append(where, "is_active = 1")
	}
	if f.Query != "" {
		where = append(where, "(LOWER(title) LIKE ? OR LOWER(author) LIKE ? OR isbn LIKE ?)")
		pat := "%" + f.Query + "%"
		args = append(args, pat, pat, pat)
	}
	cond := strings.Join(where, " AND ")

	var total int64
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM books WHERE `+cond, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	q := fmt.Sprintf(`SELECT %s FROM books WHERE %s ORDER BY title, book_id LIMIT ? OFFSET ?`, bookColumns, cond)
	args = append(args, f.Limit, f.Offset)

	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	res := make([]Book, 0, f.Limit)
	for rows.Next() {
		b, err := scanBook(rows.Scan)
		if err != nil {
			return nil, 0, err
		}
		res = append(res, *b)
	}
	return res, total, rows.Err()
}

// Update builds the SET list dynamically; no fields means no-op.
func (s *Store) Update(ctx context.Context, bookULID string, in UpdateBookRequest, now time.Time) (int64, error) {
	sets := []string{}
	args := []any{}
	if in.Title != nil {
		sets = append(sets, "title = ?")
		args = append(args, *in.Title)
	}
	if in.Author != nil {
		sets = append(sets, "author = ?")
		args = append(args, *in.Author)
	}
	if in.Publisher != nil {
		sets = append(sets, "publisher = ?")
		args = append(args, *in.Publisher)
	}
	if in.LoanPeriodDays != nil {
		sets = append(sets, "loan_period_days = ?")
		args = append(args, *in.LoanPeriodDays)
	}
	if in.FinePerDay != nil {
		sets = append(sets, "fine_per_day = ?")
		args = append(args, *in.FinePerDay)
	}
	if in.MaxRenewals != nil {
		sets = append(sets, "max_renewals = ?")
		args = append(args, *in.MaxRenewals)
	}
	if in.SecurityDeposit != nil {
		sets = append(sets, "security_deposit = ?")
		args = append(args, *in.SecurityDeposit)
	}
	if len(sets) == 0 {
		return 1, nil
	}
	sets = append(sets, "updated_at = ?")
	args = append(args, now, bookULID)

	q := fmt.Sprintf(`UPDATE books SET %s WHERE book_ulid = ?`, strings.Join(sets, ", "))
	res, err := s.db.ExecContext(ctx, q, args...)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (s *Store) Deactivate(ctx context.Context, bookULID string, now time.Time) (int64, error) {
	const q = `UPDATE books SET is_active = 0, updated_at = ? WHERE book_ulid = ? AND is_active = 1`
	res, err := s.db.ExecContext(ctx, q, now, bookULID)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// ===== copies =====

const copyColumns = `copy_id, book_id, copy_number, barcode, status, cond, created_at`

func (s *Store) GetCopyByBarcode(ctx context.Context, tx platformdb.DBTX, barcode string) (*BookCopy, error) {
	if tx == nil {
		tx = s.db
	}
	q := `SELECT ` + copyColumns + ` FROM book_copies WHERE barcode = ? LIMIT 1`
	var c BookCopy
	err := tx.QueryRowContext(ctx, q, barcode).Scan(
		&c.CopyID, &c.BookID, &c.CopyNumber, &c.Barcode, &c.Status, &c.Condition, &c.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &c, nil
}

func (s *Store) ListCopies(ctx context.Context, bookID int64) ([]BookCopy, error) {
	q := `SELECT ` + copyColumns + ` FROM book_copies WHERE book_id = ? ORDER BY copy_number`
	rows, err := s.db.QueryContext(ctx, q, bookID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	res := make([]BookCopy, 0, 8)
	for rows.Next() {
		var c BookCopy
		if err := rows.Scan(&c.CopyID, &c.BookID, &c.CopyNumber, &c.Barcode, &c.Status, &c.Condition, &c.CreatedAt); err != nil {
			return nil, err
		}
		res = append(res, c)
	}
	return res, rows.Err()
}

func (s *Store) maxCopyNumber(ctx context.Context, tx platformdb.DBTX, bookID int64) (int, error) {
	const q = `SELECT COALESCE(MAX(copy_number), 0) FROM book_copies WHERE book_id = ?`
	var n int
	if err := tx.QueryRowContext(ctx, q, bookID).Scan(&n); err != nil {
		return 0, err
	}
	return n, nil
}

func (s *Store) insertCopy(ctx context.Context, tx platformdb.DBTX, c *BookCopy) error {
	const q = `
	INSERT INTO book_copies (book_id, copy_number, barcode, status, cond, created_at)
	VALUES (?, ?, ?, ?, ?, ?)`
	res, err := tx.ExecContext(ctx, q, c.BookID, c.CopyNumber, c.Barcode, c.Status, c.Condition, c.CreatedAt)
	if err != nil {
		return err
	}
	id, _ := res.LastInsertId()
	c.CopyID = id
	return nil
}

// bumpCounters moves the derived counters; callers pass the deltas for
// the copy mutation committed in the same transaction. RowsAffected=0
// means the update would have driven a counter negative.
func (s *Store) bumpCounters(ctx context.Context, tx platformdb.DBTX, bookID int64, dTotal, dAvail int, now time.Time) (int64, error) {
	const q = `
	UPDATE books
	SET total_copies = total_copies + ?, available_copies = available_copies + ?, updated_at = ?
	WHERE book_id = ? AND total_copies + ? >= 0 AND available_copies + ? >= 0`
	res, err := tx.ExecContext(ctx, q, dTotal, dAvail, now, bookID, dTotal, dAvail)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// copyOnActiveLoan reports whether the copy backs a live transaction.
func (s *Store) copyOnActiveLoan(ctx context.Context, tx platformdb.DBTX, copyID int64) (bool, error) {
	const q = `
	SELECT COUNT(*) FROM transactions
	WHERE copy_id = ? AND status IN ('ISSUED', 'RENEWED', 'OVERDUE')`
	var n int
	if err := tx.QueryRowContext(ctx, q, copyID).Scan(&n); err != nil {
		return false, err
	}
	return n > 0, nil
}

// updateCopyStatus flips the row only if it still has the status the
// caller observed, so two concurrent transitions cannot both win.
func (s *Store) updateCopyStatus(ctx context.Context, tx platformdb.DBTX, copyID int64, fromStatus, toStatus, cond string) (int64, error) {
	const q = `UPDATE book_copies SET status = ?, cond = ? WHERE copy_id = ? AND status = ?`
	res, err := tx.ExecContext(ctx, q, toStatus, cond, copyID, fromStatus)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

func (s *Store) deleteCopy(ctx context.Context, tx platformdb.DBTX, copyID int64) (int64, error) {
	const q = `DELETE FROM book_copies WHERE copy_id = ?`
	res, err := tx.ExecContext(ctx, q, copyID)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}
