package labels

import (
	"context"
	"database/sql"
	"strings"
)

type Store struct{ db *sql.DB }

func NewStore(db *sql.DB) *Store { return &Store{db: db} }

const labelSelect = `
	SELECT b.title, b.author, c.barcode, b.isbn
	FROM book_copies c
	JOIN books b ON b.book_id = c.book_id`

func (s *Store) ByBarcodes(ctx context.Context, barcodes []string) ([]LabelRow, error) {
	placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(barcodes)), ", ")
	q := labelSelect + ` WHERE c.barcode IN (` + placeholders + `) ORDER BY c.barcode`
	args := make([]any, len(barcodes))
	for i, bc := range barcodes {
		args[i] = bc
	}
	return s.collect(ctx, q, args...)
}

func (s *Store) ByBookULID(ctx context.Context, bookULID string) ([]LabelRow, error) {
	q := labelSelect + ` WHERE b.book_ulid = ? ORDER BY c.copy_number`
	return s.collect(ctx, q, bookULID)
}

func (s *Store) collect(ctx context.Context, q string, args ...any) ([]LabelRow, error) {
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []LabelRow
	for rows.Next() {
		var r LabelRow
		if err := rows.Scan(&r.Title, &r.Author, &r.Barcode, &r.ISBN); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}
