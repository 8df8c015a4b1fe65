package labels

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/csv"

	"golang.org/x/text/encoding/japanese"
	"golang.org/x/text/transform"

	"ALMS-backend/internal/platform/apierr"
)

type Service struct {
	store *Store
}

func NewService(db *sql.DB) *Service { return &Service{store: NewStore(db)} }

// Export renders spine labels for the selected copies as CSV. The
// default cp932 encoding is what the desk's label printer software
// imports; utf8 is for everything else.
func (s *Service) Export(ctx context.Context, in ExportRequest) ([]byte, error) {
	if len(in.Barcodes) == 0 && in.BookID == "" {
		return nil, apierr.ErrInvalid("barcodes or book_id is required")
	}
	if len(in.Barcodes) > 200 {
		return nil, apierr.ErrInvalid("at most 200 barcodes per export")
	}
	switch in.Encoding {
	case "", "cp932", "utf8":
	default:
		return nil, apierr.ErrInvalid("encoding must be cp932 or utf8")
	}

	var rows []LabelRow
	var err error
	if len(in.Barcodes) > 0 {
		rows, err = s.store.ByBarcodes(ctx, in.Barcodes)
	} else {
		rows, err = s.store.ByBookULID(ctx, in.BookID)
	}
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, apierr.ErrNotFound("no copies matched the selection")
	}
	return writeCSV(rows, in.Encoding != "utf8")
}

func writeCSV(rows []LabelRow, cp932 bool) ([]byte, error) {
	var b bytes.Buffer
	w := csv.NewWriter(&b)
	if cp932 {
		w = csv.NewWriter(transform.NewWriter(&b, japanese.ShiftJIS.NewEncoder()))
	}

	if err := w.Write([]string{"title", "author", "barcode", "isbn"}); err != nil {
		return nil, err
	}
	for _, r := range rows {
		if err := w.Write([]string{r.Title, r.Author, r.Barcode, r.ISBN}); err != nil {
			return nil, err
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return nil, err
	}
	return b.Bytes(), nil
}
