package books

import (
	"context"
	"crypto/rand"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	mysql "github.com/go-sql-driver/mysql"
	"github.com/oklog/ulid/v2"
	"golang.org/x/text/unicode/norm"

	"ALMS-backend/internal/platform/apierr"
	platformdb "ALMS-backend/internal/platform/db"
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
	db    *sql.DB
	store *Store
	clock Clock
	id    IDGen
}

func NewService(db *sql.DB) *Service {
	return &Service{db: db, store: NewStore(db), clock: realClock{}, id: ulidGen{}}
}

// foldQuery normalizes a search term: NFKC so full-width input matches
// the catalog, then lower-case for the LIKE match.
func foldQuery(q string) string {
	return strings.ToLower(norm.NFKC.String(strings.TrimSpace(q)))
}

// barcode derives the copy barcode from the book's public ID and the
// sequential copy number: BC-<first 8 of ULID>-<zero-padded number>.
func barcode(bookULID string, copyNumber int) string {
	return fmt.Sprintf("BC-%s-%03d", bookULID[:8], copyNumber)
}

func mapDupKey(err error, msg string) error {
	var me *mysql.MySQLError
	if errors.As(err, &me) && me.Number == 1062 {
		return apierr.ErrConflict(msg)
	}
	return err
}

func (s *Service) CreateBook(ctx context.Context, in CreateBookRequest) (*BookResponse, error) {
	if strings.TrimSpace(in.ISBN) == "" || strings.TrimSpace(in.Title) == "" || strings.TrimSpace(in.Author) == "" {
		return nil, apierr.ErrInvalid("isbn, title and author are required")
	}
	if in.LoanPeriodDays < 0 || in.MaxRenewals < 0 || in.InitialCopies < 0 {
		return nil, apierr.ErrInvalid("loan_period_days, max_renewals and initial_copies must be >= 0")
	}
	if in.FinePerDay.IsNegative() || in.SecurityDeposit.IsNegative() {
		return nil, apierr.ErrInvalid("fine_per_day and security_deposit must be >= 0")
	}

	existing, err := s.store.GetByISBN(ctx, strings.TrimSpace(in.ISBN))
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, apierr.ErrConflict("isbn already exists")
	}

	id, err := s.id.New()
	if err != nil {
		return nil, err
	}

	now := s.clock.Now()
	b := &Book{
		BookULID:        id,
		ISBN:            strings.TrimSpace(in.ISBN),
		Title:           strings.TrimSpace(in.Title),
		Author:          strings.TrimSpace(in.Author),
		LoanPeriodDays:  in.LoanPeriodDays,
		FinePerDay:      in.FinePerDay,
		MaxRenewals:     in.MaxRenewals,
		SecurityDeposit: in.SecurityDeposit,
		IsActive:        true,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if in.LoanPeriodDays == 0 {
		b.LoanPeriodDays = 14
	}
	if in.Publisher != nil {
		b.Publisher = strings.TrimSpace(*in.Publisher)
	}

	if err := s.store.Insert(ctx, b); err != nil {
		return nil, mapDupKey(err, "isbn already exists")
	}

	if in.InitialCopies > 0 {
		cond := CondGood
		if in.InitialCond != nil {
			cond = *in.InitialCond
		}
		if _, err := s.AddCopies(ctx, b.BookULID, AddCopiesRequest{Count: in.InitialCopies, Condition: &cond}); err != nil {
			return nil, err
		}
		b.TotalCopies = in.InitialCopies
		b.AvailableCopies = in.InitialCopies
	}

	resp := toBookResponse(b)
	return &resp, nil
}

func (s *Service) GetBook(ctx context.Context, bookULID string) (*BookResponse, error) {
	b, err := s.store.GetByULID(ctx, nil, bookULID)
	if err != nil {
		return nil, err
	}
	if b == nil {
		return nil, apierr.ErrNotFound("book not found")
	}
	resp := toBookResponse(b)
	return &resp, nil
}

func (s *Service) ListBooks(ctx context.Context, f Filter) (*ListBooksResponse, error) {
	if f.Limit <= 0 || f.Limit > 200 {
		f.Limit = 50
	}
	f.Query = foldQuery(f.Query)

	list, total, err := s.store.List(ctx, f)
	if err != nil {
		return nil, err
	}
	resp := &ListBooksResponse{Books: make([]BookResponse, 0, len(list)), Total: total}
	for i := range list {
		resp.Books = append(resp.Books, toBookResponse(&list[i]))
	}
	return resp, nil
}

func (s *Service) UpdateBook(ctx context.Context, bookULID string, in UpdateBookRequest) (*BookResponse, error) {
	if in.FinePerDay != nil && in.FinePerDay.IsNegative() {
		return nil, apierr.ErrInvalid("fine_per_day must be >= 0")
	}
	if in.SecurityDeposit != nil && in.SecurityDeposit.IsNegative() {
		return nil, apierr.ErrInvalid("security_deposit must be >= 0")
	}
	if in.LoanPeriodDays != nil && *in.LoanPeriodDays <= 0 {
		return nil, apierr.ErrInvalid("loan_period_days must be > 0")
	}
	if in.MaxRenewals != nil && *in.MaxRenewals < 0 {
		return nil, apierr.ErrInvalid("max_renewals must be >= 0")
	}

	aff, err := s.store.Update(ctx, bookULID, in, s.clock.Now())
	if err != nil {
		return nil, err
	}
	if aff == 0 {
		return nil, apierr.ErrNotFound("book not found")
	}
	return s.GetBook(ctx, bookULID)
}

// DeactivateBook is the catalog soft delete: the title stops being
// issuable but its rows and history stay.
func (s *Service) DeactivateBook(ctx context.Context, bookULID string) error {
	aff, err := s.store.Deactivate(ctx, bookULID, s.clock.Now())
	if err != nil {
		return err
	}
	if aff == 0 {
		b, err := s.store.GetByULID(ctx, nil, bookULID)
		if err != nil {
			return err
		}
		if b == nil {
			return apierr.ErrNotFound("book not found")
		}
		return apierr.ErrConflict("book already inactive")
	}
	return nil
}

// AddCopies creates count sequential copies and moves both counters by
// the batch size inside one transaction.
func (s *Service) AddCopies(ctx context.Context, bookULID string, in AddCopiesRequest) ([]CopyResponse, error) {
	if in.Count <= 0 || in.Count > 100 {
		return nil, apierr.ErrInvalid("count must be between 1 and 100")
	}
	cond := CondGood
	if in.Condition != nil {
		cond = *in.Condition
	}
	if !ValidCondition(cond) {
		return nil, apierr.ErrInvalid("unknown condition: " + cond)
	}

	var created []CopyResponse
	err := platformdb.RunInTx(ctx, s.db, nil, func(ctx context.Context, tx platformdb.DBTX) error {
		b, err := s.store.GetByULID(ctx, tx, bookULID)
		if err != nil {
			return err
		}
		if b == nil {
			return apierr.ErrNotFound("book not found")
		}

		next, err := s.store.maxCopyNumber(ctx, tx, b.BookID)
		if err != nil {
			return err
		}

		now := s.clock.Now()
		for i := 1; i <= in.Count; i++ {
			c := &BookCopy{
				BookID:     b.BookID,
				CopyNumber: next + i,
				Barcode:    barcode(b.BookULID, next+i),
				Status:     CopyAvailable,
				Condition:  cond,
				CreatedAt:  now,
			}
			if err := s.store.insertCopy(ctx, tx, c); err != nil {
				return mapDupKey(err, "barcode already exists")
			}
			created = append(created, CopyResponse{
				Barcode:    c.Barcode,
				BookULID:   b.BookULID,
				CopyNumber: c.CopyNumber,
				Status:     c.Status,
				Condition:  c.Condition,
				CreatedAt:  c.CreatedAt,
			})
		}

		aff, err := s.store.bumpCounters(ctx, tx, b.BookID, in.Count, in.Count, now)
		if err != nil {
			return err
		}
		if aff == 0 {
			return apierr.ErrConflict("failed to update copy counters")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return created, nil
}

func (s *Service) ListCopies(ctx context.Context, bookULID string) ([]CopyResponse, error) {
	b, err := s.store.GetByULID(ctx, nil, bookULID)
	if err != nil {
		return nil, err
	}
	if b == nil {
		return nil, apierr.ErrNotFound("book not found")
	}
	copies, err := s.store.ListCopies(ctx, b.BookID)
	if err != nil {
		return nil, err
	}
	res := make([]CopyResponse, 0, len(copies))
	for _, c := range copies {
		res = append(res, CopyResponse{
			Barcode:    c.Barcode,
			BookULID:   b.BookULID,
			CopyNumber: c.CopyNumber,
			Status:     c.Status,
			Condition:  c.Condition,
			CreatedAt:  c.CreatedAt,
		})
	}
	return res, nil
}

// UpdateCopyStatus transitions one copy. The AVAILABLE counter moves
// only when the transition crosses the AVAILABLE boundary, and a copy
// on an active loan cannot be transitioned at all (return it first).
func (s *Service) UpdateCopyStatus(ctx context.Context, barcode string, in UpdateCopyStatusRequest) (*CopyResponse, error) {
	if !ValidCopyStatus(in.Status) {
		return nil, apierr.ErrInvalid("unknown status: " + in.Status)
	}
	if in.Status == CopyIssued {
		return nil, apierr.ErrInvalid("ISSUED is set by the circulation flow, not directly")
	}
	if in.Condition != nil && !ValidCondition(*in.Condition) {
		return nil, apierr.ErrInvalid("unknown condition: " + *in.Condition)
	}

	var out *CopyResponse
	err := platformdb.RunInTx(ctx, s.db, nil, func(ctx context.Context, tx platformdb.DBTX) error {
		c, err := s.store.GetCopyByBarcode(ctx, tx, barcode)
		if err != nil {
			return err
		}
		if c == nil {
			return apierr.ErrNotFound("copy not found")
		}

		onLoan, err := s.store.copyOnActiveLoan(ctx, tx, c.CopyID)
		if err != nil {
			return err
		}
		if onLoan {
			return apierr.ErrInvalid("copy is on an active loan")
		}

		cond := c.Condition
		if in.Condition != nil {
			cond = *in.Condition
		}
		if c.Status == in.Status && cond == c.Condition {
			out = s.copyResp(ctx, tx, c)
			return nil
		}

		aff, err := s.store.updateCopyStatus(ctx, tx, c.CopyID, c.Status, in.Status, cond)
		if err != nil {
			return err
		}
		if aff == 0 {
			return apierr.ErrConflict("copy changed concurrently")
		}

		dAvail := 0
		if c.Status == CopyAvailable && in.Status != CopyAvailable {
			dAvail = -1
		} else if c.Status != CopyAvailable && in.Status == CopyAvailable {
			dAvail = 1
		}
		if dAvail != 0 {
			aff, err := s.store.bumpCounters(ctx, tx, c.BookID, 0, dAvail, s.clock.Now())
			if err != nil {
				return err
			}
			if aff == 0 {
				return apierr.ErrConflict("failed to update copy counters")
			}
		}

		c.Status = in.Status
		c.Condition = cond
		out = s.copyResp(ctx, tx, c)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// DeleteCopy removes a copy permanently. Rejected while on loan.
func (s *Service) DeleteCopy(ctx context.Context, barcode string) error {
	return platformdb.RunInTx(ctx, s.db, nil, func(ctx context.Context, tx platformdb.DBTX) error {
		c, err := s.store.GetCopyByBarcode(ctx, tx, barcode)
		if err != nil {
			return err
		}
		if c == nil {
			return apierr.ErrNotFound("copy not found")
		}

		onLoan, err := s.store.copyOnActiveLoan(ctx, tx, c.CopyID)
		if err != nil {
			return err
		}
		if onLoan {
			return apierr.ErrInvalid("copy is on an active loan")
		}

		if _, err := s.store.deleteCopy(ctx, tx, c.CopyID); err != nil {
			return err
		}

		dAvail := 0
		if c.Status == CopyAvailable {
			dAvail = -1
		}
		aff, err := s.store.bumpCounters(ctx, tx, c.BookID, -1, dAvail, s.clock.Now())
		if err != nil {
			return err
		}
		if aff == 0 {
			return apierr.ErrConflict("failed to update copy counters")
		}
		return nil
	})
}

func (s *Service) copyResp(ctx context.Context, tx platformdb.DBTX, c *BookCopy) *CopyResponse {
	ulid := ""
	if b, err := s.store.GetByID(ctx, tx, c.BookID); err == nil && b != nil {
		ulid = b.BookULID
	}
	return &CopyResponse{
		Barcode:    c.Barcode,
		BookULID:   ulid,
		CopyNumber: c.CopyNumber,
		Status:     c.Status,
		Condition:  c.Condition,
		CreatedAt:  c.CreatedAt,
	}
}
