package requests

import (
	"context"
	"crypto/rand"
	"database/sql"
	"fmt"
	"time"

	"github.com/oklog/ulid/v2"

	"ALMS-backend/internal/library_mgmt/transactions"
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

// Issuer checks out the requested book when a request is approved.
// Satisfied by the circulation service.
type Issuer interface {
	Issue(ctx context.Context, actor auth.Actor, in transactions.IssueRequest) (*transactions.TransactionResponse, error)
}

type Service struct {
	db       *sql.DB
	store    *Store
	issuer   Issuer
	notifier notify.Dispatcher
	clock    Clock
	id       IDGen
}

func NewService(db *sql.DB, issuer Issuer, notifier notify.Dispatcher) *Service {
	return &Service{db: db, store: NewStore(db), issuer: issuer, notifier: notifier, clock: realClock{}, id: ulidGen{}}
}

// Create files a borrow request for the calling user. At most one
// undecided request per user and book.
func (s *Service) Create(ctx context.Context, actor auth.Actor, in CreateRequest) (*RequestResponse, error) {
	now := s.clock.Now()
	reqULID, err := s.id.New()
	if err != nil {
		return nil, apierr.ErrInternal("failed to generate request id")
	}

	var r *BorrowRequest
	var bookULID, bookTitle string
	err = platformdb.RunInTx(ctx, s.db, nil, func(ctx context.Context, tx platformdb.DBTX) error {
		bookID, title, err := s.store.ActiveBookID(ctx, tx, in.BookID)
		if err != nil {
			return err
		}
		if bookID == 0 {
			return apierr.ErrNotFound("book not found")
		}
		bookULID, bookTitle = in.BookID, title

		pending, err := s.store.HasPending(ctx, tx, actor.UserID, bookID)
		if err != nil {
			return err
		}
		if pending {
			return apierr.ErrConflict("a pending request for this book already exists")
		}

		r = &BorrowRequest{
			RequestULID: reqULID,
			UserID:      actor.UserID,
			BookID:      bookID,
			Status:      StatusPending,
			Notes:       nullString(in.Notes),
			CreatedAt:   now,
		}
		return s.store.Insert(ctx, tx, r)
	})
	if err != nil {
		return nil, err
	}

	resp := toResponse(r, bookULID, bookTitle)
	return &resp, nil
}

// Approve decides the request and immediately issues the book to the
// requesting user. If issuing fails (no copies, unpaid fines) the
// request stays PENDING. Staff only; enforced in routing.
func (s *Service) Approve(ctx context.Context, actor auth.Actor, reqULID string) (*transactions.TransactionResponse, error) {
	r, err := s.store.GetByULID(ctx, nil, reqULID)
	if err != nil {
		return nil, err
	}
	if r == nil {
		return nil, apierr.ErrNotFound("request not found")
	}
	if r.Status != StatusPending {
		return nil, apierr.ErrInvalid(fmt.Sprintf("request is already %s", r.Status))
	}

	bookULID, bookTitle, err := s.store.BookSummary(ctx, nil, r.BookID)
	if err != nil {
		return nil, err
	}

	// Issue first: its own transaction enforces every circulation rule.
	txn, err := s.issuer.Issue(ctx, actor, transactions.IssueRequest{
		BookID: bookULID,
		UserID: r.UserID,
	})
	if err != nil {
		return nil, err
	}

	now := s.clock.Now()
	err = platformdb.RunInTx(ctx, s.db, nil, func(ctx context.Context, tx platformdb.DBTX) error {
		ok, err := s.store.Decide(ctx, tx, r.RequestID, StatusApproved, actor.UserID, "", now)
		if err != nil {
			return err
		}
		if !ok {
			return apierr.ErrConflict("request was decided by a concurrent request")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.notifier.Dispatch(ctx, r.UserID, notify.TypeRequestDecided,
		fmt.Sprintf("your request for %q was approved", bookTitle))
	return txn, nil
}

// Reject decides the request without issuing. Staff only.
func (s *Service) Reject(ctx context.Context, actor auth.Actor, reqULID string, in RejectRequest) (*RequestResponse, error) {
	now := s.clock.Now()

	var r *BorrowRequest
	err := platformdb.RunInTx(ctx, s.db, nil, func(ctx context.Context, tx platformdb.DBTX) error {
		var err error
		r, err = s.store.GetByULID(ctx, tx, reqULID)
		if err != nil {
			return err
		}
		if r == nil {
			return apierr.ErrNotFound("request not found")
		}
		if r.Status != StatusPending {
			return apierr.ErrInvalid(fmt.Sprintf("request is already %s", r.Status))
		}
		ok, err := s.store.Decide(ctx, tx, r.RequestID, StatusRejected, actor.UserID, in.Reason, now)
		if err != nil {
			return err
		}
		if !ok {
			return apierr.ErrConflict("request was decided by a concurrent request")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	bookULID, bookTitle, err := s.store.BookSummary(ctx, nil, r.BookID)
	if err != nil {
		return nil, err
	}
	s.notifier.Dispatch(ctx, r.UserID, notify.TypeRequestDecided,
		fmt.Sprintf("your request for %q was rejected", bookTitle))

	r.Status = StatusRejected
	r.DecidedBy = sql.NullString{String: actor.UserID, Valid: true}
	r.DecidedAt = sql.NullTime{Time: now, Valid: true}
	if in.Reason != "" {
		r.Notes = sql.NullString{String: in.Reason, Valid: true}
	}
	resp := toResponse(r, bookULID, bookTitle)
	return &resp, nil
}

// Cancel withdraws the caller's own pending request.
func (s *Service) Cancel(ctx context.Context, actor auth.Actor, reqULID string) error {
	now := s.clock.Now()
	return platformdb.RunInTx(ctx, s.db, nil, func(ctx context.Context, tx platformdb.DBTX) error {
		r, err := s.store.GetByULID(ctx, tx, reqULID)
		if err != nil {
			return err
		}
		if r == nil {
			return apierr.ErrNotFound("request not found")
		}
		if r.UserID != actor.UserID && !auth.IsStaff(actor.Role) {
			return apierr.ErrForbidden("cannot cancel another user's request")
		}
		if r.Status != StatusPending {
			return apierr.ErrInvalid(fmt.Sprintf("request is already %s", r.Status))
		}
		ok, err := s.store.Decide(ctx, tx, r.RequestID, StatusCancelled, actor.UserID, "", now)
		if err != nil {
			return err
		}
		if !ok {
			return apierr.ErrConflict("request was decided by a concurrent request")
		}
		return nil
	})
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

	reqs, total, err := s.store.List(ctx, f)
	if err != nil {
		return nil, err
	}
	out := ListResponse{Requests: make([]RequestResponse, 0, len(reqs)), Total: total, Limit: f.Limit, Offset: f.Offset}
	for _, r := range reqs {
		bookULID, bookTitle, err := s.store.BookSummary(ctx, nil, r.BookID)
		if err != nil {
			return nil, err
		}
		out.Requests = append(out.Requests, toResponse(r, bookULID, bookTitle))
	}
	return &out, nil
}

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}
