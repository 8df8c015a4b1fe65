package books

import (
	"context"
	"database/sql"
	"fmt"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ALMS-backend/internal/platform/db/dbtest"
)

type fixedClock struct{ t time.Time }

func (c *fixedClock) Now() time.Time { return c.t }

type seqIDGen struct{ n int }

func (g *seqIDGen) New() (string, error) {
	g.n++
	return fmt.Sprintf("01TESTBOOK%016d", g.n), nil
}

var testTime = time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)

func newTestService(t *testing.T) (*Service, *sql.DB) {
	t.Helper()
	conn := dbtest.New(t)
	svc := NewService(conn)
	svc.clock = &fixedClock{t: testTime}
	svc.id = &seqIDGen{}
	return svc, conn
}

func TestFoldQuery(t *testing.T) {
	assert.Equal(t, "golang", foldQuery("  GoLang "))
	// Full-width input folds to its half-width form.
	assert.Equal(t, "abc123", foldQuery("ＡＢＣ１２３"))
}

func TestBarcodeFormat(t *testing.T) {
	assert.Equal(t, "BC-01TESTBO-007", barcode("01TESTBOOK0000000000000001", 7))
}

func TestCreateBookWithInitialCopies(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	res, err := svc.CreateBook(ctx, CreateBookRequest{
		ISBN:          "978-4-06-519981-0",
		Title:         "Systems Programming",
		Author:        "A. Writer",
		FinePerDay:    decimal.RequireFromString("1.00"),
		InitialCopies: 3,
	})
	require.NoError(t, err)
	assert.Equal(t, 3, res.TotalCopies)
	assert.Equal(t, 3, res.AvailableCopies)
	assert.Equal(t, 14, res.LoanPeriodDays) // default

	copies, err := svc.ListCopies(ctx, res.BookULID)
	require.NoError(t, err)
	require.Len(t, copies, 3)
	assert.Equal(t, "BC-"+res.BookULID[:8]+"-001", copies[0].Barcode)

	// Same ISBN again is a conflict.
	_, err = svc.CreateBook(ctx, CreateBookRequest{
		ISBN: "978-4-06-519981-0", Title: "Duplicate", Author: "A. Writer",
	})
	assert.ErrorContains(t, err, "already exists")
}

func TestAddCopiesBumpsCounters(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	res, err := svc.CreateBook(ctx, CreateBookRequest{
		ISBN: "isbn-add", Title: "T", Author: "A",
	})
	require.NoError(t, err)

	added, err := svc.AddCopies(ctx, res.BookULID, AddCopiesRequest{Count: 2})
	require.NoError(t, err)
	require.Len(t, added, 2)
	assert.Equal(t, "BC-"+res.BookULID[:8]+"-002", added[1].Barcode)

	got, err := svc.GetBook(ctx, res.BookULID)
	require.NoError(t, err)
	assert.Equal(t, 2, got.TotalCopies)
	assert.Equal(t, 2, got.AvailableCopies)

	_, err = svc.AddCopies(ctx, res.BookULID, AddCopiesRequest{Count: 500})
	assert.ErrorContains(t, err, "between 1 and 100")
}

func TestUpdateCopyStatusRules(t *testing.T) {
	svc, conn, ctx := setupWithCopies(t, 1)
	bc := "BC-01TESTBO-001"

	// ISSUED is owned by circulation, never set directly.
	_, err := svc.UpdateCopyStatus(ctx, bc, UpdateCopyStatusRequest{Status: CopyIssued})
	assert.ErrorContains(t, err, "circulation")

	upd, err := svc.UpdateCopyStatus(ctx, bc, UpdateCopyStatusRequest{Status: CopyMaintenance})
	require.NoError(t, err)
	assert.Equal(t, CopyMaintenance, upd.Status)

	// Leaving AVAILABLE drops the availability counter.
	var avail int
	require.NoError(t, conn.QueryRow(`SELECT available_copies FROM books`).Scan(&avail))
	assert.Equal(t, 0, avail)

	// And coming back raises it again.
	_, err = svc.UpdateCopyStatus(ctx, bc, UpdateCopyStatusRequest{Status: CopyAvailable})
	require.NoError(t, err)
	require.NoError(t, conn.QueryRow(`SELECT available_copies FROM books`).Scan(&avail))
	assert.Equal(t, 1, avail)
}

func TestCopyOnLoanIsProtected(t *testing.T) {
	svc, conn, ctx := setupWithCopies(t, 1)
	bc := "BC-01TESTBO-001"

	// Simulate circulation holding the copy.
	_, err := conn.Exec(`UPDATE book_copies SET status = 'ISSUED'`)
	require.NoError(t, err)
	_, err = conn.Exec(`
		INSERT INTO users (user_id, email, password_hash, name, role, status, created_at, updated_at)
		VALUES ('u1', 'u1@example.com', 'x', 'U', 'USER', 'ACTIVE', ?, ?)`, testTime, testTime)
	require.NoError(t, err)
	_, err = conn.Exec(`
		INSERT INTO transactions (transaction_ulid, user_id, book_id, copy_id, issue_date, due_date, status, created_at)
		SELECT 'txn1', 'u1', book_id, copy_id, ?, ?, 'ISSUED', ? FROM book_copies LIMIT 1`,
		testTime, testTime.AddDate(0, 0, 14), testTime)
	require.NoError(t, err)

	_, err = svc.UpdateCopyStatus(ctx, bc, UpdateCopyStatusRequest{Status: CopyLost})
	assert.ErrorContains(t, err, "active loan")

	err = svc.DeleteCopy(ctx, bc)
	assert.ErrorContains(t, err, "active loan")
}

func TestDeleteCopy(t *testing.T) {
	svc, conn, ctx := setupWithCopies(t, 2)

	require.NoError(t, svc.DeleteCopy(ctx, "BC-01TESTBO-002"))

	var total, avail int
	require.NoError(t, conn.QueryRow(`SELECT total_copies, available_copies FROM books`).Scan(&total, &avail))
	assert.Equal(t, 1, total)
	assert.Equal(t, 1, avail)

	err := svc.DeleteCopy(ctx, "BC-01TESTBO-002")
	assert.ErrorContains(t, err, "not found")
}

func TestListBooksSearch(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	for i, title := range []string{"The Go Programming Language", "SQL Performance Explained"} {
		_, err := svc.CreateBook(ctx, CreateBookRequest{
			ISBN: fmt.Sprintf("isbn-%d", i), Title: title, Author: "Author",
		})
		require.NoError(t, err)
	}

	res, err := svc.ListBooks(ctx, Filter{Query: "ＧＯ"}) // full-width, mixed case
	require.NoError(t, err)
	require.EqualValues(t, 1, res.Total)
	assert.Equal(t, "The Go Programming Language", res.Books[0].Title)
}

func TestDeactivateBook(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	res, err := svc.CreateBook(ctx, CreateBookRequest{ISBN: "isbn-x", Title: "T", Author: "A"})
	require.NoError(t, err)

	require.NoError(t, svc.DeactivateBook(ctx, res.BookULID))
	err = svc.DeactivateBook(ctx, res.BookULID)
	assert.ErrorContains(t, err, "already inactive")
}

func setupWithCopies(t *testing.T, copies int) (*Service, *sql.DB, context.Context) {
	t.Helper()
	svc, conn := newTestService(t)
	ctx := context.Background()
	_, err := svc.CreateBook(ctx, CreateBookRequest{
		ISBN: "isbn-setup", Title: "Setup", Author: "A", InitialCopies: copies,
	})
	require.NoError(t, err)
	return svc, conn, ctx
}
