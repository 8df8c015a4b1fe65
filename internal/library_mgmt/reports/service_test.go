package reports

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ALMS-backend/internal/platform/db/dbtest"
)

type fixedClock struct{ t time.Time }

func (c *fixedClock) Now() time.Time { return c.t }

var testTime = time.Date(2025, 6, 10, 10, 0, 0, 0, time.UTC)

func newTestService(t *testing.T) (*Service, *sql.DB) {
	t.Helper()
	conn := dbtest.New(t)
	svc := NewService(conn)
	svc.clock = &fixedClock{t: testTime}
	return svc, conn
}

func seed(t *testing.T, conn *sql.DB) {
	t.Helper()
	mustExec := func(q string, args ...any) {
		t.Helper()
		_, err := conn.Exec(q, args...)
		require.NoError(t, err)
	}

	mustExec(`
		INSERT INTO users (user_id, email, password_hash, name, role, status, created_at, updated_at) VALUES
		('u1', 'u1@example.com', 'x', 'U1', 'USER', 'ACTIVE', ?, ?),
		('u2', 'u2@example.com', 'x', 'U2', 'USER', 'PENDING_APPROVAL', ?, ?)`,
		testTime, testTime, testTime, testTime)
	mustExec(`
		INSERT INTO books (book_ulid, isbn, title, author, total_copies, available_copies, created_at, updated_at)
		VALUES ('b1', 'i1', 'T1', 'A1', 3, 2, ?, ?)`, testTime, testTime)
	mustExec(`
		INSERT INTO book_copies (book_id, copy_number, barcode, created_at)
		VALUES (1, 1, 'bc-1', ?)`, testTime)
	// One loan still out and overdue with an unpaid fine, one returned.
	mustExec(`
		INSERT INTO transactions (transaction_ulid, user_id, book_id, copy_id, issue_date, due_date,
			return_date, status, renewal_count, fine_amount, fine_paid, created_at) VALUES
		('t-open', 'u1', 1, 1, ?, ?, NULL, 'OVERDUE', 0, '2.50', 0, ?),
		('t-done', 'u1', 1, 1, ?, ?, ?, 'RETURNED', 1, 0, 0, ?)`,
		testTime.AddDate(0, 0, -10), testTime.AddDate(0, 0, -3), testTime.AddDate(0, 0, -10),
		testTime.AddDate(0, 0, -9), testTime.AddDate(0, 0, -2), testTime.AddDate(0, 0, -1),
		testTime.AddDate(0, 0, -9))
	mustExec(`
		INSERT INTO borrow_requests (request_ulid, user_id, book_id, status, created_at)
		VALUES ('r1', 'u1', 1, 'PENDING', ?)`, testTime)
	mustExec(`
		INSERT INTO payments (payment_ulid, transaction_id, amount, late_fee, method, status, refund_amount, created_at) VALUES
		('p1', 1, '5.00', '5.00', 'CASH', 'COMPLETED', 0, ?),
		('p2', 1, '4.00', '4.00', 'CARD', 'PARTIALLY_REFUNDED', '1.00', ?)`,
		testTime.AddDate(0, 0, -1), testTime.AddDate(0, 0, -1))
}

func TestDashboard(t *testing.T) {
	svc, conn := newTestService(t)
	seed(t, conn)

	d, err := svc.Dashboard(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, d.TotalBooks)
	assert.Equal(t, 3, d.TotalCopies)
	assert.Equal(t, 2, d.AvailableCopies)
	assert.Equal(t, 2, d.TotalUsers)
	assert.Equal(t, 1, d.ActiveUsers)
	assert.Equal(t, 1, d.PendingApprovals)
	assert.Equal(t, 1, d.ActiveLoans)
	assert.Equal(t, 1, d.OverdueLoans)
	assert.Equal(t, 1, d.PendingRequests)
	assert.True(t, d.OutstandingFines.Equal(decimal.RequireFromString("2.50")))
	assert.True(t, d.NetCollected.Equal(decimal.RequireFromString("8.00")))
}

func TestFinancialWindow(t *testing.T) {
	svc, conn := newTestService(t)
	seed(t, conn)

	r, err := svc.Financial(context.Background(), time.Time{}, time.Time{})
	require.NoError(t, err)
	assert.Equal(t, 2, r.PaymentCount)
	assert.True(t, r.GrossCollected.Equal(decimal.RequireFromString("9.00")))
	assert.True(t, r.TotalRefunded.Equal(decimal.RequireFromString("1.00")))
	assert.True(t, r.NetCollected.Equal(decimal.RequireFromString("8.00")))
	require.Len(t, r.ByMethod, 2)
	assert.Equal(t, "CARD", r.ByMethod[0].Method)

	// A window before the payments sees nothing.
	r, err = svc.Financial(context.Background(),
		testTime.AddDate(0, -2, 0), testTime.AddDate(0, -1, 0))
	require.NoError(t, err)
	assert.Equal(t, 0, r.PaymentCount)

	_, err = svc.Financial(context.Background(), testTime, testTime.AddDate(0, 0, -1))
	assert.ErrorContains(t, err, "before")
}

func TestCirculationWindow(t *testing.T) {
	svc, conn := newTestService(t)
	seed(t, conn)

	r, err := svc.Circulation(context.Background(), time.Time{}, time.Time{})
	require.NoError(t, err)
	assert.Equal(t, 2, r.Issued)
	assert.Equal(t, 1, r.Returned)
	assert.Equal(t, 1, r.Renewals)
	assert.Equal(t, 1, r.UniqueBorrowers)
}
