package payments

import (
	"context"
	"database/sql"
	"fmt"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ALMS-backend/internal/platform/auth"
	"ALMS-backend/internal/platform/db/dbtest"
)

type fixedClock struct{ t time.Time }

func (c *fixedClock) Now() time.Time { return c.t }

type seqIDGen struct{ n int }

func (g *seqIDGen) New() (string, error) {
	g.n++
	return fmt.Sprintf("01TESTPAY0%016d", g.n), nil
}

type recordingNotifier struct{ types []string }

func (r *recordingNotifier) Dispatch(_ context.Context, _, typ, _ string) {
	r.types = append(r.types, typ)
}

var testTime = time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)

func newTestService(t *testing.T) (*Service, *sql.DB, *recordingNotifier) {
	t.Helper()
	conn := dbtest.New(t)
	notifier := &recordingNotifier{}
	svc := NewService(conn, notifier)
	svc.clock = &fixedClock{t: testTime}
	svc.id = &seqIDGen{}
	return svc, conn, notifier
}

// seedLoan creates a returned loan carrying a fine and a damage charge.
func seedLoan(t *testing.T, conn *sql.DB, txnULID, fine, damage string) {
	t.Helper()
	_, err := conn.Exec(`
		INSERT INTO users (user_id, email, password_hash, name, role, status, created_at, updated_at)
		VALUES ('01OWNER', ?, 'x', 'Owner', 'USER', 'ACTIVE', ?, ?)`,
		txnULID+"@example.com", testTime, testTime)
	require.NoError(t, err)
	_, err = conn.Exec(`
		INSERT INTO books (book_ulid, isbn, title, author, created_at, updated_at)
		VALUES (?, ?, 'T', 'A', ?, ?)`, "B"+txnULID, "i"+txnULID, testTime, testTime)
	require.NoError(t, err)
	_, err = conn.Exec(`
		INSERT INTO book_copies (book_id, copy_number, barcode, created_at)
		SELECT book_id, 1, ?, ? FROM books WHERE book_ulid = ?`, "bc"+txnULID, testTime, "B"+txnULID)
	require.NoError(t, err)
	_, err = conn.Exec(`
		INSERT INTO transactions (transaction_ulid, user_id, book_id, copy_id, issue_date, due_date,
			return_date, status, fine_amount, fine_paid, damage_charge, created_at)
		SELECT ?, '01OWNER', b.book_id, c.copy_id, ?, ?, ?, 'RETURNED', ?, 0, ?, ?
		FROM books b JOIN book_copies c ON c.book_id = b.book_id
		WHERE b.book_ulid = ?`,
		txnULID, testTime, testTime.AddDate(0, 0, 7), testTime.AddDate(0, 0, 10),
		fine, damage, testTime, "B"+txnULID)
	require.NoError(t, err)
}

func staffActor() auth.Actor {
	return auth.Actor{UserID: "01STAFF", Role: auth.RoleLibrarian}
}

func TestRecordValidatesBreakdown(t *testing.T) {
	svc, conn, notifier := newTestService(t)
	ctx := context.Background()
	seedLoan(t, conn, "TXN1", "3.00", "2.00")

	// Parts that do not sum to the amount are rejected.
	_, err := svc.Record(ctx, RecordRequest{
		TransactionID: "TXN1",
		Amount:        decimal.RequireFromString("5.00"),
		LateFee:       decimal.RequireFromString("3.00"),
		DamageCharge:  decimal.RequireFromString("1.00"),
		Method:        "CASH",
	})
	assert.ErrorContains(t, err, "does not sum")

	_, err = svc.Record(ctx, RecordRequest{
		TransactionID: "TXN1",
		Amount:        decimal.RequireFromString("5.00"),
		LateFee:       decimal.RequireFromString("3.00"),
		DamageCharge:  decimal.RequireFromString("2.00"),
		Method:        "BARTER",
	})
	assert.ErrorContains(t, err, "payment_method")

	res, err := svc.Record(ctx, RecordRequest{
		TransactionID: "TXN1",
		Amount:        decimal.RequireFromString("5.00"),
		LateFee:       decimal.RequireFromString("3.00"),
		DamageCharge:  decimal.RequireFromString("2.00"),
		Method:        "CASH",
	})
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, res.Status)
	assert.Equal(t, "01OWNER", res.UserID)
	assert.Contains(t, notifier.types, "PAYMENT_RECORDED")

	// The covering late fee settles the loan's fine in the same tx.
	var finePaid bool
	require.NoError(t, conn.QueryRow(
		`SELECT fine_paid FROM transactions WHERE transaction_ulid = 'TXN1'`).Scan(&finePaid))
	assert.True(t, finePaid)
}

func TestRefundIsMonotonic(t *testing.T) {
	svc, conn, notifier := newTestService(t)
	ctx := context.Background()
	seedLoan(t, conn, "TXN2", "4.00", "0")

	res, err := svc.Record(ctx, RecordRequest{
		TransactionID: "TXN2",
		Amount:        decimal.RequireFromString("4.00"),
		LateFee:       decimal.RequireFromString("4.00"),
		Method:        "CARD",
	})
	require.NoError(t, err)

	ref, err := svc.Refund(ctx, res.PaymentID, RefundRequest{
		Amount: decimal.RequireFromString("1.50"), Reason: "overcharge"})
	require.NoError(t, err)
	assert.Equal(t, StatusPartiallyRefunded, ref.Status)
	assert.True(t, ref.RefundAmount.Equal(decimal.RequireFromString("1.50")))
	assert.Contains(t, notifier.types, "REFUND_PROCESSED")

	// Refunding past the paid amount is rejected.
	_, err = svc.Refund(ctx, res.PaymentID, RefundRequest{
		Amount: decimal.RequireFromString("3.00")})
	assert.ErrorContains(t, err, "exceeds")

	ref, err = svc.Refund(ctx, res.PaymentID, RefundRequest{
		Amount: decimal.RequireFromString("2.50")})
	require.NoError(t, err)
	assert.Equal(t, StatusRefunded, ref.Status)

	_, err = svc.Refund(ctx, res.PaymentID, RefundRequest{
		Amount: decimal.RequireFromString("0.01")})
	assert.ErrorContains(t, err, "fully refunded")
}

func TestBreakdown(t *testing.T) {
	svc, conn, _ := newTestService(t)
	ctx := context.Background()
	seedLoan(t, conn, "TXN3", "3.00", "2.00")

	bd, err := svc.Breakdown(ctx, staffActor(), "TXN3")
	require.NoError(t, err)
	assert.True(t, bd.TotalDue.Equal(decimal.RequireFromString("5.00")))
	assert.True(t, bd.TotalPaid.IsZero())
	assert.True(t, bd.PendingAmount.Equal(decimal.RequireFromString("5.00")))

	_, err = svc.Record(ctx, RecordRequest{
		TransactionID: "TXN3",
		Amount:        decimal.RequireFromString("3.00"),
		LateFee:       decimal.RequireFromString("3.00"),
		Method:        "ONLINE",
	})
	require.NoError(t, err)

	bd, err = svc.Breakdown(ctx, staffActor(), "TXN3")
	require.NoError(t, err)
	assert.True(t, bd.TotalPaid.Equal(decimal.RequireFromString("3.00")))
	assert.True(t, bd.PendingAmount.Equal(decimal.RequireFromString("2.00")))

	// The owner can look at their own breakdown; strangers cannot.
	_, err = svc.Breakdown(ctx, auth.Actor{UserID: "01OWNER", Role: auth.RoleUser}, "TXN3")
	assert.NoError(t, err)
	_, err = svc.Breakdown(ctx, auth.Actor{UserID: "01NOSY", Role: auth.RoleUser}, "TXN3")
	assert.ErrorContains(t, err, "insufficient")
}

func TestListScopesNonStaff(t *testing.T) {
	svc, conn, _ := newTestService(t)
	ctx := context.Background()
	seedLoan(t, conn, "TXN4", "1.00", "0")

	_, err := svc.Record(ctx, RecordRequest{
		TransactionID: "TXN4",
		Amount:        decimal.RequireFromString("1.00"),
		LateFee:       decimal.RequireFromString("1.00"),
		Method:        "CASH",
	})
	require.NoError(t, err)

	res, err := svc.List(ctx, auth.Actor{UserID: "01NOSY", Role: auth.RoleUser}, Filter{})
	require.NoError(t, err)
	assert.Equal(t, 0, res.Total)

	res, err = svc.List(ctx, auth.Actor{UserID: "01OWNER", Role: auth.RoleUser}, Filter{})
	require.NoError(t, err)
	assert.Equal(t, 1, res.Total)
}
