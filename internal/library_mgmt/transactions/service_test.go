package transactions

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
	return fmt.Sprintf("01TESTTXN%017d", g.n), nil
}

type recordingNotifier struct {
	types []string
	users []string
}

func (r *recordingNotifier) Dispatch(_ context.Context, userID, typ, _ string) {
	r.users = append(r.users, userID)
	r.types = append(r.types, typ)
}

var testTime = time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)

func newTestService(t *testing.T) (*Service, *sql.DB, *fixedClock, *recordingNotifier) {
	t.Helper()
	conn := dbtest.New(t)
	clock := &fixedClock{t: testTime}
	notifier := &recordingNotifier{}
	svc := NewService(conn, notifier)
	svc.clock = clock
	svc.id = &seqIDGen{}
	return svc, conn, clock, notifier
}

func seedUser(t *testing.T, conn *sql.DB, id, role, status string) {
	t.Helper()
	_, err := conn.Exec(`
		INSERT INTO users (user_id, email, password_hash, name, role, status, created_at, updated_at)
		VALUES (?, ?, 'x', 'Test User', ?, ?, ?, ?)`,
		id, id+"@example.com", role, status, testTime, testTime)
	require.NoError(t, err)
}

func seedBook(t *testing.T, conn *sql.DB, ulid string, finePerDay string, loanDays, maxRenewals, copies int) int64 {
	t.Helper()
	res, err := conn.Exec(`
		INSERT INTO books (book_ulid, isbn, title, author, total_copies, available_copies,
			loan_period_days, fine_per_day, max_renewals, is_active, created_at, updated_at)
		VALUES (?, ?, 'Seed Title', 'Seed Author', ?, ?, ?, ?, ?, 1, ?, ?)`,
		ulid, "isbn-"+ulid, copies, copies, loanDays, finePerDay, maxRenewals, testTime, testTime)
	require.NoError(t, err)
	bookID, err := res.LastInsertId()
	require.NoError(t, err)
	for i := 1; i <= copies; i++ {
		_, err := conn.Exec(`
			INSERT INTO book_copies (book_id, copy_number, barcode, status, cond, created_at)
			VALUES (?, ?, ?, 'AVAILABLE', 'GOOD', ?)`,
			bookID, i, fmt.Sprintf("BC-%s-%03d", ulid[:8], i), testTime)
		require.NoError(t, err)
	}
	return bookID
}

func staffActor() auth.Actor {
	return auth.Actor{UserID: "01STAFF000000000000000000", Role: auth.RoleLibrarian}
}

func availableCopies(t *testing.T, conn *sql.DB, bookID int64) int {
	t.Helper()
	var n int
	require.NoError(t, conn.QueryRow(`SELECT available_copies FROM books WHERE book_id = ?`, bookID).Scan(&n))
	return n
}

func copyStatus(t *testing.T, conn *sql.DB, copyID int64) string {
	t.Helper()
	var s string
	require.NoError(t, conn.QueryRow(`SELECT status FROM book_copies WHERE copy_id = ?`, copyID).Scan(&s))
	return s
}

func TestOverdueDays(t *testing.T) {
	due := time.Date(2025, 6, 15, 10, 0, 0, 0, time.UTC)
	cases := []struct {
		name string
		now  time.Time
		want int
	}{
		{"before due", due.Add(-time.Hour), 0},
		{"exactly due", due, 0},
		{"one minute late", due.Add(time.Minute), 1},
		{"one day late", due.Add(24 * time.Hour), 1},
		{"one day one minute", due.Add(24*time.Hour + time.Minute), 2},
		{"two and a half days", due.Add(60 * time.Hour), 3},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, overdueDays(tc.now, due))
		})
	}
}

func TestIssueAndReturnRoundTrip(t *testing.T) {
	svc, conn, clock, notifier := newTestService(t)
	ctx := context.Background()
	seedUser(t, conn, "01USER000000000000000000AA", auth.RoleUser, "ACTIVE")
	bookID := seedBook(t, conn, "01BOOK000000000000000000AA", "1.50", 14, 2, 2)

	res, err := svc.Issue(ctx, staffActor(), IssueRequest{
		BookID: "01BOOK000000000000000000AA",
		UserID: "01USER000000000000000000AA",
	})
	require.NoError(t, err)
	assert.Equal(t, StatusIssued, res.Status)
	assert.Equal(t, testTime.AddDate(0, 0, 14), res.DueDate)
	assert.Equal(t, "BC-01BOOK00-001", res.CopyBarcode)
	assert.Equal(t, 1, availableCopies(t, conn, bookID))
	assert.Contains(t, notifier.types, "BOOK_ISSUED")

	// On-time return: no fine, copy back in circulation.
	clock.t = testTime.AddDate(0, 0, 10)
	ret, err := svc.Return(ctx, res.TransactionID, ReturnRequest{})
	require.NoError(t, err)
	assert.Equal(t, StatusReturned, ret.Status)
	assert.True(t, ret.FineAmount.IsZero())
	assert.Equal(t, 2, availableCopies(t, conn, bookID))
	assert.Contains(t, notifier.types, "BOOK_RETURNED")
}

func TestReturnLateAccruesFine(t *testing.T) {
	svc, conn, clock, notifier := newTestService(t)
	ctx := context.Background()
	seedUser(t, conn, "01USER000000000000000000AB", auth.RoleUser, "ACTIVE")
	seedBook(t, conn, "01BOOK000000000000000000AB", "1.50", 14, 2, 1)

	res, err := svc.Issue(ctx, staffActor(), IssueRequest{
		BookID: "01BOOK000000000000000000AB",
		UserID: "01USER000000000000000000AB",
	})
	require.NoError(t, err)

	// 2 days and 12 hours late bills as 3 days.
	clock.t = res.DueDate.Add(60 * time.Hour)
	ret, err := svc.Return(ctx, res.TransactionID, ReturnRequest{ReturnCondition: "FAIR"})
	require.NoError(t, err)
	assert.True(t, ret.FineAmount.Equal(decimal.RequireFromString("4.50")),
		"fine = %s", ret.FineAmount)
	assert.Equal(t, "FAIR", ret.ReturnCondition)
	assert.Contains(t, notifier.types, "FINE_ASSESSED")
}

func TestIssueRejections(t *testing.T) {
	svc, conn, _, _ := newTestService(t)
	ctx := context.Background()
	seedUser(t, conn, "01USERSUSPENDED0000000000A", auth.RoleUser, "SUSPENDED")
	seedUser(t, conn, "01USERACTIVE0000000000000A", auth.RoleUser, "ACTIVE")
	seedBook(t, conn, "01BOOKEMPTY0000000000000AA", "1.00", 14, 2, 0)
	seedBook(t, conn, "01BOOKSTOCK0000000000000AA", "1.00", 14, 2, 1)

	_, err := svc.Issue(ctx, staffActor(), IssueRequest{
		BookID: "01BOOKSTOCK0000000000000AA", UserID: "nope"})
	assert.ErrorContains(t, err, "user not found")

	_, err = svc.Issue(ctx, staffActor(), IssueRequest{
		BookID: "01BOOKSTOCK0000000000000AA", UserID: "01USERSUSPENDED0000000000A"})
	assert.ErrorContains(t, err, "SUSPENDED")

	_, err = svc.Issue(ctx, staffActor(), IssueRequest{
		BookID: "01BOOKEMPTY0000000000000AA", UserID: "01USERACTIVE0000000000000A"})
	assert.ErrorContains(t, err, "no copies available")

	// A regular user cannot check a book out to someone else.
	_, err = svc.Issue(ctx, auth.Actor{UserID: "01USERACTIVE0000000000000A", Role: auth.RoleUser},
		IssueRequest{BookID: "01BOOKSTOCK0000000000000AA", UserID: "01USERSUSPENDED0000000000A"})
	assert.ErrorContains(t, err, "another user")
}

func TestIssueBlockedByUnpaidFine(t *testing.T) {
	svc, conn, clock, _ := newTestService(t)
	ctx := context.Background()
	seedUser(t, conn, "01USERFINED00000000000000A", auth.RoleUser, "ACTIVE")
	seedBook(t, conn, "01BOOKAAAA00000000000000AA", "2.00", 7, 2, 2)

	res, err := svc.Issue(ctx, staffActor(), IssueRequest{
		BookID: "01BOOKAAAA00000000000000AA", UserID: "01USERFINED00000000000000A"})
	require.NoError(t, err)

	clock.t = res.DueDate.AddDate(0, 0, 3)
	_, err = svc.Return(ctx, res.TransactionID, ReturnRequest{})
	require.NoError(t, err)

	_, err = svc.Issue(ctx, staffActor(), IssueRequest{
		BookID: "01BOOKAAAA00000000000000AA", UserID: "01USERFINED00000000000000A"})
	assert.ErrorContains(t, err, "unpaid fines")
}

func TestRenew(t *testing.T) {
	svc, conn, clock, _ := newTestService(t)
	ctx := context.Background()
	seedUser(t, conn, "01USERRENEW00000000000000A", auth.RoleUser, "ACTIVE")
	seedBook(t, conn, "01BOOKRENEW00000000000000A", "1.00", 14, 1, 1)

	owner := auth.Actor{UserID: "01USERRENEW00000000000000A", Role: auth.RoleUser}
	res, err := svc.Issue(ctx, staffActor(), IssueRequest{
		BookID: "01BOOKRENEW00000000000000A", UserID: owner.UserID})
	require.NoError(t, err)
	firstDue := res.DueDate

	// A stranger cannot renew someone else's loan.
	stranger := auth.Actor{UserID: "01USEROTHER00000000000000A", Role: auth.RoleUser}
	_, err = svc.Renew(ctx, stranger, res.TransactionID, RenewRequest{})
	assert.ErrorContains(t, err, "another user")

	renewed, err := svc.Renew(ctx, owner, res.TransactionID, RenewRequest{})
	require.NoError(t, err)
	assert.Equal(t, StatusRenewed, renewed.Status)
	assert.Equal(t, 1, renewed.RenewalCount)
	assert.Equal(t, firstDue.AddDate(0, 0, 14), renewed.DueDate)

	// max_renewals = 1, so the second attempt fails.
	_, err = svc.Renew(ctx, owner, res.TransactionID, RenewRequest{})
	assert.ErrorContains(t, err, "renewal limit")

	// Overdue loans cannot be renewed at all.
	clock.t = renewed.DueDate.Add(time.Hour)
	_, err = svc.Renew(ctx, staffActor(), res.TransactionID, RenewRequest{})
	assert.ErrorContains(t, err, "overdue")
}

func TestFineFlipsLoanToOverdue(t *testing.T) {
	svc, conn, clock, _ := newTestService(t)
	ctx := context.Background()
	seedUser(t, conn, "01USERLATE000000000000000A", auth.RoleUser, "ACTIVE")
	seedBook(t, conn, "01BOOKLATE000000000000000A", "0.75", 7, 2, 1)

	res, err := svc.Issue(ctx, staffActor(), IssueRequest{
		BookID: "01BOOKLATE000000000000000A", UserID: "01USERLATE000000000000000A"})
	require.NoError(t, err)

	clock.t = res.DueDate.Add(25 * time.Hour) // 2 chargeable days
	fine, err := svc.Fine(ctx, staffActor(), res.TransactionID)
	require.NoError(t, err)
	assert.Equal(t, 2, fine.DaysOverdue)
	assert.True(t, fine.FineAmount.Equal(decimal.RequireFromString("1.50")))

	got, err := svc.Get(ctx, staffActor(), res.TransactionID)
	require.NoError(t, err)
	assert.Equal(t, StatusOverdue, got.Status)
}

func TestPayFineRequiresExactBalance(t *testing.T) {
	svc, conn, clock, notifier := newTestService(t)
	ctx := context.Background()
	seedUser(t, conn, "01USERPAY0000000000000000A", auth.RoleUser, "ACTIVE")
	seedBook(t, conn, "01BOOKPAY0000000000000000A", "1.00", 7, 2, 1)

	res, err := svc.Issue(ctx, staffActor(), IssueRequest{
		BookID: "01BOOKPAY0000000000000000A", UserID: "01USERPAY0000000000000000A"})
	require.NoError(t, err)

	clock.t = res.DueDate.AddDate(0, 0, 3)
	ret, err := svc.Return(ctx, res.TransactionID, ReturnRequest{
		DamageCharge: decimal.RequireFromString("2.00"),
	})
	require.NoError(t, err)
	require.True(t, ret.FineAmount.Equal(decimal.RequireFromString("3.00")))

	_, err = svc.PayFine(ctx, staffActor(), res.TransactionID, PayFineRequest{
		Amount: decimal.RequireFromString("1.00"), Method: "CASH"})
	assert.ErrorContains(t, err, "does not match")

	paid, err := svc.PayFine(ctx, staffActor(), res.TransactionID, PayFineRequest{
		Amount: decimal.RequireFromString("5.00"), Method: "CASH"})
	require.NoError(t, err)
	assert.True(t, paid.FinePaid)
	assert.Contains(t, notifier.types, "PAYMENT_RECORDED")

	_, err = svc.PayFine(ctx, staffActor(), res.TransactionID, PayFineRequest{
		Amount: decimal.RequireFromString("5.00"), Method: "CASH"})
	assert.ErrorContains(t, err, "already paid")
}

func TestCancelRestoresCopy(t *testing.T) {
	svc, conn, _, _ := newTestService(t)
	ctx := context.Background()
	seedUser(t, conn, "01USERCXL0000000000000000A", auth.RoleUser, "ACTIVE")
	bookID := seedBook(t, conn, "01BOOKCXL0000000000000000A", "1.00", 7, 2, 1)

	res, err := svc.Issue(ctx, staffActor(), IssueRequest{
		BookID: "01BOOKCXL0000000000000000A", UserID: "01USERCXL0000000000000000A"})
	require.NoError(t, err)
	require.Equal(t, 0, availableCopies(t, conn, bookID))

	require.NoError(t, svc.Cancel(ctx, res.TransactionID))
	assert.Equal(t, 1, availableCopies(t, conn, bookID))

	_, err = svc.Get(ctx, staffActor(), res.TransactionID)
	assert.ErrorContains(t, err, "not found")
}

func TestListScopesNonStaffToOwnLoans(t *testing.T) {
	svc, conn, _, _ := newTestService(t)
	ctx := context.Background()
	seedUser(t, conn, "01USERA000000000000000000A", auth.RoleUser, "ACTIVE")
	seedUser(t, conn, "01USERB000000000000000000A", auth.RoleUser, "ACTIVE")
	seedBook(t, conn, "01BOOKLIST000000000000000A", "1.00", 7, 2, 2)

	for _, uid := range []string{"01USERA000000000000000000A", "01USERB000000000000000000A"} {
		_, err := svc.Issue(ctx, staffActor(), IssueRequest{
			BookID: "01BOOKLIST000000000000000A", UserID: uid})
		require.NoError(t, err)
	}

	all, err := svc.List(ctx, staffActor(), Filter{})
	require.NoError(t, err)
	assert.Equal(t, 2, all.Total)

	// Even when filtering for someone else, a user only sees their own.
	mine, err := svc.List(ctx, auth.Actor{UserID: "01USERA000000000000000000A", Role: auth.RoleUser},
		Filter{UserID: "01USERB000000000000000000A"})
	require.NoError(t, err)
	require.Equal(t, 1, mine.Total)
	assert.Equal(t, "01USERA000000000000000000A", mine.Transactions[0].UserID)
}

func TestOverdueReport(t *testing.T) {
	svc, conn, clock, _ := newTestService(t)
	ctx := context.Background()
	seedUser(t, conn, "01USEROD00000000000000000A", auth.RoleUser, "ACTIVE")
	seedBook(t, conn, "01BOOKOD00000000000000000A", "0.50", 7, 2, 1)

	res, err := svc.Issue(ctx, staffActor(), IssueRequest{
		BookID: "01BOOKOD00000000000000000A", UserID: "01USEROD00000000000000000A"})
	require.NoError(t, err)

	items, err := svc.Overdue(ctx)
	require.NoError(t, err)
	assert.Empty(t, items)

	clock.t = res.DueDate.AddDate(0, 0, 4)
	items, err = svc.Overdue(ctx)
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, 4, items[0].DaysOverdue)
	assert.True(t, items[0].FineAccrued.Equal(decimal.RequireFromString("2.00")))
	assert.Equal(t, "Seed Title", items[0].BookTitle)

	stats, err := svc.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.ActiveLoans)
	assert.Equal(t, 1, stats.OverdueLoans)
}
