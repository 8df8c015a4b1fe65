// Package dbtest provides an in-memory SQLite database with the ALMS
// schema for store and service tests. Production runs on MySQL; every
// query in the stores sticks to portable SQL (? placeholders, no
// DB-side time functions) so the same statements run on both.
package dbtest

import (
	"database/sql"
	"testing"

	_ "github.com/mattn/go-sqlite3"
)

const schema = `
CREATE TABLE users (
	user_id       TEXT PRIMARY KEY,
	email         TEXT NOT NULL UNIQUE,
	password_hash TEXT NOT NULL,
	name          TEXT NOT NULL,
	role          TEXT NOT NULL DEFAULT 'USER',
	status        TEXT NOT NULL DEFAULT 'PENDING_APPROVAL',
	created_at    TIMESTAMP NOT NULL,
	updated_at    TIMESTAMP NOT NULL
);

CREATE TABLE books (
	book_id          INTEGER PRIMARY KEY AUTOINCREMENT,
	book_ulid        TEXT NOT NULL UNIQUE,
	isbn             TEXT NOT NULL UNIQUE,
	title            TEXT NOT NULL,
	author           TEXT NOT NULL,
	publisher        TEXT,
	total_copies     INTEGER NOT NULL DEFAULT 0,
	available_copies INTEGER NOT NULL DEFAULT 0,
	loan_period_days INTEGER NOT NULL DEFAULT 14,
	fine_per_day     NUMERIC NOT NULL DEFAULT 0,
	max_renewals     INTEGER NOT NULL DEFAULT 2,
	security_deposit NUMERIC NOT NULL DEFAULT 0,
	is_active        INTEGER NOT NULL DEFAULT 1,
	created_at       TIMESTAMP NOT NULL,
	updated_at       TIMESTAMP NOT NULL
);

CREATE TABLE book_copies (
	copy_id     INTEGER PRIMARY KEY AUTOINCREMENT,
	book_id     INTEGER NOT NULL REFERENCES books(book_id),
	copy_number INTEGER NOT NULL,
	barcode     TEXT NOT NULL UNIQUE,
	status      TEXT NOT NULL DEFAULT 'AVAILABLE',
	cond        TEXT NOT NULL DEFAULT 'GOOD',
	created_at  TIMESTAMP NOT NULL
);

CREATE TABLE transactions (
	transaction_id   INTEGER PRIMARY KEY AUTOINCREMENT,
	transaction_ulid TEXT NOT NULL UNIQUE,
	user_id          TEXT NOT NULL REFERENCES users(user_id),
	book_id          INTEGER NOT NULL REFERENCES books(book_id),
	copy_id          INTEGER NOT NULL REFERENCES book_copies(copy_id),
	issue_date       TIMESTAMP NOT NULL,
	due_date         TIMESTAMP NOT NULL,
	return_date      TIMESTAMP,
	status           TEXT NOT NULL DEFAULT 'ISSUED',
	renewal_count    INTEGER NOT NULL DEFAULT 0,
	fine_amount      NUMERIC NOT NULL DEFAULT 0,
	fine_paid        INTEGER NOT NULL DEFAULT 0,
	damage_charge    NUMERIC NOT NULL DEFAULT 0,
	return_condition TEXT,
	is_home_delivery INTEGER NOT NULL DEFAULT 0,
	notes            TEXT,
	created_at       TIMESTAMP NOT NULL
);

CREATE TABLE payments (
	payment_id       INTEGER PRIMARY KEY AUTOINCREMENT,
	payment_ulid     TEXT NOT NULL UNIQUE,
	transaction_id   INTEGER NOT NULL REFERENCES transactions(transaction_id),
	amount           NUMERIC NOT NULL,
	late_fee         NUMERIC NOT NULL DEFAULT 0,
	damage_charge    NUMERIC NOT NULL DEFAULT 0,
	security_deposit NUMERIC NOT NULL DEFAULT 0,
	method           TEXT NOT NULL,
	status           TEXT NOT NULL DEFAULT 'COMPLETED',
	refund_amount    NUMERIC NOT NULL DEFAULT 0,
	refund_reason    TEXT,
	created_at       TIMESTAMP NOT NULL
);

CREATE TABLE borrow_requests (
	request_id   INTEGER PRIMARY KEY AUTOINCREMENT,
	request_ulid TEXT NOT NULL UNIQUE,
	user_id      TEXT NOT NULL REFERENCES users(user_id),
	book_id      INTEGER NOT NULL REFERENCES books(book_id),
	status       TEXT NOT NULL DEFAULT 'PENDING',
	notes        TEXT,
	decided_by   TEXT,
	decided_at   TIMESTAMP,
	created_at   TIMESTAMP NOT NULL
);

CREATE TABLE notifications (
	notification_id INTEGER PRIMARY KEY AUTOINCREMENT,
	user_id         TEXT NOT NULL,
	type            TEXT NOT NULL,
	message         TEXT NOT NULL,
	created_at      TIMESTAMP NOT NULL
);
`

// New opens a fresh in-memory database with the full schema.
func New(t *testing.T) *sql.DB {
	t.Helper()

	conn, err := sql.Open("sqlite3", ":memory:?_foreign_keys=on")
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	// One in-memory DB per connection; keep the pool at a single conn
	// so every statement sees the same database.
	conn.SetMaxOpenConns(1)

	if _, err := conn.Exec(schema); err != nil {
		conn.Close()
		t.Fatalf("create schema: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}
