package labels

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/csv"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/text/encoding/japanese"
	"golang.org/x/text/transform"

	"ALMS-backend/internal/platform/db/dbtest"
)

var testTime = time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)

func seed(t *testing.T, conn *sql.DB) {
	t.Helper()
	res, err := conn.Exec(`
		INSERT INTO books (book_ulid, isbn, title, author, created_at, updated_at)
		VALUES ('01LBLBOOK', '978-4-00-310101-8', '吾輩は猫である', '夏目漱石', ?, ?)`,
		testTime, testTime)
	require.NoError(t, err)
	bookID, err := res.LastInsertId()
	require.NoError(t, err)
	for i, bc := range []string{"BC-01LBLBOO-001", "BC-01LBLBOO-002"} {
		_, err := conn.Exec(`
			INSERT INTO book_copies (book_id, copy_number, barcode, created_at)
			VALUES (?, ?, ?, ?)`, bookID, i+1, bc, testTime)
		require.NoError(t, err)
	}
}

func TestExportValidation(t *testing.T) {
	svc := NewService(dbtest.New(t))
	ctx := context.Background()

	_, err := svc.Export(ctx, ExportRequest{})
	assert.ErrorContains(t, err, "barcodes or book_id")

	_, err = svc.Export(ctx, ExportRequest{Barcodes: []string{"x"}, Encoding: "latin1"})
	assert.ErrorContains(t, err, "encoding")

	_, err = svc.Export(ctx, ExportRequest{Barcodes: []string{"no-such-barcode"}})
	assert.ErrorContains(t, err, "no copies matched")
}

func TestExportUTF8(t *testing.T) {
	conn := dbtest.New(t)
	seed(t, conn)
	svc := NewService(conn)

	data, err := svc.Export(context.Background(), ExportRequest{BookID: "01LBLBOOK", Encoding: "utf8"})
	require.NoError(t, err)

	records, err := csv.NewReader(bytes.NewReader(data)).ReadAll()
	require.NoError(t, err)
	require.Len(t, records, 3) // header + 2 copies
	assert.Equal(t, []string{"title", "author", "barcode", "isbn"}, records[0])
	assert.Equal(t, "吾輩は猫である", records[1][0])
	assert.Equal(t, "BC-01LBLBOO-002", records[2][2])
}

func TestExportShiftJISRoundTrip(t *testing.T) {
	conn := dbtest.New(t)
	seed(t, conn)
	svc := NewService(conn)

	data, err := svc.Export(context.Background(), ExportRequest{
		Barcodes: []string{"BC-01LBLBOO-001"},
	})
	require.NoError(t, err)

	// The payload is not valid UTF-8; decoding as cp932 restores it.
	assert.False(t, strings.Contains(string(data), "吾輩は猫である"))

	decoded, _, err := transform.Bytes(japanese.ShiftJIS.NewDecoder(), data)
	require.NoError(t, err)
	records, err := csv.NewReader(bytes.NewReader(decoded)).ReadAll()
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, "吾輩は猫である", records[1][0])
	assert.Equal(t, "夏目漱石", records[1][1])
}
