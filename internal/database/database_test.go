package database

import (
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/rapprochement/rapprochement-api/internal/models"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExtractSQLVerb(t *testing.T) {
	tests := []struct {
		query string
		want  string
	}{
		{"SELECT id FROM entities", "SELECT"},
		{"  update invoices SET x = $1", "UPDATE"},
		{"INSERT\nINTO audit_log", "INSERT"},
		{"BEGIN", "BEGIN"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, extractSQLVerb(tt.query), tt.query)
	}
}

func TestTruncateQuery(t *testing.T) {
	assert.Equal(t, "SELECT id FROM entities WHERE id = $1", truncateQuery("SELECT id\n\t\tFROM entities\n WHERE id = $1"))

	long := "SELECT " + strings.Repeat("a, ", 200) + "b FROM t"
	got := truncateQuery(long)
	assert.Len(t, got, 259)
	assert.True(t, strings.HasSuffix(got, "..."))
}

func TestNumericRoundTrip(t *testing.T) {
	for _, s := range []string{"0", "120.50", "-42.1", "1234567.89"} {
		d := decimal.RequireFromString(s)
		assert.True(t, d.Equal(fromNumeric(toNumeric(d))), s)
	}

	assert.True(t, fromNumeric(pgtype.Numeric{}).IsZero())
	assert.True(t, fromNumeric(pgtype.Numeric{NaN: true, Valid: true}).IsZero())
	assert.False(t, toNullNumeric(nil).Valid)
}

func TestUUIDConversion(t *testing.T) {
	id := uuid.New()
	assert.Equal(t, id, fromPgUUID(toPgUUID(id)))
	assert.Equal(t, uuid.Nil, fromPgUUID(pgtype.UUID{}))

	assert.False(t, toNullPgUUID(nil).Valid)
	assert.Nil(t, fromNullPgUUID(pgtype.UUID{}))
	got := fromNullPgUUID(toNullPgUUID(&id))
	require.NotNil(t, got)
	assert.Equal(t, id, *got)
}

func TestDateConversion(t *testing.T) {
	assert.Nil(t, fromPgDate(pgtype.Date{}))
	assert.False(t, toNullPgDate(nil).Valid)

	local := time.Date(2025, 3, 14, 23, 30, 0, 0, time.FixedZone("CET", 3600))
	got := fromPgDate(toPgDate(local))
	require.NotNil(t, got)
	assert.Equal(t, time.Date(2025, 3, 14, 0, 0, 0, 0, time.UTC), *got)
}

func TestStoreErr(t *testing.T) {
	assert.Same(t, models.ErrNotFound, storeErr("get invoice", pgx.ErrNoRows))
	assert.ErrorIs(t, storeErr("get invoice", fmt.Errorf("scan: %w", pgx.ErrNoRows)), models.ErrNotFound)

	dup := storeErr("create invoice", &pgconn.PgError{Code: "23505"})
	assert.ErrorIs(t, dup, models.ErrConflict)

	boom := errors.New("connection reset")
	err := storeErr("update transaction", boom)
	assert.ErrorIs(t, err, boom)
	assert.Contains(t, err.Error(), "failed to update transaction")
}

func TestSchema(t *testing.T) {
	schema := Schema()
	for _, table := range []string{"entities", "bank_transactions", "invoices", "supplier_defaults", "audit_log"} {
		assert.Contains(t, schema, "CREATE TABLE IF NOT EXISTS "+table+" (")
	}
	assert.Contains(t, schema, "UNIQUE (supplier_pattern, entity_id)")
}
