package db

import (
	"context"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func areaUpsert() UpsertConfig {
	return UpsertConfig{
		Table:        "equitee.demographic_areas",
		Columns:      []string{"zip_code", "median_income", "county"},
		ConflictKeys: []string{"zip_code"},
		TouchColumn:  "updated_at",
	}
}

func TestBulkUpsert_EmptyRows(t *testing.T) {
	n, err := BulkUpsert(context.TODO(), nil, areaUpsert(), nil)
	assert.NoError(t, err)
	assert.Equal(t, int64(0), n)
}

func TestBulkUpsert_NoColumns(t *testing.T) {
	_, err := BulkUpsert(context.TODO(), nil, UpsertConfig{
		Table:        "equitee.demographic_areas",
		ConflictKeys: []string{"zip_code"},
	}, [][]any{{"33101"}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no columns specified")
}

func TestBulkUpsert_NoConflictKeys(t *testing.T) {
	_, err := BulkUpsert(context.TODO(), nil, UpsertConfig{
		Table:   "equitee.demographic_areas",
		Columns: []string{"zip_code"},
	}, [][]any{{"33101"}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no conflict keys specified")
}

func TestBulkUpsert_Success(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	cfg := areaUpsert()
	mock.ExpectBegin()
	mock.ExpectExec("CREATE TEMP TABLE").WillReturnResult(pgxmock.NewResult("CREATE TABLE", 0))
	mock.ExpectCopyFrom(pgx.Identifier{"_tmp_upsert_equitee_demographic_areas"}, cfg.Columns).WillReturnResult(2)
	mock.ExpectExec("INSERT INTO").WillReturnResult(pgxmock.NewResult("INSERT", 2))
	mock.ExpectCommit()

	n, err := BulkUpsert(context.Background(), mock, cfg, [][]any{
		{"33101", 45000.0, "Miami-Dade"},
		{"33301", 52000.0, "Broward"},
	})
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestBulkUpsert_BeginError(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectBegin().WillReturnError(fmt.Errorf("connection refused"))

	_, err = BulkUpsert(context.Background(), mock, areaUpsert(), [][]any{{"33101", 1.0, "Broward"}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "begin tx")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestBulkUpsert_CreateTempError(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectBegin()
	mock.ExpectExec("CREATE TEMP TABLE").WillReturnError(fmt.Errorf("permission denied"))
	mock.ExpectRollback()

	_, err = BulkUpsert(context.Background(), mock, areaUpsert(), [][]any{{"33101", 1.0, "Broward"}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "create temp table for equitee.demographic_areas")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUpsertSQL(t *testing.T) {
	got := areaUpsert().upsertSQL()
	assert.Equal(t,
		`INSERT INTO "equitee"."demographic_areas" ("zip_code", "median_income", "county") `+
			`SELECT "zip_code", "median_income", "county" FROM "_tmp_upsert_equitee_demographic_areas" `+
			`ON CONFLICT ("zip_code") DO UPDATE SET "median_income" = EXCLUDED."median_income", `+
			`"county" = EXCLUDED."county", "updated_at" = now()`,
		got)
}

func TestUpsertSQL_DoNothing(t *testing.T) {
	cfg := UpsertConfig{
		Table:        "links",
		Columns:      []string{"a", "b"},
		ConflictKeys: []string{"a", "b"},
	}
	assert.Contains(t, cfg.upsertSQL(), `ON CONFLICT ("a", "b") DO NOTHING`)
}

func TestSanitizeTable(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"simple", `"simple"`},
		{"equitee.facilities", `"equitee"."facilities"`},
	}
	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			assert.Equal(t, tt.expected, sanitizeTable(tt.input))
		})
	}
}
