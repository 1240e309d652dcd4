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

func TestCopyFrom_EmptyRows(t *testing.T) {
	n, err := CopyFrom(context.TODO(), nil, "accessibility_scores", []string{"zip_code", "facility_id"}, nil)
	assert.NoError(t, err)
	assert.Equal(t, int64(0), n)
}

func TestCopyFrom_Success(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectCopyFrom(pgx.Identifier{"accessibility_scores"}, []string{"zip_code", "facility_id"}).WillReturnResult(3)

	rows := [][]any{{"33101", "a"}, {"33101", "b"}, {"33301", "a"}}
	n, err := CopyFrom(context.Background(), mock, "accessibility_scores", []string{"zip_code", "facility_id"}, rows)
	assert.NoError(t, err)
	assert.Equal(t, int64(3), n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCopyFrom_SchemaQualified(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectCopyFrom(pgx.Identifier{"equitee", "accessibility_scores"}, []string{"zip_code"}).WillReturnResult(1)

	n, err := CopyFrom(context.Background(), mock, "equitee.accessibility_scores", []string{"zip_code"}, [][]any{{"33101"}})
	assert.NoError(t, err)
	assert.Equal(t, int64(1), n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCopyFrom_Error(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectCopyFrom(pgx.Identifier{"accessibility_scores"}, []string{"zip_code"}).WillReturnError(fmt.Errorf("copy failed"))

	_, err = CopyFrom(context.Background(), mock, "accessibility_scores", []string{"zip_code"}, [][]any{{"33101"}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "COPY INTO accessibility_scores")
	assert.NoError(t, mock.ExpectationsWereMet())
}
