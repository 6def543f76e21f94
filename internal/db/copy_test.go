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
	n, err := CopyFrom(context.TODO(), nil, "needs", []string{"id", "lot_id"}, nil)
	assert.NoError(t, err)
	assert.Equal(t, int64(0), n)
}

func TestCopyFrom_Success(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectCopyFrom(pgx.Identifier{"needs"}, []string{"id", "lot_id"}).WillReturnResult(2)

	rows := [][]any{{"n1", "L1"}, {"n2", "L1"}}
	n, err := CopyFrom(context.Background(), mock, "needs", []string{"id", "lot_id"}, rows)
	assert.NoError(t, err)
	assert.Equal(t, int64(2), n)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCopyFrom_Error(t *testing.T) {
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	defer mock.Close()

	mock.ExpectCopyFrom(pgx.Identifier{"needs"}, []string{"id"}).WillReturnError(fmt.Errorf("copy failed"))

	_, err = CopyFrom(context.Background(), mock, "needs", []string{"id"}, [][]any{{"n1"}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "COPY INTO needs")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSendBatch_Empty(t *testing.T) {
	n, err := SendBatch(context.TODO(), nil, "UPDATE needs SET reconciled = true WHERE id = $1", nil)
	assert.NoError(t, err)
	assert.Equal(t, int64(0), n)
}
