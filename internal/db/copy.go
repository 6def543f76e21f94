package db

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/rotisserie/eris"
)

// CopyFrom bulk-inserts rows into a table using the COPY protocol. Imports
// of a few thousand need rows go through here.
func CopyFrom(ctx context.Context, pool Pool, table string, columns []string, rows [][]any) (int64, error) {
	if len(rows) == 0 {
		return 0, nil
	}

	n, err := pool.CopyFrom(ctx, pgx.Identifier{table}, columns, pgx.CopyFromRows(rows))
	if err != nil {
		return 0, eris.Wrapf(err, "db: COPY INTO %s", table)
	}
	return n, nil
}

// Batcher is implemented by Pool and pgx.Tx.
type Batcher interface {
	SendBatch(ctx context.Context, b *pgx.Batch) pgx.BatchResults
}

// SendBatch queues one statement per argument set and executes them in a
// single round trip. It returns the total rows affected.
func SendBatch(ctx context.Context, conn Batcher, sql string, argSets [][]any) (int64, error) {
	if len(argSets) == 0 {
		return 0, nil
	}

	batch := &pgx.Batch{}
	for _, args := range argSets {
		batch.Queue(sql, args...)
	}

	br := conn.SendBatch(ctx, batch)
	defer br.Close() //nolint:errcheck

	var total int64
	for i := range argSets {
		tag, err := br.Exec()
		if err != nil {
			return total, eris.Wrapf(err, "db: batch statement %d", i)
		}
		total += tag.RowsAffected()
	}
	return total, nil
}
