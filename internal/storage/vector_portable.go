//go:build purego || !sqlite_vec

package storage

import (
	"context"
	"database/sql"

	"github.com/dshills/hybridrag/pkg/types"
)

// prepareVectorIndex is a no-op: the embeddings table is the index
func prepareVectorIndex(ctx context.Context, db *sql.DB) error {
	return nil
}

func syncVector(ctx context.Context, q querier, chunkID int64, blob []byte, dimension int) error {
	return nil
}

func deleteVectorsBySource(ctx context.Context, q querier, sourceID int64) error {
	return nil
}

func nearest(ctx context.Context, q querier, queryVector []float32, restrictTo []int64, limit int) ([]types.Candidate, error) {
	return searchVectorFallback(ctx, q, queryVector, restrictTo, limit)
}

func vectorIndexAvailable(ctx context.Context, q querier) bool {
	var n int
	return q.QueryRowContext(ctx, `SELECT COUNT(*) FROM embeddings`).Scan(&n) == nil
}
