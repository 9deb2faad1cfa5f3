//go:build sqlite_vec && !purego

package storage

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/dshills/hybridrag/pkg/types"
)

// The vec0 table mirrors the embeddings table keyed by chunk ID (rowid).
// Its default metric is L2, matching searchVectorFallback.
const vectorTable = "vectors"

func createVectorTable(ctx context.Context, q querier, dimension int) error {
	_, err := q.ExecContext(ctx, fmt.Sprintf(
		`CREATE VIRTUAL TABLE IF NOT EXISTS %s USING vec0(embedding float[%d])`, vectorTable, dimension))
	return err
}

func vectorTableExists(ctx context.Context, q querier) (bool, error) {
	var name string
	err := q.QueryRowContext(ctx,
		`SELECT name FROM sqlite_master WHERE type='table' AND name=?`, vectorTable).Scan(&name)
	if err == sql.ErrNoRows {
		return false, nil
	}
	return err == nil, err
}

// prepareVectorIndex creates the vec0 table for an existing corpus and
// backfills rows that are missing from it
func prepareVectorIndex(ctx context.Context, db *sql.DB) error {
	var dimension sql.NullInt64
	if err := db.QueryRowContext(ctx, `SELECT MAX(dimension) FROM embeddings`).Scan(&dimension); err != nil {
		return err
	}
	if !dimension.Valid {
		return nil // Empty corpus, created on first embedding
	}

	if err := createVectorTable(ctx, db, int(dimension.Int64)); err != nil {
		return fmt.Errorf("%w: %v", types.ErrVectorUnavailable, err)
	}

	_, err := db.ExecContext(ctx, `
		INSERT INTO vectors(rowid, embedding)
		SELECT chunk_id, vector FROM embeddings
		WHERE chunk_id NOT IN (SELECT rowid FROM vectors)
	`)
	return err
}

func syncVector(ctx context.Context, q querier, chunkID int64, blob []byte, dimension int) error {
	if err := createVectorTable(ctx, q, dimension); err != nil {
		return err
	}
	// vec0 has no upsert
	if _, err := q.ExecContext(ctx, `DELETE FROM vectors WHERE rowid = ?`, chunkID); err != nil {
		return err
	}
	_, err := q.ExecContext(ctx, `INSERT INTO vectors(rowid, embedding) VALUES (?, ?)`, chunkID, blob)
	return err
}

func deleteVectorsBySource(ctx context.Context, q querier, sourceID int64) error {
	exists, err := vectorTableExists(ctx, q)
	if err != nil || !exists {
		return err
	}
	_, err = q.ExecContext(ctx,
		`DELETE FROM vectors WHERE rowid IN (SELECT id FROM chunks WHERE source_id = ?)`, sourceID)
	return err
}

func nearest(ctx context.Context, q querier, queryVector []float32, restrictTo []int64, limit int) ([]types.Candidate, error) {
	if limit <= 0 {
		return []types.Candidate{}, nil
	}

	exists, err := vectorTableExists(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", types.ErrVectorUnavailable, err)
	}
	if !exists {
		var n int
		if err := q.QueryRowContext(ctx, `SELECT COUNT(*) FROM embeddings`).Scan(&n); err != nil {
			return nil, fmt.Errorf("%w: %v", types.ErrVectorUnavailable, err)
		}
		if n == 0 {
			return []types.Candidate{}, nil
		}
		return nil, fmt.Errorf("%w: vec0 table missing for %d embeddings", types.ErrVectorUnavailable, n)
	}

	query := `SELECT rowid, distance FROM vectors WHERE embedding MATCH ? AND k = ?`
	args := []interface{}{serializeVector(queryVector), limit}
	if len(restrictTo) > 0 {
		query += ` AND rowid IN (` + placeholders(len(restrictTo)) + `)`
		for _, id := range restrictTo {
			args = append(args, id)
		}
	}
	query += ` ORDER BY distance, rowid`

	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to execute vector search: %v", types.ErrVectorUnavailable, err)
	}
	defer func() { _ = rows.Close() }()

	results := make([]types.Candidate, 0, limit)
	for rows.Next() {
		c := types.Candidate{HasDistance: true}
		if err := rows.Scan(&c.ChunkID, &c.Distance); err != nil {
			return nil, fmt.Errorf("%w: failed to scan result: %v", types.ErrVectorUnavailable, err)
		}
		results = append(results, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", types.ErrVectorUnavailable, err)
	}
	return results, nil
}

func vectorIndexAvailable(ctx context.Context, q querier) bool {
	exists, err := vectorTableExists(ctx, q)
	if err != nil {
		return false
	}
	if exists {
		return true
	}
	var n int
	return q.QueryRowContext(ctx, `SELECT COUNT(*) FROM embeddings`).Scan(&n) == nil && n == 0
}
