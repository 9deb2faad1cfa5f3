package storage

import (
	"context"
	"encoding/binary"
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/dshills/hybridrag/pkg/types"
)

// searchVectorFallback performs nearest-neighbour search in Go over the
// stored embedding blobs. Distance is Euclidean (L2); ties keep ascending
// chunk ID order. Stored vectors of another width are unusable for the
// query, so a scan that finds only those fails with ErrVectorUnavailable.
func searchVectorFallback(ctx context.Context, q querier, queryVector []float32, restrictTo []int64, limit int) ([]types.Candidate, error) {
	if limit <= 0 {
		return []types.Candidate{}, nil
	}
	if len(queryVector) == 0 {
		return nil, fmt.Errorf("%w: empty query vector", types.ErrVectorUnavailable)
	}

	query := `SELECT chunk_id, vector FROM embeddings`
	args := make([]interface{}, 0, len(restrictTo))
	if len(restrictTo) > 0 {
		query += ` WHERE chunk_id IN (` + placeholders(len(restrictTo)) + `)`
		for _, id := range restrictTo {
			args = append(args, id)
		}
	}
	query += ` ORDER BY chunk_id`

	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to query embeddings: %v", types.ErrVectorUnavailable, err)
	}
	defer func() { _ = rows.Close() }()

	candidates := make([]types.Candidate, 0, limit)
	mismatched, corpusDim := 0, 0
	for rows.Next() {
		var chunkID int64
		var blob []byte
		if err := rows.Scan(&chunkID, &blob); err != nil {
			return nil, fmt.Errorf("%w: failed to scan embedding: %v", types.ErrVectorUnavailable, err)
		}

		vector := deserializeVector(blob)
		if len(vector) != len(queryVector) {
			mismatched++
			corpusDim = len(vector)
			continue
		}

		candidates = append(candidates, types.Candidate{
			ChunkID:     chunkID,
			Distance:    l2Distance(queryVector, vector),
			HasDistance: true,
		})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", types.ErrVectorUnavailable, err)
	}
	if len(candidates) == 0 && mismatched > 0 {
		return nil, fmt.Errorf("%w: query dimension %d, corpus %d",
			types.ErrVectorUnavailable, len(queryVector), corpusDim)
	}

	sortByDistance(candidates)

	if len(candidates) > limit {
		candidates = candidates[:limit]
	}
	return candidates, nil
}

// sortByDistance orders candidates by ascending distance, keeping input
// order for equal distances
func sortByDistance(candidates []types.Candidate) {
	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].Distance < candidates[j].Distance
	})
}

// placeholders returns n comma separated SQL parameter markers
func placeholders(n int) string {
	if n <= 0 {
		return ""
	}
	return strings.TrimSuffix(strings.Repeat("?,", n), ",")
}

// serializeVector converts a float32 slice to a byte blob (little-endian)
func serializeVector(vector []float32) []byte {
	blob := make([]byte, len(vector)*4)
	for i, v := range vector {
		binary.LittleEndian.PutUint32(blob[i*4:], math.Float32bits(v))
	}
	return blob
}

// deserializeVector converts a byte blob back to a float32 slice
func deserializeVector(blob []byte) []float32 {
	vector := make([]float32, len(blob)/4)
	for i := range vector {
		bits := binary.LittleEndian.Uint32(blob[i*4:])
		vector[i] = math.Float32frombits(bits)
	}
	return vector
}

// l2Distance computes the Euclidean distance between two vectors of equal length
func l2Distance(a, b []float32) float64 {
	var sum float64
	for i := range a {
		d := float64(a[i]) - float64(b[i])
		sum += d * d
	}
	return math.Sqrt(sum)
}

// SerializeVector is an exported helper for callers writing embeddings
func SerializeVector(vector []float32) []byte {
	return serializeVector(vector)
}

// DeserializeVector is an exported helper for testing
func DeserializeVector(blob []byte) []float32 {
	return deserializeVector(blob)
}

// L2Distance is an exported helper for testing
func L2Distance(a, b []float32) float64 {
	return l2Distance(a, b)
}
