// Package vectorindex provides the optional vector similarity index backing
// hybrid retrieval (spec §4.G step 4, §9 "hybrid retrieval is optional").
// It mirrors sqlite-vec's vec0 virtual table surface but implements it
// in pure Go on top of modernc.org/sqlite's vtab hooks, since
// github.com/asg017/sqlite-vec-go-bindings/cgo requires cgo and memoryd
// is built cgo-free.
package vectorindex

import (
	"context"
	"database/sql"
	"fmt"
)

// Index wraps a per-tenant-scoped vec0 virtual table of chunk embeddings.
// One Index is created per open database handle.
type Index struct {
	db        *sql.DB
	dimension int
}

// Open creates the vec0 virtual table (if absent) for the given embedding
// dimension and returns an Index bound to db. dimension must match the
// configured embedding.Provider's Dimension().
func Open(ctx context.Context, db *sql.DB, dimension int) (*Index, error) {
	if dimension <= 0 {
		return nil, fmt.Errorf("vectorindex: dimension must be positive, got %d", dimension)
	}
	stmt := fmt.Sprintf(
		`CREATE VIRTUAL TABLE IF NOT EXISTS chunk_vectors USING vec0(embedding BLOB, chunk_id TEXT, tenant_id TEXT)`,
	)
	if _, err := db.ExecContext(ctx, stmt); err != nil {
		return nil, fmt.Errorf("vectorindex: create chunk_vectors: %w", err)
	}
	return &Index{db: db, dimension: dimension}, nil
}

// Dimension reports the vector length this index was opened with.
func (idx *Index) Dimension() int { return idx.dimension }

// Upsert stores (or replaces) the embedding for a chunk.
func (idx *Index) Upsert(ctx context.Context, tenantID, chunkID string, embedding []float32) error {
	if len(embedding) != idx.dimension {
		return fmt.Errorf("vectorindex: embedding has %d dims, index expects %d", len(embedding), idx.dimension)
	}
	_, err := idx.db.ExecContext(ctx,
		`INSERT INTO chunk_vectors (embedding, chunk_id, tenant_id) VALUES (?, ?, ?)`,
		encodeEmbedding(embedding), chunkID, tenantID,
	)
	if err != nil {
		return fmt.Errorf("vectorindex: upsert %s: %w", chunkID, err)
	}
	return nil
}

// Delete removes a chunk's embedding from the index.
func (idx *Index) Delete(ctx context.Context, chunkID string) error {
	_, err := idx.db.ExecContext(ctx, `DELETE FROM chunk_vectors WHERE chunk_id = ?`, chunkID)
	if err != nil {
		return fmt.Errorf("vectorindex: delete %s: %w", chunkID, err)
	}
	return nil
}

// Neighbor is one nearest-neighbor hit: ChunkID plus its cosine similarity
// to the query vector (1 - cosine distance, in [-1, 1]; normalized text
// embeddings keep this within [0, 1] in practice).
type Neighbor struct {
	ChunkID    string
	Similarity float64
}

// Query returns the poolMax nearest neighbors to queryVec, scoped to a
// tenant. Ranking is brute-force cosine distance over chunk_vectors — the
// vec0 compat layer does not implement an ANN index, only the table
// surface, so this scales linearly with chunk count per tenant.
func (idx *Index) Query(ctx context.Context, tenantID string, queryVec []float32, poolMax int) ([]Neighbor, error) {
	if len(queryVec) != idx.dimension {
		return nil, fmt.Errorf("vectorindex: query vector has %d dims, index expects %d", len(queryVec), idx.dimension)
	}
	if poolMax <= 0 {
		poolMax = 200
	}

	rows, err := idx.db.QueryContext(ctx, `
		SELECT chunk_id, vector_distance_cos(embedding, ?) AS dist
		FROM chunk_vectors
		WHERE tenant_id = ?
		ORDER BY dist ASC
		LIMIT ?
	`, encodeEmbedding(queryVec), tenantID, poolMax)
	if err != nil {
		return nil, fmt.Errorf("vectorindex: query: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []Neighbor
	for rows.Next() {
		var chunkID string
		var dist float64
		if err := rows.Scan(&chunkID, &dist); err != nil {
			return nil, fmt.Errorf("vectorindex: scan: %w", err)
		}
		out = append(out, Neighbor{ChunkID: chunkID, Similarity: 1 - dist})
	}
	return out, rows.Err()
}
