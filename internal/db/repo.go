package db

import (
	"cmp"
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"slices"

	"github.com/lib/pq"
	pgvector "github.com/pgvector/pgvector-go"

	"medassist-chatbot/internal/index"
)

// undefinedTable is the PostgreSQL error code for a missing relation.
const undefinedTable = "42P01"

// ChunkRepository implements index.Index and index.Writer on the chunks
// table.  It is safe for concurrent use.
type ChunkRepository struct {
	DB *sql.DB
}

// NewChunkRepository constructs a new ChunkRepository from an existing
// sql.DB.  The caller is responsible for managing the DB connection
// lifecycle.
func NewChunkRepository(db *sql.DB) *ChunkRepository { return &ChunkRepository{DB: db} }

// Add upserts records in a single transaction.  A record whose id already
// exists replaces the stored one but keeps its position in tie order.
func (r *ChunkRepository) Add(ctx context.Context, records []index.Record) error {
	if len(records) == 0 {
		return nil
	}
	tx, err := r.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO chunks (id, content, metadata, embedding)
         VALUES ($1, $2, $3, $4)
         ON CONFLICT (id) DO UPDATE SET
             content   = EXCLUDED.content,
             metadata  = EXCLUDED.metadata,
             embedding = EXCLUDED.embedding`)
	if err != nil {
		return mapError(err)
	}
	defer stmt.Close()

	for _, rec := range records {
		if rec.ID == "" {
			return errors.New("chunk repository: record without id")
		}
		meta := rec.Metadata
		if meta == nil {
			meta = map[string]any{}
		}
		metaJSON, err := json.Marshal(meta)
		if err != nil {
			return fmt.Errorf("chunk repository: encode metadata of %s: %w", rec.ID, err)
		}
		if _, err := stmt.ExecContext(ctx, rec.ID, rec.Text, metaJSON, pgvector.NewVector(rec.Embedding)); err != nil {
			return fmt.Errorf("chunk repository: insert %s: %w", rec.ID, mapError(err))
		}
	}
	return tx.Commit()
}

// Search returns the k chunks closest to embedding by cosine distance.
// The ordering is served by the hnsw index, so results are approximate on
// large tables.  Equal distances among the returned rows fall back to
// insertion order so results are stable.
func (r *ChunkRepository) Search(ctx context.Context, embedding []float32, k int) ([]index.Chunk, error) {
	if k <= 0 {
		return nil, nil
	}
	rows, err := r.DB.QueryContext(ctx,
		`SELECT id, content, metadata, seq, embedding <=> $1 AS distance
         FROM chunks
         ORDER BY embedding <=> $1
         LIMIT $2`,
		pgvector.NewVector(embedding), k)
	if err != nil {
		return nil, mapError(err)
	}
	defer rows.Close()

	var hits []hit
	for rows.Next() {
		var (
			h        hit
			metaJSON []byte
		)
		if err := rows.Scan(&h.chunk.ID, &h.chunk.Text, &metaJSON, &h.seq, &h.distance); err != nil {
			return nil, err
		}
		if err := json.Unmarshal(metaJSON, &h.chunk.Metadata); err != nil {
			return nil, fmt.Errorf("chunk repository: decode metadata of %s: %w", h.chunk.ID, err)
		}
		if h.chunk.Metadata == nil {
			h.chunk.Metadata = map[string]any{}
		}
		h.chunk.Score = 1 - h.distance
		hits = append(hits, h)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return rankHits(hits), nil
}

// hit is a search row before tie-breaking.
type hit struct {
	chunk    index.Chunk
	seq      int64
	distance float64
}

// rankHits orders hits by distance, then by insertion sequence.
func rankHits(hits []hit) []index.Chunk {
	slices.SortStableFunc(hits, func(a, b hit) int {
		if c := cmp.Compare(a.distance, b.distance); c != 0 {
			return c
		}
		return cmp.Compare(a.seq, b.seq)
	})
	out := make([]index.Chunk, len(hits))
	for i, h := range hits {
		out[i] = h.chunk
	}
	return out
}

// Count returns the number of stored chunks.
func (r *ChunkRepository) Count(ctx context.Context) (int, error) {
	var n int
	if err := r.DB.QueryRowContext(ctx, `SELECT COUNT(*) FROM chunks`).Scan(&n); err != nil {
		return 0, mapError(err)
	}
	return n, nil
}

// Reset removes every chunk.  Used by the index builder before a full
// rebuild.
func (r *ChunkRepository) Reset(ctx context.Context) error {
	_, err := r.DB.ExecContext(ctx, `TRUNCATE chunks`)
	return mapError(err)
}

// mapError translates a missing chunks table into index.ErrIndexNotFound.
func mapError(err error) error {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == undefinedTable {
		return fmt.Errorf("%w: %s", index.ErrIndexNotFound, pqErr.Message)
	}
	return err
}

var (
	_ index.Index  = (*ChunkRepository)(nil)
	_ index.Writer = (*ChunkRepository)(nil)
)
