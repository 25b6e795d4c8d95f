// Package index defines the nearest-neighbour search contract used by the
// retrieval pipeline and a local, directory-backed implementation of it.
package index

import (
	"context"
	"errors"
)

var (
	// ErrIndexNotFound is returned when the configured index location does
	// not exist.
	ErrIndexNotFound = errors.New("index not found")
	// ErrEmptyIndex is returned when an index exists but holds no chunks.
	ErrEmptyIndex = errors.New("index is empty")
	// ErrDimensionMismatch is returned when a query or record embedding does
	// not match the index dimension.
	ErrDimensionMismatch = errors.New("embedding dimension mismatch")
)

// Chunk is one retrieved passage.  Callers must treat it as read-only.
type Chunk struct {
	ID       string         `json:"id"`
	Text     string         `json:"text"`
	Metadata map[string]any `json:"metadata"`
	Score    float64        `json:"score"`
}

// Record is a chunk together with its embedding, as written by the index
// builder.
type Record struct {
	ID        string         `json:"id"`
	Text      string         `json:"text"`
	Metadata  map[string]any `json:"metadata"`
	Embedding []float32      `json:"embedding"`
}

// Index performs similarity search over embedded chunks.  Results are
// ordered by descending similarity; implementations must return the same
// order for the same index contents and query.
type Index interface {
	Search(ctx context.Context, embedding []float32, k int) ([]Chunk, error)
}

// Writer adds records to an index.
type Writer interface {
	Add(ctx context.Context, records []Record) error
}
