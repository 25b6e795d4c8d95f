package index

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"

	"github.com/dgraph-io/badger/v4"
)

const chunkPrefix = "chunk/"

// DirIndex is an index stored in a local badger directory.  All records are
// loaded into memory when the index is opened and searched exhaustively, so
// results are exact and their order is fixed for a given directory.
type DirIndex struct {
	db     *badger.DB
	logger *slog.Logger

	mu      sync.RWMutex
	records []Record
	dim     int
}

// OpenDir opens an existing index directory read-only for serving.  A
// missing directory or one without any chunks is an error, so a
// misconfigured process never starts answering questions against nothing.
// Any number of processes may hold the same directory open this way.
func OpenDir(path string, logger *slog.Logger) (*DirIndex, error) {
	idx, err := open(badgerConfig{Path: path, ReadOnly: true, Logger: logger}, logger)
	if err != nil {
		return nil, err
	}
	if idx.Len() == 0 {
		_ = idx.Close()
		return nil, fmt.Errorf("%w: %s", ErrEmptyIndex, path)
	}
	idx.logger.Info("loaded index", "dir", path, "chunks", idx.Len(), "dimension", idx.Dimension())
	return idx, nil
}

// CreateDir opens the index directory for building, creating it if needed.
func CreateDir(path string, logger *slog.Logger) (*DirIndex, error) {
	return open(badgerConfig{Path: path, Create: true, Logger: logger}, logger)
}

// NewInMemory returns an empty index that is never written to disk.
func NewInMemory(logger *slog.Logger) (*DirIndex, error) {
	return open(badgerConfig{InMemory: true}, logger)
}

func open(cfg badgerConfig, logger *slog.Logger) (*DirIndex, error) {
	if logger == nil {
		logger = slog.Default()
	}
	db, err := openBadger(cfg)
	if err != nil {
		return nil, err
	}
	idx := &DirIndex{db: db, logger: logger}
	if err := idx.load(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return idx, nil
}

// load reads every record in key order.
func (d *DirIndex) load() error {
	var records []Record
	err := d.db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()
		prefix := []byte(chunkPrefix)
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			item := it.Item()
			err := item.Value(func(val []byte) error {
				var r Record
				if err := json.Unmarshal(val, &r); err != nil {
					return fmt.Errorf("decode chunk %s: %w", item.Key(), err)
				}
				records = append(records, r)
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("load index: %w", err)
	}

	dim := 0
	for _, r := range records {
		if dim == 0 {
			dim = len(r.Embedding)
			continue
		}
		if len(r.Embedding) != dim {
			return fmt.Errorf("load index: %w: chunk %s has %d, expected %d",
				ErrDimensionMismatch, r.ID, len(r.Embedding), dim)
		}
	}

	d.mu.Lock()
	d.records = records
	d.dim = dim
	d.mu.Unlock()
	return nil
}

// Add writes records to the directory and reloads the in-memory view.
// Records with an existing ID replace the stored one.
func (d *DirIndex) Add(ctx context.Context, records []Record) error {
	if len(records) == 0 {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	dim := d.Dimension()
	for _, r := range records {
		if r.ID == "" {
			return fmt.Errorf("add chunk: empty id")
		}
		if dim == 0 {
			dim = len(r.Embedding)
		}
		if len(r.Embedding) != dim || dim == 0 {
			return fmt.Errorf("add chunk %s: %w: got %d, expected %d",
				r.ID, ErrDimensionMismatch, len(r.Embedding), dim)
		}
	}

	wb := d.db.NewWriteBatch()
	defer wb.Cancel()
	for _, r := range records {
		val, err := json.Marshal(r)
		if err != nil {
			return fmt.Errorf("encode chunk %s: %w", r.ID, err)
		}
		if err := wb.Set([]byte(chunkPrefix+r.ID), val); err != nil {
			return fmt.Errorf("write chunk %s: %w", r.ID, err)
		}
	}
	if err := wb.Flush(); err != nil {
		return fmt.Errorf("flush chunks: %w", err)
	}
	return d.load()
}

// Search implements Index.
func (d *DirIndex) Search(ctx context.Context, embedding []float32, k int) ([]Chunk, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.dim != 0 && len(embedding) != d.dim {
		return nil, fmt.Errorf("%w: query has %d, index has %d", ErrDimensionMismatch, len(embedding), d.dim)
	}
	return Rank(d.records, embedding, k)
}

// Len returns the number of loaded chunks.
func (d *DirIndex) Len() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.records)
}

// Dimension returns the embedding size of the loaded chunks, or 0 when the
// index is empty.
func (d *DirIndex) Dimension() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.dim
}

// Close releases the underlying database.
func (d *DirIndex) Close() error {
	return d.db.Close()
}
