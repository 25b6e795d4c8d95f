// Package ingest builds a chunk index from a directory of documents.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
	"github.com/tmc/langchaingo/textsplitter"
	"golang.org/x/sync/errgroup"

	"medassist-chatbot/internal/embedding"
	"medassist-chatbot/internal/index"
)

const (
	DefaultChunkSize    = 800
	DefaultChunkOverlap = 100
	DefaultBatchSize    = 64
	DefaultConcurrency  = 4
)

// ErrNoDocuments is returned when the source directory has nothing to index.
var ErrNoDocuments = errors.New("no documents found")

// chunkNamespace seeds deterministic chunk ids, so re-indexing the same
// documents overwrites instead of duplicating.
var chunkNamespace = uuid.NewSHA1(uuid.NameSpaceURL, []byte("medassist-chatbot/chunk"))

// Builder splits, embeds and stores documents.
type Builder struct {
	Embedder    embedding.Embedder
	Writer      index.Writer
	Splitter    textsplitter.TextSplitter
	BatchSize   int
	Concurrency int
	Logger      *slog.Logger
}

// Stats summarises one Build.
type Stats struct {
	Documents int
	Chunks    int
}

// NewSplitter returns the recursive character splitter used for medical
// documents, preferring paragraph and sentence boundaries.
func NewSplitter(size, overlap int) textsplitter.TextSplitter {
	if size <= 0 {
		size = DefaultChunkSize
	}
	if overlap < 0 || overlap >= size {
		overlap = DefaultChunkOverlap
	}
	return textsplitter.NewRecursiveCharacter(
		textsplitter.WithChunkSize(size),
		textsplitter.WithChunkOverlap(overlap),
		textsplitter.WithSeparators([]string{"\n\n", "\n", ". ", " ", ""}),
	)
}

// Build indexes every .txt and .md file below dir.
func (b *Builder) Build(ctx context.Context, dir string) (Stats, error) {
	logger := b.Logger
	if logger == nil {
		logger = slog.Default()
	}
	splitter := b.Splitter
	if splitter == nil {
		splitter = NewSplitter(0, DefaultChunkOverlap)
	}

	paths, err := documents(dir)
	if err != nil {
		return Stats{}, err
	}
	if len(paths) == 0 {
		return Stats{}, fmt.Errorf("%w in %s", ErrNoDocuments, dir)
	}

	var records []index.Record
	for _, path := range paths {
		raw, err := os.ReadFile(path)
		if err != nil {
			return Stats{}, fmt.Errorf("read %s: %w", path, err)
		}
		rel, err := filepath.Rel(dir, path)
		if err != nil {
			rel = filepath.Base(path)
		}
		rel = filepath.ToSlash(rel)
		parts, err := splitter.SplitText(string(raw))
		if err != nil {
			return Stats{}, fmt.Errorf("split %s: %w", rel, err)
		}
		n := 0
		for _, p := range parts {
			p = strings.TrimSpace(p)
			if p == "" {
				continue
			}
			records = append(records, index.Record{
				ID:       ChunkID(rel, n),
				Text:     p,
				Metadata: map[string]any{"source": rel, "chunk": n},
			})
			n++
		}
		logger.Debug("split document", "source", rel, "chunks", n)
	}
	if len(records) == 0 {
		return Stats{}, fmt.Errorf("%w in %s", ErrNoDocuments, dir)
	}

	if err := b.embed(ctx, records); err != nil {
		return Stats{}, err
	}
	if err := b.Writer.Add(ctx, records); err != nil {
		return Stats{}, fmt.Errorf("write index: %w", err)
	}
	stats := Stats{Documents: len(paths), Chunks: len(records)}
	logger.Info("index built", "documents", stats.Documents, "chunks", stats.Chunks)
	return stats, nil
}

// embed fills in every record's embedding, running batches concurrently.
func (b *Builder) embed(ctx context.Context, records []index.Record) error {
	size := b.BatchSize
	if size <= 0 {
		size = DefaultBatchSize
	}
	limit := b.Concurrency
	if limit <= 0 {
		limit = DefaultConcurrency
	}

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(limit)
	for start := 0; start < len(records); start += size {
		batch := records[start:min(start+size, len(records))]
		g.Go(func() error {
			texts := make([]string, len(batch))
			for i, r := range batch {
				texts[i] = r.Text
			}
			vecs, err := b.Embedder.EmbedBatch(ctx, texts)
			if err != nil {
				return fmt.Errorf("embed batch at %d: %w", start, err)
			}
			if len(vecs) != len(batch) {
				return fmt.Errorf("embed batch at %d: got %d vectors for %d texts", start, len(vecs), len(batch))
			}
			for i := range batch {
				batch[i].Embedding = vecs[i]
			}
			return nil
		})
	}
	return g.Wait()
}

// ChunkID returns the stable id of the n-th chunk of source.
func ChunkID(source string, n int) string {
	return uuid.NewSHA1(chunkNamespace, []byte(fmt.Sprintf("%s#%d", source, n))).String()
}

// documents lists indexable files below dir in lexical order.
func documents(dir string) ([]string, error) {
	info, err := os.Stat(dir)
	if err != nil {
		return nil, fmt.Errorf("source directory: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("source directory: %s is not a directory", dir)
	}
	var out []string
	err = filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			if path != dir && strings.HasPrefix(d.Name(), ".") {
				return filepath.SkipDir
			}
			return nil
		}
		switch strings.ToLower(filepath.Ext(path)) {
		case ".txt", ".md":
			out = append(out, path)
		}
		return nil
	})
	return out, err
}
