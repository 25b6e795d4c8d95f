package index

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func sampleRecords() []Record {
	return []Record{
		{ID: "fever-1", Text: "Fever is a temporary rise in body temperature.", Metadata: map[string]any{"source": "fever.md"}, Embedding: []float32{1, 0, 0}},
		{ID: "fever-2", Text: "Drink fluids and rest when you have a fever.", Metadata: map[string]any{"source": "fever.md"}, Embedding: []float32{0.9, 0.1, 0}},
		{ID: "cough-1", Text: "A cough helps clear the airways.", Metadata: map[string]any{"source": "cough.md"}, Embedding: []float32{0, 1, 0}},
		{ID: "rash-1", Text: "Rashes have many causes.", Metadata: map[string]any{"source": "rash.md"}, Embedding: []float32{0, 0, 1}},
	}
}

func newMemIndex(t *testing.T) *DirIndex {
	t.Helper()
	idx, err := NewInMemory(quietLogger())
	require.NoError(t, err)
	t.Cleanup(func() { _ = idx.Close() })
	require.NoError(t, idx.Add(context.Background(), sampleRecords()))
	return idx
}

func TestDirIndex_SearchOrdersBySimilarity(t *testing.T) {
	idx := newMemIndex(t)
	got, err := idx.Search(context.Background(), []float32{1, 0.05, 0}, 3)
	require.NoError(t, err)
	require.Len(t, got, 3)
	assert.Equal(t, "fever-1", got[0].ID)
	assert.Equal(t, "fever-2", got[1].ID)
	assert.Equal(t, "cough-1", got[2].ID)
	assert.GreaterOrEqual(t, got[0].Score, got[1].Score)
	assert.Equal(t, "fever.md", got[0].Metadata["source"])
}

func TestDirIndex_SearchIsDeterministic(t *testing.T) {
	idx := newMemIndex(t)
	q := []float32{0.3, 0.3, 0.3}
	first, err := idx.Search(context.Background(), q, 4)
	require.NoError(t, err)
	second, err := idx.Search(context.Background(), q, 4)
	require.NoError(t, err)

	ids := func(cs []Chunk) []string {
		out := make([]string, len(cs))
		for i, c := range cs {
			out[i] = c.ID
		}
		return out
	}
	assert.Equal(t, ids(first), ids(second))
}

func TestDirIndex_SearchLimitsToK(t *testing.T) {
	idx := newMemIndex(t)
	got, err := idx.Search(context.Background(), []float32{1, 1, 1}, 2)
	require.NoError(t, err)
	assert.Len(t, got, 2)

	got, err = idx.Search(context.Background(), []float32{1, 1, 1}, 10)
	require.NoError(t, err)
	assert.Len(t, got, 4)
}

func TestDirIndex_SearchReturnsMetadataCopies(t *testing.T) {
	idx := newMemIndex(t)
	got, err := idx.Search(context.Background(), []float32{1, 0, 0}, 1)
	require.NoError(t, err)
	got[0].Metadata["source"] = "changed"

	again, err := idx.Search(context.Background(), []float32{1, 0, 0}, 1)
	require.NoError(t, err)
	assert.Equal(t, "fever.md", again[0].Metadata["source"])
}

func TestDirIndex_DimensionMismatch(t *testing.T) {
	idx := newMemIndex(t)
	_, err := idx.Search(context.Background(), []float32{1, 0}, 3)
	assert.ErrorIs(t, err, ErrDimensionMismatch)

	err = idx.Add(context.Background(), []Record{{ID: "bad", Embedding: []float32{1}}})
	assert.ErrorIs(t, err, ErrDimensionMismatch)
}

func TestDirIndex_SearchHonoursCancelledContext(t *testing.T) {
	idx := newMemIndex(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := idx.Search(ctx, []float32{1, 0, 0}, 3)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestOpenDir_MissingDirectory(t *testing.T) {
	_, err := OpenDir(filepath.Join(t.TempDir(), "nope"), quietLogger())
	assert.ErrorIs(t, err, ErrIndexNotFound)
}

func TestOpenDir_EmptyIndex(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "idx")
	idx, err := CreateDir(dir, quietLogger())
	require.NoError(t, err)
	require.NoError(t, idx.Close())

	_, err = OpenDir(dir, quietLogger())
	assert.ErrorIs(t, err, ErrEmptyIndex)
}

func TestOpenDir_EmptyDirectoryIsLeftUntouched(t *testing.T) {
	dir := t.TempDir()
	_, err := OpenDir(dir, quietLogger())
	assert.ErrorIs(t, err, ErrEmptyIndex)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestOpenDir_SharedBetweenReaders(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "idx")
	built, err := CreateDir(dir, quietLogger())
	require.NoError(t, err)
	require.NoError(t, built.Add(context.Background(), sampleRecords()))
	require.NoError(t, built.Close())

	first, err := OpenDir(dir, quietLogger())
	require.NoError(t, err)
	t.Cleanup(func() { _ = first.Close() })
	second, err := OpenDir(dir, quietLogger())
	require.NoError(t, err)
	t.Cleanup(func() { _ = second.Close() })

	assert.Equal(t, first.Len(), second.Len())
	a, err := first.Search(context.Background(), []float32{1, 0, 0}, 2)
	require.NoError(t, err)
	b, err := second.Search(context.Background(), []float32{1, 0, 0}, 2)
	require.NoError(t, err)
	assert.Equal(t, a, b)
}

func TestOpenDir_PersistsAcrossReopen(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "idx")
	built, err := CreateDir(dir, quietLogger())
	require.NoError(t, err)
	require.NoError(t, built.Add(context.Background(), sampleRecords()))
	before, err := built.Search(context.Background(), []float32{0.2, 0.9, 0.1}, 4)
	require.NoError(t, err)
	require.NoError(t, built.Close())

	reopened, err := OpenDir(dir, quietLogger())
	require.NoError(t, err)
	t.Cleanup(func() { _ = reopened.Close() })

	assert.Equal(t, 4, reopened.Len())
	assert.Equal(t, 3, reopened.Dimension())
	after, err := reopened.Search(context.Background(), []float32{0.2, 0.9, 0.1}, 4)
	require.NoError(t, err)
	require.Len(t, after, len(before))
	for i := range before {
		assert.Equal(t, before[i].ID, after[i].ID)
		assert.Equal(t, before[i].Text, after[i].Text)
	}
}

func TestRank_TiesKeepInputOrder(t *testing.T) {
	recs := []Record{
		{ID: "b", Embedding: []float32{1, 0}},
		{ID: "a", Embedding: []float32{1, 0}},
		{ID: "c", Embedding: []float32{1, 0}},
	}
	got, err := Rank(recs, []float32{1, 0}, 3)
	require.NoError(t, err)
	assert.Equal(t, "b", got[0].ID)
	assert.Equal(t, "a", got[1].ID)
	assert.Equal(t, "c", got[2].ID)
}

func TestCosineSimilarity(t *testing.T) {
	assert.InDelta(t, 1.0, CosineSimilarity([]float32{1, 2}, []float32{2, 4}), 1e-9)
	assert.InDelta(t, 0.0, CosineSimilarity([]float32{1, 0}, []float32{0, 1}), 1e-9)
	assert.Equal(t, 0.0, CosineSimilarity([]float32{0, 0}, []float32{1, 1}))
}
