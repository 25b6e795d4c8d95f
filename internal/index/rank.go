package index

import (
	"fmt"
	"math"
	"sort"
)

// CosineSimilarity returns the cosine of the angle between a and b.  Zero
// vectors score 0.
func CosineSimilarity(a, b []float32) float64 {
	var dot, na, nb float64
	for i := range a {
		x, y := float64(a[i]), float64(b[i])
		dot += x * y
		na += x * x
		nb += y * y
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}

// Rank scores every record against query and returns the top k by
// descending similarity.  Ties keep the order of records, so a fixed slice
// always ranks the same way.
func Rank(records []Record, query []float32, k int) ([]Chunk, error) {
	if k <= 0 {
		return nil, nil
	}
	type scored struct {
		rec   *Record
		score float64
	}
	all := make([]scored, 0, len(records))
	for i := range records {
		r := &records[i]
		if len(r.Embedding) != len(query) {
			return nil, fmt.Errorf("%w: record %s has %d, query has %d",
				ErrDimensionMismatch, r.ID, len(r.Embedding), len(query))
		}
		all = append(all, scored{rec: r, score: CosineSimilarity(query, r.Embedding)})
	}
	sort.SliceStable(all, func(i, j int) bool { return all[i].score > all[j].score })
	if len(all) > k {
		all = all[:k]
	}
	out := make([]Chunk, len(all))
	for i, s := range all {
		out[i] = Chunk{
			ID:       s.rec.ID,
			Text:     s.rec.Text,
			Metadata: copyMetadata(s.rec.Metadata),
			Score:    s.score,
		}
	}
	return out, nil
}

func copyMetadata(m map[string]any) map[string]any {
	if m == nil {
		return map[string]any{}
	}
	out := make(map[string]any, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
