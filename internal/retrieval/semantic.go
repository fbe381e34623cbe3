package retrieval

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"sort"

	"github.com/specsift/specsift/internal/document"
	"github.com/specsift/specsift/internal/embedding"
	"github.com/specsift/specsift/internal/terms"
)

// Metric selects the nearest-neighbour distance function.
type Metric string

const (
	MetricCosine Metric = "cosine"
	MetricL2     Metric = "l2"
)

type indexEntry struct {
	passageID string
	position  int
	vec       []float32
}

// Index is the frozen semantic index over one document's passages. It is
// built once, before any concurrent readers attach, and never mutated
// afterwards, so queries need no locking.
type Index struct {
	metric    Metric
	threshold float64
	embedder  embedding.Embedder
	entries   []indexEntry
	skipped   int
}

// semanticHit is a raw semantic match before score normalization.
type semanticHit struct {
	passageID string
	position  int
	score     float64
}

// BuildIndex embeds every passage up front and returns the frozen index.
// Passages the embedder cannot vectorize are skipped (they stay eligible for
// the keyword path). Embeddings are also written back onto the store's
// passages so downstream consumers can see which passages were indexed.
func BuildIndex(ctx context.Context, emb embedding.Embedder, store *document.Store, metric Metric, threshold float64, logger *slog.Logger) (*Index, error) {
	if logger == nil {
		logger = slog.Default()
	}
	passages := store.Passages()
	idx := &Index{metric: metric, threshold: threshold, embedder: emb}
	if len(passages) == 0 {
		return idx, nil
	}

	corpus := make([]string, len(passages))
	for i, p := range passages {
		corpus[i] = p.Text
	}
	if err := emb.Prepare(corpus); err != nil {
		return idx, fmt.Errorf("prepare embedder: %w", err)
	}
	vecs, err := emb.Embed(ctx, corpus)
	if err != nil {
		return idx, fmt.Errorf("embed passages: %w", err)
	}
	if len(vecs) != len(passages) {
		return idx, fmt.Errorf("embedder returned %d vectors for %d passages", len(vecs), len(passages))
	}

	for i, p := range passages {
		if len(vecs[i]) == 0 {
			idx.skipped++
			continue
		}
		store.SetEmbedding(p.ID, vecs[i])
		idx.entries = append(idx.entries, indexEntry{passageID: p.ID, position: p.Position, vec: vecs[i]})
	}
	logger.Debug("semantic.index.built",
		"document_id", store.DocumentID(),
		"indexed", len(idx.entries),
		"skipped", idx.skipped,
		"embedder", emb.Name(),
	)
	return idx, nil
}

// Size returns the number of indexed passages.
func (ix *Index) Size() int { return len(ix.entries) }

// MaterialVector embeds the material's canonical name and synonyms and
// returns their mean vector.
func (ix *Index) MaterialVector(ctx context.Context, mat terms.MaterialTerm) ([]float32, error) {
	names := mat.AllNames()
	vecs, err := ix.embedder.Embed(ctx, names)
	if err != nil {
		return nil, fmt.Errorf("embed material %q: %w", mat.Canonical, err)
	}
	var mean []float32
	var count int
	for _, v := range vecs {
		if len(v) == 0 {
			continue
		}
		if mean == nil {
			mean = make([]float32, len(v))
		}
		for i := range v {
			mean[i] += v[i]
		}
		count++
	}
	if count == 0 {
		return nil, fmt.Errorf("no vectors for material %q", mat.Canonical)
	}
	for i := range mean {
		mean[i] /= float32(count)
	}
	return mean, nil
}

// Search returns up to topK passages nearest to the query vector, scored in
// [0,1], best first. Under cosine the threshold is a minimum similarity;
// under l2 it is a maximum distance. Ties break by passage position.
func (ix *Index) Search(query []float32, topK int) []semanticHit {
	if topK <= 0 || len(ix.entries) == 0 || len(query) == 0 {
		return nil
	}
	hits := make([]semanticHit, 0, len(ix.entries))
	for _, e := range ix.entries {
		var score float64
		switch ix.metric {
		case MetricL2:
			dist := l2Distance(query, e.vec)
			if ix.threshold > 0 && dist > ix.threshold {
				continue
			}
			score = 1 / (1 + dist)
		default:
			sim := cosineSimilarity(query, e.vec)
			if sim < ix.threshold {
				continue
			}
			score = clamp01(sim)
		}
		hits = append(hits, semanticHit{passageID: e.passageID, position: e.position, score: score})
	}
	sort.Slice(hits, func(a, b int) bool {
		if hits[a].score != hits[b].score {
			return hits[a].score > hits[b].score
		}
		return hits[a].position < hits[b].position
	})
	if len(hits) > topK {
		hits = hits[:topK]
	}
	return hits
}

func cosineSimilarity(a, b []float32) float64 {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	var dot, na, nb float64
	for i := 0; i < n; i++ {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}

func l2Distance(a, b []float32) float64 {
	n := len(a)
	if len(b) < n {
		n = len(b)
	}
	var sum float64
	for i := 0; i < n; i++ {
		d := float64(a[i]) - float64(b[i])
		sum += d * d
	}
	return math.Sqrt(sum)
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
