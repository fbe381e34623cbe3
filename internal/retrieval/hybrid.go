package retrieval

import (
	"context"
	"log/slog"
	"sort"

	"github.com/specsift/specsift/constants"
	"github.com/specsift/specsift/internal/document"
	"github.com/specsift/specsift/internal/terms"
)

// CandidateHit is a (material, passage) pair flagged as relevant by keyword
// and/or semantic matching. One logical set exists per material per document;
// hits are transient and not persisted beyond a run.
type CandidateHit struct {
	Material  terms.MaterialTerm
	PassageID string
	Position  int
	Source    constants.CandidateSource
	Score     float64
}

// Retriever merges keyword and semantic results into a deduplicated, ranked
// candidate set per material.
type Retriever struct {
	logger  *slog.Logger
	matcher *KeywordMatcher
	topK    int
}

// NewRetriever builds a retriever over the given material taxonomy.
func NewRetriever(materials []terms.MaterialTerm, topK int, logger *slog.Logger) *Retriever {
	if logger == nil {
		logger = slog.Default()
	}
	if topK <= 0 {
		topK = 35
	}
	return &Retriever{
		logger:  logger,
		matcher: NewKeywordMatcher(materials),
		topK:    topK,
	}
}

// Retrieve runs both retrieval paths for every material and merges them.
// The semantic index may be nil or empty (embedding unavailable); materials
// then get keyword-only candidates. A material with zero hits yields an
// empty slice, never an error.
func (r *Retriever) Retrieve(ctx context.Context, store *document.Store, index *Index, materials []terms.MaterialTerm) map[string][]CandidateHit {
	passages := store.Passages()
	out := make(map[string][]CandidateHit, len(materials))

	for _, mat := range materials {
		if ctx.Err() != nil {
			break
		}

		// Keyword and semantic paths run concurrently and join before merge.
		kwCh := make(chan []keywordHit, 1)
		semCh := make(chan []semanticHit, 1)
		go func() {
			kwCh <- r.matcher.Match(mat, passages)
		}()
		go func() {
			semCh <- r.semanticPath(ctx, index, mat)
		}()
		kw, sem := <-kwCh, <-semCh

		hits := r.merge(mat, kw, sem)
		if len(hits) == 0 {
			// RetrievalEmpty: logged and skipped, not an error.
			r.logger.Debug("retrieve.empty", "material", mat.Canonical)
		}
		out[mat.Canonical] = hits
	}
	return out
}

func (r *Retriever) semanticPath(ctx context.Context, index *Index, mat terms.MaterialTerm) []semanticHit {
	if index == nil || index.Size() == 0 {
		return nil
	}
	query, err := index.MaterialVector(ctx, mat)
	if err != nil {
		r.logger.Warn("retrieve.semantic.skipped", "material", mat.Canonical, "error", err)
		return nil
	}
	return index.Search(query, r.topK)
}

// merge unions the two result sets. Keyword and semantic scores are
// normalized to [0,1] independently before comparison; a passage present in
// both paths is marked SourceBoth with the max of the two scores. Ordering is
// score descending, ties broken by passage position (earlier passage wins).
func (r *Retriever) merge(mat terms.MaterialTerm, kw []keywordHit, sem []semanticHit) []CandidateHit {
	byPassage := make(map[string]*CandidateHit, len(kw)+len(sem))

	var maxKw float64
	for _, h := range kw {
		if h.score > maxKw {
			maxKw = h.score
		}
	}
	for _, h := range kw {
		score := h.score
		if maxKw > 0 {
			score /= maxKw
		}
		byPassage[h.passage.ID] = &CandidateHit{
			Material:  mat,
			PassageID: h.passage.ID,
			Position:  h.passage.Position,
			Source:    constants.SourceKeyword,
			Score:     score,
		}
	}
	for _, h := range sem {
		if existing, ok := byPassage[h.passageID]; ok {
			existing.Source = constants.SourceBoth
			if h.score > existing.Score {
				existing.Score = h.score
			}
			continue
		}
		byPassage[h.passageID] = &CandidateHit{
			Material:  mat,
			PassageID: h.passageID,
			Position:  h.position,
			Source:    constants.SourceSemantic,
			Score:     h.score,
		}
	}

	hits := make([]CandidateHit, 0, len(byPassage))
	for _, h := range byPassage {
		hits = append(hits, *h)
	}
	sort.Slice(hits, func(a, b int) bool {
		if hits[a].Score != hits[b].Score {
			return hits[a].Score > hits[b].Score
		}
		return hits[a].Position < hits[b].Position
	})
	return hits
}
