package retrieval

import (
	"regexp"
	"strings"

	"github.com/specsift/specsift/internal/document"
	"github.com/specsift/specsift/internal/terms"
)

// KeywordMatcher scans passages for material terms and synonyms using
// case-insensitive whole-word matching. Patterns are compiled once per term
// set and shared read-only afterwards.
type KeywordMatcher struct {
	patterns map[string]*regexp.Regexp // canonical -> alternation over all names
}

// NewKeywordMatcher compiles one pattern per material covering its canonical
// name and synonyms.
func NewKeywordMatcher(materials []terms.MaterialTerm) *KeywordMatcher {
	m := &KeywordMatcher{patterns: make(map[string]*regexp.Regexp, len(materials))}
	for _, mat := range materials {
		names := mat.AllNames()
		quoted := make([]string, 0, len(names))
		for _, n := range names {
			if n = strings.TrimSpace(n); n != "" {
				quoted = append(quoted, regexp.QuoteMeta(n))
			}
		}
		if len(quoted) == 0 {
			continue
		}
		m.patterns[mat.Canonical] = regexp.MustCompile(`(?i)\b(?:` + strings.Join(quoted, "|") + `)\b`)
	}
	return m
}

// keywordHit is a raw keyword match before score normalization.
type keywordHit struct {
	passage document.Passage
	score   float64 // term frequency / passage tokens, pre-normalization
}

// Match returns raw hits for one material across all passages. Scores are
// term frequency over passage token count; the hybrid merge normalizes them
// to [0,1] per material.
func (m *KeywordMatcher) Match(mat terms.MaterialTerm, passages []document.Passage) []keywordHit {
	re, ok := m.patterns[mat.Canonical]
	if !ok {
		return nil
	}
	var hits []keywordHit
	for _, p := range passages {
		n := len(re.FindAllStringIndex(p.Text, -1))
		if n == 0 {
			continue
		}
		tokens := len(strings.Fields(p.Text))
		if tokens == 0 {
			tokens = 1
		}
		score := float64(n) / float64(tokens)
		if score > 1 {
			score = 1
		}
		hits = append(hits, keywordHit{passage: p, score: score})
	}
	return hits
}
