package extract

import (
	"log/slog"

	"github.com/specsift/specsift/internal/document"
	"github.com/specsift/specsift/internal/retrieval"
	"github.com/specsift/specsift/internal/terms"
)

// Field is one extracted (attribute, value) pair, traced back to the passage
// it came from.
type Field struct {
	Material  string
	Attribute string
	RawValue  string
	PassageID string
}

// RuleContext is everything a rule may look at for one candidate passage.
type RuleContext struct {
	Passage   document.Passage
	Context   string             // passage text joined with its neighbours
	Preceding []document.Passage // nearest-first, for backward heading scans
	Material  terms.MaterialTerm
}

// Rule is one extraction strategy. Rules are independent; each turns a
// candidate passage into zero or more fields. Priority fixes the execution
// order; Specificity is a static property used to resolve duplicate-attribute
// conflicts (a later rule only displaces an earlier value when its
// specificity is strictly higher).
type Rule interface {
	Name() string
	Priority() int
	Specificity() int
	Apply(rc RuleContext) []Field
}

// Extractor runs a tagged list of rules over candidate passages in a
// statically declared priority order.
type Extractor struct {
	logger *slog.Logger
	rules  []Rule
}

// NewExtractor returns an extractor with the default rule set. The rule list
// is sorted by priority at construction and never changes afterwards.
func NewExtractor(logger *slog.Logger) *Extractor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Extractor{logger: logger, rules: defaultRules()}
}

// NewExtractorWithRules builds an extractor over a custom rule list, assumed
// already ordered by priority. Used by tests and callers with bespoke rules.
func NewExtractorWithRules(logger *slog.Logger, rules []Rule) *Extractor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Extractor{logger: logger, rules: rules}
}

// contextWindow is the number of neighbouring passages joined on each side
// when building rule context (the original pipeline used one line each way).
const contextWindow = 1

// Extract applies every rule to every candidate hit. Within one passage,
// duplicate-attribute conflicts resolve deterministically: the first rule to
// match wins unless a later rule reports strictly higher specificity. Output
// is NOT deduplicated across passages; the refinement orchestrator reconciles.
func (e *Extractor) Extract(store *document.Store, hits []retrieval.CandidateHit) []Field {
	var out []Field
	for _, hit := range hits {
		passage, ok := store.Passage(hit.PassageID)
		if !ok {
			// Candidate referencing a missing passage violates the retriever's
			// contract; skip rather than fabricate.
			e.logger.Warn("extract.missing_passage", "passage_id", hit.PassageID, "material", hit.Material.Canonical)
			continue
		}
		rc := RuleContext{
			Passage:   passage,
			Context:   store.Context(hit.PassageID, contextWindow),
			Preceding: store.Preceding(hit.PassageID),
			Material:  hit.Material,
		}

		// attribute -> index into fields, plus the specificity that claimed it
		claimed := make(map[string]int)
		spec := make(map[string]int)
		var fields []Field
		for _, rule := range e.rules {
			for _, f := range rule.Apply(rc) {
				if f.RawValue == "" {
					continue
				}
				f.Material = hit.Material.Canonical
				f.PassageID = hit.PassageID
				if i, dup := claimed[f.Attribute]; dup {
					if rule.Specificity() > spec[f.Attribute] {
						fields[i] = f
						spec[f.Attribute] = rule.Specificity()
					}
					continue
				}
				claimed[f.Attribute] = len(fields)
				spec[f.Attribute] = rule.Specificity()
				fields = append(fields, f)
			}
		}
		out = append(out, fields...)
	}
	return out
}
