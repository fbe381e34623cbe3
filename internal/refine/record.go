package refine

import (
	"github.com/google/uuid"

	"github.com/specsift/specsift/internal/extract"
)

// State is the refinement state machine position. Terminal states are the two
// provider-active states (on success) and StateFailed.
type State string

const (
	StatePrimaryActive    State = "PRIMARY_ACTIVE"
	StatePrimaryExhausted State = "PRIMARY_EXHAUSTED"
	StateFallbackActive   State = "FALLBACK_ACTIVE"
	StateFailed           State = "FAILED"
)

// Record is the final output unit for one material in one document: the
// reconciled attributes, optionally refined by a provider, plus provenance.
// A degraded record carries the rule-extracted attributes untouched.
type Record struct {
	ID             string            `json:"id"`
	DocumentID     string            `json:"document_id"`
	Material       string            `json:"material"`
	Attributes     map[string]string `json:"attributes"`
	Summary        string            `json:"summary,omitempty"`
	SourcePassages []string          `json:"source_passages"`
	Provider       string            `json:"provider,omitempty"`
	Confidence     float64           `json:"confidence"`
	Degraded       bool              `json:"degraded"`
	State          State             `json:"state"`
}

// Reconcile collapses the extractor's per-passage fields into one value per
// attribute plus the ordered set of contributing passage IDs. Values for the
// same attribute from different passages are joined in extraction order with
// duplicates removed, so the result is deterministic for a given field list.
func Reconcile(fields []extract.Field) (map[string]string, []string) {
	attrs := make(map[string]string)
	seen := make(map[string]map[string]struct{})
	var passageIDs []string
	seenPassage := make(map[string]struct{})

	for _, f := range fields {
		if f.RawValue == "" {
			continue
		}
		if _, ok := seen[f.Attribute]; !ok {
			seen[f.Attribute] = map[string]struct{}{f.RawValue: {}}
			attrs[f.Attribute] = f.RawValue
		} else if _, dup := seen[f.Attribute][f.RawValue]; !dup {
			seen[f.Attribute][f.RawValue] = struct{}{}
			attrs[f.Attribute] += "; " + f.RawValue
		}
		if f.PassageID != "" {
			if _, ok := seenPassage[f.PassageID]; !ok {
				seenPassage[f.PassageID] = struct{}{}
				passageIDs = append(passageIDs, f.PassageID)
			}
		}
	}
	return attrs, passageIDs
}

// NewBaseRecord builds the pre-refinement record for a material: reconciled
// rule output, no provider, degraded until a provider succeeds.
func NewBaseRecord(documentID, material string, fields []extract.Field) Record {
	attrs, passages := Reconcile(fields)
	return Record{
		ID:             uuid.New().String(),
		DocumentID:     documentID,
		Material:       material,
		Attributes:     attrs,
		SourcePassages: passages,
		Confidence:     ruleOnlyConfidence,
		Degraded:       true,
		State:          StateFailed,
	}
}

const (
	ruleOnlyConfidence  = 0.4
	defaultAIConfidence = 0.9
)
