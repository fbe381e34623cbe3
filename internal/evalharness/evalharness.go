package evalharness

import (
	"sort"
	"strings"
)

// Item is one labeled fact: for a document, a material attribute and its
// expected (or predicted) value.
type Item struct {
	DocumentID string
	Material   string
	Attribute  string
	Value      string
}

// Metrics holds set-based precision/recall/F1 with their raw counts.
// Zero-denominator cases are defined as 0, never NaN.
type Metrics struct {
	TruePositives  int
	FalsePositives int
	FalseNegatives int
	Precision      float64
	Recall         float64
	F1             float64
}

// MaterialMetrics pairs a material name with its metrics for per-material
// breakdowns.
type MaterialMetrics struct {
	Material string
	Metrics  Metrics
}

// Report is the full evaluation output: overall metrics plus a per-material
// breakdown sorted by material name for stable output.
type Report struct {
	Overall     Metrics
	PerMaterial []MaterialMetrics
}

// Normalize canonicalizes a value for comparison: lowercase with internal
// whitespace collapsed. Evaluation never mutates the stored records.
func Normalize(s string) string {
	return strings.ToLower(strings.Join(strings.Fields(s), " "))
}

type itemKey struct {
	documentID string
	material   string
	attribute  string
}

// Evaluate scores predicted items against ground truth. Items are keyed by
// (document, material, attribute); a prediction is a true positive when the
// truth set holds the same key with a matching normalized value. Evaluating
// the same inputs twice produces identical reports.
func Evaluate(predicted, truth []Item) Report {
	truthVals := make(map[itemKey]string, len(truth))
	for _, t := range truth {
		truthVals[keyOf(t)] = Normalize(t.Value)
	}

	matched := make(map[itemKey]bool, len(truth))
	perMat := make(map[string]*Metrics)

	track := func(material string) *Metrics {
		m, ok := perMat[material]
		if !ok {
			m = &Metrics{}
			perMat[material] = m
		}
		return m
	}

	var overall Metrics
	for _, p := range predicted {
		k := keyOf(p)
		m := track(normalizeMaterial(p.Material))
		if want, ok := truthVals[k]; ok && want == Normalize(p.Value) && !matched[k] {
			matched[k] = true
			overall.TruePositives++
			m.TruePositives++
			continue
		}
		overall.FalsePositives++
		m.FalsePositives++
	}
	for _, t := range truth {
		if !matched[keyOf(t)] {
			overall.FalseNegatives++
			track(normalizeMaterial(t.Material)).FalseNegatives++
		}
	}

	overall.finalize()
	report := Report{Overall: overall}
	for name, m := range perMat {
		m.finalize()
		report.PerMaterial = append(report.PerMaterial, MaterialMetrics{Material: name, Metrics: *m})
	}
	sort.Slice(report.PerMaterial, func(a, b int) bool {
		return report.PerMaterial[a].Material < report.PerMaterial[b].Material
	})
	return report
}

func keyOf(it Item) itemKey {
	return itemKey{
		documentID: Normalize(it.DocumentID),
		material:   normalizeMaterial(it.Material),
		attribute:  Normalize(it.Attribute),
	}
}

func normalizeMaterial(s string) string { return Normalize(s) }

func (m *Metrics) finalize() {
	if denom := m.TruePositives + m.FalsePositives; denom > 0 {
		m.Precision = float64(m.TruePositives) / float64(denom)
	}
	if denom := m.TruePositives + m.FalseNegatives; denom > 0 {
		m.Recall = float64(m.TruePositives) / float64(denom)
	}
	if m.Precision+m.Recall > 0 {
		m.F1 = 2 * m.Precision * m.Recall / (m.Precision + m.Recall)
	}
}
