package terms

import (
	"fmt"
	"os"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/specsift/specsift/constants"
)

// MaterialTerm is one target material: a canonical name plus the synonyms
// that should also count as keyword hits. Loaded once at process start and
// shared read-only across a run.
type MaterialTerm struct {
	Canonical string   `yaml:"canonical"`
	Synonyms  []string `yaml:"synonyms"`
}

// AllNames returns the canonical name followed by synonyms.
func (m MaterialTerm) AllNames() []string {
	out := make([]string, 0, 1+len(m.Synonyms))
	out = append(out, m.Canonical)
	out = append(out, m.Synonyms...)
	return out
}

type termsFile struct {
	Materials []MaterialTerm `yaml:"materials"`
	Replace   bool           `yaml:"replace"` // true: ignore built-ins entirely
}

// Load returns the material taxonomy: the built-in list, optionally extended
// or replaced by a YAML file. The result is overlap-filtered.
func Load(path string) ([]MaterialTerm, error) {
	list := builtin()
	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read terms file: %w", err)
		}
		var tf termsFile
		if err := yaml.Unmarshal(raw, &tf); err != nil {
			return nil, fmt.Errorf("decode terms file: %w", err)
		}
		if tf.Replace {
			list = tf.Materials
		} else {
			list = append(list, tf.Materials...)
		}
	}
	return FilterOverlapping(list), nil
}

func builtin() []MaterialTerm {
	bm := constants.BuiltinMaterials()
	out := make([]MaterialTerm, 0, len(bm))
	for _, m := range bm {
		out = append(out, MaterialTerm{Canonical: m.Canonical, Synonyms: m.Synonyms})
	}
	return out
}

// FilterOverlapping drops any term whose canonical name appears as a whole
// word inside an already-kept longer term, so "Aggregate" does not shadow
// "Fine Aggregate" (but "Cement" survives "Reinforcement"). Longer names are
// considered first; original relative order is restored in the result for
// determinism.
func FilterOverlapping(list []MaterialTerm) []MaterialTerm {
	idx := make([]int, len(list))
	for i := range idx {
		idx[i] = i
	}
	sort.SliceStable(idx, func(a, b int) bool {
		return len(list[idx[a]].Canonical) > len(list[idx[b]].Canonical)
	})

	keep := make(map[int]bool, len(list))
	var keptNames []string
	for _, i := range idx {
		name := strings.ToLower(list[i].Canonical)
		contained := false
		for _, kept := range keptNames {
			if strings.Contains(" "+kept+" ", " "+name+" ") {
				contained = true
				break
			}
		}
		if contained {
			continue
		}
		keep[i] = true
		keptNames = append(keptNames, name)
	}

	out := make([]MaterialTerm, 0, len(list))
	for i, t := range list {
		if keep[i] {
			out = append(out, t)
		}
	}
	return out
}
