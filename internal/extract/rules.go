package extract

import (
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/specsift/specsift/internal/document"
)

// Attribute names produced by the default rule set. Stable: they are the
// reconciliation and evaluation keys.
const (
	AttrStandardCode = "standard_code"
	AttrHeading      = "heading"
	AttrNumericSpec  = "numeric_spec"
	AttrDefinition   = "definition"
	AttrNotes        = "notes"
)

// defaultRules returns the built-in rules ordered by priority.
func defaultRules() []Rule {
	rules := []Rule{
		&StandardCodeRule{},
		&HeadingRule{},
		&NumericSpecRule{},
		&DefinitionRule{},
		&NotesRule{},
	}
	sort.SliceStable(rules, func(a, b int) bool { return rules[a].Priority() < rules[b].Priority() })
	return rules
}

var (
	// "IS 269", "IS 4031 (Part 6)", "IS 1786:2008"
	reISCode = regexp.MustCompile(`\bIS\s+\d+(?:\s*\(Part\s*[\w\d\s]+\))?(?:\s*[:\-]\s*\d{4})?`)
	// other standards bodies: "ASTM C150", "BS 8110", "EN 197-1"
	reOrgCode = regexp.MustCompile(`\b(?:ASTM|BS|EN|ISO|IRC|AASHTO)\s+[A-Z]?\d+(?:[\-–]\d+)?(?:\s*[:\-]\s*\d{4})?\b`)
)

// StandardCodeRule pulls standard/code references (IS, ASTM, BS, ...) out of
// the passage text.
type StandardCodeRule struct{}

func (r *StandardCodeRule) Name() string     { return "standard_code" }
func (r *StandardCodeRule) Priority() int    { return 1 }
func (r *StandardCodeRule) Specificity() int { return 3 }

func (r *StandardCodeRule) Apply(rc RuleContext) []Field {
	matches := reISCode.FindAllString(rc.Passage.Text, -1)
	matches = append(matches, reOrgCode.FindAllString(rc.Passage.Text, -1)...)
	if len(matches) == 0 {
		return nil
	}
	uniq := make(map[string]struct{}, len(matches))
	for _, m := range matches {
		uniq[strings.Join(strings.Fields(m), " ")] = struct{}{}
	}
	codes := make([]string, 0, len(uniq))
	for c := range uniq {
		codes = append(codes, c)
	}
	sort.Strings(codes)
	return []Field{{Attribute: AttrStandardCode, RawValue: strings.Join(codes, "; ")}}
}

var headingPatterns = []*regexp.Regexp{
	regexp.MustCompile(`^\d+\.\d+(?:\.\d+)*\s+.*`),                         // "1.2.3 Section Title"
	regexp.MustCompile(`^\(?[a-zA-Z]\)\s+.*`),                              // "(a) Title"
	regexp.MustCompile(`(?i)^TABLE\s+\d+\.\d+`),                            // "TABLE 4.1"
	regexp.MustCompile(`^(?:[A-Z][A-Z\s\d.\-]+)$`),                         // all-caps section heads
}

// genericHeadingWords are all-caps headings too generic to be useful as a
// reference.
var genericHeadingWords = regexp.MustCompile(`(?i)\b(?:MATERIAL|SPECIFICATIONS|CHAPTER)\b`)

// HeadingRule scans backwards from the hit passage to the nearest preceding
// heading and reports it, tagged with the page number, as the section
// reference for the material.
type HeadingRule struct{}

func (r *HeadingRule) Name() string     { return "heading" }
func (r *HeadingRule) Priority() int    { return 2 }
func (r *HeadingRule) Specificity() int { return 1 }

func (r *HeadingRule) Apply(rc RuleContext) []Field {
	scan := append([]string{rc.Passage.Text}, textsOf(rc.Preceding)...)
	pages := append([]int{rc.Passage.Page}, pagesOf(rc.Preceding)...)
	for i, line := range scan {
		// Skip very short, likely irrelevant lines.
		if len(strings.Fields(line)) < 2 && len(line) < 15 {
			continue
		}
		for _, pat := range headingPatterns {
			if !pat.MatchString(line) {
				continue
			}
			heading := strings.TrimSpace(line)
			if len(heading) <= 10 || genericHeadingWords.MatchString(heading) && isAllCaps(heading) {
				break
			}
			return []Field{{
				Attribute: AttrHeading,
				RawValue:  fmt.Sprintf("%s (Page %d)", heading, pages[i]),
			}}
		}
	}
	return nil
}

func isAllCaps(s string) bool { return s == strings.ToUpper(s) }

func textsOf(ps []document.Passage) []string {
	out := make([]string, len(ps))
	for i, p := range ps {
		out[i] = p.Text
	}
	return out
}

func pagesOf(ps []document.Passage) []int {
	out := make([]int, len(ps))
	for i, p := range ps {
		out[i] = p.Page
	}
	return out
}

// "20 mm", "43 Grade", "415 N/mm2", "0.5 %"
// Units ending in a non-word rune (%, ², ³) cannot take a trailing \b.
var reNumericSpec = regexp.MustCompile(`\b\d+(?:\.\d+)?\s*(?:N/mm²|kg/m³|%|(?:N/mm2|kg/m3|MPa|mm|cm|kg|m|°C|[Gg]rade)\b)`)

// NumericSpecRule extracts numeric value + unit spans (sieve sizes, strength
// grades, dosages) from the passage.
type NumericSpecRule struct{}

func (r *NumericSpecRule) Name() string     { return "numeric_spec" }
func (r *NumericSpecRule) Priority() int    { return 3 }
func (r *NumericSpecRule) Specificity() int { return 2 }

func (r *NumericSpecRule) Apply(rc RuleContext) []Field {
	matches := reNumericSpec.FindAllString(rc.Passage.Text, -1)
	if len(matches) == 0 {
		return nil
	}
	uniq := make(map[string]struct{}, len(matches))
	ordered := matches[:0]
	for _, m := range matches {
		if _, ok := uniq[m]; ok {
			continue
		}
		uniq[m] = struct{}{}
		ordered = append(ordered, m)
	}
	return []Field{{Attribute: AttrNumericSpec, RawValue: strings.Join(ordered, "; ")}}
}

// DefinitionRule recognizes copular definition spans around the material name
// ("Cement shall be 43 Grade Ordinary Portland ..."). This is the
// deterministic stand-in for dependency-parse definition mining: a
// noun-phrase subject followed by a copular or compositional verb.
type DefinitionRule struct{}

func (r *DefinitionRule) Name() string     { return "definition" }
func (r *DefinitionRule) Priority() int    { return 4 }
func (r *DefinitionRule) Specificity() int { return 2 }

func (r *DefinitionRule) Apply(rc RuleContext) []Field {
	for _, name := range rc.Material.AllNames() {
		pat, err := regexp.Compile(`(?i)\b` + regexp.QuoteMeta(name) +
			`\b[^.]{0,40}?\b(?:is|are|shall be|shall consist of|consists? of|comprises?|means?|refers? to)\b\s+([^.]{5,200})`)
		if err != nil {
			continue
		}
		if m := pat.FindStringSubmatch(rc.Context); m != nil {
			return []Field{{Attribute: AttrDefinition, RawValue: strings.TrimSpace(m[1])}}
		}
	}
	return nil
}

var reNoteMarker = regexp.MustCompile(`\b(?:Table|Note|NOTE|recommends?)\b`)

// NotesRule keeps the surrounding context verbatim when it carries table,
// note, or recommendation markers — supplementary information a reviewer
// wants alongside the structured attributes.
type NotesRule struct{}

func (r *NotesRule) Name() string     { return "notes" }
func (r *NotesRule) Priority() int    { return 5 }
func (r *NotesRule) Specificity() int { return 1 }

const maxNoteLen = 400

func (r *NotesRule) Apply(rc RuleContext) []Field {
	if !reNoteMarker.MatchString(rc.Context) {
		return nil
	}
	note := strings.TrimSpace(rc.Context)
	if len(note) > maxNoteLen {
		note = note[:maxNoteLen]
	}
	return []Field{{Attribute: AttrNotes, RawValue: note}}
}
