package extract

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/specsift/specsift/internal/document"
	"github.com/specsift/specsift/internal/terms"
)

func TestStandardCodeRule(t *testing.T) {
	tests := []struct {
		name string
		text string
		want string
	}{
		{"plain IS code", "Cement shall conform to IS 269.", "IS 269"},
		{"IS code with part", "Tested as per IS 4031 (Part 6).", "IS 4031 (Part 6)"},
		{"IS code with year", "Reinforcement as per IS 1786:2008.", "IS 1786:2008"},
		{"foreign body code", "Equivalent to ASTM C150 requirements.", "ASTM C150"},
		{"multiple codes sorted and joined", "Conform to IS 456 and IS 269.", "IS 269; IS 456"},
	}
	r := &StandardCodeRule{}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fields := r.Apply(RuleContext{Passage: document.Passage{Text: tt.text}})
			require.Len(t, fields, 1)
			assert.Equal(t, AttrStandardCode, fields[0].Attribute)
			assert.Equal(t, tt.want, fields[0].RawValue)
		})
	}

	t.Run("no code", func(t *testing.T) {
		assert.Empty(t, r.Apply(RuleContext{Passage: document.Passage{Text: "Sand shall be clean."}}))
	})
}

func TestHeadingRuleScansBackwards(t *testing.T) {
	r := &HeadingRule{}

	rc := RuleContext{
		Passage: document.Passage{Text: "Cement shall conform to IS 269.", Page: 12},
		Preceding: []document.Passage{
			{Text: "It shall be stored in a dry place.", Page: 12},
			{Text: "2.1.3 Cementitious Materials", Page: 11},
			{Text: "2.1 GENERAL REQUIREMENTS FOR BINDERS", Page: 11},
		},
	}
	fields := r.Apply(rc)
	require.Len(t, fields, 1)
	assert.Equal(t, AttrHeading, fields[0].Attribute)
	assert.Equal(t, "2.1.3 Cementitious Materials (Page 11)", fields[0].RawValue)
}

func TestHeadingRuleRejectsGeneric(t *testing.T) {
	r := &HeadingRule{}
	rc := RuleContext{
		Passage: document.Passage{Text: "Some clause body text here.", Page: 3},
		Preceding: []document.Passage{
			{Text: "MATERIAL SPECIFICATIONS", Page: 3},
		},
	}
	assert.Empty(t, r.Apply(rc))
}

func TestNumericSpecRule(t *testing.T) {
	r := &NumericSpecRule{}
	rc := RuleContext{Passage: document.Passage{
		Text: "Aggregate of 20 mm nominal size, strength 43 Grade, dosage 0.5 % and again 20 mm.",
	}}
	fields := r.Apply(rc)
	require.Len(t, fields, 1)
	assert.Equal(t, AttrNumericSpec, fields[0].Attribute)
	assert.Equal(t, "20 mm; 43 Grade; 0.5 %", fields[0].RawValue)
}

func TestDefinitionRule(t *testing.T) {
	r := &DefinitionRule{}
	mat := terms.MaterialTerm{Canonical: "Fine Aggregate", Synonyms: []string{"sand"}}

	rc := RuleContext{
		Material: mat,
		Context:  "For this work fine aggregate shall be clean river sand free from silt.",
	}
	fields := r.Apply(rc)
	require.Len(t, fields, 1)
	assert.Equal(t, AttrDefinition, fields[0].Attribute)
	assert.Equal(t, "clean river sand free from silt", fields[0].RawValue)

	rc = RuleContext{Material: mat, Context: "The fine aggregate stockpile was inspected."}
	assert.Empty(t, r.Apply(rc))
}

func TestNotesRule(t *testing.T) {
	r := &NotesRule{}

	rc := RuleContext{Context: "Refer to Table 4.1 for grading limits."}
	fields := r.Apply(rc)
	require.Len(t, fields, 1)
	assert.Equal(t, AttrNotes, fields[0].Attribute)
	assert.Equal(t, "Refer to Table 4.1 for grading limits.", fields[0].RawValue)

	assert.Empty(t, r.Apply(RuleContext{Context: "Plain clause without markers."}))
}
