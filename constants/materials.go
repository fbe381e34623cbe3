package constants

// BuiltinMaterial is one entry of the default construction-material taxonomy.
type BuiltinMaterial struct {
	Canonical string
	Synonyms  []string
}

// BuiltinMaterials returns the default material taxonomy searched in every
// document. Order is stable; longer terms come before terms they contain so
// overlap filtering keeps the more specific entry.
func BuiltinMaterials() []BuiltinMaterial {
	return []BuiltinMaterial{
		{Canonical: "Cement", Synonyms: []string{"Portland cement", "OPC", "PPC"}},
		{Canonical: "Fine Aggregate", Synonyms: []string{"sand"}},
		{Canonical: "Coarse Aggregate", Synonyms: []string{"gravel", "crushed stone"}},
		{Canonical: "Aggregate", Synonyms: nil},
		{Canonical: "Water", Synonyms: []string{"potable water"}},
		{Canonical: "Steel", Synonyms: []string{"structural steel"}},
		{Canonical: "Concrete", Synonyms: []string{"cement concrete", "RCC"}},
		{Canonical: "Admixture", Synonyms: []string{"admixtures", "plasticizer", "superplasticizer"}},
		{Canonical: "Fly Ash", Synonyms: []string{"pulverised fuel ash"}},
		{Canonical: "Bitumen", Synonyms: []string{"asphalt"}},
		{Canonical: "Bitumen felt", Synonyms: nil},
		{Canonical: "Mortar", Synonyms: []string{"cement mortar"}},
		{Canonical: "Brick", Synonyms: []string{"bricks", "brick aggregate"}},
		{Canonical: "Reinforcement", Synonyms: []string{"rebar", "reinforcing bars"}},
		{Canonical: "TMT Bars", Synonyms: []string{"TMT bar"}},
		{Canonical: "MS bars", Synonyms: []string{"mild steel bars"}},
		{Canonical: "HYSD bars", Synonyms: []string{"high yield strength deformed bars"}},
		{Canonical: "Formwork", Synonyms: []string{"shuttering"}},
		{Canonical: "Damp Proof Course", Synonyms: []string{"DPC"}},
		{Canonical: "Waterproofing Materials", Synonyms: []string{"waterproofing compound"}},
		{Canonical: "Slag", Synonyms: []string{"blast furnace slag", "GGBS"}},
		{Canonical: "Pozzolana", Synonyms: []string{"pozzolanic material"}},
		{Canonical: "Particle Board", Synonyms: nil},
		{Canonical: "Polymer Block", Synonyms: nil},
		{Canonical: "Galvanised Sleeves", Synonyms: nil},
		{Canonical: "Couplers", Synonyms: []string{"coupler"}},
		{Canonical: "Copper plate", Synonyms: nil},
		{Canonical: "Jali", Synonyms: nil},
		{Canonical: "Slump Test", Synonyms: []string{"slump cone test"}},
		{Canonical: "Cube Test", Synonyms: []string{"compressive strength test"}},
		{Canonical: "Piles", Synonyms: []string{"pile foundation"}},
		{Canonical: "Foundations", Synonyms: []string{"foundation"}},
		{Canonical: "Piers", Synonyms: nil},
		{Canonical: "Abutments", Synonyms: nil},
		{Canonical: "Columns", Synonyms: []string{"column"}},
		{Canonical: "Beams", Synonyms: []string{"beam"}},
		{Canonical: "Slabs", Synonyms: []string{"slab"}},
		{Canonical: "Walls", Synonyms: nil},
		{Canonical: "Lignite", Synonyms: nil},
		{Canonical: "Mica", Synonyms: nil},
		{Canonical: "Shale", Synonyms: nil},
		{Canonical: "Clay", Synonyms: nil},
		{Canonical: "Pyrites", Synonyms: nil},
		{Canonical: "Coal", Synonyms: nil},
		{Canonical: "Sea shells", Synonyms: nil},
		{Canonical: "Organic impurities", Synonyms: nil},
		{Canonical: "Pentachlorophenol", Synonyms: nil},
	}
}
