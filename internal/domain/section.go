package domain

// Section names a business domain scored independently by a section analyzer.
type Section string

const (
	SectionIdentity   Section = "identity"
	SectionIncome     Section = "income"
	SectionCashFlow   Section = "cash_flow"
	SectionDebt       Section = "debt"
	SectionCompliance Section = "compliance"
	SectionFraud      Section = "fraud"
	SectionReputation Section = "external_reputation"
	SectionVendor     Section = "vendor"
	SectionDirector   Section = "director"
)

// AllSections returns every section in canonical order.
func AllSections() []Section {
	return []Section{
		SectionIdentity,
		SectionIncome,
		SectionCashFlow,
		SectionDebt,
		SectionCompliance,
		SectionFraud,
		SectionReputation,
		SectionVendor,
		SectionDirector,
	}
}

// NeutralScore is the score used whenever an input is missing.
const NeutralScore = 0.5

// RawSignals holds caller-declared raw signals keyed by section, then signal key.
// Values are JSON scalars: numbers, booleans, or categorical codes.
type RawSignals map[Section]map[string]any

// SectionScore is the normalized outcome of one section analyzer.
type SectionScore struct {
	Section   Section            `json:"section"`
	Value     float64            `json:"value"` // [0,1]
	SubScores map[string]float64 `json:"subScores"`

	// MissingSignals lists sub-scores that fell back to the neutral value.
	MissingSignals []string `json:"missingSignals,omitempty"`

	// Degraded is set when the analyzer did not finish in time and the
	// neutral score was substituted.
	Degraded bool `json:"degraded,omitempty"`
}

// DegradedSectionScore is the neutral stand-in for an analyzer that did not finish.
func DegradedSectionScore(s Section) SectionScore {
	return SectionScore{
		Section:   s,
		Value:     NeutralScore,
		SubScores: map[string]float64{},
		Degraded:  true,
	}
}
