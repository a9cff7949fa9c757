package sections

import (
	"fmt"

	"github.com/opensource-finance/harrier/internal/domain"
)

// Registry holds one analyzer per section.
type Registry struct {
	analyzers map[domain.Section]*Analyzer
}

type definition func() (domain.Section, []SignalSpec, []SubScore)

var definitions = []definition{
	identity,
	income,
	cashFlow,
	debt,
	compliance,
	fraud,
	reputation,
	vendor,
	director,
}

// NewRegistry builds and validates the analyzers of every section.
// It fails with domain.ErrWeightTableInvariant when a weight table is broken.
func NewRegistry() (*Registry, error) {
	r := &Registry{analyzers: make(map[domain.Section]*Analyzer, len(definitions))}
	for _, def := range definitions {
		section, signals, subs := def()
		a, err := NewAnalyzer(section, signals, subs)
		if err != nil {
			return nil, err
		}
		r.analyzers[section] = a
	}
	for _, s := range domain.AllSections() {
		if _, ok := r.analyzers[s]; !ok {
			return nil, fmt.Errorf("no analyzer registered for section %s", s)
		}
	}
	return r, nil
}

// Analyzer returns the analyzer for a section.
func (r *Registry) Analyzer(s domain.Section) (*Analyzer, bool) {
	a, ok := r.analyzers[s]
	return a, ok
}

// SubWeight returns the weight of a named sub-score within a section.
func (r *Registry) SubWeight(s domain.Section, sub string) float64 {
	a, ok := r.analyzers[s]
	if !ok {
		return 0
	}
	return a.SubWeights()[sub]
}

// Catalogue lists the documented signals of every section in canonical order.
func (r *Registry) Catalogue() []SectionSignals {
	out := make([]SectionSignals, 0, len(r.analyzers))
	for _, s := range domain.AllSections() {
		a := r.analyzers[s]
		subs := make([]SubScoreInfo, 0, len(a.subScores))
		for _, sub := range a.subScores {
			subs = append(subs, SubScoreInfo{Name: sub.Name, Weight: sub.Weight, Inputs: sub.Inputs})
		}
		out = append(out, SectionSignals{Section: s, Signals: a.signals, SubScores: subs})
	}
	return out
}

// SectionSignals describes one section for API consumers.
type SectionSignals struct {
	Section   domain.Section `json:"section"`
	Signals   []SignalSpec   `json:"signals"`
	SubScores []SubScoreInfo `json:"subScores"`
}

// SubScoreInfo is the serializable part of a SubScore.
type SubScoreInfo struct {
	Name   string   `json:"name"`
	Weight float64  `json:"weight"`
	Inputs []string `json:"inputs"`
}
