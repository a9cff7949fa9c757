// Package sections scores each business domain of an application independently.
//
// Every section follows the same shape: a documented set of raw signals, two to
// five monotone sub-scores, and a section-local weight table that sums to one.
// A missing signal never fails a section; the sub-score reading it falls back to
// the neutral value, so every section always returns a score.
package sections

import (
	"fmt"
	"math"
	"sort"

	"github.com/opensource-finance/harrier/internal/domain"
)

// weightTolerance bounds the deviation of a weight table from 1.
const weightTolerance = 1e-6

// Extractor reads a sub-score from coerced signals. ok is false when the
// inputs it needs are missing.
type Extractor func(Signals) (score float64, ok bool)

// SubScore is one weighted component of a section.
type SubScore struct {
	Name    string
	Weight  float64
	Inputs  []string
	Extract Extractor
}

// Analyzer scores one section.
type Analyzer struct {
	section   domain.Section
	signals   []SignalSpec
	subScores []SubScore
}

// NewAnalyzer validates the sub-score weight table and every input reference.
func NewAnalyzer(section domain.Section, signals []SignalSpec, subScores []SubScore) (*Analyzer, error) {
	if len(subScores) == 0 {
		return nil, fmt.Errorf("%w: section %s has no sub-scores", domain.ErrWeightTableInvariant, section)
	}
	known := make(map[string]bool, len(signals))
	for _, s := range signals {
		known[s.Key] = true
	}

	var sum float64
	for _, sub := range subScores {
		if sub.Weight < 0 {
			return nil, fmt.Errorf("%w: section %s sub-score %s has negative weight", domain.ErrWeightTableInvariant, section, sub.Name)
		}
		for _, in := range sub.Inputs {
			if !known[in] {
				return nil, fmt.Errorf("section %s sub-score %s reads undeclared signal %s", section, sub.Name, in)
			}
		}
		sum += sub.Weight
	}
	if math.Abs(sum-1) > weightTolerance {
		return nil, fmt.Errorf("%w: section %s weights sum to %.6f", domain.ErrWeightTableInvariant, section, sum)
	}

	return &Analyzer{section: section, signals: signals, subScores: subScores}, nil
}

// Section returns the section this analyzer scores.
func (a *Analyzer) Section() domain.Section {
	return a.section
}

// Signals returns the documented signal registry of the section.
func (a *Analyzer) Signals() []SignalSpec {
	return a.signals
}

// SubWeights returns sub-score weights by name.
func (a *Analyzer) SubWeights() map[string]float64 {
	w := make(map[string]float64, len(a.subScores))
	for _, s := range a.subScores {
		w[s.Name] = s.Weight
	}
	return w
}

// Score coerces raw signals and evaluates the section.
func (a *Analyzer) Score(raw map[string]any) (domain.SectionScore, []domain.Diagnostic) {
	signals, diags := Coerce(a.section, a.signals, raw)
	return a.Evaluate(signals), diags
}

// Evaluate scores already-coerced signals.
func (a *Analyzer) Evaluate(signals Signals) domain.SectionScore {
	result := domain.SectionScore{
		Section:   a.section,
		SubScores: make(map[string]float64, len(a.subScores)),
	}

	// Accumulated as a deviation from neutral so that an all-missing section
	// lands exactly on the neutral value.
	total := domain.NeutralScore
	for _, sub := range a.subScores {
		v, ok := sub.Extract(signals)
		if !ok || math.IsNaN(v) {
			v = domain.NeutralScore
			result.MissingSignals = append(result.MissingSignals, sub.Name)
		}
		v = unit(v)
		result.SubScores[sub.Name] = v
		total += sub.Weight * (v - domain.NeutralScore)
	}
	sort.Strings(result.MissingSignals)

	result.Value = unit(total)
	return result
}

// Metric reads one numeric signal through a mapping.
func Metric(key string, m Mapping) Extractor {
	return func(s Signals) (float64, bool) {
		v, ok := s[key]
		if !ok {
			return 0, false
		}
		return m(v), true
	}
}

// MeanOf averages the extractors that have input; missing when none do.
func MeanOf(extractors ...Extractor) Extractor {
	return func(s Signals) (float64, bool) {
		var sum float64
		n := 0
		for _, e := range extractors {
			if v, ok := e(s); ok {
				sum += v
				n++
			}
		}
		if n == 0 {
			return 0, false
		}
		return sum / float64(n), true
	}
}
