// Package scoring combines section scores into the composite credit score.
package scoring

import (
	"fmt"
	"math"
	"sort"

	"github.com/opensource-finance/harrier/internal/domain"
)

// Credit score bounds.
const (
	MinCreditScore = 300
	MaxCreditScore = 900
)

const weightTolerance = 1e-6

// Weights maps each section to its share of the composite score.
type Weights map[domain.Section]float64

// DefaultWeights returns the stock section weight table.
func DefaultWeights() Weights {
	return Weights{
		domain.SectionIdentity:   0.10,
		domain.SectionIncome:     0.15,
		domain.SectionCashFlow:   0.20,
		domain.SectionDebt:       0.15,
		domain.SectionCompliance: 0.10,
		domain.SectionFraud:      0.10,
		domain.SectionReputation: 0.07,
		domain.SectionVendor:     0.07,
		domain.SectionDirector:   0.06,
	}
}

// Validate checks that every section has a non-negative weight and that the
// table sums to one.
func (w Weights) Validate() error {
	var sum float64
	for _, s := range domain.AllSections() {
		v, ok := w[s]
		if !ok {
			return fmt.Errorf("%w: no weight for section %s", domain.ErrWeightTableInvariant, s)
		}
		if v < 0 {
			return fmt.Errorf("%w: negative weight for section %s", domain.ErrWeightTableInvariant, s)
		}
		sum += v
	}
	if len(w) != len(domain.AllSections()) {
		return fmt.Errorf("%w: weights for unknown sections", domain.ErrWeightTableInvariant)
	}
	if math.Abs(sum-1) > weightTolerance {
		return fmt.Errorf("%w: section weights sum to %.6f", domain.ErrWeightTableInvariant, sum)
	}
	return nil
}

// SubWeightFunc returns the weight of a sub-score inside its section.
type SubWeightFunc func(section domain.Section, subScore string) float64

// Aggregator turns a section score vector into a CompositeResult.
// It is immutable after construction and safe for concurrent use.
type Aggregator struct {
	weights    Weights
	table      []Anchor
	subWeights SubWeightFunc
	topN       int
}

// NewAggregator validates the weight and probability tables.
func NewAggregator(weights Weights, table []Anchor, subWeights SubWeightFunc, topN int) (*Aggregator, error) {
	if err := weights.Validate(); err != nil {
		return nil, err
	}
	sorted, err := validateTable(table)
	if err != nil {
		return nil, err
	}
	w := make(Weights, len(weights))
	for k, v := range weights {
		w[k] = v
	}
	return &Aggregator{
		weights:    w,
		table:      sorted,
		subWeights: subWeights,
		topN:       topN,
	}, nil
}

// Weight returns the weight of one section.
func (a *Aggregator) Weight(s domain.Section) float64 {
	return a.weights[s]
}

// Aggregate computes the weighted score, credit score, table default
// probability and top contributors. A section absent from the map counts as neutral.
//
// Algorithm:
// 1. weighted = 0.5 + sum(weight[s] * (score[s] - 0.5)) over sections in canonical order
// 2. credit = round(300 + weighted * 600), clamped to [300, 900]
// 3. probability = piecewise-linear lookup of credit in the anchor table
func (a *Aggregator) Aggregate(scores map[domain.Section]domain.SectionScore) domain.CompositeResult {
	result := domain.CompositeResult{
		SectionScores:     make(map[domain.Section]domain.SectionScore, len(domain.AllSections())),
		ProbabilitySource: domain.ProbabilitySourceTable,
	}

	weighted := domain.NeutralScore
	for _, s := range domain.AllSections() {
		score, ok := scores[s]
		if !ok {
			score = domain.SectionScore{Section: s, Value: domain.NeutralScore, SubScores: map[string]float64{}}
		}
		result.SectionScores[s] = score
		weighted += a.weights[s] * (score.Value - domain.NeutralScore)
	}

	result.WeightedScore = math.Max(0, math.Min(1, weighted))
	result.CreditScore = CreditScore(result.WeightedScore)
	result.DefaultProbability = a.DefaultProbability(result.CreditScore)
	result.TopContributors = a.contributions(result.SectionScores)
	return result
}

// CreditScore maps a weighted score in [0,1] onto [300,900].
func CreditScore(weighted float64) int {
	score := int(math.Round(MinCreditScore + weighted*(MaxCreditScore-MinCreditScore)))
	if score < MinCreditScore {
		return MinCreditScore
	}
	if score > MaxCreditScore {
		return MaxCreditScore
	}
	return score
}

// contributions ranks sub-scores by how far they moved the composite from
// neutral. Ties are broken by signal name; neutral sub-scores are omitted.
func (a *Aggregator) contributions(scores map[domain.Section]domain.SectionScore) []domain.Contribution {
	if a.topN <= 0 || a.subWeights == nil {
		return nil
	}

	var all []domain.Contribution
	for _, s := range domain.AllSections() {
		score := scores[s]
		names := make([]string, 0, len(score.SubScores))
		for name := range score.SubScores {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			sub := score.SubScores[name]
			weight := a.weights[s] * a.subWeights(s, name)
			contribution := weight * (sub - domain.NeutralScore)
			if contribution == 0 {
				continue
			}
			all = append(all, domain.Contribution{
				Signal:       string(s) + "." + name,
				Section:      s,
				SubScore:     sub,
				Weight:       weight,
				Contribution: contribution,
			})
		}
	}

	sort.SliceStable(all, func(i, j int) bool {
		ai, aj := math.Abs(all[i].Contribution), math.Abs(all[j].Contribution)
		if ai != aj {
			return ai > aj
		}
		return all[i].Signal < all[j].Signal
	})
	if len(all) > a.topN {
		all = all[:a.topN]
	}
	return all
}
