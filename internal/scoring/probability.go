package scoring

import (
	"fmt"
	"sort"

	"github.com/opensource-finance/harrier/internal/domain"
)

// Anchor is one (credit score, default probability) point.
type Anchor struct {
	Score       int     `json:"score"`
	Probability float64 `json:"probability"`
}

// DefaultProbabilityTable returns the stock anchor points.
func DefaultProbabilityTable() []Anchor {
	return []Anchor{
		{Score: 900, Probability: 0.00},
		{Score: 750, Probability: 0.02},
		{Score: 650, Probability: 0.05},
		{Score: 550, Probability: 0.12},
		{Score: 450, Probability: 0.25},
		{Score: 400, Probability: 0.40},
		{Score: 350, Probability: 0.60},
		{Score: 300, Probability: 1.00},
	}
}

// validateTable sorts anchors by score and checks the table spans [300,900]
// with probabilities in [0,1] that never rise as the score rises.
func validateTable(table []Anchor) ([]Anchor, error) {
	if len(table) < 2 {
		return nil, fmt.Errorf("%w: need at least two anchors", domain.ErrProbabilityTableInvariant)
	}
	sorted := make([]Anchor, len(table))
	copy(sorted, table)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Score < sorted[j].Score })

	if sorted[0].Score != MinCreditScore || sorted[len(sorted)-1].Score != MaxCreditScore {
		return nil, fmt.Errorf("%w: anchors must span %d..%d", domain.ErrProbabilityTableInvariant, MinCreditScore, MaxCreditScore)
	}
	for i, a := range sorted {
		if a.Probability < 0 || a.Probability > 1 {
			return nil, fmt.Errorf("%w: probability %v at %d outside [0,1]", domain.ErrProbabilityTableInvariant, a.Probability, a.Score)
		}
		if i == 0 {
			continue
		}
		prev := sorted[i-1]
		if a.Score == prev.Score {
			return nil, fmt.Errorf("%w: duplicate anchor at %d", domain.ErrProbabilityTableInvariant, a.Score)
		}
		if a.Probability > prev.Probability {
			return nil, fmt.Errorf("%w: probability rises between %d and %d", domain.ErrProbabilityTableInvariant, prev.Score, a.Score)
		}
	}
	return sorted, nil
}

// DefaultProbability interpolates linearly between the two anchors bracketing
// score. Scores outside the table take the nearest extreme.
func (a *Aggregator) DefaultProbability(score int) float64 {
	t := a.table
	if score <= t[0].Score {
		return t[0].Probability
	}
	last := t[len(t)-1]
	if score >= last.Score {
		return last.Probability
	}
	i := sort.Search(len(t), func(i int) bool { return t[i].Score >= score })
	hi, lo := t[i], t[i-1]
	if hi.Score == score {
		return hi.Probability
	}
	frac := float64(score-lo.Score) / float64(hi.Score-lo.Score)
	return lo.Probability + frac*(hi.Probability-lo.Probability)
}
