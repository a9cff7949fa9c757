package scoring

import (
	"fmt"
	"math"

	"github.com/opensource-finance/harrier/internal/domain"
)

// Blend combines the table estimate with a classifier estimate according to
// the configured mode and returns the probability and its source.
// Unknown modes and non-finite classifier outputs fall back to the table.
func Blend(table, classifier float64, mode string, weight float64) (float64, string) {
	if math.IsNaN(classifier) || math.IsInf(classifier, 0) {
		return table, domain.ProbabilitySourceTable
	}
	classifier = math.Max(0, math.Min(1, classifier))
	switch mode {
	case domain.BlendReplace:
		return classifier, domain.ProbabilitySourceClassifier
	case domain.BlendMix:
		w := math.Max(0, math.Min(1, weight))
		return w*classifier + (1-w)*table, domain.ProbabilitySourceBlend
	default:
		return table, domain.ProbabilitySourceTable
	}
}

// ValidateBlendMode rejects unknown blending modes at configuration time.
func ValidateBlendMode(mode string) error {
	switch mode {
	case "", domain.BlendTable, domain.BlendMix, domain.BlendReplace:
		return nil
	}
	return fmt.Errorf("unknown classifier blend mode %q", mode)
}

// Features flattens a composite result into classifier inputs.
func Features(result domain.CompositeResult, anomaly domain.AnomalyReport) map[string]float64 {
	f := map[string]float64{
		"weighted_score":     result.WeightedScore,
		"credit_score":       float64(result.CreditScore),
		"anomaly_total_risk": anomaly.TotalRisk,
	}
	for s, score := range result.SectionScores {
		f["section_"+string(s)] = score.Value
		for name, v := range score.SubScores {
			f[string(s)+"."+name] = v
		}
	}
	return f
}
