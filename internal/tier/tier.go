// Package tier resolves credit scores to risk tiers and lending limits.
package tier

import (
	"fmt"
	"sort"

	"github.com/opensource-finance/harrier/internal/domain"
)

// Score bounds covered by a tier table.
const (
	MinScore = 300
	MaxScore = 900
)

// Tier names.
const (
	Prime     = "PRIME"
	NearPrime = "NEAR_PRIME"
	Standard  = "STANDARD"
	Subprime  = "SUBPRIME"
	Decline   = "DECLINE"
)

// DefaultTiers returns the stock catalogue, best tier first.
func DefaultTiers() []domain.RiskTier {
	return []domain.RiskTier{
		{Name: Prime, MinScore: 750, MaxScore: 900, TurnoverMultiplier: 0.30, InterestRateMin: 9, InterestRateMax: 11, DSCRRequired: 1.25, MaxTenureMonths: 60, Eligible: true},
		{Name: NearPrime, MinScore: 650, MaxScore: 749, TurnoverMultiplier: 0.20, InterestRateMin: 11, InterestRateMax: 14, DSCRRequired: 1.35, MaxTenureMonths: 48, Eligible: true},
		{Name: Standard, MinScore: 550, MaxScore: 649, TurnoverMultiplier: 0.15, InterestRateMin: 14, InterestRateMax: 18, DSCRRequired: 1.50, MaxTenureMonths: 36, Eligible: true},
		{Name: Subprime, MinScore: 450, MaxScore: 549, TurnoverMultiplier: 0.10, InterestRateMin: 18, InterestRateMax: 24, DSCRRequired: 1.75, MaxTenureMonths: 24, Eligible: true},
		{Name: Decline, MinScore: 300, MaxScore: 449, TurnoverMultiplier: 0, InterestRateMin: 0, InterestRateMax: 0, DSCRRequired: 2.0, MaxTenureMonths: 0, Eligible: false},
	}
}

// Table is an immutable tier catalogue that partitions [300,900].
type Table struct {
	tiers []domain.RiskTier // ascending by MinScore
}

// NewTable validates that tiers cover every integer score in [300,900]
// exactly once and carry usable underwriting parameters.
func NewTable(tiers []domain.RiskTier) (*Table, error) {
	if len(tiers) == 0 {
		return nil, fmt.Errorf("%w: empty tier table", domain.ErrTierTableInvariant)
	}
	sorted := make([]domain.RiskTier, len(tiers))
	copy(sorted, tiers)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].MinScore < sorted[j].MinScore })

	next := MinScore
	names := make(map[string]bool, len(sorted))
	for _, t := range sorted {
		if t.Name == "" || names[t.Name] {
			return nil, fmt.Errorf("%w: tier names must be unique and non-empty", domain.ErrTierTableInvariant)
		}
		names[t.Name] = true
		if t.MinScore != next {
			return nil, fmt.Errorf("%w: tier %s starts at %d, expected %d", domain.ErrTierTableInvariant, t.Name, t.MinScore, next)
		}
		if t.MaxScore < t.MinScore {
			return nil, fmt.Errorf("%w: tier %s has an empty range", domain.ErrTierTableInvariant, t.Name)
		}
		if t.DSCRRequired <= 0 || t.TurnoverMultiplier < 0 {
			return nil, fmt.Errorf("%w: tier %s needs a positive DSCR and non-negative multiplier", domain.ErrTierTableInvariant, t.Name)
		}
		next = t.MaxScore + 1
	}
	if next != MaxScore+1 {
		return nil, fmt.Errorf("%w: tiers end at %d, expected %d", domain.ErrTierTableInvariant, next-1, MaxScore)
	}
	return &Table{tiers: sorted}, nil
}

// Resolve returns the single tier containing score. Scores outside
// [300,900] are clamped first.
func (t *Table) Resolve(score int) domain.RiskTier {
	if score < MinScore {
		score = MinScore
	}
	if score > MaxScore {
		score = MaxScore
	}
	i := sort.Search(len(t.tiers), func(i int) bool { return t.tiers[i].MaxScore >= score })
	return t.tiers[i]
}

// Tiers returns the catalogue, best tier first.
func (t *Table) Tiers() []domain.RiskTier {
	out := make([]domain.RiskTier, len(t.tiers))
	for i, tier := range t.tiers {
		out[len(t.tiers)-1-i] = tier
	}
	return out
}
