package tier

import (
	"errors"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/opensource-finance/harrier/internal/domain"
)

func mustTable(t *testing.T) *Table {
	t.Helper()
	table, err := NewTable(DefaultTiers())
	if err != nil {
		t.Fatalf("failed to build tier table: %v", err)
	}
	return table
}

func TestTiersPartitionScoreRange(t *testing.T) {
	table := mustTable(t)

	for score := MinScore; score <= MaxScore; score++ {
		matches := 0
		for _, tier := range table.Tiers() {
			if tier.Contains(score) {
				matches++
			}
		}
		if matches != 1 {
			t.Fatalf("score %d matched %d tiers", score, matches)
		}
		if got := table.Resolve(score); !got.Contains(score) {
			t.Fatalf("Resolve(%d) returned %s [%d,%d]", score, got.Name, got.MinScore, got.MaxScore)
		}
	}
}

func TestResolve(t *testing.T) {
	table := mustTable(t)

	tests := []struct {
		score int
		want  string
	}{
		{-10, Decline},
		{300, Decline},
		{449, Decline},
		{450, Subprime},
		{549, Subprime},
		{550, Standard},
		{600, Standard},
		{650, NearPrime},
		{749, NearPrime},
		{750, Prime},
		{900, Prime},
		{1200, Prime},
	}

	for _, tt := range tests {
		if got := table.Resolve(tt.score); got.Name != tt.want {
			t.Errorf("Resolve(%d) = %s, want %s", tt.score, got.Name, tt.want)
		}
	}
}

func TestTableValidation(t *testing.T) {
	tests := []struct {
		name   string
		mutate func([]domain.RiskTier) []domain.RiskTier
	}{
		{"gap", func(ts []domain.RiskTier) []domain.RiskTier { ts[1].MinScore = 651; return ts }},
		{"overlap", func(ts []domain.RiskTier) []domain.RiskTier { ts[2].MaxScore = 660; return ts }},
		{"short of 900", func(ts []domain.RiskTier) []domain.RiskTier { ts[0].MaxScore = 899; return ts }},
		{"starts above 300", func(ts []domain.RiskTier) []domain.RiskTier { ts[4].MinScore = 301; return ts }},
		{"zero dscr", func(ts []domain.RiskTier) []domain.RiskTier { ts[0].DSCRRequired = 0; return ts }},
		{"duplicate name", func(ts []domain.RiskTier) []domain.RiskTier { ts[1].Name = Prime; return ts }},
		{"empty", func([]domain.RiskTier) []domain.RiskTier { return nil }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewTable(tt.mutate(DefaultTiers()))
			if !errors.Is(err, domain.ErrTierTableInvariant) {
				t.Errorf("expected ErrTierTableInvariant, got %v", err)
			}
		})
	}
}

func TestTiersBestFirst(t *testing.T) {
	tiers := mustTable(t).Tiers()
	if tiers[0].Name != Prime || tiers[len(tiers)-1].Name != Decline {
		t.Errorf("unexpected order: %s ... %s", tiers[0].Name, tiers[len(tiers)-1].Name)
	}
}

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func TestComputeLimit(t *testing.T) {
	table := mustTable(t)

	tests := []struct {
		name        string
		in          LimitInput
		tier        string
		turnover    string
		cashFlow    string
		mpbf        string // empty when not computed
		recommended string
	}{
		{
			name:        "turnover binds",
			in:          LimitInput{AnnualTurnover: d("1000000"), MonthlySurplus: d("100000")},
			tier:        Prime,
			turnover:    "300000",
			cashFlow:    "2666666.67",
			recommended: "300000",
		},
		{
			name:        "cash flow binds",
			in:          LimitInput{AnnualTurnover: d("12000000"), MonthlySurplus: d("45000")},
			tier:        Standard,
			turnover:    "1800000",
			cashFlow:    "1000000",
			recommended: "1000000",
		},
		{
			name: "mpbf binds",
			in: LimitInput{
				AnnualTurnover:     d("12000000"),
				MonthlySurplus:     d("100000"),
				CurrentAssets:      decimal.NewNullDecimal(d("900000")),
				CurrentLiabilities: decimal.NewNullDecimal(d("500000")),
				ExistingDebt:       decimal.NewNullDecimal(d("100000")),
			},
			tier:        NearPrime,
			turnover:    "2400000",
			cashFlow:    "2469135.8",
			mpbf:        "200000",
			recommended: "200000",
		},
		{
			name: "negative working capital",
			in: LimitInput{
				AnnualTurnover:     d("500000"),
				MonthlySurplus:     d("10000"),
				CurrentAssets:      decimal.NewNullDecimal(d("100000")),
				CurrentLiabilities: decimal.NewNullDecimal(d("300000")),
			},
			tier:        Subprime,
			turnover:    "50000",
			cashFlow:    "190476.19",
			mpbf:        "0",
			recommended: "0",
		},
		{
			name:        "zero surplus",
			in:          LimitInput{AnnualTurnover: d("1000000"), MonthlySurplus: decimal.Zero},
			tier:        Prime,
			turnover:    "300000",
			cashFlow:    "0",
			recommended: "0",
		},
		{
			name:        "negative surplus",
			in:          LimitInput{AnnualTurnover: d("1000000"), MonthlySurplus: d("-5000")},
			tier:        Prime,
			turnover:    "300000",
			cashFlow:    "0",
			recommended: "0",
		},
		{
			name:        "declined tier still computed",
			in:          LimitInput{AnnualTurnover: d("1000000"), MonthlySurplus: d("60000")},
			tier:        Decline,
			turnover:    "0",
			cashFlow:    "1000000",
			recommended: "0",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var tier domain.RiskTier
			for _, candidate := range table.Tiers() {
				if candidate.Name == tt.tier {
					tier = candidate
				}
			}

			got := ComputeLimit(tt.in, tier)

			if !got.TurnoverMethodLimit.Equal(d(tt.turnover)) {
				t.Errorf("turnover limit = %s, want %s", got.TurnoverMethodLimit, tt.turnover)
			}
			if !got.CashFlowMethodLimit.Equal(d(tt.cashFlow)) {
				t.Errorf("cash flow limit = %s, want %s", got.CashFlowMethodLimit, tt.cashFlow)
			}
			if tt.mpbf == "" {
				if got.MPBFMethodLimit.Valid {
					t.Errorf("expected no MPBF limit, got %s", got.MPBFMethodLimit.Decimal)
				}
			} else if !got.MPBFMethodLimit.Valid || !got.MPBFMethodLimit.Decimal.Equal(d(tt.mpbf)) {
				t.Errorf("MPBF limit = %+v, want %s", got.MPBFMethodLimit, tt.mpbf)
			}
			if !got.RecommendedLimit.Equal(d(tt.recommended)) {
				t.Errorf("recommended = %s, want %s", got.RecommendedLimit, tt.recommended)
			}

			// recommended never exceeds any computed method and is never negative.
			if got.RecommendedLimit.GreaterThan(got.TurnoverMethodLimit) || got.RecommendedLimit.GreaterThan(got.CashFlowMethodLimit) {
				t.Error("recommended exceeds a method limit")
			}
			if got.MPBFMethodLimit.Valid && got.RecommendedLimit.GreaterThan(got.MPBFMethodLimit.Decimal) {
				t.Error("recommended exceeds MPBF limit")
			}
			if got.RecommendedLimit.IsNegative() {
				t.Error("recommended is negative")
			}
			if got.Tier != tt.tier || got.MaxTenureMonths != tier.MaxTenureMonths {
				t.Errorf("tier parameters not carried: %+v", got)
			}
		})
	}
}

func TestZeroSurplusIsExactlyZero(t *testing.T) {
	for _, tier := range DefaultTiers() {
		if got := CashFlowLimit(decimal.Zero, tier.DSCRRequired); !got.IsZero() {
			t.Errorf("tier %s: expected 0, got %s", tier.Name, got)
		}
	}
}
