package sections

import "github.com/opensource-finance/harrier/internal/domain"

// income scores the level and regularity of inflows.
func income() (domain.Section, []SignalSpec, []SubScore) {
	signals := []SignalSpec{
		{Key: "verified_monthly_income", Kind: KindNumber, Min: 0, Max: 1e9, Doc: "mean monthly credits; derived from the statement when absent"},
		{Key: "income_stability_cv", Kind: KindNumber, Min: 0, Max: 10, Doc: "coefficient of variation of monthly credits"},
		{Key: "income_months_observed", Kind: KindNumber, Min: 0, Max: 120, Doc: "months with at least one credit"},
		{Key: "salary_credit_regularity", Kind: KindNumber, Min: 0, Max: 1, Doc: "share of months with a salary credit"},
	}
	subs := []SubScore{
		{
			Name:   "income_level",
			Weight: 0.35,
			Inputs: []string{"verified_monthly_income"},
			Extract: Metric("verified_monthly_income", Breakpoints(
				Point{0, 0}, Point{10000, 0.2}, Point{25000, 0.45}, Point{50000, 0.65}, Point{100000, 0.85}, Point{250000, 1},
			)),
		},
		{
			Name:   "income_stability",
			Weight: 0.30,
			Inputs: []string{"income_stability_cv"},
			Extract: Metric("income_stability_cv", Breakpoints(
				Point{0, 1}, Point{0.1, 0.9}, Point{0.25, 0.7}, Point{0.5, 0.4}, Point{1, 0.1}, Point{2, 0},
			)),
		},
		{
			Name:   "income_history",
			Weight: 0.15,
			Inputs: []string{"income_months_observed"},
			Extract: Metric("income_months_observed", Breakpoints(
				Point{0, 0}, Point{3, 0.3}, Point{6, 0.6}, Point{12, 0.9}, Point{24, 1},
			)),
		},
		{
			Name:    "salary_regularity",
			Weight:  0.20,
			Inputs:  []string{"salary_credit_regularity"},
			Extract: Metric("salary_credit_regularity", Linear(0, 1)),
		},
	}
	return domain.SectionIncome, signals, subs
}
