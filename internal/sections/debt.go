package sections

import "github.com/opensource-finance/harrier/internal/domain"

// debt scores existing obligations and how they have been serviced.
func debt() (domain.Section, []SignalSpec, []SubScore) {
	signals := []SignalSpec{
		{Key: "debt_to_income", Kind: KindNumber, Min: 0, Max: 10, Doc: "monthly debt service over monthly income"},
		{Key: "on_time_payment_ratio", Kind: KindNumber, Min: 0, Max: 1, Doc: "share of instalments paid on time"},
		{Key: "credit_utilization", Kind: KindNumber, Min: 0, Max: 5, Doc: "revolving balance over revolving limit"},
		{Key: "dscr", Kind: KindNumber, Min: 0, Max: 100, Doc: "debt service coverage ratio"},
	}
	subs := []SubScore{
		{
			Name:   "debt_burden",
			Weight: 0.35,
			Inputs: []string{"debt_to_income"},
			Extract: Metric("debt_to_income", Breakpoints(
				Point{0, 1}, Point{0.2, 0.85}, Point{0.4, 0.6}, Point{0.6, 0.3}, Point{0.8, 0.1}, Point{1, 0},
			)),
		},
		{
			Name:   "repayment_history",
			Weight: 0.35,
			Inputs: []string{"on_time_payment_ratio"},
			Extract: Metric("on_time_payment_ratio", Breakpoints(
				Point{0.5, 0}, Point{0.8, 0.4}, Point{0.9, 0.65}, Point{0.95, 0.85}, Point{1, 1},
			)),
		},
		{
			Name:   "utilization",
			Weight: 0.15,
			Inputs: []string{"credit_utilization"},
			Extract: Metric("credit_utilization", Breakpoints(
				Point{0, 1}, Point{0.3, 0.85}, Point{0.5, 0.6}, Point{0.75, 0.3}, Point{1, 0},
			)),
		},
		{
			Name:   "coverage",
			Weight: 0.15,
			Inputs: []string{"dscr"},
			Extract: Metric("dscr", Breakpoints(
				Point{0, 0}, Point{1, 0.3}, Point{1.25, 0.55}, Point{1.5, 0.75}, Point{2, 0.9}, Point{3, 1},
			)),
		},
	}
	return domain.SectionDebt, signals, subs
}
