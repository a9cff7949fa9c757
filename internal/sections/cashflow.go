package sections

import "github.com/opensource-finance/harrier/internal/domain"

// cashFlow scores whether inflows cover outflows with a buffer left over.
func cashFlow() (domain.Section, []SignalSpec, []SubScore) {
	signals := []SignalSpec{
		{Key: "avg_monthly_inflow", Kind: KindNumber, Min: 0, Max: 1e10, Doc: "mean monthly credits"},
		{Key: "avg_monthly_outflow", Kind: KindNumber, Min: 0, Max: 1e10, Doc: "mean monthly debits"},
		{Key: "negative_net_months_ratio", Kind: KindNumber, Min: 0, Max: 1, Doc: "share of months where debits exceeded credits"},
		{Key: "avg_balance", Kind: KindNumber, Min: -1e10, Max: 1e10, Doc: "mean of monthly average balances"},
		{Key: "min_balance", Kind: KindNumber, Min: -1e10, Max: 1e10, Doc: "lowest balance observed"},
		{Key: "bounce_count", Kind: KindNumber, Min: 0, Max: 1000, Doc: "returned cheques and failed mandates"},
	}
	subs := []SubScore{
		{
			Name:    "net_flow",
			Weight:  0.30,
			Inputs:  []string{"avg_monthly_inflow", "avg_monthly_outflow"},
			Extract: netFlowScore,
		},
		{
			Name:    "deficit_months",
			Weight:  0.20,
			Inputs:  []string{"negative_net_months_ratio"},
			Extract: Metric("negative_net_months_ratio", Inverse(0, 1)),
		},
		{
			Name:    "balance_buffer",
			Weight:  0.25,
			Inputs:  []string{"avg_balance", "avg_monthly_outflow"},
			Extract: balanceBufferScore,
		},
		{
			Name:   "overdraft_usage",
			Weight: 0.10,
			Inputs: []string{"min_balance"},
			Extract: Metric("min_balance", Breakpoints(
				Point{-50000, 0}, Point{-10000, 0.2}, Point{0, 0.6}, Point{10000, 0.9}, Point{50000, 1},
			)),
		},
		{
			Name:   "bounces",
			Weight: 0.15,
			Inputs: []string{"bounce_count"},
			Extract: Metric("bounce_count", Breakpoints(
				Point{0, 1}, Point{1, 0.7}, Point{3, 0.4}, Point{6, 0.1}, Point{10, 0},
			)),
		},
	}
	return domain.SectionCashFlow, signals, subs
}

var surplusMargin = Breakpoints(Point{-0.5, 0}, Point{0, 0.35}, Point{0.1, 0.6}, Point{0.25, 0.85}, Point{0.5, 1})

// netFlowScore maps the surplus margin (inflow - outflow) / inflow.
func netFlowScore(s Signals) (float64, bool) {
	in, okIn := s["avg_monthly_inflow"]
	out, okOut := s["avg_monthly_outflow"]
	if !okIn || !okOut {
		return 0, false
	}
	if in <= 0 {
		if out > 0 {
			return 0, true
		}
		return 0, false
	}
	return surplusMargin((in - out) / in), true
}

var coverMonths = Breakpoints(Point{0, 0.1}, Point{0.25, 0.35}, Point{0.5, 0.55}, Point{1, 0.75}, Point{3, 1})

// balanceBufferScore maps how many months of outflow the average balance covers.
func balanceBufferScore(s Signals) (float64, bool) {
	bal, okBal := s["avg_balance"]
	out, okOut := s["avg_monthly_outflow"]
	if !okBal || !okOut {
		return 0, false
	}
	if bal <= 0 {
		return 0, true
	}
	if out <= 0 {
		return 1, true
	}
	return coverMonths(bal / out), true
}
