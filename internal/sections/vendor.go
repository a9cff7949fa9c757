package sections

import "github.com/opensource-finance/harrier/internal/domain"

var concentrationBands = Breakpoints(Point{0, 1}, Point{0.15, 0.85}, Point{0.25, 0.6}, Point{0.5, 0.3}, Point{1, 0})

// vendor scores dependence on a few customers or suppliers.
func vendor() (domain.Section, []SignalSpec, []SubScore) {
	signals := []SignalSpec{
		{Key: "customer_hhi", Kind: KindNumber, Min: 0, Max: 1, Doc: "HHI of credit counterparties"},
		{Key: "vendor_hhi", Kind: KindNumber, Min: 0, Max: 1, Doc: "HHI of debit counterparties"},
		{Key: "top_customer_share", Kind: KindNumber, Min: 0, Max: 1, Doc: "largest counterparty share of credits"},
		{Key: "vendor_payment_delay_days", Kind: KindNumber, Min: 0, Max: 365, Doc: "mean days past due to suppliers"},
		{Key: "relationship_tenure_months", Kind: KindNumber, Min: 0, Max: 600, Doc: "mean age of key trade relationships"},
	}
	subs := []SubScore{
		{
			Name:    "customer_concentration",
			Weight:  0.30,
			Inputs:  []string{"customer_hhi"},
			Extract: Metric("customer_hhi", concentrationBands),
		},
		{
			Name:    "vendor_concentration",
			Weight:  0.20,
			Inputs:  []string{"vendor_hhi"},
			Extract: Metric("vendor_hhi", concentrationBands),
		},
		{
			Name:   "top_customer",
			Weight: 0.20,
			Inputs: []string{"top_customer_share"},
			Extract: Metric("top_customer_share", Breakpoints(
				Point{0, 1}, Point{0.2, 0.9}, Point{0.4, 0.6}, Point{0.6, 0.3}, Point{1, 0},
			)),
		},
		{
			Name:   "payment_discipline",
			Weight: 0.15,
			Inputs: []string{"vendor_payment_delay_days"},
			Extract: Metric("vendor_payment_delay_days", Breakpoints(
				Point{0, 1}, Point{15, 0.8}, Point{30, 0.55}, Point{60, 0.25}, Point{90, 0},
			)),
		},
		{
			Name:   "relationship_tenure",
			Weight: 0.15,
			Inputs: []string{"relationship_tenure_months"},
			Extract: Metric("relationship_tenure_months", Breakpoints(
				Point{0, 0}, Point{6, 0.3}, Point{12, 0.55}, Point{24, 0.8}, Point{60, 1},
			)),
		},
	}
	return domain.SectionVendor, signals, subs
}
