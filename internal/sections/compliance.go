package sections

import "github.com/opensource-finance/harrier/internal/domain"

// compliance scores statutory filing and registration hygiene.
func compliance() (domain.Section, []SignalSpec, []SubScore) {
	signals := []SignalSpec{
		{Key: "gst_filing_regularity", Kind: KindNumber, Min: 0, Max: 1, Doc: "share of GST returns filed on time"},
		{Key: "itr_filed_years", Kind: KindNumber, Min: 0, Max: 50, Doc: "consecutive income tax returns filed"},
		{Key: "pending_tax_demand", Kind: KindBool, Doc: "an unpaid tax demand is outstanding"},
		{Key: "business_registered", Kind: KindBool, Doc: "business holds a valid registration"},
		{
			Key:  "gst_registration_status",
			Kind: KindCode,
			Min:  0,
			Max:  1,
			Codes: map[string]float64{
				"ACTIVE":    1,
				"SUSPENDED": 0.3,
				"CANCELLED": 0,
			},
			Doc: "GST registration status code",
		},
	}
	subs := []SubScore{
		{
			Name:    "gst_filing",
			Weight:  0.35,
			Inputs:  []string{"gst_filing_regularity"},
			Extract: Metric("gst_filing_regularity", Linear(0, 1)),
		},
		{
			Name:   "tax_filing",
			Weight: 0.25,
			Inputs: []string{"itr_filed_years"},
			Extract: Metric("itr_filed_years", Breakpoints(
				Point{0, 0}, Point{1, 0.4}, Point{2, 0.7}, Point{3, 1},
			)),
		},
		{
			Name:    "statutory_dues",
			Weight:  0.20,
			Inputs:  []string{"pending_tax_demand"},
			Extract: Metric("pending_tax_demand", Flag(false)),
		},
		{
			Name:    "registration",
			Weight:  0.20,
			Inputs:  []string{"business_registered", "gst_registration_status"},
			Extract: MeanOf(Metric("business_registered", Flag(true)), Metric("gst_registration_status", Linear(0, 1))),
		},
	}
	return domain.SectionCompliance, signals, subs
}
