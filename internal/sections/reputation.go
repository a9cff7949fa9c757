package sections

import "github.com/opensource-finance/harrier/internal/domain"

var bureauBands = Breakpoints(Point{300, 0}, Point{550, 0.25}, Point{650, 0.5}, Point{750, 0.8}, Point{900, 1})

// reputation scores what third parties report about the applicant.
func reputation() (domain.Section, []SignalSpec, []SubScore) {
	signals := []SignalSpec{
		{Key: "bureau_score", Kind: KindNumber, Min: 300, Max: 900, Doc: "credit bureau score"},
		{Key: "litigation_count", Kind: KindNumber, Min: 0, Max: 1000, Doc: "open court cases"},
		{Key: "online_rating", Kind: KindNumber, Min: 1, Max: 5, Doc: "average public review rating"},
		{Key: "adverse_media_hits", Kind: KindNumber, Min: 0, Max: 1000, Doc: "negative news mentions"},
	}
	subs := []SubScore{
		{
			Name:    "bureau",
			Weight:  0.45,
			Inputs:  []string{"bureau_score"},
			Extract: Metric("bureau_score", bureauBands),
		},
		{
			Name:   "litigation",
			Weight: 0.25,
			Inputs: []string{"litigation_count"},
			Extract: Metric("litigation_count", Breakpoints(
				Point{0, 1}, Point{1, 0.6}, Point{3, 0.2}, Point{5, 0},
			)),
		},
		{
			Name:    "online_rating",
			Weight:  0.15,
			Inputs:  []string{"online_rating"},
			Extract: Metric("online_rating", Linear(1, 5)),
		},
		{
			Name:   "adverse_media",
			Weight: 0.15,
			Inputs: []string{"adverse_media_hits"},
			Extract: Metric("adverse_media_hits", Breakpoints(
				Point{0, 1}, Point{1, 0.5}, Point{3, 0},
			)),
		},
	}
	return domain.SectionReputation, signals, subs
}
