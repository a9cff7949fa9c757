package sections

import "github.com/opensource-finance/harrier/internal/domain"

// director scores the people running the business.
func director() (domain.Section, []SignalSpec, []SubScore) {
	signals := []SignalSpec{
		{Key: "director_bureau_score", Kind: KindNumber, Min: 300, Max: 900, Doc: "lowest bureau score among directors"},
		{Key: "director_disqualified", Kind: KindBool, Doc: "any director is disqualified by the registrar"},
		{Key: "director_experience_years", Kind: KindNumber, Min: 0, Max: 80, Doc: "years of industry experience of the lead director"},
		{Key: "related_party_defaults", Kind: KindNumber, Min: 0, Max: 100, Doc: "defaults in entities sharing a director"},
	}
	subs := []SubScore{
		{
			Name:    "director_credit",
			Weight:  0.40,
			Inputs:  []string{"director_bureau_score"},
			Extract: Metric("director_bureau_score", bureauBands),
		},
		{
			Name:    "disqualification",
			Weight:  0.25,
			Inputs:  []string{"director_disqualified"},
			Extract: Metric("director_disqualified", Flag(false)),
		},
		{
			Name:   "experience",
			Weight: 0.20,
			Inputs: []string{"director_experience_years"},
			Extract: Metric("director_experience_years", Breakpoints(
				Point{0, 0}, Point{2, 0.3}, Point{5, 0.6}, Point{10, 0.85}, Point{20, 1},
			)),
		},
		{
			Name:   "group_exposure",
			Weight: 0.15,
			Inputs: []string{"related_party_defaults"},
			Extract: Metric("related_party_defaults", Breakpoints(
				Point{0, 1}, Point{1, 0.4}, Point{2, 0},
			)),
		},
	}
	return domain.SectionDirector, signals, subs
}
