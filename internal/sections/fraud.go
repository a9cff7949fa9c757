package sections

import "github.com/opensource-finance/harrier/internal/domain"

// Signal keys the engine fills on its own.
const (
	SignalAnomalyRisk         = "anomaly_total_risk"
	SignalApplicationVelocity = "application_velocity"
)

// fraud scores manipulation and identity-fraud indicators.
func fraud() (domain.Section, []SignalSpec, []SubScore) {
	signals := []SignalSpec{
		{Key: SignalAnomalyRisk, Kind: KindNumber, Min: 0, Max: 1, Doc: "behavioral anomaly detector total risk; always computed from the statement"},
		{Key: "blacklist_hit", Kind: KindBool, Doc: "applicant or device appears on a fraud list"},
		{Key: "device_risk_score", Kind: KindNumber, Min: 0, Max: 1, Doc: "device fingerprint risk"},
		{Key: "synthetic_identity_score", Kind: KindNumber, Min: 0, Max: 1, Doc: "likelihood the identity is synthetic"},
		{Key: SignalApplicationVelocity, Kind: KindNumber, Min: 0, Max: 1000, Doc: "prior applications in the last 30 days"},
	}
	subs := []SubScore{
		{
			Name:    "transaction_anomaly",
			Weight:  0.35,
			Inputs:  []string{SignalAnomalyRisk},
			Extract: Metric(SignalAnomalyRisk, Inverse(0, 1)),
		},
		{
			Name:    "watchlist",
			Weight:  0.25,
			Inputs:  []string{"blacklist_hit"},
			Extract: Metric("blacklist_hit", Flag(false)),
		},
		{
			Name:    "device_risk",
			Weight:  0.15,
			Inputs:  []string{"device_risk_score"},
			Extract: Metric("device_risk_score", Inverse(0, 1)),
		},
		{
			Name:    "synthetic_identity",
			Weight:  0.15,
			Inputs:  []string{"synthetic_identity_score"},
			Extract: Metric("synthetic_identity_score", Inverse(0, 1)),
		},
		{
			Name:   "application_velocity",
			Weight: 0.10,
			Inputs: []string{SignalApplicationVelocity},
			Extract: Metric(SignalApplicationVelocity, Breakpoints(
				Point{0, 1}, Point{1, 0.9}, Point{2, 0.7}, Point{3, 0.5}, Point{5, 0.2}, Point{10, 0},
			)),
		},
	}
	return domain.SectionFraud, signals, subs
}
