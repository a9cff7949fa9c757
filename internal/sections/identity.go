package sections

import "github.com/opensource-finance/harrier/internal/domain"

// identity checks that the applicant is who they claim to be.
func identity() (domain.Section, []SignalSpec, []SubScore) {
	signals := []SignalSpec{
		{Key: "pan_verified", Kind: KindBool, Doc: "PAN matched against the tax registry"},
		{Key: "aadhaar_verified", Kind: KindBool, Doc: "national ID verified"},
		{Key: "face_match_score", Kind: KindNumber, Min: 0, Max: 1, Doc: "selfie to ID photo similarity"},
		{Key: "name_match_score", Kind: KindNumber, Min: 0, Max: 1, Doc: "name similarity across documents"},
		{Key: "address_verified", Kind: KindBool, Doc: "address confirmed by a utility bill or field visit"},
		{Key: "document_tamper_detected", Kind: KindBool, Doc: "any submitted document shows signs of editing"},
	}
	subs := []SubScore{
		{
			Name:    "kyc_verification",
			Weight:  0.35,
			Inputs:  []string{"pan_verified", "aadhaar_verified"},
			Extract: MeanOf(Metric("pan_verified", Flag(true)), Metric("aadhaar_verified", Flag(true))),
		},
		{
			Name:    "biometric_match",
			Weight:  0.25,
			Inputs:  []string{"face_match_score"},
			Extract: Metric("face_match_score", Linear(0.6, 0.95)),
		},
		{
			Name:    "name_consistency",
			Weight:  0.15,
			Inputs:  []string{"name_match_score"},
			Extract: Metric("name_match_score", Linear(0.5, 1.0)),
		},
		{
			Name:    "address_verification",
			Weight:  0.10,
			Inputs:  []string{"address_verified"},
			Extract: Metric("address_verified", Flag(true)),
		},
		{
			Name:    "document_integrity",
			Weight:  0.15,
			Inputs:  []string{"document_tamper_detected"},
			Extract: Metric("document_tamper_detected", Flag(false)),
		},
	}
	return domain.SectionIdentity, signals, subs
}
