package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Application is the input to one scoring pass.
type Application struct {
	ApplicantID  string           `json:"applicantId"`
	Transactions []map[string]any `json:"transactions"`
	Signals      RawSignals       `json:"signals,omitempty"`
	Financials   Financials       `json:"financials"`
}

// Financials carries declared figures used by the limit resolver.
// Absent fields are derived from the transaction stream where possible.
type Financials struct {
	AnnualTurnover     decimal.NullDecimal `json:"annualTurnover"`
	MonthlySurplus     decimal.NullDecimal `json:"monthlySurplus"`
	CurrentAssets      decimal.NullDecimal `json:"currentAssets"`
	CurrentLiabilities decimal.NullDecimal `json:"currentLiabilities"`
	ExistingDebt       decimal.NullDecimal `json:"existingDebt"`
}

// AnomalyReport is the output of the behavioral anomaly detector.
// Every component is independently bounded; TotalRisk is capped at 1.
type AnomalyReport struct {
	TotalRisk    float64  `json:"totalRisk"`
	CircularRisk float64  `json:"circularRisk"`
	P2PRisk      float64  `json:"p2pRisk"`
	BalanceRisk  float64  `json:"balanceRisk"`
	Findings     []string `json:"findings,omitempty"`
}

// Contribution explains how far one sub-score moved the composite away from neutral.
type Contribution struct {
	Signal       string  `json:"signal"` // "section.sub_score"
	Section      Section `json:"section"`
	SubScore     float64 `json:"subScore"`
	Weight       float64 `json:"weight"` // section weight * sub-score weight
	Contribution float64 `json:"contribution"`
}

// Default probability sources.
const (
	ProbabilitySourceTable      = "table"
	ProbabilitySourceBlend      = "blend"
	ProbabilitySourceClassifier = "classifier"
)

// CompositeResult is the sole artifact of one scoring pass.
// It carries no identifiers or timestamps so identical input serializes identically.
type CompositeResult struct {
	WeightedScore      float64                  `json:"weightedScore"`
	CreditScore        int                      `json:"creditScore"`
	RiskTier           string                   `json:"riskTier"`
	DefaultProbability float64                  `json:"defaultProbability"`
	ProbabilitySource  string                   `json:"probabilitySource"`
	SectionScores      map[Section]SectionScore `json:"sectionScores"`
	TopContributors    []Contribution           `json:"topContributors,omitempty"`
}

// RiskTier is one entry in the ordered tier catalogue.
type RiskTier struct {
	Name               string  `json:"name"`
	MinScore           int     `json:"minScore"`
	MaxScore           int     `json:"maxScore"`
	TurnoverMultiplier float64 `json:"turnoverMultiplier"`
	InterestRateMin    float64 `json:"interestRateMin"`
	InterestRateMax    float64 `json:"interestRateMax"`
	DSCRRequired       float64 `json:"dscrRequired"`
	MaxTenureMonths    int     `json:"maxTenureMonths"`
	Eligible           bool    `json:"eligible"`
}

// Contains reports whether a credit score falls inside the tier.
func (t RiskTier) Contains(score int) bool {
	return score >= t.MinScore && score <= t.MaxScore
}

// LoanLimitResult holds the per-method limits and the conservative recommendation.
type LoanLimitResult struct {
	TurnoverMethodLimit decimal.Decimal     `json:"turnoverMethodLimit"`
	CashFlowMethodLimit decimal.Decimal     `json:"cashFlowMethodLimit"`
	MPBFMethodLimit     decimal.NullDecimal `json:"mpbfMethodLimit"`
	RecommendedLimit    decimal.Decimal     `json:"recommendedLimit"`

	Tier            string  `json:"tier"`
	InterestRateMin float64 `json:"interestRateMin"`
	InterestRateMax float64 `json:"interestRateMax"`
	MaxTenureMonths int     `json:"maxTenureMonths"`
}

// Decision statuses.
const (
	StatusEligible = "ELIGIBLE"
	StatusRefer    = "REFER"
	StatusDeclined = "DECLINED"
)

// LedgerSummary describes what the normalizer and aggregator kept.
type LedgerSummary struct {
	Status       string          `json:"status"` // "OK" or "EMPTY_TRANSACTION_SET"
	Received     int             `json:"received"`
	Accepted     int             `json:"accepted"`
	Dropped      int             `json:"dropped"`
	Months       int             `json:"months"`
	TotalCredits decimal.Decimal `json:"totalCredits"`
	TotalDebits  decimal.Decimal `json:"totalDebits"`
}

// Assessment is a persisted scoring pass with its decision.
type Assessment struct {
	ID          string    `json:"id"`
	TenantID    string    `json:"tenantId"`
	ApplicantID string    `json:"applicantId"`
	Fingerprint string    `json:"fingerprint,omitempty"`
	Status      string    `json:"status"`
	Timestamp   time.Time `json:"timestamp"`

	Composite     CompositeResult  `json:"composite"`
	Anomaly       AnomalyReport    `json:"anomaly"`
	Limit         *LoanLimitResult `json:"limit,omitempty"` // set only for eligible tiers
	Ledger        LedgerSummary    `json:"ledger"`
	PolicyResults []PolicyResult   `json:"policyResults,omitempty"`
	Reasons       []string         `json:"reasons,omitempty"`
	Diagnostics   []Diagnostic     `json:"diagnostics,omitempty"`

	Metadata AssessmentMetadata `json:"metadata"`
}

// AssessmentMetadata contains processing information.
type AssessmentMetadata struct {
	TraceID          string `json:"traceId"`
	TotalMs          int64  `json:"totalMs"`
	SectionsDegraded int    `json:"sectionsDegraded"`
	PoliciesApplied  int    `json:"policiesApplied"`
	EngineVersion    string `json:"engineVersion"`
}
