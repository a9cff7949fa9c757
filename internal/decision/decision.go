// Package decision turns a scoring outcome into the final underwriting decision.
package decision

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/opensource-finance/harrier/internal/domain"
)

// EngineVersion is stamped on every assessment.
const EngineVersion = "harrier-1.0"

// Processor assembles the persisted Assessment from a scoring outcome.
type Processor struct {
	// Now stamps assessments; replaceable in tests.
	Now func() time.Time
}

// NewProcessor creates a processor with the wall clock.
func NewProcessor() *Processor {
	return &Processor{Now: time.Now}
}

// DecisionInput contains all data needed for a decision.
type DecisionInput struct {
	TenantID    string
	ApplicantID string
	Fingerprint string
	TraceID     string
	StartTime   time.Time

	Composite        domain.CompositeResult
	Anomaly          domain.AnomalyReport
	Tier             domain.RiskTier
	Limit            domain.LoanLimitResult
	Ledger           domain.LedgerSummary
	PolicyResults    []domain.PolicyResult
	Diagnostics      []domain.Diagnostic
	SectionsDegraded int
}

// Process decides and builds the assessment. The limit is attached only for
// eligible tiers.
func (p *Processor) Process(ctx context.Context, input *DecisionInput) *domain.Assessment {
	status, reasons := Decide(input.Composite.CreditScore, input.Tier, input.PolicyResults)

	a := &domain.Assessment{
		ID:            uuid.New().String(),
		TenantID:      input.TenantID,
		ApplicantID:   input.ApplicantID,
		Fingerprint:   input.Fingerprint,
		Status:        status,
		Timestamp:     p.Now().UTC(),
		Composite:     input.Composite,
		Anomaly:       input.Anomaly,
		Ledger:        input.Ledger,
		PolicyResults: input.PolicyResults,
		Reasons:       reasons,
		Diagnostics:   input.Diagnostics,
	}
	if input.Tier.Eligible {
		limit := input.Limit
		a.Limit = &limit
	}

	var totalMs int64
	if !input.StartTime.IsZero() {
		totalMs = time.Since(input.StartTime).Milliseconds()
	}
	a.Metadata = domain.AssessmentMetadata{
		TraceID:          input.TraceID,
		TotalMs:          totalMs,
		SectionsDegraded: input.SectionsDegraded,
		PoliciesApplied:  len(input.PolicyResults),
		EngineVersion:    EngineVersion,
	}
	return a
}

// Decide maps tier eligibility and policy outcomes onto a status.
// An ineligible tier declines; otherwise any failing or review policy refers
// the application and the rest are eligible.
func Decide(creditScore int, tier domain.RiskTier, policies []domain.PolicyResult) (string, []string) {
	if !tier.Eligible {
		return domain.StatusDeclined, []string{fmt.Sprintf("credit score %d falls in ineligible tier %s", creditScore, tier.Name)}
	}
	reasons := GetReasons(policies)
	if len(reasons) > 0 {
		return domain.StatusRefer, reasons
	}
	for _, r := range policies {
		if r.Triggered() {
			return domain.StatusRefer, []string{"policy " + r.RuleID + " requires review"}
		}
	}
	return domain.StatusEligible, nil
}

// GetReasons extracts the reasons of triggered policies.
func GetReasons(policies []domain.PolicyResult) []string {
	var reasons []string
	for _, r := range policies {
		if r.Triggered() && r.Reason != "" {
			reasons = append(reasons, r.Reason)
		}
	}
	return reasons
}

// ShouldDecline reports whether the assessment was declined.
func ShouldDecline(a *domain.Assessment) bool {
	return a.Status == domain.StatusDeclined
}
