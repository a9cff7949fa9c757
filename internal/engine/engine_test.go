package engine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/opensource-finance/harrier/internal/domain"
	"github.com/opensource-finance/harrier/internal/policy"
	"github.com/opensource-finance/harrier/internal/sections"
)

var testNow = time.Date(2024, 12, 31, 12, 0, 0, 0, time.UTC)

func newTestEngine(t *testing.T, cfg domain.ScoringConfig, opts Options) *Engine {
	t.Helper()
	e, err := New(cfg, opts)
	if err != nil {
		t.Fatalf("failed to create engine: %v", err)
	}
	e.SetClock(func() time.Time { return testNow })
	return e
}

// statement is twelve months of salary, rent and groceries.
func statement() []map[string]any {
	var records []map[string]any
	balance := 20000.0
	for m := 1; m <= 12; m++ {
		salary := 85000.0 + float64(m*250)
		balance += salary
		records = append(records, map[string]any{
			"date": fmt.Sprintf("2024-%02d-01", m), "deposit": salary, "narration": "SALARY ACME CORP", "balance": balance,
		})
		balance -= 25000
		records = append(records, map[string]any{
			"date": fmt.Sprintf("2024-%02d-03", m), "withdrawal": 25000.0, "narration": "RENT", "balance": balance,
		})
		groceries := 12000.0 + float64(m*100)
		balance -= groceries
		records = append(records, map[string]any{
			"date": fmt.Sprintf("2024-%02d-15", m), "withdrawal": groceries, "narration": "BIG BASKET", "balance": balance,
		})
	}
	return records
}

// roundTripStatement moves 50,000 in and 49,000 out the next day, every month.
func roundTripStatement() []map[string]any {
	var records []map[string]any
	for m := 1; m <= 6; m++ {
		records = append(records,
			map[string]any{"date": fmt.Sprintf("2024-%02d-05", m), "deposit": 50000.0, "narration": "NEFT FROM ACME TRADERS"},
			map[string]any{"date": fmt.Sprintf("2024-%02d-06", m), "withdrawal": 49000.0, "narration": "NEFT TO ACME TRADERS"},
		)
	}
	return records
}

func sampleApplication() *domain.Application {
	return &domain.Application{
		ApplicantID:  "applicant-1",
		Transactions: statement(),
		Signals: domain.RawSignals{
			domain.SectionIdentity:   {"aadhaar_verified": true, "pan_verified": "yes"},
			domain.SectionDebt:       {"debt_to_income": 0.2, "on_time_payment_ratio": 0.98},
			domain.SectionCompliance: {"gst_registration_status": "ACTIVE"},
		},
	}
}

type stubClassifier struct {
	p   float64
	err error
}

func (c stubClassifier) PredictDefault(ctx context.Context, features map[string]float64) (float64, error) {
	return c.p, c.err
}

func TestNewRejectsInvalidTables(t *testing.T) {
	cfg := domain.DefaultScoringConfig()

	weights := map[domain.Section]float64{}
	for _, s := range domain.AllSections() {
		weights[s] = 0.1
	}
	if _, err := New(cfg, Options{Weights: weights}); !errors.Is(err, domain.ErrWeightTableInvariant) {
		t.Errorf("expected weight invariant error, got %v", err)
	}

	tiers := []domain.RiskTier{{Name: "ONLY", MinScore: 300, MaxScore: 800}}
	if _, err := New(cfg, Options{Tiers: tiers}); !errors.Is(err, domain.ErrTierTableInvariant) {
		t.Errorf("expected tier invariant error, got %v", err)
	}

	cfg.BlendMode = "average"
	if _, err := New(cfg, Options{}); err == nil {
		t.Error("expected unknown blend mode to be rejected")
	}
}

func TestScoreIsIdempotent(t *testing.T) {
	e := newTestEngine(t, domain.DefaultScoringConfig(), Options{})
	app := sampleApplication()

	first, err := json.Marshal(e.Score(context.Background(), app, nil).Composite)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	for i := 0; i < 5; i++ {
		next, _ := json.Marshal(e.Score(context.Background(), app, nil).Composite)
		if string(next) != string(first) {
			t.Fatalf("run %d differs:\n%s\n%s", i, first, next)
		}
	}
}

func TestSequentialMatchesParallel(t *testing.T) {
	app := sampleApplication()

	seqCfg := domain.DefaultScoringConfig()
	seqCfg.MaxWorkers = 1
	seq, _ := json.Marshal(newTestEngine(t, seqCfg, Options{}).Score(context.Background(), app, nil).Composite)
	par, _ := json.Marshal(newTestEngine(t, domain.DefaultScoringConfig(), Options{}).Score(context.Background(), app, nil).Composite)

	if string(seq) != string(par) {
		t.Errorf("sequential and parallel results differ:\n%s\n%s", seq, par)
	}
}

func TestAllMissingIsNeutral(t *testing.T) {
	e := newTestEngine(t, domain.DefaultScoringConfig(), Options{})

	out := e.Score(context.Background(), &domain.Application{ApplicantID: "empty"}, nil)

	if out.Composite.WeightedScore != 0.5 {
		t.Errorf("expected weighted score 0.5, got %v", out.Composite.WeightedScore)
	}
	if out.Composite.CreditScore != 600 {
		t.Errorf("expected credit score 600, got %d", out.Composite.CreditScore)
	}
	if out.Tier.Name != "STANDARD" || out.Composite.RiskTier != "STANDARD" {
		t.Errorf("expected STANDARD, got %s", out.Tier.Name)
	}
	if out.Ledger.Status != string(domain.EmptyTransactionSet) {
		t.Errorf("expected empty transaction set, got %s", out.Ledger.Status)
	}
	if !hasDiagnostic(out.Diagnostics, domain.EmptyTransactionSet) {
		t.Error("expected EMPTY_TRANSACTION_SET diagnostic")
	}
	if !out.Limit.RecommendedLimit.IsZero() {
		t.Errorf("expected zero limit without turnover, got %s", out.Limit.RecommendedLimit)
	}
	if len(out.Composite.TopContributors) != 0 {
		t.Errorf("expected no contributors, got %v", out.Composite.TopContributors)
	}
}

func TestRoundTripStatementRaisesFraudRisk(t *testing.T) {
	e := newTestEngine(t, domain.DefaultScoringConfig(), Options{})

	out := e.Score(context.Background(), &domain.Application{Transactions: roundTripStatement()}, nil)

	if out.Anomaly.TotalRisk <= 0 {
		t.Fatalf("expected anomaly risk, got %+v", out.Anomaly)
	}
	fraud := out.Composite.SectionScores[domain.SectionFraud]
	if fraud.SubScores["transaction_anomaly"] >= 1 {
		t.Errorf("expected anomaly to lower the fraud sub-score, got %v", fraud.SubScores)
	}
	if got := out.Signals["fraud."+sections.SignalAnomalyRisk]; got != out.Anomaly.TotalRisk {
		t.Errorf("expected effective anomaly signal %v, got %v", out.Anomaly.TotalRisk, got)
	}
}

func TestDeclaredAnomalyRiskIgnored(t *testing.T) {
	e := newTestEngine(t, domain.DefaultScoringConfig(), Options{})
	app := &domain.Application{
		Transactions: roundTripStatement(),
		Signals:      domain.RawSignals{domain.SectionFraud: {sections.SignalAnomalyRisk: 0.0}},
	}

	out := e.Score(context.Background(), app, nil)

	if got := out.Signals["fraud."+sections.SignalAnomalyRisk]; got != out.Anomaly.TotalRisk {
		t.Errorf("expected detector value %v, got %v", out.Anomaly.TotalRisk, got)
	}
}

func TestLedgerMatchesTransactions(t *testing.T) {
	e := newTestEngine(t, domain.DefaultScoringConfig(), Options{})
	records := append(statement(), map[string]any{"date": "not a date", "deposit": 10.0})

	out := e.Score(context.Background(), &domain.Application{Transactions: records}, nil)

	credits := decimal.Zero
	for m := 1; m <= 12; m++ {
		credits = credits.Add(decimal.NewFromFloat(85000.0 + float64(m*250)))
	}
	if !out.Ledger.TotalCredits.Equal(credits) {
		t.Errorf("expected credits %s, got %s", credits, out.Ledger.TotalCredits)
	}
	if out.Ledger.Received != 37 || out.Ledger.Accepted != 36 || out.Ledger.Dropped != 1 {
		t.Errorf("unexpected ledger counts %+v", out.Ledger)
	}
	if out.Ledger.Months != 12 {
		t.Errorf("expected 12 months, got %d", out.Ledger.Months)
	}
	if !hasDiagnostic(out.Diagnostics, domain.MalformedInput) {
		t.Error("expected MALFORMED_INPUT diagnostic")
	}
}

func TestZeroSurplusGivesZeroCashFlowLimit(t *testing.T) {
	e := newTestEngine(t, domain.DefaultScoringConfig(), Options{})
	app := sampleApplication()
	app.Financials.MonthlySurplus = decimal.NewNullDecimal(decimal.Zero)

	out := e.Score(context.Background(), app, nil)

	if !out.Limit.CashFlowMethodLimit.IsZero() || !out.Limit.RecommendedLimit.IsZero() {
		t.Errorf("expected zero cash-flow and recommended limits, got %+v", out.Limit)
	}
	if !out.Limit.TurnoverMethodLimit.IsPositive() && out.Tier.Eligible {
		t.Errorf("expected a turnover limit from derived turnover, got %s", out.Limit.TurnoverMethodLimit)
	}
}

func TestSectionTimeoutDegradesToNeutral(t *testing.T) {
	cfg := domain.DefaultScoringConfig()
	cfg.SectionTimeout = 20 * time.Millisecond
	e := newTestEngine(t, cfg, Options{})
	score := e.scoreSection
	e.scoreSection = func(a *sections.Analyzer, raw map[string]any) (domain.SectionScore, []domain.Diagnostic) {
		if a.Section() == domain.SectionDebt {
			time.Sleep(200 * time.Millisecond)
		}
		return score(a, raw)
	}

	out := e.Score(context.Background(), sampleApplication(), nil)

	debt := out.Composite.SectionScores[domain.SectionDebt]
	if !debt.Degraded || debt.Value != domain.NeutralScore {
		t.Errorf("expected degraded neutral debt score, got %+v", debt)
	}
	if out.Degraded != 1 {
		t.Errorf("expected 1 degraded section, got %d", out.Degraded)
	}
	if !hasDiagnostic(out.Diagnostics, domain.SectionTimeout) {
		t.Error("expected SECTION_TIMEOUT diagnostic")
	}
}

func TestClassifierBlending(t *testing.T) {
	empty := &domain.Application{}
	const table = 0.085 // credit score 600

	tests := []struct {
		name       string
		mode       string
		classifier domain.Classifier
		want       float64
		source     string
		diagnostic bool
	}{
		{"table only", domain.BlendTable, stubClassifier{p: 0.5}, table, domain.ProbabilitySourceTable, false},
		{"blend", domain.BlendMix, stubClassifier{p: 0.5}, 0.5*0.5 + 0.5*table, domain.ProbabilitySourceBlend, false},
		{"replace", domain.BlendReplace, stubClassifier{p: 0.3}, 0.3, domain.ProbabilitySourceClassifier, false},
		{"failure", domain.BlendReplace, stubClassifier{err: errors.New("model offline")}, table, domain.ProbabilitySourceTable, true},
		{"no classifier", domain.BlendMix, nil, table, domain.ProbabilitySourceTable, false},
		{"nan", domain.BlendReplace, stubClassifier{p: math.NaN()}, table, domain.ProbabilitySourceTable, true},
		{"infinite", domain.BlendMix, stubClassifier{p: math.Inf(1)}, table, domain.ProbabilitySourceTable, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := domain.DefaultScoringConfig()
			cfg.BlendMode = tt.mode
			e := newTestEngine(t, cfg, Options{Classifier: tt.classifier})

			out := e.Score(context.Background(), empty, nil)

			if math.Abs(out.Composite.DefaultProbability-tt.want) > 1e-9 {
				t.Errorf("expected probability %v, got %v", tt.want, out.Composite.DefaultProbability)
			}
			if out.Composite.ProbabilitySource != tt.source {
				t.Errorf("expected source %s, got %s", tt.source, out.Composite.ProbabilitySource)
			}
			if got := hasDiagnostic(out.Diagnostics, domain.ClassifierUnavailable); got != tt.diagnostic {
				t.Errorf("classifier diagnostic = %v, want %v", got, tt.diagnostic)
			}
		})
	}
}

func TestAssessInjectsVelocity(t *testing.T) {
	calls := 0
	velocity := func(ctx context.Context, tenantID, applicantID string, window time.Duration) (int64, error) {
		calls++
		if tenantID != "tenant-1" || applicantID != "applicant-1" {
			t.Errorf("unexpected lookup %s/%s", tenantID, applicantID)
		}
		return 4, nil
	}
	e := newTestEngine(t, domain.DefaultScoringConfig(), Options{Velocity: velocity})

	a := e.Assess(context.Background(), &Request{TenantID: "tenant-1", TraceID: "trace-1", Application: sampleApplication()})

	if calls != 1 {
		t.Fatalf("expected one velocity lookup, got %d", calls)
	}
	got := a.Composite.SectionScores[domain.SectionFraud].SubScores["application_velocity"]
	if math.Abs(got-0.35) > 1e-9 {
		t.Errorf("expected velocity sub-score 0.35, got %v", got)
	}
	if a.Metadata.TraceID != "trace-1" || a.TenantID != "tenant-1" {
		t.Errorf("unexpected metadata %+v", a.Metadata)
	}
	if a.Metadata.EngineVersion == "" {
		t.Error("expected engine version")
	}
}

func TestAssessDeclaredVelocityWins(t *testing.T) {
	velocity := func(ctx context.Context, tenantID, applicantID string, window time.Duration) (int64, error) {
		return 9, nil
	}
	e := newTestEngine(t, domain.DefaultScoringConfig(), Options{Velocity: velocity})
	app := sampleApplication()
	app.Signals[domain.SectionFraud] = map[string]any{sections.SignalApplicationVelocity: 0}

	a := e.Assess(context.Background(), &Request{TenantID: "tenant-1", Application: app})

	if got := a.Composite.SectionScores[domain.SectionFraud].SubScores["application_velocity"]; got != 1 {
		t.Errorf("expected declared velocity to win, got %v", got)
	}
}

func TestAssessVelocityFailureIsIgnored(t *testing.T) {
	velocity := func(ctx context.Context, tenantID, applicantID string, window time.Duration) (int64, error) {
		return 0, errors.New("store down")
	}
	e := newTestEngine(t, domain.DefaultScoringConfig(), Options{Velocity: velocity})

	a := e.Assess(context.Background(), &Request{TenantID: "tenant-1", Application: sampleApplication()})

	if got := a.Composite.SectionScores[domain.SectionFraud].SubScores["application_velocity"]; got != domain.NeutralScore {
		t.Errorf("expected neutral velocity sub-score, got %v", got)
	}
}

func TestAssessAppliesPolicies(t *testing.T) {
	policies, err := policy.NewEngine(4)
	if err != nil {
		t.Fatalf("failed to create policy engine: %v", err)
	}
	defer policies.Close()

	one, zero := 1.0, 0.0
	err = policies.LoadRule(&domain.PolicyRule{
		ID:         "anomaly-cap",
		Expression: "anomaly.total > 0.2",
		Enabled:    true,
		Bands: []domain.PolicyBand{
			{LowerLimit: &zero, UpperLimit: &one, Outcome: domain.OutcomePass, Reason: "ok"},
			{LowerLimit: &one, Outcome: domain.OutcomeFail, Reason: "statement shows manipulation"},
		},
	})
	if err != nil {
		t.Fatalf("failed to load rule: %v", err)
	}
	e := newTestEngine(t, domain.DefaultScoringConfig(), Options{Policies: policies})

	t.Run("clean statement passes", func(t *testing.T) {
		a := e.Assess(context.Background(), &Request{TenantID: "t", Application: sampleApplication()})
		if len(a.PolicyResults) != 1 || a.PolicyResults[0].Outcome != domain.OutcomePass {
			t.Errorf("expected pass, got %+v", a.PolicyResults)
		}
	})

	t.Run("round trips are not eligible", func(t *testing.T) {
		app := &domain.Application{ApplicantID: "a", Transactions: roundTripStatement()}
		a := e.Assess(context.Background(), &Request{TenantID: "t", Application: app})
		if len(a.PolicyResults) != 1 || a.PolicyResults[0].Outcome != domain.OutcomeFail {
			t.Fatalf("expected fail, got %+v", a.PolicyResults)
		}
		if a.Status == domain.StatusEligible {
			t.Errorf("expected refer or decline, got %s", a.Status)
		}
		if a.Status == domain.StatusRefer && a.Limit == nil {
			t.Error("eligible tier should carry a limit")
		}
	})
}

func TestFingerprint(t *testing.T) {
	a, err := Fingerprint("tenant-1", sampleApplication())
	if err != nil {
		t.Fatalf("fingerprint: %v", err)
	}
	b, _ := Fingerprint("tenant-1", sampleApplication())
	c, _ := Fingerprint("tenant-2", sampleApplication())

	other := sampleApplication()
	other.ApplicantID = "applicant-2"
	d, _ := Fingerprint("tenant-1", other)

	if a != b {
		t.Error("equal inputs must share a fingerprint")
	}
	if a == c || a == d {
		t.Error("different inputs must not share a fingerprint")
	}
}

func hasDiagnostic(diags []domain.Diagnostic, kind domain.DiagnosticKind) bool {
	for _, d := range diags {
		if d.Kind == kind {
			return true
		}
	}
	return false
}

func TestAssessWithNonFiniteClassifierSerializes(t *testing.T) {
	cfg := domain.DefaultScoringConfig()
	cfg.BlendMode = domain.BlendReplace
	e := newTestEngine(t, cfg, Options{Classifier: stubClassifier{p: math.NaN()}})

	a := e.Assess(context.Background(), &Request{TenantID: "tenant-1", TraceID: "trace-1", Application: sampleApplication()})

	p := a.Composite.DefaultProbability
	if math.IsNaN(p) || p < 0 || p > 1 {
		t.Fatalf("expected probability in [0,1], got %v", p)
	}
	if _, err := json.Marshal(a); err != nil {
		t.Fatalf("assessment should serialize: %v", err)
	}
}
