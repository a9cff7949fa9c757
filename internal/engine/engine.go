// Package engine runs the scoring pipeline end to end.
//
// Data flows strictly downward: normalize, bucket, then anomaly detection and
// the section fan-out, then the composite score, tier and limit. Policies and
// the final decision sit on top. Nothing in the pipeline performs I/O except
// the optional velocity lookup and classifier handle injected by the caller.
package engine

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/opensource-finance/harrier/internal/anomaly"
	"github.com/opensource-finance/harrier/internal/buckets"
	"github.com/opensource-finance/harrier/internal/decision"
	"github.com/opensource-finance/harrier/internal/domain"
	"github.com/opensource-finance/harrier/internal/normalize"
	"github.com/opensource-finance/harrier/internal/policy"
	"github.com/opensource-finance/harrier/internal/scoring"
	"github.com/opensource-finance/harrier/internal/sections"
	"github.com/opensource-finance/harrier/internal/tier"
)

var tracer = otel.Tracer("harrier-engine")

// VelocityGetter returns how many assessments an applicant had in a window.
type VelocityGetter func(ctx context.Context, tenantID, applicantID string, window time.Duration) (int64, error)

// Options override the stock tables and inject collaborators. Zero values
// select the defaults.
type Options struct {
	Weights          scoring.Weights
	ProbabilityTable []scoring.Anchor
	Tiers            []domain.RiskTier
	Classifier       domain.Classifier
	Policies         *policy.Engine
	Velocity         VelocityGetter
}

// Engine is the assembled pipeline. It is immutable after New and safe for
// concurrent use.
type Engine struct {
	cfg        domain.ScoringConfig
	normalizer *normalize.Normalizer
	detector   *anomaly.Detector
	registry   *sections.Registry
	aggregator *scoring.Aggregator
	tiers      *tier.Table
	classifier domain.Classifier
	policies   *policy.Engine
	velocity   VelocityGetter
	decisions  *decision.Processor

	// scoreSection evaluates one analyzer; replaced in tests to simulate slow sections.
	scoreSection func(a *sections.Analyzer, raw map[string]any) (domain.SectionScore, []domain.Diagnostic)
}

// New validates every table and builds the engine. Invariant violations
// (weights, tiers, probability anchors) are returned here and never at call time.
func New(cfg domain.ScoringConfig, opts Options) (*Engine, error) {
	if err := scoring.ValidateBlendMode(cfg.BlendMode); err != nil {
		return nil, err
	}
	if cfg.MaxWorkers <= 0 {
		cfg.MaxWorkers = len(domain.AllSections())
	}
	if cfg.SectionTimeout <= 0 {
		cfg.SectionTimeout = 2 * time.Second
	}

	registry, err := sections.NewRegistry()
	if err != nil {
		return nil, fmt.Errorf("failed to build section registry: %w", err)
	}

	weights := opts.Weights
	if weights == nil {
		weights = scoring.DefaultWeights()
	}
	table := opts.ProbabilityTable
	if table == nil {
		table = scoring.DefaultProbabilityTable()
	}
	aggregator, err := scoring.NewAggregator(weights, table, registry.SubWeight, cfg.TopContributors)
	if err != nil {
		return nil, fmt.Errorf("failed to build score aggregator: %w", err)
	}

	tiers := opts.Tiers
	if tiers == nil {
		tiers = tier.DefaultTiers()
	}
	tierTable, err := tier.NewTable(tiers)
	if err != nil {
		return nil, fmt.Errorf("failed to build tier table: %w", err)
	}

	return &Engine{
		cfg:        cfg,
		normalizer: normalize.New(cfg),
		detector:   anomaly.NewDetector(cfg.Anomaly),
		registry:   registry,
		aggregator: aggregator,
		tiers:      tierTable,
		classifier: opts.Classifier,
		policies:   opts.Policies,
		velocity:   opts.Velocity,
		decisions:  decision.NewProcessor(),
		scoreSection: func(a *sections.Analyzer, raw map[string]any) (domain.SectionScore, []domain.Diagnostic) {
			return a.Score(raw)
		},
	}, nil
}

// Registry exposes the section signal registry.
func (e *Engine) Registry() *sections.Registry {
	return e.registry
}

// Tiers exposes the tier catalogue.
func (e *Engine) Tiers() *tier.Table {
	return e.tiers
}

// Policies returns the policy engine, or nil.
func (e *Engine) Policies() *policy.Engine {
	return e.policies
}

// SetClock replaces the clock used for date cutoffs and assessment timestamps.
func (e *Engine) SetClock(now func() time.Time) {
	e.normalizer.Now = now
	e.decisions.Now = now
}

// Outcome is the result of the pure scoring pass.
type Outcome struct {
	Composite   domain.CompositeResult
	Anomaly     domain.AnomalyReport
	Tier        domain.RiskTier
	Limit       domain.LoanLimitResult
	Ledger      domain.LedgerSummary
	Signals     map[string]float64 // effective signals, "section.key"
	Turnover    decimal.Decimal    // declared or statement-derived annual turnover
	Diagnostics []domain.Diagnostic
	Degraded    int
}

// Score runs normalize -> buckets -> {anomaly, sections} -> composite -> tier/limit.
// extra carries caller-side derived signals (such as application velocity);
// declared signals still take precedence over them.
func (e *Engine) Score(ctx context.Context, app *domain.Application, extra sections.Derived) *Outcome {
	out := &Outcome{}

	_, span := tracer.Start(ctx, "normalize")
	norm := e.normalizer.Normalize(app.Transactions)
	span.SetAttributes(attribute.Int("transactions.accepted", len(norm.Transactions)), attribute.Int("transactions.dropped", norm.Dropped))
	span.End()
	out.Diagnostics = append(out.Diagnostics, norm.Diagnostics...)
	if norm.Empty() {
		out.Diagnostics = append(out.Diagnostics, domain.Diagnostic{
			Kind:    domain.EmptyTransactionSet,
			Index:   -1,
			Message: "no usable transactions; statement-derived signals fall back to neutral",
		})
	}

	_, span = tracer.Start(ctx, "buckets")
	perAccount := buckets.Aggregate(norm.Transactions)
	merged := buckets.Merge(perAccount)
	totals := buckets.LedgerTotals(norm.Transactions)
	span.End()
	out.Ledger = domain.LedgerSummary{
		Status:       norm.Status,
		Received:     norm.Received,
		Accepted:     len(norm.Transactions),
		Dropped:      norm.Dropped,
		Months:       len(merged),
		TotalCredits: totals.Credits,
		TotalDebits:  totals.Debits,
	}

	_, span = tracer.Start(ctx, "anomaly")
	out.Anomaly = e.detector.Detect(norm.Transactions)
	span.SetAttributes(attribute.Float64("anomaly.total_risk", out.Anomaly.TotalRisk))
	span.End()

	derived := sections.Derive(norm.Transactions, merged, out.Anomaly)
	for s, kv := range extra {
		for k, v := range kv {
			if _, ok := derived[s][k]; !ok {
				derived.Set(s, k, v)
			}
		}
	}
	raw := sections.Merge(app.Signals, derived)

	sctx, span := tracer.Start(ctx, "sections")
	scores, diags, degraded := e.scoreSections(sctx, raw)
	span.SetAttributes(attribute.Int("sections.degraded", degraded))
	span.End()
	out.Diagnostics = append(out.Diagnostics, diags...)
	out.Degraded = degraded
	out.Signals = e.effectiveSignals(raw)

	_, span = tracer.Start(ctx, "scoring")
	out.Composite = e.aggregator.Aggregate(scores)
	if e.classifier != nil && e.cfg.BlendMode != "" && e.cfg.BlendMode != domain.BlendTable {
		p, err := e.classifier.PredictDefault(ctx, scoring.Features(out.Composite, out.Anomaly))
		if err == nil && (math.IsNaN(p) || math.IsInf(p, 0)) {
			err = fmt.Errorf("classifier returned non-finite probability %v", p)
		}
		if err != nil {
			out.Diagnostics = append(out.Diagnostics, domain.Diagnostic{
				Kind:    domain.ClassifierUnavailable,
				Index:   -1,
				Message: err.Error(),
			})
		} else {
			out.Composite.DefaultProbability, out.Composite.ProbabilitySource = scoring.Blend(out.Composite.DefaultProbability, p, e.cfg.BlendMode, e.cfg.BlendWeight)
		}
	}
	span.SetAttributes(attribute.Int("credit_score", out.Composite.CreditScore))
	span.End()

	_, span = tracer.Start(ctx, "tier")
	out.Tier = e.tiers.Resolve(out.Composite.CreditScore)
	out.Composite.RiskTier = out.Tier.Name
	in := limitInput(app.Financials, merged)
	out.Turnover = in.AnnualTurnover
	out.Limit = tier.ComputeLimit(in, out.Tier)
	span.SetAttributes(attribute.String("tier", out.Tier.Name))
	span.End()

	return out
}

// limitInput fills missing turnover and surplus from the monthly series.
func limitInput(f domain.Financials, merged []domain.MonthlyBucket) tier.LimitInput {
	avgCredits, avgNet := buckets.MonthlyAverages(merged)
	in := tier.LimitInput{
		AnnualTurnover:     avgCredits.Mul(decimal.NewFromInt(12)),
		MonthlySurplus:     avgNet,
		CurrentAssets:      f.CurrentAssets,
		CurrentLiabilities: f.CurrentLiabilities,
		ExistingDebt:       f.ExistingDebt,
	}
	if f.AnnualTurnover.Valid {
		in.AnnualTurnover = f.AnnualTurnover.Decimal
	}
	if f.MonthlySurplus.Valid {
		in.MonthlySurplus = f.MonthlySurplus.Decimal
	}
	return in
}

type sectionResult struct {
	score domain.SectionScore
	diags []domain.Diagnostic
}

// scoreSections fans the analyzers out over a bounded worker pool. A section
// that does not finish within the timeout is replaced by the neutral score.
// Results are collected by index, so output does not depend on scheduling.
func (e *Engine) scoreSections(ctx context.Context, raw domain.RawSignals) (map[domain.Section]domain.SectionScore, []domain.Diagnostic, int) {
	all := domain.AllSections()
	results := make([]sectionResult, len(all))
	var wg sync.WaitGroup

	// Limit concurrency with semaphore
	sem := make(chan struct{}, e.cfg.MaxWorkers)

	for i, s := range all {
		wg.Add(1)
		go func(idx int, s domain.Section) {
			defer wg.Done()

			sem <- struct{}{}        // Acquire
			defer func() { <-sem }() // Release

			results[idx] = e.evaluateSection(ctx, s, raw[s])
		}(i, s)
	}

	wg.Wait()

	scores := make(map[domain.Section]domain.SectionScore, len(all))
	var diags []domain.Diagnostic
	degraded := 0
	for _, r := range results {
		scores[r.score.Section] = r.score
		diags = append(diags, r.diags...)
		if r.score.Degraded {
			degraded++
		}
	}
	return scores, diags, degraded
}

func (e *Engine) evaluateSection(ctx context.Context, s domain.Section, raw map[string]any) sectionResult {
	a, ok := e.registry.Analyzer(s)
	if !ok {
		return sectionResult{score: domain.DegradedSectionScore(s)}
	}

	done := make(chan sectionResult, 1)
	go func() {
		score, diags := e.scoreSection(a, raw)
		done <- sectionResult{score: score, diags: diags}
	}()

	timer := time.NewTimer(e.cfg.SectionTimeout)
	defer timer.Stop()

	var reason string
	select {
	case r := <-done:
		return r
	case <-timer.C:
		reason = fmt.Sprintf("section %s exceeded %s", s, e.cfg.SectionTimeout)
	case <-ctx.Done():
		reason = fmt.Sprintf("section %s cancelled: %v", s, ctx.Err())
	}

	slog.Warn("section degraded to neutral score", "section", s, "reason", reason)
	return sectionResult{
		score: domain.DegradedSectionScore(s),
		diags: []domain.Diagnostic{{Kind: domain.SectionTimeout, Index: -1, Field: string(s), Message: reason}},
	}
}

// effectiveSignals flattens the coerced signals every section saw.
func (e *Engine) effectiveSignals(raw domain.RawSignals) map[string]float64 {
	out := make(map[string]float64)
	for _, s := range domain.AllSections() {
		a, _ := e.registry.Analyzer(s)
		coerced, _ := sections.Coerce(s, a.Signals(), raw[s])
		keys := make([]string, 0, len(coerced))
		for k := range coerced {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			out[string(s)+"."+k] = coerced[k]
		}
	}
	return out
}

// Request identifies one assessment.
type Request struct {
	TenantID    string
	TraceID     string
	Fingerprint string
	Application *domain.Application
}

// Assess scores an application, evaluates policies and decides.
func (e *Engine) Assess(ctx context.Context, req *Request) *domain.Assessment {
	start := time.Now()
	ctx, span := tracer.Start(ctx, "assess", trace.WithAttributes(
		attribute.String("tenant.id", req.TenantID),
		attribute.String("applicant.id", req.Application.ApplicantID),
	))
	defer span.End()

	extra := make(sections.Derived)
	if e.velocity != nil && req.Application.ApplicantID != "" {
		count, err := e.velocity(ctx, req.TenantID, req.Application.ApplicantID, e.cfg.VelocityWindow)
		if err != nil {
			slog.Warn("application velocity unavailable", "applicant_id", req.Application.ApplicantID, "error", err)
		} else {
			extra.Set(domain.SectionFraud, sections.SignalApplicationVelocity, float64(count))
		}
	}

	out := e.Score(ctx, req.Application, extra)

	var policyResults []domain.PolicyResult
	if e.policies != nil {
		pctx, pspan := tracer.Start(ctx, "policy")
		policyResults = e.policies.EvaluateAll(pctx, &policy.Input{
			Composite:        out.Composite,
			Anomaly:          out.Anomaly,
			Tier:             out.Tier,
			Signals:          out.Signals,
			Turnover:         out.Turnover.InexactFloat64(),
			RecommendedLimit: out.Limit.RecommendedLimit.InexactFloat64(),
		})
		pspan.End()
	}

	a := e.decisions.Process(ctx, &decision.DecisionInput{
		TenantID:         req.TenantID,
		ApplicantID:      req.Application.ApplicantID,
		Fingerprint:      req.Fingerprint,
		TraceID:          req.TraceID,
		StartTime:        start,
		Composite:        out.Composite,
		Anomaly:          out.Anomaly,
		Tier:             out.Tier,
		Limit:            out.Limit,
		Ledger:           out.Ledger,
		PolicyResults:    policyResults,
		Diagnostics:      out.Diagnostics,
		SectionsDegraded: out.Degraded,
	})

	span.SetAttributes(attribute.String("status", a.Status), attribute.Int("credit_score", a.Composite.CreditScore))
	slog.Debug("assessment complete",
		"applicant_id", a.ApplicantID,
		"credit_score", a.Composite.CreditScore,
		"tier", a.Composite.RiskTier,
		"status", a.Status,
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return a
}
