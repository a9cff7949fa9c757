// Package policy evaluates operator-defined CEL underwriting conditions
// against a scoring outcome.
package policy

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/cel-go/cel"
	"github.com/google/cel-go/common/types"
	"github.com/google/cel-go/common/types/ref"

	"github.com/opensource-finance/harrier/internal/domain"
)

// Engine is the CEL-based policy evaluation engine.
type Engine struct {
	mu            sync.RWMutex
	env           *cel.Env
	compiledRules map[string]*CompiledRule
	maxWorkers    int
}

// CompiledRule holds a pre-compiled CEL program.
type CompiledRule struct {
	Rule    *domain.PolicyRule
	Program cel.Program
}

// NewEngine creates a new policy evaluation engine.
func NewEngine(maxWorkers int) (*Engine, error) {
	if maxWorkers <= 0 {
		maxWorkers = 10
	}

	env, err := cel.NewEnv(
		cel.Variable("credit_score", cel.IntType),
		cel.Variable("weighted_score", cel.DoubleType),
		cel.Variable("default_probability", cel.DoubleType),
		cel.Variable("tier", cel.StringType),
		cel.Variable("eligible", cel.BoolType),
		cel.Variable("sections", cel.MapType(cel.StringType, cel.DoubleType)),
		cel.Variable("anomaly", cel.MapType(cel.StringType, cel.DoubleType)),
		cel.Variable("signals", cel.MapType(cel.StringType, cel.DoubleType)),
		cel.Variable("turnover", cel.DoubleType),
		cel.Variable("recommended_limit", cel.DoubleType),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create CEL environment: %w", err)
	}

	return &Engine{
		env:           env,
		compiledRules: make(map[string]*CompiledRule),
		maxWorkers:    maxWorkers,
	}, nil
}

// ValidateRule compiles and validates a rule without mutating loaded rules.
func (e *Engine) ValidateRule(rule *domain.PolicyRule) error {
	if rule == nil {
		return fmt.Errorf("policy rule is required")
	}

	e.mu.RLock()
	defer e.mu.RUnlock()

	_, err := e.compileRule(rule)
	return err
}

// LoadRule compiles and loads a rule into the engine.
func (e *Engine) LoadRule(rule *domain.PolicyRule) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	compiled, err := e.compileRule(rule)
	if err != nil {
		return err
	}
	e.compiledRules[rule.ID] = compiled
	return nil
}

// ReloadRules replaces every loaded rule. Disabled rules are skipped; on a
// compile error the previous set stays in place.
func (e *Engine) ReloadRules(rules []*domain.PolicyRule) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	next := make(map[string]*CompiledRule, len(rules))
	for _, rule := range rules {
		if !rule.Enabled {
			continue
		}
		compiled, err := e.compileRule(rule)
		if err != nil {
			return err
		}
		next[rule.ID] = compiled
	}
	e.compiledRules = next
	return nil
}

// RulesCount returns the number of loaded rules.
func (e *Engine) RulesCount() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.compiledRules)
}

// GetLoadedRules returns the loaded rules ordered by ID.
func (e *Engine) GetLoadedRules() []*domain.PolicyRule {
	e.mu.RLock()
	defer e.mu.RUnlock()

	rules := make([]*domain.PolicyRule, 0, len(e.compiledRules))
	for _, compiled := range e.compiledRules {
		rules = append(rules, compiled.Rule)
	}
	sort.Slice(rules, func(i, j int) bool { return rules[i].ID < rules[j].ID })
	return rules
}

// Input is the scoring outcome exposed to policy expressions.
type Input struct {
	Composite        domain.CompositeResult
	Anomaly          domain.AnomalyReport
	Tier             domain.RiskTier
	Signals          map[string]float64 // "section.key"
	Turnover         float64
	RecommendedLimit float64
}

func (in *Input) activation() map[string]any {
	sections := make(map[string]float64, len(in.Composite.SectionScores))
	for s, score := range in.Composite.SectionScores {
		sections[string(s)] = score.Value
	}
	signals := in.Signals
	if signals == nil {
		signals = map[string]float64{}
	}
	return map[string]any{
		"credit_score":        int64(in.Composite.CreditScore),
		"weighted_score":      in.Composite.WeightedScore,
		"default_probability": in.Composite.DefaultProbability,
		"tier":                in.Tier.Name,
		"eligible":            in.Tier.Eligible,
		"sections":            sections,
		"anomaly": map[string]float64{
			"total":    in.Anomaly.TotalRisk,
			"circular": in.Anomaly.CircularRisk,
			"p2p":      in.Anomaly.P2PRisk,
			"balance":  in.Anomaly.BalanceRisk,
		},
		"signals":           signals,
		"turnover":          in.Turnover,
		"recommended_limit": in.RecommendedLimit,
	}
}

// EvaluateAll evaluates every loaded rule in parallel. Results are ordered by rule ID.
func (e *Engine) EvaluateAll(ctx context.Context, input *Input) []domain.PolicyResult {
	e.mu.RLock()
	rules := make([]*CompiledRule, 0, len(e.compiledRules))
	for _, rule := range e.compiledRules {
		rules = append(rules, rule)
	}
	e.mu.RUnlock()

	if len(rules) == 0 {
		return nil
	}
	sort.Slice(rules, func(i, j int) bool { return rules[i].Rule.ID < rules[j].Rule.ID })

	activation := input.activation()

	// Parallel evaluation using worker pool pattern
	results := make([]domain.PolicyResult, len(rules))
	var wg sync.WaitGroup

	// Limit concurrency with semaphore
	sem := make(chan struct{}, e.maxWorkers)

	for i, rule := range rules {
		wg.Add(1)
		go func(idx int, r *CompiledRule) {
			defer wg.Done()

			sem <- struct{}{}        // Acquire
			defer func() { <-sem }() // Release

			results[idx] = e.evaluateRule(ctx, r, activation)
		}(i, rule)
	}

	wg.Wait()

	return results
}

func (e *Engine) evaluateRule(ctx context.Context, rule *CompiledRule, activation map[string]any) domain.PolicyResult {
	start := time.Now()

	result := domain.PolicyResult{RuleID: rule.Rule.ID}

	out, _, err := rule.Program.ContextEval(ctx, activation)
	if err != nil {
		result.Outcome = domain.OutcomeError
		result.Reason = fmt.Sprintf("evaluation error: %v", err)
		result.ProcessMs = time.Since(start).Milliseconds()
		return result
	}

	result.Score = toScore(out)
	result.Outcome, result.Reason = matchBand(result.Score, rule.Rule.Bands)
	result.ProcessMs = time.Since(start).Milliseconds()
	return result
}

// toScore converts a CEL value to a numeric score.
func toScore(val ref.Val) float64 {
	switch v := val.(type) {
	case types.Bool:
		if v {
			return 1.0
		}
		return 0.0
	case types.Double:
		return float64(v)
	case types.Int:
		return float64(v)
	default:
		return 0.0
	}
}

// matchBand finds the first band with lower <= score < upper. A nil lower is
// zero and a nil upper is unbounded. No match is a pass.
func matchBand(score float64, bands []domain.PolicyBand) (string, string) {
	for _, band := range bands {
		lower := 0.0
		if band.LowerLimit != nil {
			lower = *band.LowerLimit
		}
		if score < lower {
			continue
		}
		if band.UpperLimit == nil || score < *band.UpperLimit {
			return band.Outcome, band.Reason
		}
	}
	return domain.OutcomePass, "no matching band"
}

// Close cleans up the engine.
func (e *Engine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.compiledRules = make(map[string]*CompiledRule)
	return nil
}

func (e *Engine) compileRule(rule *domain.PolicyRule) (*CompiledRule, error) {
	ast, issues := e.env.Compile(rule.Expression)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("failed to compile policy %s: %w", rule.ID, issues.Err())
	}

	outputType := ast.OutputType()
	if outputType != cel.BoolType && outputType != cel.DoubleType && outputType != cel.IntType {
		return nil, fmt.Errorf("policy %s: expression must return bool, int, or double, got %s", rule.ID, outputType)
	}

	program, err := e.env.Program(ast)
	if err != nil {
		return nil, fmt.Errorf("failed to create program for policy %s: %w", rule.ID, err)
	}

	return &CompiledRule{Rule: rule, Program: program}, nil
}
