package domain

import "context"

// PolicyRule is an operator-defined underwriting condition expressed in CEL.
type PolicyRule struct {
	ID          string `json:"id"`
	TenantID    string `json:"tenantId"`
	Name        string `json:"name"`
	Description string `json:"description"`
	Version     string `json:"version"`

	// CEL expression evaluated against the scoring outcome
	Expression string `json:"expression"`

	// Outcome bands for score-to-outcome mapping
	Bands []PolicyBand `json:"bands"`

	Enabled bool `json:"enabled"`
}

// PolicyBand maps a score range to an outcome.
type PolicyBand struct {
	LowerLimit *float64 `json:"lowerLimit,omitempty"`
	UpperLimit *float64 `json:"upperLimit,omitempty"`
	Outcome    string   `json:"outcome"` // ".pass", ".review", ".fail"
	Reason     string   `json:"reason"`
}

// PolicyResult is the output of one policy evaluation.
type PolicyResult struct {
	RuleID    string  `json:"ruleId"`
	Outcome   string  `json:"outcome"`
	Score     float64 `json:"score"`
	Reason    string  `json:"reason"`
	ProcessMs int64   `json:"processMs"`
}

// Predefined policy outcomes
const (
	OutcomePass   = ".pass"
	OutcomeReview = ".review"
	OutcomeFail   = ".fail"
	OutcomeError  = ".err"
)

// Triggered reports whether the outcome asks for manual attention.
func (r PolicyResult) Triggered() bool {
	return r.Outcome == OutcomeFail || r.Outcome == OutcomeReview
}

// Classifier is an already-initialized default-probability model handle.
// Its lifecycle belongs to the caller; the engine only reads from it.
type Classifier interface {
	PredictDefault(ctx context.Context, features map[string]float64) (float64, error)
}
