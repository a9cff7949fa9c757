// Package pipeline wraps the scoring engine with the serving concerns shared
// by the HTTP API and the async worker: fingerprint caching, persistence and
// event publication.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/opensource-finance/harrier/internal/bus"
	"github.com/opensource-finance/harrier/internal/domain"
	"github.com/opensource-finance/harrier/internal/engine"
)

// GlobalTenantID owns policy rules that apply to every tenant.
const GlobalTenantID = "*"

// ErrNoPolicyStore is returned when policies are managed without a repository.
var ErrNoPolicyStore = errors.New("policy store not available")

// Pipeline runs one assessment end to end. Repository, cache and bus are
// optional; a nil collaborator is skipped.
type Pipeline struct {
	engine *engine.Engine
	repo   domain.Repository
	cache  domain.Cache
	bus    domain.EventBus
	ttl    time.Duration
}

// New creates a pipeline. ttl bounds how long an identical application is
// answered from cache.
func New(e *engine.Engine, repo domain.Repository, cache domain.Cache, eventBus domain.EventBus, ttl time.Duration) *Pipeline {
	if ttl <= 0 {
		ttl = 15 * time.Minute
	}
	return &Pipeline{engine: e, repo: repo, cache: cache, bus: eventBus, ttl: ttl}
}

// Engine returns the wrapped engine.
func (p *Pipeline) Engine() *engine.Engine {
	return p.engine
}

// Run assesses an application. The second return value reports a cache hit.
// Persistence and publication failures are logged, never returned: the
// caller still gets the decision.
func (p *Pipeline) Run(ctx context.Context, tenantID, traceID string, app *domain.Application) (*domain.Assessment, bool, error) {
	if tenantID == "" {
		return nil, false, fmt.Errorf("tenantID is required")
	}
	if app == nil {
		return nil, false, fmt.Errorf("application is required")
	}

	fingerprint, err := engine.Fingerprint(tenantID, app)
	if err != nil {
		return nil, false, err
	}

	if p.cache != nil {
		cached, err := p.cache.GetAssessment(ctx, tenantID, fingerprint)
		if err != nil {
			slog.Warn("assessment cache lookup failed", "fingerprint", fingerprint, "error", err)
		} else if cached != nil {
			slog.Debug("assessment served from cache", "assessment_id", cached.ID, "fingerprint", fingerprint)
			return cached, true, nil
		}
	}

	a := p.engine.Assess(ctx, &engine.Request{
		TenantID:    tenantID,
		TraceID:     traceID,
		Fingerprint: fingerprint,
		Application: app,
	})

	if p.repo != nil {
		if err := p.repo.SaveAssessment(ctx, tenantID, a); err != nil {
			slog.Error("failed to save assessment", "assessment_id", a.ID, "error", err)
		}
	}

	if p.cache != nil {
		if err := p.cache.SetAssessment(ctx, tenantID, fingerprint, a, p.ttl); err != nil {
			slog.Warn("failed to cache assessment", "assessment_id", a.ID, "error", err)
		}
	}

	p.publish(ctx, tenantID, a)

	slog.Info("assessment completed",
		"assessment_id", a.ID,
		"tenant_id", tenantID,
		"applicant_id", a.ApplicantID,
		"credit_score", a.Composite.CreditScore,
		"tier", a.Composite.RiskTier,
		"status", a.Status,
		"duration_ms", a.Metadata.TotalMs,
	)
	return a, false, nil
}

func (p *Pipeline) publish(ctx context.Context, tenantID string, a *domain.Assessment) {
	if p.bus == nil {
		return
	}
	if err := bus.PublishJSON(ctx, p.bus, tenantID, domain.TopicAssessmentCompleted, a); err != nil {
		slog.Error("failed to publish assessment", "assessment_id", a.ID, "error", err)
	}
	if a.Status == domain.StatusDeclined {
		if err := bus.PublishJSON(ctx, p.bus, tenantID, domain.TopicAssessmentDeclined, a); err != nil {
			slog.Error("failed to publish decline", "assessment_id", a.ID, "error", err)
		}
	}
}

// ReloadPolicies replaces the engine's policy set with the stored global rules.
func (p *Pipeline) ReloadPolicies(ctx context.Context) (int, error) {
	if p.repo == nil {
		return 0, ErrNoPolicyStore
	}
	policies := p.engine.Policies()
	if policies == nil {
		return 0, fmt.Errorf("policy engine not configured")
	}

	rules, err := p.repo.ListPolicyRules(ctx, GlobalTenantID)
	if err != nil {
		return 0, fmt.Errorf("failed to list policy rules: %w", err)
	}
	if err := policies.ReloadRules(rules); err != nil {
		return 0, fmt.Errorf("failed to reload policy rules: %w", err)
	}
	return len(rules), nil
}

// Health pings every configured collaborator and returns the failures by name.
func (p *Pipeline) Health(ctx context.Context) map[string]error {
	failures := make(map[string]error)
	if p.repo != nil {
		if err := p.repo.Ping(ctx); err != nil {
			failures["repository"] = err
		}
	}
	if p.cache != nil {
		if err := p.cache.Ping(ctx); err != nil {
			failures["cache"] = err
		}
	}
	if p.bus != nil {
		if err := p.bus.Ping(ctx); err != nil {
			failures["bus"] = err
		}
	}
	return failures
}
