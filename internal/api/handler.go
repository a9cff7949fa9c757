package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/opensource-finance/harrier/internal/bus"
	"github.com/opensource-finance/harrier/internal/domain"
	"github.com/opensource-finance/harrier/internal/pipeline"
	"github.com/opensource-finance/harrier/internal/repository"
	"github.com/opensource-finance/harrier/internal/worker"
)

// CacheHeader reports whether an assessment was served from cache.
const CacheHeader = "X-Cache"

// defaultHistoryDays bounds GET /applicants/{id}/assessments when no days are given.
const defaultHistoryDays = 90

// Handler holds dependencies for API handlers.
type Handler struct {
	pipeline *pipeline.Pipeline
	repo     domain.Repository
	bus      domain.EventBus
	version  string
}

// NewHandler creates a new API handler. repo and bus may be nil.
func NewHandler(p *pipeline.Pipeline, repo domain.Repository, eventBus domain.EventBus, version string) *Handler {
	return &Handler{
		pipeline: p,
		repo:     repo,
		bus:      eventBus,
		version:  version,
	}
}

func decodeApplication(r *http.Request) (*domain.Application, error) {
	dec := json.NewDecoder(r.Body)
	dec.UseNumber()

	var app domain.Application
	if err := dec.Decode(&app); err != nil {
		return nil, errors.New("invalid JSON request body")
	}
	if app.ApplicantID == "" {
		return nil, errors.New("applicantId is required")
	}
	return &app, nil
}

// Assess handles POST /assess requests.
func (h *Handler) Assess(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	app, err := decodeApplication(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	annotateApplicant(ctx, app.ApplicantID)

	a, cached, err := h.pipeline.Run(ctx, GetTenantID(ctx), GetTraceID(ctx), app)
	if err != nil {
		slog.Error("assessment failed", "applicant_id", app.ApplicantID, "error", err)
		writeError(w, http.StatusInternalServerError, "assessment failed")
		return
	}
	annotateAssessment(ctx, a, cached)

	if cached {
		w.Header().Set(CacheHeader, "HIT")
	} else {
		w.Header().Set(CacheHeader, "MISS")
	}
	writeJSON(w, http.StatusOK, a)
}

// AssessAsync handles POST /assess/async by queueing the application for the worker.
func (h *Handler) AssessAsync(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	if h.bus == nil {
		writeError(w, http.StatusServiceUnavailable, "event bus not available")
		return
	}

	app, err := decodeApplication(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	annotateApplicant(ctx, app.ApplicantID)

	tenantID := GetTenantID(ctx)
	req := worker.AssessmentRequest{
		RequestID:   uuid.New().String(),
		TenantID:    tenantID,
		TraceID:     GetTraceID(ctx),
		Application: app,
	}
	if err := bus.PublishJSON(ctx, h.bus, tenantID, domain.TopicAssessmentRequested, req); err != nil {
		slog.Error("failed to queue assessment", "applicant_id", app.ApplicantID, "error", err)
		writeError(w, http.StatusServiceUnavailable, "failed to queue assessment")
		return
	}

	writeJSON(w, http.StatusAccepted, map[string]string{
		"requestId": req.RequestID,
		"status":    "accepted",
	})
}

// Health returns server health status.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	status := "healthy"
	components := make(map[string]string)
	for name, err := range h.pipeline.Health(r.Context()) {
		status = "degraded"
		components[name] = err.Error()
	}

	resp := map[string]any{
		"status":  status,
		"version": h.version,
	}
	if len(components) > 0 {
		resp["components"] = components
	}
	writeJSON(w, http.StatusOK, resp)
}

// Ready returns whether the server is ready to accept traffic.
func (h *Handler) Ready(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"ready": "true",
	})
}

// GetAssessment retrieves an assessment by ID.
func (h *Handler) GetAssessment(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := chi.URLParam(r, "id")

	if h.repo == nil {
		writeError(w, http.StatusServiceUnavailable, "repository not available")
		return
	}

	a, err := h.repo.GetAssessment(ctx, GetTenantID(ctx), id)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			writeError(w, http.StatusNotFound, "assessment not found")
			return
		}
		slog.Error("failed to get assessment", "id", id, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to load assessment")
		return
	}

	writeJSON(w, http.StatusOK, a)
}

// ListApplicantAssessments returns an applicant's assessments, newest first.
func (h *Handler) ListApplicantAssessments(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	applicantID := chi.URLParam(r, "id")
	annotateApplicant(ctx, applicantID)

	if h.repo == nil {
		writeError(w, http.StatusServiceUnavailable, "repository not available")
		return
	}

	days := defaultHistoryDays
	if raw := r.URL.Query().Get("days"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, "days must be a positive integer")
			return
		}
		days = n
	}
	since := time.Now().AddDate(0, 0, -days)

	list, err := h.repo.ListAssessmentsByApplicant(ctx, GetTenantID(ctx), applicantID, since)
	if err != nil {
		slog.Error("failed to list assessments", "applicant_id", applicantID, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to list assessments")
		return
	}
	if list == nil {
		list = []*domain.Assessment{}
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"applicantId": applicantID,
		"assessments": list,
		"count":       len(list),
	})
}

// ListTiers returns the risk tier catalogue, best tier first.
func (h *Handler) ListTiers(w http.ResponseWriter, r *http.Request) {
	tiers := h.pipeline.Engine().Tiers().Tiers()
	writeJSON(w, http.StatusOK, map[string]any{
		"tiers": tiers,
		"count": len(tiers),
	})
}

// ListSections returns the documented signals and sub-score weights of every section.
func (h *Handler) ListSections(w http.ResponseWriter, r *http.Request) {
	catalogue := h.pipeline.Engine().Registry().Catalogue()
	writeJSON(w, http.StatusOK, map[string]any{
		"sections": catalogue,
		"count":    len(catalogue),
	})
}

// ListPolicies returns the policy rules currently loaded in the engine.
func (h *Handler) ListPolicies(w http.ResponseWriter, r *http.Request) {
	policies := h.pipeline.Engine().Policies()
	if policies == nil {
		writeError(w, http.StatusServiceUnavailable, "policy engine not configured")
		return
	}

	loaded := policies.GetLoadedRules()
	writeJSON(w, http.StatusOK, map[string]any{
		"policies": loaded,
		"count":    len(loaded),
	})
}

// GetPolicy returns a loaded policy rule, falling back to the store for
// rules saved but not yet reloaded.
func (h *Handler) GetPolicy(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := chi.URLParam(r, "id")

	if policies := h.pipeline.Engine().Policies(); policies != nil {
		for _, rule := range policies.GetLoadedRules() {
			if rule.ID == id {
				writeJSON(w, http.StatusOK, rule)
				return
			}
		}
	}

	if h.repo != nil {
		rule, err := h.repo.GetPolicyRule(ctx, pipeline.GlobalTenantID, id)
		if err == nil {
			writeJSON(w, http.StatusOK, rule)
			return
		}
		if !errors.Is(err, repository.ErrNotFound) {
			slog.Error("failed to get policy rule", "id", id, "error", err)
			writeError(w, http.StatusInternalServerError, "failed to load policy")
			return
		}
	}

	writeError(w, http.StatusNotFound, "policy not found")
}

// CreatePolicyRequest is the request body for POST /policies.
type CreatePolicyRequest struct {
	ID          string              `json:"id"`
	Name        string              `json:"name"`
	Description string              `json:"description,omitempty"`
	Expression  string              `json:"expression"`
	Bands       []domain.PolicyBand `json:"bands"`
	Enabled     bool                `json:"enabled"`
}

// CreatePolicy validates a policy rule and saves it globally (tenant "*").
// Saved rules take effect after POST /policies/reload. Without a store the
// rule is loaded into the engine directly.
func (h *Handler) CreatePolicy(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	policies := h.pipeline.Engine().Policies()
	if policies == nil {
		writeError(w, http.StatusServiceUnavailable, "policy engine not configured")
		return
	}

	var req CreatePolicyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON request body")
		return
	}
	if req.ID == "" || req.Name == "" || req.Expression == "" {
		writeError(w, http.StatusBadRequest, "id, name, and expression are required")
		return
	}

	rule := &domain.PolicyRule{
		ID:          req.ID,
		TenantID:    pipeline.GlobalTenantID,
		Name:        req.Name,
		Description: req.Description,
		Version:     "1.0.0",
		Expression:  req.Expression,
		Bands:       req.Bands,
		Enabled:     req.Enabled,
	}

	if err := policies.ValidateRule(rule); err != nil {
		writeError(w, http.StatusBadRequest, "invalid CEL expression: "+err.Error())
		return
	}

	message := "Policy saved. Call POST /policies/reload to apply changes."
	if h.repo != nil {
		if err := h.repo.SavePolicyRule(ctx, pipeline.GlobalTenantID, rule); err != nil {
			slog.Error("failed to save policy rule", "id", rule.ID, "error", err)
			writeError(w, http.StatusInternalServerError, "failed to save policy")
			return
		}
	} else {
		if err := policies.LoadRule(rule); err != nil {
			writeError(w, http.StatusBadRequest, "invalid CEL expression: "+err.Error())
			return
		}
		message = "Policy loaded."
	}

	slog.Info("policy created", "id", rule.ID, "name", rule.Name)
	writeJSON(w, http.StatusCreated, map[string]any{
		"policy":  rule,
		"message": message,
	})
}

// DeletePolicy disables a stored policy rule. It stays loaded until the next reload.
func (h *Handler) DeletePolicy(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := chi.URLParam(r, "id")

	if h.repo == nil {
		writeError(w, http.StatusServiceUnavailable, "repository not available")
		return
	}

	if err := h.repo.DeletePolicyRule(ctx, pipeline.GlobalTenantID, id); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			writeError(w, http.StatusNotFound, "policy not found")
			return
		}
		slog.Error("failed to delete policy rule", "id", id, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to delete policy")
		return
	}

	slog.Info("policy deleted", "id", id)
	writeJSON(w, http.StatusOK, map[string]string{
		"message": "policy deleted. Call POST /policies/reload to apply changes.",
	})
}

// ReloadPolicies reloads every stored policy rule into the engine.
func (h *Handler) ReloadPolicies(w http.ResponseWriter, r *http.Request) {
	n, err := h.pipeline.ReloadPolicies(r.Context())
	if err != nil {
		if errors.Is(err, pipeline.ErrNoPolicyStore) {
			writeError(w, http.StatusServiceUnavailable, "repository not available")
			return
		}
		slog.Error("failed to reload policies", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to reload policies: "+err.Error())
		return
	}

	slog.Info("policies reloaded from database", "count", n)
	writeJSON(w, http.StatusOK, map[string]any{
		"message": "policies reloaded successfully",
		"count":   n,
	})
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
