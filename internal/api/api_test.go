package api

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/opensource-finance/harrier/internal/bus"
	"github.com/opensource-finance/harrier/internal/cache"
	"github.com/opensource-finance/harrier/internal/domain"
	"github.com/opensource-finance/harrier/internal/engine"
	"github.com/opensource-finance/harrier/internal/pipeline"
	"github.com/opensource-finance/harrier/internal/policy"
	"github.com/opensource-finance/harrier/internal/repository"
)

type testEnv struct {
	server *Server
	repo   *repository.SQLRepository
	bus    *bus.ChannelBus
}

// newTestEnv wires a server over temp-file SQLite, an LRU cache and a channel bus.
// withStore=false leaves repository and bus out.
func newTestEnv(t *testing.T, withStore bool) *testEnv {
	t.Helper()

	policies, err := policy.NewEngine(4)
	if err != nil {
		t.Fatalf("failed to create policy engine: %v", err)
	}
	e, err := engine.New(domain.DefaultScoringConfig(), engine.Options{Policies: policies})
	if err != nil {
		t.Fatalf("failed to create engine: %v", err)
	}

	cfg := domain.ServerConfig{Host: "localhost", Port: 8080, ReadTimeout: 30, WriteTimeout: 30}
	if !withStore {
		p := pipeline.New(e, nil, cache.NewLRUCache(100), nil, time.Minute)
		return &testEnv{server: NewServer(cfg, p, nil, nil, "test-v1")}
	}

	repo, err := repository.New(domain.RepositoryConfig{
		Driver:     "sqlite",
		SQLitePath: filepath.Join(t.TempDir(), "api.db"),
	})
	if err != nil {
		t.Fatalf("failed to open repository: %v", err)
	}
	t.Cleanup(func() { repo.Close() })

	b := bus.NewChannelBus(100)
	t.Cleanup(func() { b.Close() })

	p := pipeline.New(e, repo, cache.NewLRUCache(100), b, time.Minute)
	return &testEnv{
		server: NewServer(cfg, p, repo, b, "test-v1"),
		repo:   repo,
		bus:    b,
	}
}

func (env *testEnv) do(method, path, tenantID string, body any) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	switch v := body.(type) {
	case nil:
	case string:
		buf.WriteString(v)
	default:
		json.NewEncoder(&buf).Encode(v)
	}

	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if tenantID != "" {
		req.Header.Set(TenantIDHeader, tenantID)
	}

	rr := httptest.NewRecorder()
	env.server.Router().ServeHTTP(rr, req)
	return rr
}

func applicationBody() map[string]any {
	return map[string]any{
		"applicantId": "applicant-001",
		"transactions": []map[string]any{
			{"date": "2024-05-01", "deposit": "75000.00", "narration": "SALARY ACME"},
			{"date": "2024-05-03", "withdrawal": "20000.00", "narration": "RENT"},
			{"date": "2024-06-01", "deposit": "75000.00", "narration": "SALARY ACME"},
			{"date": "2024-06-03", "withdrawal": "20000.00", "narration": "RENT"},
		},
		"signals": map[string]any{
			"identity": map[string]any{"pan_verified": true},
		},
		"financials": map[string]any{
			"monthlySurplus": "40000",
		},
	}
}

func decode[T any](t *testing.T, rr *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(rr.Body.Bytes(), &v); err != nil {
		t.Fatalf("failed to parse response %q: %v", rr.Body.String(), err)
	}
	return v
}

func TestAssessEndpoint(t *testing.T) {
	env := newTestEnv(t, true)

	t.Run("SuccessfulAssessment", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/assess", bytes.NewBufferString(mustJSON(t, applicationBody())))
		req.Header.Set(TenantIDHeader, "tenant-001")
		req.Header.Set(TraceIDHeader, "trace-abc")
		rr := httptest.NewRecorder()
		env.server.Router().ServeHTTP(rr, req)

		if rr.Code != http.StatusOK {
			t.Fatalf("expected status 200, got %d: %s", rr.Code, rr.Body.String())
		}
		if rr.Header().Get(CacheHeader) != "MISS" {
			t.Errorf("expected cache MISS, got %q", rr.Header().Get(CacheHeader))
		}

		a := decode[domain.Assessment](t, rr)
		if a.ID == "" || a.TenantID != "tenant-001" || a.ApplicantID != "applicant-001" {
			t.Errorf("unexpected assessment identity %s/%s/%s", a.ID, a.TenantID, a.ApplicantID)
		}
		if a.Composite.CreditScore < 300 || a.Composite.CreditScore > 900 {
			t.Errorf("credit score %d out of range", a.Composite.CreditScore)
		}
		if a.Ledger.Accepted != 4 {
			t.Errorf("expected 4 accepted transactions, got %d", a.Ledger.Accepted)
		}
		if a.Metadata.TraceID != "trace-abc" {
			t.Errorf("expected trace-abc, got %s", a.Metadata.TraceID)
		}
		if rr.Header().Get(RequestIDHeader) == "" {
			t.Error("expected X-Request-ID header")
		}
	})

	t.Run("IdenticalBodyIsCached", func(t *testing.T) {
		first := env.do(http.MethodPost, "/assess", "tenant-002", applicationBody())
		second := env.do(http.MethodPost, "/assess", "tenant-002", applicationBody())

		if second.Header().Get(CacheHeader) != "HIT" {
			t.Errorf("expected cache HIT, got %q", second.Header().Get(CacheHeader))
		}
		if decode[domain.Assessment](t, first).ID != decode[domain.Assessment](t, second).ID {
			t.Error("cached response should return the same assessment")
		}
	})

	t.Run("EmptyStatementIsNeutral", func(t *testing.T) {
		rr := env.do(http.MethodPost, "/assess", "tenant-001", map[string]any{"applicantId": "applicant-empty"})
		if rr.Code != http.StatusOK {
			t.Fatalf("expected status 200, got %d: %s", rr.Code, rr.Body.String())
		}
		a := decode[domain.Assessment](t, rr)
		if a.Composite.CreditScore != 600 || a.Composite.RiskTier != "STANDARD" {
			t.Errorf("expected neutral 600/STANDARD, got %d/%s", a.Composite.CreditScore, a.Composite.RiskTier)
		}
		if a.Ledger.Status != "EMPTY_TRANSACTION_SET" {
			t.Errorf("expected EMPTY_TRANSACTION_SET, got %s", a.Ledger.Status)
		}
	})

	tests := []struct {
		name     string
		tenantID string
		body     any
	}{
		{"MissingTenantID", "", applicationBody()},
		{"ReservedTenantID", "*", applicationBody()},
		{"InvalidJSON", "tenant-001", "not-json"},
		{"MissingApplicantID", "tenant-001", map[string]any{"transactions": []any{}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := env.do(http.MethodPost, "/assess", tt.tenantID, tt.body)
			if rr.Code != http.StatusBadRequest {
				t.Errorf("expected status 400, got %d", rr.Code)
			}
		})
	}
}

func mustJSON(t *testing.T, v any) string {
	t.Helper()
	b, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("marshal failed: %v", err)
	}
	return string(b)
}

func TestAssessAsyncEndpoint(t *testing.T) {
	t.Run("Queued", func(t *testing.T) {
		env := newTestEnv(t, true)

		got := make(chan *domain.Message, 1)
		env.bus.Subscribe(context.Background(), "tenant-001", domain.TopicAssessmentRequested, func(ctx context.Context, msg *domain.Message) error {
			got <- msg
			return nil
		})

		rr := env.do(http.MethodPost, "/assess/async", "tenant-001", applicationBody())
		if rr.Code != http.StatusAccepted {
			t.Fatalf("expected status 202, got %d: %s", rr.Code, rr.Body.String())
		}
		resp := decode[map[string]string](t, rr)

		select {
		case msg := <-got:
			var req struct {
				RequestID   string              `json:"requestId"`
				TenantID    string              `json:"tenantId"`
				Application *domain.Application `json:"application"`
			}
			if err := json.Unmarshal(msg.Payload, &req); err != nil {
				t.Fatalf("bad payload: %v", err)
			}
			if req.RequestID != resp["requestId"] || req.TenantID != "tenant-001" {
				t.Errorf("queued request mismatch: %+v vs %v", req, resp)
			}
			if req.Application == nil || len(req.Application.Transactions) != 4 {
				t.Error("application not carried in request")
			}
		case <-time.After(time.Second):
			t.Fatal("timeout waiting for queued request")
		}
	})

	t.Run("NoBus", func(t *testing.T) {
		env := newTestEnv(t, false)
		rr := env.do(http.MethodPost, "/assess/async", "tenant-001", applicationBody())
		if rr.Code != http.StatusServiceUnavailable {
			t.Errorf("expected status 503, got %d", rr.Code)
		}
	})
}

func TestAssessmentRetrieval(t *testing.T) {
	env := newTestEnv(t, true)

	created := decode[domain.Assessment](t, env.do(http.MethodPost, "/assess", "tenant-001", applicationBody()))

	t.Run("GetAssessment", func(t *testing.T) {
		rr := env.do(http.MethodGet, "/assessments/"+created.ID, "tenant-001", nil)
		if rr.Code != http.StatusOK {
			t.Fatalf("expected status 200, got %d", rr.Code)
		}
		if got := decode[domain.Assessment](t, rr); got.ID != created.ID {
			t.Errorf("expected %s, got %s", created.ID, got.ID)
		}
	})

	t.Run("OtherTenantNotFound", func(t *testing.T) {
		rr := env.do(http.MethodGet, "/assessments/"+created.ID, "tenant-999", nil)
		if rr.Code != http.StatusNotFound {
			t.Errorf("expected status 404, got %d", rr.Code)
		}
	})

	t.Run("UnknownID", func(t *testing.T) {
		rr := env.do(http.MethodGet, "/assessments/does-not-exist", "tenant-001", nil)
		if rr.Code != http.StatusNotFound {
			t.Errorf("expected status 404, got %d", rr.Code)
		}
	})

	t.Run("ApplicantHistory", func(t *testing.T) {
		rr := env.do(http.MethodGet, "/applicants/applicant-001/assessments?days=30", "tenant-001", nil)
		if rr.Code != http.StatusOK {
			t.Fatalf("expected status 200, got %d", rr.Code)
		}
		resp := decode[struct {
			Count       int                  `json:"count"`
			Assessments []*domain.Assessment `json:"assessments"`
		}](t, rr)
		if resp.Count != 1 || resp.Assessments[0].ID != created.ID {
			t.Errorf("unexpected history %+v", resp)
		}
	})

	t.Run("InvalidDays", func(t *testing.T) {
		rr := env.do(http.MethodGet, "/applicants/applicant-001/assessments?days=abc", "tenant-001", nil)
		if rr.Code != http.StatusBadRequest {
			t.Errorf("expected status 400, got %d", rr.Code)
		}
	})

	t.Run("NoRepository", func(t *testing.T) {
		bare := newTestEnv(t, false)
		rr := bare.do(http.MethodGet, "/assessments/"+created.ID, "tenant-001", nil)
		if rr.Code != http.StatusServiceUnavailable {
			t.Errorf("expected status 503, got %d", rr.Code)
		}
	})
}

func TestCatalogueEndpoints(t *testing.T) {
	env := newTestEnv(t, false)

	t.Run("Tiers", func(t *testing.T) {
		rr := env.do(http.MethodGet, "/tiers", "", nil)
		if rr.Code != http.StatusOK {
			t.Fatalf("expected status 200, got %d", rr.Code)
		}
		resp := decode[struct {
			Tiers []domain.RiskTier `json:"tiers"`
		}](t, rr)
		if len(resp.Tiers) != 5 || resp.Tiers[0].Name != "PRIME" {
			t.Errorf("unexpected tiers %+v", resp.Tiers)
		}
	})

	t.Run("Sections", func(t *testing.T) {
		rr := env.do(http.MethodGet, "/sections", "", nil)
		if rr.Code != http.StatusOK {
			t.Fatalf("expected status 200, got %d", rr.Code)
		}
		resp := decode[struct {
			Count int `json:"count"`
		}](t, rr)
		if resp.Count != len(domain.AllSections()) {
			t.Errorf("expected %d sections, got %d", len(domain.AllSections()), resp.Count)
		}
	})
}

func TestPolicyEndpoints(t *testing.T) {
	env := newTestEnv(t, true)

	one := 1.0
	policy := CreatePolicyRequest{
		ID:         "anomaly-review",
		Name:       "Anomaly review",
		Expression: "anomaly.total > 0.2",
		Bands: []domain.PolicyBand{
			{UpperLimit: &one, Outcome: domain.OutcomePass},
			{LowerLimit: &one, Outcome: domain.OutcomeReview, Reason: "statement anomalies"},
		},
		Enabled: true,
	}

	t.Run("Create", func(t *testing.T) {
		rr := env.do(http.MethodPost, "/policies", "tenant-001", policy)
		if rr.Code != http.StatusCreated {
			t.Fatalf("expected status 201, got %d: %s", rr.Code, rr.Body.String())
		}
	})

	t.Run("InvalidExpression", func(t *testing.T) {
		bad := policy
		bad.ID = "bad"
		bad.Expression = "anomaly.total >"
		rr := env.do(http.MethodPost, "/policies", "tenant-001", bad)
		if rr.Code != http.StatusBadRequest {
			t.Errorf("expected status 400, got %d", rr.Code)
		}
	})

	t.Run("MissingFields", func(t *testing.T) {
		rr := env.do(http.MethodPost, "/policies", "tenant-001", CreatePolicyRequest{ID: "x"})
		if rr.Code != http.StatusBadRequest {
			t.Errorf("expected status 400, got %d", rr.Code)
		}
	})

	t.Run("GetBeforeReload", func(t *testing.T) {
		rr := env.do(http.MethodGet, "/policies/anomaly-review", "tenant-001", nil)
		if rr.Code != http.StatusOK {
			t.Errorf("expected stored policy, got %d", rr.Code)
		}
		list := decode[struct {
			Count int `json:"count"`
		}](t, env.do(http.MethodGet, "/policies", "tenant-001", nil))
		if list.Count != 0 {
			t.Errorf("expected nothing loaded before reload, got %d", list.Count)
		}
	})

	t.Run("Reload", func(t *testing.T) {
		rr := env.do(http.MethodPost, "/policies/reload", "tenant-001", nil)
		if rr.Code != http.StatusOK {
			t.Fatalf("expected status 200, got %d: %s", rr.Code, rr.Body.String())
		}
		list := decode[struct {
			Count int `json:"count"`
		}](t, env.do(http.MethodGet, "/policies", "tenant-001", nil))
		if list.Count != 1 {
			t.Errorf("expected 1 loaded policy, got %d", list.Count)
		}

		a := decode[domain.Assessment](t, env.do(http.MethodPost, "/assess", "tenant-003", applicationBody()))
		if len(a.PolicyResults) != 1 || a.PolicyResults[0].RuleID != "anomaly-review" {
			t.Errorf("expected policy to run, got %+v", a.PolicyResults)
		}
	})

	t.Run("Delete", func(t *testing.T) {
		rr := env.do(http.MethodDelete, "/policies/anomaly-review", "tenant-001", nil)
		if rr.Code != http.StatusOK {
			t.Fatalf("expected status 200, got %d", rr.Code)
		}
		rr = env.do(http.MethodDelete, "/policies/anomaly-review", "tenant-001", nil)
		if rr.Code != http.StatusNotFound {
			t.Errorf("expected status 404 on second delete, got %d", rr.Code)
		}

		env.do(http.MethodPost, "/policies/reload", "tenant-001", nil)
		rr = env.do(http.MethodGet, "/policies/anomaly-review", "tenant-001", nil)
		if rr.Code != http.StatusNotFound {
			t.Errorf("expected status 404 after reload, got %d", rr.Code)
		}
	})

	t.Run("ReloadWithoutStore", func(t *testing.T) {
		bare := newTestEnv(t, false)
		rr := bare.do(http.MethodPost, "/policies/reload", "tenant-001", nil)
		if rr.Code != http.StatusServiceUnavailable {
			t.Errorf("expected status 503, got %d", rr.Code)
		}
	})

	t.Run("CreateWithoutStoreLoadsDirectly", func(t *testing.T) {
		bare := newTestEnv(t, false)
		rr := bare.do(http.MethodPost, "/policies", "tenant-001", policy)
		if rr.Code != http.StatusCreated {
			t.Fatalf("expected status 201, got %d", rr.Code)
		}
		rr = bare.do(http.MethodGet, "/policies/anomaly-review", "tenant-001", nil)
		if rr.Code != http.StatusOK {
			t.Errorf("expected loaded policy, got %d", rr.Code)
		}
	})
}

func TestHealthEndpoints(t *testing.T) {
	env := newTestEnv(t, true)

	t.Run("Healthy", func(t *testing.T) {
		rr := env.do(http.MethodGet, "/health", "", nil)
		resp := decode[map[string]any](t, rr)
		if resp["status"] != "healthy" || resp["version"] != "test-v1" {
			t.Errorf("unexpected health %v", resp)
		}
	})

	t.Run("Ready", func(t *testing.T) {
		rr := env.do(http.MethodGet, "/ready", "", nil)
		if rr.Code != http.StatusOK {
			t.Errorf("expected status 200, got %d", rr.Code)
		}
	})

	t.Run("DegradedWhenBusClosed", func(t *testing.T) {
		env.bus.Close()
		resp := decode[map[string]any](t, env.do(http.MethodGet, "/health", "", nil))
		if resp["status"] != "degraded" {
			t.Errorf("expected degraded, got %v", resp["status"])
		}
		components, _ := resp["components"].(map[string]any)
		if _, ok := components["bus"]; !ok {
			t.Errorf("expected bus failure, got %v", components)
		}
	})
}

func TestMiddleware(t *testing.T) {
	t.Run("CORSPreflight", func(t *testing.T) {
		env := newTestEnv(t, false)
		req := httptest.NewRequest(http.MethodOptions, "/assess", nil)
		req.Header.Set("Origin", "https://console.example.com")
		rr := httptest.NewRecorder()
		env.server.Router().ServeHTTP(rr, req)

		if rr.Code != http.StatusNoContent {
			t.Errorf("expected status 204, got %d", rr.Code)
		}
		if rr.Header().Get("Access-Control-Allow-Origin") != "https://console.example.com" {
			t.Errorf("unexpected allow origin %q", rr.Header().Get("Access-Control-Allow-Origin"))
		}
		if !strings.Contains(rr.Header().Get("Access-Control-Expose-Headers"), CacheHeader) {
			t.Errorf("expected %s to be exposed, got %q", CacheHeader, rr.Header().Get("Access-Control-Expose-Headers"))
		}
	})

	t.Run("Recover", func(t *testing.T) {
		h := RecoverMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			panic("boom")
		}))
		rr := httptest.NewRecorder()
		h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/", nil))
		if rr.Code != http.StatusInternalServerError {
			t.Errorf("expected status 500, got %d", rr.Code)
		}
	})

	t.Run("TenantContext", func(t *testing.T) {
		var got string
		h := TenantMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			got = GetTenantID(r.Context())
		}))
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set(TenantIDHeader, "tenant-ctx")
		h.ServeHTTP(httptest.NewRecorder(), req)
		if got != "tenant-ctx" {
			t.Errorf("expected tenant-ctx, got %q", got)
		}
	})
}

func TestAssessEpochDates(t *testing.T) {
	env := newTestEnv(t, false)
	body := `{"applicantId":"applicant-epoch","transactions":[
		{"date":1704412800,"amount":5000,"narration":"SALARY ACME"},
		{"date":1707091200000,"amount":-1200,"narration":"RENT"}]}`

	rr := env.do(http.MethodPost, "/assess", "tenant-epoch", body)
	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", rr.Code, rr.Body.String())
	}

	a := decode[domain.Assessment](t, rr)
	if a.Ledger.Status != "OK" || a.Ledger.Accepted != 2 || a.Ledger.Dropped != 0 {
		t.Errorf("expected both epoch-dated records accepted, got %+v", a.Ledger)
	}
}

// captureLogs routes the default logger into a buffer for the test.
func captureLogs(t *testing.T) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	prev := slog.Default()
	slog.SetDefault(slog.New(slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug})))
	t.Cleanup(func() { slog.SetDefault(prev) })
	return &buf
}

func requestLogLine(t *testing.T, buf *bytes.Buffer) map[string]any {
	t.Helper()
	for _, line := range strings.Split(strings.TrimSpace(buf.String()), "\n") {
		var entry map[string]any
		if err := json.Unmarshal([]byte(line), &entry); err != nil {
			continue
		}
		if entry["msg"] == "http request" {
			return entry
		}
	}
	t.Fatalf("no request log line in %q", buf.String())
	return nil
}

func TestRequestLogging(t *testing.T) {
	t.Run("AssessmentAttributes", func(t *testing.T) {
		env := newTestEnv(t, false)
		buf := captureLogs(t)

		rr := env.do(http.MethodPost, "/assess", "tenant-log", applicationBody())
		if rr.Code != http.StatusOK {
			t.Fatalf("expected status 200, got %d", rr.Code)
		}

		entry := requestLogLine(t, buf)
		if entry["level"] != "INFO" {
			t.Errorf("expected INFO, got %v", entry["level"])
		}
		if entry["tenant_id"] != "tenant-log" {
			t.Errorf("expected tenant_id tenant-log, got %v", entry["tenant_id"])
		}
		if entry["applicant_id"] != "applicant-001" {
			t.Errorf("expected applicant_id applicant-001, got %v", entry["applicant_id"])
		}
		if entry["decision"] == nil || entry["tier"] == nil {
			t.Errorf("expected decision and tier, got %v", entry)
		}
		if entry["request_id"] != rr.Header().Get(RequestIDHeader) {
			t.Errorf("log request_id %v does not match header %q", entry["request_id"], rr.Header().Get(RequestIDHeader))
		}
		if n, _ := entry["bytes"].(float64); int(n) != rr.Body.Len() {
			t.Errorf("expected bytes %d, got %v", rr.Body.Len(), entry["bytes"])
		}
	})

	t.Run("ClientErrorLogsWarn", func(t *testing.T) {
		env := newTestEnv(t, false)
		buf := captureLogs(t)

		rr := env.do(http.MethodPost, "/assess", "", applicationBody())
		if rr.Code != http.StatusBadRequest {
			t.Fatalf("expected status 400, got %d", rr.Code)
		}

		entry := requestLogLine(t, buf)
		if entry["level"] != "WARN" {
			t.Errorf("expected WARN, got %v", entry["level"])
		}
		if _, ok := entry["tenant_id"]; ok {
			t.Errorf("rejected request should carry no tenant, got %v", entry["tenant_id"])
		}
	})

	t.Run("ReservedTenant", func(t *testing.T) {
		env := newTestEnv(t, false)
		rr := env.do(http.MethodPost, "/assess", pipeline.GlobalTenantID, applicationBody())
		if rr.Code != http.StatusBadRequest {
			t.Errorf("expected status 400, got %d", rr.Code)
		}
	})
}
