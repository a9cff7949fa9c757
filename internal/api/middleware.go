package api

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/opensource-finance/harrier/internal/domain"
	"github.com/opensource-finance/harrier/internal/pipeline"
)

type contextKey string

const (
	TenantIDKey  contextKey = "tenantID"
	TraceIDKey   contextKey = "traceID"
	RequestIDKey contextKey = "requestID"
	stateKey     contextKey = "requestState"

	TenantIDHeader  = "X-Tenant-ID"
	RequestIDHeader = "X-Request-ID"
	TraceIDHeader   = "X-Trace-ID"
)

var (
	tracer = otel.Tracer("harrier-api")

	corsAllowHeaders  = strings.Join([]string{"Content-Type", TenantIDHeader, RequestIDHeader, TraceIDHeader, "Authorization"}, ", ")
	corsExposeHeaders = strings.Join([]string{RequestIDHeader, TraceIDHeader, CacheHeader}, ", ")
)

// requestState is filled in as a request moves through the middleware chain
// and the handlers, and read back once by LoggingMiddleware.
type requestState struct {
	requestID   string
	traceID     string
	tenantID    string
	applicantID string
	decision    string
	tier        string
	span        trace.Span
}

func stateFrom(ctx context.Context) *requestState {
	st, _ := ctx.Value(stateKey).(*requestState)
	return st
}

// annotateApplicant records the applicant a request is about.
func annotateApplicant(ctx context.Context, applicantID string) {
	st := stateFrom(ctx)
	if st == nil {
		return
	}
	st.applicantID = applicantID
	st.span.SetAttributes(attribute.String("applicant.id", applicantID))
}

// annotateAssessment records the outcome of an assessment on the request.
func annotateAssessment(ctx context.Context, a *domain.Assessment, cached bool) {
	st := stateFrom(ctx)
	if st == nil || a == nil {
		return
	}
	st.decision = a.Status
	st.tier = a.Composite.RiskTier
	st.span.SetAttributes(
		attribute.String("assessment.status", a.Status),
		attribute.String("assessment.tier", a.Composite.RiskTier),
		attribute.Int("assessment.credit_score", a.Composite.CreditScore),
		attribute.Bool("assessment.cached", cached),
	)
}

// TenantMiddleware requires X-Tenant-ID and scopes the request to it.
// The global policy tenant cannot be addressed directly.
func TenantMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		tenantID := strings.TrimSpace(r.Header.Get(TenantIDHeader))
		switch tenantID {
		case "":
			writeError(w, http.StatusBadRequest, "X-Tenant-ID header is required")
			return
		case pipeline.GlobalTenantID:
			writeError(w, http.StatusBadRequest, "X-Tenant-ID is reserved")
			return
		}

		if st := stateFrom(r.Context()); st != nil {
			st.tenantID = tenantID
			st.span.SetAttributes(attribute.String("tenant.id", tenantID))
		}
		ctx := context.WithValue(r.Context(), TenantIDKey, tenantID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// TracingMiddleware opens the request span and assigns request and trace IDs.
// Without an SDK provider the span has no trace ID, so the caller's
// X-Trace-ID is used, then the request ID.
func TracingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		st := &requestState{requestID: r.Header.Get(RequestIDHeader)}
		if st.requestID == "" {
			st.requestID = uuid.New().String()
		}

		ctx, span := tracer.Start(r.Context(), r.Method+" "+r.URL.Path,
			trace.WithSpanKind(trace.SpanKindServer),
			trace.WithAttributes(
				attribute.String("http.method", r.Method),
				attribute.String("http.path", r.URL.Path),
				attribute.String("request.id", st.requestID),
			),
		)
		defer span.End()
		st.span = span

		switch sc := span.SpanContext(); {
		case sc.TraceID().IsValid():
			st.traceID = sc.TraceID().String()
		case r.Header.Get(TraceIDHeader) != "":
			st.traceID = r.Header.Get(TraceIDHeader)
		default:
			st.traceID = st.requestID
		}

		ctx = context.WithValue(ctx, stateKey, st)
		ctx = context.WithValue(ctx, RequestIDKey, st.requestID)
		ctx = context.WithValue(ctx, TraceIDKey, st.traceID)

		w.Header().Set(RequestIDHeader, st.requestID)
		w.Header().Set(TraceIDHeader, st.traceID)

		rw := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
		next.ServeHTTP(rw, r.WithContext(ctx))

		span.SetAttributes(attribute.Int("http.status_code", rw.statusCode))
		if rw.statusCode >= http.StatusInternalServerError {
			span.SetStatus(codes.Error, http.StatusText(rw.statusCode))
		}
	})
}

// LoggingMiddleware emits one line per request. Server errors log at error
// level and client errors at warn.
func LoggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rw := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}

		next.ServeHTTP(rw, r)

		attrs := []any{
			"method", r.Method,
			"path", r.URL.Path,
			"status", rw.statusCode,
			"bytes", rw.written,
			"duration_ms", time.Since(start).Milliseconds(),
		}
		if st := stateFrom(r.Context()); st != nil {
			attrs = append(attrs, "request_id", st.requestID, "trace_id", st.traceID)
			if st.tenantID != "" {
				attrs = append(attrs, "tenant_id", st.tenantID)
			}
			if st.applicantID != "" {
				attrs = append(attrs, "applicant_id", st.applicantID)
			}
			if st.decision != "" {
				attrs = append(attrs, "decision", st.decision, "tier", st.tier)
			}
		}

		level := slog.LevelInfo
		switch {
		case rw.statusCode >= http.StatusInternalServerError:
			level = slog.LevelError
		case rw.statusCode >= http.StatusBadRequest:
			level = slog.LevelWarn
		}
		slog.Log(r.Context(), level, "http request", attrs...)
	})
}

// CORSMiddleware echoes the caller's origin and answers preflight requests.
func CORSMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		if origin == "" {
			origin = "*"
		}

		h := w.Header()
		h.Set("Access-Control-Allow-Origin", origin)
		h.Set("Access-Control-Allow-Methods", "GET, POST, DELETE, OPTIONS")
		h.Set("Access-Control-Allow-Headers", corsAllowHeaders)
		h.Set("Access-Control-Expose-Headers", corsExposeHeaders)
		h.Set("Access-Control-Max-Age", "86400")
		if origin != "*" {
			h.Set("Access-Control-Allow-Credentials", "true")
			h.Add("Vary", "Origin")
		}

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// RecoverMiddleware turns a handler panic into a 500.
func RecoverMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if err := recover(); err != nil {
				attrs := []any{"error", err, "path", r.URL.Path}
				if st := stateFrom(r.Context()); st != nil {
					attrs = append(attrs, "request_id", st.requestID)
				}
				slog.Error("panic recovered", attrs...)
				writeError(w, http.StatusInternalServerError, "internal server error")
			}
		}()
		next.ServeHTTP(w, r)
	})
}

type responseWriter struct {
	http.ResponseWriter
	statusCode  int
	written     int
	wroteHeader bool
}

func (rw *responseWriter) WriteHeader(code int) {
	if !rw.wroteHeader {
		rw.statusCode = code
		rw.wroteHeader = true
	}
	rw.ResponseWriter.WriteHeader(code)
}

func (rw *responseWriter) Write(b []byte) (int, error) {
	rw.wroteHeader = true
	n, err := rw.ResponseWriter.Write(b)
	rw.written += n
	return n, err
}

// GetTenantID returns the tenant set by TenantMiddleware.
func GetTenantID(ctx context.Context) string {
	v, _ := ctx.Value(TenantIDKey).(string)
	return v
}

// GetTraceID returns the trace ID set by TracingMiddleware.
func GetTraceID(ctx context.Context) string {
	v, _ := ctx.Value(TraceIDKey).(string)
	return v
}
