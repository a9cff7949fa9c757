// Package worker consumes assessment requests from the EventBus for the Pro tier.
package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/opensource-finance/harrier/internal/bus"
	"github.com/opensource-finance/harrier/internal/domain"
	"github.com/opensource-finance/harrier/internal/pipeline"
)

// GlobalTenantID is the subscription tenant used when no tenants are configured.
const GlobalTenantID = "_global"

// Worker runs assessment requests taken off the EventBus.
type Worker struct {
	bus      domain.EventBus
	pipeline *pipeline.Pipeline

	mu            sync.Mutex
	subscriptions []domain.Subscription
	processed     atomic.Int64
	failed        atomic.Int64

	ctx    context.Context
	cancel context.CancelFunc
}

// Config holds worker configuration.
type Config struct {
	// TenantIDs is the list of tenants to serve (empty = a single global subscription)
	TenantIDs []string
}

// AssessmentRequest is the payload of TopicAssessmentRequested.
type AssessmentRequest struct {
	RequestID   string              `json:"requestId,omitempty"`
	TenantID    string              `json:"tenantId,omitempty"`
	TraceID     string              `json:"traceId,omitempty"`
	Application *domain.Application `json:"application"`
}

// AssessmentReply answers a request that carried a reply topic.
type AssessmentReply struct {
	RequestID  string             `json:"requestId,omitempty"`
	Assessment *domain.Assessment `json:"assessment,omitempty"`
	Cached     bool               `json:"cached"`
	Error      string             `json:"error,omitempty"`
}

// NewWorker creates a new async worker.
func NewWorker(eventBus domain.EventBus, p *pipeline.Pipeline) *Worker {
	ctx, cancel := context.WithCancel(context.Background())
	return &Worker{
		bus:      eventBus,
		pipeline: p,
		ctx:      ctx,
		cancel:   cancel,
	}
}

// Start subscribes to assessment requests for the given tenants.
func (w *Worker) Start(cfg Config) error {
	tenants := cfg.TenantIDs
	if len(tenants) == 0 {
		tenants = []string{GlobalTenantID}
	}

	started := 0
	for _, tenantID := range tenants {
		sub, err := w.bus.Subscribe(w.ctx, tenantID, domain.TopicAssessmentRequested, w.handleMessage)
		if err != nil {
			slog.Error("failed to start worker for tenant",
				"tenant_id", tenantID,
				"error", err,
			)
			continue
		}
		w.mu.Lock()
		w.subscriptions = append(w.subscriptions, sub)
		w.mu.Unlock()
		started++
	}
	if started == 0 {
		return fmt.Errorf("no worker subscriptions started")
	}

	slog.Info("workers started",
		"tenant_count", started,
		"topic", domain.TopicAssessmentRequested,
	)
	return nil
}

// handleMessage runs one request. The payload tenant wins over the
// subscription tenant so a global worker can serve every tenant.
func (w *Worker) handleMessage(ctx context.Context, msg *domain.Message) error {
	start := time.Now()

	var req AssessmentRequest
	if err := json.Unmarshal(msg.Payload, &req); err != nil {
		w.failed.Add(1)
		slog.Error("failed to parse assessment request",
			"message_id", msg.ID,
			"error", err,
		)
		w.reply(ctx, msg, &AssessmentReply{Error: "invalid request payload"})
		return err
	}

	tenantID := req.TenantID
	if tenantID == "" {
		tenantID = msg.TenantID
	}
	traceID := req.TraceID
	if traceID == "" {
		traceID = msg.Metadata[bus.MetaTraceID]
	}
	if traceID == "" {
		traceID = msg.ID
	}

	a, cached, err := w.pipeline.Run(ctx, tenantID, traceID, req.Application)
	if err != nil {
		w.failed.Add(1)
		slog.Error("assessment request failed",
			"request_id", req.RequestID,
			"tenant_id", tenantID,
			"error", err,
		)
		w.reply(ctx, msg, &AssessmentReply{RequestID: req.RequestID, Error: err.Error()})
		return err
	}
	w.processed.Add(1)

	w.reply(ctx, msg, &AssessmentReply{RequestID: req.RequestID, Assessment: a, Cached: cached})

	slog.Debug("assessment request processed",
		"request_id", req.RequestID,
		"assessment_id", a.ID,
		"tenant_id", tenantID,
		"cached", cached,
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return nil
}

func (w *Worker) reply(ctx context.Context, msg *domain.Message, r *AssessmentReply) {
	replyTo := msg.Metadata[bus.MetaReplyTo]
	if replyTo == "" {
		return
	}
	if err := bus.PublishJSON(ctx, w.bus, msg.TenantID, replyTo, r); err != nil {
		slog.Error("failed to publish reply",
			"message_id", msg.ID,
			"reply_to", replyTo,
			"error", err,
		)
	}
}

// Stop unsubscribes every worker.
func (w *Worker) Stop() error {
	w.cancel()

	w.mu.Lock()
	defer w.mu.Unlock()
	for _, sub := range w.subscriptions {
		if err := sub.Unsubscribe(); err != nil {
			slog.Error("failed to unsubscribe",
				"topic", sub.Topic(),
				"error", err,
			)
		}
	}
	w.subscriptions = nil

	slog.Info("workers stopped")
	return nil
}

// Stats returns worker statistics.
type Stats struct {
	SubscriptionCount int      `json:"subscriptionCount"`
	Topics            []string `json:"topics"`
	Processed         int64    `json:"processed"`
	Failed            int64    `json:"failed"`
}

// GetStats returns current worker statistics.
func (w *Worker) GetStats() Stats {
	w.mu.Lock()
	defer w.mu.Unlock()

	topics := make([]string, len(w.subscriptions))
	for i, sub := range w.subscriptions {
		topics[i] = sub.Topic()
	}
	return Stats{
		SubscriptionCount: len(w.subscriptions),
		Topics:            topics,
		Processed:         w.processed.Load(),
		Failed:            w.failed.Load(),
	}
}
