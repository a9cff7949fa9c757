// Package bus carries assessment events over Go channels or NATS.
package bus

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/opensource-finance/harrier/internal/domain"
)

// Metadata keys set on published messages.
const (
	MetaReplyTo = "reply_to"
	MetaTraceID = "trace_id"
)

// DefaultRequestTimeout bounds Request when the context has no deadline.
const DefaultRequestTimeout = 30 * time.Second

var (
	_ domain.EventBus = (*ChannelBus)(nil)
	_ domain.EventBus = (*NATSBus)(nil)
)

// New creates an event bus from configuration.
//   - channel: in-process (community tier)
//   - nats: NATS (pro tier)
func New(cfg domain.EventBusConfig) (domain.EventBus, error) {
	switch cfg.Type {
	case "channel", "":
		return NewChannelBus(cfg.ChannelBufferSize), nil

	case "nats":
		return NewNATSBus(cfg)

	default:
		return nil, fmt.Errorf("unsupported event bus type: %s", cfg.Type)
	}
}

// transport is what both buses implement below the public interface.
type transport interface {
	send(ctx context.Context, msg *domain.Message) error
	Subscribe(ctx context.Context, tenantID string, topic string, handler domain.MessageHandler) (domain.Subscription, error)
}

func newMessage(tenantID, topic string, payload []byte) *domain.Message {
	return &domain.Message{
		ID:        uuid.New().String(),
		TenantID:  tenantID,
		Topic:     topic,
		Payload:   payload,
		Metadata:  make(map[string]string),
		Timestamp: time.Now().UnixNano(),
	}
}

// request publishes with a private reply topic and waits for the first answer.
// Responders answer by publishing to msg.Metadata[MetaReplyTo].
func request(ctx context.Context, t transport, tenantID, topic string, payload []byte) ([]byte, error) {
	if tenantID == "" {
		return nil, fmt.Errorf("tenantID is required")
	}

	msg := newMessage(tenantID, topic, payload)
	replyTopic := topic + ".reply." + msg.ID
	msg.Metadata[MetaReplyTo] = replyTopic

	replyCh := make(chan []byte, 1)
	sub, err := t.Subscribe(ctx, tenantID, replyTopic, func(ctx context.Context, reply *domain.Message) error {
		select {
		case replyCh <- reply.Payload:
		default:
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	defer sub.Unsubscribe()

	if err := t.send(ctx, msg); err != nil {
		return nil, err
	}

	timer := time.NewTimer(DefaultRequestTimeout)
	defer timer.Stop()

	select {
	case reply := <-replyCh:
		return reply, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-timer.C:
		return nil, fmt.Errorf("request on %s timed out", topic)
	}
}

// PublishJSON encodes v and publishes it.
func PublishJSON(ctx context.Context, b domain.EventBus, tenantID, topic string, v any) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to encode %s payload: %w", topic, err)
	}
	return b.Publish(ctx, tenantID, topic, payload)
}
