package bus

import (
	"context"
	"encoding/json"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/opensource-finance/harrier/internal/domain"
)

func waitFor(t *testing.T, ch <-chan *domain.Message) *domain.Message {
	t.Helper()
	select {
	case msg := <-ch:
		return msg
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for message")
		return nil
	}
}

func collect(ch chan *domain.Message) domain.MessageHandler {
	return func(ctx context.Context, msg *domain.Message) error {
		ch <- msg
		return nil
	}
}

func TestChannelBus(t *testing.T) {
	bus := NewChannelBus(100)
	defer bus.Close()

	ctx := context.Background()
	tenantID := "tenant-001"

	t.Run("PublishAndSubscribe", func(t *testing.T) {
		got := make(chan *domain.Message, 1)
		if _, err := bus.Subscribe(ctx, tenantID, domain.TopicAssessmentCompleted, collect(got)); err != nil {
			t.Fatalf("subscribe failed: %v", err)
		}

		if err := bus.Publish(ctx, tenantID, domain.TopicAssessmentCompleted, []byte("hello")); err != nil {
			t.Fatalf("publish failed: %v", err)
		}

		msg := waitFor(t, got)
		if string(msg.Payload) != "hello" {
			t.Errorf("expected payload 'hello', got '%s'", string(msg.Payload))
		}
		if msg.TenantID != tenantID || msg.ID == "" || msg.Timestamp == 0 {
			t.Errorf("incomplete envelope %+v", msg)
		}
	})

	t.Run("TenantIsolation", func(t *testing.T) {
		got1 := make(chan *domain.Message, 1)
		got2 := make(chan *domain.Message, 1)
		bus.Subscribe(ctx, "tenant-a", "isolation.topic", collect(got1))
		bus.Subscribe(ctx, "tenant-b", "isolation.topic", collect(got2))

		bus.Publish(ctx, "tenant-a", "isolation.topic", []byte("msg1"))
		waitFor(t, got1)

		select {
		case <-got2:
			t.Error("tenant-b received tenant-a's message")
		case <-time.After(50 * time.Millisecond):
		}
	})

	t.Run("RequiresTenantID", func(t *testing.T) {
		if err := bus.Publish(ctx, "", "topic", []byte("data")); err == nil {
			t.Error("expected error for empty tenantID")
		}
		if _, err := bus.Subscribe(ctx, "", "topic", collect(make(chan *domain.Message))); err == nil {
			t.Error("expected error for empty tenantID")
		}
	})

	t.Run("Unsubscribe", func(t *testing.T) {
		got := make(chan *domain.Message, 2)
		sub, _ := bus.Subscribe(ctx, tenantID, "unsub.topic", collect(got))

		bus.Publish(ctx, tenantID, "unsub.topic", []byte("msg1"))
		waitFor(t, got)

		sub.Unsubscribe()
		bus.Publish(ctx, tenantID, "unsub.topic", []byte("msg2"))

		select {
		case <-got:
			t.Error("received a message after unsubscribe")
		case <-time.After(50 * time.Millisecond):
		}
	})

	t.Run("MultipleSubscribers", func(t *testing.T) {
		got1 := make(chan *domain.Message, 1)
		got2 := make(chan *domain.Message, 1)
		bus.Subscribe(ctx, tenantID, "multi.topic", collect(got1))
		bus.Subscribe(ctx, tenantID, "multi.topic", collect(got2))

		bus.Publish(ctx, tenantID, "multi.topic", []byte("broadcast"))

		waitFor(t, got1)
		waitFor(t, got2)
	})

	t.Run("SubscriptionTopic", func(t *testing.T) {
		sub, _ := bus.Subscribe(ctx, tenantID, "my.topic", collect(make(chan *domain.Message, 1)))
		if sub.Topic() != "my.topic" {
			t.Errorf("expected topic 'my.topic', got '%s'", sub.Topic())
		}
	})

	t.Run("Ping", func(t *testing.T) {
		if err := bus.Ping(ctx); err != nil {
			t.Errorf("ping failed: %v", err)
		}
	})
}

func TestChannelBusRequest(t *testing.T) {
	bus := NewChannelBus(10)
	defer bus.Close()
	ctx := context.Background()

	_, err := bus.Subscribe(ctx, "tenant-1", domain.TopicAssessmentRequested, func(ctx context.Context, msg *domain.Message) error {
		return bus.Publish(ctx, msg.TenantID, msg.Metadata[MetaReplyTo], append([]byte("re: "), msg.Payload...))
	})
	if err != nil {
		t.Fatalf("subscribe failed: %v", err)
	}

	reply, err := bus.Request(ctx, "tenant-1", domain.TopicAssessmentRequested, []byte("ping"))
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	if string(reply) != "re: ping" {
		t.Errorf("unexpected reply %q", reply)
	}

	t.Run("ContextDeadline", func(t *testing.T) {
		short, cancel := context.WithTimeout(ctx, 20*time.Millisecond)
		defer cancel()
		if _, err := bus.Request(short, "tenant-1", "nobody.listens", nil); err == nil {
			t.Error("expected timeout without a responder")
		}
	})
}

func TestChannelBusDropsWhenFull(t *testing.T) {
	bus := NewChannelBus(1)
	defer bus.Close()
	ctx := context.Background()

	release := make(chan struct{})
	started := make(chan struct{}, 1)
	bus.Subscribe(ctx, "tenant-1", "slow.topic", func(ctx context.Context, msg *domain.Message) error {
		started <- struct{}{}
		<-release
		return nil
	})

	bus.Publish(ctx, "tenant-1", "slow.topic", []byte("1"))
	<-started
	bus.Publish(ctx, "tenant-1", "slow.topic", []byte("2")) // fills the buffer
	bus.Publish(ctx, "tenant-1", "slow.topic", []byte("3")) // dropped
	close(release)

	if bus.Dropped() != 1 {
		t.Errorf("expected 1 dropped message, got %d", bus.Dropped())
	}
}

func TestChannelBusClose(t *testing.T) {
	bus := NewChannelBus(100)
	ctx := context.Background()

	bus.Subscribe(ctx, "tenant-001", "close.topic", collect(make(chan *domain.Message, 1)))

	if err := bus.Close(); err != nil {
		t.Errorf("close failed: %v", err)
	}
	if err := bus.Publish(ctx, "tenant-001", "close.topic", []byte("data")); err == nil {
		t.Error("expected error after close")
	}
	if err := bus.Ping(ctx); err == nil {
		t.Error("expected ping error after close")
	}
	if err := bus.Close(); err != nil {
		t.Errorf("second close should be a no-op, got %v", err)
	}
}

func TestPublishJSON(t *testing.T) {
	bus := NewChannelBus(10)
	defer bus.Close()
	ctx := context.Background()

	got := make(chan *domain.Message, 1)
	bus.Subscribe(ctx, "tenant-1", domain.TopicAssessmentDeclined, collect(got))

	a := &domain.Assessment{ID: "as-1", Status: domain.StatusDeclined}
	if err := PublishJSON(ctx, bus, "tenant-1", domain.TopicAssessmentDeclined, a); err != nil {
		t.Fatalf("PublishJSON failed: %v", err)
	}

	var decoded domain.Assessment
	if err := json.Unmarshal(waitFor(t, got).Payload, &decoded); err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	if decoded.ID != "as-1" || decoded.Status != domain.StatusDeclined {
		t.Errorf("unexpected payload %+v", decoded)
	}
}

func TestSubject(t *testing.T) {
	if got := Subject("acme", domain.TopicAssessmentCompleted); got != "harrier.assessment.completed.acme" {
		t.Errorf("unexpected subject %s", got)
	}
}

func TestNewBus(t *testing.T) {
	t.Run("ChannelType", func(t *testing.T) {
		bus, err := New(domain.EventBusConfig{Type: "channel", ChannelBufferSize: 50})
		if err != nil {
			t.Fatalf("New failed: %v", err)
		}
		defer bus.Close()

		if _, ok := bus.(*ChannelBus); !ok {
			t.Error("expected ChannelBus for channel type")
		}
	})

	t.Run("UnsupportedType", func(t *testing.T) {
		if _, err := New(domain.EventBusConfig{Type: "kafka"}); err == nil {
			t.Error("expected error for unsupported type")
		}
	})
}

func TestChannelBusHighLoad(t *testing.T) {
	bus := NewChannelBus(1000)
	defer bus.Close()

	ctx := context.Background()
	const messageCount = 100

	var received atomic.Int32
	var wg sync.WaitGroup
	wg.Add(messageCount)

	bus.Subscribe(ctx, "tenant-load", "load.topic", func(ctx context.Context, msg *domain.Message) error {
		received.Add(1)
		wg.Done()
		return nil
	})

	for i := 0; i < messageCount; i++ {
		bus.Publish(ctx, "tenant-load", "load.topic", []byte("msg"))
	}

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		if received.Load() != messageCount {
			t.Errorf("expected %d messages, got %d", messageCount, received.Load())
		}
	case <-time.After(5 * time.Second):
		t.Fatalf("timeout: received %d/%d messages", received.Load(), messageCount)
	}
}
