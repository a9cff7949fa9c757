package cache

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/opensource-finance/harrier/internal/domain"
)

type fakeClock struct{ t time.Time }

func (c *fakeClock) now() time.Time          { return c.t }
func (c *fakeClock) advance(d time.Duration) { c.t = c.t.Add(d) }

func newClockedCache(size int) (*LRUCache, *fakeClock) {
	clock := &fakeClock{t: time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)}
	c := NewLRUCache(size)
	c.now = clock.now
	return c, clock
}

func TestLRUCache(t *testing.T) {
	cache, clock := newClockedCache(100)
	ctx := context.Background()
	tenantID := "tenant-001"

	t.Run("SetAndGet", func(t *testing.T) {
		if err := cache.Set(ctx, tenantID, "key1", []byte("value1"), time.Minute); err != nil {
			t.Fatalf("Set failed: %v", err)
		}
		val, err := cache.Get(ctx, tenantID, "key1")
		if err != nil {
			t.Fatalf("Get failed: %v", err)
		}
		if string(val) != "value1" {
			t.Errorf("expected 'value1', got '%s'", string(val))
		}
	})

	t.Run("GetMiss", func(t *testing.T) {
		val, err := cache.Get(ctx, tenantID, "nonexistent")
		if err != nil {
			t.Fatalf("Get failed: %v", err)
		}
		if val != nil {
			t.Errorf("expected nil for cache miss, got: %v", val)
		}
	})

	t.Run("Delete", func(t *testing.T) {
		_ = cache.Set(ctx, tenantID, "key2", []byte("value2"), time.Minute)
		if err := cache.Delete(ctx, tenantID, "key2"); err != nil {
			t.Fatalf("Delete failed: %v", err)
		}
		if val, _ := cache.Get(ctx, tenantID, "key2"); val != nil {
			t.Error("expected nil after delete")
		}
	})

	t.Run("TTLExpiration", func(t *testing.T) {
		_ = cache.Set(ctx, tenantID, "expiring", []byte("temp"), time.Second)
		if val, _ := cache.Get(ctx, tenantID, "expiring"); val == nil {
			t.Error("expected value before expiration")
		}
		clock.advance(2 * time.Second)
		if val, _ := cache.Get(ctx, tenantID, "expiring"); val != nil {
			t.Error("expected nil after expiration")
		}
	})

	t.Run("TenantIsolation", func(t *testing.T) {
		_ = cache.Set(ctx, "tenant-001", "shared-key", []byte("tenant1-value"), time.Minute)
		_ = cache.Set(ctx, "tenant-002", "shared-key", []byte("tenant2-value"), time.Minute)

		val1, _ := cache.Get(ctx, "tenant-001", "shared-key")
		val2, _ := cache.Get(ctx, "tenant-002", "shared-key")
		if string(val1) != "tenant1-value" || string(val2) != "tenant2-value" {
			t.Errorf("tenants leaked: %q %q", val1, val2)
		}
	})

	t.Run("RequiresTenantID", func(t *testing.T) {
		if err := cache.Set(ctx, "", "key", []byte("value"), time.Minute); err == nil {
			t.Error("expected error for empty tenantID")
		}
		if _, err := cache.Get(ctx, "", "key"); err == nil {
			t.Error("expected error for empty tenantID")
		}
	})

	t.Run("Stats", func(t *testing.T) {
		s := cache.Stats()
		if s.Capacity != 100 || s.Hits == 0 || s.Misses == 0 {
			t.Errorf("unexpected stats %+v", s)
		}
	})
}

func TestLRUEviction(t *testing.T) {
	cache, _ := newClockedCache(3)
	ctx := context.Background()
	tenantID := "tenant-001"

	_ = cache.Set(ctx, tenantID, "a", []byte("1"), time.Minute)
	_ = cache.Set(ctx, tenantID, "b", []byte("2"), time.Minute)
	_ = cache.Set(ctx, tenantID, "c", []byte("3"), time.Minute)
	_, _ = cache.Get(ctx, tenantID, "a")
	_ = cache.Set(ctx, tenantID, "d", []byte("4"), time.Minute)

	if val, _ := cache.Get(ctx, tenantID, "b"); val != nil {
		t.Error("expected 'b' to be evicted")
	}
	if val, _ := cache.Get(ctx, tenantID, "a"); val == nil {
		t.Error("expected 'a' to still exist")
	}
	if s := cache.Stats(); s.Size != 3 {
		t.Errorf("expected size 3, got %d", s.Size)
	}
}

func TestAssessmentCache(t *testing.T) {
	cache, clock := newClockedCache(10)
	ctx := context.Background()

	a := &domain.Assessment{
		ID:          "as-1",
		ApplicantID: "applicant-1",
		Status:      domain.StatusRefer,
		Composite:   domain.CompositeResult{CreditScore: 612, RiskTier: "STANDARD"},
		Limit:       &domain.LoanLimitResult{RecommendedLimit: decimal.RequireFromString("42000.25")},
	}

	if err := cache.SetAssessment(ctx, "tenant-1", "fp-1", a, time.Minute); err != nil {
		t.Fatalf("SetAssessment failed: %v", err)
	}

	got, err := cache.GetAssessment(ctx, "tenant-1", "fp-1")
	if err != nil {
		t.Fatalf("GetAssessment failed: %v", err)
	}
	if got == nil || got.ID != "as-1" || got.Composite.CreditScore != 612 {
		t.Fatalf("unexpected assessment %+v", got)
	}
	if !got.Limit.RecommendedLimit.Equal(decimal.RequireFromString("42000.25")) {
		t.Errorf("limit lost precision: %s", got.Limit.RecommendedLimit)
	}

	if other, _ := cache.GetAssessment(ctx, "tenant-2", "fp-1"); other != nil {
		t.Error("assessment leaked across tenants")
	}

	clock.advance(2 * time.Minute)
	if expired, _ := cache.GetAssessment(ctx, "tenant-1", "fp-1"); expired != nil {
		t.Error("expected cached assessment to expire")
	}
}

func TestIncrementCounter(t *testing.T) {
	cache, clock := newClockedCache(10)
	ctx := context.Background()

	for want := int64(1); want <= 3; want++ {
		got, err := cache.IncrementCounter(ctx, "tenant-1", "velocity:a", time.Hour)
		if err != nil {
			t.Fatalf("IncrementCounter failed: %v", err)
		}
		if got != want {
			t.Errorf("expected %d, got %d", want, got)
		}
	}

	other, _ := cache.IncrementCounter(ctx, "tenant-2", "velocity:a", time.Hour)
	if other != 1 {
		t.Errorf("expected separate counter per tenant, got %d", other)
	}

	clock.advance(2 * time.Hour)
	reset, _ := cache.IncrementCounter(ctx, "tenant-1", "velocity:a", time.Hour)
	if reset != 1 {
		t.Errorf("expected counter to reset after the window, got %d", reset)
	}
	if len(cache.counters) != 1 {
		t.Errorf("expected expired counters to be swept, have %d", len(cache.counters))
	}
}

func TestLRUConcurrentAccess(t *testing.T) {
	cache := NewLRUCache(50)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			key := string(rune('a' + i%5))
			_ = cache.Set(ctx, "tenant", key, []byte{byte(i)}, time.Minute)
			_, _ = cache.Get(ctx, "tenant", key)
			_, _ = cache.IncrementCounter(ctx, "tenant", "hits", time.Minute)
		}(i)
	}
	wg.Wait()

	n, _ := cache.IncrementCounter(ctx, "tenant", "hits", time.Minute)
	if n != 21 {
		t.Errorf("expected 21 increments, got %d", n)
	}
}

func TestNew(t *testing.T) {
	c, err := New(domain.CacheConfig{Type: "memory", LocalMaxSize: 5})
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	if _, ok := c.(*LRUCache); !ok {
		t.Errorf("expected *LRUCache, got %T", c)
	}

	if _, err := New(domain.CacheConfig{Type: "memcached"}); err == nil {
		t.Error("expected unsupported cache type error")
	}
}
