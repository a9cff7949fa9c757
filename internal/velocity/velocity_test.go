package velocity

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/opensource-finance/harrier/internal/cache"
	"github.com/opensource-finance/harrier/internal/domain"
	"github.com/opensource-finance/harrier/internal/repository"
)

func TestRepositoryVelocity(t *testing.T) {
	repo, err := repository.New(domain.RepositoryConfig{
		Driver:     "sqlite",
		SQLitePath: filepath.Join(t.TempDir(), "velocity-test.db"),
	})
	if err != nil {
		t.Fatalf("failed to create repository: %v", err)
	}
	defer repo.Close()

	svc := NewService(repo, nil)
	ctx := context.Background()
	tenantID := "tenant-001"
	window := 30 * 24 * time.Hour

	t.Run("EmptyDatabase", func(t *testing.T) {
		count, err := svc.ApplicationCount(ctx, tenantID, "applicant-001", window)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if count != 0 {
			t.Errorf("expected count 0 for empty database, got %d", count)
		}
	})

	t.Run("WithAssessments", func(t *testing.T) {
		now := time.Now().UTC()
		stamps := []time.Time{now, now.Add(-time.Hour), now.Add(-10 * 24 * time.Hour), now.Add(-45 * 24 * time.Hour)}
		for i, ts := range stamps {
			a := &domain.Assessment{
				ID:          fmt.Sprintf("as-%d", i),
				ApplicantID: "applicant-001",
				Status:      domain.StatusEligible,
				Timestamp:   ts,
			}
			if err := repo.SaveAssessment(ctx, tenantID, a); err != nil {
				t.Fatalf("failed to save assessment: %v", err)
			}
		}

		count, err := svc.ApplicationCount(ctx, tenantID, "applicant-001", window)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if count != 3 {
			t.Errorf("expected 3 assessments inside the window, got %d", count)
		}

		count, _ = svc.ApplicationCount(ctx, tenantID, "unknown", window)
		if count != 0 {
			t.Errorf("expected count 0 for unknown applicant, got %d", count)
		}
	})

	t.Run("TenantIsolation", func(t *testing.T) {
		count, err := svc.ApplicationCount(ctx, "other-tenant", "applicant-001", window)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if count != 0 {
			t.Errorf("expected count 0 for different tenant, got %d", count)
		}
	})

	t.Run("RequiresIDs", func(t *testing.T) {
		if _, err := svc.ApplicationCount(ctx, "", "applicant-001", window); err == nil {
			t.Error("expected error for empty tenantID")
		}
		if _, err := svc.ApplicationCount(ctx, tenantID, "", window); err == nil {
			t.Error("expected error for empty applicantID")
		}
	})
}

func TestCacheVelocity(t *testing.T) {
	lru := cache.NewLRUCache(100)
	defer lru.Close()

	svc := NewService(nil, lru)
	ctx := context.Background()

	for want := int64(0); want < 3; want++ {
		got, err := svc.ApplicationCount(ctx, "tenant-001", "applicant-001", time.Hour)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if got != want {
			t.Errorf("expected %d earlier applications, got %d", want, got)
		}
	}
}

func TestNoDataSource(t *testing.T) {
	svc := NewService(nil, nil)

	if _, err := svc.ApplicationCount(context.Background(), "tenant", "applicant", time.Hour); err == nil {
		t.Error("expected error with no data source")
	}
}
