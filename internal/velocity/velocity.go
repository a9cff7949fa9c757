// Package velocity counts recent applications per applicant.
package velocity

import (
	"context"
	"fmt"
	"time"

	"github.com/opensource-finance/harrier/internal/domain"
)

// Counter counts stored assessments. The SQL repository satisfies it.
type Counter interface {
	CountAssessmentsByApplicant(ctx context.Context, tenantID, applicantID string, since time.Time) (int64, error)
}

// Service reports how many assessments an applicant had in a window.
// It prefers the repository; without one it falls back to a cache counter.
type Service struct {
	counter Counter
	cache   domain.Cache
	now     func() time.Time
}

// NewService creates a velocity service. Either source may be nil.
func NewService(counter Counter, cache domain.Cache) *Service {
	return &Service{
		counter: counter,
		cache:   cache,
		now:     time.Now,
	}
}

// ApplicationCount returns the number of earlier assessments for an applicant
// within window. The cache fallback counts the current request too, so one is
// subtracted there.
func (s *Service) ApplicationCount(ctx context.Context, tenantID, applicantID string, window time.Duration) (int64, error) {
	if tenantID == "" || applicantID == "" {
		return 0, fmt.Errorf("tenantID and applicantID are required")
	}

	if s.counter != nil {
		count, err := s.counter.CountAssessmentsByApplicant(ctx, tenantID, applicantID, s.now().Add(-window))
		if err != nil {
			return 0, fmt.Errorf("failed to count assessments: %w", err)
		}
		return count, nil
	}

	if s.cache != nil {
		n, err := s.cache.IncrementCounter(ctx, tenantID, "velocity:"+applicantID, window)
		if err != nil {
			return 0, fmt.Errorf("failed to increment velocity counter: %w", err)
		}
		return max(n-1, 0), nil
	}

	return 0, fmt.Errorf("no data source available")
}
