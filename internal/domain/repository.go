// Package domain defines the core types and collaborator interfaces for Harrier.
package domain

import (
	"context"
	"time"
)

// Repository defines the interface for data persistence.
// All methods require tenantID for strict multi-tenancy isolation.
type Repository interface {
	// Assessment operations
	SaveAssessment(ctx context.Context, tenantID string, a *Assessment) error
	GetAssessment(ctx context.Context, tenantID string, id string) (*Assessment, error)
	ListAssessmentsByApplicant(ctx context.Context, tenantID string, applicantID string, since time.Time) ([]*Assessment, error)

	// Policy rule operations
	SavePolicyRule(ctx context.Context, tenantID string, rule *PolicyRule) error
	GetPolicyRule(ctx context.Context, tenantID string, ruleID string) (*PolicyRule, error)
	ListPolicyRules(ctx context.Context, tenantID string) ([]*PolicyRule, error)
	DeletePolicyRule(ctx context.Context, tenantID string, ruleID string) error

	// Health check
	Ping(ctx context.Context) error

	// Lifecycle
	Close() error
}

// RepositoryConfig holds configuration for repository initialization.
type RepositoryConfig struct {
	// Driver is the database driver: "sqlite" or "postgres"
	Driver string

	// SQLite specific
	SQLitePath string

	// PostgreSQL specific
	PostgresHost     string
	PostgresPort     int
	PostgresUser     string
	PostgresPassword string
	PostgresDB       string
	PostgresSSLMode  string

	// Connection pool settings
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}
