// Package repository persists assessments and policy rules.
package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/opensource-finance/harrier/internal/domain"
)

var (
	ErrNotFound     = errors.New("record not found")
	ErrInvalidInput = errors.New("invalid input")
)

// SQLRepository implements domain.Repository using database/sql.
// Works with both SQLite and PostgreSQL drivers.
type SQLRepository struct {
	db     *sql.DB
	driver string
}

// New creates a new repository based on configuration and runs migrations.
func New(cfg domain.RepositoryConfig) (*SQLRepository, error) {
	db, err := open(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}

	repo := &SQLRepository{
		db:     db,
		driver: cfg.Driver,
	}

	if err := repo.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return repo, nil
}

func (r *SQLRepository) migrate() error {
	for _, schema := range AllSchemas() {
		if _, err := r.db.Exec(schema); err != nil {
			return err
		}
	}
	return nil
}

// SaveAssessment stores an assessment with tenant isolation.
func (r *SQLRepository) SaveAssessment(ctx context.Context, tenantID string, a *domain.Assessment) error {
	if tenantID == "" {
		return fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}
	if a == nil || a.ID == "" {
		return fmt.Errorf("%w: assessment id is required", ErrInvalidInput)
	}

	body, err := json.Marshal(a)
	if err != nil {
		return fmt.Errorf("failed to encode assessment: %w", err)
	}

	query := `
		INSERT INTO assessments (
			id, tenant_id, applicant_id, fingerprint, status,
			credit_score, risk_tier, created_unix, body
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err = r.db.ExecContext(ctx, r.rebind(query),
		a.ID, tenantID, a.ApplicantID, a.Fingerprint, a.Status,
		a.Composite.CreditScore, a.Composite.RiskTier, a.Timestamp.UnixNano(), string(body),
	)
	if err != nil {
		return fmt.Errorf("failed to save assessment %s: %w", a.ID, err)
	}
	return nil
}

// GetAssessment retrieves an assessment by ID with tenant isolation.
func (r *SQLRepository) GetAssessment(ctx context.Context, tenantID string, id string) (*domain.Assessment, error) {
	if tenantID == "" {
		return nil, fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}

	query := `SELECT body FROM assessments WHERE tenant_id = ? AND id = ?`

	var body string
	err := r.db.QueryRowContext(ctx, r.rebind(query), tenantID, id).Scan(&body)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	return decodeAssessment(body)
}

// ListAssessmentsByApplicant returns an applicant's assessments since a
// point in time, newest first.
func (r *SQLRepository) ListAssessmentsByApplicant(ctx context.Context, tenantID string, applicantID string, since time.Time) ([]*domain.Assessment, error) {
	if tenantID == "" || applicantID == "" {
		return nil, fmt.Errorf("%w: tenantID and applicantID are required", ErrInvalidInput)
	}

	query := `
		SELECT body FROM assessments
		WHERE tenant_id = ? AND applicant_id = ? AND created_unix >= ?
		ORDER BY created_unix DESC, id
	`

	rows, err := r.db.QueryContext(ctx, r.rebind(query), tenantID, applicantID, since.UnixNano())
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*domain.Assessment
	for rows.Next() {
		var body string
		if err := rows.Scan(&body); err != nil {
			return nil, err
		}
		a, err := decodeAssessment(body)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

// CountAssessmentsByApplicant counts an applicant's assessments since a point in time.
func (r *SQLRepository) CountAssessmentsByApplicant(ctx context.Context, tenantID string, applicantID string, since time.Time) (int64, error) {
	if tenantID == "" || applicantID == "" {
		return 0, fmt.Errorf("%w: tenantID and applicantID are required", ErrInvalidInput)
	}

	query := `SELECT COUNT(*) FROM assessments WHERE tenant_id = ? AND applicant_id = ? AND created_unix >= ?`

	var count int64
	if err := r.db.QueryRowContext(ctx, r.rebind(query), tenantID, applicantID, since.UnixNano()).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count assessments: %w", err)
	}
	return count, nil
}

func decodeAssessment(body string) (*domain.Assessment, error) {
	var a domain.Assessment
	if err := json.Unmarshal([]byte(body), &a); err != nil {
		return nil, fmt.Errorf("failed to decode assessment: %w", err)
	}
	return &a, nil
}

// SavePolicyRule upserts a policy rule with tenant isolation.
func (r *SQLRepository) SavePolicyRule(ctx context.Context, tenantID string, rule *domain.PolicyRule) error {
	if tenantID == "" {
		return fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}
	if rule == nil || rule.ID == "" || rule.Expression == "" {
		return fmt.Errorf("%w: rule id and expression are required", ErrInvalidInput)
	}

	bands, err := json.Marshal(rule.Bands)
	if err != nil {
		return fmt.Errorf("failed to encode bands: %w", err)
	}

	enabled := 0
	if rule.Enabled {
		enabled = 1
	}

	now := time.Now().UTC()

	query := `
		INSERT INTO policy_rules (
			id, tenant_id, name, description, version, expression, bands, enabled, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id, tenant_id) DO UPDATE SET
			name = excluded.name,
			description = excluded.description,
			version = excluded.version,
			expression = excluded.expression,
			bands = excluded.bands,
			enabled = excluded.enabled,
			updated_at = excluded.updated_at
	`

	_, err = r.db.ExecContext(ctx, r.rebind(query),
		rule.ID, tenantID, rule.Name, rule.Description,
		rule.Version, rule.Expression, string(bands), enabled,
		now, now,
	)
	return err
}

// GetPolicyRule retrieves an enabled policy rule with tenant isolation.
func (r *SQLRepository) GetPolicyRule(ctx context.Context, tenantID string, ruleID string) (*domain.PolicyRule, error) {
	if tenantID == "" {
		return nil, fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}

	query := `
		SELECT id, tenant_id, name, description, version, expression, bands, enabled
		FROM policy_rules
		WHERE tenant_id = ? AND id = ? AND enabled = 1
	`

	rule, err := scanPolicyRule(r.db.QueryRowContext(ctx, r.rebind(query), tenantID, ruleID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return rule, err
}

// ListPolicyRules retrieves all enabled policy rules for a tenant, ordered by ID.
func (r *SQLRepository) ListPolicyRules(ctx context.Context, tenantID string) ([]*domain.PolicyRule, error) {
	if tenantID == "" {
		return nil, fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}

	query := `
		SELECT id, tenant_id, name, description, version, expression, bands, enabled
		FROM policy_rules
		WHERE tenant_id = ? AND enabled = 1
		ORDER BY id
	`

	rows, err := r.db.QueryContext(ctx, r.rebind(query), tenantID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var rules []*domain.PolicyRule
	for rows.Next() {
		rule, err := scanPolicyRule(rows)
		if err != nil {
			return nil, err
		}
		rules = append(rules, rule)
	}
	return rules, rows.Err()
}

// DeletePolicyRule soft-deletes a policy rule by setting enabled = 0.
func (r *SQLRepository) DeletePolicyRule(ctx context.Context, tenantID string, ruleID string) error {
	if tenantID == "" {
		return fmt.Errorf("%w: tenantID is required", ErrInvalidInput)
	}

	query := `
		UPDATE policy_rules
		SET enabled = 0, updated_at = ?
		WHERE tenant_id = ? AND id = ? AND enabled = 1
	`

	result, err := r.db.ExecContext(ctx, r.rebind(query), time.Now().UTC(), tenantID, ruleID)
	if err != nil {
		return err
	}

	n, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanPolicyRule(row rowScanner) (*domain.PolicyRule, error) {
	var rule domain.PolicyRule
	var description sql.NullString
	var bands string
	var enabled int

	if err := row.Scan(
		&rule.ID, &rule.TenantID, &rule.Name, &description,
		&rule.Version, &rule.Expression, &bands, &enabled,
	); err != nil {
		return nil, err
	}

	rule.Description = description.String
	rule.Enabled = enabled == 1
	if err := json.Unmarshal([]byte(bands), &rule.Bands); err != nil {
		return nil, fmt.Errorf("failed to parse bands for policy %s: %w", rule.ID, err)
	}
	return &rule, nil
}

// Ping checks database connectivity.
func (r *SQLRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

// Close closes the database connection.
func (r *SQLRepository) Close() error {
	return r.db.Close()
}

// rebind converts ? placeholders to $1, $2, etc. for PostgreSQL.
func (r *SQLRepository) rebind(query string) string {
	if r.driver != "postgres" {
		return query
	}

	var b strings.Builder
	b.Grow(len(query) + 8)
	n := 1
	for i := 0; i < len(query); i++ {
		if query[i] == '?' {
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			n++
			continue
		}
		b.WriteByte(query[i])
	}
	return b.String()
}
