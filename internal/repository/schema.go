package repository

// Schema definitions, compatible with both SQLite and PostgreSQL.

// Assessments keep the full document as JSON; the extra columns exist for
// lookups. created_unix is nanoseconds so range queries compare integers on
// both drivers.
const schemaAssessments = `
CREATE TABLE IF NOT EXISTS assessments (
    id TEXT PRIMARY KEY,
    tenant_id TEXT NOT NULL,
    applicant_id TEXT NOT NULL,
    fingerprint TEXT NOT NULL,
    status TEXT NOT NULL,
    credit_score INTEGER NOT NULL,
    risk_tier TEXT NOT NULL,
    created_unix BIGINT NOT NULL,
    body TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_assessments_tenant ON assessments(tenant_id);
CREATE INDEX IF NOT EXISTS idx_assessments_applicant ON assessments(tenant_id, applicant_id, created_unix);
CREATE INDEX IF NOT EXISTS idx_assessments_fingerprint ON assessments(tenant_id, fingerprint);
`

const schemaPolicyRules = `
CREATE TABLE IF NOT EXISTS policy_rules (
    id TEXT NOT NULL,
    tenant_id TEXT NOT NULL,
    name TEXT NOT NULL,
    description TEXT,
    version TEXT NOT NULL,
    expression TEXT NOT NULL,
    bands TEXT NOT NULL,
    enabled INTEGER NOT NULL DEFAULT 1,
    created_at TIMESTAMP NOT NULL,
    updated_at TIMESTAMP NOT NULL,
    PRIMARY KEY (id, tenant_id)
);

CREATE INDEX IF NOT EXISTS idx_policy_rules_enabled ON policy_rules(tenant_id, enabled);
`

// AllSchemas returns all schema statements in order.
func AllSchemas() []string {
	return []string{
		schemaAssessments,
		schemaPolicyRules,
	}
}
