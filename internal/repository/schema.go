package repository

// Schema definitions for the Harrier database.
// Compatible with both SQLite and PostgreSQL.

// schemaSnapshots holds one frozen evidence bundle per withdrawal.
// The unique withdrawal_id is what makes evaluation at-most-once.
const schemaSnapshots = `
CREATE TABLE IF NOT EXISTS snapshots (
    id TEXT PRIMARY KEY,
    withdrawal_id TEXT NOT NULL UNIQUE,
    client_id TEXT NOT NULL,
    amount REAL NOT NULL,
    currency TEXT,
    requested_at TIMESTAMP NOT NULL,
    classification TEXT NOT NULL,
    turnover TEXT,
    turnover_error TEXT,
    risk TEXT,
    policy_id TEXT,
    verdicts TEXT NOT NULL,
    decision TEXT NOT NULL,
    reason TEXT NOT NULL,
    evaluated_at TIMESTAMP NOT NULL,
    external_state TEXT NOT NULL,
    created_at TIMESTAMP NOT NULL,
    updated_at TIMESTAMP NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_snapshots_client ON snapshots(client_id, requested_at);
CREATE INDEX IF NOT EXISTS idx_snapshots_decision ON snapshots(decision);
`

const schemaDecisions = `
CREATE TABLE IF NOT EXISTS decisions (
    id TEXT PRIMARY KEY,
    withdrawal_id TEXT NOT NULL,
    decision TEXT NOT NULL,
    reason TEXT NOT NULL,
    live INTEGER NOT NULL DEFAULT 0,
    payout_ref TEXT,
    payout_error TEXT,
    created_at TIMESTAMP NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_decisions_withdrawal ON decisions(withdrawal_id, created_at);
`

const schemaBonusPolicies = `
CREATE TABLE IF NOT EXISTS bonus_policies (
    id TEXT PRIMARY KEY,
    name TEXT NOT NULL,
    match_keyword TEXT NOT NULL,
    priority INTEGER NOT NULL DEFAULT 0,
    max_amount REAL NOT NULL DEFAULT 0,
    turnover_multiplier REAL NOT NULL DEFAULT 0,
    min_withdrawal_multiplier REAL NOT NULL DEFAULT 0,
    max_withdrawal_multiplier REAL NOT NULL DEFAULT 0,
    min_balance_limit REAL NOT NULL DEFAULT 0,
    fixed_withdrawal_amount REAL NOT NULL DEFAULT 0,
    max_remaining_balance REAL NOT NULL DEFAULT 0,
    ignore_deposit_rule INTEGER NOT NULL DEFAULT 0,
    require_deposit_id INTEGER NOT NULL DEFAULT 0,
    delete_excess_balance INTEGER NOT NULL DEFAULT 0,
    check_wagering_status INTEGER NOT NULL DEFAULT 1,
    auto_approval_enabled INTEGER NOT NULL DEFAULT 0,
    is_active INTEGER NOT NULL DEFAULT 1,
    created_at TIMESTAMP NOT NULL,
    updated_at TIMESTAMP NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_bonus_policies_active ON bonus_policies(is_active, priority, created_at);
`

// schemaRuleDefinitions stores rule configuration as data; config is opaque JSON.
const schemaRuleDefinitions = `
CREATE TABLE IF NOT EXISTS rule_definitions (
    rule_key TEXT PRIMARY KEY,
    description TEXT,
    enabled INTEGER NOT NULL DEFAULT 1,
    critical INTEGER NOT NULL DEFAULT 0,
    position INTEGER NOT NULL DEFAULT 0,
    config TEXT,
    created_at TIMESTAMP NOT NULL,
    updated_at TIMESTAMP NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_rule_definitions_enabled ON rule_definitions(enabled, position);
`

// AllSchemas returns all schema statements in order.
func AllSchemas() []string {
	return []string{
		schemaSnapshots,
		schemaDecisions,
		schemaBonusPolicies,
		schemaRuleDefinitions,
	}
}
