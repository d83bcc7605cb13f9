package repository

// Schema definitions for the Kestrel database.
// Compatible with both SQLite and PostgreSQL.

const schemaTransactions = `
CREATE TABLE IF NOT EXISTS transactions (
    id TEXT NOT NULL,
    chain_id TEXT NOT NULL,
    gas_price_gwei REAL NOT NULL,
    gas_limit INTEGER NOT NULL,
    value_eth REAL NOT NULL,
    slippage_tolerance REAL NOT NULL,
    priority_fee_gwei REAL NOT NULL,
    position_in_block REAL NOT NULL,
    block_congestion REAL NOT NULL,
    token_pair_volatility REAL NOT NULL,
    liquidity_depth REAL NOT NULL,
    sender_tx_count INTEGER NOT NULL,
    sender_success_rate REAL NOT NULL,
    sender_avg_gas_price REAL NOT NULL,
    is_contract INTEGER NOT NULL,
    contract_age_days REAL NOT NULL,
    network_gas_price REAL NOT NULL,
    pending_tx_count INTEGER NOT NULL,
    hour_of_day INTEGER NOT NULL,
    day_of_week INTEGER NOT NULL,
    uses_flashbots INTEGER NOT NULL,
    has_bundle INTEGER NOT NULL,
    created_at TIMESTAMP NOT NULL,
    PRIMARY KEY (chain_id, id)
);

CREATE INDEX IF NOT EXISTS idx_transactions_chain ON transactions(chain_id);
CREATE INDEX IF NOT EXISTS idx_transactions_created ON transactions(chain_id, created_at);
`

const schemaAssessments = `
CREATE TABLE IF NOT EXISTS assessments (
    id TEXT PRIMARY KEY,
    chain_id TEXT NOT NULL,
    tx_id TEXT NOT NULL,
    risk_score REAL NOT NULL,
    is_attack INTEGER NOT NULL,
    attack_probability REAL NOT NULL,
    attack_type TEXT NOT NULL,
    confidence REAL NOT NULL,
    protection_method TEXT NOT NULL,
    recommendation TEXT NOT NULL,
    estimated_savings_usd REAL NOT NULL,
    overrides TEXT,
    model_version TEXT NOT NULL,
    inference_time_ms REAL NOT NULL,
    timestamp TIMESTAMP NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_assessments_chain ON assessments(chain_id);
CREATE INDEX IF NOT EXISTS idx_assessments_tx ON assessments(chain_id, tx_id);
CREATE INDEX IF NOT EXISTS idx_assessments_attack ON assessments(chain_id, is_attack);
CREATE INDEX IF NOT EXISTS idx_assessments_timestamp ON assessments(chain_id, timestamp);
`

// schemaArtifacts stores each trained model bundle as a single row; loading
// one row always yields a transform and ensemble that were fitted together.
const schemaArtifacts = `
CREATE TABLE IF NOT EXISTS model_artifacts (
    id TEXT PRIMARY KEY,
    version TEXT NOT NULL UNIQUE,
    model_type TEXT NOT NULL,
    created_at TIMESTAMP NOT NULL,
    corpus_seed INTEGER NOT NULL,
    corpus_size INTEGER NOT NULL,
    columns TEXT NOT NULL,
    metrics TEXT NOT NULL,
    payload BLOB NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_artifacts_created ON model_artifacts(created_at);
`

// schemaOverrides keys rules by (id, chain_id); chain_id '' marks a rule
// that applies on every chain.
const schemaOverrides = `
CREATE TABLE IF NOT EXISTS override_rules (
    id TEXT NOT NULL,
    chain_id TEXT NOT NULL DEFAULT '',
    name TEXT NOT NULL,
    description TEXT,
    version TEXT NOT NULL,
    expression TEXT NOT NULL,
    escalate_to TEXT NOT NULL,
    enabled INTEGER NOT NULL DEFAULT 1,
    created_at TIMESTAMP NOT NULL,
    updated_at TIMESTAMP NOT NULL,
    PRIMARY KEY (id, chain_id)
);

CREATE INDEX IF NOT EXISTS idx_overrides_chain ON override_rules(chain_id);
CREATE INDEX IF NOT EXISTS idx_overrides_enabled ON override_rules(chain_id, enabled);
`

// AllSchemas returns all schema statements in order.
func AllSchemas() []string {
	return []string{
		schemaTransactions,
		schemaAssessments,
		schemaArtifacts,
		schemaOverrides,
	}
}
