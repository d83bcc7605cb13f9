// Package repository provides data persistence implementations.
package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/opensource-web3/kestrel/internal/domain"
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

// New creates a new repository based on configuration.
func New(cfg domain.RepositoryConfig) (domain.Repository, error) {
	var db *sql.DB
	var err error

	switch cfg.Driver {
	case "sqlite":
		db, err = openSQLite(cfg)
	case "postgres":
		db, err = openPostgres(cfg)
	default:
		return nil, fmt.Errorf("unsupported driver: %s", cfg.Driver)
	}

	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Configure connection pool
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

	// Run migrations
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

// SaveTransaction stores a raw transaction with chain isolation.
func (r *SQLRepository) SaveTransaction(ctx context.Context, chainID string, tx *domain.Transaction) error {
	if chainID == "" {
		return fmt.Errorf("%w: chainID is required", ErrInvalidInput)
	}

	createdAt := tx.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}

	query := `
		INSERT INTO transactions (
			id, chain_id, gas_price_gwei, gas_limit, value_eth,
			slippage_tolerance, priority_fee_gwei, position_in_block,
			block_congestion, token_pair_volatility, liquidity_depth,
			sender_tx_count, sender_success_rate, sender_avg_gas_price,
			is_contract, contract_age_days, network_gas_price,
			pending_tx_count, hour_of_day, day_of_week,
			uses_flashbots, has_bundle, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := r.db.ExecContext(ctx, r.rebind(query),
		tx.ID, chainID, tx.GasPriceGwei, tx.GasLimit, tx.ValueETH,
		tx.SlippageTol, tx.PriorityFeeGwei, tx.PositionInBlock,
		tx.BlockCongestion, tx.TokenPairVolatility, tx.LiquidityDepth,
		tx.SenderTxCount, tx.SenderSuccessRate, tx.SenderAvgGasPrice,
		tx.IsContract, tx.ContractAgeDays, tx.NetworkGasPrice,
		tx.PendingTxCount, tx.HourOfDay, tx.DayOfWeek,
		tx.UsesFlashbots, tx.HasBundle, createdAt,
	)
	return err
}

// GetTransaction retrieves a transaction by ID with chain isolation.
func (r *SQLRepository) GetTransaction(ctx context.Context, chainID string, txID string) (*domain.Transaction, error) {
	if chainID == "" {
		return nil, fmt.Errorf("%w: chainID is required", ErrInvalidInput)
	}

	query := `
		SELECT id, chain_id, gas_price_gwei, gas_limit, value_eth,
			   slippage_tolerance, priority_fee_gwei, position_in_block,
			   block_congestion, token_pair_volatility, liquidity_depth,
			   sender_tx_count, sender_success_rate, sender_avg_gas_price,
			   is_contract, contract_age_days, network_gas_price,
			   pending_tx_count, hour_of_day, day_of_week,
			   uses_flashbots, has_bundle, created_at
		FROM transactions
		WHERE chain_id = ? AND id = ?
	`

	var tx domain.Transaction

	err := r.db.QueryRowContext(ctx, r.rebind(query), chainID, txID).Scan(
		&tx.ID, &tx.ChainID, &tx.GasPriceGwei, &tx.GasLimit, &tx.ValueETH,
		&tx.SlippageTol, &tx.PriorityFeeGwei, &tx.PositionInBlock,
		&tx.BlockCongestion, &tx.TokenPairVolatility, &tx.LiquidityDepth,
		&tx.SenderTxCount, &tx.SenderSuccessRate, &tx.SenderAvgGasPrice,
		&tx.IsContract, &tx.ContractAgeDays, &tx.NetworkGasPrice,
		&tx.PendingTxCount, &tx.HourOfDay, &tx.DayOfWeek,
		&tx.UsesFlashbots, &tx.HasBundle, &tx.CreatedAt,
	)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	return &tx, nil
}

// SaveAssessment stores an assessment with chain isolation.
func (r *SQLRepository) SaveAssessment(ctx context.Context, chainID string, a *domain.Assessment) error {
	if chainID == "" {
		return fmt.Errorf("%w: chainID is required", ErrInvalidInput)
	}

	overrides, _ := json.Marshal(a.Overrides)

	isAttack := 0
	if a.IsAttack {
		isAttack = 1
	}

	query := `
		INSERT INTO assessments (
			id, chain_id, tx_id, risk_score, is_attack, attack_probability,
			attack_type, confidence, protection_method, recommendation,
			estimated_savings_usd, overrides, model_version,
			inference_time_ms, timestamp
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := r.db.ExecContext(ctx, r.rebind(query),
		a.ID, chainID, a.TxID, a.RiskScore, isAttack, a.AttackProbability,
		a.AttackType, a.Confidence, a.ProtectionMethod, a.Recommendation,
		a.EstimatedSavingsUSD, string(overrides), a.ModelVersion,
		a.InferenceTimeMs, a.Timestamp,
	)
	return err
}

// GetAssessment retrieves an assessment by ID with chain isolation.
func (r *SQLRepository) GetAssessment(ctx context.Context, chainID string, id string) (*domain.Assessment, error) {
	if chainID == "" {
		return nil, fmt.Errorf("%w: chainID is required", ErrInvalidInput)
	}

	query := `
		SELECT id, chain_id, tx_id, risk_score, is_attack, attack_probability,
			   attack_type, confidence, protection_method, recommendation,
			   estimated_savings_usd, overrides, model_version,
			   inference_time_ms, timestamp
		FROM assessments
		WHERE chain_id = ? AND id = ?
	`

	row := r.db.QueryRowContext(ctx, r.rebind(query), chainID, id)

	a, err := scanAssessment(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return a, nil
}

// ListAssessments retrieves recent assessments for a chain, newest first.
// A non-positive limit falls back to 100.
func (r *SQLRepository) ListAssessments(ctx context.Context, chainID string, since time.Time, limit int) ([]*domain.Assessment, error) {
	if chainID == "" {
		return nil, fmt.Errorf("%w: chainID is required", ErrInvalidInput)
	}
	if limit <= 0 {
		limit = 100
	}

	query := `
		SELECT id, chain_id, tx_id, risk_score, is_attack, attack_probability,
			   attack_type, confidence, protection_method, recommendation,
			   estimated_savings_usd, overrides, model_version,
			   inference_time_ms, timestamp
		FROM assessments
		WHERE chain_id = ? AND timestamp >= ?
		ORDER BY timestamp DESC
		LIMIT ?
	`

	rows, err := r.db.QueryContext(ctx, r.rebind(query), chainID, since, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var assessments []*domain.Assessment
	for rows.Next() {
		a, err := scanAssessment(rows)
		if err != nil {
			return nil, err
		}
		assessments = append(assessments, a)
	}

	return assessments, rows.Err()
}

// AssessmentStats aggregates the persisted assessments for one chain:
// total scored, attack-classed count and the summed savings estimate.
func (r *SQLRepository) AssessmentStats(ctx context.Context, chainID string) (*domain.AssessmentStats, error) {
	if chainID == "" {
		return nil, fmt.Errorf("%w: chainID is required", ErrInvalidInput)
	}

	query := `
		SELECT COUNT(*),
			   COALESCE(SUM(is_attack), 0),
			   COALESCE(SUM(estimated_savings_usd), 0)
		FROM assessments
		WHERE chain_id = ?
	`

	var stats domain.AssessmentStats
	err := r.db.QueryRowContext(ctx, r.rebind(query), chainID).Scan(
		&stats.TotalScored, &stats.TotalAttacks, &stats.TotalSavingsUSD,
	)
	if err != nil {
		return nil, err
	}
	return &stats, nil
}

// scanner covers *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func scanAssessment(s scanner) (*domain.Assessment, error) {
	var a domain.Assessment
	var overrides string
	var isAttack int

	err := s.Scan(
		&a.ID, &a.ChainID, &a.TxID, &a.RiskScore, &isAttack, &a.AttackProbability,
		&a.AttackType, &a.Confidence, &a.ProtectionMethod, &a.Recommendation,
		&a.EstimatedSavingsUSD, &overrides, &a.ModelVersion,
		&a.InferenceTimeMs, &a.Timestamp,
	)
	if err != nil {
		return nil, err
	}

	a.IsAttack = isAttack == 1
	if overrides != "" && overrides != "null" {
		json.Unmarshal([]byte(overrides), &a.Overrides)
	}
	return &a, nil
}

// SaveArtifact stores a trained model bundle as a single row.
func (r *SQLRepository) SaveArtifact(ctx context.Context, art *domain.Artifact) error {
	if art == nil || art.ID == "" || art.Version == "" {
		return fmt.Errorf("%w: artifact ID and version are required", ErrInvalidInput)
	}
	if len(art.Payload) == 0 {
		return fmt.Errorf("%w: artifact payload is empty", ErrInvalidInput)
	}

	columns, _ := json.Marshal(art.Columns)
	metrics, _ := json.Marshal(art.Metrics)

	query := `
		INSERT INTO model_artifacts (
			id, version, model_type, created_at, corpus_seed, corpus_size,
			columns, metrics, payload
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := r.db.ExecContext(ctx, r.rebind(query),
		art.ID, art.Version, art.ModelType, art.CreatedAt,
		art.CorpusSeed, art.CorpusSize,
		string(columns), string(metrics), art.Payload,
	)
	return err
}

// GetArtifact retrieves a model artifact by version, payload included.
func (r *SQLRepository) GetArtifact(ctx context.Context, version string) (*domain.Artifact, error) {
	if version == "" {
		return nil, fmt.Errorf("%w: version is required", ErrInvalidInput)
	}

	query := artifactSelect + ` WHERE version = ?`
	return r.queryArtifact(ctx, r.rebind(query), version)
}

// LatestArtifact retrieves the most recently created artifact, payload
// included.
func (r *SQLRepository) LatestArtifact(ctx context.Context) (*domain.Artifact, error) {
	query := artifactSelect + ` ORDER BY created_at DESC, version DESC LIMIT 1`
	return r.queryArtifact(ctx, query)
}

// ListArtifacts retrieves every stored artifact's metadata, newest first.
// Payloads are omitted; fetch one with GetArtifact to load it.
func (r *SQLRepository) ListArtifacts(ctx context.Context) ([]*domain.Artifact, error) {
	query := `
		SELECT id, version, model_type, created_at, corpus_seed, corpus_size,
			   columns, metrics
		FROM model_artifacts
		ORDER BY created_at DESC, version DESC
	`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var artifacts []*domain.Artifact
	for rows.Next() {
		var art domain.Artifact
		var columns, metrics string

		if err := rows.Scan(
			&art.ID, &art.Version, &art.ModelType, &art.CreatedAt,
			&art.CorpusSeed, &art.CorpusSize, &columns, &metrics,
		); err != nil {
			return nil, err
		}

		json.Unmarshal([]byte(columns), &art.Columns)
		json.Unmarshal([]byte(metrics), &art.Metrics)
		artifacts = append(artifacts, &art)
	}

	return artifacts, rows.Err()
}

const artifactSelect = `
		SELECT id, version, model_type, created_at, corpus_seed, corpus_size,
			   columns, metrics, payload
		FROM model_artifacts`

func (r *SQLRepository) queryArtifact(ctx context.Context, query string, args ...any) (*domain.Artifact, error) {
	var art domain.Artifact
	var columns, metrics string

	err := r.db.QueryRowContext(ctx, query, args...).Scan(
		&art.ID, &art.Version, &art.ModelType, &art.CreatedAt,
		&art.CorpusSeed, &art.CorpusSize,
		&columns, &metrics, &art.Payload,
	)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	json.Unmarshal([]byte(columns), &art.Columns)
	json.Unmarshal([]byte(metrics), &art.Metrics)

	return &art, nil
}

// SaveOverride stores an override rule. The chainID parameter is
// authoritative; an empty chainID stores a rule that applies on every chain.
func (r *SQLRepository) SaveOverride(ctx context.Context, chainID string, rule *domain.OverrideRule) error {
	if rule == nil || rule.ID == "" {
		return fmt.Errorf("%w: rule ID is required", ErrInvalidInput)
	}

	rule.ChainID = chainID

	enabled := 0
	if rule.Enabled {
		enabled = 1
	}

	now := time.Now().UTC()

	query := `
		INSERT INTO override_rules (
			id, chain_id, name, description, version, expression,
			escalate_to, enabled, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id, chain_id) DO UPDATE SET
			name = excluded.name,
			description = excluded.description,
			version = excluded.version,
			expression = excluded.expression,
			escalate_to = excluded.escalate_to,
			enabled = excluded.enabled,
			updated_at = excluded.updated_at
	`

	_, err := r.db.ExecContext(ctx, r.rebind(query),
		rule.ID, chainID, rule.Name, rule.Description,
		rule.Version, rule.Expression, rule.EscalateTo, enabled,
		now, now,
	)
	return err
}

// GetOverride retrieves an override rule by exact chain scope.
func (r *SQLRepository) GetOverride(ctx context.Context, chainID string, ruleID string) (*domain.OverrideRule, error) {
	query := `
		SELECT id, chain_id, name, description, version, expression,
			   escalate_to, enabled
		FROM override_rules
		WHERE chain_id = ? AND id = ?
	`

	var rule domain.OverrideRule
	var enabled int

	err := r.db.QueryRowContext(ctx, r.rebind(query), chainID, ruleID).Scan(
		&rule.ID, &rule.ChainID, &rule.Name, &rule.Description,
		&rule.Version, &rule.Expression, &rule.EscalateTo, &enabled,
	)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}

	rule.Enabled = enabled == 1
	return &rule, nil
}

// ListOverrides retrieves override rules. With a chainID it returns the
// rules applicable to that chain (its own plus the global ones); with an
// empty chainID it returns every stored rule.
func (r *SQLRepository) ListOverrides(ctx context.Context, chainID string) ([]*domain.OverrideRule, error) {
	query := `
		SELECT id, chain_id, name, description, version, expression,
			   escalate_to, enabled
		FROM override_rules
	`
	var args []any
	if chainID != "" {
		query += ` WHERE chain_id = ? OR chain_id = ''`
		args = append(args, chainID)
	}
	query += ` ORDER BY id`

	rows, err := r.db.QueryContext(ctx, r.rebind(query), args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var rules []*domain.OverrideRule
	for rows.Next() {
		var rule domain.OverrideRule
		var enabled int

		if err := rows.Scan(
			&rule.ID, &rule.ChainID, &rule.Name, &rule.Description,
			&rule.Version, &rule.Expression, &rule.EscalateTo, &enabled,
		); err != nil {
			return nil, err
		}

		rule.Enabled = enabled == 1
		rules = append(rules, &rule)
	}

	return rules, rows.Err()
}

// DeleteOverride soft-deletes an override rule by setting enabled = 0.
func (r *SQLRepository) DeleteOverride(ctx context.Context, chainID string, ruleID string) error {
	query := `
		UPDATE override_rules
		SET enabled = 0, updated_at = ?
		WHERE chain_id = ? AND id = ?
	`

	result, err := r.db.ExecContext(ctx, r.rebind(query), time.Now().UTC(), chainID, ruleID)
	if err != nil {
		return err
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return ErrNotFound
	}

	return nil
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

	// Convert ? to $1, $2, etc.
	var result []byte
	n := 1
	for i := 0; i < len(query); i++ {
		if query[i] == '?' {
			result = append(result, '$')
			result = append(result, fmt.Sprintf("%d", n)...)
			n++
		} else {
			result = append(result, query[i])
		}
	}
	return string(result)
}
