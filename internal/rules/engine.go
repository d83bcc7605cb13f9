// Package rules provides the CEL-based protection override engine.
//
// Override rules run after the model verdict. A matching rule can raise the
// assessment's protection method but never lower it, so the ordering of
// protection levels by attack probability survives any rule set.
package rules

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/cel-go/cel"
	"github.com/google/cel-go/common/types"
	"github.com/opensource-web3/kestrel/internal/domain"
	"github.com/opensource-web3/kestrel/internal/features"
)

// Engine compiles and evaluates protection override rules.
type Engine struct {
	mu         sync.RWMutex
	env        *cel.Env
	compiled   map[string]*CompiledRule
	maxWorkers int
}

// CompiledRule pairs a rule with its compiled CEL program.
type CompiledRule struct {
	Rule    *domain.OverrideRule
	Program cel.Program
}

// NewEngine creates an override engine with an empty rule set.
func NewEngine(maxWorkers int) (*Engine, error) {
	if maxWorkers <= 0 {
		maxWorkers = 10
	}

	// CEL environment over the raw transaction, the derived features and
	// the model verdict.
	env, err := cel.NewEnv(
		cel.Variable("tx", cel.MapType(cel.StringType, cel.DynType)),
		cel.Variable("features", cel.MapType(cel.StringType, cel.DynType)),
		cel.Variable("risk_score", cel.DoubleType),
		cel.Variable("attack_probability", cel.DoubleType),
		cel.Variable("is_attack", cel.BoolType),
		cel.Variable("attack_type", cel.StringType),
		cel.Variable("protection_method", cel.StringType),
		// Hot raw attributes, also reachable through tx.*
		cel.Variable("value_eth", cel.DoubleType),
		cel.Variable("gas_price_gwei", cel.DoubleType),
		cel.Variable("slippage_tolerance", cel.DoubleType),
		cel.Variable("liquidity_depth", cel.DoubleType),
		cel.Variable("uses_flashbots", cel.IntType),
		cel.Variable("has_bundle", cel.IntType),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create CEL environment: %w", err)
	}

	return &Engine{
		env:        env,
		compiled:   make(map[string]*CompiledRule),
		maxWorkers: maxWorkers,
	}, nil
}

// Validate compiles and checks a rule without mutating the loaded set.
func (e *Engine) Validate(rule *domain.OverrideRule) error {
	if rule == nil {
		return fmt.Errorf("rule is required")
	}

	e.mu.RLock()
	defer e.mu.RUnlock()

	_, err := e.compile(rule)
	return err
}

// Load compiles and loads a single rule.
func (e *Engine) Load(rule *domain.OverrideRule) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	compiled, err := e.compile(rule)
	if err != nil {
		return err
	}
	e.compiled[rule.ID] = compiled
	return nil
}

// LoadAll compiles and loads every enabled rule.
func (e *Engine) LoadAll(rules []*domain.OverrideRule) error {
	for _, rule := range rules {
		if rule.Enabled {
			if err := e.Load(rule); err != nil {
				return err
			}
		}
	}
	return nil
}

// Reload replaces the whole rule set. Either every enabled rule compiles or
// the previous set stays active.
func (e *Engine) Reload(rules []*domain.OverrideRule) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	next := make(map[string]*CompiledRule)
	for _, rule := range rules {
		if !rule.Enabled {
			continue
		}
		compiled, err := e.compile(rule)
		if err != nil {
			return err
		}
		next[rule.ID] = compiled
	}

	e.compiled = next
	return nil
}

// Count returns the number of loaded rules.
func (e *Engine) Count() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.compiled)
}

// Loaded returns the currently loaded rule configurations, ordered by ID.
func (e *Engine) Loaded() []*domain.OverrideRule {
	e.mu.RLock()
	defer e.mu.RUnlock()

	rules := make([]*domain.OverrideRule, 0, len(e.compiled))
	for _, compiled := range e.compiled {
		rules = append(rules, compiled.Rule)
	}
	sort.Slice(rules, func(i, j int) bool { return rules[i].ID < rules[j].ID })
	return rules
}

// Close clears the loaded rule set.
func (e *Engine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.compiled = make(map[string]*CompiledRule)
	return nil
}

// Apply evaluates every loaded rule scoped to the transaction's chain and
// escalates the assessment's protection method to the strongest matching
// target. Matched rules are recorded on the assessment. Rule errors are
// reported as unmatched results and never fail the score; the full result
// list is returned for logging.
func (e *Engine) Apply(tx *domain.Transaction, rec features.Record, a *domain.Assessment) []domain.OverrideResult {
	e.mu.RLock()
	rules := make([]*CompiledRule, 0, len(e.compiled))
	for _, cr := range e.compiled {
		if cr.Rule.ChainID == "" || cr.Rule.ChainID == tx.ChainID {
			rules = append(rules, cr)
		}
	}
	e.mu.RUnlock()

	if len(rules) == 0 {
		return nil
	}
	sort.Slice(rules, func(i, j int) bool { return rules[i].Rule.ID < rules[j].Rule.ID })

	activation := map[string]any{
		"tx":                 txVars(tx),
		"features":           featureVars(rec),
		"risk_score":         a.RiskScore,
		"attack_probability": a.AttackProbability,
		"is_attack":          a.IsAttack,
		"attack_type":        a.AttackType,
		"protection_method":  a.ProtectionMethod,
		"value_eth":          tx.ValueETH,
		"gas_price_gwei":     tx.GasPriceGwei,
		"slippage_tolerance": tx.SlippageTol,
		"liquidity_depth":    tx.LiquidityDepth,
		"uses_flashbots":     tx.UsesFlashbots,
		"has_bundle":         tx.HasBundle,
	}

	results := make([]domain.OverrideResult, len(rules))
	var wg sync.WaitGroup
	sem := make(chan struct{}, e.maxWorkers)

	for i, cr := range rules {
		wg.Add(1)
		go func(idx int, r *CompiledRule) {
			defer wg.Done()

			sem <- struct{}{}        // Acquire
			defer func() { <-sem }() // Release

			results[idx] = evaluate(r, activation)
		}(i, cr)
	}
	wg.Wait()

	best := domain.ProtectionRank(a.ProtectionMethod)
	for i, r := range results {
		if !r.Matched {
			continue
		}
		a.Overrides = append(a.Overrides, r)
		if rank := domain.ProtectionRank(rules[i].Rule.EscalateTo); rank > best {
			best = rank
			a.ProtectionMethod = rules[i].Rule.EscalateTo
		}
	}
	return results
}

// evaluate runs one compiled rule against the activation variables.
func evaluate(r *CompiledRule, activation map[string]any) domain.OverrideResult {
	start := time.Now()
	res := domain.OverrideResult{RuleID: r.Rule.ID}

	out, _, err := r.Program.Eval(activation)
	if err != nil {
		res.Reason = fmt.Sprintf("evaluation error: %v", err)
		res.ProcessMs = time.Since(start).Milliseconds()
		return res
	}
	if b, ok := out.(types.Bool); ok && bool(b) {
		res.Matched = true
		res.EscalateTo = r.Rule.EscalateTo
		res.Reason = r.Rule.Name
	}
	res.ProcessMs = time.Since(start).Milliseconds()
	return res
}

func (e *Engine) compile(rule *domain.OverrideRule) (*CompiledRule, error) {
	if rule.ID == "" {
		return nil, fmt.Errorf("rule ID is required")
	}
	if domain.ProtectionRank(rule.EscalateTo) < 1 {
		return nil, fmt.Errorf("rule %s: escalate_to must be %q or %q, got %q",
			rule.ID, domain.ProtectionTimelock, domain.ProtectionPrivate, rule.EscalateTo)
	}

	ast, issues := e.env.Compile(rule.Expression)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("failed to compile rule %s: %w", rule.ID, issues.Err())
	}
	if ast.OutputType() != cel.BoolType {
		return nil, fmt.Errorf("rule %s: expression must return bool, got %s", rule.ID, ast.OutputType())
	}

	program, err := e.env.Program(ast)
	if err != nil {
		return nil, fmt.Errorf("failed to create program for rule %s: %w", rule.ID, err)
	}

	return &CompiledRule{Rule: rule, Program: program}, nil
}

func txVars(tx *domain.Transaction) map[string]any {
	return map[string]any{
		"id":                    tx.ID,
		"chain_id":              tx.ChainID,
		"gas_price_gwei":        tx.GasPriceGwei,
		"gas_limit":             tx.GasLimit,
		"value_eth":             tx.ValueETH,
		"slippage_tolerance":    tx.SlippageTol,
		"priority_fee_gwei":     tx.PriorityFeeGwei,
		"position_in_block":     tx.PositionInBlock,
		"block_congestion":      tx.BlockCongestion,
		"token_pair_volatility": tx.TokenPairVolatility,
		"liquidity_depth":       tx.LiquidityDepth,
		"sender_tx_count":       tx.SenderTxCount,
		"sender_success_rate":   tx.SenderSuccessRate,
		"sender_avg_gas_price":  tx.SenderAvgGasPrice,
		"is_contract":           tx.IsContract,
		"contract_age_days":     tx.ContractAgeDays,
		"network_gas_price":     tx.NetworkGasPrice,
		"pending_tx_count":      tx.PendingTxCount,
		"hour_of_day":           tx.HourOfDay,
		"day_of_week":           tx.DayOfWeek,
		"uses_flashbots":        tx.UsesFlashbots,
		"has_bundle":            tx.HasBundle,
	}
}

func featureVars(rec features.Record) map[string]any {
	vars := make(map[string]any, len(rec))
	for k, v := range rec {
		vars[k] = v
	}
	return vars
}
