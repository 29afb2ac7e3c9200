package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/opensource-finance/harrier/internal/domain"
)

var _ domain.Repository = (*SQLRepository)(nil)

const policyColumns = `
	id, name, match_keyword, priority, max_amount, turnover_multiplier,
	min_withdrawal_multiplier, max_withdrawal_multiplier, min_balance_limit,
	fixed_withdrawal_amount, max_remaining_balance, ignore_deposit_rule,
	require_deposit_id, delete_excess_balance, check_wagering_status,
	auto_approval_enabled, is_active, created_at, updated_at`

// ListBonusPolicies returns policies in match order: priority, then insertion order.
func (r *SQLRepository) ListBonusPolicies(ctx context.Context, activeOnly bool) ([]*domain.BonusPolicy, error) {
	query := `SELECT ` + policyColumns + ` FROM bonus_policies`
	if activeOnly {
		query += ` WHERE is_active = 1`
	}
	query += ` ORDER BY priority, created_at, id`

	rows, err := r.db.QueryContext(ctx, r.rebind(query))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var policies []*domain.BonusPolicy
	for rows.Next() {
		p, err := scanPolicy(rows)
		if err != nil {
			return nil, err
		}
		policies = append(policies, p)
	}
	return policies, rows.Err()
}

// GetBonusPolicy retrieves a policy by ID.
func (r *SQLRepository) GetBonusPolicy(ctx context.Context, id string) (*domain.BonusPolicy, error) {
	query := `SELECT ` + policyColumns + ` FROM bonus_policies WHERE id = ?`

	p, err := scanPolicy(r.db.QueryRowContext(ctx, r.rebind(query), id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return p, err
}

// SaveBonusPolicy creates or updates a policy. CreatedAt is kept on update so
// insertion order stays stable.
func (r *SQLRepository) SaveBonusPolicy(ctx context.Context, p *domain.BonusPolicy) error {
	if p == nil || p.Name == "" || p.MatchKeyword == "" {
		return fmt.Errorf("%w: name and matchKeyword are required", ErrInvalidInput)
	}

	now := time.Now().UTC()
	if p.ID == "" {
		p.ID = uuid.New().String()
	}
	if p.CreatedAt.IsZero() {
		p.CreatedAt = now
	}
	p.UpdatedAt = now

	query := `
		INSERT INTO bonus_policies (` + policyColumns + `
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			match_keyword = excluded.match_keyword,
			priority = excluded.priority,
			max_amount = excluded.max_amount,
			turnover_multiplier = excluded.turnover_multiplier,
			min_withdrawal_multiplier = excluded.min_withdrawal_multiplier,
			max_withdrawal_multiplier = excluded.max_withdrawal_multiplier,
			min_balance_limit = excluded.min_balance_limit,
			fixed_withdrawal_amount = excluded.fixed_withdrawal_amount,
			max_remaining_balance = excluded.max_remaining_balance,
			ignore_deposit_rule = excluded.ignore_deposit_rule,
			require_deposit_id = excluded.require_deposit_id,
			delete_excess_balance = excluded.delete_excess_balance,
			check_wagering_status = excluded.check_wagering_status,
			auto_approval_enabled = excluded.auto_approval_enabled,
			is_active = excluded.is_active,
			updated_at = excluded.updated_at
	`

	_, err := r.db.ExecContext(ctx, r.rebind(query),
		p.ID, p.Name, p.MatchKeyword, p.Priority, p.MaxAmount, p.TurnoverMultiplier,
		p.MinWithdrawalMultiplier, p.MaxWithdrawalMultiplier, p.MinBalanceLimit,
		p.FixedWithdrawalAmount, p.MaxRemainingBalance, boolInt(p.IgnoreDepositRule),
		boolInt(p.RequireDepositID), boolInt(p.DeleteExcessBalance), boolInt(p.CheckWageringStatus),
		boolInt(p.AutoApprovalEnabled), boolInt(p.IsActive), p.CreatedAt, p.UpdatedAt,
	)
	return err
}

// SetBonusPolicyActive toggles a policy.
func (r *SQLRepository) SetBonusPolicyActive(ctx context.Context, id string, active bool) error {
	query := `UPDATE bonus_policies SET is_active = ?, updated_at = ? WHERE id = ?`

	result, err := r.db.ExecContext(ctx, r.rebind(query), boolInt(active), time.Now().UTC(), id)
	if err != nil {
		return err
	}
	return requireRow(result)
}

// DeleteBonusPolicy removes a policy. Snapshots keep the policy id they matched.
func (r *SQLRepository) DeleteBonusPolicy(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx, r.rebind(`DELETE FROM bonus_policies WHERE id = ?`), id)
	if err != nil {
		return err
	}
	return requireRow(result)
}

const ruleColumns = `rule_key, description, enabled, critical, position, config, created_at, updated_at`

// ListRuleDefinitions returns definitions in execution order.
func (r *SQLRepository) ListRuleDefinitions(ctx context.Context, enabledOnly bool) ([]*domain.RuleDefinition, error) {
	query := `SELECT ` + ruleColumns + ` FROM rule_definitions`
	if enabledOnly {
		query += ` WHERE enabled = 1`
	}
	query += ` ORDER BY position, rule_key`

	rows, err := r.db.QueryContext(ctx, r.rebind(query))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var defs []*domain.RuleDefinition
	for rows.Next() {
		def, err := scanRule(rows)
		if err != nil {
			return nil, err
		}
		defs = append(defs, def)
	}
	return defs, rows.Err()
}

// GetRuleDefinition retrieves a definition by key.
func (r *SQLRepository) GetRuleDefinition(ctx context.Context, key string) (*domain.RuleDefinition, error) {
	query := `SELECT ` + ruleColumns + ` FROM rule_definitions WHERE rule_key = ?`

	def, err := scanRule(r.db.QueryRowContext(ctx, r.rebind(query), key))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return def, err
}

// SaveRuleDefinition creates or updates a definition.
func (r *SQLRepository) SaveRuleDefinition(ctx context.Context, def *domain.RuleDefinition) error {
	if def == nil || def.Key == "" {
		return fmt.Errorf("%w: rule key is required", ErrInvalidInput)
	}

	now := time.Now().UTC()
	if def.CreatedAt.IsZero() {
		def.CreatedAt = now
	}
	def.UpdatedAt = now

	query := `
		INSERT INTO rule_definitions (` + ruleColumns + `)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(rule_key) DO UPDATE SET
			description = excluded.description,
			enabled = excluded.enabled,
			critical = excluded.critical,
			position = excluded.position,
			config = excluded.config,
			updated_at = excluded.updated_at
	`

	_, err := r.db.ExecContext(ctx, r.rebind(query),
		def.Key, def.Description, boolInt(def.Enabled), boolInt(def.Critical), def.Position,
		string(def.Config), def.CreatedAt, def.UpdatedAt,
	)
	return err
}

// SetRuleEnabled toggles a definition.
func (r *SQLRepository) SetRuleEnabled(ctx context.Context, key string, enabled bool) error {
	query := `UPDATE rule_definitions SET enabled = ?, updated_at = ? WHERE rule_key = ?`

	result, err := r.db.ExecContext(ctx, r.rebind(query), boolInt(enabled), time.Now().UTC(), key)
	if err != nil {
		return err
	}
	return requireRow(result)
}

// DeleteRuleDefinition removes a definition.
func (r *SQLRepository) DeleteRuleDefinition(ctx context.Context, key string) error {
	result, err := r.db.ExecContext(ctx, r.rebind(`DELETE FROM rule_definitions WHERE rule_key = ?`), key)
	if err != nil {
		return err
	}
	return requireRow(result)
}

func scanPolicy(row rowScanner) (*domain.BonusPolicy, error) {
	var p domain.BonusPolicy
	var ignoreDeposit, requireDeposit, deleteExcess, checkWagering, autoApproval, active int

	if err := row.Scan(
		&p.ID, &p.Name, &p.MatchKeyword, &p.Priority, &p.MaxAmount, &p.TurnoverMultiplier,
		&p.MinWithdrawalMultiplier, &p.MaxWithdrawalMultiplier, &p.MinBalanceLimit,
		&p.FixedWithdrawalAmount, &p.MaxRemainingBalance, &ignoreDeposit,
		&requireDeposit, &deleteExcess, &checkWagering,
		&autoApproval, &active, &p.CreatedAt, &p.UpdatedAt,
	); err != nil {
		return nil, err
	}

	p.IgnoreDepositRule = ignoreDeposit == 1
	p.RequireDepositID = requireDeposit == 1
	p.DeleteExcessBalance = deleteExcess == 1
	p.CheckWageringStatus = checkWagering == 1
	p.AutoApprovalEnabled = autoApproval == 1
	p.IsActive = active == 1
	return &p, nil
}

func scanRule(row rowScanner) (*domain.RuleDefinition, error) {
	var def domain.RuleDefinition
	var description, config sql.NullString
	var enabled, critical int

	if err := row.Scan(
		&def.Key, &description, &enabled, &critical, &def.Position, &config,
		&def.CreatedAt, &def.UpdatedAt,
	); err != nil {
		return nil, err
	}

	def.Description = description.String
	def.Enabled = enabled == 1
	def.Critical = critical == 1
	if config.String != "" {
		def.Config = []byte(config.String)
	}
	return &def, nil
}
