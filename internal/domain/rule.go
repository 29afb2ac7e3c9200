package domain

import (
	"encoding/json"
	"time"
)

// RuleDefinition configures one named rule check.
// Config is opaque to the engine; each rule decodes its own parameters.
type RuleDefinition struct {
	Key         string          `json:"key"`
	Description string          `json:"description,omitempty"`
	Enabled     bool            `json:"enabled"`
	Critical    bool            `json:"critical"`
	Position    int             `json:"position"`
	Config      json.RawMessage `json:"config,omitempty"`
	CreatedAt   time.Time       `json:"createdAt,omitempty"`
	UpdatedAt   time.Time       `json:"updatedAt,omitempty"`
}

// RuleVerdict is the outcome of one executed rule.
type RuleVerdict struct {
	RuleKey  string `json:"ruleKey"`
	Passed   bool   `json:"passed"`
	Detail   string `json:"detail"`
	Critical bool   `json:"critical"`

	// ConfigWarning marks verdicts produced by a misconfigured or unknown rule.
	ConfigWarning bool `json:"configWarning,omitempty"`
}

// Built-in rule keys.
const (
	RuleMaxAmount            = "MAX_AMOUNT"
	RuleMaxWithdrawalRatio   = "MAX_WITHDRAWAL_RATIO"
	RuleRequireDepositToday  = "REQUIRE_DEPOSIT_TODAY"
	RuleNoBonusAfterDeposit  = "NO_BONUS_AFTER_DEPOSIT"
	RuleNoFreeSpinBonus      = "NO_FREESPIN_BONUS"
	RuleNoSportsBets         = "NO_SPORTS_BETS"
	RuleForbiddenGames       = "FORBIDDEN_GAMES"
	RuleTurnoverComplete     = "TURNOVER_COMPLETE"
	RuleBonusAutoApproval    = "BONUS_AUTO_APPROVAL"
	RuleBonusWithdrawalLimit = "BONUS_WITHDRAWAL_LIMIT"
	RuleBonusMinBalance      = "BONUS_MIN_BALANCE"
	RuleBonusMaxRemaining    = "BONUS_MAX_REMAINING_BALANCE"
	RuleBonusDepositID       = "BONUS_DEPOSIT_ID"
	RuleIPMultiAccount       = "IP_MULTI_ACCOUNT"
	RuleProfileVerified      = "PROFILE_VERIFIED"
	RuleRecentWithdrawals    = "RECENT_WITHDRAWALS"
	RuleExpression           = "EXPRESSION"
)
