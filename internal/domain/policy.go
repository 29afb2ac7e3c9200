package domain

import "time"

// BonusPolicy is an operator-configured withdrawal policy for one kind of bonus.
// Policies are matched by keyword against the reference event's free-text fields.
type BonusPolicy struct {
	ID           string `json:"id"`
	Name         string `json:"name" validate:"required"`
	MatchKeyword string `json:"matchKeyword" validate:"required"`

	// Priority orders matching (ascending); equal priorities fall back to insertion order.
	Priority int `json:"priority"`

	MaxAmount               float64 `json:"maxAmount" validate:"gte=0"`
	TurnoverMultiplier      float64 `json:"turnoverMultiplier" validate:"gte=0"`
	MinWithdrawalMultiplier float64 `json:"minWithdrawalMultiplier" validate:"gte=0"`
	MaxWithdrawalMultiplier float64 `json:"maxWithdrawalMultiplier" validate:"gte=0"`
	MinBalanceLimit         float64 `json:"minBalanceLimit" validate:"gte=0"`
	FixedWithdrawalAmount   float64 `json:"fixedWithdrawalAmount" validate:"gte=0"`
	MaxRemainingBalance     float64 `json:"maxRemainingBalance" validate:"gte=0"`

	IgnoreDepositRule   bool `json:"ignoreDepositRule"`
	RequireDepositID    bool `json:"requireDepositId"`
	DeleteExcessBalance bool `json:"deleteExcessBalance"`
	CheckWageringStatus bool `json:"checkWageringStatus"`
	AutoApprovalEnabled bool `json:"autoApprovalEnabled"`
	IsActive            bool `json:"isActive"`

	CreatedAt time.Time `json:"createdAt,omitempty"`
	UpdatedAt time.Time `json:"updatedAt,omitempty"`
}
