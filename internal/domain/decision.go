package domain

import "time"

// DecisionValue is one of the three terminal outcomes of an evaluation.
type DecisionValue string

const (
	DecisionApprove DecisionValue = "ONAY"
	DecisionReject  DecisionValue = "RET"
	DecisionManual  DecisionValue = "MANUEL"
)

// Decision is terminal and immutable once written for a withdrawal.
type Decision struct {
	Value       DecisionValue `json:"value"`
	Reason      string        `json:"reason"`
	EvaluatedAt time.Time     `json:"evaluatedAt"`
}

// Snapshot is the frozen evidence bundle and decision for one withdrawal.
// At most one snapshot exists per WithdrawalID.
type Snapshot struct {
	ID           string    `json:"id"`
	WithdrawalID string    `json:"withdrawalId"`
	ClientID     string    `json:"clientId"`
	Amount       float64   `json:"amount"`
	Currency     string    `json:"currency,omitempty"`
	RequestedAt  time.Time `json:"requestedAt"`

	Classification Classification  `json:"classification"`
	Turnover       *TurnoverReport `json:"turnover,omitempty"`
	TurnoverError  string          `json:"turnoverError,omitempty"`
	Risk           *RiskFinding    `json:"risk,omitempty"`
	PolicyID       string          `json:"policyId,omitempty"`
	Verdicts       []RuleVerdict   `json:"verdicts"`
	Decision       Decision        `json:"decision"`

	// ExternalState mirrors the vendor lifecycle; it is the only field updated after insert.
	ExternalState WithdrawalState `json:"externalState"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// DecisionRecord is an audit row written whenever a decision is produced or executed.
type DecisionRecord struct {
	ID           string        `json:"id"`
	WithdrawalID string        `json:"withdrawalId"`
	Decision     DecisionValue `json:"decision"`
	Reason       string        `json:"reason"`
	Live         bool          `json:"live"`
	PayoutRef    string        `json:"payoutRef,omitempty"`
	PayoutError  string        `json:"payoutError,omitempty"`
	CreatedAt    time.Time     `json:"createdAt"`
}
