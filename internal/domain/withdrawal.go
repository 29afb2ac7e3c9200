package domain

import "time"

// WithdrawalState mirrors the vendor lifecycle of a payout request.
type WithdrawalState string

const (
	StateNew       WithdrawalState = "new"
	StatePending   WithdrawalState = "pending"
	StatePaid      WithdrawalState = "paid"
	StateRejected  WithdrawalState = "rejected"
	StateCancelled WithdrawalState = "cancelled"
)

// IsTerminal reports whether the vendor has already closed the request.
func (s WithdrawalState) IsTerminal() bool {
	return s == StatePaid || s == StateRejected || s == StateCancelled
}

// Payable reports whether a payout may still be submitted in state s.
func (s WithdrawalState) Payable() bool {
	return s == StateNew || s == StatePending
}

// Valid reports whether s is a known state.
func (s WithdrawalState) Valid() bool {
	switch s {
	case StateNew, StatePending, StatePaid, StateRejected, StateCancelled:
		return true
	}
	return false
}

// WithdrawalRequest is a pending payout as fetched from the vendor backoffice.
type WithdrawalRequest struct {
	ID            string          `json:"id" validate:"required"`
	ClientID      string          `json:"clientId" validate:"required"`
	Amount        float64         `json:"amount" validate:"gt=0"`
	Currency      string          `json:"currency,omitempty"`
	State         WithdrawalState `json:"state"`
	RequestedAt   time.Time       `json:"requestedAt"`
	PaymentSystem string          `json:"paymentSystem,omitempty"`
	Notes         string          `json:"notes,omitempty"`
}

// PayoutConfirmation is returned by the vendor after a payout is executed.
type PayoutConfirmation struct {
	WithdrawalID string    `json:"withdrawalId"`
	Reference    string    `json:"reference"`
	Status       string    `json:"status"`
	ConfirmedAt  time.Time `json:"confirmedAt"`
}
