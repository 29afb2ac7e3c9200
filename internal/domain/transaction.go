package domain

import (
	"strings"
	"time"
)

// DocumentType is the vendor ledger document kind of a transaction.
type DocumentType string

const (
	DocDeposit        DocumentType = "deposit"
	DocBet            DocumentType = "bet"
	DocWin            DocumentType = "win"
	DocCashout        DocumentType = "cashout"
	DocBonusGrant     DocumentType = "bonus_grant"
	DocFreeSpinWin    DocumentType = "freespin_win"
	DocCashback       DocumentType = "cashback"
	DocCorrectionUp   DocumentType = "correction_up"
	DocCorrectionDown DocumentType = "correction_down"
)

// Product lines used to split turnover.
const (
	ProductCasino = "casino"
	ProductSports = "sports"
)

// Transaction is a single row of the customer's vendor ledger.
// Transactions are read-only and arrive newest first.
type Transaction struct {
	ID            string       `json:"id"`
	DocumentType  DocumentType `json:"documentType"`
	Amount        float64      `json:"amount"`
	BalanceAfter  float64      `json:"balanceAfter"`
	Game          string       `json:"game,omitempty"`
	Product       string       `json:"product,omitempty"`
	PaymentSystem string       `json:"paymentSystem,omitempty"`
	Notes         string       `json:"notes,omitempty"`

	// BetID links bets, wins and cashouts of the same coupon or round.
	BetID string `json:"betId,omitempty"`

	CreatedAt time.Time `json:"createdAt"`
}

// IsCredit reports whether the document type adds to the customer balance.
func (t DocumentType) IsCredit() bool {
	switch t {
	case DocDeposit, DocWin, DocCashout, DocBonusGrant, DocFreeSpinWin, DocCashback, DocCorrectionUp:
		return true
	default:
		return false
	}
}

// BalanceBefore derives the balance the customer held just before this transaction.
func (t *Transaction) BalanceBefore() float64 {
	if t.DocumentType.IsCredit() {
		return t.BalanceAfter - t.Amount
	}
	return t.BalanceAfter + t.Amount
}

// IsSports reports whether the transaction belongs to the sportsbook product line.
func (t *Transaction) IsSports() bool {
	return strings.Contains(strings.ToLower(t.Product), "sport")
}

// SearchText returns the free-text fields used for keyword matching, lowercased.
func (t *Transaction) SearchText() []string {
	return []string{
		strings.ToLower(t.Game),
		strings.ToLower(t.Product),
		strings.ToLower(t.PaymentSystem),
		strings.ToLower(t.Notes),
	}
}

// BetRecord is a sportsbook coupon returned by the vendor bet history.
type BetRecord struct {
	ID          string    `json:"id"`
	Stake       float64   `json:"stake"`
	Payout      float64   `json:"payout"`
	State       string    `json:"state"` // open, won, lost, cashed_out, void
	Selections  int       `json:"selections"`
	PlacedAt    time.Time `json:"placedAt"`
	SettledAt   time.Time `json:"settledAt,omitempty"`
	Description string    `json:"description,omitempty"`
}

// LoginRecord is one entry of a customer's login history.
type LoginRecord struct {
	IP        string    `json:"ip"`
	Timestamp time.Time `json:"timestamp"`
}

// AccountSummary describes another account seen on the same IP address.
type AccountSummary struct {
	ClientID string    `json:"clientId"`
	Login    string    `json:"login,omitempty"`
	IP       string    `json:"ip"`
	LastSeen time.Time `json:"lastSeen,omitempty"`
}

// ClientProfile is the vendor's view of the customer account.
type ClientProfile struct {
	ClientID  string    `json:"clientId"`
	Balance   float64   `json:"balance"`
	Currency  string    `json:"currency"`
	Verified  bool      `json:"verified"`
	BirthDate time.Time `json:"birthDate,omitempty"`
}
