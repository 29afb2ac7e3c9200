package domain

import "time"

// ReferenceType classifies what funds a withdrawal.
type ReferenceType string

const (
	RefDeposit  ReferenceType = "DEPOSIT"
	RefBonus    ReferenceType = "BONUS"
	RefFreeSpin ReferenceType = "FREESPIN"
	RefCashback ReferenceType = "CASHBACK"
	RefUnknown  ReferenceType = "UNKNOWN"
)

// IsBonusLike reports whether the reference is a promotional credit that needs a bonus policy.
func (r ReferenceType) IsBonusLike() bool {
	return r == RefBonus || r == RefFreeSpin || r == RefCashback
}

// ReferenceEvent is the transaction chosen as the basis for turnover and ratio checks.
type ReferenceEvent struct {
	Type          ReferenceType `json:"type"`
	TransactionID string        `json:"transactionId,omitempty"`
	Amount        float64       `json:"amount"`
	Time          time.Time     `json:"time"`
	Game          string        `json:"game,omitempty"`
	Product       string        `json:"product,omitempty"`
	PaymentSystem string        `json:"paymentSystem,omitempty"`
	Notes         string        `json:"notes,omitempty"`
}

// Metadata returns the free-text fields used for bonus policy matching.
func (e *ReferenceEvent) Metadata() []string {
	if e == nil {
		return nil
	}
	return []string{e.Game, e.Product, e.PaymentSystem, e.Notes}
}

// CashbackVerdict is the classifier's own decision for cashback withdrawals.
type CashbackVerdict struct {
	Eligible bool   `json:"eligible"`
	Reason   string `json:"reason"`
}

// Classification is the output of the transaction classifier.
type Classification struct {
	Type      ReferenceType    `json:"type"`
	Reference *ReferenceEvent  `json:"reference,omitempty"`
	Deposit   *ReferenceEvent  `json:"deposit,omitempty"`
	Cashback  *CashbackVerdict `json:"cashback,omitempty"`
}

// ProductTurnover is the wagering summary of one product line.
type ProductTurnover struct {
	Wagered    float64 `json:"wagered"`
	Won        float64 `json:"won"`
	Percentage int     `json:"percentage"`
}

// TotalTurnover is the combined wagering summary.
type TotalTurnover struct {
	Wagered    float64 `json:"wagered"`
	Percentage int     `json:"percentage"`
}

// GameTurnover is the per-game audit breakdown.
type GameTurnover struct {
	Game    string  `json:"game"`
	Product string  `json:"product"`
	Wagered float64 `json:"wagered"`
	Won     float64 `json:"won"`
}

// TurnoverReport is the wagering verification result for one evaluation.
type TurnoverReport struct {
	Casino         ProductTurnover `json:"casino"`
	Sports         ProductTurnover `json:"sports"`
	Total          TotalTurnover   `json:"total"`
	RequiredAmount float64         `json:"requiredAmount"`
	Multiplier     float64         `json:"multiplier"`
	IsComplete     bool            `json:"isComplete"`

	// Exempt is set when the classification waives the wagering requirement.
	Exempt bool `json:"exempt,omitempty"`

	Games         []GameTurnover `json:"games,omitempty"`
	ExcludedBets  int            `json:"excludedBets,omitempty"`
	SportsBetSeen int            `json:"sportsBets,omitempty"`
}

// CasinoGames returns the casino part of the per-game breakdown.
func (r *TurnoverReport) CasinoGames() []GameTurnover {
	if r == nil {
		return nil
	}
	var out []GameTurnover
	for _, g := range r.Games {
		if g.Product != ProductSports {
			out = append(out, g)
		}
	}
	return out
}

// Severity grades a risk finding.
type Severity string

const (
	SeverityLow    Severity = "LOW"
	SeverityMedium Severity = "MEDIUM"
	SeverityHigh   Severity = "HIGH"
)

// SuspiciousGame is a game with recorded wins and no recorded wager.
type SuspiciousGame struct {
	Game    string  `json:"game"`
	Wagered float64 `json:"wagered"`
	Won     float64 `json:"won"`
}

// RiskFinding is the spin-hoarding analysis result.
type RiskFinding struct {
	IsRisky         bool             `json:"isRisky"`
	Severity        Severity         `json:"severity"`
	SuspiciousGames []SuspiciousGame `json:"suspiciousGames,omitempty"`
}

// Evidence is everything a rule may look at for one withdrawal.
type Evidence struct {
	Withdrawal        WithdrawalRequest `json:"withdrawal"`
	Transactions      []Transaction     `json:"-"`
	SportsBets        []BetRecord       `json:"-"`
	Logins            []LoginRecord     `json:"-"`
	LinkedAccounts    []AccountSummary  `json:"linkedAccounts,omitempty"`
	Profile           *ClientProfile    `json:"profile,omitempty"`
	RecentWithdrawals int               `json:"recentWithdrawals"`

	Classification Classification  `json:"classification"`
	Turnover       *TurnoverReport `json:"turnover,omitempty"`
	TurnoverError  string          `json:"turnoverError,omitempty"`
	Risk           *RiskFinding    `json:"risk,omitempty"`
	Policy         *BonusPolicy    `json:"policy,omitempty"`

	Now time.Time `json:"now"`
}

// Balance returns the customer balance left after the withdrawal was requested.
func (e *Evidence) Balance() float64 {
	if e.Profile == nil {
		return 0
	}
	return e.Profile.Balance
}
