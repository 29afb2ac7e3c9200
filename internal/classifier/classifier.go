// Package classifier selects the reference event that funds a withdrawal.
package classifier

import (
	"fmt"
	"strings"

	"github.com/opensource-finance/harrier/internal/domain"
)

// Thresholds are the balance guards used during classification.
type Thresholds struct {
	CashbackBalance     float64
	CashbackMaxMultiple float64
	BalanceGuard        float64
}

// DefaultThresholds returns the named policy constants.
func DefaultThresholds() Thresholds {
	return Thresholds{
		CashbackBalance:     domain.CashbackBalanceThreshold,
		CashbackMaxMultiple: domain.CashbackMaxMultiple,
		BalanceGuard:        domain.BonusBalanceGuard,
	}
}

// ThresholdsFrom builds classifier thresholds from the engine config, falling back to defaults.
func ThresholdsFrom(cfg domain.EngineConfig) Thresholds {
	th := DefaultThresholds()
	if cfg.CashbackBalanceThreshold > 0 {
		th.CashbackBalance = cfg.CashbackBalanceThreshold
	}
	if cfg.CashbackMaxMultiple > 0 {
		th.CashbackMaxMultiple = cfg.CashbackMaxMultiple
	}
	if cfg.BonusBalanceGuard > 0 {
		th.BalanceGuard = cfg.BonusBalanceGuard
	}
	return th
}

// Keywords that disqualify a deposit from being treated as real money.
var promoKeywords = []string{"bonus", "freespin", "trial", "deneme", "promo"}

// Classify walks txs (newest first) and returns the first matching reference event.
// balance is the customer balance after the withdrawal was requested.
func Classify(txs []domain.Transaction, amount, balance float64, th Thresholds) domain.Classification {
	out := domain.Classification{
		Type:    domain.RefUnknown,
		Deposit: LatestDeposit(txs),
	}

	for i := range txs {
		tx := &txs[i]

		switch {
		case tx.DocumentType == domain.DocCashback:
			out.Type = domain.RefCashback
			out.Reference = reference(tx, domain.RefCashback)
			out.Cashback = cashbackVerdict(tx.Amount, amount, balance, th)
			return out

		case isFreeSpinCandidate(tx):
			if tx.BalanceBefore() >= th.BalanceGuard {
				continue
			}
			out.Type = domain.RefFreeSpin
			out.Reference = reference(tx, domain.RefFreeSpin)
			return out

		case tx.DocumentType == domain.DocBonusGrant:
			if tx.BalanceBefore() >= th.BalanceGuard {
				continue
			}
			out.Type = domain.RefBonus
			out.Reference = reference(tx, domain.RefBonus)
			return out

		case isCleanDeposit(tx):
			out.Type = domain.RefDeposit
			out.Reference = reference(tx, domain.RefDeposit)
			return out
		}
	}

	return out
}

// LatestDeposit returns the most recent deposit that carries no promotional keyword.
func LatestDeposit(txs []domain.Transaction) *domain.ReferenceEvent {
	for i := range txs {
		if isCleanDeposit(&txs[i]) {
			return reference(&txs[i], domain.RefDeposit)
		}
	}
	return nil
}

func cashbackVerdict(cashback, amount, balance float64, th Thresholds) *domain.CashbackVerdict {
	if balance >= th.CashbackBalance {
		return &domain.CashbackVerdict{
			Eligible: false,
			Reason:   fmt.Sprintf("full balance not withdrawn (remaining %.2f)", balance),
		}
	}
	limit := cashback * th.CashbackMaxMultiple
	if amount > limit {
		return &domain.CashbackVerdict{
			Eligible: false,
			Reason:   fmt.Sprintf("amount %.2f exceeds %gx cashback (%.2f)", amount, th.CashbackMaxMultiple, limit),
		}
	}
	return &domain.CashbackVerdict{Eligible: true, Reason: "no turnover requirement"}
}

func isFreeSpinCandidate(tx *domain.Transaction) bool {
	switch tx.DocumentType {
	case domain.DocFreeSpinWin:
		return true
	case domain.DocWin, domain.DocDeposit:
		return ContainsAny(tx.SearchText(), "freespin")
	}
	return false
}

func isCleanDeposit(tx *domain.Transaction) bool {
	return tx.DocumentType == domain.DocDeposit && !ContainsAny(tx.SearchText(), promoKeywords...)
}

// ContainsAny matches keywords against fields with spaces, dashes and underscores removed,
// so "Free Spin" and "free_spin" both match "freespin".
func ContainsAny(fields []string, keywords ...string) bool {
	for _, f := range fields {
		f = squash(f)
		if f == "" {
			continue
		}
		for _, kw := range keywords {
			if strings.Contains(f, kw) {
				return true
			}
		}
	}
	return false
}

var squasher = strings.NewReplacer(" ", "", "-", "", "_", "")

func squash(s string) string {
	return squasher.Replace(strings.ToLower(s))
}

func reference(tx *domain.Transaction, typ domain.ReferenceType) *domain.ReferenceEvent {
	return &domain.ReferenceEvent{
		Type:          typ,
		TransactionID: tx.ID,
		Amount:        tx.Amount,
		Time:          tx.CreatedAt,
		Game:          tx.Game,
		Product:       tx.Product,
		PaymentSystem: tx.PaymentSystem,
		Notes:         tx.Notes,
	}
}
