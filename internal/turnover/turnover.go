// Package turnover computes wagering completion against a reference event.
package turnover

import (
	"fmt"
	"sort"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/opensource-finance/harrier/internal/domain"
)

// Input describes what the wagering requirement is measured against.
type Input struct {
	Reference *domain.ReferenceEvent

	// Multiplier defaults to domain.DefaultTurnoverMultiplier when not positive.
	Multiplier float64
}

var hundred = decimal.NewFromInt(100)

type bucket struct {
	wagered decimal.Decimal
	won     decimal.Decimal
}

type gameKey struct {
	game    string
	product string
}

// Calculate sums bets and wins recorded at or after the reference time.
// Bets later cashed out are not counted as turnover.
func Calculate(txs []domain.Transaction, in Input) (*domain.TurnoverReport, error) {
	if in.Reference == nil || in.Reference.Type == domain.RefUnknown {
		return nil, domain.ErrNoReference
	}

	multiplier := in.Multiplier
	if multiplier <= 0 {
		multiplier = domain.DefaultTurnoverMultiplier
	}
	required := decimal.NewFromFloat(in.Reference.Amount).Mul(decimal.NewFromFloat(multiplier))

	cashedOut := cashedOutBets(txs)
	since := in.Reference.Time

	var casino, sports bucket
	games := make(map[gameKey]*bucket)
	report := &domain.TurnoverReport{Multiplier: multiplier}

	for i := range txs {
		tx := &txs[i]
		if tx.CreatedAt.Before(since) {
			continue
		}
		if tx.DocumentType != domain.DocBet && tx.DocumentType != domain.DocWin {
			continue
		}
		if tx.DocumentType == domain.DocBet && tx.BetID != "" && cashedOut[tx.BetID] {
			report.ExcludedBets++
			continue
		}

		b, product := &casino, domain.ProductCasino
		if tx.IsSports() {
			b, product = &sports, domain.ProductSports
		}
		key := gameKey{game: gameName(tx), product: product}
		g, ok := games[key]
		if !ok {
			g = &bucket{}
			games[key] = g
		}

		amt := decimal.NewFromFloat(tx.Amount)
		if tx.DocumentType == domain.DocBet {
			b.wagered = b.wagered.Add(amt)
			g.wagered = g.wagered.Add(amt)
			if product == domain.ProductSports {
				report.SportsBetSeen++
			}
		} else {
			b.won = b.won.Add(amt)
			g.won = g.won.Add(amt)
		}
	}

	total := casino.wagered.Add(sports.wagered)
	complete := required.IsPositive() && total.GreaterThanOrEqual(required)

	report.RequiredAmount = required.InexactFloat64()
	report.IsComplete = complete
	report.Casino = domain.ProductTurnover{
		Wagered:    casino.wagered.InexactFloat64(),
		Won:        casino.won.InexactFloat64(),
		Percentage: percentage(casino.wagered, required),
	}
	report.Sports = domain.ProductTurnover{
		Wagered:    sports.wagered.InexactFloat64(),
		Won:        sports.won.InexactFloat64(),
		Percentage: percentage(sports.wagered, required),
	}

	pct := percentage(total, required)
	if !complete && pct >= 100 {
		pct = 99
	}
	report.Total = domain.TotalTurnover{Wagered: total.InexactFloat64(), Percentage: pct}
	report.Games = breakdown(games)

	return report, nil
}

// Exempt reports whether the classification waives the wagering requirement.
func Exempt(c domain.Classification, policy *domain.BonusPolicy) bool {
	if c.Type == domain.RefCashback {
		return true
	}
	return c.Type.IsBonusLike() && policy != nil && !policy.CheckWageringStatus
}

// Summary renders the report for audit reasons, e.g. "40% (400.00/1000.00)".
func Summary(r *domain.TurnoverReport) string {
	if r == nil {
		return "not computed"
	}
	return fmt.Sprintf("%d%% (%.2f/%.2f)", r.Total.Percentage, r.Total.Wagered, r.RequiredAmount)
}

func percentage(wagered, required decimal.Decimal) int {
	if !required.IsPositive() {
		return 0
	}
	return int(wagered.Div(required).Mul(hundred).Round(0).IntPart())
}

func cashedOutBets(txs []domain.Transaction) map[string]bool {
	out := make(map[string]bool)
	for i := range txs {
		if txs[i].DocumentType == domain.DocCashout && txs[i].BetID != "" {
			out[txs[i].BetID] = true
		}
	}
	return out
}

func gameName(tx *domain.Transaction) string {
	if name := strings.TrimSpace(tx.Game); name != "" {
		return name
	}
	if tx.IsSports() {
		return "Sportsbook"
	}
	return "unknown"
}

func breakdown(games map[gameKey]*bucket) []domain.GameTurnover {
	out := make([]domain.GameTurnover, 0, len(games))
	for k, b := range games {
		out = append(out, domain.GameTurnover{
			Game:    k.game,
			Product: k.product,
			Wagered: b.wagered.InexactFloat64(),
			Won:     b.won.InexactFloat64(),
		})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Wagered != out[j].Wagered {
			return out[i].Wagered > out[j].Wagered
		}
		if out[i].Game != out[j].Game {
			return out[i].Game < out[j].Game
		}
		return out[i].Product < out[j].Product
	})
	return out
}
