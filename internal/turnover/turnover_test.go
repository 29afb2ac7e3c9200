package turnover

import (
	"errors"
	"testing"
	"time"

	"github.com/opensource-finance/harrier/internal/domain"
)

var t0 = time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)

func deposit(amount float64) *domain.ReferenceEvent {
	return &domain.ReferenceEvent{Type: domain.RefDeposit, Amount: amount, Time: t0}
}

func bet(id, game, product string, amount float64, minutes int) domain.Transaction {
	return domain.Transaction{
		ID: id, DocumentType: domain.DocBet, Amount: amount, Game: game, Product: product,
		BetID: id, CreatedAt: t0.Add(time.Duration(minutes) * time.Minute),
	}
}

func win(id, game string, amount float64, minutes int) domain.Transaction {
	return domain.Transaction{
		ID: id, DocumentType: domain.DocWin, Amount: amount, Game: game, Product: domain.ProductCasino,
		CreatedAt: t0.Add(time.Duration(minutes) * time.Minute),
	}
}

func TestCalculate(t *testing.T) {
	t.Run("CleanDepositComplete", func(t *testing.T) {
		txs := []domain.Transaction{
			bet("b1", "SlotA", "casino", 600, 5),
			bet("b2", "SlotB", "casino", 400, 10),
		}

		r, err := Calculate(txs, Input{Reference: deposit(1000), Multiplier: 1})
		if err != nil {
			t.Fatalf("Calculate failed: %v", err)
		}
		if r.Total.Percentage != 100 || !r.IsComplete {
			t.Errorf("expected 100%% complete, got %d%% complete=%v", r.Total.Percentage, r.IsComplete)
		}
		if r.RequiredAmount != 1000 {
			t.Errorf("expected required 1000, got %.2f", r.RequiredAmount)
		}
	})

	t.Run("IncompleteTurnover", func(t *testing.T) {
		txs := []domain.Transaction{bet("b1", "SlotA", "casino", 400, 5)}

		r, err := Calculate(txs, Input{Reference: deposit(1000)})
		if err != nil {
			t.Fatalf("Calculate failed: %v", err)
		}
		if r.Total.Percentage != 40 || r.IsComplete {
			t.Errorf("expected 40%% incomplete, got %d%% complete=%v", r.Total.Percentage, r.IsComplete)
		}
		if r.Multiplier != domain.DefaultTurnoverMultiplier {
			t.Errorf("expected default multiplier, got %v", r.Multiplier)
		}
	})

	t.Run("BetsBeforeReferenceIgnored", func(t *testing.T) {
		txs := []domain.Transaction{
			bet("b1", "SlotA", "casino", 500, 5),
			bet("b0", "SlotA", "casino", 500, -5),
		}

		r, _ := Calculate(txs, Input{Reference: deposit(1000)})
		if r.Total.Wagered != 500 {
			t.Errorf("expected only post-reference wagers, got %.2f", r.Total.Wagered)
		}
	})

	t.Run("CashedOutBetsExcluded", func(t *testing.T) {
		txs := []domain.Transaction{
			{ID: "co1", DocumentType: domain.DocCashout, Amount: 180, BetID: "s1", Product: "Sportsbook", CreatedAt: t0.Add(20 * time.Minute)},
			bet("s1", "Football", "Sportsbook", 200, 10),
			bet("s2", "Tennis", "Sportsbook", 300, 12),
		}

		r, _ := Calculate(txs, Input{Reference: deposit(1000)})
		if r.Sports.Wagered != 300 {
			t.Errorf("expected cashed-out coupon excluded, got %.2f", r.Sports.Wagered)
		}
		if r.ExcludedBets != 1 {
			t.Errorf("expected 1 excluded bet, got %d", r.ExcludedBets)
		}
		if r.SportsBetSeen != 1 {
			t.Errorf("expected 1 counted sports bet, got %d", r.SportsBetSeen)
		}
	})

	t.Run("ProductSplit", func(t *testing.T) {
		txs := []domain.Transaction{
			bet("c1", "SlotA", "casino", 250, 1),
			bet("s1", "Football", "sports", 250, 2),
			win("w1", "SlotA", 90, 3),
		}

		r, _ := Calculate(txs, Input{Reference: deposit(1000)})
		if r.Casino.Wagered != 250 || r.Sports.Wagered != 250 {
			t.Errorf("unexpected split casino=%.2f sports=%.2f", r.Casino.Wagered, r.Sports.Wagered)
		}
		if r.Casino.Percentage != 25 || r.Sports.Percentage != 25 || r.Total.Percentage != 50 {
			t.Errorf("unexpected percentages %d/%d/%d", r.Casino.Percentage, r.Sports.Percentage, r.Total.Percentage)
		}
		if r.Casino.Won != 90 {
			t.Errorf("expected casino won 90, got %.2f", r.Casino.Won)
		}
	})

	t.Run("GamesSortedByWagered", func(t *testing.T) {
		txs := []domain.Transaction{
			bet("b1", "Small", "casino", 10, 1),
			bet("b2", "Big", "casino", 500, 2),
			win("w1", "Ghost", 150, 3),
		}

		r, _ := Calculate(txs, Input{Reference: deposit(1000)})
		if len(r.Games) != 3 {
			t.Fatalf("expected 3 games, got %d", len(r.Games))
		}
		if r.Games[0].Game != "Big" || r.Games[1].Game != "Small" || r.Games[2].Game != "Ghost" {
			t.Errorf("unexpected order: %+v", r.Games)
		}
		if r.Games[2].Wagered != 0 || r.Games[2].Won != 150 {
			t.Errorf("expected unwagered win for Ghost, got %+v", r.Games[2])
		}
	})

	t.Run("AlmostCompleteNeverReports100", func(t *testing.T) {
		txs := []domain.Transaction{bet("b1", "SlotA", "casino", 999.5, 1)}

		r, _ := Calculate(txs, Input{Reference: deposit(1000)})
		if r.IsComplete {
			t.Fatal("expected incomplete")
		}
		if r.Total.Percentage != 99 {
			t.Errorf("expected clamped 99, got %d", r.Total.Percentage)
		}
	})

	t.Run("ZeroRequired", func(t *testing.T) {
		txs := []domain.Transaction{bet("b1", "SlotA", "casino", 10, 1)}

		r, err := Calculate(txs, Input{Reference: deposit(0)})
		if err != nil {
			t.Fatalf("Calculate failed: %v", err)
		}
		if r.Total.Percentage != 0 || r.IsComplete {
			t.Errorf("expected 0%% incomplete, got %d%% complete=%v", r.Total.Percentage, r.IsComplete)
		}
	})

	t.Run("RequiredFromReferenceAmount", func(t *testing.T) {
		ref := &domain.ReferenceEvent{Type: domain.RefBonus, Amount: 50, Time: t0}
		txs := []domain.Transaction{bet("b1", "SlotA", "casino", 150, 1)}

		r, _ := Calculate(txs, Input{Reference: ref, Multiplier: 3})
		if r.RequiredAmount != 150 || !r.IsComplete {
			t.Errorf("expected required 150 complete, got %.2f complete=%v", r.RequiredAmount, r.IsComplete)
		}
	})

	t.Run("NoReference", func(t *testing.T) {
		_, err := Calculate(nil, Input{})
		if !errors.Is(err, domain.ErrNoReference) {
			t.Errorf("expected ErrNoReference, got %v", err)
		}
	})
}

func TestPercentageMonotonic(t *testing.T) {
	prev := -1
	for wagered := 0.0; wagered <= 1500; wagered += 37.5 {
		txs := []domain.Transaction{bet("b1", "SlotA", "casino", wagered, 1)}
		r, err := Calculate(txs, Input{Reference: deposit(1000)})
		if err != nil {
			t.Fatalf("Calculate failed: %v", err)
		}
		if r.Total.Percentage < prev {
			t.Fatalf("percentage decreased at %.2f: %d < %d", wagered, r.Total.Percentage, prev)
		}
		if (r.Total.Percentage >= 100) != r.IsComplete {
			t.Fatalf("percentage %d inconsistent with complete=%v at %.2f", r.Total.Percentage, r.IsComplete, wagered)
		}
		prev = r.Total.Percentage
	}
}

func TestExempt(t *testing.T) {
	tests := []struct {
		name   string
		class  domain.ReferenceType
		policy *domain.BonusPolicy
		want   bool
	}{
		{"Cashback", domain.RefCashback, nil, true},
		{"DepositNeverExempt", domain.RefDeposit, &domain.BonusPolicy{}, false},
		{"BonusWithoutWageringCheck", domain.RefBonus, &domain.BonusPolicy{CheckWageringStatus: false}, true},
		{"BonusWithWageringCheck", domain.RefBonus, &domain.BonusPolicy{CheckWageringStatus: true}, false},
		{"BonusWithoutPolicy", domain.RefFreeSpin, nil, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Exempt(domain.Classification{Type: tt.class}, tt.policy)
			if got != tt.want {
				t.Errorf("expected %v, got %v", tt.want, got)
			}
		})
	}
}
