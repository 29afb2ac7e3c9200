package batch

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/opensource-finance/harrier/internal/bonus"
	"github.com/opensource-finance/harrier/internal/classifier"
	"github.com/opensource-finance/harrier/internal/decision"
	"github.com/opensource-finance/harrier/internal/domain"
	"github.com/opensource-finance/harrier/internal/risk"
	"github.com/opensource-finance/harrier/internal/turnover"
)

// gather fetches everything a rule may look at for w. The fetches are
// independent reads and run concurrently; the first failure cancels the rest.
func (p *Processor) gather(ctx context.Context, w domain.WithdrawalRequest) (*domain.Evidence, error) {
	now := p.now()
	ev := &domain.Evidence{Withdrawal: w, Now: now}
	days := p.batch.LookbackDays

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		txs, err := p.vendor.FetchTransactions(gctx, w.ClientID, days)
		if err != nil {
			return fmt.Errorf("transactions: %w", err)
		}
		ev.Transactions = txs
		return nil
	})

	g.Go(func() error {
		from := now.Add(-time.Duration(days) * 24 * time.Hour)
		bets, err := p.vendor.FetchBetHistory(gctx, w.ClientID, from, now)
		if err != nil {
			return fmt.Errorf("bet history: %w", err)
		}
		ev.SportsBets = bets
		return nil
	})

	g.Go(func() error {
		logins, err := p.vendor.FetchLoginHistory(gctx, w.ClientID, days)
		if err != nil {
			return fmt.Errorf("login history: %w", err)
		}
		linked, err := p.linkage.LinkedAccounts(gctx, w.ClientID, logins)
		if err != nil {
			return fmt.Errorf("linked accounts: %w", err)
		}
		ev.Logins = logins
		ev.LinkedAccounts = linked
		return nil
	})

	g.Go(func() error {
		profile, err := p.vendor.FetchClientProfile(gctx, w.ClientID)
		if err != nil {
			return fmt.Errorf("client profile: %w", err)
		}
		ev.Profile = profile
		return nil
	})

	g.Go(func() error {
		n, err := p.velocity.RecentWithdrawals(gctx, w.ClientID, w.RequestedAt)
		if err != nil {
			return err
		}
		ev.RecentWithdrawals = n
		return nil
	})

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return ev, nil
}

// assess runs the decision pipeline over gathered evidence. It fills the
// derived fields of ev and returns the rule verdicts and the decision.
func (p *Processor) assess(ctx context.Context, w domain.WithdrawalRequest, ev *domain.Evidence, defs []*domain.RuleDefinition, policies []*domain.BonusPolicy) ([]domain.RuleVerdict, domain.Decision) {
	ev.Classification = classifier.Classify(ev.Transactions, w.Amount, ev.Balance(), p.thresholds)

	c := ev.Classification
	if c.Type.IsBonusLike() {
		ev.Policy = bonus.Match(c.Reference, policies)
	}

	in := turnover.Input{
		Reference:  c.Reference,
		Multiplier: p.engine.DefaultTurnoverMultiplier,
	}
	if ev.Policy != nil && ev.Policy.TurnoverMultiplier > 0 {
		in.Multiplier = ev.Policy.TurnoverMultiplier
	}

	report, err := turnover.Calculate(ev.Transactions, in)
	if err != nil {
		ev.TurnoverError = err.Error()
	} else {
		report.Exempt = turnover.Exempt(c, ev.Policy)
		ev.Turnover = report
	}

	ev.Risk = risk.Analyze(ev.Turnover.CasinoGames(), p.engine.RiskHighWinThreshold)

	input := decision.InputFrom(ev, nil)
	if !decision.Preempted(input) {
		input.Verdicts = p.evaluator.Evaluate(ctx, defs, &w, ev)
		input.Verdicts = append(input.Verdicts, p.evaluator.EvaluatePolicy(ctx, defs, &w, ev)...)
	}
	return input.Verdicts, p.decider.Process(ctx, input)
}

// snapshotOf freezes the evaluated evidence of w.
func snapshotOf(w domain.WithdrawalRequest, ev *domain.Evidence, verdicts []domain.RuleVerdict, d domain.Decision) *domain.Snapshot {
	s := &domain.Snapshot{
		WithdrawalID:  w.ID,
		ClientID:      w.ClientID,
		Amount:        w.Amount,
		Currency:      w.Currency,
		RequestedAt:   w.RequestedAt,
		Verdicts:      verdicts,
		Decision:      d,
		ExternalState: w.State,
	}
	if ev != nil {
		s.Classification = ev.Classification
		s.Turnover = ev.Turnover
		s.TurnoverError = ev.TurnoverError
		s.Risk = ev.Risk
		if ev.Policy != nil {
			s.PolicyID = ev.Policy.ID
		}
	} else {
		s.Classification = domain.Classification{Type: domain.RefUnknown}
	}
	if s.Verdicts == nil {
		s.Verdicts = []domain.RuleVerdict{}
	}
	return s
}
