package rules

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/opensource-finance/harrier/internal/domain"
)

func newTestEvaluator(t *testing.T) *Evaluator {
	t.Helper()
	engine, err := NewExpressionEngine()
	if err != nil {
		t.Fatalf("failed to create expression engine: %v", err)
	}
	return NewEvaluator(DefaultRegistry(engine))
}

func TestEvaluatorOrderAndCompleteness(t *testing.T) {
	ev := newTestEvaluator(t)
	w := &domain.WithdrawalRequest{ID: "w-1", Amount: 800}
	evidence := &domain.Evidence{}

	defs := []*domain.RuleDefinition{
		{Key: domain.RuleMaxAmount, Enabled: true, Position: 2, Config: json.RawMessage(`{"max": 500}`)},
		{Key: domain.RuleProfileVerified, Enabled: true, Position: 1},
		{Key: domain.RuleNoSportsBets, Enabled: false, Position: 0},
		{Key: domain.RuleIPMultiAccount, Enabled: true, Position: 3},
	}

	verdicts := ev.Evaluate(context.Background(), defs, w, evidence)

	if len(verdicts) != 3 {
		t.Fatalf("expected 3 verdicts (disabled skipped), got %d", len(verdicts))
	}
	want := []string{domain.RuleProfileVerified, domain.RuleMaxAmount, domain.RuleIPMultiAccount}
	for i, key := range want {
		if verdicts[i].RuleKey != key {
			t.Errorf("verdict %d: expected %s, got %s", i, key, verdicts[i].RuleKey)
		}
	}
	// no short-circuit: failures do not stop later rules
	if verdicts[0].Passed || verdicts[1].Passed || !verdicts[2].Passed {
		t.Errorf("unexpected pass pattern: %+v", verdicts)
	}
}

func TestEvaluatorUnknownRule(t *testing.T) {
	ev := newTestEvaluator(t)
	defs := []*domain.RuleDefinition{{Key: "NOT_A_RULE", Enabled: true, Critical: true}}

	verdicts := ev.Evaluate(context.Background(), defs, &domain.WithdrawalRequest{ID: "w-1"}, &domain.Evidence{})

	if len(verdicts) != 1 {
		t.Fatalf("expected 1 verdict, got %d", len(verdicts))
	}
	v := verdicts[0]
	if !v.Passed || v.Detail != "unrecognized rule, skipped" || !v.ConfigWarning {
		t.Errorf("unexpected verdict for unknown rule: %+v", v)
	}
}

func TestEvaluatorConfigurationError(t *testing.T) {
	ev := newTestEvaluator(t)
	defs := []*domain.RuleDefinition{
		{Key: domain.RuleMaxAmount, Enabled: true, Critical: true, Config: json.RawMessage(`{"max": "lots"}`)},
	}

	verdicts := ev.Evaluate(context.Background(), defs, &domain.WithdrawalRequest{ID: "w-1", Amount: 10}, &domain.Evidence{})

	v := verdicts[0]
	if v.Passed {
		t.Error("expected misconfigured rule to fail")
	}
	if v.Critical {
		t.Error("misconfigured rule must not be critical")
	}
	if !v.ConfigWarning {
		t.Error("expected config warning flag")
	}
	if !strings.Contains(v.Detail, "configuration") {
		t.Errorf("expected configuration detail, got %q", v.Detail)
	}
}

func TestEvaluatorRecoversPanics(t *testing.T) {
	reg := NewRegistry()
	reg.Register("BOOM", RuleFunc(func(context.Context, json.RawMessage, *domain.WithdrawalRequest, *domain.Evidence) (Result, error) {
		panic("boom")
	}))
	ev := NewEvaluator(reg)

	verdicts := ev.Evaluate(context.Background(), []*domain.RuleDefinition{{Key: "BOOM", Enabled: true, Critical: true}},
		&domain.WithdrawalRequest{ID: "w-1"}, &domain.Evidence{})

	if verdicts[0].Passed || verdicts[0].Critical || !verdicts[0].ConfigWarning {
		t.Errorf("expected non-critical config failure, got %+v", verdicts[0])
	}
}

func TestRegistryKeys(t *testing.T) {
	reg := DefaultRegistry(nil)
	keys := reg.Keys()
	if len(keys) != 16 {
		t.Errorf("expected 16 built-in rules without expressions, got %d", len(keys))
	}
	if _, ok := reg.Lookup(domain.RuleExpression); ok {
		t.Error("EXPRESSION should not be registered without an engine")
	}

	engine, _ := NewExpressionEngine()
	if _, ok := DefaultRegistry(engine).Lookup(domain.RuleExpression); !ok {
		t.Error("expected EXPRESSION to be registered")
	}
}

func TestDecodeConfigErrors(t *testing.T) {
	type cfg struct {
		Max float64 `json:"max"`
	}
	if _, err := decodeConfig[cfg](json.RawMessage(`{"max": 1, "extra": true}`)); !errors.Is(err, domain.ErrConfiguration) {
		t.Errorf("expected unknown field to be rejected, got %v", err)
	}
	got, err := decodeConfig[cfg](nil)
	if err != nil || got.Max != 0 {
		t.Errorf("expected zero config for empty input, got %+v, %v", got, err)
	}
}

func TestEvaluatePolicy(t *testing.T) {
	ev := newTestEvaluator(t)
	ctx := context.Background()
	w := &domain.WithdrawalRequest{ID: "w-1", Amount: 50}
	bonusRef := &domain.ReferenceEvent{Type: domain.RefBonus, Amount: 100}

	t.Run("NoPolicy", func(t *testing.T) {
		if got := ev.EvaluatePolicy(ctx, nil, w, &domain.Evidence{}); got != nil {
			t.Errorf("expected no verdicts without a policy, got %+v", got)
		}
	})

	t.Run("RunsWithoutRuleRows", func(t *testing.T) {
		evidence := &domain.Evidence{
			Classification: domain.Classification{Type: domain.RefBonus, Reference: bonusRef},
			Policy:         &domain.BonusPolicy{Name: "Welcome", MatchKeyword: "welcome", IsActive: true},
		}
		verdicts := ev.EvaluatePolicy(ctx, nil, w, evidence)
		if len(verdicts) != len(policyChecks) {
			t.Fatalf("expected %d verdicts, got %d", len(policyChecks), len(verdicts))
		}
		v := verdicts[0]
		if v.RuleKey != domain.RuleBonusAutoApproval || v.Passed || v.Critical {
			t.Errorf("expected soft auto-approval failure, got %+v", v)
		}
		for _, v := range verdicts[1:] {
			if !v.Passed {
				t.Errorf("unexpected failure: %+v", v)
			}
		}
	})

	t.Run("SkipsCoveredKeys", func(t *testing.T) {
		evidence := &domain.Evidence{
			Classification: domain.Classification{Type: domain.RefBonus, Reference: bonusRef},
			Policy:         &domain.BonusPolicy{Name: "Welcome", MaxAmount: 20, AutoApprovalEnabled: true},
		}
		defs := []*domain.RuleDefinition{
			{Key: domain.RuleBonusWithdrawalLimit, Enabled: true, Critical: true},
			{Key: domain.RuleBonusDepositID, Enabled: false},
		}
		verdicts := ev.EvaluatePolicy(ctx, defs, w, evidence)
		for _, v := range verdicts {
			if v.RuleKey == domain.RuleBonusWithdrawalLimit {
				t.Errorf("enabled rule row should own %s", v.RuleKey)
			}
		}
		if len(verdicts) != len(policyChecks)-1 {
			t.Errorf("expected disabled rows to leave the check in place, got %d verdicts", len(verdicts))
		}
	})
}
