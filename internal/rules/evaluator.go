package rules

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"

	"github.com/opensource-finance/harrier/internal/domain"
)

const detailUnrecognized = "unrecognized rule, skipped"

// Evaluator runs rule definitions against assembled evidence.
type Evaluator struct {
	registry *Registry
}

// NewEvaluator creates an evaluator backed by registry.
func NewEvaluator(registry *Registry) *Evaluator {
	return &Evaluator{registry: registry}
}

// Registry returns the evaluator's rule registry.
func (e *Evaluator) Registry() *Registry {
	return e.registry
}

// Evaluate runs every enabled definition in Position order and returns one verdict each.
// Evaluation never stops early: a complete audit trail is always produced.
func (e *Evaluator) Evaluate(ctx context.Context, defs []*domain.RuleDefinition, w *domain.WithdrawalRequest, ev *domain.Evidence) []domain.RuleVerdict {
	enabled := Ordered(defs)
	verdicts := make([]domain.RuleVerdict, 0, len(enabled))
	for _, def := range enabled {
		verdicts = append(verdicts, e.evaluateOne(ctx, def, w, ev))
	}
	return verdicts
}

// EvaluatePolicy runs the bonus policy checks that no enabled definition in
// defs already covers. A failed check forces manual review. It returns nil
// when ev carries no matched policy.
func (e *Evaluator) EvaluatePolicy(ctx context.Context, defs []*domain.RuleDefinition, w *domain.WithdrawalRequest, ev *domain.Evidence) []domain.RuleVerdict {
	if ev.Policy == nil {
		return nil
	}
	covered := make(map[string]bool, len(defs))
	for _, d := range Ordered(defs) {
		covered[d.Key] = true
	}

	var verdicts []domain.RuleVerdict
	for _, c := range policyChecks {
		if covered[c.key] {
			continue
		}
		res, err := c.fn(ctx, nil, w, ev)
		if err != nil {
			verdicts = append(verdicts, configFailure(&domain.RuleDefinition{Key: c.key}, err))
			continue
		}
		verdicts = append(verdicts, domain.RuleVerdict{RuleKey: c.key, Passed: res.Passed, Detail: res.Detail})
	}
	return verdicts
}

// Ordered returns the enabled definitions sorted by Position, then Key.
func Ordered(defs []*domain.RuleDefinition) []*domain.RuleDefinition {
	out := make([]*domain.RuleDefinition, 0, len(defs))
	for _, d := range defs {
		if d != nil && d.Enabled {
			out = append(out, d)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Position != out[j].Position {
			return out[i].Position < out[j].Position
		}
		return out[i].Key < out[j].Key
	})
	return out
}

func (e *Evaluator) evaluateOne(ctx context.Context, def *domain.RuleDefinition, w *domain.WithdrawalRequest, ev *domain.Evidence) (v domain.RuleVerdict) {
	v = domain.RuleVerdict{RuleKey: def.Key, Critical: def.Critical}

	rule, ok := e.registry.Lookup(def.Key)
	if !ok {
		slog.Warn("unrecognized rule, skipped", "rule_key", def.Key, "withdrawal_id", w.ID)
		v.Passed = true
		v.Detail = detailUnrecognized
		v.ConfigWarning = true
		return v
	}

	defer func() {
		if rec := recover(); rec != nil {
			slog.Error("rule evaluator panicked", "rule_key", def.Key, "withdrawal_id", w.ID, "panic", rec)
			v = configFailure(def, fmt.Errorf("%w: evaluator panicked: %v", domain.ErrConfiguration, rec))
		}
	}()

	res, err := rule.Evaluate(ctx, def.Config, w, ev)
	if err != nil {
		if !errors.Is(err, domain.ErrConfiguration) {
			err = fmt.Errorf("%w: %v", domain.ErrConfiguration, err)
		}
		slog.Warn("rule configuration error", "rule_key", def.Key, "withdrawal_id", w.ID, "error", err)
		return configFailure(def, err)
	}

	v.Passed = res.Passed
	v.Detail = res.Detail
	return v
}

// configFailure degrades a broken rule to a non-critical failure so it can only force manual review.
func configFailure(def *domain.RuleDefinition, err error) domain.RuleVerdict {
	return domain.RuleVerdict{
		RuleKey:       def.Key,
		Passed:        false,
		Detail:        err.Error(),
		Critical:      false,
		ConfigWarning: true,
	}
}
