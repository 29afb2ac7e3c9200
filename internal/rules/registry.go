// Package rules evaluates the configurable withdrawal rule set.
package rules

import (
	"context"
	"encoding/json"
	"sort"
	"sync"

	"github.com/opensource-finance/harrier/internal/domain"
)

// Result is what a single rule reports.
type Result struct {
	Passed bool
	Detail string
}

// Rule is a pure check over its own config and the shared evidence.
// Returning an error marks the rule as misconfigured.
type Rule interface {
	Evaluate(ctx context.Context, cfg json.RawMessage, w *domain.WithdrawalRequest, ev *domain.Evidence) (Result, error)
}

// RuleFunc adapts a plain function to Rule.
type RuleFunc func(ctx context.Context, cfg json.RawMessage, w *domain.WithdrawalRequest, ev *domain.Evidence) (Result, error)

// Evaluate calls f.
func (f RuleFunc) Evaluate(ctx context.Context, cfg json.RawMessage, w *domain.WithdrawalRequest, ev *domain.Evidence) (Result, error) {
	return f(ctx, cfg, w, ev)
}

// Registry maps rule keys to evaluators.
type Registry struct {
	mu    sync.RWMutex
	rules map[string]Rule
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{rules: make(map[string]Rule)}
}

// DefaultRegistry returns a registry with every built-in rule.
// EXPRESSION is registered only when expr is non-nil.
func DefaultRegistry(expr *ExpressionEngine) *Registry {
	r := NewRegistry()
	for key, fn := range builtins() {
		r.Register(key, fn)
	}
	if expr != nil {
		r.Register(domain.RuleExpression, expr)
	}
	return r
}

// Register adds or replaces the evaluator for key.
func (r *Registry) Register(key string, rule Rule) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.rules[key] = rule
}

// Lookup returns the evaluator for key.
func (r *Registry) Lookup(key string) (Rule, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rule, ok := r.rules[key]
	return rule, ok
}

// Keys returns the registered rule keys, sorted.
func (r *Registry) Keys() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	keys := make([]string, 0, len(r.rules))
	for k := range r.rules {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
