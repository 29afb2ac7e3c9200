package rules

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/google/cel-go/cel"
	"github.com/google/cel-go/common/types"

	"github.com/opensource-finance/harrier/internal/domain"
)

// ExpressionEngine evaluates operator-authored CEL expressions over withdrawal evidence.
// Compiled programs are cached by expression text.
type ExpressionEngine struct {
	mu       sync.RWMutex
	env      *cel.Env
	programs map[string]cel.Program
}

// expressionConfig is the config of an EXPRESSION rule.
type expressionConfig struct {
	Expression string `json:"expression"`
	Detail     string `json:"detail"`
}

// NewExpressionEngine creates a CEL environment exposing the evidence variables.
func NewExpressionEngine() (*ExpressionEngine, error) {
	env, err := cel.NewEnv(
		cel.Variable("amount", cel.DoubleType),
		cel.Variable("balance", cel.DoubleType),
		cel.Variable("classification", cel.StringType),
		cel.Variable("reference_amount", cel.DoubleType),
		cel.Variable("deposit_amount", cel.DoubleType),
		cel.Variable("turnover_percentage", cel.IntType),
		cel.Variable("casino_wagered", cel.DoubleType),
		cel.Variable("sports_wagered", cel.DoubleType),
		cel.Variable("risk_severity", cel.StringType),
		cel.Variable("linked_accounts", cel.IntType),
		cel.Variable("recent_withdrawals", cel.IntType),
		cel.Variable("policy_name", cel.StringType),
		cel.Variable("verified", cel.BoolType),
		cel.Variable("payment_system", cel.StringType),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create CEL environment: %w", err)
	}

	return &ExpressionEngine{
		env:      env,
		programs: make(map[string]cel.Program),
	}, nil
}

// Validate compiles expr without caching it.
func (e *ExpressionEngine) Validate(expr string) error {
	_, err := e.compile(expr)
	return err
}

// ValidateConfig checks the config of an EXPRESSION rule definition.
func (e *ExpressionEngine) ValidateConfig(raw json.RawMessage) error {
	cfg, err := decodeConfig[expressionConfig](raw)
	if err != nil {
		return err
	}
	return e.Validate(cfg.Expression)
}

// Evaluate implements Rule. The expression must return bool; true means passed.
func (e *ExpressionEngine) Evaluate(_ context.Context, raw json.RawMessage, w *domain.WithdrawalRequest, ev *domain.Evidence) (Result, error) {
	cfg, err := decodeConfig[expressionConfig](raw)
	if err != nil {
		return Result{}, err
	}

	prg, err := e.program(cfg.Expression)
	if err != nil {
		return Result{}, err
	}

	out, _, err := prg.Eval(activation(w, ev))
	if err != nil {
		return Result{}, configErr("evaluation error: %v", err)
	}
	passed, ok := out.(types.Bool)
	if !ok {
		return Result{}, configErr("expression returned %s, want bool", out.Type().TypeName())
	}

	detail := cfg.Detail
	if detail == "" {
		detail = cfg.Expression
	}
	return Result{Passed: bool(passed), Detail: detail}, nil
}

// CachedPrograms returns the number of compiled programs held.
func (e *ExpressionEngine) CachedPrograms() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.programs)
}

func (e *ExpressionEngine) program(expr string) (cel.Program, error) {
	e.mu.RLock()
	prg, ok := e.programs[expr]
	e.mu.RUnlock()
	if ok {
		return prg, nil
	}

	prg, err := e.compile(expr)
	if err != nil {
		return nil, err
	}

	e.mu.Lock()
	e.programs[expr] = prg
	e.mu.Unlock()
	return prg, nil
}

func (e *ExpressionEngine) compile(expr string) (cel.Program, error) {
	if strings.TrimSpace(expr) == "" {
		return nil, configErr("expression is empty")
	}

	ast, issues := e.env.Compile(expr)
	if issues != nil && issues.Err() != nil {
		return nil, configErr("failed to compile expression: %v", issues.Err())
	}
	if ast.OutputType() != cel.BoolType {
		return nil, configErr("expression must return bool, got %s", ast.OutputType())
	}

	prg, err := e.env.Program(ast)
	if err != nil {
		return nil, configErr("failed to create program: %v", err)
	}
	return prg, nil
}

func activation(w *domain.WithdrawalRequest, ev *domain.Evidence) map[string]any {
	vars := map[string]any{
		"amount":              w.Amount,
		"balance":             ev.Balance(),
		"classification":      string(ev.Classification.Type),
		"reference_amount":    0.0,
		"deposit_amount":      0.0,
		"turnover_percentage": int64(0),
		"casino_wagered":      0.0,
		"sports_wagered":      0.0,
		"risk_severity":       string(domain.SeverityLow),
		"linked_accounts":     int64(len(ev.LinkedAccounts)),
		"recent_withdrawals":  int64(ev.RecentWithdrawals),
		"policy_name":         "",
		"verified":            ev.Profile != nil && ev.Profile.Verified,
		"payment_system":      w.PaymentSystem,
	}
	if ref := ev.Classification.Reference; ref != nil {
		vars["reference_amount"] = ref.Amount
	}
	if dep := ev.Classification.Deposit; dep != nil {
		vars["deposit_amount"] = dep.Amount
	}
	if t := ev.Turnover; t != nil {
		vars["turnover_percentage"] = int64(t.Total.Percentage)
		vars["casino_wagered"] = t.Casino.Wagered
		vars["sports_wagered"] = t.Sports.Wagered
	}
	if ev.Risk != nil {
		vars["risk_severity"] = string(ev.Risk.Severity)
	}
	if ev.Policy != nil {
		vars["policy_name"] = ev.Policy.Name
	}
	return vars
}
