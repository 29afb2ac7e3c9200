// Package decision aggregates classification, turnover, risk and rule verdicts
// into one of three terminal decisions.
package decision

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/opensource-finance/harrier/internal/domain"
	"github.com/opensource-finance/harrier/internal/risk"
	"github.com/opensource-finance/harrier/internal/turnover"
)

const reasonSep = "; "

// Processor applies the decision precedence.
type Processor struct {
	now func() time.Time
}

// NewProcessor creates a processor using the wall clock.
func NewProcessor() *Processor {
	return &Processor{now: func() time.Time { return time.Now().UTC() }}
}

// Input contains all signals needed for a decision.
type Input struct {
	Classification domain.Classification
	Turnover       *domain.TurnoverReport
	TurnoverError  string
	Risk           *domain.RiskFinding
	Policy         *domain.BonusPolicy
	Verdicts       []domain.RuleVerdict
}

// InputFrom collects the decision signals of ev.
func InputFrom(ev *domain.Evidence, verdicts []domain.RuleVerdict) *Input {
	return &Input{
		Classification: ev.Classification,
		Turnover:       ev.Turnover,
		TurnoverError:  ev.TurnoverError,
		Risk:           ev.Risk,
		Policy:         ev.Policy,
		Verdicts:       verdicts,
	}
}

// Preempted reports whether the decision is already fixed before any rule runs:
// no reference, a cashback verdict, or HIGH risk.
func Preempted(in *Input) bool {
	c := in.Classification
	switch {
	case c.Type == domain.RefUnknown || c.Reference == nil:
		return true
	case c.Type == domain.RefCashback && c.Cashback != nil:
		return true
	case in.Risk != nil && in.Risk.Severity == domain.SeverityHigh:
		return true
	}
	return false
}

// Process evaluates the signals in strict precedence order.
func (p *Processor) Process(_ context.Context, in *Input) domain.Decision {
	value, reasons, listed := p.decide(in)

	// configuration warnings are never hidden
	for i, v := range in.Verdicts {
		if v.ConfigWarning && !listed[i] {
			reasons = append(reasons, formatVerdict(v))
		}
	}

	return domain.Decision{
		Value:       value,
		Reason:      strings.Join(reasons, reasonSep),
		EvaluatedAt: p.now(),
	}
}

// Failed is the decision recorded when evaluation could not complete.
func (p *Processor) Failed(err error) domain.Decision {
	return domain.Decision{
		Value:       domain.DecisionManual,
		Reason:      fmt.Sprintf("evaluation failed: %v", err),
		EvaluatedAt: p.now(),
	}
}

func (p *Processor) decide(in *Input) (domain.DecisionValue, []string, map[int]bool) {
	c := in.Classification
	listed := make(map[int]bool)

	// 1. nothing funds the withdrawal
	if c.Type == domain.RefUnknown || c.Reference == nil {
		reason := "classification: no deposit/reference event found"
		if in.TurnoverError != "" && !strings.Contains(in.TurnoverError, "no deposit/reference") {
			reason += " (" + in.TurnoverError + ")"
		}
		return domain.DecisionManual, []string{reason}, listed
	}

	// 2. cashback has its own verdict
	if c.Type == domain.RefCashback && c.Cashback != nil {
		reason := "classification: CASHBACK, " + c.Cashback.Reason
		if c.Cashback.Eligible {
			return domain.DecisionApprove, []string{reason}, listed
		}
		return domain.DecisionManual, []string{reason}, listed
	}

	// 3. spin-hoarding
	if in.Risk != nil && in.Risk.Severity == domain.SeverityHigh {
		return domain.DecisionManual, []string{"risk: " + risk.Describe(in.Risk)}, listed
	}

	// 4. default-deny for unconfigured bonus types
	if c.Type.IsBonusLike() && in.Policy == nil {
		return domain.DecisionManual, []string{fmt.Sprintf("bonus-policy: no matching bonus policy for %s", c.Type)}, listed
	}

	// 5. wagering is a hard stop
	exempt := turnover.Exempt(c, in.Policy)
	if !exempt {
		if in.Turnover == nil {
			reason := "turnover: not computed"
			if in.TurnoverError != "" {
				reason += " (" + in.TurnoverError + ")"
			}
			return domain.DecisionManual, []string{reason}, listed
		}
		if !in.Turnover.IsComplete {
			return domain.DecisionReject, []string{"turnover: incomplete " + turnover.Summary(in.Turnover)}, listed
		}
	}

	// 6. and 7. rule failures
	var critical, soft []string
	for i, v := range in.Verdicts {
		if v.Passed {
			continue
		}
		listed[i] = true
		if v.Critical {
			critical = append(critical, formatVerdict(v))
		} else {
			soft = append(soft, formatVerdict(v))
		}
	}
	if len(critical) > 0 {
		return domain.DecisionReject, critical, listed
	}
	if len(soft) > 0 {
		return domain.DecisionManual, soft, listed
	}

	// 8. everything passed
	reasons := []string{"classification: " + string(c.Type)}
	if exempt {
		reasons = append(reasons, "turnover: exempt")
	} else {
		reasons = append(reasons, "turnover: complete "+turnover.Summary(in.Turnover))
	}
	if in.Policy != nil {
		reasons = append(reasons, fmt.Sprintf("bonus-policy: %s", in.Policy.Name))
	}
	for i, v := range in.Verdicts {
		listed[i] = true
		reasons = append(reasons, formatVerdict(v))
	}
	return domain.DecisionApprove, reasons, listed
}

func formatVerdict(v domain.RuleVerdict) string {
	s := fmt.Sprintf("rule %s: %s", v.RuleKey, v.Detail)
	if v.ConfigWarning {
		return "config warning: " + s
	}
	return s
}
