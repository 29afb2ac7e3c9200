package rules

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/opensource-finance/harrier/internal/classifier"
	"github.com/opensource-finance/harrier/internal/domain"
	"github.com/opensource-finance/harrier/internal/turnover"
)

func builtins() map[string]RuleFunc {
	return map[string]RuleFunc{
		domain.RuleMaxAmount:            maxAmount,
		domain.RuleMaxWithdrawalRatio:   maxWithdrawalRatio,
		domain.RuleRequireDepositToday:  requireDepositToday,
		domain.RuleNoBonusAfterDeposit:  noBonusAfterDeposit,
		domain.RuleNoFreeSpinBonus:      noFreeSpinBonus,
		domain.RuleNoSportsBets:         noSportsBets,
		domain.RuleForbiddenGames:       forbiddenGames,
		domain.RuleTurnoverComplete:     turnoverComplete,
		domain.RuleBonusAutoApproval:    bonusAutoApproval,
		domain.RuleBonusWithdrawalLimit: bonusWithdrawalLimit,
		domain.RuleBonusMinBalance:      bonusMinBalance,
		domain.RuleBonusMaxRemaining:    bonusMaxRemaining,
		domain.RuleBonusDepositID:       bonusDepositID,
		domain.RuleIPMultiAccount:       ipMultiAccount,
		domain.RuleProfileVerified:      profileVerified,
		domain.RuleRecentWithdrawals:    recentWithdrawals,
	}
}

// policyChecks hold every matched bonus policy to its own settings,
// whether or not a rule row names them.
var policyChecks = []struct {
	key string
	fn  RuleFunc
}{
	{domain.RuleBonusAutoApproval, bonusAutoApproval},
	{domain.RuleBonusWithdrawalLimit, bonusWithdrawalLimit},
	{domain.RuleBonusMinBalance, bonusMinBalance},
	{domain.RuleBonusMaxRemaining, bonusMaxRemaining},
	{domain.RuleBonusDepositID, bonusDepositID},
}

// decodeConfig unmarshals cfg into T. Empty config yields the zero value.
func decodeConfig[T any](cfg json.RawMessage) (T, error) {
	var out T
	trimmed := bytes.TrimSpace(cfg)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return out, nil
	}
	dec := json.NewDecoder(bytes.NewReader(trimmed))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&out); err != nil {
		return out, fmt.Errorf("%w: malformed config: %v", domain.ErrConfiguration, err)
	}
	return out, nil
}

func configErr(format string, args ...any) error {
	return fmt.Errorf("%w: "+format, append([]any{domain.ErrConfiguration}, args...)...)
}

func pass(format string, args ...any) (Result, error) {
	return Result{Passed: true, Detail: fmt.Sprintf(format, args...)}, nil
}

func fail(format string, args ...any) (Result, error) {
	return Result{Passed: false, Detail: fmt.Sprintf(format, args...)}, nil
}

// policyWaivesDeposit reports whether the matched policy bypasses deposit-based checks.
func policyWaivesDeposit(ev *domain.Evidence) bool {
	return ev.Classification.Type.IsBonusLike() && ev.Policy != nil && ev.Policy.IgnoreDepositRule
}

func maxAmount(_ context.Context, raw json.RawMessage, w *domain.WithdrawalRequest, _ *domain.Evidence) (Result, error) {
	cfg, err := decodeConfig[struct {
		Max float64 `json:"max"`
	}](raw)
	if err != nil {
		return Result{}, err
	}
	if cfg.Max <= 0 {
		return Result{}, configErr("max must be positive")
	}
	if w.Amount > cfg.Max {
		return fail("amount %.2f exceeds ceiling %.2f", w.Amount, cfg.Max)
	}
	return pass("amount %.2f within ceiling %.2f", w.Amount, cfg.Max)
}

func maxWithdrawalRatio(_ context.Context, raw json.RawMessage, w *domain.WithdrawalRequest, ev *domain.Evidence) (Result, error) {
	cfg, err := decodeConfig[struct {
		Ratio float64 `json:"ratio"`
	}](raw)
	if err != nil {
		return Result{}, err
	}
	if cfg.Ratio <= 0 {
		return Result{}, configErr("ratio must be positive")
	}
	if policyWaivesDeposit(ev) {
		return pass("deposit ratio waived by policy %q", ev.Policy.Name)
	}

	dep := ev.Classification.Deposit
	if ev.Classification.Type == domain.RefDeposit && ev.Classification.Reference != nil {
		dep = ev.Classification.Reference
	}
	if dep == nil || dep.Amount <= 0 {
		return fail("no deposit to compare against")
	}

	limit := cfg.Ratio * dep.Amount
	if w.Amount > limit {
		return fail("amount %.2f exceeds %gx deposit %.2f (limit %.2f)", w.Amount, cfg.Ratio, dep.Amount, limit)
	}
	return pass("amount %.2f within %gx deposit %.2f", w.Amount, cfg.Ratio, dep.Amount)
}

func requireDepositToday(_ context.Context, raw json.RawMessage, _ *domain.WithdrawalRequest, ev *domain.Evidence) (Result, error) {
	cfg, err := decodeConfig[struct {
		Timezone string `json:"timezone"`
	}](raw)
	if err != nil {
		return Result{}, err
	}
	loc := time.UTC
	if cfg.Timezone != "" {
		loc, err = time.LoadLocation(cfg.Timezone)
		if err != nil {
			return Result{}, configErr("unknown timezone %q", cfg.Timezone)
		}
	}
	if policyWaivesDeposit(ev) {
		return pass("deposit recency waived by policy %q", ev.Policy.Name)
	}

	dep := ev.Classification.Deposit
	if dep == nil {
		return fail("no deposit in lookback window")
	}
	depDay := dep.Time.In(loc).Format(time.DateOnly)
	today := ev.Now.In(loc).Format(time.DateOnly)
	if depDay != today {
		return fail("last deposit on %s, not today (%s)", depDay, today)
	}
	return pass("deposited today (%s)", today)
}

func noBonusAfterDeposit(_ context.Context, raw json.RawMessage, _ *domain.WithdrawalRequest, ev *domain.Evidence) (Result, error) {
	cfg, err := decodeConfig[struct {
		WindowMinutes int `json:"windowMinutes"`
	}](raw)
	if err != nil {
		return Result{}, err
	}
	if cfg.WindowMinutes < 0 {
		return Result{}, configErr("windowMinutes must not be negative")
	}

	dep := ev.Classification.Deposit
	if dep == nil {
		return pass("no deposit to check against")
	}
	for _, tx := range ev.Transactions {
		if tx.DocumentType != domain.DocBonusGrant || !tx.CreatedAt.After(dep.Time) {
			continue
		}
		if cfg.WindowMinutes > 0 && tx.CreatedAt.Sub(dep.Time) > time.Duration(cfg.WindowMinutes)*time.Minute {
			continue
		}
		return fail("bonus %.2f granted at %s after deposit", tx.Amount, tx.CreatedAt.Format(time.RFC3339))
	}
	return pass("no bonus after deposit")
}

func noFreeSpinBonus(_ context.Context, _ json.RawMessage, _ *domain.WithdrawalRequest, ev *domain.Evidence) (Result, error) {
	dep := ev.Classification.Deposit
	if dep == nil {
		return pass("no deposit to check against")
	}
	for i := range ev.Transactions {
		tx := &ev.Transactions[i]
		if !tx.CreatedAt.After(dep.Time) {
			continue
		}
		switch tx.DocumentType {
		case domain.DocFreeSpinWin, domain.DocBonusGrant, domain.DocCorrectionUp, domain.DocCorrectionDown:
			return fail("%s %.2f recorded after deposit", tx.DocumentType, tx.Amount)
		case domain.DocWin:
			if classifier.ContainsAny(tx.SearchText(), "freespin") {
				return fail("free-spin win %.2f recorded after deposit", tx.Amount)
			}
		}
	}
	return pass("no free-spin, bonus or correction after deposit")
}

func noSportsBets(_ context.Context, _ json.RawMessage, _ *domain.WithdrawalRequest, ev *domain.Evidence) (Result, error) {
	n := 0
	for _, b := range ev.SportsBets {
		if b.State != "void" {
			n++
		}
	}
	if n == 0 && ev.Turnover != nil {
		n = ev.Turnover.SportsBetSeen
	}
	if n > 0 {
		return fail("%d sportsbook bets in window", n)
	}
	return pass("no sportsbook bets")
}

func forbiddenGames(_ context.Context, raw json.RawMessage, _ *domain.WithdrawalRequest, ev *domain.Evidence) (Result, error) {
	cfg, err := decodeConfig[struct {
		Games []string `json:"games"`
	}](raw)
	if err != nil {
		return Result{}, err
	}
	if len(cfg.Games) == 0 {
		return Result{}, configErr("games denylist is empty")
	}
	if ev.Turnover == nil {
		return pass("no wagering recorded")
	}

	var hits []string
	for _, g := range ev.Turnover.Games {
		if g.Wagered <= 0 {
			continue
		}
		name := strings.ToLower(g.Game)
		for _, deny := range cfg.Games {
			deny = strings.ToLower(strings.TrimSpace(deny))
			if deny != "" && strings.Contains(name, deny) {
				hits = append(hits, g.Game)
				break
			}
		}
	}
	if len(hits) > 0 {
		return fail("forbidden games played: %s", strings.Join(hits, ", "))
	}
	return pass("no forbidden games played")
}

func turnoverComplete(_ context.Context, raw json.RawMessage, _ *domain.WithdrawalRequest, ev *domain.Evidence) (Result, error) {
	cfg, err := decodeConfig[struct {
		MinPercentage *int `json:"minPercentage"`
	}](raw)
	if err != nil {
		return Result{}, err
	}
	minPct := 100
	if cfg.MinPercentage != nil {
		if *cfg.MinPercentage < 0 {
			return Result{}, configErr("minPercentage must not be negative")
		}
		minPct = *cfg.MinPercentage
	}

	if turnover.Exempt(ev.Classification, ev.Policy) {
		return pass("turnover exempt for %s", ev.Classification.Type)
	}
	if ev.Turnover == nil {
		if ev.TurnoverError != "" {
			return fail("turnover not computed: %s", ev.TurnoverError)
		}
		return fail("turnover not computed")
	}
	if ev.Turnover.Total.Percentage < minPct {
		return fail("turnover %s below %d%%", turnover.Summary(ev.Turnover), minPct)
	}
	return pass("turnover %s", turnover.Summary(ev.Turnover))
}

func bonusAutoApproval(_ context.Context, _ json.RawMessage, _ *domain.WithdrawalRequest, ev *domain.Evidence) (Result, error) {
	p := ev.Policy
	if p == nil {
		return pass("no bonus policy")
	}
	if !p.AutoApprovalEnabled {
		return fail("policy %q does not allow auto-approval", p.Name)
	}
	return pass("policy %q allows auto-approval", p.Name)
}

func bonusWithdrawalLimit(_ context.Context, _ json.RawMessage, w *domain.WithdrawalRequest, ev *domain.Evidence) (Result, error) {
	p := ev.Policy
	if p == nil {
		return pass("no bonus policy")
	}

	base := 0.0
	if ev.Classification.Reference != nil {
		base = ev.Classification.Reference.Amount
	}

	var violations []string
	if p.FixedWithdrawalAmount > 0 && w.Amount > p.FixedWithdrawalAmount {
		violations = append(violations, fmt.Sprintf("amount %.2f exceeds fixed %.2f", w.Amount, p.FixedWithdrawalAmount))
	}
	if p.MaxAmount > 0 && w.Amount > p.MaxAmount {
		violations = append(violations, fmt.Sprintf("amount %.2f exceeds max %.2f", w.Amount, p.MaxAmount))
	}
	if p.MaxWithdrawalMultiplier > 0 {
		if limit := base * p.MaxWithdrawalMultiplier; w.Amount > limit {
			violations = append(violations, fmt.Sprintf("amount %.2f exceeds %gx bonus (%.2f)", w.Amount, p.MaxWithdrawalMultiplier, limit))
		}
	}
	if p.MinWithdrawalMultiplier > 0 {
		if floor := base * p.MinWithdrawalMultiplier; w.Amount < floor {
			violations = append(violations, fmt.Sprintf("amount %.2f below %gx bonus (%.2f)", w.Amount, p.MinWithdrawalMultiplier, floor))
		}
	}

	if len(violations) > 0 {
		return fail("policy %q: %s", p.Name, strings.Join(violations, ", "))
	}
	return pass("policy %q withdrawal limits satisfied", p.Name)
}

func bonusMinBalance(_ context.Context, _ json.RawMessage, w *domain.WithdrawalRequest, ev *domain.Evidence) (Result, error) {
	p := ev.Policy
	if p == nil {
		return pass("no bonus policy")
	}
	if p.MinBalanceLimit <= 0 {
		return pass("policy %q has no minimum balance", p.Name)
	}
	before := w.Amount + ev.Balance()
	if before < p.MinBalanceLimit {
		return fail("balance before withdrawal %.2f below minimum %.2f", before, p.MinBalanceLimit)
	}
	return pass("balance before withdrawal %.2f meets minimum %.2f", before, p.MinBalanceLimit)
}

func bonusMaxRemaining(_ context.Context, _ json.RawMessage, _ *domain.WithdrawalRequest, ev *domain.Evidence) (Result, error) {
	p := ev.Policy
	if p == nil {
		return pass("no bonus policy")
	}
	if p.MaxRemainingBalance <= 0 {
		return pass("policy %q has no remaining balance limit", p.Name)
	}
	left := ev.Balance()
	if left <= p.MaxRemainingBalance {
		return pass("remaining balance %.2f within %.2f", left, p.MaxRemainingBalance)
	}
	if p.DeleteExcessBalance {
		return pass("remaining balance %.2f over %.2f, excess %.2f to be removed", left, p.MaxRemainingBalance, left-p.MaxRemainingBalance)
	}
	return fail("remaining balance %.2f exceeds %.2f", left, p.MaxRemainingBalance)
}

func bonusDepositID(_ context.Context, _ json.RawMessage, w *domain.WithdrawalRequest, ev *domain.Evidence) (Result, error) {
	p := ev.Policy
	if p == nil {
		return pass("no bonus policy")
	}
	if !p.RequireDepositID {
		return pass("policy %q does not require a deposit id", p.Name)
	}
	dep := ev.Classification.Deposit
	if dep == nil || dep.TransactionID == "" {
		return fail("policy %q requires a deposit, none found", p.Name)
	}

	notes := []string{w.Notes}
	if ref := ev.Classification.Reference; ref != nil {
		notes = append(notes, ref.Notes)
	}
	for _, n := range notes {
		if strings.Contains(n, dep.TransactionID) {
			return pass("deposit %s referenced in notes", dep.TransactionID)
		}
	}
	return fail("deposit %s not referenced in bonus notes", dep.TransactionID)
}

func ipMultiAccount(_ context.Context, raw json.RawMessage, _ *domain.WithdrawalRequest, ev *domain.Evidence) (Result, error) {
	cfg, err := decodeConfig[struct {
		MaxLinked int `json:"maxLinked"`
	}](raw)
	if err != nil {
		return Result{}, err
	}
	if cfg.MaxLinked < 0 {
		return Result{}, configErr("maxLinked must not be negative")
	}
	if n := len(ev.LinkedAccounts); n > cfg.MaxLinked {
		ids := make([]string, 0, n)
		for _, a := range ev.LinkedAccounts {
			ids = append(ids, a.ClientID)
		}
		return fail("%d other accounts share login IPs: %s", n, strings.Join(ids, ", "))
	}
	return pass("%d linked accounts", len(ev.LinkedAccounts))
}

func profileVerified(_ context.Context, _ json.RawMessage, _ *domain.WithdrawalRequest, ev *domain.Evidence) (Result, error) {
	if ev.Profile == nil {
		return fail("client profile unavailable")
	}
	if !ev.Profile.Verified {
		return fail("client %s is not verified", ev.Profile.ClientID)
	}
	return pass("client verified")
}

func recentWithdrawals(_ context.Context, raw json.RawMessage, _ *domain.WithdrawalRequest, ev *domain.Evidence) (Result, error) {
	cfg, err := decodeConfig[struct {
		Max int `json:"max"`
	}](raw)
	if err != nil {
		return Result{}, err
	}
	if cfg.Max <= 0 {
		return Result{}, configErr("max must be positive")
	}
	if ev.RecentWithdrawals > cfg.Max {
		return fail("%d recent withdrawals (limit %d)", ev.RecentWithdrawals, cfg.Max)
	}
	return pass("%d recent withdrawals", ev.RecentWithdrawals)
}
