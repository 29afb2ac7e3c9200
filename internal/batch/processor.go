// Package batch orchestrates withdrawal evaluation: evidence gathering,
// decisioning, at-most-once snapshotting and optional payout execution.
package batch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strconv"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/singleflight"

	"github.com/opensource-finance/harrier/internal/bus"
	"github.com/opensource-finance/harrier/internal/classifier"
	"github.com/opensource-finance/harrier/internal/decision"
	"github.com/opensource-finance/harrier/internal/domain"
	"github.com/opensource-finance/harrier/internal/linkage"
	"github.com/opensource-finance/harrier/internal/metrics"
	"github.com/opensource-finance/harrier/internal/rules"
	"github.com/opensource-finance/harrier/internal/velocity"
)

// Catalog supplies the current rule set and bonus policies.
type Catalog interface {
	Rules(ctx context.Context) ([]*domain.RuleDefinition, error)
	Policies(ctx context.Context) ([]*domain.BonusPolicy, error)
}

// Result is the outcome of one withdrawal in a batch.
type Result struct {
	WithdrawalID string               `json:"withdrawalId"`
	Decision     domain.DecisionValue `json:"decision"`
	Reason       string               `json:"reason"`
	FromCache    bool                 `json:"fromCache"`
}

// Deps are the collaborators of a Processor. Bus and Cache are optional.
type Deps struct {
	Vendor    domain.VendorClient
	Repo      domain.Repository
	Catalog   Catalog
	Evaluator *rules.Evaluator
	Bus       domain.EventBus
	Cache     domain.Cache
}

// Processor evaluates pending withdrawals.
type Processor struct {
	vendor    domain.VendorClient
	repo      domain.Repository
	catalog   Catalog
	evaluator *rules.Evaluator
	bus       domain.EventBus
	decider   *decision.Processor
	velocity  *velocity.Service
	linkage   *linkage.Detector

	engine     domain.EngineConfig
	batch      domain.BatchConfig
	thresholds classifier.Thresholds

	group  singleflight.Group
	tracer trace.Tracer
	now    func() time.Time
	sleep  func(context.Context, time.Duration) error
}

// New creates a batch processor.
func New(deps Deps, engine domain.EngineConfig, batch domain.BatchConfig) *Processor {
	if batch.LookbackDays <= 0 {
		batch.LookbackDays = domain.DefaultLookbackDays
	}
	return &Processor{
		vendor:     deps.Vendor,
		repo:       deps.Repo,
		catalog:    deps.Catalog,
		evaluator:  deps.Evaluator,
		bus:        deps.Bus,
		decider:    decision.NewProcessor(),
		velocity:   velocity.NewService(deps.Repo, engine.VelocityWindow),
		linkage:    linkage.NewDetector(deps.Vendor, deps.Cache, 0),
		engine:     engine,
		batch:      batch,
		thresholds: classifier.ThresholdsFrom(engine),
		tracer:     otel.Tracer("harrier/batch"),
		now:        func() time.Time { return time.Now().UTC() },
		sleep:      sleepContext,
	}
}

// Live reports whether approved withdrawals are paid out.
func (p *Processor) Live() bool {
	return p.batch.Live
}

// EvaluateBatch evaluates ws sequentially, oldest request first. Withdrawals
// that already have a snapshot return the stored decision. Terminal
// withdrawals never seen before are skipped. A failure on one withdrawal does
// not stop the batch; all failures are joined into the returned error.
func (p *Processor) EvaluateBatch(ctx context.Context, ws []domain.WithdrawalRequest) (map[string]Result, error) {
	metrics.BatchSize.Observe(float64(len(ws)))

	ordered := make([]domain.WithdrawalRequest, len(ws))
	copy(ordered, ws)
	sort.SliceStable(ordered, func(i, j int) bool {
		if !ordered[i].RequestedAt.Equal(ordered[j].RequestedAt) {
			return ordered[i].RequestedAt.Before(ordered[j].RequestedAt)
		}
		return ordered[i].ID < ordered[j].ID
	})

	ids := make([]string, 0, len(ordered))
	for _, w := range ordered {
		ids = append(ids, w.ID)
	}
	existing, err := p.repo.ExistingSnapshots(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("failed to load existing snapshots: %w", err)
	}

	results := make(map[string]Result, len(ordered))
	var errs []error
	for _, w := range ordered {
		if err := ctx.Err(); err != nil {
			errs = append(errs, err)
			break
		}
		if _, done := results[w.ID]; done {
			continue
		}

		if s, ok := existing[w.ID]; ok {
			results[w.ID] = p.replay(ctx, w, s)
			continue
		}
		if w.State.IsTerminal() {
			slog.Debug("skipping closed withdrawal without snapshot",
				"withdrawal_id", w.ID,
				"state", w.State,
			)
			continue
		}

		res, err := p.Evaluate(ctx, w)
		if err != nil {
			slog.Error("withdrawal evaluation failed",
				"withdrawal_id", w.ID,
				"client_id", w.ClientID,
				"error", err,
			)
			errs = append(errs, fmt.Errorf("%s: %w", w.ID, err))
			continue
		}
		results[w.ID] = res
	}

	return results, errors.Join(errs...)
}

// Evaluate decides one withdrawal. Concurrent calls for the same id share a
// single evaluation. A closed withdrawal with no stored decision is not
// evaluated and yields domain.ErrWithdrawalClosed.
func (p *Processor) Evaluate(ctx context.Context, w domain.WithdrawalRequest) (Result, error) {
	if w.ID == "" || w.ClientID == "" {
		return Result{}, fmt.Errorf("%w: withdrawal id and client id are required", domain.ErrInvalidInput)
	}
	if w.State == "" {
		w.State = domain.StateNew
	}

	leader := false
	v, err, _ := p.group.Do(w.ID, func() (any, error) {
		leader = true
		return p.evaluate(ctx, w)
	})
	if err != nil {
		return Result{}, err
	}
	res := v.(Result)
	if !leader {
		res.FromCache = true
	}
	return res, nil
}

// replay returns a stored decision and mirrors a closed vendor state onto it.
func (p *Processor) replay(ctx context.Context, w domain.WithdrawalRequest, s *domain.Snapshot) Result {
	if w.State.IsTerminal() && w.State != s.ExternalState {
		if err := p.repo.UpdateSnapshotState(ctx, w.ID, w.State); err != nil {
			slog.Warn("failed to sync withdrawal state",
				"withdrawal_id", w.ID,
				"state", w.State,
				"error", err,
			)
		}
	}

	res := resultOf(s, true)
	metrics.Decisions.WithLabelValues(string(res.Decision), "cached").Inc()
	p.publish(ctx, domain.TopicDecision, res, w.ClientID)
	return res
}

func (p *Processor) evaluate(ctx context.Context, w domain.WithdrawalRequest) (Result, error) {
	if s, err := p.repo.GetSnapshot(ctx, w.ID); err == nil {
		return p.replay(ctx, w, s), nil
	} else if !errors.Is(err, domain.ErrNotFound) {
		return Result{}, fmt.Errorf("failed to read snapshot: %w", err)
	}
	if w.State.IsTerminal() {
		return Result{}, fmt.Errorf("%w: %s is %s", domain.ErrWithdrawalClosed, w.ID, w.State)
	}

	ctx, span := p.tracer.Start(ctx, "batch.evaluate",
		trace.WithAttributes(
			attribute.String("withdrawal.id", w.ID),
			attribute.String("client.id", w.ClientID),
			attribute.Float64("withdrawal.amount", w.Amount),
		),
	)
	defer span.End()

	start := time.Now()
	p.publish(ctx, domain.TopicEvaluationStarted, Result{WithdrawalID: w.ID}, w.ClientID)

	var (
		ev       *domain.Evidence
		verdicts []domain.RuleVerdict
		d        domain.Decision
	)
	err := p.retry(ctx, "evidence", func(ctx context.Context) error {
		defs, err := p.catalog.Rules(ctx)
		if err != nil {
			return err
		}
		policies, err := p.catalog.Policies(ctx)
		if err != nil {
			return err
		}
		gathered, err := p.gather(ctx, w)
		if err != nil {
			return err
		}
		ev = gathered
		verdicts, d = p.assess(ctx, w, ev, defs, policies)
		return nil
	})

	origin := "evaluated"
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			span.SetStatus(codes.Error, "cancelled")
			return Result{}, ctxErr
		}
		span.RecordError(err)
		origin = "failed"
		ev, verdicts = nil, nil
		d = p.decider.Failed(err)
	}

	stored, created, err := p.repo.CreateSnapshot(ctx, snapshotOf(w, ev, verdicts, d))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "snapshot write failed")
		return Result{}, fmt.Errorf("failed to store snapshot: %w", err)
	}

	if !created {
		// another evaluator got there first; its decision stands
		origin = "cached"
	} else {
		p.audit(ctx, w, stored.Decision)
	}

	res := resultOf(stored, !created)
	span.SetAttributes(
		attribute.String("decision", string(res.Decision)),
		attribute.Bool("from_cache", res.FromCache),
	)
	metrics.Decisions.WithLabelValues(string(res.Decision), origin).Inc()
	metrics.EvaluationDuration.Observe(time.Since(start).Seconds())
	p.observe(ev, verdicts)

	slog.Info("withdrawal evaluated",
		"withdrawal_id", w.ID,
		"client_id", w.ClientID,
		"decision", res.Decision,
		"from_cache", res.FromCache,
		"live", p.batch.Live,
		"duration_ms", time.Since(start).Milliseconds(),
	)

	p.publish(ctx, domain.TopicDecision, res, w.ClientID)
	return res, nil
}

// audit records the decision and, in live mode, executes an approved payout
// for a withdrawal still open at the vendor. The payout outcome never changes
// the decision.
func (p *Processor) audit(ctx context.Context, w domain.WithdrawalRequest, d domain.Decision) {
	rec := &domain.DecisionRecord{
		WithdrawalID: w.ID,
		Decision:     d.Value,
		Reason:       d.Reason,
		Live:         p.batch.Live,
	}

	if p.batch.Live && d.Value == domain.DecisionApprove && w.State.Payable() {
		conf, err := p.vendor.SubmitPayout(ctx, w)
		if err != nil {
			rec.PayoutError = err.Error()
			metrics.Payouts.WithLabelValues("failed").Inc()
			slog.Error("payout submission failed",
				"withdrawal_id", w.ID,
				"client_id", w.ClientID,
				"error", err,
			)
		} else {
			rec.PayoutRef = conf.Reference
			metrics.Payouts.WithLabelValues("submitted").Inc()
			slog.Info("payout submitted",
				"withdrawal_id", w.ID,
				"payout_ref", conf.Reference,
			)
		}
	}

	if err := p.repo.SaveDecisionRecord(ctx, rec); err != nil {
		slog.Error("failed to save decision record",
			"withdrawal_id", w.ID,
			"error", err,
		)
	}
}

func (p *Processor) observe(ev *domain.Evidence, verdicts []domain.RuleVerdict) {
	if ev != nil && ev.Risk != nil && ev.Risk.IsRisky {
		metrics.RiskFindings.WithLabelValues(string(ev.Risk.Severity)).Inc()
	}
	for _, v := range verdicts {
		if v.ConfigWarning {
			metrics.ConfigWarnings.WithLabelValues(v.RuleKey).Inc()
		}
		if !v.Passed {
			metrics.RuleFailures.WithLabelValues(v.RuleKey, strconv.FormatBool(v.Critical)).Inc()
		}
	}
}

func (p *Processor) publish(ctx context.Context, topic string, res Result, clientID string) {
	if p.bus == nil {
		return
	}
	event := domain.EvaluationEvent{
		WithdrawalID: res.WithdrawalID,
		ClientID:     clientID,
		Decision:     res.Decision,
		Reason:       res.Reason,
		FromCache:    res.FromCache,
		Timestamp:    p.now().UnixNano(),
	}
	if err := bus.PublishJSON(ctx, p.bus, topic, event); err != nil {
		slog.Warn("failed to publish event",
			"topic", topic,
			"withdrawal_id", res.WithdrawalID,
			"error", err,
		)
	}
}

func resultOf(s *domain.Snapshot, fromCache bool) Result {
	return Result{
		WithdrawalID: s.WithdrawalID,
		Decision:     s.Decision.Value,
		Reason:       s.Decision.Reason,
		FromCache:    fromCache,
	}
}
