package batch

import (
	"context"
	"log/slog"
	"time"

	"github.com/opensource-finance/harrier/internal/domain"
)

// RunOnce fetches the pending withdrawals and evaluates them as one batch.
func (p *Processor) RunOnce(ctx context.Context) (map[string]Result, error) {
	var pending []domain.WithdrawalRequest
	err := p.retry(ctx, "pending_withdrawals", func(ctx context.Context) error {
		ws, err := p.vendor.FetchPendingWithdrawals(ctx)
		if err != nil {
			return err
		}
		pending = ws
		return nil
	})
	if err != nil {
		return nil, err
	}
	if len(pending) == 0 {
		return map[string]Result{}, nil
	}
	return p.EvaluateBatch(ctx, pending)
}

// Run polls the vendor every interval until ctx is cancelled. A failed poll
// is logged and retried on the next tick.
func (p *Processor) Run(ctx context.Context, interval time.Duration) error {
	if interval <= 0 {
		interval = p.batch.PollInterval
	}
	if interval <= 0 {
		interval = 30 * time.Second
	}

	slog.Info("batch processor started",
		"interval", interval.String(),
		"live", p.batch.Live,
		"lookback_days", p.batch.LookbackDays,
	)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		p.poll(ctx)

		select {
		case <-ctx.Done():
			slog.Info("batch processor stopped")
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

func (p *Processor) poll(ctx context.Context) {
	start := time.Now()
	results, err := p.RunOnce(ctx)
	if err != nil && ctx.Err() == nil {
		slog.Error("batch poll failed", "error", err)
	}

	counts := make(map[domain.DecisionValue]int)
	cached := 0
	for _, r := range results {
		counts[r.Decision]++
		if r.FromCache {
			cached++
		}
	}
	if len(results) > 0 {
		slog.Info("batch poll complete",
			"withdrawals", len(results),
			"approved", counts[domain.DecisionApprove],
			"rejected", counts[domain.DecisionReject],
			"manual", counts[domain.DecisionManual],
			"from_cache", cached,
			"duration_ms", time.Since(start).Milliseconds(),
		)
	}
}
