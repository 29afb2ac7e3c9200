package batch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/opensource-finance/harrier/internal/domain"
	"github.com/opensource-finance/harrier/internal/metrics"
)

// retry runs fn until it succeeds, fails with a non-retryable error, or the
// attempt budget is spent. Unauthorized failures refresh the vendor session
// before the next attempt.
func (p *Processor) retry(ctx context.Context, op string, fn func(context.Context) error) error {
	attempts := p.batch.MaxAttempts
	if attempts <= 0 {
		attempts = domain.DefaultMaxAttempts
	}

	for attempt := 1; ; attempt++ {
		err := fn(ctx)
		if err == nil {
			return nil
		}
		if !domain.IsRetryable(err) {
			return err
		}
		if attempt >= attempts {
			return fmt.Errorf("%s: giving up after %d attempts: %w", op, attempts, err)
		}

		var fe *domain.FetchError
		errors.As(err, &fe)
		metrics.FetchRetries.WithLabelValues(string(fe.Kind)).Inc()

		if fe.Kind == domain.FetchUnauthorized {
			if rerr := p.vendor.Reauthenticate(ctx); rerr != nil {
				slog.Warn("vendor reauthentication failed",
					"op", op,
					"error", rerr,
				)
			}
		}

		delay := p.backoff(attempt)
		slog.Warn("retrying vendor fetch",
			"op", op,
			"attempt", attempt,
			"max_attempts", attempts,
			"delay_ms", delay.Milliseconds(),
			"error", err,
		)
		if err := p.sleep(ctx, delay); err != nil {
			return err
		}
	}
}

// backoff doubles from BaseBackoff per attempt and is capped at MaxBackoff.
func (p *Processor) backoff(attempt int) time.Duration {
	base := p.batch.BaseBackoff
	if base <= 0 {
		base = domain.DefaultBaseBackoff
	}
	ceiling := p.batch.MaxBackoff
	if ceiling <= 0 {
		ceiling = domain.DefaultMaxBackoff
	}

	d := base
	for i := 1; i < attempt; i++ {
		d *= 2
		if d >= ceiling {
			return ceiling
		}
	}
	if d > ceiling {
		return ceiling
	}
	return d
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
