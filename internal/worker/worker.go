// Package worker consumes pending-withdrawal messages from the EventBus and
// feeds them to the batch processor.
package worker

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/opensource-finance/harrier/internal/batch"
	"github.com/opensource-finance/harrier/internal/domain"
)

// BatchEvaluator evaluates a batch of withdrawals.
type BatchEvaluator interface {
	EvaluateBatch(ctx context.Context, ws []domain.WithdrawalRequest) (map[string]batch.Result, error)
}

// Worker evaluates withdrawal batches published on TopicWithdrawalsPending.
type Worker struct {
	bus       domain.EventBus
	evaluator BatchEvaluator

	// batches never overlap, so evaluation stays oldest first across messages
	mu sync.Mutex

	subscriptions []domain.Subscription
	ctx           context.Context
	cancel        context.CancelFunc

	batches   atomic.Int64
	evaluated atomic.Int64
	failed    atomic.Int64
}

// NewWorker creates a new async worker.
func NewWorker(bus domain.EventBus, evaluator BatchEvaluator) *Worker {
	ctx, cancel := context.WithCancel(context.Background())
	return &Worker{
		bus:       bus,
		evaluator: evaluator,
		ctx:       ctx,
		cancel:    cancel,
	}
}

// Start subscribes to the pending-withdrawals topic.
func (w *Worker) Start() error {
	sub, err := w.bus.Subscribe(w.ctx, domain.TopicWithdrawalsPending, w.handleMessage)
	if err != nil {
		return fmt.Errorf("failed to subscribe to %s: %w", domain.TopicWithdrawalsPending, err)
	}
	w.subscriptions = append(w.subscriptions, sub)

	slog.Info("worker started",
		"topic", domain.TopicWithdrawalsPending,
	)
	return nil
}

// DecodeWithdrawals accepts either a JSON array of withdrawals or a single object.
func DecodeWithdrawals(payload []byte) ([]domain.WithdrawalRequest, error) {
	payload = bytes.TrimSpace(payload)
	if len(payload) > 0 && payload[0] == '{' {
		var one domain.WithdrawalRequest
		if err := json.Unmarshal(payload, &one); err != nil {
			return nil, err
		}
		return []domain.WithdrawalRequest{one}, nil
	}

	var ws []domain.WithdrawalRequest
	if err := json.Unmarshal(payload, &ws); err != nil {
		return nil, err
	}
	return ws, nil
}

func (w *Worker) handleMessage(ctx context.Context, msg *domain.Message) error {
	start := time.Now()

	ws, err := DecodeWithdrawals(msg.Payload)
	if err != nil {
		slog.Error("failed to parse withdrawal message",
			"message_id", msg.ID,
			"error", err,
		)
		return err
	}
	if len(ws) == 0 {
		return nil
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	results, err := w.evaluator.EvaluateBatch(ctx, ws)
	w.batches.Add(1)
	w.evaluated.Add(int64(len(results)))
	if err != nil {
		w.failed.Add(1)
		slog.Error("withdrawal batch finished with errors",
			"message_id", msg.ID,
			"size", len(ws),
			"evaluated", len(results),
			"error", err,
		)
		return err
	}

	slog.Info("withdrawal batch processed",
		"message_id", msg.ID,
		"size", len(ws),
		"evaluated", len(results),
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return nil
}

// Stop gracefully stops the worker.
func (w *Worker) Stop() error {
	w.cancel()

	for _, sub := range w.subscriptions {
		if err := sub.Unsubscribe(); err != nil {
			slog.Error("failed to unsubscribe",
				"topic", sub.Topic(),
				"error", err,
			)
		}
	}
	w.subscriptions = nil

	// wait for an in-flight batch
	w.mu.Lock()
	w.mu.Unlock()

	slog.Info("worker stopped")
	return nil
}

// Stats returns worker statistics.
type Stats struct {
	SubscriptionCount int      `json:"subscriptionCount"`
	Topics            []string `json:"topics"`
	Batches           int64    `json:"batches"`
	Evaluated         int64    `json:"evaluated"`

	// Failed counts batches that returned an error.
	Failed int64 `json:"failed"`
}

// GetStats returns current worker statistics.
func (w *Worker) GetStats() Stats {
	topics := make([]string, len(w.subscriptions))
	for i, sub := range w.subscriptions {
		topics[i] = sub.Topic()
	}
	return Stats{
		SubscriptionCount: len(w.subscriptions),
		Topics:            topics,
		Batches:           w.batches.Load(),
		Evaluated:         w.evaluated.Load(),
		Failed:            w.failed.Load(),
	}
}
