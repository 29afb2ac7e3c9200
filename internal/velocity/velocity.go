// Package velocity counts a client's recent withdrawals.
package velocity

import (
	"context"
	"fmt"
	"time"
)

// Counter is the persistence query velocity needs.
type Counter interface {
	CountSnapshotsByClient(ctx context.Context, clientID string, since, until time.Time) (int, error)
}

// Service counts how many withdrawals a client has requested within a window.
// Only evaluated withdrawals are counted; the one being evaluated has no
// snapshot yet and so is never part of its own count.
type Service struct {
	counter Counter
	window  time.Duration
	now     func() time.Time
}

// NewService creates a velocity service. A non-positive window defaults to 24h.
func NewService(counter Counter, window time.Duration) *Service {
	if window <= 0 {
		window = 24 * time.Hour
	}
	return &Service{
		counter: counter,
		window:  window,
		now:     time.Now,
	}
}

// Window returns the lookback used by RecentWithdrawals.
func (s *Service) Window() time.Duration {
	return s.window
}

// RecentWithdrawals returns the number of withdrawals of clientID requested
// within the window ending at asOf, excluding asOf itself. A zero asOf means now.
func (s *Service) RecentWithdrawals(ctx context.Context, clientID string, asOf time.Time) (int, error) {
	if clientID == "" {
		return 0, fmt.Errorf("clientID is required")
	}
	if s.counter == nil {
		return 0, fmt.Errorf("no data source available")
	}
	if asOf.IsZero() {
		asOf = s.now()
	}

	count, err := s.counter.CountSnapshotsByClient(ctx, clientID, asOf.Add(-s.window), asOf)
	if err != nil {
		return 0, fmt.Errorf("failed to count withdrawals: %w", err)
	}
	return count, nil
}
