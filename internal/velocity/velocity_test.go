package velocity

import (
	"context"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/opensource-finance/harrier/internal/domain"
	"github.com/opensource-finance/harrier/internal/repository"
)

func TestVelocityService(t *testing.T) {
	tmpFile, err := os.CreateTemp("", "velocity-test-*.db")
	if err != nil {
		t.Fatalf("failed to create temp file: %v", err)
	}
	tmpPath := tmpFile.Name()
	tmpFile.Close()
	defer os.Remove(tmpPath)

	repo, err := repository.New(domain.RepositoryConfig{
		Driver:     "sqlite",
		SQLitePath: tmpPath,
	})
	if err != nil {
		t.Fatalf("failed to create repository: %v", err)
	}
	defer repo.Close()

	svc := NewService(repo, time.Hour)
	ctx := context.Background()

	t.Run("EmptyDatabase", func(t *testing.T) {
		count, err := svc.RecentWithdrawals(ctx, "client-001", time.Time{})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if count != 0 {
			t.Errorf("expected count 0 for empty database, got %d", count)
		}
	})

	t.Run("WithSnapshots", func(t *testing.T) {
		now := time.Now().UTC()
		requested := []time.Time{
			now.Add(-10 * time.Minute),
			now.Add(-20 * time.Minute),
			now.Add(-30 * time.Minute),
			now.Add(-3 * time.Hour),
			now,
			now.Add(10 * time.Minute),
		}
		for i, at := range requested {
			s := &domain.Snapshot{
				WithdrawalID: fmt.Sprintf("w-%d", i),
				ClientID:     "client-001",
				Amount:       100,
				RequestedAt:  at,
				Decision: domain.Decision{
					Value:       domain.DecisionApprove,
					Reason:      "ok",
					EvaluatedAt: now,
				},
			}
			if _, _, err := repo.CreateSnapshot(ctx, s); err != nil {
				t.Fatalf("failed to save snapshot: %v", err)
			}
		}

		count, err := svc.RecentWithdrawals(ctx, "client-001", now)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if count != 3 {
			t.Errorf("expected 3 withdrawals within the hour, got %d", count)
		}

		// the window is anchored at the withdrawal being evaluated, not the wall clock
		count, err = svc.RecentWithdrawals(ctx, "client-001", now.Add(-15*time.Minute))
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if count != 2 {
			t.Errorf("expected 2 withdrawals before asOf, got %d", count)
		}

		count, err = svc.RecentWithdrawals(ctx, "client-002", now)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if count != 0 {
			t.Errorf("expected count 0 for unknown client, got %d", count)
		}
	})

	t.Run("RequiresClientID", func(t *testing.T) {
		_, err := svc.RecentWithdrawals(ctx, "", time.Time{})
		if err == nil {
			t.Error("expected error for empty clientID")
		}
	})
}

func TestDefaultWindow(t *testing.T) {
	svc := NewService(nil, 0)
	if svc.Window() != 24*time.Hour {
		t.Errorf("expected 24h default window, got %s", svc.Window())
	}
}

func TestNoDataSource(t *testing.T) {
	svc := NewService(nil, time.Hour)

	_, err := svc.RecentWithdrawals(context.Background(), "client", time.Time{})
	if err == nil {
		t.Error("expected error with no data source")
	}
}
