package linkage

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/opensource-finance/harrier/internal/cache"
	"github.com/opensource-finance/harrier/internal/domain"
)

type fakeLookup struct {
	calls    map[string]int
	accounts map[string][]domain.AccountSummary
	err      error
}

func (f *fakeLookup) FetchAccountsByIP(ctx context.Context, ip string) ([]domain.AccountSummary, error) {
	if f.calls == nil {
		f.calls = make(map[string]int)
	}
	f.calls[ip]++
	if f.err != nil {
		return nil, f.err
	}
	return f.accounts[ip], nil
}

func TestDistinctIPs(t *testing.T) {
	logins := []domain.LoginRecord{
		{IP: "10.0.0.1"},
		{IP: ""},
		{IP: "10.0.0.2"},
		{IP: "10.0.0.1"},
	}

	ips := DistinctIPs(logins)
	if len(ips) != 2 || ips[0] != "10.0.0.1" || ips[1] != "10.0.0.2" {
		t.Errorf("unexpected ips: %v", ips)
	}
}

func TestLinkedAccounts(t *testing.T) {
	now := time.Now()
	lookup := &fakeLookup{
		accounts: map[string][]domain.AccountSummary{
			"10.0.0.1": {
				{ClientID: "self"},
				{ClientID: "c-9", LastSeen: now.Add(-time.Hour)},
				{ClientID: "c-3"},
			},
			"10.0.0.2": {
				{ClientID: "c-9", IP: "10.0.0.2", LastSeen: now},
			},
		},
	}
	d := NewDetector(lookup, cache.NewLRUCache(10), time.Minute)

	logins := []domain.LoginRecord{{IP: "10.0.0.1"}, {IP: "10.0.0.2"}, {IP: "10.0.0.1"}}

	linked, err := d.LinkedAccounts(context.Background(), "self", logins)
	if err != nil {
		t.Fatalf("LinkedAccounts failed: %v", err)
	}

	if len(linked) != 2 {
		t.Fatalf("expected 2 linked accounts, got %d: %+v", len(linked), linked)
	}
	if linked[0].ClientID != "c-3" || linked[1].ClientID != "c-9" {
		t.Errorf("expected sorted c-3, c-9, got %s, %s", linked[0].ClientID, linked[1].ClientID)
	}
	if linked[0].IP != "10.0.0.1" {
		t.Errorf("expected lookup IP filled in, got %q", linked[0].IP)
	}
	if linked[1].IP != "10.0.0.2" {
		t.Errorf("expected most recent sighting kept, got %q", linked[1].IP)
	}

	if _, err := d.LinkedAccounts(context.Background(), "self", logins); err != nil {
		t.Fatalf("LinkedAccounts failed: %v", err)
	}
	if lookup.calls["10.0.0.1"] != 1 {
		t.Errorf("expected one vendor lookup per IP, got %d", lookup.calls["10.0.0.1"])
	}
}

func TestLinkedAccountsNoLogins(t *testing.T) {
	d := NewDetector(&fakeLookup{}, nil, 0)

	linked, err := d.LinkedAccounts(context.Background(), "self", nil)
	if err != nil {
		t.Fatalf("LinkedAccounts failed: %v", err)
	}
	if len(linked) != 0 {
		t.Errorf("expected no linked accounts, got %d", len(linked))
	}
}

func TestLinkedAccountsError(t *testing.T) {
	fetchErr := &domain.FetchError{Op: "accounts_by_ip", Kind: domain.FetchRateLimited, Status: 429, Err: errors.New("slow down")}
	d := NewDetector(&fakeLookup{err: fetchErr}, nil, 0)

	_, err := d.LinkedAccounts(context.Background(), "self", []domain.LoginRecord{{IP: "10.0.0.1"}})
	if !domain.IsRetryable(err) {
		t.Errorf("expected retryable error to survive wrapping, got %v", err)
	}
}
