// Package linkage finds other accounts that share login IP addresses with a client.
package linkage

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/opensource-finance/harrier/internal/cache"
	"github.com/opensource-finance/harrier/internal/domain"
)

const namespace = "linkage"

// DefaultTTL bounds how long an IP lookup is reused across evaluations.
const DefaultTTL = 10 * time.Minute

// IPLookup is the vendor query linkage needs.
type IPLookup interface {
	FetchAccountsByIP(ctx context.Context, ip string) ([]domain.AccountSummary, error)
}

// Detector resolves linked accounts from login history.
type Detector struct {
	lookup IPLookup
	cache  domain.Cache
	ttl    time.Duration
}

// NewDetector creates a detector. A nil cache disables lookup caching.
func NewDetector(lookup IPLookup, c domain.Cache, ttl time.Duration) *Detector {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Detector{lookup: lookup, cache: c, ttl: ttl}
}

// LinkedAccounts returns the accounts other than clientID seen on any of the
// distinct IPs in logins, one entry per account, sorted by client id.
func (d *Detector) LinkedAccounts(ctx context.Context, clientID string, logins []domain.LoginRecord) ([]domain.AccountSummary, error) {
	seen := make(map[string]domain.AccountSummary)
	for _, ip := range DistinctIPs(logins) {
		accounts, err := d.accountsByIP(ctx, ip)
		if err != nil {
			return nil, err
		}
		for _, a := range accounts {
			if a.ClientID == "" || a.ClientID == clientID {
				continue
			}
			if prev, ok := seen[a.ClientID]; !ok || a.LastSeen.After(prev.LastSeen) {
				if a.IP == "" {
					a.IP = ip
				}
				seen[a.ClientID] = a
			}
		}
	}

	out := make([]domain.AccountSummary, 0, len(seen))
	for _, a := range seen {
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ClientID < out[j].ClientID })
	return out, nil
}

// DistinctIPs returns the non-empty IPs of logins in first-seen order.
func DistinctIPs(logins []domain.LoginRecord) []string {
	seen := make(map[string]bool, len(logins))
	var ips []string
	for _, l := range logins {
		if l.IP == "" || seen[l.IP] {
			continue
		}
		seen[l.IP] = true
		ips = append(ips, l.IP)
	}
	return ips
}

func (d *Detector) accountsByIP(ctx context.Context, ip string) ([]domain.AccountSummary, error) {
	if d.cache != nil {
		accounts, ok, err := cache.GetJSON[[]domain.AccountSummary](ctx, d.cache, namespace, ip)
		if err != nil {
			slog.Warn("linkage cache read failed", "ip", ip, "error", err)
		}
		if ok {
			return accounts, nil
		}
	}

	accounts, err := d.lookup.FetchAccountsByIP(ctx, ip)
	if err != nil {
		return nil, fmt.Errorf("accounts by ip %s: %w", ip, err)
	}

	if d.cache != nil {
		if err := cache.SetJSON(ctx, d.cache, namespace, ip, accounts, d.ttl); err != nil {
			slog.Warn("linkage cache write failed", "ip", ip, "error", err)
		}
	}
	return accounts, nil
}
