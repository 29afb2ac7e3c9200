// Package bonus matches a reference event to the operator-configured bonus policy.
package bonus

import (
	"sort"
	"strings"

	"github.com/opensource-finance/harrier/internal/domain"
)

// Match returns the first active policy whose keyword appears, case-insensitively,
// in any metadata field of ref. Policies are tried by ascending Priority, then
// insertion order (CreatedAt, then ID). Returns nil when nothing matches.
func Match(ref *domain.ReferenceEvent, policies []*domain.BonusPolicy) *domain.BonusPolicy {
	fields := ref.Metadata()
	if len(fields) == 0 {
		return nil
	}
	for i := range fields {
		fields[i] = strings.ToLower(fields[i])
	}

	for _, p := range Ordered(policies) {
		kw := strings.ToLower(strings.TrimSpace(p.MatchKeyword))
		for _, f := range fields {
			if f != "" && strings.Contains(f, kw) {
				return p
			}
		}
	}
	return nil
}

// Ordered returns the active policies with a usable keyword in match order.
// The input slice is not modified.
func Ordered(policies []*domain.BonusPolicy) []*domain.BonusPolicy {
	out := make([]*domain.BonusPolicy, 0, len(policies))
	for _, p := range policies {
		if p == nil || !p.IsActive || strings.TrimSpace(p.MatchKeyword) == "" {
			continue
		}
		out = append(out, p)
	}
	sort.SliceStable(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if a.Priority != b.Priority {
			return a.Priority < b.Priority
		}
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.Before(b.CreatedAt)
		}
		return a.ID < b.ID
	})
	return out
}
