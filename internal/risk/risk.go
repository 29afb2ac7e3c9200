// Package risk detects spin-hoarding: wins recorded on games with no recorded wager.
package risk

import (
	"fmt"
	"strings"

	"github.com/opensource-finance/harrier/internal/domain"
)

// Analyze flags every game with wagered == 0 and won > 0.
// Severity is HIGH when any flagged win exceeds highWin, MEDIUM when anything is flagged.
func Analyze(games []domain.GameTurnover, highWin float64) *domain.RiskFinding {
	if highWin <= 0 {
		highWin = domain.RiskHighWinThreshold
	}

	finding := &domain.RiskFinding{Severity: domain.SeverityLow}
	for _, g := range games {
		if g.Wagered != 0 || g.Won <= 0 {
			continue
		}
		finding.SuspiciousGames = append(finding.SuspiciousGames, domain.SuspiciousGame{
			Game:    g.Game,
			Wagered: 0,
			Won:     g.Won,
		})
		if g.Won > highWin {
			finding.Severity = domain.SeverityHigh
		} else if finding.Severity != domain.SeverityHigh {
			finding.Severity = domain.SeverityMedium
		}
	}

	finding.IsRisky = len(finding.SuspiciousGames) > 0
	return finding
}

// Describe renders flagged games for audit reasons, e.g. "SlotX won 200.00 with no wager".
func Describe(f *domain.RiskFinding) string {
	if f == nil || !f.IsRisky {
		return "no suspicious games"
	}
	parts := make([]string, 0, len(f.SuspiciousGames))
	for _, g := range f.SuspiciousGames {
		parts = append(parts, fmt.Sprintf("%s won %.2f with no wager", g.Game, g.Won))
	}
	return fmt.Sprintf("%s severity: %s", f.Severity, strings.Join(parts, ", "))
}
