package detect

import (
	"sort"

	"github.com/opensource-finance/kestrel/internal/domain"
)

// salaryRecipients returns accounts whose inflow comes from exactly
// one unique sender which is a payroll trap. They are employees, and
// stripping them keeps a payroll run from dressing up as a fan-out
// ring.
func salaryRecipients(stats map[string]*accountStats, payroll map[string]bool) map[string]bool {
	out := make(map[string]bool)
	for id, s := range stats {
		if s.recvUnique != 1 || len(s.inPartners) == 0 {
			continue
		}
		if payroll[s.inPartners[0]] {
			out[id] = true
		}
	}
	return out
}

// aggregateRings merges detector outputs, strips salary recipients
// from every ring, drops rings left too small, and re-ranks by risk.
func aggregateRings(rings []domain.Ring, salary map[string]bool) []domain.Ring {
	if len(salary) > 0 {
		filtered := make([]domain.Ring, 0, len(rings))
		for _, ring := range rings {
			members := make([]string, 0, len(ring.MemberAccounts))
			for _, m := range ring.MemberAccounts {
				if !salary[m] {
					members = append(members, m)
				}
			}
			edges := make([]domain.RingEdge, 0, len(ring.Edges))
			for _, e := range ring.Edges {
				if !salary[e.Source] && !salary[e.Target] {
					edges = append(edges, e)
				}
			}

			if ring.PatternType == domain.PatternCycle && len(members) < 3 {
				continue
			}
			if ring.PatternType != domain.PatternCycle && len(members) < 2 {
				continue
			}

			ring.MemberAccounts = members
			ring.MemberCount = len(members)
			ring.Edges = edges
			filtered = append(filtered, ring)
		}
		rings = filtered
	}

	sort.SliceStable(rings, func(i, j int) bool {
		return rings[i].RiskScore > rings[j].RiskScore
	})
	return rings
}
