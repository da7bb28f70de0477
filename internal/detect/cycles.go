package detect

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/opensource-finance/kestrel/internal/domain"
	"github.com/opensource-finance/kestrel/internal/graph"
)

const (
	minCycleLen = 3
	maxCycleLen = 5
)

// detectCycles finds circular fund loops of 3 to 5 accounts. Demoted
// accounts are removed first so a merchant sitting on a loop does not
// mint a ring. Enumeration is capped per strongly connected component
// and bounded by one wall-clock deadline across the whole pass;
// hitting either limit keeps what was found.
func detectCycles(g *graph.Graph, demoted map[string]bool, cfg domain.DetectionConfig) []domain.Ring {
	keep := make(map[string]bool, g.NodeCount())
	for _, n := range g.Nodes() {
		if !demoted[n] {
			keep[n] = true
		}
	}
	filtered := g.Subgraph(keep)

	dl := graph.NewDeadline(cfg.CycleTimeBudget)

	var rings []domain.Ring
	seen := make(map[string]bool)

	for _, scc := range filtered.StronglyConnected() {
		if len(scc) < minCycleLen {
			continue
		}
		if dl.Exceeded() {
			break
		}

		for _, cycle := range filtered.SimpleCycles(scc, maxCycleLen, cfg.MaxCyclesPerComponent, dl) {
			if len(cycle) < minCycleLen {
				continue
			}

			canonical := sortedKey(cycle)
			if seen[canonical] {
				continue
			}
			seen[canonical] = true

			edges := make([]domain.RingEdge, len(cycle))
			total := 0.0
			for i, s := range cycle {
				r := cycle[(i+1)%len(cycle)]
				edges[i] = domain.RingEdge{Source: s, Target: r}
				if e := g.Edge(s, r); e != nil {
					total += e.Amount
				}
			}

			risk := math.Min(100, 55+float64(5-len(cycle))*12+math.Min(33, total/2000))
			rings = append(rings, domain.Ring{
				RingID:         fmt.Sprintf("LOOP_%04d", len(rings)+1),
				PatternType:    domain.PatternCycle,
				MemberAccounts: cycle,
				MemberCount:    len(cycle),
				RiskScore:      round2(risk),
				TotalAmount:    round2(total),
				Edges:          edges,
			})
		}
	}

	return rings
}

// sortedKey canonicalizes a cycle by its sorted member set so
// rotations collapse to one ring.
func sortedKey(members []string) string {
	s := make([]string, len(members))
	copy(s, members)
	sort.Strings(s)
	return strings.Join(s, "\x00")
}

func round2(x float64) float64 {
	return math.Round(x*100) / 100
}
