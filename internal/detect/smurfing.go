package detect

import (
	"fmt"
	"math"

	"github.com/opensource-finance/kestrel/internal/domain"
	"github.com/opensource-finance/kestrel/internal/graph"
	"github.com/opensource-finance/kestrel/internal/velocity"
)

const (
	// At least half of an account's deposits (or disbursals) must land
	// inside one burst window to read as smurfing.
	smurfClusterFraction = 0.5
	smurfMinBurst        = 3

	smurfMaxMembers = 40
	smurfMaxEdges   = 80
)

// detectSmurfing finds fan-in and fan-out hubs: accounts whose inbound
// or outbound activity clusters into a single burst window. The two
// checks are independent and one account can produce both rings.
func detectSmurfing(g *graph.Graph, stats map[string]*accountStats, demoted map[string]bool, cfg domain.DetectionConfig) []domain.Ring {
	var rings []domain.Ring
	window := cfg.BurstWindow
	windowSecs := int64(window.Seconds())

	makeRing := func(hub string, pattern domain.PatternType, counterparts []string, edges []domain.RingEdge, totalVolume float64) domain.Ring {
		risk := math.Min(100, 45+float64(len(counterparts))*2.5+math.Min(25, totalVolume/50000))

		members := []string{hub}
		seen := map[string]bool{}
		for _, cp := range counterparts {
			if len(members) > smurfMaxMembers {
				break
			}
			if !seen[cp] {
				seen[cp] = true
				members = append(members, cp)
			}
		}
		if len(edges) > smurfMaxEdges {
			edges = edges[:smurfMaxEdges]
		}

		return domain.Ring{
			RingID:         fmt.Sprintf("SMURF_%04d", len(rings)+1),
			PatternType:    pattern,
			MemberAccounts: members,
			MemberCount:    len(members),
			RiskScore:      round2(risk),
			TotalAmount:    round2(totalVolume),
			CenterNode:     hub,
			Edges:          edges,
		}
	}

	for _, node := range g.Nodes() {
		inDeg := g.InDegree(node)
		outDeg := g.OutDegree(node)

		if inDeg < 3 && outDeg < 3 {
			continue
		}
		if demoted[node] {
			continue
		}

		s := stats[node]
		if s == nil {
			continue
		}

		// Fan-in: a deposit burst followed by re-dispersal. Pure
		// receivers never qualify; that shape is merchant revenue.
		if inDeg >= 3 && len(s.outTimes) > 0 {
			burst := velocity.MaxBurst(s.inTimes, window)
			fraction := float64(burst.Count) / float64(len(s.inTimes))

			if fraction >= smurfClusterFraction && burst.Count >= smurfMinBurst {
				clusterStart := s.inTimes[burst.Start]
				clusterEnd := s.inTimes[burst.End]

				dispersed := false
				for _, ts := range s.outTimes {
					if ts >= clusterStart && ts <= clusterEnd+windowSecs {
						dispersed = true
						break
					}
				}

				if dispersed {
					senders := withoutDemoted(s.inPartners, demoted)
					if len(senders) > 0 {
						edges := make([]domain.RingEdge, len(senders))
						for i, sd := range senders {
							edges[i] = domain.RingEdge{Source: sd, Target: node}
						}
						// Reported amount is the hub's full inbound
						// volume, not just the windowed slice. The
						// overcount ranks sustained collectors above
						// one-off bursts.
						rings = append(rings, makeRing(node, domain.PatternFanIn, senders, edges, s.recvVolume))
					}
				}
			}
		}

		// Fan-out: one tight disbursal burst. Payroll senders spread
		// salaries over months and fail the clustering gate even
		// before demotion.
		if outDeg >= 3 {
			burst := velocity.MaxBurst(s.outTimes, window)
			fraction := 0.0
			if len(s.outTimes) > 0 {
				fraction = float64(burst.Count) / float64(len(s.outTimes))
			}

			if burst.Count >= smurfMinBurst && fraction >= smurfClusterFraction {
				receivers := withoutDemoted(s.outPartners, demoted)
				if len(receivers) > 0 {
					edges := make([]domain.RingEdge, len(receivers))
					for i, rc := range receivers {
						edges[i] = domain.RingEdge{Source: node, Target: rc}
					}
					rings = append(rings, makeRing(node, domain.PatternFanOut, receivers, edges, s.sendVolume))
				}
			}
		}
	}

	return rings
}

func withoutDemoted(partners []string, demoted map[string]bool) []string {
	out := make([]string, 0, len(partners))
	for _, p := range partners {
		if !demoted[p] {
			out = append(out, p)
		}
	}
	return out
}
