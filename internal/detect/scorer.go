package detect

import (
	"fmt"
	"math"
	"sort"

	"github.com/opensource-finance/kestrel/internal/domain"
	"github.com/opensource-finance/kestrel/internal/graph"
)

// merchantFactor dampens structural signals for accounts whose sheer
// volume or connectivity says "institution", so a busy exchange does
// not outrank an actual mule.
func merchantFactor(volume float64, count, partners int) float64 {
	switch {
	case volume > 5_000_000 || (count > 500 && partners > 100):
		return 0.25
	case volume > 1_000_000 || (count > 200 && partners > 50):
		return 0.50
	case volume > 200_000:
		return 0.75
	default:
		return 1.0
	}
}

// scoreAccounts computes the per-account suspicion aggregate over all
// graph nodes, sorted by score descending.
func scoreAccounts(
	g *graph.Graph,
	stats map[string]*accountStats,
	rings []domain.Ring,
	payroll, merchant, salary map[string]bool,
) []domain.SuspicionRecord {
	membership := make(map[string][]*domain.Ring)
	for i := range rings {
		for _, m := range rings[i].MemberAccounts {
			membership[m] = append(membership[m], &rings[i])
		}
	}

	records := make([]domain.SuspicionRecord, 0, g.NodeCount())

	for _, node := range g.Nodes() {
		inDeg := g.InDegree(node)
		outDeg := g.OutDegree(node)

		s := stats[node]
		if s == nil {
			s = &accountStats{}
		}
		volume := s.totalVolume()
		count := s.txnCount()
		partners := s.uniquePartners()
		roundFrac := s.roundFrac()

		mf := merchantFactor(volume, count, partners)

		// Salary recipients keep their ring-free baseline; membership
		// they picked up through a payroll run does not count.
		nodeRings := membership[node]
		if salary[node] {
			nodeRings = nil
		}

		score := 0.0
		if len(nodeRings) > 0 {
			sum := 0.0
			for _, r := range nodeRings {
				sum += r.RiskScore
			}
			score += (sum / float64(len(nodeRings))) * 0.70 * mf
		}

		if inDeg >= 10 || outDeg >= 10 {
			score += math.Min(30, float64(inDeg+outDeg)*1.2) * mf
		}

		vel := 0.0
		if count > 1 {
			lo, hi := s.activitySpan()
			spanHours := math.Max(float64(hi-lo)/3600, 1)
			vel = float64(count) / spanHours
		}
		if vel > 0.5 {
			score += math.Min(15, vel*3) * mf
		}

		roundFlag := false
		if roundFrac > 0.7 && count >= 5 {
			score += 10 * mf
			roundFlag = true
		}

		patterns := make([]string, 0, len(nodeRings)+2)
		for _, r := range nodeRings {
			switch r.PatternType {
			case domain.PatternCycle:
				patterns = append(patterns, fmt.Sprintf("cycle_length_%d", r.MemberCount))
			default:
				patterns = append(patterns, string(r.PatternType))
			}
		}
		if vel > 0.5 {
			patterns = append(patterns, "high_velocity")
		}
		if roundFlag {
			patterns = append(patterns, "round_number_amounts")
		}
		patterns = dedupFirstSeen(patterns)

		score = math.Min(100, score)
		if payroll[node] {
			score = math.Min(score, 15)
		}
		if salary[node] {
			score = math.Min(score, 25)
		}
		if merchant[node] {
			score = math.Min(score, 20)
		}

		ringID := ""
		if len(nodeRings) > 0 {
			ringID = nodeRings[0].RingID
		}

		records = append(records, domain.SuspicionRecord{
			AccountID:        node,
			SuspicionScore:   round2(score),
			DetectedPatterns: patterns,
			RingID:           ringID,
			InDegree:         inDeg,
			OutDegree:        outDeg,
			TotalVolume:      round2(volume),
			TransactionCount: count,
			RingCount:        len(nodeRings),
			PatternTypes:     patternTypes(nodeRings),
			MerchantFactor:   mf,
		})
	}

	sort.SliceStable(records, func(i, j int) bool {
		return records[i].SuspicionScore > records[j].SuspicionScore
	})
	return records
}

func patternTypes(rings []*domain.Ring) []domain.PatternType {
	seen := make(map[domain.PatternType]bool)
	out := make([]domain.PatternType, 0, len(rings))
	for _, r := range rings {
		if !seen[r.PatternType] {
			seen[r.PatternType] = true
			out = append(out, r.PatternType)
		}
	}
	return out
}

func dedupFirstSeen(items []string) []string {
	seen := make(map[string]bool, len(items))
	out := items[:0]
	for _, it := range items {
		if !seen[it] {
			seen[it] = true
			out = append(out, it)
		}
	}
	return out
}
