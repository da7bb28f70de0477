// Package simulate implements what-if analysis: the projected impact
// of one hypothetical transaction on an already-computed analysis
// result, without rerunning detection.
package simulate

import (
	"fmt"
	"math"
	"sort"
	"strings"
	"sync/atomic"
	"time"

	"github.com/opensource-finance/kestrel/internal/domain"
	"github.com/opensource-finance/kestrel/internal/graph"
)

// Simulator replays hypothetical edges against prior analysis results.
// Stateless apart from the simulation id counter; safe for concurrent
// use.
type Simulator struct {
	cfg     domain.DetectionConfig
	counter atomic.Uint64
}

// New creates a Simulator.
func New(cfg domain.DetectionConfig) *Simulator {
	return &Simulator{cfg: cfg}
}

// Run projects the impact of req onto the given prior analysis. The
// prior result is read only; the simulator works on a rebuilt copy of
// its graph payload.
func (s *Simulator) Run(prior *domain.AnalysisResult, req domain.SimulationRequest) *domain.SimulationResult {
	start := time.Now()

	sender, receiver, amount := req.SenderID, req.ReceiverID, req.Amount
	if req.Timestamp == "" {
		req.Timestamp = time.Now().UTC().Format("2006-01-02 15:04:05")
	}

	orig := graph.FromPayload(&prior.Graph)
	sim := graph.FromPayload(&prior.Graph)

	newNodes := 0
	if !sim.HasNode(sender) {
		sim.AddNode(sender)
		newNodes++
	}
	if !sim.HasNode(receiver) {
		sim.AddNode(receiver)
		newNodes++
	}
	sim.AddEdge(sender, receiver, amount)

	affected := neighborhood(sim, []string{sender, receiver})

	deltas := s.scoreDeltas(prior, orig, sim, affected, amount)
	cycles := s.newCycles(prior.FraudRings, orig, sim, affected, sender, receiver, amount)
	impacts, merges := ringImpacts(prior.FraudRings, sender, receiver, amount)
	smurfTriggered, smurfAccount := smurfingTrigger(orig, sim, sender, receiver)
	chainExtended, chainDetail := chainExtension(prior.FraudRings, sender, receiver)

	verdict, reason := verdict(cycles, merges, impacts, smurfTriggered, smurfAccount, deltas)

	return &domain.SimulationResult{
		SimulationID:          fmt.Sprintf("SIM_%03d", s.counter.Add(1)),
		HypotheticalTx:        req,
		Verdict:               verdict,
		VerdictReason:         reason,
		NewCyclesCreated:      cycles,
		RingsAffected:         impacts,
		RingsMerged:           merges,
		ScoreDeltas:           deltas,
		NewSmurfingTriggered:  smurfTriggered,
		SmurfingAccount:       smurfAccount,
		NewShellChainExtended: chainExtended,
		ChainExtensionDetail:  chainDetail,
		SubgraphDelta: domain.SubgraphDelta{
			NodesAffected:      len(affected),
			EdgesAdded:         1,
			NewNodesIntroduced: newNodes,
		},
		ProcessingTimeMs: round2(float64(time.Since(start).Microseconds()) / 1000),
	}
}

// neighborhood returns the seeds plus their direct predecessors and
// successors.
func neighborhood(g *graph.Graph, seeds []string) map[string]bool {
	out := make(map[string]bool)
	for _, n := range seeds {
		out[n] = true
		for _, v := range g.Successors(n) {
			out[v] = true
		}
		for _, v := range g.Predecessors(n) {
			out[v] = true
		}
	}
	return out
}

// scoreDeltas estimates per-account score movement from degree changes
// and transaction size. Only movements beyond the noise floor of 2 are
// reported, largest first.
func (s *Simulator) scoreDeltas(prior *domain.AnalysisResult, orig, sim *graph.Graph, affected map[string]bool, amount float64) []domain.ScoreDelta {
	oldScores := make(map[string]float64, len(prior.SuspiciousAccounts))
	for _, acc := range prior.SuspiciousAccounts {
		oldScores[acc.AccountID] = acc.SuspicionScore
	}

	ids := make([]string, 0, len(affected))
	for id := range affected {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	var deltas []domain.ScoreDelta
	for _, id := range ids {
		oldIn, oldOut := 0, 0
		if orig.HasNode(id) {
			oldIn, oldOut = orig.InDegree(id), orig.OutDegree(id)
		}
		newIn, newOut := sim.InDegree(id), sim.OutDegree(id)

		delta := 0.0
		var reasons []string
		if newIn > oldIn {
			delta += float64(newIn-oldIn) * 3.5
			reasons = append(reasons, fmt.Sprintf("fan-in +%d", newIn-oldIn))
		}
		if newOut > oldOut {
			delta += float64(newOut-oldOut) * 3.5
			reasons = append(reasons, fmt.Sprintf("fan-out +%d", newOut-oldOut))
		}
		switch {
		case amount > 10000:
			delta += math.Min(8, amount/10000)
			reasons = append(reasons, "high amount")
		case amount > 5000:
			delta += math.Min(5, amount/5000)
			reasons = append(reasons, "moderate amount")
		}

		if math.Abs(delta) <= 2 {
			continue
		}

		old := oldScores[id]
		reason := "structural change"
		if len(reasons) > 0 {
			reason = strings.Join(reasons, ", ")
		}
		deltas = append(deltas, domain.ScoreDelta{
			AccountID:   id,
			OldScore:    round2(old),
			NewScore:    round2(math.Min(100, old+delta)),
			Delta:       round2(delta),
			DeltaReason: reason,
		})
	}

	sort.SliceStable(deltas, func(i, j int) bool {
		return math.Abs(deltas[i].Delta) > math.Abs(deltas[j].Delta)
	})
	return deltas
}

// newCycles searches the affected neighborhood for cycles that only
// exist because of the hypothetical edge and are not already covered
// by a detected ring.
func (s *Simulator) newCycles(rings []domain.Ring, orig, sim *graph.Graph, affected map[string]bool, sender, receiver string, amount float64) []domain.NewCycle {
	scope := make([]string, 0, len(affected)*2)
	seen := make(map[string]bool)
	add := func(id string) {
		if !seen[id] {
			seen[id] = true
			scope = append(scope, id)
		}
	}
	for id := range affected {
		add(id)
		for _, v := range sim.Successors(id) {
			add(v)
		}
		for _, v := range sim.Predecessors(id) {
			add(v)
		}
	}

	limit := s.cfg.MaxSimulationCycles
	if limit <= 0 {
		limit = 200
	}

	var out []domain.NewCycle
	for _, cycle := range sim.SimpleCycles(scope, 6, limit, graph.Deadline{}) {
		if len(cycle) < 3 {
			continue
		}
		if !contains(cycle, sender) && !contains(cycle, receiver) {
			continue
		}

		isNew := false
		for i, node := range cycle {
			next := cycle[(i+1)%len(cycle)]
			if (node == sender && next == receiver) || !orig.HasEdge(node, next) {
				isNew = true
				break
			}
		}
		if !isNew {
			continue
		}

		if coveredByRing(cycle, rings) {
			continue
		}

		risk := math.Min(100, 55+float64(5-len(cycle))*12+math.Min(33, amount/2000))
		out = append(out, domain.NewCycle{
			CycleMembers:   cycle,
			CycleLength:    len(cycle),
			CycleRiskScore: round2(risk),
		})
	}
	return out
}

func coveredByRing(cycle []string, rings []domain.Ring) bool {
	for _, ring := range rings {
		members := make(map[string]bool, len(ring.MemberAccounts))
		for _, m := range ring.MemberAccounts {
			members[m] = true
		}
		all := true
		for _, c := range cycle {
			if !members[c] {
				all = false
				break
			}
		}
		if all {
			return true
		}
	}
	return false
}

// ringImpacts classifies how each existing ring reacts to the edge and
// detects potential merges between the sender's and receiver's rings.
func ringImpacts(rings []domain.Ring, sender, receiver string, amount float64) ([]domain.RingImpact, []domain.RingMerge) {
	var impacts []domain.RingImpact
	var senderRings, receiverRings []*domain.Ring

	for i := range rings {
		ring := &rings[i]
		senderIn := contains(ring.MemberAccounts, sender)
		receiverIn := contains(ring.MemberAccounts, receiver)

		if senderIn {
			senderRings = append(senderRings, ring)
		}
		if receiverIn {
			receiverRings = append(receiverRings, ring)
		}

		switch {
		case senderIn && !receiverIn:
			newRisk := math.Min(100, ring.RiskScore+math.Min(8, amount/5000)+3)
			impacts = append(impacts, domain.RingImpact{
				RingID:       ring.RingID,
				ImpactType:   "joins",
				OldRiskScore: round2(ring.RiskScore),
				NewRiskScore: round2(newRisk),
				Delta:        round2(newRisk - ring.RiskScore),
				Description:  fmt.Sprintf("Account %s would be pulled into ring %s via transaction from %s.", receiver, ring.RingID, sender),
			})
		case receiverIn && !senderIn:
			newRisk := math.Min(100, ring.RiskScore+math.Min(8, amount/5000)+3)
			impacts = append(impacts, domain.RingImpact{
				RingID:       ring.RingID,
				ImpactType:   "joins",
				OldRiskScore: round2(ring.RiskScore),
				NewRiskScore: round2(newRisk),
				Delta:        round2(newRisk - ring.RiskScore),
				Description:  fmt.Sprintf("Account %s would be pulled into ring %s via transaction to %s.", sender, ring.RingID, receiver),
			})
		case senderIn && receiverIn:
			newRisk := math.Min(100, ring.RiskScore+math.Min(12, amount/3000)+5)
			impacts = append(impacts, domain.RingImpact{
				RingID:       ring.RingID,
				ImpactType:   "escalates",
				OldRiskScore: round2(ring.RiskScore),
				NewRiskScore: round2(newRisk),
				Delta:        round2(newRisk - ring.RiskScore),
				Description:  fmt.Sprintf("Transaction between two existing members (%s -> %s) strengthens ring %s.", sender, receiver, ring.RingID),
			})
		}
	}

	var merges []domain.RingMerge
	if len(senderRings) > 0 && len(receiverRings) > 0 {
		senderIDs := make(map[string]bool, len(senderRings))
		for _, r := range senderRings {
			senderIDs[r.RingID] = true
		}
		a := senderRings[0]
		for _, b := range receiverRings {
			if senderIDs[b.RingID] {
				continue
			}
			merged := make(map[string]bool)
			for _, m := range a.MemberAccounts {
				merged[m] = true
			}
			for _, m := range b.MemberAccounts {
				merged[m] = true
			}
			merges = append(merges, domain.RingMerge{
				RingA:             a.RingID,
				RingB:             b.RingID,
				MergedMemberCount: len(merged),
				MergedRiskScore:   round2(math.Min(100, math.Max(a.RiskScore, b.RiskScore)+15)),
			})
		}
	}

	return impacts, merges
}

// smurfingTrigger reports an account whose in- or out-degree would
// cross the fan threshold of 10 because of the edge.
func smurfingTrigger(orig, sim *graph.Graph, sender, receiver string) (bool, string) {
	triggered := false
	account := ""

	oldIn := 0
	if orig.HasNode(receiver) {
		oldIn = orig.InDegree(receiver)
	}
	if sim.InDegree(receiver) >= 10 && oldIn < 10 {
		triggered = true
		account = receiver
	}

	oldOut := 0
	if orig.HasNode(sender) {
		oldOut = orig.OutDegree(sender)
	}
	if sim.OutDegree(sender) >= 10 && oldOut < 10 {
		triggered = true
		account = sender
	}

	return triggered, account
}

// chainExtension reports whether the edge grows an existing layering
// chain at either end.
func chainExtension(rings []domain.Ring, sender, receiver string) (bool, string) {
	for _, ring := range rings {
		if ring.PatternType != domain.PatternLayering || len(ring.MemberAccounts) < 2 {
			continue
		}
		members := ring.MemberAccounts
		last := members[len(members)-1]
		first := members[0]

		if sender == last && !contains(members, receiver) {
			return true, fmt.Sprintf("Extends layering chain %s by one hop: %s -> %s", ring.RingID, sender, receiver)
		}
		if receiver == first && !contains(members, sender) {
			return true, fmt.Sprintf("Prepends to layering chain %s: %s -> %s", ring.RingID, sender, receiver)
		}
	}
	return false, ""
}

func verdict(
	cycles []domain.NewCycle,
	merges []domain.RingMerge,
	impacts []domain.RingImpact,
	smurfTriggered bool,
	smurfAccount string,
	deltas []domain.ScoreDelta,
) (domain.Verdict, string) {
	switch {
	case len(cycles) > 0:
		c := cycles[0]
		preview := c.CycleMembers
		suffix := ""
		if len(preview) > 3 {
			preview = preview[:3]
			suffix = "..."
		}
		return domain.VerdictDangerous, fmt.Sprintf(
			"This transaction completes a %d-node cycle between %s%s. Estimated cycle risk: %v.",
			c.CycleLength, strings.Join(preview, ", "), suffix, c.CycleRiskScore)

	case len(merges) > 0:
		m := merges[0]
		return domain.VerdictDangerous, fmt.Sprintf(
			"This transaction merges ring %s and ring %s into a single %d-member ring with risk score %v.",
			m.RingA, m.RingB, m.MergedMemberCount, m.MergedRiskScore)

	case len(impacts) > 0 || smurfTriggered:
		var parts []string
		if len(impacts) > 0 {
			r := impacts[0]
			label := "Escalates"
			if r.ImpactType == "joins" {
				label = "Joins"
			}
			parts = append(parts, fmt.Sprintf("%s ring %s (risk +%v).", label, r.RingID, r.Delta))
		}
		if smurfTriggered {
			parts = append(parts, fmt.Sprintf("Triggers smurfing threshold for %s.", smurfAccount))
		}
		return domain.VerdictWarning, strings.Join(parts, " ")

	case anyDeltaAbove(deltas, 5):
		top := deltas[0]
		return domain.VerdictSuspicious, fmt.Sprintf(
			"Elevates suspicion score of %s by +%v (from %v to %v). Primary factor: %s.",
			top.AccountID, top.Delta, top.OldScore, top.NewScore, top.DeltaReason)

	default:
		return domain.VerdictClean, "This transaction has no significant impact on the fraud detection graph."
	}
}

func anyDeltaAbove(deltas []domain.ScoreDelta, threshold float64) bool {
	for _, d := range deltas {
		if d.Delta > threshold {
			return true
		}
	}
	return false
}

func contains(items []string, id string) bool {
	for _, it := range items {
		if it == id {
			return true
		}
	}
	return false
}

func round2(x float64) float64 {
	return math.Round(x*100) / 100
}
