package simulate

import (
	"strings"
	"testing"

	"github.com/opensource-finance/kestrel/internal/domain"
)

// chainAnalysis builds a prior result for the path ACC_A -> ACC_B -> ACC_C
// with no detected rings.
func chainAnalysis() *domain.AnalysisResult {
	return &domain.AnalysisResult{
		ID: "test-analysis",
		SuspiciousAccounts: []domain.SuspicionRecord{
			{AccountID: "ACC_A", SuspicionScore: 20, OutDegree: 1, TotalVolume: 5000, TransactionCount: 1, MerchantFactor: 1},
			{AccountID: "ACC_B", SuspicionScore: 15, InDegree: 1, OutDegree: 1, TotalVolume: 10000, TransactionCount: 2, MerchantFactor: 1},
			{AccountID: "ACC_C", SuspicionScore: 10, InDegree: 1, TotalVolume: 5000, TransactionCount: 1, MerchantFactor: 1},
		},
		Graph: domain.GraphPayload{
			Nodes: []domain.GraphNode{
				{ID: "ACC_A", OutDegree: 1},
				{ID: "ACC_B", InDegree: 1, OutDegree: 1},
				{ID: "ACC_C", InDegree: 1},
			},
			Edges: []domain.GraphEdge{
				{Source: "ACC_A", Target: "ACC_B", TotalAmount: 5000, Count: 1},
				{Source: "ACC_B", Target: "ACC_C", TotalAmount: 5000, Count: 1},
			},
		},
	}
}

func newSimulator() *Simulator {
	return New(domain.DefaultDetectionConfig())
}

func TestCycleCompletionIsDangerous(t *testing.T) {
	// C -> A closes the loop A -> B -> C.
	result := newSimulator().Run(chainAnalysis(), domain.SimulationRequest{
		SenderID:   "ACC_C",
		ReceiverID: "ACC_A",
		Amount:     9000,
	})

	if result.Verdict != domain.VerdictDangerous {
		t.Fatalf("verdict = %s, want DANGEROUS", result.Verdict)
	}
	if len(result.NewCyclesCreated) != 1 {
		t.Fatalf("new cycles = %d, want 1", len(result.NewCyclesCreated))
	}
	c := result.NewCyclesCreated[0]
	if c.CycleLength != 3 {
		t.Errorf("cycle length = %d, want 3", c.CycleLength)
	}
	if !strings.Contains(result.VerdictReason, "3-node cycle") {
		t.Errorf("reason does not cite the cycle: %q", result.VerdictReason)
	}
}

func TestIsolatedTransactionIsClean(t *testing.T) {
	result := newSimulator().Run(chainAnalysis(), domain.SimulationRequest{
		SenderID:   "ACC_D",
		ReceiverID: "ACC_E",
		Amount:     100,
	})

	if result.Verdict != domain.VerdictClean {
		t.Fatalf("verdict = %s, want CLEAN", result.Verdict)
	}
	if result.SubgraphDelta.NewNodesIntroduced != 2 {
		t.Errorf("new nodes = %d, want 2", result.SubgraphDelta.NewNodesIntroduced)
	}
	if result.SubgraphDelta.EdgesAdded != 1 {
		t.Errorf("edges added = %d, want 1", result.SubgraphDelta.EdgesAdded)
	}
}

func withRing() *domain.AnalysisResult {
	prior := chainAnalysis()
	prior.Graph.Edges = append(prior.Graph.Edges, domain.GraphEdge{
		Source: "ACC_C", Target: "ACC_A", TotalAmount: 4000, Count: 1, Suspicious: true,
	})
	prior.FraudRings = []domain.Ring{{
		RingID:         "LOOP_0001",
		PatternType:    domain.PatternCycle,
		MemberAccounts: []string{"ACC_A", "ACC_B", "ACC_C"},
		MemberCount:    3,
		RiskScore:      65,
		TotalAmount:    14000,
		Edges: []domain.RingEdge{
			{Source: "ACC_A", Target: "ACC_B"},
			{Source: "ACC_B", Target: "ACC_C"},
			{Source: "ACC_C", Target: "ACC_A"},
		},
	}}
	return prior
}

func TestOutsiderJoinsRing(t *testing.T) {
	result := newSimulator().Run(withRing(), domain.SimulationRequest{
		SenderID:   "NEW_ACTOR",
		ReceiverID: "ACC_A",
		Amount:     50000,
	})

	if len(result.RingsAffected) != 1 {
		t.Fatalf("rings affected = %d, want 1", len(result.RingsAffected))
	}
	impact := result.RingsAffected[0]
	if impact.RingID != "LOOP_0001" || impact.ImpactType != "joins" {
		t.Errorf("impact = %+v", impact)
	}
	// 65 + min(8, 50000/5000) + 3 = 76.
	if impact.NewRiskScore != 76 {
		t.Errorf("new risk = %v, want 76", impact.NewRiskScore)
	}
	if result.Verdict != domain.VerdictWarning {
		t.Errorf("verdict = %s, want WARNING", result.Verdict)
	}
}

func TestMemberToMemberEscalates(t *testing.T) {
	result := newSimulator().Run(withRing(), domain.SimulationRequest{
		SenderID:   "ACC_A",
		ReceiverID: "ACC_C",
		Amount:     6000,
	})

	found := false
	for _, impact := range result.RingsAffected {
		if impact.ImpactType == "escalates" && impact.RingID == "LOOP_0001" {
			found = true
			// 65 + min(12, 6000/3000) + 5 = 72.
			if impact.NewRiskScore != 72 {
				t.Errorf("new risk = %v, want 72", impact.NewRiskScore)
			}
		}
	}
	if !found {
		t.Fatalf("no escalation recorded: %+v", result.RingsAffected)
	}
}

func TestRingMergeIsDangerous(t *testing.T) {
	prior := withRing()
	prior.Graph.Nodes = append(prior.Graph.Nodes,
		domain.GraphNode{ID: "ACC_X"}, domain.GraphNode{ID: "ACC_Y"}, domain.GraphNode{ID: "ACC_Z"})
	prior.Graph.Edges = append(prior.Graph.Edges,
		domain.GraphEdge{Source: "ACC_X", Target: "ACC_Y", TotalAmount: 2000, Count: 1},
		domain.GraphEdge{Source: "ACC_Y", Target: "ACC_Z", TotalAmount: 2000, Count: 1},
		domain.GraphEdge{Source: "ACC_Z", Target: "ACC_X", TotalAmount: 2000, Count: 1},
	)
	prior.FraudRings = append(prior.FraudRings, domain.Ring{
		RingID:         "LOOP_0002",
		PatternType:    domain.PatternCycle,
		MemberAccounts: []string{"ACC_X", "ACC_Y", "ACC_Z"},
		MemberCount:    3,
		RiskScore:      70,
	})

	result := newSimulator().Run(prior, domain.SimulationRequest{
		SenderID:   "ACC_A",
		ReceiverID: "ACC_X",
		Amount:     4000,
	})

	if len(result.RingsMerged) != 1 {
		t.Fatalf("merges = %d, want 1", len(result.RingsMerged))
	}
	m := result.RingsMerged[0]
	if m.RingA != "LOOP_0001" || m.RingB != "LOOP_0002" {
		t.Errorf("merge pair = %s/%s", m.RingA, m.RingB)
	}
	if m.MergedMemberCount != 6 {
		t.Errorf("merged members = %d, want 6", m.MergedMemberCount)
	}
	// max(65, 70) + 15 = 85.
	if m.MergedRiskScore != 85 {
		t.Errorf("merged risk = %v, want 85", m.MergedRiskScore)
	}
	if result.Verdict != domain.VerdictDangerous {
		t.Errorf("verdict = %s, want DANGEROUS", result.Verdict)
	}
}

func TestSmurfingThresholdTrigger(t *testing.T) {
	prior := &domain.AnalysisResult{ID: "t"}
	prior.Graph.Nodes = append(prior.Graph.Nodes, domain.GraphNode{ID: "HUB"})
	for i := 0; i < 9; i++ {
		id := string(rune('A' + i))
		prior.Graph.Nodes = append(prior.Graph.Nodes, domain.GraphNode{ID: id})
		prior.Graph.Edges = append(prior.Graph.Edges, domain.GraphEdge{
			Source: id, Target: "HUB", TotalAmount: 1000, Count: 1,
		})
	}

	result := newSimulator().Run(prior, domain.SimulationRequest{
		SenderID:   "NEWCOMER",
		ReceiverID: "HUB",
		Amount:     1000,
	})

	if !result.NewSmurfingTriggered || result.SmurfingAccount != "HUB" {
		t.Fatalf("smurfing trigger = %v/%q, want true/HUB", result.NewSmurfingTriggered, result.SmurfingAccount)
	}
	if result.Verdict != domain.VerdictWarning {
		t.Errorf("verdict = %s, want WARNING", result.Verdict)
	}
}

func TestChainExtension(t *testing.T) {
	prior := chainAnalysis()
	prior.FraudRings = []domain.Ring{{
		RingID:         "LAYER_0001",
		PatternType:    domain.PatternLayering,
		MemberAccounts: []string{"ACC_A", "ACC_B", "ACC_C"},
		MemberCount:    3,
		RiskScore:      55,
	}}

	t.Run("ExtendsAtTail", func(t *testing.T) {
		result := newSimulator().Run(prior, domain.SimulationRequest{
			SenderID:   "ACC_C",
			ReceiverID: "NEW_EXIT",
			Amount:     3000,
		})
		if !result.NewShellChainExtended {
			t.Fatal("expected chain extension")
		}
		if !strings.Contains(result.ChainExtensionDetail, "Extends") {
			t.Errorf("detail = %q", result.ChainExtensionDetail)
		}
	})

	t.Run("PrependsAtHead", func(t *testing.T) {
		result := newSimulator().Run(prior, domain.SimulationRequest{
			SenderID:   "UPSTREAM",
			ReceiverID: "ACC_A",
			Amount:     3000,
		})
		if !result.NewShellChainExtended {
			t.Fatal("expected chain prepend")
		}
		if !strings.Contains(result.ChainExtensionDetail, "Prepends") {
			t.Errorf("detail = %q", result.ChainExtensionDetail)
		}
	})

	t.Run("InternalEdgeDoesNotExtend", func(t *testing.T) {
		result := newSimulator().Run(prior, domain.SimulationRequest{
			SenderID:   "ACC_C",
			ReceiverID: "ACC_A",
			Amount:     3000,
		})
		if result.NewShellChainExtended {
			t.Error("edge between chain members must not count as extension")
		}
	})
}

func TestScoreDeltaReporting(t *testing.T) {
	// A large transfer into an existing account moves scores without
	// any structural trigger.
	result := newSimulator().Run(chainAnalysis(), domain.SimulationRequest{
		SenderID:   "WHALE",
		ReceiverID: "ACC_C",
		Amount:     80000,
	})

	if result.Verdict != domain.VerdictSuspicious {
		t.Fatalf("verdict = %s, want SUSPICIOUS", result.Verdict)
	}
	if len(result.ScoreDeltas) == 0 {
		t.Fatal("expected score deltas")
	}
	for i := 1; i < len(result.ScoreDeltas); i++ {
		if result.ScoreDeltas[i].Delta > result.ScoreDeltas[i-1].Delta {
			t.Error("score deltas not sorted by magnitude")
		}
	}
	for _, d := range result.ScoreDeltas {
		if d.NewScore > 100 {
			t.Errorf("score %v exceeds 100", d.NewScore)
		}
	}
}

func TestSimulationIDSequence(t *testing.T) {
	sim := newSimulator()
	r1 := sim.Run(chainAnalysis(), domain.SimulationRequest{SenderID: "A", ReceiverID: "B", Amount: 1})
	r2 := sim.Run(chainAnalysis(), domain.SimulationRequest{SenderID: "A", ReceiverID: "B", Amount: 1})

	if r1.SimulationID != "SIM_001" || r2.SimulationID != "SIM_002" {
		t.Errorf("ids = %s, %s", r1.SimulationID, r2.SimulationID)
	}
}
