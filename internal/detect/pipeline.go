// Package detect implements the laundering-pattern detection pipeline:
// graph construction, trap demotion, the three pattern detectors, ring
// aggregation, and suspicion scoring.
package detect

import (
	"log/slog"
	"math"
	"time"

	"github.com/google/uuid"

	"github.com/opensource-finance/kestrel/internal/convention"
	"github.com/opensource-finance/kestrel/internal/domain"
	"github.com/opensource-finance/kestrel/internal/graph"
)

// Analyzer runs the full detection pipeline over a transaction batch.
// Safe for concurrent use; every Run builds its own graph and state
// from its own input.
type Analyzer struct {
	cfg        domain.DetectionConfig
	classifier domain.TrapClassifier
	policy     *convention.Policy
}

// New creates an Analyzer. A nil classifier means no accounts are ever
// demoted; a nil policy falls back to the default naming conventions.
func New(cfg domain.DetectionConfig, classifier domain.TrapClassifier, policy *convention.Policy) *Analyzer {
	if classifier == nil {
		classifier = domain.NoopTrapClassifier{}
	}
	if policy == nil {
		policy = convention.Default()
	}
	return &Analyzer{cfg: cfg, classifier: classifier, policy: policy}
}

// Run executes one detection pass. The batch must be non-empty; the
// ingest layer rejects empty uploads before this is reached.
func (a *Analyzer) Run(txns []domain.Transaction) *domain.AnalysisResult {
	start := time.Now()

	g := graph.Build(txns)
	stats := computeStats(txns)

	// Trap classification runs first so every detector can skip
	// demoted accounts. Fail-open: a classifier error means no traps
	// known, never a failed analysis.
	flags, err := a.classifier.Classify(txns)
	if err != nil {
		slog.Warn("trap classification unavailable, proceeding without demotions", "error", err)
		flags = nil
	}
	payroll := make(map[string]bool)
	merchant := make(map[string]bool)
	demoted := make(map[string]bool)
	for id, f := range flags {
		if f.IsPayrollTrap {
			payroll[id] = true
			demoted[id] = true
		}
		if f.IsMerchantTrap {
			merchant[id] = true
			demoted[id] = true
		}
	}

	salary := salaryRecipients(stats, payroll)

	loops := detectCycles(g, demoted, a.cfg)
	smurfs := detectSmurfing(g, stats, demoted, a.cfg)
	layers := detectLayering(g, stats, a.policy, a.cfg)

	all := make([]domain.Ring, 0, len(loops)+len(smurfs)+len(layers))
	all = append(all, loops...)
	all = append(all, smurfs...)
	all = append(all, layers...)
	rings := aggregateRings(all, salary)

	accounts := scoreAccounts(g, stats, rings, payroll, merchant, salary)

	// The reported list omits zero-signal accounts and demoted
	// accounts outside any ring; the graph payload keeps everyone.
	reported := make([]domain.SuspicionRecord, 0, len(accounts))
	flagged := 0
	for _, acc := range accounts {
		if acc.SuspicionScore > 0 && acc.RingCount > 0 {
			flagged++
		}
		if acc.SuspicionScore <= 0 && acc.RingCount == 0 {
			continue
		}
		if (merchant[acc.AccountID] || payroll[acc.AccountID]) && acc.RingCount == 0 {
			continue
		}
		reported = append(reported, acc)
	}

	high, medium := 0, 0
	flaggedAmount := 0.0
	for _, acc := range reported {
		if acc.SuspicionScore >= 70 {
			high++
		} else if acc.SuspicionScore >= 40 {
			medium++
		}
	}
	for _, r := range rings {
		flaggedAmount += r.TotalAmount
	}

	result := &domain.AnalysisResult{
		ID:                 uuid.New().String(),
		CreatedAt:          time.Now().UTC(),
		SuspiciousAccounts: reported,
		FraudRings:         rings,
		Summary: domain.Summary{
			TotalAccountsAnalyzed:     g.NodeCount(),
			SuspiciousAccountsFlagged: flagged,
			FraudRingsDetected:        len(rings),
			ProcessingTimeSeconds:     round3(time.Since(start).Seconds()),
			TotalTransactions:         len(txns),
			TotalNodes:                g.NodeCount(),
			TotalEdges:                g.EdgeCount(),
			CircularLoopsFound:        len(loops),
			SmurfingPatternsFound:     len(smurfs),
			LayeringChainsFound:       len(layers),
			TotalFraudRings:           len(rings),
			HighRiskAccounts:          high,
			MediumRiskAccounts:        medium,
			TotalFlaggedAmount:        round2(flaggedAmount),
		},
		Graph: buildPayload(g, accounts, rings),
	}

	slog.Info("analysis complete",
		"analysis_id", result.ID,
		"transactions", len(txns),
		"nodes", g.NodeCount(),
		"rings", len(rings),
		"flagged_accounts", flagged,
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return result
}

// buildPayload decorates the serialized graph with suspicion scores
// and ring membership so the simulator and any UI can work from the
// result alone.
func buildPayload(g *graph.Graph, accounts []domain.SuspicionRecord, rings []domain.Ring) domain.GraphPayload {
	flaggedNodes := make(map[string]bool)
	flaggedEdges := make(map[[2]string]bool)
	ringIDs := make(map[string][]string)
	for _, r := range rings {
		for _, m := range r.MemberAccounts {
			flaggedNodes[m] = true
			ringIDs[m] = append(ringIDs[m], r.RingID)
		}
		for _, e := range r.Edges {
			flaggedEdges[[2]string{e.Source, e.Target}] = true
		}
	}

	byID := make(map[string]*domain.SuspicionRecord, len(accounts))
	for i := range accounts {
		byID[accounts[i].AccountID] = &accounts[i]
	}

	payload := domain.GraphPayload{
		Nodes: make([]domain.GraphNode, 0, g.NodeCount()),
		Edges: make([]domain.GraphEdge, 0, g.EdgeCount()),
	}
	for _, n := range g.Nodes() {
		node := domain.GraphNode{
			ID:         n,
			Suspicious: flaggedNodes[n],
			InDegree:   g.InDegree(n),
			OutDegree:  g.OutDegree(n),
			RingIDs:    ringIDs[n],
		}
		if acc := byID[n]; acc != nil {
			node.SuspicionScore = acc.SuspicionScore
			node.TotalVolume = acc.TotalVolume
			node.TransactionCount = acc.TransactionCount
		}
		payload.Nodes = append(payload.Nodes, node)

		for _, v := range g.Successors(n) {
			e := g.Edge(n, v)
			payload.Edges = append(payload.Edges, domain.GraphEdge{
				Source:      n,
				Target:      v,
				Suspicious:  flaggedEdges[[2]string{n, v}],
				TotalAmount: round2(e.Amount),
				Count:       e.Count,
			})
		}
	}
	return payload
}

func round3(x float64) float64 {
	return math.Round(x*1000) / 1000
}
