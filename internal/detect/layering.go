package detect

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/opensource-finance/kestrel/internal/convention"
	"github.com/opensource-finance/kestrel/internal/domain"
	"github.com/opensource-finance/kestrel/internal/graph"
)

const (
	// Shell accounts pass money through with almost no other activity.
	shellMinTxns = 2
	shellMaxTxns = 3

	// Entry accounts inject at least this much in a single transfer.
	layeringMinInjection = 5000.0

	layeringMinChainLen = 4
)

// detectLayering finds entry -> shell -> ... -> exit chains. Shells
// are low-activity pass-through accounts; an entry is any account that
// moved a large single amount into a shell. The search walks shells
// depth-first and, once a path holds two of them, picks the single
// best exit for the chain.
func detectLayering(g *graph.Graph, stats map[string]*accountStats, policy *convention.Policy, cfg domain.DetectionConfig) []domain.Ring {
	txnCount := func(id string) int {
		if s := stats[id]; s != nil {
			return s.txnCount()
		}
		return 0
	}

	shells := make(map[string]bool)
	dests := make(map[string]bool)
	for _, n := range g.Nodes() {
		in, out := g.InDegree(n), g.OutDegree(n)
		cnt := txnCount(n)
		if in >= 1 && out >= 1 && cnt >= shellMinTxns && cnt <= shellMaxTxns {
			shells[n] = true
		}
		if in >= 1 && out == 0 && cnt <= shellMaxTxns && policy.IsDestination(n) {
			dests[n] = true
		}
	}

	var entries []string
	for _, n := range g.Nodes() {
		if shells[n] {
			continue
		}
		s := stats[n]
		if s == nil || s.maxOutAmount < layeringMinInjection {
			continue
		}
		for _, succ := range g.Successors(n) {
			if shells[succ] {
				entries = append(entries, n)
				break
			}
		}
	}

	chains := make(map[string][]string)

	type frame struct {
		node string
		path []string
	}

	for _, start := range entries {
		if len(chains) >= cfg.MaxChains {
			break
		}

		stack := []frame{{node: start, path: []string{start}}}
		for len(stack) > 0 {
			f := stack[len(stack)-1]
			stack = stack[:len(stack)-1]

			if f.node != start && txnCount(f.node) > shellMaxTxns {
				continue
			}

			for _, next := range g.Successors(f.node) {
				if contains(f.path, next) {
					continue
				}
				if !shells[next] {
					continue
				}

				path := append(append([]string{}, f.path...), next)
				stack = append(stack, frame{node: next, path: path})

				shellCount := 0
				for _, p := range path[1:] {
					if shells[p] {
						shellCount++
					}
				}
				if shellCount < 2 {
					continue
				}

				exit := bestExit(g, next, start, shells, dests)
				if exit == "" {
					continue
				}

				chain := append(append([]string{}, path...), exit)
				if len(chain) < layeringMinChainLen {
					continue
				}
				chains[strings.Join(chain, "\x00")] = chain
			}
		}
	}

	ordered := make([][]string, 0, len(chains))
	for _, c := range chains {
		ordered = append(ordered, c)
	}
	// Longest first so the covering-set pass keeps the widest chain
	// per shell cluster. Path order breaks length ties for stable
	// output.
	sort.Slice(ordered, func(i, j int) bool {
		if len(ordered[i]) != len(ordered[j]) {
			return len(ordered[i]) > len(ordered[j])
		}
		return strings.Join(ordered[i], ",") < strings.Join(ordered[j], ",")
	})

	var kept [][]string
	var keptShellSets []map[string]bool
	for _, chain := range ordered {
		chainShells := make(map[string]bool)
		for _, n := range chain[1 : len(chain)-1] {
			if shells[n] {
				chainShells[n] = true
			}
		}

		covered := false
		for _, existing := range keptShellSets {
			if isSubset(chainShells, existing) {
				covered = true
				break
			}
		}
		if covered {
			continue
		}

		kept = append(kept, chain)
		keptShellSets = append(keptShellSets, chainShells)
	}

	rings := make([]domain.Ring, 0, len(kept))
	for i, chain := range kept {
		total := 0.0
		edges := make([]domain.RingEdge, 0, len(chain)-1)
		for j := 0; j+1 < len(chain); j++ {
			if e := g.Edge(chain[j], chain[j+1]); e != nil {
				total += e.Amount
			}
			edges = append(edges, domain.RingEdge{Source: chain[j], Target: chain[j+1]})
		}

		risk := math.Min(100, 35+float64(len(chain))*7+math.Min(25, total/8000))
		rings = append(rings, domain.Ring{
			RingID:         fmt.Sprintf("LAYER_%04d", i+1),
			PatternType:    domain.PatternLayering,
			MemberAccounts: chain,
			MemberCount:    len(chain),
			RiskScore:      round2(risk),
			TotalAmount:    round2(total),
			Edges:          edges,
		})
	}

	return rings
}

// bestExit ranks the shell's non-shell successors, preferring
// destination-convention accounts, then the largest edge amount, with
// the account ID as the final tie break.
func bestExit(g *graph.Graph, shell, start string, shells, dests map[string]bool) string {
	best := ""
	bestDest := false
	bestAmount := 0.0

	for _, cand := range g.Successors(shell) {
		if shells[cand] || cand == start {
			continue
		}
		amount := 0.0
		if e := g.Edge(shell, cand); e != nil {
			amount = e.Amount
		}
		isDest := dests[cand]

		better := false
		switch {
		case best == "":
			better = true
		case isDest != bestDest:
			better = isDest
		case amount != bestAmount:
			better = amount > bestAmount
		default:
			better = cand < best
		}
		if better {
			best, bestDest, bestAmount = cand, isDest, amount
		}
	}
	return best
}

func contains(path []string, id string) bool {
	for _, p := range path {
		if p == id {
			return true
		}
	}
	return false
}

func isSubset(sub, super map[string]bool) bool {
	for k := range sub {
		if !super[k] {
			return false
		}
	}
	return true
}
