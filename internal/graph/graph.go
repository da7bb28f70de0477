// Package graph provides the directed money-flow graph and the
// structural algorithms detection runs on it.
//
// Node and successor iteration is always in sorted order so every
// traversal over the same transaction batch produces identical output.
package graph

import (
	"sort"

	"github.com/opensource-finance/kestrel/internal/domain"
)

// EdgeData aggregates all transactions between one ordered account pair.
type EdgeData struct {
	Amount float64
	Count  int
}

// Graph is a directed multigraph collapsed to one aggregated edge per
// ordered account pair. Not safe for concurrent mutation; detection
// builds it once and reads it from many passes.
type Graph struct {
	succ map[string]map[string]*EdgeData
	pred map[string]map[string]*EdgeData
}

// New returns an empty graph.
func New() *Graph {
	return &Graph{
		succ: make(map[string]map[string]*EdgeData),
		pred: make(map[string]map[string]*EdgeData),
	}
}

// Build constructs the flow graph from a transaction batch.
func Build(txns []domain.Transaction) *Graph {
	g := New()
	for i := range txns {
		g.AddEdge(txns[i].SenderID, txns[i].ReceiverID, txns[i].Amount)
	}
	return g
}

// FromPayload reconstructs a graph from a serialized analysis payload.
// Simulation uses this to replay what-if edges against a completed
// analysis.
func FromPayload(p *domain.GraphPayload) *Graph {
	g := New()
	for _, n := range p.Nodes {
		g.AddNode(n.ID)
	}
	for _, e := range p.Edges {
		g.addEdgeData(e.Source, e.Target, e.TotalAmount, e.Count)
	}
	return g
}

// AddNode ensures the node exists, with no edges.
func (g *Graph) AddNode(id string) {
	if _, ok := g.succ[id]; !ok {
		g.succ[id] = make(map[string]*EdgeData)
	}
	if _, ok := g.pred[id]; !ok {
		g.pred[id] = make(map[string]*EdgeData)
	}
}

// AddEdge records one transaction from u to v, accumulating onto any
// existing aggregated edge.
func (g *Graph) AddEdge(u, v string, amount float64) {
	g.addEdgeData(u, v, amount, 1)
}

func (g *Graph) addEdgeData(u, v string, amount float64, count int) {
	g.AddNode(u)
	g.AddNode(v)

	if e, ok := g.succ[u][v]; ok {
		e.Amount += amount
		e.Count += count
		return
	}
	e := &EdgeData{Amount: amount, Count: count}
	g.succ[u][v] = e
	g.pred[v][u] = e
}

// HasNode reports whether the account appears in the graph.
func (g *Graph) HasNode(id string) bool {
	_, ok := g.succ[id]
	return ok
}

// HasEdge reports whether an aggregated edge u -> v exists.
func (g *Graph) HasEdge(u, v string) bool {
	_, ok := g.succ[u][v]
	return ok
}

// Edge returns the aggregated edge u -> v, or nil if absent.
func (g *Graph) Edge(u, v string) *EdgeData {
	return g.succ[u][v]
}

// NodeCount returns the number of accounts.
func (g *Graph) NodeCount() int {
	return len(g.succ)
}

// EdgeCount returns the number of aggregated edges.
func (g *Graph) EdgeCount() int {
	n := 0
	for _, out := range g.succ {
		n += len(out)
	}
	return n
}

// Nodes returns all accounts in sorted order.
func (g *Graph) Nodes() []string {
	out := make([]string, 0, len(g.succ))
	for id := range g.succ {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// Successors returns the targets of u's outgoing edges in sorted order.
func (g *Graph) Successors(u string) []string {
	return sortedKeys(g.succ[u])
}

// Predecessors returns the sources of u's incoming edges in sorted order.
func (g *Graph) Predecessors(u string) []string {
	return sortedKeys(g.pred[u])
}

// OutDegree returns the number of distinct receivers u sends to.
func (g *Graph) OutDegree(u string) int {
	return len(g.succ[u])
}

// InDegree returns the number of distinct senders into u.
func (g *Graph) InDegree(u string) int {
	return len(g.pred[u])
}

// Subgraph returns the induced subgraph over the given node set.
func (g *Graph) Subgraph(keep map[string]bool) *Graph {
	sub := New()
	for u := range keep {
		if !g.HasNode(u) {
			continue
		}
		sub.AddNode(u)
		for v, e := range g.succ[u] {
			if keep[v] {
				sub.addEdgeData(u, v, e.Amount, e.Count)
			}
		}
	}
	return sub
}

// Payload serializes the graph for storage alongside an analysis
// result, with nodes and edges in deterministic order.
func (g *Graph) Payload() *domain.GraphPayload {
	p := &domain.GraphPayload{
		Nodes: make([]domain.GraphNode, 0, g.NodeCount()),
		Edges: make([]domain.GraphEdge, 0, g.EdgeCount()),
	}
	for _, u := range g.Nodes() {
		p.Nodes = append(p.Nodes, domain.GraphNode{ID: u})
		for _, v := range g.Successors(u) {
			e := g.succ[u][v]
			p.Edges = append(p.Edges, domain.GraphEdge{
				Source:      u,
				Target:      v,
				TotalAmount: e.Amount,
				Count:       e.Count,
			})
		}
	}
	return p
}

func sortedKeys(m map[string]*EdgeData) []string {
	if len(m) == 0 {
		return nil
	}
	out := make([]string, 0, len(m))
	for id := range m {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}
