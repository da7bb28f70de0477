package graph

import (
	"reflect"
	"testing"
	"time"

	"github.com/opensource-finance/kestrel/internal/domain"
)

func tx(sender, receiver string, amount float64) domain.Transaction {
	return domain.Transaction{
		SenderID:   sender,
		ReceiverID: receiver,
		Amount:     amount,
		Timestamp:  time.Unix(0, 0).UTC(),
	}
}

func TestBuildAggregatesEdges(t *testing.T) {
	g := Build([]domain.Transaction{
		tx("A", "B", 100),
		tx("A", "B", 250),
		tx("B", "C", 50),
	})

	if g.NodeCount() != 3 {
		t.Fatalf("node count = %d, want 3", g.NodeCount())
	}
	if g.EdgeCount() != 2 {
		t.Fatalf("edge count = %d, want 2", g.EdgeCount())
	}

	e := g.Edge("A", "B")
	if e == nil {
		t.Fatal("expected edge A->B")
	}
	if e.Amount != 350 || e.Count != 2 {
		t.Errorf("edge A->B = {%v, %d}, want {350, 2}", e.Amount, e.Count)
	}

	if g.HasEdge("B", "A") {
		t.Error("reverse edge should not exist")
	}
}

func TestSortedIteration(t *testing.T) {
	g := Build([]domain.Transaction{
		tx("Z", "M", 1),
		tx("Z", "A", 1),
		tx("Z", "Q", 1),
		tx("B", "Z", 1),
		tx("A", "Z", 1),
	})

	if got := g.Successors("Z"); !reflect.DeepEqual(got, []string{"A", "M", "Q"}) {
		t.Errorf("successors = %v", got)
	}
	if got := g.Predecessors("Z"); !reflect.DeepEqual(got, []string{"A", "B"}) {
		t.Errorf("predecessors = %v", got)
	}
	if got := g.Nodes(); !reflect.DeepEqual(got, []string{"A", "B", "M", "Q", "Z"}) {
		t.Errorf("nodes = %v", got)
	}
}

func TestSubgraph(t *testing.T) {
	g := Build([]domain.Transaction{
		tx("A", "B", 1),
		tx("B", "C", 1),
		tx("C", "A", 1),
		tx("C", "D", 1),
	})

	sub := g.Subgraph(map[string]bool{"A": true, "B": true, "C": true})
	if sub.NodeCount() != 3 {
		t.Fatalf("node count = %d, want 3", sub.NodeCount())
	}
	if sub.HasNode("D") || sub.HasEdge("C", "D") {
		t.Error("excluded node leaked into subgraph")
	}
	if !sub.HasEdge("C", "A") {
		t.Error("internal edge missing from subgraph")
	}
}

func TestPayloadRoundTrip(t *testing.T) {
	g := Build([]domain.Transaction{
		tx("A", "B", 100),
		tx("A", "B", 50),
		tx("B", "A", 25),
	})

	back := FromPayload(g.Payload())
	if back.NodeCount() != g.NodeCount() || back.EdgeCount() != g.EdgeCount() {
		t.Fatal("round trip changed graph shape")
	}
	e := back.Edge("A", "B")
	if e == nil || e.Amount != 150 || e.Count != 2 {
		t.Errorf("edge A->B after round trip = %+v", e)
	}
}

func TestStronglyConnected(t *testing.T) {
	// Two separate loops joined by a one-way bridge.
	g := Build([]domain.Transaction{
		tx("A", "B", 1),
		tx("B", "C", 1),
		tx("C", "A", 1),
		tx("C", "X", 1),
		tx("X", "Y", 1),
		tx("Y", "X", 1),
		tx("Y", "Z", 1),
	})

	comps := g.StronglyConnected()

	bySize := map[int][][]string{}
	for _, c := range comps {
		bySize[len(c)] = append(bySize[len(c)], c)
	}

	if len(bySize[3]) != 1 || !reflect.DeepEqual(bySize[3][0], []string{"A", "B", "C"}) {
		t.Errorf("expected component {A B C}, got %v", bySize[3])
	}
	if len(bySize[2]) != 1 || !reflect.DeepEqual(bySize[2][0], []string{"X", "Y"}) {
		t.Errorf("expected component {X Y}, got %v", bySize[2])
	}
	if len(bySize[1]) != 1 {
		t.Errorf("expected one singleton component, got %v", bySize[1])
	}
}

func TestSimpleCycles(t *testing.T) {
	g := Build([]domain.Transaction{
		tx("A", "B", 1),
		tx("B", "C", 1),
		tx("C", "A", 1),
		tx("C", "D", 1),
		tx("D", "A", 1),
	})
	within := []string{"A", "B", "C", "D"}

	cycles := g.SimpleCycles(within, 5, 100, Deadline{})
	if len(cycles) != 2 {
		t.Fatalf("found %d cycles, want 2: %v", len(cycles), cycles)
	}

	// Canonical rotation starts at the smallest member.
	want := map[string]bool{"A,B,C": true, "A,B,C,D": true}
	for _, c := range cycles {
		key := join(c)
		if !want[key] {
			t.Errorf("unexpected cycle %v", c)
		}
	}
}

func TestSimpleCyclesMaxLen(t *testing.T) {
	// A six-node loop should vanish under a five-node cap.
	g := Build([]domain.Transaction{
		tx("A", "B", 1), tx("B", "C", 1), tx("C", "D", 1),
		tx("D", "E", 1), tx("E", "F", 1), tx("F", "A", 1),
	})
	within := g.Nodes()

	if cycles := g.SimpleCycles(within, 5, 100, Deadline{}); len(cycles) != 0 {
		t.Errorf("expected no cycles under cap, got %v", cycles)
	}
	if cycles := g.SimpleCycles(within, 6, 100, Deadline{}); len(cycles) != 1 {
		t.Errorf("expected the full loop at cap 6, got %v", cycles)
	}
}

func TestSimpleCyclesLimit(t *testing.T) {
	// Complete digraph on five nodes has many cycles; the limit wins.
	ids := []string{"A", "B", "C", "D", "E"}
	g := New()
	for _, u := range ids {
		for _, v := range ids {
			if u != v {
				g.AddEdge(u, v, 1)
			}
		}
	}

	cycles := g.SimpleCycles(ids, 5, 7, Deadline{})
	if len(cycles) != 7 {
		t.Errorf("got %d cycles, want exactly the limit 7", len(cycles))
	}
}

func TestDeadline(t *testing.T) {
	if (Deadline{}).Exceeded() {
		t.Error("zero deadline must never expire")
	}
	if NewDeadline(0).Exceeded() {
		t.Error("non-positive budget must never expire")
	}

	d := NewDeadline(time.Nanosecond)
	time.Sleep(time.Millisecond)
	if !d.Exceeded() {
		t.Error("expected expiry after budget elapsed")
	}
}

func join(parts []string) string {
	out := parts[0]
	for _, p := range parts[1:] {
		out += "," + p
	}
	return out
}
