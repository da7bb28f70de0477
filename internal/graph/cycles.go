package graph

import (
	"sort"
	"time"
)

// Deadline is a cooperative wall-clock budget. Long enumerations poll
// Exceeded at loop boundaries and stop early, returning whatever they
// have found so far. The zero value never expires.
type Deadline struct {
	at time.Time
}

// NewDeadline returns a deadline that expires after the given budget.
// A non-positive budget yields a deadline that never expires.
func NewDeadline(budget time.Duration) Deadline {
	if budget <= 0 {
		return Deadline{}
	}
	return Deadline{at: time.Now().Add(budget)}
}

// Exceeded reports whether the budget has run out.
func (d Deadline) Exceeded() bool {
	return !d.at.IsZero() && time.Now().After(d.at)
}

// SimpleCycles enumerates simple directed cycles within the given node
// set, up to maxLen nodes per cycle and at most limit cycles. A cycle
// is reported once, rotated so its lexically smallest member comes
// first, which makes output independent of traversal order. The
// deadline is polled during the search; on expiry the cycles found so
// far are returned.
func (g *Graph) SimpleCycles(within []string, maxLen, limit int, dl Deadline) [][]string {
	member := make(map[string]bool, len(within))
	for _, id := range within {
		member[id] = true
	}

	var cycles [][]string
	path := make([]string, 0, maxLen)
	inPath := make(map[string]bool, maxLen)

	// Anchoring each search at its smallest member means a node only
	// explores successors that sort after it, so no cycle is found
	// twice under rotation.
	var dfs func(start, cur string) bool
	dfs = func(start, cur string) bool {
		if dl.Exceeded() || len(cycles) >= limit {
			return false
		}

		for _, next := range g.Successors(cur) {
			if next == start && len(path) >= 2 {
				cycle := make([]string, len(path))
				copy(cycle, path)
				cycles = append(cycles, cycle)
				if len(cycles) >= limit {
					return false
				}
				continue
			}
			if !member[next] || inPath[next] || next <= start {
				continue
			}
			if len(path) >= maxLen {
				continue
			}

			path = append(path, next)
			inPath[next] = true
			ok := dfs(start, next)
			inPath[next] = false
			path = path[:len(path)-1]
			if !ok {
				return false
			}
		}
		return true
	}

	starts := make([]string, 0, len(within))
	for id := range member {
		starts = append(starts, id)
	}
	sort.Strings(starts)

	for _, s := range starts {
		if dl.Exceeded() || len(cycles) >= limit {
			break
		}
		path = append(path[:0], s)
		inPath[s] = true
		dfs(s, s)
		inPath[s] = false
	}

	return cycles
}
