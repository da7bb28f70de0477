package graph

import "sort"

// StronglyConnected returns the strongly connected components of the
// graph using an iterative Tarjan traversal. Components come back with
// members sorted and in deterministic order across runs on the same
// graph. Iterative because real transaction batches produce chains far
// deeper than the goroutine stack guarantees.
func (g *Graph) StronglyConnected() [][]string {
	index := make(map[string]int, g.NodeCount())
	lowlink := make(map[string]int, g.NodeCount())
	onStack := make(map[string]bool, g.NodeCount())
	var stack []string
	next := 0

	var components [][]string

	type frame struct {
		node string
		succ []string
		pos  int
	}

	for _, root := range g.Nodes() {
		if _, seen := index[root]; seen {
			continue
		}

		work := []frame{{node: root, succ: g.Successors(root)}}
		index[root] = next
		lowlink[root] = next
		next++
		stack = append(stack, root)
		onStack[root] = true

		for len(work) > 0 {
			f := &work[len(work)-1]

			if f.pos < len(f.succ) {
				w := f.succ[f.pos]
				f.pos++

				if _, seen := index[w]; !seen {
					index[w] = next
					lowlink[w] = next
					next++
					stack = append(stack, w)
					onStack[w] = true
					work = append(work, frame{node: w, succ: g.Successors(w)})
				} else if onStack[w] {
					if index[w] < lowlink[f.node] {
						lowlink[f.node] = index[w]
					}
				}
				continue
			}

			// All successors handled. Pop the frame and propagate the
			// lowlink to the parent.
			v := f.node
			work = work[:len(work)-1]
			if len(work) > 0 {
				parent := work[len(work)-1].node
				if lowlink[v] < lowlink[parent] {
					lowlink[parent] = lowlink[v]
				}
			}

			if lowlink[v] == index[v] {
				var comp []string
				for {
					w := stack[len(stack)-1]
					stack = stack[:len(stack)-1]
					onStack[w] = false
					comp = append(comp, w)
					if w == v {
						break
					}
				}
				sort.Strings(comp)
				components = append(components, comp)
			}
		}
	}

	return components
}
