package lineage

// Node is a vertex in the lineage graph. Edge lists keep insertion
// order and are deduplicated, so traversals and renderings are
// deterministic.
type Node struct {
	ID           string
	Predecessors []string
	Successors   []string
	Metadata     map[string]string

	predSeen map[string]struct{}
	succSeen map[string]struct{}
}

func newNode(id string) *Node {
	return &Node{
		ID:       id,
		Metadata: make(map[string]string),
		predSeen: make(map[string]struct{}),
		succSeen: make(map[string]struct{}),
	}
}

func (n *Node) addPredecessor(id string) {
	if _, ok := n.predSeen[id]; ok {
		return
	}
	n.predSeen[id] = struct{}{}
	n.Predecessors = append(n.Predecessors, id)
}

func (n *Node) addSuccessor(id string) {
	if _, ok := n.succSeen[id]; ok {
		return
	}
	n.succSeen[id] = struct{}{}
	n.Successors = append(n.Successors, id)
}

// SetMetadata attaches a display attribute to the node.
func (n *Node) SetMetadata(key, value string) {
	n.Metadata[key] = value
}

// BrokenLink is an edge whose target was never registered, in the
// direction of the dangling reference.
type BrokenLink struct {
	From string
	To   string
}

// Graph is a directed multi-edge lineage graph. Nodes are either
// declared (registered artifacts, scanned sidecars) or mere reference
// placeholders created by an edge whose endpoint was never declared;
// only the latter count as broken-link targets.
type Graph struct {
	nodes    map[string]*Node
	order    []string
	declared map[string]struct{}
}

// NewGraph returns an empty graph.
func NewGraph() *Graph {
	return &Graph{
		nodes:    make(map[string]*Node),
		declared: make(map[string]struct{}),
	}
}

// AddNode declares the node for id, creating it if needed.
func (g *Graph) AddNode(id string) *Node {
	n := g.ensureNode(id)
	g.declared[id] = struct{}{}
	return n
}

// Declared reports whether id was declared, as opposed to only being
// referenced by an edge.
func (g *Graph) Declared(id string) bool {
	_, ok := g.declared[id]
	return ok
}

func (g *Graph) ensureNode(id string) *Node {
	if n, ok := g.nodes[id]; ok {
		return n
	}
	n := newNode(id)
	g.nodes[id] = n
	g.order = append(g.order, id)
	return n
}

// Node returns the node for id, or nil.
func (g *Graph) Node(id string) *Node {
	return g.nodes[id]
}

// Len returns the number of nodes.
func (g *Graph) Len() int { return len(g.nodes) }

// NodeIDs returns node ids in insertion order.
func (g *Graph) NodeIDs() []string {
	out := make([]string, len(g.order))
	copy(out, g.order)
	return out
}

// AddEdge records a predecessor→successor edge. Endpoints are created
// as reference placeholders when absent but are not declared.
func (g *Graph) AddEdge(predecessorID, successorID string) {
	pred := g.ensureNode(predecessorID)
	succ := g.ensureNode(successorID)
	pred.addSuccessor(successorID)
	succ.addPredecessor(predecessorID)
}

// Roots returns nodes with no predecessors, in insertion order.
func (g *Graph) Roots() []string {
	var out []string
	for _, id := range g.order {
		if len(g.nodes[id].Predecessors) == 0 {
			out = append(out, id)
		}
	}
	return out
}

// Leaves returns nodes with no successors, in insertion order.
func (g *Graph) Leaves() []string {
	var out []string
	for _, id := range g.order {
		if len(g.nodes[id].Successors) == 0 {
			out = append(out, id)
		}
	}
	return out
}

// DetectCycles runs a depth-first traversal over successor edges from
// every node, with an explicit frame stack instead of call-stack
// recursion so graph size is not bounded by stack depth. An edge back
// into the current traversal path yields one cycle segment, from the
// first occurrence of the target through the current node and closed
// with the target again. Each traversal stops at its first back-edge.
func (g *Graph) DetectCycles() [][]string {
	visited := make(map[string]struct{})
	var cycles [][]string

	type frame struct {
		id   string
		next int // index of the next successor to visit
	}

	for _, start := range g.order {
		if _, ok := visited[start]; ok {
			continue
		}

		stack := []frame{{id: start}}
		onPath := map[string]struct{}{start: {}}
		visited[start] = struct{}{}
		found := false

		for len(stack) > 0 && !found {
			top := &stack[len(stack)-1]
			succs := g.nodes[top.id].Successors

			if top.next >= len(succs) {
				delete(onPath, top.id)
				stack = stack[:len(stack)-1]
				continue
			}

			succ := succs[top.next]
			top.next++

			if _, onStack := onPath[succ]; onStack {
				// Back-edge: slice the current path from the first
				// occurrence of succ and close the loop.
				var cycle []string
				started := false
				for _, f := range stack {
					if f.id == succ {
						started = true
					}
					if started {
						cycle = append(cycle, f.id)
					}
				}
				cycle = append(cycle, succ)
				cycles = append(cycles, cycle)
				found = true
				continue
			}
			if _, seen := visited[succ]; seen {
				continue
			}
			if g.nodes[succ] == nil {
				// Dangling successor; reported by DetectBrokenLinks.
				continue
			}
			visited[succ] = struct{}{}
			onPath[succ] = struct{}{}
			stack = append(stack, frame{id: succ})
		}
	}

	return cycles
}

// DetectBrokenLinks returns one entry per predecessor or successor
// reference of a declared node that does not correspond to another
// declared node, in the direction of the dangling reference.
func (g *Graph) DetectBrokenLinks() []BrokenLink {
	var broken []BrokenLink
	for _, id := range g.order {
		if !g.Declared(id) {
			continue
		}
		n := g.nodes[id]
		for _, pred := range n.Predecessors {
			if !g.Declared(pred) {
				broken = append(broken, BrokenLink{From: pred, To: id})
			}
		}
		for _, succ := range n.Successors {
			if !g.Declared(succ) {
				broken = append(broken, BrokenLink{From: id, To: succ})
			}
		}
	}
	return broken
}
