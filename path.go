package pangraph

import "bytes"

// BlockSource resolves a node's block. Graph implements it; Path itself
// never owns blocks, only the ordered node list that walks them (the
// arena-with-handles design in the source's design notes).
type BlockSource interface {
	BlockByID(id BlockID) (*Block, bool)
}

// Path is one genome: an ordered, optionally circular, list of node
// occurrences.
type Path struct {
	Name     string
	Nodes    []Node
	Offset   int
	Circular bool

	// positions holds the reconstructed-genome span of each node, in
	// the same order as Nodes. It is nil until Finalize runs and is
	// invalidated by any subsequent edit to Nodes.
	positions []Interval
}

// NewPath builds a path over an existing node sequence.
func NewPath(name string, nodes []Node, offset int, circular bool) *Path {
	return &Path{
		Name:     name,
		Nodes:    append([]Node(nil), nodes...),
		Offset:   offset,
		Circular: circular,
	}
}

// Len returns the number of node occurrences on the path.
func (p *Path) Len() int { return len(p.Nodes) }

// Materialize reconstructs the path's genome by materializing each
// node through blocks and reverse-complementing the ones traversed on
// the minus strand, then concatenating in order (G2).
func (p *Path) Materialize(blocks BlockSource) ([]byte, error) {
	var buf bytes.Buffer
	for _, n := range p.Nodes {
		b, ok := blocks.BlockByID(n.Block)
		if !ok {
			return nil, &InvariantViolationError{Invariant: "G1", Detail: "path " + p.Name + " references a node whose block is not in the graph"}
		}
		seq, err := b.Materialize(n)
		if err != nil {
			return nil, err
		}
		if n.Strand == Minus {
			seq = reverseComplementBytes(seq)
		}
		buf.Write(seq)
	}
	return buf.Bytes(), nil
}

// Finalize recomputes the per-node position table against the current
// node list. Must be called after any structural edit before Position
// is trusted.
func (p *Path) Finalize(blocks BlockSource) error {
	positions := make([]Interval, len(p.Nodes))
	cursor := 0
	for i, n := range p.Nodes {
		b, ok := blocks.BlockByID(n.Block)
		if !ok {
			return &InvariantViolationError{Invariant: "G1", Detail: "path " + p.Name + " references a node whose block is not in the graph"}
		}
		seq, err := b.Materialize(n)
		if err != nil {
			return err
		}
		positions[i] = Interval{Start: cursor, End: cursor + len(seq)}
		cursor += len(seq)
	}
	p.positions = positions
	return nil
}

// Position returns node i's span on the reconstructed genome. Finalize
// must have run since the last edit.
func (p *Path) Position(i int) (Interval, bool) {
	if p.positions == nil || i < 0 || i >= len(p.positions) {
		return Interval{}, false
	}
	return p.positions[i], true
}

// NodeNumbers returns, for every node on the path, the 1-based count of
// occurrences of that node's block on this path up to and including it,
// which distinguishes paralogs. MarshalGraph does not use it: its
// "number" field counts occurrences across all paths (see nodeTriple).
func (p *Path) NodeNumbers() map[Node]int {
	seen := make(map[BlockID]int, len(p.Nodes))
	out := make(map[Node]int, len(p.Nodes))
	for _, n := range p.Nodes {
		seen[n.Block]++
		out[n] = seen[n.Block]
	}
	return out
}

// Replace substitutes the single occurrence of old with the ordered
// list of replacement nodes, preserving position. It reports whether
// old was found. Used by the merge driver (4.6 steps 3-4) to rewire
// paths after a block operation.
func (p *Path) Replace(old Node, replacement []Node) bool {
	for i, n := range p.Nodes {
		if n == old {
			out := make([]Node, 0, len(p.Nodes)-1+len(replacement))
			out = append(out, p.Nodes[:i]...)
			out = append(out, replacement...)
			out = append(out, p.Nodes[i+1:]...)
			p.Nodes = out
			p.positions = nil
			return true
		}
	}
	return false
}

// RemoveNodeAt drops the node at index i entirely (Purge, 4.8).
func (p *Path) RemoveNodeAt(i int) {
	p.Nodes = append(p.Nodes[:i], p.Nodes[i+1:]...)
	p.positions = nil
}

// Contains reports whether n occurs on the path.
func (p *Path) Contains(n Node) bool {
	for _, m := range p.Nodes {
		if m == n {
			return true
		}
	}
	return false
}

// Junctions yields the ordered adjacent-node pairs the path visits,
// including the wraparound pair when the path is circular (4.7).
func (p *Path) Junctions() []Junction {
	if len(p.Nodes) < 2 {
		return nil
	}
	out := make([]Junction, 0, len(p.Nodes))
	for i := 0; i+1 < len(p.Nodes); i++ {
		out = append(out, Junction{Left: p.Nodes[i], Right: p.Nodes[i+1]})
	}
	if p.Circular {
		out = append(out, Junction{Left: p.Nodes[len(p.Nodes)-1], Right: p.Nodes[0]})
	}
	return out
}
