package pangraph

import "sort"

// Junction is a directed pair of nodes adjacent on some path.
type Junction struct {
	Left, Right Node
}

// ChainEntry names a block traversed in a fixed reading direction. It
// is the unit detransitive chains are built from once we stop caring
// about which specific node occurrence carried the traversal.
type ChainEntry struct {
	Block  BlockID
	Strand Strand
}

// JunctionKey is the block-level shadow of a Junction: which two
// blocks, in which orientations, are adjacent. Multiple genomes can
// share one JunctionKey even though each contributes its own distinct
// Junction (their nodes differ).
type JunctionKey struct {
	Left, Right ChainEntry
}

// JunctionIndex counts, per block and per block-level junction, which
// isolates (genome names) cross it. It drives detransitive (4.7, C8).
type JunctionIndex struct {
	isoByBlock map[BlockID]map[string]bool
	crossings  map[JunctionKey]map[string]bool
}

// NewJunctionIndex scans every path once and tallies both per-block and
// per-junction isolate sets.
func NewJunctionIndex(paths []*Path) *JunctionIndex {
	idx := &JunctionIndex{
		isoByBlock: make(map[BlockID]map[string]bool),
		crossings:  make(map[JunctionKey]map[string]bool),
	}
	for _, p := range paths {
		for _, n := range p.Nodes {
			idx.addIso(n.Block, p.Name)
		}
		for _, j := range p.Junctions() {
			key := JunctionKey{
				Left:  ChainEntry{Block: j.Left.Block, Strand: j.Left.Strand},
				Right: ChainEntry{Block: j.Right.Block, Strand: j.Right.Strand},
			}
			if idx.crossings[key] == nil {
				idx.crossings[key] = make(map[string]bool)
			}
			idx.crossings[key][p.Name] = true
		}
	}
	return idx
}

func (idx *JunctionIndex) addIso(id BlockID, name string) {
	if idx.isoByBlock[id] == nil {
		idx.isoByBlock[id] = make(map[string]bool)
	}
	idx.isoByBlock[id][name] = true
}

// IsoBlock returns the sorted set of genome names using id.
func (idx *JunctionIndex) IsoBlock(id BlockID) []string { return sortedNames(idx.isoByBlock[id]) }

// IsoJunction returns the sorted set of genome names crossing key.
func (idx *JunctionIndex) IsoJunction(key JunctionKey) []string {
	return sortedNames(idx.crossings[key])
}

func sortedNames(set map[string]bool) []string {
	out := make([]string, 0, len(set))
	for n := range set {
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}

func sameSet(a, b map[string]bool) bool {
	if len(a) != len(b) {
		return false
	}
	for n := range a {
		if !b[n] {
			return false
		}
	}
	return true
}

// isTransitive reports whether key satisfies iso(Left)==iso(Right)==iso(key).
func (idx *JunctionIndex) isTransitive(key JunctionKey) bool {
	crossing := idx.crossings[key]
	left := idx.isoByBlock[key.Left.Block]
	right := idx.isoByBlock[key.Right.Block]
	return sameSet(crossing, left) && sameSet(left, right)
}

// TransitiveJunctions returns every transitive junction key, ordered by
// the stable total order the spec requires for deterministic chain
// threading: (left.block, left.strand, right.block, right.strand).
func (idx *JunctionIndex) TransitiveJunctions() []JunctionKey {
	var out []JunctionKey
	for key := range idx.crossings {
		if idx.isTransitive(key) {
			out = append(out, key)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return lessJunctionKey(out[i], out[j])
	})
	return out
}

func lessJunctionKey(a, b JunctionKey) bool {
	if a.Left.Block != b.Left.Block {
		return lessBlockID(a.Left.Block, b.Left.Block)
	}
	if a.Left.Strand != b.Left.Strand {
		return a.Left.Strand < b.Left.Strand
	}
	if a.Right.Block != b.Right.Block {
		return lessBlockID(a.Right.Block, b.Right.Block)
	}
	return a.Right.Strand < b.Right.Strand
}

func lessBlockID(a, b BlockID) bool {
	for i := range a {
		if a[i] != b[i] {
			return a[i] < b[i]
		}
	}
	return false
}
