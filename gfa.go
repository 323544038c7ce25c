package pangraph

import (
	"bufio"
	"fmt"
	"io"
	"sort"
)

// linkKey is an unordered pair of blocks joined by strand, used to
// dedupe L-lines: two isolates crossing the same junction in the same
// orientation emit one link, not one per traversal.
type linkKey struct {
	fromID     BlockID
	fromStrand Strand
	toID       BlockID
	toStrand   Strand
}

func normalizeLink(a, b Node) linkKey {
	k := linkKey{a.Block, a.Strand, b.Block, b.Strand}
	revA, revB := b.Reversed(), a.Reversed()
	rev := linkKey{revA.Block, revA.Strand, revB.Block, revB.Strand}
	if lessLinkKey(rev, k) {
		return rev
	}
	return k
}

func lessLinkKey(a, b linkKey) bool {
	if a.fromID != b.fromID {
		return lessBlockID(a.fromID, b.fromID)
	}
	if a.fromStrand != b.fromStrand {
		return a.fromStrand < b.fromStrand
	}
	if a.toID != b.toID {
		return lessBlockID(a.toID, b.toID)
	}
	return a.toStrand < b.toStrand
}

// WriteGFA exports the graph as GFA 1.0 (6.2): one S-line per block
// carrying its consensus and read-coverage (RC) tag, one deduplicated
// L-line per unordered junction crossed by any path, and one P-line
// per path listing its node sequence and strand, tagged TP:Z:circular
// when the path wraps around.
func WriteGFA(w io.Writer, g *Graph) error {
	bw := bufio.NewWriter(w)
	blocks := g.Blocks()
	paths := g.Paths()

	depth := make(map[BlockID]int, len(blocks))
	for _, b := range blocks {
		depth[b.ID] = b.Depth()
	}

	if _, err := fmt.Fprintln(bw, "H\tVN:Z:1.0"); err != nil {
		return err
	}
	for _, b := range blocks {
		if _, err := fmt.Fprintf(bw, "S\t%s\t%s\tRC:i:%d\n", b.ID.String(), string(b.Sequence), depth[b.ID]); err != nil {
			return err
		}
	}

	links := make(map[linkKey]bool)
	for _, p := range paths {
		for _, j := range p.Junctions() {
			links[normalizeLink(j.Left, j.Right)] = true
		}
	}
	keys := make([]linkKey, 0, len(links))
	for k := range links {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return lessLinkKey(keys[i], keys[j]) })
	for _, k := range keys {
		if _, err := fmt.Fprintf(bw, "L\t%s\t%s\t%s\t%s\t0M\n",
			k.fromID.String(), gfaStrand(k.fromStrand),
			k.toID.String(), gfaStrand(k.toStrand)); err != nil {
			return err
		}
	}

	for _, p := range paths {
		segs := make([]string, len(p.Nodes))
		for i, n := range p.Nodes {
			segs[i] = n.Block.String() + gfaStrand(n.Strand)
		}
		overlaps := make([]string, len(p.Nodes))
		for i := range overlaps {
			overlaps[i] = "0M"
		}
		line := fmt.Sprintf("P\t%s\t%s\t%s", p.Name, joinComma(segs), joinComma(overlaps))
		if p.Circular {
			line += "\tTP:Z:circular"
		}
		if _, err := fmt.Fprintln(bw, line); err != nil {
			return err
		}
	}

	return bw.Flush()
}

func gfaStrand(s Strand) string {
	if s == Plus {
		return "+"
	}
	return "-"
}

func joinComma(items []string) string {
	if len(items) == 0 {
		return ""
	}
	out := items[0]
	for _, s := range items[1:] {
		out += "," + s
	}
	return out
}
