package pangraph

import (
	"bytes"
	"fmt"
	"sort"
)

// gapChar fills reserved alignment columns that a node leaves empty.
const gapChar = '-'

// Block is the unit of homology: a consensus sequence plus, for every
// node occurring on it, a sparse description of how that node's actual
// genomic bytes differ from the consensus.
type Block struct {
	ID       BlockID
	Sequence []byte
	Gaps     map[int]int
	Mutate   map[Node]SNPMap
	Insert   map[Node]InsertMap
	Delete   map[Node]DeleteMap
}

// NodeMap records how node identities were replaced by a block
// operation (slice, concatenate, reverse-complement, reconsensus,
// realign). Callers
// use it to rewire paths so that every path node keeps pointing at a
// node that actually exists in some block's allele maps (G1).
type NodeMap map[Node]Node

// NewSingletonBlock wraps a single genome's raw sequence in its own
// block with one node and no variants.
func NewSingletonBlock(sequence []byte, strand Strand) (*Block, Node) {
	id := newBlockID()
	node := newNode(id, strand)
	b := &Block{
		ID:       id,
		Sequence: append([]byte(nil), sequence...),
		Gaps:     make(map[int]int),
		Mutate:   map[Node]SNPMap{node: make(SNPMap)},
		Insert:   map[Node]InsertMap{node: make(InsertMap)},
		Delete:   map[Node]DeleteMap{node: make(DeleteMap)},
	}
	return b, node
}

// Len returns the consensus length.
func (b *Block) Len() int { return len(b.Sequence) }

// Depth returns the number of distinct nodes keyed into the block's
// allele maps.
func (b *Block) Depth() int { return len(b.Mutate) }

// Nodes returns the block's node set in a deterministic order.
func (b *Block) Nodes() []Node {
	out := make([]Node, 0, len(b.Mutate))
	for n := range b.Mutate {
		out = append(out, n)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].handle < out[j].handle })
	return out
}

// HasNode reports whether n is one of b's occurrences.
func (b *Block) HasNode(n Node) bool {
	_, ok := b.Mutate[n]
	return ok
}

// checkNodeSet enforces B1: mutate, insert, and delete share one key set.
func (b *Block) checkNodeSet() error {
	if len(b.Mutate) != len(b.Insert) || len(b.Mutate) != len(b.Delete) {
		return &InvariantViolationError{Invariant: "B1", Detail: fmt.Sprintf("block %s: mismatched allele map sizes", b.ID)}
	}
	for n := range b.Mutate {
		if _, ok := b.Insert[n]; !ok {
			return &InvariantViolationError{Invariant: "B1", Detail: fmt.Sprintf("block %s: node missing from insert map", b.ID)}
		}
		if _, ok := b.Delete[n]; !ok {
			return &InvariantViolationError{Invariant: "B1", Detail: fmt.Sprintf("block %s: node missing from delete map", b.ID)}
		}
	}
	return nil
}

// Materialize reconstructs the unaligned genomic bytes node n
// represents: consensus with n's substitutions, insertions, and
// deletions applied (4.1).
func (b *Block) Materialize(n Node) ([]byte, error) {
	sub, ok := b.Mutate[n]
	if !ok {
		return nil, &InvariantViolationError{Invariant: "B1", Detail: fmt.Sprintf("node not present in block %s", b.ID)}
	}
	ins := b.Insert[n]
	del := b.Delete[n]
	return b.materializeUngapped(sub, ins, del), nil
}

func (b *Block) materializeUngapped(sub SNPMap, ins InsertMap, del DeleteMap) []byte {
	insByPos := groupInsertsByPos(ins)

	positions := make(map[int]bool, len(sub)+len(del)+len(insByPos))
	for p := range sub {
		positions[p] = true
	}
	for p := range del {
		positions[p] = true
	}
	for p := range insByPos {
		positions[p] = true
	}
	ordered := sortedInts(positions)

	var buf bytes.Buffer
	r := 0
	for _, p := range ordered {
		if length, isDel := del[p]; isDel {
			buf.Write(b.Sequence[r:p])
			r = p + length
		} else if base, isSub := sub[p]; isSub {
			buf.Write(b.Sequence[r:p])
			buf.WriteByte(base)
			r = p + 1
		}
		if keys, hasIns := insByPos[p]; hasIns {
			if r <= p {
				buf.Write(b.Sequence[r : p+1])
				r = p + 1
			}
			for _, k := range keys {
				buf.Write(ins[k])
			}
		}
	}
	buf.Write(b.Sequence[r:])
	return buf.Bytes()
}

// MaterializeAligned produces the aligned row for node n: consensus
// bytes (or n's substitution) at each consensus column, and '-' or n's
// insertion bytes filling every reserved gap column.
func (b *Block) MaterializeAligned(n Node) ([]byte, error) {
	sub, ok := b.Mutate[n]
	if !ok {
		return nil, &InvariantViolationError{Invariant: "B1", Detail: fmt.Sprintf("node not present in block %s", b.ID)}
	}
	ins := b.Insert[n]
	del := b.Delete[n]
	return b.materializeAligned(sub, ins, del), nil
}

func (b *Block) materializeAligned(sub SNPMap, ins InsertMap, del DeleteMap) []byte {
	insByPos := groupInsertsByPos(ins)

	var buf bytes.Buffer
	writeGapCell := func(pos int) {
		width, ok := b.Gaps[pos]
		if !ok {
			return
		}
		cell := bytes.Repeat([]byte{gapChar}, width)
		for _, k := range insByPos[pos] {
			seq := ins[k]
			copy(cell[k.Offset:k.Offset+len(seq)], seq)
		}
		buf.Write(cell)
	}

	writeGapCell(-1)
	p := 0
	for p < len(b.Sequence) {
		if length, isDel := del[p]; isDel {
			for i := 0; i < length; i++ {
				buf.WriteByte(gapChar)
				writeGapCell(p + i)
			}
			p += length
			continue
		}
		if base, isSub := sub[p]; isSub {
			buf.WriteByte(base)
		} else {
			buf.WriteByte(b.Sequence[p])
		}
		writeGapCell(p)
		p++
	}
	return buf.Bytes()
}

func groupInsertsByPos(ins InsertMap) map[int][]InsertKey {
	byPos := make(map[int][]InsertKey)
	for k := range ins {
		byPos[k.Pos] = append(byPos[k.Pos], k)
	}
	for p := range byPos {
		sort.Slice(byPos[p], func(i, j int) bool { return byPos[p][i].Offset < byPos[p][j].Offset })
	}
	return byPos
}

func sortedInts(set map[int]bool) []int {
	out := make([]int, 0, len(set))
	for p := range set {
		out = append(out, p)
	}
	sort.Ints(out)
	return out
}

// Slice returns the sub-block covering consensus range [lo,hi), with
// every allele map restricted and translated by -lo. The returned
// block carries fresh node identities; the NodeMap translates from the
// parent's nodes to the slice's (4.2).
func (b *Block) Slice(lo, hi int) (*Block, NodeMap, error) {
	if lo < 0 || hi > len(b.Sequence) || lo > hi {
		return nil, nil, &InvariantViolationError{Invariant: "B3", Detail: fmt.Sprintf("slice [%d,%d) out of range for block %s of length %d", lo, hi, b.ID, len(b.Sequence))}
	}
	id := newBlockID()
	out := &Block{
		ID:       id,
		Sequence: append([]byte(nil), b.Sequence[lo:hi]...),
		Gaps:     make(map[int]int),
		Mutate:   make(map[Node]SNPMap),
		Insert:   make(map[Node]InsertMap),
		Delete:   make(map[Node]DeleteMap),
	}
	for p, width := range b.Gaps {
		if p == -1 {
			if lo == 0 {
				out.Gaps[-1] = width
			}
			continue
		}
		if p >= lo && p < hi {
			out.Gaps[p-lo] = width
		}
	}

	nodeMap := make(NodeMap, len(b.Mutate))
	for n := range b.Mutate {
		newN := newNode(id, n.Strand)
		nodeMap[n] = newN
		out.Mutate[newN] = b.Mutate[n].restrict(lo, hi)
		out.Insert[newN] = b.Insert[n].restrict(lo, hi)
		out.Delete[newN] = b.Delete[n].restrict(lo, hi)
	}
	return out, nodeMap, nil
}

// ReverseComplement returns the reverse complement of b: consensus
// complemented and reversed, every allele map remapped so that
// materializing any node still reproduces the reverse complement of
// what it materialized to before (4.2, P3).
func (b *Block) ReverseComplement() (*Block, NodeMap) {
	n := len(b.Sequence)
	id := newBlockID()
	out := &Block{
		ID:       id,
		Sequence: reverseComplementBytes(b.Sequence),
		Gaps:     make(map[int]int),
		Mutate:   make(map[Node]SNPMap),
		Insert:   make(map[Node]InsertMap),
		Delete:   make(map[Node]DeleteMap),
	}
	for p, width := range b.Gaps {
		out.Gaps[n-2-p] = width
	}

	nodeMap := make(NodeMap, len(b.Mutate))
	for node := range b.Mutate {
		newN := newNode(id, node.Strand.Opposite())
		nodeMap[node] = newN

		sub := make(SNPMap)
		for pos, base := range b.Mutate[node] {
			sub[n-1-pos] = complementBase(base)
		}
		del := make(DeleteMap)
		for pos, length := range b.Delete[node] {
			del[n-pos-length] = length
		}
		ins := make(InsertMap)
		for k, seq := range b.Insert[node] {
			width := b.Gaps[k.Pos]
			newOffset := width - k.Offset - len(seq)
			ins[InsertKey{Pos: n - 2 - k.Pos, Offset: newOffset}] = reverseComplementBytes(seq)
		}
		out.Mutate[newN] = sub
		out.Insert[newN] = ins
		out.Delete[newN] = del
	}
	return out, nodeMap
}

func reverseComplementBytes(seq []byte) []byte {
	out := make([]byte, len(seq))
	for i, b := range seq {
		out[len(seq)-1-i] = complementBase(b)
	}
	return out
}

func complementBase(b byte) byte {
	switch b {
	case 'A':
		return 'T'
	case 'T':
		return 'A'
	case 'C':
		return 'G'
	case 'G':
		return 'C'
	case 'N':
		return 'N'
	default:
		return b
	}
}

// Splice merges a translated allele set for one node into b, offset by
// delta. It is the low-level primitive re-reference uses to fold a
// query node's local alleles into a fused block's coordinate space
// (4.5). b must already have node as a key (it is created by the
// caller beforehand via AddNode).
func (b *Block) Splice(node Node, sub SNPMap, ins InsertMap, del DeleteMap, delta int) error {
	if !b.HasNode(node) {
		return &InvariantViolationError{Invariant: "B1", Detail: fmt.Sprintf("splice target missing node in block %s", b.ID)}
	}
	for pos, base := range sub.translate(delta) {
		b.Mutate[node][pos] = base
	}
	for k, seq := range ins.translate(delta) {
		b.Insert[node][k] = seq
	}
	for pos, length := range del.translate(delta) {
		b.Delete[node][pos] = length
	}
	return nil
}

// AddNode registers node as a new, initially-empty occurrence on b.
func (b *Block) AddNode(node Node) {
	b.Mutate[node] = make(SNPMap)
	b.Insert[node] = make(InsertMap)
	b.Delete[node] = make(DeleteMap)
}

// RemoveNode drops node from b's allele maps (used by Purge/Prune).
func (b *Block) RemoveNode(node Node) {
	delete(b.Mutate, node)
	delete(b.Insert, node)
	delete(b.Delete, node)
}

// growGap widens the reserved gap at pos to at least width, matching
// the "gaps must be reconciled with the maximum insertion reach"
// design note.
func (b *Block) growGap(pos, width int) {
	if cur := b.Gaps[pos]; width > cur {
		b.Gaps[pos] = width
	}
}

// ConcatenateBlocks fuses blocks in order into a single new block.
// rows describes the correspondence between input nodes and output
// rows: rows[i] must have exactly len(blocks) entries, rows[i][k] being
// the node used on blocks[k] for logical row i. Every block must
// contribute exactly one node per row (4.2).
func ConcatenateBlocks(blocks []*Block, rows [][]Node) (*Block, NodeMap, error) {
	if len(blocks) == 0 {
		return nil, nil, &InputValidationError{Reason: "ConcatenateBlocks requires at least one block"}
	}
	for i, row := range rows {
		if len(row) != len(blocks) {
			return nil, nil, &InvariantViolationError{Invariant: "B1", Detail: fmt.Sprintf("row %d has %d entries, want %d", i, len(row), len(blocks))}
		}
	}

	id := newBlockID()
	out := &Block{
		ID:     id,
		Gaps:   make(map[int]int),
		Mutate: make(map[Node]SNPMap),
		Insert: make(map[Node]InsertMap),
		Delete: make(map[Node]DeleteMap),
	}
	nodeMap := make(NodeMap, len(rows)*len(blocks))
	newNodes := make([]Node, len(rows))
	for i := range rows {
		strand := Plus
		if len(rows[i]) > 0 {
			strand = rows[i][0].Strand
		}
		nn := newNode(id, strand)
		newNodes[i] = nn
		out.AddNode(nn)
	}

	offset := 0
	for bi, blk := range blocks {
		for pos, width := range blk.Gaps {
			if pos == -1 {
				if bi == 0 {
					out.growGap(-1, width)
				}
				continue
			}
			out.growGap(pos+offset, width)
		}
		for i, row := range rows {
			node := row[bi]
			if !blk.HasNode(node) {
				return nil, nil, &InvariantViolationError{Invariant: "B1", Detail: fmt.Sprintf("row %d references a node absent from block %s", i, blk.ID)}
			}
			nodeMap[node] = newNodes[i]
			if err := out.Splice(newNodes[i], blk.Mutate[node], blk.Insert[node], blk.Delete[node], offset); err != nil {
				return nil, nil, err
			}
		}
		out.Sequence = append(out.Sequence, blk.Sequence...)
		offset += blk.Len()
	}
	return out, nodeMap, nil
}

// alignedConsensusRow reproduces the consensus itself in aligned form:
// its own bytes at consensus columns, '-' filling every reserved gap.
func (b *Block) alignedConsensusRow() []byte {
	var buf bytes.Buffer
	fill := func(pos int) {
		if width, ok := b.Gaps[pos]; ok {
			buf.Write(bytes.Repeat([]byte{gapChar}, width))
		}
	}
	fill(-1)
	for p, base := range b.Sequence {
		buf.WriteByte(base)
		fill(p)
	}
	return buf.Bytes()
}

// Reconsensus recomputes the consensus as the per-column plurality
// vote across every node's aligned row, then re-derives the allele maps
// against the new consensus (4.3). Blocks of depth under 3 are returned
// unchanged: a plurality of one or two rows isn't a meaningful vote.
// If the vote reproduces the existing consensus exactly, b is returned
// unchanged (this makes the operation idempotent, P4).
func (b *Block) Reconsensus() (*Block, NodeMap, error) {
	nodes := b.Nodes()
	if len(nodes) < 3 {
		return b, nil, nil
	}

	matrix := make(map[Node][]byte, len(nodes))
	var alignedLen int
	for _, n := range nodes {
		row, err := b.MaterializeAligned(n)
		if err != nil {
			return nil, nil, err
		}
		if alignedLen == 0 {
			alignedLen = len(row)
		} else if len(row) != alignedLen {
			return nil, nil, &InvariantViolationError{Invariant: "B5", Detail: fmt.Sprintf("block %s: aligned rows differ in length", b.ID)}
		}
		matrix[n] = row
	}

	old := b.alignedConsensusRow()
	newRow := make([]byte, alignedLen)
	counts := make(map[byte]int, 8)
	for c := 0; c < alignedLen; c++ {
		for k := range counts {
			delete(counts, k)
		}
		for _, n := range nodes {
			counts[matrix[n][c]]++
		}
		newRow[c] = modalByte(counts, old[c])
	}

	if bytes.Equal(newRow, old) {
		return b, nil, nil
	}

	return blockFromAlignedRows(nodes, matrix, newRow, false, b.ID)
}

// modalByte picks the most frequent byte in counts, preferring
// preferred on ties and otherwise the lexicographically smallest byte,
// so the vote is deterministic across runs.
func modalByte(counts map[byte]int, preferred byte) byte {
	best := -1
	var tied []byte
	for c, n := range counts {
		switch {
		case n > best:
			best = n
			tied = []byte{c}
		case n == best:
			tied = append(tied, c)
		}
	}
	sort.Slice(tied, func(i, j int) bool { return tied[i] < tied[j] })
	for _, c := range tied {
		if c == preferred {
			return c
		}
	}
	return tied[0]
}

// blockFromAlignedRows builds a block whose consensus is consensusRow
// with '-' columns dropped, and whose allele maps reproduce exactly the
// given per-node aligned rows against that new consensus. It underlies
// both Reconsensus and external-alignment polish (4.9), which supplies
// its own consensusRow instead of a vote.
//
// When preserveIdentity is false (Reconsensus), the result gets a fresh
// block id and every node a fresh handle under it, and nodeMap records
// old->new for callers to rewire paths with. When true (Realign), the
// result reuses existingID and every node keeps its own handle
// (nodeMap is the identity map), since polish must not disturb the
// node identities every path already holds (G1).
func blockFromAlignedRows(nodes []Node, matrix map[Node][]byte, consensusRow []byte, preserveIdentity bool, existingID BlockID) (*Block, NodeMap, error) {
	l := len(consensusRow)
	isConsensus := make([]bool, l)
	colPos := make([]int, l)
	colGapPos := make([]int, l)
	colGapOffset := make([]int, l)

	pos := -1
	runningGapPos := -1
	offset := 0
	for c := 0; c < l; c++ {
		if consensusRow[c] != gapChar {
			pos++
			isConsensus[c] = true
			colPos[c] = pos
			runningGapPos = pos
			offset = 0
		} else {
			colGapPos[c] = runningGapPos
			colGapOffset[c] = offset
			offset++
		}
	}

	newSeq := make([]byte, 0, pos+1)
	for c := 0; c < l; c++ {
		if isConsensus[c] {
			newSeq = append(newSeq, consensusRow[c])
		}
	}

	newGaps := make(map[int]int)
	runLen := 0
	lastPos := -1
	for c := 0; c < l; c++ {
		if isConsensus[c] {
			if runLen > 0 {
				newGaps[lastPos] = runLen
			}
			runLen = 0
			lastPos = colPos[c]
		} else {
			runLen++
		}
	}
	if runLen > 0 {
		newGaps[lastPos] = runLen
	}

	id := newBlockID()
	if preserveIdentity {
		id = existingID
	}
	out := &Block{
		ID:       id,
		Sequence: newSeq,
		Gaps:     newGaps,
		Mutate:   make(map[Node]SNPMap),
		Insert:   make(map[Node]InsertMap),
		Delete:   make(map[Node]DeleteMap),
	}

	nodeMap := make(NodeMap, len(nodes))
	for _, n := range nodes {
		row := matrix[n]
		if len(row) != l {
			return nil, nil, &InvariantViolationError{Invariant: "B5", Detail: fmt.Sprintf("row for node mismatches aligned length")}
		}
		newN := n
		if !preserveIdentity {
			newN = newNode(id, n.Strand)
		}
		nodeMap[n] = newN

		sub := make(SNPMap)
		ins := make(InsertMap)
		del := make(DeleteMap)

		deleting := false
		var delStart, delLen int
		inserting := false
		var insStart, insGapPos int
		var insBuf []byte

		finishDelete := func() {
			if deleting {
				del[delStart] = delLen
				deleting = false
			}
		}
		finishInsert := func() {
			if inserting {
				ins[InsertKey{Pos: insGapPos, Offset: insStart}] = append([]byte(nil), insBuf...)
				inserting = false
				insBuf = nil
			}
		}

		for c := 0; c < l; c++ {
			b := row[c]
			if isConsensus[c] {
				finishInsert()
				p := colPos[c]
				if b == gapChar {
					if !deleting {
						deleting = true
						delStart = p
						delLen = 0
					}
					delLen++
				} else {
					finishDelete()
					if b != consensusRow[c] {
						sub[p] = b
					}
				}
			} else {
				finishDelete()
				gp := colGapPos[c]
				off := colGapOffset[c]
				if b == gapChar {
					finishInsert()
				} else {
					if !inserting || insGapPos != gp {
						finishInsert()
						inserting = true
						insGapPos = gp
						insStart = off
					}
					insBuf = append(insBuf, b)
				}
			}
		}
		finishDelete()
		finishInsert()

		out.Mutate[newN] = sub
		out.Insert[newN] = ins
		out.Delete[newN] = del
	}

	return out, nodeMap, nil
}

// Realign rebuilds b from an externally supplied aligned matrix (one
// row per existing node, all the same length) produced by an external
// MSA tool during polish (4.9). The block's identity (uuid, node set)
// is preserved: b.ID and every node's handle carry over unchanged into
// the result, so the returned NodeMap is always the identity map and no
// path ever needs rewiring after a polish. Only the consensus and
// allele maps are recomputed, against the plurality of the supplied
// rows. This is the one place blockFromAlignedRows is asked to keep
// identity, unlike Reconsensus which is expected to churn it.
func (b *Block) Realign(aligned map[Node][]byte) (*Block, NodeMap, error) {
	nodes := b.Nodes()
	if len(aligned) != len(nodes) {
		return nil, nil, &InvariantViolationError{Invariant: "B1", Detail: fmt.Sprintf("realignment for block %s covers %d nodes, block has %d", b.ID, len(aligned), len(nodes))}
	}
	var alignedLen int
	for i, n := range nodes {
		row, ok := aligned[n]
		if !ok {
			return nil, nil, &InvariantViolationError{Invariant: "B1", Detail: fmt.Sprintf("realignment missing node for block %s", b.ID)}
		}
		if i == 0 {
			alignedLen = len(row)
		} else if len(row) != alignedLen {
			return nil, nil, &InvariantViolationError{Invariant: "B5", Detail: fmt.Sprintf("realignment rows for block %s differ in length", b.ID)}
		}
	}

	consensusRow := make([]byte, alignedLen)
	counts := make(map[byte]int, 8)
	for c := 0; c < alignedLen; c++ {
		for k := range counts {
			delete(counts, k)
		}
		for _, n := range nodes {
			counts[aligned[n][c]]++
		}
		consensusRow[c] = modalByte(counts, aligned[nodes[0]][c])
	}

	return blockFromAlignedRows(nodes, aligned, consensusRow, true, b.ID)
}
