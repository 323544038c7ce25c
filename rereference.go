package pangraph

import (
	"bytes"

	"github.com/biogo/hts/sam"
)

// fuseSegment implements re-reference (4.5) for one matched segment: it
// fuses the query's slice onto the reference's slice, producing one new
// block whose consensus is the reference's. It returns the fused block
// together with the node substitutions the caller must apply to the
// query's and reference's paths.
func fuseSegment(qBlock, rBlock *Block, seg segment) (*Block, NodeMap, NodeMap, error) {
	qa, qb := seg.qryRange.Start, seg.qryRange.End
	ra, rb := seg.refRange.Start, seg.refRange.End

	qSlice, qSliceMap, err := qBlock.Slice(qa, qb)
	if err != nil {
		return nil, nil, nil, err
	}
	rSlice, rSliceMap, err := rBlock.Slice(ra, rb)
	if err != nil {
		return nil, nil, nil, err
	}
	out := rSlice

	outFromQ := make(NodeMap, len(qSliceMap))
	sliceToOutQ := make(map[Node]Node, len(qSliceMap))
	for orig, sliceNode := range qSliceMap {
		newQ := newNode(out.ID, sliceNode.Strand)
		out.AddNode(newQ)
		outFromQ[orig] = newQ
		sliceToOutQ[sliceNode] = newQ
	}

	for _, op := range seg.interior {
		dq := Interval{op.qRange.Start - qa, op.qRange.End - qa}
		dr := Interval{op.rRange.Start - ra, op.rRange.End - ra}
		switch op.kind {
		case sam.CigarMatch:
			if err := fuseAligned(out, qSlice, sliceToOutQ, dq, dr); err != nil {
				return nil, nil, nil, err
			}
		case sam.CigarDeletion:
			if err := fuseRefOnly(out, qSlice, sliceToOutQ, dq, dr); err != nil {
				return nil, nil, nil, err
			}
		case sam.CigarInsertion:
			if err := fuseQryOnly(out, qSlice, sliceToOutQ, dq, dr); err != nil {
				return nil, nil, nil, err
			}
		}
	}

	return out, outFromQ, rSliceMap, nil
}

// fuseAligned handles an aligned sub-segment: translate the query's
// local alleles by the segment offset and merge them into out.
func fuseAligned(out, qSlice *Block, sliceToOutQ map[Node]Node, dq, dr Interval) error {
	delta := dr.Start - dq.Start
	for sliceQ, outQ := range sliceToOutQ {
		sub := qSlice.Mutate[sliceQ].restrict(dq.Start, dq.End)
		ins := qSlice.Insert[sliceQ].restrict(dq.Start, dq.End)
		del := qSlice.Delete[sliceQ].restrict(dq.Start, dq.End)
		if err := out.Splice(outQ, sub, ins, del, delta); err != nil {
			return err
		}
	}
	for p, width := range qSlice.Gaps {
		if p >= dq.Start && p < dq.End {
			out.growGap(p+delta, width)
		}
	}
	return nil
}

// fuseRefOnly handles a ref-only sub-segment (the query has a deletion
// here): every query node gets a matching deletion in out's coordinate
// space, unless it carries a trailing insertion immediately before this
// point, in which case that insertion is Hamming-aligned against the
// reference bytes it might actually correspond to (4.5).
func fuseRefOnly(out, qSlice *Block, sliceToOutQ map[Node]Node, dq, dr Interval) error {
	length := dr.Len()
	refBytes := out.Sequence[dr.Start:dr.End]
	for sliceQ, outQ := range sliceToOutQ {
		trailing, ok := trailingInsertion(qSlice, sliceQ, dq.Start-1)
		if !ok {
			out.Delete[outQ][dr.Start] = length
			continue
		}
		if err := placeTrailingInsertion(out, outQ, trailing, dr, refBytes); err != nil {
			return err
		}
	}
	return nil
}

// fuseQryOnly handles a qry-only sub-segment (a query insertion absent
// from the reference): each node's actual local bytes are recorded as
// an insertion keyed just before the segment's reference position,
// Hamming-placed against any insertion already reserved there (4.5).
func fuseQryOnly(out, qSlice *Block, sliceToOutQ map[Node]Node, dq, dr Interval) error {
	miniBlock, miniMap, err := qSlice.Slice(dq.Start, dq.End)
	if err != nil {
		return err
	}
	pos := dr.Start - 1
	existingWidth := out.Gaps[pos]
	for sliceQ, outQ := range sliceToOutQ {
		miniNode := miniMap[sliceQ]
		seq, err := miniBlock.Materialize(miniNode)
		if err != nil {
			return err
		}
		if len(seq) == 0 {
			continue
		}
		offset := placementOffset(out, pos, seq, existingWidth)
		out.growGap(pos, offset+len(seq))
		out.Insert[outQ][InsertKey{Pos: pos, Offset: offset}] = seq
	}
	return nil
}

// trailingInsertion concatenates node's insertion bytes keyed at pos,
// in offset order, reporting whether any exist.
func trailingInsertion(b *Block, node Node, pos int) ([]byte, bool) {
	keys := groupInsertsByPos(b.Insert[node])[pos]
	if len(keys) == 0 {
		return nil, false
	}
	var buf bytes.Buffer
	for _, k := range keys {
		buf.Write(b.Insert[node][k])
	}
	return buf.Bytes(), true
}

// placeTrailingInsertion resolves the open question of what to do when
// a query insertion sits directly against a reference-only deletion: it
// Hamming-aligns the insertion against the deleted reference bytes,
// records the aligned window as substitutions, and pushes whatever
// doesn't fit into an ordinary deletion (the unmatched prefix/suffix)
// or, if the insertion overruns the reference window entirely, a
// right-overhang insertion just past it.
func placeTrailingInsertion(out *Block, node Node, insBytes []byte, dr Interval, refBytes []byte) error {
	if len(insBytes) > len(refBytes) {
		matched := len(refBytes)
		for i := 0; i < matched; i++ {
			if refBytes[i] != insBytes[i] {
				out.Mutate[node][dr.Start+i] = insBytes[i]
			}
		}
		overhang := insBytes[matched:]
		pos := dr.End - 1
		existingWidth := out.Gaps[pos]
		offset := placementOffset(out, pos, overhang, existingWidth)
		out.growGap(pos, offset+len(overhang))
		out.Insert[node][InsertKey{Pos: pos, Offset: offset}] = overhang
		return nil
	}

	offset, err := hammingOffset(insBytes, refBytes)
	if err != nil {
		return err
	}
	for i, b := range insBytes {
		if b != refBytes[offset+i] {
			out.Mutate[node][dr.Start+offset+i] = b
		}
	}
	if offset > 0 {
		out.Delete[node][dr.Start] = offset
	}
	tail := offset + len(insBytes)
	if tail < len(refBytes) {
		out.Delete[node][dr.Start+tail] = len(refBytes) - tail
	}
	return nil
}

// placementOffset chooses where within a (possibly already reserved)
// gap to place a new insertion. With no existing reservation it packs
// at offset 0. With one, it Hamming-aligns against whichever existing
// insertion at that position it finds first in node order, so that
// genomes carrying the same insertion end up in the same gap columns
// (which is what lets reconsensus later recognize them as the same
// event rather than manufacturing spurious substitutions).
func placementOffset(out *Block, pos int, seq []byte, existingWidth int) int {
	if existingWidth == 0 {
		return 0
	}
	for _, n := range out.Nodes() {
		for k, existing := range out.Insert[n] {
			if k.Pos != pos {
				continue
			}
			capacity := existingWidth
			if len(seq) > capacity {
				capacity = len(seq)
			}
			virtual := bytes.Repeat([]byte{gapChar}, capacity)
			copy(virtual[k.Offset:], existing)

			maxStart := capacity - len(seq)
			if maxStart < 0 {
				maxStart = 0
			}
			best, bestMismatches := 0, -1
			for start := 0; start <= maxStart; start++ {
				mismatches := 0
				for i, b := range seq {
					if virtual[start+i] != gapChar && virtual[start+i] != b {
						mismatches++
					}
				}
				if bestMismatches == -1 || mismatches < bestMismatches {
					best, bestMismatches = start, mismatches
				}
			}
			return best
		}
	}
	return 0
}
