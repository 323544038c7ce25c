package pangraph

import (
	"encoding/hex"
	"fmt"

	"github.com/biogo/hts/sam"
	"github.com/sirupsen/logrus"
)

// Hit locates one side of a pairwise alignment on a named sequence
// (here, a block's hex uuid, since that's how consensi are named in
// FASTA sent to the external aligner, 6.3/6.4).
type Hit struct {
	Name  string
	Len   int
	Start int
	Stop  int
}

// Alignment is the record shape the external aligner contract (6.4)
// returns. Only Length >= 100 and Energy <= 0 alignments are merged.
type Alignment struct {
	Qry, Ref   Hit
	Matches    int
	Length     int
	Quality    float64
	Strand     Strand
	Cigar      string
	Divergence *float64
	Score      *float64
}

// EnergyFunc scores an alignment; the merge driver treats it as an
// opaque callback supplied by the (out of scope) guide-tree code.
type EnergyFunc func(Alignment) float64

// DefaultEnergy implements the reference scoring formula from 4.6:
// score = -length + 100*num_clipped_ends + 20*mismatches.
func DefaultEnergy(a Alignment) float64 {
	mismatches := a.Length - a.Matches
	clipped := countClippedEnds(a.Cigar)
	return float64(-a.Length + 100*clipped + 20*mismatches)
}

func countClippedEnds(cigar string) int {
	ops, err := parseCigar(cigar)
	if err != nil || len(ops) == 0 {
		return 0
	}
	count := 0
	if isClip(ops[0].Type()) {
		count++
	}
	if len(ops) > 1 && isClip(ops[len(ops)-1].Type()) {
		count++
	}
	return count
}

func isClip(t sam.CigarOpType) bool {
	return t == sam.CigarSoftClipped || t == sam.CigarHardClipped
}

// Accept applies the length/energy admission rule from 6.4.
func Accept(a Alignment, energy EnergyFunc) bool {
	if energy == nil {
		energy = DefaultEnergy
	}
	return a.Length >= 100 && energy(a) <= 0
}

// MergeConfig carries the knobs the merge driver and its worker pool
// need.
type MergeConfig struct {
	MinBlock int
	Threads  int
	Energy   EnergyFunc
}

// DefaultMergeConfig matches the reference defaults (minblock 500,
// energy predicate from 4.6, worker count from the runtime).
func DefaultMergeConfig() MergeConfig {
	return MergeConfig{MinBlock: 500, Threads: 0, Energy: DefaultEnergy}
}

func parseBlockName(name string) (BlockID, error) {
	raw, err := hex.DecodeString(name)
	var id BlockID
	if err != nil || len(raw) != len(id) {
		return id, &InputValidationError{Reason: fmt.Sprintf("alignment hit name %q is not a block id", name), Cause: err}
	}
	copy(id[:], raw)
	return id, nil
}

// mergeResult is the pure, graph-independent product of computeMerge:
// the new blocks a merge introduces and how each side's original nodes
// map onto them. Applying it is the only step that touches g.
type mergeResult struct {
	queryBlockID, refBlockID BlockID
	newBlocks                []*Block
	queryReplacements        map[Node][]Node
	refReplacements          map[Node][]Node
}

// computeMerge implements the merge driver (4.6) for one alignment: it
// reads the two blocks named by the alignment (never mutating the
// graph) and returns the replacement plan. A nil, nil result means the
// alignment was below the acceptance threshold and should be skipped.
func computeMerge(g *Graph, aln Alignment, cfg MergeConfig) (*mergeResult, error) {
	if !Accept(aln, cfg.Energy) {
		Log.WithFields(logrus.Fields{"qry": aln.Qry.Name, "ref": aln.Ref.Name, "length": aln.Length}).Debug("merge: alignment rejected")
		return nil, nil
	}

	qid, err := parseBlockName(aln.Qry.Name)
	if err != nil {
		return nil, err
	}
	rid, err := parseBlockName(aln.Ref.Name)
	if err != nil {
		return nil, err
	}
	qBlock, ok := g.BlockByID(qid)
	if !ok {
		return nil, &InvariantViolationError{Invariant: "G1", Detail: fmt.Sprintf("alignment references unknown query block %s", qid)}
	}
	rBlock, ok := g.BlockByID(rid)
	if !ok {
		return nil, &InvariantViolationError{Invariant: "G1", Detail: fmt.Sprintf("alignment references unknown reference block %s", rid)}
	}

	workQ := qBlock
	qBase := identityNodeMap(qBlock)
	qryStart, qryStop := aln.Qry.Start, aln.Qry.Stop
	if aln.Strand == Minus {
		rc, nodeMap := qBlock.ReverseComplement()
		workQ = rc
		qBase = nodeMap
		n := qBlock.Len()
		qryStart, qryStop = n-aln.Qry.Stop, n-aln.Qry.Start
	}

	working := aln
	working.Qry.Start, working.Qry.Stop = qryStart, qryStop

	segs, err := partition(working, workQ.Len(), rBlock.Len(), partitionConfig{MinBlock: cfg.MinBlock})
	if err != nil {
		return nil, err
	}

	result := &mergeResult{
		queryBlockID:      qBlock.ID,
		refBlockID:        rBlock.ID,
		queryReplacements: make(map[Node][]Node),
		refReplacements:   make(map[Node][]Node),
	}
	for n := range qBlock.Mutate {
		result.queryReplacements[n] = nil
	}
	for n := range rBlock.Mutate {
		result.refReplacements[n] = nil
	}

	appendQ := func(qMap NodeMap) error {
		for orig, workNode := range qBase {
			newNode, ok := qMap[workNode]
			if !ok {
				continue
			}
			result.queryReplacements[orig] = append(result.queryReplacements[orig], newNode)
		}
		return nil
	}
	appendR := func(rMap NodeMap) {
		for orig, newNode := range rMap {
			result.refReplacements[orig] = append(result.refReplacements[orig], newNode)
		}
	}

	for _, seg := range segs {
		switch seg.kind {
		case segQryOnly:
			blk, nodeMap, err := workQ.Slice(seg.qryRange.Start, seg.qryRange.End)
			if err != nil {
				return nil, err
			}
			blk, rcMap, err := finishBlock(blk)
			if err != nil {
				return nil, err
			}
			if err := appendQ(composeMaps(nodeMap, rcMap)); err != nil {
				return nil, err
			}
			result.newBlocks = append(result.newBlocks, blk)

		case segRefOnly:
			blk, nodeMap, err := rBlock.Slice(seg.refRange.Start, seg.refRange.End)
			if err != nil {
				return nil, err
			}
			blk, rcMap, err := finishBlock(blk)
			if err != nil {
				return nil, err
			}
			appendR(composeMaps(nodeMap, rcMap))
			result.newBlocks = append(result.newBlocks, blk)

		case segMatched:
			blk, qMap, rMap, err := fuseSegment(workQ, rBlock, seg)
			if err != nil {
				return nil, err
			}
			blk, rcMap, err := finishBlock(blk)
			if err != nil {
				return nil, err
			}
			if err := appendQ(composeMaps(qMap, rcMap)); err != nil {
				return nil, err
			}
			appendR(composeMaps(rMap, rcMap))
			result.newBlocks = append(result.newBlocks, blk)
		}
	}

	// segs walks workQ (= RC(Q) on a Minus-strand alignment) in increasing
	// coordinate order, so appendQ built each node's replacement list in
	// workQ order -- the reverse of Q's own left-to-right order. Path.Replace
	// needs the list in Q's order, so undo that here.
	if aln.Strand == Minus {
		for _, reps := range result.queryReplacements {
			for i, j := 0, len(reps)-1; i < j; i, j = i+1, j-1 {
				reps[i], reps[j] = reps[j], reps[i]
			}
		}
	}

	return result, nil
}

// finishBlock runs reconsensus on a freshly produced block (4.5's
// closing step, "this is what guarantees convergence of the consensus
// under iterated merges") and reports how, if at all, node identities
// changed.
func finishBlock(b *Block) (*Block, NodeMap, error) {
	out, nodeMap, err := b.Reconsensus()
	if err != nil {
		return nil, nil, err
	}
	return out, nodeMap, nil
}

// composeMaps chases a node through two maps in sequence, falling back
// to the first map's target when the second (e.g. an unchanged
// reconsensus) is nil.
func composeMaps(first, second NodeMap) NodeMap {
	if second == nil {
		return first
	}
	out := make(NodeMap, len(first))
	for k, v := range first {
		if mapped, ok := second[v]; ok {
			out[k] = mapped
		} else {
			out[k] = v
		}
	}
	return out
}

func identityNodeMap(b *Block) NodeMap {
	out := make(NodeMap, len(b.Mutate))
	for n := range b.Mutate {
		out[n] = n
	}
	return out
}

// applyMerge is the single-writer step: swap the two consumed blocks
// for the new ones and rewrite every path that referenced them (4.6
// steps 3-5).
func (g *Graph) applyMerge(r *mergeResult) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	for _, b := range r.newBlocks {
		g.addBlock(b)
	}
	g.removeBlock(r.queryBlockID)
	g.removeBlock(r.refBlockID)

	for _, p := range g.paths {
		for orig, repl := range r.queryReplacements {
			p.Replace(orig, repl)
		}
		for orig, repl := range r.refReplacements {
			p.Replace(orig, repl)
		}
	}
	return nil
}
