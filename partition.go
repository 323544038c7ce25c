package pangraph

import (
	"fmt"
	"strconv"

	"github.com/biogo/hts/sam"
	"github.com/sirupsen/logrus"
)

// parseCigar tokenizes a plain CIGAR string ("4M5D3M") into the
// biogo/hts/sam operation type used throughout partition and
// re-reference. sam itself only exposes CIGAR parsing embedded in full
// SAM record text, so the length/operation tokenizing here is our own;
// classification and iteration afterward go through sam.CigarOp so the
// op-type space stays exactly the one biogo/hts models.
func parseCigar(raw string) (sam.Cigar, error) {
	var ops sam.Cigar
	n := 0
	haveDigits := false
	for _, r := range raw {
		if r >= '0' && r <= '9' {
			n = n*10 + int(r-'0')
			haveDigits = true
			continue
		}
		if !haveDigits {
			return nil, &UnsupportedError{Feature: "cigar", Detail: fmt.Sprintf("malformed cigar %q", raw)}
		}
		opType, ok := cigarOpFromByte(byte(r))
		if !ok {
			return nil, &UnsupportedError{Feature: "cigar op", Detail: fmt.Sprintf("%q in cigar %q", string(r), raw)}
		}
		ops = append(ops, sam.NewCigarOp(opType, n))
		n = 0
		haveDigits = false
	}
	if haveDigits {
		return nil, &UnsupportedError{Feature: "cigar", Detail: fmt.Sprintf("trailing length with no op in %q", raw)}
	}
	return ops, nil
}

func cigarOpFromByte(b byte) (sam.CigarOpType, bool) {
	switch b {
	case 'M':
		return sam.CigarMatch, true
	case 'I':
		return sam.CigarInsertion, true
	case 'D':
		return sam.CigarDeletion, true
	case 'S':
		return sam.CigarSoftClipped, true
	case 'H':
		return sam.CigarHardClipped, true
	default:
		return 0, false
	}
}

// segmentKind classifies a partition segment (4.4).
type segmentKind int

const (
	segQryOnly segmentKind = iota
	segRefOnly
	segMatched
)

// alignedOp is one column-correspondence step inside a matched segment:
// a run of the interior CIGAR restricted to {M,I,D} together with the
// query/reference ranges it covers.
type alignedOp struct {
	kind   sam.CigarOpType // CigarMatch, CigarInsertion, or CigarDeletion
	qRange Interval
	rRange Interval
}

// segment is one emitted piece of the partition.
type segment struct {
	kind segmentKind

	// valid when kind == segQryOnly or segRefOnly
	qryRange Interval
	refRange Interval

	// valid when kind == segMatched
	interior []alignedOp
}

// partitionConfig carries the knobs partition needs from the merge
// driver.
type partitionConfig struct {
	MinBlock int
}

// partition implements 4.4: given the alignment's outer coordinates and
// interior CIGAR, emit the ordered qry-only/ref-only/matched segment
// list. qLen/rLen are the full consensus lengths of the (possibly
// already reverse-complemented) query and reference blocks.
func partition(aln Alignment, qLen, rLen int, cfg partitionConfig) ([]segment, error) {
	ops, err := parseCigar(aln.Cigar)
	if err != nil {
		return nil, err
	}
	for _, op := range ops {
		switch op.Type() {
		case sam.CigarMatch, sam.CigarInsertion, sam.CigarDeletion:
		default:
			return nil, &UnsupportedError{Feature: "cigar op", Detail: fmt.Sprintf("op %v not in {M,I,D}", op.Type())}
		}
	}

	minBlock := cfg.MinBlock
	if minBlock <= 0 {
		minBlock = 500
	}

	var segs []segment
	if aln.Qry.Start > 0 {
		segs = append(segs, segment{kind: segQryOnly, qryRange: Interval{0, aln.Qry.Start}})
	}
	if aln.Ref.Start > 0 {
		segs = append(segs, segment{kind: segRefOnly, refRange: Interval{0, aln.Ref.Start}})
	}

	qx, rx := aln.Qry.Start, aln.Ref.Start
	var run []alignedOp
	flushMatched := func() {
		if len(run) == 0 {
			return
		}
		lo := run[0]
		hi := run[len(run)-1]
		segs = append(segs, segment{
			kind:     segMatched,
			qryRange: Interval{lo.qRange.Start, hi.qRange.End},
			refRange: Interval{lo.rRange.Start, hi.rRange.End},
			interior: append([]alignedOp(nil), run...),
		})
		run = nil
	}

	for _, op := range ops {
		length := op.Len()
		switch op.Type() {
		case sam.CigarMatch:
			run = append(run, alignedOp{kind: sam.CigarMatch, qRange: Interval{qx, qx + length}, rRange: Interval{rx, rx + length}})
			qx += length
			rx += length
		case sam.CigarInsertion:
			if length >= minBlock {
				flushMatched()
				segs = append(segs, segment{kind: segQryOnly, qryRange: Interval{qx, qx + length}})
			} else {
				run = append(run, alignedOp{kind: sam.CigarInsertion, qRange: Interval{qx, qx + length}, rRange: Interval{rx, rx}})
			}
			qx += length
		case sam.CigarDeletion:
			if length >= minBlock {
				flushMatched()
				segs = append(segs, segment{kind: segRefOnly, refRange: Interval{rx, rx + length}})
			} else {
				run = append(run, alignedOp{kind: sam.CigarDeletion, qRange: Interval{qx, qx}, rRange: Interval{rx, rx + length}})
			}
			rx += length
		}
	}
	flushMatched()

	if qx != aln.Qry.Stop || rx != aln.Ref.Stop {
		return nil, &InvariantViolationError{Invariant: "partition", Detail: fmt.Sprintf("cigar walk ended at (q=%d,r=%d), alignment declared stop (q=%d,r=%d)", qx, rx, aln.Qry.Stop, aln.Ref.Stop)}
	}

	if aln.Qry.Stop < qLen {
		segs = append(segs, segment{kind: segQryOnly, qryRange: Interval{aln.Qry.Stop, qLen}})
	}
	if aln.Ref.Stop < rLen {
		segs = append(segs, segment{kind: segRefOnly, refRange: Interval{aln.Ref.Stop, rLen}})
	}

	if err := checkFullCoverage(segs, qLen, rLen); err != nil {
		return nil, err
	}
	return segs, nil
}

// checkFullCoverage verifies that the emitted segments jointly cover
// every consensus position of both the query and the reference: a gap
// would mean partition dropped bytes.
func checkFullCoverage(segs []segment, qLen, rLen int) error {
	var qCovered, rCovered IntervalSet
	for _, seg := range segs {
		switch seg.kind {
		case segQryOnly:
			qCovered = qCovered.Union(NewIntervalSet(seg.qryRange))
		case segRefOnly:
			rCovered = rCovered.Union(NewIntervalSet(seg.refRange))
		case segMatched:
			qCovered = qCovered.Union(NewIntervalSet(seg.qryRange))
			rCovered = rCovered.Union(NewIntervalSet(seg.refRange))
		}
	}
	if missing := NewIntervalSet(Interval{0, qLen}).Difference(qCovered); len(missing) > 0 {
		return &InvariantViolationError{Invariant: "partition", Detail: fmt.Sprintf("partition leaves query positions %v uncovered", missing)}
	}
	if missing := NewIntervalSet(Interval{0, rLen}).Difference(rCovered); len(missing) > 0 {
		return &InvariantViolationError{Invariant: "partition", Detail: fmt.Sprintf("partition leaves reference positions %v uncovered", missing)}
	}
	return nil
}

// hammingOffset finds the offset within [0,len(ref)-len(seq)] at which
// seq best matches (fewest mismatches) against ref, used by
// placeTrailingInsertion to place a query insertion against the
// reference bytes of an adjacent reference-only deletion (4.5, open
// question (a)). Negative offsets are refused: the
// source's open TODO about allowing them is left unresolved upstream,
// so this implementation fails fast instead of guessing at semantics
// nothing in the spec pins down.
func hammingOffset(seq, ref []byte) (int, error) {
	if len(seq) > len(ref) {
		Log.WithFields(logrus.Fields{"insertion_len": len(seq), "gap_len": len(ref)}).Debug("re-reference: insertion would need a negative offset, refusing")
		return 0, &UnsupportedError{Feature: "hamming placement", Detail: "insertion longer than reserved gap"}
	}
	best, bestMismatches := -1, len(seq)+1
	for start := 0; start+len(seq) <= len(ref); start++ {
		mismatches := 0
		for i, b := range seq {
			if ref[start+i] != b {
				mismatches++
			}
		}
		if mismatches < bestMismatches {
			best, bestMismatches = start, mismatches
		}
	}
	if best < 0 {
		return 0, &UnsupportedError{Feature: "hamming placement", Detail: "no placement fits within the reserved gap"}
	}
	return best, nil
}

// mustAtoi parses s as a decimal integer and panics if it is not one.
// Nothing in the package calls it.
func mustAtoi(s string) int {
	n, err := strconv.Atoi(s)
	if err != nil {
		panic(err)
	}
	return n
}
