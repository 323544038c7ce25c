package pangraph

import (
	"testing"

	"github.com/biogo/hts/sam"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFuseSegmentMatchedTranslatesExistingSubstitution(t *testing.T) {
	qBlock, qNode := NewSingletonBlock([]byte("AAAA"), Plus)
	qBlock.Mutate[qNode][1] = 'T' // query's actual base at position 1 is a recorded variant
	rBlock, rNode := NewSingletonBlock([]byte("AAAA"), Plus)

	seg := segment{
		kind:     segMatched,
		qryRange: Interval{0, 4},
		refRange: Interval{0, 4},
		interior: []alignedOp{{kind: sam.CigarMatch, qRange: Interval{0, 4}, rRange: Interval{0, 4}}},
	}
	fused, qMap, rMap, err := fuseSegment(qBlock, rBlock, seg)
	require.NoError(t, err)
	assert.Equal(t, "AAAA", string(fused.Sequence))

	outQ, ok := qMap[qNode]
	require.True(t, ok)
	seq, err := fused.Materialize(outQ)
	require.NoError(t, err)
	assert.Equal(t, "ATAA", string(seq))

	outR, ok := rMap[rNode]
	require.True(t, ok)
	seqR, err := fused.Materialize(outR)
	require.NoError(t, err)
	assert.Equal(t, "AAAA", string(seqR))
}

func TestFuseSegmentRefOnlyRecordsQueryDeletion(t *testing.T) {
	qBlock, qNode := NewSingletonBlock([]byte("AAAA"), Plus)
	rBlock, _ := NewSingletonBlock([]byte("AACCAA"), Plus)

	seg := segment{
		kind:     segMatched,
		qryRange: Interval{0, 4},
		refRange: Interval{0, 6},
		interior: []alignedOp{
			{kind: sam.CigarMatch, qRange: Interval{0, 2}, rRange: Interval{0, 2}},
			{kind: sam.CigarDeletion, qRange: Interval{2, 2}, rRange: Interval{2, 4}},
			{kind: sam.CigarMatch, qRange: Interval{2, 4}, rRange: Interval{4, 6}},
		},
	}
	fused, qMap, _, err := fuseSegment(qBlock, rBlock, seg)
	require.NoError(t, err)

	outQ := qMap[qNode]
	seq, err := fused.Materialize(outQ)
	require.NoError(t, err)
	assert.Equal(t, "AAAA", string(seq))
}

func TestFuseSegmentQryOnlyRecordsInsertion(t *testing.T) {
	qBlock, qNode := NewSingletonBlock([]byte("AAGGAA"), Plus)
	rBlock, _ := NewSingletonBlock([]byte("AAAA"), Plus)

	seg := segment{
		kind:     segMatched,
		qryRange: Interval{0, 6},
		refRange: Interval{0, 4},
		interior: []alignedOp{
			{kind: sam.CigarMatch, qRange: Interval{0, 2}, rRange: Interval{0, 2}},
			{kind: sam.CigarInsertion, qRange: Interval{2, 4}, rRange: Interval{2, 2}},
			{kind: sam.CigarMatch, qRange: Interval{4, 6}, rRange: Interval{2, 4}},
		},
	}
	fused, qMap, _, err := fuseSegment(qBlock, rBlock, seg)
	require.NoError(t, err)

	outQ := qMap[qNode]
	seq, err := fused.Materialize(outQ)
	require.NoError(t, err)
	assert.Equal(t, "AAGGAA", string(seq))
}
