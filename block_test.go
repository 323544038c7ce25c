package pangraph

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewSingletonBlockMaterializesVerbatim(t *testing.T) {
	b, n := NewSingletonBlock([]byte("ACGTACGT"), Plus)
	seq, err := b.Materialize(n)
	require.NoError(t, err)
	assert.Equal(t, "ACGTACGT", string(seq))
	assert.Equal(t, 1, b.Depth())
}

func TestMaterializeAppliesSubstitutionInsertionDeletion(t *testing.T) {
	b, n := NewSingletonBlock([]byte("AAAAAAAAAA"), Plus)
	b.Mutate[n][2] = 'T'
	b.Delete[n][5] = 2
	b.Insert[n][InsertKey{Pos: 8, Offset: 0}] = []byte("GG")
	b.growGap(8, 2)

	seq, err := b.Materialize(n)
	require.NoError(t, err)
	// consensus AAAAAAAAAA, sub at 2, delete [5,7), insert GG trailing position 8
	assert.Equal(t, "AA"+"T"+"AA"+"AA"+"GG"+"A", string(seq))
}

func TestMaterializeAlignedFillsGapColumns(t *testing.T) {
	b, n := NewSingletonBlock([]byte("AAAA"), Plus)
	b.growGap(1, 3)
	b.Insert[n][InsertKey{Pos: 1, Offset: 0}] = []byte("GG")

	row, err := b.MaterializeAligned(n)
	require.NoError(t, err)
	assert.Equal(t, "AA"+"GG-"+"AA", string(row))
}

func TestSliceRestrictsAlleleMaps(t *testing.T) {
	b, n := NewSingletonBlock([]byte("ACGTACGT"), Plus)
	b.Mutate[n][1] = 'T'
	b.Mutate[n][5] = 'C'

	sliced, nodeMap, err := b.Slice(4, 8)
	require.NoError(t, err)
	newN, ok := nodeMap[n]
	require.True(t, ok)

	assert.Equal(t, "ACGT", string(sliced.Sequence))
	assert.Equal(t, map[int]byte{1: 'C'}, map[int]byte(sliced.Mutate[newN]))
}

func TestSliceRejectsOutOfRange(t *testing.T) {
	b, _ := NewSingletonBlock([]byte("ACGT"), Plus)
	_, _, err := b.Slice(-1, 2)
	assert.Error(t, err)
	_, _, err = b.Slice(0, 5)
	assert.Error(t, err)
	_, _, err = b.Slice(3, 1)
	assert.Error(t, err)
}

func TestReverseComplementRoundTrips(t *testing.T) {
	b, n := NewSingletonBlock([]byte("ACGTACGT"), Plus)
	b.Mutate[n][1] = 'T'

	rc, nodeMap := b.ReverseComplement()
	newN, ok := nodeMap[n]
	require.True(t, ok)
	assert.Equal(t, "ACGTACGT", string(reverseComplementBytes(rc.Sequence)))
	assert.Equal(t, Minus, newN.Strand)

	seq, err := b.Materialize(n)
	require.NoError(t, err)
	rcSeq, err := rc.Materialize(newN)
	require.NoError(t, err)
	assert.Equal(t, string(reverseComplementBytes(seq)), string(rcSeq))
}

func TestReverseComplementRemapsInsertionLocus(t *testing.T) {
	b, n := NewSingletonBlock([]byte("AACG"), Plus)
	b.growGap(1, 2)
	b.Insert[n][InsertKey{Pos: 1, Offset: 0}] = []byte("TT")

	seq, err := b.Materialize(n)
	require.NoError(t, err)
	require.Equal(t, "AATTCG", string(seq))

	rc, nodeMap := b.ReverseComplement()
	newN, ok := nodeMap[n]
	require.True(t, ok)
	assert.Equal(t, "CGTT", string(rc.Sequence))

	rcSeq, err := rc.Materialize(newN)
	require.NoError(t, err)
	assert.Equal(t, "CGAATT", string(rcSeq))
}

func TestReverseComplementRemapsLeadingGap(t *testing.T) {
	b, n := NewSingletonBlock([]byte("ACGT"), Plus)
	b.growGap(-1, 2)
	b.Insert[n][InsertKey{Pos: -1, Offset: 0}] = []byte("TT")

	seq, err := b.Materialize(n)
	require.NoError(t, err)
	require.Equal(t, "TTACGT", string(seq))

	rc, nodeMap := b.ReverseComplement()
	newN, ok := nodeMap[n]
	require.True(t, ok)

	rcSeq, err := rc.Materialize(newN)
	require.NoError(t, err)
	assert.Equal(t, string(reverseComplementBytes(seq)), string(rcSeq))
	// the leading gap must land at the new trailing edge (n-1), not
	// out of bounds at n.
	_, ok = rc.Gaps[len(rc.Sequence)-1]
	assert.True(t, ok)
}

func TestComplementBase(t *testing.T) {
	assert.Equal(t, byte('T'), complementBase('A'))
	assert.Equal(t, byte('A'), complementBase('T'))
	assert.Equal(t, byte('G'), complementBase('C'))
	assert.Equal(t, byte('C'), complementBase('G'))
	assert.Equal(t, byte('N'), complementBase('N'))
}

func TestConcatenateBlocksJoinsSequenceAndAlleles(t *testing.T) {
	b1, n1 := NewSingletonBlock([]byte("AAAA"), Plus)
	b2, n2 := NewSingletonBlock([]byte("CCCC"), Plus)
	b1.Mutate[n1][0] = 'T'
	b2.Mutate[n2][1] = 'G'

	fused, nodeMap, err := ConcatenateBlocks([]*Block{b1, b2}, [][]Node{{n1, n2}})
	require.NoError(t, err)
	assert.Equal(t, "AAAACCCC", string(fused.Sequence))

	newN, ok := nodeMap[n1]
	require.True(t, ok)
	assert.Equal(t, nodeMap[n2], newN)

	seq, err := fused.Materialize(newN)
	require.NoError(t, err)
	assert.Equal(t, "TAAACGCC", string(seq))
}

func TestConcatenateBlocksRejectsMismatchedRowWidth(t *testing.T) {
	b1, n1 := NewSingletonBlock([]byte("AAAA"), Plus)
	b2, _ := NewSingletonBlock([]byte("CCCC"), Plus)
	_, _, err := ConcatenateBlocks([]*Block{b1, b2}, [][]Node{{n1}})
	assert.Error(t, err)
}

func TestReconsensusLeavesShallowBlockUnchanged(t *testing.T) {
	b, n1 := NewSingletonBlock([]byte("AAAA"), Plus)
	n2 := newNode(b.ID, Plus)
	b.AddNode(n2)
	b.Mutate[n2][0] = 'T'

	out, nodeMap, err := b.Reconsensus()
	require.NoError(t, err)
	assert.Same(t, b, out)
	assert.Nil(t, nodeMap)
	_ = n1
}

func TestReconsensusRevotesConsensusAndIsIdempotent(t *testing.T) {
	b, n1 := NewSingletonBlock([]byte("AAAA"), Plus)
	n2 := newNode(b.ID, Plus)
	n3 := newNode(b.ID, Plus)
	b.AddNode(n2)
	b.AddNode(n3)
	// two of three nodes carry T at position 0: new plurality consensus is T
	b.Mutate[n2][0] = 'T'
	b.Mutate[n3][0] = 'T'

	out, _, err := b.Reconsensus()
	require.NoError(t, err)
	assert.NotSame(t, b, out)
	assert.Equal(t, byte('T'), out.Sequence[0])

	again, nodeMap, err := out.Reconsensus()
	require.NoError(t, err)
	assert.Same(t, out, again)
	assert.Nil(t, nodeMap)
	_ = n1
}

func TestModalByteBreaksTiesTowardPreferred(t *testing.T) {
	counts := map[byte]int{'A': 1, 'T': 1}
	assert.Equal(t, byte('A'), modalByte(counts, 'A'))
	assert.Equal(t, byte('T'), modalByte(counts, 'T'))
}

func TestSpliceRequiresExistingNode(t *testing.T) {
	b, _ := NewSingletonBlock([]byte("AAAA"), Plus)
	stray := newNode(b.ID, Plus)
	err := b.Splice(stray, SNPMap{}, InsertMap{}, DeleteMap{}, 0)
	assert.Error(t, err)
}

func TestRealignPreservesBlockAndNodeIdentity(t *testing.T) {
	b, n1 := NewSingletonBlock([]byte("AAAA"), Plus)
	n2 := newNode(b.ID, Plus)
	n3 := newNode(b.ID, Plus)
	b.AddNode(n2)
	b.AddNode(n3)
	b.Mutate[n2][0] = 'T'

	aligned := map[Node][]byte{
		n1: []byte("AAAA"),
		n2: []byte("TAAA"),
		n3: []byte("AAAA"),
	}

	out, nodeMap, err := b.Realign(aligned)
	require.NoError(t, err)
	assert.Equal(t, b.ID, out.ID)
	for _, n := range []Node{n1, n2, n3} {
		assert.Equal(t, n, nodeMap[n])
		assert.True(t, out.HasNode(n))
	}
	seq, err := out.Materialize(n2)
	require.NoError(t, err)
	assert.Equal(t, "TAAA", string(seq))
}

func TestRealignRejectsMismatchedNodeSet(t *testing.T) {
	b, n1 := NewSingletonBlock([]byte("AAAA"), Plus)
	n2 := newNode(b.ID, Plus)
	n3 := newNode(b.ID, Plus)
	b.AddNode(n2)
	b.AddNode(n3)

	stray := newNode(b.ID, Plus)
	aligned := map[Node][]byte{
		n1:    []byte("AAAA"),
		n2:    []byte("AAAA"),
		stray: []byte("AAAA"),
	}
	_, _, err := b.Realign(aligned)
	assert.Error(t, err)
}
