package pangraph

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPathMaterializeConcatenatesNodes(t *testing.T) {
	g := NewGraph()
	b1, n1 := NewSingletonBlock([]byte("AAAA"), Plus)
	b2, n2 := NewSingletonBlock([]byte("CCCC"), Plus)
	g.addBlock(b1)
	g.addBlock(b2)

	p := NewPath("genome1", []Node{n1, n2}, 0, false)
	seq, err := p.Materialize(g)
	require.NoError(t, err)
	assert.Equal(t, "AAAACCCC", string(seq))
}

func TestPathMaterializeReverseComplementsMinusNodes(t *testing.T) {
	g := NewGraph()
	b, n := NewSingletonBlock([]byte("AACG"), Minus)
	g.addBlock(b)

	p := NewPath("genome1", []Node{n}, 0, false)
	seq, err := p.Materialize(g)
	require.NoError(t, err)
	assert.Equal(t, "AACG", string(reverseComplementBytes(seq)))
}

func TestPathFinalizeAndPosition(t *testing.T) {
	g := NewGraph()
	b1, n1 := NewSingletonBlock([]byte("AAAA"), Plus)
	b2, n2 := NewSingletonBlock([]byte("CCC"), Plus)
	g.addBlock(b1)
	g.addBlock(b2)

	p := NewPath("genome1", []Node{n1, n2}, 0, false)
	require.NoError(t, p.Finalize(g))

	iv0, ok := p.Position(0)
	require.True(t, ok)
	assert.Equal(t, Interval{0, 4}, iv0)

	iv1, ok := p.Position(1)
	require.True(t, ok)
	assert.Equal(t, Interval{4, 7}, iv1)

	_, ok = p.Position(2)
	assert.False(t, ok)
}

func TestPathPositionInvalidatedByEdit(t *testing.T) {
	g := NewGraph()
	b1, n1 := NewSingletonBlock([]byte("AAAA"), Plus)
	g.addBlock(b1)
	p := NewPath("genome1", []Node{n1}, 0, false)
	require.NoError(t, p.Finalize(g))

	p.RemoveNodeAt(0)
	_, ok := p.Position(0)
	assert.False(t, ok)
}

func TestPathNodeNumbersCountsParalogs(t *testing.T) {
	id := newBlockID()
	n1 := newNode(id, Plus)
	n2 := newNode(id, Plus)
	p := NewPath("genome1", []Node{n1, n2}, 0, false)
	numbers := p.NodeNumbers()
	assert.Equal(t, 1, numbers[n1])
	assert.Equal(t, 2, numbers[n2])
}

func TestPathReplace(t *testing.T) {
	id := newBlockID()
	n1 := newNode(id, Plus)
	n2 := newNode(id, Plus)
	n3 := newNode(id, Plus)
	p := NewPath("genome1", []Node{n1, n2}, 0, false)

	ok := p.Replace(n1, []Node{n3})
	assert.True(t, ok)
	assert.Equal(t, []Node{n3, n2}, p.Nodes)

	ok = p.Replace(n1, []Node{n3})
	assert.False(t, ok)
}

func TestPathContains(t *testing.T) {
	id := newBlockID()
	n1 := newNode(id, Plus)
	n2 := newNode(id, Plus)
	p := NewPath("genome1", []Node{n1}, 0, false)
	assert.True(t, p.Contains(n1))
	assert.False(t, p.Contains(n2))
}

func TestPathJunctionsIncludesWraparoundWhenCircular(t *testing.T) {
	id := newBlockID()
	n1 := newNode(id, Plus)
	n2 := newNode(id, Plus)
	n3 := newNode(id, Plus)

	linear := NewPath("g", []Node{n1, n2, n3}, 0, false)
	assert.Equal(t, []Junction{{n1, n2}, {n2, n3}}, linear.Junctions())

	circular := NewPath("g", []Node{n1, n2, n3}, 0, true)
	assert.Equal(t, []Junction{{n1, n2}, {n2, n3}, {n3, n1}}, circular.Junctions())
}

func TestPathJunctionsEmptyForSingleton(t *testing.T) {
	id := newBlockID()
	n1 := newNode(id, Plus)
	p := NewPath("g", []Node{n1}, 0, true)
	assert.Nil(t, p.Junctions())
}
