package pangraph

import (
	"bytes"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWriteGFAEmitsHeaderSegmentsAndPath(t *testing.T) {
	g := NewGraph()
	b1, n1 := NewSingletonBlock([]byte("AAAA"), Plus)
	b2, n2 := NewSingletonBlock([]byte("CCCC"), Plus)
	g.addBlock(b1)
	g.addBlock(b2)
	require.NoError(t, g.AddPath(NewPath("g1", []Node{n1, n2}, 0, false)))

	var buf bytes.Buffer
	require.NoError(t, WriteGFA(&buf, g))
	out := buf.String()

	assert.True(t, strings.HasPrefix(out, "H\tVN:Z:1.0\n"))
	assert.Contains(t, out, "S\t"+b1.ID.String()+"\tAAAA\tRC:i:1\n")
	assert.Contains(t, out, "S\t"+b2.ID.String()+"\tCCCC\tRC:i:1\n")
	assert.Contains(t, out, "L\t")
	assert.Contains(t, out, "P\tg1\t"+b1.ID.String()+"+,"+b2.ID.String()+"+\t0M,0M\n")
}

func TestWriteGFATagsCircularPaths(t *testing.T) {
	g := NewGraph()
	b, n := NewSingletonBlock([]byte("ACGT"), Plus)
	g.addBlock(b)
	require.NoError(t, g.AddPath(NewPath("g1", []Node{n}, 0, true)))

	var buf bytes.Buffer
	require.NoError(t, WriteGFA(&buf, g))
	assert.Contains(t, buf.String(), "TP:Z:circular")
}

func TestWriteGFADedupsLinksAcrossIsolates(t *testing.T) {
	g := NewGraph()
	bA, _ := NewSingletonBlock([]byte("AAAA"), Plus)
	bB, _ := NewSingletonBlock([]byte("CCCC"), Plus)
	g.addBlock(bA)
	g.addBlock(bB)

	nA1, nB1 := newNode(bA.ID, Plus), newNode(bB.ID, Plus)
	nA2, nB2 := newNode(bA.ID, Plus), newNode(bB.ID, Plus)
	bA.AddNode(nA1)
	bA.AddNode(nA2)
	bB.AddNode(nB1)
	bB.AddNode(nB2)
	for _, n := range bA.Nodes() {
		if n != nA1 && n != nA2 {
			bA.RemoveNode(n)
		}
	}
	for _, n := range bB.Nodes() {
		if n != nB1 && n != nB2 {
			bB.RemoveNode(n)
		}
	}
	require.NoError(t, g.AddPath(NewPath("iso1", []Node{nA1, nB1}, 0, false)))
	require.NoError(t, g.AddPath(NewPath("iso2", []Node{nA2, nB2}, 0, false)))

	var buf bytes.Buffer
	require.NoError(t, WriteGFA(&buf, g))
	linkCount := strings.Count(buf.String(), "L\t")
	assert.Equal(t, 1, linkCount)
}

func TestNormalizeLinkIsOrderIndependent(t *testing.T) {
	idA := newBlockID()
	idB := newBlockID()
	a := Node{Block: idA, Strand: Plus}
	b := Node{Block: idB, Strand: Plus}
	assert.Equal(t, normalizeLink(a, b), normalizeLink(b.Reversed(), a.Reversed()))
}
