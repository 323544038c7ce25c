package pangraph

import (
	"bytes"
	"compress/gzip"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReadFastaParsesMultipleRecords(t *testing.T) {
	input := ">g1 circular=true\nACGT\nACGT\n>g2\nTTTT\n"
	records, err := ReadFasta(strings.NewReader(input))
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, "g1", records[0].Name)
	assert.Equal(t, "ACGTACGT", string(records[0].Sequence))
	assert.True(t, records[0].Circular)
	assert.Equal(t, "g2", records[1].Name)
	assert.False(t, records[1].Circular)
}

func TestReadFastaUppercasesSequence(t *testing.T) {
	records, err := ReadFasta(strings.NewReader(">g1\nacgt\n"))
	require.NoError(t, err)
	assert.Equal(t, "ACGT", string(records[0].Sequence))
}

func TestReadFastaRejectsDuplicateNames(t *testing.T) {
	_, err := ReadFasta(strings.NewReader(">g1\nACGT\n>g1\nTTTT\n"))
	assert.Error(t, err)
}

func TestReadFastaRejectsEmptyHeader(t *testing.T) {
	_, err := ReadFasta(strings.NewReader(">\nACGT\n"))
	assert.Error(t, err)
}

func TestReadFastaTransparentlyDecompressesGzip(t *testing.T) {
	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	_, err := gz.Write([]byte(">g1\nACGT\n"))
	require.NoError(t, err)
	require.NoError(t, gz.Close())

	records, err := ReadFasta(&buf)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "ACGT", string(records[0].Sequence))
}

func TestWriteConsensusFastaWrapsAt80Columns(t *testing.T) {
	seq := bytes.Repeat([]byte("A"), 85)
	b := &Block{ID: newBlockID(), Sequence: seq}

	var buf bytes.Buffer
	require.NoError(t, WriteConsensusFasta(&buf, []*Block{b}))

	lines := strings.Split(strings.TrimRight(buf.String(), "\n"), "\n")
	require.Len(t, lines, 3)
	assert.True(t, strings.HasPrefix(lines[0], ">"))
	assert.Len(t, lines[1], 80)
	assert.Len(t, lines[2], 5)
}
