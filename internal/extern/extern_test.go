package extern

import (
	"context"
	"strings"
	"testing"

	"github.com/balanur/pangraph"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParsePAFLineDecodesMandatoryColumnsAndCigarTag(t *testing.T) {
	line := "qry1\t100\t0\t100\t+\tref1\t100\t0\t100\t95\t100\t60\tcg:Z:95M5D\tdv:f:0.02"
	aln, ok, err := parsePAFLine(line)
	require.NoError(t, err)
	require.True(t, ok)

	assert.Equal(t, "qry1", aln.Qry.Name)
	assert.Equal(t, 100, aln.Qry.Len)
	assert.Equal(t, "ref1", aln.Ref.Name)
	assert.Equal(t, pangraph.Plus, aln.Strand)
	assert.Equal(t, "95M5D", aln.Cigar)
	require.NotNil(t, aln.Divergence)
	assert.InDelta(t, 0.02, *aln.Divergence, 1e-9)
	assert.InDelta(t, 0.95, aln.Quality, 1e-9)
}

func TestParsePAFLineDetectsMinusStrand(t *testing.T) {
	line := "q\t10\t0\t10\t-\tr\t10\t0\t10\t10\t10\t60\tcg:Z:10M"
	aln, ok, err := parsePAFLine(line)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, pangraph.Minus, aln.Strand)
}

func TestParsePAFLineSkipsRecordsWithoutCigarTag(t *testing.T) {
	line := "q\t10\t0\t10\t+\tr\t10\t0\t10\t10\t10\t60"
	_, ok, err := parsePAFLine(line)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestParsePAFLineRejectsShortRecord(t *testing.T) {
	_, _, err := parsePAFLine("only\tfour\tcolumns\there")
	assert.Error(t, err)
}

func TestParsePAFLineRejectsNonNumericColumn(t *testing.T) {
	line := "q\tNaN\t0\t10\t+\tr\t10\t0\t10\t10\t10\t60\tcg:Z:10M"
	_, _, err := parsePAFLine(line)
	assert.Error(t, err)
}

func TestParsePAFSkipsBlankLinesAndFiltersUncigaredRecords(t *testing.T) {
	data := "q1\t10\t0\t10\t+\tr1\t10\t0\t10\t10\t10\t60\tcg:Z:10M\n" +
		"\n" +
		"q2\t10\t0\t10\t+\tr2\t10\t0\t10\t10\t10\t60\n"
	alns, err := parsePAF([]byte(data))
	require.NoError(t, err)
	require.Len(t, alns, 1)
	assert.Equal(t, "q1", alns[0].Qry.Name)
}

func TestReadPAFParsesFromReader(t *testing.T) {
	data := "q1\t10\t0\t10\t+\tr1\t10\t0\t10\t10\t10\t60\tcg:Z:10M\n"
	alns, err := ReadPAF(context.Background(), strings.NewReader(data))
	require.NoError(t, err)
	require.Len(t, alns, 1)
	assert.Equal(t, "r1", alns[0].Ref.Name)
}

func TestAlignReturnsExternalToolErrorForMissingBinary(t *testing.T) {
	cfg := AlignerConfig{Path: "definitely-not-a-real-aligner-binary"}
	_, err := Align(context.Background(), cfg, "query.fasta", "ref.fasta")
	require.Error(t, err)
	var toolErr *pangraph.ExternalToolError
	assert.ErrorAs(t, err, &toolErr)
}

func TestParseAlignedFastaGroupsMultilineSequences(t *testing.T) {
	data := ">a\nAC-GT\nAC\n>b\nACTGT\nAC\n"
	rows, err := parseAlignedFasta([]byte(data))
	require.NoError(t, err)
	assert.Equal(t, "AC-GTAC", string(rows["a"]))
	assert.Equal(t, "ACTGTAC", string(rows["b"]))
}

func TestParseAlignedFastaUppercasesSequence(t *testing.T) {
	rows, err := parseAlignedFasta([]byte(">a\nacgt\n"))
	require.NoError(t, err)
	assert.Equal(t, "ACGT", string(rows["a"]))
}

func TestRealignReturnsExternalToolErrorForMissingBinary(t *testing.T) {
	cfg := MSAConfig{Path: "definitely-not-a-real-msa-binary"}
	_, err := Realign(context.Background(), cfg, map[string][]byte{"a": []byte("ACGT")})
	require.Error(t, err)
	var toolErr *pangraph.ExternalToolError
	assert.ErrorAs(t, err, &toolErr)
}
