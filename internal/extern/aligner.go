// Package extern wraps the external pairwise aligner and MSA tool
// contracts (6.4): both are invoked as subprocesses and their output
// parsed into the core's types, following the source's pattern of
// shelling out with os/exec and reading the result back off disk or
// stdout (step_assembly.go's velvet invocation).
package extern

import (
	"bufio"
	"bytes"
	"context"
	"io"
	"os/exec"
	"strconv"
	"strings"

	"github.com/balanur/pangraph"
)

// AlignerConfig names the aligner binary and any extra arguments the
// caller wants appended (e.g. "-x", "asm20").
type AlignerConfig struct {
	Path string
	Args []string
}

// Align runs the configured aligner against queryFasta/refFasta and
// parses its PAF-format stdout into Alignment records (6.4). Any
// trailing "cg:Z:<cigar>" tag becomes the Alignment's Cigar field;
// alignments the aligner reports without one are skipped, since
// partition (4.4) requires a CIGAR to work with.
func Align(ctx context.Context, cfg AlignerConfig, queryFasta, refFasta string) ([]pangraph.Alignment, error) {
	args := append(append([]string{}, cfg.Args...), queryFasta, refFasta)
	cmd := exec.CommandContext(ctx, cfg.Path, args...)
	out, err := cmd.Output()
	if err != nil {
		return nil, &pangraph.ExternalToolError{Tool: cfg.Path, Cause: err}
	}
	return parsePAF(out)
}

// ReadPAF parses PAF records directly from r, for callers that already
// have alignment output on disk rather than a live aligner process to
// invoke.
func ReadPAF(ctx context.Context, r io.Reader) ([]pangraph.Alignment, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, &pangraph.ExternalToolError{Tool: "paf", Cause: err}
	}
	return parsePAF(data)
}

func parsePAF(out []byte) ([]pangraph.Alignment, error) {
	var alignments []pangraph.Alignment
	scanner := bufio.NewScanner(bytes.NewReader(out))
	scanner.Buffer(make([]byte, 0, 64*1024), 1<<24)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		aln, ok, err := parsePAFLine(line)
		if err != nil {
			return nil, &pangraph.ExternalToolError{Tool: "aligner", Cause: err}
		}
		if ok {
			alignments = append(alignments, aln)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, &pangraph.ExternalToolError{Tool: "aligner", Cause: err}
	}
	return alignments, nil
}

// parsePAFLine decodes one PAF record. The mandatory columns are
// fixed-position; everything from column 13 on is an optional
// "tag:type:value" field, of which only cg:Z (cigar) and dv:f
// (divergence) matter here.
func parsePAFLine(line string) (pangraph.Alignment, bool, error) {
	fields := strings.Split(line, "\t")
	if len(fields) < 12 {
		return pangraph.Alignment{}, false, &pangraph.InputValidationError{Reason: "PAF line has fewer than 12 columns"}
	}

	qLen, err1 := strconv.Atoi(fields[1])
	qStart, err2 := strconv.Atoi(fields[2])
	qStop, err3 := strconv.Atoi(fields[3])
	rLen, err4 := strconv.Atoi(fields[6])
	rStart, err5 := strconv.Atoi(fields[7])
	rStop, err6 := strconv.Atoi(fields[8])
	matches, err7 := strconv.Atoi(fields[9])
	length, err8 := strconv.Atoi(fields[10])
	for _, err := range []error{err1, err2, err3, err4, err5, err6, err7, err8} {
		if err != nil {
			return pangraph.Alignment{}, false, err
		}
	}

	strand := pangraph.Plus
	if fields[4] == "-" {
		strand = pangraph.Minus
	}

	aln := pangraph.Alignment{
		Qry:     pangraph.Hit{Name: fields[0], Len: qLen, Start: qStart, Stop: qStop},
		Ref:     pangraph.Hit{Name: fields[5], Len: rLen, Start: rStart, Stop: rStop},
		Matches: matches,
		Length:  length,
		Strand:  strand,
	}
	if length > 0 {
		aln.Quality = float64(matches) / float64(length)
	}

	haveCigar := false
	for _, tag := range fields[12:] {
		switch {
		case strings.HasPrefix(tag, "cg:Z:"):
			aln.Cigar = strings.TrimPrefix(tag, "cg:Z:")
			haveCigar = true
		case strings.HasPrefix(tag, "dv:f:"):
			if v, err := strconv.ParseFloat(strings.TrimPrefix(tag, "dv:f:"), 64); err == nil {
				aln.Divergence = &v
			}
		}
	}
	if !haveCigar {
		return pangraph.Alignment{}, false, nil
	}
	return aln, true, nil
}
