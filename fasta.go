package pangraph

import (
	"bufio"
	"bytes"
	"compress/gzip"
	"fmt"
	"io"
	"strings"
)

// FastaRecord is one parsed FASTA entry.
type FastaRecord struct {
	Name     string
	Sequence []byte
	Circular bool
}

// ReadFasta parses a multi-record FASTA stream, transparently
// decompressing gzip input. Record names must be unique; a duplicate is
// an InputValidationError, not a warning, since the graph indexes
// paths by name.
func ReadFasta(r io.Reader) ([]FastaRecord, error) {
	br := bufio.NewReader(r)
	magic, err := br.Peek(2)
	if err == nil && len(magic) == 2 && magic[0] == 0x1f && magic[1] == 0x8b {
		gz, err := gzip.NewReader(br)
		if err != nil {
			return nil, &InputValidationError{Reason: "malformed gzip FASTA input", Cause: err}
		}
		defer gz.Close()
		br = bufio.NewReader(gz)
	}

	var records []FastaRecord
	seen := make(map[string]bool)
	var name string
	var circular bool
	var seq bytes.Buffer

	flush := func() error {
		if name == "" {
			return nil
		}
		if seen[name] {
			return &InputValidationError{Reason: fmt.Sprintf("duplicate FASTA record name %q", name)}
		}
		seen[name] = true
		records = append(records, FastaRecord{
			Name:     name,
			Sequence: bytes.ToUpper(append([]byte(nil), seq.Bytes()...)),
			Circular: circular,
		})
		seq.Reset()
		return nil
	}

	scanner := bufio.NewScanner(br)
	scanner.Buffer(make([]byte, 0, 64*1024), 1<<30)
	for scanner.Scan() {
		line := scanner.Text()
		if len(line) == 0 {
			continue
		}
		if line[0] == '>' {
			if err := flush(); err != nil {
				return nil, err
			}
			header := strings.TrimSpace(line[1:])
			fields := strings.Fields(header)
			if len(fields) == 0 {
				return nil, &InputValidationError{Reason: "FASTA record with empty header"}
			}
			name = fields[0]
			circular = false
			for _, f := range fields[1:] {
				if strings.EqualFold(f, "circular=true") {
					circular = true
				}
			}
			continue
		}
		seq.WriteString(strings.TrimSpace(line))
	}
	if err := scanner.Err(); err != nil {
		return nil, &InputValidationError{Reason: "reading FASTA input", Cause: err}
	}
	if err := flush(); err != nil {
		return nil, err
	}
	return records, nil
}

// WriteConsensusFasta writes one record per block, keyed by hex uuid,
// wrapped at 80 columns (6.3).
func WriteConsensusFasta(w io.Writer, blocks []*Block) error {
	bw := bufio.NewWriter(w)
	for _, b := range blocks {
		if _, err := fmt.Fprintf(bw, ">%s\n", b.ID.String()); err != nil {
			return err
		}
		for i := 0; i < len(b.Sequence); i += 80 {
			end := i + 80
			if end > len(b.Sequence) {
				end = len(b.Sequence)
			}
			if _, err := bw.Write(b.Sequence[i:end]); err != nil {
				return err
			}
			if err := bw.WriteByte('\n'); err != nil {
				return err
			}
		}
	}
	return bw.Flush()
}
