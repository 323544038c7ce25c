package extern

import (
	"bufio"
	"bytes"
	"context"
	"os"
	"os/exec"
	"strings"

	"github.com/balanur/pangraph"
)

// MSAConfig names the external multiple-sequence-aligner binary.
type MSAConfig struct {
	Path string
	Args []string
}

// Realign writes sequences to a temporary multi-FASTA, runs the
// configured MSA tool over it, and parses the aligned FASTA it prints
// to stdout back into a name -> aligned-row map suitable for
// Block.Realign (4.9).
func Realign(ctx context.Context, cfg MSAConfig, sequences map[string][]byte) (map[string][]byte, error) {
	tmp, err := os.CreateTemp("", "pangraph-msa-*.fasta")
	if err != nil {
		return nil, &pangraph.ExternalToolError{Tool: cfg.Path, Cause: err}
	}
	defer os.Remove(tmp.Name())
	defer tmp.Close()

	names := make([]string, 0, len(sequences))
	for name := range sequences {
		names = append(names, name)
	}
	for _, name := range names {
		if _, err := tmp.WriteString(">" + name + "\n" + string(sequences[name]) + "\n"); err != nil {
			return nil, &pangraph.ExternalToolError{Tool: cfg.Path, Cause: err}
		}
	}
	if err := tmp.Close(); err != nil {
		return nil, &pangraph.ExternalToolError{Tool: cfg.Path, Cause: err}
	}

	args := append(append([]string{}, cfg.Args...), tmp.Name())
	cmd := exec.CommandContext(ctx, cfg.Path, args...)
	out, err := cmd.Output()
	if err != nil {
		return nil, &pangraph.ExternalToolError{Tool: cfg.Path, Cause: err}
	}
	return parseAlignedFasta(out)
}

func parseAlignedFasta(out []byte) (map[string][]byte, error) {
	rows := make(map[string][]byte)
	scanner := bufio.NewScanner(bytes.NewReader(out))
	scanner.Buffer(make([]byte, 0, 64*1024), 1<<24)

	var name string
	var seq bytes.Buffer
	flush := func() {
		if name != "" {
			rows[name] = bytes.ToUpper(append([]byte(nil), seq.Bytes()...))
			seq.Reset()
		}
	}
	for scanner.Scan() {
		line := scanner.Text()
		if line == "" {
			continue
		}
		if line[0] == '>' {
			flush()
			name = strings.TrimSpace(line[1:])
			continue
		}
		seq.WriteString(strings.TrimSpace(line))
	}
	if err := scanner.Err(); err != nil {
		return nil, &pangraph.ExternalToolError{Tool: "msa", Cause: err}
	}
	flush()
	return rows, nil
}
