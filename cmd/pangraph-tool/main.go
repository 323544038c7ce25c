// Command pangraph-tool is a minimal demonstration binary: it builds a
// graph from FASTA, optionally merges in a batch of external-aligner
// PAF alignments, and exports the result. It carries no guide-tree
// logic or subprocess orchestration policy of its own (6.4) -- that is
// left to whatever process drives repeated calls to this tool or to
// the library directly.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/balanur/pangraph"
	"github.com/balanur/pangraph/config"
	"github.com/balanur/pangraph/internal/extern"
)

var (
	fastaPath  = flag.String("fasta", "", "input FASTA path (required)")
	pafPath    = flag.String("paf", "", "PAF alignment file to merge in (optional)")
	outFormat  = flag.String("format", "json", "output format: json, gfa, or fasta")
	outPath    = flag.String("out", "-", "output path, or - for stdout")
	detrans    = flag.Bool("detransitive", false, "run detransitive fusion before export")
	polish     = flag.Bool("polish", false, "realign every block with depth >= 3 through the external MSA tool")
	configPath = flag.String("config", ".", "directory to search for pangraph.yaml")
)

func main() {
	flag.Parse()
	if *fastaPath == "" {
		fmt.Fprintln(os.Stderr, "pangraph-tool: -fasta is required")
		flag.Usage()
		os.Exit(2)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		pangraph.Log.Fatalf("loading config: %v", err)
	}

	f, err := os.Open(*fastaPath)
	if err != nil {
		pangraph.Log.Fatalf("opening fasta: %v", err)
	}
	records, err := pangraph.ReadFasta(f)
	f.Close()
	if err != nil {
		pangraph.Log.Fatalf("reading fasta: %v", err)
	}

	g, err := pangraph.BuildFromFasta(records)
	if err != nil {
		pangraph.Log.Fatalf("building graph: %v", err)
	}
	pangraph.Log.Infof("built graph: %d paths, %d blocks", len(g.Paths()), len(g.Blocks()))

	if *pafPath != "" {
		alignments, err := loadAlignments(*pafPath)
		if err != nil {
			pangraph.Log.Fatalf("loading alignments: %v", err)
		}
		mergeCfg := pangraph.MergeConfig{MinBlock: cfg.Merge.MinBlock, Threads: cfg.Merge.Threads, Energy: pangraph.DefaultEnergy}
		if err := g.MergeAll(alignments, mergeCfg); err != nil {
			pangraph.Log.Fatalf("merging: %v", err)
		}
		g.Prune()
		pangraph.Log.Infof("after merge: %d blocks", len(g.Blocks()))
	}

	if *detrans {
		if err := g.Detransitive(); err != nil {
			pangraph.Log.Fatalf("detransitive: %v", err)
		}
		pangraph.Log.Infof("after detransitive: %d blocks", len(g.Blocks()))
	}

	if *polish {
		realign := func(ctx context.Context, sequences map[string][]byte) (map[string][]byte, error) {
			return extern.Realign(ctx, extern.MSAConfig{Path: cfg.Extern.MSAPath}, sequences)
		}
		accept := func(b *pangraph.Block) bool { return b.Depth() >= 3 }
		polishCfg := pangraph.PolishConfig{Threads: cfg.Merge.Threads}
		if err := g.PolishBlocks(context.Background(), accept, realign, polishCfg); err != nil {
			pangraph.Log.Fatalf("polish: %v", err)
		}
		pangraph.Log.Infof("after polish: %d blocks", len(g.Blocks()))
	}

	out := os.Stdout
	if *outPath != "-" {
		w, err := os.Create(*outPath)
		if err != nil {
			pangraph.Log.Fatalf("opening output: %v", err)
		}
		defer w.Close()
		out = w
	}

	switch *outFormat {
	case "json":
		data, err := pangraph.MarshalGraph(g)
		if err != nil {
			pangraph.Log.Fatalf("marshaling graph: %v", err)
		}
		out.Write(data)
	case "gfa":
		if err := pangraph.WriteGFA(out, g); err != nil {
			pangraph.Log.Fatalf("writing gfa: %v", err)
		}
	case "fasta":
		if err := pangraph.WriteConsensusFasta(out, g.Blocks()); err != nil {
			pangraph.Log.Fatalf("writing fasta: %v", err)
		}
	default:
		pangraph.Log.Fatalf("unknown format %q", *outFormat)
	}
}

func loadAlignments(path string) ([]pangraph.Alignment, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return extern.ReadPAF(context.Background(), f)
}
