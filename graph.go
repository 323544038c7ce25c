package pangraph

import (
	"fmt"
	"runtime"
	"sort"
	"sync"

	"github.com/sirupsen/logrus"
)

// Graph owns every block and path; it is the single-writer structure
// the concurrency model assumes (5). Its exported operations perform
// their own mutation under mu, but never call each other while holding
// it, so goroutines only ever contend briefly.
type Graph struct {
	mu     sync.RWMutex
	blocks map[BlockID]*Block
	paths  map[string]*Path
}

// NewGraph returns an empty graph.
func NewGraph() *Graph {
	return &Graph{
		blocks: make(map[BlockID]*Block),
		paths:  make(map[string]*Path),
	}
}

// BlockByID implements BlockSource.
func (g *Graph) BlockByID(id BlockID) (*Block, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	b, ok := g.blocks[id]
	return b, ok
}

// Blocks returns every block, ordered by id for determinism.
func (g *Graph) Blocks() []*Block {
	g.mu.RLock()
	defer g.mu.RUnlock()
	out := make([]*Block, 0, len(g.blocks))
	for _, b := range g.blocks {
		out = append(out, b)
	}
	sort.Slice(out, func(i, j int) bool { return lessBlockID(out[i].ID, out[j].ID) })
	return out
}

// Paths returns every path, ordered by name.
func (g *Graph) Paths() []*Path {
	g.mu.RLock()
	defer g.mu.RUnlock()
	out := make([]*Path, 0, len(g.paths))
	for _, p := range g.paths {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}

// PathByName looks up a path by genome name.
func (g *Graph) PathByName(name string) (*Path, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	p, ok := g.paths[name]
	return p, ok
}

func (g *Graph) addBlock(b *Block) {
	g.blocks[b.ID] = b
}

func (g *Graph) removeBlock(id BlockID) {
	delete(g.blocks, id)
}

// AddPath registers a new path. Duplicate names are a validation error.
func (g *Graph) AddPath(p *Path) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if _, exists := g.paths[p.Name]; exists {
		return &InputValidationError{Reason: fmt.Sprintf("duplicate path name %q", p.Name)}
	}
	g.paths[p.Name] = p
	return nil
}

// BuildFromFasta seeds the graph with one singleton block and one path
// per FASTA record (Lifecycle (a)). Record names must be unique.
func BuildFromFasta(records []FastaRecord) (*Graph, error) {
	g := NewGraph()
	seen := make(map[string]bool, len(records))
	for _, rec := range records {
		if seen[rec.Name] {
			return nil, &InputValidationError{Reason: fmt.Sprintf("duplicate FASTA record name %q", rec.Name)}
		}
		seen[rec.Name] = true

		block, node := NewSingletonBlock(rec.Sequence, Plus)
		g.addBlock(block)
		path := NewPath(rec.Name, []Node{node}, 0, rec.Circular)
		if err := path.Finalize(g); err != nil {
			return nil, err
		}
		g.paths[rec.Name] = path
	}
	return g, nil
}

// Prune drops every block no path references (4.8, G3).
func (g *Graph) Prune() {
	g.mu.Lock()
	defer g.mu.Unlock()
	referenced := make(map[BlockID]bool, len(g.blocks))
	for _, p := range g.paths {
		for _, n := range p.Nodes {
			referenced[n.Block] = true
		}
	}
	for id := range g.blocks {
		if !referenced[id] {
			delete(g.blocks, id)
		}
	}
}

// Purge drops every node whose materialized length is 0 from every
// path, and from its block's allele maps (4.8).
func (g *Graph) Purge() error {
	g.mu.Lock()
	defer g.mu.Unlock()
	for _, p := range g.paths {
		i := 0
		for i < len(p.Nodes) {
			n := p.Nodes[i]
			b, ok := g.blocks[n.Block]
			if !ok {
				return &InvariantViolationError{Invariant: "G1", Detail: "purge: dangling node in path " + p.Name}
			}
			seq, err := b.Materialize(n)
			if err != nil {
				return err
			}
			if len(seq) == 0 {
				b.RemoveNode(n)
				p.RemoveNodeAt(i)
				continue
			}
			i++
		}
	}
	g.pruneLocked()
	return nil
}

func (g *Graph) pruneLocked() {
	referenced := make(map[BlockID]bool, len(g.blocks))
	for _, p := range g.paths {
		for _, n := range p.Nodes {
			referenced[n.Block] = true
		}
	}
	for id := range g.blocks {
		if !referenced[id] {
			delete(g.blocks, id)
		}
	}
}

// KeepOnly drops every path not named in names, then prunes orphaned
// blocks (4.8).
func (g *Graph) KeepOnly(names []string) {
	keep := make(map[string]bool, len(names))
	for _, n := range names {
		keep[n] = true
	}
	g.mu.Lock()
	for name := range g.paths {
		if !keep[name] {
			delete(g.paths, name)
		}
	}
	g.mu.Unlock()
	g.Prune()
}

// workerCount picks a pool size the way the source's step_* files do:
// a fixed thread count, defaulting to the machine's CPU count.
func workerCount(cfg int) int {
	if cfg > 0 {
		return cfg
	}
	return runtime.NumCPU()
}

// MergeAll folds a batch of external-aligner alignments into the graph.
// Computing each alignment's partition/re-reference result is
// read-only with respect to the graph and safe to run in a worker pool
// (5); applying the result to the block/path tables happens on the
// calling goroutine afterward, one alignment at a time, since the
// graph is single-writer. An error from any worker aborts the whole
// batch; blocks already applied stay applied (matching the "controller
// aborts the operation" propagation policy in 7 -- callers that need
// all-or-nothing semantics should snapshot beforehand).
func (g *Graph) MergeAll(alignments []Alignment, cfg MergeConfig) error {
	threads := workerCount(cfg.Threads)
	Log.WithFields(logrus.Fields{"alignments": len(alignments), "threads": threads}).Info("merge: starting batch")
	type outcome struct {
		result *mergeResult
		err    error
	}
	jobs := make(chan Alignment, len(alignments))
	results := make([]outcome, len(alignments))
	var wg sync.WaitGroup
	wg.Add(threads)
	indexed := make(chan int, len(alignments))

	for w := 0; w < threads; w++ {
		go func() {
			defer wg.Done()
			for i := range indexed {
				r, err := computeMerge(g, alignments[i], cfg)
				results[i] = outcome{result: r, err: err}
			}
		}()
	}
	for i, aln := range alignments {
		jobs <- aln
		indexed <- i
	}
	close(jobs)
	close(indexed)
	wg.Wait()

	applied := 0
	for i, o := range results {
		if o.err != nil {
			Log.WithFields(logrus.Fields{"alignment": i}).Warn("merge: worker failed, aborting batch")
			return fmt.Errorf("merge alignment %d: %w", i, o.err)
		}
		if o.result == nil {
			continue
		}
		if err := g.applyMerge(o.result); err != nil {
			return err
		}
		applied++
	}
	Log.WithFields(logrus.Fields{"applied": applied, "skipped": len(alignments) - applied}).Debug("merge: batch applied")
	return nil
}

// Detransitive collapses maximal chains of blocks that every isolate
// using them always traverses together into single fused blocks (4.7).
func (g *Graph) Detransitive() error {
	for {
		g.mu.RLock()
		paths := make([]*Path, 0, len(g.paths))
		for _, p := range g.paths {
			paths = append(paths, p)
		}
		g.mu.RUnlock()

		idx := NewJunctionIndex(paths)
		transitive := idx.TransitiveJunctions()
		if len(transitive) == 0 {
			return nil
		}

		chain, err := firstChain(transitive)
		if err != nil {
			return err
		}
		if len(chain) < 2 {
			return nil
		}
		Log.WithFields(logrus.Fields{"transitive_junctions": len(transitive), "chain_length": len(chain)}).Info("detransitive: fusing chain")
		if err := g.fuseChain(chain); err != nil {
			return err
		}
	}
}

// firstChain threads the lexicographically-first still-unconsumed
// transitive junction into a maximal oriented chain. Detransitive calls
// this repeatedly, rebuilding the junction index each time, which is
// simple to reason about and cheap relative to the alignment work that
// produces new merge candidates between calls.
func firstChain(transitive []JunctionKey) ([]ChainEntry, error) {
	next := make(map[ChainEntry]ChainEntry, len(transitive))
	prev := make(map[ChainEntry]ChainEntry, len(transitive))
	for _, key := range transitive {
		if existing, ok := next[key.Left]; ok && existing != key.Right {
			return nil, &InvariantViolationError{Invariant: "chain", Detail: "block has two distinct transitive successors"}
		}
		next[key.Left] = key.Right
		if existing, ok := prev[key.Right]; ok && existing != key.Left {
			return nil, &InvariantViolationError{Invariant: "chain", Detail: "block has two distinct transitive predecessors"}
		}
		prev[key.Right] = key.Left
	}

	start := transitive[0].Left
	for {
		p, ok := prev[start]
		if !ok || p == transitive[0].Right {
			break
		}
		start = p
	}

	chain := []ChainEntry{start}
	visited := map[ChainEntry]bool{start: true}
	cur := start
	for {
		n, ok := next[cur]
		if !ok {
			break
		}
		if visited[n] {
			break // closed cycle: stop before repeating
		}
		chain = append(chain, n)
		visited[n] = true
		cur = n
	}
	return chain, nil
}

// fuseChain concatenates the blocks named by chain into one new block
// and rewrites every affected path to reference it (4.7 step 4).
func (g *Graph) fuseChain(chain []ChainEntry) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	blocks := make([]*Block, len(chain))
	for i, ce := range chain {
		b, ok := g.blocks[ce.Block]
		if !ok {
			return &InvariantViolationError{Invariant: "G1", Detail: "detransitive: chain references unknown block"}
		}
		blocks[i] = b
	}

	names := isoNamesForBlock(g.paths, blocks[0].ID)
	rows := make([][]Node, 0, len(names))
	pathRuns := make(map[string]int, len(names)) // name -> startIndex of the run in that path

	for _, name := range names {
		p, ok := g.paths[name]
		if !ok {
			return &InvariantViolationError{Invariant: "G1", Detail: "detransitive: isolate has no path"}
		}
		row, start, err := findChainRun(p, chain)
		if err != nil {
			return err
		}
		rows = append(rows, row)
		pathRuns[name] = start
	}

	fused, nodeMap, err := ConcatenateBlocks(blocks, rows)
	if err != nil {
		return err
	}

	Log.WithFields(logrus.Fields{"chain_length": len(chain), "isolates": len(names), "fused_block": fused.ID}).Debug("detransitive: fused chain")

	for _, name := range names {
		p := g.paths[name]
		start := pathRuns[name]
		newNode := nodeMap[p.Nodes[start]]
		p.Nodes = spliceChainRun(p.Nodes, start, len(chain), newNode)
		p.positions = nil
	}

	for _, b := range blocks {
		delete(g.blocks, b.ID)
	}
	g.addBlock(fused)
	return nil
}

// spliceChainRun replaces the length-node run starting at start (which
// may wrap past the end of a circular node list back to index 0) with a
// single node.
func spliceChainRun(nodes []Node, start, length int, replacement Node) []Node {
	n := len(nodes)
	if start+length <= n {
		out := make([]Node, 0, n-length+1)
		out = append(out, nodes[:start]...)
		out = append(out, replacement)
		out = append(out, nodes[start+length:]...)
		return out
	}
	wrapEnd := start + length - n
	out := make([]Node, 0, n-length+1)
	out = append(out, replacement)
	out = append(out, nodes[wrapEnd:start]...)
	return out
}

func isoNamesForBlock(paths map[string]*Path, id BlockID) []string {
	var names []string
	for name, p := range paths {
		for _, n := range p.Nodes {
			if n.Block == id {
				names = append(names, name)
				break
			}
		}
	}
	sort.Strings(names)
	return names
}

// findChainRun locates the contiguous run of nodes on p matching the
// chain's (block,strand) sequence and returns the nodes plus its start
// index. On a circular path the run may wrap past the end of p.Nodes
// back to index 0, since Path.Junctions includes that wraparound pair
// and a maximal transitive chain can legitimately cross it.
func findChainRun(p *Path, chain []ChainEntry) ([]Node, int, error) {
	n := len(p.Nodes)
	m := len(chain)
	if m > n {
		return nil, 0, &InvariantViolationError{Invariant: "chain", Detail: "path " + p.Name + " is shorter than the expected chain run"}
	}

	maxStart := n - m
	if p.Circular {
		maxStart = n - 1
	}
	for start := 0; start <= maxStart; start++ {
		row := make([]Node, m)
		match := true
		for k, ce := range chain {
			node := p.Nodes[(start+k)%n]
			if node.Block != ce.Block || node.Strand != ce.Strand {
				match = false
				break
			}
			row[k] = node
		}
		if match {
			return row, start, nil
		}
	}
	return nil, 0, &InvariantViolationError{Invariant: "chain", Detail: "path " + p.Name + " does not contain the expected chain run"}
}
