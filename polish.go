package pangraph

import (
	"context"
	"fmt"
	"strconv"
	"sync"

	"github.com/sirupsen/logrus"
)

// RealignFunc invokes an external multiple-sequence-aligner on a batch
// of named sequences and returns one aligned row per input name, all
// the same length (4.9, 6.3). internal/extern.Realign has this exact
// shape; it is passed in rather than called directly so that this
// package never has to import internal/extern (which itself imports
// pangraph).
type RealignFunc func(ctx context.Context, sequences map[string][]byte) (map[string][]byte, error)

// PolishConfig carries the knobs the polish driver's worker pool needs.
type PolishConfig struct {
	Threads int
}

// polishOutcome is the pure, graph-independent product of computePolish:
// the block's realigned replacement. Applying it is the only step that
// touches g.
type polishOutcome struct {
	original BlockID
	polished *Block
	err      error
}

// PolishBlocks realigns every block accept selects through an external
// MSA tool (4.9). Like MergeAll, computing each block's replacement is
// read-only with respect to the graph and runs in a worker pool (5);
// applying the results happens on the calling goroutine afterward.
// Because Block.Realign preserves block and node identity, applying a
// polish result never requires rewriting any path: it is a plain block
// swap under the single writer lock.
func (g *Graph) PolishBlocks(ctx context.Context, accept func(*Block) bool, realign RealignFunc, cfg PolishConfig) error {
	var targets []*Block
	for _, b := range g.Blocks() {
		if accept(b) {
			targets = append(targets, b)
		}
	}
	if len(targets) == 0 {
		return nil
	}

	threads := workerCount(cfg.Threads)
	Log.WithFields(logrus.Fields{"blocks": len(targets), "threads": threads}).Info("polish: starting batch")

	results := make([]polishOutcome, len(targets))
	indexed := make(chan int, len(targets))
	var wg sync.WaitGroup
	wg.Add(threads)
	for w := 0; w < threads; w++ {
		go func() {
			defer wg.Done()
			for i := range indexed {
				b := targets[i]
				polished, err := computePolish(ctx, b, realign)
				results[i] = polishOutcome{original: b.ID, polished: polished, err: err}
			}
		}()
	}
	for i := range targets {
		indexed <- i
	}
	close(indexed)
	wg.Wait()

	g.mu.Lock()
	defer g.mu.Unlock()
	var firstErr error
	applied := 0
	for _, o := range results {
		if o.err != nil {
			Log.WithFields(logrus.Fields{"block": o.original}).Warn("polish: worker failed")
			if firstErr == nil {
				firstErr = fmt.Errorf("polish block %s: %w", o.original, o.err)
			}
			continue
		}
		g.blocks[o.polished.ID] = o.polished
		applied++
	}
	Log.WithFields(logrus.Fields{"polished": applied}).Debug("polish: batch applied")
	return firstErr
}

// computePolish materializes every node of b as an aligned-external-tool
// input row, sends the batch through realign, and rebuilds b from the
// result via Block.Realign. Errors propagate directly, matching
// computeMerge's style: the caller decides how to report them.
func computePolish(ctx context.Context, b *Block, realign RealignFunc) (*Block, error) {
	nodes := b.Nodes()
	rows := make(map[string][]byte, len(nodes))
	byKey := make(map[string]Node, len(nodes))
	for i, n := range nodes {
		seq, err := b.Materialize(n)
		if err != nil {
			return nil, err
		}
		key := strconv.Itoa(i)
		rows[key] = seq
		byKey[key] = n
	}

	aligned, err := realign(ctx, rows)
	if err != nil {
		return nil, err
	}
	if len(aligned) != len(nodes) {
		return nil, &InvariantViolationError{Invariant: "B1", Detail: fmt.Sprintf("polish realignment for block %s returned %d rows, want %d", b.ID, len(aligned), len(nodes))}
	}

	byNode := make(map[Node][]byte, len(nodes))
	for key, row := range aligned {
		n, ok := byKey[key]
		if !ok {
			return nil, &InvariantViolationError{Invariant: "B1", Detail: fmt.Sprintf("polish realignment for block %s returned unknown row key %q", b.ID, key)}
		}
		byNode[n] = row
	}

	polished, _, err := b.Realign(byNode)
	if err != nil {
		return nil, err
	}
	return polished, nil
}
