package pangraph

import (
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sync/atomic"
)

// Strand records the orientation a node traverses its block in.
type Strand int8

const (
	Plus  Strand = 1
	Minus Strand = -1
)

func (s Strand) String() string {
	if s == Plus {
		return "+"
	}
	return "-"
}

// Opposite flips the strand.
func (s Strand) Opposite() Strand {
	if s == Plus {
		return Minus
	}
	return Plus
}

func (s Strand) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.String())
}

func (s *Strand) UnmarshalJSON(data []byte) error {
	var str string
	if err := json.Unmarshal(data, &str); err != nil {
		return err
	}
	switch str {
	case "+":
		*s = Plus
	case "-":
		*s = Minus
	default:
		return &InputValidationError{Reason: fmt.Sprintf("unrecognized strand %q", str)}
	}
	return nil
}

// BlockID opaquely and stably identifies a block for the block's
// lifetime; it is assigned once at creation and never reused.
type BlockID [16]byte

func newBlockID() BlockID {
	var id BlockID
	if _, err := rand.Read(id[:]); err != nil {
		panic("pangraph: failed to generate block id: " + err.Error())
	}
	return id
}

func (id BlockID) String() string { return hex.EncodeToString(id[:]) }

func (id BlockID) MarshalJSON() ([]byte, error) {
	return json.Marshal(id.String())
}

func (id *BlockID) UnmarshalJSON(data []byte) error {
	var str string
	if err := json.Unmarshal(data, &str); err != nil {
		return err
	}
	raw, err := hex.DecodeString(str)
	if err != nil || len(raw) != len(id) {
		return &InputValidationError{Reason: fmt.Sprintf("malformed block id %q", str), Cause: err}
	}
	copy(id[:], raw)
	return nil
}

// nodeHandle is a process-local, monotonically increasing value that
// makes two structurally identical nodes distinguishable. It is never
// serialized: on disk a node is identified by (block name, occurrence
// number, strand) instead, per the JSON graph format.
type nodeHandle uint64

var nodeCounter uint64

func nextNodeHandle() nodeHandle {
	return nodeHandle(atomic.AddUint64(&nodeCounter, 1))
}

// Node is a directed occurrence of a block on a path: the block it
// occurs on, the strand it is traversed in, and an opaque handle giving
// it identity distinct from any other occurrence of the same block.
// Node is comparable and safe to use as a map key.
type Node struct {
	handle nodeHandle
	Block  BlockID
	Strand Strand
}

// newNode mints a node occurrence of block on the given strand.
func newNode(block BlockID, strand Strand) Node {
	return Node{handle: nextNodeHandle(), Block: block, Strand: strand}
}

// Reversed returns the same occurrence traversed in the opposite
// direction: same handle and block, flipped strand. Because Strand is
// part of the map key, the result is a different key from n and is not
// found in the allele maps of the block that holds n;
// Block.ReverseComplement mints fresh nodes rather than reusing it.
// normalizeLink uses it to build the reverse orientation of a link.
func (n Node) Reversed() Node {
	return Node{handle: n.handle, Block: n.Block, Strand: n.Strand.Opposite()}
}
