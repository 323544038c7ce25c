package pangraph

import (
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
)

// nodeTriple is the externally-visible identity of a node: which
// block, which occurrence of it, and which strand. It is the join key
// between a path's block list and a block's allele maps in the JSON
// graph format (6.1) -- node handles never leave the process.
//
// Number is assigned by walking every path in the graph in a fixed
// order (Graph.Paths is name-sorted) and counting occurrences of each
// block as they are encountered, rather than resetting per path: two
// different genomes that each carry a single copy of a shared block
// are still distinct nodes with distinct allele data, so a per-path
// count of 1 for both would collide onto the same triple. Numbering
// globally keeps (name, number, strand) a true 1:1 key for every node
// in the graph while leaving the common case -- a block private to
// one genome -- numbered exactly as a reader would expect.
type nodeTriple struct {
	Name   string
	Number int
	Strand Strand
}

type jsonBlockRef struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Number int    `json:"number"`
	Strand Strand `json:"strand"`
}

type jsonPath struct {
	Name     string         `json:"name"`
	Offset   int            `json:"offset"`
	Circular bool           `json:"circular"`
	Position []int          `json:"position,omitempty"`
	Blocks   []jsonBlockRef `json:"blocks"`
}

type jsonBlock struct {
	ID       string            `json:"id"`
	Sequence string            `json:"sequence"`
	Gaps     map[string]int    `json:"gaps"`
	Mutate   []json.RawMessage `json:"mutate"`
	Insert   []json.RawMessage `json:"insert"`
	Delete   []json.RawMessage `json:"delete"`
}

type jsonGraph struct {
	Paths  []jsonPath  `json:"paths"`
	Blocks []jsonBlock `json:"blocks"`
}

func (t nodeTriple) id() string {
	return fmt.Sprintf("%s#%d#%s", t.Name, t.Number, t.Strand.String())
}

// MarshalGraph renders the graph to the canonical JSON format (6.1).
func MarshalGraph(g *Graph) ([]byte, error) {
	paths := g.Paths()
	blocks := g.Blocks()

	refOf := make(map[Node]nodeTriple)
	out := jsonGraph{}
	occurrence := make(map[BlockID]int)

	for _, p := range paths {
		if err := p.Finalize(g); err != nil {
			return nil, err
		}
		jp := jsonPath{Name: p.Name, Offset: p.Offset, Circular: p.Circular}
		jp.Blocks = make([]jsonBlockRef, len(p.Nodes))
		jp.Position = make([]int, len(p.Nodes))
		for i, n := range p.Nodes {
			t, ok := refOf[n]
			if !ok {
				occurrence[n.Block]++
				t = nodeTriple{Name: n.Block.String(), Number: occurrence[n.Block], Strand: n.Strand}
				refOf[n] = t
			}
			jp.Blocks[i] = jsonBlockRef{ID: t.id(), Name: t.Name, Number: t.Number, Strand: t.Strand}
			if iv, ok := p.Position(i); ok {
				jp.Position[i] = iv.Start
			}
		}
		out.Paths = append(out.Paths, jp)
	}

	for _, b := range blocks {
		jb := jsonBlock{ID: b.ID.String(), Sequence: string(b.Sequence), Gaps: make(map[string]int, len(b.Gaps))}
		for pos, width := range b.Gaps {
			jb.Gaps[strconv.Itoa(pos)] = width
		}
		for _, n := range b.Nodes() {
			t, ok := refOf[n]
			if !ok {
				return nil, &InvariantViolationError{Invariant: "G1", Detail: fmt.Sprintf("block %s has a node not referenced by any path", b.ID)}
			}
			ref := []interface{}{t.Name, t.Number, t.Strand.String()}

			var snps [][2]interface{}
			for _, pos := range sortedInts(mapKeysToSet(b.Mutate[n])) {
				snps = append(snps, [2]interface{}{pos, string(b.Mutate[n][pos])})
			}
			mutRow, err := json.Marshal([]interface{}{refObj(ref), snps})
			if err != nil {
				return nil, err
			}
			jb.Mutate = append(jb.Mutate, mutRow)

			var dels [][2]interface{}
			for _, pos := range sortedInts(mapKeysToSet(b.Delete[n])) {
				dels = append(dels, [2]interface{}{pos, b.Delete[n][pos]})
			}
			delRow, err := json.Marshal([]interface{}{refObj(ref), dels})
			if err != nil {
				return nil, err
			}
			jb.Delete = append(jb.Delete, delRow)

			var inserts []interface{}
			keys := make([]InsertKey, 0, len(b.Insert[n]))
			for k := range b.Insert[n] {
				keys = append(keys, k)
			}
			sort.Slice(keys, func(i, j int) bool {
				if keys[i].Pos != keys[j].Pos {
					return keys[i].Pos < keys[j].Pos
				}
				return keys[i].Offset < keys[j].Offset
			})
			for _, k := range keys {
				inserts = append(inserts, []interface{}{[2]int{k.Pos, k.Offset}, string(b.Insert[n][k])})
			}
			insRow, err := json.Marshal([]interface{}{refObj(ref), inserts})
			if err != nil {
				return nil, err
			}
			jb.Insert = append(jb.Insert, insRow)
		}
		out.Blocks = append(out.Blocks, jb)
	}

	return json.Marshal(out)
}

func refObj(ref []interface{}) map[string]interface{} {
	return map[string]interface{}{"name": ref[0], "number": ref[1], "strand": ref[2]}
}

func mapKeysToSet[V any](m map[int]V) map[int]bool {
	out := make(map[int]bool, len(m))
	for k := range m {
		out[k] = true
	}
	return out
}

// UnmarshalGraph parses the canonical JSON format back into a graph
// (6.1). Node identity is reconstructed from the (name, number,
// strand) triple shared between a path's block list and a block's
// allele map entries.
func UnmarshalGraph(data []byte) (*Graph, error) {
	var raw jsonGraph
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, &InputValidationError{Reason: "malformed graph JSON", Cause: err}
	}

	registry := make(map[nodeTriple]Node)
	for _, jp := range raw.Paths {
		for _, jb := range jp.Blocks {
			t := nodeTriple{Name: jb.Name, Number: jb.Number, Strand: jb.Strand}
			if _, ok := registry[t]; ok {
				continue
			}
			id, err := parseBlockName(jb.Name)
			if err != nil {
				return nil, err
			}
			registry[t] = newNode(id, jb.Strand)
		}
	}

	blocks := make(map[BlockID]*Block, len(raw.Blocks))
	for _, jb := range raw.Blocks {
		id, err := parseBlockName(jb.ID)
		if err != nil {
			return nil, err
		}
		gaps := make(map[int]int, len(jb.Gaps))
		for k, v := range jb.Gaps {
			pos, err := strconv.Atoi(k)
			if err != nil {
				return nil, &InputValidationError{Reason: fmt.Sprintf("malformed gap key %q", k), Cause: err}
			}
			gaps[pos] = v
		}
		b := &Block{
			ID:       id,
			Sequence: []byte(jb.Sequence),
			Gaps:     gaps,
			Mutate:   make(map[Node]SNPMap),
			Insert:   make(map[Node]InsertMap),
			Delete:   make(map[Node]DeleteMap),
		}

		for _, raw := range jb.Mutate {
			node, sub, err := decodeSNPRow(raw, registry)
			if err != nil {
				return nil, err
			}
			b.Mutate[node] = sub
		}
		for _, raw := range jb.Insert {
			node, ins, err := decodeInsertRow(raw, registry)
			if err != nil {
				return nil, err
			}
			b.Insert[node] = ins
		}
		for _, raw := range jb.Delete {
			node, del, err := decodeDeleteRow(raw, registry)
			if err != nil {
				return nil, err
			}
			b.Delete[node] = del
		}
		blocks[id] = b
	}

	g := NewGraph()
	for _, b := range blocks {
		g.addBlock(b)
	}
	for _, jp := range raw.Paths {
		nodes := make([]Node, len(jp.Blocks))
		for i, jb := range jp.Blocks {
			t := nodeTriple{Name: jb.Name, Number: jb.Number, Strand: jb.Strand}
			nodes[i] = registry[t]
		}
		p := NewPath(jp.Name, nodes, jp.Offset, jp.Circular)
		if err := g.AddPath(p); err != nil {
			return nil, err
		}
	}
	return g, nil
}

func decodeRef(raw json.RawMessage, registry map[nodeTriple]Node) (Node, [2]json.RawMessage, error) {
	var pair [2]json.RawMessage
	if err := json.Unmarshal(raw, &pair); err != nil {
		return Node{}, pair, &InputValidationError{Reason: "malformed allele row", Cause: err}
	}
	var ref struct {
		Name   string `json:"name"`
		Number int    `json:"number"`
		Strand Strand `json:"strand"`
	}
	if err := json.Unmarshal(pair[0], &ref); err != nil {
		return Node{}, pair, &InputValidationError{Reason: "malformed allele node reference", Cause: err}
	}
	t := nodeTriple{Name: ref.Name, Number: ref.Number, Strand: ref.Strand}
	node, ok := registry[t]
	if !ok {
		return Node{}, pair, &InvariantViolationError{Invariant: "G1", Detail: "allele row references a node absent from every path"}
	}
	return node, pair, nil
}

func decodeSNPRow(raw json.RawMessage, registry map[nodeTriple]Node) (Node, SNPMap, error) {
	node, pair, err := decodeRef(raw, registry)
	if err != nil {
		return Node{}, nil, err
	}
	var entries [][2]interface{}
	if err := json.Unmarshal(pair[1], &entries); err != nil {
		return Node{}, nil, &InputValidationError{Reason: "malformed SNP list", Cause: err}
	}
	sub := make(SNPMap, len(entries))
	for _, e := range entries {
		pos, ok := e[0].(float64)
		base, ok2 := e[1].(string)
		if !ok || !ok2 || len(base) != 1 {
			return Node{}, nil, &InputValidationError{Reason: "malformed SNP entry"}
		}
		sub[int(pos)] = base[0]
	}
	return node, sub, nil
}

func decodeDeleteRow(raw json.RawMessage, registry map[nodeTriple]Node) (Node, DeleteMap, error) {
	node, pair, err := decodeRef(raw, registry)
	if err != nil {
		return Node{}, nil, err
	}
	var entries [][2]interface{}
	if err := json.Unmarshal(pair[1], &entries); err != nil {
		return Node{}, nil, &InputValidationError{Reason: "malformed deletion list", Cause: err}
	}
	del := make(DeleteMap, len(entries))
	for _, e := range entries {
		pos, ok := e[0].(float64)
		length, ok2 := e[1].(float64)
		if !ok || !ok2 {
			return Node{}, nil, &InputValidationError{Reason: "malformed deletion entry"}
		}
		del[int(pos)] = int(length)
	}
	return node, del, nil
}

func decodeInsertRow(raw json.RawMessage, registry map[nodeTriple]Node) (Node, InsertMap, error) {
	node, pair, err := decodeRef(raw, registry)
	if err != nil {
		return Node{}, nil, err
	}
	var generic []([2]interface{})
	if err := json.Unmarshal(pair[1], &generic); err != nil {
		return Node{}, nil, &InputValidationError{Reason: "malformed insertion list", Cause: err}
	}
	ins := make(InsertMap, len(generic))
	for _, e := range generic {
		keyPair, ok := e[0].([]interface{})
		seq, ok2 := e[1].(string)
		if !ok || !ok2 || len(keyPair) != 2 {
			return Node{}, nil, &InputValidationError{Reason: "malformed insertion entry"}
		}
		pos, ok3 := keyPair[0].(float64)
		offset, ok4 := keyPair[1].(float64)
		if !ok3 || !ok4 {
			return Node{}, nil, &InputValidationError{Reason: "malformed insertion key"}
		}
		ins[InsertKey{Pos: int(pos), Offset: int(offset)}] = []byte(seq)
	}
	return node, ins, nil
}
