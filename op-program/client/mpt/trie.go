package mpt

import (
	"bytes"
	"fmt"
	"slices"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/rlp"
	"github.com/ethereum/go-ethereum/trie"
)

// ReadTrie takes a Merkle Patricia Trie (MPT) root of a "DerivableList", and a pre-image oracle getter,
// and traverses the implied MPT to collect all raw leaf nodes in order, which are then returned.
// The list keys are the RLP encoded indices, as in the transactions and receipts tries of a block.
// Malformed or incomplete tries cause a panic: the caller trusts the oracle to serve the full trie.
func ReadTrie(root common.Hash, getPreimage func(key common.Hash) []byte) []hexutil.Bytes {
	if root == types.EmptyRootHash {
		return nil
	}
	r := &trieReader{getPreimage: getPreimage, values: make(map[string][]byte)}
	r.walk(r.resolveHash(root), nil)

	out := make([]hexutil.Bytes, 0, len(r.values))
	for i := uint64(0); i < uint64(len(r.values)); i++ {
		key := rlp.AppendUint64(nil, i)
		v, ok := r.values[string(key)]
		if !ok {
			panic(fmt.Errorf("trie %s is missing list index %d of %d values", root, i, len(r.values)))
		}
		out = append(out, v)
	}
	return out
}

type trieReader struct {
	getPreimage func(key common.Hash) []byte
	values      map[string][]byte
}

type nodeElem struct {
	kind    rlp.Kind
	content []byte
	raw     []byte
}

func (r *trieReader) resolveHash(h common.Hash) []byte {
	node := r.getPreimage(h)
	if crypto.Keccak256Hash(node) != h {
		panic(fmt.Errorf("trie node preimage does not match hash %s", h))
	}
	return node
}

// resolve follows a child reference, which is either a 32 byte hash, an embedded node, or empty.
func (r *trieReader) resolve(ref nodeElem, path []byte) {
	switch {
	case ref.kind == rlp.List:
		r.walk(ref.raw, path)
	case len(ref.content) == 0:
		return
	case len(ref.content) == common.HashLength:
		r.walk(r.resolveHash(common.BytesToHash(ref.content)), path)
	default:
		panic(fmt.Errorf("invalid child reference of %d bytes at path %x", len(ref.content), path))
	}
}

func (r *trieReader) walk(node []byte, path []byte) {
	elems, err := splitNode(node)
	if err != nil {
		panic(fmt.Errorf("invalid trie node at path %x: %w", path, err))
	}
	switch len(elems) {
	case 2:
		key, leaf := compactToNibbles(elems[0].content)
		path = append(slices.Clip(path), key...)
		if leaf {
			r.values[nibblesToKey(path)] = elems[1].content
			return
		}
		r.resolve(elems[1], path)
	case 17:
		for i := 0; i < 16; i++ {
			r.resolve(elems[i], append(slices.Clip(path), byte(i)))
		}
		if len(elems[16].content) > 0 {
			r.values[nibblesToKey(path)] = elems[16].content
		}
	default:
		panic(fmt.Errorf("unexpected trie node with %d elements at path %x", len(elems), path))
	}
}

func splitNode(node []byte) ([]nodeElem, error) {
	content, rest, err := rlp.SplitList(node)
	if err != nil {
		return nil, err
	}
	if len(rest) > 0 {
		return nil, fmt.Errorf("%d trailing bytes after node", len(rest))
	}
	var elems []nodeElem
	for len(content) > 0 {
		kind, val, next, err := rlp.Split(content)
		if err != nil {
			return nil, err
		}
		elems = append(elems, nodeElem{kind: kind, content: val, raw: content[:len(content)-len(next)]})
		content = next
	}
	return elems, nil
}

// compactToNibbles decodes the hex-prefix encoding of a short node key.
func compactToNibbles(compact []byte) (nibbles []byte, leaf bool) {
	if len(compact) == 0 {
		panic("empty compact key")
	}
	flag := compact[0] >> 4
	leaf = flag&2 != 0
	if flag&1 != 0 {
		nibbles = append(nibbles, compact[0]&0x0f)
	}
	for _, b := range compact[1:] {
		nibbles = append(nibbles, b>>4, b&0x0f)
	}
	return nibbles, leaf
}

func nibblesToKey(nibbles []byte) string {
	if len(nibbles)%2 != 0 {
		panic(fmt.Errorf("odd key length %d", len(nibbles)))
	}
	key := make([]byte, len(nibbles)/2)
	for i := range key {
		key[i] = nibbles[2*i]<<4 | nibbles[2*i+1]
	}
	return string(key)
}

type rawList []hexutil.Bytes

func (r rawList) Len() int {
	return len(r)
}

func (r rawList) EncodeIndex(i int, w *bytes.Buffer) {
	w.Write(r[i])
}

// WriteTrie takes a list of values, and merkleizes them as a "DerivableList":
// a Merkle Patricia Trie (MPT) with values keyed by their RLP encoded index.
// This merkleization matches the transactions and receipts commitments of a block header.
// The returned list of nodes are the preimages of every hashed node of the trie.
func WriteTrie(values []hexutil.Bytes) (common.Hash, []hexutil.Bytes) {
	var nodes []hexutil.Bytes
	st := trie.NewStackTrie(func(path []byte, hash common.Hash, blob []byte) {
		nodes = append(nodes, common.CopyBytes(blob))
	})
	root := types.DeriveSha(rawList(values), st)
	return root, nodes
}
