// Package merkle builds the keccak Merkle commitment over a round's
// confirmed attestation hashes and the masked commit hash submitted on
// chain.
//
// Leaves keep their given order. The leaf list is padded with zero hashes
// to the next power of two and pairs are hashed left to right, so every
// submitter that sees the same ordered attestation set derives the same
// root.
package merkle

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

var ZeroHash = common.Hash{}

// HashNodes hashes an ordered pair: keccak256(a ‖ b).
func HashNodes(a, b common.Hash) common.Hash {
	return crypto.Keccak256Hash(a[:], b[:])
}

// Tree is a binary Merkle tree stored level by level, leaves first.
type Tree struct {
	levels [][]common.Hash
	count  int
}

// New builds a tree over the leaves in the given order.
func New(leaves []common.Hash) *Tree {
	t := &Tree{count: len(leaves)}
	if len(leaves) == 0 {
		return t
	}

	width := nextPowerOfTwo(len(leaves))
	level := make([]common.Hash, width)
	copy(level, leaves)
	t.levels = append(t.levels, level)

	for len(level) > 1 {
		next := make([]common.Hash, len(level)/2)
		for i := range next {
			next[i] = HashNodes(level[i*2], level[i*2+1])
		}
		t.levels = append(t.levels, next)
		level = next
	}
	return t
}

// Root returns the tree root. An empty tree has the zero root; a single
// leaf is its own root.
func (t *Tree) Root() common.Hash {
	if len(t.levels) == 0 {
		return ZeroHash
	}
	return t.levels[len(t.levels)-1][0]
}

// Len returns the number of leaves the tree was built from.
func (t *Tree) Len() int {
	return t.count
}

// Proof returns the sibling path for leaf i, bottom up.
func (t *Tree) Proof(i int) ([]common.Hash, bool) {
	if i < 0 || i >= t.count {
		return nil, false
	}
	proof := make([]common.Hash, 0, len(t.levels)-1)
	for _, level := range t.levels[:len(t.levels)-1] {
		proof = append(proof, level[i^1])
		i /= 2
	}
	return proof, true
}

// VerifyProof checks that leaf sits at index i under root.
func VerifyProof(leaf common.Hash, i int, proof []common.Hash, root common.Hash) bool {
	h := leaf
	for _, sibling := range proof {
		if i%2 == 0 {
			h = HashNodes(h, sibling)
		} else {
			h = HashNodes(sibling, h)
		}
		i /= 2
	}
	return h == root
}

// Root is a convenience for New(leaves).Root().
func Root(leaves []common.Hash) common.Hash {
	return New(leaves).Root()
}

func nextPowerOfTwo(x int) int {
	if x <= 1 {
		return 1
	}
	n := x - 1
	n |= n >> 1
	n |= n >> 2
	n |= n >> 4
	n |= n >> 8
	n |= n >> 16
	n |= n >> 32
	return n + 1
}
