// Package bitvote implements bit-vote bitmasks and the subset-intersection
// consensus used to agree on which attestations of a round are confirmed.
package bitvote

import (
	"bytes"
	"fmt"
	"math/bits"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/geanlabs/attester/types"
)

// Bitmask is a bit-vote over attestation indices. Bit i lives in byte i/8
// with weight 0x80>>(i%8), so the hex form reads left to right.
type Bitmask []byte

// FromIndices builds a bitmask of ceil(n/8) bytes with the given indices set.
// Indices outside [0, n) are ignored.
func FromIndices(indices []int, n int) Bitmask {
	m := make(Bitmask, (n+7)/8)
	for _, i := range indices {
		if i < 0 || i >= n {
			continue
		}
		m.Set(i)
	}
	return m
}

// ParseHex decodes a 0x-prefixed hex bitmask. The empty string and "0x"
// decode to an empty bitmask.
func ParseHex(s string) (Bitmask, error) {
	if s == "" || s == "0x" {
		return Bitmask{}, nil
	}
	b, err := hexutil.Decode(s)
	if err != nil {
		return nil, fmt.Errorf("parse bitmask %q: %w", s, err)
	}
	return Bitmask(b), nil
}

// Set sets bit i. The bitmask must be long enough.
func (m Bitmask) Set(i int) {
	m[i/8] |= 0x80 >> (i % 8)
}

// Has reports whether bit i is set.
func (m Bitmask) Has(i int) bool {
	if i < 0 || i/8 >= len(m) {
		return false
	}
	return m[i/8]&(0x80>>(i%8)) != 0
}

// Ones returns the number of set bits.
func (m Bitmask) Ones() int {
	n := 0
	for _, b := range m {
		n += bits.OnesCount8(b)
	}
	return n
}

// IsZero reports whether no bit is set.
func (m Bitmask) IsZero() bool {
	for _, b := range m {
		if b != 0 {
			return false
		}
	}
	return true
}

// Len returns the number of addressable bits.
func (m Bitmask) Len() int {
	return len(m) * 8
}

// Indices returns the set bit positions in ascending order.
func (m Bitmask) Indices() []int {
	out := make([]int, 0, m.Ones())
	for i := 0; i < m.Len(); i++ {
		if m.Has(i) {
			out = append(out, i)
		}
	}
	return out
}

// Hex returns the 0x-prefixed lower-case hex encoding.
func (m Bitmask) Hex() string {
	return hexutil.Encode(m)
}

func (m Bitmask) String() string {
	return m.Hex()
}

// Compare orders bitmasks by their hex encoding.
func (m Bitmask) Compare(other Bitmask) int {
	return bytes.Compare(m, other)
}

// And returns the bitwise AND of a and b. The shorter operand is padded
// with zero bytes on the right, so the result has the longer length.
func And(a, b Bitmask) Bitmask {
	if len(a) < len(b) {
		a, b = b, a
	}
	out := make(Bitmask, len(a))
	for i := range b {
		out[i] = a[i] & b[i]
	}
	return out
}

// Encode prefixes the bitmask with the round check byte, producing the
// payload submitted on chain.
func Encode(round types.RoundID, m Bitmask) []byte {
	out := make([]byte, 0, len(m)+1)
	out = append(out, round.CheckByte())
	return append(out, m...)
}

// Decode splits a bit-vote payload into its round check byte and bitmask.
func Decode(data []byte) (byte, Bitmask, error) {
	if len(data) == 0 {
		return 0, nil, ErrEmptyVote
	}
	m := make(Bitmask, len(data)-1)
	copy(m, data[1:])
	return data[0], m, nil
}
