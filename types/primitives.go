// Package types defines the primitive identifiers and state enumerations
// shared by the attestation client.
package types

import "fmt"

// Primitive types.
type RoundID uint64
type SourceID uint32
type AttestationType uint16

// CheckByte returns the round id modulo 256, the round check byte carried
// in bit votes.
func (r RoundID) CheckByte() byte {
	return byte(r % 256)
}

// Prev returns the preceding round id, and false for round 0.
func (r RoundID) Prev() (RoundID, bool) {
	if r == 0 {
		return 0, false
	}
	return r - 1, true
}

func (s SourceID) String() string {
	return fmt.Sprintf("source(%d)", uint32(s))
}

func (t AttestationType) String() string {
	return fmt.Sprintf("type(%d)", uint16(t))
}

// Protocol constants.
const (
	// RoundRetention is how many epochs a round stays resident behind the
	// current epoch before it is evicted.
	RoundRetention RoundID = 10

	// MICSalt is appended to the response encoding when computing the
	// message integrity code of a request.
	MICSalt = "Flare"
)
