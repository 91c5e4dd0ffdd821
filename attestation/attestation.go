// Package attestation defines a single verification task, the chain
// events that carry attestation requests and bit votes, and the hashes
// derived from verifier responses.
package attestation

import (
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/geanlabs/attester/types"
)

// RequestEvent is a decoded AttestationRequest log.
type RequestEvent struct {
	Timestamp   uint64 // block timestamp, unix seconds
	BlockNumber uint64
	LogIndex    uint32
	Request     []byte
}

// BitVoteEvent is a decoded BitVote log.
type BitVoteEvent struct {
	Sender      common.Address
	Timestamp   uint64 // block timestamp, unix seconds
	BlockNumber uint64
	Data        []byte // round check byte followed by the bitmask
}

// RoundFinalisedEvent is a decoded RoundFinalised log.
type RoundFinalisedEvent struct {
	RoundID    types.RoundID
	MerkleRoot common.Hash
}

// Round is the owner of an attestation, notified when it reaches a
// terminal status.
type Round interface {
	OnAttestationProcessed(a *Attestation)
	CommitEndTime() time.Time
}

// Attestation is one request under verification in a round.
type Attestation struct {
	RoundID types.RoundID
	Event   RequestEvent
	Header  Header
	Round   Round

	Index        int
	Status       types.AttestationStatus
	Chosen       bool
	Response     []byte
	Hash         common.Hash
	Retry        int
	ProcessStart time.Time
	ProcessEnd   time.Time
	Err          error
}

// New creates an attestation for the request event. A request whose header
// cannot be parsed starts out failed.
func New(round types.RoundID, ev RequestEvent) *Attestation {
	a := &Attestation{
		RoundID: round,
		Event:   ev,
		Index:   -1,
		Status:  types.AttestationUndetermined,
	}
	h, err := ParseHeader(ev.Request)
	if err != nil {
		a.Status = types.AttestationFailed
		a.Err = err
		return a
	}
	a.Header = h
	return a
}

// Key is the request identity used for deduplication within a round.
func (a *Attestation) Key() string {
	return string(a.Event.Request)
}

func (a *Attestation) Request() []byte {
	return a.Event.Request
}

func (a *Attestation) Source() types.SourceID {
	return a.Header.Source
}

func (a *Attestation) Type() types.AttestationType {
	return a.Header.Type
}

// Valid reports whether verification succeeded.
func (a *Attestation) Valid() bool {
	return a.Status == types.AttestationValid
}
