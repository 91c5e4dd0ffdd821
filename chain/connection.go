// Package chain talks to the StateConnector and BitVoting contracts:
// submitting commits, reveals and bit votes, and collecting the events
// that drive the round engine.
package chain

import (
	"context"

	"github.com/ethereum/go-ethereum/common"
)

// AttestationSubmission commits round BufferNumber-1 and reveals round
// BufferNumber-2 in one transaction.
type AttestationSubmission struct {
	BufferNumber uint64

	CommitMaskedRoot common.Hash
	CommitRoot       common.Hash // logged only
	CommitRandom     common.Hash // logged only

	RevealRoot   common.Hash
	RevealRandom common.Hash
}

// BitVoteSubmission votes on round BufferNumber-1.
type BitVoteSubmission struct {
	BufferNumber uint64
	Vote         []byte // check byte followed by the bitmask

	AttestationCount int
	ValidCount       int
	DuplicateCount   int
}

// Receipt identifies a mined submission.
type Receipt struct {
	TxHash      common.Hash
	BlockNumber uint64
}

// Connection is the contract surface the round engine depends on. A
// submission that was not mined returns an error and no receipt.
type Connection interface {
	SubmitAttestation(ctx context.Context, s AttestationSubmission) (*Receipt, error)
	SubmitBitVote(ctx context.Context, s BitVoteSubmission) (*Receipt, error)
	AttestorsForAssignors(ctx context.Context, assignors []common.Address) ([]common.Address, error)
	Address() common.Address
}
