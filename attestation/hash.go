package attestation

import (
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/geanlabs/attester/types"
)

var (
	responseArgs = abi.Arguments{
		{Type: mustType("uint16")},
		{Type: mustType("uint32")},
		{Type: mustType("uint64")},
		{Type: mustType("bytes")},
	}
	saltedResponseArgs = append(append(abi.Arguments{}, responseArgs...), abi.Argument{Type: mustType("string")})
)

// ResponseHash hashes a verifier response for the given round:
// keccak256(abi.encode(uint16 type, uint32 source, uint64 round, bytes response[, string salt])).
// An empty salt omits the trailing field.
func ResponseHash(h Header, round types.RoundID, response []byte, salt string) common.Hash {
	var (
		packed []byte
		err    error
	)
	if salt == "" {
		packed, err = responseArgs.Pack(uint16(h.Type), uint32(h.Source), uint64(round), response)
	} else {
		packed, err = saltedResponseArgs.Pack(uint16(h.Type), uint32(h.Source), uint64(round), response, salt)
	}
	if err != nil {
		// Static argument types; packing cannot fail.
		panic(err)
	}
	return crypto.Keccak256Hash(packed)
}

// MIC computes the message integrity code of a response. The round is
// left at zero because the requester does not know it in advance.
func MIC(h Header, response []byte) common.Hash {
	return ResponseHash(h, 0, response, types.MICSalt)
}

// CommitmentHash is the Merkle leaf of a valid attestation in a round.
func CommitmentHash(h Header, round types.RoundID, response []byte) common.Hash {
	return ResponseHash(h, round, response, "")
}

func mustType(t string) abi.Type {
	typ, err := abi.NewType(t, "", nil)
	if err != nil {
		panic(err)
	}
	return typ
}
