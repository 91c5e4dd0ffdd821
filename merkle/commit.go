package merkle

import (
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

var commitArgs = abi.Arguments{
	{Type: mustType("bytes32")},
	{Type: mustType("bytes32")},
	{Type: mustType("address")},
}

// CommitHash masks a Merkle root for the commit phase:
// keccak256(abi.encode(bytes32 root, bytes32 random, address submitter)).
func CommitHash(root, random common.Hash, submitter common.Address) common.Hash {
	packed, err := commitArgs.Pack([32]byte(root), [32]byte(random), submitter)
	if err != nil {
		// Static argument types; packing cannot fail.
		panic(err)
	}
	return crypto.Keccak256Hash(packed)
}

func mustType(t string) abi.Type {
	typ, err := abi.NewType(t, "", nil)
	if err != nil {
		panic(err)
	}
	return typ
}
