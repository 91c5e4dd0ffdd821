package chain

import (
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
)

// Subset of the StateConnector and BitVoting contract interfaces the
// client calls or listens to.
const contractsABI = `[
  {"type":"function","name":"submitAttestation","stateMutability":"nonpayable","inputs":[
    {"name":"_bufferNumber","type":"uint256"},
    {"name":"_commitHash","type":"bytes32"},
    {"name":"_merkleRoot","type":"bytes32"},
    {"name":"_randomNumber","type":"bytes32"}],"outputs":[{"name":"_isInitialBufferSlot","type":"bool"}]},
  {"type":"function","name":"submitVote","stateMutability":"nonpayable","inputs":[
    {"name":"_bufferNumber","type":"uint256"},
    {"name":"_bitVote","type":"bytes"}],"outputs":[]},
  {"type":"function","name":"attestorAddressMapping","stateMutability":"view","inputs":[
    {"name":"_assignor","type":"address"}],"outputs":[{"name":"","type":"address"}]},
  {"type":"event","name":"AttestationRequest","anonymous":false,"inputs":[
    {"name":"sender","type":"address","indexed":false},
    {"name":"timestamp","type":"uint256","indexed":false},
    {"name":"data","type":"bytes","indexed":false}]},
  {"type":"event","name":"BitVote","anonymous":false,"inputs":[
    {"name":"sender","type":"address","indexed":true},
    {"name":"timestamp","type":"uint256","indexed":false},
    {"name":"data","type":"bytes","indexed":false}]},
  {"type":"event","name":"RoundFinalised","anonymous":false,"inputs":[
    {"name":"roundId","type":"uint256","indexed":true},
    {"name":"merkleRoot","type":"bytes32","indexed":false}]}
]`

var contracts = mustParseABI(contractsABI)

var (
	attestationRequestTopic = contracts.Events["AttestationRequest"].ID
	bitVoteTopic            = contracts.Events["BitVote"].ID
	roundFinalisedTopic     = contracts.Events["RoundFinalised"].ID
)

func mustParseABI(s string) abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(s))
	if err != nil {
		panic(err)
	}
	return parsed
}
