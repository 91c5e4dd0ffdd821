package chain

import (
	"context"
	"math/big"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	gethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/geanlabs/attester/attestation"
	"github.com/geanlabs/attester/types"
	"github.com/stretchr/testify/require"
)

var (
	stateConnector = common.HexToAddress("0x1000000000000000000000000000000000000001")
	bitVoting      = common.HexToAddress("0x1000000000000000000000000000000000000002")
	voter          = common.HexToAddress("0x00000000000000000000000000000000000000b1")
)

func requestLog(t *testing.T, block uint64, index uint, ts uint64, request []byte) gethtypes.Log {
	t.Helper()
	data, err := contracts.Events["AttestationRequest"].Inputs.NonIndexed().Pack(common.Address{}, new(big.Int).SetUint64(ts), request)
	require.NoError(t, err)
	return gethtypes.Log{
		Address:     stateConnector,
		Topics:      []common.Hash{attestationRequestTopic},
		Data:        data,
		BlockNumber: block,
		Index:       index,
	}
}

func bitVoteLogFor(t *testing.T, block uint64, sender common.Address, ts uint64, vote []byte) gethtypes.Log {
	t.Helper()
	data, err := contracts.Events["BitVote"].Inputs.NonIndexed().Pack(new(big.Int).SetUint64(ts), vote)
	require.NoError(t, err)
	return gethtypes.Log{
		Address:     bitVoting,
		Topics:      []common.Hash{bitVoteTopic, common.BytesToHash(sender.Bytes())},
		Data:        data,
		BlockNumber: block,
	}
}

func finalisedLog(t *testing.T, block uint64, round uint64, root common.Hash) gethtypes.Log {
	t.Helper()
	data, err := contracts.Events["RoundFinalised"].Inputs.NonIndexed().Pack([32]byte(root))
	require.NoError(t, err)
	return gethtypes.Log{
		Address:     stateConnector,
		Topics:      []common.Hash{roundFinalisedTopic, common.BigToHash(new(big.Int).SetUint64(round))},
		Data:        data,
		BlockNumber: block,
	}
}

func TestDecodeEvents(t *testing.T) {
	req, err := DecodeRequest(requestLog(t, 12, 3, 1700, []byte{1, 2, 3}))
	require.NoError(t, err)
	require.Equal(t, attestation.RequestEvent{Timestamp: 1700, BlockNumber: 12, LogIndex: 3, Request: []byte{1, 2, 3}}, req)

	bv, err := DecodeBitVote(bitVoteLogFor(t, 13, voter, 1800, []byte{0x05, 0xf0}))
	require.NoError(t, err)
	require.Equal(t, voter, bv.Sender)
	require.Equal(t, uint64(1800), bv.Timestamp)
	require.Equal(t, []byte{0x05, 0xf0}, bv.Data)

	fin, err := DecodeRoundFinalised(finalisedLog(t, 14, 77, common.Hash{0xab}))
	require.NoError(t, err)
	require.Equal(t, types.RoundID(77), fin.RoundID)
	require.Equal(t, common.Hash{0xab}, fin.MerkleRoot)
}

func TestDecodeEvents_Malformed(t *testing.T) {
	_, err := DecodeRequest(gethtypes.Log{Topics: []common.Hash{attestationRequestTopic}, Data: []byte{1}})
	require.ErrorIs(t, err, ErrBadLog)

	_, err = DecodeBitVote(gethtypes.Log{Topics: []common.Hash{bitVoteTopic}})
	require.ErrorIs(t, err, ErrBadLog)
}

type fakeSource struct {
	head   uint64
	times  map[uint64]uint64
	logs   []gethtypes.Log
	errAt  uint64
	ranges [][2]uint64
}

func (f *fakeSource) BlockNumber(context.Context) (uint64, error) { return f.head, nil }

func (f *fakeSource) HeaderByNumber(_ context.Context, n *big.Int) (*gethtypes.Header, error) {
	return &gethtypes.Header{Number: n, Time: f.times[n.Uint64()]}, nil
}

func (f *fakeSource) FilterLogs(_ context.Context, q ethereum.FilterQuery) ([]gethtypes.Log, error) {
	from, to := q.FromBlock.Uint64(), q.ToBlock.Uint64()
	f.ranges = append(f.ranges, [2]uint64{from, to})
	if f.errAt != 0 && from <= f.errAt && f.errAt <= to {
		return nil, ethereum.NotFound
	}
	var out []gethtypes.Log
	for _, l := range f.logs {
		if l.BlockNumber >= from && l.BlockNumber <= to {
			out = append(out, l)
		}
	}
	return out, nil
}

func TestCollector_Poll(t *testing.T) {
	src := &fakeSource{
		head:  25,
		times: map[uint64]uint64{9: 900, 19: 1900, 25: 2500},
		logs: []gethtypes.Log{
			requestLog(t, 5, 0, 500, []byte{0xaa}),
			bitVoteLogFor(t, 12, voter, 1200, []byte{0x01, 0x80}),
			finalisedLog(t, 20, 3, common.Hash{1}),
			{BlockNumber: 21, Topics: []common.Hash{bitVoteTopic}, Removed: true},
		},
	}

	var (
		order      []string
		timestamps []uint64
	)
	c := NewCollector(CollectorConfig{
		Source:        src,
		StartBlock:    0,
		MaxBlockRange: 10,
		Handlers: EventHandlers{
			OnRequest:        func(attestation.RequestEvent) { order = append(order, "request") },
			OnBitVote:        func(attestation.BitVoteEvent) { order = append(order, "bitvote") },
			OnRoundFinalised: func(attestation.RoundFinalisedEvent) { order = append(order, "finalised") },
			OnTimestamp:      func(ts uint64) { timestamps = append(timestamps, ts) },
		},
	})

	require.NoError(t, c.Poll(context.Background()))
	require.Equal(t, []string{"request", "bitvote", "finalised"}, order)
	require.Equal(t, []uint64{900, 1900, 2500}, timestamps)
	require.Equal(t, [][2]uint64{{0, 9}, {10, 19}, {20, 25}}, src.ranges)
	require.Equal(t, uint64(26), c.NextBlock())

	require.NoError(t, c.Poll(context.Background()))
	require.Len(t, src.ranges, 3)
}

func TestCollector_PollErrorKeepsPosition(t *testing.T) {
	src := &fakeSource{head: 15, times: map[uint64]uint64{}, errAt: 12}
	c := NewCollector(CollectorConfig{Source: src, StartBlock: 1, MaxBlockRange: 10})

	require.Error(t, c.Poll(context.Background()))
	require.Equal(t, uint64(11), c.NextBlock())
}

func TestBlockBefore(t *testing.T) {
	times := map[uint64]uint64{}
	for i := uint64(0); i <= 100; i++ {
		times[i] = 1000 + 2*i
	}
	src := &fakeSource{head: 100, times: times}

	got, err := BlockBefore(context.Background(), src, time.Unix(1051, 0))
	require.NoError(t, err)
	require.Equal(t, uint64(25), got)

	got, err = BlockBefore(context.Background(), src, time.Unix(500, 0))
	require.NoError(t, err)
	require.Zero(t, got)

	got, err = BlockBefore(context.Background(), src, time.Unix(5000, 0))
	require.NoError(t, err)
	require.Equal(t, uint64(100), got)
}

type fakeBackend struct {
	mu            sync.Mutex
	sent          []*gethtypes.Transaction
	receiptMisses int
	status        uint64
	mapping       map[common.Address]common.Address
}

func (f *fakeBackend) ChainID(context.Context) (*big.Int, error) { return big.NewInt(1337), nil }

func (f *fakeBackend) PendingNonceAt(context.Context, common.Address) (uint64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return uint64(len(f.sent)), nil
}

func (f *fakeBackend) SuggestGasPrice(context.Context) (*big.Int, error) { return big.NewInt(25), nil }

func (f *fakeBackend) EstimateGas(context.Context, ethereum.CallMsg) (uint64, error) {
	return 90000, nil
}

func (f *fakeBackend) SendTransaction(_ context.Context, tx *gethtypes.Transaction) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, tx)
	return nil
}

func (f *fakeBackend) TransactionReceipt(context.Context, common.Hash) (*gethtypes.Receipt, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.receiptMisses > 0 {
		f.receiptMisses--
		return nil, ethereum.NotFound
	}
	return &gethtypes.Receipt{Status: f.status, BlockNumber: big.NewInt(42)}, nil
}

func (f *fakeBackend) CallContract(_ context.Context, msg ethereum.CallMsg, _ *big.Int) ([]byte, error) {
	method := contracts.Methods["attestorAddressMapping"]
	args, err := method.Inputs.Unpack(msg.Data[4:])
	if err != nil {
		return nil, err
	}
	return method.Outputs.Pack(f.mapping[args[0].(common.Address)])
}

func newTestClient(t *testing.T, backend *fakeBackend) *Client {
	t.Helper()
	key, err := crypto.GenerateKey()
	require.NoError(t, err)
	c, err := NewClient(context.Background(), ClientConfig{
		Backend:        backend,
		Key:            key,
		StateConnector: stateConnector,
		BitVoting:      bitVoting,
		ReceiptTimeout: time.Second,
		ReceiptPoll:    time.Millisecond,
	})
	require.NoError(t, err)
	return c
}

func TestClient_SubmitAttestation(t *testing.T) {
	backend := &fakeBackend{status: gethtypes.ReceiptStatusSuccessful, receiptMisses: 2}
	c := newTestClient(t, backend)

	r, err := c.SubmitAttestation(context.Background(), AttestationSubmission{
		BufferNumber:     12,
		CommitMaskedRoot: common.Hash{1},
		RevealRoot:       common.Hash{2},
		RevealRandom:     common.Hash{3},
	})
	require.NoError(t, err)
	require.Equal(t, uint64(42), r.BlockNumber)

	require.Len(t, backend.sent, 1)
	tx := backend.sent[0]
	require.Equal(t, stateConnector, *tx.To())
	require.Equal(t, r.TxHash, tx.Hash())

	sender, err := gethtypes.Sender(gethtypes.LatestSignerForChainID(big.NewInt(1337)), tx)
	require.NoError(t, err)
	require.Equal(t, c.Address(), sender)

	method := contracts.Methods["submitAttestation"]
	require.Equal(t, method.ID, tx.Data()[:4])
	args, err := method.Inputs.Unpack(tx.Data()[4:])
	require.NoError(t, err)
	require.Equal(t, uint64(12), args[0].(*big.Int).Uint64())
	require.Equal(t, [32]byte{1}, args[1].([32]byte))
	require.Equal(t, [32]byte{2}, args[2].([32]byte))
	require.Equal(t, [32]byte{3}, args[3].([32]byte))
}

func TestClient_SubmitBitVoteReverted(t *testing.T) {
	backend := &fakeBackend{status: gethtypes.ReceiptStatusFailed}
	c := newTestClient(t, backend)

	_, err := c.SubmitBitVote(context.Background(), BitVoteSubmission{BufferNumber: 5, Vote: []byte{4, 0xf0}})
	require.ErrorIs(t, err, ErrTxFailed)
	require.Equal(t, bitVoting, *backend.sent[0].To())
}

func TestClient_ReceiptTimeout(t *testing.T) {
	backend := &fakeBackend{receiptMisses: 1 << 30}
	c := newTestClient(t, backend)
	c.receiptTimeout = 20 * time.Millisecond

	_, err := c.SubmitBitVote(context.Background(), BitVoteSubmission{BufferNumber: 5, Vote: []byte{4}})
	require.ErrorIs(t, err, ErrReceiptTimeout)
}

func TestClient_AttestorsForAssignors(t *testing.T) {
	a1, a2 := common.HexToAddress("0xa1"), common.HexToAddress("0xa2")
	backend := &fakeBackend{mapping: map[common.Address]common.Address{a1: voter}}
	c := newTestClient(t, backend)

	got, err := c.AttestorsForAssignors(context.Background(), []common.Address{a1, a2})
	require.NoError(t, err)
	require.Equal(t, []common.Address{voter}, got)
}
