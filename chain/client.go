package chain

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	gethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/geanlabs/attester/config"
)

// Backend is the JSON-RPC surface the client uses. *ethclient.Client
// satisfies it.
type Backend interface {
	ChainID(ctx context.Context) (*big.Int, error)
	PendingNonceAt(ctx context.Context, account common.Address) (uint64, error)
	SuggestGasPrice(ctx context.Context) (*big.Int, error)
	EstimateGas(ctx context.Context, msg ethereum.CallMsg) (uint64, error)
	SendTransaction(ctx context.Context, tx *gethtypes.Transaction) error
	TransactionReceipt(ctx context.Context, txHash common.Hash) (*gethtypes.Receipt, error)
	CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
}

type ClientConfig struct {
	Backend        Backend
	Key            *ecdsa.PrivateKey
	StateConnector common.Address
	BitVoting      common.Address
	ReceiptTimeout time.Duration
	ReceiptPoll    time.Duration
	Logger         *slog.Logger
}

// Client is a Connection that signs and sends legacy transactions.
type Client struct {
	backend Backend
	key     *ecdsa.PrivateKey
	address common.Address
	signer  gethtypes.Signer

	stateConnector common.Address
	bitVoting      common.Address
	receiptTimeout time.Duration
	receiptPoll    time.Duration
	log            *slog.Logger

	// serializes nonce allocation
	sendMu sync.Mutex
}

// Dial connects to the RPC endpoint of cfg and builds a Client. The
// returned ethclient can be shared with a Collector.
func Dial(ctx context.Context, cfg config.ChainConfig, logger *slog.Logger) (*Client, *ethclient.Client, error) {
	rpc, err := ethclient.DialContext(ctx, cfg.RPCURL)
	if err != nil {
		return nil, nil, fmt.Errorf("dial %s: %w", cfg.RPCURL, err)
	}
	key, err := crypto.HexToECDSA(strings.TrimPrefix(cfg.PrivateKey, "0x"))
	if err != nil {
		rpc.Close()
		return nil, nil, fmt.Errorf("parse private key: %w", err)
	}
	c, err := NewClient(ctx, ClientConfig{
		Backend:        rpc,
		Key:            key,
		StateConnector: common.HexToAddress(cfg.StateConnector),
		BitVoting:      common.HexToAddress(cfg.BitVoting),
		ReceiptTimeout: time.Duration(cfg.ReceiptTimeoutSec) * time.Second,
		Logger:         logger,
	})
	if err != nil {
		rpc.Close()
		return nil, nil, err
	}
	return c, rpc, nil
}

func NewClient(ctx context.Context, cfg ClientConfig) (*Client, error) {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	chainID, err := cfg.Backend.ChainID(ctx)
	if err != nil {
		return nil, fmt.Errorf("chain id: %w", err)
	}
	c := &Client{
		backend:        cfg.Backend,
		key:            cfg.Key,
		address:        crypto.PubkeyToAddress(cfg.Key.PublicKey),
		signer:         gethtypes.LatestSignerForChainID(chainID),
		stateConnector: cfg.StateConnector,
		bitVoting:      cfg.BitVoting,
		receiptTimeout: cfg.ReceiptTimeout,
		receiptPoll:    cfg.ReceiptPoll,
		log:            logger.With("component", "chain"),
	}
	if c.receiptTimeout <= 0 {
		c.receiptTimeout = time.Minute
	}
	if c.receiptPoll <= 0 {
		c.receiptPoll = time.Second
	}
	return c, nil
}

func (c *Client) Address() common.Address {
	return c.address
}

func (c *Client) SubmitAttestation(ctx context.Context, s AttestationSubmission) (*Receipt, error) {
	data, err := contracts.Pack("submitAttestation",
		new(big.Int).SetUint64(s.BufferNumber),
		[32]byte(s.CommitMaskedRoot),
		[32]byte(s.RevealRoot),
		[32]byte(s.RevealRandom),
	)
	if err != nil {
		return nil, fmt.Errorf("pack submitAttestation: %w", err)
	}
	c.log.Info("submitting attestation",
		"buffer", s.BufferNumber,
		"commit_masked_root", s.CommitMaskedRoot,
		"commit_root", s.CommitRoot,
		"commit_random", s.CommitRandom,
		"reveal_root", s.RevealRoot,
		"reveal_random", s.RevealRandom,
	)
	return c.send(ctx, c.stateConnector, data)
}

func (c *Client) SubmitBitVote(ctx context.Context, s BitVoteSubmission) (*Receipt, error) {
	data, err := contracts.Pack("submitVote", new(big.Int).SetUint64(s.BufferNumber), s.Vote)
	if err != nil {
		return nil, fmt.Errorf("pack submitVote: %w", err)
	}
	c.log.Info("submitting bit vote",
		"buffer", s.BufferNumber,
		"vote", common.Bytes2Hex(s.Vote),
		"valid", s.ValidCount,
		"attestations", s.AttestationCount,
		"duplicates", s.DuplicateCount,
	)
	return c.send(ctx, c.bitVoting, data)
}

// AttestorsForAssignors maps each assignor to the attestor it assigned.
// Assignors that have not assigned anyone are skipped.
func (c *Client) AttestorsForAssignors(ctx context.Context, assignors []common.Address) ([]common.Address, error) {
	out := make([]common.Address, 0, len(assignors))
	for _, a := range assignors {
		data, err := contracts.Pack("attestorAddressMapping", a)
		if err != nil {
			return nil, fmt.Errorf("pack attestorAddressMapping: %w", err)
		}
		raw, err := c.backend.CallContract(ctx, ethereum.CallMsg{To: &c.stateConnector, Data: data}, nil)
		if err != nil {
			return nil, fmt.Errorf("attestorAddressMapping(%s): %w", a, err)
		}
		res, err := contracts.Unpack("attestorAddressMapping", raw)
		if err != nil || len(res) != 1 {
			return nil, fmt.Errorf("unpack attestorAddressMapping(%s): %v", a, err)
		}
		attestor, ok := res[0].(common.Address)
		if !ok {
			return nil, fmt.Errorf("attestorAddressMapping(%s): unexpected %T", a, res[0])
		}
		if attestor == (common.Address{}) {
			c.log.Warn("assignor has no attestor", "assignor", a)
			continue
		}
		out = append(out, attestor)
	}
	return out, nil
}

func (c *Client) send(ctx context.Context, to common.Address, data []byte) (*Receipt, error) {
	tx, err := c.signAndSend(ctx, to, data)
	if err != nil {
		return nil, err
	}
	return c.waitReceipt(ctx, tx.Hash())
}

func (c *Client) signAndSend(ctx context.Context, to common.Address, data []byte) (*gethtypes.Transaction, error) {
	c.sendMu.Lock()
	defer c.sendMu.Unlock()

	nonce, err := c.backend.PendingNonceAt(ctx, c.address)
	if err != nil {
		return nil, fmt.Errorf("nonce: %w", err)
	}
	gasPrice, err := c.backend.SuggestGasPrice(ctx)
	if err != nil {
		return nil, fmt.Errorf("gas price: %w", err)
	}
	gas, err := c.backend.EstimateGas(ctx, ethereum.CallMsg{From: c.address, To: &to, Data: data})
	if err != nil {
		return nil, fmt.Errorf("estimate gas: %w", err)
	}

	tx := gethtypes.NewTx(&gethtypes.LegacyTx{
		Nonce:    nonce,
		To:       &to,
		Value:    new(big.Int),
		Gas:      gas,
		GasPrice: gasPrice,
		Data:     data,
	})
	signed, err := gethtypes.SignTx(tx, c.signer, c.key)
	if err != nil {
		return nil, fmt.Errorf("sign: %w", err)
	}
	if err := c.backend.SendTransaction(ctx, signed); err != nil {
		return nil, fmt.Errorf("send: %w", err)
	}
	c.log.Debug("transaction sent", "hash", signed.Hash(), "nonce", nonce)
	return signed, nil
}

func (c *Client) waitReceipt(ctx context.Context, hash common.Hash) (*Receipt, error) {
	ctx, cancel := context.WithTimeout(ctx, c.receiptTimeout)
	defer cancel()

	ticker := time.NewTicker(c.receiptPoll)
	defer ticker.Stop()

	for {
		r, err := c.backend.TransactionReceipt(ctx, hash)
		switch {
		case err == nil:
			if r.Status != gethtypes.ReceiptStatusSuccessful {
				return nil, fmt.Errorf("%w: %s", ErrTxFailed, hash)
			}
			return &Receipt{TxHash: hash, BlockNumber: r.BlockNumber.Uint64()}, nil
		case !errors.Is(err, ethereum.NotFound):
			c.log.Debug("receipt query failed", "hash", hash, "err", err)
		}

		select {
		case <-ctx.Done():
			return nil, fmt.Errorf("%w: %s", ErrReceiptTimeout, hash)
		case <-ticker.C:
		}
	}
}
