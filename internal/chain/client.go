package chain

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"sync"

	"github.com/aman-zulfiqar/pairswap/internal/models"
	"github.com/aman-zulfiqar/pairswap/internal/rpc"
	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
	gethrpc "github.com/ethereum/go-ethereum/rpc"
	"github.com/sirupsen/logrus"
)

// Backend is the subset of ethclient.Client the client needs.
type Backend interface {
	ChainID(ctx context.Context) (*big.Int, error)
	CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
	EstimateGas(ctx context.Context, msg ethereum.CallMsg) (uint64, error)
	SuggestGasPrice(ctx context.Context) (*big.Int, error)
	PendingNonceAt(ctx context.Context, account common.Address) (uint64, error)
	SendTransaction(ctx context.Context, tx *types.Transaction) error
	TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error)
	TransactionByHash(ctx context.Context, hash common.Hash) (*types.Transaction, bool, error)
	Close()
}

// ClientConfig holds configuration for the chain client
type ClientConfig struct {
	RPCURL           string
	ChainID          int64 // 0 asks the node
	GasBufferPercent uint64
	Retry            rpc.RetryConfig
	Logger           *logrus.Logger
}

// Client reads pair, factory and token state and submits signed writes.
type Client struct {
	backend      Backend
	chainID      *big.Int
	signer       Signer
	retrier      *rpc.Retrier
	logger       *logrus.Logger
	gasBufferPct uint64

	// serializes nonce selection and send
	submitMu sync.Mutex
}

// Dial connects to cfg.RPCURL. signer may be nil for a read-only client.
func Dial(ctx context.Context, cfg ClientConfig, signer Signer) (*Client, error) {
	if cfg.RPCURL == "" {
		return nil, fmt.Errorf("chain: RPCURL is required")
	}
	ec, err := ethclient.DialContext(ctx, cfg.RPCURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to RPC endpoint: %w", err)
	}
	c, err := NewClient(ctx, ec, signer, cfg)
	if err != nil {
		ec.Close()
		return nil, err
	}
	return c, nil
}

// NewClient wraps an existing backend.
func NewClient(ctx context.Context, backend Backend, signer Signer, cfg ClientConfig) (*Client, error) {
	if cfg.Logger == nil {
		cfg.Logger = logrus.New()
	}
	if cfg.Retry.Logger == nil {
		cfg.Retry.Logger = cfg.Logger
	}
	if cfg.GasBufferPercent == 0 {
		cfg.GasBufferPercent = 20
	}

	c := &Client{
		backend:      backend,
		signer:       signer,
		retrier:      rpc.NewRetrier(cfg.Retry),
		logger:       cfg.Logger,
		gasBufferPct: cfg.GasBufferPercent,
	}

	if cfg.ChainID != 0 {
		c.chainID = big.NewInt(cfg.ChainID)
		return c, nil
	}
	err := c.retrier.Do(ctx, "eth_chainId", func(ctx context.Context) error {
		id, err := backend.ChainID(ctx)
		if err != nil {
			return err
		}
		c.chainID = id
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get chain id: %w", err)
	}
	return c, nil
}

// Address is the signer's account, or the zero address when read-only.
func (c *Client) Address() common.Address {
	if c.signer == nil {
		return common.Address{}
	}
	return c.signer.Address()
}

func (c *Client) ChainID() *big.Int { return new(big.Int).Set(c.chainID) }

func (c *Client) Close() error {
	c.backend.Close()
	return nil
}

// ReadPairReserves calls getReserves on a pair.
func (c *Client) ReadPairReserves(ctx context.Context, pair common.Address) (*big.Int, *big.Int, uint32, error) {
	out, err := c.view(ctx, pairABI, pair, "getReserves")
	if err != nil {
		return nil, nil, 0, err
	}
	r0, ok0 := out[0].(*big.Int)
	r1, ok1 := out[1].(*big.Int)
	ts, ok2 := out[2].(uint32)
	if !ok0 || !ok1 || !ok2 {
		return nil, nil, 0, fmt.Errorf("getReserves on %s: unexpected output %v", pair.Hex(), out)
	}
	return r0, r1, ts, nil
}

// ReadPairTokens returns the pair's canonical token0 and token1.
func (c *Client) ReadPairTokens(ctx context.Context, pair common.Address) (common.Address, common.Address, error) {
	t0, err := c.viewAddress(ctx, pairABI, pair, "token0")
	if err != nil {
		return common.Address{}, common.Address{}, err
	}
	t1, err := c.viewAddress(ctx, pairABI, pair, "token1")
	if err != nil {
		return common.Address{}, common.Address{}, err
	}
	return t0, t1, nil
}

// ReadFactoryPair returns the factory's pair address. The zero address means
// no pair; callers normalize that in pair.Resolver.
func (c *Client) ReadFactoryPair(ctx context.Context, factory, tokenA, tokenB common.Address) (common.Address, error) {
	return c.viewAddress(ctx, factoryABI, factory, "getPair", tokenA, tokenB)
}

func (c *Client) ReadAllowance(ctx context.Context, token, owner, spender common.Address) (*big.Int, error) {
	return c.viewUint(ctx, erc20ABI, token, "allowance", owner, spender)
}

func (c *Client) ReadBalance(ctx context.Context, token, owner common.Address) (*big.Int, error) {
	return c.viewUint(ctx, erc20ABI, token, "balanceOf", owner)
}

// ReadTokenMetadata reads decimals and symbol. Tokens that encode symbol as
// bytes32 come back without a symbol.
func (c *Client) ReadTokenMetadata(ctx context.Context, token common.Address) (models.Token, error) {
	out, err := c.view(ctx, erc20ABI, token, "decimals")
	if err != nil {
		return models.Token{}, err
	}
	decimals, ok := out[0].(uint8)
	if !ok {
		return models.Token{}, fmt.Errorf("decimals on %s: unexpected output %v", token.Hex(), out)
	}

	t := models.Token{Address: token, Decimals: decimals}
	if out, err := c.view(ctx, erc20ABI, token, "symbol"); err == nil {
		if s, ok := out[0].(string); ok {
			t.Symbol = s
		}
	} else {
		c.logger.WithError(err).WithField("token", token.Hex()).Debug("symbol not readable")
	}
	return t, nil
}

// Submit prices, signs and sends call. A rejected signature is returned as
// ErrWalletRejected without anything reaching the node.
func (c *Client) Submit(ctx context.Context, call Call) (common.Hash, error) {
	if c.signer == nil {
		return common.Hash{}, ErrNoSigner
	}
	c.submitMu.Lock()
	defer c.submitMu.Unlock()

	from := c.signer.Address()

	var nonce uint64
	err := c.retrier.Do(ctx, "eth_getTransactionCount", func(ctx context.Context) error {
		n, err := c.backend.PendingNonceAt(ctx, from)
		nonce = n
		return err
	})
	if err != nil {
		return common.Hash{}, fmt.Errorf("failed to get nonce: %w", err)
	}

	var gasPrice *big.Int
	err = c.retrier.Do(ctx, "eth_gasPrice", func(ctx context.Context) error {
		p, err := c.backend.SuggestGasPrice(ctx)
		gasPrice = p
		return err
	})
	if err != nil {
		return common.Hash{}, fmt.Errorf("failed to get gas price: %w", err)
	}

	to := call.To
	var gas uint64
	err = c.retrier.Do(ctx, "eth_estimateGas", func(ctx context.Context) error {
		g, err := c.backend.EstimateGas(ctx, ethereum.CallMsg{From: from, To: &to, Data: call.Data})
		gas = g
		return err
	})
	if err != nil {
		if reason := RevertReasonFromError(err); reason != "" {
			return common.Hash{}, fmt.Errorf("estimate gas for %s: %w (%s)", call.Kind, err, reason)
		}
		return common.Hash{}, fmt.Errorf("estimate gas for %s: %w", call.Kind, err)
	}
	gasLimit := gas * (100 + c.gasBufferPct) / 100

	tx := types.NewTransaction(nonce, call.To, big.NewInt(0), gasLimit, gasPrice, call.Data)
	signed, err := c.signer.Sign(ctx, SignRequest{Call: call, Tx: tx, ChainID: c.ChainID()})
	if err != nil {
		return common.Hash{}, err
	}

	err = c.retrier.Do(ctx, "eth_sendRawTransaction", func(ctx context.Context) error {
		err := c.backend.SendTransaction(ctx, signed)
		if rpc.IsAlreadyKnown(err) {
			return nil
		}
		return err
	})
	if err != nil {
		return common.Hash{}, fmt.Errorf("failed to send transaction: %w", err)
	}

	c.logger.WithFields(logrus.Fields{
		"kind":  call.Kind,
		"to":    call.To.Hex(),
		"hash":  signed.Hash().Hex(),
		"nonce": nonce,
		"gas":   gasLimit,
	}).Info("transaction submitted")

	return signed.Hash(), nil
}

// TransactionReceipt returns ethereum.NotFound while the transaction is
// pending.
func (c *Client) TransactionReceipt(ctx context.Context, hash common.Hash) (*types.Receipt, error) {
	var receipt *types.Receipt
	err := c.retrier.Do(ctx, "eth_getTransactionReceipt", func(ctx context.Context) error {
		r, err := c.backend.TransactionReceipt(ctx, hash)
		receipt = r
		return err
	})
	return receipt, err
}

// RevertReason replays a reverted transaction against the state before its
// block and decodes the revert payload. An empty reason means the replay
// did not reproduce the failure.
func (c *Client) RevertReason(ctx context.Context, hash common.Hash, receipt *types.Receipt) (string, error) {
	var tx *types.Transaction
	err := c.retrier.Do(ctx, "eth_getTransactionByHash", func(ctx context.Context) error {
		t, _, err := c.backend.TransactionByHash(ctx, hash)
		tx = t
		return err
	})
	if err != nil {
		return "", fmt.Errorf("failed to get transaction: %w", err)
	}

	from, err := types.Sender(types.LatestSignerForChainID(c.chainID), tx)
	if err != nil {
		return "", fmt.Errorf("recover sender: %w", err)
	}

	var block *big.Int
	if receipt != nil && receipt.BlockNumber != nil && receipt.BlockNumber.Sign() > 0 {
		block = new(big.Int).Sub(receipt.BlockNumber, big.NewInt(1))
	}

	msg := ethereum.CallMsg{
		From:     from,
		To:       tx.To(),
		Gas:      tx.Gas(),
		GasPrice: tx.GasPrice(),
		Value:    tx.Value(),
		Data:     tx.Data(),
	}
	if _, callErr := c.backend.CallContract(ctx, msg, block); callErr != nil {
		return RevertReasonFromError(callErr), nil
	}
	return "", nil
}

// RevertReasonFromError extracts a readable reason from an eth_call or
// eth_estimateGas error, decoding Error(string) and Panic(uint256) payloads.
func RevertReasonFromError(err error) string {
	if err == nil {
		return ""
	}
	var dataErr gethrpc.DataError
	if errors.As(err, &dataErr) {
		if s, ok := dataErr.ErrorData().(string); ok {
			if payload, decErr := hexutil.Decode(s); decErr == nil {
				if reason, unpackErr := abi.UnpackRevert(payload); unpackErr == nil {
					return reason
				}
			}
		}
	}
	msg := err.Error()
	if i := strings.Index(msg, "execution reverted"); i >= 0 {
		reason := strings.TrimPrefix(msg[i+len("execution reverted"):], ":")
		if reason = strings.TrimSpace(reason); reason != "" {
			return reason
		}
		return "execution reverted"
	}
	return ""
}

func (c *Client) view(ctx context.Context, contract abi.ABI, to common.Address, method string, args ...any) ([]any, error) {
	data, err := contract.Pack(method, args...)
	if err != nil {
		return nil, fmt.Errorf("pack %s: %w", method, err)
	}

	var raw []byte
	err = c.retrier.Do(ctx, "eth_call", func(ctx context.Context) error {
		out, err := c.backend.CallContract(ctx, ethereum.CallMsg{To: &to, Data: data}, nil)
		raw = out
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("call %s on %s: %w", method, to.Hex(), err)
	}
	if len(raw) == 0 {
		return nil, fmt.Errorf("call %s on %s: empty result (not a contract?)", method, to.Hex())
	}

	out, err := contract.Unpack(method, raw)
	if err != nil {
		return nil, fmt.Errorf("unpack %s: %w", method, err)
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("unpack %s: no outputs", method)
	}
	return out, nil
}

func (c *Client) viewAddress(ctx context.Context, contract abi.ABI, to common.Address, method string, args ...any) (common.Address, error) {
	out, err := c.view(ctx, contract, to, method, args...)
	if err != nil {
		return common.Address{}, err
	}
	addr, ok := out[0].(common.Address)
	if !ok {
		return common.Address{}, fmt.Errorf("%s on %s: unexpected output %v", method, to.Hex(), out)
	}
	return addr, nil
}

func (c *Client) viewUint(ctx context.Context, contract abi.ABI, to common.Address, method string, args ...any) (*big.Int, error) {
	out, err := c.view(ctx, contract, to, method, args...)
	if err != nil {
		return nil, err
	}
	v, ok := out[0].(*big.Int)
	if !ok {
		return nil, fmt.Errorf("%s on %s: unexpected output %v", method, to.Hex(), out)
	}
	return v, nil
}
