package chain

import (
	"context"
	"errors"
	"math/big"
	"sync"
	"testing"

	"github.com/aman-zulfiqar/pairswap/internal/rpc"
	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testKey = "4c0883a69102937d6231471b5dbb6204fe5129617082792ae468d01a3f362318"

var (
	tokenA  = common.HexToAddress("0x1000000000000000000000000000000000000001")
	tokenB  = common.HexToAddress("0x2000000000000000000000000000000000000002")
	pairHex = common.HexToAddress("0x3000000000000000000000000000000000000003")
	factory = common.HexToAddress("0x4000000000000000000000000000000000000004")
)

type revertError struct {
	msg  string
	data string
}

func (e *revertError) Error() string          { return e.msg }
func (e *revertError) ErrorCode() int         { return 3 }
func (e *revertError) ErrorData() interface{} { return e.data }

type fakeBackend struct {
	mu       sync.Mutex
	results  map[string][]byte
	callErr  error
	sendErr  error
	sent     []*types.Transaction
	gas      uint64
	nonce    uint64
	receipts map[common.Hash]*types.Receipt
	callAt   []*big.Int
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{
		results:  map[string][]byte{},
		gas:      50_000,
		nonce:    7,
		receipts: map[common.Hash]*types.Receipt{},
	}
}

func (f *fakeBackend) set(t *testing.T, contract abi.ABI, method string, values ...any) {
	t.Helper()
	out, err := contract.Methods[method].Outputs.Pack(values...)
	require.NoError(t, err)
	f.results[string(contract.Methods[method].ID)] = out
}

func (f *fakeBackend) ChainID(context.Context) (*big.Int, error) { return big.NewInt(31337), nil }

func (f *fakeBackend) CallContract(_ context.Context, msg ethereum.CallMsg, block *big.Int) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.callAt = append(f.callAt, block)
	if f.callErr != nil {
		return nil, f.callErr
	}
	return f.results[string(msg.Data[:4])], nil
}

func (f *fakeBackend) EstimateGas(context.Context, ethereum.CallMsg) (uint64, error) {
	return f.gas, nil
}

func (f *fakeBackend) SuggestGasPrice(context.Context) (*big.Int, error) {
	return big.NewInt(1_000_000_000), nil
}

func (f *fakeBackend) PendingNonceAt(context.Context, common.Address) (uint64, error) {
	return f.nonce, nil
}

func (f *fakeBackend) SendTransaction(_ context.Context, tx *types.Transaction) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, tx)
	return f.sendErr
}

func (f *fakeBackend) TransactionReceipt(_ context.Context, hash common.Hash) (*types.Receipt, error) {
	if r, ok := f.receipts[hash]; ok {
		return r, nil
	}
	return nil, ethereum.NotFound
}

func (f *fakeBackend) TransactionByHash(_ context.Context, hash common.Hash) (*types.Transaction, bool, error) {
	for _, tx := range f.sent {
		if tx.Hash() == hash {
			return tx, false, nil
		}
	}
	return nil, false, ethereum.NotFound
}

func (f *fakeBackend) Close() {}

func newTestClient(t *testing.T, backend Backend, signer Signer) *Client {
	t.Helper()
	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)
	c, err := NewClient(context.Background(), backend, signer, ClientConfig{
		Logger: logger,
		Retry:  rpc.RetryConfig{MaxRetries: 0},
	})
	require.NoError(t, err)
	return c
}

func TestNewClient_AsksNodeForChainID(t *testing.T) {
	c := newTestClient(t, newFakeBackend(), nil)
	assert.Equal(t, int64(31337), c.ChainID().Int64())
	assert.Equal(t, common.Address{}, c.Address())
}

func TestClient_Reads(t *testing.T) {
	fb := newFakeBackend()
	fb.set(t, pairABI, "getReserves", big.NewInt(1000), big.NewInt(2000), uint32(1700000000))
	fb.set(t, pairABI, "token0", tokenA)
	fb.set(t, pairABI, "token1", tokenB)
	fb.set(t, factoryABI, "getPair", pairHex)
	fb.set(t, erc20ABI, "allowance", big.NewInt(55))
	fb.set(t, erc20ABI, "balanceOf", big.NewInt(99))
	fb.set(t, erc20ABI, "decimals", uint8(6))
	fb.set(t, erc20ABI, "symbol", "USDC")
	c := newTestClient(t, fb, nil)
	ctx := context.Background()

	r0, r1, ts, err := c.ReadPairReserves(ctx, pairHex)
	require.NoError(t, err)
	assert.Equal(t, int64(1000), r0.Int64())
	assert.Equal(t, int64(2000), r1.Int64())
	assert.Equal(t, uint32(1700000000), ts)

	t0, t1, err := c.ReadPairTokens(ctx, pairHex)
	require.NoError(t, err)
	assert.Equal(t, tokenA, t0)
	assert.Equal(t, tokenB, t1)

	p, err := c.ReadFactoryPair(ctx, factory, tokenA, tokenB)
	require.NoError(t, err)
	assert.Equal(t, pairHex, p)

	allowance, err := c.ReadAllowance(ctx, tokenA, tokenB, pairHex)
	require.NoError(t, err)
	assert.Equal(t, int64(55), allowance.Int64())

	bal, err := c.ReadBalance(ctx, tokenA, tokenB)
	require.NoError(t, err)
	assert.Equal(t, int64(99), bal.Int64())

	meta, err := c.ReadTokenMetadata(ctx, tokenA)
	require.NoError(t, err)
	assert.Equal(t, uint8(6), meta.Decimals)
	assert.Equal(t, "USDC", meta.Symbol)
	assert.Equal(t, tokenA, meta.Address)
}

func TestClient_ReadOfNonContractFails(t *testing.T) {
	c := newTestClient(t, newFakeBackend(), nil)
	_, _, _, err := c.ReadPairReserves(context.Background(), pairHex)
	assert.ErrorContains(t, err, "empty result")
}

func TestClient_SubmitSignsAndSends(t *testing.T) {
	fb := newFakeBackend()
	signer, err := NewKeySigner(testKey)
	require.NoError(t, err)
	c := newTestClient(t, fb, signer)

	call, err := NewApproveCall(tokenA, pairHex, big.NewInt(100))
	require.NoError(t, err)

	hash, err := c.Submit(context.Background(), call)
	require.NoError(t, err)
	require.Len(t, fb.sent, 1)

	tx := fb.sent[0]
	assert.Equal(t, hash, tx.Hash())
	assert.Equal(t, uint64(7), tx.Nonce())
	assert.Equal(t, uint64(60_000), tx.Gas())
	assert.Equal(t, tokenA, *tx.To())

	from, err := types.Sender(types.LatestSignerForChainID(big.NewInt(31337)), tx)
	require.NoError(t, err)
	assert.Equal(t, signer.Address(), from)
}

func TestClient_SubmitTreatsAlreadyKnownAsSent(t *testing.T) {
	fb := newFakeBackend()
	fb.sendErr = errors.New("already known")
	signer, err := NewKeySigner(testKey)
	require.NoError(t, err)
	c := newTestClient(t, fb, signer)

	call, err := NewMintCall(pairHex, signer.Address())
	require.NoError(t, err)
	_, err = c.Submit(context.Background(), call)
	assert.NoError(t, err)
}

func TestClient_SubmitRejectedSendsNothing(t *testing.T) {
	fb := newFakeBackend()
	key, err := NewKeySigner(testKey)
	require.NoError(t, err)
	signer := NewPromptSigner(key, func(context.Context, SignRequest) (bool, error) { return false, nil })
	c := newTestClient(t, fb, signer)

	call, err := NewCreatePairCall(factory, tokenA, tokenB)
	require.NoError(t, err)
	_, err = c.Submit(context.Background(), call)
	assert.ErrorIs(t, err, ErrWalletRejected)
	assert.Empty(t, fb.sent)
}

func TestClient_SubmitWithoutSigner(t *testing.T) {
	c := newTestClient(t, newFakeBackend(), nil)
	_, err := c.Submit(context.Background(), Call{Kind: CallMint, To: pairHex})
	assert.ErrorIs(t, err, ErrNoSigner)
}

func TestClient_RevertReasonReplaysAtParentBlock(t *testing.T) {
	fb := newFakeBackend()
	signer, err := NewKeySigner(testKey)
	require.NoError(t, err)
	c := newTestClient(t, fb, signer)

	call, err := NewSwapCall(pairHex, big.NewInt(0), big.NewInt(90), signer.Address(), nil)
	require.NoError(t, err)
	hash, err := c.Submit(context.Background(), call)
	require.NoError(t, err)

	// Error(string) "UniswapV2: K"
	payload, err := abi.Arguments{{Type: mustType(t, "string")}}.Pack("UniswapV2: K")
	require.NoError(t, err)
	data := append(common.FromHex("0x08c379a0"), payload...)
	fb.callErr = &revertError{msg: "execution reverted: UniswapV2: K", data: hexutil.Encode(data)}

	receipt := &types.Receipt{Status: types.ReceiptStatusFailed, BlockNumber: big.NewInt(100)}
	reason, err := c.RevertReason(context.Background(), hash, receipt)
	require.NoError(t, err)
	assert.Equal(t, "UniswapV2: K", reason)
	assert.Equal(t, int64(99), fb.callAt[len(fb.callAt)-1].Int64())
}

func TestRevertReasonFromError(t *testing.T) {
	assert.Empty(t, RevertReasonFromError(nil))
	assert.Empty(t, RevertReasonFromError(errors.New("connection refused")))
	assert.Equal(t, "UniswapV2: INSUFFICIENT_OUTPUT_AMOUNT",
		RevertReasonFromError(errors.New("execution reverted: UniswapV2: INSUFFICIENT_OUTPUT_AMOUNT")))
	assert.Equal(t, "execution reverted", RevertReasonFromError(errors.New("execution reverted")))
}

func mustType(t *testing.T, name string) abi.Type {
	t.Helper()
	typ, err := abi.NewType(name, "", nil)
	require.NoError(t, err)
	return typ
}
