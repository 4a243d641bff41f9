package chain

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// CallKind names the contract write a Call performs.
type CallKind string

const (
	CallApprove    CallKind = "approve"
	CallTransfer   CallKind = "transfer"
	CallCreatePair CallKind = "createPair"
	CallMint       CallKind = "mint"
	CallSwap       CallKind = "swap"
)

// Call is an encoded contract write, ready to be priced, signed and sent.
type Call struct {
	Kind    CallKind
	To      common.Address
	Data    []byte
	Summary string
}

func NewApproveCall(token, spender common.Address, amount *big.Int) (Call, error) {
	data, err := erc20ABI.Pack("approve", spender, amount)
	if err != nil {
		return Call{}, fmt.Errorf("pack approve: %w", err)
	}
	return Call{
		Kind:    CallApprove,
		To:      token,
		Data:    data,
		Summary: fmt.Sprintf("approve %s to spend %s of %s", spender.Hex(), amount, token.Hex()),
	}, nil
}

func NewTransferCall(token, to common.Address, amount *big.Int) (Call, error) {
	data, err := erc20ABI.Pack("transfer", to, amount)
	if err != nil {
		return Call{}, fmt.Errorf("pack transfer: %w", err)
	}
	return Call{
		Kind:    CallTransfer,
		To:      token,
		Data:    data,
		Summary: fmt.Sprintf("transfer %s of %s to %s", amount, token.Hex(), to.Hex()),
	}, nil
}

func NewCreatePairCall(factory, tokenA, tokenB common.Address) (Call, error) {
	data, err := factoryABI.Pack("createPair", tokenA, tokenB)
	if err != nil {
		return Call{}, fmt.Errorf("pack createPair: %w", err)
	}
	return Call{
		Kind:    CallCreatePair,
		To:      factory,
		Data:    data,
		Summary: fmt.Sprintf("create pair %s/%s", tokenA.Hex(), tokenB.Hex()),
	}, nil
}

func NewMintCall(pair, to common.Address) (Call, error) {
	data, err := pairABI.Pack("mint", to)
	if err != nil {
		return Call{}, fmt.Errorf("pack mint: %w", err)
	}
	return Call{
		Kind:    CallMint,
		To:      pair,
		Data:    data,
		Summary: fmt.Sprintf("mint liquidity on %s to %s", pair.Hex(), to.Hex()),
	}, nil
}

func NewSwapCall(pair common.Address, amount0Out, amount1Out *big.Int, to common.Address, payload []byte) (Call, error) {
	if payload == nil {
		payload = []byte{}
	}
	data, err := pairABI.Pack("swap", amount0Out, amount1Out, to, payload)
	if err != nil {
		return Call{}, fmt.Errorf("pack swap: %w", err)
	}
	return Call{
		Kind:    CallSwap,
		To:      pair,
		Data:    data,
		Summary: fmt.Sprintf("swap on %s: amount0Out=%s amount1Out=%s to %s", pair.Hex(), amount0Out, amount1Out, to.Hex()),
	}, nil
}
