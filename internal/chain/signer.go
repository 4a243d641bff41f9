package chain

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
)

var (
	// ErrWalletRejected means the user declined to sign. Nothing was sent.
	ErrWalletRejected = errors.New("wallet rejected the signature request")
	ErrNoSigner       = errors.New("no signer configured")
)

// SignRequest carries the unsigned transaction and the call it encodes, so
// an interactive signer can show the user what they approve.
type SignRequest struct {
	Call    Call
	Tx      *types.Transaction
	ChainID *big.Int
}

// Signer is the wallet boundary. Implementations return ErrWalletRejected
// when the user declines.
type Signer interface {
	Address() common.Address
	Sign(ctx context.Context, req SignRequest) (*types.Transaction, error)
}

// KeySigner signs with a local private key.
type KeySigner struct {
	key  *ecdsa.PrivateKey
	addr common.Address
}

// NewKeySigner parses a hex private key, with or without 0x.
func NewKeySigner(hexKey string) (*KeySigner, error) {
	hexKey = strings.TrimSpace(hexKey)
	if hexKey == "" {
		return nil, fmt.Errorf("signer: private key is required")
	}
	key, err := crypto.HexToECDSA(strings.TrimPrefix(hexKey, "0x"))
	if err != nil {
		return nil, fmt.Errorf("signer: invalid private key: %w", err)
	}
	return &KeySigner{key: key, addr: crypto.PubkeyToAddress(key.PublicKey)}, nil
}

func (s *KeySigner) Address() common.Address { return s.addr }

func (s *KeySigner) Sign(_ context.Context, req SignRequest) (*types.Transaction, error) {
	signed, err := types.SignTx(req.Tx, types.NewEIP155Signer(req.ChainID), s.key)
	if err != nil {
		return nil, fmt.Errorf("failed to sign transaction: %w", err)
	}
	return signed, nil
}

// Approver decides whether a request may be signed.
type Approver func(ctx context.Context, req SignRequest) (bool, error)

// PromptSigner asks an Approver before delegating to the wrapped signer.
type PromptSigner struct {
	inner   Signer
	approve Approver
}

func NewPromptSigner(inner Signer, approve Approver) *PromptSigner {
	return &PromptSigner{inner: inner, approve: approve}
}

func (s *PromptSigner) Address() common.Address { return s.inner.Address() }

func (s *PromptSigner) Sign(ctx context.Context, req SignRequest) (*types.Transaction, error) {
	ok, err := s.approve(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("approval prompt: %w", err)
	}
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrWalletRejected, req.Call.Kind)
	}
	return s.inner.Sign(ctx, req)
}
