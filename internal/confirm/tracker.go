package confirm

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aman-zulfiqar/pairswap/internal/rpc"
	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/sirupsen/logrus"
)

var (
	// ErrTimedOut means no receipt appeared in time. The transaction may
	// still be mined later.
	ErrTimedOut = errors.New("transaction confirmation timed out")
	ErrReverted = errors.New("transaction reverted")
)

// RevertedError carries the receipt of a mined, failed transaction.
type RevertedError struct {
	Hash    common.Hash
	Reason  string
	Receipt *types.Receipt
}

func (e *RevertedError) Error() string {
	if e.Reason == "" {
		return fmt.Sprintf("transaction %s reverted", e.Hash.Hex())
	}
	return fmt.Sprintf("transaction %s reverted: %s", e.Hash.Hex(), e.Reason)
}

func (e *RevertedError) Is(target error) bool { return target == ErrReverted }

// ReceiptReader is implemented by chain.Client.
type ReceiptReader interface {
	TransactionReceipt(ctx context.Context, hash common.Hash) (*types.Receipt, error)
	RevertReason(ctx context.Context, hash common.Hash, receipt *types.Receipt) (string, error)
}

// Options bound a single wait.
type Options struct {
	Timeout         time.Duration
	PollInterval    time.Duration
	MaxPollInterval time.Duration
}

func DefaultOptions() Options {
	return Options{
		Timeout:         120 * time.Second,
		PollInterval:    2 * time.Second,
		MaxPollInterval: 8 * time.Second,
	}
}

// Tracker waits for transactions to be mined.
type Tracker struct {
	reader ReceiptReader
	logger *logrus.Logger

	now   func() time.Time
	after func(time.Duration) <-chan time.Time
}

func NewTracker(reader ReceiptReader, logger *logrus.Logger) *Tracker {
	if logger == nil {
		logger = logrus.New()
	}
	return &Tracker{
		reader: reader,
		logger: logger,
		now:    time.Now,
		after:  time.After,
	}
}

// Await polls for the receipt of hash until it is mined or opts.Timeout
// passes. A mined transaction with status 0 is a *RevertedError; no receipt
// in time is ErrTimedOut.
func (t *Tracker) Await(ctx context.Context, hash common.Hash, opts Options) (*types.Receipt, error) {
	opts = withDefaults(opts)

	deadline := t.now().Add(opts.Timeout)
	backoff := opts.PollInterval
	log := t.logger.WithField("hash", hash.Hex())

	for attempt := 1; ; attempt++ {
		receipt, err := t.reader.TransactionReceipt(ctx, hash)
		switch {
		case err == nil && receipt != nil:
			if receipt.Status == types.ReceiptStatusSuccessful {
				log.WithFields(logrus.Fields{
					"block":    receipt.BlockNumber,
					"gas_used": receipt.GasUsed,
				}).Debug("transaction confirmed")
				return receipt, nil
			}
			return nil, t.reverted(ctx, hash, receipt)
		case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
			return nil, err
		case err == nil, errors.Is(err, ethereum.NotFound):
			// pending
		case rpc.IsRateLimited(err):
			log.WithError(err).Debug("receipt poll rate limited")
		default:
			log.WithError(err).WithField("attempt", attempt).Warn("receipt poll failed")
		}

		remaining := deadline.Sub(t.now())
		if remaining <= 0 {
			return nil, fmt.Errorf("%w: %s after %v", ErrTimedOut, hash.Hex(), opts.Timeout)
		}
		wait := backoff
		if wait > remaining {
			wait = remaining
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-t.after(wait):
		}

		backoff *= 2
		if backoff > opts.MaxPollInterval {
			backoff = opts.MaxPollInterval
		}
	}
}

func (t *Tracker) reverted(ctx context.Context, hash common.Hash, receipt *types.Receipt) error {
	reason, err := t.reader.RevertReason(ctx, hash, receipt)
	if err != nil {
		t.logger.WithError(err).WithField("hash", hash.Hex()).Warn("could not read revert reason")
	}
	return &RevertedError{Hash: hash, Reason: reason, Receipt: receipt}
}

func withDefaults(opts Options) Options {
	def := DefaultOptions()
	if opts.Timeout <= 0 {
		opts.Timeout = def.Timeout
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = def.PollInterval
	}
	if opts.MaxPollInterval < opts.PollInterval {
		opts.MaxPollInterval = opts.PollInterval
	}
	return opts
}
