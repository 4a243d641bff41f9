package rpc

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/ethereum/go-ethereum"
	gethrpc "github.com/ethereum/go-ethereum/rpc"
)

// ErrRateLimited is returned once retries are exhausted on a node that keeps
// throttling us.
var ErrRateLimited = errors.New("rpc rate limited")

// codeLimitExceeded is the JSON-RPC error code nodes use for throttling
// (EIP-1474 "limit exceeded").
const codeLimitExceeded = -32005

// IsRateLimited reports whether err is a throttling response: HTTP 429, the
// JSON-RPC limit-exceeded code, or a provider message saying so.
func IsRateLimited(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrRateLimited) {
		return true
	}

	var httpErr gethrpc.HTTPError
	if errors.As(err, &httpErr) && httpErr.StatusCode == http.StatusTooManyRequests {
		return true
	}
	var rpcErr gethrpc.Error
	if errors.As(err, &rpcErr) && rpcErr.ErrorCode() == codeLimitExceeded {
		return true
	}

	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "rate limit") || strings.Contains(msg, "too many requests")
}

// IsRetryable separates transient failures from answers. A JSON-RPC error
// is the node answering, so it is final unless it is a throttle; a missing
// receipt is an answer too.
func IsRetryable(err error) bool {
	switch {
	case err == nil:
		return false
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return false
	case errors.Is(err, ethereum.NotFound):
		return false
	case IsRateLimited(err):
		return true
	}

	var rpcErr gethrpc.Error
	if errors.As(err, &rpcErr) {
		return false
	}
	var httpErr gethrpc.HTTPError
	if errors.As(err, &httpErr) {
		return httpErr.StatusCode >= http.StatusInternalServerError
	}
	return true
}

// IsAlreadyKnown reports whether a send failed only because the node already
// holds the same signed transaction, which happens when a retried send had
// in fact reached the node.
func IsAlreadyKnown(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "already known") || strings.Contains(msg, "known transaction")
}
