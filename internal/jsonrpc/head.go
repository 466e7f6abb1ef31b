package jsonrpc

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/tidwall/gjson"
)

// ResultCaller returns the raw response body of a call alongside its outcome.
type ResultCaller interface {
	CallResult(ctx context.Context, req Request) (Outcome, []byte)
}

// BlockNumber fetches the current chain head with eth_blockNumber.
func BlockNumber(ctx context.Context, caller ResultCaller, endpoint string, timeout time.Duration) (uint64, error) {
	out, body := caller.CallResult(ctx, Request{
		Endpoint: endpoint,
		Method:   "eth_blockNumber",
		Timeout:  timeout,
		Attempt:  1,
	})
	if !out.Success {
		return 0, fmt.Errorf("eth_blockNumber: %s: %s", out.Kind, out.Message)
	}
	return ParseQuantity(gjson.GetBytes(body, "result").String())
}

// ParseQuantity decodes a hex-encoded JSON-RPC quantity such as "0x1b4".
func ParseQuantity(s string) (uint64, error) {
	lower := strings.ToLower(s)
	if !strings.HasPrefix(lower, "0x") || len(lower) == 2 {
		return 0, fmt.Errorf("invalid quantity %q", s)
	}
	v, err := strconv.ParseUint(lower[2:], 16, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid quantity %q: %w", s, err)
	}
	return v, nil
}
