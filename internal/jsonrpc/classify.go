package jsonrpc

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"

	"github.com/tidwall/gjson"
)

const (
	codeMethodNotFound = -32601
	codeInvalidParams  = -32602
	codeLimitExceeded  = -32005
)

// ClassifyResponse inspects an HTTP response body. It returns an empty kind for a
// successful call, otherwise the failure kind and a message.
func ClassifyResponse(status int, body []byte) (ErrorKind, string) {
	if status == http.StatusTooManyRequests {
		return KindRateLimit, "HTTP 429 Too Many Requests"
	}
	if !gjson.ValidBytes(body) {
		if status >= 400 {
			return KindInvalidResponse, fmt.Sprintf("HTTP %d with non-JSON body", status)
		}
		return KindInvalidResponse, "response is not valid JSON"
	}

	doc := gjson.ParseBytes(body)
	if !doc.IsObject() {
		return KindInvalidResponse, "response is not a JSON-RPC object"
	}
	if errObj := doc.Get("error"); errObj.Exists() && errObj.Type != gjson.Null {
		code := errObj.Get("code").Int()
		msg := errObj.Get("message").String()
		if msg == "" && !errObj.IsObject() {
			msg = errObj.String()
		}
		return ClassifyRPCError(code, msg), msg
	}
	if !doc.Get("result").Exists() {
		return KindInvalidResponse, "response has neither result nor error"
	}
	return "", ""
}

// ClassifyRPCError maps a JSON-RPC error object to an error kind using its code
// and well-known message fragments.
func ClassifyRPCError(code int64, message string) ErrorKind {
	msg := strings.ToLower(message)

	switch {
	case strings.Contains(msg, "revert"):
		return KindExecutionReverted
	case code == codeInvalidParams ||
		strings.Contains(msg, "invalid argument") ||
		strings.Contains(msg, "invalid param"):
		return KindInvalidParams
	case code == codeMethodNotFound ||
		strings.Contains(msg, "not supported") ||
		strings.Contains(msg, "not found") ||
		strings.Contains(msg, "does not exist"):
		return KindUnsupported
	case strings.Contains(msg, "rate limit") ||
		strings.Contains(msg, "too many requests") ||
		(code == codeLimitExceeded && strings.Contains(msg, "rate")):
		return KindRateLimit
	case strings.Contains(msg, "block range") ||
		strings.Contains(msg, "too many") ||
		strings.Contains(msg, "exceeds") ||
		(strings.Contains(msg, "limit") && strings.Contains(msg, "log")):
		return KindBlockRangeLimit
	case strings.Contains(msg, "resource") ||
		strings.Contains(msg, "memory"):
		return KindRateLimit
	default:
		return KindRPCError
	}
}

// ClassifyTransportError maps an error from the HTTP round trip.
func ClassifyTransportError(err error) ErrorKind {
	if errors.Is(err, context.DeadlineExceeded) {
		return KindTimeout
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return KindTimeout
	}
	return KindConnection
}
