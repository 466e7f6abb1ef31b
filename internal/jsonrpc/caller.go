package jsonrpc

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
	"golang.org/x/time/rate"

	"github.com/torosent/rpcbench/internal/tracing"
)

const defaultCallTimeout = 30 * time.Second

type envelope struct {
	JSONRPC string `json:"jsonrpc"`
	Method  string `json:"method"`
	Params  []any  `json:"params"`
	ID      uint64 `json:"id"`
}

// HTTPCaller performs a single JSON-RPC attempt over HTTP POST.
type HTTPCaller struct {
	client    *http.Client
	tracer    trace.Tracer
	propagate bool
	logger    *logrus.Entry
	logErrors bool
	throttle  *rate.Sometimes
	nextID    atomic.Uint64
}

// Option configures an HTTPCaller.
type Option func(*HTTPCaller)

// WithHTTPClient overrides the HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(c *HTTPCaller) {
		if client != nil {
			c.client = client
		}
	}
}

// WithTracer records a client span per attempt. When propagate is true the W3C
// trace context is sent to the endpoint.
func WithTracer(tracer trace.Tracer, propagate bool) Option {
	return func(c *HTTPCaller) {
		if tracer != nil {
			c.tracer = tracer
		}
		c.propagate = propagate
	}
}

// WithLogger sets the logger. Failed attempts are logged at warn level only when
// logErrors is set, and then throttled.
func WithLogger(logger *logrus.Entry, logErrors bool) Option {
	return func(c *HTTPCaller) {
		if logger != nil {
			c.logger = logger
		}
		c.logErrors = logErrors
	}
}

// NewHTTPCaller returns a caller with a pooled transport sized for bursts.
func NewHTTPCaller(opts ...Option) *HTTPCaller {
	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.MaxIdleConns = 512
	transport.MaxIdleConnsPerHost = 256
	transport.IdleConnTimeout = 90 * time.Second

	c := &HTTPCaller{
		client: &http.Client{Transport: transport},
		tracer: noop.NewTracerProvider().Tracer("rpcbench"),
		logger: logrus.NewEntry(logrus.StandardLogger()),
		throttle: &rate.Sometimes{
			First:    10,
			Interval: 5 * time.Second,
		},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Call performs one attempt. It never retries; wrap it with WithRetry for backoff.
func (c *HTTPCaller) Call(ctx context.Context, req Request) Outcome {
	out, _ := c.CallResult(ctx, req)
	return out
}

// CallResult performs one attempt and also returns the response body, for
// callers that need the result value.
func (c *HTTPCaller) CallResult(ctx context.Context, req Request) (Outcome, []byte) {
	attempt := req.Attempt
	if attempt < 1 {
		attempt = 1
	}
	ctx, span := tracing.StartCallSpan(ctx, c.tracer, req.Method, endpointHost(req.Endpoint), attempt)

	start := time.Now()
	out, body := c.do(ctx, req)
	out.Latency = time.Since(start)
	out.Attempts = 1

	tracing.EndSpan(span, string(out.Kind), out.HTTPStatus, out.ResponseSize)
	if !out.Success {
		c.logFailure(req, out)
	}
	return out, body
}

func (c *HTTPCaller) do(ctx context.Context, req Request) (Outcome, []byte) {
	timeout := req.Timeout
	if timeout <= 0 {
		timeout = defaultCallTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	params := req.Params
	if params == nil {
		params = []any{}
	}
	payload, err := json.Marshal(envelope{
		JSONRPC: "2.0",
		Method:  req.Method,
		Params:  params,
		ID:      c.nextID.Add(1),
	})
	if err != nil {
		return Outcome{Kind: KindInternal, Message: fmt.Sprintf("encode request: %v", err)}, nil
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, req.Endpoint, bytes.NewReader(payload))
	if err != nil {
		return Outcome{Kind: KindInternal, Message: fmt.Sprintf("build request: %v", err)}, nil
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json")
	if c.propagate {
		tracing.InjectHTTPHeaders(ctx, httpReq.Header)
	}

	resp, err := c.client.Do(httpReq)
	if err != nil {
		return Outcome{Kind: ClassifyTransportError(err), Message: err.Error()}, nil
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return Outcome{
			Kind:       ClassifyTransportError(err),
			Message:    fmt.Sprintf("read response: %v", err),
			HTTPStatus: resp.StatusCode,
		}, nil
	}

	out := Outcome{HTTPStatus: resp.StatusCode, ResponseSize: len(body)}
	kind, msg := ClassifyResponse(resp.StatusCode, body)
	if kind != "" {
		out.Kind = kind
		out.Message = msg
		return out, body
	}
	out.Success = true
	return out, body
}

func (c *HTTPCaller) logFailure(req Request, out Outcome) {
	if !c.logErrors {
		return
	}
	c.throttle.Do(func() {
		c.logger.WithFields(logrus.Fields{
			"method":     req.Method,
			"endpoint":   endpointHost(req.Endpoint),
			"kind":       out.Kind,
			"status":     out.HTTPStatus,
			"attempt":    req.Attempt,
			"latency_ms": out.LatencyMs(),
		}).Warn(out.Message)
	})
}

// endpointHost strips the path and query, which often carry API keys.
func endpointHost(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return ""
	}
	return u.Host
}
