// Package tracing provides OpenTelemetry initialization and span helpers for RPC calls.
package tracing

import (
	"context"
	"fmt"
	"os"
	"sort"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
)

const (
	defaultServiceName  = "rpcbench"
	instrumentationName = "github.com/torosent/rpcbench/internal/jsonrpc"

	envEndpoint    = "OTEL_EXPORTER_OTLP_ENDPOINT"
	envServiceName = "OTEL_SERVICE_NAME"
)

// Roles recorded on the trace resource.
const (
	RoleRun   = "run"
	RoleServe = "serve"
)

// Config selects the OTLP exporter. An empty endpoint disables export.
type Config struct {
	Endpoint           string            `mapstructure:"endpoint"`
	Protocol           string            `mapstructure:"protocol"` // "grpc" or "http"
	ServiceName        string            `mapstructure:"service_name"`
	SampleRate         float64           `mapstructure:"sample_rate"` // 0 exports no call spans
	Insecure           bool              `mapstructure:"insecure"`
	Propagate          bool              `mapstructure:"propagate"`
	ResourceAttributes map[string]string `mapstructure:"resource_attributes"`
}

// Enabled reports whether any tracing behavior was requested.
func (c Config) Enabled() bool {
	return c.Endpoint != "" || c.Propagate || os.Getenv(envEndpoint) != ""
}

// Run describes the benchmark process the spans belong to. A single run knows
// its job and providers up front; a server only knows its role.
type Run struct {
	Role      string
	JobID     string
	Mode      string
	Rounds    int
	Providers []string
}

func (r Run) attributes() []attribute.KeyValue {
	var attrs []attribute.KeyValue
	if r.Role != "" {
		attrs = append(attrs, attribute.String("rpcbench.role", r.Role))
	}
	if r.JobID != "" {
		attrs = append(attrs, attribute.String("rpcbench.job_id", r.JobID))
	}
	if r.Mode != "" {
		attrs = append(attrs, attribute.String("rpcbench.mode", r.Mode))
	}
	if r.Rounds > 0 {
		attrs = append(attrs, attribute.Int("rpcbench.rounds", r.Rounds))
	}
	if len(r.Providers) > 0 {
		attrs = append(attrs, attribute.StringSlice("rpcbench.providers", r.Providers))
	}
	return attrs
}

// Provider holds the tracer used by the RPC caller.
type Provider struct {
	tp        *sdktrace.TracerProvider
	res       *resource.Resource
	tracer    trace.Tracer
	propagate bool
}

// Init builds the tracer provider for run. Without an endpoint it returns a
// provider whose tracer is a no-op; header propagation still follows cfg.
func Init(ctx context.Context, cfg Config, run Run) (*Provider, error) {
	if !cfg.Enabled() {
		return &Provider{}, nil
	}
	if cfg.SampleRate < 0 || cfg.SampleRate > 1.0 {
		return nil, fmt.Errorf("tracing sample_rate must be between 0.0 and 1.0, got %g", cfg.SampleRate)
	}

	endpoint := firstNonEmpty(cfg.Endpoint, os.Getenv(envEndpoint))
	if endpoint == "" {
		return &Provider{propagate: cfg.Propagate}, nil
	}

	res, err := newResource(ctx, cfg, run)
	if err != nil {
		return nil, fmt.Errorf("tracing resource: %w", err)
	}
	exporter, err := newExporter(ctx, cfg, endpoint)
	if err != nil {
		return nil, fmt.Errorf("tracing exporter: %w", err)
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sdktrace.ParentBased(newSampler(cfg.SampleRate))),
	)
	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	return &Provider{
		tp:        tp,
		res:       res,
		tracer:    tp.Tracer(instrumentationName),
		propagate: cfg.Propagate,
	}, nil
}

func newResource(ctx context.Context, cfg Config, run Run) (*resource.Resource, error) {
	attrs := []attribute.KeyValue{
		semconv.ServiceName(firstNonEmpty(cfg.ServiceName, os.Getenv(envServiceName), defaultServiceName)),
	}
	// Operator attributes first so the run's own keys win on collision.
	keys := make([]string, 0, len(cfg.ResourceAttributes))
	for k := range cfg.ResourceAttributes {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		attrs = append(attrs, attribute.String(k, cfg.ResourceAttributes[k]))
	}
	attrs = append(attrs, run.attributes()...)
	return resource.New(ctx, resource.WithAttributes(attrs...))
}

// newSampler keeps every call span at 1 and drops them all at 0.
func newSampler(rate float64) sdktrace.Sampler {
	switch {
	case rate >= 1:
		return sdktrace.AlwaysSample()
	case rate <= 0:
		return sdktrace.NeverSample()
	default:
		return sdktrace.TraceIDRatioBased(rate)
	}
}

// Tracer returns the configured tracer, or a no-op tracer when tracing is disabled.
func (p *Provider) Tracer() trace.Tracer {
	if p == nil || p.tracer == nil {
		return noop.NewTracerProvider().Tracer(instrumentationName)
	}
	return p.tracer
}

// Resource returns the resource spans are exported with, or nil when nothing is exported.
func (p *Provider) Resource() *resource.Resource {
	if p == nil {
		return nil
	}
	return p.res
}

func (p *Provider) ShouldPropagate() bool {
	if p == nil {
		return false
	}
	return p.propagate
}

// Shutdown flushes pending spans.
func (p *Provider) Shutdown(ctx context.Context) error {
	if p == nil || p.tp == nil {
		return nil
	}
	return p.tp.Shutdown(ctx)
}

func newExporter(ctx context.Context, cfg Config, endpoint string) (sdktrace.SpanExporter, error) {
	switch protocol := strings.ToLower(firstNonEmpty(cfg.Protocol, "grpc")); protocol {
	case "grpc":
		opts := []otlptracegrpc.Option{otlptracegrpc.WithEndpoint(endpoint)}
		if cfg.Insecure {
			opts = append(opts,
				otlptracegrpc.WithDialOption(grpc.WithTransportCredentials(insecure.NewCredentials())),
				otlptracegrpc.WithInsecure(),
			)
		}
		return otlptracegrpc.New(ctx, opts...)
	case "http":
		opts := []otlptracehttp.Option{otlptracehttp.WithEndpoint(endpoint)}
		if cfg.Insecure {
			opts = append(opts, otlptracehttp.WithInsecure())
		}
		return otlptracehttp.New(ctx, opts...)
	default:
		return nil, fmt.Errorf("unsupported OTLP protocol %q: use \"grpc\" or \"http\"", protocol)
	}
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
