package metrics

import (
	"reflect"
	"testing"

	"github.com/torosent/rpcbench/internal/jsonrpc"
)

func TestFriendlyErrorName(t *testing.T) {
	cases := map[jsonrpc.ErrorKind]string{
		jsonrpc.KindRateLimit: "Rate limited",
		" TIMEOUT ":           "Timeout",
		"":                    "Unknown error",
		"gateway_unavailable": "Gateway unavailable",
		"weird-kind":          "Weird kind",
	}
	for in, want := range cases {
		if got := FriendlyErrorName(in); got != want {
			t.Errorf("FriendlyErrorName(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestFlattenErrorBreakdown(t *testing.T) {
	if FlattenErrorBreakdown(nil) != nil {
		t.Fatal("nil breakdown should flatten to nil")
	}
	got := FlattenErrorBreakdown(map[jsonrpc.ErrorKind]int{
		jsonrpc.KindTimeout:   2,
		jsonrpc.KindRateLimit: 5,
		jsonrpc.KindRPCError:  2,
	})
	want := []ErrorBucket{
		{Kind: jsonrpc.KindRateLimit, Label: "Rate limited", Count: 5},
		{Kind: jsonrpc.KindRPCError, Label: "RPC error", Count: 2},
		{Kind: jsonrpc.KindTimeout, Label: "Timeout", Count: 2},
	}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("got %+v, want %+v", got, want)
	}
}

func TestPercentileNearestRank(t *testing.T) {
	sorted := make([]float64, 20)
	for i := range sorted {
		sorted[i] = float64(i + 1)
	}
	cases := map[float64]float64{0.5: 10, 0.95: 19, 0.99: 20, 0.01: 1}
	for p, want := range cases {
		if got := percentile(sorted, p); got != want {
			t.Errorf("percentile(%g) = %g, want %g", p, got, want)
		}
	}
	if percentile(nil, 0.5) != 0 {
		t.Error("empty percentile should be zero")
	}
}
