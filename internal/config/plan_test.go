package config_test

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/torosent/rpcbench/internal/config"
	"github.com/torosent/rpcbench/internal/jsonrpc"
	"github.com/torosent/rpcbench/internal/plan"
)

type headCaller struct {
	head      string
	fail      bool
	endpoints []string
}

func (h *headCaller) CallResult(_ context.Context, req jsonrpc.Request) (jsonrpc.Outcome, []byte) {
	h.endpoints = append(h.endpoints, req.Endpoint)
	if h.fail {
		return jsonrpc.Outcome{Kind: jsonrpc.KindConnection, Message: "connection refused"}, nil
	}
	return jsonrpc.Outcome{Success: true}, []byte(`{"jsonrpc":"2.0","id":1,"result":"` + h.head + `"}`)
}

func twoProviders() *config.Config {
	cfg := config.Default()
	cfg.Providers = []config.ProviderConfig{
		{Name: "Alpha RPC", URL: "https://alpha.example.com"},
		{URL: "https://beta.example.com/v1"},
	}
	return cfg
}

func TestBuildPlanResolvesBatteryAgainstHead(t *testing.T) {
	cfg := twoProviders()
	cfg.Mode = plan.ModeQuick
	caller := &headCaller{head: "0x1000"}

	p, err := config.BuildPlan(context.Background(), cfg, caller)
	if err != nil {
		t.Fatalf("BuildPlan() error = %v", err)
	}

	if len(caller.endpoints) != 1 || caller.endpoints[0] != "https://alpha.example.com" {
		t.Errorf("head fetched from %v, want the first provider", caller.endpoints)
	}
	if len(p.Tests) != len(plan.BatteryIDs()) {
		t.Errorf("len(Tests) = %d, want %d", len(p.Tests), len(plan.BatteryIDs()))
	}
	if p.Providers[0].ID != "alpha-rpc" || p.Providers[0].Name != "Alpha RPC" {
		t.Errorf("first provider = %+v", p.Providers[0])
	}
	if p.Providers[1].ID != "provider-2" || p.Providers[1].Name != "beta.example.com" {
		t.Errorf("second provider = %+v", p.Providers[1])
	}
	if p.Config.Rounds != 2 || p.Config.Mode != plan.ModeQuick {
		t.Errorf("rounds = %d mode = %q", p.Config.Rounds, p.Config.Mode)
	}
	if p.Config.TimeoutFor("eth_getLogs") != plan.DefaultGetLogsTimeout {
		t.Errorf("getLogs timeout = %s", p.Config.TimeoutFor("eth_getLogs"))
	}

	// recent block sits 100 below the 4096 head
	block, ok := p.Test(6)
	if !ok || block.Params[0] != "0xf9c" {
		t.Errorf("test 6 params = %v", block.Params)
	}
}

func TestBuildPlanHonoursTestIDs(t *testing.T) {
	cfg := twoProviders()
	cfg.TestIDs = []int{2, 12}

	p, err := config.BuildPlan(context.Background(), cfg, &headCaller{head: "0x10"})
	if err != nil {
		t.Fatalf("BuildPlan() error = %v", err)
	}
	if len(p.Tests) != 2 || p.Tests[0].ID != 2 || p.Tests[1].ID != 12 {
		t.Errorf("Tests = %+v", p.Tests)
	}
	if p.Tests[1].Concurrency != 50 {
		t.Errorf("burst concurrency = %d, want 50", p.Tests[1].Concurrency)
	}
}

func TestBuildPlanCustomTestsSkipHeadLookup(t *testing.T) {
	cfg := twoProviders()
	cfg.Tests = []plan.TestDefinition{
		{ID: 1, Name: "chain", Method: "eth_chainId", Category: plan.CategorySimple, Label: plan.LabelLatest, Params: []any{}},
		{ID: 2, Name: "gas", Method: "eth_gasPrice", Category: plan.CategorySimple, Label: plan.LabelLatest, Params: []any{}},
	}
	cfg.TestIDs = []int{2}
	cfg.MethodTimeouts = map[string]time.Duration{"eth_gasprice": time.Second}
	caller := &headCaller{fail: true}

	p, err := config.BuildPlan(context.Background(), cfg, caller)
	if err != nil {
		t.Fatalf("BuildPlan() error = %v", err)
	}
	if len(caller.endpoints) != 0 {
		t.Errorf("head was fetched for a custom battery")
	}
	if len(p.Tests) != 1 || p.Tests[0].Method != "eth_gasPrice" {
		t.Errorf("Tests = %+v", p.Tests)
	}
	if p.Config.TimeoutFor("eth_gasPrice") != time.Second {
		t.Errorf("TimeoutFor(eth_gasPrice) = %s, want 1s", p.Config.TimeoutFor("eth_gasPrice"))
	}
}

func TestBuildPlanHeadFailure(t *testing.T) {
	_, err := config.BuildPlan(context.Background(), twoProviders(), &headCaller{fail: true})
	if err == nil || !strings.Contains(err.Error(), "fetch chain head from alpha-rpc") {
		t.Fatalf("BuildPlan() error = %v", err)
	}
}

func TestPlanProvidersUniqueIDs(t *testing.T) {
	cfg := config.Default()
	cfg.Providers = []config.ProviderConfig{
		{Name: "node", URL: "https://a.example.com"},
		{Name: "Node", URL: "https://b.example.com"},
		{ID: "custom", URL: "https://c.example.com"},
	}
	providers := cfg.PlanProviders()
	want := []string{"node", "node-2", "custom"}
	for i, p := range providers {
		if p.ID != want[i] {
			t.Errorf("providers[%d].ID = %q, want %q", i, p.ID, want[i])
		}
	}
}

func TestPlanBuilderValidatesDocument(t *testing.T) {
	build := config.NewPlanBuilder(&headCaller{head: "0x100"})

	_, err := build(context.Background(), []byte(`{"mode":"forever"}`))
	var verr config.ValidationError
	if !errors.As(err, &verr) || len(verr.Issues()) < 2 {
		t.Fatalf("build() error = %v, want validation issues", err)
	}

	p, err := build(context.Background(), []byte(`{"providers":[{"name":"a","url":"https://a.example.com"}],"categories":["simple"]}`))
	if err != nil {
		t.Fatalf("build() error = %v", err)
	}
	if len(p.SequentialTests()) != 5 || len(p.LoadTests()) != 0 {
		t.Errorf("sequential = %d load = %d", len(p.SequentialTests()), len(p.LoadTests()))
	}
}
