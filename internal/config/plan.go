package config

import (
	"context"
	"fmt"
	"net/url"
	"regexp"
	"slices"
	"strings"
	"time"

	"github.com/torosent/rpcbench/internal/jsonrpc"
	"github.com/torosent/rpcbench/internal/plan"
)

var slugPattern = regexp.MustCompile(`[^a-z0-9]+`)

// PlanProviders assigns stable, unique ids to the configured providers.
// Explicit ids win; otherwise the id is derived from the name.
func (c Config) PlanProviders() []plan.Provider {
	out := make([]plan.Provider, 0, len(c.Providers))
	seen := make(map[string]int, len(c.Providers))
	for i, p := range c.Providers {
		id := strings.TrimSpace(p.ID)
		if id == "" {
			id = strings.Trim(slugPattern.ReplaceAllString(strings.ToLower(p.Name), "-"), "-")
		}
		if id == "" {
			id = fmt.Sprintf("provider-%d", i+1)
		}
		if n := seen[id]; n > 0 {
			seen[id] = n + 1
			id = fmt.Sprintf("%s-%d", id, n+1)
		} else {
			seen[id] = 1
		}
		name := strings.TrimSpace(p.Name)
		if name == "" {
			name = hostOf(p.URL, id)
		}
		out = append(out, plan.Provider{ID: id, Name: name, URL: p.URL, Region: p.Region})
	}
	return out
}

func hostOf(raw, fallback string) string {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return fallback
	}
	return u.Hostname()
}

// RunConfig converts the settings shared by every provider. tests resolves
// method names in method_timeouts, whose keys arrive lowercased from files.
func (c Config) RunConfig(tests []plan.TestDefinition) plan.RunConfig {
	run := plan.RunConfig{
		Mode:              c.Mode,
		Rounds:            c.RoundCount(),
		Timeout:           c.Timeout,
		InterRoundDelay:   c.InterRoundDelay,
		InterTestDelay:    c.InterTestDelay,
		LoadCooldown:      c.LoadCooldown,
		Categories:        slices.Clone(c.Categories),
		Labels:            slices.Clone(c.Labels),
		LoadConcurrency:   make(map[plan.LoadTier]int, len(c.LoadConcurrency)),
		Retry:             c.Retry,
		ParallelProviders: c.ParallelProviders,
	}
	if run.Mode == "" {
		run.Mode = plan.ModeStandard
	}
	for tier, n := range c.LoadConcurrency {
		run.LoadConcurrency[tier] = n
	}
	if len(c.MethodTimeouts) > 0 {
		run.MethodTimeouts = make(map[string]time.Duration, len(c.MethodTimeouts))
		for method, d := range c.MethodTimeouts {
			run.MethodTimeouts[canonicalMethod(method, tests)] = d
		}
	}
	return run
}

func canonicalMethod(method string, tests []plan.TestDefinition) string {
	for _, t := range tests {
		if strings.EqualFold(t.Method, method) {
			return t.Method
		}
	}
	return method
}

// BuildPlan resolves the execution plan. The built-in battery needs the chain
// head, which is read from the first provider through caller; a custom test
// list is used as written.
func BuildPlan(ctx context.Context, cfg *Config, caller jsonrpc.ResultCaller) (plan.ExecutionPlan, error) {
	providers := cfg.PlanProviders()
	if len(providers) == 0 {
		return plan.ExecutionPlan{}, ValidationError{issues: []string{"at least one provider is required"}}
	}

	var tests []plan.TestDefinition
	if len(cfg.Tests) > 0 {
		for _, t := range cfg.Tests {
			if len(cfg.TestIDs) == 0 || slices.Contains(cfg.TestIDs, t.ID) {
				tests = append(tests, t)
			}
		}
	} else {
		head, err := jsonrpc.BlockNumber(ctx, caller, providers[0].URL, cfg.Timeout)
		if err != nil {
			return plan.ExecutionPlan{}, fmt.Errorf("fetch chain head from %s: %w", providers[0].ID, err)
		}
		var enabled []int
		if len(cfg.TestIDs) > 0 {
			enabled = cfg.TestIDs
		}
		tests = plan.BuildBattery(cfg.Params, head, enabled, cfg.LoadConcurrency)
	}

	p := plan.ExecutionPlan{
		Providers: providers,
		Tests:     tests,
		Config:    cfg.RunConfig(tests),
	}
	if err := p.Validate(); err != nil {
		return plan.ExecutionPlan{}, err
	}
	return p, nil
}

// NewPlanBuilder returns a builder for JSON job documents submitted to the API.
func NewPlanBuilder(caller jsonrpc.ResultCaller) func(ctx context.Context, body []byte) (plan.ExecutionPlan, error) {
	return func(ctx context.Context, body []byte) (plan.ExecutionPlan, error) {
		cfg, err := Parse(body, "json")
		if err != nil {
			return plan.ExecutionPlan{}, err
		}
		if err := cfg.Validate(); err != nil {
			return plan.ExecutionPlan{}, err
		}
		return BuildPlan(ctx, cfg, caller)
	}
}
