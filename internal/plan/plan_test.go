package plan_test

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/torosent/rpcbench/internal/plan"
)

func TestRoundTypeFor(t *testing.T) {
	tests := []struct {
		total int
		want  []plan.RoundType
	}{
		{total: 1, want: []plan.RoundType{plan.RoundCold}},
		{total: 2, want: []plan.RoundType{plan.RoundCold, plan.RoundWarm}},
		{total: 3, want: []plan.RoundType{plan.RoundCold, plan.RoundWarm, plan.RoundSustained}},
		{total: 5, want: []plan.RoundType{plan.RoundCold, plan.RoundWarm, plan.RoundWarm, plan.RoundWarm, plan.RoundSustained}},
	}
	for _, tt := range tests {
		for i, want := range tt.want {
			if got := plan.RoundTypeFor(i+1, tt.total); got != want {
				t.Errorf("RoundTypeFor(%d, %d) = %s, want %s", i+1, tt.total, got, want)
			}
		}
	}
}

func TestIterationModeRounds(t *testing.T) {
	cases := map[plan.IterationMode]int{
		plan.ModeQuick:       2,
		plan.ModeStandard:    3,
		"":                   3,
		"THOROUGH":           5,
		plan.ModeStatistical: 25,
		"bogus":              0,
	}
	for mode, want := range cases {
		if got := mode.Rounds(); got != want {
			t.Errorf("%q.Rounds() = %d, want %d", mode, got, want)
		}
	}
}

func TestSequentialTestsOrderedByCategory(t *testing.T) {
	p := plan.ExecutionPlan{
		Tests: []plan.TestDefinition{
			{ID: 1, Category: plan.CategoryComplex, Label: plan.LabelLatest},
			{ID: 2, Category: plan.CategoryLoad, Label: plan.LabelLatest},
			{ID: 3, Category: plan.CategorySimple, Label: plan.LabelLatest},
			{ID: 4, Category: plan.CategoryMedium, Label: plan.LabelArchival},
			{ID: 5, Category: plan.CategorySimple, Label: plan.LabelArchival},
		},
	}
	got := ids(p.SequentialTests())
	want := []int{3, 5, 4, 1}
	if !equalInts(got, want) {
		t.Fatalf("sequential order = %v, want %v", got, want)
	}
	if load := ids(p.LoadTests()); !equalInts(load, []int{2}) {
		t.Fatalf("load tests = %v, want [2]", load)
	}
}

func TestFiltersApplyToCategoryAndLabel(t *testing.T) {
	p := plan.ExecutionPlan{
		Tests: []plan.TestDefinition{
			{ID: 1, Category: plan.CategorySimple, Label: plan.LabelLatest},
			{ID: 2, Category: plan.CategorySimple, Label: plan.LabelArchival},
			{ID: 3, Category: plan.CategoryMedium, Label: plan.LabelLatest},
			{ID: 4, Category: plan.CategoryLoad, Label: plan.LabelLatest},
		},
		Config: plan.RunConfig{
			Categories: []plan.Category{plan.CategorySimple, plan.CategoryLoad},
			Labels:     []plan.Label{plan.LabelLatest},
		},
	}
	if got := ids(p.SequentialTests()); !equalInts(got, []int{1}) {
		t.Fatalf("sequential = %v, want [1]", got)
	}
	if got := ids(p.LoadTests()); !equalInts(got, []int{4}) {
		t.Fatalf("load = %v, want [4]", got)
	}
}

func TestBaseName(t *testing.T) {
	cases := []struct {
		def  plan.TestDefinition
		want string
	}{
		{plan.TestDefinition{Name: "eth_getBalance (latest)"}, "eth_getBalance"},
		{plan.TestDefinition{Name: "eth_getBalance (archival)"}, "eth_getBalance"},
		{plan.TestDefinition{Name: "eth_chainId"}, "eth_chainId"},
		{plan.TestDefinition{Name: "eth_getLogs [1→2] (latest)", Base: "eth_getLogs small range"}, "eth_getLogs small range"},
	}
	for _, c := range cases {
		if got := c.def.BaseName(); got != c.want {
			t.Errorf("BaseName(%q) = %q, want %q", c.def.Name, got, c.want)
		}
	}
}

func TestTimeoutForMethodOverride(t *testing.T) {
	cfg := plan.DefaultRunConfig()
	if got := cfg.TimeoutFor("eth_getLogs"); got != 5*time.Minute {
		t.Fatalf("eth_getLogs timeout = %s", got)
	}
	if got := cfg.TimeoutFor("eth_chainId"); got != 30*time.Second {
		t.Fatalf("default timeout = %s", got)
	}
}

func TestValidateCollectsIssues(t *testing.T) {
	p := plan.ExecutionPlan{
		Providers: []plan.Provider{
			{ID: "a", Name: "a", URL: "ftp://example.com"},
			{ID: "a", Name: "dup", URL: "https://example.com"},
		},
		Tests: []plan.TestDefinition{
			{ID: 1, Name: "x", Category: "weird", Label: plan.LabelLatest},
		},
		Config: plan.RunConfig{Rounds: 0},
	}
	err := p.Validate()
	var verr plan.ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
	joined := strings.Join(verr.Issues(), "\n")
	for _, want := range []string{"scheme", "duplicate id", "method is required", "unknown category", "rounds must be at least 1"} {
		if !strings.Contains(joined, want) {
			t.Errorf("missing issue %q in:\n%s", want, joined)
		}
	}
}

func TestValidateAcceptsBattery(t *testing.T) {
	cfg := plan.DefaultRunConfig()
	p := plan.ExecutionPlan{
		Providers: []plan.Provider{{ID: "p1", Name: "one", URL: "https://rpc.example.com"}},
		Tests:     plan.BuildBattery(plan.TestParams{KnownAddress: "0xabc", LogsTokenContract: "0xdef"}, 20_000_000, nil, cfg.LoadConcurrency),
		Config:    cfg,
	}
	if err := p.Validate(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func ids(tests []plan.TestDefinition) []int {
	out := make([]int, len(tests))
	for i, t := range tests {
		out[i] = t.ID
	}
	return out
}

func equalInts(a, b []int) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
