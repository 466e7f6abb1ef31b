// Package plan defines the resolved execution plan consumed by the benchmark engine.
package plan

import (
	"slices"
	"sort"
	"strings"
	"time"
)

type Category string

const (
	CategorySimple  Category = "simple"
	CategoryMedium  Category = "medium"
	CategoryComplex Category = "complex"
	CategoryLoad    Category = "load"
)

// categoryOrder is the order sequential tests run in.
var categoryOrder = map[Category]int{
	CategorySimple:  0,
	CategoryMedium:  1,
	CategoryComplex: 2,
	CategoryLoad:    3,
}

type Label string

const (
	LabelLatest   Label = "latest"
	LabelArchival Label = "archival"
)

type RoundType string

const (
	RoundCold      RoundType = "cold"
	RoundWarm      RoundType = "warm"
	RoundSustained RoundType = "sustained"
)

// RoundTypeFor returns the round type of the 1-based round index within a test of total rounds.
// Round 1 is always cold; the last round of a test with at least three rounds is sustained.
func RoundTypeFor(round, total int) RoundType {
	switch {
	case round <= 1:
		return RoundCold
	case total >= 3 && round == total:
		return RoundSustained
	default:
		return RoundWarm
	}
}

type IterationMode string

const (
	ModeQuick       IterationMode = "quick"
	ModeStandard    IterationMode = "standard"
	ModeThorough    IterationMode = "thorough"
	ModeStatistical IterationMode = "statistical"
)

// Rounds returns the round count for the mode, or 0 for an unknown mode.
func (m IterationMode) Rounds() int {
	switch IterationMode(strings.ToLower(string(m))) {
	case ModeQuick:
		return 2
	case ModeStandard, "":
		return 3
	case ModeThorough:
		return 5
	case ModeStatistical:
		return 25
	default:
		return 0
	}
}

// LoadTier selects the configured burst concurrency for a load test.
type LoadTier string

const (
	TierSimple  LoadTier = "simple"
	TierMedium  LoadTier = "medium"
	TierComplex LoadTier = "complex"
)

// TestDefinition is one remote call exercised against every provider.
type TestDefinition struct {
	ID          int      `json:"id" yaml:"id"`
	Name        string   `json:"name" yaml:"name"`
	Base        string   `json:"base,omitempty" yaml:"base,omitempty"`
	Category    Category `json:"category" yaml:"category"`
	Label       Label    `json:"label" yaml:"label"`
	Method      string   `json:"method" yaml:"method"`
	Params      []any    `json:"params" yaml:"params"`
	Concurrency int      `json:"concurrency,omitempty" yaml:"concurrency,omitempty"`
	Tier        LoadTier `json:"tier,omitempty" yaml:"tier,omitempty"`
	// Peer is the id of the sequential test a load test is compared against.
	Peer int `json:"peer,omitempty" yaml:"peer,omitempty"`
}

// IsLoad reports whether the test is executed as a concurrent burst.
func (t TestDefinition) IsLoad() bool {
	return t.Category == CategoryLoad
}

// BaseName groups the latest and archival variants of one call type.
func (t TestDefinition) BaseName() string {
	if t.Base != "" {
		return t.Base
	}
	name := strings.TrimSpace(t.Name)
	for _, suffix := range []string{"(" + string(LabelLatest) + ")", "(" + string(LabelArchival) + ")"} {
		if strings.HasSuffix(name, suffix) {
			return strings.TrimSpace(strings.TrimSuffix(name, suffix))
		}
	}
	return name
}

// Provider is an independently configured endpoint under test.
type Provider struct {
	ID     string `json:"id" yaml:"id"`
	Name   string `json:"name" yaml:"name"`
	URL    string `json:"url" yaml:"url"`
	Region string `json:"region,omitempty" yaml:"region,omitempty"`
}

// RetryPolicy is the serializable form of the caller's backoff policy.
type RetryPolicy struct {
	MaxAttempts int           `json:"max_attempts" yaml:"max_attempts"`
	BaseDelay   time.Duration `json:"base_delay" yaml:"base_delay"`
	Multiplier  float64       `json:"multiplier" yaml:"multiplier"`
	MaxDelay    time.Duration `json:"max_delay" yaml:"max_delay"`
}

// RunConfig holds execution settings shared by every provider.
type RunConfig struct {
	Mode              IterationMode            `json:"mode,omitempty" yaml:"mode,omitempty"`
	Rounds            int                      `json:"rounds" yaml:"rounds"`
	Timeout           time.Duration            `json:"timeout" yaml:"timeout"`
	MethodTimeouts    map[string]time.Duration `json:"method_timeouts,omitempty" yaml:"method_timeouts,omitempty"`
	InterRoundDelay   time.Duration            `json:"inter_round_delay" yaml:"inter_round_delay"`
	InterTestDelay    time.Duration            `json:"inter_test_delay" yaml:"inter_test_delay"`
	LoadCooldown      time.Duration            `json:"load_cooldown" yaml:"load_cooldown"`
	Categories        []Category               `json:"categories,omitempty" yaml:"categories,omitempty"`
	Labels            []Label                  `json:"labels,omitempty" yaml:"labels,omitempty"`
	LoadConcurrency   map[LoadTier]int         `json:"load_concurrency,omitempty" yaml:"load_concurrency,omitempty"`
	Retry             RetryPolicy              `json:"retry" yaml:"retry"`
	ParallelProviders bool                     `json:"parallel_providers,omitempty" yaml:"parallel_providers,omitempty"`
}

const (
	DefaultTimeout         = 30 * time.Second
	DefaultGetLogsTimeout  = 5 * time.Minute
	DefaultInterTestDelay  = 100 * time.Millisecond
	DefaultInterRoundDelay = 2 * time.Second
	DefaultLoadCooldown    = 2 * time.Second
	DefaultConcurrency     = 50
)

// DefaultRunConfig mirrors the defaults of a standard run.
func DefaultRunConfig() RunConfig {
	return RunConfig{
		Mode:            ModeStandard,
		Rounds:          ModeStandard.Rounds(),
		Timeout:         DefaultTimeout,
		MethodTimeouts:  map[string]time.Duration{"eth_getLogs": DefaultGetLogsTimeout},
		InterRoundDelay: DefaultInterRoundDelay,
		InterTestDelay:  DefaultInterTestDelay,
		LoadCooldown:    DefaultLoadCooldown,
		Categories:      []Category{CategorySimple, CategoryMedium, CategoryComplex, CategoryLoad},
		Labels:          []Label{LabelLatest, LabelArchival},
		LoadConcurrency: map[LoadTier]int{TierSimple: 50, TierMedium: 50, TierComplex: 25},
		Retry: RetryPolicy{
			MaxAttempts: 3,
			BaseDelay:   250 * time.Millisecond,
			Multiplier:  2,
			MaxDelay:    5 * time.Second,
		},
	}
}

// TimeoutFor returns the per-call timeout for a method.
func (c RunConfig) TimeoutFor(method string) time.Duration {
	if d, ok := c.MethodTimeouts[method]; ok && d > 0 {
		return d
	}
	if c.Timeout > 0 {
		return c.Timeout
	}
	return DefaultTimeout
}

// Allows reports whether the category and label filters admit a test.
// Empty filters admit everything.
func (c RunConfig) Allows(t TestDefinition) bool {
	if len(c.Categories) > 0 && !slices.Contains(c.Categories, t.Category) {
		return false
	}
	if len(c.Labels) > 0 && !slices.Contains(c.Labels, t.Label) {
		return false
	}
	return true
}

// ConcurrencyFor resolves the burst size of a load test.
func (c RunConfig) ConcurrencyFor(t TestDefinition) int {
	if t.Concurrency > 0 {
		return t.Concurrency
	}
	if n, ok := c.LoadConcurrency[t.Tier]; ok && n > 0 {
		return n
	}
	return DefaultConcurrency
}

// ExecutionPlan is the fully resolved input of a benchmark run.
type ExecutionPlan struct {
	Providers []Provider       `json:"providers" yaml:"providers"`
	Tests     []TestDefinition `json:"tests" yaml:"tests"`
	Config    RunConfig        `json:"config" yaml:"config"`
}

// SequentialTests returns the enabled non-load tests ordered simple, medium, complex.
// The order within a category follows plan order.
func (p ExecutionPlan) SequentialTests() []TestDefinition {
	var out []TestDefinition
	for _, t := range p.Tests {
		if !t.IsLoad() && p.Config.Allows(t) {
			out = append(out, t)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return categoryOrder[out[i].Category] < categoryOrder[out[j].Category]
	})
	return out
}

// LoadTests returns the enabled load tests in plan order.
func (p ExecutionPlan) LoadTests() []TestDefinition {
	var out []TestDefinition
	for _, t := range p.Tests {
		if t.IsLoad() && p.Config.Allows(t) {
			out = append(out, t)
		}
	}
	return out
}

// Test looks up a test definition by id.
func (p ExecutionPlan) Test(id int) (TestDefinition, bool) {
	for _, t := range p.Tests {
		if t.ID == id {
			return t, true
		}
	}
	return TestDefinition{}, false
}
