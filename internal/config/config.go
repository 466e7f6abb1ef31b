package config

import (
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/torosent/rpcbench/internal/plan"
	"github.com/torosent/rpcbench/internal/tracing"
)

// Output formats accepted by --output.
const (
	OutputText = "text"
	OutputJSON = "json"
	OutputYAML = "yaml"
	OutputHTML = "html"
)

type ProviderConfig struct {
	ID     string `mapstructure:"id"`
	Name   string `mapstructure:"name"`
	URL    string `mapstructure:"url"`
	Region string `mapstructure:"region"`
}

type Config struct {
	Providers         []ProviderConfig         `mapstructure:"providers"`
	Mode              plan.IterationMode       `mapstructure:"mode"`
	Rounds            int                      `mapstructure:"rounds"` // 0 derives the count from Mode
	Timeout           time.Duration            `mapstructure:"timeout"`
	MethodTimeouts    map[string]time.Duration `mapstructure:"method_timeouts"`
	InterRoundDelay   time.Duration            `mapstructure:"inter_round_delay"`
	InterTestDelay    time.Duration            `mapstructure:"inter_test_delay"`
	LoadCooldown      time.Duration            `mapstructure:"load_cooldown"`
	Categories        []plan.Category          `mapstructure:"categories"`
	Labels            []plan.Label             `mapstructure:"labels"`
	TestIDs           []int                    `mapstructure:"test_ids"`
	Params            plan.TestParams          `mapstructure:"params"`
	Tests             []plan.TestDefinition    `mapstructure:"tests"`
	LoadConcurrency   map[plan.LoadTier]int    `mapstructure:"load_concurrency"`
	Retry             plan.RetryPolicy         `mapstructure:"retry"`
	ParallelProviders bool                     `mapstructure:"parallel_providers"`
	Output            string                   `mapstructure:"output"`
	OutputFile        string                   `mapstructure:"output_file"`
	Dashboard         bool                     `mapstructure:"dashboard"`
	DataDir           string                   `mapstructure:"data_dir"`
	Listen            string                   `mapstructure:"listen"`
	LogLevel          string                   `mapstructure:"log_level"`
	LogFormat         string                   `mapstructure:"log_format"`
	LogErrors         bool                     `mapstructure:"log_errors"`
	Tracing           tracing.Config           `mapstructure:"tracing"`
	ConfigFile        string                   `mapstructure:"-"`
}

// Default returns a Config carrying the defaults of a standard run.
func Default() *Config {
	run := plan.DefaultRunConfig()
	return &Config{
		Mode:            run.Mode,
		Timeout:         run.Timeout,
		MethodTimeouts:  run.MethodTimeouts,
		InterRoundDelay: run.InterRoundDelay,
		InterTestDelay:  run.InterTestDelay,
		LoadCooldown:    run.LoadCooldown,
		LoadConcurrency: run.LoadConcurrency,
		Retry:           run.Retry,
		Output:          OutputText,
		LogLevel:        "info",
		LogFormat:       "text",
		Tracing:         tracing.Config{Protocol: "grpc", SampleRate: 1},
	}
}

// ServeMode reports whether the config asks for the HTTP API instead of a single run.
func (c Config) ServeMode() bool {
	return strings.TrimSpace(c.Listen) != ""
}

// RoundCount resolves the number of rounds per test. An explicit Rounds wins over Mode.
func (c Config) RoundCount() int {
	if c.Rounds > 0 {
		return c.Rounds
	}
	return c.Mode.Rounds()
}

type ValidationError struct {
	issues []string
}

func (e ValidationError) Error() string {
	if len(e.issues) == 0 {
		return "validation failed"
	}
	return fmt.Sprintf("validation failed: %s", strings.Join(e.issues, "; "))
}

func (e ValidationError) Issues() []string {
	return append([]string(nil), e.issues...)
}

// Validate checks the settings a run needs. Providers are optional in serve
// mode, where every submitted job carries its own.
func (c Config) Validate() error {
	var issues []string

	if len(c.Providers) == 0 && !c.ServeMode() {
		issues = append(issues, "at least one provider is required (use --provider name=url or a config file)")
	}
	issues = append(issues, validateProviders(c.Providers)...)

	if c.Mode.Rounds() == 0 {
		issues = append(issues, fmt.Sprintf("unknown mode %q (quick, standard, thorough, statistical)", c.Mode))
	}
	if c.Rounds < 0 {
		issues = append(issues, "rounds must be non-negative")
	}
	if c.Timeout < 0 {
		issues = append(issues, "timeout must be non-negative")
	}
	if c.InterRoundDelay < 0 || c.InterTestDelay < 0 || c.LoadCooldown < 0 {
		issues = append(issues, "delays must be non-negative")
	}
	for method, d := range c.MethodTimeouts {
		if d < 0 {
			issues = append(issues, fmt.Sprintf("method_timeouts[%s] must be non-negative", method))
		}
	}

	for _, cat := range c.Categories {
		switch cat {
		case plan.CategorySimple, plan.CategoryMedium, plan.CategoryComplex, plan.CategoryLoad:
		default:
			issues = append(issues, fmt.Sprintf("unknown category %q", cat))
		}
	}
	for _, label := range c.Labels {
		if label != plan.LabelLatest && label != plan.LabelArchival {
			issues = append(issues, fmt.Sprintf("unknown label %q", label))
		}
	}
	if len(c.Tests) == 0 {
		known := plan.BatteryIDs()
		for _, id := range c.TestIDs {
			if !slices.Contains(known, id) {
				issues = append(issues, fmt.Sprintf("unknown test id %d", id))
			}
		}
	}
	for tier, n := range c.LoadConcurrency {
		if n < 0 {
			issues = append(issues, fmt.Sprintf("load_concurrency[%s] must be non-negative", tier))
		}
	}
	if c.Retry.MaxAttempts < 0 {
		issues = append(issues, "retry max_attempts must be non-negative")
	}

	switch strings.ToLower(c.Output) {
	case "", OutputText, OutputJSON, OutputYAML, OutputHTML:
	default:
		issues = append(issues, fmt.Sprintf("unknown output format %q (text, json, yaml, html)", c.Output))
	}
	if strings.EqualFold(c.Output, OutputHTML) && strings.TrimSpace(c.OutputFile) == "" {
		issues = append(issues, "html output requires --output-file")
	}
	if c.LogLevel != "" {
		if _, err := logrus.ParseLevel(c.LogLevel); err != nil {
			issues = append(issues, err.Error())
		}
	}
	switch strings.ToLower(c.LogFormat) {
	case "", "text", "json":
	default:
		issues = append(issues, fmt.Sprintf("unknown log format %q (text, json)", c.LogFormat))
	}

	switch strings.ToLower(c.Tracing.Protocol) {
	case "", "grpc", "http":
	default:
		issues = append(issues, fmt.Sprintf("tracing protocol must be grpc or http, got %q", c.Tracing.Protocol))
	}
	if c.Tracing.SampleRate < 0 || c.Tracing.SampleRate > 1 {
		issues = append(issues, "tracing sample_rate must be between 0.0 and 1.0")
	}

	if len(issues) > 0 {
		return ValidationError{issues: issues}
	}
	return nil
}

func validateProviders(providers []ProviderConfig) []string {
	var issues []string
	for i, p := range providers {
		if strings.TrimSpace(p.URL) == "" {
			issues = append(issues, fmt.Sprintf("providers[%d]: url is required", i))
		}
	}
	return issues
}
