package config

import (
	"bytes"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/torosent/rpcbench/internal/plan"
)

// Loader handles loading configuration from files and command-line arguments.
type Loader struct{}

// ErrHelpRequested is returned when the user requests help via --help flag.
var ErrHelpRequested = errors.New("help requested")

func NewLoader() *Loader {
	return &Loader{}
}

// Load parses command-line arguments and the optional config file they name.
// Flags override file settings.
func (Loader) Load(args []string) (*Config, error) {
	cmd := newFlagCommand()
	if err := cmd.Flags().Parse(args); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			displayHelp(cmd)
			return nil, ErrHelpRequested
		}
		return nil, err
	}

	flagSet := cmd.Flags()
	if helpFlag := flagSet.Lookup("help"); helpFlag != nil {
		if wantsHelp, err := strconv.ParseBool(helpFlag.Value.String()); err == nil && wantsHelp {
			displayHelp(cmd)
			return nil, ErrHelpRequested
		}
	}

	configPath := flagSet.Lookup("config").Value.String()
	if len(args) == 0 && configPath == "" {
		displayHelp(cmd)
		return nil, ErrHelpRequested
	}
	cfgViper := viper.New()
	if configPath != "" {
		cfgViper.SetConfigFile(configPath)
		if err := cfgViper.ReadInConfig(); err != nil {
			return nil, err
		}
	}

	cfg := Default()
	cfg.ConfigFile = configPath
	if err := applyConfigSettings(cfg, cfgViper.AllSettings()); err != nil {
		return nil, err
	}
	if err := applyFlagOverrides(cfg, flagSet); err != nil {
		return nil, err
	}
	normalize(cfg)
	return cfg, nil
}

// Parse reads a config document in the given format ("json" or "yaml").
// The HTTP API uses it for submitted job bodies.
func Parse(data []byte, format string) (*Config, error) {
	if format == "" {
		format = "json"
	}
	cfgViper := viper.New()
	cfgViper.SetConfigType(format)
	if err := cfgViper.ReadConfig(bytes.NewReader(data)); err != nil {
		return nil, fmt.Errorf("parse %s config: %w", format, err)
	}
	cfg := Default()
	if err := applyConfigSettings(cfg, cfgViper.AllSettings()); err != nil {
		return nil, err
	}
	normalize(cfg)
	return cfg, nil
}

func normalize(cfg *Config) {
	cfg.Mode = plan.IterationMode(strings.ToLower(strings.TrimSpace(string(cfg.Mode))))
	cfg.Output = strings.ToLower(strings.TrimSpace(cfg.Output))
	cfg.LogFormat = strings.ToLower(strings.TrimSpace(cfg.LogFormat))
	for i := range cfg.Providers {
		cfg.Providers[i].URL = strings.TrimSpace(cfg.Providers[i].URL)
	}
}

// applyConfigSettings applies settings from a config file to the Config struct.
func applyConfigSettings(cfg *Config, settings map[string]interface{}) error {
	if len(settings) == 0 {
		return nil
	}

	if raw, ok := lookupSetting(settings, "providers"); ok {
		providers, err := parseProviders(raw)
		if err != nil {
			return fmt.Errorf("providers: %w", err)
		}
		cfg.Providers = providers
	}

	if raw, ok := lookupSetting(settings, "mode", "iteration_mode"); ok {
		val, err := asString(raw)
		if err != nil {
			return fmt.Errorf("mode: %w", err)
		}
		if val != "" {
			cfg.Mode = plan.IterationMode(val)
		}
	}

	if raw, ok := lookupSetting(settings, "rounds"); ok {
		val, err := asInt(raw)
		if err != nil {
			return fmt.Errorf("rounds: %w", err)
		}
		cfg.Rounds = val
	}

	durations := []struct {
		dst  *time.Duration
		keys []string
	}{
		{&cfg.Timeout, []string{"timeout", "request_timeout"}},
		{&cfg.InterRoundDelay, []string{"inter_round_delay", "round_delay"}},
		{&cfg.InterTestDelay, []string{"inter_test_delay", "test_delay"}},
		{&cfg.LoadCooldown, []string{"load_cooldown", "cooldown"}},
	}
	for _, field := range durations {
		if raw, ok := lookupSetting(settings, field.keys...); ok {
			val, err := asDuration(raw)
			if err != nil {
				return fmt.Errorf("%s: %w", field.keys[0], err)
			}
			*field.dst = val
		}
	}

	if raw, ok := lookupSetting(settings, "method_timeouts"); ok {
		val, err := asDurationMap(raw)
		if err != nil {
			return fmt.Errorf("method_timeouts: %w", err)
		}
		if cfg.MethodTimeouts == nil {
			cfg.MethodTimeouts = map[string]time.Duration{}
		}
		for k, v := range val {
			cfg.MethodTimeouts[k] = v
		}
	}

	if raw, ok := lookupSetting(settings, "categories", "category"); ok {
		vals, err := asStringSlice(raw)
		if err != nil {
			return fmt.Errorf("categories: %w", err)
		}
		cfg.Categories = toCategories(vals)
	}

	if raw, ok := lookupSetting(settings, "labels", "label"); ok {
		vals, err := asStringSlice(raw)
		if err != nil {
			return fmt.Errorf("labels: %w", err)
		}
		cfg.Labels = toLabels(vals)
	}

	if raw, ok := lookupSetting(settings, "test_ids", "tests_enabled"); ok {
		ids, err := asIntSlice(raw)
		if err != nil {
			return fmt.Errorf("test_ids: %w", err)
		}
		cfg.TestIDs = ids
	}

	if raw, ok := lookupSetting(settings, "params", "test_params"); ok {
		params, err := parseParams(raw)
		if err != nil {
			return fmt.Errorf("params: %w", err)
		}
		cfg.Params = params
	}

	if raw, ok := lookupSetting(settings, "tests"); ok {
		tests, err := parseTests(raw)
		if err != nil {
			return fmt.Errorf("tests: %w", err)
		}
		cfg.Tests = tests
	}

	if raw, ok := lookupSetting(settings, "load_concurrency"); ok {
		tiers, err := parseLoadConcurrency(raw)
		if err != nil {
			return fmt.Errorf("load_concurrency: %w", err)
		}
		for tier, n := range tiers {
			cfg.LoadConcurrency[tier] = n
		}
	}

	if raw, ok := lookupSetting(settings, "retry"); ok {
		retry, err := parseRetry(raw, cfg.Retry)
		if err != nil {
			return fmt.Errorf("retry: %w", err)
		}
		cfg.Retry = retry
	}

	bools := []struct {
		dst  *bool
		keys []string
	}{
		{&cfg.ParallelProviders, []string{"parallel_providers", "parallel"}},
		{&cfg.Dashboard, []string{"dashboard"}},
		{&cfg.LogErrors, []string{"log_errors"}},
	}
	for _, field := range bools {
		if raw, ok := lookupSetting(settings, field.keys...); ok {
			val, err := asBool(raw)
			if err != nil {
				return fmt.Errorf("%s: %w", field.keys[0], err)
			}
			*field.dst = val
		}
	}

	strs := []struct {
		dst  *string
		keys []string
	}{
		{&cfg.Output, []string{"output", "output_format"}},
		{&cfg.OutputFile, []string{"output_file"}},
		{&cfg.DataDir, []string{"data_dir"}},
		{&cfg.Listen, []string{"listen"}},
		{&cfg.LogLevel, []string{"log_level"}},
		{&cfg.LogFormat, []string{"log_format"}},
	}
	for _, field := range strs {
		if raw, ok := lookupSetting(settings, field.keys...); ok {
			val, err := asString(raw)
			if err != nil {
				return fmt.Errorf("%s: %w", field.keys[0], err)
			}
			if val != "" {
				*field.dst = strings.TrimSpace(val)
			}
		}
	}

	if raw, ok := lookupSetting(settings, "tracing"); ok {
		if err := applyTracingSettings(cfg, raw); err != nil {
			return fmt.Errorf("tracing: %w", err)
		}
	}

	return nil
}

func applyTracingSettings(cfg *Config, value interface{}) error {
	settings, err := toStringKeyMap(value)
	if err != nil {
		return err
	}
	if raw, ok := lookupSetting(settings, "endpoint"); ok {
		if cfg.Tracing.Endpoint, err = asString(raw); err != nil {
			return fmt.Errorf("endpoint: %w", err)
		}
	}
	if raw, ok := lookupSetting(settings, "protocol"); ok {
		if cfg.Tracing.Protocol, err = asString(raw); err != nil {
			return fmt.Errorf("protocol: %w", err)
		}
	}
	if raw, ok := lookupSetting(settings, "service_name"); ok {
		if cfg.Tracing.ServiceName, err = asString(raw); err != nil {
			return fmt.Errorf("service_name: %w", err)
		}
	}
	if raw, ok := lookupSetting(settings, "sample_rate"); ok {
		if cfg.Tracing.SampleRate, err = asFloat64(raw); err != nil {
			return fmt.Errorf("sample_rate: %w", err)
		}
	}
	if raw, ok := lookupSetting(settings, "insecure"); ok {
		if cfg.Tracing.Insecure, err = asBool(raw); err != nil {
			return fmt.Errorf("insecure: %w", err)
		}
	}
	if raw, ok := lookupSetting(settings, "propagate"); ok {
		if cfg.Tracing.Propagate, err = asBool(raw); err != nil {
			return fmt.Errorf("propagate: %w", err)
		}
	}
	if raw, ok := lookupSetting(settings, "resource_attributes"); ok {
		attrs := map[string]string{}
		if err := flattenStrings("", raw, attrs); err != nil {
			return fmt.Errorf("resource_attributes: %w", err)
		}
		cfg.Tracing.ResourceAttributes = attrs
	}
	return nil
}

func toCategories(vals []string) []plan.Category {
	out := make([]plan.Category, 0, len(vals))
	for _, v := range vals {
		out = append(out, plan.Category(strings.ToLower(strings.TrimSpace(v))))
	}
	return out
}

func toLabels(vals []string) []plan.Label {
	out := make([]plan.Label, 0, len(vals))
	for _, v := range vals {
		out = append(out, plan.Label(strings.ToLower(strings.TrimSpace(v))))
	}
	return out
}
