package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/torosent/rpcbench/internal/plan"
)

// RegisterFlags registers all CLI flags to a cobra command.
func RegisterFlags(cmd *cobra.Command) {
	configureFlags(cmd.Flags())
}

func newFlagCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "rpcbench",
		Short:         "Benchmark JSON-RPC providers for latency, caching and load behavior",
		SilenceErrors: true,
		SilenceUsage:  true,
	}
	cmd.SetOut(os.Stdout)
	configureFlags(cmd.Flags())
	return cmd
}

func configureFlags(flags *pflag.FlagSet) {
	flags.String("config", "", "Path to configuration file (JSON or YAML)")
	flags.StringArray("provider", nil, "Provider under test in name=url form (repeatable)")

	// Run shape
	flags.String("mode", string(plan.ModeStandard), "Iteration mode: quick, standard, thorough or statistical")
	flags.Int("rounds", 0, "Rounds per test (overrides --mode)")
	flags.Duration("timeout", plan.DefaultTimeout, "Per-call timeout")
	flags.Duration("inter-round-delay", plan.DefaultInterRoundDelay, "Pause between rounds of one test")
	flags.Duration("inter-test-delay", plan.DefaultInterTestDelay, "Pause between tests")
	flags.Duration("load-cooldown", plan.DefaultLoadCooldown, "Pause between load bursts")
	flags.StringSlice("category", nil, "Only run these categories (simple, medium, complex, load)")
	flags.StringSlice("label", nil, "Only run these labels (latest, archival)")
	flags.IntSlice("tests", nil, "Only run these test ids (e.g. 1,2,12)")
	flags.Int("retries", 0, "Attempts per call including the first when rate limited (0 keeps the default)")
	flags.Bool("parallel", false, "Benchmark providers concurrently")

	// Output
	flags.StringP("output", "o", OutputText, "Report format: text, json, yaml or html")
	flags.String("output-file", "", "Write the report to this file instead of stdout")
	flags.Bool("dashboard", false, "Show live terminal dashboard")
	flags.Bool("log-errors", false, "Log each failed call")
	flags.String("log-level", "info", "Log level (debug, info, warn, error)")
	flags.String("log-format", "text", "Log format: text or json")

	// Persistence and serve mode
	flags.String("data-dir", "", "Directory holding the results database")
	flags.String("listen", "", "Serve the HTTP API on this address instead of running once (e.g. :8420)")

	// Tracing
	flags.String("tracing-endpoint", "", "OTLP collector endpoint")
	flags.String("tracing-protocol", "grpc", "OTLP protocol: grpc or http")
	flags.Float64("tracing-sample-rate", 1, "Fraction of calls traced")
	flags.Bool("tracing-insecure", false, "Disable TLS to the collector")
	flags.Bool("tracing-propagate", false, "Send W3C trace context headers to providers")
}

func displayHelp(cmd *cobra.Command) {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Usage: %s\n\n%s\n\nFlags:\n", cmd.UseLine(), cmd.Short)
	fs := cmd.Flags()
	fs.SetOutput(out)
	fs.PrintDefaults()
}

// applyFlagOverrides applies command-line flag values to the config, overriding
// values from the config file.
func applyFlagOverrides(cfg *Config, fs *pflag.FlagSet) error {
	if fs.Changed("provider") {
		vals, err := fs.GetStringArray("provider")
		if err != nil {
			return err
		}
		providers := make([]ProviderConfig, 0, len(vals))
		for i, v := range vals {
			p, err := parseProviderFlag(v, i)
			if err != nil {
				return err
			}
			providers = append(providers, p)
		}
		cfg.Providers = providers
	}

	if fs.Changed("mode") {
		val, err := fs.GetString("mode")
		if err != nil {
			return err
		}
		cfg.Mode = plan.IterationMode(val)
		// An explicit mode drops a round count inherited from the file.
		if !fs.Changed("rounds") {
			cfg.Rounds = 0
		}
	}
	if fs.Changed("rounds") {
		val, err := fs.GetInt("rounds")
		if err != nil {
			return err
		}
		cfg.Rounds = val
	}

	durations := []struct {
		name string
		dst  *time.Duration
	}{
		{"timeout", &cfg.Timeout},
		{"inter-round-delay", &cfg.InterRoundDelay},
		{"inter-test-delay", &cfg.InterTestDelay},
		{"load-cooldown", &cfg.LoadCooldown},
	}
	for _, d := range durations {
		if !fs.Changed(d.name) {
			continue
		}
		val, err := fs.GetDuration(d.name)
		if err != nil {
			return err
		}
		*d.dst = val
	}

	if fs.Changed("category") {
		vals, err := fs.GetStringSlice("category")
		if err != nil {
			return err
		}
		cfg.Categories = toCategories(vals)
	}
	if fs.Changed("label") {
		vals, err := fs.GetStringSlice("label")
		if err != nil {
			return err
		}
		cfg.Labels = toLabels(vals)
	}
	if fs.Changed("tests") {
		vals, err := fs.GetIntSlice("tests")
		if err != nil {
			return err
		}
		cfg.TestIDs = vals
	}
	if fs.Changed("retries") {
		val, err := fs.GetInt("retries")
		if err != nil {
			return err
		}
		if val > 0 {
			cfg.Retry.MaxAttempts = val
		}
	}

	bools := []struct {
		name string
		dst  *bool
	}{
		{"parallel", &cfg.ParallelProviders},
		{"dashboard", &cfg.Dashboard},
		{"log-errors", &cfg.LogErrors},
		{"tracing-insecure", &cfg.Tracing.Insecure},
		{"tracing-propagate", &cfg.Tracing.Propagate},
	}
	for _, b := range bools {
		if !fs.Changed(b.name) {
			continue
		}
		val, err := fs.GetBool(b.name)
		if err != nil {
			return err
		}
		*b.dst = val
	}

	strs := []struct {
		name string
		dst  *string
	}{
		{"output", &cfg.Output},
		{"output-file", &cfg.OutputFile},
		{"log-level", &cfg.LogLevel},
		{"log-format", &cfg.LogFormat},
		{"data-dir", &cfg.DataDir},
		{"listen", &cfg.Listen},
		{"tracing-endpoint", &cfg.Tracing.Endpoint},
		{"tracing-protocol", &cfg.Tracing.Protocol},
	}
	for _, s := range strs {
		if !fs.Changed(s.name) {
			continue
		}
		val, err := fs.GetString(s.name)
		if err != nil {
			return err
		}
		*s.dst = strings.TrimSpace(val)
	}

	if fs.Changed("tracing-sample-rate") {
		val, err := fs.GetFloat64("tracing-sample-rate")
		if err != nil {
			return err
		}
		cfg.Tracing.SampleRate = val
	}

	return nil
}
