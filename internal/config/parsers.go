// Package config loads rpcbench settings from config files and command-line
// flags and turns them into an execution plan.
package config

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/torosent/rpcbench/internal/plan"
)

// lookupSetting searches for a value in settings using multiple candidate keys.
// It performs case-insensitive matching by also checking lowercase versions.
func lookupSetting(settings map[string]interface{}, candidates ...string) (interface{}, bool) {
	for _, key := range candidates {
		if val, ok := settings[key]; ok {
			return val, true
		}
		lower := strings.ToLower(key)
		if val, ok := settings[lower]; ok {
			return val, true
		}
	}
	return nil, false
}

func asString(value interface{}) (string, error) {
	switch v := value.(type) {
	case nil:
		return "", nil
	case string:
		return v, nil
	case fmt.Stringer:
		return v.String(), nil
	case []byte:
		return string(v), nil
	default:
		return fmt.Sprint(v), nil
	}
}

// asInt converts numeric values and their string forms to an int.
func asInt(value interface{}) (int, error) {
	switch v := value.(type) {
	case nil:
		return 0, nil
	case int:
		return v, nil
	case int32:
		return int(v), nil
	case int64:
		return int(v), nil
	case uint:
		return int(v), nil
	case uint32:
		return int(v), nil
	case uint64:
		return int(v), nil
	case float32:
		return int(v), nil
	case float64:
		return int(v), nil
	case string:
		if strings.TrimSpace(v) == "" {
			return 0, nil
		}
		return strconv.Atoi(strings.TrimSpace(v))
	default:
		return 0, fmt.Errorf("unsupported numeric type %T", value)
	}
}

// asUint64 accepts decimal numbers and 0x-prefixed hex strings, the two
// forms block numbers show up in.
func asUint64(value interface{}) (uint64, error) {
	if s, ok := value.(string); ok {
		s = strings.TrimSpace(s)
		if s == "" {
			return 0, nil
		}
		if strings.HasPrefix(strings.ToLower(s), "0x") {
			return strconv.ParseUint(s[2:], 16, 64)
		}
		return strconv.ParseUint(s, 10, 64)
	}
	n, err := asInt(value)
	if err != nil {
		return 0, err
	}
	if n < 0 {
		return 0, fmt.Errorf("value %d must be non-negative", n)
	}
	return uint64(n), nil
}

func asFloat64(value interface{}) (float64, error) {
	switch v := value.(type) {
	case nil:
		return 0, nil
	case float64:
		return v, nil
	case float32:
		return float64(v), nil
	case int:
		return float64(v), nil
	case int64:
		return float64(v), nil
	case string:
		if strings.TrimSpace(v) == "" {
			return 0, nil
		}
		return strconv.ParseFloat(strings.TrimSpace(v), 64)
	default:
		return 0, fmt.Errorf("unsupported float type %T", value)
	}
}

func asBool(value interface{}) (bool, error) {
	switch v := value.(type) {
	case nil:
		return false, nil
	case bool:
		return v, nil
	case string:
		if strings.TrimSpace(v) == "" {
			return false, nil
		}
		return strconv.ParseBool(strings.TrimSpace(v))
	default:
		return false, fmt.Errorf("unsupported boolean type %T", value)
	}
}

// asDuration converts an interface value to a time.Duration.
// Strings are parsed with time.ParseDuration; bare numbers are seconds.
func asDuration(value interface{}) (time.Duration, error) {
	switch v := value.(type) {
	case nil:
		return 0, nil
	case time.Duration:
		return v, nil
	case string:
		v = strings.TrimSpace(v)
		if v == "" {
			return 0, nil
		}
		return time.ParseDuration(v)
	case float32:
		return time.Duration(float64(v) * float64(time.Second)), nil
	case float64:
		return time.Duration(v * float64(time.Second)), nil
	case int, int32, int64, uint, uint32, uint64:
		iv, _ := asInt(v)
		return time.Duration(iv) * time.Second, nil
	default:
		return 0, fmt.Errorf("unsupported duration type %T", value)
	}
}

func asDurationMap(value interface{}) (map[string]time.Duration, error) {
	if value == nil {
		return nil, nil
	}
	raw, err := toStringKeyMap(value)
	if err != nil {
		return nil, err
	}
	out := make(map[string]time.Duration, len(raw))
	for k, v := range raw {
		d, err := asDuration(v)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", k, err)
		}
		out[k] = d
	}
	return out, nil
}

// asStringSlice accepts lists and comma-separated strings.
func asStringSlice(value interface{}) ([]string, error) {
	if value == nil {
		return nil, nil
	}
	switch v := value.(type) {
	case []string:
		return v, nil
	case []interface{}:
		result := make([]string, len(v))
		for i, item := range v {
			str, err := asString(item)
			if err != nil {
				return nil, fmt.Errorf("index %d: %w", i, err)
			}
			result[i] = str
		}
		return result, nil
	case string:
		return splitList(v), nil
	default:
		return nil, fmt.Errorf("unsupported string slice type %T", value)
	}
}

func asIntSlice(value interface{}) ([]int, error) {
	if ints, ok := value.([]int); ok {
		return ints, nil
	}
	items, err := asStringSlice(value)
	if err != nil {
		return nil, err
	}
	out := make([]int, 0, len(items))
	for i, item := range items {
		n, err := asInt(item)
		if err != nil {
			return nil, fmt.Errorf("index %d: %w", i, err)
		}
		out = append(out, n)
	}
	return out, nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func toInterfaceSlice(value interface{}) ([]interface{}, error) {
	switch v := value.(type) {
	case nil:
		return nil, nil
	case []interface{}:
		return v, nil
	case []map[string]interface{}:
		items := make([]interface{}, len(v))
		for i := range v {
			items[i] = v[i]
		}
		return items, nil
	default:
		return nil, fmt.Errorf("expected list, got %T", value)
	}
}

// toStringKeyMap converts a map with various key types to map[string]interface{}.
// Keys are normalized to lowercase.
func toStringKeyMap(value interface{}) (map[string]interface{}, error) {
	result := map[string]interface{}{}
	switch v := value.(type) {
	case map[string]interface{}:
		for key, val := range v {
			result[strings.ToLower(strings.TrimSpace(key))] = val
		}
	case map[interface{}]interface{}:
		for key, val := range v {
			str, err := asString(key)
			if err != nil {
				return nil, err
			}
			result[strings.ToLower(strings.TrimSpace(str))] = val
		}
	default:
		return nil, fmt.Errorf("expected map, got %T", value)
	}
	return result, nil
}

// flattenStrings joins nested maps into dotted keys. Viper splits keys such as
// "deployment.environment" into nested maps when reading files.
func flattenStrings(prefix string, value interface{}, out map[string]string) error {
	if value == nil {
		return nil
	}
	switch value.(type) {
	case map[string]interface{}, map[interface{}]interface{}:
		m, err := toStringKeyMap(value)
		if err != nil {
			return err
		}
		for k, v := range m {
			key := k
			if prefix != "" {
				key = prefix + "." + k
			}
			if err := flattenStrings(key, v, out); err != nil {
				return err
			}
		}
		return nil
	}
	if prefix == "" {
		return fmt.Errorf("expected map, got %T", value)
	}
	str, err := asString(value)
	if err != nil {
		return fmt.Errorf("%s: %w", prefix, err)
	}
	out[prefix] = str
	return nil
}

// parseProviderFlag reads the --provider form "name=url". A bare URL is
// accepted and named after its position.
func parseProviderFlag(raw string, index int) (ProviderConfig, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return ProviderConfig{}, fmt.Errorf("provider %d: empty value", index+1)
	}
	name, url, found := strings.Cut(raw, "=")
	if !found || strings.Contains(name, "://") {
		return ProviderConfig{URL: raw}, nil
	}
	name, url = strings.TrimSpace(name), strings.TrimSpace(url)
	if url == "" {
		return ProviderConfig{}, fmt.Errorf("provider %q: url is required", name)
	}
	return ProviderConfig{Name: name, URL: url}, nil
}

func parseProviders(value interface{}) ([]ProviderConfig, error) {
	items, err := toInterfaceSlice(value)
	if err != nil {
		return nil, err
	}
	providers := make([]ProviderConfig, 0, len(items))
	for i, item := range items {
		if s, ok := item.(string); ok {
			p, err := parseProviderFlag(s, i)
			if err != nil {
				return nil, err
			}
			providers = append(providers, p)
			continue
		}
		settings, err := toStringKeyMap(item)
		if err != nil {
			return nil, fmt.Errorf("providers[%d]: %w", i, err)
		}
		var p ProviderConfig
		for _, field := range []struct {
			dst  *string
			keys []string
		}{
			{&p.ID, []string{"id"}},
			{&p.Name, []string{"name"}},
			{&p.URL, []string{"url", "endpoint"}},
			{&p.Region, []string{"region"}},
		} {
			if raw, ok := lookupSetting(settings, field.keys...); ok {
				val, err := asString(raw)
				if err != nil {
					return nil, fmt.Errorf("providers[%d].%s: %w", i, field.keys[0], err)
				}
				*field.dst = strings.TrimSpace(val)
			}
		}
		providers = append(providers, p)
	}
	return providers, nil
}

func parseParams(value interface{}) (plan.TestParams, error) {
	var params plan.TestParams
	settings, err := toStringKeyMap(value)
	if err != nil {
		return params, err
	}
	if raw, ok := lookupSetting(settings, "known_address", "known-address"); ok {
		if params.KnownAddress, err = asString(raw); err != nil {
			return params, fmt.Errorf("known_address: %w", err)
		}
	}
	if raw, ok := lookupSetting(settings, "logs_token_contract", "logs-token-contract"); ok {
		if params.LogsTokenContract, err = asString(raw); err != nil {
			return params, fmt.Errorf("logs_token_contract: %w", err)
		}
	}
	for _, field := range []struct {
		dst  *uint64
		keys []string
	}{
		{&params.ArchivalBlock, []string{"archival_block", "archival-block"}},
		{&params.RecentBlockOffset, []string{"recent_block_offset", "recent-block-offset"}},
		{&params.LogsRangeSmall, []string{"logs_range_small", "logs-range-small"}},
		{&params.LogsRangeLarge, []string{"logs_range_large", "logs-range-large"}},
		{&params.ArchivalLogsStartBlock, []string{"archival_logs_start_block", "archival-logs-start-block"}},
	} {
		if raw, ok := lookupSetting(settings, field.keys...); ok {
			n, err := asUint64(raw)
			if err != nil {
				return params, fmt.Errorf("%s: %w", field.keys[0], err)
			}
			*field.dst = n
		}
	}
	return params, nil
}

// parseTests reads a custom battery that replaces the built-in one.
func parseTests(value interface{}) ([]plan.TestDefinition, error) {
	items, err := toInterfaceSlice(value)
	if err != nil {
		return nil, err
	}
	tests := make([]plan.TestDefinition, 0, len(items))
	for i, item := range items {
		settings, err := toStringKeyMap(item)
		if err != nil {
			return nil, fmt.Errorf("tests[%d]: %w", i, err)
		}
		t := plan.TestDefinition{ID: i + 1, Category: plan.CategorySimple, Label: plan.LabelLatest}
		if raw, ok := lookupSetting(settings, "id"); ok {
			if t.ID, err = asInt(raw); err != nil {
				return nil, fmt.Errorf("tests[%d].id: %w", i, err)
			}
		}
		if raw, ok := lookupSetting(settings, "method"); ok {
			if t.Method, err = asString(raw); err != nil {
				return nil, fmt.Errorf("tests[%d].method: %w", i, err)
			}
		}
		t.Name = t.Method
		if raw, ok := lookupSetting(settings, "name"); ok {
			if t.Name, err = asString(raw); err != nil {
				return nil, fmt.Errorf("tests[%d].name: %w", i, err)
			}
		}
		if raw, ok := lookupSetting(settings, "category"); ok {
			s, _ := asString(raw)
			t.Category = plan.Category(strings.ToLower(strings.TrimSpace(s)))
		}
		if raw, ok := lookupSetting(settings, "label"); ok {
			s, _ := asString(raw)
			t.Label = plan.Label(strings.ToLower(strings.TrimSpace(s)))
		}
		if raw, ok := lookupSetting(settings, "tier"); ok {
			s, _ := asString(raw)
			t.Tier = plan.LoadTier(strings.ToLower(strings.TrimSpace(s)))
		}
		if raw, ok := lookupSetting(settings, "concurrency"); ok {
			if t.Concurrency, err = asInt(raw); err != nil {
				return nil, fmt.Errorf("tests[%d].concurrency: %w", i, err)
			}
		}
		if raw, ok := lookupSetting(settings, "peer"); ok {
			if t.Peer, err = asInt(raw); err != nil {
				return nil, fmt.Errorf("tests[%d].peer: %w", i, err)
			}
		}
		if raw, ok := lookupSetting(settings, "params"); ok && raw != nil {
			list, err := toInterfaceSlice(raw)
			if err != nil {
				return nil, fmt.Errorf("tests[%d].params: %w", i, err)
			}
			t.Params = normalizeParams(list)
		}
		if t.Params == nil {
			t.Params = []any{}
		}
		tests = append(tests, t)
	}
	return tests, nil
}

// rpcFieldNames restores the camelCase JSON-RPC field names viper lowercases.
var rpcFieldNames = map[string]string{
	"fromblock": "fromBlock",
	"toblock":   "toBlock",
	"blockhash": "blockHash",
	"gasprice":  "gasPrice",
}

// normalizeParams converts decoded maps so params marshal as JSON objects.
func normalizeParams(list []interface{}) []any {
	out := make([]any, len(list))
	for i, item := range list {
		out[i] = normalizeValue(item)
	}
	return out
}

func normalizeValue(v interface{}) any {
	switch val := v.(type) {
	case map[interface{}]interface{}:
		m := make(map[string]any, len(val))
		for k, item := range val {
			key := fmt.Sprint(k)
			if name, ok := rpcFieldNames[key]; ok {
				key = name
			}
			m[key] = normalizeValue(item)
		}
		return m
	case map[string]interface{}:
		m := make(map[string]any, len(val))
		for k, item := range val {
			if name, ok := rpcFieldNames[k]; ok {
				k = name
			}
			m[k] = normalizeValue(item)
		}
		return m
	case []interface{}:
		return normalizeParams(val)
	default:
		return val
	}
}

func parseRetry(value interface{}, base plan.RetryPolicy) (plan.RetryPolicy, error) {
	settings, err := toStringKeyMap(value)
	if err != nil {
		return base, err
	}
	if raw, ok := lookupSetting(settings, "max_attempts", "max-attempts"); ok {
		if base.MaxAttempts, err = asInt(raw); err != nil {
			return base, fmt.Errorf("max_attempts: %w", err)
		}
	}
	if raw, ok := lookupSetting(settings, "base_delay", "base-delay"); ok {
		if base.BaseDelay, err = asDuration(raw); err != nil {
			return base, fmt.Errorf("base_delay: %w", err)
		}
	}
	if raw, ok := lookupSetting(settings, "multiplier"); ok {
		if base.Multiplier, err = asFloat64(raw); err != nil {
			return base, fmt.Errorf("multiplier: %w", err)
		}
	}
	if raw, ok := lookupSetting(settings, "max_delay", "max-delay"); ok {
		if base.MaxDelay, err = asDuration(raw); err != nil {
			return base, fmt.Errorf("max_delay: %w", err)
		}
	}
	return base, nil
}

func parseLoadConcurrency(value interface{}) (map[plan.LoadTier]int, error) {
	settings, err := toStringKeyMap(value)
	if err != nil {
		return nil, err
	}
	out := make(map[plan.LoadTier]int, len(settings))
	for tier, raw := range settings {
		n, err := asInt(raw)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", tier, err)
		}
		out[plan.LoadTier(tier)] = n
	}
	return out, nil
}
