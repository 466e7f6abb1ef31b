package plan

import (
	"fmt"
	"strings"
)

// TransferTopic is the keccak hash of the ERC20 Transfer event signature.
const TransferTopic = "0xddf252ad1be2c89b69c2b068fc378daa952ba7f163c4a11628f55a4df523b3ef"

// TestParams are the chain-specific values substituted into the battery.
type TestParams struct {
	KnownAddress           string `json:"known_address" yaml:"known_address"`
	ArchivalBlock          uint64 `json:"archival_block" yaml:"archival_block"`
	RecentBlockOffset      uint64 `json:"recent_block_offset" yaml:"recent_block_offset"`
	LogsTokenContract      string `json:"logs_token_contract" yaml:"logs_token_contract"`
	LogsRangeSmall         uint64 `json:"logs_range_small" yaml:"logs_range_small"`
	LogsRangeLarge         uint64 `json:"logs_range_large" yaml:"logs_range_large"`
	ArchivalLogsStartBlock uint64 `json:"archival_logs_start_block" yaml:"archival_logs_start_block"`
}

// WithDefaults fills the optional offsets and ranges.
func (p TestParams) WithDefaults() TestParams {
	if p.RecentBlockOffset == 0 {
		p.RecentBlockOffset = 100
	}
	if p.LogsRangeSmall == 0 {
		p.LogsRangeSmall = 1000
	}
	if p.LogsRangeLarge == 0 {
		p.LogsRangeLarge = 10000
	}
	return p
}

// logsHeadOffset keeps the recent getLogs window slightly behind the head.
const logsHeadOffset = 10

type template struct {
	id       int
	name     string
	base     string
	category Category
	label    Label
	method   string
	params   []any
	tier     LoadTier
	peer     int
	logs     string // "small" or "large" for getLogs windows shown in the name
}

func logsFilter(from, to string) []any {
	return []any{map[string]any{
		"address":   "{logs_token_contract}",
		"fromBlock": from,
		"toBlock":   to,
		"topics":    []any{"{transfer_topic}"},
	}}
}

func templates() []template {
	return []template{
		{id: 1, name: "eth_blockNumber", category: CategorySimple, label: LabelLatest, method: "eth_blockNumber", params: []any{}},
		{id: 2, name: "eth_chainId", category: CategorySimple, label: LabelLatest, method: "eth_chainId", params: []any{}},
		{id: 3, name: "eth_gasPrice", category: CategorySimple, label: LabelLatest, method: "eth_gasPrice", params: []any{}},
		{id: 4, name: "eth_getBalance (latest)", base: "eth_getBalance", category: CategorySimple, label: LabelLatest, method: "eth_getBalance",
			params: []any{"{known_address}", "latest"}},
		{id: 5, name: "eth_getBalance (archival)", base: "eth_getBalance", category: CategorySimple, label: LabelArchival, method: "eth_getBalance",
			params: []any{"{known_address}", "{archival_block_hex}"}},
		{id: 6, name: "eth_getBlockByNumber (latest)", base: "eth_getBlockByNumber", category: CategoryMedium, label: LabelLatest, method: "eth_getBlockByNumber",
			params: []any{"{recent_block_hex}", true}},
		{id: 7, name: "eth_getBlockByNumber (archival)", base: "eth_getBlockByNumber", category: CategoryMedium, label: LabelArchival, method: "eth_getBlockByNumber",
			params: []any{"{archival_block_hex}", true}},
		{id: 8, name: "eth_getLogs small range (latest)", base: "eth_getLogs small range", category: CategoryComplex, label: LabelLatest, method: "eth_getLogs",
			params: logsFilter("{logs_recent_start_hex}", "{logs_recent_end_hex}"), logs: "small"},
		{id: 9, name: "eth_getLogs small range (archival)", base: "eth_getLogs small range", category: CategoryComplex, label: LabelArchival, method: "eth_getLogs",
			params: logsFilter("{logs_archival_start_hex}", "{logs_archival_end_small_hex}"), logs: "small"},
		{id: 10, name: "eth_getLogs large range (latest)", base: "eth_getLogs large range", category: CategoryComplex, label: LabelLatest, method: "eth_getLogs",
			params: logsFilter("{logs_recent_start_large_hex}", "{logs_recent_end_hex}"), logs: "large"},
		{id: 11, name: "eth_getLogs large range (archival)", base: "eth_getLogs large range", category: CategoryComplex, label: LabelArchival, method: "eth_getLogs",
			params: logsFilter("{logs_archival_start_hex}", "{logs_archival_end_large_hex}"), logs: "large"},
		{id: 12, name: "eth_blockNumber burst", category: CategoryLoad, label: LabelLatest, method: "eth_blockNumber",
			params: []any{}, tier: TierSimple, peer: 1},
		{id: 13, name: "eth_getLogs burst", category: CategoryLoad, label: LabelLatest, method: "eth_getLogs",
			params: logsFilter("{logs_recent_start_hex}", "{logs_recent_end_hex}"), tier: TierComplex, peer: 8},
	}
}

// BatteryIDs lists the ids of the built-in tests in execution-independent order.
func BatteryIDs() []int {
	tpls := templates()
	ids := make([]int, len(tpls))
	for i, t := range tpls {
		ids[i] = t.id
	}
	return ids
}

// BuildBattery resolves the built-in test battery against a chain head.
// A nil enabled set keeps every test.
func BuildBattery(params TestParams, head uint64, enabled []int, loadConcurrency map[LoadTier]int) []TestDefinition {
	params = params.WithDefaults()

	recentBlock := saturatingSub(head, params.RecentBlockOffset)
	logsRecentEnd := saturatingSub(head, logsHeadOffset)
	logsRecentStartSmall := saturatingSub(logsRecentEnd, params.LogsRangeSmall)
	logsRecentStartLarge := saturatingSub(logsRecentEnd, params.LogsRangeLarge)
	logsArchivalStart := params.ArchivalLogsStartBlock
	logsArchivalEndSmall := logsArchivalStart + params.LogsRangeSmall
	logsArchivalEndLarge := logsArchivalStart + params.LogsRangeLarge

	subs := map[string]string{
		"known_address":               params.KnownAddress,
		"archival_block_hex":          toHex(params.ArchivalBlock),
		"recent_block_hex":            toHex(recentBlock),
		"logs_token_contract":         params.LogsTokenContract,
		"transfer_topic":              TransferTopic,
		"logs_recent_start_hex":       toHex(logsRecentStartSmall),
		"logs_recent_start_large_hex": toHex(logsRecentStartLarge),
		"logs_recent_end_hex":         toHex(logsRecentEnd),
		"logs_archival_start_hex":     toHex(logsArchivalStart),
		"logs_archival_end_small_hex": toHex(logsArchivalEndSmall),
		"logs_archival_end_large_hex": toHex(logsArchivalEndLarge),
	}

	windows := map[int][2]uint64{
		8:  {logsRecentStartSmall, logsRecentEnd},
		9:  {logsArchivalStart, logsArchivalEndSmall},
		10: {logsRecentStartLarge, logsRecentEnd},
		11: {logsArchivalStart, logsArchivalEndLarge},
	}

	var keep map[int]bool
	if enabled != nil {
		keep = make(map[int]bool, len(enabled))
		for _, id := range enabled {
			keep[id] = true
		}
	}

	var tests []TestDefinition
	for _, tpl := range templates() {
		if keep != nil && !keep[tpl.id] {
			continue
		}
		name := tpl.name
		if w, ok := windows[tpl.id]; ok && tpl.logs != "" {
			name = strings.Replace(name, tpl.logs+" range", fmt.Sprintf("[%d→%d]", w[0], w[1]), 1)
		}
		def := TestDefinition{
			ID:       tpl.id,
			Name:     name,
			Base:     tpl.base,
			Category: tpl.category,
			Label:    tpl.label,
			Method:   tpl.method,
			Params:   Substitute(tpl.params, subs).([]any),
			Tier:     tpl.tier,
			Peer:     tpl.peer,
		}
		if def.IsLoad() {
			def.Concurrency = DefaultConcurrency
			if n, ok := loadConcurrency[tpl.tier]; ok && n > 0 {
				def.Concurrency = n
			}
		}
		tests = append(tests, def)
	}
	return tests
}

// Substitute replaces "{key}" string leaves in a nested template.
// Unknown keys are left untouched.
func Substitute(tpl any, subs map[string]string) any {
	switch v := tpl.(type) {
	case string:
		if strings.HasPrefix(v, "{") && strings.HasSuffix(v, "}") {
			if val, ok := subs[v[1:len(v)-1]]; ok {
				return val
			}
		}
		return v
	case []any:
		out := make([]any, len(v))
		for i, item := range v {
			out[i] = Substitute(item, subs)
		}
		return out
	case map[string]any:
		out := make(map[string]any, len(v))
		for k, item := range v {
			out[k] = Substitute(item, subs)
		}
		return out
	default:
		return v
	}
}

func toHex(v uint64) string {
	return fmt.Sprintf("0x%x", v)
}

func saturatingSub(a, b uint64) uint64 {
	if b > a {
		return 0
	}
	return a - b
}
