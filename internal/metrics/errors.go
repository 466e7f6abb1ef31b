package metrics

import (
	"sort"
	"strings"
	"unicode"

	"github.com/torosent/rpcbench/internal/jsonrpc"
)

var friendlyKinds = map[jsonrpc.ErrorKind]string{
	jsonrpc.KindTimeout:           "Timeout",
	jsonrpc.KindRateLimit:         "Rate limited",
	jsonrpc.KindConnection:        "Connection failed",
	jsonrpc.KindInvalidResponse:   "Invalid response",
	jsonrpc.KindUnsupported:       "Method unsupported",
	jsonrpc.KindInvalidParams:     "Invalid params",
	jsonrpc.KindExecutionReverted: "Execution reverted",
	jsonrpc.KindBlockRangeLimit:   "Block range limit",
	jsonrpc.KindRPCError:          "RPC error",
	jsonrpc.KindInternal:          "Internal error",
}

// FriendlyErrorName returns a human-friendly label for an error kind.
func FriendlyErrorName(kind jsonrpc.ErrorKind) string {
	cleaned := jsonrpc.ErrorKind(strings.TrimSpace(strings.ToLower(string(kind))))
	if cleaned == "" {
		return "Unknown error"
	}
	if alias, ok := friendlyKinds[cleaned]; ok {
		return alias
	}
	return humanize(string(cleaned))
}

// humanize turns snake_case or kebab-case into a capitalized phrase.
func humanize(name string) string {
	words := strings.FieldsFunc(name, func(r rune) bool {
		return r == '_' || r == '-' || unicode.IsSpace(r)
	})
	if len(words) == 0 {
		return "Unknown error"
	}
	runes := []rune(words[0])
	runes[0] = unicode.ToUpper(runes[0])
	words[0] = string(runes)
	return strings.Join(words, " ")
}

// ErrorBucket is one row of a flattened error breakdown.
type ErrorBucket struct {
	Kind  jsonrpc.ErrorKind
	Label string
	Count int
}

// FlattenErrorBreakdown converts a kind->count map into rows sorted by
// descending count, then by kind for stability.
func FlattenErrorBreakdown(breakdown map[jsonrpc.ErrorKind]int) []ErrorBucket {
	if len(breakdown) == 0 {
		return nil
	}
	rows := make([]ErrorBucket, 0, len(breakdown))
	for kind, count := range breakdown {
		rows = append(rows, ErrorBucket{Kind: kind, Label: FriendlyErrorName(kind), Count: count})
	}
	sort.Slice(rows, func(i, j int) bool {
		if rows[i].Count == rows[j].Count {
			return rows[i].Kind < rows[j].Kind
		}
		return rows[i].Count > rows[j].Count
	})
	return rows
}
