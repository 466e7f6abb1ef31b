// Command fakerpc serves a local JSON-RPC endpoint with a simulated response
// cache, for trying rpcbench without a real provider.
package main

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/spf13/pflag"
	"github.com/tidwall/gjson"
)

type server struct {
	cold        time.Duration
	warm        time.Duration
	limitEvery  int64
	unsupported []string
	head        atomic.Uint64
	calls       atomic.Int64

	mu   sync.Mutex
	seen map[string]bool
}

func main() {
	port := pflag.Int("port", 8545, "Listening port")
	cold := pflag.Duration("cold-latency", 120*time.Millisecond, "Latency of the first call for a method and params")
	warm := pflag.Duration("warm-latency", 15*time.Millisecond, "Latency of repeated calls")
	limitEvery := pflag.Int64("rate-limit-every", 0, "Answer every Nth call with HTTP 429 (0 disables)")
	unsupported := pflag.StringSlice("unsupported", nil, "Methods answered with -32601")
	head := pflag.Uint64("head", 19_000_000, "Initial block number, advanced once per second")
	pflag.Parse()

	s := &server{
		cold:        *cold,
		warm:        *warm,
		limitEvery:  *limitEvery,
		unsupported: *unsupported,
		seen:        make(map[string]bool),
	}
	s.head.Store(*head)
	go func() {
		for range time.Tick(time.Second) {
			s.head.Add(1)
		}
	}()

	addr := fmt.Sprintf(":%d", *port)
	logrus.WithField("addr", addr).Info("fake JSON-RPC provider listening")
	if err := http.ListenAndServe(addr, s); err != nil {
		logrus.WithError(err).Error("server stopped")
		os.Exit(1)
	}
}

func (s *server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	body, err := io.ReadAll(io.LimitReader(r.Body, 1<<20))
	if err != nil {
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	n := s.calls.Add(1)
	if s.limitEvery > 0 && n%s.limitEvery == 0 {
		http.Error(w, `{"error":"too many requests"}`, http.StatusTooManyRequests)
		return
	}

	method := gjson.GetBytes(body, "method").String()
	id := gjson.GetBytes(body, "id").Value()
	if slices.Contains(s.unsupported, method) {
		respond(w, id, nil, map[string]any{"code": -32601, "message": "the method " + method + " does not exist/is not available"})
		return
	}

	key := method + gjson.GetBytes(body, "params").Raw
	s.mu.Lock()
	warm := s.seen[key]
	s.seen[key] = true
	s.mu.Unlock()
	if warm {
		time.Sleep(s.warm)
	} else {
		time.Sleep(s.cold)
	}

	respond(w, id, s.result(method), nil)
}

func (s *server) result(method string) any {
	switch method {
	case "eth_blockNumber":
		return fmt.Sprintf("0x%x", s.head.Load())
	case "eth_chainId":
		return "0x1"
	case "eth_gasPrice":
		return "0x3b9aca00"
	case "eth_getBalance":
		return "0xde0b6b3a7640000"
	case "eth_getLogs":
		return []any{}
	case "eth_getBlockByNumber":
		return map[string]any{"number": fmt.Sprintf("0x%x", s.head.Load()), "transactions": []any{}}
	default:
		return nil
	}
}

func respond(w http.ResponseWriter, id any, result any, rpcErr map[string]any) {
	payload := map[string]any{"jsonrpc": "2.0", "id": id}
	if rpcErr != nil {
		payload["error"] = rpcErr
	} else {
		payload["result"] = result
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(payload)
}
