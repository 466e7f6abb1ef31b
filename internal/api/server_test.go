package api

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/torosent/rpcbench/internal/jsonrpc"
	"github.com/torosent/rpcbench/internal/plan"
	"github.com/torosent/rpcbench/internal/progress"
	"github.com/torosent/rpcbench/internal/runner"
	"github.com/torosent/rpcbench/internal/store"
)

type harness struct {
	manager *Manager
	store   *store.SQLiteStore
	server  *httptest.Server
	calls   *atomic.Int64
}

func newHarness(t *testing.T, caller jsonrpc.Caller) *harness {
	t.Helper()
	st, err := store.NewSQLiteStore(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	var calls atomic.Int64
	if caller == nil {
		caller = jsonrpc.CallerFunc(func(context.Context, jsonrpc.Request) jsonrpc.Outcome {
			calls.Add(1)
			return jsonrpc.Outcome{Success: true, Latency: 5 * time.Millisecond}
		})
	}

	logger := logrus.New()
	logger.SetOutput(io.Discard)
	m := NewManager(st, InstrumentCaller(caller), logrus.NewEntry(logger))
	build := func(_ context.Context, body []byte) (plan.ExecutionPlan, error) {
		var p plan.ExecutionPlan
		err := json.Unmarshal(body, &p)
		return p, err
	}
	srv := NewServer("127.0.0.1:0", m, build, logrus.NewEntry(logger))
	ts := httptest.NewServer(srv.Router())
	t.Cleanup(func() {
		ts.Close()
		m.Wait()
	})
	return &harness{manager: m, store: st, server: ts, calls: &calls}
}

func smallPlan() plan.ExecutionPlan {
	cfg := plan.DefaultRunConfig()
	cfg.Rounds = 2
	cfg.InterRoundDelay = 0
	cfg.InterTestDelay = 0
	cfg.LoadCooldown = 0
	cfg.LoadConcurrency = map[plan.LoadTier]int{plan.TierSimple: 3}
	return plan.ExecutionPlan{
		Providers: []plan.Provider{{ID: "alpha", Name: "alpha", URL: "https://alpha.example.com"}},
		Tests: []plan.TestDefinition{
			{ID: 1, Name: "Block number", Method: "eth_blockNumber", Category: plan.CategorySimple, Label: plan.LabelLatest},
			{ID: 12, Name: "Burst", Method: "eth_blockNumber", Category: plan.CategoryLoad, Label: plan.LabelLatest, Tier: plan.TierSimple, Peer: 1},
		},
		Config: cfg,
	}
}

func (h *harness) submit(t *testing.T, p plan.ExecutionPlan) string {
	t.Helper()
	body, err := json.Marshal(p)
	require.NoError(t, err)
	resp, err := http.Post(h.server.URL+"/v1/jobs", "application/json", bytes.NewReader(body))
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusAccepted, resp.StatusCode)

	var out submitResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	require.NotEmpty(t, out.ID)
	assert.Equal(t, "/v1/jobs/"+out.ID, resp.Header.Get("Location"))
	return out.ID
}

func getJSON(t *testing.T, url string, v any) int {
	t.Helper()
	resp, err := http.Get(url)
	require.NoError(t, err)
	defer resp.Body.Close()
	if v != nil {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(v))
	}
	return resp.StatusCode
}

func TestHealthz(t *testing.T) {
	h := newHarness(t, nil)
	var body healthResponse
	assert.Equal(t, http.StatusOK, getJSON(t, h.server.URL+"/healthz", &body))
	assert.Equal(t, "ok", body.Status)
}

func TestSubmitRunsJobToCompletion(t *testing.T) {
	h := newHarness(t, nil)
	id := h.submit(t, smallPlan())
	h.manager.Wait()

	// 2 sequential rounds + a burst of 3.
	assert.EqualValues(t, 5, h.calls.Load())

	var job jobResponse
	require.Equal(t, http.StatusOK, getJSON(t, h.server.URL+"/v1/jobs/"+id, &job))
	assert.Equal(t, store.StatusCompleted, job.Status)
	assert.False(t, job.Active)
	require.Len(t, job.Providers, 1)
	require.NotNil(t, job.DurationSeconds)

	var results resultsResponse
	require.Equal(t, http.StatusOK, getJSON(t, h.server.URL+"/v1/jobs/"+id+"/results", &results))
	assert.Len(t, results.Samples, 2)
	assert.Len(t, results.Bursts, 1)
	require.Len(t, results.Results, 1)
	assert.Equal(t, 2, results.Results[0].SuccessCount)
	require.Len(t, results.Degradation, 1)
	assert.Equal(t, 1, results.Degradation[0].SequentialTestID)

	var list listJobsResponse
	require.Equal(t, http.StatusOK, getJSON(t, h.server.URL+"/v1/jobs?limit=500", &list))
	assert.Equal(t, 1, list.Total)
	assert.Equal(t, defaultListLimit, list.Limit)
	require.Len(t, list.Jobs, 1)
	assert.Equal(t, id, list.Jobs[0].ID)
}

func TestSubmitRejectsInvalidPlan(t *testing.T) {
	h := newHarness(t, nil)
	p := smallPlan()
	p.Providers = nil
	body, _ := json.Marshal(p)

	resp, err := http.Post(h.server.URL+"/v1/jobs", "application/json", bytes.NewReader(body))
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	var out struct {
		Error  string   `json:"error"`
		Issues []string `json:"issues"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	assert.Contains(t, out.Issues, "at least one provider is required")

	_, total, err := h.store.ListJobs(context.Background(), 10, 0)
	require.NoError(t, err)
	assert.Zero(t, total, "rejected plans must not be stored")
}

func TestSubmitRejectsMalformedBody(t *testing.T) {
	h := newHarness(t, nil)
	resp, err := http.Post(h.server.URL+"/v1/jobs", "application/json", strings.NewReader("{"))
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestGetMissingJob(t *testing.T) {
	h := newHarness(t, nil)
	assert.Equal(t, http.StatusNotFound, getJSON(t, h.server.URL+"/v1/jobs/nope", nil))
	assert.Equal(t, http.StatusNotFound, getJSON(t, h.server.URL+"/v1/jobs/nope/results", nil))
}

func TestCancelRunningJob(t *testing.T) {
	release := make(chan struct{})
	var started atomic.Bool
	caller := jsonrpc.CallerFunc(func(context.Context, jsonrpc.Request) jsonrpc.Outcome {
		started.Store(true)
		<-release
		return jsonrpc.Outcome{Success: true, Latency: time.Millisecond}
	})
	h := newHarness(t, caller)
	id := h.submit(t, smallPlan())

	require.Eventually(t, started.Load, 2*time.Second, 5*time.Millisecond)
	resp, err := http.Post(h.server.URL+"/v1/jobs/"+id+"/cancel", "application/json", nil)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusAccepted, resp.StatusCode)

	// Deleting a running job is refused.
	req, _ := http.NewRequest(http.MethodDelete, h.server.URL+"/v1/jobs/"+id, nil)
	resp, err = http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusConflict, resp.StatusCode)

	close(release)
	h.manager.Wait()

	job, err := h.store.GetJob(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, store.StatusCancelled, job.Status)

	// The in-flight call still produced its sample.
	samples, err := h.store.Samples(context.Background(), id)
	require.NoError(t, err)
	assert.Len(t, samples, 1)

	resp, err = http.Post(h.server.URL+"/v1/jobs/"+id+"/cancel", "application/json", nil)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
}

func TestDeleteFinishedJob(t *testing.T) {
	h := newHarness(t, nil)
	id := h.submit(t, smallPlan())
	h.manager.Wait()

	req, _ := http.NewRequest(http.MethodDelete, h.server.URL+"/v1/jobs/"+id, nil)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	assert.False(t, h.manager.Broker().Has(id))

	assert.Equal(t, http.StatusNotFound, getJSON(t, h.server.URL+"/v1/jobs/"+id, nil))

	resp, err = http.DefaultClient.Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestStreamEventsReplaysFinishedJob(t *testing.T) {
	h := newHarness(t, nil)
	id := h.submit(t, smallPlan())
	h.manager.Wait()

	resp, err := http.Get(h.server.URL + "/v1/jobs/" + id + "/events")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	body := string(raw)
	assert.Contains(t, body, "event: job_started\n")
	assert.Contains(t, body, "event: iteration_complete\n")
	assert.Contains(t, body, "event: load_test_complete\n")
	assert.Contains(t, body, "event: job_complete\n")
	assert.True(t, strings.HasSuffix(body, "event: done\ndata: \"stream complete\"\n\n"))
}

func TestStreamEventsForForgottenJob(t *testing.T) {
	h := newHarness(t, nil)
	ctx := context.Background()
	id := store.NewID()
	require.NoError(t, h.store.CreateJob(ctx, id, smallPlan(), time.Now()))
	require.NoError(t, h.store.FinishJob(ctx, id, runner.Report{Status: runner.StateCompleted, StartedAt: time.Now(), FinishedAt: time.Now()}))

	resp, err := http.Get(h.server.URL + "/v1/jobs/" + id + "/events")
	require.NoError(t, err)
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Equal(t, "event: done\ndata: \"stream complete\"\n\n", string(raw))
}

func TestWebSocketStream(t *testing.T) {
	h := newHarness(t, nil)
	id := h.submit(t, smallPlan())
	h.manager.Wait()

	url := "ws" + strings.TrimPrefix(h.server.URL, "http") + "/v1/jobs/" + id + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	var events []progress.Event
	for {
		var e progress.Event
		if err := conn.ReadJSON(&e); err != nil {
			assert.True(t, websocket.IsCloseError(err, websocket.CloseNormalClosure), "unexpected error %v", err)
			break
		}
		events = append(events, e)
	}
	require.NotEmpty(t, events)
	assert.Equal(t, progress.JobStarted, events[0].Type)
	last := events[len(events)-1]
	assert.Equal(t, progress.JobComplete, last.Type)
	assert.Equal(t, "completed", last.Status)
	assert.Equal(t, id, last.JobID)
}

func TestMetricsEndpoint(t *testing.T) {
	h := newHarness(t, nil)
	h.submit(t, smallPlan())
	h.manager.Wait()

	resp, err := http.Get(h.server.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	body := string(raw)
	assert.Contains(t, body, `rpcbench_rpc_calls_total{kind="ok",method="eth_blockNumber"}`)
	assert.Contains(t, body, "rpcbench_http_requests_total")
	assert.Contains(t, body, `rpcbench_jobs_finished_total{status="completed"}`)
	assert.Contains(t, body, "rpcbench_load_throughput_rps")
}

func TestServeShutsDownOnCancel(t *testing.T) {
	st, err := store.NewSQLiteStore(":memory:")
	require.NoError(t, err)
	defer st.Close()
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	m := NewManager(st, jsonrpc.CallerFunc(func(context.Context, jsonrpc.Request) jsonrpc.Outcome {
		return jsonrpc.Outcome{Success: true}
	}), logrus.NewEntry(logger))
	srv := NewServer("127.0.0.1:0", m, nil, logrus.NewEntry(logger))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.Run(ctx) }()
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not stop")
	}
}
