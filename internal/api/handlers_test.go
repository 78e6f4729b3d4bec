package api

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cvrpsolver/internal/config"
	"cvrpsolver/internal/model"
	"cvrpsolver/internal/opt"
)

const tinyVRP = `NAME : tiny-n5-k2
TYPE : CVRP
DIMENSION : 5
EDGE_WEIGHT_TYPE : EUC_2D
CAPACITY : 100
NODE_COORD_SECTION
 1 0 0
 2 10 10
 3 12 10
 4 -10 -10
 5 -12 -8
DEMAND_SECTION
1 0
2 30
3 40
4 30
5 40
DEPOT_SECTION
 1
 -1
EOF
`

func newTestServer(t *testing.T) *Server {
	t.Helper()
	cfg := config.Default()
	cfg.Workers.PoolSize = 2
	cfg.Solver.Defaults.MaxIterations = 20
	cfg.Solver.Defaults.TimeLimit = 2 * time.Second
	cfg.Solver.Defaults.Seed = 7
	cfg.Solver.MaxStarts = 4
	s, err := NewServer(cfg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close(5 * time.Second) })
	return s
}

func inlineRequest() model.SolveRequest {
	return model.SolveRequest{Instance: &model.InstanceIn{
		Name:     "inline-6",
		Capacity: 50,
		Customers: []model.CustomerIn{
			{ID: 1, X: 10, Y: 0, Demand: 20},
			{ID: 2, X: 12, Y: 3, Demand: 20},
			{ID: 3, X: 0, Y: 10, Demand: 25},
			{ID: 4, X: -3, Y: 12, Demand: 15},
			{ID: 5, X: -10, Y: -2, Demand: 30},
			{ID: 6, X: 4, Y: -11, Demand: 10},
		},
	}}
}

func do(t *testing.T, h http.Handler, method, target string, body any, hdr map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	var rd *bytes.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(t, err)
		rd = bytes.NewReader(b)
	} else {
		rd = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, target, rd)
	req.Header.Set("Content-Type", "application/json")
	for k, v := range hdr {
		req.Header.Set(k, v)
	}
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

func decodeRun(t *testing.T, rr *httptest.ResponseRecorder) model.Run {
	t.Helper()
	var run model.Run
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &run))
	return run
}

func solveAndWait(t *testing.T, h http.Handler, req model.SolveRequest) model.Run {
	t.Helper()
	rr := do(t, h, http.MethodPost, "/v1/solve?wait=true", req, nil)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	return decodeRun(t, rr)
}

func TestHealthAndReady(t *testing.T) {
	s := newTestServer(t)
	h := s.Routes()
	assert.Equal(t, http.StatusOK, do(t, h, http.MethodGet, "/healthz", nil, nil).Code)
	rr := do(t, h, http.MethodGet, "/readyz", nil, nil)
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), "ready")
}

func TestSolveWaitInline(t *testing.T) {
	s := newTestServer(t)
	run := solveAndWait(t, s.Routes(), inlineRequest())

	assert.Equal(t, model.RunSucceeded, run.Status)
	assert.Equal(t, "inline-6", run.Instance)
	assert.Equal(t, 6, run.Customers)
	require.NotNil(t, run.Result)
	assert.Greater(t, run.Result.Cost, 0.0)
	assert.Equal(t, len(run.Result.Routes), run.Result.Vehicles)

	seen := map[int]bool{}
	for _, rt := range run.Result.Routes {
		assert.LessOrEqual(t, rt.Load, 50)
		for _, id := range rt.Customers {
			assert.False(t, seen[id], "customer %d served twice", id)
			seen[id] = true
		}
	}
	assert.Len(t, seen, 6)
	assert.Equal(t, int64(7), run.Result.Seed)
}

func TestSolveWaitTSPLIB(t *testing.T) {
	s := newTestServer(t)
	run := solveAndWait(t, s.Routes(), model.SolveRequest{VRP: tinyVRP, Options: model.SolveOptions{Method: "nearest-neighbor", Starts: 2}})

	assert.Equal(t, model.RunSucceeded, run.Status)
	assert.Equal(t, "tiny-n5-k2", run.Instance)
	assert.Equal(t, "nearest-neighbor", run.Method)
	require.NotNil(t, run.Result)
	assert.Equal(t, 2, run.Result.Vehicles)
}

func TestSolveAsyncThenFetch(t *testing.T) {
	s := newTestServer(t)
	h := s.Routes()

	rr := do(t, h, http.MethodPost, "/v1/solve", inlineRequest(), nil)
	require.Equal(t, http.StatusAccepted, rr.Code, rr.Body.String())
	queued := decodeRun(t, rr)
	assert.Equal(t, "/v1/runs/"+queued.ID, rr.Header().Get("Location"))

	var run model.Run
	require.Eventually(t, func() bool {
		got := do(t, h, http.MethodGet, "/v1/runs/"+queued.ID, nil, nil)
		if got.Code != http.StatusOK {
			return false
		}
		run = decodeRun(t, got)
		return run.Terminal()
	}, 10*time.Second, 20*time.Millisecond)
	require.Equal(t, model.RunSucceeded, run.Status, run.Error)
	assert.NotNil(t, run.StartedAt)
	assert.NotNil(t, run.FinishedAt)

	sol := do(t, h, http.MethodGet, "/v1/runs/"+queued.ID+"/solution", nil, nil)
	require.Equal(t, http.StatusOK, sol.Code)
	assert.Contains(t, sol.Body.String(), "Route #1:")
	assert.Contains(t, sol.Body.String(), "Cost ")

	tr := do(t, h, http.MethodGet, "/v1/runs/"+queued.ID+"/trace?format=json", nil, nil)
	require.Equal(t, http.StatusOK, tr.Code)
	var frames struct {
		Frames []struct {
			Seq  int     `json:"seq"`
			Cost float64 `json:"cost"`
		} `json:"frames"`
	}
	require.NoError(t, json.Unmarshal(tr.Body.Bytes(), &frames))
	require.NotEmpty(t, frames.Frames)
	assert.Equal(t, 0, frames.Frames[0].Seq)

	raw := do(t, h, http.MethodGet, "/v1/runs/"+queued.ID+"/trace", nil, nil)
	assert.Equal(t, "application/zstd", raw.Header().Get("Content-Type"))

	list := do(t, h, http.MethodGet, "/v1/runs?status=succeeded", nil, nil)
	require.Equal(t, http.StatusOK, list.Code)
	assert.Contains(t, list.Body.String(), queued.ID)
}

func TestSolveRejectsInvalidRequests(t *testing.T) {
	s := newTestServer(t)
	h := s.Routes()

	over := inlineRequest()
	over.Instance.Customers[0].Demand = 80

	cases := map[string]struct {
		body any
		want int
	}{
		"both instance and vrp":  {model.SolveRequest{Instance: inlineRequest().Instance, VRP: tinyVRP}, http.StatusBadRequest},
		"neither":                {model.SolveRequest{}, http.StatusBadRequest},
		"unknown method":         {model.SolveRequest{VRP: tinyVRP, Options: model.SolveOptions{Method: "annealing"}}, http.StatusBadRequest},
		"too many starts":        {model.SolveRequest{VRP: tinyVRP, Options: model.SolveOptions{Starts: 99}}, http.StatusBadRequest},
		"kmax below kmin":        {model.SolveRequest{VRP: tinyVRP, Options: model.SolveOptions{KMin: 4, KMax: 2}}, http.StatusBadRequest},
		"bad callback":           {model.SolveRequest{VRP: tinyVRP, Callback: &model.Callback{URL: "ftp://x"}}, http.StatusBadRequest},
		"demand over capacity":   {over, http.StatusUnprocessableEntity},
		"tsplib missing section": {model.SolveRequest{VRP: "NAME : x\nTYPE : CVRP\nDIMENSION : 2\nCAPACITY : 10\nEOF\n"}, http.StatusUnprocessableEntity},
		"not json":               {"{", http.StatusBadRequest},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			rr := do(t, h, http.MethodPost, "/v1/solve?wait=true", tc.body, nil)
			assert.Equal(t, tc.want, rr.Code, rr.Body.String())
			assert.Equal(t, "application/problem+json", rr.Header().Get("Content-Type"))
		})
	}
}

func TestRunNotFoundAndTenantIsolation(t *testing.T) {
	s := newTestServer(t)
	h := s.Routes()
	run := solveAndWait(t, h, inlineRequest())

	assert.Equal(t, http.StatusNotFound, do(t, h, http.MethodGet, "/v1/runs/missing", nil, nil).Code)
	other := map[string]string{"X-Tenant-Id": "t_other"}
	assert.Equal(t, http.StatusNotFound, do(t, h, http.MethodGet, "/v1/runs/"+run.ID, nil, other).Code)
	assert.Equal(t, http.StatusOK, do(t, h, http.MethodGet, "/v1/runs/"+run.ID, nil, nil).Code)
}

func TestCancelFinishedRunConflicts(t *testing.T) {
	s := newTestServer(t)
	h := s.Routes()
	run := solveAndWait(t, h, inlineRequest())

	rr := do(t, h, http.MethodPost, "/v1/runs/"+run.ID+"/cancel", nil, nil)
	assert.Equal(t, http.StatusConflict, rr.Code)
	assert.Equal(t, http.StatusMethodNotAllowed, do(t, h, http.MethodGet, "/v1/runs/"+run.ID+"/cancel", nil, nil).Code)
}

func TestOptimizerConfigAdmin(t *testing.T) {
	s := newTestServer(t)
	h := s.Routes()
	user := map[string]string{"X-Role": "user"}

	assert.Equal(t, http.StatusForbidden, do(t, h, http.MethodGet, "/v1/admin/optimizer/config", nil, user).Code)

	bad := map[string]any{"config": map[string]any{"temperature": 3}}
	assert.Equal(t, http.StatusBadRequest, do(t, h, http.MethodPut, "/v1/admin/optimizer/config", bad, nil).Code)

	good := map[string]any{"config": map[string]any{"method": "greedy", "kMax": 3}}
	require.Equal(t, http.StatusOK, do(t, h, http.MethodPut, "/v1/admin/optimizer/config", good, nil).Code)

	rr := do(t, h, http.MethodGet, "/v1/optimizer/config", nil, user)
	require.Equal(t, http.StatusOK, rr.Code)
	var body struct {
		Defaults map[string]any `json:"defaults"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	assert.Equal(t, "greedy", body.Defaults["method"])
	assert.EqualValues(t, 3, body.Defaults["kMax"])
	assert.EqualValues(t, 4, body.Defaults["maxStarts"])

	// stored options apply to later runs
	run := solveAndWait(t, h, inlineRequest())
	assert.Equal(t, "greedy", run.Method)
}

func TestAdminRunMetrics(t *testing.T) {
	s := newTestServer(t)
	h := s.Routes()
	solveAndWait(t, h, inlineRequest())

	rr := do(t, h, http.MethodGet, "/v1/admin/run-metrics?instance=inline-6", nil, nil)
	require.Equal(t, http.StatusOK, rr.Code)
	var body struct {
		Items []model.RunMetrics `json:"items"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	require.Len(t, body.Items, 1)
	assert.Equal(t, "inline-6", body.Items[0].Instance)
	assert.Greater(t, body.Items[0].Metrics.BestCost, 0.0)

	assert.Equal(t, http.StatusForbidden, do(t, h, http.MethodGet, "/v1/admin/run-metrics", nil, map[string]string{"X-Role": "user"}).Code)
}

func TestEventStreamOfFinishedRun(t *testing.T) {
	s := newTestServer(t)
	h := s.Routes()
	run := solveAndWait(t, h, inlineRequest())

	rr := do(t, h, http.MethodGet, "/v1/runs/"+run.ID+"/events/stream", nil, nil)
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "text/event-stream", rr.Header().Get("Content-Type"))
	body := rr.Body.String()
	assert.True(t, strings.HasPrefix(body, "event: heartbeat\n"))
	assert.Contains(t, body, "event: "+model.EventRunCompleted)
}

func TestRunWebSocket(t *testing.T) {
	s := newTestServer(t)
	srv := httptest.NewServer(Instrument(s.Routes()))
	defer srv.Close()

	b, err := json.Marshal(inlineRequest())
	require.NoError(t, err)
	resp, err := http.Post(srv.URL+"/v1/solve?wait=true", "application/json", bytes.NewReader(b))
	require.NoError(t, err)
	var run model.Run
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&run))
	_ = resp.Body.Close()

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/v1/runs/" + run.ID + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	defer conn.Close()
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))

	var first, second wsMessage
	require.NoError(t, conn.ReadJSON(&first))
	require.NoError(t, conn.ReadJSON(&second))
	assert.Equal(t, "next", first.Type)
	assert.Equal(t, run.ID, first.ID)
	var evt model.RunEvent
	require.NoError(t, json.Unmarshal(first.Payload, &evt))
	assert.Equal(t, model.EventRunCompleted, evt.Type)
	assert.Equal(t, "complete", second.Type)
}

func TestOpenAPIDocuments(t *testing.T) {
	s := newTestServer(t)
	h := s.Routes()

	y := do(t, h, http.MethodGet, "/openapi.yaml", nil, nil)
	require.Equal(t, http.StatusOK, y.Code)
	assert.Contains(t, y.Body.String(), "/v1/solve")

	j := do(t, h, http.MethodGet, "/openapi.json", nil, nil)
	require.Equal(t, http.StatusOK, j.Code)
	var doc map[string]any
	require.NoError(t, json.Unmarshal(j.Body.Bytes(), &doc))
	assert.Contains(t, doc["paths"], "/v1/runs/{id}/trace")
}

func TestProgressObserverThrottles(t *testing.T) {
	b := NewBroker()
	ch := b.Subscribe("r1")
	o := newProgressObserver("r1", b, 0.001, 1)

	o.OnEvent(opt.Event{Kind: opt.EventInit})
	for i := 0; i < 5; i++ {
		o.OnEvent(opt.Event{Kind: opt.EventAccepted, Iteration: i})
	}
	o.OnEvent(opt.Event{Kind: opt.EventTerminated})

	// one token of burst lets the first accepted event through
	assert.Len(t, ch, 3)
	assert.Equal(t, 4, o.dropped)
	for len(ch) > 0 {
		assert.Equal(t, model.EventRunProgress, (<-ch).Type)
	}
}

func TestApplyOptionsLayers(t *testing.T) {
	yes := true
	cfg, err := applyOptions(opt.DefaultConfig(), model.SolveOptions{Method: "random", UseOrOpt: &yes, KMax: 7, TimeBudgetMs: 1500, Seed: 42})
	require.NoError(t, err)
	assert.Equal(t, opt.Random, cfg.Method)
	assert.True(t, cfg.UseOrOpt)
	assert.Equal(t, 7, cfg.KMax)
	assert.Equal(t, 1500*time.Millisecond, cfg.TimeLimit)
	assert.Equal(t, int64(42), cfg.Seed)
	assert.Equal(t, opt.DefaultConfig().MaxIterations, cfg.MaxIterations)

	_, err = applyOptions(opt.DefaultConfig(), model.SolveOptions{KMin: 6, KMax: 2})
	assert.ErrorIs(t, err, opt.ErrInvalidConfig)

	_, err = decodeOptions(map[string]any{"bogus": 1})
	assert.ErrorIs(t, err, opt.ErrInvalidConfig)
}

func TestMetricPath(t *testing.T) {
	assert.Equal(t, "/v1/solve", metricPath("/v1/solve"))
	assert.Equal(t, "/v1/runs/{id}", metricPath("/v1/runs/abc"))
	assert.Equal(t, "/v1/runs/{id}/events/stream", metricPath("/v1/runs/abc/events/stream"))
}
