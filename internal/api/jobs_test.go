package api

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cvrpsolver/internal/metrics"
	"cvrpsolver/internal/model"
	"cvrpsolver/internal/store"
)

// panicStore blows up when a run result is stored.
type panicStore struct{ store.Store }

func (panicStore) CompleteRun(context.Context, string, string, model.RunResult, []byte) (model.Run, error) {
	panic("disk on fire")
}

func failedRuns(method string) float64 {
	return testutil.ToFloat64(metrics.SolverRuns.WithLabelValues(method, model.RunFailed))
}

func TestJobPanicFailsRun(t *testing.T) {
	s := newTestServer(t)
	s.Store = panicStore{s.Store}
	h := s.Routes()
	before := failedRuns("clarke-wright")

	run := solveAndWait(t, h, inlineRequest())
	assert.Equal(t, model.RunFailed, run.Status)
	assert.Contains(t, run.Error, "solver panic: disk on fire")

	rr := do(t, h, http.MethodPost, "/v1/solve", inlineRequest(), nil)
	require.Equal(t, http.StatusAccepted, rr.Code, rr.Body.String())
	queued := decodeRun(t, rr)
	require.Eventually(t, func() bool {
		got := do(t, h, http.MethodGet, "/v1/runs/"+queued.ID, nil, nil)
		return got.Code == http.StatusOK && decodeRun(t, got).Status == model.RunFailed
	}, 10*time.Second, 20*time.Millisecond)
	assert.Equal(t, before+2, failedRuns("clarke-wright"))
}

func TestQueueFullFailsRun(t *testing.T) {
	s := newTestServer(t)
	h := s.Routes()
	s.Cfg.Workers.MaxQueued = 1

	release := make(chan struct{})
	t.Cleanup(func() { close(release) })
	block := func() { <-release }
	for i := 0; i < s.Cfg.Workers.PoolSize; i++ {
		require.NoError(t, s.Pool.Submit(block))
	}
	go func() { _ = s.Pool.Submit(block) }()
	require.Eventually(t, func() bool { return s.Pool.Waiting() >= 1 }, 5*time.Second, 10*time.Millisecond)

	before := failedRuns("clarke-wright")
	rr := do(t, h, http.MethodPost, "/v1/solve", inlineRequest(), nil)
	assert.Equal(t, http.StatusServiceUnavailable, rr.Code)
	assert.Equal(t, before+1, failedRuns("clarke-wright"))

	list := do(t, h, http.MethodGet, "/v1/runs?status=failed", nil, nil)
	require.Equal(t, http.StatusOK, list.Code)
	assert.Contains(t, list.Body.String(), "inline-6")
}

func TestCancelWaitingRun(t *testing.T) {
	s := newTestServer(t)
	h := s.Routes()
	req := inlineRequest()
	req.Options = model.SolveOptions{MaxIterations: 1 << 30, TimeBudgetMs: 60_000, Patience: 1 << 30}

	done := make(chan *httptest.ResponseRecorder, 1)
	go func() { done <- do(t, h, http.MethodPost, "/v1/solve?wait=true", req, nil) }()

	var id string
	require.Eventually(t, func() bool {
		s.mu.Lock()
		defer s.mu.Unlock()
		for k := range s.cancels {
			id = k
		}
		return id != ""
	}, 5*time.Second, 10*time.Millisecond)

	rr := do(t, h, http.MethodPost, "/v1/runs/"+id+"/cancel", nil, nil)
	require.Equal(t, http.StatusAccepted, rr.Code, rr.Body.String())

	var res *httptest.ResponseRecorder
	select {
	case res = <-done:
	case <-time.After(30 * time.Second):
		t.Fatal("cancelled run did not return")
	}
	require.Equal(t, http.StatusOK, res.Code)
	run := decodeRun(t, res)
	assert.Equal(t, id, run.ID)
	assert.Equal(t, model.RunSucceeded, run.Status)
	require.NotNil(t, run.Result)
	assert.Equal(t, "context", run.Result.Metrics.StopReason)

	s.mu.Lock()
	assert.Empty(t, s.cancels)
	s.mu.Unlock()
	assert.Equal(t, http.StatusConflict, do(t, h, http.MethodPost, "/v1/runs/"+id+"/cancel", nil, nil).Code)
}
