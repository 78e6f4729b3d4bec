package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"cvrpsolver/internal/model"
	"cvrpsolver/internal/opt"
)

func newRun(tenant, instance string) model.Run {
	return model.Run{TenantID: tenant, Instance: instance, Customers: 10, Capacity: 100, Method: opt.ClarkeWright.String()}
}

func TestMemoryRunLifecycle(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	run, err := m.CreateRun(ctx, newRun("t1", "A-n10"))
	require.NoError(t, err)
	require.NotEmpty(t, run.ID)
	assert.Equal(t, model.RunQueued, run.Status)

	_, err = m.GetRun(ctx, "t2", run.ID)
	require.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, m.UpdateRunStatus(ctx, "t1", run.ID, model.RunRunning))
	got, err := m.GetRun(ctx, "t1", run.ID)
	require.NoError(t, err)
	require.NotNil(t, got.StartedAt)

	res := model.RunResult{Cost: 42, Vehicles: 2, Metrics: opt.Metrics{Iterations: 7, BestCost: 42}}
	done, err := m.CompleteRun(ctx, "t1", run.ID, res, []byte("trace"))
	require.NoError(t, err)
	assert.Equal(t, model.RunSucceeded, done.Status)
	require.NotNil(t, done.FinishedAt)
	assert.Equal(t, 42.0, done.Result.Cost)

	tr, err := m.GetRunTrace(ctx, "t1", run.ID)
	require.NoError(t, err)
	assert.Equal(t, []byte("trace"), tr)

	_, err = m.FailRun(ctx, "t1", run.ID, "late")
	require.ErrorIs(t, err, ErrConflict)
	require.ErrorIs(t, m.UpdateRunStatus(ctx, "t1", run.ID, model.RunRunning), ErrConflict)
}

func TestMemoryFailRunHasNoTrace(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	run, err := m.CreateRun(ctx, newRun("t1", "x"))
	require.NoError(t, err)
	failed, err := m.FailRun(ctx, "t1", run.ID, "capacity")
	require.NoError(t, err)
	assert.Equal(t, model.RunFailed, failed.Status)
	assert.Equal(t, "capacity", failed.Error)
	_, err = m.GetRunTrace(ctx, "t1", run.ID)
	require.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryListRunsPaging(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	var ids []string
	for i := 0; i < 5; i++ {
		r, err := m.CreateRun(ctx, newRun("t1", "x"))
		require.NoError(t, err)
		ids = append(ids, r.ID)
	}
	_, err := m.CreateRun(ctx, newRun("other", "x"))
	require.NoError(t, err)

	page, next, err := m.ListRuns(ctx, "t1", "", "", 2)
	require.NoError(t, err)
	require.Len(t, page, 2)
	assert.Equal(t, ids[4], page[0].ID)
	assert.Equal(t, ids[3], page[1].ID)
	require.Equal(t, ids[3], next)

	page, next, err = m.ListRuns(ctx, "t1", "", next, 10)
	require.NoError(t, err)
	require.Len(t, page, 3)
	assert.Equal(t, ids[0], page[2].ID)
	assert.Empty(t, next)

	require.NoError(t, m.UpdateRunStatus(ctx, "t1", ids[1], model.RunRunning))
	running, _, err := m.ListRuns(ctx, "t1", model.RunRunning, "", 0)
	require.NoError(t, err)
	require.Len(t, running, 1)
	assert.Equal(t, ids[1], running[0].ID)
}

func TestMemoryRunMetricsByInstance(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	for _, name := range []string{"a", "b", "a"} {
		r, err := m.CreateRun(ctx, newRun("t1", name))
		require.NoError(t, err)
		_, err = m.CompleteRun(ctx, "t1", r.ID, model.RunResult{Metrics: opt.Metrics{BestCost: 1}}, nil)
		require.NoError(t, err)
	}
	_, err := m.CreateRun(ctx, newRun("t1", "a"))
	require.NoError(t, err)

	all, err := m.ListRunMetrics(ctx, "t1", "")
	require.NoError(t, err)
	assert.Len(t, all, 3)
	onlyA, err := m.ListRunMetrics(ctx, "t1", "a")
	require.NoError(t, err)
	assert.Len(t, onlyA, 2)
}

func TestMemoryWebhookQueue(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	id, err := m.EnqueueWebhook(ctx, "t1", "run-1", model.EventRunCompleted, "http://example.invalid", "s", []byte(`{}`))
	require.NoError(t, err)

	due, err := m.FetchDueWebhookDeliveries(ctx, 10)
	require.NoError(t, err)
	require.Len(t, due, 1)
	assert.Equal(t, "run-1", due[0].RunID)

	later := time.Now().Add(time.Hour)
	require.NoError(t, m.MarkWebhookDelivery(ctx, id, false, &later, "boom", 500, 3))
	due, err = m.FetchDueWebhookDeliveries(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, due)

	require.NoError(t, m.FailWebhookDelivery(ctx, id, "boom", 500, 3))
	dl := m.DeadLetters()
	require.Len(t, dl, 1)
	assert.Equal(t, 2, dl[0].Attempts)
	assert.Equal(t, DeliveryFailed, dl[0].Status)

	require.ErrorIs(t, m.MarkWebhookDelivery(ctx, "missing", true, nil, "", 200, 1), ErrNotFound)
}

func TestMemoryOptimizerConfig(t *testing.T) {
	ctx := context.Background()
	m := NewMemory()
	cfg, err := m.GetOptimizerConfig(ctx, "t1")
	require.NoError(t, err)
	assert.Nil(t, cfg)
	require.NoError(t, m.SaveOptimizerConfig(ctx, "t1", map[string]any{"kMax": 7}))
	cfg, err = m.GetOptimizerConfig(ctx, "t1")
	require.NoError(t, err)
	assert.Equal(t, 7, cfg["kMax"])
}
