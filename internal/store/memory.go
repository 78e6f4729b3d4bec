package store

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"cvrpsolver/internal/model"
)

// Memory is a simple in-memory store used when no DATABASE_URL is set.
type Memory struct {
	mu     sync.Mutex
	runs   map[string]model.Run      // id -> run
	byTen  map[string][]string       // tenant -> run ids in creation order
	traces map[string][]byte         // run id -> compressed trace
	optCfg map[string]map[string]any // tenant -> config
	// Webhooks queue state
	deliveries map[string]*memDelivery // id -> delivery state
	order      []string                // delivery ids in enqueue order
	dlq        []memDelivery
}

func NewMemory() *Memory {
	return &Memory{
		runs:       map[string]model.Run{},
		byTen:      map[string][]string{},
		traces:     map[string][]byte{},
		optCfg:     map[string]map[string]any{},
		deliveries: map[string]*memDelivery{},
	}
}

// memDelivery augments WebhookDelivery with scheduling/metrics
type memDelivery struct {
	WebhookDelivery
	NextAttemptAt time.Time
	LastError     string
	ResponseCode  int
	LatencyMs     int
	DeliveredAt   *time.Time
}

func (m *Memory) Ping(ctx context.Context) error { return ctx.Err() }

func (m *Memory) CreateRun(ctx context.Context, run model.Run) (model.Run, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	run.ID = uuid.New().String()
	run.Status = model.RunQueued
	run.CreatedAt = time.Now().UTC()
	m.runs[run.ID] = run
	m.byTen[run.TenantID] = append(m.byTen[run.TenantID], run.ID)
	return run, nil
}

func (m *Memory) GetRun(ctx context.Context, tenantID, runID string) (model.Run, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.getRun(tenantID, runID)
}

func (m *Memory) getRun(tenantID, runID string) (model.Run, error) {
	r, ok := m.runs[runID]
	if !ok || r.TenantID != tenantID {
		return model.Run{}, ErrNotFound
	}
	return r, nil
}

// ListRuns pages through a tenant's runs, newest first. The cursor is the last id returned.
func (m *Memory) ListRuns(ctx context.Context, tenantID, status, cursor string, limit int) ([]model.Run, string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	limit = pageSize(limit)
	ids := m.byTen[tenantID]
	start := len(ids) - 1
	if cursor != "" {
		for i, id := range ids {
			if id == cursor {
				start = i - 1
				break
			}
		}
	}
	out := []model.Run{}
	var next string
	for i := start; i >= 0 && len(out) < limit; i-- {
		r := m.runs[ids[i]]
		if status == "" || r.Status == status {
			out = append(out, r)
		}
		next = ids[i]
	}
	if len(out) < limit {
		next = ""
	}
	return out, next, nil
}

func (m *Memory) UpdateRunStatus(ctx context.Context, tenantID, runID, status string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, err := m.getRun(tenantID, runID)
	if err != nil {
		return err
	}
	if r.Terminal() {
		return fmt.Errorf("%w: run %s is %s", ErrConflict, runID, r.Status)
	}
	r.Status = status
	if status == model.RunRunning && r.StartedAt == nil {
		now := time.Now().UTC()
		r.StartedAt = &now
	}
	m.runs[runID] = r
	return nil
}

func (m *Memory) CompleteRun(ctx context.Context, tenantID, runID string, result model.RunResult, trace []byte) (model.Run, error) {
	return m.finish(tenantID, runID, func(r *model.Run) {
		r.Status = model.RunSucceeded
		r.Result = &result
		if trace != nil {
			m.traces[runID] = trace
		}
	})
}

func (m *Memory) FailRun(ctx context.Context, tenantID, runID, reason string) (model.Run, error) {
	return m.finish(tenantID, runID, func(r *model.Run) {
		r.Status = model.RunFailed
		r.Error = reason
	})
}

func (m *Memory) finish(tenantID, runID string, apply func(*model.Run)) (model.Run, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, err := m.getRun(tenantID, runID)
	if err != nil {
		return model.Run{}, err
	}
	if r.Terminal() {
		return model.Run{}, fmt.Errorf("%w: run %s is %s", ErrConflict, runID, r.Status)
	}
	apply(&r)
	now := time.Now().UTC()
	r.FinishedAt = &now
	m.runs[runID] = r
	return r, nil
}

func (m *Memory) GetRunTrace(ctx context.Context, tenantID, runID string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, err := m.getRun(tenantID, runID); err != nil {
		return nil, err
	}
	t, ok := m.traces[runID]
	if !ok {
		return nil, ErrNotFound
	}
	return t, nil
}

// ListRunMetrics returns metrics of succeeded runs in creation order,
// optionally restricted to one instance name.
func (m *Memory) ListRunMetrics(ctx context.Context, tenantID, instance string) ([]model.RunMetrics, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []model.RunMetrics{}
	for _, id := range m.byTen[tenantID] {
		r := m.runs[id]
		if r.Result == nil || (instance != "" && r.Instance != instance) {
			continue
		}
		out = append(out, model.RunMetrics{RunID: r.ID, Instance: r.Instance, Method: r.Method, Metrics: r.Result.Metrics, CreatedAt: r.CreatedAt})
	}
	return out, nil
}

func (m *Memory) GetOptimizerConfig(ctx context.Context, tenantID string) (map[string]any, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if cfg, ok := m.optCfg[tenantID]; ok {
		return cfg, nil
	}
	return nil, nil
}

func (m *Memory) SaveOptimizerConfig(ctx context.Context, tenantID string, cfg map[string]any) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.optCfg[tenantID] = cfg
	return nil
}

func (m *Memory) EnqueueWebhook(ctx context.Context, tenantID, runID, eventType, url, secret string, payload []byte) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	id := uuid.New().String()
	d := &memDelivery{WebhookDelivery: WebhookDelivery{ID: id, TenantID: tenantID, RunID: runID, EventType: eventType, URL: url, Secret: secret, Payload: payload, Status: DeliveryPending}, NextAttemptAt: time.Now()}
	m.deliveries[id] = d
	m.order = append(m.order, id)
	return id, nil
}

func (m *Memory) FetchDueWebhookDeliveries(ctx context.Context, limit int) ([]WebhookDelivery, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := time.Now()
	out := []WebhookDelivery{}
	for _, id := range m.order {
		d := m.deliveries[id]
		if (d.Status == DeliveryPending || d.Status == DeliveryRetry) && !d.NextAttemptAt.After(now) {
			out = append(out, d.WebhookDelivery)
			if limit > 0 && len(out) >= limit {
				break
			}
		}
	}
	return out, nil
}

func (m *Memory) MarkWebhookDelivery(ctx context.Context, id string, success bool, nextAttemptAt *time.Time, lastError string, responseCode int, latencyMs int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	d := m.deliveries[id]
	if d == nil {
		return ErrNotFound
	}
	d.Attempts++
	d.ResponseCode = responseCode
	d.LatencyMs = latencyMs
	if success {
		d.Status = DeliveryDelivered
		now := time.Now()
		d.DeliveredAt = &now
		return nil
	}
	d.Status = DeliveryRetry
	d.LastError = lastError
	if nextAttemptAt != nil {
		d.NextAttemptAt = *nextAttemptAt
	} else {
		d.NextAttemptAt = time.Now().Add(time.Minute)
	}
	return nil
}

func (m *Memory) FailWebhookDelivery(ctx context.Context, id string, lastError string, responseCode int, latencyMs int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	d := m.deliveries[id]
	if d == nil {
		return ErrNotFound
	}
	d.Attempts++
	d.Status = DeliveryFailed
	d.LastError = lastError
	d.ResponseCode = responseCode
	d.LatencyMs = latencyMs
	m.dlq = append(m.dlq, *d)
	return nil
}

// DeadLetters returns the deliveries that exhausted their attempts.
func (m *Memory) DeadLetters() []WebhookDelivery {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]WebhookDelivery, len(m.dlq))
	for i, d := range m.dlq {
		out[i] = d.WebhookDelivery
	}
	return out
}
