package store

import (
	"context"
	"errors"
	"time"

	"cvrpsolver/internal/model"
)

// Store is the persistence interface used by the API server.
type Store interface {
	Ping(ctx context.Context) error

	// Runs
	CreateRun(ctx context.Context, run model.Run) (model.Run, error)
	GetRun(ctx context.Context, tenantID, runID string) (model.Run, error)
	ListRuns(ctx context.Context, tenantID, status, cursor string, limit int) ([]model.Run, string, error)
	UpdateRunStatus(ctx context.Context, tenantID, runID, status string) error
	CompleteRun(ctx context.Context, tenantID, runID string, result model.RunResult, trace []byte) (model.Run, error)
	FailRun(ctx context.Context, tenantID, runID, reason string) (model.Run, error)
	GetRunTrace(ctx context.Context, tenantID, runID string) ([]byte, error)

	// Metrics
	ListRunMetrics(ctx context.Context, tenantID, instance string) ([]model.RunMetrics, error)

	// Optimizer config per tenant
	GetOptimizerConfig(ctx context.Context, tenantID string) (map[string]any, error)
	SaveOptimizerConfig(ctx context.Context, tenantID string, cfg map[string]any) error

	// Webhook deliveries
	EnqueueWebhook(ctx context.Context, tenantID, runID, eventType, url, secret string, payload []byte) (string, error)
	FetchDueWebhookDeliveries(ctx context.Context, limit int) ([]WebhookDelivery, error)
	MarkWebhookDelivery(ctx context.Context, id string, success bool, nextAttemptAt *time.Time, lastError string, responseCode int, latencyMs int) error
	FailWebhookDelivery(ctx context.Context, id string, lastError string, responseCode int, latencyMs int) error
}

var (
	ErrNotFound = errors.New("not found")
	// ErrConflict is returned when a run transition does not fit its current status.
	ErrConflict = errors.New("conflict")
)

const (
	defaultPageSize = 50
	maxPageSize     = 500
)

func pageSize(limit int) int {
	if limit <= 0 || limit > maxPageSize {
		return defaultPageSize
	}
	return limit
}
