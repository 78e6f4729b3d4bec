package store

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/google/uuid"
	_ "github.com/jackc/pgx/v5/stdlib"

	"cvrpsolver/internal/model"
)

type Postgres struct {
	db *sql.DB
}

func NewPostgres(dsn string) (*Postgres, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	if err := db.Ping(); err != nil {
		return nil, err
	}
	return &Postgres{db: db}, nil
}

// NewPostgresDB wraps an open handle.
func NewPostgresDB(db *sql.DB) *Postgres { return &Postgres{db: db} }

func (p *Postgres) Ping(ctx context.Context) error { return p.db.PingContext(ctx) }

func (p *Postgres) Close() error { return p.db.Close() }

// MigrateDir applies every *.sql file in dir in name order. Files are expected
// to be idempotent.
func (p *Postgres) MigrateDir(dir string) error {
	files, err := filepath.Glob(filepath.Join(dir, "*.sql"))
	if err != nil {
		return err
	}
	sort.Strings(files)
	for _, f := range files {
		body, err := os.ReadFile(f)
		if err != nil {
			return err
		}
		if _, err := p.db.Exec(string(body)); err != nil {
			return fmt.Errorf("migrate %s: %w", filepath.Base(f), err)
		}
	}
	return nil
}

const runColumns = `id::text, tenant_id, instance, customers, capacity, method, status, options, callback, result, COALESCE(error,''), created_at, started_at, finished_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRun(row rowScanner) (model.Run, error) {
	var r model.Run
	var options, callback, result []byte
	var startedAt, finishedAt sql.NullTime
	if err := row.Scan(&r.ID, &r.TenantID, &r.Instance, &r.Customers, &r.Capacity, &r.Method, &r.Status, &options, &callback, &result, &r.Error, &r.CreatedAt, &startedAt, &finishedAt); err != nil {
		return model.Run{}, err
	}
	if len(options) > 0 {
		if err := json.Unmarshal(options, &r.Options); err != nil {
			return model.Run{}, err
		}
	}
	if len(callback) > 0 {
		r.Callback = &model.Callback{}
		if err := json.Unmarshal(callback, r.Callback); err != nil {
			return model.Run{}, err
		}
	}
	if len(result) > 0 {
		r.Result = &model.RunResult{}
		if err := json.Unmarshal(result, r.Result); err != nil {
			return model.Run{}, err
		}
	}
	if startedAt.Valid {
		r.StartedAt = &startedAt.Time
	}
	if finishedAt.Valid {
		r.FinishedAt = &finishedAt.Time
	}
	return r, nil
}

func (p *Postgres) CreateRun(ctx context.Context, run model.Run) (model.Run, error) {
	run.ID = uuid.New().String()
	run.Status = model.RunQueued
	run.CreatedAt = time.Now().UTC()
	options, err := json.Marshal(run.Options)
	if err != nil {
		return model.Run{}, err
	}
	callback, err := callbackJSON(run.Callback)
	if err != nil {
		return model.Run{}, err
	}
	_, err = p.db.ExecContext(ctx, `INSERT INTO runs (id, tenant_id, instance, customers, capacity, method, status, options, callback, created_at)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)`,
		run.ID, run.TenantID, run.Instance, run.Customers, run.Capacity, run.Method, run.Status, options, callback, run.CreatedAt)
	if err != nil {
		return model.Run{}, err
	}
	return run, nil
}

func (p *Postgres) GetRun(ctx context.Context, tenantID, runID string) (model.Run, error) {
	row := p.db.QueryRowContext(ctx, `SELECT `+runColumns+` FROM runs WHERE tenant_id=$1 AND id::text=$2`, tenantID, runID)
	r, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Run{}, ErrNotFound
	}
	return r, err
}

// ListRuns pages newest first. The cursor is the id of the last run returned.
func (p *Postgres) ListRuns(ctx context.Context, tenantID, status, cursor string, limit int) ([]model.Run, string, error) {
	limit = pageSize(limit)
	q := `SELECT ` + runColumns + ` FROM runs WHERE tenant_id=$1`
	args := []any{tenantID}
	if status != "" {
		args = append(args, status)
		q += fmt.Sprintf(` AND status=$%d`, len(args))
	}
	if cursor != "" {
		args = append(args, cursor)
		q += fmt.Sprintf(` AND (created_at, id::text) < (SELECT created_at, id::text FROM runs WHERE id::text=$%d)`, len(args))
	}
	args = append(args, limit)
	q += fmt.Sprintf(` ORDER BY created_at DESC, id DESC LIMIT $%d`, len(args))
	rows, err := p.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, "", err
	}
	defer rows.Close()
	out := []model.Run{}
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, "", err
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, "", err
	}
	var next string
	if len(out) == limit {
		next = out[len(out)-1].ID
	}
	return out, next, nil
}

func (p *Postgres) UpdateRunStatus(ctx context.Context, tenantID, runID, status string) error {
	res, err := p.db.ExecContext(ctx, `UPDATE runs SET status=$3,
        started_at=CASE WHEN $3='running' THEN COALESCE(started_at, now()) ELSE started_at END
        WHERE tenant_id=$1 AND id::text=$2 AND status IN ('queued','running')`, tenantID, runID, status)
	if err != nil {
		return err
	}
	return p.checkTransition(ctx, res, tenantID, runID)
}

// checkTransition turns a zero-row update into ErrNotFound or ErrConflict.
func (p *Postgres) checkTransition(ctx context.Context, res sql.Result, tenantID, runID string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n > 0 {
		return nil
	}
	r, err := p.GetRun(ctx, tenantID, runID)
	if err != nil {
		return err
	}
	return fmt.Errorf("%w: run %s is %s", ErrConflict, runID, r.Status)
}

// CompleteRun stores the result, the trace and a metrics row in one transaction.
func (p *Postgres) CompleteRun(ctx context.Context, tenantID, runID string, result model.RunResult, trace []byte) (model.Run, error) {
	body, err := json.Marshal(result)
	if err != nil {
		return model.Run{}, err
	}
	metrics, err := json.Marshal(result.Metrics)
	if err != nil {
		return model.Run{}, err
	}
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return model.Run{}, err
	}
	defer func() { _ = tx.Rollback() }()
	res, err := tx.ExecContext(ctx, `UPDATE runs SET status='succeeded', result=$3, finished_at=now()
        WHERE tenant_id=$1 AND id::text=$2 AND status IN ('queued','running')`, tenantID, runID, body)
	if err != nil {
		return model.Run{}, err
	}
	if n, err := res.RowsAffected(); err != nil {
		return model.Run{}, err
	} else if n == 0 {
		_ = tx.Rollback()
		return model.Run{}, p.checkTransition(ctx, res, tenantID, runID)
	}
	if trace != nil {
		if _, err := tx.ExecContext(ctx, `INSERT INTO run_traces (run_id, data) VALUES ($1,$2)
            ON CONFLICT (run_id) DO UPDATE SET data=$2`, runID, trace); err != nil {
			return model.Run{}, err
		}
	}
	m := result.Metrics
	if _, err := tx.ExecContext(ctx, `INSERT INTO run_metrics (id, tenant_id, run_id, instance, method, iterations, improvements, initial_cost, best_cost, routes, duration_ms, stop_reason, metrics)
        SELECT $1, tenant_id, id, instance, method, $3, $4, $5, $6, $7, $8, $9, $10 FROM runs WHERE id::text=$2`,
		uuid.New().String(), runID, m.Iterations, m.Improvements, m.InitialCost, m.BestCost, m.Routes, m.Duration.Milliseconds(), m.StopReason, metrics); err != nil {
		return model.Run{}, err
	}
	if err := tx.Commit(); err != nil {
		return model.Run{}, err
	}
	return p.GetRun(ctx, tenantID, runID)
}

func (p *Postgres) FailRun(ctx context.Context, tenantID, runID, reason string) (model.Run, error) {
	res, err := p.db.ExecContext(ctx, `UPDATE runs SET status='failed', error=$3, finished_at=now()
        WHERE tenant_id=$1 AND id::text=$2 AND status IN ('queued','running')`, tenantID, runID, reason)
	if err != nil {
		return model.Run{}, err
	}
	if err := p.checkTransition(ctx, res, tenantID, runID); err != nil {
		return model.Run{}, err
	}
	return p.GetRun(ctx, tenantID, runID)
}

func (p *Postgres) GetRunTrace(ctx context.Context, tenantID, runID string) ([]byte, error) {
	var data []byte
	err := p.db.QueryRowContext(ctx, `SELECT t.data FROM run_traces t JOIN runs r ON r.id = t.run_id
        WHERE r.tenant_id=$1 AND r.id::text=$2`, tenantID, runID).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return data, err
}

func (p *Postgres) ListRunMetrics(ctx context.Context, tenantID, instance string) ([]model.RunMetrics, error) {
	q := `SELECT run_id::text, instance, method, metrics, created_at FROM run_metrics WHERE tenant_id=$1`
	args := []any{tenantID}
	if instance != "" {
		q += ` AND instance=$2`
		args = append(args, instance)
	}
	q += ` ORDER BY created_at`
	rows, err := p.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []model.RunMetrics{}
	for rows.Next() {
		var item model.RunMetrics
		var js []byte
		if err := rows.Scan(&item.RunID, &item.Instance, &item.Method, &js, &item.CreatedAt); err != nil {
			return nil, err
		}
		if err := json.Unmarshal(js, &item.Metrics); err != nil {
			return nil, err
		}
		out = append(out, item)
	}
	return out, rows.Err()
}

func (p *Postgres) GetOptimizerConfig(ctx context.Context, tenantID string) (map[string]any, error) {
	row := p.db.QueryRowContext(ctx, `SELECT config FROM optimizer_config WHERE tenant_id=$1`, tenantID)
	var js []byte
	if err := row.Scan(&js); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	var cfg map[string]any
	if err := json.Unmarshal(js, &cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (p *Postgres) SaveOptimizerConfig(ctx context.Context, tenantID string, cfg map[string]any) error {
	js, err := json.Marshal(cfg)
	if err != nil {
		return err
	}
	_, err = p.db.ExecContext(ctx, `INSERT INTO optimizer_config (tenant_id, config, updated_at) VALUES ($1, $2, now())
        ON CONFLICT (tenant_id) DO UPDATE SET config=$2, updated_at=now()`, tenantID, js)
	return err
}

func (p *Postgres) EnqueueWebhook(ctx context.Context, tenantID, runID, eventType, url, secret string, payload []byte) (string, error) {
	id := uuid.New().String()
	dk := computeDedupKey(payload)
	_, err := p.db.ExecContext(ctx, `INSERT INTO webhook_deliveries (id, tenant_id, run_id, event_type, url, secret, payload, status, attempts, next_attempt_at, dedup_key)
        VALUES ($1,$2,$3,$4,$5,$6,$7,'pending',0,now(),$8)
        ON CONFLICT (tenant_id, event_type, url, dedup_key) DO NOTHING`, id, tenantID, nullIfEmpty(runID), eventType, url, nullIfEmpty(secret), payload, dk)
	if err != nil {
		return "", err
	}
	return id, nil
}

func (p *Postgres) FetchDueWebhookDeliveries(ctx context.Context, limit int) ([]WebhookDelivery, error) {
	rows, err := p.db.QueryContext(ctx, `SELECT id::text, tenant_id, COALESCE(run_id::text,''), event_type, url, COALESCE(secret,''), payload, status, attempts
        FROM webhook_deliveries WHERE status IN ('pending','retry') AND next_attempt_at <= now() ORDER BY next_attempt_at ASC LIMIT $1`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []WebhookDelivery{}
	for rows.Next() {
		var d WebhookDelivery
		if err := rows.Scan(&d.ID, &d.TenantID, &d.RunID, &d.EventType, &d.URL, &d.Secret, &d.Payload, &d.Status, &d.Attempts); err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

func (p *Postgres) MarkWebhookDelivery(ctx context.Context, id string, success bool, nextAttemptAt *time.Time, lastError string, responseCode int, latencyMs int) error {
	if !success {
		if nextAttemptAt == nil {
			t := time.Now().Add(time.Minute)
			nextAttemptAt = &t
		}
		_, err := p.db.ExecContext(ctx, `UPDATE webhook_deliveries SET attempts=attempts+1, status='retry', last_error=$2, next_attempt_at=$3, updated_at=now(), response_code=$4, latency_ms=$5 WHERE id=$1`,
			id, nullIfEmpty(lastError), *nextAttemptAt, responseCode, latencyMs)
		return err
	}
	_, err := p.db.ExecContext(ctx, `UPDATE webhook_deliveries SET attempts=attempts+1, status='delivered', delivered_at=now(), updated_at=now(), response_code=$2, latency_ms=$3 WHERE id=$1`, id, responseCode, latencyMs)
	return err
}

func (p *Postgres) FailWebhookDelivery(ctx context.Context, id string, lastError string, responseCode int, latencyMs int) error {
	_, err := p.db.ExecContext(ctx, `UPDATE webhook_deliveries SET attempts=attempts+1, status='failed', last_error=$2, updated_at=now(), response_code=$3, latency_ms=$4 WHERE id=$1`, id, nullIfEmpty(lastError), responseCode, latencyMs)
	if err != nil {
		return err
	}
	// move to DLQ
	_, err = p.db.ExecContext(ctx, `INSERT INTO webhook_dlq (id, tenant_id, delivery_id, event_type, url, secret, payload, attempts, last_error)
        SELECT gen_random_uuid(), tenant_id, id, event_type, url, secret, payload, attempts, $2 FROM webhook_deliveries WHERE id=$1`, id, nullIfEmpty(lastError))
	return err
}

// computeDedupKey uses the payload "id" field when present, else a short body hash.
func computeDedupKey(payload []byte) string {
	var m map[string]any
	if json.Unmarshal(payload, &m) == nil {
		if v, ok := m["id"].(string); ok && v != "" {
			return v
		}
	}
	sum := sha256.Sum256(payload)
	return hex.EncodeToString(sum[:8])
}

func nullIfEmpty(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func callbackJSON(cb *model.Callback) (any, error) {
	if cb == nil {
		return nil, nil
	}
	return json.Marshal(cb)
}
