package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"cvrpsolver/internal/model"
	"cvrpsolver/internal/opt"
	"cvrpsolver/internal/trace"
	"cvrpsolver/internal/tsplib"
)

const heartbeatEvery = 15 * time.Second

// SolveHandler handles POST /v1/solve. With ?wait=true the run is solved within
// the request; otherwise it is queued on the worker pool and 202 is returned.
func (s *Server) SolveHandler(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/v1/solve" {
		writeProblem(w, http.StatusNotFound, "Not Found", "", r.URL.Path)
		return
	}
	if r.Method != http.MethodPost {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	p := s.getPrincipal(r)
	if s.Cfg.Server.MaxBodyBytes > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, s.Cfg.Server.MaxBodyBytes)
	}
	var req model.SolveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeProblem(w, http.StatusBadRequest, "Invalid JSON", err.Error(), r.URL.Path)
		return
	}
	if err := validateSolveRequest(&req, s.Cfg.Solver.MaxStarts); err != nil {
		writeProblem(w, http.StatusBadRequest, "Invalid request", err.Error(), r.URL.Path)
		return
	}
	inst, err := buildInstance(&req)
	if err != nil {
		writeError(w, r, "Invalid instance", err)
		return
	}
	cfg, starts, err := s.solverConfig(r.Context(), p.Tenant, req.Options)
	if err != nil {
		writeError(w, r, "Invalid options", err)
		return
	}
	run, err := s.Store.CreateRun(r.Context(), model.Run{
		TenantID:  p.Tenant,
		Instance:  inst.Name(),
		Customers: inst.NumCustomers(),
		Capacity:  inst.Capacity(),
		Method:    cfg.Method.String(),
		Options:   req.Options,
		Callback:  req.Callback,
	})
	if err != nil {
		writeError(w, r, "Create run failed", err)
		return
	}
	job := solveJob{run: run, inst: inst, cfg: cfg, starts: starts}
	if r.URL.Query().Get("wait") == "true" {
		ctx, cancel := context.WithCancel(r.Context())
		s.track(run.ID, cancel)
		defer s.untrack(run.ID)
		writeJSON(w, http.StatusOK, s.execute(ctx, job))
		return
	}
	if err := s.submit(job); err != nil {
		s.fail(context.WithoutCancel(r.Context()), run, err)
		writeError(w, r, "Solver busy", err)
		return
	}
	w.Header().Set("Location", "/v1/runs/"+run.ID)
	writeJSON(w, http.StatusAccepted, run)
}

// solverConfig layers the request options over the tenant's stored options
// over the service defaults.
func (s *Server) solverConfig(ctx context.Context, tenant string, o model.SolveOptions) (opt.Config, int, error) {
	cfg := s.Cfg.Solver.Defaults
	starts := 1
	stored, err := s.Store.GetOptimizerConfig(ctx, tenant)
	if err != nil {
		return cfg, 0, err
	}
	so, err := decodeOptions(stored)
	if err != nil {
		return cfg, 0, err
	}
	for _, layer := range []model.SolveOptions{so, o} {
		if cfg, err = applyOptions(cfg, layer); err != nil {
			return cfg, 0, err
		}
		if layer.Starts > 0 {
			starts = min(layer.Starts, s.Cfg.Solver.MaxStarts)
		}
	}
	return cfg, starts, nil
}

// RunsIndexHandler handles GET /v1/runs
func (s *Server) RunsIndexHandler(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/v1/runs" {
		writeProblem(w, http.StatusNotFound, "Not Found", "", r.URL.Path)
		return
	}
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	p := s.getPrincipal(r)
	q := r.URL.Query()
	limit := 0
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			writeProblem(w, http.StatusBadRequest, "Invalid limit", v, r.URL.Path)
			return
		}
		limit = n
	}
	items, next, err := s.Store.ListRuns(r.Context(), p.Tenant, q.Get("status"), q.Get("cursor"), limit)
	if err != nil {
		writeError(w, r, "List runs failed", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items, "nextCursor": next})
}

// RunByIDHandler handles /v1/runs/{id} and its sub resources:
// events/stream, ws, trace, solution and cancel.
func (s *Server) RunByIDHandler(w http.ResponseWriter, r *http.Request) {
	path := r.URL.Path
	rest := strings.TrimPrefix(path, "/v1/runs/")
	if rest == path || rest == "" {
		writeProblem(w, http.StatusNotFound, "Not Found", "missing id", path)
		return
	}
	id, sub, _ := strings.Cut(rest, "/")
	p := s.getPrincipal(r)
	switch sub {
	case "":
		if r.Method != http.MethodGet {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		run, err := s.Store.GetRun(r.Context(), p.Tenant, id)
		if err != nil {
			writeError(w, r, "Run not found", err)
			return
		}
		writeJSON(w, http.StatusOK, run)
	case "events/stream":
		if r.Method != http.MethodGet {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		s.streamRunEvents(w, r, p, id)
	case "ws":
		s.RunWSHandler(w, r, p, id)
	case "trace":
		if r.Method != http.MethodGet {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		s.writeTrace(w, r, p, id)
	case "solution":
		if r.Method != http.MethodGet {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		s.writeSolution(w, r, p, id)
	case "cancel":
		if r.Method != http.MethodPost {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		run, err := s.Store.GetRun(r.Context(), p.Tenant, id)
		if err != nil {
			writeError(w, r, "Run not found", err)
			return
		}
		if run.Terminal() || !s.cancelRun(id) {
			writeProblem(w, http.StatusConflict, "Run not cancellable", "run is "+run.Status, path)
			return
		}
		writeJSON(w, http.StatusAccepted, map[string]any{"id": id, "cancelled": true})
	default:
		writeProblem(w, http.StatusNotFound, "Not Found", "", path)
	}
}

// streamRunEvents serves run events as SSE until the run finishes or the
// client goes away.
func (s *Server) streamRunEvents(w http.ResponseWriter, r *http.Request, p Principal, id string) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeProblem(w, http.StatusInternalServerError, "Streaming unsupported", "", r.URL.Path)
		return
	}
	// subscribe before reading the run so a completion in between is not lost
	ch := s.Broker.Subscribe(id)
	defer s.Broker.Unsubscribe(id, ch)
	run, err := s.Store.GetRun(r.Context(), p.Tenant, id)
	if err != nil {
		writeError(w, r, "Run not found", err)
		return
	}
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	writeSSE(w, "heartbeat", map[string]any{"runId": id, "status": run.Status, "ts": time.Now().Format(time.RFC3339)})
	flusher.Flush()
	if run.Terminal() {
		writeSSE(w, terminalEvent(run).Type, terminalEvent(run).Data)
		flusher.Flush()
		return
	}
	heartbeat := time.NewTicker(heartbeatEvery)
	defer heartbeat.Stop()
	for {
		select {
		case <-r.Context().Done():
			return
		case evt, ok := <-ch:
			if !ok {
				return
			}
			writeSSE(w, evt.Type, evt.Data)
			flusher.Flush()
			if isTerminal(evt) {
				return
			}
		case <-heartbeat.C:
			writeSSE(w, "heartbeat", map[string]any{"runId": id, "ts": time.Now().Format(time.RFC3339)})
			flusher.Flush()
		}
	}
}

func writeSSE(w http.ResponseWriter, event string, data any) {
	b, _ := json.Marshal(data)
	fmt.Fprintf(w, "event: %s\n", event)
	fmt.Fprintf(w, "data: %s\n\n", b)
}

func isTerminal(evt model.RunEvent) bool {
	return evt.Type == model.EventRunCompleted || evt.Type == model.EventRunFailed
}

// terminalEvent rebuilds the final broker event for a finished run.
func terminalEvent(run model.Run) model.RunEvent {
	if run.Status == model.RunFailed {
		return model.RunEvent{Type: model.EventRunFailed, Data: map[string]any{"runId": run.ID, "status": run.Status, "error": run.Error}}
	}
	data := map[string]any{"runId": run.ID, "status": run.Status}
	if run.Result != nil {
		data["cost"] = run.Result.Cost
		data["vehicles"] = run.Result.Vehicles
	}
	return model.RunEvent{Type: model.EventRunCompleted, Data: data}
}

// writeTrace serves the zstd JSONL trace as stored, or decoded frames with ?format=json.
func (s *Server) writeTrace(w http.ResponseWriter, r *http.Request, p Principal, id string) {
	blob, err := s.Store.GetRunTrace(r.Context(), p.Tenant, id)
	if err != nil {
		writeError(w, r, "Trace not found", err)
		return
	}
	if r.URL.Query().Get("format") == "json" {
		frames, err := trace.ReadCompressed(bytes.NewReader(blob))
		if err != nil {
			writeError(w, r, "Trace unreadable", err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"frames": frames})
		return
	}
	w.Header().Set("Content-Type", "application/zstd")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", id+".jsonl.zst"))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(blob)
}

// writeSolution serves the best solution in the CVRPLIB .sol layout.
func (s *Server) writeSolution(w http.ResponseWriter, r *http.Request, p Principal, id string) {
	run, err := s.Store.GetRun(r.Context(), p.Tenant, id)
	if err != nil {
		writeError(w, r, "Run not found", err)
		return
	}
	if run.Status != model.RunSucceeded || run.Result == nil {
		writeProblem(w, http.StatusConflict, "No solution", "run is "+run.Status, r.URL.Path)
		return
	}
	routes := make([][]int, len(run.Result.Routes))
	for i, rt := range run.Result.Routes {
		routes[i] = rt.Customers
	}
	var buf bytes.Buffer
	if err := tsplib.WriteRoutes(&buf, routes, run.Result.Cost); err != nil {
		writeError(w, r, "Write solution failed", err)
		return
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(buf.Bytes())
}

// OptimizerConfigHandler returns the effective solver defaults for the tenant.
func (s *Server) OptimizerConfigHandler(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/v1/optimizer/config" || r.Method != http.MethodGet {
		writeProblem(w, http.StatusNotFound, "Not Found", "", r.URL.Path)
		return
	}
	defaults := optionsView(s.Cfg.Solver.Defaults, 1)
	defaults["maxStarts"] = s.Cfg.Solver.MaxStarts
	defaults["methods"] = methodNames()
	// overlay tenant config if present
	p := s.getPrincipal(r)
	cfg, _ := s.Store.GetOptimizerConfig(r.Context(), p.Tenant)
	for k, v := range cfg {
		defaults[k] = v
	}
	writeJSON(w, http.StatusOK, map[string]any{"defaults": defaults})
}

func methodNames() []string {
	out := make([]string, len(opt.Methods))
	for i, m := range opt.Methods {
		out[i] = m.String()
	}
	return out
}

// AdminOptimizerConfigHandler gets or replaces the tenant's stored options.
func (s *Server) AdminOptimizerConfigHandler(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/v1/admin/optimizer/config" {
		writeProblem(w, http.StatusNotFound, "Not Found", "", r.URL.Path)
		return
	}
	p := s.getPrincipal(r)
	if !p.IsAdmin() {
		writeProblem(w, http.StatusForbidden, "Forbidden", "admin required", r.URL.Path)
		return
	}
	switch r.Method {
	case http.MethodGet:
		cfg, err := s.Store.GetOptimizerConfig(r.Context(), p.Tenant)
		if err != nil {
			writeError(w, r, "Load failed", err)
			return
		}
		if cfg == nil {
			cfg = map[string]any{}
		}
		writeJSON(w, http.StatusOK, map[string]any{"config": cfg})
	case http.MethodPut:
		var body struct {
			Config map[string]any `json:"config"`
		}
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			writeProblem(w, http.StatusBadRequest, "Invalid JSON", err.Error(), r.URL.Path)
			return
		}
		if body.Config == nil {
			writeProblem(w, http.StatusBadRequest, "Missing config", "", r.URL.Path)
			return
		}
		o, err := decodeOptions(body.Config)
		if err == nil {
			err = validateOptions(o, s.Cfg.Solver.MaxStarts)
		}
		if err == nil {
			_, err = applyOptions(s.Cfg.Solver.Defaults, o)
		}
		if err != nil {
			writeProblem(w, http.StatusBadRequest, "Invalid config", err.Error(), r.URL.Path)
			return
		}
		if err := s.Store.SaveOptimizerConfig(r.Context(), p.Tenant, body.Config); err != nil {
			writeError(w, r, "Save failed", err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

// AdminRunMetricsHandler lists persisted run metrics plus the in-process
// registry for GET /v1/admin/run-metrics?instance=
func (s *Server) AdminRunMetricsHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return
	}
	p := s.getPrincipal(r)
	if !p.IsAdmin() {
		writeProblem(w, http.StatusForbidden, "Forbidden", "admin required", r.URL.Path)
		return
	}
	instance := r.URL.Query().Get("instance")
	items, err := s.Store.ListRunMetrics(r.Context(), p.Tenant, instance)
	if err != nil {
		writeError(w, r, "List metrics failed", err)
		return
	}
	out := map[string]any{"items": items}
	if instance != "" {
		out["process"] = opt.GetMetrics(instance)
	} else {
		out["instances"] = opt.RecordedInstances()
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) HealthHandler(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) ReadyHandler(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 500*time.Millisecond)
	defer cancel()
	if err := s.Store.Ping(ctx); err != nil {
		writeProblem(w, http.StatusServiceUnavailable, "Not Ready", err.Error(), r.URL.Path)
		return
	}
	if s.Pool.IsClosed() {
		writeProblem(w, http.StatusServiceUnavailable, "Not Ready", "worker pool closed", r.URL.Path)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}
