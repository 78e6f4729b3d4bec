package api

import (
	"context"
	"errors"
	"fmt"
	"time"

	"k8s.io/klog/v2"

	"cvrpsolver/internal/metrics"
	"cvrpsolver/internal/model"
	"cvrpsolver/internal/opt"
	"cvrpsolver/internal/trace"
)

var errQueueFull = errors.New("solver queue is full")

type solveJob struct {
	run    model.Run
	inst   *opt.Instance
	cfg    opt.Config
	starts int
}

// submit hands the job to the worker pool. The returned error means the job
// was not accepted.
func (s *Server) submit(job solveJob) error {
	if limit := s.Cfg.Workers.MaxQueued; limit > 0 && s.Pool.Waiting() >= limit {
		return errQueueFull
	}
	ctx, cancel := context.WithCancel(context.Background())
	s.track(job.run.ID, cancel)
	task := func() {
		defer s.untrack(job.run.ID)
		s.execute(ctx, job)
	}
	go func() {
		// blocks while all workers are busy
		if err := s.Pool.Submit(task); err != nil {
			s.untrack(job.run.ID)
			s.fail(context.Background(), job.run, err)
		}
	}()
	return nil
}

func (s *Server) track(runID string, cancel context.CancelFunc) {
	s.mu.Lock()
	s.cancels[runID] = cancel
	s.mu.Unlock()
}

func (s *Server) untrack(runID string) {
	s.mu.Lock()
	if cancel, ok := s.cancels[runID]; ok {
		cancel()
		delete(s.cancels, runID)
	}
	s.mu.Unlock()
}

// cancelRun stops a submitted job. The search returns its best solution so far.
func (s *Server) cancelRun(runID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	cancel, ok := s.cancels[runID]
	if ok {
		cancel()
	}
	return ok
}

// execute solves one run and records its outcome. Cancelling ctx ends the
// search early; the run still completes with the best solution found. A panic
// during the solve fails the run.
func (s *Server) execute(ctx context.Context, job solveJob) (out model.Run) {
	run := job.run
	logger := klog.Background().WithValues("run", run.ID, "tenant", run.TenantID)
	ctx = klog.NewContext(ctx, logger)
	storeCtx := context.WithoutCancel(ctx)
	defer func() {
		if p := recover(); p != nil {
			logger.Error(nil, "solver job panicked", "panic", p)
			out = s.fail(storeCtx, run, fmt.Errorf("solver panic: %v", p))
		}
	}()

	if err := s.Store.UpdateRunStatus(storeCtx, run.TenantID, run.ID, model.RunRunning); err != nil {
		logger.Error(err, "mark run running")
		return s.fail(storeCtx, run, err)
	}
	s.Broker.Publish(run.ID, model.RunEvent{Type: model.EventRunStarted, Data: map[string]any{"runId": run.ID, "ts": time.Now().UTC().Format(time.RFC3339)}})
	metrics.SolverRunsInFlight.Inc()
	defer metrics.SolverRunsInFlight.Dec()

	rec := trace.NewRecorder(s.Cfg.Solver.TraceFrames)
	progress := newProgressObserver(run.ID, s.Broker, s.Cfg.Broker.EventsPerSecond, s.Cfg.Broker.Burst)
	observer := opt.MultiObserver{rec, progress}

	res, seed, err := solve(ctx, job, observer)
	if err != nil {
		logger.Error(err, "solve failed")
		return s.fail(storeCtx, run, err)
	}
	if progress.dropped > 0 {
		logger.V(2).Info("progress events throttled", "dropped", progress.dropped)
	}
	blob, err := rec.Compressed()
	if err != nil {
		logger.Error(err, "compress trace")
		blob = nil
	}
	done, err := s.Store.CompleteRun(storeCtx, run.TenantID, run.ID, model.NewRunResult(res.Best, res.Metrics, seed), blob)
	if err != nil {
		logger.Error(err, "store run result")
		return s.fail(storeCtx, run, err)
	}
	opt.RecordMetrics(job.inst.Name(), run.Method, res.Metrics)
	metrics.ObserveRun(run.Method, res.Metrics)
	s.finished(storeCtx, done)
	return done
}

func solve(ctx context.Context, job solveJob, observer opt.Observer) (opt.Result, int64, error) {
	if job.starts <= 1 {
		solver, err := opt.NewSolver(job.cfg, opt.WithObserver(observer))
		if err != nil {
			return opt.Result{}, 0, err
		}
		res, err := solver.Solve(ctx, job.inst)
		return res, job.cfg.Seed, err
	}
	best, starts, err := opt.SolveMultiStart(ctx, job.inst, job.cfg, job.starts, observer)
	if err != nil {
		return opt.Result{}, 0, err
	}
	seed := job.cfg.Seed
	for _, sr := range starts {
		if sr.Result.Best == best.Best {
			seed = sr.Seed
		}
	}
	return best, seed, nil
}

func (s *Server) fail(ctx context.Context, run model.Run, cause error) model.Run {
	failed, err := s.Store.FailRun(ctx, run.TenantID, run.ID, cause.Error())
	if err != nil {
		klog.ErrorS(err, "mark run failed", "run", run.ID)
		run.Status = model.RunFailed
		run.Error = cause.Error()
		return run
	}
	metrics.SolverRuns.WithLabelValues(run.Method, model.RunFailed).Inc()
	s.finished(ctx, failed)
	return failed
}

// finished announces a terminal run on the broker and to its callback.
func (s *Server) finished(ctx context.Context, run model.Run) {
	evt := model.RunEvent{Type: model.EventRunCompleted, Data: map[string]any{"runId": run.ID, "status": run.Status}}
	if run.Status == model.RunFailed {
		evt.Type = model.EventRunFailed
		evt.Data["error"] = run.Error
	} else if run.Result != nil {
		evt.Data["cost"] = run.Result.Cost
		evt.Data["vehicles"] = run.Result.Vehicles
	}
	s.Broker.Publish(run.ID, evt)
	if _, err := s.Pub.RunFinished(ctx, run); err != nil {
		klog.ErrorS(err, "enqueue run webhook", "run", run.ID)
	}
}
