package opt

import (
	"context"
	"fmt"
	"time"

	"k8s.io/klog/v2"
)

// Stop reasons reported in Metrics.
const (
	StopIterations = "iterations"
	StopTime       = "time"
	StopPatience   = "patience"
	StopContext    = "context"
	StopEmpty      = "empty"
)

const snapshotEvery = 50

type Metrics struct {
	ShakeSelects [3]int             `json:"shakeSelects"` // relocate, swap, double-bridge
	Iterations   int                `json:"iterations"`
	Improvements int                `json:"improvements"`
	FewerRoutes  int                `json:"fewerRoutes"`
	TabuHits     int                `json:"tabuHits"`
	Stagnations  int                `json:"stagnations"`
	VNDMoves     int                `json:"vndMoves"`
	InitialCost  float64            `json:"initialCost"`
	DescentCost  float64            `json:"descentCost"`
	BestCost     float64            `json:"bestCost"`
	Routes       int                `json:"routes"`
	Duration     time.Duration      `json:"duration"`
	StopReason   string             `json:"stopReason"`
	Snapshots    []ProgressSnapshot `json:"snapshots,omitempty"`
}

type ProgressSnapshot struct {
	Iteration int     `json:"iteration"`
	K         int     `json:"k"`
	BestCost  float64 `json:"bestCost"`
	Routes    int     `json:"routes"`
}

type Result struct {
	Best    *Solution
	Metrics Metrics
}

// Solver runs the VNS driver. A Solver holds no run state and may be reused,
// but one Solve call must not be shared across goroutines.
type Solver struct {
	cfg      Config
	observer Observer
	logger   *klog.Logger
}

type Option func(*Solver)

func WithObserver(o Observer) Option {
	return func(s *Solver) { s.observer = o }
}

// WithLogger overrides the logger taken from the Solve context.
func WithLogger(l klog.Logger) Option {
	return func(s *Solver) { s.logger = &l }
}

func NewSolver(cfg Config, opts ...Option) (*Solver, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	s := &Solver{cfg: cfg}
	for _, o := range opts {
		o(s)
	}
	return s, nil
}

func (s *Solver) Config() Config { return s.cfg }

func (s *Solver) event(kind EventKind, state State, it, k int, operator string, sol *Solution) {
	if s.observer != nil {
		s.observer.OnEvent(snapshot(kind, state, it, k, operator, sol))
	}
}

// Solve constructs an initial solution, descends it with VND and then iterates
// shake, descend and accept until a limit is hit. The returned solution is the
// best one found and always satisfies every feasibility invariant.
func (s *Solver) Solve(ctx context.Context, inst *Instance) (Result, error) {
	logger := klog.FromContext(ctx)
	if s.logger != nil {
		logger = *s.logger
	}
	if inst == nil {
		return Result{}, fmt.Errorf("%w: nil instance", ErrInvalidInstance)
	}
	cfg := s.cfg.Resolve(inst.N())
	logger = logger.WithValues("instance", inst.Name(), "method", cfg.Method.String())
	start := time.Now()
	var m Metrics

	if inst.NumCustomers() == 0 {
		empty := NewSolution(inst, nil)
		m.StopReason = StopEmpty
		s.event(EventInit, StateInit, 0, cfg.KMin, cfg.Method.String(), empty)
		s.event(EventTerminated, StateTerminated, 0, cfg.KMin, "", empty)
		return Result{Best: empty, Metrics: m}, nil
	}

	rng := rngFromSeed(cfg.Seed)
	cur, err := Construct(inst, cfg.Method, rng)
	if err != nil {
		logger.Error(err, "construction failed")
		return Result{}, err
	}
	m.InitialCost = cur.Cost()
	logger.V(1).Info("initial solution", "cost", cur.Cost(), "routes", cur.RouteCount())
	s.event(EventInit, StateInit, 0, cfg.KMin, cfg.Method.String(), cur)

	it, k := 0, cfg.KMin
	vnd := NewVND(cfg.UseOrOpt)
	vnd.OnImprove = func(kind NeighborhoodKind, sol *Solution) {
		s.event(EventVNDImprovement, StateDescending, it, k, kind.String(), sol)
	}
	m.VNDMoves += vnd.Run(cur)
	best := cur
	m.DescentCost = best.Cost()
	logger.V(1).Info("initial descent", "cost", best.Cost(), "routes", best.RouteCount())

	tabu := NewTabu(cfg.TabuTenure, cfg.TabuHorizon)
	tabu.Add(best.Signature(), 0)
	lastImprovement := 0

	for {
		if reason := s.stopReason(ctx, cfg, it, lastImprovement, start); reason != "" {
			m.StopReason = reason
			break
		}
		op := ShakeFor(k)
		m.ShakeSelects[op]++

		var cand *Solution
		var shakenSig uint64
		stagnated := true
		if op == DoubleBridge {
			// Intra-route moves keep the incumbent's partition, so only the
			// descended state is checked against the tabu list.
			cand = Shake(op, best, k, rng, cfg.SwapRetries)
			shakenSig = cand.Signature()
			stagnated = false
		}
		for try := 0; stagnated && try <= cfg.TabuRetries; try++ {
			cand = Shake(op, best, k, rng, cfg.SwapRetries)
			shakenSig = cand.Signature()
			if !tabu.Contains(shakenSig, it) {
				stagnated = false
				break
			}
			m.TabuHits++
		}
		if stagnated {
			m.Stagnations++
			logger.V(1).Info("shaking stagnated", "iteration", it, "k", k, "operator", op.String(), "reason", ErrStagnation)
			s.event(EventStagnation, StateShaking, it, k, op.String(), best)
			k = s.nextK(cfg, k)
			it++
			continue
		}

		m.VNDMoves += vnd.Run(cand)
		sig := cand.Signature()
		accept := cand.Better(best) && !tabu.Contains(sig, it)
		tabu.Add(shakenSig, it)
		if sig != shakenSig {
			tabu.Add(sig, it)
		}
		if accept {
			if cand.Cost() < best.Cost()-ImprovementEpsilon {
				m.Improvements++
			} else {
				m.FewerRoutes++
			}
			logger.V(2).Info("accepted", "iteration", it, "k", k, "operator", op.String(), "cost", cand.Cost(), "routes", cand.RouteCount())
			best = cand
			lastImprovement = it
			s.event(EventAccepted, StateEvaluating, it, k, op.String(), best)
			k = cfg.KMin
		} else {
			k = s.nextK(cfg, k)
		}
		it++
		if it%snapshotEvery == 0 {
			m.Snapshots = append(m.Snapshots, ProgressSnapshot{Iteration: it, K: k, BestCost: best.Cost(), Routes: best.RouteCount()})
		}
	}

	if err := best.Validate(); err != nil {
		logger.Error(err, "best solution failed validation")
		return Result{}, fmt.Errorf("vns: %w", err)
	}
	m.Iterations = it
	m.BestCost = best.Cost()
	m.Routes = best.RouteCount()
	m.Duration = time.Since(start)
	logger.Info("search finished", "cost", m.BestCost, "routes", m.Routes, "iterations", it,
		"improvements", m.Improvements, "tabuHits", m.TabuHits, "stop", m.StopReason, "elapsed", m.Duration)
	s.event(EventTerminated, StateTerminated, it, k, m.StopReason, best)
	return Result{Best: best, Metrics: m}, nil
}

func (s *Solver) stopReason(ctx context.Context, cfg Config, it, lastImprovement int, start time.Time) string {
	switch {
	case cfg.MaxIterations > 0 && it >= cfg.MaxIterations:
		return StopIterations
	case cfg.TimeLimit > 0 && time.Since(start) >= cfg.TimeLimit:
		return StopTime
	case ctx.Err() != nil:
		return StopContext
	case it > cfg.MinIterations && it-lastImprovement > cfg.Patience:
		return StopPatience
	}
	return ""
}

// nextK advances the shaking strength, wrapping from KMax back to KMin.
func (s *Solver) nextK(cfg Config, k int) int {
	if k >= cfg.KMax {
		return cfg.KMin
	}
	return k + 1
}
