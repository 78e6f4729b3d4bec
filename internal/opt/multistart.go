package opt

import (
	"context"
	"fmt"
	"runtime"

	"golang.org/x/sync/errgroup"
	"k8s.io/klog/v2"
)

// StartResult is the outcome of one restart.
type StartResult struct {
	Start  int
	Seed   int64
	Result Result
}

// SolveMultiStart runs starts independent searches in parallel, each with its own
// seed derived from cfg.Seed, and returns the best result first followed by all
// per-start results in start order. Ties keep the lowest start index, so the
// outcome does not depend on scheduling. observer, when set, receives events of
// start 0 only.
func SolveMultiStart(ctx context.Context, inst *Instance, cfg Config, starts int, observer Observer) (Result, []StartResult, error) {
	if starts < 1 {
		starts = 1
	}
	if err := cfg.Validate(); err != nil {
		return Result{}, nil, err
	}
	if inst == nil {
		return Result{}, nil, fmt.Errorf("%w: nil instance", ErrInvalidInstance)
	}
	logger := klog.FromContext(ctx).WithValues("instance", inst.Name(), "starts", starts)
	results := make([]StartResult, starts)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(runtime.GOMAXPROCS(0))
	for i := 0; i < starts; i++ {
		i := i
		g.Go(func() error {
			c := cfg
			if i > 0 {
				c.Seed = deriveSeed(cfg.Seed, uint64(i))
			}
			opts := []Option{WithLogger(logger.WithValues("start", i))}
			if i == 0 && observer != nil {
				opts = append(opts, WithObserver(observer))
			}
			solver, err := NewSolver(c, opts...)
			if err != nil {
				return err
			}
			res, err := solver.Solve(gctx, inst)
			if err != nil {
				return err
			}
			results[i] = StartResult{Start: i, Seed: c.Seed, Result: res}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return Result{}, nil, err
	}
	best := 0
	for i := 1; i < starts; i++ {
		if results[i].Result.Best.Better(results[best].Result.Best) {
			best = i
		}
	}
	logger.V(1).Info("multi-start finished", "bestStart", best, "cost", results[best].Result.Metrics.BestCost)
	return results[best].Result, results, nil
}
