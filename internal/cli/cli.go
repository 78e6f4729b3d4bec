// Package cli implements the cvrp command line tool.
package cli

import (
	"context"
	"errors"
	goflag "flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"k8s.io/klog/v2"

	"cvrpsolver/internal/opt"
	"cvrpsolver/internal/trace"
	"cvrpsolver/internal/tsplib"
)

type solveOptions struct {
	method     string
	orOpt      bool
	kMin, kMax int
	tenure     int
	maxIter    int
	timeLimit  time.Duration
	patience   int
	seed       int64
	starts     int
	out        string
	tracePath  string
	bks        string
}

// NewRootCommand returns the cvrp command with its solve and construct subcommands.
func NewRootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:           "cvrp",
		Short:         "Solve capacitated vehicle routing instances with variable neighborhood search",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	klogFlags := goflag.NewFlagSet("klog", goflag.ContinueOnError)
	klog.InitFlags(klogFlags)
	root.PersistentFlags().AddGoFlagSet(klogFlags)
	root.AddCommand(newSolveCommand(), newConstructCommand())
	return root
}

func addConfigFlags(fs *pflag.FlagSet, o *solveOptions, method string) {
	fs.StringVar(&o.method, "method", method, "construction heuristic: clarke-wright, nearest-neighbor, greedy, cheapest-insertion or random")
	fs.Int64Var(&o.seed, "seed", 1, "random seed")
	fs.StringVarP(&o.out, "out", "o", "", "write the solution in .sol layout to this file")
}

func newSolveCommand() *cobra.Command {
	o := &solveOptions{}
	def := opt.DefaultConfig()
	cmd := &cobra.Command{
		Use:   "solve <instance.vrp>...",
		Short: "Construct and improve a solution; several instances end with a summary table",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSolveAll(cmd.Context(), cmd.OutOrStdout(), args, o)
		},
	}
	fs := cmd.Flags()
	addConfigFlags(fs, o, def.Method.String())
	fs.BoolVar(&o.orOpt, "or-opt", false, "enable the Or-opt neighborhood in the local search")
	fs.IntVar(&o.kMin, "k-min", def.KMin, "smallest shaking neighborhood")
	fs.IntVar(&o.kMax, "k-max", def.KMax, "largest shaking neighborhood")
	fs.IntVar(&o.tenure, "tabu-tenure", 0, "tabu tenure, 0 derives it from the instance size")
	fs.IntVar(&o.maxIter, "max-iter", def.MaxIterations, "iteration limit")
	fs.DurationVar(&o.timeLimit, "time", def.TimeLimit, "wall time limit")
	fs.IntVar(&o.patience, "patience", 0, "iterations without improvement before stopping, 0 derives it from the instance size")
	fs.IntVar(&o.starts, "starts", 1, "independent restarts run in parallel")
	fs.StringVar(&o.tracePath, "trace", "", "write the zstd compressed search trace to this file")
	fs.StringVar(&o.bks, "bks", "", "best known .sol file, or a directory of <name>.sol files, to report the gap against")
	return cmd
}

func newConstructCommand() *cobra.Command {
	o := &solveOptions{}
	cmd := &cobra.Command{
		Use:   "construct <instance.vrp>",
		Short: "Build initial solutions without local search; all methods unless --method is set",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runConstruct(cmd.OutOrStdout(), args[0], o)
		},
	}
	addConfigFlags(cmd.Flags(), o, "")
	return cmd
}

func (o *solveOptions) config() (opt.Config, error) {
	m, err := opt.ParseMethod(o.method)
	if err != nil {
		return opt.Config{}, err
	}
	cfg := opt.DefaultConfig()
	cfg.Method = m
	cfg.UseOrOpt = o.orOpt
	cfg.KMin, cfg.KMax = o.kMin, o.kMax
	cfg.TabuTenure = o.tenure
	cfg.MaxIterations = o.maxIter
	cfg.TimeLimit = o.timeLimit
	cfg.Patience = o.patience
	cfg.Seed = o.seed
	return cfg, cfg.Validate()
}

// summaryRow is one line of the table printed after several instances.
type summaryRow struct {
	name    string
	cost    float64
	bks     float64
	hasBKS  bool
	elapsed time.Duration
}

func runSolveAll(ctx context.Context, w io.Writer, paths []string, o *solveOptions) error {
	if ctx == nil {
		ctx = context.Background()
	}
	cfg, err := o.config()
	if err != nil {
		return err
	}
	if len(paths) == 1 {
		bks := o.bks
		if bks != "" {
			bks = bksFor(bks, paths[0])
		}
		_, err := runSolve(ctx, w, paths[0], bks, cfg, o)
		return err
	}
	if o.out != "" || o.tracePath != "" {
		return errors.New("--out and --trace take a single instance")
	}
	if o.bks != "" {
		if fi, err := os.Stat(o.bks); err != nil || !fi.IsDir() {
			return fmt.Errorf("--bks must be a directory when solving %d instances", len(paths))
		}
	}
	rows := make([]summaryRow, 0, len(paths))
	for i, path := range paths {
		if i > 0 {
			fmt.Fprintln(w)
		}
		row, err := runSolve(ctx, w, path, bksFor(o.bks, path), cfg, o)
		if err != nil {
			return fmt.Errorf("%s: %w", path, err)
		}
		rows = append(rows, row)
	}
	writeSummary(w, rows)
	return nil
}

// bksFor picks the best known solution for an instance: the --bks file, the
// <name>.sol file in the --bks directory, or a <name>.sol next to the instance.
func bksFor(bks, path string) string {
	base := strings.TrimSuffix(filepath.Base(path), filepath.Ext(path)) + ".sol"
	candidate := filepath.Join(filepath.Dir(path), base)
	if bks != "" {
		fi, err := os.Stat(bks)
		if err != nil || !fi.IsDir() {
			return bks
		}
		candidate = filepath.Join(bks, base)
	}
	if _, err := os.Stat(candidate); err != nil {
		return ""
	}
	return candidate
}

func writeSummary(w io.Writer, rows []summaryRow) {
	fmt.Fprintf(w, "\nFINAL SUMMARY\n")
	fmt.Fprintf(w, "%-24s %12s %12s %9s %10s\n", "instance", "bks", "vns", "gap", "time")
	var gaps []float64
	for _, r := range rows {
		bks, gap := "-", "-"
		if r.hasBKS {
			g := tsplib.Gap(r.cost, r.bks)
			gaps = append(gaps, g)
			bks, gap = fmt.Sprintf("%.2f", r.bks), fmt.Sprintf("%.2f%%", g)
		}
		fmt.Fprintf(w, "%-24s %12s %12.2f %9s %10s\n", r.name, bks, r.cost, gap, r.elapsed.Round(time.Millisecond))
	}
	if len(gaps) == 0 {
		fmt.Fprintln(w, "no best known solutions, gaps not computed")
		return
	}
	sum := 0.0
	for _, g := range gaps {
		sum += g
	}
	fmt.Fprintf(w, "average gap  %.2f%% over %d instances\n", sum/float64(len(gaps)), len(gaps))
	fmt.Fprintf(w, "best gap     %.2f%%\n", slices.Min(gaps))
	fmt.Fprintf(w, "worst gap    %.2f%%\n", slices.Max(gaps))
}

func runSolve(ctx context.Context, w io.Writer, path, bksPath string, cfg opt.Config, o *solveOptions) (summaryRow, error) {
	inst, err := readInstance(path)
	if err != nil {
		return summaryRow{}, err
	}
	rec := trace.NewRecorder(0)
	var res opt.Result
	if o.starts > 1 {
		var starts []opt.StartResult
		res, starts, err = opt.SolveMultiStart(ctx, inst, cfg, o.starts, rec)
		if err == nil {
			for _, s := range starts {
				klog.V(1).InfoS("start finished", "start", s.Start, "seed", s.Seed, "cost", s.Result.Best.Cost(), "routes", s.Result.Best.RouteCount())
			}
		}
	} else {
		var solver *opt.Solver
		if solver, err = opt.NewSolver(cfg, opt.WithObserver(rec)); err == nil {
			res, err = solver.Solve(ctx, inst)
		}
	}
	if err != nil {
		return summaryRow{}, err
	}
	m := res.Metrics
	row := summaryRow{name: inst.Name(), cost: res.Best.Cost(), elapsed: m.Duration}
	fmt.Fprintf(w, "instance     %s (%d customers, capacity %d)\n", inst.Name(), inst.NumCustomers(), inst.Capacity())
	fmt.Fprintf(w, "method       %s\n", cfg.Method)
	fmt.Fprintf(w, "initial      %.2f\n", m.InitialCost)
	fmt.Fprintf(w, "descent      %.2f\n", m.DescentCost)
	fmt.Fprintf(w, "best         %.2f with %d routes\n", res.Best.Cost(), res.Best.RouteCount())
	fmt.Fprintf(w, "iterations   %d (%d improvements, %d tabu hits)\n", m.Iterations, m.Improvements, m.TabuHits)
	fmt.Fprintf(w, "stopped      %s after %s\n", m.StopReason, m.Duration.Round(time.Millisecond))
	if bksPath != "" {
		ref, err := referenceCost(bksPath, inst)
		if err != nil {
			return summaryRow{}, fmt.Errorf("read best known solution: %w", err)
		}
		row.bks, row.hasBKS = ref, true
		fmt.Fprintf(w, "gap          %.2f%% to %.2f\n", tsplib.Gap(res.Best.Cost(), ref), ref)
	}
	if o.tracePath != "" {
		if err := writeTrace(o.tracePath, rec); err != nil {
			return summaryRow{}, err
		}
	}
	return row, writeOut(w, o.out, res.Best)
}

func runConstruct(w io.Writer, path string, o *solveOptions) error {
	inst, err := readInstance(path)
	if err != nil {
		return err
	}
	if o.method == "" {
		for _, m := range opt.Methods {
			sol, err := opt.Construct(inst, m, opt.NewRand(o.seed))
			if err != nil {
				return fmt.Errorf("%s: %w", m, err)
			}
			fmt.Fprintf(w, "%-20s cost %10.2f  routes %d\n", m, sol.Cost(), sol.RouteCount())
		}
		return nil
	}
	m, err := opt.ParseMethod(o.method)
	if err != nil {
		return err
	}
	sol, err := opt.Construct(inst, m, opt.NewRand(o.seed))
	if err != nil {
		return err
	}
	fmt.Fprintf(w, "%s: %s cost %.2f with %d routes\n", inst.Name(), m, sol.Cost(), sol.RouteCount())
	return writeOut(w, o.out, sol)
}

func readInstance(path string) (*opt.Instance, error) {
	f, err := tsplib.ParseFile(path)
	if err != nil {
		return nil, err
	}
	return f.Instance()
}

// referenceCost uses the cost line of a .sol file, or recomputes it from its routes.
func referenceCost(path string, inst *opt.Instance) (float64, error) {
	sf, err := tsplib.ParseSolutionFile(path)
	if err != nil {
		return 0, err
	}
	if sf.HasCost {
		return sf.Cost, nil
	}
	sol, err := sf.Resolve(inst)
	if err != nil {
		return 0, err
	}
	return sol.Cost(), nil
}

func writeTrace(path string, rec *trace.Recorder) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := rec.WriteCompressed(f); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

func writeOut(w io.Writer, path string, sol *opt.Solution) error {
	if path == "" {
		return tsplib.WriteSolution(w, sol)
	}
	return tsplib.WriteSolutionFile(path, sol)
}
