package tsplib

import (
	"bufio"
	"fmt"
	"io"
	"math"
	"os"
	"regexp"
	"strconv"
	"strings"

	"cvrpsolver/internal/opt"
)

// SolutionFile is a parsed ".sol" file. Routes hold customer TSPLIB ids.
type SolutionFile struct {
	Routes  [][]int
	Cost    float64
	HasCost bool
}

var costValue = regexp.MustCompile(`[0-9]+(\.[0-9]+)?`)

// WriteSolution writes "Route #i: ids" lines followed by the rounded cost.
func WriteSolution(w io.Writer, sol *opt.Solution) error {
	return WriteRoutes(w, sol.CustomerIDs(), sol.Cost())
}

// WriteRoutes writes routes given as customer ids in the same layout as WriteSolution.
func WriteRoutes(w io.Writer, routes [][]int, cost float64) error {
	bw := bufio.NewWriter(w)
	for i, route := range routes {
		parts := make([]string, len(route))
		for k, id := range route {
			parts[k] = strconv.Itoa(id)
		}
		if _, err := fmt.Fprintf(bw, "Route #%d: %s\n", i+1, strings.Join(parts, " ")); err != nil {
			return err
		}
	}
	if _, err := fmt.Fprintf(bw, "Cost %d\n", int64(math.Round(cost))); err != nil {
		return err
	}
	return bw.Flush()
}

// WriteSolutionFile creates path and writes sol into it.
func WriteSolutionFile(path string, sol *opt.Solution) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := WriteSolution(f, sol); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

func ParseSolution(r io.Reader) (*SolutionFile, error) {
	out := &SolutionFile{}
	sc := bufio.NewScanner(r)
	lineNo := 0
	for sc.Scan() {
		lineNo++
		line := strings.TrimSpace(sc.Text())
		lower := strings.ToLower(line)
		switch {
		case line == "":
		case strings.HasPrefix(lower, "cost"):
			m := costValue.FindString(line)
			if m == "" {
				return nil, syntaxErr(lineNo, "cost without value")
			}
			v, err := strconv.ParseFloat(m, 64)
			if err != nil {
				return nil, syntaxErr(lineNo, err.Error())
			}
			out.Cost, out.HasCost = v, true
		case strings.HasPrefix(lower, "route"):
			_, rest, _ := strings.Cut(line, ":")
			var route []int
			for _, f := range strings.Fields(rest) {
				id, err := strconv.Atoi(f)
				if err != nil {
					return nil, syntaxErr(lineNo, err.Error())
				}
				route = append(route, id)
			}
			if len(route) > 0 {
				out.Routes = append(out.Routes, route)
			}
		}
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

func ParseSolutionFile(path string) (*SolutionFile, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return ParseSolution(f)
}

// Resolve maps the ids onto inst and validates the result.
func (s *SolutionFile) Resolve(inst *opt.Instance) (*opt.Solution, error) {
	nodeOf := make(map[int]int, inst.NumCustomers())
	for node := 1; node < inst.N(); node++ {
		nodeOf[inst.CustomerID(node)] = node
	}
	seqs := make([][]int, len(s.Routes))
	for i, route := range s.Routes {
		seq := make([]int, len(route))
		for k, id := range route {
			node, ok := nodeOf[id]
			if !ok {
				return nil, fmt.Errorf("%w: route %d: unknown customer %d", ErrSyntax, i+1, id)
			}
			seq[k] = node
		}
		seqs[i] = seq
	}
	sol := opt.NewSolution(inst, seqs)
	if err := sol.Validate(); err != nil {
		return nil, err
	}
	return sol, nil
}

// Gap is the relative distance to a reference cost in percent.
func Gap(cost, reference float64) float64 {
	if reference == 0 {
		return 0
	}
	return (cost - reference) / reference * 100
}
