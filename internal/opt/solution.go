package opt

import (
	"encoding/binary"
	"fmt"
	"math"
	"slices"

	"github.com/RoaringBitmap/roaring/v2"
	"github.com/cespare/xxhash/v2"
)

// costTolerance bounds the drift between cached and recomputed costs.
const costTolerance = 1e-6

// Solution is a set of routes covering every customer exactly once.
type Solution struct {
	inst   *Instance
	routes []*Route
}

// NewSolution builds a solution from node-index sequences. Empty sequences are dropped.
func NewSolution(inst *Instance, seqs [][]int) *Solution {
	s := &Solution{inst: inst}
	for _, seq := range seqs {
		if len(seq) == 0 {
			continue
		}
		s.routes = append(s.routes, newRoute(inst, append([]int(nil), seq...)))
	}
	return s
}

func (s *Solution) Instance() *Instance { return s.inst }

// Routes exposes the routes for reading. Callers must not mutate them.
func (s *Solution) Routes() []*Route { return s.routes }

func (s *Solution) RouteCount() int { return len(s.routes) }

// Cost is the sum of the cached route costs.
func (s *Solution) Cost() float64 {
	total := 0.0
	for _, r := range s.routes {
		total += r.cost
	}
	return total
}

// Sequences returns node-index sequences, one per route.
func (s *Solution) Sequences() [][]int {
	out := make([][]int, len(s.routes))
	for i, r := range s.routes {
		out[i] = r.Nodes()
	}
	return out
}

// CustomerIDs returns the routes as external customer ids.
func (s *Solution) CustomerIDs() [][]int {
	out := make([][]int, len(s.routes))
	for i, r := range s.routes {
		ids := make([]int, len(r.nodes))
		for k, v := range r.nodes {
			ids[k] = s.inst.CustomerID(v)
		}
		out[i] = ids
	}
	return out
}

func (s *Solution) Clone() *Solution {
	c := &Solution{inst: s.inst, routes: make([]*Route, len(s.routes))}
	for i, r := range s.routes {
		c.routes[i] = r.clone()
	}
	return c
}

// Better reports whether s beats other: lower cost, or equal cost with fewer
// routes. A tie never lets the cost rise.
func (s *Solution) Better(other *Solution) bool {
	if other == nil {
		return true
	}
	a, b := s.Cost(), other.Cost()
	if a < b-ImprovementEpsilon {
		return true
	}
	if a <= b && b-a <= ImprovementEpsilon {
		return s.RouteCount() < other.RouteCount()
	}
	return false
}

// compact drops empty routes.
func (s *Solution) compact() {
	out := s.routes[:0]
	for _, r := range s.routes {
		if len(r.nodes) > 0 {
			out = append(out, r)
		}
	}
	for i := len(out); i < len(s.routes); i++ {
		s.routes[i] = nil
	}
	s.routes = out
}

// Validate re-derives every invariant from scratch: each customer appears exactly
// once, loads fit the capacity and cached loads and costs match the sequences.
func (s *Solution) Validate() error {
	seen := roaring.New()
	for ri, r := range s.routes {
		if len(r.nodes) == 0 {
			return &InfeasibleError{Route: ri, Reason: "empty route"}
		}
		for _, v := range r.nodes {
			if v <= 0 || v >= s.inst.n {
				return &InfeasibleError{Route: ri, Reason: fmt.Sprintf("node %d out of range", v)}
			}
			if !seen.CheckedAdd(uint32(v)) {
				return &InfeasibleError{Route: ri, Reason: fmt.Sprintf("customer %d visited twice", s.inst.CustomerID(v))}
			}
		}
		load := routeLoad(s.inst, r.nodes)
		if load > s.inst.capacity {
			return &InfeasibleError{Route: ri, Reason: fmt.Sprintf("load %d exceeds capacity %d", load, s.inst.capacity)}
		}
		if load != r.load {
			return &InfeasibleError{Route: ri, Reason: fmt.Sprintf("cached load %d, actual %d", r.load, load)}
		}
		if c := routeCost(s.inst, r.nodes); math.Abs(c-r.cost) > costTolerance {
			return &InfeasibleError{Route: ri, Reason: fmt.Sprintf("cached cost %.6f, actual %.6f", r.cost, c)}
		}
	}
	if got, want := seen.GetCardinality(), uint64(s.inst.NumCustomers()); got != want {
		return &InfeasibleError{Route: -1, Reason: fmt.Sprintf("%d of %d customers routed", got, want)}
	}
	return nil
}

// Signature hashes the route partition: each route's customers are sorted and
// the routes are sorted, so neither route order nor visiting order matters.
func (s *Solution) Signature() uint64 {
	canon := make([][]int, len(s.routes))
	for i, r := range s.routes {
		set := append([]int(nil), r.nodes...)
		slices.Sort(set)
		canon[i] = set
	}
	slices.SortFunc(canon, slices.Compare[[]int])
	h := xxhash.New()
	var buf [4]byte
	for _, seq := range canon {
		for _, v := range seq {
			binary.LittleEndian.PutUint32(buf[:], uint32(v))
			_, _ = h.Write(buf[:])
		}
		// route separator; node 0 never appears inside a route
		binary.LittleEndian.PutUint32(buf[:], 0)
		_, _ = h.Write(buf[:])
	}
	return h.Sum64()
}
