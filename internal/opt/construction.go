package opt

import (
	"fmt"
	"math"
	"math/rand"
	"sort"
	"strings"
)

// Method selects the construction heuristic for the initial solution.
type Method int

const (
	ClarkeWright Method = iota
	NearestNeighbor
	Greedy
	CheapestInsertion
	Random
)

// Methods lists every construction heuristic in declaration order.
var Methods = []Method{ClarkeWright, NearestNeighbor, Greedy, CheapestInsertion, Random}

func (m Method) String() string {
	switch m {
	case ClarkeWright:
		return "clarke-wright"
	case NearestNeighbor:
		return "nearest-neighbor"
	case Greedy:
		return "greedy"
	case CheapestInsertion:
		return "cheapest-insertion"
	case Random:
		return "random"
	}
	return fmt.Sprintf("method(%d)", int(m))
}

// ParseMethod accepts the canonical names plus a few short aliases.
func ParseMethod(s string) (Method, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "clarke-wright", "clarke_wright", "savings", "cw":
		return ClarkeWright, nil
	case "nearest-neighbor", "nearest_neighbor", "nn":
		return NearestNeighbor, nil
	case "greedy":
		return Greedy, nil
	case "cheapest-insertion", "cheapest_insertion", "insertion":
		return CheapestInsertion, nil
	case "random":
		return Random, nil
	}
	return 0, fmt.Errorf("%w: unknown construction method %q", ErrInvalidConfig, s)
}

func (m Method) MarshalText() ([]byte, error) { return []byte(m.String()), nil }

func (m *Method) UnmarshalText(b []byte) error {
	v, err := ParseMethod(string(b))
	if err != nil {
		return err
	}
	*m = v
	return nil
}

// Construct builds a feasible initial solution. rng is only used by Random.
func Construct(inst *Instance, m Method, rng *rand.Rand) (*Solution, error) {
	var seqs [][]int
	switch m {
	case ClarkeWright:
		seqs = clarkeWright(inst)
	case NearestNeighbor:
		seqs = nearestNeighbor(inst)
	case Greedy:
		seqs = greedyEdges(inst)
	case CheapestInsertion:
		seqs = cheapestInsertion(inst)
	case Random:
		if rng == nil {
			rng = rngFromSeed(0)
		}
		seqs = randomPacking(inst, rng)
	default:
		return nil, fmt.Errorf("%w: unknown construction method %d", ErrInvalidConfig, int(m))
	}
	sol := NewSolution(inst, seqs)
	if err := sol.Validate(); err != nil {
		return nil, fmt.Errorf("construct %s: %w", m, err)
	}
	return sol, nil
}

type saving struct {
	i, j  int
	value float64
}

func clarkeWright(inst *Instance) [][]int {
	n := inst.N()
	routes := make([][]int, n)
	loads := make([]int, n)
	routeOf := make([]int, n)
	for c := 1; c < n; c++ {
		routes[c] = []int{c}
		loads[c] = inst.Demand(c)
		routeOf[c] = c
	}
	var savings []saving
	for i := 1; i < n; i++ {
		for j := i + 1; j < n; j++ {
			s := inst.Dist(0, i) + inst.Dist(0, j) - inst.Dist(i, j)
			if s > 0 {
				savings = append(savings, saving{i: i, j: j, value: s})
			}
		}
	}
	sort.SliceStable(savings, func(a, b int) bool { return savings[a].value > savings[b].value })
	for _, sv := range savings {
		ri, rj := routeOf[sv.i], routeOf[sv.j]
		if ri == rj || loads[ri]+loads[rj] > inst.Capacity() {
			continue
		}
		a, b := routes[ri], routes[rj]
		if !isEndpoint(a, sv.i) || !isEndpoint(b, sv.j) {
			continue
		}
		if a[len(a)-1] != sv.i {
			reverseInts(a)
		}
		if b[0] != sv.j {
			reverseInts(b)
		}
		routes[ri] = append(a, b...)
		loads[ri] += loads[rj]
		for _, v := range b {
			routeOf[v] = ri
		}
		routes[rj] = nil
		loads[rj] = 0
	}
	return routes
}

func isEndpoint(seq []int, v int) bool {
	return len(seq) > 0 && (seq[0] == v || seq[len(seq)-1] == v)
}

func nearestNeighbor(inst *Instance) [][]int {
	n := inst.N()
	visited := make([]bool, n)
	var routes [][]int
	remaining := n - 1
	for remaining > 0 {
		var route []int
		load, last := 0, 0
		for {
			next, bestD := -1, math.Inf(1)
			for c := 1; c < n; c++ {
				if visited[c] || load+inst.Demand(c) > inst.Capacity() {
					continue
				}
				if d := inst.Dist(last, c); d < bestD {
					next, bestD = c, d
				}
			}
			if next < 0 {
				break
			}
			visited[next] = true
			route = append(route, next)
			load += inst.Demand(next)
			last = next
			remaining--
		}
		routes = append(routes, route)
	}
	return routes
}

type edge struct {
	i, j int
	d    float64
}

type fragment struct {
	nodes      []int
	load       int
	headDepot  bool
	tailDepot  bool
	eliminated bool
}

// reverse flips the fragment, keeping the depot anchors on the same nodes.
func (f *fragment) reverse() {
	reverseInts(f.nodes)
	f.headDepot, f.tailDepot = f.tailDepot, f.headDepot
}

// freeEnd reports whether v sits on an end of f that is not anchored at the depot.
// head is true when that end is the first node.
func (f *fragment) freeEnd(v int) (head bool, ok bool) {
	if f.nodes[len(f.nodes)-1] == v && !f.tailDepot {
		return false, true
	}
	if f.nodes[0] == v && !f.headDepot {
		return true, true
	}
	return false, false
}

// greedyEdges adds the shortest edges first, depot edges included, while every
// fragment stays a simple path whose load fits a vehicle.
func greedyEdges(inst *Instance) [][]int {
	n := inst.N()
	edges := make([]edge, 0, n*(n-1)/2)
	for i := 0; i < n; i++ {
		for j := i + 1; j < n; j++ {
			edges = append(edges, edge{i: i, j: j, d: inst.Dist(i, j)})
		}
	}
	sort.SliceStable(edges, func(a, b int) bool { return edges[a].d < edges[b].d })

	var frags []*fragment
	fragOf := make([]int, n)
	for i := range fragOf {
		fragOf[i] = -1
	}
	newFrag := func(nodes ...int) *fragment {
		f := &fragment{nodes: nodes, load: routeLoad(inst, nodes)}
		for _, v := range nodes {
			fragOf[v] = len(frags)
		}
		frags = append(frags, f)
		return f
	}
	for _, e := range edges {
		if e.i == 0 {
			c := e.j
			if fragOf[c] < 0 {
				newFrag(c).headDepot = true
				continue
			}
			f := frags[fragOf[c]]
			if head, ok := f.freeEnd(c); ok {
				if head {
					f.headDepot = true
				} else {
					f.tailDepot = true
				}
			}
			continue
		}
		fi, fj := fragOf[e.i], fragOf[e.j]
		switch {
		case fi < 0 && fj < 0:
			if inst.Demand(e.i)+inst.Demand(e.j) <= inst.Capacity() {
				newFrag(e.i, e.j)
			}
		case fi >= 0 && fj < 0, fi < 0 && fj >= 0:
			v, w, fidx := e.i, e.j, fi
			if fi < 0 {
				v, w, fidx = e.j, e.i, fj
			}
			f := frags[fidx]
			if f.load+inst.Demand(w) > inst.Capacity() {
				continue
			}
			head, ok := f.freeEnd(v)
			if !ok {
				continue
			}
			if head {
				f.nodes = insertAt(f.nodes, 0, w)
			} else {
				f.nodes = append(f.nodes, w)
			}
			f.load += inst.Demand(w)
			fragOf[w] = fidx
		case fi != fj:
			a, b := frags[fi], frags[fj]
			if a.load+b.load > inst.Capacity() {
				continue
			}
			headA, okA := a.freeEnd(e.i)
			headB, okB := b.freeEnd(e.j)
			if !okA || !okB {
				continue
			}
			if headA {
				a.reverse()
			}
			if !headB {
				b.reverse()
			}
			a.nodes = append(a.nodes, b.nodes...)
			a.load += b.load
			a.tailDepot = b.tailDepot
			for _, v := range b.nodes {
				fragOf[v] = fi
			}
			b.eliminated = true
		}
	}
	var routes [][]int
	for _, f := range frags {
		if !f.eliminated {
			routes = append(routes, f.nodes)
		}
	}
	for c := 1; c < n; c++ {
		if fragOf[c] < 0 {
			routes = append(routes, []int{c})
		}
	}
	return routes
}

// cheapestInsertion starts from the customer farthest from the depot. Opening a
// new route is priced as an out-and-back trip.
func cheapestInsertion(inst *Instance) [][]int {
	n := inst.N()
	if n == 1 {
		return nil
	}
	far := 1
	for c := 2; c < n; c++ {
		if inst.Dist(0, c) > inst.Dist(0, far) {
			far = c
		}
	}
	routes := [][]int{{far}}
	loads := []int{inst.Demand(far)}
	routed := make([]bool, n)
	routed[far] = true
	for left := n - 2; left > 0; left-- {
		bestC, bestR, bestPos := -1, -1, -1
		bestInc := math.Inf(1)
		for c := 1; c < n; c++ {
			if routed[c] {
				continue
			}
			for ri, r := range routes {
				if loads[ri]+inst.Demand(c) > inst.Capacity() {
					continue
				}
				prev := 0
				for pos := 0; pos <= len(r); pos++ {
					next := 0
					if pos < len(r) {
						next = r[pos]
					}
					inc := inst.Dist(prev, c) + inst.Dist(c, next) - inst.Dist(prev, next)
					if inc < bestInc {
						bestC, bestR, bestPos, bestInc = c, ri, pos, inc
					}
					prev = next
				}
			}
			if inc := 2 * inst.Dist(0, c); inc < bestInc {
				bestC, bestR, bestPos, bestInc = c, -1, 0, inc
			}
		}
		if bestR < 0 {
			routes = append(routes, []int{bestC})
			loads = append(loads, inst.Demand(bestC))
		} else {
			routes[bestR] = insertAt(routes[bestR], bestPos, bestC)
			loads[bestR] += inst.Demand(bestC)
		}
		routed[bestC] = true
	}
	return routes
}

func randomPacking(inst *Instance, rng *rand.Rand) [][]int {
	customers := make([]int, inst.NumCustomers())
	for i := range customers {
		customers[i] = i + 1
	}
	shuffleIntsInPlace(customers, rng)
	var routes [][]int
	var cur []int
	load := 0
	for _, c := range customers {
		if load+inst.Demand(c) > inst.Capacity() {
			routes = append(routes, cur)
			cur, load = nil, 0
		}
		cur = append(cur, c)
		load += inst.Demand(c)
	}
	if len(cur) > 0 {
		routes = append(routes, cur)
	}
	return routes
}
