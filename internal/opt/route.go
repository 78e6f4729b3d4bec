package opt

// Route is a depot-to-depot tour. The depot is implicit at both ends; nodes holds
// customer node indices only. load and cost are caches maintained by the move
// operators.
type Route struct {
	nodes []int
	load  int
	cost  float64
}

func newRoute(inst *Instance, nodes []int) *Route {
	r := &Route{nodes: nodes}
	r.load = routeLoad(inst, nodes)
	r.cost = routeCost(inst, nodes)
	return r
}

// Nodes returns a copy of the visiting sequence.
func (r *Route) Nodes() []int { return append([]int(nil), r.nodes...) }

func (r *Route) Len() int { return len(r.nodes) }

func (r *Route) Load() int { return r.load }

func (r *Route) Cost() float64 { return r.cost }

func (r *Route) clone() *Route {
	return &Route{nodes: append([]int(nil), r.nodes...), load: r.load, cost: r.cost}
}

// at returns the node at position i, or the depot when i falls outside the route.
func (r *Route) at(i int) int {
	if i < 0 || i >= len(r.nodes) {
		return 0
	}
	return r.nodes[i]
}

func (r *Route) first() int { return r.at(0) }

func (r *Route) last() int { return r.at(len(r.nodes) - 1) }

// edgeSums returns cum where cum[k] is the length of the first k edges
// (depot->n0, n0->n1, ...). cum[len+1] is the route cost.
func (r *Route) edgeSums(inst *Instance) []float64 {
	cum := make([]float64, len(r.nodes)+2)
	prev := 0
	for k := 0; k <= len(r.nodes); k++ {
		next := r.at(k)
		cum[k+1] = cum[k] + inst.Dist(prev, next)
		prev = next
	}
	return cum
}

// loadSums returns pre where pre[k] is the demand of the first k customers.
func (r *Route) loadSums(inst *Instance) []int {
	pre := make([]int, len(r.nodes)+1)
	for k, v := range r.nodes {
		pre[k+1] = pre[k] + inst.Demand(v)
	}
	return pre
}

func routeCost(inst *Instance, nodes []int) float64 {
	if len(nodes) == 0 {
		return 0
	}
	total := inst.Dist(0, nodes[0])
	for i := 1; i < len(nodes); i++ {
		total += inst.Dist(nodes[i-1], nodes[i])
	}
	return total + inst.Dist(nodes[len(nodes)-1], 0)
}

func routeLoad(inst *Instance, nodes []int) int {
	load := 0
	for _, v := range nodes {
		load += inst.Demand(v)
	}
	return load
}

func reverseInts(a []int) {
	for i, j := 0, len(a)-1; i < j; i, j = i+1, j-1 {
		a[i], a[j] = a[j], a[i]
	}
}

func insertAt(a []int, pos int, vals ...int) []int {
	out := make([]int, 0, len(a)+len(vals))
	out = append(out, a[:pos]...)
	out = append(out, vals...)
	return append(out, a[pos:]...)
}

func removeRange(a []int, from, to int) []int {
	out := make([]int, 0, len(a)-(to-from))
	out = append(out, a[:from]...)
	return append(out, a[to:]...)
}
