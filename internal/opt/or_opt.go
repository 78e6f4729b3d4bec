package opt

// maxChain is the longest segment moved by or-opt.
const maxChain = 3

// orOpt moves a chain of one to three consecutive customers, keeping its
// orientation, to another position in the same route or into another route.
// I is the chain start, L its length and J the insertion position in the target
// sequence after the chain has been removed.
type orOpt struct{}

func (orOpt) Kind() NeighborhoodKind { return OrOpt }

func (orOpt) Find(s *Solution) (Move, bool) {
	inst := s.inst
	best := Move{Kind: OrOpt}
	found := false
	for r1i, r1 := range s.routes {
		n := len(r1.nodes)
		for l := 1; l <= maxChain && l <= n; l++ {
			for i := 0; i+l <= n; i++ {
				head, tail := r1.nodes[i], r1.nodes[i+l-1]
				p, nx := r1.at(i-1), r1.at(i+l)
				rem := inst.Dist(p, nx) - inst.Dist(p, head) - inst.Dist(tail, nx)
				chainLoad := 0
				for _, v := range r1.nodes[i : i+l] {
					chainLoad += inst.Demand(v)
				}
				// same route: positions index the sequence without the chain
				if l < n {
					reduced := n - l
					at := func(k int) int {
						if k < 0 || k >= reduced {
							return 0
						}
						if k < i {
							return r1.nodes[k]
						}
						return r1.nodes[k+l]
					}
					for q := 0; q <= reduced; q++ {
						if q == i {
							continue
						}
						a, b := at(q-1), at(q)
						ins := inst.Dist(a, head) + inst.Dist(tail, b) - inst.Dist(a, b)
						if improves(rem+ins, best.Delta) {
							best = Move{Kind: OrOpt, Delta: rem + ins, R1: r1i, R2: r1i, I: i, L: l, J: q, D1: rem + ins}
							found = true
						}
					}
				}
				for r2i, r2 := range s.routes {
					if r2i == r1i || r2.load+chainLoad > inst.capacity {
						continue
					}
					for q := 0; q <= len(r2.nodes); q++ {
						a, b := r2.at(q-1), r2.at(q)
						ins := inst.Dist(a, head) + inst.Dist(tail, b) - inst.Dist(a, b)
						if improves(rem+ins, best.Delta) {
							best = Move{Kind: OrOpt, Delta: rem + ins, R1: r1i, R2: r2i, I: i, L: l, J: q, D1: rem, D2: ins}
							found = true
						}
					}
				}
			}
		}
	}
	return best, found
}

func (orOpt) Apply(s *Solution, m Move) {
	inst := s.inst
	r1 := s.routes[m.R1]
	chain := append([]int(nil), r1.nodes[m.I:m.I+m.L]...)
	rest := removeRange(r1.nodes, m.I, m.I+m.L)
	if m.R1 == m.R2 {
		r1.nodes = insertAt(rest, m.J, chain...)
		r1.cost += m.D1
		return
	}
	load := routeLoad(inst, chain)
	r1.nodes = rest
	r1.load -= load
	r1.cost += m.D1
	r2 := s.routes[m.R2]
	r2.nodes = insertAt(r2.nodes, m.J, chain...)
	r2.load += load
	r2.cost += m.D2
	s.compact()
}
