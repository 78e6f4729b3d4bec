package opt

// relocate moves one customer into another route, or into a route of its own.
// R2 == -1 means a new route.
type relocate struct{}

func (relocate) Kind() NeighborhoodKind { return Relocate }

func (relocate) Find(s *Solution) (Move, bool) {
	inst := s.inst
	best := Move{Kind: Relocate}
	found := false
	for r1i, r1 := range s.routes {
		for i, c := range r1.nodes {
			p, nx := r1.at(i-1), r1.at(i+1)
			rem := inst.Dist(p, nx) - inst.Dist(p, c) - inst.Dist(c, nx)
			dem := inst.Demand(c)
			for r2i, r2 := range s.routes {
				if r2i == r1i || r2.load+dem > inst.capacity {
					continue
				}
				for q := 0; q <= len(r2.nodes); q++ {
					a, b := r2.at(q-1), r2.at(q)
					ins := inst.Dist(a, c) + inst.Dist(c, b) - inst.Dist(a, b)
					if improves(rem+ins, best.Delta) {
						best = Move{Kind: Relocate, Delta: rem + ins, R1: r1i, I: i, R2: r2i, J: q, D1: rem, D2: ins}
						found = true
					}
				}
			}
			if len(r1.nodes) > 1 {
				ins := 2 * inst.Dist(0, c)
				if improves(rem+ins, best.Delta) {
					best = Move{Kind: Relocate, Delta: rem + ins, R1: r1i, I: i, R2: -1, D1: rem, D2: ins}
					found = true
				}
			}
		}
	}
	return best, found
}

func (relocate) Apply(s *Solution, m Move) {
	inst := s.inst
	r1 := s.routes[m.R1]
	c := r1.nodes[m.I]
	r1.nodes = removeRange(r1.nodes, m.I, m.I+1)
	r1.load -= inst.Demand(c)
	r1.cost += m.D1
	if m.R2 < 0 {
		s.routes = append(s.routes, &Route{nodes: []int{c}, load: inst.Demand(c), cost: m.D2})
	} else {
		r2 := s.routes[m.R2]
		r2.nodes = insertAt(r2.nodes, m.J, c)
		r2.load += inst.Demand(c)
		r2.cost += m.D2
	}
	s.compact()
}
