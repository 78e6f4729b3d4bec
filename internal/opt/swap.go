package opt

// swap exchanges two customers that sit in different routes.
type swap struct{}

func (swap) Kind() NeighborhoodKind { return Swap }

func (swap) Find(s *Solution) (Move, bool) {
	inst := s.inst
	best := Move{Kind: Swap}
	found := false
	for r1i := 0; r1i < len(s.routes); r1i++ {
		r1 := s.routes[r1i]
		for r2i := r1i + 1; r2i < len(s.routes); r2i++ {
			r2 := s.routes[r2i]
			for i, c1 := range r1.nodes {
				p1, n1 := r1.at(i-1), r1.at(i+1)
				d1 := inst.Demand(c1)
				for j, c2 := range r2.nodes {
					d2 := inst.Demand(c2)
					if r1.load-d1+d2 > inst.capacity || r2.load-d2+d1 > inst.capacity {
						continue
					}
					p2, n2 := r2.at(j-1), r2.at(j+1)
					delta1 := inst.Dist(p1, c2) + inst.Dist(c2, n1) - inst.Dist(p1, c1) - inst.Dist(c1, n1)
					delta2 := inst.Dist(p2, c1) + inst.Dist(c1, n2) - inst.Dist(p2, c2) - inst.Dist(c2, n2)
					if improves(delta1+delta2, best.Delta) {
						best = Move{Kind: Swap, Delta: delta1 + delta2, R1: r1i, I: i, R2: r2i, J: j, D1: delta1, D2: delta2}
						found = true
					}
				}
			}
		}
	}
	return best, found
}

func (swap) Apply(s *Solution, m Move) {
	inst := s.inst
	r1, r2 := s.routes[m.R1], s.routes[m.R2]
	c1, c2 := r1.nodes[m.I], r2.nodes[m.J]
	r1.nodes[m.I], r2.nodes[m.J] = c2, c1
	r1.load += inst.Demand(c2) - inst.Demand(c1)
	r2.load += inst.Demand(c1) - inst.Demand(c2)
	r1.cost += m.D1
	r2.cost += m.D2
}
