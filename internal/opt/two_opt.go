package opt

// twoOpt reverses a segment inside one route.
type twoOpt struct{}

func (twoOpt) Kind() NeighborhoodKind { return TwoOpt }

func (twoOpt) Find(s *Solution) (Move, bool) {
	inst := s.inst
	best := Move{Kind: TwoOpt}
	found := false
	for ri, r := range s.routes {
		n := len(r.nodes)
		for i := 0; i < n-1; i++ {
			a, ni := r.at(i-1), r.nodes[i]
			for j := i + 1; j < n; j++ {
				nj, b := r.nodes[j], r.at(j+1)
				delta := inst.Dist(a, nj) + inst.Dist(ni, b) - inst.Dist(a, ni) - inst.Dist(nj, b)
				if improves(delta, best.Delta) {
					best = Move{Kind: TwoOpt, Delta: delta, R1: ri, I: i, J: j, D1: delta}
					found = true
				}
			}
		}
	}
	return best, found
}

func (twoOpt) Apply(s *Solution, m Move) {
	r := s.routes[m.R1]
	reverseInts(r.nodes[m.I : m.J+1])
	r.cost += m.D1
}
