package opt

// twoOptStar exchanges the tails of two routes. I and J are the head lengths kept
// by R1 and R2; both are at least one.
type twoOptStar struct{}

func (twoOptStar) Kind() NeighborhoodKind { return TwoOptStar }

func (twoOptStar) Find(s *Solution) (Move, bool) {
	inst := s.inst
	best := Move{Kind: TwoOptStar}
	found := false
	cums := make([][]float64, len(s.routes))
	loads := make([][]int, len(s.routes))
	for i, r := range s.routes {
		cums[i] = r.edgeSums(inst)
		loads[i] = r.loadSums(inst)
	}
	for r1i := 0; r1i < len(s.routes); r1i++ {
		r1, cum1, pre1 := s.routes[r1i], cums[r1i], loads[r1i]
		for r2i := r1i + 1; r2i < len(s.routes); r2i++ {
			r2, cum2, pre2 := s.routes[r2i], cums[r2i], loads[r2i]
			for a := 1; a <= len(r1.nodes); a++ {
				tail1Load := r1.load - pre1[a]
				end1, next1 := r1.nodes[a-1], r1.at(a)
				tail1Cost := r1.cost - cum1[a+1]
				for b := 1; b <= len(r2.nodes); b++ {
					if a == len(r1.nodes) && b == len(r2.nodes) {
						continue
					}
					tail2Load := r2.load - pre2[b]
					if pre1[a]+tail2Load > inst.capacity || pre2[b]+tail1Load > inst.capacity {
						continue
					}
					end2, next2 := r2.nodes[b-1], r2.at(b)
					tail2Cost := r2.cost - cum2[b+1]
					new1 := cum1[a] + inst.Dist(end1, next2) + tail2Cost
					new2 := cum2[b] + inst.Dist(end2, next1) + tail1Cost
					d1, d2 := new1-r1.cost, new2-r2.cost
					if improves(d1+d2, best.Delta) {
						best = Move{Kind: TwoOptStar, Delta: d1 + d2, R1: r1i, I: a, R2: r2i, J: b, D1: d1, D2: d2}
						found = true
					}
				}
			}
		}
	}
	return best, found
}

func (twoOptStar) Apply(s *Solution, m Move) {
	inst := s.inst
	r1, r2 := s.routes[m.R1], s.routes[m.R2]
	n1 := append(append([]int(nil), r1.nodes[:m.I]...), r2.nodes[m.J:]...)
	n2 := append(append([]int(nil), r2.nodes[:m.J]...), r1.nodes[m.I:]...)
	r1.nodes, r2.nodes = n1, n2
	total := r1.load + r2.load
	r1.load = routeLoad(inst, n1)
	r2.load = total - r1.load
	r1.cost += m.D1
	r2.cost += m.D2
}
