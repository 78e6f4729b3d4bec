package opt

// Merge joins for two routes r1 and r2.
const (
	mergeForward  = iota // r1 then r2
	mergeBackward        // r2 then r1
	mergeTailTail        // r1 then reversed r2
	mergeHeadHead        // reversed r1 then r2
)

// merge concatenates two routes into one. L holds the join configuration and the
// merged route replaces R1.
type merge struct{}

func (merge) Kind() NeighborhoodKind { return Merge }

func (merge) Find(s *Solution) (Move, bool) {
	inst := s.inst
	best := Move{Kind: Merge}
	found := false
	for r1i := 0; r1i < len(s.routes); r1i++ {
		r1 := s.routes[r1i]
		f1, l1 := r1.first(), r1.last()
		for r2i := r1i + 1; r2i < len(s.routes); r2i++ {
			r2 := s.routes[r2i]
			if r1.load+r2.load > inst.capacity {
				continue
			}
			f2, l2 := r2.first(), r2.last()
			joins := [4]float64{
				mergeForward:  inst.Dist(l1, f2) - inst.Dist(l1, 0) - inst.Dist(0, f2),
				mergeBackward: inst.Dist(l2, f1) - inst.Dist(l2, 0) - inst.Dist(0, f1),
				mergeTailTail: inst.Dist(l1, l2) - inst.Dist(l1, 0) - inst.Dist(0, l2),
				mergeHeadHead: inst.Dist(f1, f2) - inst.Dist(0, f1) - inst.Dist(0, f2),
			}
			for cfg, delta := range joins {
				if improves(delta, best.Delta) {
					best = Move{Kind: Merge, Delta: delta, R1: r1i, R2: r2i, L: cfg, D1: delta}
					found = true
				}
			}
		}
	}
	return best, found
}

func (merge) Apply(s *Solution, m Move) {
	r1, r2 := s.routes[m.R1], s.routes[m.R2]
	a := append([]int(nil), r1.nodes...)
	b := append([]int(nil), r2.nodes...)
	var merged []int
	switch m.L {
	case mergeForward:
		merged = append(a, b...)
	case mergeBackward:
		merged = append(b, a...)
	case mergeTailTail:
		reverseInts(b)
		merged = append(a, b...)
	case mergeHeadHead:
		reverseInts(a)
		merged = append(a, b...)
	}
	r1.nodes = merged
	r1.load += r2.load
	r1.cost += r2.cost + m.D1
	r2.nodes = nil
	s.compact()
}
