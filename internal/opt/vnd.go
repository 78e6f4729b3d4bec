package opt

// VND is Variable Neighborhood Descent over an ordered list of neighborhoods.
type VND struct {
	Neighborhoods []Neighborhood
	// OnImprove is called after a neighborhood has been exhausted with at least one move.
	OnImprove func(k NeighborhoodKind, s *Solution)
}

// NewVND returns the standard order 2-opt, merge, relocate, swap, 2-opt*, with
// or-opt appended when enabled.
func NewVND(useOrOpt bool) *VND {
	ns := []Neighborhood{twoOpt{}, merge{}, relocate{}, swap{}, twoOptStar{}}
	if useOrOpt {
		ns = append(ns, orOpt{})
	}
	return &VND{Neighborhoods: ns}
}

// NeighborhoodFor returns the operator of the given kind.
func NeighborhoodFor(k NeighborhoodKind) Neighborhood {
	switch k {
	case TwoOpt:
		return twoOpt{}
	case Relocate:
		return relocate{}
	case Swap:
		return swap{}
	case TwoOptStar:
		return twoOptStar{}
	case Merge:
		return merge{}
	case OrOpt:
		return orOpt{}
	}
	return nil
}

// Exhaust applies best moves of n until none improves and returns the number applied.
func Exhaust(n Neighborhood, s *Solution) int {
	moves := 0
	for {
		m, ok := n.Find(s)
		if !ok {
			return moves
		}
		n.Apply(s, m)
		moves++
	}
}

// Run descends s in place to a local optimum of every neighborhood. After an
// improvement in any neighborhood but the first the descent restarts from the first.
// It returns the number of moves applied.
func (v *VND) Run(s *Solution) int {
	total := 0
	for k := 0; k < len(v.Neighborhoods); {
		n := v.Neighborhoods[k]
		moves := Exhaust(n, s)
		total += moves
		if moves > 0 && v.OnImprove != nil {
			v.OnImprove(n.Kind(), s)
		}
		if moves > 0 && k > 0 {
			k = 0
		} else {
			k++
		}
	}
	return total
}
