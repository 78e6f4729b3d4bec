package opt

// ImprovementEpsilon is the minimum cost decrease that counts as an improvement.
const ImprovementEpsilon = 1e-6

// NeighborhoodKind identifies a local search operator.
type NeighborhoodKind int

const (
	TwoOpt NeighborhoodKind = iota + 1
	Relocate
	Swap
	TwoOptStar
	Merge
	OrOpt
)

func (k NeighborhoodKind) String() string {
	switch k {
	case TwoOpt:
		return "2-opt"
	case Relocate:
		return "relocate"
	case Swap:
		return "swap"
	case TwoOptStar:
		return "2-opt*"
	case Merge:
		return "merge"
	case OrOpt:
		return "or-opt"
	}
	return "unknown"
}

// Move describes one candidate modification. Field meaning depends on Kind;
// D1 and D2 are the cost changes of routes R1 and R2.
type Move struct {
	Kind   NeighborhoodKind
	Delta  float64
	R1, R2 int
	I, J   int
	L      int
	D1, D2 float64
}

// Neighborhood finds the best improving move of one kind and applies it.
// Find never mutates the solution.
type Neighborhood interface {
	Kind() NeighborhoodKind
	Find(s *Solution) (Move, bool)
	Apply(s *Solution, m Move)
}

// improves reports whether delta beats the current best by more than the epsilon.
func improves(delta, best float64) bool {
	return delta < -ImprovementEpsilon && delta < best
}
