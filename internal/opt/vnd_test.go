package opt

import (
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestVNDReachesLocalOptimum(t *testing.T) {
	for _, useOrOpt := range []bool{false, true} {
		for seed := int64(1); seed <= 3; seed++ {
			inst := randomInstance(t, seed, 35, 100)
			s, err := Construct(inst, Random, rand.New(rand.NewSource(seed)))
			require.NoError(t, err)
			before := s.Cost()

			vnd := NewVND(useOrOpt)
			moves := vnd.Run(s)
			requireFeasible(t, s)
			assert.Positive(t, moves)
			assert.Less(t, s.Cost(), before)

			for _, n := range vnd.Neighborhoods {
				_, ok := n.Find(s)
				assert.False(t, ok, "%s still improves", n.Kind())
			}
			seqs := s.Sequences()
			assert.Zero(t, vnd.Run(s))
			assert.Equal(t, seqs, s.Sequences())
		}
	}
}

func TestVNDOrder(t *testing.T) {
	var kinds []NeighborhoodKind
	for _, n := range NewVND(true).Neighborhoods {
		kinds = append(kinds, n.Kind())
	}
	assert.Equal(t, []NeighborhoodKind{TwoOpt, Merge, Relocate, Swap, TwoOptStar, OrOpt}, kinds)
	assert.Len(t, NewVND(false).Neighborhoods, 5)
}

func TestVNDReportsImprovingNeighborhoods(t *testing.T) {
	inst := crossedInstance(t)
	s := NewSolution(inst, [][]int{{1}, {2}, {3}, {4}})
	var seen []NeighborhoodKind
	vnd := NewVND(false)
	vnd.OnImprove = func(k NeighborhoodKind, _ *Solution) { seen = append(seen, k) }
	vnd.Run(s)
	require.NotEmpty(t, seen)
	assert.Equal(t, Merge, seen[0])
	assert.Equal(t, 2, s.RouteCount())
}

func TestVNDOnClarkeWright(t *testing.T) {
	inst := randomInstance(t, 5, 50, 120)
	s, err := Construct(inst, ClarkeWright, nil)
	require.NoError(t, err)
	before := s.Cost()
	NewVND(true).Run(s)
	requireFeasible(t, s)
	assert.LessOrEqual(t, s.Cost(), before)
}
