package opt

import (
	"math/rand"
	"sort"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestShakeKeepsInvariants(t *testing.T) {
	inst := randomInstance(t, 21, 40, 100)
	base, err := Construct(inst, ClarkeWright, nil)
	require.NoError(t, err)
	NewVND(false).Run(base)
	orig := base.Sequences()

	for _, op := range shakeOrder {
		for k := 1; k <= 6; k++ {
			for seed := int64(1); seed <= 10; seed++ {
				out := Shake(op, base, k, rand.New(rand.NewSource(seed)), 10)
				require.NoError(t, out.Validate(), "%s k=%d seed=%d", op, k, seed)
			}
		}
	}
	if diff := cmp.Diff(orig, base.Sequences()); diff != "" {
		t.Fatalf("shake mutated its input (-want +got):\n%s", diff)
	}
}

func TestShakeForCyclesOperators(t *testing.T) {
	assert.Equal(t, RandomRelocate, ShakeFor(1))
	assert.Equal(t, RandomSwap, ShakeFor(2))
	assert.Equal(t, DoubleBridge, ShakeFor(3))
	assert.Equal(t, RandomRelocate, ShakeFor(4))
	assert.Equal(t, RandomSwap, ShakeFor(5))
}

func TestDoubleBridgeReordersPieces(t *testing.T) {
	inst := randomInstance(t, 3, 8, 1000)
	s := NewSolution(inst, [][]int{{1, 2, 3, 4, 5, 6, 7, 8}})
	for seed := int64(1); seed <= 20; seed++ {
		out := Shake(DoubleBridge, s, 1, rand.New(rand.NewSource(seed)), 0)
		requireFeasible(t, out)
		got := out.Routes()[0].Nodes()
		require.Len(t, got, 8)
		assert.Equal(t, 1, got[0], "first piece stays in front")
		assert.NotEqual(t, s.Routes()[0].Nodes(), got)

		sorted := append([]int(nil), got...)
		sort.Ints(sorted)
		assert.Equal(t, []int{1, 2, 3, 4, 5, 6, 7, 8}, sorted)
	}
}

func TestDoubleBridgeSkipsShortRoutes(t *testing.T) {
	inst := crossedInstance(t)
	s := NewSolution(inst, [][]int{{1, 2}, {3, 4}})
	out := Shake(DoubleBridge, s, 3, rand.New(rand.NewSource(1)), 0)
	assert.Equal(t, s.Sequences(), out.Sequences())
}

func TestRandomRelocateOpensRouteWhenFull(t *testing.T) {
	inst := crossedInstance(t)
	s := NewSolution(inst, [][]int{{1, 2}, {3, 4}})
	out := Shake(RandomRelocate, s, 1, rand.New(rand.NewSource(5)), 0)
	requireFeasible(t, out)
	assert.Equal(t, 3, out.RouteCount())
}

func TestRandomSwapSingleRouteIsNoop(t *testing.T) {
	inst := pointsInstance(t, 10, Point{X: 1}, Point{X: 2}, Point{X: 3})
	s := NewSolution(inst, [][]int{{1, 2, 3}})
	out := Shake(RandomSwap, s, 2, rand.New(rand.NewSource(1)), 10)
	assert.Equal(t, s.Sequences(), out.Sequences())
}

func TestRandomSwapDisjointPairs(t *testing.T) {
	inst := pointsInstance(t, 10,
		Point{X: 1}, Point{X: 2}, Point{X: 3},
		Point{X: -1}, Point{X: -2}, Point{X: -3})
	s := NewSolution(inst, [][]int{{1, 2, 3}, {4, 5, 6}})
	for seed := int64(1); seed <= 10; seed++ {
		out := Shake(RandomSwap, s, 3, rand.New(rand.NewSource(seed)), 50)
		requireFeasible(t, out)
		moved := 0
		for _, v := range out.Routes()[0].Nodes() {
			if v > 3 {
				moved++
			}
		}
		assert.Equal(t, 3, out.Routes()[0].Len())
		assert.LessOrEqual(t, moved, 3)
		assert.Positive(t, moved)
	}
}
