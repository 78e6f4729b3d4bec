package opt

import (
	"fmt"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/require"
)

// randomInstance scatters n customers on a 100x100 grid with demands 1..30.
// Customer ids equal node indices.
func randomInstance(t *testing.T, seed int64, n, capacity int) *Instance {
	t.Helper()
	rng := rand.New(rand.NewSource(seed))
	cs := make([]Customer, n)
	for i := range cs {
		cs[i] = Customer{
			ID:     i + 1,
			Pos:    Point{X: rng.Float64() * 100, Y: rng.Float64() * 100},
			Demand: 1 + rng.Intn(30),
		}
	}
	inst, err := NewInstance(fmt.Sprintf("rand-%d-%d", seed, n), Point{X: 50, Y: 50}, cs, capacity)
	require.NoError(t, err)
	return inst
}

// pointsInstance builds an instance from coordinates with unit demands.
func pointsInstance(t *testing.T, capacity int, pts ...Point) *Instance {
	t.Helper()
	cs := make([]Customer, len(pts))
	for i, p := range pts {
		cs[i] = Customer{ID: i + 1, Pos: p, Demand: 1}
	}
	inst, err := NewInstance("points", Point{}, cs, capacity)
	require.NoError(t, err)
	return inst
}

// clusteredInstance is the five node example: two tight clusters on opposite
// sides of the depot, capacity 100.
func clusteredInstance(t *testing.T) *Instance {
	t.Helper()
	inst, err := NewInstance("clustered", Point{X: 0, Y: 0}, []Customer{
		{ID: 1, Pos: Point{X: 10, Y: 10}, Demand: 30},
		{ID: 2, Pos: Point{X: 12, Y: 10}, Demand: 40},
		{ID: 3, Pos: Point{X: -10, Y: -10}, Demand: 30},
		{ID: 4, Pos: Point{X: -12, Y: -8}, Demand: 40},
	}, 100)
	require.NoError(t, err)
	return inst
}

func requireFeasible(t *testing.T, s *Solution) {
	t.Helper()
	require.NoError(t, s.Validate())
}
