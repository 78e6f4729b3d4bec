package opt

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewInstanceDistances(t *testing.T) {
	inst := pointsInstance(t, 10, Point{X: 3, Y: 4}, Point{X: 6, Y: 8})
	assert.Equal(t, 3, inst.N())
	assert.Equal(t, 2, inst.NumCustomers())
	assert.InDelta(t, 5.0, inst.Dist(0, 1), 1e-12)
	assert.InDelta(t, 10.0, inst.Dist(0, 2), 1e-12)
	for i := 0; i < inst.N(); i++ {
		assert.Zero(t, inst.Dist(i, i))
		for j := 0; j < inst.N(); j++ {
			assert.Equal(t, inst.Dist(i, j), inst.Dist(j, i))
		}
	}
	assert.Equal(t, 0, inst.Demand(0))
	assert.Equal(t, 2, inst.CustomerID(2))
	assert.Equal(t, 1, inst.MinVehicles())
}

func TestNewInstanceCapacityViolation(t *testing.T) {
	_, err := NewInstance("bad", Point{}, []Customer{
		{ID: 1, Demand: 10},
		{ID: 7, Demand: 120},
	}, 100)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrCapacityViolation))
	var cv *CapacityViolationError
	require.True(t, errors.As(err, &cv))
	assert.Equal(t, 7, cv.CustomerID)
	assert.Equal(t, 120, cv.Demand)
	assert.Equal(t, 100, cv.Capacity)
}

func TestNewInstanceShapeErrors(t *testing.T) {
	cases := map[string]struct {
		cs  []Customer
		cap int
	}{
		"zero capacity":   {cs: []Customer{{ID: 1, Demand: 1}}, cap: 0},
		"negative demand": {cs: []Customer{{ID: 1, Demand: -1}}, cap: 10},
		"duplicate id":    {cs: []Customer{{ID: 1, Demand: 1}, {ID: 1, Demand: 2}}, cap: 10},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := NewInstance(name, Point{}, tc.cs, tc.cap)
			require.ErrorIs(t, err, ErrInvalidInstance)
		})
	}
}

func TestNewInstanceEmpty(t *testing.T) {
	inst, err := NewInstance("empty", Point{X: 1, Y: 1}, nil, 10)
	require.NoError(t, err)
	assert.Equal(t, 1, inst.N())
	assert.Zero(t, inst.NumCustomers())
}
